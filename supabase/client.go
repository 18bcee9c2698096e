// Package supabase implements the durable session store on Supabase
// (PostgREST). The expected schema is in schema.sql.
package supabase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"github.com/creastat/chatguard"
	"github.com/creastat/chatguard/session"
)

const sessionColumns = "session_id,subject,created_at,last_activity," + messagesTable + "(count)"

// Config holds Supabase connection configuration
type Config struct {
	URL    string
	APIKey string
}

// Client implements session.Store using Supabase
type Client struct {
	client *supabase.Client
	now    func() time.Time
}

// New creates a new Supabase client
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: supabase URL is required", chatguard.ErrInvalidConfig)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: supabase API key is required", chatguard.ErrInvalidConfig)
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &Client{
		client: client,
		now:    time.Now,
	}, nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// touch moves last_activity forward to at and reports whether the
// session exists. A row already stamped later by another process is left
// alone.
func (c *Client) touch(id string, at time.Time) (bool, error) {
	ts := timestamp(at)
	var rows []sessionRow
	_, err := c.client.From(sessionsTable).
		Update(map[string]any{"last_activity": ts}, "representation", "").
		Eq("session_id", id).
		Lt("last_activity", ts).
		ExecuteTo(&rows)
	if err != nil {
		return false, err
	}
	if len(rows) > 0 {
		return true, nil
	}

	_, err = c.client.From(sessionsTable).
		Select("session_id", "", false).
		Eq("session_id", id).
		ExecuteTo(&rows)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// UpsertSession implements session.Store
func (c *Client) UpsertSession(ctx context.Context, id, subject string) (*session.Record, error) {
	now := c.now()

	exists, err := c.touch(id, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert session: %w", err)
	}
	if !exists {
		row := map[string]any{
			"session_id":    id,
			"subject":       subject,
			"created_at":    timestamp(now),
			"last_activity": timestamp(now),
		}
		_, _, err = c.client.From(sessionsTable).
			Insert(row, false, "", "minimal", "").
			Execute()
		if err != nil {
			// Lost an insert race; the row exists now.
			if _, terr := c.touch(id, now); terr != nil {
				return nil, fmt.Errorf("failed to upsert session: %w", err)
			}
		}
	}

	return c.GetSession(ctx, id)
}

// GetSession implements session.Store
func (c *Client) GetSession(ctx context.Context, id string) (*session.Record, error) {
	var rows []sessionRow
	_, err := c.client.From(sessionsTable).
		Select(sessionColumns, "", false).
		Eq("session_id", id).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	rec := rows[0].record()
	return &rec, nil
}

// ListSessions implements session.Store
func (c *Client) ListSessions(ctx context.Context, limit int) ([]session.Record, error) {
	query := c.client.From(sessionsTable).
		Select(sessionColumns, "", false).
		Order("last_activity", &postgrest.OrderOpts{Ascending: false})
	if limit > 0 {
		query = query.Limit(limit, "")
	}

	var rows []sessionRow
	if _, err := query.ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	records := make([]session.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.record())
	}
	return records, nil
}

// DeleteSession implements session.Store
func (c *Client) DeleteSession(ctx context.Context, id string) (bool, error) {
	_, count, err := c.client.From(sessionsTable).
		Delete("minimal", "exact").
		Eq("session_id", id).
		Execute()
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return count > 0, nil
}

// CountSessions implements session.Store
func (c *Client) CountSessions(ctx context.Context) (int, error) {
	_, count, err := c.client.From(sessionsTable).
		Select("session_id", "exact", true).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return int(count), nil
}

// AddMessage implements session.Store
func (c *Client) AddMessage(ctx context.Context, id string, msg chatguard.Message) error {
	now := c.now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}

	exists, err := c.touch(id, now)
	if err != nil {
		return fmt.Errorf("failed to add message: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", chatguard.ErrNotFound, id)
	}

	row := messageRow{
		SessionID:  id,
		Role:       string(msg.Role),
		Content:    msg.Content,
		Metadata:   msg.Metadata,
		TokenCount: msg.TokenCount,
		CreatedAt:  msg.CreatedAt.UTC(),
	}
	_, _, err = c.client.From(messagesTable).
		Insert(row, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to add message: %w", err)
	}
	return nil
}

// ListMessages implements session.Store
func (c *Client) ListMessages(ctx context.Context, id string, limit int) ([]chatguard.Message, error) {
	query := c.client.From(messagesTable).
		Select("*", "", false).
		Eq("session_id", id).
		Order("id", &postgrest.OrderOpts{Ascending: false})
	if limit > 0 {
		query = query.Limit(limit, "")
	}

	var rows []messageRow
	if _, err := query.ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	msgs := make([]chatguard.Message, len(rows))
	for i, r := range rows {
		msgs[len(rows)-1-i] = r.message()
	}
	return msgs, nil
}

// CountMessages implements session.Store
func (c *Client) CountMessages(ctx context.Context, id string) (int, error) {
	_, count, err := c.client.From(messagesTable).
		Select("id", "exact", true).
		Eq("session_id", id).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return int(count), nil
}

// TrimMessages implements session.Store
func (c *Client) TrimMessages(ctx context.Context, id string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	var rows []messageRow
	_, err := c.client.From(messagesTable).
		Select("id,role", "", false).
		Eq("session_id", id).
		Order("id", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		return 0, fmt.Errorf("failed to trim messages: %w", err)
	}

	doomed := trimIDs(rows, keep)
	if len(doomed) == 0 {
		return 0, nil
	}

	_, count, err := c.client.From(messagesTable).
		Delete("minimal", "exact").
		In("id", doomed).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("failed to trim messages: %w", err)
	}
	return int(count), nil
}

// trimIDs returns the ids to delete so that at most keep rows remain,
// keeping a leading system message. rows are in id order.
func trimIDs(rows []messageRow, keep int) []string {
	if len(rows) <= keep {
		return nil
	}

	start := 0
	if rows[0].Role == string(chatguard.RoleSystem) {
		start = 1
		keep--
	}
	cut := len(rows) - keep

	ids := make([]string, 0, cut-start)
	for _, r := range rows[start:cut] {
		ids = append(ids, strconv.FormatInt(r.ID, 10))
	}
	return ids
}

// DeleteInactiveSessions implements session.Store
func (c *Client) DeleteInactiveSessions(ctx context.Context, before time.Time) (int, error) {
	_, count, err := c.client.From(sessionsTable).
		Delete("minimal", "exact").
		Lt("last_activity", timestamp(before)).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("failed to delete inactive sessions: %w", err)
	}
	return int(count), nil
}

// DeleteMessagesBefore implements session.Store
func (c *Client) DeleteMessagesBefore(ctx context.Context, before time.Time) (int, error) {
	_, count, err := c.client.From(messagesTable).
		Delete("minimal", "exact").
		Lt("created_at", timestamp(before)).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("failed to delete old messages: %w", err)
	}
	return int(count), nil
}

// Close closes the Supabase client
func (c *Client) Close() error {
	// Supabase client doesn't require explicit close
	return nil
}

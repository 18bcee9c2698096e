// Package chat drives one question/answer turn: subject validation, guard
// rails, session bookkeeping and the history handed to a model provider.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/creastat/chatguard"
	"github.com/creastat/chatguard/conversation"
	"github.com/creastat/chatguard/guardrail"
	"github.com/creastat/chatguard/session"
	"github.com/creastat/chatguard/subject"
)

// Request is an incoming user question.
type Request struct {
	SessionID string   `json:"session_id,omitempty"`
	Subjects  []string `json:"subjects"`
	Message   string   `json:"message"`
}

// Turn is the result of Begin. History is only set when Accepted.
type Turn struct {
	Accepted  bool                      `json:"accepted"`
	SessionID string                    `json:"session_id,omitempty"`
	Subjects  []string                  `json:"subjects"`
	History   []conversation.APIMessage `json:"history,omitempty"`
	Verdict   guardrail.Verdict         `json:"verdict"`
}

// Service ties the guard rails to the conversation store.
type Service struct {
	catalog   *subject.Catalog
	evaluator *guardrail.Evaluator
	manager   *conversation.Manager
	log       zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// NewService creates a Service.
func NewService(catalog *subject.Catalog, evaluator *guardrail.Evaluator, manager *conversation.Manager, opts ...Option) *Service {
	s := &Service{
		catalog:   catalog,
		evaluator: evaluator,
		manager:   manager,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin validates a request and, when the guard rails accept it, records
// the user message and returns the history to send to the provider. The
// first accepted message of a session is preceded by the system prompt.
// A rejection is not an error: it is reported in the returned Turn and no
// session is touched.
func (s *Service) Begin(ctx context.Context, req Request) (Turn, error) {
	subjects, err := s.catalog.Parse(req.Subjects...)
	if err != nil {
		return Turn{}, err
	}
	if strings.TrimSpace(req.Message) == "" {
		return Turn{}, chatguard.ErrEmptyMessage
	}

	turn := Turn{
		SessionID: req.SessionID,
		Subjects:  subjects,
		Verdict:   s.evaluator.Evaluate(req.Message, subjects...),
	}
	if !turn.Verdict.Valid {
		s.log.Info().
			Str("session_id", req.SessionID).
			Strs("subjects", subjects).
			Str("check", string(turn.Verdict.Check)).
			Str("reason", turn.Verdict.Reason).
			Msg("message rejected by guard rails")
		return turn, nil
	}

	if turn.SessionID == "" {
		turn.SessionID = session.NewID()
	}

	sess, err := s.manager.GetOrCreateSession(ctx, turn.SessionID, subject.Join(subjects))
	if err != nil {
		return Turn{}, fmt.Errorf("failed to open session: %w", err)
	}

	if len(sess.Messages) == 0 {
		if err := s.manager.AddMessage(ctx, turn.SessionID, chatguard.RoleSystem, s.catalog.SystemPrompt(subjects), nil); err != nil {
			return Turn{}, fmt.Errorf("failed to add system prompt: %w", err)
		}
	}
	if err := s.manager.AddMessage(ctx, turn.SessionID, chatguard.RoleUser, req.Message, nil); err != nil {
		return Turn{}, fmt.Errorf("failed to add user message: %w", err)
	}

	turn.Accepted = true
	turn.History = s.manager.MessagesForAPI(ctx, turn.SessionID, true)
	return turn, nil
}

// Complete records the provider's answer. Citations are stored in the
// message metadata when present.
func (s *Service) Complete(ctx context.Context, sessionID, content string, citations []string) error {
	var metadata chatguard.Metadata
	if len(citations) > 0 {
		metadata = chatguard.Metadata{"citations": citations}
	}
	if err := s.manager.AddMessage(ctx, sessionID, chatguard.RoleAssistant, content, metadata); err != nil {
		return fmt.Errorf("failed to add assistant message: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/creastat/chatguard/subject"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "inspect and delete stored sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "list sessions, most recently active first",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "show a session and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "delete a session and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var showSystem bool

func init() {
	sessionsShowCmd.Flags().BoolVar(&showSystem, "system", false, "include the system prompt")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	records := a.manager.ListSessions(ctx)
	if len(records) == 0 {
		printInfo("no sessions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSUBJECTS\tMESSAGES\tLAST ACTIVITY")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.ID, r.Subject, r.MessageCount, r.LastActivity.Local().Format(time.RFC3339))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	printBold("%d of %d sessions", len(records), a.manager.ActiveSessionCount(ctx))
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	id := args[0]
	rec := a.manager.SessionInfo(ctx, id)
	if rec == nil {
		return fmt.Errorf("session %s not found", id)
	}

	printBold("session %s", rec.ID)
	printInfo("subjects: %s", a.catalog.CombinedContext(subject.Split(rec.Subject)))
	printInfo("created: %s", rec.CreatedAt.Local().Format(time.RFC3339))
	printInfo("last activity: %s", rec.LastActivity.Local().Format(time.RFC3339))
	printInfo("messages: %d", rec.MessageCount)

	for _, m := range a.manager.MessagesForAPI(ctx, id, showSystem) {
		fmt.Printf("\n[%s]\n%s\n", m.Role, m.Content)
	}
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	if !a.manager.DeleteSession(ctx, args[0]) {
		return fmt.Errorf("session %s not found", args[0])
	}
	printSuccess("session %s deleted", args[0])
	return nil
}

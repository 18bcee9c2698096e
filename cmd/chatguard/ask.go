package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/creastat/chatguard/chat"
)

var (
	askSubjects  []string
	askSessionID string
)

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "record a question in a session and print the provider history",
	Long: `Run one accepted question through the guard rails and the session store,
then print the history that would be sent to the model provider. The first
question of a session is preceded by the subject system prompt.`,
	Example: `  $ chatguard ask -s codigo --session demo "como faço rebase no git?"`,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runAsk,
}

func init() {
	askCmd.Flags().StringSliceVarP(&askSubjects, "subject", "s", nil, "subjects of the session (repeatable or comma separated)")
	askCmd.Flags().StringVar(&askSessionID, "session", "", "session id (generated when empty)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	message, err := messageArg(cmd, args)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	turn, err := a.chat.Begin(ctx, chat.Request{
		SessionID: askSessionID,
		Subjects:  askSubjects,
		Message:   message,
	})
	if err != nil {
		return err
	}

	printVerdict(turn.Verdict)
	if !turn.Accepted {
		return nil
	}

	printBold("session %s", turn.SessionID)
	for _, m := range turn.History {
		printInfo("[%s] %s", m.Role, m.Content)
	}
	return nil
}

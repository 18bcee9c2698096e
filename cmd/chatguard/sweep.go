package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var sweepTimeout time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "delete inactive sessions and expired messages once",
	Args:  cobra.NoArgs,
	RunE:  runSweep,
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepTimeout, "timeout", 0, "inactivity timeout (default: session.timeout)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.store == nil {
		printWarning("store driver is none, nothing to sweep")
		return nil
	}

	timeout := a.cfg.Session.Timeout
	if sweepTimeout > 0 {
		timeout = sweepTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res := a.newReaper().Sweep(ctx, timeout)
	if res.Err != nil {
		printError("sweep failed: %v", res.Err)
	} else {
		printSuccess("sweep completed at %s", res.Timestamp.Format(time.RFC3339))
	}
	printInfo("deleted sessions: %d", res.DeletedSessions)
	printInfo("deleted messages: %d", res.DeletedMessages)
	return res.Err
}

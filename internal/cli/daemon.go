package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the proactive check-in loop",
		Long:  "Evaluate the check-in gate every checkIntervalMs and dispatch a hint when it opens. Runs until interrupted.",
		Args:  cobra.NoArgs,
		Run:   runDaemon,
	}
	RootCmd.AddCommand(cmd)
}

func runDaemon(cmd *cobra.Command, args []string) {
	svc := openService()
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Daemon(ctx); err != nil {
		exitErr("daemon", err)
	}
}

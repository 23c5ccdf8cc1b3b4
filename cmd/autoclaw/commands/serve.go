package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"autoclaw/pkg/autoclaw/agent"
)

// newServeCmd creates the `autoclaw serve` command that starts the
// agent daemon.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent daemon",
		Long: `Start AutoClaw as a daemon: monitor loop, task scheduler, and the
enabled messaging channels. With --interactive, a command prompt runs
alongside the daemon.

Examples:
  autoclaw serve
  autoclaw serve --interactive
  autoclaw serve --config ./config.json`,
		RunE: runServe,
	}

	cmd.Flags().BoolP("interactive", "i", false, "run the interactive prompt alongside the daemon")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := agent.New(configPath(cmd))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start agent: %w", err)
	}

	interactive, _ := cmd.Flags().GetBool("interactive")
	if interactive {
		err := a.Interactive(ctx)
		stopAgent(a)
		return err
	}

	a.Logger().Info("AutoClaw running. Press Ctrl+C to stop.")
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	a.Logger().Info("shutdown signal received, stopping...")
	stopAgent(a)
	return nil
}

// stopAgent shuts the agent down with a deadline so a stuck channel
// cannot hang the process.
func stopAgent(a *agent.Agent) {
	done := make(chan struct{})
	go func() {
		a.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		a.Logger().Warn("shutdown timed out, exiting anyway")
	}
}

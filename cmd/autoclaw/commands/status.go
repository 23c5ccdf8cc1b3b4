package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"autoclaw/pkg/autoclaw/agent"
)

// newStatusCmd creates the `autoclaw status` command.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show a system and agent status snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := agent.New(configPath(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			// One-shot sample so the report has fresh numbers.
			a.Monitor.Tick(ctx)
			out, _ := a.Execute(ctx, "status")
			fmt.Println(out)
			return nil
		},
	}
}

package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"autoclaw/pkg/autoclaw/config"
)

// newConfigCmd creates the `autoclaw config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the configuration",
		Long: `Read and write configuration values by dotted path.

Examples:
  autoclaw config list
  autoclaw config get monitor.interval
  autoclaw config set email.enabled true
  autoclaw config validate`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print the whole configuration document",
			RunE: func(cmd *cobra.Command, _ []string) error {
				store, err := loadStore(cmd)
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(store.Document(), "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <path>",
			Short: "Print one value by dotted path",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := loadStore(cmd)
				if err != nil {
					return err
				}
				value := store.Get(args[0], nil)
				if value == nil {
					return fmt.Errorf("no value at %s", args[0])
				}
				data, err := json.Marshal(value)
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <path> <value>",
			Short: "Set one value by dotted path",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := loadStore(cmd)
				if err != nil {
					return err
				}
				return store.Set(args[0], parseValue(args[1]))
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check the configuration for problems",
			RunE: func(cmd *cobra.Command, _ []string) error {
				store, err := loadStore(cmd)
				if err != nil {
					return err
				}
				result := store.Validate()
				for _, w := range result.Warnings {
					fmt.Println("warning:", w)
				}
				for _, e := range result.Errors {
					fmt.Println("error:", e)
				}
				if len(result.Errors) > 0 {
					return fmt.Errorf("%d error(s) found", len(result.Errors))
				}
				fmt.Println("configuration OK")
				return nil
			},
		},
	)
	return cmd
}

func loadStore(cmd *cobra.Command) (*config.Store, error) {
	store := config.New(configPath(cmd))
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return store, nil
}

// parseValue interprets a CLI argument as bool, number, or string.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

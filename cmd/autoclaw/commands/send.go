package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"autoclaw/pkg/autoclaw/agent"
	"autoclaw/pkg/autoclaw/channels"
)

// newSendCmd creates the `autoclaw send` command.
func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <channel> <recipient> <message...>",
		Short: "Send a one-off message through a channel",
		Long: `Connects the named channel, sends one message, and disconnects.

Examples:
  autoclaw send email ops@example.com "backup finished"
  autoclaw send telegram 123456789 "disk almost full"
  autoclaw send discord 1134567890 "deploy done"
  autoclaw send email ops@example.com --template backup_done --var host=web1`,
		Args: cobra.MinimumNArgs(2),
		RunE: runSend,
	}

	cmd.Flags().String("subject", "", "message subject (email only)")
	cmd.Flags().String("attach", "", "path of a file to attach")
	cmd.Flags().String("template", "", "render a stored message template instead of a literal message")
	cmd.Flags().StringArray("var", nil, "template variable as key=value (repeatable)")
	return cmd
}

func runSend(cmd *cobra.Command, args []string) error {
	channel, recipient := args[0], args[1]
	content := strings.Join(args[2:], " ")
	templateName, _ := cmd.Flags().GetString("template")
	if content == "" && templateName == "" {
		return fmt.Errorf("a message or --template is required")
	}

	a, err := agent.New(configPath(cmd))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := a.Start(ctx); err != nil {
		a.Close()
		return fmt.Errorf("start agent: %w", err)
	}
	defer a.Stop()

	subject, _ := cmd.Flags().GetString("subject")
	attach, _ := cmd.Flags().GetString("attach")

	if templateName != "" {
		pairs, _ := cmd.Flags().GetStringArray("var")
		vars := make(map[string]string, len(pairs))
		for _, pair := range pairs {
			if key, value, ok := strings.Cut(pair, "="); ok {
				vars[key] = value
			}
		}
		rendered, err := a.Templates.Render(templateName, vars)
		if err != nil {
			return err
		}
		if len(rendered.Missing) > 0 {
			return fmt.Errorf("template %s is missing variables: %s",
				templateName, strings.Join(rendered.Missing, ", "))
		}
		content = rendered.Body
		if subject == "" {
			subject = rendered.Subject
		}
	}

	msg := &channels.OutgoingMessage{
		Subject: subject,
		Content: content,
	}
	if attach != "" {
		msg.Attachment = &channels.Attachment{
			Type: channels.MessageDocument,
			Path: attach,
		}
	}

	if err := a.Channels.Send(ctx, channel, recipient, msg); err != nil {
		return fmt.Errorf("send via %s: %w", channel, err)
	}
	fmt.Printf("message sent via %s to %s\n", channel, recipient)
	return nil
}

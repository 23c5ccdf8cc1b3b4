package commands

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"autoclaw/pkg/autoclaw/config"
	"autoclaw/pkg/autoclaw/secrets"
)

// newSetupCmd creates the `autoclaw setup` wizard.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long: `Walks through the initial configuration: which channels to enable
and their credentials. Secrets go to the OS keyring, never into the
config file.

Examples:
  autoclaw setup`,
		RunE: runSetup,
	}
}

func runSetup(cmd *cobra.Command, _ []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("setup needs an interactive terminal")
	}

	store := config.New(configPath(cmd))
	if err := store.Load(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var (
		agentName  = store.GetString("agent.name", "AutoClaw")
		channelSel []string
		smtpServer string
		smtpUser   string
		smtpPass   string
		tgToken    string
		dcToken    string
		aiEnabled  bool
		aiKey      string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Agent name").
				Value(&agentName),
			huh.NewMultiSelect[string]().
				Title("Channels to enable").
				Options(
					huh.NewOption("Email (SMTP)", "email"),
					huh.NewOption("Telegram", "telegram"),
					huh.NewOption("WhatsApp", "whatsapp"),
					huh.NewOption("Discord", "discord"),
				).
				Value(&channelSel),
			huh.NewConfirm().
				Title("Enable the AI assistant?").
				Value(&aiEnabled),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	selected := make(map[string]bool, len(channelSel))
	for _, name := range channelSel {
		selected[name] = true
	}

	if selected["email"] {
		err := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("SMTP server").Value(&smtpServer),
			huh.NewInput().Title("SMTP username").Value(&smtpUser),
			huh.NewInput().Title("SMTP password").
				EchoMode(huh.EchoModePassword).Value(&smtpPass),
		)).Run()
		if err != nil {
			return err
		}
	}
	if selected["telegram"] {
		err := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Telegram bot token").
				EchoMode(huh.EchoModePassword).Value(&tgToken),
		)).Run()
		if err != nil {
			return err
		}
	}
	if selected["discord"] {
		err := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Discord bot token").
				EchoMode(huh.EchoModePassword).Value(&dcToken),
		)).Run()
		if err != nil {
			return err
		}
	}
	if aiEnabled {
		err := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("OpenAI-compatible API key").
				EchoMode(huh.EchoModePassword).Value(&aiKey),
		)).Run()
		if err != nil {
			return err
		}
	}

	values := map[string]any{
		"agent.name":        agentName,
		"email.enabled":     selected["email"],
		"telegram.enabled":  selected["telegram"],
		"whatsapp.enabled":  selected["whatsapp"],
		"discord.enabled":   selected["discord"],
		"assistant.enabled": aiEnabled,
	}
	if smtpServer != "" {
		values["email.smtp_server"] = smtpServer
		values["email.username"] = smtpUser
	}
	if err := store.Update(values); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	keyringOK := secrets.KeyringAvailable()
	storeSecret := func(name, value string) {
		if value == "" {
			return
		}
		if !keyringOK {
			fmt.Printf("keyring unavailable; set %s via environment instead\n", name)
			return
		}
		if err := secrets.Store(name, value); err != nil {
			fmt.Printf("could not store %s in keyring: %v\n", name, err)
		}
	}
	storeSecret(secrets.KeySMTPPassword, smtpPass)
	storeSecret(secrets.KeyTelegramToken, tgToken)
	storeSecret(secrets.KeyDiscordToken, dcToken)
	storeSecret(secrets.KeyOpenAIAPIKey, aiKey)

	fmt.Println("Setup complete. Start the agent with: autoclaw serve")
	return nil
}

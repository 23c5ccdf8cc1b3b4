// Package secrets resolves credentials for AutoClaw using the operating
// system's native keyring (Linux: Secret Service, macOS: Keychain,
// Windows: Credential Manager), falling back to environment variables
// loaded from the process env or a .env file.
//
// Resolution order: OS keyring → environment variable → config value.
package secrets

import (
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// service is the service name used in the OS keyring.
const service = "autoclaw"

// Known secret names.
const (
	KeySMTPPassword  = "smtp_password"
	KeyTelegramToken = "telegram_token"
	KeyDiscordToken  = "discord_token"
	KeyOpenAIAPIKey  = "openai_api_key"
	KeyAnthropicKey  = "anthropic_api_key"
)

// envNames maps secret names to their environment variable fallbacks.
var envNames = map[string]string{
	KeySMTPPassword:  "AUTOCLAW_SMTP_PASSWORD",
	KeyTelegramToken: "TELEGRAM_BOT_TOKEN",
	KeyDiscordToken:  "DISCORD_BOT_TOKEN",
	KeyOpenAIAPIKey:  "OPENAI_API_KEY",
	KeyAnthropicKey:  "ANTHROPIC_API_KEY",
}

// Store saves a secret to the OS keyring.
func Store(name, value string) error {
	return keyring.Set(service, name, value)
}

// Delete removes a secret from the OS keyring.
func Delete(name string) error {
	return keyring.Delete(service, name)
}

// Resolve returns the secret value, trying keyring first, then the
// environment. Returns empty string if not found anywhere.
func Resolve(name string) string {
	if val, err := keyring.Get(service, name); err == nil && val != "" {
		return val
	}
	if env, ok := envNames[name]; ok {
		if val := strings.TrimSpace(os.Getenv(env)); val != "" {
			return val
		}
	}
	// Unknown names fall back to AUTOCLAW_<NAME>.
	return strings.TrimSpace(os.Getenv("AUTOCLAW_" + strings.ToUpper(name)))
}

// KeyringAvailable reports whether the OS keyring is usable. Headless
// systems without a secret service return false; callers then rely on
// env vars.
func KeyringAvailable() bool {
	const testKey = "__autoclaw_test__"
	if err := keyring.Set(service, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(service, testKey)
	return true
}

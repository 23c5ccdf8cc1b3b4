package agent

import (
	"context"
	"fmt"
	"strings"

	"autoclaw/pkg/autoclaw/secrets"
	"autoclaw/pkg/autoclaw/voice"
)

// buildVoice registers the built-in voice commands and, when voice is
// enabled, the speech stack configured under the voice section.
func (a *Agent) buildVoice() {
	a.registerVoiceCommands()

	if !a.Config.GetBool("voice.enabled", false) {
		return
	}
	apiKey := secrets.Resolve(secrets.KeyOpenAIAPIKey)

	provider, err := voice.NewProvider(
		a.Config.GetString("voice.tts_provider", "auto"),
		apiKey,
		a.Config.GetString("voice.tts_model", "tts-1"),
		a.logger,
	)
	if err != nil {
		a.logger.Warn("tts unavailable", "error", err)
	} else {
		a.TTS = provider
	}
	a.STT = voice.NewTranscriber(apiKey, "", a.Config.GetString("voice.stt_model", "whisper-1"))
}

func (a *Agent) registerVoiceCommands() {
	commands := []struct {
		phrase, description string
		handler             voice.Handler
	}{
		{"system status", "read out the system snapshot", func(ctx context.Context) (string, error) {
			return a.statusText(), nil
		}},
		{"list tasks", "read out the scheduled tasks", func(ctx context.Context) (string, error) {
			return a.tasksText(), nil
		}},
		{"check alerts", "read out alerts from the last 24 hours", func(ctx context.Context) (string, error) {
			return a.alertsText(), nil
		}},
		{"run health check", "sample system metrics now", func(ctx context.Context) (string, error) {
			if err := a.Scheduler.RunNow(ctx, "system_health_check"); err != nil {
				return "", err
			}
			return "Health check started.", nil
		}},
	}
	for _, cmd := range commands {
		if err := a.Voice.Register(cmd.phrase, cmd.description, cmd.handler); err != nil {
			a.logger.Warn("voice command registration failed", "phrase", cmd.phrase, "error", err)
		}
	}
}

// HandleVoice routes a transcript through the command registry, then
// the assistant when no command matches.
func (a *Agent) HandleVoice(ctx context.Context, transcript string) (string, error) {
	if _, ok := a.Voice.Match(transcript); ok {
		return a.Voice.Execute(ctx, transcript)
	}
	if a.Assistant != nil {
		return a.Assistant.Respond(ctx, "voice", "voice", transcript), nil
	}
	return "", fmt.Errorf("no voice command matches %q", strings.TrimSpace(transcript))
}

// Speak synthesizes text with the configured voice. Returns audio
// bytes and MIME type.
func (a *Agent) Speak(ctx context.Context, text string) ([]byte, string, error) {
	if a.TTS == nil {
		return nil, "", fmt.Errorf("voice is not enabled")
	}
	return a.TTS.Synthesize(ctx, text, a.Config.GetString("voice.tts_voice", ""))
}

// Transcribe converts recorded audio to text.
func (a *Agent) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if a.STT == nil {
		return "", fmt.Errorf("voice is not enabled")
	}
	return a.STT.Transcribe(ctx, audio, filename)
}

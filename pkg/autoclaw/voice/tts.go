// Package voice provides speech for the agent: text-to-speech
// synthesis, Whisper transcription, and a registry mapping spoken
// phrases to actions.
//
// TTS supports OpenAI (paid) and Edge (free, Microsoft Azure voices),
// with an auto mode that prefers OpenAI and falls back to Edge.
package voice

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Provider is the interface for TTS backends.
type Provider interface {
	// Synthesize converts text to audio. Returns audio bytes, MIME
	// type, and error.
	Synthesize(ctx context.Context, text, voice string) ([]byte, string, error)
}

// maxTTSInput is the character limit providers accept per request.
const maxTTSInput = 4096

// OpenAIProvider implements TTS via the OpenAI speech API.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewOpenAIProvider creates an OpenAI TTS provider.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "tts-1"
	}
	return &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Synthesize converts text to Opus audio via the OpenAI speech API.
func (p *OpenAIProvider) Synthesize(ctx context.Context, text, voice string) ([]byte, string, error) {
	if voice == "" {
		voice = "nova"
	}
	if len(text) > maxTTSInput {
		text = text[:maxTTSInput-3] + "..."
	}

	payload := map[string]any{
		"model":           p.model,
		"input":           text,
		"voice":           voice,
		"response_format": "opus",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("tts: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("tts: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("tts: API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, "", fmt.Errorf("tts: API returned %d: %s", resp.StatusCode, string(errBody))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("tts: reading audio: %w", err)
	}
	return audio, "audio/ogg", nil
}

// EdgeProvider implements TTS via Microsoft Edge's speech synthesis
// service, the same Azure backend the Edge Read Aloud feature uses.
type EdgeProvider struct {
	client *http.Client
	logger *slog.Logger
}

// NewEdgeProvider creates an Edge TTS provider.
func NewEdgeProvider(logger *slog.Logger) *EdgeProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &EdgeProvider{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger.With("component", "edge-tts"),
	}
}

const edgeTTSEndpoint = "https://speech.platform.bing.com/consumer/speech/synthesize/readaloud/naturaltts/v1"

// Synthesize converts text to MP3 audio via Edge TTS.
func (p *EdgeProvider) Synthesize(ctx context.Context, text, voice string) ([]byte, string, error) {
	if voice == "" {
		voice = "en-US-JennyNeural"
	}
	if len(text) > maxTTSInput {
		text = text[:maxTTSInput-3] + "..."
	}

	ssml := fmt.Sprintf(`<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='en-US'><voice name='%s'><prosody pitch='+0Hz' rate='+0%%' volume='+0%%'>%s</prosody></voice></speak>`,
		voice, escapeXML(text))

	url := edgeTTSEndpoint + "?TrustedClientToken=6A5AA1D4EAFF4E9FB37E23D68491D6F4&ConnectionId=gen&Enc=mp3&OutputFormat=audio-24khz-48kbitrate-mono-mp3"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(ssml))
	if err != nil {
		return nil, "", fmt.Errorf("edge-tts: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36 Edg/130.0.0.0")
	req.Header.Set("Origin", "chrome-extension://jdiccldimpdaibmpdkjnbmckianbfold")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("edge-tts: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, "", fmt.Errorf("edge-tts: HTTP %d: %s", resp.StatusCode, string(errBody))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("edge-tts: reading audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, "", fmt.Errorf("edge-tts: empty audio response")
	}
	return stripEdgeHeaders(audio), "audio/mpeg", nil
}

// stripEdgeHeaders removes binary framing that sometimes precedes the
// MP3 data in Edge responses.
func stripEdgeHeaders(data []byte) []byte {
	for i := 0; i < len(data)-1; i++ {
		if data[i] == 0xFF && (data[i+1]&0xE0) == 0xE0 {
			return data[i:]
		}
	}
	if len(data) > 2 {
		headerLen := int(binary.BigEndian.Uint16(data[:2]))
		if headerLen > 0 && headerLen < len(data) {
			return data[headerLen:]
		}
	}
	return data
}

func escapeXML(text string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&apos;",
	)
	return r.Replace(text)
}

// NewProvider builds a TTS provider by name: "openai", "edge", or
// "auto". Auto prefers OpenAI when an API key is present, with Edge as
// the free fallback.
func NewProvider(kind, apiKey, model string, logger *slog.Logger) (Provider, error) {
	switch kind {
	case "openai":
		if apiKey == "" {
			return nil, fmt.Errorf("openai tts requires an API key")
		}
		return NewOpenAIProvider(apiKey, "", model), nil
	case "edge":
		return NewEdgeProvider(logger), nil
	case "", "auto":
		if apiKey == "" {
			return NewEdgeProvider(logger), nil
		}
		return NewFallbackProvider(
			NewOpenAIProvider(apiKey, "", model),
			NewEdgeProvider(logger),
			"", "", logger), nil
	default:
		return nil, fmt.Errorf("unknown tts provider %q", kind)
	}
}

// FallbackProvider tries the primary provider and falls back to the
// secondary when it fails. Auto mode prefers OpenAI with Edge as the
// free fallback.
type FallbackProvider struct {
	primary        Provider
	secondary      Provider
	primaryVoice   string
	secondaryVoice string
	logger         *slog.Logger
}

// NewFallbackProvider creates a provider that tries primary first.
func NewFallbackProvider(primary, secondary Provider, primaryVoice, secondaryVoice string, logger *slog.Logger) *FallbackProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackProvider{
		primary:        primary,
		secondary:      secondary,
		primaryVoice:   primaryVoice,
		secondaryVoice: secondaryVoice,
		logger:         logger.With("component", "tts-fallback"),
	}
}

// Synthesize tries the primary provider, then the secondary.
func (p *FallbackProvider) Synthesize(ctx context.Context, text, voice string) ([]byte, string, error) {
	primaryVoice := voice
	if primaryVoice == "" {
		primaryVoice = p.primaryVoice
	}
	audio, mime, err := p.primary.Synthesize(ctx, text, primaryVoice)
	if err == nil {
		return audio, mime, nil
	}
	p.logger.Warn("primary TTS failed, using fallback", "error", err)

	secondaryVoice := voice
	if secondaryVoice == "" {
		secondaryVoice = p.secondaryVoice
	}
	return p.secondary.Synthesize(ctx, text, secondaryVoice)
}

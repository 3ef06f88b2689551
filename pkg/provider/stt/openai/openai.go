// Package openai provides an stt.Provider backed by the official OpenAI Go
// SDK.
//
// It targets the same transcriptions API as the whisper provider but goes
// through the SDK's typed client, which brings its retry and error handling
// along. The daemon typically runs it as the fallback behind the plain HTTP
// provider, or as the primary for SDK-only models such as
// gpt-4o-mini-transcribe.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/voiceinput/voiceinput/pkg/audio"
	"github.com/voiceinput/voiceinput/pkg/provider/stt"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = oai.AudioModelWhisper1

const providerName = "openai"

// Ensure Provider implements the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  oai.AudioModel
	lang   string
	hasKey bool
}

// config holds optional configuration for the provider.
type config struct {
	baseURL  string
	language string
	timeout  time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithLanguage sets the ISO-639-1 language hint sent with every request.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithTimeout sets a per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI transcription Provider. If model is empty,
// DefaultModel (whisper-1) is used. An empty apiKey is allowed; Transcribe
// then fails with stt.ErrMissingCredential before any request is made.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	cfg := &config{timeout: 30 * time.Second}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	m := DefaultModel
	if model != "" {
		m = oai.AudioModel(model)
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: m, lang: cfg.language, hasKey: apiKey != ""}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, a stt.Audio) (stt.Result, error) {
	if !p.hasKey {
		return stt.Result{}, fmt.Errorf("openai stt: OPENAI_API_KEY is not set: %w", stt.ErrMissingCredential)
	}
	if len(a.PCM) == 0 {
		return stt.Result{}, errors.New("openai stt: empty recording")
	}

	start := time.Now()

	wav := audio.EncodeWAV(a.PCM, a.SampleRate)
	params := oai.AudioTranscriptionNewParams{
		Model: p.model,
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
	}
	if p.lang != "" {
		params.Language = param.NewOpt(p.lang)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Result{}, fmt.Errorf("openai stt: transcribe: %w", err)
	}

	return stt.Result{
		Text:     strings.TrimSpace(resp.Text),
		Provider: providerName,
		Took:     time.Since(start),
	}, nil
}

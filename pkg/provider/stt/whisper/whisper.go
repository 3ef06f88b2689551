// Package whisper provides an stt.Provider backed by an OpenAI-compatible
// transcriptions endpoint.
//
// The provider speaks the plain HTTP contract of POST /v1/audio/transcriptions:
// a multipart body carrying the recording as a WAV file plus the model name,
// authenticated with a bearer token. It works against api.openai.com as well
// as self-hosted servers that mimic the same API (whisper-server,
// faster-whisper, LocalAI), which is why the daemon uses it as the default
// backend.
//
// Usage:
//
//	p, err := whisper.New(os.Getenv("OPENAI_API_KEY"),
//	    whisper.WithModel("whisper-1"),
//	    whisper.WithLanguage("en"),
//	)
//	res, err := p.Transcribe(ctx, recording)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voiceinput/voiceinput/pkg/audio"
	"github.com/voiceinput/voiceinput/pkg/provider/stt"
)

const (
	// DefaultBaseURL is the hosted OpenAI transcriptions endpoint.
	DefaultBaseURL = "https://api.openai.com/v1/audio/transcriptions"

	// DefaultModel is sent in the multipart "model" field unless overridden.
	DefaultModel = "whisper-1"

	// DefaultTimeout bounds one transcription round trip.
	DefaultTimeout = 30 * time.Second

	providerName = "whisper"

	// maxErrorBody caps how much of an error response ends up in the
	// returned error, and therefore in logs and notifications.
	maxErrorBody = 200
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBaseURL points the provider at a different transcriptions endpoint,
// e.g. a local whisper-server. Defaults to the hosted OpenAI API.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = u
	}
}

// WithModel sets the model identifier sent to the server. Defaults to
// "whisper-1"; self-hosted servers typically ignore it or accept names like
// "base.en".
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the ISO-639-1 language hint (e.g. "en", "de"). Empty by
// default, which lets the model auto-detect.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout overrides the per-request timeout. Ignored if WithHTTPClient
// is also given.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// WithHTTPClient replaces the HTTP client entirely, including its timeout.
// Intended for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client = c
	}
}

// Provider implements stt.Provider against an OpenAI-compatible endpoint.
type Provider struct {
	baseURL  string
	model    string
	language string
	apiKey   string
	timeout  time.Duration
	client   *http.Client
}

// New constructs a Provider. An empty apiKey is allowed at construction so
// the daemon can start without credentials; Transcribe then fails with
// stt.ErrMissingCredential before touching the network.
func New(apiKey string, opts ...Option) (*Provider, error) {
	p := &Provider{
		baseURL: DefaultBaseURL,
		model:   DefaultModel,
		apiKey:  apiKey,
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(p)
	}

	if _, err := url.ParseRequestURI(p.baseURL); err != nil {
		return nil, fmt.Errorf("whisper: invalid base URL %q: %w", p.baseURL, err)
	}
	if p.model == "" {
		return nil, errors.New("whisper: model must not be empty")
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: p.timeout}
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, a stt.Audio) (stt.Result, error) {
	if p.apiKey == "" {
		return stt.Result{}, fmt.Errorf("whisper: OPENAI_API_KEY is not set: %w", stt.ErrMissingCredential)
	}
	if len(a.PCM) == 0 {
		return stt.Result{}, errors.New("whisper: empty recording")
	}

	start := time.Now()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(audio.EncodeWAV(a.PCM, a.SampleRate)); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: write wav data: %w", err)
	}
	if err := mw.WriteField("model", p.model); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: write model field: %w", err)
	}
	if p.language != "" {
		if err := mw.WriteField("language", p.language); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, &body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return stt.Result{}, fmt.Errorf("whisper: server returned HTTP %d: %s",
			resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return stt.Result{
		Text:     strings.TrimSpace(result.Text),
		Provider: providerName,
		Took:     time.Since(start),
	}, nil
}

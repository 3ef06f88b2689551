// Package deepgram provides an stt.Provider backed by the Deepgram streaming
// WebSocket API.
//
// Deepgram's real-time endpoint accepts raw linear16 PCM, which lets the
// provider skip the WAV container entirely: a finished recording is streamed
// through in one burst, flushed with a CloseStream control message, and the
// final results are collected before the server closes the socket.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/voiceinput/voiceinput/pkg/audio"
	"github.com/voiceinput/voiceinput/pkg/provider/stt"
)

const (
	// DefaultBaseURL is the hosted Deepgram real-time endpoint.
	DefaultBaseURL = "wss://api.deepgram.com/v1/listen"

	// DefaultModel is the recognition model requested unless overridden.
	DefaultModel = "nova-3"

	// DefaultTimeout bounds one transcription round trip, dial included.
	DefaultTimeout = 30 * time.Second

	providerName = "deepgram"

	// chunkBytes is how much PCM goes into one binary frame: half a second
	// of 16 kHz mono audio.
	chunkBytes = 16000
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBaseURL points the provider at a different endpoint, e.g. a self-hosted
// Deepgram instance. Plain http/https URLs are accepted and upgraded.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = u
	}
}

// WithModel sets the Deepgram model (e.g. "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code (e.g. "en", "de-DE"). Empty by
// default, which lets the service pick.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout overrides the per-transcription timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// Provider implements stt.Provider against the Deepgram streaming API.
type Provider struct {
	baseURL  string
	model    string
	language string
	apiKey   string
	timeout  time.Duration
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

	if _, err := url.Parse(p.baseURL); err != nil {
		return nil, fmt.Errorf("deepgram: invalid base URL %q: %w", p.baseURL, err)
	}
	if p.model == "" {
		return nil, errors.New("deepgram: model must not be empty")
	}
	return p, nil
}

// Transcribe implements stt.Provider. The whole recording is written to the
// socket, the stream is closed, and the finals are joined into one transcript.
func (p *Provider) Transcribe(ctx context.Context, a stt.Audio) (stt.Result, error) {
	if p.apiKey == "" {
		return stt.Result{}, fmt.Errorf("deepgram: DEEPGRAM_API_KEY is not set: %w", stt.ErrMissingCredential)
	}
	if len(a.PCM) == 0 {
		return stt.Result{}, errors.New("deepgram: empty recording")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	wsURL, err := p.buildURL(a.SampleRate)
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	start := time.Now()
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Read concurrently so the socket stays drained while audio is written.
	// The channels are buffered; the collector never blocks on a caller that
	// bailed out early.
	textCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		text, err := collectFinals(ctx, conn)
		textCh <- text
		errCh <- err
	}()

	pcm := audio.PCMBytes(a.PCM)
	for off := 0; off < len(pcm); off += chunkBytes {
		end := min(off+chunkBytes, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return stt.Result{}, fmt.Errorf("deepgram: send audio: %w", err)
		}
	}
	// CloseStream makes the server flush pending audio, send the last
	// results and close the socket.
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: close stream: %w", err)
	}

	text := <-textCh
	if err := <-errCh; err != nil {
		return stt.Result{}, err
	}

	return stt.Result{
		Text:     strings.TrimSpace(text),
		Provider: providerName,
		Took:     time.Since(start),
	}, nil
}

// buildURL constructs the streaming endpoint URL for one recording.
func (p *Provider) buildURL(sampleRate int) (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	if p.language != "" {
		q.Set("language", p.language)
	}
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// collectFinals reads messages until the server closes the stream and joins
// the final transcripts in arrival order.
func collectFinals(ctx context.Context, conn *websocket.Conn) (string, error) {
	var parts []string
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status == websocket.StatusNormalClosure || errors.Is(err, io.EOF):
				return strings.Join(parts, " "), nil
			case status != -1:
				return "", fmt.Errorf("deepgram: stream closed with status %v", status)
			case ctx.Err() != nil:
				return "", fmt.Errorf("deepgram: %w", ctx.Err())
			default:
				return "", fmt.Errorf("deepgram: read: %w", err)
			}
		}
		if text, ok := parseResponse(msg); ok && text != "" {
			parts = append(parts, text)
		}
	}
}

// response mirrors the fields of a Deepgram Results message the provider
// cares about.
type response struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseResponse extracts the transcript from a raw server message. The
// boolean is false for messages that carry no final text, such as Metadata
// events.
func parseResponse(data []byte) (string, bool) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", false
	}
	if resp.Type != "Results" || !resp.IsFinal {
		return "", false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return "", false
	}
	return resp.Channel.Alternatives[0].Transcript, true
}

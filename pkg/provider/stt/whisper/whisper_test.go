package whisper_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voiceinput/voiceinput/pkg/provider/stt"
	"github.com/voiceinput/voiceinput/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// testAudio returns half a second of non-silent PCM at the daemon rate.
func testAudio() stt.Audio {
	pcm := make([]int16, 8000)
	for i := range pcm {
		pcm[i] = int16((i % 64) * 100)
	}
	return stt.Audio{PCM: pcm, SampleRate: 16000}
}

// newMockServer responds to every POST with a JSON body containing
// responseText and increments *callCount per request.
func newMockServer(t *testing.T, responseText string, callCount *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if callCount != nil {
			callCount.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
}

// mustNew builds a provider pointed at the given server URL.
func mustNew(t *testing.T, apiKey, baseURL string, opts ...whisper.Option) *whisper.Provider {
	t.Helper()
	opts = append([]whisper.Option{whisper.WithBaseURL(baseURL)}, opts...)
	p, err := whisper.New(apiKey, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// ---- provider construction --------------------------------------------------

func TestNew_InvalidBaseURL_ReturnsError(t *testing.T) {
	_, err := whisper.New("key", whisper.WithBaseURL("://nope"))
	if err == nil {
		t.Fatal("expected error for invalid base URL, got nil")
	}
}

func TestNew_EmptyModel_ReturnsError(t *testing.T) {
	_, err := whisper.New("key", whisper.WithModel(""))
	if err == nil {
		t.Fatal("expected error for empty model, got nil")
	}
}

// ---- transcription ----------------------------------------------------------

func TestTranscribe_Success_ReturnsTrimmedText(t *testing.T) {
	srv := newMockServer(t, "  hello world \n", nil)
	defer srv.Close()

	p := mustNew(t, "test-key", srv.URL)
	res, err := p.Transcribe(context.Background(), testAudio())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hello world" {
		t.Errorf("Text = %q, want %q", res.Text, "hello world")
	}
	if res.Provider != "whisper" {
		t.Errorf("Provider = %q, want %q", res.Provider, "whisper")
	}
	if res.Took <= 0 {
		t.Error("Took not recorded")
	}
}

func TestTranscribe_SendsMultipartWavAndModel(t *testing.T) {
	var gotAuth string
	var gotModel string
	var gotLanguage string
	var wavHeader []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			t.Errorf("parse content type: %v", err)
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("read part: %v", err)
			}
			switch part.FormName() {
			case "file":
				if part.FileName() != "audio.wav" {
					t.Errorf("file name = %q, want %q", part.FileName(), "audio.wav")
				}
				wavHeader = make([]byte, 4)
				_, _ = io.ReadFull(part, wavHeader)
			case "model":
				b, _ := io.ReadAll(part)
				gotModel = string(b)
			case "language":
				b, _ := io.ReadAll(part)
				gotLanguage = string(b)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "ok"})
	}))
	defer srv.Close()

	p := mustNew(t, "sk-secret", srv.URL, whisper.WithLanguage("en"))
	if _, err := p.Transcribe(context.Background(), testAudio()); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if gotAuth != "Bearer sk-secret" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotModel != "whisper-1" {
		t.Errorf("model field = %q, want %q", gotModel, "whisper-1")
	}
	if gotLanguage != "en" {
		t.Errorf("language field = %q, want %q", gotLanguage, "en")
	}
	if string(wavHeader) != "RIFF" {
		t.Errorf("file part does not start with RIFF header: %q", wavHeader)
	}
}

func TestTranscribe_MissingAPIKey_FailsBeforeNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, "never", &calls)
	defer srv.Close()

	p := mustNew(t, "", srv.URL)
	_, err := p.Transcribe(context.Background(), testAudio())
	if !errors.Is(err, stt.ErrMissingCredential) {
		t.Fatalf("error = %v, want stt.ErrMissingCredential", err)
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("server was hit %d times, want 0", n)
	}
}

func TestTranscribe_ServerError_TruncatesBody(t *testing.T) {
	longBody := strings.Repeat("x", 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, longBody, http.StatusBadGateway)
	}))
	defer srv.Close()

	p := mustNew(t, "key", srv.URL)
	_, err := p.Transcribe(context.Background(), testAudio())
	if err == nil {
		t.Fatal("expected error for HTTP 502, got nil")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error %q does not mention the status code", err)
	}
	if len(err.Error()) > 300 {
		t.Errorf("error length = %d, response body was not truncated", len(err.Error()))
	}
}

func TestTranscribe_EmptyAudio_ReturnsError(t *testing.T) {
	p := mustNew(t, "key", "http://localhost:1")
	if _, err := p.Transcribe(context.Background(), stt.Audio{SampleRate: 16000}); err == nil {
		t.Fatal("expected error for empty recording, got nil")
	}
}

func TestTranscribe_ContextCancelled_ReturnsError(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	p := mustNew(t, "key", srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := p.Transcribe(ctx, testAudio()); err == nil {
		t.Fatal("expected error after context timeout, got nil")
	}
}

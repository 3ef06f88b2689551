package deepgram_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/coder/websocket"

	"github.com/voiceinput/voiceinput/pkg/provider/stt"
	"github.com/voiceinput/voiceinput/pkg/provider/stt/deepgram"
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

// newMockServer accepts one WebSocket session, swallows binary audio frames
// until the CloseStream text message arrives, then writes the given messages
// and closes with status.
func newMockServer(t *testing.T, received *atomic.Int64, messages []string, status websocket.StatusCode) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.Close(websocket.StatusInternalError, "handler exit")

		for {
			typ, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			if typ == websocket.MessageText {
				break // CloseStream
			}
			if received != nil {
				received.Add(int64(len(data)))
			}
		}
		for _, m := range messages {
			if err := conn.Write(r.Context(), websocket.MessageText, []byte(m)); err != nil {
				return
			}
		}
		conn.Close(status, "")
	}))
}

func mustNew(t *testing.T, apiKey, baseURL string, opts ...deepgram.Option) *deepgram.Provider {
	t.Helper()
	opts = append([]deepgram.Option{deepgram.WithBaseURL(baseURL)}, opts...)
	p, err := deepgram.New(apiKey, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func resultMsg(transcript string, isFinal bool) string {
	final := "false"
	if isFinal {
		final = "true"
	}
	return `{"type":"Results","is_final":` + final +
		`,"channel":{"alternatives":[{"transcript":"` + transcript + `"}]}}`
}

// ---- provider construction --------------------------------------------------

func TestNew_EmptyModel_ReturnsError(t *testing.T) {
	_, err := deepgram.New("key", deepgram.WithModel(""))
	if err == nil {
		t.Fatal("expected error for empty model, got nil")
	}
}

// ---- transcription ----------------------------------------------------------

func TestTranscribe_JoinsFinals_IgnoresInterimAndMetadata(t *testing.T) {
	srv := newMockServer(t, nil, []string{
		resultMsg("this is interim", false),
		resultMsg("hello from", true),
		resultMsg("deepgram", true),
		`{"type":"Metadata","request_id":"abc"}`,
	}, websocket.StatusNormalClosure)
	defer srv.Close()

	p := mustNew(t, "dg-key", srv.URL)
	res, err := p.Transcribe(context.Background(), testAudio())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hello from deepgram" {
		t.Errorf("Text = %q, want %q", res.Text, "hello from deepgram")
	}
	if res.Provider != "deepgram" {
		t.Errorf("Provider = %q, want %q", res.Provider, "deepgram")
	}
	if res.Took <= 0 {
		t.Error("Took not recorded")
	}
}

func TestTranscribe_SendsAuthQueryAndRawPCM(t *testing.T) {
	var gotAuth string
	var gotQuery url.Values
	var received atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query()

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		for {
			typ, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			if typ == websocket.MessageText {
				break
			}
			received.Add(int64(len(data)))
		}
		_ = conn.Write(r.Context(), websocket.MessageText, []byte(resultMsg("ok", true)))
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	p := mustNew(t, "dg-secret", srv.URL, deepgram.WithLanguage("de"))
	if _, err := p.Transcribe(context.Background(), testAudio()); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if gotAuth != "Token dg-secret" {
		t.Errorf("Authorization = %q, want token auth", gotAuth)
	}
	for key, want := range map[string]string{
		"model":           "nova-3",
		"language":        "de",
		"encoding":        "linear16",
		"sample_rate":     "16000",
		"channels":        "1",
		"interim_results": "false",
	} {
		if got := gotQuery.Get(key); got != want {
			t.Errorf("query %s = %q, want %q", key, got, want)
		}
	}
	// 8000 samples of 16-bit audio.
	if n := received.Load(); n != 16000 {
		t.Errorf("received %d PCM bytes, want 16000", n)
	}
}

func TestTranscribe_MissingAPIKey_FailsBeforeNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	p := mustNew(t, "", srv.URL)
	_, err := p.Transcribe(context.Background(), testAudio())
	if !errors.Is(err, stt.ErrMissingCredential) {
		t.Fatalf("error = %v, want stt.ErrMissingCredential", err)
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("server was hit %d times, want 0", n)
	}
}

func TestTranscribe_ErrorClosure_ReturnsError(t *testing.T) {
	srv := newMockServer(t, nil, nil, websocket.StatusInternalError)
	defer srv.Close()

	p := mustNew(t, "dg-key", srv.URL)
	_, err := p.Transcribe(context.Background(), testAudio())
	if err == nil {
		t.Fatal("expected error for server-side closure, got nil")
	}
	if !strings.Contains(err.Error(), "closed with status") {
		t.Errorf("error %q does not mention the close status", err)
	}
}

func TestTranscribe_EmptyAudio_ReturnsError(t *testing.T) {
	p := mustNew(t, "key", "http://localhost:1")
	if _, err := p.Transcribe(context.Background(), stt.Audio{SampleRate: 16000}); err == nil {
		t.Fatal("expected error for empty recording, got nil")
	}
}

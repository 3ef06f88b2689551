package audio_test

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voiceinput/voiceinput/pkg/audio"
)

func TestWriteWAV_RoundTrip(t *testing.T) {
	// One second of a quiet ramp at the daemon's capture rate.
	pcm := make([]int16, 16000)
	for i := range pcm {
		pcm[i] = int16(i % 2048)
	}

	path := filepath.Join(t.TempDir(), "take.wav")
	if err := audio.WriteWAV(path, pcm, 16000); err != nil {
		t.Fatalf("WriteWAV() error = %v", err)
	}

	got, rate, err := audio.ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV() error = %v", err)
	}
	if rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
	if diff := len(got) - len(pcm); diff < -10 || diff > 10 {
		t.Errorf("frame count = %d, want %d (±10)", len(got), len(pcm))
	}
	for i := range pcm {
		if i < len(got) && got[i] != pcm[i] {
			t.Fatalf("sample %d: got %d, want %d", i, got[i], pcm[i])
		}
	}
}

func TestEncodeWAV_Header(t *testing.T) {
	pcm := []int16{1, -1, 2, -2}
	b := audio.EncodeWAV(pcm, 16000)

	if len(b) != 44+len(pcm)*2 {
		t.Fatalf("encoded size = %d, want %d", len(b), 44+len(pcm)*2)
	}
	if !bytes.Equal(b[0:4], []byte("RIFF")) || !bytes.Equal(b[8:12], []byte("WAVE")) {
		t.Fatal("missing RIFF/WAVE markers")
	}
	if ch := binary.LittleEndian.Uint16(b[22:24]); ch != 1 {
		t.Errorf("channels = %d, want 1", ch)
	}
	if rate := binary.LittleEndian.Uint32(b[24:28]); rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
	if bits := binary.LittleEndian.Uint16(b[34:36]); bits != 16 {
		t.Errorf("bits per sample = %d, want 16", bits)
	}
	if dataLen := binary.LittleEndian.Uint32(b[40:44]); dataLen != uint32(len(pcm)*2) {
		t.Errorf("data length = %d, want %d", dataLen, len(pcm)*2)
	}
}

func TestEncodeWAV_MatchesFileEncoder(t *testing.T) {
	// The in-memory and file encoders must agree on what the PCM decodes
	// back to, whatever their container details.
	pcm := audio.Sine(440, 50*time.Millisecond, 0.5, 16000)

	dir := t.TempDir()
	memPath := filepath.Join(dir, "mem.wav")
	if err := os.WriteFile(memPath, audio.EncodeWAV(pcm, 16000), 0o644); err != nil {
		t.Fatal(err)
	}
	filePath := filepath.Join(dir, "file.wav")
	if err := audio.WriteWAV(filePath, pcm, 16000); err != nil {
		t.Fatal(err)
	}

	fromMem, _, err := audio.ReadWAV(memPath)
	if err != nil {
		t.Fatalf("decoding in-memory encoding: %v", err)
	}
	fromFile, _, err := audio.ReadWAV(filePath)
	if err != nil {
		t.Fatalf("decoding file encoding: %v", err)
	}
	if len(fromMem) != len(fromFile) {
		t.Fatalf("sample counts differ: %d vs %d", len(fromMem), len(fromFile))
	}
	for i := range fromMem {
		if fromMem[i] != fromFile[i] {
			t.Fatalf("sample %d differs: %d vs %d", i, fromMem[i], fromFile[i])
		}
	}
}

func TestSine_Amplitude(t *testing.T) {
	pcm := audio.Sine(880, 120*time.Millisecond, 0.25, 16000)
	if len(pcm) != 1920 {
		t.Fatalf("sample count = %d, want 1920", len(pcm))
	}

	var peak int16
	for _, s := range pcm {
		if s > peak {
			peak = s
		}
	}
	want := int16(0.25 * math.MaxInt16)
	if peak < want-400 || peak > want {
		t.Errorf("peak = %d, want close to %d", peak, want)
	}
}

func TestSine_VolumeClamped(t *testing.T) {
	pcm := audio.Sine(440, 10*time.Millisecond, 4.0, 16000)
	for i, s := range pcm {
		if s == math.MinInt16 {
			t.Fatalf("sample %d overflowed", i)
		}
	}
}

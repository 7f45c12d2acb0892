package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// encodeWAV writes a mono 16-bit WAV with the given samples and returns
// its bytes.
func encodeWAV(t *testing.T, sampleRate int, samples []int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "seg.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating wav file: %v", err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("writing wav data: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing file: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading wav back: %v", err)
	}
	return data
}

func TestDecodeWAV(t *testing.T) {
	samples := make([]int, 4410) // 100ms at 44100Hz
	for i := range samples {
		samples[i] = (i % 64) * 100
	}
	data := encodeWAV(t, 44100, samples)

	pcm, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if pcm.SampleRate != 44100 {
		t.Errorf("sample rate = %d, want 44100", pcm.SampleRate)
	}
	if pcm.Channels != 1 {
		t.Errorf("channels = %d, want 1", pcm.Channels)
	}
	if got := len(pcm.Data); got != len(samples)*2 {
		t.Errorf("data length = %d, want %d", got, len(samples)*2)
	}

	dur := pcm.Duration()
	want := 100 * time.Millisecond
	if dur < want-time.Millisecond || dur > want+time.Millisecond {
		t.Errorf("duration = %v, want ~%v", dur, want)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, err := DecodeWAV([]byte("definitely not a wav")); err == nil {
		t.Fatal("expected error for non-wav payload")
	}
}

func TestResample(t *testing.T) {
	src := &PCM{Data: make([]byte, 44100*2), SampleRate: 44100, Channels: 1}

	out := Resample(src, 22050)
	if out.SampleRate != 22050 {
		t.Errorf("sample rate = %d, want 22050", out.SampleRate)
	}
	if got, want := len(out.Data), 22050*2; got != want {
		t.Errorf("data length = %d, want %d", got, want)
	}

	// Duration is preserved across the rate change.
	if src.Duration() != out.Duration() {
		t.Errorf("duration changed: %v -> %v", src.Duration(), out.Duration())
	}

	if same := Resample(src, 44100); same != src {
		t.Error("matching rate should return the input unchanged")
	}
}

func TestTimeScale(t *testing.T) {
	src := &PCM{Data: make([]byte, 44100*2), SampleRate: 44100, Channels: 1}

	fast := TimeScale(src, 2.0)
	if got, want := fast.Duration(), src.Duration()/2; got != want {
		t.Errorf("2x duration = %v, want %v", got, want)
	}

	slow := TimeScale(src, 0.5)
	if got, want := slow.Duration(), src.Duration()*2; got != want {
		t.Errorf("0.5x duration = %v, want %v", got, want)
	}

	if same := TimeScale(src, 1.0); same != src {
		t.Error("unit speed should return the input unchanged")
	}
}

package synth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestSynthesize(t *testing.T) {
	var gotVoice, gotRequestID string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/synthesize" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotRequestID = r.Header.Get("X-Request-ID")

		var body struct {
			Text  string `json:"text"`
			Voice string `json:"voice"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		gotVoice = body.Voice

		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte("RIFFfake"))
	})

	res, err := c.Synthesize(context.Background(), "hello world", "")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(res.Audio) != "RIFFfake" {
		t.Errorf("audio = %q", res.Audio)
	}
	if res.MimeType != "audio/wav" {
		t.Errorf("mime = %q, want audio/wav", res.MimeType)
	}
	if gotVoice != DefaultVoice {
		t.Errorf("voice = %q, want default %q", gotVoice, DefaultVoice)
	}
	if gotRequestID == "" {
		t.Error("request id header missing")
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	c := NewClient("http://localhost:0")
	if _, err := c.Synthesize(context.Background(), "   ", "alba"); err == nil {
		t.Fatal("expected error for blank text")
	}
}

func TestSynthesizeServerError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "model not loaded"})
	})

	_, err := c.Synthesize(context.Background(), "hello", "alba")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusServiceUnavailable || apiErr.Message != "model not loaded" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestVoices(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/voices" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"voices":  []string{"alba", "marius", "javert"},
			"default": "alba",
		})
	})

	list, err := c.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices failed: %v", err)
	}
	if len(list.Voices) != 3 || list.Default != "alba" {
		t.Errorf("list = %+v", list)
	}
}

func TestHealth(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "ok", "model_loaded": true})
	})
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health failed: %v", err)
	}

	bad := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "loading"})
	})
	if err := bad.Health(context.Background()); err == nil {
		t.Fatal("expected error for unhealthy status")
	}
}

func TestPreloadSendsVoices(t *testing.T) {
	var gotVoices []string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/preload" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Voices []string `json:"voices"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		gotVoices = body.Voices
		json.NewEncoder(w).Encode(map[string]any{"status": "ok", "loaded_voices": body.Voices})
	})

	if err := c.Preload(context.Background(), "marius"); err != nil {
		t.Fatalf("Preload failed: %v", err)
	}
	if len(gotVoices) != 1 || gotVoices[0] != "marius" {
		t.Errorf("voices = %v, want [marius]", gotVoices)
	}
}

func TestPreloadWithoutVoices(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 {
			t.Errorf("unexpected request body, length %d", r.ContentLength)
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	})

	if err := c.Preload(context.Background()); err != nil {
		t.Fatalf("Preload failed: %v", err)
	}
}

func TestParagraphs(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/paragraphs" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"paragraphs": []string{"First paragraph.", "Second paragraph."},
		})
	})

	got, err := c.Paragraphs(context.Background(), "First paragraph.\n\nSecond paragraph.")
	if err != nil {
		t.Fatalf("Paragraphs failed: %v", err)
	}
	if len(got) != 2 || got[0] != "First paragraph." {
		t.Errorf("paragraphs = %v", got)
	}
}

func TestMockScripting(t *testing.T) {
	m := NewMock()
	m.FailTimes("flaky", 1)

	if _, err := m.Synthesize(context.Background(), "flaky", "alba"); err == nil {
		t.Fatal("expected scripted failure")
	}
	res, err := m.Synthesize(context.Background(), "flaky", "alba")
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if string(res.Audio) != "flaky" {
		t.Errorf("audio = %q", res.Audio)
	}
	if m.Calls("flaky") != 2 {
		t.Errorf("calls = %d, want 2", m.Calls("flaky"))
	}
}

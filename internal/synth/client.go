package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/pocketreader/readaloud/internal/speech"
)

// DefaultVoice is the voice used when none is requested.
const DefaultVoice = "alba"

// DefaultTimeout bounds a single synthesis call. Model cold starts are
// slow, so this is generous.
const DefaultTimeout = 60 * time.Second

// maxAudioBytes caps a synthesize response body.
const maxAudioBytes = 64 << 20

// APIError is a non-2xx response from the synthesis server.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("synthesis server returned %d", e.Status)
	}
	return fmt.Sprintf("synthesis server returned %d: %s", e.Status, e.Message)
}

// VoiceList is the server's voice inventory.
type VoiceList struct {
	Voices  []string `json:"voices"`
	Default string   `json:"default"`
}

// Client is an HTTP client for the synthesis server. It implements
// speech.Synthesizer and is safe for concurrent use.
type Client struct {
	base string
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Synthesize requests WAV audio for the given text. An empty voice falls
// back to the server default.
func (c *Client) Synthesize(ctx context.Context, text, voice string) (*speech.SynthesisResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty text")
	}
	if voice == "" {
		voice = DefaultVoice
	}

	body, err := json.Marshal(map[string]string{"text": text, "voice": voice})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	reqID := uuid.NewString()
	start := time.Now()
	log.Debug("synthesize request", "request_id", reqID, "voice", voice, "chars", len(text))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesize call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("reading audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("server returned empty audio")
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "audio/wav"
	}
	log.Debug("synthesize done", "request_id", reqID, "bytes", len(audio), "elapsed", time.Since(start))

	return &speech.SynthesisResult{Audio: audio, MimeType: mime}, nil
}

// Voices fetches the voice inventory.
func (c *Client) Voices(ctx context.Context) (*VoiceList, error) {
	var out VoiceList
	if err := c.getJSON(ctx, "/voices", &out); err != nil {
		return nil, err
	}
	if out.Default == "" {
		out.Default = DefaultVoice
	}
	return &out, nil
}

// Health checks that the server is up and its model loaded.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status      string `json:"status"`
		ModelLoaded bool   `json:"model_loaded"`
	}
	if err := c.getJSON(ctx, "/health", &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("server unhealthy: status %q", out.Status)
	}
	return nil
}

// Preload asks the server to warm the synthesis model, plus the given
// voices, so the first segment does not pay the cold start. With no
// voices the server warms its default.
func (c *Client) Preload(ctx context.Context, voices ...string) error {
	var payload io.Reader
	if len(voices) > 0 {
		body, err := json.Marshal(map[string][]string{"voices": voices})
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		payload = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/preload", payload)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("preload call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.apiError(resp)
	}
	return nil
}

// Paragraphs asks the server to split raw text into speakable paragraphs.
func (c *Client) Paragraphs(ctx context.Context, text string) ([]string, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/paragraphs", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paragraphs call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp)
	}

	var out struct {
		Paragraphs []string `json:"paragraphs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding paragraphs: %w", err)
	}
	return out.Paragraphs, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s call: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// apiError extracts the server's error message from an error response.
func (c *Client) apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}
	return &APIError{Status: resp.StatusCode, Message: body.Error}
}

var _ speech.Synthesizer = (*Client)(nil)

package ui

// Config contains TUI-specific configuration.
type Config struct {
	HomeDir string `env:"HOME"`

	// ServerURL is the synthesis server endpoint.
	ServerURL string `env:"READALOUD_SERVER" envDefault:"http://localhost:5050"`

	// Voice overrides the server's default voice.
	Voice string `env:"READALOUD_VOICE"`

	// Speed is the initial playback rate.
	Speed float64

	// StartIndex is the segment to begin at, usually a restored position.
	StartIndex int

	// Title is shown in the header.
	Title string

	// URL keys the stored resume position.
	URL string

	// MaxWidth caps the rendered text width.
	MaxWidth int
}

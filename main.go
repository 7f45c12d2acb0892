// Package main provides the entry point for the readaloud CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/pocketreader/readaloud/internal/audio"
	"github.com/pocketreader/readaloud/internal/extract"
	"github.com/pocketreader/readaloud/internal/speech"
	"github.com/pocketreader/readaloud/internal/store"
	"github.com/pocketreader/readaloud/internal/synth"
	"github.com/pocketreader/readaloud/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile  string
	serverURL   string
	voice       string
	speed       float64
	fromSegment int
	noResume    bool
	plain       bool
	serverSplit bool

	rootCmd = &cobra.Command{
		Use:   "readaloud [SOURCE]",
		Short: "Read any page or file aloud, right from the terminal",
		Long: paragraph(
			fmt.Sprintf("\nTurn text into %s: paragraphs are synthesized ahead of playback so the reading never stalls.", keyword("continuous speech")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return validateOptions()
		},
		RunE: execute,
	}
)

// source provides readable text and the URL that keys its resume
// position.
type source struct {
	reader io.ReadCloser
	URL    string
}

// sourceFromArg parses an argument and creates a readable source for it.
func sourceFromArg(arg string) (*source, error) {
	// from stdin
	if arg == "" || arg == "-" {
		return &source{reader: os.Stdin, URL: "stdin"}, nil
	}

	// HTTP(S) URLs:
	if u, err := url.ParseRequestURI(arg); err == nil && strings.Contains(arg, "://") {
		if u.Scheme != "" {
			if u.Scheme != "http" && u.Scheme != "https" {
				return nil, fmt.Errorf("%s is not a supported protocol", u.Scheme)
			}
			// consumer of the source is responsible for closing the ReadCloser.
			resp, err := http.Get(u.String()) //nolint: noctx,bodyclose
			if err != nil {
				return nil, fmt.Errorf("unable to get url: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
			}
			return &source{resp.Body, u.String()}, nil
		}
	}

	// a local file:
	r, err := os.Open(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	u, err := filepath.Abs(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path: %w", err)
	}
	return &source{r, "file://" + u}, nil
}

func validateOptions() error {
	serverURL = viper.GetString("server")
	voice = viper.GetString("voice")
	speed = viper.GetFloat64("speed")
	serverSplit = viper.GetBool("serverSplit")

	if speed != 0 && (speed < speech.MinSpeed || speed > speech.MaxSpeed) {
		return fmt.Errorf("speed must be between %.2g and %.2g", speech.MinSpeed, speech.MaxSpeed)
	}
	if serverURL == "" {
		return errors.New("no synthesis server configured")
	}
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to stat stdin: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func execute(_ *cobra.Command, args []string) error {
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}

	if arg == "" {
		if piped, err := stdinIsPipe(); err != nil {
			return err
		} else if !piped {
			return errors.New("missing source: pass a file, a URL, or pipe text in")
		}
		arg = "-"
	}

	src, err := sourceFromArg(arg)
	if err != nil {
		return err
	}
	defer src.reader.Close() //nolint:errcheck

	raw, err := io.ReadAll(src.reader)
	if err != nil {
		return fmt.Errorf("unable to read source: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return errors.New("source is empty")
	}

	client := synth.NewClient(serverURL)
	checkServer(client)

	paragraphs, err := splitText(client, text)
	if err != nil {
		return err
	}
	segments := extract.Segments(paragraphs)

	positions, err := openPositionStore()
	if err != nil {
		log.Warn("position store unavailable, resume disabled", "err", err)
	}
	if positions != nil {
		defer positions.Close() //nolint:errcheck
	}

	startIndex := resolveStartIndex(positions, src.URL, len(segments))

	sink, err := audio.NewOtoSink(audio.DefaultSinkConfig())
	if err != nil {
		return fmt.Errorf("unable to open audio device: %w", err)
	}

	var posStore speech.PositionStore
	if positions != nil {
		posStore = positions
	}
	ctrl := speech.NewController(client, sink, posStore, logHighlight{}, speech.DefaultConfig())
	defer ctrl.Stop()

	if plain || !term.IsTerminal(int(os.Stdout.Fd())) {
		return runHeadless(ctrl, src.URL, segments, startIndex)
	}
	return runTUI(ctrl, src, segments, startIndex)
}

// checkServer verifies the synthesis server and warms its model. Neither
// failure is fatal; the first synthesis call surfaces real errors.
func checkServer(client *synth.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Health(ctx); err != nil {
		log.Warn("synthesis server health check failed", "server", serverURL, "err", err)
		return
	}
	var warm []string
	if voice != "" {
		warm = append(warm, voice)
	}
	if err := client.Preload(ctx, warm...); err != nil {
		log.Debug("model preload failed", "err", err)
	}
}

// splitText segments the text locally, or on the server when requested.
func splitText(client *synth.Client, text string) ([]string, error) {
	if serverSplit {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		paragraphs, err := client.Paragraphs(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("server-side split failed: %w", err)
		}
		return paragraphs, nil
	}
	return extract.Paragraphs(text), nil
}

func openPositionStore() (*store.PositionStore, error) {
	scope := gap.NewScope(gap.User, "readaloud")
	dir, err := scope.DataPath("")
	if err != nil {
		return nil, fmt.Errorf("no data directory: %w", err)
	}
	return store.Open(filepath.Join(dir, "positions.db"))
}

// resolveStartIndex picks where playback begins: an explicit --from wins,
// then the stored position, then the top of the page.
func resolveStartIndex(positions *store.PositionStore, pageURL string, total int) int {
	if fromSegment >= 0 {
		if fromSegment > total {
			return total
		}
		return fromSegment
	}
	if noResume || positions == nil {
		return 0
	}

	idx, storedTotal, ok, err := positions.Load(pageURL)
	if err != nil {
		log.Warn("loading stored position failed", "err", err)
		return 0
	}
	// A stale position for a page whose segmentation changed is worse
	// than starting over.
	if !ok || storedTotal != total || idx >= total {
		return 0
	}
	log.Info("resuming from stored position", "segment", idx, "total", total)
	return idx
}

func runTUI(ctrl *speech.Controller, src *source, segments []speech.Segment, startIndex int) error {
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}

	cfg.URL = src.URL
	cfg.Title = pageTitle(src.URL)
	cfg.Voice = voice
	cfg.Speed = speed
	cfg.StartIndex = startIndex
	cfg.MaxWidth = 100

	if _, err := ui.NewProgram(cfg, ctrl, segments).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

// runHeadless drives the pipeline without a TUI, reporting progress on
// the log and stopping cleanly on interrupt.
func runHeadless(ctrl *speech.Controller, pageURL string, segments []speech.Segment, startIndex int) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	notes := ctrl.Notifications()
	if err := ctrl.Start(pageURL, segments, voice, startIndex, speed); err != nil {
		return err
	}

	for {
		select {
		case <-sig:
			ctrl.Stop()
			return nil
		case n := <-notes:
			switch n.Kind {
			case speech.NotePlaying:
				fmt.Fprintf(os.Stderr, "speaking segment %d of %d\n", n.Current, n.Total)
			case speech.NoteNeedsGesture:
				// No gesture to wait for on the CLI; give the device a
				// moment and retry.
				time.AfterFunc(time.Second, func() { ctrl.ConfirmGesture() })
			case speech.NoteComplete:
				return nil
			case speech.NoteStopped:
				return nil
			case speech.NoteError:
				return errors.New(n.Message)
			}
		}
	}
}

// logHighlight traces the spoken segment on the log. The TUI derives its
// highlight from playback notifications instead.
type logHighlight struct{}

func (logHighlight) Mark(ref string) { log.Debug("speaking", "ref", ref) }
func (logHighlight) Clear()          { log.Debug("highlight cleared") }

func pageTitle(pageURL string) string {
	if pageURL == "stdin" {
		return "stdin"
	}
	if u, err := url.Parse(pageURL); err == nil && u.Path != "" {
		return filepath.Base(u.Path)
	}
	return pageURL
}

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List the voices the synthesis server offers",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client := synth.NewClient(serverURL)
		list, err := client.Voices(ctx)
		if err != nil {
			return err
		}
		for _, v := range list.Voices {
			if v == list.Default {
				fmt.Println(v, "(default)")
				continue
			}
			fmt.Println(v)
		}
		return nil
	},
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVar(&serverURL, "server", "", "synthesis server URL")
	rootCmd.Flags().StringVar(&voice, "voice", "", "voice to speak with")
	rootCmd.Flags().Float64Var(&speed, "speed", 0, "playback speed (0.5 to 2.0)")
	rootCmd.Flags().IntVar(&fromSegment, "from", -1, "start at this segment, ignoring the stored position")
	rootCmd.Flags().BoolVar(&noResume, "no-resume", false, "always start from the top")
	rootCmd.Flags().BoolVarP(&plain, "plain", "p", false, "no TUI, log progress to stderr")
	rootCmd.Flags().BoolVar(&serverSplit, "server-split", false, "let the synthesis server split paragraphs")

	_ = viper.BindPFlag("server", rootCmd.Flags().Lookup("server"))
	_ = viper.BindPFlag("voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("speed", rootCmd.Flags().Lookup("speed"))
	_ = viper.BindPFlag("serverSplit", rootCmd.Flags().Lookup("server-split"))

	viper.SetDefault("server", "http://localhost:5050")
	viper.SetDefault("voice", "")
	viper.SetDefault("speed", 1.0)

	rootCmd.AddCommand(configCmd, manCmd, voicesCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "readaloud")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "readaloud")}, dirs...)
	}

	if c := os.Getenv("READALOUD_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("readaloud")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("readaloud")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "readaloud.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}

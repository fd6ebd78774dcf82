// Package n1xterm parses terminal client flags and runs the client.
package n1xterm

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	entrypoint "github.com/louisbranch/n1x/internal/platform/cmd"
	"github.com/louisbranch/n1x/internal/platform/timeouts"
	"github.com/louisbranch/n1x/internal/services/n1x/decrypt"
	"github.com/louisbranch/n1x/internal/services/n1x/narrative"
	"github.com/louisbranch/n1x/internal/services/n1x/progression/boltstore"
	"github.com/louisbranch/n1x/internal/services/n1x/terminal"
)

// Config holds terminal client configuration.
type Config struct {
	ServerURL      string `env:"N1X_SERVER_URL"     envDefault:"http://localhost:8090"`
	Handle         string `env:"N1X_HANDLE"`
	Room           string `env:"N1X_ROOM"`
	StatePath      string `env:"N1X_STATE_PATH"     envDefault:"n1x-progression.db"`
	OpenAIAPIKey   string `env:"N1X_OPENAI_API_KEY"`
	GeminiAPIKey   string `env:"N1X_GEMINI_API_KEY"`
	NarrativeModel string `env:"N1X_NARRATIVE_MODEL"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.ServerURL, "server-url", cfg.ServerURL, "room server base URL")
	fs.StringVar(&cfg.Handle, "handle", cfg.Handle, "handle shown to other occupants")
	fs.StringVar(&cfg.Room, "room", cfg.Room, "room to join on start (empty stays solo)")
	fs.StringVar(&cfg.StatePath, "state-path", cfg.StatePath, "local progression database path")
	fs.StringVar(&cfg.NarrativeModel, "narrative-model", cfg.NarrativeModel, "narrative model override")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.StatePath) == "" {
		return Config{}, fmt.Errorf("state path is required")
	}
	return cfg, nil
}

// Run opens local progression and drives the terminal over in and out.
func Run(ctx context.Context, cfg Config, in io.Reader, out io.Writer) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceTerminal, func(ctx context.Context) error {
		store, err := boltstore.Open(cfg.StatePath)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("terminal: close progression: %v", err)
			}
		}()

		narrator, closeNarrator, err := soloNarrator(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeNarrator()

		term, err := terminal.New(terminal.Options{
			Store:     store,
			Narrator:  narrative.WithTimeout(narrator, timeouts.Narrative),
			Decrypt:   decrypt.Surface{Keys: decrypt.Remote{BaseURL: cfg.ServerURL, HTTPClient: &http.Client{Timeout: timeouts.Dial}}},
			ServerURL: cfg.ServerURL,
			Handle:    cfg.Handle,
			Out:       out,
		})
		if err != nil {
			return fmt.Errorf("init terminal: %w", err)
		}
		if err := term.Start(); err != nil {
			return err
		}
		if room := strings.TrimSpace(cfg.Room); room != "" {
			dialCtx, cancel := context.WithTimeout(ctx, timeouts.Dial)
			err := term.Join(dialCtx, room)
			cancel()
			if err != nil {
				log.Printf("terminal: join %s failed, staying solo: %v", room, err)
			}
		}
		return term.Run(ctx, in)
	})
}

// soloNarrator picks a generator for solo sessions from whichever API key is
// set. Without one the terminal still decrypts and joins rooms.
func soloNarrator(ctx context.Context, cfg Config) (narrative.Generator, func(), error) {
	switch {
	case strings.TrimSpace(cfg.OpenAIAPIKey) != "":
		return narrative.NewOpenAI(narrative.OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.NarrativeModel}), func() {}, nil
	case strings.TrimSpace(cfg.GeminiAPIKey) != "":
		gemini, err := narrative.NewGemini(ctx, cfg.GeminiAPIKey, cfg.NarrativeModel)
		if err != nil {
			return nil, nil, fmt.Errorf("init gemini: %w", err)
		}
		return gemini, func() { _ = gemini.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}

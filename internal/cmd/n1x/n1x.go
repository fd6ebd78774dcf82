// Package n1x parses room server flags and composes its dependencies.
package n1x

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/n1x/internal/platform/cmd"
	"github.com/louisbranch/n1x/internal/platform/storage/sqlmigrate"
	"github.com/louisbranch/n1x/internal/platform/timeouts"
	server "github.com/louisbranch/n1x/internal/services/n1x/app"
	"github.com/louisbranch/n1x/internal/services/n1x/f010"
	"github.com/louisbranch/n1x/internal/services/n1x/narrative"
	"github.com/louisbranch/n1x/internal/services/n1x/storage"
	"github.com/louisbranch/n1x/internal/services/n1x/storage/sqlstore"
)

// Storage dialects accepted by -db-dialect besides the SQL ones.
const dialectMemory = "memory"

// Narrative providers.
const (
	providerOpenAI = "openai"
	providerGemini = "gemini"
	providerNone   = "none"
)

// Config holds room server configuration.
type Config struct {
	HTTPAddr          string        `env:"N1X_HTTP_ADDR"          envDefault:":8090"`
	GRPCAddr          string        `env:"N1X_GRPC_ADDR"`
	DBDialect         string        `env:"N1X_DB_DIALECT"         envDefault:"sqlite"`
	DBPath            string        `env:"N1X_DB_PATH"            envDefault:"data/n1x.db"`
	DBDSN             string        `env:"N1X_DB_DSN"`
	NarrativeProvider string        `env:"N1X_NARRATIVE_PROVIDER" envDefault:"none"`
	NarrativeModel    string        `env:"N1X_NARRATIVE_MODEL"`
	OpenAIAPIKey      string        `env:"N1X_OPENAI_API_KEY"`
	GeminiAPIKey      string        `env:"N1X_GEMINI_API_KEY"`
	NarrativeTimeout  time.Duration `env:"N1X_NARRATIVE_TIMEOUT"  envDefault:"20s"`
	KeyCacheTTL       time.Duration `env:"N1X_KEY_CACHE_TTL"      envDefault:"24h"`
	StrictKeys        bool          `env:"N1X_STRICT_KEYS"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP and WebSocket listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.DBDialect, "db-dialect", cfg.DBDialect, "room storage: sqlite, postgres or memory")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite room database path")
	fs.StringVar(&cfg.DBDSN, "db-dsn", cfg.DBDSN, "PostgreSQL connection string")
	fs.StringVar(&cfg.NarrativeProvider, "narrative-provider", cfg.NarrativeProvider, "narrative generator: openai, gemini or none")
	fs.StringVar(&cfg.NarrativeModel, "narrative-model", cfg.NarrativeModel, "narrative model override")
	fs.DurationVar(&cfg.NarrativeTimeout, "narrative-timeout", cfg.NarrativeTimeout, "narrative generation timeout")
	fs.DurationVar(&cfg.KeyCacheTTL, "key-cache-ttl", cfg.KeyCacheTTL, "issued key cache lifetime")
	fs.BoolVar(&cfg.StrictKeys, "strict-keys", cfg.StrictKeys, "reject f010 keys that were never issued")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	cfg.DBDialect = strings.ToLower(strings.TrimSpace(cfg.DBDialect))
	cfg.NarrativeProvider = strings.ToLower(strings.TrimSpace(cfg.NarrativeProvider))
	switch cfg.DBDialect {
	case string(sqlmigrate.SQLite), string(sqlmigrate.Postgres), dialectMemory:
	default:
		return Config{}, fmt.Errorf("unsupported db dialect %q", cfg.DBDialect)
	}
	switch cfg.NarrativeProvider {
	case providerOpenAI, providerGemini, providerNone, "":
	default:
		return Config{}, fmt.Errorf("unsupported narrative provider %q", cfg.NarrativeProvider)
	}
	return cfg, nil
}

// Run composes storage, the narrator and the key cache, then serves rooms.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceN1X, func(ctx context.Context) error {
		store, closeStore := openRoomStore(ctx, cfg)
		defer closeStore()

		generator, closeGenerator, err := openGenerator(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeGenerator()

		if err := server.Run(ctx, server.Config{
			HTTPAddr:         cfg.HTTPAddr,
			GRPCAddr:         cfg.GRPCAddr,
			NarrativeTimeout: cfg.NarrativeTimeout,
		}, server.Dependencies{
			Store:      store,
			Generator:  generator,
			Keys:       f010.NewKeyCache(cfg.KeyCacheTTL),
			StrictKeys: cfg.StrictKeys,
		}); err != nil {
			return fmt.Errorf("serve n1x: %w", err)
		}
		return nil
	})
}

// openRoomStore opens durable storage behind the degrading wrapper. A
// database that cannot be opened leaves rooms in memory.
func openRoomStore(ctx context.Context, cfg Config) (*storage.Degrading, func()) {
	if cfg.DBDialect == dialectMemory {
		return storage.NewDegrading(storage.NewMemory()), func() {}
	}
	openCtx, cancel := context.WithTimeout(ctx, timeouts.Dial)
	defer cancel()
	sqlStore, err := sqlstore.Open(openCtx, sqlstore.Config{
		Dialect: sqlmigrate.Dialect(cfg.DBDialect),
		Path:    cfg.DBPath,
		DSN:     cfg.DBDSN,
	})
	if err != nil {
		log.Printf("storage: open %s failed, rooms stay in memory: %v", cfg.DBDialect, err)
		return storage.NewDegrading(nil), func() {}
	}
	return storage.NewDegrading(sqlStore), func() {
		if err := sqlStore.Close(); err != nil {
			log.Printf("storage: close: %v", err)
		}
	}
}

func openGenerator(ctx context.Context, cfg Config) (narrative.Generator, func(), error) {
	switch cfg.NarrativeProvider {
	case providerOpenAI:
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, nil, fmt.Errorf("N1X_OPENAI_API_KEY is required for the openai provider")
		}
		return narrative.NewOpenAI(narrative.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.NarrativeModel,
		}), func() {}, nil
	case providerGemini:
		gemini, err := narrative.NewGemini(ctx, cfg.GeminiAPIKey, cfg.NarrativeModel)
		if err != nil {
			return nil, nil, fmt.Errorf("init gemini: %w", err)
		}
		return gemini, func() {
			if err := gemini.Close(); err != nil {
				log.Printf("narrative: close gemini: %v", err)
			}
		}, nil
	default:
		log.Printf("narrative: no provider configured, N1X stays silent")
		return nil, func() {}, nil
	}
}

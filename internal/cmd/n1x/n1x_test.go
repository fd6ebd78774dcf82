package n1x

import (
	"context"
	"flag"
	"path/filepath"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("n1x", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":8090" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.DBDialect != "sqlite" || cfg.DBPath != "data/n1x.db" {
		t.Fatalf("expected sqlite defaults, got %q %q", cfg.DBDialect, cfg.DBPath)
	}
	if cfg.NarrativeProvider != "none" {
		t.Fatalf("expected no narrative provider, got %q", cfg.NarrativeProvider)
	}
	if cfg.NarrativeTimeout != 20*time.Second || cfg.KeyCacheTTL != 24*time.Hour {
		t.Fatalf("expected default durations, got %s %s", cfg.NarrativeTimeout, cfg.KeyCacheTTL)
	}
	if cfg.StrictKeys {
		t.Fatal("expected permissive keys by default")
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("N1X_HTTP_ADDR", "env-http")
	t.Setenv("N1X_DB_DIALECT", "postgres")
	t.Setenv("N1X_NARRATIVE_TIMEOUT", "5s")

	fs := flag.NewFlagSet("n1x", flag.ContinueOnError)
	args := []string{
		"-http-addr", "flag-http",
		"-db-dialect", "Memory",
		"-strict-keys",
	}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "flag-http" {
		t.Fatalf("expected flag http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.DBDialect != "memory" {
		t.Fatalf("expected flag dialect, got %q", cfg.DBDialect)
	}
	if cfg.NarrativeTimeout != 5*time.Second {
		t.Fatalf("expected env timeout, got %s", cfg.NarrativeTimeout)
	}
	if !cfg.StrictKeys {
		t.Fatal("expected strict keys from flag")
	}
}

func TestParseConfigRejectsUnknownDialect(t *testing.T) {
	fs := flag.NewFlagSet("n1x", flag.ContinueOnError)
	if _, err := ParseConfig(fs, []string{"-db-dialect", "mysql"}); err == nil {
		t.Fatal("expected error for unknown dialect")
	}
}

func TestParseConfigRejectsUnknownProvider(t *testing.T) {
	fs := flag.NewFlagSet("n1x", flag.ContinueOnError)
	if _, err := ParseConfig(fs, []string{"-narrative-provider", "oracle"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestOpenRoomStoreSQLite(t *testing.T) {
	cfg := Config{DBDialect: "sqlite", DBPath: filepath.Join(t.TempDir(), "rooms.db")}
	store, closeStore := openRoomStore(context.Background(), cfg)
	defer closeStore()
	if store.Degraded() {
		t.Fatal("expected durable store")
	}
}

func TestOpenRoomStoreFallsBackToMemory(t *testing.T) {
	cfg := Config{DBDialect: "postgres"}
	store, closeStore := openRoomStore(context.Background(), cfg)
	defer closeStore()
	if !store.Degraded() {
		t.Fatal("expected degraded store without a dsn")
	}
}

func TestOpenGeneratorRequiresOpenAIKey(t *testing.T) {
	if _, _, err := openGenerator(context.Background(), Config{NarrativeProvider: "openai"}); err == nil {
		t.Fatal("expected error without an api key")
	}
}

func TestOpenGeneratorNone(t *testing.T) {
	gen, closeGen, err := openGenerator(context.Background(), Config{NarrativeProvider: "none"})
	if err != nil {
		t.Fatalf("open generator: %v", err)
	}
	defer closeGen()
	if gen != nil {
		t.Fatalf("expected nil generator, got %T", gen)
	}
}

package n1xterm

import (
	"bytes"
	"context"
	"flag"
	"path/filepath"
	"strings"
	"testing"

	"github.com/louisbranch/n1x/internal/services/n1x/fragment"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("n1xterm", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.ServerURL != "http://localhost:8090" {
		t.Fatalf("expected default server url, got %q", cfg.ServerURL)
	}
	if cfg.StatePath != "n1x-progression.db" {
		t.Fatalf("expected default state path, got %q", cfg.StatePath)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("N1X_HANDLE", "env-handle")
	t.Setenv("N1X_ROOM", "env-room")

	fs := flag.NewFlagSet("n1xterm", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-room", "flag-room", "-state-path", "x.db"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Handle != "env-handle" {
		t.Fatalf("expected env handle, got %q", cfg.Handle)
	}
	if cfg.Room != "flag-room" || cfg.StatePath != "x.db" {
		t.Fatalf("expected flag overrides, got %q %q", cfg.Room, cfg.StatePath)
	}
}

func TestParseConfigRequiresStatePath(t *testing.T) {
	fs := flag.NewFlagSet("n1xterm", flag.ContinueOnError)
	if _, err := ParseConfig(fs, []string{"-state-path", " "}); err == nil {
		t.Fatal("expected error for empty state path")
	}
}

func TestRunPersistsDecryptedFragment(t *testing.T) {
	cfg := Config{StatePath: filepath.Join(t.TempDir(), "progression.db"), Handle: "ada"}
	entry, _ := fragment.ByID("f002")

	var out bytes.Buffer
	in := strings.NewReader("decrypt " + entry.Phrase + "\n/quit\n")
	if err := Run(context.Background(), cfg, in, &out); err != nil {
		t.Fatalf("run: %v", err)
	}

	out.Reset()
	if err := Run(context.Background(), cfg, strings.NewReader("/status\n"), &out); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !strings.Contains(out.String(), "[f002]") || !strings.Contains(out.String(), "sessions 2") {
		t.Fatalf("status after restart = %q", out.String())
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Script != "hive.star" || cfg.Package != "package.json" {
		t.Errorf("unexpected file defaults %+v", cfg)
	}
	if cfg.LogLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level, got %v", cfg.LogLevel())
	}
	if cfg.Debounce() != 300*time.Millisecond {
		t.Errorf("expected 300ms debounce, got %v", cfg.Debounce())
	}
}

func TestLoad_File(t *testing.T) {
	root := t.TempDir()
	settings := "script = \"build/hive.star\"\n\n[log]\nlevel = \"debug\"\n\n[watch]\ndebounce = \"1s\"\n"
	if err := os.WriteFile(filepath.Join(root, FileName), []byte(settings), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Script != "build/hive.star" {
		t.Errorf("expected script from file, got %s", cfg.Script)
	}
	if cfg.LogLevel() != zerolog.DebugLevel {
		t.Errorf("expected debug level, got %v", cfg.LogLevel())
	}
	if cfg.Debounce() != time.Second {
		t.Errorf("expected 1s debounce, got %v", cfg.Debounce())
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Settings){
		"level":    func(s *Settings) { s.Log.Level = "loud" },
		"debounce": func(s *Settings) { s.Watch.Debounce = "soon" },
		"negative": func(s *Settings) { s.Watch.Debounce = "-1s" },
		"script":   func(s *Settings) { s.Script = "" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := &Settings{Script: "hive.star", Package: "package.json"}
			cfg.Log.Level = "info"
			cfg.Watch.Debounce = "300ms"
			mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestSetLogLevel(t *testing.T) {
	cfg := &Settings{}
	if err := cfg.SetLogLevel("warn"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel() != zerolog.WarnLevel {
		t.Errorf("expected warn level")
	}
	if err := cfg.SetLogLevel("nope"); err == nil {
		t.Errorf("expected error for unknown level")
	}
}

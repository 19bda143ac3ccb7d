package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileLayersOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cbot.conf")
	contents := "[server]\nbind = 127.0.0.1:9000\ndefault_exchange = binance\n\n[mail]\nserver = smtp.example.com\nport = 587\n\n[binance]\nkey = abc\nsecret = def\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Bind != "127.0.0.1:9000" {
		t.Fatalf("expected overridden bind, got %q", cfg.Server.Bind)
	}
	if cfg.Server.Datafile != "cbot-savegame.data" {
		t.Fatalf("expected default datafile to survive, got %q", cfg.Server.Datafile)
	}
	if cfg.Mail.Server != "smtp.example.com" || cfg.Mail.Port != 587 {
		t.Fatalf("unexpected mail config: %+v", cfg.Mail)
	}
	if cfg.Exchanges["binance"].Key != "abc" || cfg.Exchanges["binance"].Secret != "def" {
		t.Fatalf("unexpected exchange config: %+v", cfg.Exchanges["binance"])
	}
}

func TestEmptyDatafileDisablesSnapshotting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cbot.conf")
	if err := os.WriteFile(path, []byte("[server]\ndatafile =\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Datafile != "" {
		t.Fatalf("expected empty datafile to override the default, got %q", cfg.Server.Datafile)
	}
}

func TestMissingFileIsNotAnError(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.conf"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Bind != "0.0.0.0:2268" {
		t.Fatalf("expected default bind, got %q", cfg.Server.Bind)
	}
}

func TestMalformedLineIsAnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cbot.conf")
	if err := os.WriteFile(path, []byte("[server]\nnot-a-key-value-line\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected an error for a line without '='")
	}
}

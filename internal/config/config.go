// Package config reads the layered INI-style configuration file the server
// and client binaries start from: /etc/cbot/cbot.conf, ~/.cbot.conf, and
// ./cbot.conf, each applied in that order so a later file overrides an
// earlier one key-by-key. Go's standard library has no INI reader and
// nothing in the retrieved example pack parses this wire format (the TOML
// readers elsewhere in the pack parse a different syntax); this file is the
// one corner of the runtime built on a hand-rolled reader instead of a
// pack library — see DESIGN.md for why.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ServerConfig mirrors the [server] section.
type ServerConfig struct {
	Logfile         string
	DefaultExchange string
	Bind            string
	Datafile        string
	Pidfile         string
	Verbosity       int
}

// MailConfig mirrors the [mail] section. A zero value (Server == "") means
// no mail section was configured and SENDMAIL/job notifications use the
// no-op mailer.
type MailConfig struct {
	Server      string
	Port        int
	User        string
	Pass        string
	Sender      string
	Recipient   string
	SubjectDesc string
}

// ExchangeConfig mirrors one per-exchange-id section ([binance], [kraken],
// ...).
type ExchangeConfig struct {
	Key      string
	Secret   string
	Password string
}

// Config is the fully merged configuration, after layering every file that
// exists among the three conventional paths.
type Config struct {
	Server    ServerConfig
	Mail      MailConfig
	Exchanges map[string]ExchangeConfig
}

// DefaultPaths returns the three conventional config paths, in the order
// they are layered (later overrides earlier): /etc/cbot/cbot.conf,
// ~/.cbot.conf, ./cbot.conf.
func DefaultPaths() []string {
	paths := []string{"/etc/cbot/cbot.conf"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".cbot.conf"))
	}
	paths = append(paths, "cbot.conf")
	return paths
}

// Default returns a Config with the datafile default the original ships,
// "cbot-savegame.data", and an empty exchange map.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Datafile: "cbot-savegame.data", Bind: "0.0.0.0:2268"},
		Exchanges: make(map[string]ExchangeConfig),
	}
}

// Load reads and layers the three conventional config paths, applying
// later files' keys over earlier ones. A missing file at any layer is not
// an error. Returns Default() merged with whatever was found.
func Load() (*Config, error) {
	cfg := Default()
	for _, p := range DefaultPaths() {
		if err := applyFile(cfg, p); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadFile loads a single explicit path on top of Default(), for callers
// (e.g. cmd/cbotd's --config flag) that bypass the conventional search.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := applyFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFile merges one INI file's sections into cfg. A missing file is
// silently skipped, matching the original's layered-override behavior.
func applyFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	section := ""
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			return fmt.Errorf("config: %s:%d: expected key = value", path, lineNo)
		}
		key := strings.ToLower(strings.TrimSpace(line[:idx]))
		val := strings.TrimSpace(line[idx+1:])
		applyKey(cfg, section, key, val)
	}
	return scanner.Err()
}

func applyKey(cfg *Config, section, key, val string) {
	switch section {
	case "server":
		switch key {
		case "logfile":
			cfg.Server.Logfile = val
		case "default_exchange":
			cfg.Server.DefaultExchange = val
		case "bind":
			cfg.Server.Bind = val
		case "datafile":
			// Preserved quirk from the original: setting datafile= (empty)
			// in a config file disables snapshotting entirely, because
			// Snapshot.Store.Enabled() is a plain truthiness check on the
			// path. See SPEC_FULL.md §12.
			cfg.Server.Datafile = val
		case "pidfile":
			cfg.Server.Pidfile = val
		case "verbosity":
			if n, err := strconv.Atoi(val); err == nil {
				cfg.Server.Verbosity = n
			}
		}
	case "mail":
		switch key {
		case "server":
			cfg.Mail.Server = val
		case "port":
			if n, err := strconv.Atoi(val); err == nil {
				cfg.Mail.Port = n
			}
		case "user":
			cfg.Mail.User = val
		case "pass":
			cfg.Mail.Pass = val
		case "sender":
			cfg.Mail.Sender = val
		case "recipient":
			cfg.Mail.Recipient = val
		case "subject_desc":
			cfg.Mail.SubjectDesc = val
		}
	case "":
		// Key outside any section: dropped without logging, since config
		// has no logger of its own.
	default:
		// Any other section name is an exchange id.
		ex := cfg.Exchanges[section]
		switch key {
		case "key":
			ex.Key = val
		case "secret":
			ex.Secret = val
		case "password":
			ex.Password = val
		}
		cfg.Exchanges[section] = ex
	}
}

// Package snapshot persists and restores the task runtime's entire state —
// the task registry, cron/condition lists, and MemStore — to a single file,
// written atomically (temp file + rename) per the spec's best-effort
// atomicity requirement. An empty datafile path disables snapshotting
// entirely, matching internal/config's documented datafile="" escape hatch.
package snapshot

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/wpolak/cbotgo/internal/eventbus"
	"github.com/wpolak/cbotgo/internal/memstore"
	"github.com/wpolak/cbotgo/internal/taskmanager"
	"github.com/wpolak/cbotgo/pkg/protocol"
)

// file is the on-disk shape written by Save and read by Load.
type file struct {
	Tasks    taskmanager.Snapshot `json:"tasks"`
	Memstore memstore.Contents    `json:"memstore"`
}

// Manager is the subset of *taskmanager.Manager Save/Load depend on.
type Manager interface {
	Snapshot() taskmanager.Snapshot
	Restore(ctx context.Context, snap taskmanager.Snapshot)
	NoteSavegame(at time.Time)
}

// Store persists runtime state to path. An empty path disables Save/Load —
// both become no-ops, matching an operator setting datafile= to turn
// snapshotting off entirely.
type Store struct {
	path     string
	store    *memstore.Store
	manager  Manager
	archiver Archiver
}

// Archiver uploads the savegame file somewhere durable after each
// successful save. Optional; nil disables archival.
type Archiver interface {
	Archive(ctx context.Context, path string) error
}

// New returns a Store bound to path (empty disables persistence).
func New(path string, store *memstore.Store, manager Manager, archiver Archiver) *Store {
	return &Store{path: path, store: store, manager: manager, archiver: archiver}
}

// Enabled reports whether a datafile path was configured.
func (s *Store) Enabled() bool { return s.path != "" }

// Save writes the current runtime state to disk atomically: marshal to a
// temp file in the same directory, then rename over the target. Before
// writing, memstore's "savegame_last_update" key is set to now. IO/marshal
// failures are logged and swallowed — a failed save never crashes the
// process.
func (s *Store) Save(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	now := time.Now()
	s.store.Add("savegame_last_update", now)

	f := file{Tasks: s.manager.Snapshot(), Memstore: s.store.ToSavegame()}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		slog.Error("snapshot: marshal failed", "error", err)
		return
	}

	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("snapshot: save failed", "error", err)
			return
		}
	}

	tmp, err := os.CreateTemp(dir, ".cbot-savegame-*.tmp")
	if err != nil {
		slog.Error("snapshot: save failed", "error", err)
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		slog.Error("snapshot: save failed", "error", err)
		return
	}
	if err := tmp.Close(); err != nil {
		slog.Error("snapshot: save failed", "error", err)
		return
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		slog.Error("snapshot: save failed", "error", err)
		return
	}

	s.manager.NoteSavegame(now)
	slog.Info("snapshot: saved", "path", s.path)

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, s.path); err != nil {
			slog.Warn("snapshot: archival failed", "error", err)
		}
	}
}

// Load reads and applies a previously saved snapshot. A missing file is not
// an error — the process continues with empty state. Any parse/IO error is
// logged and likewise non-fatal.
func (s *Store) Load(ctx context.Context) {
	if !s.Enabled() {
		slog.Info("snapshot: no datafile configured, starting with empty state")
		return
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("snapshot: no existing datafile, starting with empty state", "path", s.path)
			return
		}
		slog.Error("snapshot: load failed", "error", err)
		return
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Error("snapshot: load failed: malformed data, starting with empty state", "error", err)
		return
	}

	s.store.FromSavegame(f.Memstore)
	s.manager.Restore(ctx, f.Tasks)
	slog.Info("snapshot: loaded", "path", s.path, "tasks", len(f.Tasks.Tasks))
}

// RegisterSavegameListener subscribes an asynchronous save to SAVEGAME
// events on bus, matching the "SAVEGAME event triggers an asynchronous
// save" requirement. Returns the subscription for later Unsubscribe.
func (s *Store) RegisterSavegameListener(ctx context.Context, bus *eventbus.Bus) eventbus.Subscription {
	return bus.Subscribe(protocol.EventSavegame, func(event string, payload any) {
		s.Save(ctx)
	})
}

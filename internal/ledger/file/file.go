// Package file implements internal/ledger.Ledger as an append-only JSON
// Lines file, mirroring the store/file package split the teacher uses for
// its standalone-mode backends.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/wpolak/cbotgo/internal/ledger"
)

// Store is a file-backed ledger.Ledger.
type Store struct {
	mu   sync.Mutex
	path string
}

// New opens (creating if absent) path for append.
func New(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger/file: open %s: %w", path, err)
	}
	f.Close()
	return &Store{path: path}, nil
}

func (s *Store) RecordFill(ctx context.Context, fill ledger.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ledger/file: open %s: %w", s.path, err)
	}
	defer f.Close()

	line, err := json.Marshal(fill)
	if err != nil {
		return fmt.Errorf("ledger/file: marshal fill: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("ledger/file: write fill: %w", err)
	}
	return nil
}

func (s *Store) ListFills(ctx context.Context, limit int) ([]ledger.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger/file: open %s: %w", s.path, err)
	}
	defer f.Close()

	var fills []ledger.Fill
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var fill ledger.Fill
		if err := json.Unmarshal(scanner.Bytes(), &fill); err != nil {
			continue
		}
		fills = append(fills, fill)
	}

	if limit > 0 && len(fills) > limit {
		fills = fills[len(fills)-limit:]
	}
	return fills, nil
}

func (s *Store) Close() error { return nil }

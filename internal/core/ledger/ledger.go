// Package ledger persists the keys of items whose maintenance failed so later
// runs can skip the expensive recovery path for them.
//
// The ledger is a single text file of '|'-joined keys with no header. It is read
// once per run and rewritten in full after every new failure.
package ledger

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vietddude/librarian/internal/core/domain"
)

// FileName is the ledger file name inside the application cache directory.
const FileName = "chapter-failures.txt"

const separator = "|"

// Ledger is an ordered, case-insensitive set of failure keys backed by a file.
// Record is safe for concurrent use; mutation and write happen under one lock.
type Ledger struct {
	path string

	mu    sync.RWMutex
	keys  []domain.FailureKey
	index map[string]struct{}
}

// PathIn returns the ledger location for a cache directory.
func PathIn(cacheDir string) string {
	return filepath.Join(cacheDir, FileName)
}

// New returns an empty ledger that will persist to path.
func New(path string) *Ledger {
	return &Ledger{
		path:  path,
		index: make(map[string]struct{}),
	}
}

// Load reads the ledger at path. A missing, locked or unreadable file yields an
// empty ledger; the error is logged and never returned.
func Load(path string) *Ledger {
	l := New(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to read failure ledger, starting empty", "path", path, "error", err)
		}
		return l
	}

	for _, part := range strings.Split(string(data), separator) {
		if part == "" {
			continue
		}
		l.add(domain.FailureKey(part))
	}
	return l
}

// Path returns the backing file path.
func (l *Ledger) Path() string {
	return l.path
}

// Contains reports whether key was recorded, ignoring case.
func (l *Ledger) Contains(key domain.FailureKey) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.index[key.Normalized()]
	return ok
}

// Len returns the number of distinct keys.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.keys)
}

// Keys returns a copy of the keys in insertion order.
func (l *Ledger) Keys() []domain.FailureKey {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.FailureKey, len(l.keys))
	copy(out, l.keys)
	return out
}

// Record adds key and rewrites the file. It returns false without touching the
// file when the key is already present. A write error leaves the key in memory;
// callers treat it as a warning.
func (l *Ledger) Record(key domain.FailureKey) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.add(key) {
		return false, nil
	}

	parts := make([]string, len(l.keys))
	for i, k := range l.keys {
		parts[i] = string(k)
	}
	text := strings.Join(parts, separator)

	if err := writeFile(l.path, []byte(text)); err != nil {
		return true, err
	}
	return true, nil
}

// Clear forgets every key and removes the file.
func (l *Ledger) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.keys = nil
	l.index = make(map[string]struct{})

	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove ledger %s: %w", l.path, err)
	}
	return nil
}

// add must be called with mu held (or before the ledger is shared).
func (l *Ledger) add(key domain.FailureKey) bool {
	norm := key.Normalized()
	if _, ok := l.index[norm]; ok {
		return false
	}
	l.index[norm] = struct{}{}
	l.keys = append(l.keys, key)
	return true
}

// writeFile replaces path atomically so readers never see a partial ledger.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("rename ledger into %s: %w", path, err)
	}
	return nil
}

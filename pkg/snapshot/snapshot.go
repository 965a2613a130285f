// Package snapshot persists and restores the engine's full state. Writes
// replace the previous snapshot atomically (temp file, then rename) so a
// crash mid-write never corrupts the persisted state. There is no
// write-ahead log: operations between the last snapshot and a crash are a
// stated, bounded data-loss window.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"matchbook/pkg/exchange/engine"
)

// Writer installs snapshot documents at a fixed path.
type Writer struct {
	Path string
}

// Write serializes the state and atomically installs it: the document is
// written to a temporary file in the same directory, fsynced, then renamed
// over the previous snapshot.
func (w *Writer) Write(st *engine.State) error {
	dir := filepath.Dir(w.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("snapshot temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), w.Path); err != nil {
		return fmt.Errorf("install snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot document. Returns (nil, nil) when none exists, in
// which case the caller starts from configured defaults.
func Load(path string) (*engine.State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var st engine.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return &st, nil
}

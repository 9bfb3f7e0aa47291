package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileKV keeps all entries of one profile in a single JSON document on disk.
type FileKV struct {
	mu      sync.Mutex
	path    string
	entries map[string]string
	closed  bool
}

// NewFileKV opens (or creates) the profile document under basePath. A
// document that cannot be parsed is treated as empty.
func NewFileKV(basePath, profile string) (*FileKV, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o700); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	f := &FileKV{
		path:    filepath.Join(basePath, safeFilename(profile)+".json"),
		entries: make(map[string]string),
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read storage file: %w", err)
	}
	if len(data) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, &f.entries); err != nil {
		// Unreadable state starts empty; the next write replaces the document.
		slog.Warn("discarding corrupt storage file", "path", f.path, "err", err)
		f.entries = make(map[string]string)
		return f, nil
	}
	if f.entries == nil {
		f.entries = make(map[string]string)
	}
	return f, nil
}

// Path returns the backing file location.
func (f *FileKV) Path() string {
	return f.path
}

// Get returns the value for key.
func (f *FileKV) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", false, ErrClosed
	}
	v, ok := f.entries[key]
	return v, ok, nil
}

// Set stores a value and flushes the document.
func (f *FileKV) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	prev, had := f.entries[key]
	f.entries[key] = value
	if err := f.flushLocked(); err != nil {
		if had {
			f.entries[key] = prev
		} else {
			delete(f.entries, key)
		}
		return err
	}
	return nil
}

// Delete removes keys and flushes the document.
func (f *FileKV) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	changed := false
	for _, key := range keys {
		if _, ok := f.entries[key]; ok {
			delete(f.entries, key)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return f.flushLocked()
}

// Close marks the store unusable. Data is already on disk.
func (f *FileKV) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// flushLocked writes to a temp file and renames it so readers never see a torn document.
func (f *FileKV) flushLocked() error {
	data, err := json.MarshalIndent(f.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode storage file: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".storefront-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write storage file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close storage file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace storage file: %w", err)
	}
	return nil
}

func safeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	if name == "" || name == "." || name == ".." {
		return "default"
	}
	return name
}

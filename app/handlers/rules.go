package handlers

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// RulesFile reads and replaces the group rules stored on disk.
type RulesFile struct {
	path string
	mu   sync.RWMutex
}

// NewRulesFile returns a rules file at path.
func NewRulesFile(path string) *RulesFile {
	return &RulesFile{path: path}
}

// Path returns the file location.
func (r *RulesFile) Path() string { return r.path }

// Read returns the rules text; a missing file yields an empty string.
func (r *RulesFile) Read() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read rules: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Write replaces the rules atomically.
func (r *RulesFile) Write(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".rules-*")
	if err != nil {
		return fmt.Errorf("write rules: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(strings.TrimSpace(text) + "\n"); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write rules: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write rules: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("write rules: %w", err)
	}
	return nil
}

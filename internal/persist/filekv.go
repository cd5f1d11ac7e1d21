package persist

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// FileKV stores each key as one file in a directory. Keys are
// percent-escaped so signature-bearing keys like "overlay:v2:ext-xyz"
// stay filesystem-safe everywhere.
type FileKV struct {
	dir string
}

// NewFileKV creates the directory if needed and returns a file-backed KV.
func NewFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating overlay data dir: %w", err)
	}
	return &FileKV{dir: dir}, nil
}

func (f *FileKV) path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key))
}

func (f *FileKV) Get(key string) (string, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return string(data), true, nil
}

func (f *FileKV) Set(key, value string) error {
	// Write-then-rename so a torn write never corrupts an envelope.
	tmp := f.path(key) + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := os.Rename(tmp, f.path(key)); err != nil {
		return fmt.Errorf("replacing %s: %w", key, err)
	}
	return nil
}

func (f *FileKV) Delete(key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

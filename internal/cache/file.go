package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"github.com/JakeFAU/socialcards/internal/cards"
)

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// File stores each key as a JSON document in a directory.
// Writes go to a temp file first and are renamed into place, so a reader in
// another process sees either the previous batch or the new one.
type File struct {
	fs     afero.Fs
	dir    string
	prefix string
}

// NewFile creates the cache directory if needed.
func NewFile(fs afero.Fs, dir, prefix string) (*File, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &File{fs: fs, dir: filepath.Clean(dir), prefix: prefix}, nil
}

// Dir is the directory holding the cache documents.
func (c *File) Dir() string {
	return c.dir
}

// PathFor returns the document path for key.
func (c *File) PathFor(key string) string {
	name := unsafeFileChars.ReplaceAllString(prefixed(c.prefix, key), "_")
	return filepath.Join(c.dir, name+".json")
}

// Set replaces the batch stored under key.
func (c *File) Set(_ context.Context, key string, batch cards.JobBatch) error {
	data, err := encode(batch)
	if err != nil {
		return err
	}
	tmp, err := afero.TempFile(c.fs, c.dir, ".batch-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = c.fs.Remove(tmpName)
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = c.fs.Remove(tmpName)
		return fmt.Errorf("close temp cache file: %w", err)
	}
	if err := c.fs.Rename(tmpName, c.PathFor(key)); err != nil {
		_ = c.fs.Remove(tmpName)
		return fmt.Errorf("commit cache file: %w", err)
	}
	return nil
}

// Get returns the batch stored under key, or an empty batch.
func (c *File) Get(_ context.Context, key string) (cards.JobBatch, error) {
	data, err := afero.ReadFile(c.fs, c.PathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return cards.JobBatch{}, nil
		}
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	return decode(data)
}

// Close is a no-op.
func (c *File) Close() error {
	return nil
}

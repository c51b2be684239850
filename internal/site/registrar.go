// Package site hands card page requests over to the host static-site build.
package site

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/JakeFAU/socialcards/internal/cards"
)

// ManifestRegistrar collects page requests and writes them as a JSON manifest
// that the host build reads to create the card render pages.
type ManifestRegistrar struct {
	fs   afero.Fs
	path string

	mu    sync.Mutex
	pages []cards.PageRequest
}

// NewManifestRegistrar creates a registrar that flushes to path.
func NewManifestRegistrar(fs afero.Fs, path string) *ManifestRegistrar {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &ManifestRegistrar{fs: fs, path: path}
}

// CreatePage records a page request.
func (r *ManifestRegistrar) CreatePage(_ context.Context, page cards.PageRequest) error {
	if page.Path == "" {
		return fmt.Errorf("page path is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages = append(r.pages, page)
	return nil
}

// Pages returns a copy of the recorded requests in registration order.
func (r *ManifestRegistrar) Pages() []cards.PageRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]cards.PageRequest, len(r.pages))
	copy(out, r.pages)
	return out
}

// Flush writes every recorded request to the manifest, replacing the previous one.
func (r *ManifestRegistrar) Flush(_ context.Context) error {
	pages := r.Pages()
	data, err := json.MarshalIndent(pages, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal page manifest: %w", err)
	}
	if err := r.fs.MkdirAll(filepath.Dir(r.path), 0o750); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	if err := afero.WriteFile(r.fs, r.path, data, 0o600); err != nil {
		return fmt.Errorf("write page manifest: %w", err)
	}
	return nil
}

package content

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"

	"github.com/JakeFAU/socialcards/internal/cards"
)

// ManifestEntry is one page listed in a JSON manifest.
type ManifestEntry struct {
	Slug    string         `json:"slug"`
	Context map[string]any `json:"context"`
}

// JSONQuery reads a pre-exported list of pages from a JSON file.
// The query string is ignored; the manifest is the query result.
type JSONQuery struct {
	fs   afero.Fs
	path string
}

// NewJSONQuery creates a manifest-backed query.
func NewJSONQuery(fs afero.Fs, path string) *JSONQuery {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &JSONQuery{fs: fs, path: path}
}

// Run decodes the manifest into []ManifestEntry.
func (q *JSONQuery) Run(_ context.Context, _ string) (any, error) {
	data, err := afero.ReadFile(q.fs, q.path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var entries []ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return entries, nil
}

// ManifestToPages is the extractor for JSONQuery results.
func ManifestToPages(root string) cards.Extractor {
	return func(result any) ([]cards.PageRecord, error) {
		entries, ok := result.([]ManifestEntry)
		if !ok {
			return nil, fmt.Errorf("unexpected manifest result %T", result)
		}
		pages := make([]cards.PageRecord, 0, len(entries))
		for i, entry := range entries {
			if entry.Slug == "" {
				return nil, fmt.Errorf("manifest entry %d has no slug", i)
			}
			pages = append(pages, cards.PageRecord{Slug: underRoot(root, entry.Slug), Context: entry.Context})
		}
		return pages, nil
	}
}

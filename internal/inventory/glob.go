// Package inventory scans the output root for card images that already exist.
package inventory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/JakeFAU/socialcards/internal/cards"
)

// Glob matches "*<suffix>.png" for every card spec, recursively under the output root.
// Slugs may contain directories, so a flat glob of the root would miss nested cards.
type Glob struct {
	fs   afero.Fs
	root string
}

// New creates a Glob rooted at outputRoot. The root should already be absolute.
func New(fs afero.Fs, outputRoot string) *Glob {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Glob{fs: fs, root: filepath.Clean(outputRoot)}
}

// Existing returns the set of absolute image paths matching any card suffix.
// A missing output root yields an empty set.
func (g *Glob) Existing(ctx context.Context, specs []cards.CardSpec) (cards.ExistingOutputSet, error) {
	set := cards.NewExistingOutputSet()
	ok, err := afero.DirExists(g.fs, g.root)
	if err != nil {
		return nil, fmt.Errorf("stat output root: %w", err)
	}
	if !ok {
		return set, nil
	}

	walkRoot, err := g.resolveRoot()
	if err != nil {
		return nil, err
	}

	patterns := make([]string, 0, len(specs))
	for _, spec := range specs {
		patterns = append(patterns, spec.Suffix+".png")
	}

	walkErr := afero.Walk(g.fs, walkRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() {
			return nil
		}
		name := info.Name()
		for _, pattern := range patterns {
			if strings.HasSuffix(name, pattern) {
				set.Add(g.rebase(walkRoot, path))
				break
			}
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("scan output root: %w", walkErr)
	}
	return set, nil
}

// resolveRoot follows a symlinked output root on the OS filesystem, since the
// walk lstats the root and would not descend into a linked directory.
func (g *Glob) resolveRoot() (string, error) {
	if _, ok := g.fs.(*afero.OsFs); !ok {
		return g.root, nil
	}
	resolved, err := filepath.EvalSymlinks(g.root)
	if err != nil {
		return "", fmt.Errorf("resolve output root: %w", err)
	}
	return resolved, nil
}

// rebase maps a path found under walkRoot back onto the configured root so it
// matches the destinations the planner computes.
func (g *Glob) rebase(walkRoot, path string) string {
	if walkRoot == g.root {
		return path
	}
	rel, err := filepath.Rel(walkRoot, path)
	if err != nil {
		return path
	}
	return filepath.Join(g.root, rel)
}

// Package content runs content queries over the site's source files and
// extracts the pages that need social cards.
package content

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

var frontmatterDelim = []byte("---")

// Document is one markdown file with its parsed frontmatter.
type Document struct {
	// File is the path relative to the content directory, slash separated.
	File   string
	Fields map[string]any
}

// FrontmatterQuery reads markdown documents from a content directory.
// The query string is a glob matched against each file's relative path or base name;
// an empty query selects every document.
type FrontmatterQuery struct {
	fs  afero.Fs
	dir string
}

// NewFrontmatterQuery creates a query rooted at dir.
func NewFrontmatterQuery(fs afero.Fs, dir string) *FrontmatterQuery {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FrontmatterQuery{fs: fs, dir: filepath.Clean(dir)}
}

// Run returns the matching documents as []Document sorted by file.
func (q *FrontmatterQuery) Run(ctx context.Context, query string) (any, error) {
	if _, err := filepath.Match(query, ""); err != nil {
		return nil, fmt.Errorf("invalid content query %q: %w", query, err)
	}

	var docs []Document
	err := afero.Walk(q.fs, q.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() || !isMarkdown(info.Name()) {
			return nil
		}
		rel, err := filepath.Rel(q.dir, path)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)
		if !matchQuery(query, rel) {
			return nil
		}
		data, err := afero.ReadFile(q.fs, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		fields, err := parseFrontmatter(data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", rel, err)
		}
		docs = append(docs, Document{File: rel, Fields: fields})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk content dir: %w", err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].File < docs[j].File })
	return docs, nil
}

func isMarkdown(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown", ".mdx":
		return true
	default:
		return false
	}
}

func matchQuery(pattern, rel string) bool {
	if pattern == "" {
		return true
	}
	if ok, _ := filepath.Match(pattern, rel); ok {
		return true
	}
	ok, _ := filepath.Match(pattern, filepath.Base(rel))
	return ok
}

// parseFrontmatter returns the YAML block between the leading "---" delimiter
// lines. A "---" inside a value does not close the block. A document without
// frontmatter yields an empty map.
func parseFrontmatter(data []byte) (map[string]any, error) {
	fields := map[string]any{}
	trimmed := bytes.TrimLeft(data, "\ufeff \t\r\n")
	lines := bytes.SplitAfter(trimmed, []byte("\n"))
	if len(lines) == 0 || !isDelimiter(lines[0]) {
		return fields, nil
	}

	var block []byte
	closed := false
	for _, line := range lines[1:] {
		if isDelimiter(line) {
			closed = true
			break
		}
		block = append(block, line...)
	}
	if !closed {
		return nil, fmt.Errorf("invalid frontmatter: missing closing ---")
	}
	if err := yaml.Unmarshal(block, &fields); err != nil {
		return nil, fmt.Errorf("invalid frontmatter: %w", err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

func isDelimiter(line []byte) bool {
	return bytes.Equal(bytes.TrimRight(line, " \t\r\n"), frontmatterDelim)
}

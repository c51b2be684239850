package content

import (
	"fmt"
	"path"
	"strings"

	"github.com/JakeFAU/socialcards/internal/cards"
)

// DocumentsToPages returns an extractor for FrontmatterQuery results.
// The slug comes from the "slug" field, or from the file path when absent, and is
// always placed under root. Documents marked "draft: true" are skipped.
func DocumentsToPages(root string) cards.Extractor {
	return func(result any) ([]cards.PageRecord, error) {
		docs, ok := result.([]Document)
		if !ok {
			return nil, fmt.Errorf("unexpected content result %T", result)
		}
		pages := make([]cards.PageRecord, 0, len(docs))
		for _, doc := range docs {
			if draft, _ := doc.Fields["draft"].(bool); draft {
				continue
			}
			slug, _ := doc.Fields["slug"].(string)
			if strings.TrimSpace(slug) == "" {
				slug = slugFromFile(doc.File)
			}
			slug = underRoot(root, slug)

			ctx := make(map[string]any, len(doc.Fields)+1)
			for k, v := range doc.Fields {
				ctx[k] = v
			}
			ctx["slug"] = slug
			pages = append(pages, cards.PageRecord{Slug: slug, Context: ctx})
		}
		return pages, nil
	}
}

// slugFromFile maps "blog/post.md" to "/blog/post" and "blog/index.md" to "/blog".
func slugFromFile(file string) string {
	trimmed := strings.TrimSuffix(file, path.Ext(file))
	if path.Base(trimmed) == "index" {
		trimmed = path.Dir(trimmed)
	}
	return "/" + strings.TrimPrefix(trimmed, "./")
}

func underRoot(root, slug string) string {
	if root == "" {
		root = "/"
	}
	if !strings.HasPrefix(root, "/") {
		root = "/" + root
	}
	cleaned := path.Clean("/" + strings.TrimPrefix(slug, "/"))
	cleanRoot := path.Clean(root)
	if cleanRoot == "/" || cleaned == cleanRoot || strings.HasPrefix(cleaned, cleanRoot+"/") {
		return cleaned
	}
	return path.Join(cleanRoot, cleaned)
}

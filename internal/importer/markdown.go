// Package importer loads markdown notes into the memory engine.
//
// Each file may start with a YAML frontmatter block delimited by "---"
// lines carrying category and tags; the remaining body becomes the
// memory content.
package importer

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentrecall/recall/internal/engine"
	"github.com/agentrecall/recall/pkg/types"
)

type frontmatter struct {
	Category string   `yaml:"category"`
	Tags     []string `yaml:"tags"`
}

// Note is one parsed markdown file ready for storage.
type Note struct {
	Path     string
	Content  string
	Category types.Category
	Tags     []string
}

// ParseFile reads one markdown file and splits frontmatter from body.
// Files without frontmatter import as category "context" with no tags.
func ParseFile(path string) (*Note, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("importer: read %s: %w", path, err)
	}
	return parse(path, string(data))
}

func parse(path, text string) (*Note, error) {
	note := &Note{Path: path, Category: types.CategoryContext}

	body := text
	if strings.HasPrefix(text, "---\n") || strings.HasPrefix(text, "---\r\n") {
		rest := text[strings.Index(text, "\n")+1:]
		if idx := strings.Index(rest, "\n---"); idx >= 0 {
			var fm frontmatter
			if err := yaml.Unmarshal([]byte(rest[:idx]), &fm); err != nil {
				return nil, fmt.Errorf("importer: parse frontmatter in %s: %w", path, err)
			}
			if fm.Category != "" {
				cat := types.Category(fm.Category)
				if !types.IsValidCategory(cat) {
					return nil, fmt.Errorf("importer: %s: invalid category %q", path, fm.Category)
				}
				note.Category = cat
			}
			note.Tags = fm.Tags
			body = rest[idx+len("\n---"):]
		}
	}

	note.Content = strings.TrimSpace(body)
	if note.Content == "" {
		return nil, fmt.Errorf("importer: %s: empty content", path)
	}
	return note, nil
}

// ImportDir walks dir for .md files and stores them as a single batch.
// Unparseable files are logged and skipped. Returns the number imported.
func ImportDir(ctx context.Context, eng *engine.Engine, dir string) (int, error) {
	var reqs []types.StoreRequest
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		note, err := ParseFile(path)
		if err != nil {
			log.Printf("importer: skipping %s: %v", path, err)
			return nil
		}
		reqs = append(reqs, types.StoreRequest{
			Content:  note.Content,
			Category: note.Category,
			Tags:     note.Tags,
		})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("importer: walk %s: %w", dir, err)
	}
	if len(reqs) == 0 {
		return 0, nil
	}

	stored, err := eng.StoreBatch(ctx, reqs)
	if err != nil {
		return 0, err
	}
	return len(stored), nil
}

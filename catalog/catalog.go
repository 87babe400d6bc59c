// Package catalog loads the static therapeutic content the agents work
// against: the theme list, the pre-computed excerpt retrievals for each
// theme, and the book metadata used to render references.
package catalog

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	themesFile     = "strongAfter_themes.json"
	retrievalsFile = "generated/retrievals.json"
	metadataFile   = "book_metadata.json"
)

// Excerpt is a chunk of source text from one of the catalog books.
type Excerpt struct {
	Text    string   `json:"text"`
	Headers []string `json:"headers,omitempty"`
	BookURL string   `json:"book_url,omitempty"`
	Title   string   `json:"title"`
}

// Retrieval pairs an excerpt with its pre-computed similarity to a theme.
type Retrieval struct {
	Excerpt    Excerpt `json:"excerpt"`
	Similarity float64 `json:"similarity_score"`
}

// Theme is one trauma-recovery theme with its attached excerpt retrievals.
type Theme struct {
	ID          string      `json:"id"`
	Label       string      `json:"label"`
	Description string      `json:"description"`
	Excerpts    []Retrieval `json:"excerpts,omitempty"`
}

// ScoredTheme is a theme selected for a response, annotated with the
// relevance score the scoring stage assigned to it.
type ScoredTheme struct {
	Theme
	RelevanceScore float64 `json:"relevance_score"`
}

// BookMeta describes one source book for reference rendering.
type BookMeta struct {
	Author      string `json:"author"`
	Year        string `json:"year"`
	Title       string `json:"title"`
	Publisher   string `json:"publisher"`
	PurchaseURL string `json:"purchase_url"`
}

// Catalog is the read-only content bundle loaded once at startup.
type Catalog struct {
	Themes []Theme
	Books  map[string]BookMeta
}

// retrievalEntry mirrors the on-disk retrievals structure, keyed by theme label.
type retrievalEntry struct {
	Label           string      `json:"label"`
	Description     string      `json:"description"`
	SimilarExcerpts []Retrieval `json:"similar_excerpts"`
}

// Load reads the catalog from dir. The theme list is required and a failure
// to load it is fatal for the caller; retrievals are merged into the themes
// by label; book metadata is optional and falls back to an empty table.
func Load(dir string) (*Catalog, error) {
	var themes []Theme
	if err := readJSON(filepath.Join(dir, themesFile), &themes); err != nil {
		return nil, errors.Wrap(err, "load themes")
	}
	slog.Info("catalog: themes loaded", "count", len(themes))

	var retrievals map[string]retrievalEntry
	if err := readJSON(filepath.Join(dir, retrievalsFile), &retrievals); err != nil {
		return nil, errors.Wrap(err, "load retrievals")
	}
	for i := range themes {
		entry, ok := retrievals[themes[i].Label]
		if !ok {
			slog.Warn("catalog: no retrievals for theme", "label", themes[i].Label)
			continue
		}
		themes[i].Excerpts = entry.SimilarExcerpts
	}

	books := map[string]BookMeta{}
	if err := readJSON(filepath.Join(dir, metadataFile), &books); err != nil {
		slog.Warn("catalog: book metadata unavailable, using empty table", "error", err)
		books = map[string]BookMeta{}
	} else {
		slog.Info("catalog: book metadata loaded", "sources", len(books))
	}

	return &Catalog{Themes: themes, Books: books}, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "parse %s", filepath.Base(path))
	}
	return nil
}

// ThemeByID returns the theme with the given id, or false when absent.
func (c *Catalog) ThemeByID(id string) (Theme, bool) {
	for _, t := range c.Themes {
		if t.ID == id {
			return t, true
		}
	}
	return Theme{}, false
}

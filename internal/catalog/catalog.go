package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// Chapter is one practicable unit of a book.
type Chapter struct {
	ID      string `yaml:"id" json:"id"`
	Title   string `yaml:"title" json:"title"`
	Summary string `yaml:"summary" json:"summary"`
}

// Book groups chapters under a title.
type Book struct {
	ID       string    `yaml:"id" json:"id"`
	Title    string    `yaml:"title" json:"title"`
	Author   string    `yaml:"author" json:"author"`
	Chapters []Chapter `yaml:"chapters" json:"chapters"`
}

// Profile is a persona the user practices against.
type Profile struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Voice       string `yaml:"voice" json:"voice"`
}

// Catalog is the static content the selection screens present.
type Catalog struct {
	Books    []Book    `yaml:"books" json:"books"`
	Profiles []Profile `yaml:"profiles" json:"profiles"`
}

//go:embed catalog.yaml
var defaultCatalog []byte

// Load reads a catalog from path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		data = b
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.Books) == 0 {
		return nil, fmt.Errorf("catalog has no books")
	}
	if len(c.Profiles) == 0 {
		return nil, fmt.Errorf("catalog has no profiles")
	}
	for _, b := range c.Books {
		if len(b.Chapters) == 0 {
			return nil, fmt.Errorf("book %q has no chapters", b.Title)
		}
	}
	return &c, nil
}

// FindBook matches by id or title.
func (c *Catalog) FindBook(key string) (Book, bool) {
	for _, b := range c.Books {
		if b.ID == key || strings.EqualFold(b.Title, key) {
			return b, true
		}
	}
	return Book{}, false
}

// FindChapter matches by id or title within a book.
func (b Book) FindChapter(key string) (Chapter, bool) {
	for _, ch := range b.Chapters {
		if ch.ID == key || strings.EqualFold(ch.Title, key) {
			return ch, true
		}
	}
	return Chapter{}, false
}

// FindProfile matches by id or name.
func (c *Catalog) FindProfile(key string) (Profile, bool) {
	for _, p := range c.Profiles {
		if p.ID == key || strings.EqualFold(p.Name, key) {
			return p, true
		}
	}
	return Profile{}, false
}

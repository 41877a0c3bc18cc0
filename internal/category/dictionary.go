// Package category assigns expense categories to receipt line items by
// keyword.
package category

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zombor/receipt-ledger/internal/textnorm"
)

//go:embed default_categories.yaml
var defaultDictionaryYAML []byte

// ErrUnknownCategory is returned when a name is not part of the dictionary.
var ErrUnknownCategory = errors.New("unknown category")

// Category is one entry of the keyword dictionary.
type Category struct {
	Name     string   `yaml:"name" json:"name"`
	Priority int      `yaml:"priority" json:"priority"`
	Aliases  []string `yaml:"aliases" json:"aliases,omitempty"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Dictionary maps categories to keyword sets. It is immutable once built
// and safe to share between concurrent scans.
type Dictionary struct {
	categories []Category
	fallback   string
	keywords   [][]keyword       // indexed like categories
	names      map[string]string // folded name or alias -> canonical name
}

type keyword struct {
	raw    string
	folded string
}

type dictionaryFile struct {
	Default    string     `yaml:"default"`
	Categories []Category `yaml:"categories"`
}

// NewDictionary builds a dictionary from categories in priority order.
// fallback is the category assigned when no keyword matches; it is added
// to the set if missing.
func NewDictionary(fallback string, categories []Category) (*Dictionary, error) {
	if textnorm.Fold(fallback) == "" {
		return nil, errors.New("default category is required")
	}

	d := &Dictionary{
		fallback: fallback,
		names:    make(map[string]string),
	}
	for _, c := range categories {
		key := textnorm.Fold(c.Name)
		if key == "" {
			return nil, errors.New("category name is required")
		}
		if _, dup := d.names[key]; dup {
			return nil, fmt.Errorf("duplicate category %q", c.Name)
		}
		d.names[key] = c.Name

		folded := make([]keyword, 0, len(c.Keywords))
		for _, kw := range c.Keywords {
			if f := textnorm.Fold(kw); f != "" {
				folded = append(folded, keyword{raw: kw, folded: f})
			}
		}

		c.Aliases = append([]string(nil), c.Aliases...)
		c.Keywords = append([]string(nil), c.Keywords...)
		d.categories = append(d.categories, c)
		d.keywords = append(d.keywords, folded)
	}

	// Aliases never shadow a real category name.
	for _, c := range d.categories {
		for _, alias := range c.Aliases {
			key := textnorm.Fold(alias)
			if _, taken := d.names[key]; key != "" && !taken {
				d.names[key] = c.Name
			}
		}
	}

	if canonical, ok := d.names[textnorm.Fold(fallback)]; ok {
		d.fallback = canonical
	} else {
		d.categories = append(d.categories, Category{Name: fallback})
		d.keywords = append(d.keywords, nil)
		d.names[textnorm.Fold(fallback)] = fallback
	}

	return d, nil
}

// ParseDictionary reads a YAML dictionary.
func ParseDictionary(data []byte) (*Dictionary, error) {
	var f dictionaryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing category dictionary: %w", err)
	}
	return NewDictionary(f.Default, f.Categories)
}

// LoadDictionary reads a YAML dictionary from path. An empty path loads
// the bundled dictionary.
func LoadDictionary(path string) (*Dictionary, error) {
	if path == "" {
		return DefaultDictionary()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading category dictionary: %w", err)
	}
	return ParseDictionary(data)
}

// DefaultDictionary returns the bundled dictionary.
func DefaultDictionary() (*Dictionary, error) {
	return ParseDictionary(defaultDictionaryYAML)
}

// Default returns the fallback category name.
func (d *Dictionary) Default() string {
	return d.fallback
}

// Categories returns a copy of the categories in priority order.
func (d *Dictionary) Categories() []Category {
	out := make([]Category, len(d.categories))
	copy(out, d.categories)
	return out
}

// Canonical resolves a category name, alias or spelling variant to the
// name used by the dictionary.
func (d *Dictionary) Canonical(name string) (string, error) {
	if canonical, ok := d.names[textnorm.Fold(name)]; ok {
		return canonical, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, name)
}

// Package catalog holds the read-only character pool a draft selects from.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

var ErrUnknownCharacter = errors.New("unknown character")

type Tier string

const (
	TierS Tier = "S"
	TierA Tier = "A"
	TierB Tier = "B"
)

// BanTiers is the order system bans are drawn in.
var BanTiers = []Tier{TierS, TierA, TierB}

type Category struct {
	Name       string   `yaml:"name"`
	Characters []string `yaml:"characters"`
}

type file struct {
	Categories []Category        `yaml:"categories"`
	Tiers      map[Tier][]string `yaml:"tiers"`
	Detection  []string          `yaml:"detection"`
	Cloaking   []string          `yaml:"cloaking"`
}

// Catalog is immutable after construction and safe to share between sessions.
type Catalog struct {
	categories []Category
	all        []string
	index      map[string]string // normalised -> canonical
	category   map[string]string
	tiers      map[Tier][]string
	detection  map[string]bool
	cloaking   map[string]bool
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		index:     map[string]string{},
		category:  map[string]string{},
		tiers:     map[Tier][]string{},
		detection: map[string]bool{},
		cloaking:  map[string]bool{},
	}

	var errs error
	for _, cat := range f.Categories {
		kept := Category{Name: Normalize(cat.Name)}
		for _, name := range cat.Characters {
			n := Normalize(name)
			if n == "" {
				continue
			}
			if _, dup := c.index[n]; dup {
				errs = multierr.Append(errs, fmt.Errorf("character %q listed twice", n))
				continue
			}
			c.index[n] = n
			c.category[n] = kept.Name
			c.all = append(c.all, n)
			kept.Characters = append(kept.Characters, n)
		}
		c.categories = append(c.categories, kept)
	}

	ref := func(section, name string) (string, bool) {
		n := Normalize(name)
		if _, ok := c.index[n]; !ok {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w %q", section, ErrUnknownCharacter, n))
			return "", false
		}
		return n, true
	}
	for tier, names := range f.Tiers {
		for _, name := range names {
			if n, ok := ref("tier "+string(tier), name); ok {
				c.tiers[tier] = append(c.tiers[tier], n)
			}
		}
	}
	for _, name := range f.Detection {
		if n, ok := ref("detection", name); ok {
			c.detection[n] = true
		}
	}
	for _, name := range f.Cloaking {
		if n, ok := ref("cloaking", name); ok {
			c.cloaking[n] = true
		}
	}

	if len(c.all) == 0 {
		errs = multierr.Append(errs, errors.New("catalog has no characters"))
	}
	if errs != nil {
		return nil, errs
	}
	return c, nil
}

// Normalize trims and NFC-normalises a character name so composed and
// decomposed Hangul compare equal.
func Normalize(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// Lookup resolves user input to the canonical character name.
func (c *Catalog) Lookup(name string) (string, bool) {
	n, ok := c.index[Normalize(name)]
	return n, ok
}

func (c *Catalog) Has(name string) bool {
	_, ok := c.index[name]
	return ok
}

// All returns every character in category order.
func (c *Catalog) All() []string { return slices.Clone(c.all) }

func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	for i, cat := range c.categories {
		out[i] = Category{Name: cat.Name, Characters: slices.Clone(cat.Characters)}
	}
	return out
}

func (c *Catalog) CategoryOf(name string) string { return c.category[name] }

func (c *Catalog) Tier(t Tier) []string { return slices.Clone(c.tiers[t]) }

func (c *Catalog) TierOf(name string) (Tier, bool) {
	for _, t := range BanTiers {
		if slices.Contains(c.tiers[t], name) {
			return t, true
		}
	}
	return "", false
}

func (c *Catalog) IsDetection(name string) bool { return c.detection[name] }

func (c *Catalog) IsCloaking(name string) bool { return c.cloaking[name] }

// Cloaking returns the cloaking characters in catalog order.
func (c *Catalog) Cloaking() []string {
	var out []string
	for _, n := range c.all {
		if c.cloaking[n] {
			out = append(out, n)
		}
	}
	return out
}

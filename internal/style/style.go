// Package style lists the art styles the generation service can render.
package style

import (
	"fmt"
	"sort"
	"strings"
)

// Key identifies an art style
type Key string

// Default is the style the service uses when none is given
const Default Key = "miyazaki"

// Style is a named art style
type Style struct {
	Key  Key    `json:"key"`
	Name string `json:"name"`
}

var builtin = []Style{
	{Key: "miyazaki", Name: "Miyazaki / Studio Ghibli"},
	{Key: "superhero", Name: "Superhero Comic"},
	{Key: "watercolor", Name: "Watercolor Storybook"},
	{Key: "pixel_art", Name: "Pixel Art"},
	{Key: "noir", Name: "Film Noir"},
	{Key: "cyberpunk", Name: "Cyberpunk"},
	{Key: "disney_classic", Name: "Classic Disney"},
	{Key: "manga", Name: "Manga"},
	{Key: "oil_painting", Name: "Oil Painting"},
	{Key: "fantasy", Name: "Epic Fantasy"},
}

// Catalog is an ordered set of styles with a default
type Catalog struct {
	Default Key
	Styles  []Style
}

// Builtin returns the catalog shipped with the client
func Builtin() Catalog {
	styles := make([]Style, len(builtin))
	copy(styles, builtin)
	return Catalog{Default: Default, Styles: styles}
}

// Lookup returns the style for key
func (c Catalog) Lookup(key Key) (Style, bool) {
	for _, s := range c.Styles {
		if s.Key == key {
			return s, true
		}
	}
	return Style{}, false
}

// Valid reports whether key names a style in the catalog
func (c Catalog) Valid(key Key) bool {
	_, ok := c.Lookup(key)
	return ok
}

// Keys returns the sorted style keys
func (c Catalog) Keys() []string {
	keys := make([]string, 0, len(c.Styles))
	for _, s := range c.Styles {
		keys = append(keys, string(s.Key))
	}
	sort.Strings(keys)
	return keys
}

// Resolve maps an optional user choice to a catalog key. An empty choice
// resolves to the catalog default.
func (c Catalog) Resolve(choice string) (Key, error) {
	key := Key(strings.TrimSpace(strings.ToLower(choice)))
	if key == "" {
		key = c.Default
	}
	if !c.Valid(key) {
		return "", fmt.Errorf("unknown art style %q, available styles: %s", choice, strings.Join(c.Keys(), ", "))
	}
	return key, nil
}

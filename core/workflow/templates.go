package workflow

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

// Template is a named, ready-to-use definition from the catalog.
type Template struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Category    string     `json:"category" yaml:"category"`
	Definition  Definition `json:"definition" yaml:"definition"`
}

// Catalog is a read-only, name-keyed set of templates.
type Catalog struct {
	byID  map[string]Template
	order []string
}

// DefaultCatalog loads the templates shipped with the engine.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(templateFS, "templates")
}

// LoadCatalog reads every *.yaml file under dir. Each template must pass
// ValidateDefinition.
func LoadCatalog(fsys fs.FS, dir string) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	c := &Catalog{byID: make(map[string]Template)}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", entry.Name(), err)
		}
		var tpl Template
		if err := yaml.Unmarshal(data, &tpl); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", entry.Name(), err)
		}
		if tpl.ID == "" {
			tpl.ID = strings.TrimSuffix(entry.Name(), ".yaml")
		}
		if err := ValidateDefinition(tpl.Definition).Err(); err != nil {
			return nil, fmt.Errorf("template %s: %w", tpl.ID, err)
		}
		if _, dup := c.byID[tpl.ID]; dup {
			return nil, fmt.Errorf("template %s: duplicate id", tpl.ID)
		}
		c.byID[tpl.ID] = tpl
		c.order = append(c.order, tpl.ID)
	}
	sort.Strings(c.order)
	return c, nil
}

// List returns copies of every template, ordered by id.
func (c *Catalog) List() []Template {
	if c == nil {
		return []Template{}
	}
	out := make([]Template, 0, len(c.order))
	for _, id := range c.order {
		tpl := c.byID[id]
		tpl.Definition = cloneDefinition(tpl.Definition)
		out = append(out, tpl)
	}
	return out
}

// Get finds a template by id, or by name ignoring case.
func (c *Catalog) Get(key string) (Template, error) {
	if c != nil {
		tpl, ok := c.byID[key]
		if !ok {
			for _, candidate := range c.byID {
				if strings.EqualFold(candidate.Name, key) {
					tpl, ok = candidate, true
					break
				}
			}
		}
		if ok {
			tpl.Definition = cloneDefinition(tpl.Definition)
			return tpl, nil
		}
	}
	return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, key)
}

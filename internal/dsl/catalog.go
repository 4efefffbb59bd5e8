package dsl

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"
)

//go:embed catalog/*.dsl
var builtin embed.FS

// Catalog — все сущности и таблицы соответствия приложения.
type Catalog struct {
	entities map[string]*Entity // Name -> схема
	mappings []Mapping
}

// NewCatalog собирает каталог, проверяя уникальность имён и ресурсов.
func NewCatalog(entities []*Entity, mappings []Mapping) (*Catalog, error) {
	c := &Catalog{entities: make(map[string]*Entity, len(entities))}
	resources := map[string]string{}
	for _, e := range entities {
		if e == nil || e.Name == "" {
			return nil, fmt.Errorf("empty entity name")
		}
		key := strings.ToLower(e.Name)
		if _, exists := c.entities[key]; exists {
			return nil, fmt.Errorf("duplicate entity %q", e.Name)
		}
		res := strings.ToLower(e.Resource)
		if prev, exists := resources[res]; exists {
			return nil, fmt.Errorf("entities %q and %q share resource %q", prev, e.Name, e.Resource)
		}
		resources[res] = e.Name
		c.entities[key] = e
	}
	seen := map[string]struct{}{}
	for _, m := range mappings {
		k := strings.ToLower(m.Source + "->" + m.Target)
		if _, dup := seen[k]; dup {
			return nil, fmt.Errorf("duplicate mapping %s -> %s", m.Source, m.Target)
		}
		seen[k] = struct{}{}
		c.mappings = append(c.mappings, m)
	}
	return c, nil
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// Default возвращает встроенный ERP-каталог.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = loadFS(builtin, "catalog")
	})
	return defaultCat, defaultErr
}

// MustDefault — для тестов и main: встроенный каталог обязан собираться.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Entity ищет сущность по имени без учёта регистра.
func (c *Catalog) Entity(name string) (*Entity, bool) {
	e, ok := c.entities[strings.ToLower(strings.TrimSpace(name))]
	return e, ok
}

// ByResource ищет сущность по сегменту пути REST.
func (c *Catalog) ByResource(resource string) (*Entity, bool) {
	rl := strings.ToLower(strings.TrimSpace(resource))
	for _, e := range c.entities {
		if strings.ToLower(e.Resource) == rl {
			return e, true
		}
	}
	return nil, false
}

// Resolve принимает имя сущности или ресурс.
func (c *Catalog) Resolve(nameOrResource string) (*Entity, bool) {
	if e, ok := c.Entity(nameOrResource); ok {
		return e, true
	}
	return c.ByResource(nameOrResource)
}

// Entities — все сущности, отсортированные по имени.
func (c *Catalog) Entities() []*Entity {
	out := make([]*Entity, 0, len(c.entities))
	for _, e := range c.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Catalog) Mapping(source, target string) (Mapping, bool) {
	for _, m := range c.mappings {
		if strings.EqualFold(m.Source, source) && strings.EqualFold(m.Target, target) {
			return m, true
		}
	}
	return Mapping{}, false
}

// MappingsInto — все источники, из которых можно заполнить форму target.
func (c *Catalog) MappingsInto(target string) []Mapping {
	var out []Mapping
	for _, m := range c.mappings {
		if strings.EqualFold(m.Target, target) {
			out = append(out, m)
		}
	}
	return out
}

type Issue struct {
	Entity  string `json:"entity"`
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type LintError struct {
	Issues []Issue
}

func (e *LintError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, it := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s.%s: %s", it.Entity, it.Field, it.Message))
	}
	return "catalog has blocking issues: " + strings.Join(parts, "; ")
}

// Lint проверяет базовые противоречия каталога.
func (c *Catalog) Lint() []Issue {
	var issues []Issue
	add := func(entity, field, code, format string, args ...any) {
		issues = append(issues, Issue{Entity: entity, Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	for _, e := range c.Entities() {
		keys := 0
		for _, f := range e.Fields {
			if f.IsKey() {
				keys++
			}
			if f.IsRequired() && f.IsDerived() {
				add(e.Name, f.Name, "required_conflicts_derived", "derived field cannot be required")
			}
		}
		if keys > 1 {
			add(e.Name, "", "key_ambiguous", "entity declares %d key fields", keys)
		}
		for _, pt := range e.Constraints.PositiveTogether {
			for _, name := range pt {
				if !e.IsNumeric(name) {
					add(e.Name, name, "constraint_field_unknown", "positive_together needs a number field")
				}
			}
		}
	}

	for _, m := range c.mappings {
		label := m.Source + "->" + m.Target
		src, okSrc := c.Entity(m.Source)
		dst, okDst := c.Entity(m.Target)
		if !okSrc {
			add(label, "", "mapping_source_unknown", "unknown source entity %q", m.Source)
		}
		if !okDst {
			add(label, "", "mapping_target_unknown", "unknown target entity %q", m.Target)
		}
		if !okSrc || !okDst {
			continue
		}
		if dst.ReadOnly {
			add(label, "", "mapping_target_readonly", "target %q is read-only", dst.Name)
		}
		targets := map[string]struct{}{}
		for _, p := range m.Pairs {
			if !src.Has(p.From) {
				add(label, p.From, "mapping_field_unknown", "source has no field %q", p.From)
			}
			if !dst.Submittable(p.To) {
				add(label, p.To, "mapping_field_unknown", "target field %q is unknown or not submittable", p.To)
			}
			if p.Coerce == CoerceNumber && dst.Submittable(p.To) && !dst.IsNumeric(p.To) {
				add(label, p.To, "mapping_coerce_mismatch", "numeric coercion into non-number field")
			}
			if _, dup := targets[p.To]; dup {
				add(label, p.To, "mapping_target_duplicate", "target field mapped twice")
			}
			targets[p.To] = struct{}{}
		}
	}
	return issues
}

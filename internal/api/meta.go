package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
)

type metaEntityListItem struct {
	Module   string `json:"module"`
	Entity   string `json:"entity"`
	Resource string `json:"resource"`
	ReadOnly bool   `json:"readonly"`
}

// GET /api/meta
func (s *Server) MetaListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		entities := s.Catalog().Entities()
		out := make([]metaEntityListItem, 0, len(entities))
		for _, e := range entities {
			out = append(out, metaEntityListItem{
				Module:   e.Module,
				Entity:   e.Name,
				Resource: e.Resource,
				ReadOnly: e.ReadOnly,
			})
		}
		reply(c, http.StatusOK, out, "")
	}
}

type metaField struct {
	Name    string            `json:"name"`
	Type    string            `json:"type"`
	Enum    []string          `json:"enum,omitempty"`
	Options map[string]string `json:"options,omitempty"`
}

type metaPair struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Coerce string `json:"coerce,omitempty"`
}

type metaMapping struct {
	Source string     `json:"source"`
	Pairs  []metaPair `json:"pairs"`
}

type metaEntity struct {
	metaEntityListItem
	Fields       []metaField    `json:"fields"`
	Required     []string       `json:"required"`
	SearchFields []string       `json:"searchFields"`
	KeyField     string         `json:"keyField"`
	Constraints  map[string]any `json:"constraints,omitempty"`
	Mappings     []metaMapping  `json:"mappings,omitempty"`
}

// GET /api/meta/:resource
func (s *Server) MetaEntityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		schema, ok := s.entity(c)
		if !ok {
			return
		}
		reply(c, http.StatusOK, describe(s.Catalog(), schema), "")
	}
}

func describe(cat *dsl.Catalog, e *dsl.Entity) metaEntity {
	fields := make([]metaField, 0, len(e.Fields))
	for _, f := range e.Fields {
		opts := make(map[string]string, len(f.Options))
		for k, v := range f.Options {
			opts[k] = v
		}
		fields = append(fields, metaField{
			Name:    f.Name,
			Type:    f.Type,
			Enum:    append([]string(nil), f.Enum...),
			Options: opts,
		})
	}

	var constraints map[string]any
	if len(e.Constraints.PositiveTogether) > 0 {
		pairs := make([][]string, 0, len(e.Constraints.PositiveTogether))
		for _, p := range e.Constraints.PositiveTogether {
			pairs = append(pairs, []string{p[0], p[1]})
		}
		constraints = map[string]any{"positive_together": pairs}
	}

	var mappings []metaMapping
	for _, m := range cat.MappingsInto(e.Name) {
		mm := metaMapping{Source: m.Source}
		for _, p := range m.Pairs {
			mm.Pairs = append(mm.Pairs, metaPair{From: p.From, To: p.To, Coerce: p.Coerce})
		}
		mappings = append(mappings, mm)
	}

	return metaEntity{
		metaEntityListItem: metaEntityListItem{
			Module:   e.Module,
			Entity:   e.Name,
			Resource: e.Resource,
			ReadOnly: e.ReadOnly,
		},
		Fields:       fields,
		Required:     e.Required(),
		SearchFields: e.SearchFields(),
		KeyField:     e.KeyField(),
		Constraints:  constraints,
		Mappings:     mappings,
	}
}

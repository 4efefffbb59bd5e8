package pg

import (
	"fmt"
	"sort"
	"strings"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
)

const recordsTable = "records"

var reserved = map[string]struct{}{
	"user": {}, "select": {}, "table": {}, "insert": {}, "update": {}, "delete": {},
	"where": {}, "join": {}, "group": {}, "order": {}, "limit": {}, "offset": {},
	"primary": {}, "foreign": {}, "key": {}, "constraint": {}, "default": {},
	"from": {}, "into": {}, "values": {}, "unique": {}, "index": {}, "create": {},
	"drop": {}, "alter": {}, "schema": {}, "grant": {}, "revoke": {},
}

func isReserved(s string) bool { _, ok := reserved[strings.ToLower(s)]; return ok }

// schema = module (lower); «опасные» имена получают префикс.
func safeSchema(module string) string {
	s := strings.ToLower(strings.TrimSpace(module))
	if s == "" {
		s = "public"
	}
	if isReserved(s) {
		s = "m_" + s
	}
	return s
}

func sqlIdent(s string) string { return `"` + strings.ReplaceAll(strings.ToLower(s), `"`, `""`) + `"` }

func sqlLiteral(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }

func tableFor(e *dsl.Entity) string {
	return sqlIdent(safeSchema(e.Module)) + "." + sqlIdent(recordsTable)
}

// GenerateDDL: по схеме на модуль, в ней одна таблица records с данными в jsonb
// и индексы по ключевым полям сущностей. Только add-only операции.
func GenerateDDL(cat *dsl.Catalog) map[string]string {
	out := map[string]string{}
	var tables, indexes strings.Builder
	seen := map[string]struct{}{}

	entities := cat.Entities()
	sort.Slice(entities, func(i, j int) bool { return entities[i].Resource < entities[j].Resource })

	for _, e := range entities {
		mod := safeSchema(e.Module)
		if _, ok := seen[mod]; !ok {
			seen[mod] = struct{}{}
			fmt.Fprintf(&tables, "create schema if not exists %s;\n", sqlIdent(mod))
			fmt.Fprintf(&tables, `create table if not exists %s (
  "resource" text not null,
  "id" text not null,
  "version" bigint not null,
  "created_at" timestamp with time zone not null,
  "updated_at" timestamp with time zone not null,
  "data" jsonb not null default '{}'::jsonb,
  primary key ("resource", "id")
);
`, tableFor(e))
		}

		key := e.KeyField()
		if key == "" || dsl.IsSystemField(key) {
			continue
		}
		idx := strings.ToLower(strings.NewReplacer("-", "_").Replace(e.Resource) + "_" + key + "_idx")
		fmt.Fprintf(&indexes, "create index if not exists %s on %s ((data->>%s)) where resource = %s;\n",
			sqlIdent(idx), tableFor(e), sqlLiteral(key), sqlLiteral(e.Resource))
	}

	out["000_schemas_and_tables"] = tables.String()
	if indexes.Len() > 0 {
		out["100_key_indexes"] = indexes.String()
	}
	return out
}

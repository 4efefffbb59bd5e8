// Package filter narrows an in-memory record list by a search string.
package filter

import (
	"strings"

	"github.com/samber/lo"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
	"github.com/minhahamin/mes-fe-sub000/internal/record"
)

// Filter оставляет записи, у которых хотя бы одно из fields содержит query
// без учёта регистра. Пустой query возвращает исходный срез как есть.
// Отсутствующие и nil-поля пропускаются.
func Filter(records []record.Record, query string, fields []string) []record.Record {
	if query == "" {
		return records
	}
	q := strings.ToLower(query)
	return lo.Filter(records, func(r record.Record, _ int) bool {
		return Matches(r, q, fields)
	})
}

// Matches проверяет одну запись; q уже в нижнем регистре.
func Matches(r record.Record, q string, fields []string) bool {
	return lo.SomeBy(fields, func(name string) bool {
		v, ok := r[name]
		if !ok || v == nil {
			return false
		}
		return strings.Contains(strings.ToLower(record.String(v)), q)
	})
}

// ForEntity — Filter по search-полям сущности.
func ForEntity(records []record.Record, query string, e *dsl.Entity) []record.Record {
	return Filter(records, query, e.SearchFields())
}

// Package binder copies fields of a selected lookup record into a dependent
// draft according to a static field mapping.
package binder

import (
	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
	"github.com/minhahamin/mes-fe-sub000/internal/record"
)

// Patch строит патч для черновика: только целевые поля таблицы соответствия.
// Отсутствующее в источнике поле даёт nil (поле считается незаполненным),
// для пар с приведением к числу — 0.
func Patch(selected record.Record, m dsl.Mapping) record.Record {
	patch := make(record.Record, len(m.Pairs))
	for _, p := range m.Pairs {
		v := selected[p.From]
		if p.Coerce == dsl.CoerceNumber {
			patch[p.To] = record.Number(v)
			continue
		}
		patch[p.To] = v
	}
	return patch
}

// Bind возвращает новый черновик: целевые поля перезаписываются безусловно,
// остальные поля draft не трогаются. Ни draft, ни selected не изменяются.
func Bind(draft, selected record.Record, m dsl.Mapping) record.Record {
	return draft.Merge(Patch(selected, m))
}

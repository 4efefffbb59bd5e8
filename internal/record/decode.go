package record

import (
	"fmt"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
)

// ShapeError — ответ сервера не совпал со схемой сущности.
type ShapeError struct {
	Entity string
	Field  string
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Entity, e.Field, e.Reason)
}

// Decode проверяет сырую запись из API по схеме: неизвестные поля и вложенные
// значения отклоняются, числа в number-полях должны быть числами или числовыми строками.
func Decode(e *dsl.Entity, raw map[string]any) (Record, error) {
	out := make(Record, len(raw))
	for k, v := range raw {
		if !e.Has(k) {
			return nil, &ShapeError{Entity: e.Name, Field: k, Reason: "unknown field"}
		}
		if !IsScalar(v) {
			return nil, &ShapeError{Entity: e.Name, Field: k, Reason: fmt.Sprintf("expected scalar, got %T", v)}
		}
		if e.IsNumeric(k) {
			if s, ok := v.(string); ok && !IsNumeric(s) {
				return nil, &ShapeError{Entity: e.Name, Field: k, Reason: fmt.Sprintf("expected number, got %q", s)}
			}
			if _, ok := v.(bool); ok {
				return nil, &ShapeError{Entity: e.Name, Field: k, Reason: "expected number, got bool"}
			}
		}
		out[k] = v
	}
	return out, nil
}

// DecodeAll — Decode для списка.
func DecodeAll(e *dsl.Entity, raws []map[string]any) ([]Record, error) {
	out := make([]Record, 0, len(raws))
	for _, raw := range raws {
		rec, err := Decode(e, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

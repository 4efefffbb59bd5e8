// Package record holds the flat entity record shared by the client, the forms
// and the development backend.
package record

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
)

// Record — плоская запись: имя поля -> скаляр (string, float64, bool, nil).
type Record map[string]any

// Clone возвращает поверхностную копию (значения скалярные, этого достаточно).
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge возвращает новую запись: r, поверх которой применён patch.
func (r Record) Merge(patch Record) Record {
	out := r.Clone()
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func (r Record) ID() string {
	return String(r[dsl.FieldID])
}

// Keys — отсортированные имена полей.
func (r Record) Keys() []string {
	keys := lo.Keys(r)
	sort.Strings(keys)
	return keys
}

// String — отображаемая форма значения; nil → "".
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Number повторяет `Number(x) || 0`: пустая или нечисловая строка, nil и NaN дают 0.
func Number(v any) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case bool:
		if t {
			f = 1
		}
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = n
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// IsScalar — допустимое значение поля записи.
func IsScalar(v any) bool {
	switch v.(type) {
	case nil, string, float64, bool:
		return true
	}
	return false
}

// StripSeparators убирает разделители разрядов: "3,500,000" → "3500000".
func StripSeparators(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ",", "")
}

// ParseNumber разбирает строку после снятия разделителей. NaN и ±Inf числом не считаются.
func ParseNumber(s string) (float64, bool) {
	n, err := strconv.ParseFloat(StripSeparators(s), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// IsNumeric — строка пустая либо разбирается как число после снятия разделителей.
func IsNumeric(s string) bool {
	if StripSeparators(s) == "" {
		return true
	}
	_, ok := ParseNumber(s)
	return ok
}

package api

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
	"github.com/minhahamin/mes-fe-sub000/internal/gate"
	"github.com/minhahamin/mes-fe-sub000/internal/record"
)

type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Коды ошибок
const (
	ErrRequired         = gate.CodeRequired
	ErrPositiveTogether = gate.CodePositiveTogether
	ErrTypeMismatch     = "type_mismatch"
	ErrEnumInvalid      = "enum_invalid"
	ErrUnknownField     = "unknown_field"
	ErrReadOnly         = "readonly_field"
	ErrVersionConflict  = "version_conflict"
)

const (
	fieldQuantity    = "quantity"
	fieldUnitPrice   = "unitPrice"
	fieldTotalAmount = "totalAmount"
)

var (
	dateRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	phoneRe = regexp.MustCompile(`^[0-9-]*$`)
)

// checkWritable: системные, derived и незнакомые поля в теле запроса запрещены.
func checkWritable(schema *dsl.Entity, obj map[string]any) (errs []FieldError) {
	for _, k := range sortedKeys(obj) {
		if dsl.IsSystemField(k) {
			errs = append(errs, ferr(ErrReadOnly, k, "Field '"+k+"' is read-only"))
			continue
		}
		f, ok := schema.Field(k)
		if !ok {
			errs = append(errs, ferr(ErrUnknownField, k, "Field '"+k+"' is not defined on "+schema.Name))
			continue
		}
		if f.IsDerived() {
			errs = append(errs, ferr(ErrReadOnly, k, "Field '"+k+"' is derived"))
		}
	}
	return errs
}

// normalize приводит значения к типам полей на месте.
func normalize(schema *dsl.Entity, obj map[string]any) (errs []FieldError) {
	for _, name := range sortedKeys(obj) {
		f, ok := schema.Field(name)
		if !ok {
			continue
		}
		v, err := coerceValue(f, obj[name])
		if err != nil {
			code := ErrTypeMismatch
			if f.Type == dsl.TypeEnum {
				code = ErrEnumInvalid
			}
			errs = append(errs, ferr(code, name, "Field '"+name+"' "+err.Error()))
			continue
		}
		obj[name] = v
	}
	return errs
}

// ValidateAgainstSchema проверяет запись целиком (после слияния с текущей
// при PATCH): типы, обязательные поля и межполевые правила.
func ValidateAgainstSchema(schema *dsl.Entity, obj map[string]any) []FieldError {
	errs := normalize(schema, obj)
	res := gate.ForEntity(schema).Validate(record.Record(obj))
	for _, name := range res.MissingFields {
		errs = append(errs, ferr(ErrRequired, name, "Field '"+name+"' is required"))
	}
	for _, v := range res.Violations {
		errs = append(errs, ferr(v.Code, strings.Join(v.Fields, ","), v.Message))
	}
	return errs
}

// deriveFields пересчитывает totalAmount = quantity × unitPrice.
func deriveFields(schema *dsl.Entity, obj map[string]any) {
	f, ok := schema.Field(fieldTotalAmount)
	if !ok || !f.IsDerived() || !schema.IsNumeric(fieldQuantity) || !schema.IsNumeric(fieldUnitPrice) {
		return
	}
	obj[fieldTotalAmount] = record.Number(obj[fieldQuantity]) * record.Number(obj[fieldUnitPrice])
}

func coerceValue(f dsl.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case dsl.TypeNumber:
		return toNumberStrict(v)
	case dsl.TypePhone:
		s, err := toStringStrict(v)
		if err != nil {
			return nil, err
		}
		if !phoneRe.MatchString(s) {
			return nil, errors.New("must contain digits and '-' only")
		}
		return s, nil
	case dsl.TypeDate:
		s, err := toStringStrict(v)
		if err != nil {
			return nil, err
		}
		if s == "" {
			return s, nil
		}
		if !dateRe.MatchString(s) {
			return nil, errors.New("must match YYYY-MM-DD")
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return nil, errors.New("invalid date")
		}
		return s, nil
	case dsl.TypeEnum:
		s, err := toStringStrict(v)
		if err != nil {
			return nil, err
		}
		if s == "" {
			return s, nil
		}
		for _, ev := range f.Enum {
			if s == ev {
				return s, nil
			}
		}
		return nil, fmt.Errorf("value '%s' is not allowed", s)
	default:
		return toStringStrict(v)
	}
}

func toStringStrict(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.New("must be string")
	}
	return s, nil
}

// toNumberStrict: число или строка с разделителями разрядов; пустая строка → nil.
func toNumberStrict(v any) (any, error) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, errors.New("must be a number")
		}
		return t, nil
	case string:
		if record.StripSeparators(t) == "" {
			return nil, nil
		}
		n, ok := record.ParseNumber(t)
		if !ok {
			return nil, errors.New("must be a number")
		}
		return n, nil
	default:
		return nil, errors.New("must be a number")
	}
}

func ferr(code, field, msg string) FieldError {
	return FieldError{Code: code, Field: field, Message: msg}
}

func sortedKeys(m map[string]any) []string {
	return record.Record(m).Keys()
}

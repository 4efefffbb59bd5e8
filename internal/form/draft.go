package form

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"github.com/samber/mo"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
	"github.com/minhahamin/mes-fe-sub000/internal/record"
)

var (
	ErrUnknownField  = errors.New("unknown field")
	ErrReadOnlyField = errors.New("field is read-only")
	ErrNotANumber    = errors.New("not a number")
)

// Draft — незавершённая запись формы. Методы не меняют получателя,
// а возвращают новый черновик.
type Draft struct {
	entity *dsl.Entity
	values record.Record
}

// NewDraft — пустой черновик для создания.
func NewDraft(e *dsl.Entity) Draft {
	return Draft{entity: e, values: record.Record{}}
}

// DraftOf — черновик из загруженной записи (режим редактирования).
func DraftOf(e *dsl.Entity, rec record.Record) Draft {
	return Draft{entity: e, values: rec.Clone()}
}

func (d Draft) Entity() *dsl.Entity { return d.entity }

// Values — копия текущих значений.
func (d Draft) Values() record.Record {
	return d.values.Clone()
}

// Get — значение поля, если оно заполнялось.
func (d Draft) Get(name string) mo.Option[any] {
	v, ok := d.values[name]
	if !ok {
		return mo.None[any]()
	}
	return mo.Some(v)
}

// SetField — ввод пользователя. Для number-полей снимаются разделители
// разрядов и значение приводится к числу (пустая строка → 0), phone-поля
// форматируются по мере ввода, остальное хранится как есть.
func (d Draft) SetField(name, raw string) (Draft, error) {
	f, ok := d.entity.Field(name)
	if !ok {
		if dsl.IsSystemField(name) {
			return d, errors.Wrapf(ErrReadOnlyField, "%s.%s", d.entity.Name, name)
		}
		return d, errors.Wrapf(ErrUnknownField, "%s.%s", d.entity.Name, name)
	}
	if f.IsDerived() {
		return d, errors.Wrapf(ErrReadOnlyField, "%s.%s", d.entity.Name, name)
	}

	var v any = raw
	switch f.Type {
	case dsl.TypeNumber:
		n, err := parseAmount(raw)
		if err != nil {
			return d, errors.Wrapf(err, "%s.%s: %q", d.entity.Name, name, raw)
		}
		v = n
	case dsl.TypePhone:
		v = FormatPhone(raw)
	}
	return d.with(name, v), nil
}

// ApplyPatch — поверхностное слияние, патч побеждает.
func (d Draft) ApplyPatch(patch record.Record) Draft {
	return Draft{entity: d.entity, values: d.values.Merge(patch)}
}

// ToSubmission — тело запроса: без системных, derived и незнакомых полей;
// number-поля из форматированных строк превращаются обратно в числа.
func (d Draft) ToSubmission(omit ...string) record.Record {
	skip := make(map[string]struct{}, len(omit))
	for _, o := range omit {
		skip[o] = struct{}{}
	}
	out := make(record.Record, len(d.values))
	for k, v := range d.values {
		if _, ok := skip[k]; ok || !d.entity.Submittable(k) {
			continue
		}
		if d.entity.IsNumeric(k) && v != nil {
			if s, ok := v.(string); ok {
				v = record.StripSeparators(s)
			}
			v = record.Number(v)
		}
		out[k] = v
	}
	return out
}

func (d Draft) with(name string, v any) Draft {
	values := d.values.Clone()
	values[name] = v
	return Draft{entity: d.entity, values: values}
}

func parseAmount(raw string) (float64, error) {
	s := record.StripSeparators(raw)
	if s == "" {
		return 0, nil
	}
	n, ok := record.ParseNumber(s)
	if !ok {
		return 0, ErrNotANumber
	}
	return n, nil
}

// FormatPhone оставляет только цифры и расставляет дефисы по мере ввода:
// NNN, NNN-NNNN, NNN-NNNN-NNNN (не больше 11 цифр).
func FormatPhone(raw string) string {
	digits := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)
	if len(digits) > 11 {
		digits = digits[:11]
	}
	switch {
	case len(digits) <= 3:
		return digits
	case len(digits) <= 7:
		return digits[:3] + "-" + digits[3:]
	default:
		return digits[:3] + "-" + digits[3:7] + "-" + digits[7:]
	}
}

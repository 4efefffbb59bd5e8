package dsl

import "strings"

// Системные поля есть у каждой сущности; клиент их никогда не отправляет.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

var SystemFields = []string{FieldID, FieldCreatedAt, FieldUpdatedAt}

// Типы полей
const (
	TypeString = "string"
	TypeNumber = "number"
	TypePhone  = "phone"
	TypeDate   = "date"
	TypeEnum   = "enum"
)

// Опции полей
const (
	OptRequired = "required"
	OptSearch   = "search"
	OptKey      = "key"
	OptDerived  = "derived"
)

const CoerceNumber = "number"

// Entity описывает структуру сущности из DSL
type Entity struct {
	Name        string
	Module      string
	Resource    string // сегмент пути REST: /api/{resource}
	ReadOnly    bool
	Fields      []Field
	Constraints Constraints
}

// Field описывает поле сущности
type Field struct {
	Name    string
	Type    string            // string, number, phone, date, enum
	Enum    []string          // значения enum, если поле типа enum
	Options map[string]string // required, search, key, derived
}

// Constraints: межполевые ограничения сущности.
type Constraints struct {
	// пары полей: a > 0 тогда и только тогда, когда b > 0
	PositiveTogether [][2]string
}

// Pair: одна строка таблицы соответствия source -> target.
type Pair struct {
	From   string
	To     string
	Coerce string // "" | "number"
}

// Mapping: таблица соответствия полей для пары (источник, приёмник).
type Mapping struct {
	Source string
	Target string
	Pairs  []Pair
}

func (f Field) flag(name string) bool {
	return f.Options != nil && strings.EqualFold(f.Options[name], "true")
}

func (f Field) IsRequired() bool { return f.flag(OptRequired) }
func (f Field) IsSearch() bool   { return f.flag(OptSearch) }
func (f Field) IsKey() bool      { return f.flag(OptKey) }
func (f Field) IsDerived() bool  { return f.flag(OptDerived) }

func IsSystemField(name string) bool {
	for _, s := range SystemFields {
		if s == name {
			return true
		}
	}
	return false
}

func (e *Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Has сообщает, знает ли сущность поле (включая системные).
func (e *Entity) Has(name string) bool {
	if IsSystemField(name) {
		return true
	}
	_, ok := e.Field(name)
	return ok
}

func (e *Entity) fieldsWhere(pred func(Field) bool) []string {
	var out []string
	for _, f := range e.Fields {
		if pred(f) {
			out = append(out, f.Name)
		}
	}
	return out
}

// Required: обязательные поля в порядке объявления.
func (e *Entity) Required() []string {
	return e.fieldsWhere(Field.IsRequired)
}

// SearchFields: поля, по которым работает поиск в модалке выбора.
func (e *Entity) SearchFields() []string {
	return e.fieldsWhere(Field.IsSearch)
}

// NumericFields: поля, которые отображаются с разделителями разрядов и отправляются числом.
func (e *Entity) NumericFields() []string {
	return e.fieldsWhere(func(f Field) bool { return f.Type == TypeNumber })
}

// KeyField возвращает человекочитаемый идентификатор (например, shipmentId).
// Если key не объявлен — первое search-поле, затем id.
func (e *Entity) KeyField() string {
	for _, f := range e.Fields {
		if f.IsKey() {
			return f.Name
		}
	}
	if s := e.SearchFields(); len(s) > 0 {
		return s[0]
	}
	return FieldID
}

func (e *Entity) IsNumeric(name string) bool {
	f, ok := e.Field(name)
	return ok && f.Type == TypeNumber
}

func (e *Entity) IsPhone(name string) bool {
	f, ok := e.Field(name)
	return ok && f.Type == TypePhone
}

// Submittable: можно ли отправлять поле в POST/PATCH.
func (e *Entity) Submittable(name string) bool {
	if IsSystemField(name) {
		return false
	}
	f, ok := e.Field(name)
	if !ok {
		return false
	}
	return !f.IsDerived()
}

func (m Mapping) Targets() []string {
	out := make([]string, 0, len(m.Pairs))
	for _, p := range m.Pairs {
		out = append(out, p.To)
	}
	return out
}

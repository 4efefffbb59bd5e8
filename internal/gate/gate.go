// Package gate checks a merged draft right before a create/update call.
package gate

import (
	"fmt"
	"math"
	"strings"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
	"github.com/minhahamin/mes-fe-sub000/internal/record"
)

// Коды нарушений
const (
	CodeRequired         = "required"
	CodePositiveTogether = "positive_together"
)

type Violation struct {
	Code    string   `json:"code"`
	Fields  []string `json:"fields"`
	Message string   `json:"message"`
}

// Rule — межполевое правило поверх проверки обязательных полей.
type Rule interface {
	Check(draft record.Record) *Violation
}

type Result struct {
	OK            bool
	MissingFields []string
	Violations    []Violation
}

// ValidationError — то, что показывается пользователю одним сообщением.
type ValidationError struct {
	MissingFields []string
	Violations    []Violation
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.MissingFields) > 0 {
		parts = append(parts, "필수 항목을 입력해주세요: "+strings.Join(e.MissingFields, ", "))
	}
	for _, v := range e.Violations {
		parts = append(parts, v.Message)
	}
	return strings.Join(parts, "\n")
}

// Err возвращает nil для успешного результата.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return &ValidationError{MissingFields: r.MissingFields, Violations: r.Violations}
}

// Missing — пусто ли значение: отсутствует, nil, "", false или NaN. Ноль — валидное значение.
func Missing(draft record.Record, name string) bool {
	v, ok := draft[name]
	if !ok || v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return math.IsNaN(t)
	}
	return false
}

// Validate проверяет наличие обязательных полей и затем правила.
func Validate(draft record.Record, required []string, rules ...Rule) Result {
	res := Result{}
	for _, name := range required {
		if Missing(draft, name) {
			res.MissingFields = append(res.MissingFields, name)
		}
	}
	for _, rule := range rules {
		if v := rule.Check(draft); v != nil {
			res.Violations = append(res.Violations, *v)
		}
	}
	res.OK = len(res.MissingFields) == 0 && len(res.Violations) == 0
	return res
}

type positiveTogether struct {
	a, b string
}

// PositiveTogether: если a > 0, то и b > 0, и наоборот.
func PositiveTogether(a, b string) Rule {
	return positiveTogether{a: a, b: b}
}

func (p positiveTogether) Check(draft record.Record) *Violation {
	av := record.Number(numeric(draft[p.a])) > 0
	bv := record.Number(numeric(draft[p.b])) > 0
	if av == bv {
		return nil
	}
	return &Violation{
		Code:    CodePositiveTogether,
		Fields:  []string{p.a, p.b},
		Message: fmt.Sprintf("%s 와(과) %s 는 모두 0보다 커야 합니다", p.a, p.b),
	}
}

// numeric снимает разделители разрядов со строкового значения.
func numeric(v any) any {
	if s, ok := v.(string); ok {
		return record.StripSeparators(s)
	}
	return v
}

// Gate — обязательные поля и правила одной сущности.
type Gate struct {
	Required []string
	Rules    []Rule
}

// ForEntity собирает проверку из каталога.
func ForEntity(e *dsl.Entity) Gate {
	g := Gate{Required: e.Required()}
	for _, pt := range e.Constraints.PositiveTogether {
		g.Rules = append(g.Rules, PositiveTogether(pt[0], pt[1]))
	}
	return g
}

func (g Gate) Validate(draft record.Record) Result {
	return Validate(draft, g.Required, g.Rules...)
}

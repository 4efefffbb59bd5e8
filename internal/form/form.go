// Package form holds the in-progress entity of an open create/edit form and
// drives it through validation and submission.
package form

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/minhahamin/mes-fe-sub000/internal/binder"
	"github.com/minhahamin/mes-fe-sub000/internal/client"
	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
	"github.com/minhahamin/mes-fe-sub000/internal/gate"
	"github.com/minhahamin/mes-fe-sub000/internal/record"
)

// GenericFailure — сообщение для неожиданных ошибок во время сохранения.
const GenericFailure = "작업 중 오류가 발생했습니다"

var (
	ErrNotOpen       = errors.New("form is not open")
	ErrAlreadyOpen   = errors.New("form is already open")
	ErrWrongMapping  = errors.New("mapping does not target this form")
	ErrMissingRecord = errors.New("record has no id")
)

type State int

const (
	Closed State = iota
	Open
	Validating
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Validating:
		return "validating"
	default:
		return "closed"
	}
}

type Mode int

const (
	ModeCreate Mode = iota
	ModeEdit
)

// Mutator — create/update на стороне API.
type Mutator interface {
	Create(ctx context.Context, e *dsl.Entity, body record.Record) (record.Record, error)
	Update(ctx context.Context, e *dsl.Entity, id string, body record.Record) (record.Record, error)
}

// OperationError — неожиданная ошибка при сохранении; пользователю показывается общий текст.
type OperationError struct {
	Cause error
}

func (e *OperationError) Error() string { return GenericFailure }
func (e *OperationError) Unwrap() error { return e.Cause }

// Form — один экземпляр модальной формы.
type Form struct {
	entity *dsl.Entity
	gate   gate.Gate
	log    zerolog.Logger

	state  State
	mode   Mode
	editID string
	draft  Draft
}

type Option func(*Form)

func WithLogger(l zerolog.Logger) Option {
	return func(f *Form) {
		f.log = l
	}
}

// WithGate заменяет проверку, собранную из каталога.
func WithGate(g gate.Gate) Option {
	return func(f *Form) {
		f.gate = g
	}
}

func New(e *dsl.Entity, opts ...Option) *Form {
	f := &Form{
		entity: e,
		gate:   gate.ForEntity(e),
		log:    log.Logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Form) Entity() *dsl.Entity { return f.entity }
func (f *Form) State() State        { return f.state }
func (f *Form) Mode() Mode          { return f.mode }
func (f *Form) EditID() string      { return f.editID }
func (f *Form) Draft() Draft        { return f.draft }

// OpenCreate: Closed → Open с пустым черновиком.
func (f *Form) OpenCreate() error {
	if f.state != Closed {
		return ErrAlreadyOpen
	}
	f.mode = ModeCreate
	f.editID = ""
	f.draft = NewDraft(f.entity)
	f.state = Open
	return nil
}

// OpenEdit: Closed → Open сразу с загруженной записью.
func (f *Form) OpenEdit(rec record.Record) error {
	if f.state != Closed {
		return ErrAlreadyOpen
	}
	id := rec.ID()
	if id == "" {
		return ErrMissingRecord
	}
	f.mode = ModeEdit
	f.editID = id
	f.draft = DraftOf(f.entity, rec)
	f.state = Open
	return nil
}

// Set — ввод пользователя в одно поле.
func (f *Form) Set(name, raw string) error {
	if f.state != Open {
		return ErrNotOpen
	}
	d, err := f.draft.SetField(name, raw)
	if err != nil {
		return err
	}
	f.draft = d
	return nil
}

// Apply сливает патч в черновик (патч побеждает).
func (f *Form) Apply(patch record.Record) error {
	if f.state != Open {
		return ErrNotOpen
	}
	f.draft = f.draft.ApplyPatch(patch)
	return nil
}

// Bind — выбор записи в модалке поиска: поля по таблице соответствия
// перезаписывают черновик.
func (f *Form) Bind(selected record.Record, m dsl.Mapping) error {
	if !strings.EqualFold(m.Target, f.entity.Name) {
		return errors.Wrapf(ErrWrongMapping, "%s -> %s into %s", m.Source, m.Target, f.entity.Name)
	}
	return f.Apply(binder.Patch(selected, m))
}

// Close отбрасывает черновик без вопросов.
func (f *Form) Close() {
	f.state = Closed
	f.draft = Draft{}
	f.editID = ""
}

// Submit: Open → Validating → Closed при успехе; при ошибке форма
// возвращается в Open, черновик сохраняется.
func (f *Form) Submit(ctx context.Context, m Mutator) (record.Record, error) {
	if f.state != Open {
		return nil, ErrNotOpen
	}
	f.state = Validating

	if err := f.gate.Validate(f.draft.Values()).Err(); err != nil {
		f.state = Open
		f.log.Warn().Str("entity", f.entity.Name).Err(err).Msg("submission rejected")
		return nil, err
	}

	body := f.draft.ToSubmission()
	var (
		saved record.Record
		err   error
	)
	if f.mode == ModeEdit {
		saved, err = m.Update(ctx, f.entity, f.editID, body)
	} else {
		saved, err = m.Create(ctx, f.entity, body)
	}
	if err != nil {
		f.state = Open
		f.log.Error().Str("entity", f.entity.Name).Err(err).Msg("submission failed")
		var apiErr *client.Error
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, &OperationError{Cause: err}
	}

	f.log.Info().Str("entity", f.entity.Name).Str("id", saved.ID()).Msg("saved")
	f.Close()
	return saved, nil
}

package desk

import (
	"context"

	"github.com/pkg/errors"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
)

var ErrForbidden = errors.New("not allowed")

type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

// AuthGate решает, можно ли выполнить действие над сущностью.
type AuthGate interface {
	Authorize(ctx context.Context, a Action, e *dsl.Entity) error
}

// AllowAll пропускает всё.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, Action, *dsl.Entity) error { return nil }

// ReadOnlyGate запрещает запись; используется для просмотра справочников.
type ReadOnlyGate struct{}

func (ReadOnlyGate) Authorize(_ context.Context, a Action, e *dsl.Entity) error {
	if a == ActionWrite {
		return errors.Wrapf(ErrForbidden, "%s %s", a, e.Name)
	}
	return nil
}

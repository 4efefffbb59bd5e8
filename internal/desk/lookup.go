// Package desk wires the reference-resolution flow together: a page owns the
// main table and its forms, a lookup loads another entity's collection for
// picking a record into the open form.
package desk

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
	"github.com/minhahamin/mes-fe-sub000/internal/filter"
	"github.com/minhahamin/mes-fe-sub000/internal/record"
)

var (
	ErrClosed   = errors.New("lookup is closed")
	ErrNoRow    = errors.New("no such row")
	ErrNotFound = errors.New("record not found")
)

// Fetcher загружает всю коллекцию сущности.
type Fetcher interface {
	ListAll(ctx context.Context, e *dsl.Entity) ([]record.Record, error)
}

// Lookup — модалка поиска по другой сущности. Список живёт только между
// Open и Close; поздний ответ закрытой модалки отбрасывается.
type Lookup struct {
	source *dsl.Entity
	fetch  Fetcher
	log    zerolog.Logger

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	open    bool
	all     []record.Record
	query   string
	results []record.Record
}

func NewLookup(source *dsl.Entity, f Fetcher) *Lookup {
	return &Lookup{source: source, fetch: f, log: log.Logger}
}

func (l *Lookup) Source() *dsl.Entity { return l.source }

func (l *Lookup) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

// Open загружает коллекцию (один запрос на открытие). Повторный Open
// отменяет предыдущую загрузку.
func (l *Lookup) Open(ctx context.Context) error {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.gen++
	gen := l.gen
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.open = true
	l.all, l.results, l.query = nil, nil, ""
	l.mu.Unlock()

	recs, err := l.fetch.ListAll(ctx, l.source)

	cancel()

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen || !l.open {
		l.log.Debug().Str("source", l.source.Name).Msg("late lookup result dropped")
		return ErrClosed
	}
	l.cancel = nil
	if err != nil {
		l.log.Error().Err(err).Str("source", l.source.Name).Msg("lookup load failed")
		return err
	}
	l.all = recs
	l.results = recs
	return nil
}

// Search сужает список; пустой запрос возвращает всё.
func (l *Lookup) Search(q string) []record.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return nil
	}
	l.query = q
	l.results = filter.ForEntity(l.all, q, l.source)
	return l.results
}

func (l *Lookup) Results() []record.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.results
}

func (l *Lookup) Query() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.query
}

// Select берёт i-ю строку текущей выдачи и закрывает модалку.
func (l *Lookup) Select(i int) (record.Record, error) {
	l.mu.Lock()
	if !l.open {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	if i < 0 || i >= len(l.results) {
		l.mu.Unlock()
		return nil, errors.Wrapf(ErrNoRow, "%d of %d", i, len(l.results))
	}
	rec := l.results[i].Clone()
	l.mu.Unlock()

	l.Close()
	return rec, nil
}

// Find ищет запись по ключевому полю (без учёта регистра) или по id
// и закрывает модалку.
func (l *Lookup) Find(key string) (record.Record, error) {
	l.mu.Lock()
	if !l.open {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	keyField := l.source.KeyField()
	rec, ok := lo.Find(l.all, func(r record.Record) bool {
		if keyField != "" && strings.EqualFold(record.String(r[keyField]), key) {
			return true
		}
		return r.ID() == key
	})
	l.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s %q", l.source.Name, key)
	}

	l.Close()
	return rec.Clone(), nil
}

// Close отменяет загрузку и выбрасывает список.
func (l *Lookup) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.gen++
	l.open = false
	l.all, l.results, l.query = nil, nil, ""
}

package desk

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
	"github.com/minhahamin/mes-fe-sub000/internal/filter"
	"github.com/minhahamin/mes-fe-sub000/internal/form"
	"github.com/minhahamin/mes-fe-sub000/internal/record"
)

var ErrNoMapping = errors.New("no mapping between entities")

// API — всё, что странице нужно от бэкенда.
type API interface {
	Fetcher
	form.Mutator
	Get(ctx context.Context, e *dsl.Entity, id string) (record.Record, error)
	Delete(ctx context.Context, e *dsl.Entity, id string) error
}

// Page — экран списка одной сущности: таблица, формы и модалки поиска.
type Page struct {
	catalog *dsl.Catalog
	entity  *dsl.Entity
	api     API
	auth    AuthGate
	log     zerolog.Logger

	mu     sync.RWMutex
	rows   []record.Record
	loaded bool
}

type PageOption func(*Page)

func WithAuth(g AuthGate) PageOption {
	return func(p *Page) {
		p.auth = g
	}
}

func WithPageLogger(l zerolog.Logger) PageOption {
	return func(p *Page) {
		p.log = l
	}
}

func NewPage(cat *dsl.Catalog, e *dsl.Entity, api API, opts ...PageOption) *Page {
	p := &Page{
		catalog: cat,
		entity:  e,
		api:     api,
		auth:    AllowAll{},
		log:     log.Logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With().Str("page", e.Name).Logger()
	return p
}

func (p *Page) Entity() *dsl.Entity { return p.entity }

// Refresh перечитывает таблицу. При ошибке таблица пустеет.
func (p *Page) Refresh(ctx context.Context) error {
	if err := p.auth.Authorize(ctx, ActionRead, p.entity); err != nil {
		return err
	}
	recs, err := p.api.ListAll(ctx, p.entity)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.rows, p.loaded = nil, false
		p.log.Error().Err(err).Msg("refresh failed")
		return err
	}
	p.rows, p.loaded = recs, true
	p.log.Debug().Int("rows", len(recs)).Msg("refreshed")
	return nil
}

// Rows — строки таблицы, отфильтрованные по search-полям.
func (p *Page) Rows(query string) []record.Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return filter.ForEntity(p.rows, query, p.entity)
}

func (p *Page) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded
}

func (p *Page) NewForm() (*form.Form, error) {
	if err := p.auth.Authorize(context.Background(), ActionWrite, p.entity); err != nil {
		return nil, err
	}
	f := form.New(p.entity, form.WithLogger(p.log))
	if err := f.OpenCreate(); err != nil {
		return nil, err
	}
	return f, nil
}

// EditForm загружает запись и открывает форму редактирования.
func (p *Page) EditForm(ctx context.Context, id string) (*form.Form, error) {
	if err := p.auth.Authorize(ctx, ActionWrite, p.entity); err != nil {
		return nil, err
	}
	rec, err := p.api.Get(ctx, p.entity, id)
	if err != nil {
		return nil, err
	}
	if rec.ID() == "" {
		rec = rec.Merge(record.Record{dsl.FieldID: id})
	}
	f := form.New(p.entity, form.WithLogger(p.log))
	if err := f.OpenEdit(rec); err != nil {
		return nil, err
	}
	return f, nil
}

// Lookup — модалка поиска по сущности, у которой есть mapping в эту страницу.
func (p *Page) Lookup(source string) (*Lookup, error) {
	m, err := p.mapping(source)
	if err != nil {
		return nil, err
	}
	src, _ := p.catalog.Entity(m.Source)
	return NewLookup(src, p.api), nil
}

// Sources — сущности, из которых можно выбирать записи в эту форму.
func (p *Page) Sources() []string {
	out := []string{}
	for _, m := range p.catalog.MappingsInto(p.entity.Name) {
		out = append(out, m.Source)
	}
	return out
}

// Pick переносит выбранную запись в открытую форму.
func (p *Page) Pick(f *form.Form, source string, selected record.Record) error {
	m, err := p.mapping(source)
	if err != nil {
		return err
	}
	return f.Bind(selected, m)
}

// Submit сохраняет форму и перечитывает таблицу.
func (p *Page) Submit(ctx context.Context, f *form.Form) (record.Record, error) {
	if err := p.auth.Authorize(ctx, ActionWrite, p.entity); err != nil {
		return nil, err
	}
	saved, err := f.Submit(ctx, p.api)
	if err != nil {
		return nil, err
	}
	if err := p.Refresh(ctx); err != nil {
		p.log.Warn().Err(err).Msg("refresh after save failed")
	}
	return saved, nil
}

func (p *Page) Delete(ctx context.Context, id string) error {
	if err := p.auth.Authorize(ctx, ActionWrite, p.entity); err != nil {
		return err
	}
	if err := p.api.Delete(ctx, p.entity, id); err != nil {
		p.log.Error().Err(err).Str("id", id).Msg("delete failed")
		return err
	}
	if err := p.Refresh(ctx); err != nil {
		p.log.Warn().Err(err).Msg("refresh after delete failed")
	}
	return nil
}

// Preload открывает несколько модалок параллельно; первая ошибка отменяет остальные.
func (p *Page) Preload(ctx context.Context, sources ...string) (map[string]*Lookup, error) {
	lookups := make(map[string]*Lookup, len(sources))
	for _, s := range sources {
		l, err := p.Lookup(s)
		if err != nil {
			return nil, err
		}
		lookups[l.Source().Name] = l
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range lookups {
		g.Go(func() error {
			return errors.Wrap(l.Open(gctx), l.Source().Name)
		})
	}
	if err := g.Wait(); err != nil {
		for _, l := range lookups {
			l.Close()
		}
		return nil, err
	}
	return lookups, nil
}

func (p *Page) mapping(source string) (dsl.Mapping, error) {
	src, ok := p.catalog.Resolve(source)
	if !ok {
		return dsl.Mapping{}, errors.Wrapf(ErrNoMapping, "unknown entity %q", source)
	}
	m, ok := p.catalog.Mapping(src.Name, p.entity.Name)
	if !ok {
		return dsl.Mapping{}, errors.Wrapf(ErrNoMapping, "%s -> %s", src.Name, p.entity.Name)
	}
	return m, nil
}

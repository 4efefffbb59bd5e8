package api

import (
	"context"
	"io"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
)

var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrVersionMismatch = errors.New("version mismatch")
)

// Stored — запись в хранилище: служебные поля отдельно от данных.
type Stored struct {
	ID        string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	Data      map[string]any
}

// Store — хранилище записей по ресурсам. expect == 0 в Update/Delete
// означает «без проверки версии».
type Store interface {
	List(ctx context.Context, resource string) ([]*Stored, error)
	Get(ctx context.Context, resource, id string) (*Stored, error)
	Create(ctx context.Context, resource string, data map[string]any) (*Stored, error)
	Update(ctx context.Context, resource, id string, data map[string]any, expect int64) (*Stored, error)
	Delete(ctx context.Context, resource, id string, expect int64) error
}

type MemoryStore struct {
	mu      sync.RWMutex
	data    map[string]map[string]*Stored // resource -> id -> запись
	entropy io.Reader
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &MemoryStore{
		data:    make(map[string]map[string]*Stored),
		entropy: ulid.Monotonic(src, 0),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// newID вызывается под write-lock: Monotonic entropy не потокобезопасен.
func (s *MemoryStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

// List отдаёт записи в порядке создания (ULID сортируется по времени).
func (s *MemoryStore) List(_ context.Context, resource string) ([]*Stored, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Stored, 0, len(s.data[resource]))
	for _, r := range s.data[resource] {
		out = append(out, r.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, resource, id string) (*Stored, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.data[resource][id]
	if r == nil {
		return nil, errors.Wrapf(ErrRecordNotFound, "%s/%s", resource, id)
	}
	return r.clone(), nil
}

func (s *MemoryStore) Create(_ context.Context, resource string, data map[string]any) (*Stored, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[resource] == nil {
		s.data[resource] = make(map[string]*Stored)
	}
	now := s.now()
	r := &Stored{
		ID:        s.newID(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		Data:      copyData(data),
	}
	s.data[resource][r.ID] = r
	return r.clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, resource, id string, data map[string]any, expect int64) (*Stored, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.data[resource][id]
	if r == nil {
		return nil, errors.Wrapf(ErrRecordNotFound, "%s/%s", resource, id)
	}
	if expect != 0 && r.Version != expect {
		return nil, errors.Wrapf(ErrVersionMismatch, "expected %d, current %d", expect, r.Version)
	}
	r.Data = copyData(data)
	r.Version++
	r.UpdatedAt = s.now()
	return r.clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, resource, id string, expect int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.data[resource][id]
	if r == nil {
		return errors.Wrapf(ErrRecordNotFound, "%s/%s", resource, id)
	}
	if expect != 0 && r.Version != expect {
		return errors.Wrapf(ErrVersionMismatch, "expected %d, current %d", expect, r.Version)
	}
	delete(s.data[resource], id)
	return nil
}

func (r *Stored) clone() *Stored {
	cp := *r
	cp.Data = copyData(r.Data)
	return &cp
}

func copyData(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

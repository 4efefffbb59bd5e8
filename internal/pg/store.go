package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"

	"github.com/minhahamin/mes-fe-sub000/internal/api"
	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
)

var ErrUnknownResource = errors.New("unknown resource")

// Store — api.Store поверх таблицы records.
type Store struct {
	db  *sql.DB
	cat *dsl.Catalog

	mu      sync.Mutex
	entropy io.Reader
}

var _ api.Store = (*Store)(nil)

func NewStore(db *sql.DB, cat *dsl.Catalog) *Store {
	return &Store{
		db:      db,
		cat:     cat,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Migrate применяет DDL каталога.
func (s *Store) Migrate(ctx context.Context) error {
	return ApplyDDL(ctx, s.db, GenerateDDL(s.cat))
}

func (s *Store) newID(now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
}

func (s *Store) table(resource string) (string, error) {
	e, ok := s.cat.ByResource(resource)
	if !ok {
		return "", errors.Wrap(ErrUnknownResource, resource)
	}
	return tableFor(e), nil
}

const columns = `id, version, created_at, updated_at, data`

type scanner interface {
	Scan(dest ...any) error
}

func scanStored(row scanner) (*api.Stored, error) {
	var (
		r   api.Stored
		raw []byte
	)
	if err := row.Scan(&r.ID, &r.Version, &r.CreatedAt, &r.UpdatedAt, &raw); err != nil {
		return nil, err
	}
	r.Data = map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &r.Data); err != nil {
			return nil, errors.Wrap(err, "decode data")
		}
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

func (s *Store) List(ctx context.Context, resource string) ([]*api.Stored, error) {
	tbl, err := s.table(resource)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`select `+columns+` from `+tbl+` where resource = $1 order by id`, resource)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", resource)
	}
	defer rows.Close()

	out := []*api.Stored{}
	for rows.Next() {
		r, err := scanStored(rows)
		if err != nil {
			return nil, errors.Wrapf(err, "scan %s", resource)
		}
		out = append(out, r)
	}
	return out, errors.Wrapf(rows.Err(), "list %s", resource)
}

func (s *Store) Get(ctx context.Context, resource, id string) (*api.Stored, error) {
	tbl, err := s.table(resource)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`select `+columns+` from `+tbl+` where resource = $1 and id = $2`, resource, id)
	r, err := scanStored(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(api.ErrRecordNotFound, "%s/%s", resource, id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s/%s", resource, id)
	}
	return r, nil
}

func (s *Store) Create(ctx context.Context, resource string, data map[string]any) (*api.Stored, error) {
	tbl, err := s.table(resource)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "encode data")
	}
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx,
		`insert into `+tbl+` (resource, id, version, created_at, updated_at, data)
		 values ($1, $2, 1, $3, $3, $4::jsonb)
		 returning `+columns,
		resource, s.newID(now), now, string(payload))
	r, err := scanStored(row)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", resource)
	}
	return r, nil
}

func (s *Store) Update(ctx context.Context, resource, id string, data map[string]any, expect int64) (*api.Stored, error) {
	tbl, err := s.table(resource)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "encode data")
	}
	row := s.db.QueryRowContext(ctx,
		`update `+tbl+`
		    set data = $3::jsonb, version = version + 1, updated_at = $4
		  where resource = $1 and id = $2 and ($5::bigint = 0 or version = $5::bigint)
		  returning `+columns,
		resource, id, string(payload), time.Now().UTC(), expect)
	r, err := scanStored(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missOrConflict(ctx, resource, id, expect)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "update %s/%s", resource, id)
	}
	return r, nil
}

func (s *Store) Delete(ctx context.Context, resource, id string, expect int64) error {
	tbl, err := s.table(resource)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`delete from `+tbl+` where resource = $1 and id = $2 and ($3::bigint = 0 or version = $3::bigint)`,
		resource, id, expect)
	if err != nil {
		return errors.Wrapf(err, "delete %s/%s", resource, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "delete %s/%s", resource, id)
	}
	if n == 0 {
		return s.missOrConflict(ctx, resource, id, expect)
	}
	return nil
}

// missOrConflict различает «записи нет» и «версия не совпала».
func (s *Store) missOrConflict(ctx context.Context, resource, id string, expect int64) error {
	cur, err := s.Get(ctx, resource, id)
	if err != nil {
		return err
	}
	return errors.Wrapf(api.ErrVersionMismatch, "expected %d, current %d", expect, cur.Version)
}

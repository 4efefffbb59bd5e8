package seed

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/minhahamin/mes-fe-sub000/internal/api"
	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
	"github.com/minhahamin/mes-fe-sub000/internal/record"
)

// Load читает все *.yaml/*.yml из dir. Ресурс — из поля resource или из имени файла.
func Load(dir string) ([]Fixture, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read seed dir %s", dir)
	}
	var out []Fixture
	for _, entry := range entries {
		name := entry.Name()
		ext := filepath.Ext(name)
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}
		var fx Fixture
		if err := yaml.Unmarshal(data, &fx); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
		if fx.Resource == "" {
			fx.Resource = strings.TrimSuffix(name, ext)
		}
		fx.Source = path
		out = append(out, fx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Resource < out[j].Resource })
	return out, nil
}

// Apply вставляет фикстуры в store. Ресурс, в котором уже есть записи,
// пропускается целиком, так что повторный запуск ничего не дублирует.
func Apply(ctx context.Context, store api.Store, cat *dsl.Catalog, fixtures []Fixture) (Report, error) {
	rep := Report{Inserted: map[string]int{}}
	for _, fx := range fixtures {
		e, ok := cat.Resolve(fx.Resource)
		if !ok {
			return rep, errors.Errorf("%s: unknown resource %q", fx.Source, fx.Resource)
		}
		existing, err := store.List(ctx, e.Resource)
		if err != nil {
			return rep, errors.Wrapf(err, "list %s", e.Resource)
		}
		if len(existing) > 0 {
			rep.Skipped = append(rep.Skipped, e.Resource)
			continue
		}

		for i, raw := range fx.Records {
			norm, err := normalize(raw)
			if err != nil {
				return rep, errors.Wrapf(err, "%s: record %d", fx.Source, i)
			}
			rec, err := record.Decode(e, norm)
			if err != nil {
				return rep, errors.Wrapf(err, "%s: record %d", fx.Source, i)
			}
			for _, sys := range dsl.SystemFields {
				delete(rec, sys)
			}
			if _, err := store.Create(ctx, e.Resource, rec); err != nil {
				return rep, errors.Wrapf(err, "%s: insert record %d", fx.Source, i)
			}
			rep.Inserted[e.Resource]++
		}
		log.Info().Str("resource", e.Resource).Int("records", rep.Inserted[e.Resource]).Msg("seeded")
	}
	return rep, nil
}

// LoadAndApply — Load + Apply для старта сервера.
func LoadAndApply(ctx context.Context, dir string, store api.Store, cat *dsl.Catalog) (Report, error) {
	fixtures, err := Load(dir)
	if err != nil {
		return Report{}, err
	}
	return Apply(ctx, store, cat, fixtures)
}

// normalize приводит значения YAML к форме JSON: целые → float64, даты → YYYY-MM-DD.
func normalize(raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case nil, string, bool, float64:
			out[k] = t
		case int:
			out[k] = float64(t)
		case int64:
			out[k] = float64(t)
		case uint64:
			out[k] = float64(t)
		case time.Time:
			if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
				out[k] = t.Format("2006-01-02")
			} else {
				out[k] = t.UTC().Format(time.RFC3339)
			}
		default:
			return nil, errors.Errorf("field %q: unsupported value %T", k, v)
		}
	}
	return out, nil
}

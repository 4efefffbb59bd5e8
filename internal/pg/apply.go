package pg

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ApplyDDL выполняет map[key]sql в порядке ключей. DDL должен быть
// идемпотентным (create ... if not exists).
func ApplyDDL(ctx context.Context, db *sql.DB, ddl map[string]string) error {
	keys := make([]string, 0, len(ddl))
	for k := range ddl {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		sqlText := strings.TrimSpace(ddl[k])
		if sqlText == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, sqlText); err != nil {
			// duplicate_object (42710) и duplicate_table (42P07) — уже есть
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && (pgErr.Code == "42710" || pgErr.Code == "42P07") {
				log.Debug().Str("step", k).Str("reason", strings.TrimSpace(pgErr.Message)).Msg("DDL skipped (already exists)")
				continue
			}
			return errors.Wrapf(err, "DDL apply failed at %s", k)
		}
		log.Debug().Str("step", k).Msg("DDL applied")
	}
	return nil
}

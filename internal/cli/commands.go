package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/minhahamin/mes-fe-sub000/internal/desk"
	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
	"github.com/minhahamin/mes-fe-sub000/internal/form"
	"github.com/minhahamin/mes-fe-sub000/internal/record"
)

var (
	ErrBadInput  = errors.New("bad input")
	ErrAmbiguous = errors.New("more than one record matches")
	ErrNoMatch   = errors.New("no record matches")
)

func (a *App) entitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "entities",
		Short: "List entities of the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := newTable(a.out)
			fmt.Fprintln(tw, "ENTITY\tRESOURCE\tKEY\tACCESS\tPICK FROM")
			for _, e := range a.catalog.Entities() {
				access := "rw"
				if e.ReadOnly {
					access = "ro"
				}
				sources := lo.Map(a.catalog.MappingsInto(e.Name), func(m dsl.Mapping, _ int) string { return m.Source })
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Name, e.Resource, e.KeyField(), access, strings.Join(sources, ","))
			}
			return tw.Flush()
		},
	}
}

func (a *App) listCmd() *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "list <entity>",
		Short: "Show the records of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.page(args[0])
			if err != nil {
				return err
			}
			if err := p.Refresh(cmd.Context()); err != nil {
				return err
			}
			rows := p.Rows(query)
			if err := writeRecords(a.out, p.Entity(), rows); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s건\n", formatNumber(float64(len(rows))))
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "case-insensitive substring over search fields")
	return cmd
}

func (a *App) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <entity> <id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.page(args[0])
			if err != nil {
				return err
			}
			rec, err := a.api.Get(cmd.Context(), p.Entity(), args[1])
			if err != nil {
				return err
			}
			return writeRecord(a.out, p.Entity(), rec)
		},
	}
}

// editFlags — ввод формы: --set поле=значение и --pick Источник=ключ / Источник~запрос.
type editFlags struct {
	sets  []string
	picks []string
}

func (f *editFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.sets, "set", nil, "field=value, repeatable")
	cmd.Flags().StringArrayVar(&f.picks, "pick", nil, "Source=key or Source~query, fills mapped fields from the picked record")
}

func (a *App) createCmd() *cobra.Command {
	var in editFlags
	cmd := &cobra.Command{
		Use:   "create <entity>",
		Short: "Create a record through the entity form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.page(args[0])
			if err != nil {
				return err
			}
			f, err := p.NewForm()
			if err != nil {
				return err
			}
			return a.fillAndSubmit(cmd.Context(), p, f, in)
		},
	}
	in.register(cmd)
	return cmd
}

func (a *App) updateCmd() *cobra.Command {
	var in editFlags
	cmd := &cobra.Command{
		Use:   "update <entity> <id>",
		Short: "Edit a record through the entity form",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.page(args[0])
			if err != nil {
				return err
			}
			f, err := p.EditForm(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			return a.fillAndSubmit(cmd.Context(), p, f, in)
		},
	}
	in.register(cmd)
	return cmd
}

func (a *App) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <entity> <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.page(args[0])
			if err != nil {
				return err
			}
			if err := p.Delete(cmd.Context(), args[1]); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "삭제되었습니다")
			return nil
		},
	}
}

func (a *App) lookupCmd() *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "lookup <entity> <source>",
		Short: "Search the records that can be picked into an entity form",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.page(args[0])
			if err != nil {
				return err
			}
			l, err := p.Lookup(args[1])
			if err != nil {
				return err
			}
			defer l.Close()
			if err := l.Open(cmd.Context()); err != nil {
				return err
			}
			return writeRecords(a.out, l.Source(), l.Search(query))
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "case-insensitive substring over search fields")
	return cmd
}

// fillAndSubmit: сначала выборы из модалок, потом ручной ввод, затем отправка.
func (a *App) fillAndSubmit(ctx context.Context, p *desk.Page, f *form.Form, in editFlags) error {
	for _, raw := range in.picks {
		source, rec, err := a.pick(ctx, p, raw)
		if err != nil {
			return err
		}
		if err := p.Pick(f, source, rec); err != nil {
			return err
		}
	}
	for _, raw := range in.sets {
		name, value, ok := strings.Cut(raw, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return errors.Wrapf(ErrBadInput, "--set %q: want field=value", raw)
		}
		name = strings.TrimSpace(name)
		prev := f.Draft().Get(name)
		if err := f.Set(name, value); err != nil {
			return errors.Wrapf(err, "--set %s", name)
		}
		if old, ok := prev.Get(); ok {
			a.log.Debug().
				Str("field", name).
				Interface("was", old).
				Interface("now", f.Draft().Get(name).OrEmpty()).
				Msg("field overwritten")
		}
	}

	saved, err := p.Submit(ctx, f)
	if err != nil {
		return err
	}
	return writeRecord(a.out, p.Entity(), saved)
}

// pick разбирает "Источник=ключ" (точное совпадение ключа или id)
// и "Источник~запрос" (поиск, должен найти ровно одну запись).
func (a *App) pick(ctx context.Context, p *desk.Page, raw string) (string, record.Record, error) {
	i := strings.IndexAny(raw, "=~")
	if i <= 0 {
		return "", nil, errors.Wrapf(ErrBadInput, "--pick %q: want Source=key or Source~query", raw)
	}
	source, op, arg := raw[:i], raw[i], raw[i+1:]

	l, err := p.Lookup(source)
	if err != nil {
		return "", nil, err
	}
	defer l.Close()
	if err := l.Open(ctx); err != nil {
		return "", nil, err
	}

	if op == '=' {
		rec, err := l.Find(arg)
		return source, rec, err
	}

	found := l.Search(arg)
	switch len(found) {
	case 0:
		return "", nil, errors.Wrapf(ErrNoMatch, "%s ~ %q", source, arg)
	case 1:
		rec, err := l.Select(0)
		return source, rec, err
	default:
		key := l.Source().KeyField()
		keys := lo.Map(found, func(r record.Record, _ int) string {
			if key != "" {
				return record.String(r[key])
			}
			return r.ID()
		})
		return "", nil, errors.Wrapf(ErrAmbiguous, "%s ~ %q: %s", source, arg, strings.Join(keys, ", "))
	}
}

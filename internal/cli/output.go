package cli

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
	"github.com/minhahamin/mes-fe-sub000/internal/record"
)

var printer = message.NewPrinter(language.Korean)

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
}

// formatNumber: 1200 → "1,200", дробные — два знака.
func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return printer.Sprintf("%d", int64(f))
	}
	return printer.Sprintf("%.2f", f)
}

func formatValue(e *dsl.Entity, name string, v any) string {
	if n, ok := v.(float64); ok && e.IsNumeric(name) {
		return formatNumber(n)
	}
	s := record.String(v)
	// табуляция и перевод строки ломают таблицу
	return strings.NewReplacer("\t", " ", "\n", " ").Replace(s)
}

func columns(e *dsl.Entity) []string {
	cols := make([]string, 0, len(e.Fields)+1)
	cols = append(cols, dsl.FieldID)
	for _, f := range e.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

func writeRecords(out io.Writer, e *dsl.Entity, rows []record.Record) error {
	cols := columns(e)
	tw := newTable(out)
	fmt.Fprintln(tw, strings.Join(cols, "\t"))
	for _, r := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = formatValue(e, c, r[c])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

// writeRecord — одна запись «поле: значение», системные поля в конце.
func writeRecord(out io.Writer, e *dsl.Entity, rec record.Record) error {
	tw := newTable(out)
	for _, f := range e.Fields {
		fmt.Fprintf(tw, "%s\t%s\n", f.Name, formatValue(e, f.Name, rec[f.Name]))
	}
	for _, name := range dsl.SystemFields {
		if v, ok := rec[name]; ok {
			fmt.Fprintf(tw, "%s\t%s\n", name, formatValue(e, name, v))
		}
	}
	return tw.Flush()
}

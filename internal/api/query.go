package api

import (
	"cmp"
	"net/url"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
	"github.com/minhahamin/mes-fe-sub000/internal/record"
)

type SortKey struct {
	Field string
	Desc  bool
}

type ListParams struct {
	Sort  []SortKey
	Q     string
	Nulls string // "last" (default) | "first"
}

// parseListParams: ?q=строка&_sort=-orderDate,customerName&nulls=first
func parseListParams(q url.Values) ListParams {
	var sortKeys []SortKey
	sv := strings.TrimSpace(q.Get("_sort"))
	if sv == "" {
		sv = strings.TrimSpace(q.Get("sort"))
	}
	for _, p := range strings.Split(sv, ",") {
		p = strings.TrimSpace(p)
		desc := false
		if strings.HasPrefix(p, "-") {
			desc = true
			p = strings.TrimPrefix(p, "-")
		} else {
			p = strings.TrimPrefix(p, "+")
		}
		if p != "" {
			sortKeys = append(sortKeys, SortKey{Field: p, Desc: desc})
		}
	}

	nulls := strings.ToLower(strings.TrimSpace(q.Get("nulls")))
	if nulls != "first" {
		nulls = "last"
	}

	return ListParams{
		Sort:  sortKeys,
		Q:     q.Get("q"),
		Nulls: nulls,
	}
}

func isNull(v any, ok bool) bool { return !ok || v == nil || v == "" }

// cmpByKey: number-поля сущности сравниваются как числа (в том числе "1,200"),
// остальное сравнивается строкой.
func cmpByKey(e *dsl.Entity, a, b record.Record, key, nullsPolicy string, desc bool) int {
	va, oka := a[key]
	vb, okb := b[key]

	na := isNull(va, oka)
	nb := isNull(vb, okb)
	if na && nb {
		return 0
	}
	if na != nb {
		if (nullsPolicy == "last") == na {
			return +1
		}
		return -1
	}

	var rel int
	if e.IsNumeric(key) {
		rel = cmp.Compare(asNumber(va), asNumber(vb))
	} else {
		rel = strings.Compare(record.String(va), record.String(vb))
	}
	if desc {
		rel = -rel
	}
	return rel
}

func asNumber(v any) float64 {
	if s, ok := v.(string); ok {
		return record.Number(record.StripSeparators(s))
	}
	return record.Number(v)
}

// sortRecordsMulti сортирует по ключам слева направо; незнакомые сущности поля пропускаются.
func sortRecordsMulti(e *dsl.Entity, records []record.Record, keys []SortKey, nullsPolicy string) {
	keys = lo.Filter(keys, func(k SortKey, _ int) bool { return e.Has(k.Field) })
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, k := range keys {
			if c := cmpByKey(e, records[i], records[j], k.Field, nullsPolicy, k.Desc); c != 0 {
				return c < 0
			}
		}
		return false
	})
}

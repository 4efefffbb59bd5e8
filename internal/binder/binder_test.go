package binder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
	"github.com/minhahamin/mes-fe-sub000/internal/record"
)

func mapping(t *testing.T, src, dst string) dsl.Mapping {
	t.Helper()
	m, ok := dsl.MustDefault().Mapping(src, dst)
	require.True(t, ok, "%s -> %s", src, dst)
	return m
}

func TestBindOverwritesMappedAndPreservesRest(t *testing.T) {
	m := mapping(t, "Shipment", "Delivery")
	draft := record.Record{
		"customerName":    "typed by hand",
		"deliveryAddress": "서울시 강남구",
		"driverName":      "Kim",
	}
	selected := record.Record{
		"shipmentId":   "SH001",
		"customerName": "삼성전자",
		"productName":  "Bolt",
		"quantity":     5.0,
	}

	got := Bind(draft, selected, m)

	for _, p := range m.Pairs {
		assert.Equal(t, selected[p.From], got[p.To], p.To)
	}
	for k, v := range draft {
		if k == "customerName" {
			continue
		}
		assert.Equal(t, v, got[k], k)
	}
	_, leaked := got["productName"]
	assert.False(t, leaked, "unmapped source fields must not leak")
	_, leaked = got["quantity"]
	assert.False(t, leaked)
}

func TestBindIsPure(t *testing.T) {
	m := mapping(t, "Shipment", "Delivery")
	draft := record.Record{"deliveryAddress": "addr"}
	selected := record.Record{"shipmentId": "SH001", "customerName": "삼성전자"}

	first := Bind(draft, selected, m)
	second := Bind(draft, selected, m)

	assert.Equal(t, first, second)
	assert.Equal(t, record.Record{"deliveryAddress": "addr"}, draft)
	assert.Equal(t, record.Record{"shipmentId": "SH001", "customerName": "삼성전자"}, selected)
}

func TestBindCoercesUnitPrice(t *testing.T) {
	m := mapping(t, "OrderReceipt", "Purchase")
	draft := record.Record{"unitPrice": 500.0, "quantity": 3.0}
	receipt := record.Record{
		"customerId":   "C-01",
		"customerName": "한화",
		"productCode":  "P-1",
		"productName":  "Gear",
		"unitPrice":    "1200",
	}

	got := Bind(draft, receipt, m)

	assert.Equal(t, 1200.0, got["unitPrice"])
	assert.Equal(t, "C-01", got["supplierId"])
	assert.Equal(t, "한화", got["supplierName"])
	assert.Equal(t, 3.0, got["quantity"])
	_, leaked := got["customerName"]
	assert.False(t, leaked)
}

func TestPatchAbsentSource(t *testing.T) {
	m := mapping(t, "Product", "OrderReceipt")
	patch := Patch(record.Record{"productCode": "P-9"}, m)

	assert.Equal(t, record.Record{
		"productCode": "P-9",
		"productName": nil,
		"unitPrice":   0.0,
	}, patch)
}

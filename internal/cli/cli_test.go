package cli

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhahamin/mes-fe-sub000/internal/api"
	"github.com/minhahamin/mes-fe-sub000/internal/client"
	"github.com/minhahamin/mes-fe-sub000/internal/desk"
	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
	"github.com/minhahamin/mes-fe-sub000/internal/gate"
	"github.com/minhahamin/mes-fe-sub000/internal/seed"
)

type backend struct {
	url   string
	store *api.MemoryStore
}

func newBackend(t *testing.T) backend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cat := dsl.MustDefault()
	store := api.NewMemoryStore()
	_, err := seed.LoadAndApply(context.Background(), filepath.Join("..", "..", "fixtures"), store, cat)
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewServer("", cat, store).Handler())
	t.Cleanup(srv.Close)
	return backend{url: srv.URL, store: store}
}

func (b backend) run(t *testing.T, args ...string) (string, error) {
	return b.runWith(t, nil, args...)
}

func (b backend) runWith(t *testing.T, opts []Option, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	opts = append([]Option{WithOutput(&out), WithErrOutput(io.Discard)}, opts...)
	cmd := NewRootCommand(opts...)
	cmd.SetArgs(append([]string{"--base-url", b.url, "--log-level", "error", "--env", "test"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (b backend) rows(t *testing.T, resource string) []*api.Stored {
	t.Helper()
	rows, err := b.store.List(context.Background(), resource)
	require.NoError(t, err)
	return rows
}

func TestEntities(t *testing.T) {
	b := newBackend(t)
	out, err := b.run(t, "entities")
	require.NoError(t, err)
	assert.Contains(t, out, "deliveries")
	assert.Contains(t, out, "Shipment")
	assert.Regexp(t, `Purchase\s+purchases\s+purchaseId\s+rw\s+OrderReceipt`, out)
}

func TestListWithQuery(t *testing.T) {
	b := newBackend(t)

	out, err := b.run(t, "list", "shipments", "-q", "sh00")
	require.NoError(t, err)
	assert.Contains(t, out, "SH001")
	assert.Contains(t, out, "SH002")
	assert.NotContains(t, out, "SH010")
	assert.Contains(t, out, "1,200")
	assert.Contains(t, out, "2건")

	out, err = b.run(t, "list", "Shipment")
	require.NoError(t, err)
	assert.Contains(t, out, "3건")
}

func TestShow(t *testing.T) {
	b := newBackend(t)
	id := b.rows(t, "products")[2].ID

	out, err := b.run(t, "show", "products", id)
	require.NoError(t, err)
	assert.Regexp(t, `productName\s+기어박스`, out)
	assert.Regexp(t, `unitPrice\s+1,200`, out)
	assert.Contains(t, out, id)

	_, err = b.run(t, "show", "products", "nope")
	var apiErr *client.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
}

func TestCreateDeliveryFromShipment(t *testing.T) {
	b := newBackend(t)

	out, err := b.run(t, "create", "deliveries",
		"--pick", "Shipment=sh002",
		"--set", "deliveryAddress=서울시 강남구",
		"--set", "deliveryDate=2024-05-20",
		"--set", "driverPhone=01012345678",
	)
	require.NoError(t, err)
	assert.Regexp(t, `shipmentId\s+SH002`, out)

	rows := b.rows(t, "deliveries")
	require.Len(t, rows, 1)
	assert.Equal(t, "SH002", rows[0].Data["shipmentId"])
	assert.Equal(t, "LG전자", rows[0].Data["customerName"])
	assert.Equal(t, "010-1234-5678", rows[0].Data["driverPhone"])
}

func TestSetOverridesPickedValue(t *testing.T) {
	b := newBackend(t)
	var logs bytes.Buffer

	_, err := b.runWith(t, []Option{WithErrOutput(&logs)}, "--log-level", "debug",
		"create", "deliveries",
		"--pick", "Shipment=SH002",
		"--set", "customerName=삼성전자",
		"--set", "deliveryAddress=부산",
		"--set", "deliveryDate=2024-05-20",
	)
	require.NoError(t, err)

	rows := b.rows(t, "deliveries")
	require.Len(t, rows, 1)
	assert.Equal(t, "SH002", rows[0].Data["shipmentId"])
	assert.Equal(t, "삼성전자", rows[0].Data["customerName"])

	assert.Contains(t, logs.String(), `"field":"customerName"`)
	assert.Contains(t, logs.String(), `"was":"LG전자"`)
	assert.NotContains(t, logs.String(), `"field":"deliveryAddress"`)
}

func TestCreateWithSearchPick(t *testing.T) {
	b := newBackend(t)

	_, err := b.run(t, "create", "purchases",
		"--pick", "OrderReceipt~기어",
		"--set", "purchaseDate=2024-05-01",
		"--set", "quantity=5",
	)
	require.NoError(t, err)

	rows := b.rows(t, "purchases")
	require.Len(t, rows, 1)
	assert.Equal(t, "LG전자", rows[0].Data["supplierName"])
	assert.Equal(t, 1200.0, rows[0].Data["unitPrice"])
	assert.Equal(t, 6000.0, rows[0].Data["totalAmount"])
}

func TestPickErrors(t *testing.T) {
	b := newBackend(t)

	_, err := b.run(t, "create", "deliveries", "--pick", "Shipment~SH00")
	assert.ErrorIs(t, err, ErrAmbiguous)
	assert.Contains(t, err.Error(), "SH001, SH002")

	_, err = b.run(t, "create", "deliveries", "--pick", "Shipment~zzz")
	assert.ErrorIs(t, err, ErrNoMatch)

	_, err = b.run(t, "create", "deliveries", "--pick", "Shipment=SH999")
	assert.ErrorIs(t, err, desk.ErrNotFound)

	_, err = b.run(t, "create", "deliveries", "--pick", "Product=P-100")
	assert.ErrorIs(t, err, desk.ErrNoMapping)

	_, err = b.run(t, "create", "deliveries", "--pick", "Shipment")
	assert.ErrorIs(t, err, ErrBadInput)

	assert.Empty(t, b.rows(t, "deliveries"))
}

func TestCreateRejectedByGate(t *testing.T) {
	b := newBackend(t)

	_, err := b.run(t, "create", "deliveries", "--set", "deliveryAddress=부산")
	var verr *gate.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ElementsMatch(t, []string{"shipmentId", "customerName", "deliveryDate"}, verr.MissingFields)
	assert.Empty(t, b.rows(t, "deliveries"))

	_, err = b.run(t, "create", "purchases",
		"--set", "purchaseDate=2024-05-01",
		"--set", "supplierName=A",
		"--set", "productCode=P-1",
		"--set", "productName=x",
		"--set", "quantity=0",
		"--set", "unitPrice=100",
	)
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Violations, 1)
	assert.Equal(t, gate.CodePositiveTogether, verr.Violations[0].Code)
}

func TestEmployeeSalaryInput(t *testing.T) {
	b := newBackend(t)
	base := []string{"create", "employees",
		"--set", "name=홍길동",
		"--set", "department=생산",
		"--set", "position=사원",
	}

	// не заданная зарплата не проходит проверку, запрос не уходит
	_, err := b.run(t, base...)
	var verr *gate.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"salary"}, verr.MissingFields)
	assert.Empty(t, b.rows(t, "employees"))

	// пустой ввод в числовое поле — это 0, а 0 считается заполненным
	_, err = b.run(t, append(base, "--set", "salary=")...)
	require.NoError(t, err)
	rows := b.rows(t, "employees")
	require.Len(t, rows, 1)
	assert.Equal(t, 0.0, rows[0].Data["salary"])

	_, err = b.run(t, append(base, "--set", "salary=3,500,000")...)
	require.NoError(t, err)
	assert.Len(t, b.rows(t, "employees"), 2)
}

func TestBadSetInput(t *testing.T) {
	b := newBackend(t)

	_, err := b.run(t, "create", "products", "--set", "productCode")
	assert.ErrorIs(t, err, ErrBadInput)

	_, err = b.run(t, "create", "products", "--set", "unitPrice=abc")
	assert.Error(t, err)

	_, err = b.run(t, "create", "products", "--set", "color=red")
	assert.Error(t, err)
}

func TestUpdateAndDelete(t *testing.T) {
	b := newBackend(t)
	id := b.rows(t, "products")[0].ID

	_, err := b.run(t, "update", "products", id, "--set", "unitPrice=1,500")
	require.NoError(t, err)

	got, err := b.store.Get(context.Background(), "products", id)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, got.Data["unitPrice"])
	assert.Equal(t, "볼트 M8", got.Data["productName"])
	assert.Equal(t, int64(2), got.Version)

	out, err := b.run(t, "delete", "products", id)
	require.NoError(t, err)
	assert.Contains(t, out, "삭제되었습니다")
	assert.Len(t, b.rows(t, "products"), 2)
}

func TestReadOnlyEntity(t *testing.T) {
	b := newBackend(t)

	_, err := b.run(t, "create", "shipments", "--set", "shipmentId=SH900")
	assert.ErrorIs(t, err, client.ErrReadOnly)
	assert.Len(t, b.rows(t, "shipments"), 3)

	_, err = b.runWith(t, []Option{WithAuth(desk.ReadOnlyGate{})}, "create", "customers", "--set", "customerName=x")
	assert.ErrorIs(t, err, desk.ErrForbidden)
}

func TestLookupCommand(t *testing.T) {
	b := newBackend(t)

	out, err := b.run(t, "lookup", "ProductionPlan", "Product", "-q", "m8")
	require.NoError(t, err)
	assert.Contains(t, out, "P-100")
	assert.Contains(t, out, "P-200")
	assert.NotContains(t, out, "P-300")
}

func TestUnknownEntityAndBackendDown(t *testing.T) {
	b := newBackend(t)

	_, err := b.run(t, "list", "widgets")
	assert.ErrorIs(t, err, ErrUnknownEntity)

	down := backend{url: "http://127.0.0.1:1"}
	_, err = down.run(t, "list", "shipments")
	var apiErr *client.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Zero(t, apiErr.Status)
}

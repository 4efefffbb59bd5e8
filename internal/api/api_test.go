package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Errors  []FieldError    `json:"errors"`
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := NewMemoryStore()
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	return NewServer(":0", dsl.MustDefault(), store, opts...), store
}

func do(t *testing.T, s *Server, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func data[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func codes(errs []FieldError) map[string]string {
	out := map[string]string{}
	for _, e := range errs {
		out[e.Field] = e.Code
	}
	return out
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateGetList(t *testing.T) {
	s, _ := newTestServer(t)

	w, env := do(t, s, http.MethodPost, "/api/customers", map[string]any{
		"customerName": "삼성전자", "businessNumber": "124-81-00998", "phone": "010-1234-5678",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, env.Success)
	assert.Equal(t, msgCreated, env.Message)
	created := data[map[string]any](t, env)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.NotEmpty(t, created["createdAt"])

	w, env = do(t, s, http.MethodGet, "/api/customers/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"1"`, w.Header().Get("ETag"))
	assert.Equal(t, "삼성전자", data[map[string]any](t, env)["customerName"])

	w, env = do(t, s, http.MethodGet, "/api/customers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, data[[]map[string]any](t, env), 1)
	assert.Equal(t, "1", w.Header().Get("X-Total-Count"))

	// имя сущности тоже подходит вместо ресурса
	w, _ = do(t, s, http.MethodGet, "/api/Customer", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateValidation(t *testing.T) {
	s, _ := newTestServer(t)

	w, env := do(t, s, http.MethodPost, "/api/employees", map[string]any{
		"name": "홍길동", "department": "생산", "position": "사원", "salary": "",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)
	assert.Equal(t, ErrRequired, codes(env.Errors)["salary"])

	w, env = do(t, s, http.MethodPost, "/api/employees", map[string]any{
		"name": "홍길동", "department": "생산", "position": "사원", "salary": 1.0, "nickname": "x", "id": "1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	c := codes(env.Errors)
	assert.Equal(t, ErrUnknownField, c["nickname"])
	assert.Equal(t, ErrReadOnly, c["id"])

	w, env = do(t, s, http.MethodPost, "/api/employees", map[string]any{
		"name": "홍길동", "department": "생산", "position": "사원", "salary": "많이", "status": "휴가", "hireDate": "2024/01/01",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	c = codes(env.Errors)
	assert.Equal(t, ErrTypeMismatch, c["salary"])
	assert.Equal(t, ErrEnumInvalid, c["status"])
	assert.Equal(t, ErrTypeMismatch, c["hireDate"])

	w, env = do(t, s, http.MethodPost, "/api/employees", map[string]any{
		"name": "홍길동", "department": "생산", "position": "사원", "salary": "3,500,000", "status": "재직",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 3500000.0, data[map[string]any](t, env)["salary"])
}

func TestNonFiniteNumbersRejected(t *testing.T) {
	s, store := newTestServer(t)

	for _, v := range []string{"NaN", "Inf", "-Infinity"} {
		w, env := do(t, s, http.MethodPost, "/api/products", map[string]any{
			"productCode": "P-9", "productName": "x", "unitPrice": 100.0, "safetyStock": v,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code, v)
		assert.Equal(t, ErrTypeMismatch, codes(env.Errors)["safetyStock"], v)
	}
	rows, err := store.List(context.Background(), "products")
	require.NoError(t, err)
	assert.Empty(t, rows)

	w, env := do(t, s, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Empty(t, data[[]map[string]any](t, env))
}

func TestPurchaseTotalsAndPositivity(t *testing.T) {
	s, _ := newTestServer(t)
	base := map[string]any{
		"purchaseDate": "2024-05-01", "supplierName": "한화", "productCode": "P-1", "productName": "Gear",
	}
	with := func(extra map[string]any) map[string]any {
		out := map[string]any{}
		for k, v := range base {
			out[k] = v
		}
		for k, v := range extra {
			out[k] = v
		}
		return out
	}

	w, env := do(t, s, http.MethodPost, "/api/purchases", with(map[string]any{"quantity": 10.0, "unitPrice": "1,200"}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 12000.0, data[map[string]any](t, env)["totalAmount"])

	w, env = do(t, s, http.MethodPost, "/api/purchases", with(map[string]any{"quantity": 10.0, "unitPrice": 0.0}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, ErrPositiveTogether, env.Errors[0].Code)

	w, env = do(t, s, http.MethodPost, "/api/purchases", with(map[string]any{"quantity": 1.0, "unitPrice": 1.0, "totalAmount": 5.0}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrReadOnly, codes(env.Errors)["totalAmount"])
}

func TestReadOnlyResource(t *testing.T) {
	s, store := newTestServer(t)
	_, err := store.Create(context.Background(), "shipments", map[string]any{"shipmentId": "SH001"})
	require.NoError(t, err)

	w, _ := do(t, s, http.MethodPost, "/api/shipments", map[string]any{"shipmentId": "SH002"})
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w, env := do(t, s, http.MethodGet, "/api/shipments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, data[[]map[string]any](t, env), 1)
}

func TestPatchVersioning(t *testing.T) {
	s, _ := newTestServer(t)
	_, env := do(t, s, http.MethodPost, "/api/products", map[string]any{
		"productCode": "P-1", "productName": "Gear", "unitPrice": 100.0,
	})
	id := data[map[string]any](t, env)["id"].(string)

	w, env := do(t, s, http.MethodPatch, "/api/products/"+id, map[string]any{"unitPrice": 150.0}, "If-Match", `"1"`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, `"2"`, w.Header().Get("ETag"))
	got := data[map[string]any](t, env)
	assert.Equal(t, 150.0, got["unitPrice"])
	assert.Equal(t, "Gear", got["productName"])

	w, env = do(t, s, http.MethodPatch, "/api/products/"+id, map[string]any{"unitPrice": 175.0}, "If-Match", `"1"`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ErrVersionConflict, env.Errors[0].Code)

	// без If-Match — последняя запись побеждает
	w, _ = do(t, s, http.MethodPatch, "/api/products/"+id, map[string]any{"unitPrice": 200.0})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, s, http.MethodPatch, "/api/products/"+id, map[string]any{"unitPrice": 1.0}, "If-Match", "abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = do(t, s, http.MethodPatch, "/api/products/"+id, map[string]any{"productName": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrRequired, codes(env.Errors)["productName"])

	w, _ = do(t, s, http.MethodPatch, "/api/products/nope", map[string]any{"unitPrice": 1.0})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListSearchAndSort(t *testing.T) {
	s, _ := newTestServer(t)
	for _, p := range []map[string]any{
		{"productCode": "P-1", "productName": "Gear", "unitPrice": 300.0, "category": "부품"},
		{"productCode": "P-2", "productName": "Bolt", "unitPrice": 50.0, "category": "부품"},
		{"productCode": "P-3", "productName": "Gear Box", "unitPrice": 1200.0},
	} {
		w, _ := do(t, s, http.MethodPost, "/api/products", p)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	_, env := do(t, s, http.MethodGet, "/api/products?q=gear", nil)
	assert.Len(t, data[[]map[string]any](t, env), 2)

	_, env = do(t, s, http.MethodGet, "/api/products?_sort=-unitPrice", nil)
	rows := data[[]map[string]any](t, env)
	require.Len(t, rows, 3)
	assert.Equal(t, []any{"P-3", "P-1", "P-2"}, []any{rows[0]["productCode"], rows[1]["productCode"], rows[2]["productCode"]})

	_, env = do(t, s, http.MethodGet, "/api/products?_sort=category,productCode", nil)
	rows = data[[]map[string]any](t, env)
	assert.Equal(t, "P-1", rows[0]["productCode"])
	assert.Equal(t, "P-3", rows[2]["productCode"])

	_, env = do(t, s, http.MethodGet, "/api/products?_sort=category&nulls=first", nil)
	rows = data[[]map[string]any](t, env)
	assert.Equal(t, "P-3", rows[0]["productCode"])
}

func TestDelete(t *testing.T) {
	s, _ := newTestServer(t)
	_, env := do(t, s, http.MethodPost, "/api/customers", map[string]any{"customerName": "LG", "businessNumber": "1"})
	id := data[map[string]any](t, env)["id"].(string)

	w, env := do(t, s, http.MethodDelete, "/api/customers/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, msgDeleted, env.Message)

	w, env = do(t, s, http.MethodGet, "/api/customers/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)

	w, _ = do(t, s, http.MethodDelete, "/api/customers/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnknownEntity(t *testing.T) {
	s, _ := newTestServer(t)
	w, env := do(t, s, http.MethodGet, "/api/widgets", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, env.Error, "widgets")
}

func TestMeta(t *testing.T) {
	s, _ := newTestServer(t)

	_, env := do(t, s, http.MethodGet, "/api/meta", nil)
	list := data[[]metaEntityListItem](t, env)
	assert.Len(t, list, len(dsl.MustDefault().Entities()))

	w, env := do(t, s, http.MethodGet, "/api/meta/deliveries", nil)
	require.Equal(t, http.StatusOK, w.Code)
	m := data[metaEntity](t, env)
	assert.Equal(t, "Delivery", m.Entity)
	assert.Equal(t, "deliveryId", m.KeyField)
	assert.Contains(t, m.Required, "deliveryAddress")
	require.Len(t, m.Mappings, 1)
	assert.Equal(t, "Shipment", m.Mappings[0].Source)

	_, env = do(t, s, http.MethodGet, "/api/meta/purchases", nil)
	m = data[metaEntity](t, env)
	assert.NotNil(t, m.Constraints["positive_together"])
}

func TestAdminReload(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestServer(t, WithCatalogDir(dir))

	good := "module demo\nentity Widget: resource=widgets\n  name: string required search\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo.dsl"), []byte(good), 0o644))

	w, _ := do(t, s, http.MethodPost, "/api/_admin/reload", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, _ = do(t, s, http.MethodGet, "/api/widgets", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	bad := good + "mapping Widget -> Gadget:\n  name -> name\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo.dsl"), []byte(bad), 0o644))
	w, _ = do(t, s, http.MethodPost, "/api/_admin/reload", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// старый каталог остался
	w, _ = do(t, s, http.MethodGet, "/api/widgets", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

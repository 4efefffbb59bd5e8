package gate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhahamin/mes-fe-sub000/internal/dsl"
	"github.com/minhahamin/mes-fe-sub000/internal/record"
)

func TestRequiredFields(t *testing.T) {
	res := Validate(record.Record{"name": "x"}, []string{"name", "dept"})
	assert.False(t, res.OK)
	assert.Equal(t, []string{"dept"}, res.MissingFields)

	var vErr *ValidationError
	require.ErrorAs(t, res.Err(), &vErr)
	assert.Equal(t, []string{"dept"}, vErr.MissingFields)
	assert.Contains(t, vErr.Error(), "dept")
}

func TestZeroIsPresent(t *testing.T) {
	res := Validate(record.Record{"qty": 0.0, "name": "x"}, []string{"qty", "name"})
	assert.True(t, res.OK)
	assert.NoError(t, res.Err())
}

func TestMissingValues(t *testing.T) {
	draft := record.Record{
		"empty": "",
		"null":  nil,
		"no":    false,
		"nan":   math.NaN(),
		"zero":  0.0,
		"yes":   true,
		"space": " ",
	}
	for _, name := range []string{"empty", "null", "no", "nan", "absent"} {
		assert.True(t, Missing(draft, name), name)
	}
	for _, name := range []string{"zero", "yes", "space"} {
		assert.False(t, Missing(draft, name), name)
	}
}

func TestPositiveTogether(t *testing.T) {
	rule := PositiveTogether("quantity", "unitPrice")
	required := []string{"quantity", "unitPrice"}

	res := Validate(record.Record{"quantity": 10.0, "unitPrice": 0.0}, required, rule)
	require.False(t, res.OK)
	assert.Empty(t, res.MissingFields)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, CodePositiveTogether, res.Violations[0].Code)

	res = Validate(record.Record{"quantity": 0.0, "unitPrice": 100.0}, required, rule)
	require.False(t, res.OK)
	assert.Equal(t, CodePositiveTogether, res.Violations[0].Code)

	res = Validate(record.Record{"quantity": 10.0, "unitPrice": 100.0}, required, rule)
	assert.True(t, res.OK)

	// форматированные строки тоже понимаются
	res = Validate(record.Record{"quantity": "1,000", "unitPrice": "1,200"}, required, rule)
	assert.True(t, res.OK)
}

func TestPositiveMessageDiffersFromRequired(t *testing.T) {
	missing := Validate(record.Record{}, []string{"quantity"}).Err()
	positive := Validate(record.Record{"quantity": 1.0}, nil, PositiveTogether("quantity", "unitPrice")).Err()
	require.Error(t, missing)
	require.Error(t, positive)
	assert.NotEqual(t, missing.Error(), positive.Error())
}

func TestForEntity(t *testing.T) {
	cat := dsl.MustDefault()

	employee, _ := cat.Entity("Employee")
	res := ForEntity(employee).Validate(record.Record{
		"name": "홍길동", "department": "생산", "position": "사원", "salary": "",
	})
	assert.False(t, res.OK)
	assert.Contains(t, res.MissingFields, "salary")

	purchase, _ := cat.Entity("Purchase")
	g := ForEntity(purchase)
	require.Len(t, g.Rules, 1)
	res = g.Validate(record.Record{
		"purchaseDate": "2024-05-01", "supplierName": "한화", "productCode": "P-1",
		"productName": "Gear", "quantity": 10.0, "unitPrice": 0.0,
	})
	assert.False(t, res.OK)
	assert.Empty(t, res.MissingFields)
	assert.Len(t, res.Violations, 1)
}

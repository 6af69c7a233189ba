package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cents    int64
		currency string
		want     int64
		wantCode string
	}{
		{"positive cents", 1234, USD, 1234, USD},
		{"zero", 0, USD, 0, USD},
		{"negative cents", -5000, EUR, -5000, EUR},
		{"lowercase code", 1000, "eur", 1000, EUR},
		{"empty code defaults to euro", 10, "", 10, EUR},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.cents, tt.currency)
			assert.Equal(t, tt.want, m.Amount())
			assert.Equal(t, tt.wantCode, m.Currency())
		})
	}
}

func TestNewFromDecimal(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		want     int64
	}{
		{"precise decimal", "123.45", USD, 12345},
		{"half rounds away from zero", "0.125", EUR, 13},
		{"negative half rounds away from zero", "-0.125", EUR, -13},
		{"many decimals", "99.999", USD, 10000},
		{"whole number", "500", USD, 50000},
		{"yen has no minor unit", "1500", JPY, 1500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewFromDecimal(decimal.RequireFromString(tt.amount), tt.currency)
			assert.Equal(t, tt.want, m.Amount())
		})
	}
}

func TestNewFromString(t *testing.T) {
	m, err := NewFromString(" -12.345 ", EUR)
	require.NoError(t, err)
	assert.Equal(t, int64(-1235), m.Amount())

	_, err = NewFromString("12,34", EUR)
	assert.Error(t, err)
}

func TestValidateCurrency(t *testing.T) {
	assert.NoError(t, ValidateCurrency("eur"))
	assert.NoError(t, ValidateCurrency("BRL"))
	assert.ErrorIs(t, ValidateCurrency("XYZ1"), ErrUnknownCurrency)
}

func TestAddSubtract(t *testing.T) {
	a := New(1000, EUR)
	b := New(250, EUR)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), sum.Amount())

	diff, err := b.Subtract(a)
	require.NoError(t, err)
	assert.Equal(t, int64(-750), diff.Amount())
	assert.True(t, diff.IsNegative())

	_, err = a.Add(New(1, USD))
	assert.Error(t, err)
}

func TestAllocate(t *testing.T) {
	tests := []struct {
		name   string
		cents  int64
		ratios []int
		want   []int64
	}{
		{"even split", 10000, []int{50, 30, 10, 10}, []int64{5000, 3000, 1000, 1000}},
		{"single remainder cent", 10001, []int{50, 30, 10, 10}, nil},
		{"odd salary", 284399, []int{50, 30, 10, 10}, nil},
		{"all to one bucket", 4321, []int{100, 0, 0, 0}, []int64{4321, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, err := New(tt.cents, EUR).Allocate(tt.ratios...)
			require.NoError(t, err)
			require.Len(t, parts, len(tt.ratios))

			var total int64
			for i, p := range parts {
				total += p.Amount()
				if tt.want != nil {
					assert.Equal(t, tt.want[i], p.Amount())
				}
			}
			assert.Equal(t, tt.cents, total, "allocation must not lose cents")
		})
	}
}

func TestPercentageOf(t *testing.T) {
	part := New(2550, EUR)
	total := New(10000, EUR)
	assert.True(t, decimal.RequireFromString("25.5").Equal(part.PercentageOf(total)))
	assert.True(t, part.PercentageOf(Zero(EUR)).IsZero())
}

func TestStringAndDecimal(t *testing.T) {
	m := New(12345, USD)
	assert.Equal(t, "123.45", m.String())
	assert.True(t, m.ToDecimal().Equal(decimal.RequireFromString("123.45")))
	assert.Equal(t, "-0.05", New(-5, EUR).String())
}

func TestJSON(t *testing.T) {
	data, err := json.Marshal(New(12345, USD))
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(12345), raw["amount"])
	assert.Equal(t, "USD", raw["currency"])
	assert.Contains(t, raw["display"], "$")

	var m Money
	require.NoError(t, json.Unmarshal([]byte(`{"amount": 9999, "currency": "eur"}`), &m))
	assert.Equal(t, int64(9999), m.Amount())
	assert.Equal(t, EUR, m.Currency())
}

func TestNilSafety(t *testing.T) {
	var m *Money
	assert.True(t, m.IsZero())
	assert.Equal(t, int64(0), m.Amount())
	assert.Equal(t, "", m.Currency())
	_, err := m.Allocate(1, 1)
	assert.Error(t, err)
}

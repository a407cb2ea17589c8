package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		currency string
		want     int64
		wantErr  error
	}{
		{name: "whole rupees", input: "500.00", currency: "INR", want: 50000},
		{name: "no decimal part", input: "500", currency: "INR", want: 50000},
		{name: "single decimal digit", input: "0.5", currency: "INR", want: 50},
		{name: "smallest unit", input: "0.01", currency: "INR", want: 1},
		{name: "negative", input: "-25.50", currency: "INR", want: -2550},
		{name: "sub-minor-unit precision", input: "0.001", currency: "INR", wantErr: ErrInvalidAmount},
		{name: "garbage", input: "12x.00", currency: "INR", wantErr: ErrInvalidAmount},
		{name: "empty", input: "", currency: "INR", wantErr: ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input, tt.currency)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Amount)
			assert.Equal(t, tt.currency, got.Currency)
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "500.00", New(50000, "INR").Format())
	assert.Equal(t, "0.01", New(1, "INR").Format())
	assert.Equal(t, "-25.50", New(-2550, "INR").Format())
	assert.Equal(t, "0.00", Zero("INR").Format())
}

func TestArithmetic(t *testing.T) {
	a := New(10050, "INR")
	b := New(950, "INR")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(11000), sum.Amount)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, int64(9100), diff.Amount)

	assert.Equal(t, int64(-10050), a.Neg().Amount)
}

func TestCurrencyMismatch(t *testing.T) {
	inr := New(100, "INR")
	usd := New(100, "USD")

	_, err := inr.Add(usd)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = inr.Sub(usd)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = inr.Cmp(usd)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestMulRat(t *testing.T) {
	// 10% of 333.33 rounds half-even at the minor unit
	m := New(33333, "INR")
	got, err := m.MulRat(1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3333), got.Amount)

	_, err = m.MulRat(1, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCmp(t *testing.T) {
	small := New(1, "INR")
	big := New(2, "INR")

	c, err := small.Cmp(big)
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = big.Cmp(small)
	require.NoError(t, err)
	assert.Equal(t, 1, c)

	c, err = big.Cmp(big)
	require.NoError(t, err)
	assert.Equal(t, 0, c)
}

func TestJSONRoundTrip(t *testing.T) {
	m := New(50000, "INR")

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"500.00","currency":"INR"}`, string(data))

	var back Money
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, m, back)
}

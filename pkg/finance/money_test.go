package finance

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoneyScale(t *testing.T) {
	assert.Equal(t, 0, New(5000, "XAF").Scale)
	assert.Equal(t, 0, New(5000, "XOF").Scale)
	assert.Equal(t, 2, New(5000, "EUR").Scale)
}

func TestAddSub(t *testing.T) {
	a := New(5000, "XAF")
	b := New(1500, "XAF")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(6500), sum.AmountMinor)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, int64(3500), diff.AmountMinor)
}

func TestCurrencyMismatch(t *testing.T) {
	_, err := New(100, "XAF").Add(New(100, "EUR"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCurrencyMismatch))

	_, err = New(100, "XAF").Sub(New(100, "EUR"))
	require.Error(t, err)
}

func TestPredicates(t *testing.T) {
	assert.True(t, New(0, "XAF").IsZero())
	assert.True(t, New(1, "XAF").IsPositive())
	assert.True(t, New(-1, "XAF").IsNegative())
	assert.True(t, New(10, "XAF").LessThan(New(20, "XAF")))
	assert.False(t, New(10, "XAF").LessThan(New(20, "EUR")))
}

func TestString(t *testing.T) {
	assert.Equal(t, "2500 XAF", New(2500, "XAF").String())
	assert.Equal(t, "25.00 EUR", New(2500, "EUR").String())
	assert.Equal(t, "25.05 EUR", New(2505, "EUR").String())
}

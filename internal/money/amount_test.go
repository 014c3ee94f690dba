package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Amount
	}{
		{"175.00", 17500},
		{"175", 17500},
		{"0.1", 10},
		{"0.01", 1},
		{"-5.50", -550},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestParseRejectsSubMinorPrecision(t *testing.T) {
	_, err := Parse("10.005")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Parse("ten")
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestNoFloatDrift(t *testing.T) {
	// 0.1 + 0.2 must be exactly 0.3
	assert.Equal(t, MustParse("0.30"), MustParse("0.1")+MustParse("0.2"))
}

func TestJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Total Amount `json:"total"`
	}{Total: 17500})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":"175.00"}`, string(b))

	var in struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"12.34","b":56.7}`), &in))
	assert.Equal(t, Amount(1234), in.A)
	assert.Equal(t, Amount(5670), in.B)
}

func TestSumAndTimes(t *testing.T) {
	assert.Equal(t, MustParse("175.00"), Sum(MustParse("100.00"), MustParse("50.00"), MustParse("15.00"), MustParse("10.00")))
	assert.Equal(t, MustParse("30.00"), MustParse("7.50").Times(4))
}

package form_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spounge-ai/polypay/pkg/apiclient/form"
)

func TestEncodeNested(t *testing.T) {
	values, err := form.Encode(map[string]any{
		"card": map[string]any{
			"number":    "4242424242424242",
			"exp_month": 12,
			"exp_year":  uint16(2030),
		},
		"metadata": map[string]string{"order": "42"},
		"items":    []any{map[string]any{"id": "sku_1"}, "sku_2"},
		"amount":   10.5,
		"capture":  true,
		"email":    nil,
	})
	require.NoError(t, err)

	assert.Equal(t, "4242424242424242", values.Get("card[number]"))
	assert.Equal(t, "12", values.Get("card[exp_month]"))
	assert.Equal(t, "2030", values.Get("card[exp_year]"))
	assert.Equal(t, "42", values.Get("metadata[order]"))
	assert.Equal(t, "sku_1", values.Get("items[0][id]"))
	assert.Equal(t, "sku_2", values.Get("items[1]"))
	assert.Equal(t, "10.5", values.Get("amount"))
	assert.Equal(t, "true", values.Get("capture"))
	assert.True(t, values.Has("email"))
	assert.Equal(t, "", values.Get("email"))
}

type currency string

func (c currency) String() string { return strings.ToLower(string(c)) }

func TestEncodeNumbersIgnoreStringer(t *testing.T) {
	values, err := form.Encode(map[string]any{
		"timeout":  time.Second,
		"rate":     float32(0.1),
		"fee":      float32(2.5),
		"currency": currency("USD"),
	})
	require.NoError(t, err)

	assert.Equal(t, "1000000000", values.Get("timeout"))
	assert.Equal(t, "0.1", values.Get("rate"))
	assert.Equal(t, "2.5", values.Get("fee"))
	assert.Equal(t, "usd", values.Get("currency"))
}

func TestEncodeIsDeterministic(t *testing.T) {
	params := map[string]any{"b": "2", "a": "1", "c": map[string]any{"z": 1, "y": 2}}
	first, err := form.Encode(params)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := form.Encode(params)
		require.NoError(t, err)
		assert.Equal(t, first.Encode(), again.Encode())
	}
	assert.Equal(t, "a=1&b=2&c%5By%5D=2&c%5Bz%5D=1", first.Encode())
}

func TestEncodeRejectsUnsupported(t *testing.T) {
	_, err := form.Encode(map[string]any{"callback": func() {}})
	assert.ErrorIs(t, err, form.ErrUnsupported)

	_, err = form.Encode(map[string]any{"bad": map[int]string{1: "x"}})
	assert.ErrorIs(t, err, form.ErrUnsupported)

	_, err = form.Encode(map[string]any{"": "x"})
	assert.ErrorIs(t, err, form.ErrUnsupported)
}

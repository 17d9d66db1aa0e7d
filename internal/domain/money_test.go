package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayme-github/cryptex/internal/domain"
)

func TestQuantize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "already 8 digits", input: "0.00100000", want: "0.00100000"},
		{name: "fewer digits", input: "0.5", want: "0.50000000"},
		{name: "truncates excess digits", input: "0.123456789", want: "0.12345679"},
		{name: "half rounds to even down", input: "0.000000005", want: "0.00000000"},
		{name: "half rounds to even up", input: "0.000000015", want: "0.00000002"},
		{name: "negative value", input: "-1.234567891", want: "-1.23456789"},
		{name: "integer", input: "42", want: "42.00000000"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := decimal.RequireFromString(tt.input)
			got := domain.Quantize(d)

			assert.Equal(t, tt.want, got.StringFixed(8))
			assert.LessOrEqual(t, int32(-8), got.Exponent(),
				"quantized value must not carry more than 8 fractional digits")
		})
	}
}

func TestQuantize_Idempotent(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"0.123456785", "100.000000004", "-0.999999995", "0"} {
		d := decimal.RequireFromString(input)
		once := domain.Quantize(d)
		twice := domain.Quantize(once)
		require.True(t, once.Equal(twice), "quantize(quantize(%s)) = %s, want %s", input, twice, once)
	}
}

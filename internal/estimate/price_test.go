package estimate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want *float64
	}{
		{name: "dollars", text: "$125.00", want: floatPtr(125)},
		{name: "thousands separator", text: "$1,234.50", want: floatPtr(1234.5)},
		{name: "label and currency", text: "Cash: $42.10 USD", want: floatPtr(42.1)},
		{name: "integer", text: "80", want: floatPtr(80)},
		{name: "empty", text: "", want: nil},
		{name: "no digits", text: "N/A", want: nil},
		{name: "multiple dots", text: "1.2.3", want: nil},
		{name: "only dot", text: "Price: .", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParsePrice(tt.text)
			if tt.want == nil {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func floatPtr(v float64) *float64 { return &v }

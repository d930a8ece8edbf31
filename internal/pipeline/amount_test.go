package pipeline

import (
	"math"
	"testing"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   float64
		wantOK bool
	}{
		{name: "european grouping", input: "1.234,56", want: 1234.56, wantOK: true},
		{name: "us grouping", input: "1,234.56", want: 1234.56, wantOK: true},
		{name: "negative decimal comma", input: "-3,50", want: -3.5, wantOK: true},
		{name: "currency symbol", input: "€ 12", want: 12, wantOK: true},
		{name: "currency suffix", input: "99,90 EUR", want: 99.9, wantOK: true},
		{name: "lone dot is decimal", input: "1.234", want: 1.234, wantOK: true},
		{name: "lone comma is decimal", input: "1,5", want: 1.5, wantOK: true},
		{name: "plain integer text", input: "500", want: 500, wantOK: true},
		{name: "padded text", input: "  42.10  ", want: 42.1, wantOK: true},
		{name: "int passthrough", input: 7, want: 7, wantOK: true},
		{name: "float passthrough", input: 2.25, want: 2.25, wantOK: true},
		{name: "empty string", input: "", wantOK: false},
		{name: "only letters", input: "n/a", wantOK: false},
		{name: "sign only", input: "-", wantOK: false},
		{name: "nil", input: nil, wantOK: false},
		{name: "NaN", input: math.NaN(), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseAmount(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseAmount(%v) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ParseAmount(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

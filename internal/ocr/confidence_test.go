package ocr

import (
	"math"
	"strings"
	"testing"
)

func almostEqual(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-6
}

func TestHeuristicConfidence(t *testing.T) {
	cases := []struct {
		name string
		text string
		want float32
	}{
		{"empty", "", 0.2},
		{"garbage", "zzzz", 0.2},
		{"date only", "12/25/2023", 0.4},
		{"currency only", "price in $", 0.35},
		{"amount only", "paid 8.37 cash", 0.35},
		{"date and currency and amount", "12/25/2023 total $8.37", 0.7},
		{"full receipt", "12/25/2023 total $8.37 " + strings.Repeat("item line ", 15), 0.8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := heuristicConfidence(tc.text); !almostEqual(got, tc.want) {
				t.Errorf("heuristicConfidence = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHeuristicConfidenceCapped(t *testing.T) {
	text := "12/25/2023 usd $ 1,234.56 " + strings.Repeat("x", 200)
	if got := heuristicConfidence(text); got > 1.0 {
		t.Errorf("confidence = %v, must not exceed 1.0", got)
	}
}

package utils

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseReceiptDate(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2023-12-25", time.Date(2023, 12, 25, 0, 0, 0, 0, time.UTC), true},
		{"2023/1/2", time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), true},
		{"12/25/2023", time.Date(2023, 12, 25, 0, 0, 0, 0, time.UTC), true},
		{"1-2-2024", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), true},
		{"1/2/24", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), true},
		{"25/12/2023", time.Time{}, false}, // day-first is not a supported shape
		{"not a date", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tc := range cases {
		got, ok := ParseReceiptDate(tc.in)
		if ok != tc.ok {
			t.Errorf("ParseReceiptDate(%q) ok = %v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if ok && !got.Equal(tc.want) {
			t.Errorf("ParseReceiptDate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestStartOfDay(t *testing.T) {
	in := time.Date(2024, 6, 3, 17, 45, 12, 999, time.UTC)
	want := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	if got := StartOfDay(in); !got.Equal(want) {
		t.Errorf("StartOfDay = %v, want %v", got, want)
	}
}

func TestFormatMoney(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"8.37", "8.37"},
		{"8", "8.00"},
		{"8.375", "8.38"},
	} {
		if got := FormatMoney(decimal.RequireFromString(tc.in)); got != tc.want {
			t.Errorf("FormatMoney(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStrPtr(t *testing.T) {
	if StrPtr("") != nil {
		t.Error("StrPtr(\"\") should be nil")
	}
	if p := StrPtr("x"); p == nil || *p != "x" {
		t.Errorf("StrPtr(\"x\") = %v", p)
	}
	if StrOrEmpty(nil) != "" {
		t.Error("StrOrEmpty(nil) should be empty")
	}
}

package core

import (
	"errors"
	"strings"
	"testing"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2025-01-01", true},
		{" 2025-12-31 ", true},
		{"", false},
		{"31/12/2025", false},
		{"2025-02-30", false},
	}
	for i, tc := range cases {
		d, err := ParseDate(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok {
			if err == nil {
				t.Fatalf("case %d expected error", i)
			}
			if !errors.Is(err, ErrInvalidDate) {
				t.Fatalf("case %d expected ErrInvalidDate, got %v", i, err)
			}
		}
		if tc.ok && d.String() != strings.TrimSpace(tc.in) {
			t.Fatalf("case %d round trip: got %q", i, d.String())
		}
	}
}

func TestDateString_Zero(t *testing.T) {
	if got := (Date{}).String(); got != "" {
		t.Fatalf("expected empty string for zero date, got %q", got)
	}
	if got := NewDate(2024, 3, 9).String(); got != "2024-03-09" {
		t.Fatalf("unexpected format %q", got)
	}
}

func TestParseExpenseType(t *testing.T) {
	cases := []struct {
		in   string
		want ExpenseType
		ok   bool
	}{
		{"", DefaultExpenseType, true},
		{"court booking cost", ExpenseCourtBooking, true},
		{"court-booking-cost", ExpenseCourtBooking, true},
		{"Shuttle Cost", ExpenseShuttle, true},
		{"other", ExpenseOther, true},
		{"shuttle sale", "", false},
		{"rent", "", false},
	}
	for _, tc := range cases {
		got, err := ParseExpenseType(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%q expected %q, got %q (err=%v)", tc.in, tc.want, got, err)
		}
		if !tc.ok && !errors.Is(err, ErrUnknownType) {
			t.Fatalf("%q expected ErrUnknownType, got %v", tc.in, err)
		}
	}
}

func TestParseSaleType(t *testing.T) {
	cases := []struct {
		in   string
		want SaleType
		ok   bool
	}{
		{"", DefaultSaleType, true},
		{"court-booking-recovered", SaleCourtBookingRecovered, true},
		{"shuttle_sale", SaleShuttle, true},
		{"OTHER", SaleOther, true},
		{"court booking cost", "", false},
	}
	for _, tc := range cases {
		got, err := ParseSaleType(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%q expected %q, got %q (err=%v)", tc.in, tc.want, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestValidateDescription(t *testing.T) {
	if err := ValidateDescription("Badminton court rental, RSL"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := ValidateDescription("   "); !errors.Is(err, ErrEmptyDescription) {
		t.Fatalf("expected ErrEmptyDescription, got %v", err)
	}
	if err := ValidateDescription(strings.Repeat("a", MaxDescriptionLength)); err != nil {
		t.Fatalf("expected ok at limit, got %v", err)
	}
	if err := ValidateDescription(strings.Repeat("a", MaxDescriptionLength+1)); !errors.Is(err, ErrDescriptionTooLong) {
		t.Fatalf("expected ErrDescriptionTooLong, got %v", err)
	}
	// multi-byte characters count once
	if err := ValidateDescription(strings.Repeat("è", MaxDescriptionLength)); err != nil {
		t.Fatalf("expected ok for %d runes, got %v", MaxDescriptionLength, err)
	}
}

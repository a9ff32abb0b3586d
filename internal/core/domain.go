package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ExpenseCourtBooking ExpenseType = "court booking cost"
	ExpenseShuttle      ExpenseType = "shuttle cost"
	ExpenseOther        ExpenseType = "other"

	SaleCourtBookingRecovered SaleType = "court booking recovered"
	SaleShuttle               SaleType = "shuttle sale"
	SaleOther                 SaleType = "other"

	// DefaultExpenseType and DefaultSaleType are preselected on entry forms.
	DefaultExpenseType = ExpenseCourtBooking
	DefaultSaleType    = SaleShuttle

	MaxDescriptionLength = 30

	dateLayout = "2006-01-02"
)

type (
	ExpenseType string
	SaleType    string

	Date struct {
		time.Time
	}

	Partner struct {
		ID             string
		Name           string
		MoneyInvested  decimal.Decimal
		InvestmentDate Date
	}

	Expense struct {
		ID          string
		Type        ExpenseType
		Description string
		Date        Date
		PerUnitCost decimal.Decimal
		Quantity    decimal.Decimal
		TotalCost   decimal.Decimal // authoritative once committed
		Timestamp   time.Time
	}

	Sale struct {
		ID               string
		Type             SaleType
		Description      string
		Date             Date
		PerUnitSalePrice decimal.Decimal
		Quantity         decimal.Decimal
		TotalSalePrice   decimal.Decimal // authoritative once committed
		Timestamp        time.Time
	}
)

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyAmount        = errors.New("empty amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)
	ErrUnknownType        = errors.New("unknown entry type")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD date as entered on the forms.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// IsEmpty returns true if the date is zero
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// String formats the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (t ExpenseType) Valid() bool {
	switch t {
	case ExpenseCourtBooking, ExpenseShuttle, ExpenseOther:
		return true
	}
	return false
}

func (t SaleType) Valid() bool {
	switch t {
	case SaleCourtBookingRecovered, SaleShuttle, SaleOther:
		return true
	}
	return false
}

// ParseExpenseType accepts the stored form ("shuttle cost") as well as the
// dashed form ("shuttle-cost"). An empty value selects DefaultExpenseType.
func ParseExpenseType(s string) (ExpenseType, error) {
	s = normalizeType(s)
	if s == "" {
		return DefaultExpenseType, nil
	}
	t := ExpenseType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// ParseSaleType is the sale counterpart of ParseExpenseType.
func ParseSaleType(s string) (SaleType, error) {
	s = normalizeType(s)
	if s == "" {
		return DefaultSaleType, nil
	}
	t := SaleType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

func normalizeType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// ValidateDescription enforces the non-empty and length rules shared by
// expenses and sales. Length is counted in characters, not bytes.
func ValidateDescription(desc string) error {
	if strings.TrimSpace(desc) == "" {
		return ErrEmptyDescription
	}
	if len([]rune(desc)) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

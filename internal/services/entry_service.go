package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trackbus/internal/core"
	"trackbus/internal/log"
	"trackbus/internal/notify"
	"trackbus/internal/store"
)

// ExpenseInput carries an expense form as entered.
type ExpenseInput struct {
	Type        string `json:"typeOfExpense"`
	Description string `json:"description"`
	Date        string `json:"date"`
	PerUnitCost string `json:"perUnitCost"`
	Quantity    string `json:"quantity"`
}

// SaleInput carries a sale form as entered.
type SaleInput struct {
	Type             string `json:"typeOfSale"`
	Description      string `json:"description"`
	Date             string `json:"date"`
	PerUnitSalePrice string `json:"perUnitSalePrice"`
	Quantity         string `json:"quantity"`
}

// Readiness gates writes on an established session.
type Readiness interface {
	Ready() bool
}

// Recorder observes submission outcomes.
type Recorder interface {
	ObserveSubmission(kind, result string)
}

// Submission results passed to Recorder.
const (
	ResultSuccess  = "success"
	ResultInvalid  = "invalid"
	ResultNotReady = "not_ready"
	ResultFailed   = "failed"
)

type entryMessages struct {
	missing, notReady, added, failed string
}

var (
	expenseMessages = entryMessages{
		missing:  "Please fill all expense fields.",
		notReady: "Database not ready. Please try again.",
		added:    "Expense added successfully!",
		failed:   "Failed to add expense.",
	}
	saleMessages = entryMessages{
		missing:  "Please fill all sale fields.",
		notReady: "Database not ready. Please try again.",
		added:    "Sale added successfully!",
		failed:   "Failed to add sale.",
	}
)

type Option func(*EntryService)

func WithReadiness(r Readiness) Option {
	return func(s *EntryService) { s.readiness = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *EntryService) { s.now = now }
}

func WithRecorder(r Recorder) Option {
	return func(s *EntryService) { s.recorder = r }
}

func WithLogger(l *log.Logger) Option {
	return func(s *EntryService) { s.logger = l }
}

// EntryService validates and commits new expense and sale records. It never
// touches the local snapshots; a committed record shows up through the next
// subscription delivery.
type EntryService struct {
	writer    store.Writer
	notifier  notify.Publisher
	readiness Readiness
	recorder  Recorder
	now       func() time.Time
	logger    *log.Logger
}

func NewEntryService(writer store.Writer, notifier notify.Publisher, opts ...Option) *EntryService {
	s := &EntryService{
		writer:   writer,
		notifier: notifier,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.OrDiscard(s.logger, log.ComponentEntry)
	return s
}

// SubmitExpense validates in and writes it with totalCost = perUnitCost × quantity.
func (s *EntryService) SubmitExpense(ctx context.Context, in ExpenseInput) (string, error) {
	e, err := ParseExpense(in)
	if err != nil {
		return "", s.rejected(ctx, core.EntryExpense, expenseMessages, err)
	}
	fields := map[string]any{
		core.FieldTypeOfEntry:   core.EntryExpense,
		core.FieldTypeOfExpense: string(e.Type),
		core.FieldDescription:   e.Description,
		core.FieldDate:          e.Date.String(),
		core.FieldPerUnitCost:   e.PerUnitCost,
		core.FieldQuantity:      e.Quantity,
		core.FieldTotalCost:     e.TotalCost,
	}
	return s.commit(ctx, store.Expenses, core.EntryExpense, expenseMessages, fields)
}

// SubmitSale validates in and writes it with totalSalePrice = perUnitSalePrice × quantity.
func (s *EntryService) SubmitSale(ctx context.Context, in SaleInput) (string, error) {
	sale, err := ParseSale(in)
	if err != nil {
		return "", s.rejected(ctx, core.EntrySale, saleMessages, err)
	}
	fields := map[string]any{
		core.FieldTypeOfEntry:      core.EntrySale,
		core.FieldTypeOfSale:       string(sale.Type),
		core.FieldDescription:      sale.Description,
		core.FieldDate:             sale.Date.String(),
		core.FieldPerUnitSalePrice: sale.PerUnitSalePrice,
		core.FieldQuantity:         sale.Quantity,
		core.FieldTotalSalePrice:   sale.TotalSalePrice,
	}
	return s.commit(ctx, store.Sales, core.EntrySale, saleMessages, fields)
}

func (s *EntryService) commit(ctx context.Context, c store.Collection, kind string, msgs entryMessages, fields map[string]any) (string, error) {
	if s.readiness != nil && !s.readiness.Ready() {
		s.observe(kind, ResultNotReady)
		s.notify(msgs.notReady, false)
		return "", &WriteError{Collection: c, Err: ErrSessionNotReady}
	}

	fields[core.FieldTimestamp] = s.now().UTC().Format(time.RFC3339)

	id, err := s.writer.Add(ctx, c, fields)
	if err != nil {
		s.observe(kind, ResultFailed)
		s.logger.ErrorContext(ctx, "Failed to write entry", log.FieldKind, kind, log.FieldError, err)
		s.notify(msgs.failed, false)
		return "", &WriteError{Collection: c, Err: err}
	}

	s.observe(kind, ResultSuccess)
	s.logger.InfoContext(ctx, "Entry added", log.FieldKind, kind, log.FieldRecordID, id)
	s.notify(msgs.added, true)
	return id, nil
}

func (s *EntryService) rejected(ctx context.Context, kind string, msgs entryMessages, err error) error {
	s.observe(kind, ResultInvalid)
	s.logger.DebugContext(ctx, "Entry rejected", log.FieldKind, kind, log.FieldError, err)
	s.notify(msgs.message(err), false)
	return err
}

// Message returns the user-facing text for the outcome of submitting an
// entry of the given kind ("expense" or "sale"). A nil err is a success.
func Message(kind string, err error) string {
	msgs := expenseMessages
	if kind == core.EntrySale {
		msgs = saleMessages
	}
	return msgs.message(err)
}

func (m entryMessages) message(err error) string {
	switch {
	case err == nil:
		return m.added
	case errors.Is(err, ErrInvalidField):
		return invalidMessage(err)
	case errors.Is(err, ErrMissingField):
		return m.missing
	case errors.Is(err, ErrSessionNotReady):
		return m.notReady
	default:
		return m.failed
	}
}

func (s *EntryService) notify(msg string, ok bool) {
	if s.notifier == nil {
		return
	}
	if ok {
		s.notifier.Success(msg)
	} else {
		s.notifier.Error(msg)
	}
}

func (s *EntryService) observe(kind, result string) {
	if s.recorder != nil {
		s.recorder.ObserveSubmission(kind, result)
	}
}

func invalidMessage(err error) string {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return "Invalid entry."
	}
	switch {
	case errors.Is(err, core.ErrDescriptionTooLong):
		return "Description must be at most 30 characters."
	case errors.Is(err, core.ErrInvalidDate):
		return "Date must be in YYYY-MM-DD format."
	case errors.Is(err, core.ErrUnknownType):
		return "Unknown " + ve.Field + "."
	default:
		return "Invalid " + ve.Field + ": enter a non-negative number."
	}
}

// ParseExpense validates in and derives the total. Missing fields are
// reported before malformed ones.
func ParseExpense(in ExpenseInput) (core.Expense, error) {
	if err := requireFields(
		core.FieldDescription, in.Description,
		core.FieldDate, in.Date,
		core.FieldPerUnitCost, in.PerUnitCost,
		core.FieldQuantity, in.Quantity,
	); err != nil {
		return core.Expense{}, err
	}
	typ, err := core.ParseExpenseType(in.Type)
	if err != nil {
		return core.Expense{}, invalid(core.FieldTypeOfExpense, err)
	}
	desc, date, unit, qty, err := parseCommon(in.Description, in.Date, core.FieldPerUnitCost, in.PerUnitCost, in.Quantity)
	if err != nil {
		return core.Expense{}, err
	}
	return core.Expense{
		Type:        typ,
		Description: desc,
		Date:        date,
		PerUnitCost: unit,
		Quantity:    qty,
		TotalCost:   unit.Mul(qty),
	}, nil
}

// ParseSale validates in and derives the total.
func ParseSale(in SaleInput) (core.Sale, error) {
	if err := requireFields(
		core.FieldDescription, in.Description,
		core.FieldDate, in.Date,
		core.FieldPerUnitSalePrice, in.PerUnitSalePrice,
		core.FieldQuantity, in.Quantity,
	); err != nil {
		return core.Sale{}, err
	}
	typ, err := core.ParseSaleType(in.Type)
	if err != nil {
		return core.Sale{}, invalid(core.FieldTypeOfSale, err)
	}
	desc, date, unit, qty, err := parseCommon(in.Description, in.Date, core.FieldPerUnitSalePrice, in.PerUnitSalePrice, in.Quantity)
	if err != nil {
		return core.Sale{}, err
	}
	return core.Sale{
		Type:             typ,
		Description:      desc,
		Date:             date,
		PerUnitSalePrice: unit,
		Quantity:         qty,
		TotalSalePrice:   unit.Mul(qty),
	}, nil
}

// requireFields takes name, value pairs and reports the first blank value.
func requireFields(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return missing(pairs[i])
		}
	}
	return nil
}

func parseCommon(description, date, unitField, unit, quantity string) (string, core.Date, decimal.Decimal, decimal.Decimal, error) {
	var zero decimal.Decimal

	desc := strings.TrimSpace(description)
	if err := core.ValidateDescription(desc); err != nil {
		return "", core.Date{}, zero, zero, invalid(core.FieldDescription, err)
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return "", core.Date{}, zero, zero, invalid(core.FieldDate, err)
	}
	u, err := core.ParseAmount(unit)
	if err != nil {
		return "", core.Date{}, zero, zero, invalid(unitField, err)
	}
	q, err := core.ParseAmount(quantity)
	if err != nil {
		return "", core.Date{}, zero, zero, invalid(core.FieldQuantity, err)
	}
	return desc, d, u, q, nil
}

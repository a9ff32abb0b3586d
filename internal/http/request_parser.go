package http

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"trackbus/internal/core"
	"trackbus/internal/services"
)

var errUnsupportedMediaType = errors.New("unsupported media type")

// formValue accepts a JSON string or number. Numbers keep their literal
// text so "10.50" and 10.50 parse the same way downstream.
type formValue string

func (v *formValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*v = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = formValue(s)
	case len(b) > 0 && (b[0] == '-' || (b[0] >= '0' && b[0] <= '9')):
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*v = formValue(n.String())
	default:
		return fmt.Errorf("expected string or number, got %s", b)
	}
	return nil
}

type expenseRequest struct {
	TypeOfExpense formValue `json:"typeOfExpense"`
	Description   formValue `json:"description"`
	Date          formValue `json:"date"`
	PerUnitCost   formValue `json:"perUnitCost"`
	Quantity      formValue `json:"quantity"`
}

type saleRequest struct {
	TypeOfSale       formValue `json:"typeOfSale"`
	Description      formValue `json:"description"`
	Date             formValue `json:"date"`
	PerUnitSalePrice formValue `json:"perUnitSalePrice"`
	Quantity         formValue `json:"quantity"`
}

func parseExpenseRequest(w http.ResponseWriter, r *http.Request) (services.ExpenseInput, error) {
	var req expenseRequest
	if err := decodeBody(w, r, &req, func(get func(string) string) {
		req = expenseRequest{
			TypeOfExpense: formValue(get(core.FieldTypeOfExpense)),
			Description:   formValue(get(core.FieldDescription)),
			Date:          formValue(get(core.FieldDate)),
			PerUnitCost:   formValue(get(core.FieldPerUnitCost)),
			Quantity:      formValue(get(core.FieldQuantity)),
		}
	}); err != nil {
		return services.ExpenseInput{}, err
	}
	return services.ExpenseInput{
		Type:        string(req.TypeOfExpense),
		Description: sanitizeInput(string(req.Description)),
		Date:        strings.TrimSpace(string(req.Date)),
		PerUnitCost: string(req.PerUnitCost),
		Quantity:    string(req.Quantity),
	}, nil
}

func parseSaleRequest(w http.ResponseWriter, r *http.Request) (services.SaleInput, error) {
	var req saleRequest
	if err := decodeBody(w, r, &req, func(get func(string) string) {
		req = saleRequest{
			TypeOfSale:       formValue(get(core.FieldTypeOfSale)),
			Description:      formValue(get(core.FieldDescription)),
			Date:             formValue(get(core.FieldDate)),
			PerUnitSalePrice: formValue(get(core.FieldPerUnitSalePrice)),
			Quantity:         formValue(get(core.FieldQuantity)),
		}
	}); err != nil {
		return services.SaleInput{}, err
	}
	return services.SaleInput{
		Type:             string(req.TypeOfSale),
		Description:      sanitizeInput(string(req.Description)),
		Date:             strings.TrimSpace(string(req.Date)),
		PerUnitSalePrice: string(req.PerUnitSalePrice),
		Quantity:         string(req.Quantity),
	}, nil
}

// decodeBody decodes a JSON body into dst, or hands form values to fromForm
// when the request is form-encoded. A missing Content-Type means JSON.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, fromForm func(get func(string) string)) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return fmt.Errorf("%w: %s", errUnsupportedMediaType, ct)
		}
		mediaType = mt
	}

	switch mediaType {
	case "application/json":
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil {
			return fmt.Errorf("decode body: %w", err)
		}
		if dec.More() {
			return errors.New("decode body: trailing data")
		}
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return fmt.Errorf("parse form: %w", err)
		}
		fromForm(r.PostForm.Get)
	default:
		return fmt.Errorf("%w: %s", errUnsupportedMediaType, mediaType)
	}
	return nil
}

// sanitizeInput drops control characters other than tab and newlines, and
// trims surrounding whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackbus/internal/core"
	"trackbus/internal/notify"
	"trackbus/internal/services"
	"trackbus/internal/session"
	"trackbus/internal/store"
	"trackbus/internal/store/memory"
	"trackbus/internal/telemetry"
	"trackbus/internal/tracker"
)

type harness struct {
	srv      *Server
	store    *memory.Store
	tracker  *tracker.Tracker
	notifier *notify.Notifier
}

func newHarness(t *testing.T, run bool) *harness {
	t.Helper()
	st := memory.New()
	st.Replace(store.Partners, []store.Record{
		{ID: "p1", Fields: map[string]any{core.FieldName: "Alice", core.FieldMoneyInvested: "1000"}},
	})
	st.Replace(store.Sales, []store.Record{
		{ID: "s1", Fields: map[string]any{core.FieldTotalSalePrice: "500"}},
	})
	st.Replace(store.Expenses, []store.Record{
		{ID: "e1", Fields: map[string]any{core.FieldTotalCost: "200"}},
	})

	n := notify.New(notify.WithTTL(time.Minute))
	t.Cleanup(n.Close)
	metrics := telemetry.New()
	tr := tracker.New(st, session.NewJWTProvider("secret", time.Hour), n, tracker.WithObserver(metrics))
	entries := services.NewEntryService(st, n,
		services.WithReadiness(tr),
		services.WithRecorder(metrics))

	srv := NewServer(":0", Dependencies{
		Tracker:       tr,
		Session:       tr.Session(),
		Entries:       entries,
		Notifications: n,
		Metrics:       metrics.Handler(),
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	if run {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- tr.Run(ctx) }()
		t.Cleanup(func() {
			cancel()
			<-done
		})
		waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer waitCancel()
		require.NoError(t, tr.WaitLoaded(waitCtx))
	}
	return &harness{srv: srv, store: st, tracker: tr, notifier: n}
}

func (h *harness) do(method, path, contentType, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.RemoteAddr = "203.0.113.10:5555"
	h.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthAndReadiness(t *testing.T) {
	h := newHarness(t, false)

	rr := h.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = h.do(http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	sess := decode[sessionResponse](t, h.do(http.MethodGet, "/api/session", "", ""))
	assert.Equal(t, session.StateUninitialized.String(), sess.State)
	assert.False(t, sess.Ready)
}

func TestPartnersReport(t *testing.T) {
	h := newHarness(t, true)

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/readyz", "", "").Code)

	require.Eventually(t, func() bool { return len(h.tracker.Report().Partners) == 1 }, time.Second, 5*time.Millisecond)
	rep := decode[reportResponse](t, h.do(http.MethodGet, "/api/partners", "", ""))
	assert.Equal(t, "300.00", rep.OverallProfitLoss)
	assert.Equal(t, "1000.00", rep.TotalInvestment)
	require.Len(t, rep.Partners, 1)
	p := rep.Partners[0]
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, "100.00", p.PercentOfOverallInvestment)
	assert.Equal(t, "300.00", p.PartnerProfitLoss)
	assert.Equal(t, "30.00", p.PercentOfProfitLoss)

	sess := decode[sessionResponse](t, h.do(http.MethodGet, "/api/session", "", ""))
	assert.True(t, sess.Ready)
	require.NotNil(t, sess.Identity)
	assert.True(t, sess.Identity.Anonymous)
}

func TestCreateExpense(t *testing.T) {
	h := newHarness(t, true)

	rr := h.do(http.MethodPost, "/api/expenses", "application/json",
		`{"typeOfExpense":"shuttle cost","description":"fuel","date":"2024-06-01","perUnitCost":"10","quantity":3}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decode[submissionResponse](t, rr)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "Expense added successfully!", resp.Message)

	require.Eventually(t, func() bool {
		list := decode[listResponse[expenseResponse]](t, h.do(http.MethodGet, "/api/expenses", "", ""))
		return len(list.Items) == 2
	}, time.Second, 5*time.Millisecond)

	list := decode[listResponse[expenseResponse]](t, h.do(http.MethodGet, "/api/expenses", "", ""))
	assert.True(t, list.Loaded)
	var added *expenseResponse
	for i := range list.Items {
		if list.Items[i].ID == resp.ID {
			added = &list.Items[i]
		}
	}
	require.NotNil(t, added)
	assert.Equal(t, "30.00", added.TotalCost)
	assert.Equal(t, "shuttle cost", added.TypeOfExpense)

	rr = h.do(http.MethodGet, "/api/notification", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	n := decode[notify.Notification](t, rr)
	assert.Equal(t, notify.KindSuccess, n.Kind)
}

func TestCreateSaleFromForm(t *testing.T) {
	h := newHarness(t, true)

	rr := h.do(http.MethodPost, "/api/sales", "application/x-www-form-urlencoded",
		"typeOfSale=shuttle+sale&description=ride&date=2024-06-02&perUnitSalePrice=2.5&quantity=4")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	recs := h.store.Records(store.Sales)
	require.Len(t, recs, 2)
}

func TestCreateValidationErrors(t *testing.T) {
	h := newHarness(t, true)

	tests := []struct {
		name      string
		path      string
		body      string
		wantCode  string
		wantField string
	}{
		{
			name:      "missing quantity",
			path:      "/api/expenses",
			body:      `{"description":"fuel","date":"2024-06-01","perUnitCost":"10"}`,
			wantCode:  "missing_field",
			wantField: core.FieldQuantity,
		},
		{
			name:      "bad date",
			path:      "/api/sales",
			body:      `{"description":"ride","date":"01/06/2024","perUnitSalePrice":"1","quantity":"1"}`,
			wantCode:  "invalid_field",
			wantField: core.FieldDate,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := h.do(http.MethodPost, tt.path, "application/json", tt.body)
			require.Equal(t, http.StatusBadRequest, rr.Code)
			resp := decode[errorResponse](t, rr)
			assert.Equal(t, tt.wantCode, resp.Error)
			assert.Equal(t, tt.wantField, resp.Field)
			assert.NotEmpty(t, resp.Message)
		})
	}
	assert.Len(t, h.store.Records(store.Expenses), 1, "nothing written")
}

func TestMalformedBodies(t *testing.T) {
	h := newHarness(t, true)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/expenses", "application/json", `{"description":`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/expenses", "application/json", `{"unknown":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/expenses", "application/json", `{"quantity":true}`).Code)
	assert.Equal(t, http.StatusUnsupportedMediaType, h.do(http.MethodPost, "/api/expenses", "text/plain", "hi").Code)
}

func TestCreateBeforeReady(t *testing.T) {
	h := newHarness(t, false)

	rr := h.do(http.MethodPost, "/api/expenses", "application/json",
		`{"description":"fuel","date":"2024-06-01","perUnitCost":"10","quantity":"3"}`)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	resp := decode[errorResponse](t, rr)
	assert.Equal(t, "store_unavailable", resp.Error)
	assert.Equal(t, "Database not ready. Please try again.", resp.Message)
}

func TestCreateWriteFailure(t *testing.T) {
	h := newHarness(t, true)
	h.store.SetWriteError(assert.AnError)

	rr := h.do(http.MethodPost, "/api/sales", "application/json",
		`{"description":"ride","date":"2024-06-01","perUnitSalePrice":"1","quantity":"1"}`)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "Failed to add sale.", decode[errorResponse](t, rr).Message)
}

func TestNotificationEmpty(t *testing.T) {
	h := newHarness(t, false)
	rr := h.do(http.MethodGet, "/api/notification", "", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, true)
	rr := h.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "trackbus_")
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHarness(t, false)
	assert.Equal(t, http.StatusMethodNotAllowed, h.do(http.MethodDelete, "/api/partners", "", "").Code)
}

func TestSuspiciousPathRejected(t *testing.T) {
	h := newHarness(t, false)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/.env", "", "").Code)
}

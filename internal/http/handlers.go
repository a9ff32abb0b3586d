package http

import (
	"errors"
	"net/http"

	"trackbus/internal/core"
	"trackbus/internal/log"
	"trackbus/internal/services"
	"trackbus/internal/store"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !s.deps.Tracker.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Session.State()
	resp := sessionResponse{
		State:    st.String(),
		Ready:    s.deps.Tracker.Ready(),
		Identity: s.deps.Session.Identity(),
	}
	if err := s.deps.Session.Err(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePartners(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newReportResponse(s.deps.Tracker.Report()))
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	writeJSON(w, http.StatusOK, listResponse[expenseResponse]{
		Items:  newExpenseResponses(snap.Expenses),
		Loaded: snap.Loaded[store.Expenses],
	})
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	writeJSON(w, http.StatusOK, listResponse[saleResponse]{
		Items:  newSaleResponses(snap.Sales),
		Loaded: snap.Loaded[store.Sales],
	})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	in, err := parseExpenseRequest(w, r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	id, err := s.deps.Entries.SubmitExpense(r.Context(), in)
	s.writeSubmission(w, r, core.EntryExpense, id, err)
}

func (s *Server) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	in, err := parseSaleRequest(w, r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	id, err := s.deps.Entries.SubmitSale(r.Context(), in)
	s.writeSubmission(w, r, core.EntrySale, id, err)
}

func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	n, ok := s.deps.Notifications.Current()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	log.FromContext(r.Context()).DebugContext(r.Context(), "Malformed request body", log.FieldError, err)
	status := http.StatusBadRequest
	if errors.Is(err, errUnsupportedMediaType) {
		status = http.StatusUnsupportedMediaType
	}
	writeError(w, status, "bad_request", "", "Malformed request body.")
}

// writeSubmission maps a submission outcome to 201, 400 or 503.
func (s *Server) writeSubmission(w http.ResponseWriter, r *http.Request, kind, id string, err error) {
	msg := services.Message(kind, err)
	if err == nil {
		writeJSON(w, http.StatusCreated, submissionResponse{ID: id, Message: msg})
		return
	}

	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		code := "missing_field"
		if errors.Is(err, services.ErrInvalidField) {
			code = "invalid_field"
		}
		writeError(w, http.StatusBadRequest, code, ve.Field, msg)
	case errors.Is(err, services.ErrStoreUnavailable):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "", msg)
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Unexpected submission error", log.FieldKind, kind, log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal", "", msg)
	}
}

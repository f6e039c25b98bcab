package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"punchclock.service/internal/core/ingest"
	"punchclock.service/internal/core/model"
	"punchclock.service/internal/core/payroll"
	"punchclock.service/internal/core/payrun"
)

type stubIngester struct {
	result ingest.Result
	err    error
	got    ingest.Request
}

func (s *stubIngester) Ingest(_ context.Context, req ingest.Request) (ingest.Result, error) {
	s.got = req
	return s.result, s.err
}

type stubQueue []model.QueuedPunch

func (s stubQueue) Terminal(context.Context) ([]model.QueuedPunch, error) { return s, nil }

type stubRuns struct {
	period     payroll.Period
	previewErr error
}

func (s *stubRuns) Preview(_ context.Context, p payroll.Period) ([]payrun.PreviewLine, error) {
	s.period = p
	if s.previewErr != nil {
		return nil, s.previewErr
	}
	return []payrun.PreviewLine{
		{EmployeeID: "emp-1", Result: &payroll.MonthlyWageResult{EmployeeID: "emp-1", Period: p.String()}},
		{EmployeeID: "emp-2", Error: "missing calculation configuration"},
	}, nil
}

func (s *stubRuns) Finalize(_ context.Context, p payroll.Period) (payrun.Summary, error) {
	s.period = p
	return payrun.Summary{RunID: "run-1", Period: p.String(), Employees: 3}, nil
}

func postPunch(h *PunchHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/punches", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.Punch(rec, req)
	return rec
}

func TestPunchAccepted(t *testing.T) {
	svc := &stubIngester{result: ingest.Result{Accepted: true, EventID: "ev-1"}}
	h := &PunchHandler{Service: svc}

	rec := postPunch(h, `{"employeeCredential":"CARD-1","credentialScheme":"RAW","punchKind":"IN","timestamp":"2025-03-03T09:00:00Z"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "CARD-1", svc.got.Credential)
	assert.Equal(t, model.PunchKind("IN"), svc.got.Kind)

	var res ingest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "ev-1", res.EventID)
}

func TestPunchErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid", fmt.Errorf("%w: missing timestamp", ingest.ErrInvalidRequest), http.StatusBadRequest, "invalid_request"},
		{"unknown card", model.ErrUnknownCredential, http.StatusNotFound, "not_recognized"},
		{"inactive", model.ErrInactiveEmployee, http.StatusNotFound, "not_recognized"},
		{"duplicate", model.ErrDuplicatePunch, http.StatusConflict, "duplicate_punch"},
		{"transition", fmt.Errorf("%w: IN after IN", model.ErrInvalidTransition), http.StatusConflict, "invalid_transition"},
		{"out of order", fmt.Errorf("%w: %w", model.ErrConflict, model.ErrOutOfOrder), http.StatusConflict, "conflict"},
		{"transient", fmt.Errorf("enqueue: %w", model.ErrTransient), http.StatusServiceUnavailable, "unavailable"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &PunchHandler{Service: &stubIngester{err: tt.err}}
			rec := postPunch(h, `{"employeeCredential":"CARD-1","punchKind":"IN"}`)

			assert.Equal(t, tt.status, rec.Code)
			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error)
			assert.NotContains(t, body.Message, "inactive")
			assert.NotContains(t, body.Message, "boom")
		})
	}
}

func TestPunchMalformedBody(t *testing.T) {
	svc := &stubIngester{}
	rec := postPunch(&PunchHandler{Service: svc}, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.got.Credential)
}

func TestTerminalListsEntries(t *testing.T) {
	entries := stubQueue{{Punch: model.Punch{EmployeeID: "emp-1", Kind: model.KindIn, Timestamp: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)}, Terminal: true, ErrorMessage: "invalid punch transition"}}
	h := &PunchHandler{Queue: entries}

	rec := httptest.NewRecorder()
	h.Terminal(rec, httptest.NewRequest(http.MethodGet, "/api/v1/queue/terminal", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var got []model.QueuedPunch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.True(t, got[0].Terminal)
	assert.Equal(t, "emp-1", got[0].EmployeeID)
}

func TestTerminalEmptyIsArray(t *testing.T) {
	rec := httptest.NewRecorder()
	(&PunchHandler{Queue: stubQueue(nil)}).Terminal(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestFinalize(t *testing.T) {
	runs := &stubRuns{}
	h := &PayrollHandler{Runs: runs}

	req := mux.SetURLVars(httptest.NewRequest(http.MethodPost, "/", nil), map[string]string{"period": "2025-03"})
	rec := httptest.NewRecorder()
	h.Finalize(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, payroll.Period{Year: 2025, Month: time.March}, runs.period)

	req = mux.SetURLVars(httptest.NewRequest(http.MethodPost, "/", nil), map[string]string{"period": "March"})
	rec = httptest.NewRecorder()
	h.Finalize(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreview(t *testing.T) {
	runs := &stubRuns{}
	h := &PayrollHandler{Runs: runs}

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"period": "2025-03"})
	rec := httptest.NewRecorder()
	h.Preview(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var lines []payrun.PreviewLine
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lines))
	require.Len(t, lines, 2)
	assert.Equal(t, "2025-03", lines[0].Result.Period)
	assert.NotEmpty(t, lines[1].Error)

	runs.previewErr = fmt.Errorf("list punches: %w", model.ErrTransient)
	rec = httptest.NewRecorder()
	h.Preview(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

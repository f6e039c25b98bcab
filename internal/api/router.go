package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"punchclock.service/internal/api/handler"
)

// NewRouter mounts the punch, queue and payroll endpoints under /api/v1.
func NewRouter(service handler.Ingester, queue handler.TerminalLister, runs handler.PayrollRuns) *mux.Router {
	punches := &handler.PunchHandler{Service: service, Queue: queue}
	payroll := &handler.PayrollHandler{Runs: runs}

	r := mux.NewRouter()
	v1 := r.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/punches", punches.Punch).Methods(http.MethodPost)
	v1.HandleFunc("/queue/terminal", punches.Terminal).Methods(http.MethodGet)
	v1.HandleFunc("/payroll/periods/{period}/finalize", payroll.Finalize).Methods(http.MethodPost)
	v1.HandleFunc("/payroll/periods/{period}/preview", payroll.Preview).Methods(http.MethodGet)
	v1.HandleFunc("/health", handler.Health).Methods(http.MethodGet)

	return r
}

// Stand-in for the external payroll system during local development.
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"punchclock.service/internal/core/payroll"
)

type exportHandler struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (h *exportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var result payroll.MonthlyWageResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if result.EmployeeID == "" || result.Period == "" {
		http.Error(w, "employeeId and period are required", http.StatusUnprocessableEntity)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	h.mu.Lock()
	dup := h.seen[key]
	h.seen[key] = true
	h.mu.Unlock()

	log.Info().
		Str("employee_id", result.EmployeeID).
		Str("period", result.Period).
		Str("net", result.Net.String()).
		Bool("duplicate", dup).
		Msg("Received monthly wage result")
	w.WriteHeader(http.StatusOK)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	http.Handle("/", &exportHandler{seen: map[string]bool{}})
	log.Info().Msg("Payroll API mock server starting on port 8081...")
	log.Fatal().Err(http.ListenAndServe(":8081", nil)).Msg("server stopped")
}

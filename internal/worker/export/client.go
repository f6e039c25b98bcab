// Package export delivers monthly wage results to the external payroll
// system.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"punchclock.service/internal/core/payroll"
)

// ErrRejected means the payroll system refused the result; resending the
// same payload will not help.
var ErrRejected = errors.New("payroll system rejected export")

type Client interface {
	Export(ctx context.Context, result payroll.MonthlyWageResult) error
}

// HTTPClient posts results as JSON.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL: baseURL,
	}
}

// Export sends one employee's period. The idempotency key lets the payroll
// system drop redeliveries.
func (c *HTTPClient) Export(ctx context.Context, result payroll.MonthlyWageResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal export payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", result.EmployeeID+"/"+result.Period)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call payroll system: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("payroll system returned status %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	log.Ctx(ctx).Info().
		Str("employee_id", result.EmployeeID).
		Str("period", result.Period).
		Msg("Exported monthly wage result")
	return nil
}

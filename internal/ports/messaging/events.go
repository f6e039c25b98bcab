package messaging

import "time"

// ShiftClosedEvent is the JSON payload sent via SQS to the email queue after
// an OUT punch is committed.
type ShiftClosedEvent struct {
	EventID     string    `json:"eventId"`
	EmployeeID  string    `json:"employeeId"`
	BusinessDay string    `json:"businessDay"`
	ClosedAt    time.Time `json:"closedAt"`
}

// PayrollRunEvent is the JSON payload sent via SQS to the payroll queue, one
// per employee of a finalized period.
type PayrollRunEvent struct {
	RunID       string    `json:"runId"`
	EmployeeID  string    `json:"employeeId"`
	Period      string    `json:"period"`
	RequestedAt time.Time `json:"requestedAt"`
}

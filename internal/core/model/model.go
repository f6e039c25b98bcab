package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WageType defines how an employee is paid.
type WageType string

const (
	WageHourly  WageType = "HOURLY"
	WageMonthly WageType = "MONTHLY"
)

// CredentialScheme tags how a card identifier was registered.
type CredentialScheme string

const (
	// SchemeLegacyHash stores the sha256 of the raw card id.
	SchemeLegacyHash CredentialScheme = "LEGACY_HASH"
	// SchemeRaw stores the normalized raw card id.
	SchemeRaw CredentialScheme = "RAW"
)

// PunchKind is the category of a presence event.
type PunchKind string

const (
	KindIn      PunchKind = "IN"
	KindOut     PunchKind = "OUT"
	KindOutside PunchKind = "OUTSIDE"
	KindReturn  PunchKind = "RETURN"
)

// Valid reports whether k is one of the four known kinds.
func (k PunchKind) Valid() bool {
	switch k {
	case KindIn, KindOut, KindOutside, KindReturn:
		return true
	}
	return false
}

type Employee struct {
	ID            string          `json:"id"`
	DisplayName   string          `json:"displayName"`
	Email         string          `json:"email"`
	Active        bool            `json:"active"`
	WageType      WageType        `json:"wageType"`
	HourlyRate    decimal.Decimal `json:"hourlyRate"`
	MonthlySalary decimal.Decimal `json:"monthlySalary"`
}

type CardCredential struct {
	ID         int64            `json:"id"`
	EmployeeID string           `json:"employeeId"`
	Scheme     CredentialScheme `json:"scheme"`
	CardKey    string           `json:"cardKey"`
	Active     bool             `json:"active"`
}

// DeviceMetadata describes the reader that produced a tap.
type DeviceMetadata struct {
	DeviceID string `json:"deviceId,omitempty"`
	Origin   string `json:"origin,omitempty"`
}

// Punch is a resolved tap waiting to be validated by the state machine.
type Punch struct {
	EmployeeID  string           `json:"employeeId"`
	Kind        PunchKind        `json:"kind"`
	Timestamp   time.Time        `json:"timestamp"`
	Credential  string           `json:"credential"`
	Scheme      CredentialScheme `json:"scheme"`
	Device      DeviceMetadata   `json:"device"`
	Fingerprint string           `json:"fingerprint"`
}

// NewPunch normalizes the timestamp to UTC at the microsecond precision the
// punch log stores, and computes the fingerprint.
func NewPunch(employeeID string, kind PunchKind, ts time.Time, credential string, scheme CredentialScheme, device DeviceMetadata) Punch {
	ts = ts.UTC().Truncate(time.Microsecond)
	return Punch{
		EmployeeID:  employeeID,
		Kind:        kind,
		Timestamp:   ts,
		Credential:  credential,
		Scheme:      scheme,
		Device:      device,
		Fingerprint: Fingerprint(employeeID, kind, ts, credential),
	}
}

// PunchEvent is a punch committed to the system of record. Immutable.
type PunchEvent struct {
	ID          string           `json:"id"`
	EmployeeID  string           `json:"employeeId"`
	Kind        PunchKind        `json:"kind"`
	Timestamp   time.Time        `json:"timestamp"`
	Credential  string           `json:"credential"`
	Scheme      CredentialScheme `json:"scheme"`
	Device      DeviceMetadata   `json:"device"`
	Fingerprint string           `json:"fingerprint"`
	RecordedAt  time.Time        `json:"recordedAt"`
}

// QueuedPunch is a punch held in the offline queue until the system of
// record confirms it.
type QueuedPunch struct {
	Punch
	RetryCount    int        `json:"retryCount"`
	LastRetryAt   *time.Time `json:"lastRetryAt,omitempty"`
	NextAttemptAt time.Time  `json:"nextAttemptAt"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	Terminal      bool       `json:"terminal"`
}

type JobStatus string

const (
	StatusPending   JobStatus = "PENDING"
	StatusCompleted JobStatus = "COMPLETED"
	StatusFailed    JobStatus = "FAILED"
)

// PayrollExport tracks delivery of one employee's monthly result to the
// external payroll system.
type PayrollExport struct {
	EmployeeID string
	Period     string
	Status     JobStatus
	RetryCount int
	Result     []byte
	UpdatedAt  time.Time
}

// Notification tracks the daily summary email sent for a closing punch.
type Notification struct {
	EventID    string
	EmployeeID string
	Status     JobStatus
	RetryCount int
	UpdatedAt  time.Time
}

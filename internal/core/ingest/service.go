// Package ingest is the path a card tap takes from the transport layer to
// the punch log: resolve the card, validate and record the punch, and fall
// back to the offline queue when the system of record cannot confirm it.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"punchclock.service/internal/core/identity"
	"punchclock.service/internal/core/keylock"
	"punchclock.service/internal/core/model"
	"punchclock.service/internal/ports/messaging"
)

// ErrInvalidRequest marks a request that is malformed before any lookup.
var ErrInvalidRequest = errors.New("invalid punch request")

// Request is one tap as delivered by a reader.
type Request struct {
	Credential string                 `json:"employeeCredential"`
	Scheme     model.CredentialScheme `json:"credentialScheme"`
	Kind       model.PunchKind        `json:"punchKind"`
	Timestamp  time.Time              `json:"timestamp"`
	Device     model.DeviceMetadata   `json:"deviceMetadata"`
}

func (r Request) validate() error {
	switch {
	case r.Credential == "":
		return fmt.Errorf("%w: employeeCredential is required", ErrInvalidRequest)
	case !r.Kind.Valid():
		return fmt.Errorf("%w: unknown punchKind %q", ErrInvalidRequest, r.Kind)
	case r.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp is required", ErrInvalidRequest)
	}
	return nil
}

// Result reports how a tap was taken. Queued taps are durably captured but
// not yet confirmed by the system of record.
type Result struct {
	Accepted    bool   `json:"accepted"`
	Queued      bool   `json:"queued"`
	EventID     string `json:"eventId,omitempty"`
	Fingerprint string `json:"fingerprint"`
}

type Resolver interface {
	Resolve(ctx context.Context, raw string, scheme model.CredentialScheme) (model.Employee, error)
}

type Recorder interface {
	Accept(ctx context.Context, p model.Punch) (model.PunchEvent, error)
}

// Buffer is the offline queue as seen by the ingestion path.
type Buffer interface {
	Enqueue(ctx context.Context, p model.Punch) (bool, error)
	MarkDelivered(ctx context.Context, p model.Punch) error
	HasPending(ctx context.Context, employeeID string) (bool, error)
}

type Service struct {
	resolver Resolver
	recorder Recorder
	buffer   Buffer
	producer messaging.QueueProducer
	day      model.DayRule
	locks    *keylock.Locker
}

func NewService(resolver Resolver, recorder Recorder, buffer Buffer, producer messaging.QueueProducer, day model.DayRule) *Service {
	return &Service{
		resolver: resolver,
		recorder: recorder,
		buffer:   buffer,
		producer: producer,
		day:      day,
		locks:    keylock.New(),
	}
}

// Ingest records one tap. Identity and sequence failures are returned as
// model errors; a system of record outage is absorbed by the queue.
func (s *Service) Ingest(ctx context.Context, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}

	employee, err := s.resolver.Resolve(ctx, req.Credential, req.Scheme)
	if err != nil {
		return Result{}, err
	}
	cardKey, err := identity.CardKey(req.Scheme, req.Credential)
	if err != nil {
		return Result{}, err
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.String("app.employeeId", employee.ID))
	logger := log.Ctx(ctx).With().Str("employee_id", employee.ID).Logger()
	ctx = logger.WithContext(ctx)

	p := model.NewPunch(employee.ID, req.Kind, req.Timestamp, cardKey, req.Scheme, req.Device)

	// A tap falling back to the queue must be queued before the next tap
	// for the same employee looks at the queue.
	unlock := s.locks.Lock(employee.ID)
	defer unlock()

	// Earlier taps still waiting in the queue must land first.
	waiting, err := s.buffer.HasPending(ctx, employee.ID)
	if err != nil {
		return Result{}, fmt.Errorf("check offline queue: %w", err)
	}
	if waiting {
		return s.enqueue(ctx, p, nil)
	}

	event, err := s.recorder.Accept(ctx, p)
	switch {
	case err == nil:
		if err := s.buffer.MarkDelivered(ctx, p); err != nil {
			logger.Warn().Err(err).Str("fingerprint", p.Fingerprint).Msg("Failed to record delivered fingerprint")
		}
		s.announce(ctx, event)
		return Result{Accepted: true, EventID: event.ID, Fingerprint: p.Fingerprint}, nil
	case errors.Is(err, model.ErrTransient):
		return s.enqueue(ctx, p, err)
	default:
		return Result{}, err
	}
}

func (s *Service) enqueue(ctx context.Context, p model.Punch, cause error) (Result, error) {
	if _, err := s.buffer.Enqueue(ctx, p); err != nil {
		if cause != nil {
			err = errors.Join(cause, err)
		}
		return Result{}, fmt.Errorf("punch not captured: %w", err)
	}
	ev := log.Ctx(ctx).Warn().Str("fingerprint", p.Fingerprint)
	if cause != nil {
		ev = ev.Err(cause)
	}
	ev.Msg("Punch deferred to offline queue")
	return Result{Accepted: true, Queued: true, Fingerprint: p.Fingerprint}, nil
}

// Submit replays a queued punch through the state machine. It satisfies
// queue.Submitter.
func (s *Service) Submit(ctx context.Context, p model.Punch) error {
	unlock := s.locks.Lock(p.EmployeeID)
	defer unlock()

	event, err := s.recorder.Accept(ctx, p)
	if err != nil {
		return err
	}
	s.announce(ctx, event)
	return nil
}

// announce publishes a closed shift. Failing to publish never fails the tap.
func (s *Service) announce(ctx context.Context, event model.PunchEvent) {
	if event.Kind != model.KindOut || s.producer == nil {
		return
	}
	msg := messaging.ShiftClosedEvent{
		EventID:     event.ID,
		EmployeeID:  event.EmployeeID,
		BusinessDay: s.day.BusinessDay(event.Timestamp).Format(time.DateOnly),
		ClosedAt:    event.Timestamp,
	}
	if err := s.producer.PublishShiftClosed(ctx, msg); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("event_id", event.ID).Msg("Failed to publish shift closed event")
	}
}

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	TypePayrollRun  = "payroll.run"
	TypeShiftClosed = "punch.shift_closed"

	// EventTypeAttribute is the transport attribute carrying Message.Type.
	EventTypeAttribute = "EventType"
)

var ErrNoQueue = errors.New("no queue configured")

// Producer routes events to the payroll and summary queues.
type Producer struct {
	sender          MessageSender
	payrollQueueURL string
	emailQueueURL   string
}

func NewProducer(sender MessageSender, payrollQueueURL, emailQueueURL string) *Producer {
	return &Producer{
		sender:          sender,
		payrollQueueURL: payrollQueueURL,
		emailQueueURL:   emailQueueURL,
	}
}

func (p *Producer) PublishPayrollRun(ctx context.Context, event PayrollRunEvent) error {
	return p.publish(ctx, p.payrollQueueURL, TypePayrollRun, event.EmployeeID, event)
}

func (p *Producer) PublishShiftClosed(ctx context.Context, event ShiftClosedEvent) error {
	return p.publish(ctx, p.emailQueueURL, TypeShiftClosed, event.EmployeeID, event)
}

func (p *Producer) publish(ctx context.Context, destination, eventType, employeeID string, event any) error {
	if destination == "" {
		return fmt.Errorf("%w for %s", ErrNoQueue, eventType)
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("app.employeeId", employeeID),
		attribute.String("messaging.event_type", eventType),
	)

	if err := p.sender.SendMessage(ctx, destination, Message{Type: eventType, Body: body}); err != nil {
		return fmt.Errorf("send %s: %w", eventType, err)
	}
	return nil
}

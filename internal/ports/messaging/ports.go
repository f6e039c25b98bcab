package messaging

import (
	"context"
)

// QueueProducer publishes the domain events other processes consume.
type QueueProducer interface {
	PublishPayrollRun(ctx context.Context, event PayrollRunEvent) error
	PublishShiftClosed(ctx context.Context, event ShiftClosedEvent) error
}

// MessageSender delivers an encoded event to one destination queue.
type MessageSender interface {
	SendMessage(ctx context.Context, destination string, msg Message) error
}

// Message is an encoded event plus its type, carried as a message attribute
// so consumers can reject foreign payloads without decoding them.
type Message struct {
	Type string
	Body []byte
}

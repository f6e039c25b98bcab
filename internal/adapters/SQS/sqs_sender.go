// Package sqsadapter sends domain events to AWS SQS.
package sqsadapter

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"punchclock.service/internal/ports/messaging"
	"punchclock.service/pkg/telemetry"
)

type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Sender implements messaging.MessageSender.
type Sender struct {
	client SQSClient
}

func NewSender(client SQSClient) *Sender {
	return &Sender{client: client}
}

func (s *Sender) SendMessage(ctx context.Context, queueURL string, msg messaging.Message) error {
	attributes := telemetry.InjectTraceContext(ctx)
	attributes[messaging.EventTypeAttribute] = types.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(msg.Type),
	}

	_, err := s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(queueURL),
		MessageBody:       aws.String(string(msg.Body)),
		MessageAttributes: attributes,
	})
	return err
}

// NewSQSProducer wires a messaging.Producer to SQS.
func NewSQSProducer(client SQSClient, payrollQueueURL, emailQueueURL string) *messaging.Producer {
	return messaging.NewProducer(NewSender(client), payrollQueueURL, emailQueueURL)
}

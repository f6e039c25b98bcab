// Package notify sends employees the summary of a closed working day.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"punchclock.service/internal/core/payroll"
	"punchclock.service/pkg/telemetry"
)

type EmailService interface {
	SendDailySummary(ctx context.Context, to string, summary payroll.DailyWorkSummary) error
}

type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESEmailService struct {
	client SESClient
	sender string
}

func NewSESEmailService(client SESClient, sender string) *SESEmailService {
	return &SESEmailService{client: client, sender: sender}
}

func (s *SESEmailService) SendDailySummary(ctx context.Context, to string, summary payroll.DailyWorkSummary) error {
	tracer := otel.Tracer("ses-email-service")
	ctx, span := tracer.Start(ctx, "send_email", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	if empID := telemetry.GetEmployeeIDFromContext(ctx); empID != "" {
		span.SetAttributes(attribute.String("app.employeeId", empID))
	}
	span.SetAttributes(attribute.String("app.businessDay", summary.Date))

	input := &ses.SendEmailInput{
		Source: aws.String(s.sender),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Work day summary " + summary.Date),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(SummaryText(summary)),
				},
			},
		},
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		span.RecordError(err)
		return fmt.Errorf("ses send email: %w", err)
	}
	return nil
}

// SummaryText renders the plain-text email body.
func SummaryText(s payroll.DailyWorkSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello,\n\nHere is your summary for %s.\n\n", s.Date)
	fmt.Fprintf(&b, "Worked: %s (recorded %s)\n", hm(s.WorkedMinutes), hm(s.RawMinutes))
	if s.Holiday {
		fmt.Fprintf(&b, "Holiday: %s\n", hm(s.Minutes.Holiday))
	} else {
		fmt.Fprintf(&b, "Regular: %s\n", hm(s.Minutes.Regular))
		if ot := s.Minutes.OvertimeNormal + s.Minutes.OvertimeLate; ot > 0 {
			fmt.Fprintf(&b, "Overtime: %s\n", hm(ot))
		}
	}
	if s.Minutes.Night > 0 {
		fmt.Fprintf(&b, "Night: %s\n", hm(s.Minutes.Night))
	}
	fmt.Fprintf(&b, "Estimated pay: %s\n", s.Total.StringFixed(2))
	if len(s.Issues) > 0 {
		fmt.Fprintf(&b, "\n%d punch(es) could not be paired and were not counted. Please contact your supervisor.\n", len(s.Issues))
	}
	return b.String()
}

func hm(minutes int) string {
	return fmt.Sprintf("%dh%02dm", minutes/60, minutes%60)
}

package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"punchclock.service/internal/core/payroll"
)

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = in
	return &ses.SendEmailOutput{}, f.err
}

func summary() payroll.DailyWorkSummary {
	return payroll.DailyWorkSummary{
		EmployeeID:    "emp-1",
		Date:          "2025-03-03",
		RawMinutes:    532,
		WorkedMinutes: 540,
		Minutes:       payroll.Minutes{Regular: 480, OvertimeNormal: 60},
		Total:         decimal.RequireFromString("9250"),
	}
}

func TestSendDailySummary(t *testing.T) {
	client := &fakeSES{}
	svc := NewSESEmailService(client, "punchclock@example.com")

	require.NoError(t, svc.SendDailySummary(context.Background(), "emp-1@example.com", summary()))

	assert.Equal(t, "punchclock@example.com", aws.ToString(client.input.Source))
	assert.Equal(t, []string{"emp-1@example.com"}, client.input.Destination.ToAddresses)
	assert.Equal(t, "Work day summary 2025-03-03", aws.ToString(client.input.Message.Subject.Data))
}

func TestSendDailySummaryError(t *testing.T) {
	svc := NewSESEmailService(&fakeSES{err: errors.New("throttled")}, "punchclock@example.com")
	assert.ErrorContains(t, svc.SendDailySummary(context.Background(), "a@b", summary()), "throttled")
}

func TestSummaryText(t *testing.T) {
	s := summary()
	text := SummaryText(s)
	assert.Contains(t, text, "Worked: 9h00m (recorded 8h52m)")
	assert.Contains(t, text, "Regular: 8h00m")
	assert.Contains(t, text, "Overtime: 1h00m")
	assert.Contains(t, text, "Estimated pay: 9250.00")
	assert.NotContains(t, text, "could not be paired")

	s.Issues = []payroll.Issue{{Kind: payroll.IssueUnterminatedShift}}
	assert.Contains(t, SummaryText(s), "1 punch(es) could not be paired")
}

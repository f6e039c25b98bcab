package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"punchclock.service/internal/core/model"
	"punchclock.service/internal/core/payroll"
	"punchclock.service/internal/core/punch"
	"punchclock.service/internal/core/queue"
)

// The services run in EKS; everything comes from the pod environment.

type Config struct {
	DBHost             string `mapstructure:"DB_HOST"`
	DBPort             string `mapstructure:"DB_PORT"`
	DBUser             string `mapstructure:"DB_USER"`
	DBPassword         string `mapstructure:"DB_PASSWORD"`
	DBName             string `mapstructure:"DB_NAME"`
	DBAutoMigrate      bool   `mapstructure:"DB_AUTO_MIGRATE"`
	ServerPort         string `mapstructure:"SERVER_PORT"`
	AWSRegion          string `mapstructure:"AWS_REGION"`
	AWSEndpoint        string `mapstructure:"AWS_ENDPOINT"`
	PayrollSQSQueueURL string `mapstructure:"PAYROLL_SQS_QUEUE_URL"`
	EmailSQSQueueURL   string `mapstructure:"EMAIL_SQS_QUEUE_URL"`
	EmailSender        string `mapstructure:"EMAIL_SENDER"`
	EmailDomain        string `mapstructure:"EMAIL_DOMAIN"`
	ExportAPIURL       string `mapstructure:"EXPORT_API_URL"`
	OTLPEndpoint       string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	IsLocalDev         bool   `mapstructure:"IS_LOCAL_DEV"`
	WorkerConcurrency  int    `mapstructure:"WORKER_CONCURRENCY"`

	// Offline queue
	QueueDBPath        string        `mapstructure:"QUEUE_DB_PATH"`
	DrainInterval      time.Duration `mapstructure:"DRAIN_INTERVAL"`
	DrainConcurrency   int           `mapstructure:"DRAIN_CONCURRENCY"`
	MaxAttempts        int           `mapstructure:"MAX_ATTEMPTS"`
	SubmitTimeout      time.Duration `mapstructure:"SUBMIT_TIMEOUT"`
	DeliveredRetention time.Duration `mapstructure:"DELIVERED_RETENTION"`

	// Punch state machine
	DebounceWindow    time.Duration `mapstructure:"DEBOUNCE_WINDOW"`
	AllowDirectOut    bool          `mapstructure:"ALLOW_DIRECT_OUT"`
	AllowRepeatBreaks bool          `mapstructure:"ALLOW_REPEAT_BREAKS"`
	BusinessTZ        string        `mapstructure:"BUSINESS_TZ"`
	DayBoundary       time.Duration `mapstructure:"DAY_BOUNDARY"`

	// Calculation engine
	DailyRoundMinutes      int    `mapstructure:"DAILY_ROUND_MINUTES"`
	MonthlyRoundMinutes    int    `mapstructure:"MONTHLY_ROUND_MINUTES"`
	StandardBusinessWindow string `mapstructure:"STANDARD_BUSINESS_WINDOW"`
	BreakWindow            string `mapstructure:"BREAK_WINDOW"`
	OvertimeThreshold      int    `mapstructure:"OVERTIME_THRESHOLD"`
	OvertimeRateNormal     string `mapstructure:"OVERTIME_RATE_NORMAL"`
	OvertimeRateLate       string `mapstructure:"OVERTIME_RATE_LATE"`
	NightWindow            string `mapstructure:"NIGHT_WINDOW"`
	NightRate              string `mapstructure:"NIGHT_RATE"`
	HolidayRate            string `mapstructure:"HOLIDAY_RATE"`
	StandardMonthlyMinutes int    `mapstructure:"STANDARD_MONTHLY_MINUTES"`
	Holidays               string `mapstructure:"HOLIDAYS"`
	// Deductions is a comma separated list of name:amount or name:rate%.
	Deductions    string `mapstructure:"DEDUCTIONS"`
	CurrencyScale int32  `mapstructure:"CURRENCY_SCALE"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (config Config, err error) {
	v := viper.New()
	setDefaults(v)

	// Read in environment variables that match the keys.
	v.AutomaticEnv()

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_HOST", "db")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "user")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "punchclock_db")
	v.SetDefault("DB_AUTO_MIGRATE", false)
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("AWS_ENDPOINT", "http://localstack:4566")
	v.SetDefault("PAYROLL_SQS_QUEUE_URL", "http://localstack:4566/000000000000/payroll-queue")
	v.SetDefault("EMAIL_SQS_QUEUE_URL", "http://localstack:4566/000000000000/email-queue")
	v.SetDefault("EMAIL_SENDER", "punchclock@factory.com")
	v.SetDefault("EMAIL_DOMAIN", "factory.com")
	v.SetDefault("EXPORT_API_URL", "http://localhost:8081/")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "jaeger:4317")
	v.SetDefault("IS_LOCAL_DEV", false)
	v.SetDefault("WORKER_CONCURRENCY", 10)

	queueDefaults := queue.DefaultOptions()
	v.SetDefault("QUEUE_DB_PATH", "punch-queue.db")
	v.SetDefault("DRAIN_INTERVAL", queueDefaults.Interval)
	v.SetDefault("DRAIN_CONCURRENCY", queueDefaults.Concurrency)
	v.SetDefault("MAX_ATTEMPTS", queueDefaults.MaxAttempts)
	v.SetDefault("SUBMIT_TIMEOUT", queueDefaults.SubmitTimeout)
	v.SetDefault("DELIVERED_RETENTION", queueDefaults.DeliveredRetention)

	v.SetDefault("DEBOUNCE_WINDOW", punch.DefaultDebounceWindow)
	v.SetDefault("ALLOW_DIRECT_OUT", true)
	v.SetDefault("ALLOW_REPEAT_BREAKS", true)
	v.SetDefault("BUSINESS_TZ", "UTC")
	v.SetDefault("DAY_BOUNDARY", time.Duration(0))

	calc := payroll.DefaultConfig()
	v.SetDefault("DAILY_ROUND_MINUTES", calc.DailyRoundMinutes)
	v.SetDefault("MONTHLY_ROUND_MINUTES", calc.MonthlyRoundMinutes)
	v.SetDefault("STANDARD_BUSINESS_WINDOW", calc.StandardWindow.String())
	v.SetDefault("BREAK_WINDOW", calc.BreakWindow.String())
	v.SetDefault("OVERTIME_THRESHOLD", calc.OvertimeThresholdMinutes)
	v.SetDefault("OVERTIME_RATE_NORMAL", calc.OvertimeRateNormal.String())
	v.SetDefault("OVERTIME_RATE_LATE", calc.OvertimeRateLate.String())
	v.SetDefault("NIGHT_WINDOW", calc.NightWindow.String())
	v.SetDefault("NIGHT_RATE", calc.NightRate.String())
	v.SetDefault("HOLIDAY_RATE", calc.HolidayRate.String())
	v.SetDefault("STANDARD_MONTHLY_MINUTES", calc.StandardMonthlyMinutes)
	v.SetDefault("HOLIDAYS", "")
	v.SetDefault("DEDUCTIONS", "")
	v.SetDefault("CURRENCY_SCALE", calc.CurrencyScale)
}

// DSN is the Postgres connection URL.
func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func (c Config) location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.BusinessTZ)
	if err != nil {
		return nil, fmt.Errorf("BUSINESS_TZ: %w", err)
	}
	return loc, nil
}

// DayRule is the business-day rule shared by the state machine and the
// calculation engine.
func (c Config) DayRule() (model.DayRule, error) {
	loc, err := c.location()
	if err != nil {
		return model.DayRule{}, err
	}
	return model.DayRule{Location: loc, Boundary: c.DayBoundary}, nil
}

// PunchPolicy builds the state machine rules.
func (c Config) PunchPolicy() (punch.Policy, error) {
	day, err := c.DayRule()
	if err != nil {
		return punch.Policy{}, err
	}
	return punch.Policy{
		DebounceWindow:    c.DebounceWindow,
		AllowDirectOut:    c.AllowDirectOut,
		AllowRepeatBreaks: c.AllowRepeatBreaks,
		Day:               day,
	}, nil
}

// QueueOptions builds the drainer settings.
func (c Config) QueueOptions() queue.Options {
	return queue.Options{
		Interval:           c.DrainInterval,
		SubmitTimeout:      c.SubmitTimeout,
		Concurrency:        c.DrainConcurrency,
		MaxAttempts:        c.MaxAttempts,
		DeliveredRetention: c.DeliveredRetention,
	}
}

// PayrollConfig builds the immutable calculation configuration. The engine
// never reads the environment itself.
func (c Config) PayrollConfig() (payroll.Config, error) {
	cfg := payroll.Config{
		DailyRoundMinutes:        c.DailyRoundMinutes,
		MonthlyRoundMinutes:      c.MonthlyRoundMinutes,
		OvertimeThresholdMinutes: c.OvertimeThreshold,
		StandardMonthlyMinutes:   c.StandardMonthlyMinutes,
		DayBoundary:              c.DayBoundary,
		CurrencyScale:            c.CurrencyScale,
	}
	var err error
	if cfg.Location, err = c.location(); err != nil {
		return payroll.Config{}, err
	}

	windows := []struct {
		key string
		raw string
		dst *payroll.ClockRange
	}{
		{"STANDARD_BUSINESS_WINDOW", c.StandardBusinessWindow, &cfg.StandardWindow},
		{"BREAK_WINDOW", c.BreakWindow, &cfg.BreakWindow},
		{"NIGHT_WINDOW", c.NightWindow, &cfg.NightWindow},
	}
	for _, w := range windows {
		if *w.dst, err = payroll.ParseClockRange(w.raw); err != nil {
			return payroll.Config{}, fmt.Errorf("%s: %w", w.key, err)
		}
	}

	rates := []struct {
		key string
		raw string
		dst *decimal.Decimal
	}{
		{"OVERTIME_RATE_NORMAL", c.OvertimeRateNormal, &cfg.OvertimeRateNormal},
		{"OVERTIME_RATE_LATE", c.OvertimeRateLate, &cfg.OvertimeRateLate},
		{"NIGHT_RATE", c.NightRate, &cfg.NightRate},
		{"HOLIDAY_RATE", c.HolidayRate, &cfg.HolidayRate},
	}
	for _, r := range rates {
		if *r.dst, err = decimal.NewFromString(strings.TrimSpace(r.raw)); err != nil {
			return payroll.Config{}, fmt.Errorf("%s: %w", r.key, err)
		}
	}

	cfg.Holidays = splitList(c.Holidays)
	if cfg.Deductions, err = parseDeductions(c.Deductions); err != nil {
		return payroll.Config{}, err
	}
	return cfg, cfg.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

var hundred = decimal.NewFromInt(100)

func parseDeductions(s string) ([]payroll.Deduction, error) {
	var out []payroll.Deduction
	for _, item := range splitList(s) {
		name, value, ok := strings.Cut(item, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("DEDUCTIONS: %q is not name:value", item)
		}
		d := payroll.Deduction{Name: strings.TrimSpace(name)}
		value = strings.TrimSpace(value)
		if pct, isRate := strings.CutSuffix(value, "%"); isRate {
			rate, err := decimal.NewFromString(pct)
			if err != nil {
				return nil, fmt.Errorf("DEDUCTIONS: %s: %w", d.Name, err)
			}
			d.Rate = rate.Div(hundred)
		} else {
			amount, err := decimal.NewFromString(value)
			if err != nil {
				return nil, fmt.Errorf("DEDUCTIONS: %s: %w", d.Name, err)
			}
			d.Amount = amount
		}
		out = append(out, d)
	}
	return out, nil
}

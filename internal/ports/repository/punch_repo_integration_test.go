package repository

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"punchclock.service/internal/core/identity"
	"punchclock.service/internal/core/model"
	"punchclock.service/internal/core/punch"
)

func openTestRepository(t *testing.T) *PunchRepository {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("pgx", dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewPunchRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Migrate(ctx))
	_, err = db.ExecContext(ctx, `TRUNCATE punch_events, card_credentials, payroll_exports, notifications, employees`)
	require.NoError(t, err)
	return repo
}

func TestPunchRepositoryRoundTrip(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	_, err := repo.DB.ExecContext(ctx, `INSERT INTO employees (id, display_name, email, wage_type, hourly_rate) VALUES ('emp-1', 'Ana', 'ana@factory.com', 'HOURLY', 1250.5)`)
	require.NoError(t, err)
	key, err := identity.CardKey(model.SchemeLegacyHash, "04a1b2")
	require.NoError(t, err)
	_, err = repo.DB.ExecContext(ctx, `INSERT INTO card_credentials (employee_id, scheme, card_key) VALUES ('emp-1', 'LEGACY_HASH', $1)`, key)
	require.NoError(t, err)

	emp, err := identity.NewResolver(repo).Resolve(ctx, "04A1B2", model.SchemeLegacyHash)
	require.NoError(t, err)
	assert.Equal(t, "emp-1", emp.ID)
	assert.True(t, decimal.RequireFromString("1250.5").Equal(emp.HourlyRate))

	_, _, err = repo.FindCredential(ctx, model.SchemeRaw, "04A1B2")
	assert.ErrorIs(t, err, model.ErrUnknownCredential)

	machine := punch.NewMachine(repo, punch.DefaultPolicy())
	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	in := model.NewPunch("emp-1", model.KindIn, start, key, model.SchemeLegacyHash, model.DeviceMetadata{DeviceID: "gate-1"})
	_, err = machine.Accept(ctx, in)
	require.NoError(t, err)
	_, err = machine.Accept(ctx, in)
	assert.ErrorIs(t, err, model.ErrDuplicatePunch)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Separate machines share no in-process lock; only the advisory
			// lock serializes them.
			m := punch.NewMachine(repo, punch.DefaultPolicy())
			out := model.NewPunch("emp-1", model.KindOut, start.Add(time.Duration(9+i)*time.Hour), key, model.SchemeLegacyHash, model.DeviceMetadata{})
			_, errs[i] = m.Accept(ctx, out)
		}()
	}
	wg.Wait()
	assert.True(t, (errs[0] == nil) != (errs[1] == nil), "exactly one OUT wins: %v", errs)

	events, err := repo.ListPunches(ctx, "emp-1", start, start.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.KindIn, events[0].Kind)
	assert.Equal(t, "gate-1", events[0].Device.DeviceID)
	assert.True(t, events[0].Timestamp.Equal(start))

	active, err := repo.ListActiveEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "ana@factory.com", active[0].Email)

	_, err = repo.GetEmployee(ctx, "emp-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobStatusUpserts(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	ex, err := repo.GetExport(ctx, "emp-1", "2025-03")
	require.NoError(t, err)
	assert.Empty(t, ex.Status)

	require.NoError(t, repo.SaveExport(ctx, model.PayrollExport{EmployeeID: "emp-1", Period: "2025-03", Status: model.StatusPending, RetryCount: 1}))
	require.NoError(t, repo.SaveExport(ctx, model.PayrollExport{EmployeeID: "emp-1", Period: "2025-03", Status: model.StatusCompleted, Result: []byte(`{"net":"1"}`)}))
	ex, err = repo.GetExport(ctx, "emp-1", "2025-03")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, ex.Status)
	assert.Zero(t, ex.RetryCount)

	require.NoError(t, repo.SaveNotification(ctx, model.Notification{EventID: "ev-1", EmployeeID: "emp-1", Status: model.StatusPending, RetryCount: 2}))
	n, err := repo.GetNotification(ctx, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n.RetryCount)
}

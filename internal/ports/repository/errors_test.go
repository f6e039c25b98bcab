package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"punchclock.service/internal/core/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"fingerprint collision", &pgconn.PgError{Code: "23505", ConstraintName: fingerprintConstraint}, model.ErrDuplicatePunch},
		{"connection failure", &pgconn.PgError{Code: "08006"}, model.ErrTransient},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, model.ErrTransient},
		{"serialization", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "40001"}), model.ErrTransient},
		{"bad conn", driver.ErrBadConn, model.ErrTransient},
		{"timeout", context.DeadlineExceeded, model.ErrTransient},
		{"dial", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, model.ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err), tt.want)
		})
	}
}

func TestClassifyLeavesOtherErrors(t *testing.T) {
	other := &pgconn.PgError{Code: "23505", ConstraintName: "card_credentials_scheme_card_key_key"}
	assert.Same(t, other, classify(other))

	syntax := &pgconn.PgError{Code: "42601"}
	assert.False(t, errors.Is(classify(syntax), model.ErrTransient))

	assert.ErrorIs(t, classify(context.Canceled), context.Canceled)
	assert.False(t, errors.Is(classify(context.Canceled), model.ErrTransient))
	assert.NoError(t, classify(nil))
}

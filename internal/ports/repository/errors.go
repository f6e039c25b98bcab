package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"punchclock.service/internal/core/model"
)

const fingerprintConstraint = "punch_events_fingerprint_key"

// classify maps driver errors onto the model taxonomy. Connection-class
// failures become model.ErrTransient so callers can fall back to the
// offline queue; a fingerprint collision becomes model.ErrDuplicatePunch.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505" && pgErr.ConstraintName == fingerprintConstraint:
			return fmt.Errorf("%w: %v", model.ErrDuplicatePunch, err)
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03",
			pgErr.Code == "40001", pgErr.Code == "40P01",
			pgErr.Code == "53300":
			return fmt.Errorf("%w: %v", model.ErrTransient, err)
		}
		return err
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) ||
		errors.As(err, &netErr) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		pgconn.Timeout(err) ||
		pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", model.ErrTransient, err)
	}
	return err
}

// Package sqlite persists the offline punch queue in a local SQLite file
// so that captured taps survive process restarts and network outages.
package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"punchclock.service/internal/core/model"
	"punchclock.service/internal/core/queue"
)

type queuedPunchRow struct {
	Fingerprint      string     `gorm:"column:fingerprint;primaryKey;size:64"`
	EmployeeID       string     `gorm:"column:employee_id;not null;index:idx_queued_order,priority:1"`
	PunchKind        string     `gorm:"column:punch_kind;not null"`
	Credential       string     `gorm:"column:credential;not null"`
	CredentialScheme string     `gorm:"column:credential_scheme;not null"`
	Timestamp        time.Time  `gorm:"column:timestamp;not null;index:idx_queued_order,priority:2"`
	DeviceMetadata   string     `gorm:"column:device_metadata"`
	RetryCount       int        `gorm:"column:retry_count;not null;default:0"`
	LastRetryAt      *time.Time `gorm:"column:last_retry_at"`
	NextAttemptAt    time.Time  `gorm:"column:next_attempt_at;not null"`
	ErrorMessage     string     `gorm:"column:error_message"`
	CreatedAt        time.Time  `gorm:"column:created_at;not null;index:idx_queued_order,priority:3"`
	TerminalFlag     bool       `gorm:"column:terminal_flag;not null;default:false;index"`
}

func (queuedPunchRow) TableName() string { return "queued_punches" }

type deliveredPunchRow struct {
	Fingerprint string    `gorm:"column:fingerprint;primaryKey;size:64"`
	EmployeeID  string    `gorm:"column:employee_id;not null"`
	DeliveredAt time.Time `gorm:"column:delivered_at;not null;index"`
}

func (deliveredPunchRow) TableName() string { return "delivered_punches" }

// QueueStore implements queue.Store on SQLite through gorm.
type QueueStore struct {
	db *gorm.DB
}

var _ queue.Store = (*QueueStore)(nil)

// OpenQueueStore opens (creating if needed) the queue database at path and
// migrates its tables. Use a "file:name?mode=memory&cache=shared" path in
// tests.
func OpenQueueStore(path string) (*QueueStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn(path)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("error opening queue database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&queuedPunchRow{}, &deliveredPunchRow{}); err != nil {
		return nil, fmt.Errorf("migrating queue database: %w", err)
	}
	return &QueueStore{db: db}, nil
}

func dsn(path string) string {
	if len(path) >= 5 && path[:5] == "file:" {
		return path
	}
	return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL&_synchronous=FULL"
}

// Close releases the underlying connection.
func (s *QueueStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *QueueStore) Enqueue(ctx context.Context, entry model.QueuedPunch) (bool, error) {
	device, err := json.Marshal(entry.Device)
	if err != nil {
		return false, fmt.Errorf("failed to marshal device metadata: %w", err)
	}
	row := queuedPunchRow{
		Fingerprint:      entry.Fingerprint,
		EmployeeID:       entry.EmployeeID,
		PunchKind:        string(entry.Kind),
		Credential:       entry.Credential,
		CredentialScheme: string(entry.Scheme),
		Timestamp:        entry.Timestamp.UTC(),
		DeviceMetadata:   string(device),
		NextAttemptAt:    entry.NextAttemptAt.UTC(),
		CreatedAt:        entry.CreatedAt.UTC(),
	}

	inserted := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var delivered int64
		if err := tx.Model(&deliveredPunchRow{}).Where("fingerprint = ?", entry.Fingerprint).Count(&delivered).Error; err != nil {
			return err
		}
		if delivered > 0 {
			return nil
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		inserted = res.RowsAffected > 0
		return nil
	})
	return inserted, err
}

func (s *QueueStore) MarkDelivered(ctx context.Context, fingerprint, employeeID string, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := deliveredPunchRow{Fingerprint: fingerprint, EmployeeID: employeeID, DeliveredAt: at.UTC()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ledger).Error; err != nil {
			return err
		}
		return tx.Where("fingerprint = ?", fingerprint).Delete(&queuedPunchRow{}).Error
	})
}

func (s *QueueStore) Pending(ctx context.Context) ([]model.QueuedPunch, error) {
	var rows []queuedPunchRow
	err := s.db.WithContext(ctx).
		Where("terminal_flag = ?", false).
		Order("employee_id, timestamp, created_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toModel(rows)
}

func (s *QueueStore) HasPending(ctx context.Context, employeeID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&queuedPunchRow{}).
		Where("employee_id = ? AND terminal_flag = ?", employeeID, false).
		Count(&n).Error
	return n > 0, err
}

func (s *QueueStore) Terminal(ctx context.Context) ([]model.QueuedPunch, error) {
	var rows []queuedPunchRow
	err := s.db.WithContext(ctx).
		Where("terminal_flag = ?", true).
		Order("employee_id, timestamp").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toModel(rows)
}

func (s *QueueStore) RecordFailure(ctx context.Context, f queue.Failure) error {
	res := s.db.WithContext(ctx).
		Model(&queuedPunchRow{}).
		Where("fingerprint = ?", f.Fingerprint).
		Updates(map[string]any{
			"retry_count":     f.RetryCount,
			"last_retry_at":   f.LastRetryAt.UTC(),
			"next_attempt_at": f.NextAttemptAt.UTC(),
			"error_message":   f.ErrorMessage,
			"terminal_flag":   f.Terminal,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("queued punch %s not found", f.Fingerprint)
	}
	return nil
}

func (s *QueueStore) PruneDelivered(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("delivered_at < ?", before.UTC()).Delete(&deliveredPunchRow{})
	return res.RowsAffected, res.Error
}

func toModel(rows []queuedPunchRow) ([]model.QueuedPunch, error) {
	out := make([]model.QueuedPunch, 0, len(rows))
	for _, r := range rows {
		var device model.DeviceMetadata
		if r.DeviceMetadata != "" {
			if err := json.Unmarshal([]byte(r.DeviceMetadata), &device); err != nil {
				return nil, fmt.Errorf("queued punch %s: bad device metadata: %w", r.Fingerprint, err)
			}
		}
		out = append(out, model.QueuedPunch{
			Punch: model.Punch{
				EmployeeID:  r.EmployeeID,
				Kind:        model.PunchKind(r.PunchKind),
				Timestamp:   r.Timestamp.UTC(),
				Credential:  r.Credential,
				Scheme:      model.CredentialScheme(r.CredentialScheme),
				Device:      device,
				Fingerprint: r.Fingerprint,
			},
			RetryCount:    r.RetryCount,
			LastRetryAt:   r.LastRetryAt,
			NextAttemptAt: r.NextAttemptAt.UTC(),
			ErrorMessage:  r.ErrorMessage,
			CreatedAt:     r.CreatedAt.UTC(),
			Terminal:      r.TerminalFlag,
		})
	}
	return out, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"carbonledger/internal/models"
)

type DeviceSQLite struct {
	db *sql.DB
}

func NewDeviceSQLite(db *sql.DB) *DeviceSQLite { return &DeviceSQLite{db: db} }

// Ensure implementation of DeviceRepo interface at compile time.
var _ DeviceRepo = (*DeviceSQLite)(nil)

const (
	insertDeviceSQL = `
		INSERT INTO devices
			(id, device_type, company_id, wallet_address, location, is_active,
			 co2_threshold, energy_threshold, time_window_s, last_seen, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectDeviceSQL = `
		SELECT id, device_type, company_id, wallet_address, location, is_active,
		       co2_threshold, energy_threshold, time_window_s, last_seen, registered_at
		FROM devices WHERE id = ?
	`

	selectDevicesByCompanySQL = `
		SELECT id, device_type, company_id, wallet_address, location, is_active,
		       co2_threshold, energy_threshold, time_window_s, last_seen, registered_at
		FROM devices WHERE company_id = ? ORDER BY registered_at ASC
	`

	touchLastSeenSQL    = `UPDATE devices SET last_seen = ? WHERE id = ?`
	updateThresholdSQL  = `UPDATE devices SET co2_threshold = ?, energy_threshold = ?, time_window_s = ? WHERE id = ?`
	deactivateDeviceSQL = `UPDATE devices SET is_active = 0 WHERE id = ?`
)

// Create inserts a new device row with its seeded threshold config.
func (r *DeviceSQLite) Create(ctx context.Context, d models.Device) error {
	registeredAt := d.RegisteredAt
	if registeredAt.IsZero() {
		registeredAt = time.Now().UTC()
	} else {
		registeredAt = registeredAt.UTC()
	}

	_, err := r.db.ExecContext(ctx, insertDeviceSQL,
		d.ID,
		d.DeviceType,
		d.CompanyID,
		d.WalletAddress,
		d.Location,
		d.IsActive,
		d.Threshold.Co2Threshold,
		d.Threshold.EnergyThreshold,
		d.Threshold.TimeWindowSec,
		nullableTime(d.LastSeen),
		registeredAt,
	)
	if err != nil {
		return fmt.Errorf("insert device %q: %w", d.ID, err)
	}
	return nil
}

// Get fetches a device by id. Returns (nil, nil) if not found.
func (r *DeviceSQLite) Get(ctx context.Context, deviceID string) (*models.Device, error) {
	row := r.db.QueryRowContext(ctx, selectDeviceSQL, deviceID)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select device %q: %w", deviceID, err)
	}
	return d, nil
}

func (r *DeviceSQLite) ListByCompany(ctx context.Context, companyID string) ([]models.Device, error) {
	rows, err := r.db.QueryContext(ctx, selectDevicesByCompanySQL, companyID)
	if err != nil {
		return nil, fmt.Errorf("select devices for company %q: %w", companyID, err)
	}
	defer rows.Close()

	out := make([]models.Device, 0, 16)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *DeviceSQLite) TouchLastSeen(ctx context.Context, deviceID string, seenAt time.Time) error {
	_, err := r.db.ExecContext(ctx, touchLastSeenSQL, seenAt.UTC(), deviceID)
	if err != nil {
		return fmt.Errorf("touch last_seen for device %q: %w", deviceID, err)
	}
	return nil
}

func (r *DeviceSQLite) UpdateThreshold(ctx context.Context, deviceID string, th models.Threshold) error {
	res, err := r.db.ExecContext(ctx, updateThresholdSQL,
		th.Co2Threshold, th.EnergyThreshold, th.TimeWindowSec, deviceID)
	if err != nil {
		return fmt.Errorf("update threshold for device %q: %w", deviceID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *DeviceSQLite) Deactivate(ctx context.Context, deviceID string) error {
	_, err := r.db.ExecContext(ctx, deactivateDeviceSQL, deviceID)
	if err != nil {
		return fmt.Errorf("deactivate device %q: %w", deviceID, err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(s scanner) (*models.Device, error) {
	var (
		d        models.Device
		wallet   sql.NullString
		location sql.NullString
		lastSeen sql.NullTime
	)
	if err := s.Scan(
		&d.ID,
		&d.DeviceType,
		&d.CompanyID,
		&wallet,
		&location,
		&d.IsActive,
		&d.Threshold.Co2Threshold,
		&d.Threshold.EnergyThreshold,
		&d.Threshold.TimeWindowSec,
		&lastSeen,
		&d.RegisteredAt,
	); err != nil {
		return nil, err
	}
	d.WalletAddress = wallet.String
	d.Location = location.String
	if lastSeen.Valid {
		d.LastSeen = lastSeen.Time.UTC()
	}
	d.RegisteredAt = d.RegisteredAt.UTC()
	return &d, nil
}

// nullableTime maps the zero time to NULL so "never seen" stays distinguishable.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

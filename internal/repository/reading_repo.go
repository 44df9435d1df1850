package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"carbonledger/internal/models"

	"github.com/google/uuid"
)

type ReadingSQLite struct {
	db *sql.DB
}

func NewReadingSQLite(db *sql.DB) *ReadingSQLite { return &ReadingSQLite{db: db} }

var _ ReadingRepo = (*ReadingSQLite)(nil)

const (
	insertReadingSQL = `
		INSERT INTO readings (id, device_id, ts, co2, energy, temperature, humidity, content_hash, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id, content_hash) DO NOTHING
	`

	selectReadingIDByHashSQL = `SELECT id FROM readings WHERE device_id = ? AND content_hash = ?`
)

// Insert stores a reading. If an identical payload (same device and content
// hash) was already stored, the existing row wins and duplicate=true is
// returned with its id; IoT retransmissions are expected, not an error.
func (r *ReadingSQLite) Insert(ctx context.Context, reading models.Reading) (string, bool, error) {
	if reading.ID == "" {
		reading.ID = uuid.NewString()
	}
	receivedAt := reading.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	} else {
		receivedAt = receivedAt.UTC()
	}

	res, err := r.db.ExecContext(ctx, insertReadingSQL,
		reading.ID,
		reading.DeviceID,
		reading.Timestamp.UTC(),
		reading.Co2Value,
		reading.EnergyValue,
		reading.Temperature,
		reading.Humidity,
		reading.ContentHash,
		receivedAt,
	)
	if err != nil {
		return "", false, fmt.Errorf("insert reading for device %q: %w", reading.DeviceID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("rows affected for reading insert: %w", err)
	}
	if n > 0 {
		return reading.ID, false, nil
	}

	// Conflict path: hand back the id of the reading that got there first.
	var existingID string
	err = r.db.QueryRowContext(ctx, selectReadingIDByHashSQL, reading.DeviceID, reading.ContentHash).
		Scan(&existingID)
	if err != nil {
		return "", false, fmt.Errorf("lookup duplicate reading for device %q: %w", reading.DeviceID, err)
	}
	return existingID, true, nil
}

// ListByDevice returns readings in [from, to] ascending, capped at limit.
func (r *ReadingSQLite) ListByDevice(ctx context.Context, deviceID string, from, to time.Time, limit int) ([]models.Reading, error) {
	conds := []string{"device_id = ?"}
	args := []any{deviceID}

	if !from.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		conds = append(conds, "ts <= ?")
		args = append(args, to.UTC())
	}

	q := `SELECT id, device_id, ts, co2, energy, temperature, humidity, content_hash, received_at FROM readings WHERE ` +
		strings.Join(conds, " AND ") + " ORDER BY ts ASC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select readings for device %q: %w", deviceID, err)
	}
	defer rows.Close()

	out := make([]models.Reading, 0, 64)
	for rows.Next() {
		var (
			rd   models.Reading
			temp sql.NullFloat64
			hum  sql.NullFloat64
		)
		if err := rows.Scan(
			&rd.ID, &rd.DeviceID, &rd.Timestamp, &rd.Co2Value, &rd.EnergyValue,
			&temp, &hum, &rd.ContentHash, &rd.ReceivedAt,
		); err != nil {
			return nil, err
		}
		rd.Temperature = temp.Float64
		rd.Humidity = hum.Float64
		rd.Timestamp = rd.Timestamp.UTC()
		rd.ReceivedAt = rd.ReceivedAt.UTC()
		out = append(out, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

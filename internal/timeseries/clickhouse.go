package timeseries

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"carbonledger/internal/models"
)

// ClickHouseMirror ships accepted readings to ClickHouse for dashboard
// queries. It is off the consistency-critical path: callers treat every
// insert as fire-and-forget.
type ClickHouseMirror struct {
	conn driver.Conn
}

// NewClickHouseMirror connects, pings and ensures the raw readings table.
func NewClickHouseMirror(addr, database, username, password string) (*ClickHouseMirror, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to ClickHouse at %q: %w", addr, err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping ClickHouse: %w", err)
	}

	m := &ClickHouseMirror{conn: conn}
	if err := m.initSchema(context.Background()); err != nil {
		return nil, err
	}
	return m, nil
}

const schemaReadingsRaw = `
	CREATE TABLE IF NOT EXISTS readings_raw (
		received_at DateTime64(3),
		ts DateTime64(3),
		device_id String,
		co2 Float64,
		energy Float64,
		temperature Float64,
		humidity Float64,
		content_hash String
	) ENGINE = MergeTree()
	ORDER BY (device_id, ts)
	TTL toDateTime(ts) + INTERVAL 90 DAY
`

func (m *ClickHouseMirror) initSchema(ctx context.Context) error {
	if err := m.conn.Exec(ctx, schemaReadingsRaw); err != nil {
		return fmt.Errorf("create readings_raw table: %w", err)
	}
	return nil
}

// InsertReading appends one raw reading.
func (m *ClickHouseMirror) InsertReading(ctx context.Context, r models.Reading) error {
	const query = `
		INSERT INTO readings_raw (received_at, ts, device_id, co2, energy, temperature, humidity, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if err := m.conn.Exec(ctx, query,
		r.ReceivedAt, r.Timestamp, r.DeviceID,
		r.Co2Value, r.EnergyValue, r.Temperature, r.Humidity,
		r.ContentHash,
	); err != nil {
		return fmt.Errorf("insert reading for device %q: %w", r.DeviceID, err)
	}
	return nil
}

func (m *ClickHouseMirror) Close() error { return m.conn.Close() }

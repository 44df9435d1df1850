package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"carbonledger/internal/models"
)

func newReadingMock(t *testing.T) (*ReadingSQLite, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	repo := NewReadingSQLite(db)
	cleanup := func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet sqlmock expectations: %v", err)
		}
		_ = db.Close()
	}
	return repo, mock, cleanup
}

func sampleReading() models.Reading {
	return models.Reading{
		ID:          "reading-1",
		DeviceID:    "sensor-1",
		Timestamp:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Co2Value:    600,
		EnergyValue: 300,
		Temperature: 21.5,
		Humidity:    40,
		ContentHash: "abc123",
		ReceivedAt:  time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC),
	}
}

func TestReadingInsert_New(t *testing.T) {
	t.Parallel()
	repo, mock, cleanup := newReadingMock(t)
	defer cleanup()

	r := sampleReading()
	mock.ExpectExec(regexp.QuoteMeta(insertReadingSQL)).
		WithArgs(r.ID, r.DeviceID, r.Timestamp, r.Co2Value, r.EnergyValue,
			r.Temperature, r.Humidity, r.ContentHash, r.ReceivedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, duplicate, err := repo.Insert(context.Background(), r)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if duplicate {
		t.Error("fresh insert flagged as duplicate")
	}
	if id != "reading-1" {
		t.Errorf("id = %q, want reading-1", id)
	}
}

func TestReadingInsert_GeneratesID(t *testing.T) {
	t.Parallel()
	repo, mock, cleanup := newReadingMock(t)
	defer cleanup()

	r := sampleReading()
	r.ID = ""
	mock.ExpectExec(regexp.QuoteMeta(insertReadingSQL)).
		WithArgs(sqlmock.AnyArg(), r.DeviceID, r.Timestamp, r.Co2Value, r.EnergyValue,
			r.Temperature, r.Humidity, r.ContentHash, r.ReceivedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, _, err := repo.Insert(context.Background(), r)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if id == "" {
		t.Error("expected a generated id")
	}
}

func TestReadingInsert_DuplicateReturnsExistingID(t *testing.T) {
	t.Parallel()
	repo, mock, cleanup := newReadingMock(t)
	defer cleanup()

	r := sampleReading()
	// Conflict: the insert affects zero rows, the stored row's id is looked up.
	mock.ExpectExec(regexp.QuoteMeta(insertReadingSQL)).
		WithArgs(r.ID, r.DeviceID, r.Timestamp, r.Co2Value, r.EnergyValue,
			r.Temperature, r.Humidity, r.ContentHash, r.ReceivedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectReadingIDByHashSQL)).
		WithArgs(r.DeviceID, r.ContentHash).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("reading-original"))

	id, duplicate, err := repo.Insert(context.Background(), r)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if !duplicate {
		t.Error("conflict insert not flagged as duplicate")
	}
	if id != "reading-original" {
		t.Errorf("id = %q, want the original row's id", id)
	}
}

func TestReadingInsert_ExecError(t *testing.T) {
	t.Parallel()
	repo, mock, cleanup := newReadingMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(insertReadingSQL)).
		WillReturnError(errors.New("disk I/O error"))

	_, _, err := repo.Insert(context.Background(), sampleReading())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestReadingListByDevice_WindowAndLimit(t *testing.T) {
	t.Parallel()
	repo, mock, cleanup := newReadingMock(t)
	defer cleanup()

	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	r := sampleReading()

	mock.ExpectQuery(`SELECT id, device_id, ts, co2, energy, temperature, humidity, content_hash, received_at FROM readings WHERE device_id = \? AND ts >= \? AND ts <= \? ORDER BY ts ASC LIMIT \?`).
		WithArgs("sensor-1", from, to, 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "device_id", "ts", "co2", "energy", "temperature", "humidity", "content_hash", "received_at",
		}).AddRow(r.ID, r.DeviceID, r.Timestamp, r.Co2Value, r.EnergyValue, r.Temperature, r.Humidity, r.ContentHash, r.ReceivedAt))

	out, err := repo.ListByDevice(context.Background(), "sensor-1", from, to, 10)
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	if len(out) != 1 || out[0].ID != "reading-1" {
		t.Fatalf("readings = %+v, want the one stored row", out)
	}
	if out[0].Temperature != 21.5 || out[0].Humidity != 40 {
		t.Errorf("optional fields = %v/%v", out[0].Temperature, out[0].Humidity)
	}
}

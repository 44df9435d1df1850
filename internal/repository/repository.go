package repository

import (
	"context"
	"database/sql"
	"time"

	"carbonledger/internal/models"
	"carbonledger/internal/repository/db"
)

// InitDB opens the backing SQLite store and bootstraps the schema.
func InitDB(path string) (*sql.DB, error) {
	return db.InitDB(path)
}

// DeviceRepo persists device identity and per-device threshold config.
// Devices are soft-deactivated, never deleted.
type DeviceRepo interface {
	Create(ctx context.Context, d models.Device) error
	Get(ctx context.Context, deviceID string) (*models.Device, error)
	ListByCompany(ctx context.Context, companyID string) ([]models.Device, error)
	TouchLastSeen(ctx context.Context, deviceID string, seenAt time.Time) error
	UpdateThreshold(ctx context.Context, deviceID string, th models.Threshold) error
	Deactivate(ctx context.Context, deviceID string) error
}

// ReadingRepo persists immutable sensor readings. Insert absorbs duplicate
// deliveries via the (device_id, content_hash) unique constraint.
type ReadingRepo interface {
	Insert(ctx context.Context, r models.Reading) (id string, duplicate bool, err error)
	ListByDevice(ctx context.Context, deviceID string, from, to time.Time, limit int) ([]models.Reading, error)
}

// LedgerRepo persists credit transactions and company balances. Confirm
// commits the status flip and the balance write in one storage transaction.
type LedgerRepo interface {
	FindTransaction(ctx context.Context, deviceID string, windowStart time.Time, contentHash string) (*models.CreditTransaction, error)
	CreateTransaction(ctx context.Context, tx models.CreditTransaction) error
	ConfirmTransaction(ctx context.Context, txID string, credit models.CompanyCredit, at time.Time) error
	FailTransaction(ctx context.Context, txID, errMsg string, at time.Time) error
	GetCompanyCredit(ctx context.Context, companyID string) (models.CompanyCredit, error)
	ListTransactions(ctx context.Context, companyID, deviceID, status string, limit int) ([]models.CreditTransaction, error)
}

type Repository struct {
	Devices  DeviceRepo
	Readings ReadingRepo
	Ledger   LedgerRepo
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Devices:  NewDeviceSQLite(db),
		Readings: NewReadingSQLite(db),
		Ledger:   NewLedgerSQLite(db),
	}
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"carbonledger/internal/models"
)

type LedgerSQLite struct {
	db *sql.DB
}

func NewLedgerSQLite(db *sql.DB) *LedgerSQLite { return &LedgerSQLite{db: db} }

var _ LedgerRepo = (*LedgerSQLite)(nil)

const (
	selectTxByKeySQL = `
		SELECT id, device_id, company_id, window_start, content_hash, tx_type, amount,
		       status, snapshot, error_message, created_at, updated_at
		FROM credit_transactions
		WHERE device_id = ? AND window_start = ? AND content_hash = ?
	`

	insertTxSQL = `
		INSERT INTO credit_transactions
			(id, device_id, company_id, window_start, content_hash, tx_type, amount,
			 status, snapshot, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	confirmTxSQL = `UPDATE credit_transactions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	failTxSQL    = `UPDATE credit_transactions SET status = ?, error_message = ?, updated_at = ? WHERE id = ? AND status = ?`

	upsertCompanyCreditSQL = `
		INSERT INTO company_credits (company_id, total_credit, current_credit, sold_credit, offer_price)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(company_id) DO UPDATE SET
			total_credit=excluded.total_credit,
			current_credit=excluded.current_credit,
			sold_credit=excluded.sold_credit,
			offer_price=excluded.offer_price
	`

	selectCompanyCreditSQL = `
		SELECT company_id, total_credit, current_credit, sold_credit, offer_price
		FROM company_credits WHERE company_id = ?
	`
)

// ErrTerminalTransaction is returned when a status flip targets a transaction
// that already left PENDING. Terminal states are final.
var ErrTerminalTransaction = errors.New("transaction is not pending")

// FindTransaction looks up a transaction by its idempotency key.
// Returns (nil, nil) if none exists.
func (r *LedgerSQLite) FindTransaction(ctx context.Context, deviceID string, windowStart time.Time, contentHash string) (*models.CreditTransaction, error) {
	row := r.db.QueryRowContext(ctx, selectTxByKeySQL, deviceID, windowStart.UTC(), contentHash)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select transaction for device %q: %w", deviceID, err)
	}
	return tx, nil
}

// CreateTransaction inserts a PENDING row. The unique key on
// (device_id, window_start, content_hash) makes concurrent duplicate creates
// fail loudly instead of double-issuing.
func (r *LedgerSQLite) CreateTransaction(ctx context.Context, tx models.CreditTransaction) error {
	snapshotJSON, err := json.Marshal(tx.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal accumulator snapshot: %w", err)
	}

	_, err = r.db.ExecContext(ctx, insertTxSQL,
		tx.ID,
		tx.DeviceID,
		tx.CompanyID,
		tx.WindowStart.UTC(),
		tx.ContentHash,
		tx.Type,
		tx.Amount,
		tx.Status,
		string(snapshotJSON),
		tx.ErrorMessage,
		tx.CreatedAt.UTC(),
		tx.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert transaction %q: %w", tx.ID, err)
	}
	return nil
}

// ConfirmTransaction flips PENDING→CONFIRMED and writes the new company
// balance in one storage transaction, so a crash can never leave a confirmed
// transaction without its balance change (or vice versa).
func (r *LedgerSQLite) ConfirmTransaction(ctx context.Context, txID string, credit models.CompanyCredit, at time.Time) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin confirm transaction: %w", err)
	}
	defer func() { _ = dbTx.Rollback() }()

	res, err := dbTx.ExecContext(ctx, confirmTxSQL, models.TxConfirmed, at.UTC(), txID, models.TxPending)
	if err != nil {
		return fmt.Errorf("confirm transaction %q: %w", txID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTerminalTransaction
	}

	if _, err := dbTx.ExecContext(ctx, upsertCompanyCreditSQL,
		credit.CompanyID,
		credit.TotalCredit,
		credit.CurrentCredit,
		credit.SoldCredit,
		credit.OfferPrice,
	); err != nil {
		return fmt.Errorf("write balance for company %q: %w", credit.CompanyID, err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit confirm transaction: %w", err)
	}
	return nil
}

// FailTransaction flips PENDING→FAILED, capturing the causing error. The
// balance is untouched.
func (r *LedgerSQLite) FailTransaction(ctx context.Context, txID, errMsg string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, failTxSQL, models.TxFailed, errMsg, at.UTC(), txID, models.TxPending)
	if err != nil {
		return fmt.Errorf("fail transaction %q: %w", txID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTerminalTransaction
	}
	return nil
}

// GetCompanyCredit returns the company balance, or a zero balance if the
// company has no row yet.
func (r *LedgerSQLite) GetCompanyCredit(ctx context.Context, companyID string) (models.CompanyCredit, error) {
	var (
		c     models.CompanyCredit
		offer sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx, selectCompanyCreditSQL, companyID).Scan(
		&c.CompanyID, &c.TotalCredit, &c.CurrentCredit, &c.SoldCredit, &offer,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CompanyCredit{CompanyID: companyID}, nil
		}
		return models.CompanyCredit{}, fmt.Errorf("select balance for company %q: %w", companyID, err)
	}
	if offer.Valid {
		c.OfferPrice = &offer.Float64
	}
	return c, nil
}

// ListTransactions filters by company, device and/or status, newest first.
func (r *LedgerSQLite) ListTransactions(ctx context.Context, companyID, deviceID, status string, limit int) ([]models.CreditTransaction, error) {
	var (
		conds []string
		args  []any
	)
	if companyID != "" {
		conds = append(conds, "company_id = ?")
		args = append(args, companyID)
	}
	if deviceID != "" {
		conds = append(conds, "device_id = ?")
		args = append(args, deviceID)
	}
	if status = strings.ToUpper(strings.TrimSpace(status)); status != "" {
		conds = append(conds, "status = ?")
		args = append(args, status)
	}

	q := `SELECT id, device_id, company_id, window_start, content_hash, tx_type, amount,
	             status, snapshot, error_message, created_at, updated_at
	      FROM credit_transactions`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	out := make([]models.CreditTransaction, 0, 32)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanTransaction(s scanner) (*models.CreditTransaction, error) {
	var (
		tx       models.CreditTransaction
		snapshot sql.NullString
		errMsg   sql.NullString
	)
	if err := s.Scan(
		&tx.ID,
		&tx.DeviceID,
		&tx.CompanyID,
		&tx.WindowStart,
		&tx.ContentHash,
		&tx.Type,
		&tx.Amount,
		&tx.Status,
		&snapshot,
		&errMsg,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if snapshot.Valid && snapshot.String != "" {
		// keep a best-effort snapshot; a malformed blob should not hide the row
		_ = json.Unmarshal([]byte(snapshot.String), &tx.Snapshot)
	}
	tx.ErrorMessage = errMsg.String
	tx.WindowStart = tx.WindowStart.UTC()
	tx.CreatedAt = tx.CreatedAt.UTC()
	tx.UpdatedAt = tx.UpdatedAt.UTC()
	return &tx, nil
}

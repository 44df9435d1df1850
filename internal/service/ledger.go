package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"carbonledger/internal/cache"
	"carbonledger/internal/models"
	"carbonledger/internal/repository"

	"github.com/google/uuid"
)

// companyLocks hands out one mutex per company id so concurrent devices of
// the same company serialize on the balance while other companies proceed.
type companyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newCompanyLocks() *companyLocks {
	return &companyLocks{locks: make(map[string]*sync.Mutex)}
}

func (c *companyLocks) lock(companyID string) *sync.Mutex {
	c.mu.Lock()
	m, ok := c.locks[companyID]
	if !ok {
		m = &sync.Mutex{}
		c.locks[companyID] = m
	}
	c.mu.Unlock()
	m.Lock()
	return m
}

// LedgerManager issues credit transactions and applies them to company
// balances. Issuance is idempotent on (deviceID, windowStart, contentHash);
// the balance read-modify-write runs under the company lock and commits
// atomically with the status flip.
type LedgerManager struct {
	ledgerRepo repository.LedgerRepo
	cache      *cache.Cache
	companies  *companyLocks

	// onConfirmed, when set, receives every CONFIRMED transaction (live feed).
	onConfirmed func(models.CreditTransaction)
}

func NewLedgerManager(ledgerRepo repository.LedgerRepo, c *cache.Cache) *LedgerManager {
	return &LedgerManager{
		ledgerRepo: ledgerRepo,
		cache:      c,
		companies:  newCompanyLocks(),
	}
}

// SetConfirmedHook registers a callback invoked after each confirmed
// transaction. Must be called before ingestion starts.
func (m *LedgerManager) SetConfirmedHook(fn func(models.CreditTransaction)) {
	m.onConfirmed = fn
}

// Issue creates (or finds) the transaction for one threshold crossing and
// applies it to the company balance.
//
// Returns the transaction in its final state. The error is ErrLedgerInvariant
// for deterministic balance violations, or a storage error; in both cases the
// returned transaction is FAILED with the cause captured, and the balance is
// unchanged. Callers decide whether the accumulator window may retry.
func (m *LedgerManager) Issue(ctx context.Context, device models.Device, amount int64, snap models.AccumulatorSnapshot, contentHash string) (models.CreditTransaction, error) {
	// Idempotency: a retried or duplicated call returns the existing row.
	existing, err := m.ledgerRepo.FindTransaction(ctx, device.ID, snap.WindowStart, contentHash)
	if err != nil {
		return models.CreditTransaction{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	now := time.Now().UTC()
	tx := models.CreditTransaction{
		ID:          uuid.NewString(),
		DeviceID:    device.ID,
		CompanyID:   device.CompanyID,
		WindowStart: snap.WindowStart,
		ContentHash: contentHash,
		Type:        TransactionKind(device.DeviceType),
		Amount:      amount,
		Status:      models.TxPending,
		Snapshot:    snap,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.ledgerRepo.CreateTransaction(ctx, tx); err != nil {
		// Unique-key race: a concurrent duplicate won the insert. Defer to it.
		if raced, findErr := m.ledgerRepo.FindTransaction(ctx, device.ID, snap.WindowStart, contentHash); findErr == nil && raced != nil {
			return *raced, nil
		}
		return models.CreditTransaction{}, fmt.Errorf("create pending transaction: %w", err)
	}

	lock := m.companies.lock(device.CompanyID)
	defer lock.Unlock()

	balance, err := m.ledgerRepo.GetCompanyCredit(ctx, device.CompanyID)
	if err != nil {
		return m.failTx(ctx, tx, fmt.Errorf("load balance: %w", err))
	}

	next, err := applyToBalance(balance, tx.Type, amount)
	if err != nil {
		return m.failTx(ctx, tx, err)
	}

	if err := m.ledgerRepo.ConfirmTransaction(ctx, tx.ID, next, time.Now().UTC()); err != nil {
		return m.failTx(ctx, tx, fmt.Errorf("commit balance: %w", err))
	}
	tx.Status = models.TxConfirmed
	tx.UpdatedAt = time.Now().UTC()

	// Advisory cache; readers tolerate brief staleness.
	_ = m.cache.Invalidate(ctx, cache.CreditsKey(device.CompanyID))

	if m.onConfirmed != nil {
		m.onConfirmed(tx)
	}
	return tx, nil
}

// failTx marks the transaction FAILED with the causing error. Terminal: the
// row is never retried automatically, only surfaced for reconciliation.
func (m *LedgerManager) failTx(ctx context.Context, tx models.CreditTransaction, cause error) (models.CreditTransaction, error) {
	tx.Status = models.TxFailed
	tx.ErrorMessage = cause.Error()
	tx.UpdatedAt = time.Now().UTC()
	if ferr := m.ledgerRepo.FailTransaction(ctx, tx.ID, tx.ErrorMessage, tx.UpdatedAt); ferr != nil {
		return tx, fmt.Errorf("mark transaction failed after %q: %w", cause, ferr)
	}
	return tx, cause
}

// applyToBalance computes the post-transaction balance and enforces the
// ledger invariants. A MINT raises total and current; a BURN lowers current
// only (consumption of previously sequestered credit, not a rewrite of the
// historical total).
func applyToBalance(b models.CompanyCredit, kind string, amount int64) (models.CompanyCredit, error) {
	if amount < 0 {
		return models.CompanyCredit{}, fmt.Errorf("%w: negative amount %d", ErrLedgerInvariant, amount)
	}
	switch kind {
	case models.TxMint:
		b.TotalCredit += amount
		b.CurrentCredit += amount
	case models.TxBurn:
		b.CurrentCredit -= amount
	default:
		return models.CompanyCredit{}, fmt.Errorf("%w: unknown transaction kind %q", ErrLedgerInvariant, kind)
	}
	if b.CurrentCredit < 0 {
		return models.CompanyCredit{}, fmt.Errorf("%w: burn of %d would drive current credit negative", ErrLedgerInvariant, amount)
	}
	if b.TotalCredit < 0 || b.CurrentCredit > b.TotalCredit {
		return models.CompanyCredit{}, fmt.Errorf("%w: current credit exceeds total", ErrLedgerInvariant)
	}
	return b, nil
}

// CompanyCredit returns the company's ledger view, read-through cached.
func (m *LedgerManager) CompanyCredit(ctx context.Context, companyID string) (models.CompanyCredit, error) {
	var cached models.CompanyCredit
	if m.cache.GetJSON(ctx, cache.CreditsKey(companyID), &cached) {
		return cached, nil
	}
	c, err := m.ledgerRepo.GetCompanyCredit(ctx, companyID)
	if err != nil {
		return models.CompanyCredit{}, err
	}
	_ = m.cache.SetJSON(ctx, cache.CreditsKey(companyID), c)
	return c, nil
}

// Transactions lists the company's transaction history, optionally narrowed
// to a device and/or status (FAILED is the reconciliation view).
func (m *LedgerManager) Transactions(ctx context.Context, companyID, deviceID, status string, limit int) ([]models.CreditTransaction, error) {
	return m.ledgerRepo.ListTransactions(ctx, companyID, deviceID, status, limit)
}

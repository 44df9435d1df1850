package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"carbonledger/internal/models"
)

// ---- in-memory repository fakes shared by the service tests ----

type fakeDeviceRepo struct {
	mu      sync.Mutex
	devices map[string]models.Device

	getErr    error
	createErr error
	touched   []string
}

func newFakeDeviceRepo(devices ...models.Device) *fakeDeviceRepo {
	f := &fakeDeviceRepo{devices: make(map[string]models.Device)}
	for _, d := range devices {
		f.devices[d.ID] = d
	}
	return f
}

func (f *fakeDeviceRepo) Create(ctx context.Context, d models.Device) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[d.ID] = d
	return nil
}

func (f *fakeDeviceRepo) Get(ctx context.Context, deviceID string) (*models.Device, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[deviceID]
	if !ok {
		return nil, nil
	}
	copy := d
	return &copy, nil
}

func (f *fakeDeviceRepo) ListByCompany(ctx context.Context, companyID string) ([]models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Device
	for _, d := range f.devices {
		if d.CompanyID == companyID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDeviceRepo) TouchLastSeen(ctx context.Context, deviceID string, seenAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, deviceID)
	if d, ok := f.devices[deviceID]; ok {
		d.LastSeen = seenAt
		f.devices[deviceID] = d
	}
	return nil
}

func (f *fakeDeviceRepo) UpdateThreshold(ctx context.Context, deviceID string, th models.Threshold) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[deviceID]
	if !ok {
		return fmt.Errorf("device %q missing", deviceID)
	}
	d.Threshold = th
	f.devices[deviceID] = d
	return nil
}

func (f *fakeDeviceRepo) Deactivate(ctx context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[deviceID]
	if !ok {
		return fmt.Errorf("device %q missing", deviceID)
	}
	d.IsActive = false
	f.devices[deviceID] = d
	return nil
}

type fakeReadingRepo struct {
	mu       sync.Mutex
	byHash   map[string]string // deviceID|hash -> reading id
	inserted []models.Reading

	insertErr error
}

func newFakeReadingRepo() *fakeReadingRepo {
	return &fakeReadingRepo{byHash: make(map[string]string)}
}

func (f *fakeReadingRepo) Insert(ctx context.Context, r models.Reading) (string, bool, error) {
	if f.insertErr != nil {
		return "", false, f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := r.DeviceID + "|" + r.ContentHash
	if id, ok := f.byHash[key]; ok {
		return id, true, nil
	}
	id := fmt.Sprintf("reading-%d", len(f.inserted)+1)
	f.byHash[key] = id
	r.ID = id
	f.inserted = append(f.inserted, r)
	return id, false, nil
}

func (f *fakeReadingRepo) ListByDevice(ctx context.Context, deviceID string, from, to time.Time, limit int) ([]models.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Reading
	for _, r := range f.inserted {
		if r.DeviceID == deviceID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeLedgerRepo struct {
	mu       sync.Mutex
	txs      map[string]models.CreditTransaction // by id
	balances map[string]models.CompanyCredit

	findErr    error
	createErr  error
	confirmErr error
	balanceErr error
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{
		txs:      make(map[string]models.CreditTransaction),
		balances: make(map[string]models.CompanyCredit),
	}
}

func (f *fakeLedgerRepo) setBalance(c models.CompanyCredit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[c.CompanyID] = c
}

func (f *fakeLedgerRepo) FindTransaction(ctx context.Context, deviceID string, windowStart time.Time, contentHash string) (*models.CreditTransaction, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.txs {
		if tx.DeviceID == deviceID && tx.WindowStart.Equal(windowStart) && tx.ContentHash == contentHash {
			copy := tx
			return &copy, nil
		}
	}
	return nil, nil
}

func (f *fakeLedgerRepo) CreateTransaction(ctx context.Context, tx models.CreditTransaction) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[tx.ID] = tx
	return nil
}

func (f *fakeLedgerRepo) ConfirmTransaction(ctx context.Context, txID string, credit models.CompanyCredit, at time.Time) error {
	if f.confirmErr != nil {
		return f.confirmErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[txID]
	if !ok {
		return fmt.Errorf("transaction %q missing", txID)
	}
	tx.Status = models.TxConfirmed
	tx.UpdatedAt = at
	f.txs[txID] = tx
	f.balances[credit.CompanyID] = credit
	return nil
}

func (f *fakeLedgerRepo) FailTransaction(ctx context.Context, txID, errMsg string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[txID]
	if !ok {
		return fmt.Errorf("transaction %q missing", txID)
	}
	tx.Status = models.TxFailed
	tx.ErrorMessage = errMsg
	tx.UpdatedAt = at
	f.txs[txID] = tx
	return nil
}

func (f *fakeLedgerRepo) GetCompanyCredit(ctx context.Context, companyID string) (models.CompanyCredit, error) {
	if f.balanceErr != nil {
		return models.CompanyCredit{}, f.balanceErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.balances[companyID]; ok {
		return c, nil
	}
	return models.CompanyCredit{CompanyID: companyID}, nil
}

func (f *fakeLedgerRepo) ListTransactions(ctx context.Context, companyID, deviceID, status string, limit int) ([]models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CreditTransaction
	for _, tx := range f.txs {
		if companyID != "" && tx.CompanyID != companyID {
			continue
		}
		if deviceID != "" && tx.DeviceID != deviceID {
			continue
		}
		if status != "" && tx.Status != status {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (f *fakeLedgerRepo) transactionsFor(deviceID string) []models.CreditTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CreditTransaction
	for _, tx := range f.txs {
		if tx.DeviceID == deviceID {
			out = append(out, tx)
		}
	}
	return out
}

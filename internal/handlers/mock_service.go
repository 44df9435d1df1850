package handlers

import (
	"context"
	"time"

	"carbonledger/internal/models"
	"carbonledger/internal/service"
)

// ---- Service Mocks ----

type mockIngestion struct {
	res service.IngestResult
	err error

	calls        int
	lastRaw      []byte
	lastFallback string
	lastCompany  string
}

func (m *mockIngestion) Ingest(ctx context.Context, raw []byte, fallbackDeviceID, companyID string) (service.IngestResult, error) {
	m.calls++
	m.lastRaw = raw
	m.lastFallback = fallbackDeviceID
	m.lastCompany = companyID
	return m.res, m.err
}

type mockDevices struct {
	device  models.Device
	created bool
	err     error

	devices []models.Device
	listErr error

	lastRegister  service.RegisterParams
	lastThreshold models.Threshold
	deactivated   []string
}

func (m *mockDevices) Register(ctx context.Context, p service.RegisterParams) (models.Device, bool, error) {
	m.lastRegister = p
	return m.device, m.created, m.err
}

func (m *mockDevices) UpdateThreshold(ctx context.Context, companyID, deviceID string, th models.Threshold) (models.Device, error) {
	m.lastThreshold = th
	return m.device, m.err
}

func (m *mockDevices) Deactivate(ctx context.Context, companyID, deviceID string) error {
	m.deactivated = append(m.deactivated, deviceID)
	return m.err
}

func (m *mockDevices) List(ctx context.Context, companyID string) ([]models.Device, error) {
	return m.devices, m.listErr
}

func (m *mockDevices) Get(ctx context.Context, companyID, deviceID string) (models.Device, error) {
	return m.device, m.err
}

type mockLedger struct {
	credit    models.CompanyCredit
	creditErr error

	txs    []models.CreditTransaction
	txsErr error

	hook func(models.CreditTransaction)

	lastDevice string
	lastStatus string
	lastLimit  int
}

func (m *mockLedger) CompanyCredit(ctx context.Context, companyID string) (models.CompanyCredit, error) {
	return m.credit, m.creditErr
}

func (m *mockLedger) Transactions(ctx context.Context, companyID, deviceID, status string, limit int) ([]models.CreditTransaction, error) {
	m.lastDevice = deviceID
	m.lastStatus = status
	m.lastLimit = limit
	return m.txs, m.txsErr
}

func (m *mockLedger) SetConfirmedHook(fn func(models.CreditTransaction)) {
	m.hook = fn
}

type mockReadings struct {
	readings []models.Reading
	err      error

	lastFrom  time.Time
	lastTo    time.Time
	lastLimit int
}

func (m *mockReadings) History(ctx context.Context, companyID, deviceID string, from, to time.Time, limit int) ([]models.Reading, error) {
	m.lastFrom = from
	m.lastTo = to
	m.lastLimit = limit
	return m.readings, m.err
}

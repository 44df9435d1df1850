package service

import (
	"context"
	"time"

	"carbonledger/internal/accumulator"
	"carbonledger/internal/cache"
	"carbonledger/internal/logger"
	"carbonledger/internal/models"
	"carbonledger/internal/repository"
)

// Ingestion is the gateway contract shared by the HTTP endpoint and the
// message-bus consumer. fallbackDeviceID supplies the device identity when
// the payload itself omits it (e.g. compact frames keyed by topic).
type Ingestion interface {
	Ingest(ctx context.Context, raw []byte, fallbackDeviceID, companyID string) (IngestResult, error)
}

// Devices exposes registration and configuration of the device registry.
type Devices interface {
	Register(ctx context.Context, p RegisterParams) (models.Device, bool, error)
	UpdateThreshold(ctx context.Context, companyID, deviceID string, th models.Threshold) (models.Device, error)
	Deactivate(ctx context.Context, companyID, deviceID string) error
	List(ctx context.Context, companyID string) ([]models.Device, error)
	Get(ctx context.Context, companyID, deviceID string) (models.Device, error)
}

// Ledger exposes the credit balance and transaction history views.
type Ledger interface {
	CompanyCredit(ctx context.Context, companyID string) (models.CompanyCredit, error)
	Transactions(ctx context.Context, companyID, deviceID, status string, limit int) ([]models.CreditTransaction, error)
	SetConfirmedHook(fn func(models.CreditTransaction))
}

// Readings exposes the persisted reading history for dashboards.
type Readings interface {
	History(ctx context.Context, companyID, deviceID string, from, to time.Time, limit int) ([]models.Reading, error)
}

// Service aggregates all sub-services.
type Service struct {
	Ingestion
	Devices
	Ledger
	Readings
}

// NewService wires the repository layer, the accumulator store and the
// external collaborators into concrete services.
func NewService(
	repos *repository.Repository,
	acc *accumulator.Store,
	c *cache.Cache,
	mirror ReadingMirror,
	opts GatewayOptions,
	log *logger.Logger,
) *Service {
	devices := NewDeviceService(repos.Devices, c)
	ledger := NewLedgerManager(repos.Ledger, c)
	return &Service{
		Ingestion: NewIngestionGateway(repos, devices, ledger, acc, mirror, opts, log),
		Devices:   devices,
		Ledger:    ledger,
		Readings:  NewReadingQueryService(repos.Devices, repos.Readings),
	}
}

// ReadingQueryService serves owner-checked raw reading history.
type ReadingQueryService struct {
	deviceRepo  repository.DeviceRepo
	readingRepo repository.ReadingRepo
}

func NewReadingQueryService(deviceRepo repository.DeviceRepo, readingRepo repository.ReadingRepo) *ReadingQueryService {
	return &ReadingQueryService{deviceRepo: deviceRepo, readingRepo: readingRepo}
}

func (s *ReadingQueryService) History(ctx context.Context, companyID, deviceID string, from, to time.Time, limit int) ([]models.Reading, error) {
	d, err := s.deviceRepo.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrUnknownDevice
	}
	if d.CompanyID != companyID {
		return nil, ErrDeviceConflict
	}
	return s.readingRepo.ListByDevice(ctx, deviceID, from, to, limit)
}

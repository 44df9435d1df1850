package service

import (
	"context"
	"strings"
	"time"

	"carbonledger/internal/cache"
	"carbonledger/internal/models"
	"carbonledger/internal/repository"
)

// RegisterParams is the device registration input.
type RegisterParams struct {
	DeviceID      string
	DeviceType    string
	CompanyID     string
	WalletAddress string
	Location      string
	Threshold     *models.Threshold // nil means seed defaults
}

// DeviceService owns registration and threshold configuration.
type DeviceService struct {
	deviceRepo repository.DeviceRepo
	cache      *cache.Cache
}

func NewDeviceService(deviceRepo repository.DeviceRepo, c *cache.Cache) *DeviceService {
	return &DeviceService{deviceRepo: deviceRepo, cache: c}
}

// Register creates the device, seeding threshold defaults. Re-registering an
// id already owned by the same company is an idempotent lastSeen touch;
// a different owner is a conflict.
func (s *DeviceService) Register(ctx context.Context, p RegisterParams) (models.Device, bool, error) {
	deviceID := strings.TrimSpace(p.DeviceID)
	if deviceID == "" || p.CompanyID == "" {
		return models.Device{}, false, ErrUnknownDevice
	}

	existing, err := s.deviceRepo.Get(ctx, deviceID)
	if err != nil {
		return models.Device{}, false, err
	}
	if existing != nil {
		if existing.CompanyID != p.CompanyID {
			return models.Device{}, false, ErrDeviceConflict
		}
		now := time.Now().UTC()
		if err := s.deviceRepo.TouchLastSeen(ctx, deviceID, now); err != nil {
			return models.Device{}, false, err
		}
		existing.LastSeen = now
		return *existing, false, nil
	}

	th := models.DefaultThreshold()
	if p.Threshold != nil {
		if err := validateThreshold(*p.Threshold); err != nil {
			return models.Device{}, false, err
		}
		th = *p.Threshold
	}

	deviceType := strings.ToUpper(strings.TrimSpace(p.DeviceType))
	if deviceType != models.DeviceSequester && deviceType != models.DeviceEmitter {
		deviceType = models.DeviceSequester
	}

	d := models.Device{
		ID:            deviceID,
		DeviceType:    deviceType,
		CompanyID:     p.CompanyID,
		WalletAddress: p.WalletAddress,
		Location:      p.Location,
		IsActive:      true,
		Threshold:     th,
		RegisteredAt:  time.Now().UTC(),
	}
	if err := s.deviceRepo.Create(ctx, d); err != nil {
		return models.Device{}, false, err
	}

	_ = s.cache.Invalidate(ctx, cache.DeviceListKey(p.CompanyID))
	return d, true, nil
}

// UpdateThreshold replaces the device's accumulation policy. Owner-checked.
func (s *DeviceService) UpdateThreshold(ctx context.Context, companyID, deviceID string, th models.Threshold) (models.Device, error) {
	if err := validateThreshold(th); err != nil {
		return models.Device{}, err
	}

	d, err := s.ownedDevice(ctx, companyID, deviceID)
	if err != nil {
		return models.Device{}, err
	}

	if err := s.deviceRepo.UpdateThreshold(ctx, deviceID, th); err != nil {
		return models.Device{}, err
	}
	d.Threshold = th

	_ = s.cache.Invalidate(ctx, cache.DeviceListKey(companyID))
	return *d, nil
}

// Deactivate soft-deactivates the device; it is never hard-deleted.
func (s *DeviceService) Deactivate(ctx context.Context, companyID, deviceID string) error {
	if _, err := s.ownedDevice(ctx, companyID, deviceID); err != nil {
		return err
	}
	if err := s.deviceRepo.Deactivate(ctx, deviceID); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, cache.DeviceListKey(companyID))
}

// List returns the company's devices, read-through cached.
func (s *DeviceService) List(ctx context.Context, companyID string) ([]models.Device, error) {
	var cached []models.Device
	if s.cache.GetJSON(ctx, cache.DeviceListKey(companyID), &cached) {
		return cached, nil
	}
	devices, err := s.deviceRepo.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	_ = s.cache.SetJSON(ctx, cache.DeviceListKey(companyID), devices)
	return devices, nil
}

// Get returns one device, owner-checked.
func (s *DeviceService) Get(ctx context.Context, companyID, deviceID string) (models.Device, error) {
	d, err := s.ownedDevice(ctx, companyID, deviceID)
	if err != nil {
		return models.Device{}, err
	}
	return *d, nil
}

func (s *DeviceService) ownedDevice(ctx context.Context, companyID, deviceID string) (*models.Device, error) {
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
	return d, nil
}

func validateThreshold(th models.Threshold) error {
	if th.Co2Threshold <= 0 || th.EnergyThreshold <= 0 || th.TimeWindowSec <= 0 {
		return ErrInvalidThreshold
	}
	return nil
}

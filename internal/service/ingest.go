package service

import (
	"context"
	"errors"
	"time"

	"carbonledger/internal/accumulator"
	"carbonledger/internal/logger"
	"carbonledger/internal/models"
	"carbonledger/internal/repository"
	"carbonledger/internal/telemetry"
)

// ReadingMirror receives accepted readings for time-series dashboards.
// Fire-and-forget: mirror failures never fail ingestion.
type ReadingMirror interface {
	InsertReading(ctx context.Context, r models.Reading) error
}

const mirrorTimeout = 5 * time.Second

// GatewayOptions tune the ingestion path.
type GatewayOptions struct {
	// AutoProvision creates devices on first telemetry from an unknown id,
	// owned by the company the API key is bound to.
	AutoProvision bool
	// ProvisionType is the device type assigned to auto-provisioned devices.
	ProvisionType string
}

// IngestResult is what the gateway reports back once a reading is durable.
// Transaction is set only when this reading crossed the threshold.
type IngestResult struct {
	ReadingID   string                     `json:"reading_id"`
	Duplicate   bool                       `json:"duplicate"`
	Accumulator models.AccumulatorSnapshot `json:"accumulator"`
	Transaction *models.CreditTransaction  `json:"transaction,omitempty"`
}

// IngestionGateway orchestrates the full pipeline: validate → persist →
// accumulate → evaluate → issue → touch lastSeen. Both the HTTP and the
// message-bus path go through Ingest, so they share one idempotency contract.
type IngestionGateway struct {
	deviceRepo  repository.DeviceRepo
	readingRepo repository.ReadingRepo
	devices     *DeviceService
	ledger      *LedgerManager
	acc         *accumulator.Store
	mirror      ReadingMirror
	opts        GatewayOptions
	log         *logger.Logger
}

func NewIngestionGateway(
	repos *repository.Repository,
	devices *DeviceService,
	ledger *LedgerManager,
	acc *accumulator.Store,
	mirror ReadingMirror,
	opts GatewayOptions,
	log *logger.Logger,
) *IngestionGateway {
	return &IngestionGateway{
		deviceRepo:  repos.Devices,
		readingRepo: repos.Readings,
		devices:     devices,
		ledger:      ledger,
		acc:         acc,
		mirror:      mirror,
		opts:        opts,
		log:         log,
	}
}

// Ingest accepts a raw telemetry payload (either wire shape) under the given
// company identity. Success means the reading is durably persisted and
// accumulated; ledger failures are captured on the transaction, not returned.
func (g *IngestionGateway) Ingest(ctx context.Context, raw []byte, fallbackDeviceID, companyID string) (IngestResult, error) {
	now := time.Now().UTC()

	reading, err := telemetry.Normalize(raw, fallbackDeviceID, now)
	if err != nil {
		return IngestResult{}, err
	}

	device, err := g.resolveDevice(ctx, reading.DeviceID, companyID)
	if err != nil {
		return IngestResult{}, err
	}

	readingID, duplicate, err := g.readingRepo.Insert(ctx, reading)
	if err != nil {
		return IngestResult{}, err
	}
	reading.ID = readingID

	// Retransmission of an already-stored payload: one Reading exists, the
	// accumulator already counted it, nothing more to do.
	if duplicate {
		_ = g.deviceRepo.TouchLastSeen(ctx, device.ID, now)
		snap, _ := g.acc.Snapshot(device.ID)
		return IngestResult{ReadingID: readingID, Duplicate: true, Accumulator: snap}, nil
	}

	g.mirrorReading(reading)

	res := g.acc.Apply(device.ID, reading, device.Threshold, now)
	out := IngestResult{ReadingID: readingID, Accumulator: res.Snapshot}

	if res.Crossed {
		out.Transaction = g.issueForCrossing(ctx, *device, res.Snapshot, reading.ContentHash)
		// The issue path may have re-armed the window; report what stands now.
		if cur, ok := g.acc.Snapshot(device.ID); ok {
			out.Accumulator = cur
		}
	}

	if err := g.deviceRepo.TouchLastSeen(ctx, device.ID, now); err != nil {
		g.log.Warnw("touch_last_seen_failed", "device", device.ID, "err", err)
	}
	return out, nil
}

// resolveDevice looks up the device and checks company ownership,
// auto-provisioning unknown ids when configured.
func (g *IngestionGateway) resolveDevice(ctx context.Context, deviceID, companyID string) (*models.Device, error) {
	device, err := g.deviceRepo.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		if !g.opts.AutoProvision {
			return nil, ErrUnknownDevice
		}
		provisioned, _, err := g.devices.Register(ctx, RegisterParams{
			DeviceID:   deviceID,
			DeviceType: g.opts.ProvisionType,
			CompanyID:  companyID,
		})
		if err != nil {
			return nil, err
		}
		g.log.Infow("device_auto_provisioned", "device", deviceID, "company", companyID)
		return &provisioned, nil
	}
	if device.CompanyID != companyID {
		return nil, ErrDeviceConflict
	}
	if !device.IsActive {
		return nil, ErrUnknownDevice
	}
	return device, nil
}

// issueForCrossing runs the credit calculator and the ledger manager for the
// one crossing this window produced. Ledger errors are an operational
// concern, captured on the transaction; a retryable failure re-arms the
// window for a bounded number of attempts.
func (g *IngestionGateway) issueForCrossing(ctx context.Context, device models.Device, snap models.AccumulatorSnapshot, contentHash string) *models.CreditTransaction {
	amount := CreditAmount(snap)
	if amount == 0 {
		// Crossing with zero credit is a no-op; the window stays consumed
		// and resets on its next expiry.
		return nil
	}

	tx, err := g.ledger.Issue(ctx, device, amount, snap, contentHash)
	if err != nil {
		if errors.Is(err, ErrLedgerInvariant) {
			// Deterministic failure: retrying the same snapshot can never
			// succeed, so the window stays consumed.
			g.log.Warnw("ledger_invariant_violation",
				"device", device.ID, "company", device.CompanyID, "tx", tx.ID, "err", err)
		} else {
			g.log.Errorw("ledger_issue_failed",
				"device", device.ID, "company", device.CompanyID, "err", err)
			if g.acc.Release(device.ID, snap.WindowStart) {
				g.log.Infow("window_rearmed_for_retry", "device", device.ID)
			}
		}
	}
	if tx.ID == "" {
		return nil
	}
	return &tx
}

// mirrorReading ships the reading to the time-series store on a detached
// context so a slow mirror cannot block or outlive-cancel the request.
func (g *IngestionGateway) mirrorReading(r models.Reading) {
	if g.mirror == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := g.mirror.InsertReading(ctx, r); err != nil {
			g.log.Warnw("timeseries_mirror_failed", "device", r.DeviceID, "err", err)
		}
	}()
}

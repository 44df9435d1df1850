package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"carbonledger/internal/models"
)

// ValidationError reports a malformed or incomplete telemetry payload.
// Ingestion rejects these at the boundary with no state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid telemetry payload: field %q %s", e.Field, e.Reason)
}

func missing(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}

// verbosePayload is the full wire shape sent by gateway-class devices.
// Pointer fields distinguish "absent" from zero.
type verbosePayload struct {
	DeviceID    *string  `json:"deviceId"`
	Co2Value    *float64 `json:"co2Value"`
	EnergyValue *float64 `json:"energyValue"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Timestamp   *int64   `json:"timestamp"` // unix seconds
}

// compactPayload is the abbreviated shape pushed by constrained firmware
// (single-letter keys keep the frame small on embedded boards).
type compactPayload struct {
	DeviceID *string  `json:"d"`
	Co2      *float64 `json:"c"`
	Humidity *float64 `json:"h"`
	Credits  *float64 `json:"cr"` // device-side credits hint, advisory only
	Energy   *float64 `json:"e"`
	Offset   *bool    `json:"o"`
	Unix     *int64   `json:"t"` // unix seconds
}

// Normalize parses either wire shape into one canonical Reading. The shapes
// are detected by their discriminating keys ("deviceId"/"co2Value" vs
// "c"/"t"), never merged into one bag of optional fields.
//
// fallbackDeviceID supplies the device identity when the payload omits it
// (the compact shape usually carries it in the transport topic instead).
func Normalize(data []byte, fallbackDeviceID string, now time.Time) (models.Reading, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return models.Reading{}, &ValidationError{Field: "body", Reason: "is not a JSON object"}
	}

	if _, ok := probe["co2Value"]; ok {
		return normalizeVerbose(data, fallbackDeviceID, now)
	}
	if _, ok := probe["c"]; ok {
		return normalizeCompact(data, fallbackDeviceID, now)
	}
	return models.Reading{}, &ValidationError{Field: "body", Reason: "matches neither telemetry shape"}
}

func normalizeVerbose(data []byte, fallbackDeviceID string, now time.Time) (models.Reading, error) {
	var p verbosePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return models.Reading{}, &ValidationError{Field: "body", Reason: "has mistyped fields"}
	}

	deviceID := fallbackDeviceID
	if p.DeviceID != nil && *p.DeviceID != "" {
		deviceID = strings.TrimSpace(*p.DeviceID)
	}
	if deviceID == "" {
		return models.Reading{}, missing("deviceId")
	}
	if p.Co2Value == nil {
		return models.Reading{}, missing("co2Value")
	}
	if p.EnergyValue == nil {
		return models.Reading{}, missing("energyValue")
	}

	r := models.Reading{
		DeviceID:    deviceID,
		Co2Value:    *p.Co2Value,
		EnergyValue: *p.EnergyValue,
		Timestamp:   timestampOrNow(p.Timestamp, now),
		ReceivedAt:  now.UTC(),
	}
	if p.Temperature != nil {
		r.Temperature = *p.Temperature
	}
	if p.Humidity != nil {
		r.Humidity = *p.Humidity
	}
	return finalize(r)
}

func normalizeCompact(data []byte, fallbackDeviceID string, now time.Time) (models.Reading, error) {
	var p compactPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return models.Reading{}, &ValidationError{Field: "body", Reason: "has mistyped fields"}
	}

	deviceID := fallbackDeviceID
	if p.DeviceID != nil && *p.DeviceID != "" {
		deviceID = strings.TrimSpace(*p.DeviceID)
	}
	if deviceID == "" {
		return models.Reading{}, missing("d")
	}
	if p.Co2 == nil {
		return models.Reading{}, missing("c")
	}
	if p.Energy == nil {
		return models.Reading{}, missing("e")
	}

	r := models.Reading{
		DeviceID:    deviceID,
		Co2Value:    *p.Co2,
		EnergyValue: *p.Energy,
		Timestamp:   timestampOrNow(p.Unix, now),
		ReceivedAt:  now.UTC(),
	}
	if p.Humidity != nil {
		r.Humidity = *p.Humidity
	}
	// p.Credits and p.Offset are the firmware's own estimate; the ledger
	// recomputes from accumulated totals, so they are dropped here.
	return finalize(r)
}

// finalize rejects non-finite negatives and stamps the content hash.
func finalize(r models.Reading) (models.Reading, error) {
	if r.Co2Value < 0 {
		return models.Reading{}, &ValidationError{Field: "co2", Reason: "must be >= 0"}
	}
	if r.EnergyValue < 0 {
		return models.Reading{}, &ValidationError{Field: "energy", Reason: "must be >= 0"}
	}
	r.ContentHash = ContentHash(r)
	return r, nil
}

func timestampOrNow(unix *int64, now time.Time) time.Time {
	if unix == nil || *unix <= 0 {
		return now.UTC()
	}
	return time.Unix(*unix, 0).UTC()
}

// ContentHash computes the deduplication digest for a reading: a sha256 over
// a deterministic field serialization. Identical retransmissions hash equal
// regardless of JSON key order or which wire shape carried them.
func ContentHash(r models.Reading) string {
	var b strings.Builder
	b.WriteString(r.DeviceID)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(r.Timestamp.UTC().Unix(), 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(r.Co2Value, 'f', -1, 64))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(r.EnergyValue, 'f', -1, 64))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(r.Temperature, 'f', -1, 64))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(r.Humidity, 'f', -1, 64))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

package models

import "time"

// Reading is one normalized sensor report. Immutable once written; the
// ContentHash deduplicates retransmissions of the same payload.
type Reading struct {
	ID          string    `json:"reading_id"`
	DeviceID    string    `json:"device_id"`
	Timestamp   time.Time `json:"timestamp"`
	Co2Value    float64   `json:"co2_value"`
	EnergyValue float64   `json:"energy_value"`
	Temperature float64   `json:"temperature,omitempty"`
	Humidity    float64   `json:"humidity,omitempty"`
	ContentHash string    `json:"content_hash"`
	ReceivedAt  time.Time `json:"received_at"`
}

// AccumulatorSnapshot is a point-in-time copy of a device's windowed totals.
// Snapshots are what the threshold evaluator and the ledger see; the live
// accumulator is never handed out.
type AccumulatorSnapshot struct {
	DeviceID         string    `json:"device_id"`
	TotalCo2         float64   `json:"total_co2"`
	TotalEnergy      float64   `json:"total_energy"`
	SampleCount      int       `json:"sample_count"`
	WindowStart      time.Time `json:"window_start"`
	ThresholdReached bool      `json:"threshold_reached"`
}

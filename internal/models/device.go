package models

import "time"

// Device types recognized by the credit engine.
const (
	DeviceSequester = "SEQUESTER" // removes CO₂; owner may be minted credits
	DeviceEmitter   = "EMITTER"   // produces CO₂; owner may have credits burned
)

// Default threshold configuration seeded at registration.
const (
	DefaultCo2Threshold    = 1000.0
	DefaultEnergyThreshold = 500.0
	DefaultTimeWindowSec   = 3600
)

// Device is a registered IoT sensor. The threshold configuration lives on the
// device row; devices are soft-deactivated, never deleted.
type Device struct {
	ID            string    `json:"device_id"` // stable identifier, e.g. a MAC address
	DeviceType    string    `json:"device_type"` // SEQUESTER | EMITTER
	CompanyID     string    `json:"company_id"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	Location      string    `json:"location,omitempty"`
	IsActive      bool      `json:"is_active"`
	Threshold     Threshold `json:"threshold"`
	LastSeen      time.Time `json:"last_seen"`
	RegisteredAt  time.Time `json:"registered_at"`
}

// Threshold is the per-device accumulation policy.
type Threshold struct {
	Co2Threshold    float64 `json:"co2_threshold"`
	EnergyThreshold float64 `json:"energy_threshold"`
	TimeWindowSec   int     `json:"time_window_seconds"`
}

// TimeWindow returns the accumulation window as a duration.
func (t Threshold) TimeWindow() time.Duration {
	return time.Duration(t.TimeWindowSec) * time.Second
}

// DefaultThreshold returns the policy applied when a device registers without
// an explicit configuration.
func DefaultThreshold() Threshold {
	return Threshold{
		Co2Threshold:    DefaultCo2Threshold,
		EnergyThreshold: DefaultEnergyThreshold,
		TimeWindowSec:   DefaultTimeWindowSec,
	}
}

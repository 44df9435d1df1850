package service

import (
	"math"

	"carbonledger/internal/models"
)

// UnitCo2PerCredit is the amount of accumulated CO₂ that converts into one
// whole carbon credit.
const UnitCo2PerCredit = 1000.0

// CreditAmount converts accumulated readings into a credit amount:
// floor(totalCo2 / UnitCo2PerCredit). Deterministic; a crossing that floors
// to zero issues nothing (the window is still consumed).
func CreditAmount(snap models.AccumulatorSnapshot) int64 {
	if snap.TotalCo2 <= 0 {
		return 0
	}
	return int64(math.Floor(snap.TotalCo2 / UnitCo2PerCredit))
}

// TransactionKind maps the device type to the ledger operation: sequesters
// mint new credit, emitters burn existing credit.
func TransactionKind(deviceType string) string {
	if deviceType == models.DeviceEmitter {
		return models.TxBurn
	}
	return models.TxMint
}

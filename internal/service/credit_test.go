package service

import (
	"testing"

	"carbonledger/internal/models"
)

func TestCreditAmount(t *testing.T) {
	cases := []struct {
		name string
		co2  float64
		want int64
	}{
		{"below one unit", 999.9, 0},
		{"exactly one unit", 1000, 1},
		{"floors fractions", 1100, 1},
		{"multiple units", 4500, 4},
		{"zero", 0, 0},
		{"negative clamps to zero", -50, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := models.AccumulatorSnapshot{TotalCo2: tc.co2}
			if got := CreditAmount(snap); got != tc.want {
				t.Errorf("CreditAmount(%v) = %d, want %d", tc.co2, got, tc.want)
			}
		})
	}
}

func TestTransactionKind(t *testing.T) {
	if got := TransactionKind(models.DeviceSequester); got != models.TxMint {
		t.Errorf("sequester kind = %q, want MINT", got)
	}
	if got := TransactionKind(models.DeviceEmitter); got != models.TxBurn {
		t.Errorf("emitter kind = %q, want BURN", got)
	}
}

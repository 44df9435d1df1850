package models

import "time"

// Transaction kinds.
const (
	TxMint = "MINT" // sequestered CO₂ converted into new credit
	TxBurn = "BURN" // emitted CO₂ consuming previously issued credit
)

// Transaction statuses. CONFIRMED and FAILED are terminal.
const (
	TxPending   = "PENDING"
	TxConfirmed = "CONFIRMED"
	TxFailed    = "FAILED"
)

// CreditTransaction is one auditable ledger operation. The
// (DeviceID, WindowStart, ContentHash) tuple is the idempotency key: a
// duplicated issuance call returns the existing row.
type CreditTransaction struct {
	ID           string              `json:"id"`
	DeviceID     string              `json:"device_id"`
	CompanyID    string              `json:"company_id"`
	WindowStart  time.Time           `json:"window_start"`
	ContentHash  string              `json:"content_hash"`
	Type         string              `json:"type"`   // MINT | BURN
	Amount       int64               `json:"amount"` // whole credits, never negative
	Status       string              `json:"status"` // PENDING | CONFIRMED | FAILED
	Snapshot     AccumulatorSnapshot `json:"data"`   // accumulator state that produced it
	ErrorMessage string              `json:"error_message,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// CompanyCredit is the per-company running balance.
//
// Invariants after every transaction: TotalCredit >= 0, CurrentCredit >= 0,
// CurrentCredit <= TotalCredit, and TotalCredit == CurrentCredit + SoldCredit
// while no sale is in flight. A MINT raises TotalCredit and CurrentCredit; a
// BURN lowers CurrentCredit only.
type CompanyCredit struct {
	CompanyID     string   `json:"company_id"`
	TotalCredit   int64    `json:"total_credit"`
	CurrentCredit int64    `json:"current_credit"`
	SoldCredit    int64    `json:"sold_credit"`
	OfferPrice    *float64 `json:"offer_price,omitempty"`
}

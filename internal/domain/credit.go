package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// ─── Ledger Types ───────────────────────────────────────────────────────────
// The custody primitive is a double-entry ledger: every transfer writes a
// DEBIT row on the source account and a CREDIT row on the destination.

// EntryType represents the accounting side of a ledger entry.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// TransactionType represents the business reason for a transfer.
type TransactionType string

const (
	TxDeposit TransactionType = "DEPOSIT" // owner funds a wallet
	TxStake   TransactionType = "STAKE"   // wallet → treasury on join
	TxRefund  TransactionType = "REFUND"  // treasury → wallet on claim
)

// LedgerEntry is a single row in the double-entry ledger.
type LedgerEntry struct {
	ID          int64           `json:"id"`
	TransferID  string          `json:"transfer_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Type        TransactionType `json:"type"`
	EntryType   EntryType       `json:"entry_type"`
	Account     string          `json:"account"`
	Amount      uint64          `json:"amount"`
	Description string          `json:"description,omitempty"`
	Balance     uint64          `json:"balance"`
}

// Transfer describes one atomic movement of value between two accounts.
// Decimals is the caller's view of the token scale; the ledger rejects a
// mismatch with its declared precision.
type Transfer struct {
	From        string
	To          string
	Amount      uint64
	Decimals    uint8
	Type        TransactionType
	Description string
}

// ─── Amount Formatting ──────────────────────────────────────────────────────

// FormatAmount renders base units at the token's decimal scale,
// e.g. FormatAmount(1500000, 6) = "1.5".
func FormatAmount(amount uint64, decimals uint8) string {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
	return d.String()
}

// ParseAmount converts a human amount ("1.5") to base units at the given
// scale. Fractions finer than the scale are rejected, as are amounts above
// MaxStorable.
func ParseAmount(s string, decimals uint8) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	units := d.Shift(int32(decimals))
	if units.Sign() <= 0 || !units.Equal(units.Truncate(0)) {
		return 0, ErrInvalidAmount
	}
	n := units.BigInt()
	if !n.IsUint64() || n.Uint64() > MaxStorable {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, s)
	}
	return n.Uint64(), nil
}

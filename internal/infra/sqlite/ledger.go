package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aaas-network/aaas/internal/domain"
)

// ─── Ledger Operations ──────────────────────────────────────────────────────
// The ledger is the custody primitive. Transfers are double-entry: a DEBIT
// row on the source and a CREDIT row on the destination, sharing one
// transfer id. Balances never go negative.

// OpenAccount creates a zero-balance account if it does not exist.
func (t *Tx) OpenAccount(account string) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT OR IGNORE INTO ledger_accounts (account, balance) VALUES (?, 0)
	`, account)
	if err != nil {
		return fmt.Errorf("open account %s: %w", account, err)
	}
	return nil
}

// Balance returns an account's balance. Unknown accounts hold zero.
func (t *Tx) Balance(account string) (uint64, error) {
	var balance uint64
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT balance FROM ledger_accounts WHERE account = ?
	`, account).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balance %s: %w", account, err)
	}
	return balance, nil
}

// Transfer atomically moves tr.Amount from tr.From to tr.To.
func (t *Tx) Transfer(ctx context.Context, tr domain.Transfer) error {
	if tr.Amount == 0 {
		return domain.ErrInvalidAmount
	}
	if tr.From == tr.To {
		return fmt.Errorf("%w: %s", domain.ErrSelfTransfer, tr.From)
	}
	if tr.Decimals != t.decimals {
		return fmt.Errorf("%w: got %d, token has %d", domain.ErrDecimalsMismatch, tr.Decimals, t.decimals)
	}

	fromBalance, err := t.Balance(tr.From)
	if err != nil {
		return err
	}
	if fromBalance < tr.Amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", domain.ErrInsufficientFunds, tr.From, fromBalance, tr.Amount)
	}
	if err := t.OpenAccount(tr.To); err != nil {
		return err
	}
	toBalance, err := t.Balance(tr.To)
	if err != nil {
		return err
	}
	if toBalance > domain.MaxStorable-tr.Amount {
		return fmt.Errorf("%w: %s balance", domain.ErrOutOfRange, tr.To)
	}

	id := uuid.NewString()
	if err := t.post(ctx, id, tr, domain.EntryDebit, tr.From, fromBalance-tr.Amount); err != nil {
		return err
	}
	return t.post(ctx, id, tr, domain.EntryCredit, tr.To, toBalance+tr.Amount)
}

// Mint issues new value into account. Used to fund wallets.
func (t *Tx) Mint(ctx context.Context, account string, amount uint64, decimals uint8) error {
	if amount == 0 {
		return domain.ErrInvalidAmount
	}
	if decimals != t.decimals {
		return fmt.Errorf("%w: got %d, token has %d", domain.ErrDecimalsMismatch, decimals, t.decimals)
	}
	if err := t.OpenAccount(account); err != nil {
		return err
	}
	balance, err := t.Balance(account)
	if err != nil {
		return err
	}
	if amount > domain.MaxStorable || balance > domain.MaxStorable-amount {
		return fmt.Errorf("%w: %s balance", domain.ErrOutOfRange, account)
	}
	tr := domain.Transfer{To: account, Amount: amount, Decimals: decimals, Type: domain.TxDeposit, Description: "mint"}
	return t.post(ctx, uuid.NewString(), tr, domain.EntryCredit, account, balance+amount)
}

// post writes one ledger row and the resulting account balance.
func (t *Tx) post(ctx context.Context, transferID string, tr domain.Transfer, side domain.EntryType, account string, balance uint64) error {
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE ledger_accounts SET balance = ? WHERE account = ?
	`, balance, account); err != nil {
		return fmt.Errorf("update balance %s: %w", account, err)
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (transfer_id, timestamp, type, entry_type, account, amount, description, balance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, transferID, t.now().UTC().Format(time.RFC3339Nano), string(tr.Type), string(side), account,
		tr.Amount, tr.Description, balance)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// ─── Ledger Queries ─────────────────────────────────────────────────────────

// Entries returns the most recent ledger rows for account, newest first.
func (db *DB) Entries(ctx context.Context, account string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, transfer_id, timestamp, type, entry_type, account, amount, description, balance
		FROM ledger_entries WHERE account = ? ORDER BY id DESC LIMIT ?
	`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("list entries %s: %w", account, err)
	}
	defer rows.Close()

	var result []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var ts, typ, side string
		if err := rows.Scan(&e.ID, &e.TransferID, &ts, &typ, &side, &e.Account, &e.Amount, &e.Description, &e.Balance); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse entry %d timestamp: %w", e.ID, err)
		}
		e.Type = domain.TransactionType(typ)
		e.EntryType = domain.EntryType(side)
		result = append(result, e)
	}
	return result, rows.Err()
}

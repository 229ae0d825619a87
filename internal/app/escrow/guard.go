package escrow

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/aaas-network/aaas/internal/domain"
	"github.com/aaas-network/aaas/internal/infra/observability"
)

// ─── Access Guard ───────────────────────────────────────────────────────────

// authorize checks caller against the registry owner stored in the same
// unit of work.
func authorize(tx domain.Tx, caller string) error {
	r, err := tx.GetRegistry()
	if err != nil {
		return err
	}
	if r == nil {
		return domain.ErrRegistryNotInitialized
	}
	if caller != r.Owner {
		return domain.ErrUnauthorizedOwner
	}
	return nil
}

// Deposit mints amount into account. Owner only; used to fund wallets.
func (e *Engine) Deposit(ctx context.Context, caller, account string, amount uint64) error {
	attrs := []attribute.KeyValue{
		attribute.String("caller", caller),
		attribute.String("account", account),
		attribute.Int64("amount", int64(amount)),
	}
	err := e.run(ctx, OpDeposit, attrs, func(ctx context.Context, tx domain.Tx, now int64) (*domain.Event, error) {
		if err := authorize(tx, caller); err != nil {
			return nil, err
		}
		if err := checkIdentity(account); err != nil {
			return nil, err
		}
		if amount > domain.MaxStorable {
			return nil, fmt.Errorf("%w: amount %d", domain.ErrOutOfRange, amount)
		}
		if err := tx.Mint(ctx, account, amount, e.decimals); err != nil {
			return nil, err
		}
		return &domain.Event{
			Type:        domain.EventDeposited,
			Participant: account,
			Actor:       caller,
			Amount:      amount,
		}, nil
	})
	if err == nil {
		observability.StakeMoved.WithLabelValues(string(domain.TxDeposit)).Add(float64(amount))
	}
	return err
}

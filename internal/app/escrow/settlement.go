package escrow

import (
	"context"
	"fmt"

	"github.com/aaas-network/aaas/internal/domain"
	"github.com/aaas-network/aaas/internal/infra/observability"
)

// ─── Settlement Engine ──────────────────────────────────────────────────────

// Claim refunds a passed participant's deposit from the treasury. It
// succeeds at most once per membership: zeroing the deposit is the guard,
// and it commits together with the transfer. Returns the amount refunded.
//
// A participant passes when the operator marked them completed, or when
// votes for are at least votes against (ties favour the participant).
func (e *Engine) Claim(ctx context.Context, challengeID uint64, participant string) (uint64, error) {
	var amount uint64
	err := e.run(ctx, OpClaim, challengeAttrs(challengeID, participant), func(ctx context.Context, tx domain.Tx, now int64) (*domain.Event, error) {
		c, err := mustChallenge(tx, challengeID)
		if err != nil {
			return nil, err
		}
		m, err := joinedMembership(tx, challengeID, participant)
		if err != nil {
			return nil, err
		}
		if m.Deposited == 0 {
			return nil, domain.ErrAlreadyClaimed
		}
		if now < c.VerificationDeadline() {
			return nil, domain.ErrUnderVerification
		}
		if !m.Passed() {
			return nil, domain.ErrNotCompleted
		}

		amount = m.Deposited
		if err := tx.Transfer(ctx, domain.Transfer{
			From:        c.Treasury,
			To:          domain.WalletAddress(participant),
			Amount:      amount,
			Decimals:    e.decimals,
			Type:        domain.TxRefund,
			Description: fmt.Sprintf("refund for challenge %d", challengeID),
		}); err != nil {
			return nil, err
		}

		profile, err := tx.GetProfile(participant)
		if err != nil {
			return nil, err
		}
		if profile == nil {
			profile = &domain.Profile{Participant: participant}
		}
		profile.TotalWithdrawn += amount
		if err := tx.PutProfile(*profile); err != nil {
			return nil, err
		}

		m.Deposited = 0
		if err := tx.PutMembership(*m); err != nil {
			return nil, err
		}
		return &domain.Event{
			Type:        domain.EventClaimed,
			ChallengeID: challengeID,
			Participant: participant,
			Actor:       participant,
			Amount:      amount,
		}, nil
	})
	if err != nil {
		return 0, err
	}
	observability.StakeMoved.WithLabelValues(string(domain.TxRefund)).Add(float64(amount))
	return amount, nil
}

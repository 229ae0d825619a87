package escrow

import (
	"context"
	"fmt"

	"github.com/aaas-network/aaas/internal/domain"
	"github.com/aaas-network/aaas/internal/infra/observability"
)

// ─── Membership Ledger ──────────────────────────────────────────────────────

// Join stakes the challenge's per-participant amount from the participant's
// wallet into the treasury and records the membership. The transfer and
// every record write commit together or not at all.
func (e *Engine) Join(ctx context.Context, challengeID uint64, participant, displayName, note string) (*domain.Membership, error) {
	var joined domain.Membership
	var stake uint64
	err := e.run(ctx, OpJoin, challengeAttrs(challengeID, participant), func(ctx context.Context, tx domain.Tx, now int64) (*domain.Event, error) {
		if err := checkIdentity(participant); err != nil {
			return nil, err
		}
		c, err := mustChallenge(tx, challengeID)
		if err != nil {
			return nil, err
		}
		if !c.Allows(participant) {
			return nil, domain.ErrUnauthorized
		}
		existing, err := tx.GetMembership(challengeID, participant)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.Joined {
			return nil, domain.ErrAlreadyJoined
		}
		if c.Started(now) {
			return nil, domain.ErrChallengeAlreadyStarted
		}
		if len(displayName) > domain.MaxDisplayNameLen {
			return nil, fmt.Errorf("%w: display name is %d bytes, max %d", domain.ErrFieldTooLong, len(displayName), domain.MaxDisplayNameLen)
		}
		if len(note) > domain.MaxNoteLen {
			return nil, fmt.Errorf("%w: note is %d bytes, max %d", domain.ErrFieldTooLong, len(note), domain.MaxNoteLen)
		}

		stake = c.StakePerParticipant
		if c.PooledStake > domain.MaxStorable-stake {
			return nil, fmt.Errorf("%w: pooled stake of challenge %d", domain.ErrOutOfRange, challengeID)
		}
		if err := tx.Transfer(ctx, domain.Transfer{
			From:        domain.WalletAddress(participant),
			To:          c.Treasury,
			Amount:      stake,
			Decimals:    e.decimals,
			Type:        domain.TxStake,
			Description: fmt.Sprintf("stake for challenge %d", challengeID),
		}); err != nil {
			return nil, err
		}

		joined = domain.Membership{
			ChallengeID: challengeID,
			Participant: participant,
			Joined:      true,
			Deposited:   stake,
			Note:        note,
			JoinedAt:    now,
		}
		if err := tx.PutMembership(joined); err != nil {
			return nil, err
		}

		profile, err := tx.GetProfile(participant)
		if err != nil {
			return nil, err
		}
		if profile == nil {
			profile = &domain.Profile{Participant: participant}
		}
		if displayName != "" {
			profile.DisplayName = displayName
		}
		if profile.TotalDeposited > domain.MaxStorable-stake {
			return nil, fmt.Errorf("%w: total deposited by %s", domain.ErrOutOfRange, participant)
		}
		profile.TotalJoined++
		profile.TotalDeposited += stake
		if err := tx.PutProfile(*profile); err != nil {
			return nil, err
		}

		if err := tx.UpdateChallengeCounters(challengeID, c.ParticipantCount+1, c.PooledStake+stake); err != nil {
			return nil, err
		}
		return &domain.Event{
			Type:        domain.EventJoined,
			ChallengeID: challengeID,
			Participant: participant,
			Actor:       participant,
			Amount:      stake,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	observability.StakeMoved.WithLabelValues(string(domain.TxStake)).Add(float64(stake))
	return &joined, nil
}

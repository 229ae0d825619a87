package escrow

import (
	"context"

	"github.com/aaas-network/aaas/internal/domain"
)

// ─── Read Queries ───────────────────────────────────────────────────────────
// Reads run as their own unit of work so they see committed state only.
// Missing records are reported as nil, not as errors, except where a
// challenge is required to answer.

// Registry returns the registry owner record, or nil before bootstrap.
func (e *Engine) Registry(ctx context.Context) (*domain.Registry, error) {
	var r *domain.Registry
	err := e.read(ctx, func(tx domain.Tx) error {
		var err error
		r, err = tx.GetRegistry()
		return err
	})
	return r, err
}

// Challenge returns a challenge or ErrChallengeNotFound.
func (e *Engine) Challenge(ctx context.Context, id uint64) (*domain.Challenge, error) {
	var c *domain.Challenge
	err := e.read(ctx, func(tx domain.Tx) error {
		var err error
		c, err = mustChallenge(tx, id)
		return err
	})
	return c, err
}

// Challenges returns every challenge ordered by id.
func (e *Engine) Challenges(ctx context.Context) ([]domain.Challenge, error) {
	var list []domain.Challenge
	err := e.read(ctx, func(tx domain.Tx) error {
		var err error
		list, err = tx.ListChallenges()
		return err
	})
	return list, err
}

// Membership returns a participant's membership, or nil if they never joined.
func (e *Engine) Membership(ctx context.Context, challengeID uint64, participant string) (*domain.Membership, error) {
	var m *domain.Membership
	err := e.read(ctx, func(tx domain.Tx) error {
		if _, err := mustChallenge(tx, challengeID); err != nil {
			return err
		}
		var err error
		m, err = tx.GetMembership(challengeID, participant)
		return err
	})
	return m, err
}

// Members returns a challenge's memberships in join order.
func (e *Engine) Members(ctx context.Context, challengeID uint64) ([]domain.Membership, error) {
	var list []domain.Membership
	err := e.read(ctx, func(tx domain.Tx) error {
		if _, err := mustChallenge(tx, challengeID); err != nil {
			return err
		}
		var err error
		list, err = tx.ListMemberships(challengeID)
		return err
	})
	return list, err
}

// Profile returns a participant's cross-challenge totals, or nil.
func (e *Engine) Profile(ctx context.Context, participant string) (*domain.Profile, error) {
	var p *domain.Profile
	err := e.read(ctx, func(tx domain.Tx) error {
		var err error
		p, err = tx.GetProfile(participant)
		return err
	})
	return p, err
}

// Balance returns a ledger account balance in base units.
func (e *Engine) Balance(ctx context.Context, account string) (uint64, error) {
	var bal uint64
	err := e.read(ctx, func(tx domain.Tx) error {
		var err error
		bal, err = tx.Balance(account)
		return err
	})
	return bal, err
}

// VotingProgress reports how many of the other joined members voter has
// judged in a challenge.
func (e *Engine) VotingProgress(ctx context.Context, challengeID uint64, voter string) (*domain.VotingProgress, error) {
	progress := &domain.VotingProgress{ChallengeID: challengeID, Voter: voter}
	err := e.read(ctx, func(tx domain.Tx) error {
		if _, err := mustChallenge(tx, challengeID); err != nil {
			return err
		}
		members, err := tx.ListMemberships(challengeID)
		if err != nil {
			return err
		}
		votes, err := tx.ListVotesBy(challengeID, voter)
		if err != nil {
			return err
		}
		judged := make(map[string]bool, len(votes))
		for _, v := range votes {
			if v.Voted {
				judged[v.Member] = true
			}
		}
		for _, m := range members {
			if !m.Joined || m.Participant == voter {
				continue
			}
			progress.Eligible++
			if judged[m.Participant] {
				progress.Cast++
			}
		}
		progress.Complete = progress.Cast == progress.Eligible
		return nil
	})
	if err != nil {
		return nil, err
	}
	return progress, nil
}

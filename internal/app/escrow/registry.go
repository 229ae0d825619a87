package escrow

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/aaas-network/aaas/internal/domain"
	"github.com/aaas-network/aaas/internal/infra/observability"
)

// ─── Challenge Registry ─────────────────────────────────────────────────────

// ChallengeParams describes a challenge to create. Times are unix seconds.
type ChallengeParams struct {
	ID                  uint64      `json:"id" yaml:"id"`
	Goal                domain.Goal `json:"goal" yaml:"goal"`
	Name                string      `json:"name" yaml:"name"`
	Description         string      `json:"description" yaml:"description"`
	StartTime           int64       `json:"start_time" yaml:"start_time"`
	EndTime             int64       `json:"end_time" yaml:"end_time"`
	StakePerParticipant uint64      `json:"stake_per_participant" yaml:"stake_per_participant"`
	IsPrivate           bool        `json:"is_private" yaml:"is_private"`
	AllowList           []string    `json:"allow_list,omitempty" yaml:"allow_list,omitempty"`

	// Creator is the identity that submitted the challenge. Set by the
	// caller's transport, never decoded from the request.
	Creator string `json:"-" yaml:"-"`
}

// InitializeRegistry sets the registry owner. It succeeds once.
func (e *Engine) InitializeRegistry(ctx context.Context, owner string) error {
	attrs := []attribute.KeyValue{attribute.String("owner", owner)}
	return e.run(ctx, OpInitializeRegistry, attrs, func(ctx context.Context, tx domain.Tx, now int64) (*domain.Event, error) {
		if err := checkIdentity(owner); err != nil {
			return nil, err
		}
		if err := tx.InsertRegistry(domain.Registry{Owner: owner, InitializedAt: now}); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

// validate checks everything about p that does not need stored records.
func (p *ChallengeParams) validate(now int64) error {
	if p.StakePerParticipant == 0 {
		return domain.ErrInvalidStake
	}
	if p.StakePerParticipant > domain.MaxStorable {
		return fmt.Errorf("%w: stake %d", domain.ErrOutOfRange, p.StakePerParticipant)
	}
	if p.ID > domain.MaxStorable {
		return fmt.Errorf("%w: challenge id %d", domain.ErrOutOfRange, p.ID)
	}
	if p.Goal.Threshold > domain.MaxStorable {
		return fmt.Errorf("%w: threshold %d", domain.ErrOutOfRange, p.Goal.Threshold)
	}
	if p.IsPrivate {
		if len(p.AllowList) == 0 {
			return domain.ErrEmptyAllowList
		}
		if len(p.AllowList) > domain.MaxAllowList {
			return fmt.Errorf("%w: %d entries, max %d", domain.ErrAllowListTooLong, len(p.AllowList), domain.MaxAllowList)
		}
	}
	if len(p.Name) > domain.MaxNameLen {
		return fmt.Errorf("%w: name is %d bytes, max %d", domain.ErrFieldTooLong, len(p.Name), domain.MaxNameLen)
	}
	if len(p.Description) > domain.MaxDescriptionLen {
		return fmt.Errorf("%w: description is %d bytes, max %d", domain.ErrFieldTooLong, len(p.Description), domain.MaxDescriptionLen)
	}
	if p.StartTime <= now {
		return fmt.Errorf("%w: start %d is not after now %d", domain.ErrInvalidSchedule, p.StartTime, now)
	}
	if p.EndTime <= p.StartTime {
		return fmt.Errorf("%w: end %d is not after start %d", domain.ErrInvalidSchedule, p.EndTime, p.StartTime)
	}
	if !p.Goal.Kind.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidGoal, p.Goal.Kind)
	}
	return nil
}

// CreateChallenge registers a new challenge with zeroed counters and opens
// its treasury account. The id is the uniqueness key.
func (e *Engine) CreateChallenge(ctx context.Context, p ChallengeParams) (*domain.Challenge, error) {
	var created domain.Challenge
	attrs := append(challengeAttrs(p.ID, ""), attribute.String("goal", string(p.Goal.Kind)))
	err := e.run(ctx, OpCreateChallenge, attrs, func(ctx context.Context, tx domain.Tx, now int64) (*domain.Event, error) {
		if err := p.validate(now); err != nil {
			return nil, err
		}

		c := domain.Challenge{
			ID:                  p.ID,
			Goal:                p.Goal,
			Name:                p.Name,
			Description:         p.Description,
			StartTime:           p.StartTime,
			EndTime:             p.EndTime,
			StakePerParticipant: p.StakePerParticipant,
			Treasury:            domain.TreasuryAddress(p.ID),
			IsPrivate:           p.IsPrivate,
			CreatedAt:           now,
			CreatedBy:           p.Creator,
		}
		if p.IsPrivate {
			c.AllowList = append([]string(nil), p.AllowList...)
		}
		if c.Goal.Kind == domain.GoalCommunityReviewed {
			c.Goal.Metric, c.Goal.Threshold = "", 0
		}
		if err := tx.InsertChallenge(c); err != nil {
			return nil, err
		}
		if err := tx.OpenAccount(c.Treasury); err != nil {
			return nil, err
		}
		created = c
		return &domain.Event{Type: domain.EventChallengeCreated, ChallengeID: c.ID}, nil
	})
	if err != nil {
		return nil, err
	}
	observability.ChallengesCreated.WithLabelValues(string(created.Goal.Kind)).Inc()
	return &created, nil
}

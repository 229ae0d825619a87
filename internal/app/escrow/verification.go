package escrow

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/aaas-network/aaas/internal/domain"
	"github.com/aaas-network/aaas/internal/infra/observability"
)

// ─── Verification Strategies ────────────────────────────────────────────────
// A challenge's goal kind selects how completion is adjudicated. Each
// strategy says which inputs it takes and applies a matching payload.

type strategy interface {
	// operator reports whether the registry owner may submit verifications.
	operator() bool
	// votes reports whether peers may vote on members.
	votes() bool
	// apply folds an operator payload into m. A payload of another kind is
	// ErrInvalidVerificationType.
	apply(m *domain.Membership, v domain.Verification) error
}

func defaultStrategies() map[domain.GoalKind]strategy {
	return map[domain.GoalKind]strategy{
		domain.GoalAutomatedMetric:   metricStrategy{},
		domain.GoalCommunityReviewed: communityStrategy{},
	}
}

func (e *Engine) strategyFor(c *domain.Challenge) (strategy, error) {
	s, ok := e.strategies[c.Goal.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: goal %q", domain.ErrInvalidVerificationType, c.Goal.Kind)
	}
	return s, nil
}

// metricStrategy: a privileged operator submits a score and a completion flag.
type metricStrategy struct{}

func (metricStrategy) operator() bool { return true }
func (metricStrategy) votes() bool    { return false }

// apply marks completion only on a true flag. A false flag leaves the record
// as it is, so a later true submission inside the window still counts.
func (metricStrategy) apply(m *domain.Membership, v domain.Verification) error {
	if v.Kind != domain.GoalAutomatedMetric {
		return fmt.Errorf("%w: %q payload for automated goal", domain.ErrInvalidVerificationType, v.Kind)
	}
	if v.IsCompleted {
		m.Completed = true
		m.Score = v.Score
	}
	return nil
}

// communityStrategy: peers vote; the tally is read at claim time.
type communityStrategy struct{}

func (communityStrategy) operator() bool { return false }
func (communityStrategy) votes() bool    { return true }

func (communityStrategy) apply(*domain.Membership, domain.Verification) error {
	return domain.ErrInvalidVerificationType
}

// ─── Automated Path ─────────────────────────────────────────────────────────

// RecordVerification applies an operator-submitted verification to a
// participant's membership. Only the registry owner may call it, and only
// inside the verification window.
func (e *Engine) RecordVerification(ctx context.Context, caller string, challengeID uint64, participant string, v domain.Verification) (*domain.Membership, error) {
	var updated domain.Membership
	attrs := append(challengeAttrs(challengeID, participant),
		attribute.String("caller", caller),
		attribute.Bool("completed", v.IsCompleted))
	err := e.run(ctx, OpRecordVerification, attrs, func(ctx context.Context, tx domain.Tx, now int64) (*domain.Event, error) {
		if err := authorize(tx, caller); err != nil {
			return nil, err
		}
		c, err := mustChallenge(tx, challengeID)
		if err != nil {
			return nil, err
		}
		s, err := e.strategyFor(c)
		if err != nil {
			return nil, err
		}
		if !s.operator() {
			return nil, fmt.Errorf("%w: %s goals take votes, not operator verification", domain.ErrInvalidVerificationType, c.Goal.Kind)
		}
		m, err := joinedMembership(tx, challengeID, participant)
		if err != nil {
			return nil, err
		}
		if err := checkWindow(c, now); err != nil {
			return nil, err
		}
		if v.Score > domain.MaxStorable {
			return nil, fmt.Errorf("%w: score %d", domain.ErrOutOfRange, v.Score)
		}
		if err := s.apply(m, v); err != nil {
			return nil, err
		}
		if err := tx.PutMembership(*m); err != nil {
			return nil, err
		}
		updated = *m
		return &domain.Event{
			Type:        domain.EventVerified,
			ChallengeID: challengeID,
			Participant: participant,
			Actor:       caller,
			Completed:   boolPtr(v.IsCompleted),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ─── Community Path ─────────────────────────────────────────────────────────

// CastVote records voter's one-shot judgement of a member. The tally is only
// read at claim time.
func (e *Engine) CastVote(ctx context.Context, challengeID uint64, judged, voter string, choice bool) (*domain.Membership, error) {
	var updated domain.Membership
	attrs := append(challengeAttrs(challengeID, judged),
		attribute.String("voter", voter),
		attribute.Bool("choice", choice))
	err := e.run(ctx, OpCastVote, attrs, func(ctx context.Context, tx domain.Tx, now int64) (*domain.Event, error) {
		if err := checkIdentity(voter); err != nil {
			return nil, err
		}
		c, err := mustChallenge(tx, challengeID)
		if err != nil {
			return nil, err
		}
		s, err := e.strategyFor(c)
		if err != nil {
			return nil, err
		}
		if !s.votes() {
			return nil, fmt.Errorf("%w: %s goals are verified by the operator", domain.ErrInvalidVerificationType, c.Goal.Kind)
		}
		m, err := joinedMembership(tx, challengeID, judged)
		if err != nil {
			return nil, err
		}
		if voter == judged {
			return nil, domain.ErrSelfVote
		}
		if err := checkWindow(c, now); err != nil {
			return nil, err
		}
		prior, err := tx.GetVote(challengeID, judged, voter)
		if err != nil {
			return nil, err
		}
		if prior != nil && prior.Voted {
			return nil, domain.ErrAlreadyVoted
		}

		if choice {
			m.VotesFor++
		} else {
			m.VotesAgainst++
		}
		if err := tx.PutMembership(*m); err != nil {
			return nil, err
		}
		if err := tx.PutVote(domain.VoteRecord{
			ChallengeID: challengeID,
			Member:      judged,
			Voter:       voter,
			Voted:       true,
			Completed:   choice,
			CastAt:      now,
		}); err != nil {
			return nil, err
		}
		updated = *m
		return &domain.Event{
			Type:        domain.EventVoted,
			ChallengeID: challengeID,
			Participant: judged,
			Actor:       voter,
			Completed:   boolPtr(choice),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	observability.VotesCast.WithLabelValues(choiceLabel(choice)).Inc()
	return &updated, nil
}

func choiceLabel(choice bool) string {
	if choice {
		return "for"
	}
	return "against"
}

// ParseChoice accepts the vote spellings used by the CLI and API.
func ParseChoice(s string) (bool, error) {
	switch s {
	case "for", "yes", "pass":
		return true, nil
	case "against", "no", "fail":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid vote %q: want for or against", s)
	}
	return b, nil
}

// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture; it depends on nothing.
package domain

import (
	"math"
	"slices"
)

// ─── Limits ─────────────────────────────────────────────────────────────────

const (
	// VerificationWindow is how long after a challenge's end time the
	// operator and peer voters may adjudicate, in seconds. Claims open
	// when it closes.
	VerificationWindow int64 = 30 * 60

	MaxAllowList      = 10
	MaxNameLen        = 32
	MaxDescriptionLen = 256
	MaxNoteLen        = 300
	MaxDisplayNameLen = 32

	// MaxStorable bounds ids, scores and amounts: the record store keeps
	// them as signed 64-bit integers.
	MaxStorable uint64 = math.MaxInt64
)

// ─── Goal Types ─────────────────────────────────────────────────────────────

// GoalKind tags the verification strategy of a challenge.
type GoalKind string

const (
	// GoalAutomatedMetric is adjudicated by the registry owner submitting a score.
	GoalAutomatedMetric GoalKind = "AUTOMATED_METRIC"
	// GoalCommunityReviewed is adjudicated by peer votes tallied at claim time.
	GoalCommunityReviewed GoalKind = "COMMUNITY_REVIEWED"
)

// Valid reports whether k is one of the canonical goal kinds.
func (k GoalKind) Valid() bool {
	return k == GoalAutomatedMetric || k == GoalCommunityReviewed
}

// Goal is the tagged goal specification of a challenge.
// Metric and Threshold only carry meaning for GoalAutomatedMetric.
type Goal struct {
	Kind      GoalKind `json:"kind" yaml:"kind"`
	Metric    string   `json:"metric,omitempty" yaml:"metric,omitempty"`
	Threshold uint64   `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// AutomatedGoal builds an automated-metric goal (e.g. "steps" ≥ 10000).
func AutomatedGoal(metric string, threshold uint64) Goal {
	return Goal{Kind: GoalAutomatedMetric, Metric: metric, Threshold: threshold}
}

// CommunityGoal builds a community-reviewed goal.
func CommunityGoal() Goal {
	return Goal{Kind: GoalCommunityReviewed}
}

// Verification is the payload submitted to adjudicate one membership.
// Its Kind must match the goal kind of the challenge it targets.
type Verification struct {
	Kind        GoalKind `json:"kind"`
	Score       uint64   `json:"score,omitempty"`
	IsCompleted bool     `json:"is_completed"`
}

// MetricVerification builds the automated-metric payload.
func MetricVerification(score uint64, completed bool) Verification {
	return Verification{Kind: GoalAutomatedMetric, Score: score, IsCompleted: completed}
}

// VoteVerification builds the community-review payload.
func VoteVerification(completed bool) Verification {
	return Verification{Kind: GoalCommunityReviewed, IsCompleted: completed}
}

// ─── Challenge ──────────────────────────────────────────────────────────────

// Challenge is a staked, time-bounded goal. Times are unix seconds.
// Only the aggregate counters change after creation.
type Challenge struct {
	ID                  uint64   `json:"id"`
	Goal                Goal     `json:"goal"`
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	StartTime           int64    `json:"start_time"`
	EndTime             int64    `json:"end_time"`
	StakePerParticipant uint64   `json:"stake_per_participant"`
	ParticipantCount    uint64   `json:"participant_count"`
	PooledStake         uint64   `json:"pooled_stake"`
	Treasury            string   `json:"treasury"`
	IsPrivate           bool     `json:"is_private"`
	AllowList           []string `json:"allow_list,omitempty"`
	CreatedAt           int64    `json:"created_at"`
	CreatedBy           string   `json:"created_by,omitempty"`
}

// Allows reports whether participant may join. Public challenges allow everyone.
func (c *Challenge) Allows(participant string) bool {
	if !c.IsPrivate {
		return true
	}
	return slices.Contains(c.AllowList, participant)
}

// Started reports whether joining is closed at now.
func (c *Challenge) Started(now int64) bool {
	return now >= c.StartTime
}

// VerificationOpen reports whether now lies in [end, end+window).
func (c *Challenge) VerificationOpen(now int64) bool {
	return now >= c.EndTime && now < c.VerificationDeadline()
}

// VerificationDeadline is the instant the verification window closes and
// claims open.
func (c *Challenge) VerificationDeadline() int64 {
	return c.EndTime + VerificationWindow
}

// Phase returns a human label for the lifecycle position at now.
func (c *Challenge) Phase(now int64) string {
	switch {
	case now < c.StartTime:
		return "OPEN"
	case now < c.EndTime:
		return "RUNNING"
	case now < c.VerificationDeadline():
		return "VERIFYING"
	default:
		return "SETTLING"
	}
}

// ─── Membership ─────────────────────────────────────────────────────────────

// Membership is one participant's state within one challenge.
// Deposited stays positive until the claim succeeds, then is zero forever.
type Membership struct {
	ChallengeID  uint64 `json:"challenge_id"`
	Participant  string `json:"participant"`
	Joined       bool   `json:"joined"`
	Deposited    uint64 `json:"deposited"`
	Completed    bool   `json:"completed"`
	Score        uint64 `json:"score"`
	VotesFor     uint64 `json:"votes_for"`
	VotesAgainst uint64 `json:"votes_against"`
	Note         string `json:"note,omitempty"`
	JoinedAt     int64  `json:"joined_at"`
}

// Claimed reports whether the refund has already been paid out.
func (m *Membership) Claimed() bool {
	return m.Joined && m.Deposited == 0
}

// Passed applies the settlement rule: an explicit completion, or a vote
// tally that is not strictly negative. Ties favour the participant.
func (m *Membership) Passed() bool {
	return m.Completed || m.VotesFor >= m.VotesAgainst
}

// ─── Profile ────────────────────────────────────────────────────────────────

// Profile aggregates a participant across challenges. Never deleted.
type Profile struct {
	Participant    string `json:"participant"`
	DisplayName    string `json:"display_name"`
	TotalJoined    uint64 `json:"total_joined"`
	TotalDeposited uint64 `json:"total_deposited"`
	TotalWithdrawn uint64 `json:"total_withdrawn"`
}

// ─── Votes ──────────────────────────────────────────────────────────────────

// VoteRecord is one voter's one-shot judgement of one member.
type VoteRecord struct {
	ChallengeID uint64 `json:"challenge_id"`
	Member      string `json:"member"`
	Voter       string `json:"voter"`
	Voted       bool   `json:"voted"`
	Completed   bool   `json:"completed"`
	CastAt      int64  `json:"cast_at"`
}

// VotingProgress summarises how much of a challenge a voter has reviewed.
type VotingProgress struct {
	ChallengeID uint64 `json:"challenge_id"`
	Voter       string `json:"voter"`
	Eligible    int    `json:"eligible"` // joined members other than the voter
	Cast        int    `json:"cast"`
	Complete    bool   `json:"complete"`
}

// ─── Registry ───────────────────────────────────────────────────────────────

// Registry is the process-wide owner record, set once at bootstrap.
type Registry struct {
	Owner         string `json:"owner"`
	InitializedAt int64  `json:"initialized_at"`
}

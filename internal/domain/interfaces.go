package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the application layer depends on them.

// Custody moves value between two balance holders. A transfer either fully
// applies or fully fails.
type Custody interface {
	Transfer(ctx context.Context, t Transfer) error
}

// Records resolves and writes the named record set of one unit of work.
// Getters return (nil, nil) when the record does not exist.
type Records interface {
	GetRegistry() (*Registry, error)
	InsertRegistry(r Registry) error

	GetChallenge(id uint64) (*Challenge, error)
	InsertChallenge(c Challenge) error // ErrChallengeExists on duplicate id
	UpdateChallengeCounters(id uint64, participants, pooled uint64) error
	ListChallenges() ([]Challenge, error)

	GetMembership(challengeID uint64, participant string) (*Membership, error)
	PutMembership(m Membership) error
	ListMemberships(challengeID uint64) ([]Membership, error)

	GetProfile(participant string) (*Profile, error)
	PutProfile(p Profile) error

	GetVote(challengeID uint64, member, voter string) (*VoteRecord, error)
	PutVote(v VoteRecord) error
	ListVotesBy(challengeID uint64, voter string) ([]VoteRecord, error)

	OpenAccount(account string) error
	Balance(account string) (uint64, error)
}

// Tx is a single indivisible unit of work: record reads and writes plus
// custody transfers that commit or roll back together.
type Tx interface {
	Records
	Custody
	// Mint credits newly issued value to account (test funds, faucets).
	Mint(ctx context.Context, account string, amount uint64, decimals uint8) error
}

// Store serializes units of work. If fn returns an error nothing it did
// takes effect.
type Store interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

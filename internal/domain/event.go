package domain

// EventType names a committed engine operation.
type EventType string

const (
	EventChallengeCreated EventType = "challenge_created"
	EventJoined           EventType = "joined"
	EventVerified         EventType = "verified"
	EventVoted            EventType = "voted"
	EventClaimed          EventType = "claimed"
	EventDeposited        EventType = "deposited"
)

// Event is published after an operation's unit of work has committed.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	ChallengeID uint64    `json:"challenge_id,omitempty"`
	Participant string    `json:"participant,omitempty"` // member the event concerns
	Actor       string    `json:"actor,omitempty"`       // caller, voter or operator
	Amount      uint64    `json:"amount,omitempty"`
	Completed   *bool     `json:"completed,omitempty"`
	At          int64     `json:"at"` // unix seconds
}

package domain

import (
	"errors"
	"fmt"
	"testing"
)

// ─── Challenge Tests ────────────────────────────────────────────────────────

func TestChallenge_Allows(t *testing.T) {
	public := Challenge{}
	if !public.Allows("anyone") {
		t.Error("public challenge should allow anyone")
	}

	private := Challenge{IsPrivate: true, AllowList: []string{"alice", "bob"}}
	if !private.Allows("bob") {
		t.Error("bob is on the allow-list")
	}
	if private.Allows("mallory") {
		t.Error("mallory is not on the allow-list")
	}
}

func TestChallenge_Windows(t *testing.T) {
	c := Challenge{StartTime: 100, EndTime: 200}

	tests := []struct {
		now      int64
		started  bool
		open     bool
		phase    string
	}{
		{99, false, false, "OPEN"},
		{100, true, false, "RUNNING"},
		{199, true, false, "RUNNING"},
		{200, true, true, "VERIFYING"},
		{200 + VerificationWindow - 1, true, true, "VERIFYING"},
		{200 + VerificationWindow, true, false, "SETTLING"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("now=%d", tt.now), func(t *testing.T) {
			if got := c.Started(tt.now); got != tt.started {
				t.Errorf("Started() = %v, want %v", got, tt.started)
			}
			if got := c.VerificationOpen(tt.now); got != tt.open {
				t.Errorf("VerificationOpen() = %v, want %v", got, tt.open)
			}
			if got := c.Phase(tt.now); got != tt.phase {
				t.Errorf("Phase() = %q, want %q", got, tt.phase)
			}
		})
	}

	if c.VerificationDeadline() != 200+1800 {
		t.Errorf("VerificationDeadline() = %d, want %d", c.VerificationDeadline(), 2000)
	}
}

// ─── Membership Tests ───────────────────────────────────────────────────────

func TestMembership_Passed(t *testing.T) {
	tests := []struct {
		name string
		m    Membership
		want bool
	}{
		{"completed", Membership{Completed: true, VotesAgainst: 5}, true},
		{"no votes", Membership{}, true},
		{"tie favours participant", Membership{VotesFor: 1, VotesAgainst: 1}, true},
		{"majority for", Membership{VotesFor: 2, VotesAgainst: 1}, true},
		{"majority against", Membership{VotesFor: 1, VotesAgainst: 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.Passed(); got != tt.want {
				t.Errorf("Passed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMembership_Claimed(t *testing.T) {
	m := Membership{Joined: true, Deposited: 100}
	if m.Claimed() {
		t.Error("funded membership should not be claimed")
	}
	m.Deposited = 0
	if !m.Claimed() {
		t.Error("zero deposit on a joined membership means claimed")
	}
	if (&Membership{}).Claimed() {
		t.Error("absent membership is never claimed")
	}
}

// ─── Goal & Verification Tests ──────────────────────────────────────────────

func TestGoalKind_Valid(t *testing.T) {
	if !GoalAutomatedMetric.Valid() || !GoalCommunityReviewed.Valid() {
		t.Error("canonical goal kinds should be valid")
	}
	if GoalKind("NON_MONITORED").Valid() {
		t.Error("historical variants are not canonical")
	}
}

func TestVerificationConstructors(t *testing.T) {
	v := MetricVerification(12000, true)
	if v.Kind != GoalAutomatedMetric || v.Score != 12000 || !v.IsCompleted {
		t.Errorf("MetricVerification() = %+v", v)
	}
	v = VoteVerification(false)
	if v.Kind != GoalCommunityReviewed || v.IsCompleted {
		t.Errorf("VoteVerification() = %+v", v)
	}
}

// ─── Address Tests ──────────────────────────────────────────────────────────

func TestAddress(t *testing.T) {
	if got := TreasuryAddress(42); got != "treasury:42" {
		t.Errorf("TreasuryAddress(42) = %q", got)
	}
	if got := WalletAddress("alice"); got != "wallet:alice" {
		t.Errorf("WalletAddress(alice) = %q", got)
	}
	if got := Address("vote", "1", "alice", "bob"); got != "vote:1/alice/bob" {
		t.Errorf("Address() = %q", got)
	}
}

// ─── Error Category Tests ───────────────────────────────────────────────────

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		err  error
		want Category
	}{
		{nil, CategoryNone},
		{errors.New("disk full"), CategoryNone},
		{ErrSelfVote, CategoryAuthorization},
		{ErrAlreadyClaimed, CategorySequencing},
		{fmt.Errorf("join 7: %w", ErrChallengeAlreadyStarted), CategorySequencing},
		{ErrInvalidVerificationType, CategoryValidation},
		{ErrNotCompleted, CategoryEligibility},
		{ErrChallengeNotFound, CategoryNotFound},
		{ErrInsufficientFunds, CategoryCustody},
		{ErrSelfTransfer, CategoryCustody},
		{fmt.Errorf("stake: %w", ErrOutOfRange), CategoryValidation},
	}
	for _, tt := range tests {
		if got := CategoryOf(tt.err); got != tt.want {
			t.Errorf("CategoryOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
	if IsRejection(errors.New("io")) {
		t.Error("infrastructure errors are not rejections")
	}
}

// ─── Amount Tests ───────────────────────────────────────────────────────────

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount   uint64
		decimals uint8
		want     string
	}{
		{1500000, 6, "1.5"},
		{100, 0, "100"},
		{1, 9, "0.000000001"},
		{0, 6, "0"},
	}
	for _, tt := range tests {
		if got := FormatAmount(tt.amount, tt.decimals); got != tt.want {
			t.Errorf("FormatAmount(%d, %d) = %q, want %q", tt.amount, tt.decimals, got, tt.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount("1.5", 6)
	if err != nil {
		t.Fatalf("ParseAmount() error: %v", err)
	}
	if got != 1500000 {
		t.Errorf("ParseAmount(1.5, 6) = %d, want 1500000", got)
	}

	for _, in := range []string{"0", "-1", "0.0000001"} {
		if _, err := ParseAmount(in, 6); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("ParseAmount(%q) error = %v, want ErrInvalidAmount", in, err)
		}
	}
	if _, err := ParseAmount("abc", 6); err == nil {
		t.Error("ParseAmount(abc) should fail")
	}

	// 2^63 base units cannot be stored; 2^63-1 can.
	for _, in := range []string{"9223372036854.775808", "18446744073709.551615", "1e40"} {
		if _, err := ParseAmount(in, 6); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("ParseAmount(%q) error = %v, want ErrOutOfRange", in, err)
		}
	}
	got, err = ParseAmount("9223372036854.775807", 6)
	if err != nil || got != MaxStorable {
		t.Errorf("ParseAmount(max) = %d, %v, want %d", got, err, MaxStorable)
	}
}

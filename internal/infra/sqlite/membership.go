package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/aaas-network/aaas/internal/domain"
)

// ─── Membership Operations ──────────────────────────────────────────────────

const membershipColumns = `challenge_id, participant, joined, deposited, completed, score,
	votes_for, votes_against, note, joined_at`

// GetMembership retrieves a membership, or nil if none exists.
func (t *Tx) GetMembership(challengeID uint64, participant string) (*domain.Membership, error) {
	row := t.tx.QueryRowContext(t.ctx, `
		SELECT `+membershipColumns+` FROM memberships WHERE challenge_id = ? AND participant = ?
	`, challengeID, participant)
	m, err := scanMembership(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership %d/%s: %w", challengeID, participant, err)
	}
	return m, nil
}

// PutMembership inserts or replaces a membership.
func (t *Tx) PutMembership(m domain.Membership) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO memberships (`+membershipColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(challenge_id, participant) DO UPDATE SET
			joined        = excluded.joined,
			deposited     = excluded.deposited,
			completed     = excluded.completed,
			score         = excluded.score,
			votes_for     = excluded.votes_for,
			votes_against = excluded.votes_against,
			note          = excluded.note,
			joined_at     = excluded.joined_at
	`, m.ChallengeID, m.Participant, boolInt(m.Joined), m.Deposited, boolInt(m.Completed),
		m.Score, m.VotesFor, m.VotesAgainst, m.Note, m.JoinedAt)
	if err != nil {
		return fmt.Errorf("put membership %d/%s: %w", m.ChallengeID, m.Participant, err)
	}
	return nil
}

// ListMemberships returns a challenge's memberships in join order.
func (t *Tx) ListMemberships(challengeID uint64) ([]domain.Membership, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT `+membershipColumns+` FROM memberships
		WHERE challenge_id = ? ORDER BY joined_at, participant
	`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("list memberships %d: %w", challengeID, err)
	}
	defer rows.Close()

	var result []domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		result = append(result, *m)
	}
	return result, rows.Err()
}

func scanMembership(s scanner) (*domain.Membership, error) {
	var m domain.Membership
	var joined, completed int
	err := s.Scan(&m.ChallengeID, &m.Participant, &joined, &m.Deposited, &completed, &m.Score,
		&m.VotesFor, &m.VotesAgainst, &m.Note, &m.JoinedAt)
	if err != nil {
		return nil, err
	}
	m.Joined = joined == 1
	m.Completed = completed == 1
	return &m, nil
}

// ─── Profile Operations ─────────────────────────────────────────────────────

// GetProfile retrieves a participant profile, or nil if none exists.
func (t *Tx) GetProfile(participant string) (*domain.Profile, error) {
	var p domain.Profile
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT participant, display_name, total_joined, total_deposited, total_withdrawn
		FROM profiles WHERE participant = ?
	`, participant).Scan(&p.Participant, &p.DisplayName, &p.TotalJoined, &p.TotalDeposited, &p.TotalWithdrawn)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", participant, err)
	}
	return &p, nil
}

// PutProfile inserts or replaces a participant profile.
func (t *Tx) PutProfile(p domain.Profile) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO profiles (participant, display_name, total_joined, total_deposited, total_withdrawn)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(participant) DO UPDATE SET
			display_name    = excluded.display_name,
			total_joined    = excluded.total_joined,
			total_deposited = excluded.total_deposited,
			total_withdrawn = excluded.total_withdrawn
	`, p.Participant, p.DisplayName, p.TotalJoined, p.TotalDeposited, p.TotalWithdrawn)
	if err != nil {
		return fmt.Errorf("put profile %s: %w", p.Participant, err)
	}
	return nil
}

// ─── Vote Operations ────────────────────────────────────────────────────────

// GetVote retrieves voter's record for member, or nil if none exists.
func (t *Tx) GetVote(challengeID uint64, member, voter string) (*domain.VoteRecord, error) {
	v := domain.VoteRecord{ChallengeID: challengeID, Member: member, Voter: voter}
	var voted, completed int
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT voted, completed, cast_at FROM votes
		WHERE challenge_id = ? AND member = ? AND voter = ?
	`, challengeID, member, voter).Scan(&voted, &completed, &v.CastAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vote %d/%s/%s: %w", challengeID, member, voter, err)
	}
	v.Voted = voted == 1
	v.Completed = completed == 1
	return &v, nil
}

// PutVote inserts or replaces a vote record.
func (t *Tx) PutVote(v domain.VoteRecord) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO votes (challenge_id, member, voter, voted, completed, cast_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(challenge_id, member, voter) DO UPDATE SET
			voted     = excluded.voted,
			completed = excluded.completed,
			cast_at   = excluded.cast_at
	`, v.ChallengeID, v.Member, v.Voter, boolInt(v.Voted), boolInt(v.Completed), v.CastAt)
	if err != nil {
		return fmt.Errorf("put vote %d/%s/%s: %w", v.ChallengeID, v.Member, v.Voter, err)
	}
	return nil
}

// ListVotesBy returns every vote cast by voter in a challenge.
func (t *Tx) ListVotesBy(challengeID uint64, voter string) ([]domain.VoteRecord, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT member, voted, completed, cast_at FROM votes
		WHERE challenge_id = ? AND voter = ? ORDER BY cast_at, member
	`, challengeID, voter)
	if err != nil {
		return nil, fmt.Errorf("list votes %d/%s: %w", challengeID, voter, err)
	}
	defer rows.Close()

	var result []domain.VoteRecord
	for rows.Next() {
		v := domain.VoteRecord{ChallengeID: challengeID, Voter: voter}
		var voted, completed int
		if err := rows.Scan(&v.Member, &voted, &completed, &v.CastAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		v.Voted = voted == 1
		v.Completed = completed == 1
		result = append(result, v)
	}
	return result, rows.Err()
}

package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aaas-network/aaas/internal/domain"
)

// ─── Registry Operations ────────────────────────────────────────────────────

// GetRegistry returns the owner record, or nil before bootstrap.
func (t *Tx) GetRegistry() (*domain.Registry, error) {
	var r domain.Registry
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT owner, initialized_at FROM registry WHERE id = 1
	`).Scan(&r.Owner, &r.InitializedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get registry: %w", err)
	}
	return &r, nil
}

// InsertRegistry stores the owner record. The singleton row can only be
// written once.
func (t *Tx) InsertRegistry(r domain.Registry) error {
	res, err := t.tx.ExecContext(t.ctx, `
		INSERT OR IGNORE INTO registry (id, owner, initialized_at) VALUES (1, ?, ?)
	`, r.Owner, r.InitializedAt)
	if err != nil {
		return fmt.Errorf("insert registry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRegistryInitialized
	}
	return nil
}

// ─── Challenge Operations ───────────────────────────────────────────────────

const challengeColumns = `id, goal_kind, goal_metric, goal_threshold, name, description,
	start_time, end_time, stake, participant_count, pooled_stake, treasury,
	is_private, allow_list_json, created_at, created_by`

// InsertChallenge creates a challenge row. The id is the uniqueness key.
func (t *Tx) InsertChallenge(c domain.Challenge) error {
	allow := c.AllowList
	if allow == nil {
		allow = []string{}
	}
	allowJSON, err := json.Marshal(allow)
	if err != nil {
		return fmt.Errorf("encode allow-list: %w", err)
	}
	res, err := t.tx.ExecContext(t.ctx, `
		INSERT OR IGNORE INTO challenges (`+challengeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, string(c.Goal.Kind), c.Goal.Metric, c.Goal.Threshold, c.Name, c.Description,
		c.StartTime, c.EndTime, c.StakePerParticipant, c.ParticipantCount, c.PooledStake,
		c.Treasury, boolInt(c.IsPrivate), string(allowJSON), c.CreatedAt, c.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert challenge %d: %w", c.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrChallengeExists
	}
	return nil
}

// GetChallenge retrieves a challenge, or nil if it does not exist.
func (t *Tx) GetChallenge(id uint64) (*domain.Challenge, error) {
	row := t.tx.QueryRowContext(t.ctx, `
		SELECT `+challengeColumns+` FROM challenges WHERE id = ?
	`, id)
	c, err := scanChallenge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge %d: %w", id, err)
	}
	return c, nil
}

// UpdateChallengeCounters writes the only mutable challenge fields.
func (t *Tx) UpdateChallengeCounters(id uint64, participants, pooled uint64) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE challenges SET participant_count = ?, pooled_stake = ? WHERE id = ?
	`, participants, pooled, id)
	if err != nil {
		return fmt.Errorf("update challenge %d counters: %w", id, err)
	}
	return nil
}

// ListChallenges returns all challenges ordered by id.
func (t *Tx) ListChallenges() ([]domain.Challenge, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT `+challengeColumns+` FROM challenges ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	defer rows.Close()

	var result []domain.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChallenge(s scanner) (*domain.Challenge, error) {
	var (
		c         domain.Challenge
		kind      string
		private   int
		allowJSON string
	)
	err := s.Scan(&c.ID, &kind, &c.Goal.Metric, &c.Goal.Threshold, &c.Name, &c.Description,
		&c.StartTime, &c.EndTime, &c.StakePerParticipant, &c.ParticipantCount, &c.PooledStake,
		&c.Treasury, &private, &allowJSON, &c.CreatedAt, &c.CreatedBy)
	if err != nil {
		return nil, err
	}
	c.Goal.Kind = domain.GoalKind(kind)
	c.IsPrivate = private == 1
	if s := strings.TrimSpace(allowJSON); s != "" && s != "[]" {
		if err := json.Unmarshal([]byte(s), &c.AllowList); err != nil {
			return nil, fmt.Errorf("decode allow-list: %w", err)
		}
	}
	return &c, nil
}

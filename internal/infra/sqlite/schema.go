package sqlite

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema statements, applied in order on every Open.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Registry owner singleton
		`CREATE TABLE IF NOT EXISTS registry (
			id             INTEGER PRIMARY KEY CHECK (id = 1),
			owner          TEXT NOT NULL,
			initialized_at INTEGER NOT NULL
		)`,

		// Challenge definitions and aggregate counters
		`CREATE TABLE IF NOT EXISTS challenges (
			id                INTEGER PRIMARY KEY,
			goal_kind         TEXT NOT NULL,
			goal_metric       TEXT NOT NULL DEFAULT '',
			goal_threshold    INTEGER NOT NULL DEFAULT 0,
			name              TEXT NOT NULL,
			description       TEXT NOT NULL DEFAULT '',
			start_time        INTEGER NOT NULL,
			end_time          INTEGER NOT NULL,
			stake             INTEGER NOT NULL CHECK (stake > 0),
			participant_count INTEGER NOT NULL DEFAULT 0,
			pooled_stake      INTEGER NOT NULL DEFAULT 0,
			treasury          TEXT NOT NULL,
			is_private        INTEGER NOT NULL DEFAULT 0,
			allow_list_json   TEXT NOT NULL DEFAULT '[]',
			created_at        INTEGER NOT NULL,
			created_by        TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_challenges_end ON challenges(goal_kind, end_time)`,

		// Per participant × challenge state
		`CREATE TABLE IF NOT EXISTS memberships (
			challenge_id  INTEGER NOT NULL REFERENCES challenges(id),
			participant   TEXT NOT NULL,
			joined        INTEGER NOT NULL DEFAULT 0,
			deposited     INTEGER NOT NULL DEFAULT 0,
			completed     INTEGER NOT NULL DEFAULT 0,
			score         INTEGER NOT NULL DEFAULT 0,
			votes_for     INTEGER NOT NULL DEFAULT 0,
			votes_against INTEGER NOT NULL DEFAULT 0,
			note          TEXT NOT NULL DEFAULT '',
			joined_at     INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (challenge_id, participant)
		)`,

		// Cross-challenge participant aggregates
		`CREATE TABLE IF NOT EXISTS profiles (
			participant     TEXT PRIMARY KEY,
			display_name    TEXT NOT NULL DEFAULT '',
			total_joined    INTEGER NOT NULL DEFAULT 0,
			total_deposited INTEGER NOT NULL DEFAULT 0,
			total_withdrawn INTEGER NOT NULL DEFAULT 0
		)`,

		// One-shot peer votes
		`CREATE TABLE IF NOT EXISTS votes (
			challenge_id INTEGER NOT NULL REFERENCES challenges(id),
			member       TEXT NOT NULL,
			voter        TEXT NOT NULL,
			voted        INTEGER NOT NULL DEFAULT 0,
			completed    INTEGER NOT NULL DEFAULT 0,
			cast_at      INTEGER NOT NULL,
			PRIMARY KEY (challenge_id, member, voter)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_voter ON votes(challenge_id, voter)`,

		// Ledger settings fixed on first open (token decimals)
		`CREATE TABLE IF NOT EXISTS ledger_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Custody ledger balances
		`CREATE TABLE IF NOT EXISTS ledger_accounts (
			account    TEXT PRIMARY KEY,
			balance    INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		// Double-entry ledger rows
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			transfer_id TEXT NOT NULL,
			timestamp   TEXT NOT NULL,
			type        TEXT NOT NULL,
			entry_type  TEXT NOT NULL,
			account     TEXT NOT NULL,
			amount      INTEGER NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			balance     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_account ON ledger_entries(account, id)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_transfer ON ledger_entries(transfer_id)`,
	}
}

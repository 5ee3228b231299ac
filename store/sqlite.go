package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/inkstamp/paperless-stamp/model"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) the sqlite database at path
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB, statements ...string) error {
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// SQLiteHistory stores outcomes in the stamp_outcomes table
type SQLiteHistory struct {
	db          *sql.DB
	maxOutcomes int
}

func NewSQLiteHistory(db *sql.DB, maxOutcomes int) (*SQLiteHistory, error) {
	s := &SQLiteHistory{db: db, maxOutcomes: maxOutcomes}
	err := migrate(context.Background(), db, `
	CREATE TABLE IF NOT EXISTS stamp_outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id TEXT NOT NULL DEFAULT '',
		document_id INTEGER NOT NULL,
		document_title TEXT NOT NULL DEFAULT '',
		stamp_type TEXT NOT NULL,
		stamp_text TEXT NOT NULL DEFAULT '',
		stamp_date TEXT NOT NULL DEFAULT '',
		sequence_index INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
		`CREATE INDEX IF NOT EXISTS idx_stamp_outcomes_document ON stamp_outcomes (document_id)`,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

const outcomeColumns = `id, cycle_id, document_id, document_title, stamp_type, stamp_text, stamp_date,
		sequence_index, status, error_message, duration_ms, created_at`

func (s *SQLiteHistory) Record(ctx context.Context, o *model.StampOutcome) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO stamp_outcomes (
		cycle_id, document_id, document_title, stamp_type, stamp_text, stamp_date,
		sequence_index, status, error_message, duration_ms, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.CycleID, o.DocumentID, o.DocumentTitle, o.StampType, o.StampText, o.StampDate,
		o.SequenceIndex, o.Status, o.ErrorMessage, o.DurationMS, formatTime(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		o.ID = id
	}

	if s.maxOutcomes > 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM stamp_outcomes WHERE id NOT IN (
			SELECT id FROM stamp_outcomes ORDER BY id DESC LIMIT ?
		)`, s.maxOutcomes)
		if err != nil {
			return fmt.Errorf("failed to prune outcomes: %w", err)
		}
	}
	return nil
}

func (s *SQLiteHistory) List(ctx context.Context, limit int) ([]model.StampOutcome, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.query(ctx, `SELECT `+outcomeColumns+` FROM stamp_outcomes ORDER BY id DESC LIMIT ?`, limit)
}

func (s *SQLiteHistory) ForDocument(ctx context.Context, documentID int) ([]model.StampOutcome, error) {
	return s.query(ctx, `SELECT `+outcomeColumns+` FROM stamp_outcomes WHERE document_id = ? ORDER BY id DESC`, documentID)
}

func (s *SQLiteHistory) query(ctx context.Context, query string, args ...any) ([]model.StampOutcome, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var outcomes []model.StampOutcome
	for rows.Next() {
		var (
			o         model.StampOutcome
			createdAt string
		)
		err := rows.Scan(&o.ID, &o.CycleID, &o.DocumentID, &o.DocumentTitle, &o.StampType, &o.StampText, &o.StampDate,
			&o.SequenceIndex, &o.Status, &o.ErrorMessage, &o.DurationMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.CreatedAt = parseTime(createdAt)
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// SQLiteSettings stores runtime settings in the settings table
type SQLiteSettings struct {
	db *sql.DB
}

func NewSQLiteSettings(db *sql.DB) (*SQLiteSettings, error) {
	err := migrate(context.Background(), db, `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	if err != nil {
		return nil, err
	}
	return &SQLiteSettings{db: db}, nil
}

func (s *SQLiteSettings) All(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Set upserts all values in one transaction
func (s *SQLiteSettings) Set(ctx context.Context, values map[string]string) error {
	return s.Apply(ctx, values, nil)
}

// Apply upserts set and deletes remove in one transaction
func (s *SQLiteSettings) Apply(ctx context.Context, set map[string]string, remove []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(time.Now())
	for key, value := range set {
		_, err := tx.ExecContext(ctx, `INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, now)
		if err != nil {
			return fmt.Errorf("failed to save setting %s: %w", key, err)
		}
	}
	for _, key := range remove {
		if _, err := tx.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
			return fmt.Errorf("failed to delete setting %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settings: %w", err)
	}
	return nil
}

// SQLiteJournal stores open claims in the claims table
type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLiteJournal(db *sql.DB) (*SQLiteJournal, error) {
	err := migrate(context.Background(), db, `
	CREATE TABLE IF NOT EXISTS claims (
		document_id INTEGER PRIMARY KEY,
		stamp_types TEXT NOT NULL,
		state TEXT NOT NULL,
		cycle_id TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	)`)
	if err != nil {
		return nil, err
	}
	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) Save(ctx context.Context, claim model.Claim) error {
	if claim.UpdatedAt.IsZero() {
		claim.UpdatedAt = time.Now()
	}
	types, err := json.Marshal(claim.StampTypes)
	if err != nil {
		return fmt.Errorf("failed to marshal stamp types: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `INSERT INTO claims (document_id, stamp_types, state, cycle_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET stamp_types = excluded.stamp_types, state = excluded.state,
			cycle_id = excluded.cycle_id, updated_at = excluded.updated_at`,
		claim.DocumentID, string(types), claim.State, claim.CycleID, formatTime(claim.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save claim: %w", err)
	}
	return nil
}

func (j *SQLiteJournal) Delete(ctx context.Context, documentID int) error {
	if _, err := j.db.ExecContext(ctx, `DELETE FROM claims WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to delete claim: %w", err)
	}
	return nil
}

func (j *SQLiteJournal) List(ctx context.Context) ([]model.Claim, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT document_id, stamp_types, state, cycle_id, updated_at FROM claims ORDER BY document_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var claims []model.Claim
	for rows.Next() {
		var (
			c         model.Claim
			types     string
			updatedAt string
		)
		if err := rows.Scan(&c.DocumentID, &types, &c.State, &c.CycleID, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		if err := json.Unmarshal([]byte(types), &c.StampTypes); err != nil {
			return nil, fmt.Errorf("failed to parse stamp types of claim %d: %w", c.DocumentID, err)
		}
		c.UpdatedAt = parseTime(updatedAt)
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return claims, nil
}

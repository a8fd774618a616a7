package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fumbl3b/harryAi/internal/models"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"
)

// The transcript is write-only from the conversation's point of view: turns
// are appended as they finish and never loaded back into the history.
const schema = `
CREATE TABLE IF NOT EXISTS turns (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    outcome TEXT NOT NULL,
    user_text TEXT NOT NULL,
    reply TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    fragments INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS turns_outcome ON turns(outcome);`

type Database struct {
	db *sql.DB
}

func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to create schema: %w", err), db.Close())
	}

	return &Database{db: db}, nil
}

func (db *Database) RecordTurn(ctx context.Context, rec models.TurnRecord) error {
	query := `
        INSERT INTO turns (id, outcome, user_text, reply, error, fragments, started_at, finished_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.db.ExecContext(ctx, query,
		string(rec.ID), rec.Outcome, rec.UserText, rec.Reply, rec.Error,
		rec.Fragments, rec.StartedAt.UTC(), rec.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record turn %s: %w", rec.ID, err)
	}
	return nil
}

// ListTurns returns up to limit turns, most recent first.
func (db *Database) ListTurns(ctx context.Context, limit int) ([]models.TurnRecord, error) {
	query := `
        SELECT id, outcome, user_text, reply, error, fragments, started_at, finished_at
        FROM turns
        ORDER BY seq DESC
        LIMIT ?`

	rows, err := db.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	turns := make([]models.TurnRecord, 0)
	for rows.Next() {
		var rec models.TurnRecord
		var id string
		if err := rows.Scan(&id, &rec.Outcome, &rec.UserText, &rec.Reply, &rec.Error,
			&rec.Fragments, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		rec.ID = models.TurnID(id)
		turns = append(turns, rec)
	}
	return turns, rows.Err()
}

// CountByOutcome returns how many recorded turns ended with each outcome.
func (db *Database) CountByOutcome(ctx context.Context) (map[string]int, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM turns GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to count turns: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

func (db *Database) Close() error {
	return db.db.Close()
}

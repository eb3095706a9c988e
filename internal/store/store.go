// Package store persists the concordance in PostgreSQL: per-decision line
// storage, the globally deduplicated word table, positional occurrences,
// word groups, and phrases. Re-indexing is a single generation-replace
// transaction per decision.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/courttext/concordance/pkg/config"
	"github.com/courttext/concordance/pkg/postgres"
)

// Store provides all persistence operations for the concordance.
type Store struct {
	db        *postgres.Client
	lineChunk int
	rowChunk  int
	logger    *slog.Logger
}

// New creates a Store using the given database client and ingest batching
// configuration.
func New(db *postgres.Client, cfg config.IngestConfig) *Store {
	lineChunk := cfg.LineChunk
	if lineChunk <= 0 {
		lineChunk = 500
	}
	rowChunk := cfg.RowChunk
	if rowChunk <= 0 {
		rowChunk = 1000
	}
	return &Store{
		db:        db,
		lineChunk: lineChunk,
		rowChunk:  rowChunk,
		logger:    slog.Default().With("component", "store"),
	}
}

// schema is executed statement by statement at startup. Decisions own their
// lines, occurrences, and phrase occurrences via ON DELETE CASCADE; words are
// shared across decisions and groups and are never deleted by a re-index.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS decisions (
		decision_id   BIGSERIAL PRIMARY KEY,
		case_number   TEXT,
		title         TEXT,
		court_name    TEXT,
		decision_date DATE,
		language_code TEXT NOT NULL DEFAULT 'he',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_decisions_case_number ON decisions (case_number)`,

	`CREATE TABLE IF NOT EXISTS decision_lines (
		decision_id BIGINT NOT NULL REFERENCES decisions(decision_id) ON DELETE CASCADE,
		line_no     INT NOT NULL,
		content     TEXT NOT NULL,
		PRIMARY KEY (decision_id, line_no)
	)`,

	`CREATE TABLE IF NOT EXISTS words (
		word_id   BIGSERIAL PRIMARY KEY,
		word_text TEXT NOT NULL UNIQUE
	)`,

	`CREATE TABLE IF NOT EXISTS occurrences (
		occurrence_id BIGSERIAL PRIMARY KEY,
		decision_id   BIGINT NOT NULL REFERENCES decisions(decision_id) ON DELETE CASCADE,
		word_id       BIGINT NOT NULL REFERENCES words(word_id) ON DELETE CASCADE,
		line_no       INT NOT NULL,
		char_start    INT NOT NULL,
		char_end      INT NOT NULL,
		idx_in_line   INT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_occ_decision_word ON occurrences (decision_id, word_id, line_no, char_start)`,
	`CREATE INDEX IF NOT EXISTS idx_occ_word ON occurrences (word_id)`,

	`CREATE TABLE IF NOT EXISTS word_groups (
		group_id    BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS word_group_members (
		seq      BIGSERIAL,
		group_id BIGINT NOT NULL REFERENCES word_groups(group_id) ON DELETE CASCADE,
		word_id  BIGINT NOT NULL REFERENCES words(word_id) ON DELETE CASCADE,
		PRIMARY KEY (group_id, word_id)
	)`,

	`CREATE TABLE IF NOT EXISTS phrases (
		phrase_id       BIGSERIAL PRIMARY KEY,
		name            TEXT,
		expression_text TEXT NOT NULL,
		language_code   TEXT NOT NULL DEFAULT 'he'
	)`,

	`CREATE TABLE IF NOT EXISTS phrase_occurrences (
		id          BIGSERIAL PRIMARY KEY,
		decision_id BIGINT NOT NULL REFERENCES decisions(decision_id) ON DELETE CASCADE,
		phrase_id   BIGINT NOT NULL REFERENCES phrases(phrase_id) ON DELETE CASCADE,
		line_no     INT NOT NULL,
		char_start  INT NOT NULL,
		char_end    INT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_po_decision_phrase ON phrase_occurrences (decision_id, phrase_id)`,
}

// EnsureSchema creates all tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	s.logger.Info("schema ready")
	return nil
}

// Ping reports database connectivity, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.DB.PingContext(ctx)
}

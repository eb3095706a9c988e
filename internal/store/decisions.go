package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	apperrors "github.com/courttext/concordance/pkg/errors"
)

// CreateDecision inserts a decision metadata row and returns its id.
func (s *Store) CreateDecision(ctx context.Context, d Decision) (int64, error) {
	lang := d.LanguageCode
	if lang == "" {
		lang = "he"
	}
	var id int64
	err := s.db.DB.QueryRowContext(ctx,
		`INSERT INTO decisions (case_number, title, court_name, decision_date, language_code)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING decision_id`,
		nullable(d.CaseNumber), nullable(d.Title), nullable(d.CourtName), d.DecisionDate, lang,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting decision: %w", err)
	}
	return id, nil
}

// GetDecision fetches a decision's metadata.
func (s *Store) GetDecision(ctx context.Context, decisionID int64) (*Decision, error) {
	var d Decision
	var caseNumber, title, courtName sql.NullString
	var decisionDate sql.NullTime
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT decision_id, case_number, title, court_name, decision_date, language_code, created_at
		 FROM decisions WHERE decision_id = $1`,
		decisionID,
	).Scan(&d.ID, &caseNumber, &title, &courtName, &decisionDate, &d.LanguageCode, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrNotFound, 404, "decision %d not found", decisionID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying decision: %w", err)
	}
	d.CaseNumber = caseNumber.String
	d.Title = title.String
	d.CourtName = courtName.String
	if decisionDate.Valid {
		d.DecisionDate = &decisionDate.Time
	}
	return &d, nil
}

// DeleteDecision removes a decision; lines, occurrences, and phrase
// occurrences go with it via cascade. Shared word rows are untouched.
func (s *Store) DeleteDecision(ctx context.Context, decisionID int64) error {
	result, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM decisions WHERE decision_id = $1`, decisionID,
	)
	if err != nil {
		return fmt.Errorf("deleting decision: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.Newf(apperrors.ErrNotFound, 404, "decision %d not found", decisionID)
	}
	s.logger.Info("decision deleted", "decision_id", decisionID)
	return nil
}

// FullText returns the decision's stored lines in [from, to], joined with
// '\n'. from defaults to 1 and to defaults to the end of the document.
func (s *Store) FullText(ctx context.Context, decisionID int64, from, to int) (string, error) {
	if from < 1 {
		from = 1
	}
	if to <= 0 {
		to = math.MaxInt32
	}

	var text string
	err := s.db.InReadTx(ctx, func(tx *sql.Tx) error {
		v := &ReadView{tx: tx}
		exists, err := v.DecisionExists(ctx, decisionID)
		if err != nil {
			return err
		}
		if !exists {
			return apperrors.Newf(apperrors.ErrNotFound, 404, "decision %d not found", decisionID)
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT content FROM decision_lines
			 WHERE decision_id = $1 AND line_no BETWEEN $2 AND $3
			 ORDER BY line_no ASC`,
			decisionID, from, to,
		)
		if err != nil {
			return fmt.Errorf("querying lines: %w", err)
		}
		defer rows.Close()

		var lines []string
		for rows.Next() {
			var content string
			if err := rows.Scan(&content); err != nil {
				return fmt.Errorf("scanning line: %w", err)
			}
			lines = append(lines, content)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		text = strings.Join(lines, "\n")
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// nullable converts a Go string to sql.NullString, treating "" as NULL.
func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

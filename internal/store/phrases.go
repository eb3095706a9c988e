package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	apperrors "github.com/courttext/concordance/pkg/errors"
)

// CreatePhrase registers a literal expression and returns its id.
func (s *Store) CreatePhrase(ctx context.Context, p Phrase) (int64, error) {
	if strings.TrimSpace(p.Expression) == "" {
		return 0, apperrors.New(apperrors.ErrInvalidQuery, 400, "expression_text is required")
	}
	lang := p.LanguageCode
	if lang == "" {
		lang = "he"
	}
	var id int64
	err := s.db.DB.QueryRowContext(ctx,
		`INSERT INTO phrases (name, expression_text, language_code) VALUES ($1, $2, $3) RETURNING phrase_id`,
		nullable(p.Name), p.Expression, lang,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting phrase: %w", err)
	}
	return id, nil
}

// GetPhrase fetches a registered phrase.
func (s *Store) GetPhrase(ctx context.Context, phraseID int64) (*Phrase, error) {
	var p Phrase
	var name sql.NullString
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT phrase_id, name, expression_text, language_code FROM phrases WHERE phrase_id = $1`,
		phraseID,
	).Scan(&p.ID, &name, &p.Expression, &p.LanguageCode)
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrNotFound, 404, "phrase %d not found", phraseID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying phrase: %w", err)
	}
	p.Name = name.String
	return &p, nil
}

// ReplacePhraseOccurrences swaps the stored matches of a phrase within a
// decision for a freshly scanned set, in one transaction.
func (s *Store) ReplacePhraseOccurrences(ctx context.Context, decisionID, phraseID int64, matches []Occurrence) error {
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM phrase_occurrences WHERE decision_id = $1 AND phrase_id = $2`,
			decisionID, phraseID,
		); err != nil {
			return fmt.Errorf("deleting previous phrase occurrences: %w", err)
		}
		if len(matches) == 0 {
			return nil
		}

		var sb strings.Builder
		sb.WriteString(`INSERT INTO phrase_occurrences (decision_id, phrase_id, line_no, char_start, char_end) VALUES `)
		args := make([]any, 0, len(matches)*5)
		for i, m := range matches {
			if i > 0 {
				sb.WriteByte(',')
			}
			n := len(args)
			fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4, n+5)
			args = append(args, decisionID, phraseID, m.LineNo, m.CharStart, m.CharEnd)
		}
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("inserting phrase occurrences: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("phrase occurrences replaced",
		"decision_id", decisionID,
		"phrase_id", phraseID,
		"matches", len(matches),
	)
	return nil
}

// PhraseOccurrences returns the stored matches of a phrase within a
// decision, ordered by (line_no, char_start).
func (s *Store) PhraseOccurrences(ctx context.Context, decisionID, phraseID int64) ([]Occurrence, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT line_no, char_start, char_end
		 FROM phrase_occurrences
		 WHERE decision_id = $1 AND phrase_id = $2
		 ORDER BY line_no, char_start`,
		decisionID, phraseID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying phrase occurrences: %w", err)
	}
	defer rows.Close()

	occ := make([]Occurrence, 0)
	for rows.Next() {
		var o Occurrence
		if err := rows.Scan(&o.LineNo, &o.CharStart, &o.CharEnd); err != nil {
			return nil, fmt.Errorf("scanning phrase occurrence: %w", err)
		}
		occ = append(occ, o)
	}
	return occ, rows.Err()
}

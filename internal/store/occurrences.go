package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/courttext/concordance/internal/tokenizer"
	apperrors "github.com/courttext/concordance/pkg/errors"
)

// Reindex atomically replaces all indexed content for a decision: previous
// lines and occurrences are discarded and the new generation is written in
// the same transaction. Concurrent re-indexes of the same decision are
// serialized with a per-decision advisory lock; re-indexes of different
// decisions proceed independently. On any error the prior generation is
// left untouched.
func (s *Store) Reindex(ctx context.Context, decisionID int64, lines []string, tokens []tokenizer.Token) (ReindexStats, error) {
	var stats ReindexStats
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, decisionID); err != nil {
			return fmt.Errorf("acquiring decision lock: %w", err)
		}

		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM decisions WHERE decision_id = $1)`, decisionID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("checking decision: %w", err)
		}
		if !exists {
			return apperrors.Newf(apperrors.ErrNotFound, 404, "decision %d not found", decisionID)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM occurrences WHERE decision_id = $1`, decisionID); err != nil {
			return fmt.Errorf("deleting previous occurrences: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM decision_lines WHERE decision_id = $1`, decisionID); err != nil {
			return fmt.Errorf("deleting previous lines: %w", err)
		}

		if err := insertLines(ctx, tx, decisionID, lines, s.lineChunk); err != nil {
			return err
		}

		distinct := distinctWords(tokens)
		wordIDs, err := upsertWords(ctx, tx, distinct, s.rowChunk)
		if err != nil {
			return err
		}

		if err := insertOccurrences(ctx, tx, decisionID, tokens, wordIDs, s.rowChunk); err != nil {
			return err
		}

		stats = ReindexStats{
			Lines:       len(lines),
			UniqueWords: len(distinct),
			Tokens:      len(tokens),
		}
		return nil
	})
	if err != nil {
		return ReindexStats{}, err
	}
	s.logger.Info("decision reindexed",
		"decision_id", decisionID,
		"lines", stats.Lines,
		"unique_words", stats.UniqueWords,
		"tokens", stats.Tokens,
	)
	return stats, nil
}

// distinctWords returns the unique normalized words of the token stream.
func distinctWords(tokens []tokenizer.Token) []string {
	seen := make(map[string]struct{}, len(tokens))
	words := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok.Word]; ok {
			continue
		}
		seen[tok.Word] = struct{}{}
		words = append(words, tok.Word)
	}
	return words
}

// insertLines writes the new line set in multi-row chunks.
func insertLines(ctx context.Context, tx *sql.Tx, decisionID int64, lines []string, chunk int) error {
	for offset := 0; offset < len(lines); offset += chunk {
		end := offset + chunk
		if end > len(lines) {
			end = len(lines)
		}
		batch := lines[offset:end]

		var sb strings.Builder
		sb.WriteString(`INSERT INTO decision_lines (decision_id, line_no, content) VALUES `)
		args := make([]any, 0, len(batch)*3)
		for i, content := range batch {
			if i > 0 {
				sb.WriteByte(',')
			}
			n := len(args)
			fmt.Fprintf(&sb, "($%d,$%d,$%d)", n+1, n+2, n+3)
			args = append(args, decisionID, offset+i+1, content)
		}
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("inserting lines: %w", err)
		}
	}
	return nil
}

// upsertWords inserts missing words (duplicates are a no-op, never an error)
// and resolves every word to its id with one bulk lookup per chunk.
func upsertWords(ctx context.Context, tx *sql.Tx, words []string, chunk int) (map[string]int64, error) {
	ids := make(map[string]int64, len(words))
	for offset := 0; offset < len(words); offset += chunk {
		end := offset + chunk
		if end > len(words) {
			end = len(words)
		}
		batch := words[offset:end]

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO words (word_text)
			 SELECT unnest($1::text[])
			 ON CONFLICT (word_text) DO NOTHING`,
			pq.Array(batch),
		); err != nil {
			return nil, fmt.Errorf("upserting words: %w", err)
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT word_id, word_text FROM words WHERE word_text = ANY($1)`,
			pq.Array(batch),
		)
		if err != nil {
			return nil, fmt.Errorf("resolving word ids: %w", err)
		}
		for rows.Next() {
			var id int64
			var text string
			if err := rows.Scan(&id, &text); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning word row: %w", err)
			}
			ids[text] = id
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterating word rows: %w", err)
		}
		rows.Close()
	}
	return ids, nil
}

// insertOccurrences writes one row per surviving token in multi-row chunks.
func insertOccurrences(ctx context.Context, tx *sql.Tx, decisionID int64, tokens []tokenizer.Token, wordIDs map[string]int64, chunk int) error {
	for offset := 0; offset < len(tokens); offset += chunk {
		end := offset + chunk
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[offset:end]

		var sb strings.Builder
		sb.WriteString(`INSERT INTO occurrences (decision_id, word_id, line_no, char_start, char_end, idx_in_line) VALUES `)
		args := make([]any, 0, len(batch)*6)
		for i, tok := range batch {
			wordID, ok := wordIDs[tok.Word]
			if !ok {
				return fmt.Errorf("word %q missing from id map", tok.Word)
			}
			if i > 0 {
				sb.WriteByte(',')
			}
			n := len(args)
			fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4, n+5, n+6)
			args = append(args, decisionID, wordID, tok.LineNo, tok.CharStart, tok.CharEnd, tok.IdxInLine)
		}
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("inserting occurrences: %w", err)
		}
	}
	return nil
}

// WordIndex lists a decision's words with occurrence counts, ordered
// alphabetically or by descending frequency with alphabetical tie-break.
func (s *Store) WordIndex(ctx context.Context, decisionID int64, order WordOrder, limit int) ([]WordCount, error) {
	orderSQL := `ORDER BY w.word_text ASC`
	if order == OrderFrequency {
		orderSQL = `ORDER BY cnt DESC, w.word_text ASC`
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT w.word_text, COUNT(*) AS cnt
		 FROM occurrences o
		 JOIN words w ON o.word_id = w.word_id
		 WHERE o.decision_id = $1
		 GROUP BY w.word_id, w.word_text `+orderSQL+` LIMIT $2`,
		decisionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing word index: %w", err)
	}
	defer rows.Close()

	counts := make([]WordCount, 0)
	for rows.Next() {
		var wc WordCount
		if err := rows.Scan(&wc.Word, &wc.Count); err != nil {
			return nil, fmt.Errorf("scanning word count: %w", err)
		}
		counts = append(counts, wc)
	}
	return counts, rows.Err()
}

// Stats returns a decision's line, token, and unique-word counts from one
// consistent snapshot.
func (s *Store) Stats(ctx context.Context, decisionID int64) (ReindexStats, error) {
	var stats ReindexStats
	err := s.db.InReadTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM decisions WHERE decision_id = $1)`, decisionID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("checking decision: %w", err)
		}
		if !exists {
			return apperrors.Newf(apperrors.ErrNotFound, 404, "decision %d not found", decisionID)
		}
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM decision_lines WHERE decision_id = $1`, decisionID,
		).Scan(&stats.Lines); err != nil {
			return fmt.Errorf("counting lines: %w", err)
		}
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*), COUNT(DISTINCT word_id) FROM occurrences WHERE decision_id = $1`, decisionID,
		).Scan(&stats.Tokens, &stats.UniqueWords); err != nil {
			return fmt.Errorf("counting occurrences: %w", err)
		}
		return nil
	})
	if err != nil {
		return ReindexStats{}, err
	}
	return stats, nil
}

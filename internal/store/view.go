package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	apperrors "github.com/courttext/concordance/pkg/errors"
)

// ReadView is a consistent read-only snapshot of the index. Every statement
// issued through it runs in the same repeatable-read transaction, so a
// search never observes part of one index generation and part of another.
type ReadView struct {
	tx *sql.Tx
}

// View runs fn against a consistent snapshot of the index.
func (s *Store) View(ctx context.Context, fn func(v *ReadView) error) error {
	return s.db.InReadTx(ctx, func(tx *sql.Tx) error {
		return fn(&ReadView{tx: tx})
	})
}

// DecisionExists reports whether the decision row exists.
func (v *ReadView) DecisionExists(ctx context.Context, decisionID int64) (bool, error) {
	var exists bool
	err := v.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM decisions WHERE decision_id = $1)`, decisionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking decision: %w", err)
	}
	return exists, nil
}

// WordID resolves a normalized word to its global id. The second return is
// false when no document has ever contained the word.
func (v *ReadView) WordID(ctx context.Context, word string) (int64, bool, error) {
	var id int64
	err := v.tx.QueryRowContext(ctx,
		`SELECT word_id FROM words WHERE word_text = $1`, word,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("resolving word: %w", err)
	}
	return id, true, nil
}

// WordOccurrences returns up to max occurrences of a word within a decision,
// ordered by (line_no, char_start). Callers rely on that order.
func (v *ReadView) WordOccurrences(ctx context.Context, decisionID, wordID int64, max int) ([]Occurrence, error) {
	rows, err := v.tx.QueryContext(ctx,
		`SELECT line_no, char_start, char_end
		 FROM occurrences
		 WHERE decision_id = $1 AND word_id = $2
		 ORDER BY line_no, char_start
		 LIMIT $3`,
		decisionID, wordID, max,
	)
	if err != nil {
		return nil, fmt.Errorf("querying occurrences: %w", err)
	}
	defer rows.Close()

	occ := make([]Occurrence, 0)
	for rows.Next() {
		var o Occurrence
		if err := rows.Scan(&o.LineNo, &o.CharStart, &o.CharEnd); err != nil {
			return nil, fmt.Errorf("scanning occurrence: %w", err)
		}
		occ = append(occ, o)
	}
	return occ, rows.Err()
}

// LineRanges fetches the union of the given line ranges in one query.
// Lower bounds are clamped to line 1; line numbers past the end of the
// document are simply absent from the result map.
func (v *ReadView) LineRanges(ctx context.Context, decisionID int64, ranges []LineRange) (map[int]string, error) {
	result := make(map[int]string)
	if len(ranges) == 0 {
		return result, nil
	}

	var sb strings.Builder
	args := make([]any, 0, len(ranges)*2+1)
	args = append(args, decisionID)
	for i, r := range ranges {
		from := r.From
		if from < 1 {
			from = 1
		}
		if i > 0 {
			sb.WriteString(" OR ")
		}
		fmt.Fprintf(&sb, "(line_no BETWEEN $%d AND $%d)", len(args)+1, len(args)+2)
		args = append(args, from, r.To)
	}

	rows, err := v.tx.QueryContext(ctx,
		`SELECT line_no, content FROM decision_lines WHERE decision_id = $1 AND (`+sb.String()+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying line ranges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var lineNo int
		var content string
		if err := rows.Scan(&lineNo, &content); err != nil {
			return nil, fmt.Errorf("scanning line: %w", err)
		}
		result[lineNo] = content
	}
	return result, rows.Err()
}

// ScanLines streams a decision's lines in ascending line order, invoking fn
// for each. Scanning stops early when fn returns false.
func (v *ReadView) ScanLines(ctx context.Context, decisionID int64, fn func(lineNo int, content string) bool) error {
	rows, err := v.tx.QueryContext(ctx,
		`SELECT line_no, content FROM decision_lines WHERE decision_id = $1 ORDER BY line_no ASC`,
		decisionID,
	)
	if err != nil {
		return fmt.Errorf("scanning lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var lineNo int
		var content string
		if err := rows.Scan(&lineNo, &content); err != nil {
			return fmt.Errorf("scanning line: %w", err)
		}
		if !fn(lineNo, content) {
			return nil
		}
	}
	return rows.Err()
}

// GroupMembers returns a group's words in membership insertion order.
// A missing group is ErrNotFound; a group with no members is an empty slice.
func (v *ReadView) GroupMembers(ctx context.Context, groupID int64) ([]GroupMember, error) {
	var exists bool
	if err := v.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM word_groups WHERE group_id = $1)`, groupID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking group: %w", err)
	}
	if !exists {
		return nil, apperrors.Newf(apperrors.ErrNotFound, 404, "word group %d not found", groupID)
	}

	rows, err := v.tx.QueryContext(ctx,
		`SELECT w.word_id, w.word_text
		 FROM word_group_members gm
		 JOIN words w ON gm.word_id = w.word_id
		 WHERE gm.group_id = $1
		 ORDER BY gm.seq ASC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying group members: %w", err)
	}
	defer rows.Close()

	members := make([]GroupMember, 0)
	for rows.Next() {
		var m GroupMember
		if err := rows.Scan(&m.WordID, &m.Word); err != nil {
			return nil, fmt.Errorf("scanning group member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/courttext/concordance/internal/tokenizer"
	apperrors "github.com/courttext/concordance/pkg/errors"
)

// CreateGroup inserts a word group and returns its id.
func (s *Store) CreateGroup(ctx context.Context, name, description string) (int64, error) {
	var id int64
	err := s.db.DB.QueryRowContext(ctx,
		`INSERT INTO word_groups (name, description) VALUES ($1, $2) RETURNING group_id`,
		name, nullable(description),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting word group: %w", err)
	}
	return id, nil
}

// AddGroupWords normalizes the given words, creates any that are missing in
// the global word table, and adds them to the group. Words already in the
// group are skipped; membership insertion order is preserved for the rest.
// Returns the number of members actually added.
func (s *Store) AddGroupWords(ctx context.Context, groupID int64, words []string) (int, error) {
	normalized := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		norm := tokenizer.NormalizeWord(w)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		normalized = append(normalized, norm)
	}
	if len(normalized) == 0 {
		return 0, apperrors.New(apperrors.ErrInvalidQuery, 400, "no valid words after normalization")
	}

	added := 0
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM word_groups WHERE group_id = $1)`, groupID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("checking group: %w", err)
		}
		if !exists {
			return apperrors.Newf(apperrors.ErrNotFound, 404, "word group %d not found", groupID)
		}

		ids, err := upsertWords(ctx, tx, normalized, s.rowChunk)
		if err != nil {
			return err
		}

		// One insert per word keeps the seq order equal to the caller's
		// word order.
		for _, w := range normalized {
			result, err := tx.ExecContext(ctx,
				`INSERT INTO word_group_members (group_id, word_id) VALUES ($1, $2)
				 ON CONFLICT (group_id, word_id) DO NOTHING`,
				groupID, ids[w],
			)
			if err != nil {
				return fmt.Errorf("adding group member %q: %w", w, err)
			}
			if n, _ := result.RowsAffected(); n > 0 {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("group members added", "group_id", groupID, "added", added)
	return added, nil
}

// GetGroup fetches a word group's metadata.
func (s *Store) GetGroup(ctx context.Context, groupID int64) (*WordGroup, error) {
	var g WordGroup
	var description sql.NullString
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT group_id, name, description FROM word_groups WHERE group_id = $1`,
		groupID,
	).Scan(&g.ID, &g.Name, &description)
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrNotFound, 404, "word group %d not found", groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying word group: %w", err)
	}
	g.Description = description.String
	return &g, nil
}

package store_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/courttext/concordance/internal/store"
	"github.com/courttext/concordance/internal/tokenizer"
	"github.com/courttext/concordance/pkg/config"
	apperrors "github.com/courttext/concordance/pkg/errors"
	"github.com/courttext/concordance/pkg/postgres"
)

// setupStore connects to the Postgres instance configured through the usual
// CC_POSTGRES_* environment variables. Tests are skipped unless CC_IT is set.
func setupStore(t *testing.T) *store.Store {
	t.Helper()
	if os.Getenv("CC_IT") == "" {
		t.Skip("set CC_IT=1 to run integration tests against Postgres")
	}

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { pg.Close() })

	st := store.New(pg, cfg.Ingest)
	if err := st.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("applying schema: %v", err)
	}
	return st
}

func createDecision(t *testing.T, st *store.Store) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := st.CreateDecision(ctx, store.Decision{Title: t.Name()})
	if err != nil {
		t.Fatalf("creating decision: %v", err)
	}
	t.Cleanup(func() {
		_ = st.DeleteDecision(context.Background(), id)
	})
	return id
}

func ingest(t *testing.T, st *store.Store, decisionID int64, text string) store.ReindexStats {
	t.Helper()
	lines, tokens := tokenizer.Tokenize(text)
	stats, err := st.Reindex(context.Background(), decisionID, lines, tokens)
	if err != nil {
		t.Fatalf("reindexing: %v", err)
	}
	return stats
}

func TestReindexIdempotent(t *testing.T) {
	st := setupStore(t)
	id := createDecision(t, st)

	text := "the court convened\nthe court adjourned"
	first := ingest(t, st, id, text)
	second := ingest(t, st, id, text)

	if first != second {
		t.Errorf("re-indexing identical text changed counts: %+v vs %+v", first, second)
	}

	stats, err := st.Stats(context.Background(), id)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats != second {
		t.Errorf("stored counts %+v disagree with reindex result %+v", stats, second)
	}
}

func TestReindexReplacesGeneration(t *testing.T) {
	st := setupStore(t)
	id := createDecision(t, st)

	ingest(t, st, id, "alpha beta gamma\ndelta epsilon")
	stats := ingest(t, st, id, "single line only")

	if stats.Lines != 1 || stats.Tokens != 3 {
		t.Errorf("expected new generation with 1 line and 3 tokens, got %+v", stats)
	}

	text, err := st.FullText(context.Background(), id, 0, 0)
	if err != nil {
		t.Fatalf("full text: %v", err)
	}
	if text != "single line only" {
		t.Errorf("old generation leaked into stored text: %q", text)
	}
}

func TestReindexUnknownDecision(t *testing.T) {
	st := setupStore(t)

	lines, tokens := tokenizer.Tokenize("text")
	_, err := st.Reindex(context.Background(), -12345, lines, tokens)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestWordIndexOrdering(t *testing.T) {
	st := setupStore(t)
	id := createDecision(t, st)
	ingest(t, st, id, "banana apple banana cherry banana apple")

	ctx := context.Background()
	alpha, err := st.WordIndex(ctx, id, store.OrderAlpha, 100)
	if err != nil {
		t.Fatalf("word index: %v", err)
	}
	if len(alpha) != 3 || alpha[0].Word != "apple" || alpha[2].Word != "cherry" {
		t.Errorf("unexpected alphabetical listing: %+v", alpha)
	}

	freq, err := st.WordIndex(ctx, id, store.OrderFrequency, 100)
	if err != nil {
		t.Fatalf("word index: %v", err)
	}
	if freq[0].Word != "banana" || freq[0].Count != 3 {
		t.Errorf("expected banana(3) first by frequency, got %+v", freq)
	}
}

func TestViewWordOccurrenceOrder(t *testing.T) {
	st := setupStore(t)
	id := createDecision(t, st)
	ingest(t, st, id, "word here and word there\nanother word\nword again")

	err := st.View(context.Background(), func(v *store.ReadView) error {
		ctx := context.Background()
		wordID, ok, err := v.WordID(ctx, "word")
		if err != nil || !ok {
			t.Fatalf("resolving word: ok=%v err=%v", ok, err)
		}
		occ, err := v.WordOccurrences(ctx, id, wordID, 100)
		if err != nil {
			t.Fatalf("occurrences: %v", err)
		}
		if len(occ) != 4 {
			t.Fatalf("expected 4 occurrences, got %d", len(occ))
		}
		for i := 1; i < len(occ); i++ {
			prev, cur := occ[i-1], occ[i]
			if cur.LineNo < prev.LineNo ||
				(cur.LineNo == prev.LineNo && cur.CharStart < prev.CharStart) {
				t.Errorf("occurrences out of order at %d: %+v then %+v", i, prev, cur)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestDeleteDecisionCascades(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	id, err := st.CreateDecision(ctx, store.Decision{Title: t.Name()})
	if err != nil {
		t.Fatalf("creating decision: %v", err)
	}
	ingest(t, st, id, "cascade test text")

	if err := st.DeleteDecision(ctx, id); err != nil {
		t.Fatalf("deleting decision: %v", err)
	}
	if _, err := st.Stats(ctx, id); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	// Shared word rows survive the cascade.
	err = st.View(ctx, func(v *store.ReadView) error {
		_, ok, err := v.WordID(ctx, "cascade")
		if err != nil {
			return err
		}
		if !ok {
			t.Error("word row deleted with the decision")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestGroupMembershipOrder(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	groupID, err := st.CreateGroup(ctx, t.Name(), "")
	if err != nil {
		t.Fatalf("creating group: %v", err)
	}
	added, err := st.AddGroupWords(ctx, groupID, []string{"Zebra", "apple", "zebra", "Mango"})
	if err != nil {
		t.Fatalf("adding group words: %v", err)
	}
	if added != 3 {
		t.Errorf("expected 3 added after dedup, got %d", added)
	}

	err = st.View(ctx, func(v *store.ReadView) error {
		members, err := v.GroupMembers(ctx, groupID)
		if err != nil {
			return err
		}
		got := make([]string, len(members))
		for i, m := range members {
			got[i] = m.Word
		}
		want := []string{"zebra", "apple", "mango"}
		for i := range want {
			if i >= len(got) || got[i] != want[i] {
				t.Fatalf("expected membership order %v, got %v", want, got)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestAddGroupWordsAllInvalid(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	groupID, err := st.CreateGroup(ctx, t.Name(), "")
	if err != nil {
		t.Fatalf("creating group: %v", err)
	}
	_, err = st.AddGroupWords(ctx, groupID, []string{"...", "  ", "!!"})
	if !errors.Is(err, apperrors.ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestReplacePhraseOccurrences(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	id := createDecision(t, st)

	phraseID, err := st.CreatePhrase(ctx, store.Phrase{Name: t.Name(), Expression: "burden of proof"})
	if err != nil {
		t.Fatalf("creating phrase: %v", err)
	}

	first := []store.Occurrence{
		{LineNo: 2, CharStart: 10, CharEnd: 25},
		{LineNo: 7, CharStart: 0, CharEnd: 15},
	}
	if err := st.ReplacePhraseOccurrences(ctx, id, phraseID, first); err != nil {
		t.Fatalf("replacing phrase occurrences: %v", err)
	}

	second := []store.Occurrence{{LineNo: 4, CharStart: 3, CharEnd: 18}}
	if err := st.ReplacePhraseOccurrences(ctx, id, phraseID, second); err != nil {
		t.Fatalf("replacing phrase occurrences: %v", err)
	}

	stored, err := st.PhraseOccurrences(ctx, id, phraseID)
	if err != nil {
		t.Fatalf("querying phrase occurrences: %v", err)
	}
	if len(stored) != 1 || stored[0] != second[0] {
		t.Errorf("expected replacement set %+v, got %+v", second, stored)
	}
}

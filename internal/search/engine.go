// Package search implements the concordance query engines: exact-word
// lookup, literal phrase scan, and word-group indexing, each returning
// occurrences with a window of surrounding lines. All context lines for a
// request are fetched in one batched read, and every engine runs against a
// consistent snapshot of the index.
package search

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/courttext/concordance/internal/store"
	"github.com/courttext/concordance/internal/tokenizer"
	apperrors "github.com/courttext/concordance/pkg/errors"
	"github.com/courttext/concordance/pkg/metrics"
)

// ContextLine is one line of a hit's surrounding context.
type ContextLine struct {
	LineNo int    `json:"line"`
	Text   string `json:"text"`
}

// Hit is one matched occurrence with its context window. Context lines are
// in ascending line order and carry their own line numbers so callers can
// render the matched line distinctly.
type Hit struct {
	LineNo    int           `json:"line_no"`
	CharStart int           `json:"char_start"`
	CharEnd   int           `json:"char_end"`
	Context   []ContextLine `json:"context"`
}

// GroupWordIndex is the sampled occurrence index of one group member word.
type GroupWordIndex struct {
	Word    string `json:"word"`
	Samples []Hit  `json:"samples"`
}

// Reader is a consistent read-only view of the index, satisfied by
// *store.ReadView.
type Reader interface {
	DecisionExists(ctx context.Context, decisionID int64) (bool, error)
	WordID(ctx context.Context, word string) (int64, bool, error)
	WordOccurrences(ctx context.Context, decisionID, wordID int64, max int) ([]store.Occurrence, error)
	LineRanges(ctx context.Context, decisionID int64, ranges []store.LineRange) (map[int]string, error)
	ScanLines(ctx context.Context, decisionID int64, fn func(lineNo int, content string) bool) error
	GroupMembers(ctx context.Context, groupID int64) ([]store.GroupMember, error)
}

// Store opens consistent views of the index.
type Store interface {
	View(ctx context.Context, fn func(Reader) error) error
}

// NewStoreAdapter adapts *store.Store to the Store interface.
func NewStoreAdapter(s *store.Store) Store {
	return storeAdapter{s: s}
}

type storeAdapter struct {
	s *store.Store
}

func (a storeAdapter) View(ctx context.Context, fn func(Reader) error) error {
	return a.s.View(ctx, func(v *store.ReadView) error {
		return fn(v)
	})
}

// Engine answers word, phrase, and group queries.
type Engine struct {
	store   Store
	cache   *ResultCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an Engine. cache may be nil, in which case every query goes to
// the store; m may be nil to disable query metrics.
func New(st Store, cache *ResultCache, m *metrics.Metrics) *Engine {
	return &Engine{
		store:   st,
		cache:   cache,
		metrics: m,
		logger:  slog.Default().With("component", "search-engine"),
	}
}

// observe records one query's outcome and latency.
func (e *Engine) observe(kind string, start time.Time, cached bool, err error) {
	if e.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(kind, outcome).Inc()

	status := "bypass"
	if e.cache != nil {
		status = "miss"
		if cached {
			status = "hit"
		}
	}
	e.metrics.SearchLatency.WithLabelValues(kind, status).Observe(time.Since(start).Seconds())
}

// SearchWord returns up to max occurrences of the normalized query word in
// the decision, ordered by (line_no, char_start), each with before/after
// lines of context. A word no document contains is an empty result, not an
// error.
func (e *Engine) SearchWord(ctx context.Context, decisionID int64, rawQuery string, before, after, max int) ([]Hit, error) {
	word := tokenizer.NormalizeWord(rawQuery)
	if word == "" {
		return nil, apperrors.New(apperrors.ErrInvalidQuery, 400, "query is empty after normalization")
	}
	before, after, max = clampWindow(before, after, max)
	start := time.Now()

	compute := func() ([]Hit, error) {
		var hits []Hit
		err := e.store.View(ctx, func(v Reader) error {
			if err := requireDecision(ctx, v, decisionID); err != nil {
				return err
			}
			wordID, ok, err := v.WordID(ctx, word)
			if err != nil {
				return err
			}
			if !ok {
				hits = []Hit{}
				return nil
			}
			occ, err := v.WordOccurrences(ctx, decisionID, wordID, max)
			if err != nil {
				return err
			}
			hits, err = e.withContext(ctx, v, decisionID, occ, before, after)
			return err
		})
		return hits, err
	}

	if e.cache == nil {
		hits, err := compute()
		e.observe("word", start, false, err)
		return hits, err
	}
	key := cacheKey(decisionID, "word", word, before, after, max)
	hits, cached, err := e.cache.GetOrCompute(ctx, decisionID, key, compute)
	e.observe("word", start, cached, err)
	return hits, err
}

// SearchPhrase scans the decision's lines in order for a literal,
// case-sensitive substring match. Only the first match within a line is
// reported, and scanning stops as soon as max matches are collected.
func (e *Engine) SearchPhrase(ctx context.Context, decisionID int64, phrase string, before, after, max int) ([]Hit, error) {
	if strings.TrimSpace(phrase) == "" {
		return nil, apperrors.New(apperrors.ErrInvalidQuery, 400, "phrase is empty")
	}
	before, after, max = clampWindow(before, after, max)
	start := time.Now()

	compute := func() ([]Hit, error) {
		var hits []Hit
		err := e.store.View(ctx, func(v Reader) error {
			if err := requireDecision(ctx, v, decisionID); err != nil {
				return err
			}
			occ, err := scanPhrase(ctx, v, decisionID, phrase, max)
			if err != nil {
				return err
			}
			hits, err = e.withContext(ctx, v, decisionID, occ, before, after)
			return err
		})
		return hits, err
	}

	if e.cache == nil {
		hits, err := compute()
		e.observe("phrase", start, false, err)
		return hits, err
	}
	key := cacheKey(decisionID, "phrase", phrase, before, after, max)
	hits, cached, err := e.cache.GetOrCompute(ctx, decisionID, key, compute)
	e.observe("phrase", start, cached, err)
	return hits, err
}

// ScanPhraseMatches returns every line's first match of the phrase across
// the whole decision, for persisting phrase occurrences.
func (e *Engine) ScanPhraseMatches(ctx context.Context, decisionID int64, phrase string) ([]store.Occurrence, error) {
	if strings.TrimSpace(phrase) == "" {
		return nil, apperrors.New(apperrors.ErrInvalidQuery, 400, "phrase is empty")
	}
	var matches []store.Occurrence
	err := e.store.View(ctx, func(v Reader) error {
		if err := requireDecision(ctx, v, decisionID); err != nil {
			return err
		}
		var scanErr error
		matches, scanErr = scanPhrase(ctx, v, decisionID, phrase, 0)
		return scanErr
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// GroupIndex resolves the group's members in insertion order and samples at
// most limitPerWord occurrences of each within the decision, annotated with
// a fixed one-line context window. Context for the entire group is fetched
// in a single batched read.
func (e *Engine) GroupIndex(ctx context.Context, groupID, decisionID int64, limitPerWord int) ([]GroupWordIndex, error) {
	if limitPerWord < 1 {
		limitPerWord = 1
	}
	start := time.Now()

	var result []GroupWordIndex
	err := e.store.View(ctx, func(v Reader) error {
		if err := requireDecision(ctx, v, decisionID); err != nil {
			return err
		}
		members, err := v.GroupMembers(ctx, groupID)
		if err != nil {
			return err
		}

		sampled := make([][]store.Occurrence, len(members))
		var ranges []store.LineRange
		for i, m := range members {
			occ, err := v.WordOccurrences(ctx, decisionID, m.WordID, limitPerWord)
			if err != nil {
				return err
			}
			sampled[i] = occ
			for _, o := range occ {
				ranges = append(ranges, store.LineRange{From: o.LineNo - 1, To: o.LineNo + 1})
			}
		}

		lineMap, err := v.LineRanges(ctx, decisionID, ranges)
		if err != nil {
			return err
		}

		result = make([]GroupWordIndex, len(members))
		for i, m := range members {
			result[i] = GroupWordIndex{
				Word:    m.Word,
				Samples: assembleHits(sampled[i], lineMap, 1, 1),
			}
		}
		return nil
	})
	e.observe("group", start, false, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// withContext fetches all hits' context windows in one batched read and
// assembles the result.
func (e *Engine) withContext(ctx context.Context, v Reader, decisionID int64, occ []store.Occurrence, before, after int) ([]Hit, error) {
	ranges := make([]store.LineRange, len(occ))
	for i, o := range occ {
		ranges[i] = store.LineRange{From: o.LineNo - before, To: o.LineNo + after}
	}
	lineMap, err := v.LineRanges(ctx, decisionID, ranges)
	if err != nil {
		return nil, err
	}
	return assembleHits(occ, lineMap, before, after), nil
}

// assembleHits attaches the context window of each occurrence from the
// batched line map. Lines past the document bounds are absent from the map
// and are omitted, never an error.
func assembleHits(occ []store.Occurrence, lineMap map[int]string, before, after int) []Hit {
	hits := make([]Hit, 0, len(occ))
	for _, o := range occ {
		from := o.LineNo - before
		if from < 1 {
			from = 1
		}
		var window []ContextLine
		for ln := from; ln <= o.LineNo+after; ln++ {
			if text, ok := lineMap[ln]; ok {
				window = append(window, ContextLine{LineNo: ln, Text: text})
			}
		}
		hits = append(hits, Hit{
			LineNo:    o.LineNo,
			CharStart: o.CharStart,
			CharEnd:   o.CharEnd,
			Context:   window,
		})
	}
	return hits
}

// scanPhrase streams lines in ascending order and records the first literal
// match per line as rune offsets. max == 0 scans the whole document;
// otherwise scanning stops once max matches are collected.
func scanPhrase(ctx context.Context, v Reader, decisionID int64, phrase string, max int) ([]store.Occurrence, error) {
	matches := make([]store.Occurrence, 0)
	phraseRunes := utf8.RuneCountInString(phrase)
	err := v.ScanLines(ctx, decisionID, func(lineNo int, content string) bool {
		idx := strings.Index(content, phrase)
		if idx < 0 {
			return true
		}
		start := utf8.RuneCountInString(content[:idx])
		matches = append(matches, store.Occurrence{
			LineNo:    lineNo,
			CharStart: start,
			CharEnd:   start + phraseRunes,
		})
		return max == 0 || len(matches) < max
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func requireDecision(ctx context.Context, v Reader, decisionID int64) error {
	exists, err := v.DecisionExists(ctx, decisionID)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.Newf(apperrors.ErrNotFound, 404, "decision %d not found", decisionID)
	}
	return nil
}

func clampWindow(before, after, max int) (int, int, int) {
	if before < 0 {
		before = 0
	}
	if after < 0 {
		after = 0
	}
	if max < 1 {
		max = 1
	}
	return before, after, max
}

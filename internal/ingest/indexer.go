package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/courttext/concordance/internal/store"
	"github.com/courttext/concordance/internal/tokenizer"
	apperrors "github.com/courttext/concordance/pkg/errors"
	"github.com/courttext/concordance/pkg/kafka"
	"github.com/courttext/concordance/pkg/logger"
	"github.com/courttext/concordance/pkg/metrics"
)

// Store is the persistence surface the indexer needs.
type Store interface {
	Reindex(ctx context.Context, decisionID int64, lines []string, tokens []tokenizer.Token) (store.ReindexStats, error)
}

// Publisher publishes events to Kafka.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Indexer coordinates the tokenize-and-replace pipeline for one decision at
// a time.
type Indexer struct {
	store        Store
	producer     Publisher
	metrics      *metrics.Metrics
	maxTextBytes int
	logger       *slog.Logger
}

// New creates an Indexer. producer and m may be nil (no events, no metrics).
func New(st Store, producer Publisher, m *metrics.Metrics, maxTextBytes int) *Indexer {
	return &Indexer{
		store:        st,
		producer:     producer,
		metrics:      m,
		maxTextBytes: maxTextBytes,
		logger:       slog.Default().With("component", "indexer"),
	}
}

// Ingest replaces the decision's entire index with one built from text.
// On success it reports the counts written; on any storage failure the
// prior index generation is preserved and an IndexingFailure is returned.
// The Kafka announcement is fire-and-forget: a publish failure is logged
// but does not fail the ingest.
func (ix *Indexer) Ingest(ctx context.Context, decisionID int64, text string) (store.ReindexStats, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	if err := ValidateText(text, ix.maxTextBytes); err != nil {
		return store.ReindexStats{}, err
	}

	lines, tokens := tokenizer.Tokenize(text)

	stats, err := ix.store.Reindex(ctx, decisionID, lines, tokens)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return store.ReindexStats{}, err
		}
		log.Error("reindex failed", "decision_id", decisionID, "error", err)
		return store.ReindexStats{}, apperrors.Newf(apperrors.ErrIndexingFailure, 500, "reindexing decision %d: %v", decisionID, err)
	}

	if ix.metrics != nil {
		ix.metrics.DecisionsIndexedTotal.Inc()
		ix.metrics.TokensIndexedTotal.Add(float64(stats.Tokens))
		ix.metrics.IndexDuration.Observe(time.Since(start).Seconds())
	}

	if ix.producer != nil {
		event := kafka.Event{
			Key: strconv.FormatInt(decisionID, 10),
			Value: IndexedEvent{
				DecisionID:  decisionID,
				Lines:       stats.Lines,
				UniqueWords: stats.UniqueWords,
				Tokens:      stats.Tokens,
				IndexedAt:   time.Now().UTC(),
			},
		}
		if err := ix.producer.Publish(ctx, event); err != nil {
			ix.logger.Error("failed to publish indexed event",
				"decision_id", decisionID,
				"error", err,
			)
		}
	}

	log.Info("decision ingested",
		"decision_id", decisionID,
		"lines", stats.Lines,
		"unique_words", stats.UniqueWords,
		"tokens", stats.Tokens,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return stats, nil
}

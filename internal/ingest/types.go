// Package ingest runs the indexing pipeline: validate raw decision text,
// tokenize it, replace the decision's index generation in the store, and
// announce the new generation on Kafka.
package ingest

import "time"

// IndexedEvent is the Kafka message published after a decision's index
// generation has been committed. Consumers use it to invalidate stale
// search caches.
type IndexedEvent struct {
	DecisionID  int64     `json:"decision_id"`
	Lines       int       `json:"lines"`
	UniqueWords int       `json:"unique_words"`
	Tokens      int       `json:"tokens"`
	IndexedAt   time.Time `json:"indexed_at"`
}

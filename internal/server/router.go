package server

import (
	"net/http"
	"time"

	"github.com/courttext/concordance/pkg/health"
	"github.com/courttext/concordance/pkg/metrics"
	"github.com/courttext/concordance/pkg/middleware"
)

// NewRouter builds the full route table and wraps it with the standard
// middleware chain: request ID, metrics, timeout.
func NewRouter(h *Handler, checker *health.Checker, m *metrics.Metrics, requestTimeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/decisions", h.CreateDecision)
	mux.HandleFunc("GET /api/v1/decisions/{id}", h.GetDecision)
	mux.HandleFunc("DELETE /api/v1/decisions/{id}", h.DeleteDecision)

	mux.HandleFunc("PUT /api/v1/decisions/{id}/text", h.IngestText)
	mux.HandleFunc("GET /api/v1/decisions/{id}/text", h.FullText)

	mux.HandleFunc("GET /api/v1/decisions/{id}/words", h.Words)
	mux.HandleFunc("GET /api/v1/decisions/{id}/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/decisions/{id}/search/word", h.SearchWord)
	mux.HandleFunc("GET /api/v1/decisions/{id}/search/phrase", h.SearchPhrase)

	mux.HandleFunc("POST /api/v1/groups", h.CreateGroup)
	mux.HandleFunc("GET /api/v1/groups/{id}", h.GetGroup)
	mux.HandleFunc("POST /api/v1/groups/{id}/words", h.AddGroupWords)
	mux.HandleFunc("GET /api/v1/groups/{id}/index", h.GroupIndex)

	mux.HandleFunc("POST /api/v1/phrases", h.CreatePhrase)
	mux.HandleFunc("POST /api/v1/phrases/{id}/scan", h.ScanPhrase)
	mux.HandleFunc("GET /api/v1/phrases/{id}/occurrences", h.PhraseOccurrences)

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var handler http.Handler = mux
	handler = middleware.Timeout(requestTimeout)(handler)
	if m != nil {
		handler = middleware.Metrics(m)(handler)
	}
	handler = middleware.RequestID(handler)
	return handler
}

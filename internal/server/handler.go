// Package server implements the HTTP surface of the concordance service:
// decision management, text ingestion, full-text retrieval, word/phrase/group
// search, and index statistics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/courttext/concordance/internal/search"
	"github.com/courttext/concordance/internal/store"
	"github.com/courttext/concordance/pkg/config"
	apperrors "github.com/courttext/concordance/pkg/errors"
	"github.com/courttext/concordance/pkg/logger"
)

// SearchEngine answers word, phrase, and group queries.
type SearchEngine interface {
	SearchWord(ctx context.Context, decisionID int64, rawQuery string, before, after, max int) ([]search.Hit, error)
	SearchPhrase(ctx context.Context, decisionID int64, phrase string, before, after, max int) ([]search.Hit, error)
	GroupIndex(ctx context.Context, groupID, decisionID int64, limitPerWord int) ([]search.GroupWordIndex, error)
	ScanPhraseMatches(ctx context.Context, decisionID int64, phrase string) ([]store.Occurrence, error)
}

// Ingestor runs the indexing pipeline.
type Ingestor interface {
	Ingest(ctx context.Context, decisionID int64, text string) (store.ReindexStats, error)
}

// Repository is the record-management surface backing the handlers.
type Repository interface {
	CreateDecision(ctx context.Context, d store.Decision) (int64, error)
	GetDecision(ctx context.Context, decisionID int64) (*store.Decision, error)
	DeleteDecision(ctx context.Context, decisionID int64) error
	FullText(ctx context.Context, decisionID int64, from, to int) (string, error)
	WordIndex(ctx context.Context, decisionID int64, order store.WordOrder, limit int) ([]store.WordCount, error)
	Stats(ctx context.Context, decisionID int64) (store.ReindexStats, error)
	CreateGroup(ctx context.Context, name, description string) (int64, error)
	GetGroup(ctx context.Context, groupID int64) (*store.WordGroup, error)
	AddGroupWords(ctx context.Context, groupID int64, words []string) (int, error)
	CreatePhrase(ctx context.Context, p store.Phrase) (int64, error)
	GetPhrase(ctx context.Context, phraseID int64) (*store.Phrase, error)
	ReplacePhraseOccurrences(ctx context.Context, decisionID, phraseID int64, matches []store.Occurrence) error
	PhraseOccurrences(ctx context.Context, decisionID, phraseID int64) ([]store.Occurrence, error)
}

// Handler implements the service's HTTP endpoints.
type Handler struct {
	repo     Repository
	engine   SearchEngine
	ingestor Ingestor
	search   config.SearchConfig
	logger   *slog.Logger
}

// New creates a Handler.
func New(repo Repository, engine SearchEngine, ingestor Ingestor, searchCfg config.SearchConfig) *Handler {
	return &Handler{
		repo:     repo,
		engine:   engine,
		ingestor: ingestor,
		search:   searchCfg,
		logger:   slog.Default().With("component", "http-handler"),
	}
}

// ---------- Decisions ----------

// CreateDecision creates a decision metadata row.
func (h *Handler) CreateDecision(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CaseNumber   string `json:"case_number"`
		Title        string `json:"title"`
		CourtName    string `json:"court_name"`
		DecisionDate string `json:"decision_date"` // YYYY-MM-DD
		LanguageCode string `json:"language_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	d := store.Decision{
		CaseNumber:   req.CaseNumber,
		Title:        req.Title,
		CourtName:    req.CourtName,
		LanguageCode: req.LanguageCode,
	}
	if req.DecisionDate != "" {
		t, err := time.Parse("2006-01-02", req.DecisionDate)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "decision_date must be YYYY-MM-DD")
			return
		}
		d.DecisionDate = &t
	}

	id, err := h.repo.CreateDecision(r.Context(), d)
	if err != nil {
		h.handleError(w, r, err, "failed to create decision")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]int64{"decision_id": id})
}

// GetDecision returns a decision's metadata.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	d, err := h.repo.GetDecision(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err, "failed to fetch decision")
		return
	}
	h.writeJSON(w, http.StatusOK, d)
}

// DeleteDecision removes a decision and all its indexed content.
func (h *Handler) DeleteDecision(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.repo.DeleteDecision(r.Context(), id); err != nil {
		h.handleError(w, r, err, "failed to delete decision")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ---------- Ingest and text ----------

// IngestText accepts raw decision text (JSON {"text": ...} or text/plain
// body) and fully re-indexes the decision.
func (h *Handler) IngestText(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	text, err := readText(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.ingestor.Ingest(r.Context(), id, text)
	if err != nil {
		h.handleError(w, r, err, "indexing failed")
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func readText(r *http.Request) (string, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", errors.New("invalid JSON body")
		}
		return req.Text, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	return string(body), nil
}

// FullText returns the stored text of a decision, optionally restricted to
// an inclusive 1-based line range.
func (h *Handler) FullText(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	from := h.queryInt(r, "from", 1)
	to := h.queryInt(r, "to", 0)

	text, err := h.repo.FullText(r.Context(), id, from, to)
	if err != nil {
		h.handleError(w, r, err, "failed to fetch text")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, text)
}

// Words lists a decision's word index with counts, ordered alphabetically
// or by descending frequency.
func (h *Handler) Words(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	order := store.OrderAlpha
	if r.URL.Query().Get("order") == string(store.OrderFrequency) {
		order = store.OrderFrequency
	}
	limit := h.queryInt(r, "limit", h.search.WordListLimit)

	words, err := h.repo.WordIndex(r.Context(), id, order, limit)
	if err != nil {
		h.handleError(w, r, err, "failed to list words")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"words": words, "count": len(words)})
}

// Stats returns line, token, and unique-word counts for a decision.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	stats, err := h.repo.Stats(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err, "failed to compute stats")
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// ---------- Search ----------

// SearchWord finds occurrences of a word with context windows.
func (h *Handler) SearchWord(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	q := r.URL.Query().Get("q")
	before, after, max := h.windowParams(r)

	hits, err := h.engine.SearchWord(r.Context(), id, q, before, after, max)
	if err != nil {
		h.handleError(w, r, err, "word search failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"word":        strings.ToLower(strings.TrimSpace(q)),
		"occurrences": hits,
	})
}

// SearchPhrase finds literal phrase matches with context windows. Only the
// first match within a line is reported.
func (h *Handler) SearchPhrase(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	q := r.URL.Query().Get("q")
	before, after, max := h.windowParams(r)

	hits, err := h.engine.SearchPhrase(r.Context(), id, strings.TrimSpace(q), before, after, max)
	if err != nil {
		h.handleError(w, r, err, "phrase search failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"phrase":      strings.TrimSpace(q),
		"occurrences": hits,
	})
}

// ---------- Groups ----------

// CreateGroup creates a word group.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	id, err := h.repo.CreateGroup(r.Context(), req.Name, req.Description)
	if err != nil {
		h.handleError(w, r, err, "failed to create group")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]int64{"group_id": id})
}

// GetGroup returns a word group's metadata.
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	g, err := h.repo.GetGroup(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err, "failed to fetch group")
		return
	}
	h.writeJSON(w, http.StatusOK, g)
}

// AddGroupWords adds words to a group, creating missing word rows.
func (h *Handler) AddGroupWords(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Words []string `json:"words"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Words) == 0 {
		h.writeError(w, http.StatusBadRequest, "words is required")
		return
	}
	added, err := h.repo.AddGroupWords(r.Context(), id, req.Words)
	if err != nil {
		h.handleError(w, r, err, "failed to add group words")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "added": added})
}

// GroupIndex returns sampled occurrences of every group member within a
// decision, in membership order.
func (h *Handler) GroupIndex(w http.ResponseWriter, r *http.Request) {
	groupID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	decisionID, err := strconv.ParseInt(r.URL.Query().Get("decision_id"), 10, 64)
	if err != nil || decisionID < 1 {
		h.writeError(w, http.StatusBadRequest, "decision_id is required")
		return
	}
	limitPerWord := h.queryInt(r, "limit_per_word", h.search.GroupLimitPerWord)

	words, err := h.engine.GroupIndex(r.Context(), groupID, decisionID, limitPerWord)
	if err != nil {
		h.handleError(w, r, err, "group index failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"group_id":    groupID,
		"decision_id": decisionID,
		"words":       words,
	})
}

// ---------- Phrases ----------

// CreatePhrase registers a literal expression.
func (h *Handler) CreatePhrase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name"`
		Expression   string `json:"expression_text"`
		LanguageCode string `json:"language_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	id, err := h.repo.CreatePhrase(r.Context(), store.Phrase{
		Name:         req.Name,
		Expression:   req.Expression,
		LanguageCode: req.LanguageCode,
	})
	if err != nil {
		h.handleError(w, r, err, "failed to create phrase")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]int64{"phrase_id": id})
}

// ScanPhrase scans a decision for a registered phrase and replaces its
// stored occurrences with the fresh matches.
func (h *Handler) ScanPhrase(w http.ResponseWriter, r *http.Request) {
	phraseID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		DecisionID int64 `json:"decision_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DecisionID < 1 {
		h.writeError(w, http.StatusBadRequest, "decision_id is required")
		return
	}

	phrase, err := h.repo.GetPhrase(r.Context(), phraseID)
	if err != nil {
		h.handleError(w, r, err, "failed to fetch phrase")
		return
	}
	matches, err := h.engine.ScanPhraseMatches(r.Context(), req.DecisionID, phrase.Expression)
	if err != nil {
		h.handleError(w, r, err, "phrase scan failed")
		return
	}
	if err := h.repo.ReplacePhraseOccurrences(r.Context(), req.DecisionID, phraseID, matches); err != nil {
		h.handleError(w, r, err, "failed to store phrase occurrences")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"phrase_id":   phraseID,
		"decision_id": req.DecisionID,
		"matches":     len(matches),
	})
}

// PhraseOccurrences returns the stored matches of a phrase within a
// decision, as persisted by the most recent scan.
func (h *Handler) PhraseOccurrences(w http.ResponseWriter, r *http.Request) {
	phraseID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	decisionID, err := strconv.ParseInt(r.URL.Query().Get("decision_id"), 10, 64)
	if err != nil || decisionID < 1 {
		h.writeError(w, http.StatusBadRequest, "decision_id is required")
		return
	}
	occ, err := h.repo.PhraseOccurrences(r.Context(), decisionID, phraseID)
	if err != nil {
		h.handleError(w, r, err, "failed to fetch phrase occurrences")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"phrase_id":   phraseID,
		"decision_id": decisionID,
		"occurrences": occ,
	})
}

// ---------- Helpers ----------

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		h.writeError(w, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// windowParams reads before/after/max with documented defaults, clamping
// max to the configured ceiling.
func (h *Handler) windowParams(r *http.Request) (before, after, max int) {
	before = h.queryInt(r, "before", h.search.DefaultBefore)
	after = h.queryInt(r, "after", h.search.DefaultAfter)
	max = h.queryInt(r, "max", h.search.DefaultMax)
	if before < 0 {
		before = 0
	}
	if after < 0 {
		after = 0
	}
	if max < 1 {
		max = 1
	}
	if max > h.search.MaxResults {
		max = h.search.MaxResults
	}
	return before, after, max
}

// handleError maps a pipeline error to an HTTP response. Client errors carry
// the application message; server errors are logged and masked.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := apperrors.HTTPStatusCode(err)
	if status < http.StatusInternalServerError {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			h.writeError(w, status, appErr.Message)
			return
		}
		h.writeError(w, status, err.Error())
		return
	}
	logger.FromContext(r.Context()).Error(fallback,
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	h.writeError(w, status, fallback)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

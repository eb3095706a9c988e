package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/courttext/concordance/internal/search"
	"github.com/courttext/concordance/internal/store"
	"github.com/courttext/concordance/pkg/config"
	apperrors "github.com/courttext/concordance/pkg/errors"
	"github.com/courttext/concordance/pkg/health"
)

type fakeRepo struct {
	decisions map[int64]*store.Decision
	nextID    int64
	deleted   []int64
	words     []store.WordCount
	fullText  string
	groupAdds map[int64][]string
	phrases   map[int64]*store.Phrase
	replaced  []store.Occurrence
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		decisions: make(map[int64]*store.Decision),
		nextID:    1,
		groupAdds: make(map[int64][]string),
		phrases:   make(map[int64]*store.Phrase),
	}
}

func (f *fakeRepo) CreateDecision(_ context.Context, d store.Decision) (int64, error) {
	id := f.nextID
	f.nextID++
	d.ID = id
	f.decisions[id] = &d
	return id, nil
}

func (f *fakeRepo) GetDecision(_ context.Context, id int64) (*store.Decision, error) {
	d, ok := f.decisions[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotFound, 404, "decision %d not found", id)
	}
	return d, nil
}

func (f *fakeRepo) DeleteDecision(_ context.Context, id int64) error {
	if _, ok := f.decisions[id]; !ok {
		return apperrors.Newf(apperrors.ErrNotFound, 404, "decision %d not found", id)
	}
	delete(f.decisions, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRepo) FullText(_ context.Context, id int64, from, to int) (string, error) {
	if _, ok := f.decisions[id]; !ok {
		return "", apperrors.Newf(apperrors.ErrNotFound, 404, "decision %d not found", id)
	}
	return f.fullText, nil
}

func (f *fakeRepo) WordIndex(_ context.Context, id int64, order store.WordOrder, limit int) ([]store.WordCount, error) {
	return f.words, nil
}

func (f *fakeRepo) Stats(_ context.Context, id int64) (store.ReindexStats, error) {
	if _, ok := f.decisions[id]; !ok {
		return store.ReindexStats{}, apperrors.Newf(apperrors.ErrNotFound, 404, "decision %d not found", id)
	}
	return store.ReindexStats{Lines: 10, UniqueWords: 42, Tokens: 99}, nil
}

func (f *fakeRepo) CreateGroup(_ context.Context, name, description string) (int64, error) {
	return 77, nil
}

func (f *fakeRepo) GetGroup(_ context.Context, groupID int64) (*store.WordGroup, error) {
	return &store.WordGroup{ID: groupID, Name: "test-group"}, nil
}

func (f *fakeRepo) AddGroupWords(_ context.Context, groupID int64, words []string) (int, error) {
	f.groupAdds[groupID] = append(f.groupAdds[groupID], words...)
	return len(words), nil
}

func (f *fakeRepo) CreatePhrase(_ context.Context, p store.Phrase) (int64, error) {
	if strings.TrimSpace(p.Expression) == "" {
		return 0, apperrors.New(apperrors.ErrInvalidQuery, 400, "expression_text must not be blank")
	}
	id := int64(len(f.phrases) + 1)
	p.ID = id
	f.phrases[id] = &p
	return id, nil
}

func (f *fakeRepo) GetPhrase(_ context.Context, id int64) (*store.Phrase, error) {
	p, ok := f.phrases[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotFound, 404, "phrase %d not found", id)
	}
	return p, nil
}

func (f *fakeRepo) ReplacePhraseOccurrences(_ context.Context, decisionID, phraseID int64, matches []store.Occurrence) error {
	f.replaced = matches
	return nil
}

func (f *fakeRepo) PhraseOccurrences(_ context.Context, decisionID, phraseID int64) ([]store.Occurrence, error) {
	return f.replaced, nil
}

type fakeEngine struct {
	hits      []search.Hit
	groupIdx  []search.GroupWordIndex
	matches   []store.Occurrence
	lastQuery string
	lastMax   int
}

func (f *fakeEngine) SearchWord(_ context.Context, decisionID int64, q string, before, after, max int) ([]search.Hit, error) {
	f.lastQuery = q
	f.lastMax = max
	if strings.TrimSpace(q) == "" {
		return nil, apperrors.New(apperrors.ErrInvalidQuery, 400, "query is empty after normalization")
	}
	return f.hits, nil
}

func (f *fakeEngine) SearchPhrase(_ context.Context, decisionID int64, phrase string, before, after, max int) ([]search.Hit, error) {
	f.lastQuery = phrase
	if phrase == "" {
		return nil, apperrors.New(apperrors.ErrInvalidQuery, 400, "phrase is empty")
	}
	return f.hits, nil
}

func (f *fakeEngine) GroupIndex(_ context.Context, groupID, decisionID int64, limitPerWord int) ([]search.GroupWordIndex, error) {
	return f.groupIdx, nil
}

func (f *fakeEngine) ScanPhraseMatches(_ context.Context, decisionID int64, phrase string) ([]store.Occurrence, error) {
	return f.matches, nil
}

type fakeIngestor struct {
	lastText string
	stats    store.ReindexStats
	err      error
}

func (f *fakeIngestor) Ingest(_ context.Context, decisionID int64, text string) (store.ReindexStats, error) {
	if f.err != nil {
		return store.ReindexStats{}, f.err
	}
	f.lastText = text
	return f.stats, nil
}

func testServer(repo Repository, engine SearchEngine, ingestor Ingestor) *httptest.Server {
	cfg := config.SearchConfig{
		DefaultBefore:     2,
		DefaultAfter:      2,
		DefaultMax:        100,
		MaxResults:        1000,
		GroupLimitPerWord: 5,
		WordListLimit:     1000,
	}
	h := New(repo, engine, ingestor, cfg)
	router := NewRouter(h, health.NewChecker(), nil, 10*time.Second)
	return httptest.NewServer(router)
}

func TestCreateAndGetDecision(t *testing.T) {
	repo := newFakeRepo()
	srv := testServer(repo, &fakeEngine{}, &fakeIngestor{})
	defer srv.Close()

	body := `{"case_number":"123/45","title":"A v. B","decision_date":"2024-03-15"}`
	resp, err := http.Post(srv.URL+"/api/v1/decisions", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created struct {
		DecisionID int64 `json:"decision_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	getResp, err := http.Get(srv.URL + "/api/v1/decisions/1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", getResp.StatusCode)
	}
}

func TestCreateDecisionBadDate(t *testing.T) {
	srv := testServer(newFakeRepo(), &fakeEngine{}, &fakeIngestor{})
	defer srv.Close()

	body := `{"case_number":"1","decision_date":"15/03/2024"}`
	resp, err := http.Post(srv.URL+"/api/v1/decisions", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetDecisionNotFound(t *testing.T) {
	srv := testServer(newFakeRepo(), &fakeEngine{}, &fakeIngestor{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/decisions/999")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestIngestTextJSONBody(t *testing.T) {
	ingestor := &fakeIngestor{stats: store.ReindexStats{Lines: 3, UniqueWords: 5, Tokens: 8}}
	srv := testServer(newFakeRepo(), &fakeEngine{}, ingestor)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/decisions/1/text",
		strings.NewReader(`{"text":"line one\nline two"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ingestor.lastText != "line one\nline two" {
		t.Errorf("unexpected ingested text %q", ingestor.lastText)
	}

	var stats store.ReindexStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if stats.Tokens != 8 {
		t.Errorf("expected 8 tokens, got %d", stats.Tokens)
	}
}

func TestIngestTextPlainBody(t *testing.T) {
	ingestor := &fakeIngestor{}
	srv := testServer(newFakeRepo(), &fakeEngine{}, ingestor)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/decisions/1/text",
		strings.NewReader("raw plain text"))
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ingestor.lastText != "raw plain text" {
		t.Errorf("unexpected ingested text %q", ingestor.lastText)
	}
}

func TestIngestTextValidationError(t *testing.T) {
	ingestor := &fakeIngestor{err: apperrors.New(apperrors.ErrInvalidInput, 400, "text is required and must not be blank")}
	srv := testServer(newFakeRepo(), &fakeEngine{}, ingestor)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/decisions/1/text",
		strings.NewReader(`{"text":""}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestSearchWordDefaults(t *testing.T) {
	engine := &fakeEngine{hits: []search.Hit{{LineNo: 3, CharStart: 0, CharEnd: 5}}}
	srv := testServer(newFakeRepo(), engine, &fakeIngestor{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/decisions/1/search/word?q=court")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if engine.lastMax != 100 {
		t.Errorf("expected default max=100, got %d", engine.lastMax)
	}

	var body struct {
		Word        string       `json:"word"`
		Occurrences []search.Hit `json:"occurrences"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Word != "court" || len(body.Occurrences) != 1 {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestSearchWordMaxClamped(t *testing.T) {
	engine := &fakeEngine{}
	srv := testServer(newFakeRepo(), engine, &fakeIngestor{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/decisions/1/search/word?q=court&max=999999")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if engine.lastMax != 1000 {
		t.Errorf("expected max clamped to 1000, got %d", engine.lastMax)
	}
}

func TestSearchWordEmptyQuery(t *testing.T) {
	srv := testServer(newFakeRepo(), &fakeEngine{}, &fakeIngestor{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/decisions/1/search/word?q=")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestSearchPhraseEndpoint(t *testing.T) {
	engine := &fakeEngine{hits: []search.Hit{{LineNo: 2, CharStart: 4, CharEnd: 20}}}
	srv := testServer(newFakeRepo(), engine, &fakeIngestor{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/decisions/1/search/phrase?q=" +
		"in+accordance+with")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if engine.lastQuery != "in accordance with" {
		t.Errorf("unexpected phrase %q", engine.lastQuery)
	}
}

func TestGroupIndexRequiresDecisionID(t *testing.T) {
	srv := testServer(newFakeRepo(), &fakeEngine{}, &fakeIngestor{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/groups/1/index")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without decision_id, got %d", resp.StatusCode)
	}
}

func TestGroupIndexEndpoint(t *testing.T) {
	engine := &fakeEngine{groupIdx: []search.GroupWordIndex{
		{Word: "court", Samples: []search.Hit{}},
	}}
	srv := testServer(newFakeRepo(), engine, &fakeIngestor{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/groups/1/index?decision_id=7")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		GroupID    int64                   `json:"group_id"`
		DecisionID int64                   `json:"decision_id"`
		Words      []search.GroupWordIndex `json:"words"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.GroupID != 1 || body.DecisionID != 7 || len(body.Words) != 1 {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestAddGroupWords(t *testing.T) {
	repo := newFakeRepo()
	srv := testServer(repo, &fakeEngine{}, &fakeIngestor{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/groups/3/words", "application/json",
		strings.NewReader(`{"words":["Court","appeal"]}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(repo.groupAdds[3]) != 2 {
		t.Errorf("expected 2 words forwarded, got %v", repo.groupAdds[3])
	}
}

func TestScanPhraseEndpoint(t *testing.T) {
	repo := newFakeRepo()
	repo.phrases[5] = &store.Phrase{ID: 5, Expression: "burden of proof"}
	engine := &fakeEngine{matches: []store.Occurrence{
		{LineNo: 2, CharStart: 10, CharEnd: 25},
		{LineNo: 9, CharStart: 0, CharEnd: 15},
	}}
	srv := testServer(repo, engine, &fakeIngestor{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/phrases/5/scan", "application/json",
		strings.NewReader(`{"decision_id":7}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(repo.replaced) != 2 {
		t.Errorf("expected 2 occurrences stored, got %d", len(repo.replaced))
	}

	var body struct {
		Matches int `json:"matches"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Matches != 2 {
		t.Errorf("expected 2 matches reported, got %d", body.Matches)
	}
}

func TestPhraseOccurrencesEndpoint(t *testing.T) {
	repo := newFakeRepo()
	repo.replaced = []store.Occurrence{{LineNo: 2, CharStart: 10, CharEnd: 25}}
	srv := testServer(repo, &fakeEngine{}, &fakeIngestor{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/phrases/5/occurrences?decision_id=7")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Occurrences []store.Occurrence `json:"occurrences"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.Occurrences) != 1 || body.Occurrences[0].LineNo != 2 {
		t.Errorf("unexpected occurrences: %+v", body.Occurrences)
	}
}

func TestDeleteDecision(t *testing.T) {
	repo := newFakeRepo()
	repo.decisions[4] = &store.Decision{ID: 4}
	srv := testServer(repo, &fakeEngine{}, &fakeIngestor{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/decisions/4", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != 4 {
		t.Errorf("expected decision 4 deleted, got %v", repo.deleted)
	}
}

func TestFullTextPlainResponse(t *testing.T) {
	repo := newFakeRepo()
	repo.decisions[2] = &store.Decision{ID: 2}
	repo.fullText = "first line\nsecond line"
	srv := testServer(repo, &fakeEngine{}, &fakeIngestor{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/decisions/2/text")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("expected text/plain, got %s", ct)
	}
}

func TestInvalidPathID(t *testing.T) {
	srv := testServer(newFakeRepo(), &fakeEngine{}, &fakeIngestor{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/decisions/abc")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for non-numeric id, got %d", resp.StatusCode)
	}
}

func TestHealthLive(t *testing.T) {
	srv := testServer(newFakeRepo(), &fakeEngine{}, &fakeIngestor{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/live")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	srv := testServer(newFakeRepo(), &fakeEngine{}, &fakeIngestor{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/health/live", nil)
	req.Header.Set("X-Request-ID", "test-id-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "test-id-123" {
		t.Errorf("expected request id echoed, got %q", got)
	}
}

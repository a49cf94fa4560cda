package search

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/Veraticus/interest-enricher/internal/model"
)

// MockClient is a scripted SearchClient for tests and dry runs.
// Responses are keyed by the lowercased, trimmed term.
type MockClient struct {
	results  map[string][]model.Candidate
	failures map[string][]error
	calls    map[string]int
	onSearch func(req model.SearchRequest)
	history  []model.SearchRequest
	mu       sync.Mutex
}

// NewMockClient creates an empty scripted client. Unknown terms return no candidates.
func NewMockClient() *MockClient {
	return &MockClient{
		results:  make(map[string][]model.Candidate),
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

func mockKey(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

// SetResult scripts the candidates returned for term.
func (m *MockClient) SetResult(term string, candidates ...model.Candidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[mockKey(term)] = candidates
}

// FailNext queues errors returned by the next calls for term, in order.
func (m *MockClient) FailNext(term string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := mockKey(term)
	m.failures[k] = append(m.failures[k], errs...)
}

// Search implements service.SearchClient.
func (m *MockClient) Search(ctx context.Context, req model.SearchRequest) (*model.SearchResult, error) {
	if hook := m.hook(); hook != nil {
		hook(req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := mockKey(req.Term)
	m.calls[k]++
	m.history = append(m.history, req)

	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "context done", Err: err}
	}

	if queued := m.failures[k]; len(queued) > 0 {
		err := queued[0]
		m.failures[k] = queued[1:]
		return nil, err
	}

	candidates := make([]model.Candidate, len(m.results[k]))
	copy(candidates, m.results[k])
	return &model.SearchResult{Candidates: candidates, StatusCode: http.StatusOK}, nil
}

func (m *MockClient) hook() func(model.SearchRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.onSearch
}

// OnSearch registers fn to run before every call is answered.
func (m *MockClient) OnSearch(fn func(req model.SearchRequest)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSearch = fn
}

// Calls returns how many times term was searched.
func (m *MockClient) Calls(term string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[mockKey(term)]
}

// TotalCalls returns the number of searches across all terms.
func (m *MockClient) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// History returns a copy of every request received.
func (m *MockClient) History() []model.SearchRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.SearchRequest, len(m.history))
	copy(out, m.history)
	return out
}

// Package testutil provides a scriptable fake of the remote analysis API.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/Sternrassler/eld-analysis/pkg/analysis"
)

// MockResponse is one scripted reply.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockAPI serves GET /origins/{tenant}/companies/{id}/analysis. Each
// company replays its script in order and repeats the last entry once the
// script is used up. Unscripted companies get an empty document.
type MockAPI struct {
	server *httptest.Server

	mu         sync.Mutex
	scripts    map[string][]MockResponse
	calls      map[string]int
	lastHeader http.Header
}

// NewMockAPI starts the server.
func NewMockAPI() *MockAPI {
	m := &MockAPI{
		scripts: make(map[string][]MockResponse),
		calls:   make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /origins/{tenant}/companies/{id}/analysis", m.serve)
	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the base URL to configure the client with.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Script sets the replies for one company.
func (m *MockAPI) Script(tenant, companyID string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[tenant+"/"+companyID] = responses
}

// Calls returns how often a company was fetched.
func (m *MockAPI) Calls(tenant, companyID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[tenant+"/"+companyID]
}

// TotalCalls returns the number of fetches across all companies.
func (m *MockAPI) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// LastHeader returns the headers of the most recent request.
func (m *MockAPI) LastHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeader
}

func (m *MockAPI) serve(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("tenant") + "/" + r.PathValue("id")

	m.mu.Lock()
	n := m.calls[key]
	m.calls[key] = n + 1
	m.lastHeader = r.Header.Clone()
	script := m.scripts[key]
	m.mu.Unlock()

	resp := OK(analysis.Document{CompanyID: r.PathValue("id")})
	if len(script) > 0 {
		resp = script[min(n, len(script)-1)]
	}

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write([]byte(resp.Body))
}

// OK returns a 200 reply carrying doc.
func OK(doc analysis.Document) MockResponse {
	body, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return MockResponse{StatusCode: http.StatusOK, Body: string(body)}
}

// ServerError returns a 500 reply.
func ServerError() MockResponse {
	return MockResponse{StatusCode: http.StatusInternalServerError, Body: `{"error":"internal server error"}`}
}

// NotFound returns a 404 reply.
func NotFound() MockResponse {
	return MockResponse{StatusCode: http.StatusNotFound, Body: `{"error":"company not found"}`}
}

// Slow returns a 200 reply delayed by d.
func Slow(doc analysis.Document, d time.Duration) MockResponse {
	resp := OK(doc)
	resp.Delay = d
	return resp
}

// Logs builds a document with one driver carrying the given error messages.
func Logs(companyID, driverID string, messages ...string) analysis.Document {
	logs := make([]analysis.LogRecord, 0, len(messages))
	for _, msg := range messages {
		logs = append(logs, analysis.LogRecord{"errorMessage": msg})
	}
	return analysis.Document{
		CompanyID:     companyID,
		DriverRecords: []analysis.DriverRecord{{DriverID: driverID, Logs: logs}},
	}
}

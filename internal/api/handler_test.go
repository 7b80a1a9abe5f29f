package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nebulatel/handoff/internal/domain"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusNotFound, "session not found")

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["error"] != "session not found" {
		t.Errorf("Expected error message, got %v", got["error"])
	}
}

// stubRepo serves canned archives for handler tests.
type stubRepo struct {
	archives []domain.Archive
	err      error
}

func (s *stubRepo) SaveArchive(ctx context.Context, archive domain.Archive) error { return s.err }

func (s *stubRepo) ListArchives(ctx context.Context) ([]domain.Archive, error) {
	return s.archives, s.err
}

func (s *stubRepo) GetArchive(ctx context.Context, id string) (*domain.Archive, error) {
	if s.err != nil {
		return nil, s.err
	}
	for i := range s.archives {
		if s.archives[i].ID == id {
			return &s.archives[i], nil
		}
	}
	return nil, nil
}

func (s *stubRepo) Ping(ctx context.Context) error { return s.err }
func (s *stubRepo) Close() error                   { return nil }

func historyRouter(repo *stubRepo) chi.Router {
	r := chi.NewRouter()
	NewHistoryHandler(repo).RegisterRoutes(r)
	return r
}

func TestHistoryList(t *testing.T) {
	now := time.Now()
	repo := &stubRepo{archives: []domain.Archive{
		{ID: "alice", ClientID: "alice", StartedAt: now.Add(-time.Hour), EndedAt: now, Status: "agent_closed"},
		{ID: "bob", ClientID: "bob", StartedAt: now.Add(-2 * time.Hour), EndedAt: now, Status: "inactivity"},
	}}

	w := httptest.NewRecorder()
	historyRouter(repo).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var got []domain.Archive
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 archives, got %d", len(got))
	}
	if got[0].ClientID != "alice" {
		t.Errorf("Expected alice first, got %q", got[0].ClientID)
	}
}

func TestHistoryListEmpty(t *testing.T) {
	w := httptest.NewRecorder()
	historyRouter(&stubRepo{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	// An empty repository must serialize as a JSON array, not null.
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("Expected empty array, got %q", body)
	}
}

func TestHistoryListError(t *testing.T) {
	w := httptest.NewRecorder()
	repo := &stubRepo{err: errors.New("disk I/O error")}
	historyRouter(repo).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestHistoryGet(t *testing.T) {
	now := time.Now()
	repo := &stubRepo{archives: []domain.Archive{{
		ID:        "alice",
		ClientID:  "alice",
		StartedAt: now.Add(-time.Hour),
		EndedAt:   now,
		Status:    "agent_closed",
		Messages: []domain.Message{
			{Sender: domain.SenderCustomer, Content: "hello", Timestamp: now.Add(-time.Hour)},
			{Sender: domain.SenderBot, Content: "hi there", Timestamp: now.Add(-59 * time.Minute)},
		},
	}}}

	w := httptest.NewRecorder()
	historyRouter(repo).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history/alice", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var got domain.Archive
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.ID != "alice" {
		t.Errorf("Expected archive alice, got %q", got.ID)
	}
	if len(got.Messages) != 2 {
		t.Errorf("Expected 2 messages, got %d", len(got.Messages))
	}
}

func TestHistoryGetNotFound(t *testing.T) {
	w := httptest.NewRecorder()
	historyRouter(&stubRepo{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history/ghost", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", w.Code)
	}

	var got map[string]string
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["error"] != "session not found" {
		t.Errorf("Expected not-found error, got %v", got["error"])
	}
}

func TestHealthReady(t *testing.T) {
	r := chi.NewRouter()
	NewHealthHandler(&stubRepo{}).RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var got map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["status"] != "healthy" {
		t.Errorf("Expected healthy, got %v", got["status"])
	}
}

func TestHealthReadyDegraded(t *testing.T) {
	r := chi.NewRouter()
	NewHealthHandler(&stubRepo{err: errors.New("database is locked")}).RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", w.Code)
	}

	var got map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["status"] != "degraded" {
		t.Errorf("Expected degraded, got %v", got["status"])
	}
}

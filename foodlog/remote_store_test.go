// ABOUTME: Tests for the remote table client against an httptest backend.
// ABOUTME: Covers headers, row mapping, ordering, failures and handle reset.
package foodlog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

type countingTokens struct {
	n   atomic.Int64
	tok string
	err error
}

func (c *countingTokens) Token(ctx context.Context) (string, error) {
	c.n.Add(1)
	return c.tok, c.err
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	APIKey string
	Prefer string
	Body   map[string]any
}

func newTableServer(t *testing.T, handle func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			APIKey: r.Header.Get("apikey"),
			Prefer: r.Header.Get("Prefer"),
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()
		handle(w, r)
	}))
	t.Cleanup(server.Close)
	return server, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		out := make([]recordedRequest, len(reqs))
		copy(out, reqs)
		return out
	}
}

func TestRemoteStoreFetchLogsMapsAndOrders(t *testing.T) {
	server, requests := newTableServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]FoodLogRow{
			{ID: "1", UserID: "u1", LoggedAt: "2024-03-01T08:00:00.000Z", MealType: Breakfast, ItemName: "Tea", Emoji: "☕"},
			{ID: "2", UserID: "u1", LoggedAt: "2024-03-01T13:00:00+00:00", MealType: Lunch, ItemName: "Salad", Emoji: "🥗", IsCustom: true},
			{ID: "bad", UserID: "u1", LoggedAt: "yesterday", MealType: Lunch},
		})
	})
	tokens := &countingTokens{tok: "tok-1"}
	store := NewRemoteStore(RemoteConfig{BaseURL: server.URL, APIKey: "anon"}, tokens)

	logs, err := store.FetchLogs(context.Background(), UserIdentity{ID: "u1"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 valid rows, got %d", len(logs))
	}
	if logs[0].ID != "2" || logs[1].ID != "1" {
		t.Fatalf("expected newest first, got %s, %s", logs[0].ID, logs[1].ID)
	}
	if !logs[0].IsCustom || logs[0].Origin != OriginRemote || logs[0].MealType != Lunch {
		t.Fatalf("row mapping wrong: %+v", logs[0])
	}
	want := int64(1709298000000) // 2024-03-01T13:00:00Z
	if logs[0].Timestamp != want {
		t.Fatalf("timestamp = %d, want %d", logs[0].Timestamp, want)
	}

	reqs := requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	r := reqs[0]
	if r.Path != "/rest/v1/food_logs" || r.Auth != "Bearer tok-1" || r.APIKey != "anon" {
		t.Fatalf("unexpected request %+v", r)
	}
	if r.Query != "order=logged_at.desc&select=%2A&user_id=eq.u1" {
		t.Fatalf("unexpected query %q", r.Query)
	}
}

func TestRemoteStoreInsertLogSendsRowAndReturnsServerID(t *testing.T) {
	server, requests := newTableServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode([]FoodLogRow{{
			ID: "5c3d7a4e-2b1f-4f7e-9a51-0f3b3b1b2c3d", UserID: "u1", LoggedAt: "2024-03-01T08:15:00.000Z",
			MealType: Breakfast, ItemName: "Oats with Nuts", Emoji: "🥣",
		}})
	})
	store := NewRemoteStore(RemoteConfig{BaseURL: server.URL}, &countingTokens{tok: "tok"})

	entry := LogEntry{ID: "ignored", Timestamp: fixedNow.UnixMilli(), MealType: Breakfast, ItemName: "Oats with Nuts", Emoji: "🥣"}
	saved, err := store.InsertLog(context.Background(), entry, UserIdentity{ID: "u1"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if saved.ID != "5c3d7a4e-2b1f-4f7e-9a51-0f3b3b1b2c3d" || saved.Timestamp != entry.Timestamp {
		t.Fatalf("saved = %+v", saved)
	}

	r := requests()[0]
	if r.Method != http.MethodPost || r.Prefer != "return=representation" {
		t.Fatalf("unexpected request %+v", r)
	}
	if _, hasID := r.Body["id"]; hasID {
		t.Fatal("insert payload must not carry an id")
	}
	if r.Body["logged_at"] != "2024-03-01T08:15:00.000Z" || r.Body["user_id"] != "u1" || r.Body["meal_type"] != "breakfast" {
		t.Fatalf("payload = %+v", r.Body)
	}
}

func TestRemoteStoreFailuresAreTyped(t *testing.T) {
	status := http.StatusUnauthorized
	server, _ := newTableServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "JWT expired"})
	})
	store := NewRemoteStore(RemoteConfig{BaseURL: server.URL}, &countingTokens{tok: "tok"})
	ctx := context.Background()

	err := store.DeleteLog(ctx, "x")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	var re *RemoteError
	if !errors.As(err, &re) || re.Detail != "JWT expired" || re.Op != "deleteLog" {
		t.Fatalf("unexpected error detail %+v", re)
	}

	status = http.StatusInternalServerError
	if _, err := store.InsertUserItem(ctx, UserIdentity{ID: "u1"}, Lunch, "Dal", "🍛"); !errors.Is(err, ErrServerError) {
		t.Fatalf("expected ErrServerError, got %v", err)
	}

	status = http.StatusConflict
	if err := store.UpdateUserItemName(ctx, "x", "y"); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestRemoteStoreNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	store := NewRemoteStore(RemoteConfig{BaseURL: url}, &countingTokens{tok: "tok"})
	if _, err := store.FetchUserItems(context.Background(), UserIdentity{ID: "u1"}); !errors.Is(err, ErrNetworkFailure) {
		t.Fatalf("expected ErrNetworkFailure, got %v", err)
	}
}

func TestRemoteStoreRequiresTokenAndConfig(t *testing.T) {
	ctx := context.Background()

	unconfigured := NewRemoteStore(RemoteConfig{}, &countingTokens{tok: "tok"})
	if _, err := unconfigured.FetchLogs(ctx, UserIdentity{ID: "u1"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	server, requests := newTableServer(t, func(w http.ResponseWriter, r *http.Request) {})
	signedOut := NewRemoteStore(RemoteConfig{BaseURL: server.URL}, &countingTokens{})
	if _, err := signedOut.FetchLogs(ctx, UserIdentity{ID: "u1"}); !errors.Is(err, ErrSignedOut) {
		t.Fatalf("expected ErrSignedOut, got %v", err)
	}
	if len(requests()) != 0 {
		t.Fatal("no request may be sent without a token")
	}
}

func TestRemoteStoreFetchesFreshTokenPerRequest(t *testing.T) {
	server, requests := newTableServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	})
	tokens := &countingTokens{tok: "tok"}
	store := NewRemoteStore(RemoteConfig{BaseURL: server.URL}, tokens)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.FetchUserItems(ctx, UserIdentity{ID: "u1"}); err != nil {
			t.Fatalf("fetch: %v", err)
		}
	}
	if tokens.n.Load() != 3 {
		t.Fatalf("expected a token lookup per request, got %d", tokens.n.Load())
	}

	first := store.client()
	store.Reset()
	if store.client() == first {
		t.Fatal("Reset should drop the cached handle")
	}
	if len(requests()) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(requests()))
	}
}

func TestRemoteStoreHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	status := NewRemoteStore(RemoteConfig{BaseURL: server.URL}, nil).Health(context.Background())
	if !status.OK || status.Latency <= 0 {
		t.Fatalf("unexpected status %+v", status)
	}
	if NewRemoteStore(RemoteConfig{}, nil).Health(context.Background()).OK {
		t.Fatal("unconfigured store cannot be healthy")
	}
}

// ABOUTME: Tests for appcli application layer.
// ABOUTME: Covers local persistence, remote sign-in wiring and flag handling.

package appcli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/bhavik/food-log/foodlog"
)

// fakeBackend serves just enough of the token and table endpoints for one user.
type fakeBackend struct {
	mu     sync.Mutex
	logs   []foodlog.FoodLogRow
	auths  []string
	server *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	f := &fakeBackend{
		logs: []foodlog.FoodLogRow{{
			ID: "remote-1", UserID: "u1", LoggedAt: "2024-03-01T07:00:00.000Z",
			MealType: foodlog.Breakfast, ItemName: "Poha", Emoji: "🍚",
		}},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-u1",
			"refresh_token": "refresh-u1",
			"expires_in":    3600,
			"user":          map[string]string{"id": "u1", "email": "a@example.com"},
		})
	})
	mux.HandleFunc("/rest/v1/food_logs", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.auths = append(f.auths, r.Header.Get("Authorization"))
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(f.logs)
		case http.MethodPost:
			var row foodlog.FoodLogRow
			_ = json.NewDecoder(r.Body).Decode(&row)
			row.ID = "remote-" + string(rune('0'+len(f.logs)+1))
			f.logs = append([]foodlog.FoodLogRow{row}, f.logs...)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode([]foodlog.FoodLogRow{row})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/rest/v1/user_food_items", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func TestLocalAppPersistsAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "foodlog.db")

	app, err := NewApp(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	app.Start(ctx)
	if app.Coordinator().Mode() != foodlog.ModeLocal {
		t.Fatalf("expected local mode without a remote")
	}
	if _, err := app.Coordinator().AddLog(ctx, "Tea", foodlog.Snack, "☕", false); err != nil {
		t.Fatalf("add log: %v", err)
	}
	if err := app.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewApp(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() {
		if closeErr := reopened.Close(); closeErr != nil {
			t.Errorf("close app: %v", closeErr)
		}
	}()
	reopened.Start(ctx)
	logs := reopened.Coordinator().Logs()
	if len(logs) != 1 || logs[0].ItemName != "Tea" {
		t.Fatalf("expected persisted log, got %+v", logs)
	}

	st := reopened.Status(ctx)
	if st.RemoteConfigured || st.Health != nil || st.Logs != 1 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestRemoteLoginSwitchesModeAndBack(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend(t)

	var mu sync.Mutex
	var saved []bool
	app, err := NewApp(Options{
		DBPath:    filepath.Join(t.TempDir(), "foodlog.db"),
		RemoteURL: backend.server.URL,
		OnCredentials: func(_ foodlog.Credentials, signedIn bool) {
			mu.Lock()
			saved = append(saved, signedIn)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer func() { _ = app.Close() }()
	app.Start(ctx)

	if _, err := app.Coordinator().AddLog(ctx, "Local Tea", foodlog.Snack, "☕", false); err != nil {
		t.Fatalf("add local: %v", err)
	}

	user, err := app.Login(ctx, "a@example.com", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != "u1" {
		t.Fatalf("unexpected user %+v", user)
	}
	coord := app.Coordinator()
	if coord.Mode() != foodlog.ModeRemote || coord.Syncing() {
		t.Fatalf("expected settled remote mode")
	}
	logs := coord.Logs()
	if len(logs) != 1 || logs[0].ID != "remote-1" {
		t.Fatalf("expected remote logs, got %+v", logs)
	}

	entry, err := coord.AddLog(ctx, "Dosa", foodlog.Breakfast, "🥞", false)
	if err != nil {
		t.Fatalf("add remote: %v", err)
	}
	if !strings.HasPrefix(entry.ID, "remote-") || entry.Origin != foodlog.OriginRemote {
		t.Fatalf("expected server-assigned entry, got %+v", entry)
	}
	backend.mu.Lock()
	for _, auth := range backend.auths {
		if auth != "Bearer access-u1" {
			t.Errorf("unexpected Authorization header %q", auth)
		}
	}
	backend.mu.Unlock()

	app.Logout()
	if coord.Mode() != foodlog.ModeLocal {
		t.Fatal("expected local mode after logout")
	}
	logs = coord.Logs()
	if len(logs) != 1 || logs[0].ItemName != "Local Tea" {
		t.Fatalf("local logs should be restored, got %+v", logs)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(saved) != 2 || !saved[0] || saved[1] {
		t.Fatalf("credential hook calls = %v", saved)
	}
}

func TestRestoredCredentialsStartInRemoteMode(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend(t)

	app, err := NewApp(Options{
		DBPath:    filepath.Join(t.TempDir(), "foodlog.db"),
		RemoteURL: backend.server.URL,
		Credentials: &foodlog.Credentials{
			User:         foodlog.UserIdentity{ID: "u1", Email: "a@example.com"},
			AccessToken:  "access-u1",
			RefreshToken: "refresh-u1",
			Expires:      time.Now().Add(time.Hour),
		},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer func() { _ = app.Close() }()
	app.Start(ctx)

	st := app.Status(ctx)
	if st.Mode != foodlog.ModeRemote || !st.SignedIn || st.User.ID != "u1" {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.Logs != 1 {
		t.Fatalf("expected remote logs loaded at start, got %d", st.Logs)
	}
	if st.Health == nil || st.Health.OK {
		t.Fatalf("fake backend has no /healthz, got %+v", st.Health)
	}
}

func TestNormalizeOptions(t *testing.T) {
	if _, err := NewApp(Options{}); err == nil {
		t.Fatal("expected error without a db path")
	}
	opts, err := normalizeOptions(Options{DBPath: filepath.Join(t.TempDir(), "x.db"), RemoteURL: "http://r"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if opts.AuthURL != "http://r" || opts.Logger == nil {
		t.Fatalf("unexpected defaults %+v", opts)
	}
}

func TestRuntimeConfigFlags(t *testing.T) {
	base := RuntimeConfig{DBPath: "default.db", RemoteURL: "http://config"}
	var got RuntimeConfig
	cmd := &cli.Command{
		Name:  "test",
		Flags: base.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			got = base.FromCommand(c)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), []string{"test", "--db", "override.db", "--timeout", "5s"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got.DBPath != "override.db" || got.RemoteURL != "http://config" || got.Timeout != 5*time.Second {
		t.Fatalf("unexpected config %+v", got)
	}
	opts := got.Options()
	if opts.DBPath != "override.db" || opts.RemoteURL != "http://config" {
		t.Fatalf("unexpected options %+v", opts)
	}
}

// ABOUTME: Shared runtime glue for the food log binaries.
// ABOUTME: Builds the local store, remote store, session and coordinator from Options.
package appcli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/bhavik/food-log/foodlog"
)

// Options wires shared CLI runtime bits.
type Options struct {
	DBPath    string
	RemoteURL string
	AuthURL   string // defaults to RemoteURL
	APIKey    string
	Timeout   time.Duration
	NoticeTTL time.Duration

	// Credentials restores a saved session at startup.
	Credentials *foodlog.Credentials
	// OnCredentials is called whenever tokens are issued, rotated or dropped.
	OnCredentials func(creds foodlog.Credentials, signedIn bool)

	Logger *log.Logger
	Now    func() time.Time
}

// App glues a CLI to the foodlog library.
type App struct {
	opts    Options
	local   *foodlog.LocalStore
	remote  *foodlog.RemoteStore
	session *foodlog.Session
	coord   *foodlog.Coordinator

	unsubReset func()
}

// NewApp opens the local database and wires the remaining components. It does
// not touch the network; call Start for that.
func NewApp(opts Options) (*App, error) {
	normalized, err := normalizeOptions(opts)
	if err != nil {
		return nil, err
	}

	local, err := foodlog.OpenLocalStore(normalized.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	local.SetLogger(normalized.Logger)

	session := foodlog.NewSession(foodlog.AuthConfig{
		BaseURL: normalized.AuthURL,
		APIKey:  normalized.APIKey,
		Timeout: normalized.Timeout,
	})
	session.SetLogger(normalized.Logger)
	if normalized.OnCredentials != nil {
		session.OnCredentials(normalized.OnCredentials)
	}

	remote := foodlog.NewRemoteStore(foodlog.RemoteConfig{
		BaseURL: normalized.RemoteURL,
		APIKey:  normalized.APIKey,
		Timeout: normalized.Timeout,
	}, session)
	remote.SetLogger(normalized.Logger)

	// The remote handle is derived from the identity; drop it on every change.
	unsubReset := session.Subscribe(func(foodlog.UserIdentity, bool) { remote.Reset() })

	var backend foodlog.RemoteBackend
	if remote.Configured() {
		backend = remote
	}
	coord := foodlog.NewCoordinator(local, backend, session, foodlog.Options{
		Logger:    normalized.Logger,
		Now:       normalized.Now,
		NoticeTTL: normalized.NoticeTTL,
	})

	return &App{
		opts:       normalized,
		local:      local,
		remote:     remote,
		session:    session,
		coord:      coord,
		unsubReset: unsubReset,
	}, nil
}

// Start restores saved credentials, loads the local slots and, when signed
// in, waits for the remote collections to arrive.
func (a *App) Start(ctx context.Context) {
	if a.opts.Credentials != nil {
		a.session.Restore(*a.opts.Credentials)
	}
	a.coord.Start(ctx)
	a.coord.Wait()
}

// Close releases resources.
func (a *App) Close() error {
	a.coord.Close()
	if a.unsubReset != nil {
		a.unsubReset()
	}
	return a.local.Close()
}

// Coordinator exposes the session/mode coordinator.
func (a *App) Coordinator() *foodlog.Coordinator { return a.coord }

// Session exposes the identity bridge.
func (a *App) Session() *foodlog.Session { return a.session }

// Remote exposes the remote store.
func (a *App) Remote() *foodlog.RemoteStore { return a.remote }

// DBPath is the resolved local database path.
func (a *App) DBPath() string { return a.opts.DBPath }

// Login signs in and waits for the remote collections to load.
func (a *App) Login(ctx context.Context, email, password string) (foodlog.UserIdentity, error) {
	user, err := a.session.SignIn(ctx, email, password)
	if err != nil {
		return foodlog.UserIdentity{}, err
	}
	a.coord.Wait()
	return user, nil
}

// Signup registers an account, signs it in and waits for the remote load.
func (a *App) Signup(ctx context.Context, email, password string) (foodlog.UserIdentity, error) {
	user, err := a.session.SignUp(ctx, email, password)
	if err != nil {
		return foodlog.UserIdentity{}, err
	}
	a.coord.Wait()
	return user, nil
}

// Logout drops the session; the coordinator falls back to local data.
func (a *App) Logout() {
	a.session.SignOut()
	a.coord.Wait()
}

// Status summarizes the runtime for display.
type Status struct {
	Mode             foodlog.Mode
	User             foodlog.UserIdentity
	SignedIn         bool
	RemoteConfigured bool
	Logs             int
	Health           *foodlog.HealthStatus
}

// Status reports mode and identity, pinging the backend when it is configured.
func (a *App) Status(ctx context.Context) Status {
	snap := a.coord.Snapshot()
	st := Status{
		Mode:             snap.Mode,
		User:             snap.Identity,
		SignedIn:         snap.SignedIn,
		RemoteConfigured: a.remote.Configured(),
		Logs:             len(snap.Logs),
	}
	if st.RemoteConfigured {
		h := a.remote.Health(ctx)
		st.Health = &h
	}
	return st
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o750)
}

func normalizeOptions(opts Options) (Options, error) {
	if opts.DBPath == "" {
		return opts, errors.New("db path required")
	}
	if opts.AuthURL == "" {
		opts.AuthURL = opts.RemoteURL
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if err := ensureDir(opts.DBPath); err != nil {
		return opts, err
	}
	return opts, nil
}

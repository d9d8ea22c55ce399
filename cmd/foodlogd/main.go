// ABOUTME: foodlogd is a development backend for the food log client.
// ABOUTME: It serves an email/password token endpoint and the two per-user tables.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/urfave/cli/v3"

	"github.com/bhavik/food-log/cmd/foodlogd/pbmigrations"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}

	if err := newRootCommand(LoadConfig()).Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newRootCommand(cfg Config) *cli.Command {
	return &cli.Command{
		Name:  "foodlogd",
		Usage: "Development backend for foodlog remote mode",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: cfg.Addr, Usage: "HTTP listen address"},
			&cli.StringFlag{Name: "backend", Value: cfg.Backend, Usage: "storage backend: pocketbase or sqlite"},
			&cli.StringFlag{Name: "pb-dir", Value: cfg.PBDir, Usage: "PocketBase data directory"},
			&cli.StringFlag{Name: "db", Value: cfg.DBPath, Usage: "SQLite database path (sqlite backend)"},
			&cli.StringFlag{Name: "jwt-secret", Value: cfg.JWTSecret, Usage: "HS256 signing secret (random per run if empty)"},
			&cli.StringFlag{Name: "api-key", Value: cfg.APIKey, Usage: "required apikey header value (empty disables the check)"},
			&cli.DurationFlag{Name: "token-ttl", Value: cfg.TokenTTL, Usage: "access token lifetime"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.Addr = c.String("addr")
			cfg.Backend = c.String("backend")
			cfg.PBDir = c.String("pb-dir")
			cfg.DBPath = c.String("db")
			cfg.JWTSecret = c.String("jwt-secret")
			cfg.APIKey = c.String("api-key")
			cfg.TokenTTL = c.Duration("token-ttl")
			return runServer(ctx, cfg)
		},
	}
}

func runServer(ctx context.Context, cfg Config) error {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = randHex(32)
		log.Printf("FOODLOGD_JWT_SECRET not set; using a random secret, tokens will not survive a restart")
	}

	switch cfg.Backend {
	case BackendPocketBase:
		return runPocketBase(ctx, cfg)
	case BackendSQLite:
		return runSQLite(ctx, cfg)
	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// runPocketBase serves foodlogd routes from a PocketBase app.
func runPocketBase(ctx context.Context, cfg Config) error {
	app := pocketbase.NewWithConfig(pocketbase.Config{DefaultDataDir: cfg.PBDir})
	srv := NewServer(cfg, NewPBStore(app))

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		if err := pbmigrations.EnsureCollections(se.App); err != nil {
			return err
		}
		srv.registerRoutes(se.Router)
		srv.startCleanupRoutine(ctx)
		log.Printf("foodlogd listening on %s (pocketbase %s)", cfg.Addr, cfg.PBDir)
		return se.Next()
	})

	app.RootCmd.SetArgs([]string{"serve", "--http=" + cfg.Addr})
	return app.Start()
}

// runSQLite serves foodlogd from a plain http.Server over gorm and goose.
func runSQLite(ctx context.Context, cfg Config) error {
	db, err := OpenDB(cfg.DBPath)
	if err != nil {
		return err
	}
	if err := RunMigrations(ctx, db); err != nil {
		return err
	}
	repo := NewRepository(db)
	defer func() {
		if err := repo.Close(); err != nil {
			log.Printf("close db: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := NewServer(cfg, repo)
	srv.startCleanupRoutine(ctx)

	httpSrv := &http.Server{Addr: cfg.Addr, Handler: srv.routes(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("foodlogd listening on %s (db %s)", cfg.Addr, cfg.DBPath)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

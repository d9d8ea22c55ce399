// ABOUTME: Runtime configuration shared by the foodlog commands.
// ABOUTME: Flag values override defaults only when set on the command line.

package appcli

import (
	"time"

	"github.com/urfave/cli/v3"
)

// RuntimeConfig captures CLI flag inputs shared across binaries.
type RuntimeConfig struct {
	DBPath    string
	RemoteURL string
	AuthURL   string
	APIKey    string
	Timeout   time.Duration
}

// Flags returns the shared flags with the current values as defaults.
func (rc RuntimeConfig) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "db", Value: rc.DBPath, Usage: "path to local SQLite database"},
		&cli.StringFlag{Name: "remote", Value: rc.RemoteURL, Usage: "remote backend base URL (empty for local only)"},
		&cli.StringFlag{Name: "auth", Value: rc.AuthURL, Usage: "identity provider base URL (defaults to --remote)"},
		&cli.StringFlag{Name: "api-key", Value: rc.APIKey, Usage: "backend api key"},
		&cli.DurationFlag{Name: "timeout", Value: rc.Timeout, Usage: "remote request timeout"},
	}
}

// FromCommand overlays flag values that were set on the command line.
func (rc RuntimeConfig) FromCommand(c *cli.Command) RuntimeConfig {
	if c.IsSet("db") {
		rc.DBPath = c.String("db")
	}
	if c.IsSet("remote") {
		rc.RemoteURL = c.String("remote")
	}
	if c.IsSet("auth") {
		rc.AuthURL = c.String("auth")
	}
	if c.IsSet("api-key") {
		rc.APIKey = c.String("api-key")
	}
	if c.IsSet("timeout") {
		rc.Timeout = c.Duration("timeout")
	}
	return rc
}

// Options converts runtime config into app Options.
func (rc RuntimeConfig) Options() Options {
	return Options{
		DBPath:    rc.DBPath,
		RemoteURL: rc.RemoteURL,
		AuthURL:   rc.AuthURL,
		APIKey:    rc.APIKey,
		Timeout:   rc.Timeout,
	}
}

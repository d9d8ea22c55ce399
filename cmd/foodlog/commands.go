// ABOUTME: Subcommands of the foodlog CLI. Each one loads config, wires an
// ABOUTME: App for the duration of the call and prints results to the root writer.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/bhavik/food-log/cmd/internal/appcli"
	"github.com/bhavik/food-log/foodlog"
)

func defaultRuntime() appcli.RuntimeConfig {
	return appcli.RuntimeConfig{Timeout: 15 * time.Second}
}

// withApp builds an App from the saved config plus command-line overrides and
// keeps rotated credentials on disk.
func withApp(ctx context.Context, c *cli.Command, fn func(context.Context, *appcli.App, *Config) error) (err error) {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	rc := cfg.Runtime().FromCommand(c)

	opts := rc.Options()
	opts.Credentials = cfg.Credentials()
	opts.OnCredentials = func(creds foodlog.Credentials, signedIn bool) {
		cfg.SetCredentials(creds, signedIn)
		if err := SaveConfig(cfg); err != nil {
			log.Printf("save credentials: %v", err)
		}
	}

	app, err := appcli.NewApp(opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	app.Start(ctx)
	return fn(ctx, app, cfg)
}

func out(c *cli.Command) io.Writer {
	if w := c.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func mealFlag(usage string) *cli.StringFlag {
	return &cli.StringFlag{Name: "meal", Aliases: []string{"m"}, Usage: usage}
}

func logCommand() *cli.Command {
	return &cli.Command{
		Name:      "log",
		Usage:     "Log a catalog item by id, or any food by name",
		ArgsUsage: "<item-id|name>",
		Flags: []cli.Flag{
			mealFlag("meal type for a free-form name (breakfast, lunch, dinner, snack, other)"),
			&cli.StringFlag{Name: "emoji", Value: "🍽️", Usage: "emoji for a free-form name"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			arg := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if arg == "" {
				return errors.New("item id or name required")
			}
			return withApp(ctx, c, func(ctx context.Context, app *appcli.App, _ *Config) error {
				coord := app.Coordinator()
				var entry foodlog.LogEntry
				var err error
				if item, mt, ok := foodlog.FindItem(coord.Categories(), arg); ok {
					entry, err = coord.AddLog(ctx, item.Name, mt, item.Emoji, false)
				} else {
					mt := foodlog.Other
					if m := c.String("meal"); m != "" {
						if mt, err = foodlog.ParseMealType(m); err != nil {
							return err
						}
					}
					entry, err = coord.AddLog(ctx, arg, mt, c.String("emoji"), true)
				}
				if err != nil {
					return err
				}
				printNotice(out(c), coord)
				fmt.Fprintln(out(c), entry.ID)
				return nil
			})
		},
	}
}

func customCommand() *cli.Command {
	return &cli.Command{
		Name:      "custom",
		Usage:     "Log a custom item, optionally saving it to a meal category",
		ArgsUsage: "<name>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "emoji", Value: "🍽️", Usage: "emoji for the item"},
			mealFlag("category to save the item under"),
			&cli.BoolFlag{Name: "ephemeral", Usage: "log once under Other without saving the item"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			name := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			action := foodlog.Ephemeral()
			if !c.Bool("ephemeral") {
				if c.String("meal") == "" {
					return errors.New("--meal required unless --ephemeral")
				}
				mt, err := foodlog.ParseMealType(c.String("meal"))
				if err != nil {
					return err
				}
				action = foodlog.Persist(mt)
			}
			return withApp(ctx, c, func(ctx context.Context, app *appcli.App, _ *Config) error {
				entry, err := app.Coordinator().AddCustomItem(ctx, name, c.String("emoji"), action)
				if err != nil {
					return err
				}
				printNotice(out(c), app.Coordinator())
				fmt.Fprintln(out(c), entry.ID)
				return nil
			})
		},
	}
}

func renameCommand() *cli.Command {
	return &cli.Command{
		Name:      "rename",
		Usage:     "Rename a catalog item",
		ArgsUsage: "<item-id> <title>",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() < 2 {
				return errors.New("usage: foodlog rename <item-id> <title>")
			}
			id := c.Args().First()
			title := strings.Join(c.Args().Tail(), " ")
			return withApp(ctx, c, func(ctx context.Context, app *appcli.App, _ *Config) error {
				return app.Coordinator().UpdateItemTitle(ctx, id, title)
			})
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a log entry",
		ArgsUsage: "<log-id>",
		Action: func(ctx context.Context, c *cli.Command) error {
			id := c.Args().First()
			if id == "" {
				return errors.New("log id required")
			}
			return withApp(ctx, c, func(ctx context.Context, app *appcli.App, _ *Config) error {
				return app.Coordinator().DeleteLog(ctx, id)
			})
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List logged meals, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 25, Usage: "maximum entries to display (0 for all)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, c, func(ctx context.Context, app *appcli.App, _ *Config) error {
				logs := app.Coordinator().Logs()
				if limit := int(c.Int("limit")); limit > 0 && len(logs) > limit {
					logs = logs[:limit]
				}
				if len(logs) == 0 {
					fmt.Fprintln(out(c), "no meals logged")
					return nil
				}
				for _, e := range logs {
					ts := time.UnixMilli(e.Timestamp).Local().Format("2006-01-02 15:04")
					fmt.Fprintf(out(c), "%s  %s  %-9s %s %s\n", e.ID, ts, e.MealType, e.Emoji, e.ItemName)
				}
				return nil
			})
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show meals grouped by day",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "filter", Value: "week", Usage: "day, week or month"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			filter, err := parseFilter(c.String("filter"))
			if err != nil {
				return err
			}
			return withApp(ctx, c, func(ctx context.Context, app *appcli.App, _ *Config) error {
				logs := foodlog.FilterLogs(app.Coordinator().Logs(), filter, time.Now())
				groups := foodlog.GroupByDay(logs, time.Local)
				if len(groups) == 0 {
					fmt.Fprintln(out(c), "no meals in this period")
					return nil
				}
				for _, g := range groups {
					fmt.Fprintln(out(c), g.Label)
					for _, e := range g.Entries {
						ts := time.UnixMilli(e.Timestamp).Local().Format("15:04")
						fmt.Fprintf(out(c), "  %s  %s %s (%s)\n", ts, e.Emoji, e.ItemName, e.MealType)
					}
				}
				return nil
			})
		},
	}
}

func parseFilter(s string) (foodlog.Filter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day":
		return foodlog.FilterDay, nil
	case "week", "":
		return foodlog.FilterWeek, nil
	case "month":
		return foodlog.FilterMonth, nil
	}
	return "", fmt.Errorf("unknown filter %q (want day, week or month)", s)
}

func itemsCommand() *cli.Command {
	return &cli.Command{
		Name:  "items",
		Usage: "List the meal categories and their items with today's progress",
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, c, func(ctx context.Context, app *appcli.App, _ *Config) error {
				coord := app.Coordinator()
				today := foodlog.TodayLogs(coord.Logs(), time.Now(), time.Local)
				counts := foodlog.CountByMeal(today)
				for _, cat := range coord.Categories() {
					fmt.Fprintf(out(c), "%s (%s)  %d today\n", cat.Label, cat.Type, counts[cat.Type])
					for _, it := range cat.Items {
						mark := ""
						if foodlog.LoggedToday(today, it.Name, time.Now(), time.Local) {
							mark = "  (logged today)"
						}
						fmt.Fprintf(out(c), "  %-28s %s %s%s\n", it.ID, it.Emoji, it.Name, mark)
					}
				}
				return nil
			})
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write all logs to a JSON backup file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output path, - for stdout (default foodlog_backup_<date>.json)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, c, func(ctx context.Context, app *appcli.App, _ *Config) error {
				path := c.String("out")
				if path == "-" {
					return app.Coordinator().ExportLogs(out(c))
				}
				if path == "" {
					path = foodlog.ExportFilename(time.Now())
				}
				// #nosec G304 -- path is chosen by the user running the CLI
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				if err := app.Coordinator().ExportLogs(f); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintf(out(c), "exported to %s\n", path)
				return nil
			})
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Replace logs with the contents of a JSON backup file",
		ArgsUsage: "<file>",
		Action: func(ctx context.Context, c *cli.Command) error {
			path := c.Args().First()
			if path == "" {
				return errors.New("backup file required")
			}
			// #nosec G304 -- path is chosen by the user running the CLI
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			return withApp(ctx, c, func(ctx context.Context, app *appcli.App, _ *Config) error {
				coord := app.Coordinator()
				if err := coord.ImportFile(data); err != nil {
					printNotice(out(c), coord)
					return err
				}
				printNotice(out(c), coord)
				if coord.Mode() == foodlog.ModeRemote {
					fmt.Fprintln(out(c), "warning: signed in; imported logs are not uploaded and are replaced on next load")
				}
				fmt.Fprintf(out(c), "imported %d entries\n", len(coord.Logs()))
				return nil
			})
		},
	}
}

func credentialFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "email", Usage: "account email (defaults to saved email)"},
		&cli.StringFlag{Name: "password", Usage: "account password (or FOODLOG_PASSWORD)"},
	}
}

func credentialsFrom(c *cli.Command, cfg *Config) (string, string, error) {
	email := c.String("email")
	if email == "" {
		email = cfg.Email
	}
	password := c.String("password")
	if password == "" {
		password = os.Getenv("FOODLOG_PASSWORD")
	}
	if email == "" || password == "" {
		return "", "", errors.New("--email and --password required")
	}
	return email, password, nil
}

// rememberBackend stores backend flags given at login so later commands reuse them.
func rememberBackend(c *cli.Command, cfg *Config) {
	if c.IsSet("remote") {
		cfg.RemoteURL = c.String("remote")
	}
	if c.IsSet("auth") {
		cfg.AuthURL = c.String("auth")
	}
	if c.IsSet("api-key") {
		cfg.APIKey = c.String("api-key")
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in and switch to your account's logs",
		Flags: credentialFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, c, func(ctx context.Context, app *appcli.App, cfg *Config) error {
				email, password, err := credentialsFrom(c, cfg)
				if err != nil {
					return err
				}
				rememberBackend(c, cfg)
				user, err := app.Login(ctx, email, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(out(c), "signed in as %s (%d entries)\n", user.Email, len(app.Coordinator().Logs()))
				return nil
			})
		},
	}
}

func signupCommand() *cli.Command {
	return &cli.Command{
		Name:  "signup",
		Usage: "Create an account and sign in",
		Flags: credentialFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, c, func(ctx context.Context, app *appcli.App, cfg *Config) error {
				email, password, err := credentialsFrom(c, cfg)
				if err != nil {
					return err
				}
				rememberBackend(c, cfg)
				user, err := app.Signup(ctx, email, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(out(c), "account created for %s\n", user.Email)
				return nil
			})
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Sign out and return to local logs",
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, c, func(ctx context.Context, app *appcli.App, cfg *Config) error {
				app.Logout()
				// An unconfigured remote never restores the session, so clear it here too.
				cfg.SetCredentials(foodlog.Credentials{}, false)
				if err := SaveConfig(cfg); err != nil {
					return err
				}
				fmt.Fprintln(out(c), "signed out")
				return nil
			})
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show mode, account and backend health",
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, c, func(ctx context.Context, app *appcli.App, _ *Config) error {
				st := app.Status(ctx)
				w := out(c)
				fmt.Fprintf(w, "mode:     %s\n", st.Mode)
				if st.SignedIn {
					fmt.Fprintf(w, "account:  %s (%s)\n", st.User.Email, st.User.ID)
				} else {
					fmt.Fprintln(w, "account:  signed out")
				}
				fmt.Fprintf(w, "entries:  %d\n", st.Logs)
				fmt.Fprintf(w, "database: %s\n", app.DBPath())
				switch {
				case !st.RemoteConfigured:
					fmt.Fprintln(w, "remote:   not configured")
				case st.Health.OK:
					fmt.Fprintf(w, "remote:   ok (%s)\n", st.Health.Latency.Round(time.Millisecond))
				default:
					fmt.Fprintf(w, "remote:   unreachable: %v\n", st.Health.Err)
				}
				return nil
			})
		},
	}
}

func printNotice(w io.Writer, coord *foodlog.Coordinator) {
	n, ok := coord.Notice()
	if !ok {
		return
	}
	switch n.Kind {
	case foodlog.NoticeLogged:
		fmt.Fprintf(w, "Logged %s\n", n.Message)
	default:
		fmt.Fprintln(w, n.Message)
	}
}

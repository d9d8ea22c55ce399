// ABOUTME: inspect subcommand: dumps the raw local slots for debugging.
// ABOUTME: Prints each slot with its item count, size and update time.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/bhavik/food-log/cmd/foodlog/internal/inspect"
)

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Show the raw local storage slots",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "slot", Usage: "print the stored JSON of one slot"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			path := cfg.Runtime().FromCommand(c).DBPath
			return withInspector(ctx, path, func(ctx context.Context, insp *inspect.Inspector) error {
				w := out(c)
				if key := c.String("slot"); key != "" {
					raw, err := insp.Raw(ctx, key)
					if err != nil {
						return err
					}
					fmt.Fprintln(w, indentJSON(raw))
					return nil
				}
				rows, err := insp.Summary(ctx)
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					fmt.Fprintln(w, "no slots stored")
					return nil
				}
				for _, row := range rows {
					items := fmt.Sprint(row.Items)
					if row.Items < 0 {
						items = "corrupt"
					}
					updated := time.Unix(row.Updated, 0).UTC().Format(time.RFC3339)
					fmt.Fprintf(w, "%s\t%s items\t%d bytes\tupdated %s\n", row.Key, items, row.Bytes, updated)
				}
				return nil
			})
		},
	}
}

func withInspector(ctx context.Context, path string, fn func(context.Context, *inspect.Inspector) error) (err error) {
	insp, err := inspect.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := insp.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, insp)
}

func indentJSON(raw string) string {
	if raw == "" {
		return "<empty>"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err != nil {
		return raw
	}
	return buf.String()
}

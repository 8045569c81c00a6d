package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/steam-monitor/pkg/refresh"
	"github.com/Sternrassler/steam-monitor/pkg/tracker"
)

// withApp loads config, wires the monitor and runs fn with a context that
// ends on SIGINT/SIGTERM.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := wireApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func newRefreshCmd(opts *rootOptions) *cobra.Command {
	var maxRounds int

	cmd := &cobra.Command{
		Use:   "refresh [app-id]",
		Short: "Refresh all tracked apps, or a single one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxRounds > 0 {
				opts.viper.Set("refresh.max_rounds", maxRounds)
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				var (
					res *refresh.Result
					err error
				)
				if len(args) == 1 {
					res, err = a.orchestrator.RefreshOne(ctx, args[0])
				} else {
					res, err = a.orchestrator.RefreshAll(ctx, refresh.ModeRefresh)
				}
				if res != nil {
					printResult(cmd.OutOrStdout(), res)
				}
				return err
			})
		},
	}

	cmd.Flags().IntVar(&maxRounds, "max-rounds", 0, "stop after this many rounds (0 = until every app settles)")
	return cmd
}

func printResult(w io.Writer, res *refresh.Result) {
	fmt.Fprintf(w, "refreshed %d apps in %d rounds (%s)\n", len(res.Succeeded), res.Rounds, res.Duration.Round(time.Millisecond))
	for _, e := range res.Updated {
		fmt.Fprintf(w, "updated: %s (%s)\n", e.Name, e.ID)
	}

	failed := make([]string, 0, len(res.Failed))
	for id := range res.Failed {
		failed = append(failed, id)
	}
	sort.Strings(failed)
	for _, id := range failed {
		fmt.Fprintf(w, "failed: %s: %v\n", id, res.Failed[id])
	}
	if len(res.Pending) > 0 {
		fmt.Fprintf(w, "pending: %s\n", strings.Join(res.Pending, ", "))
	}
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <app-id>",
		Short: "Start tracking an app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				e, err := a.orchestrator.Add(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added: %s (%s)\n", e.Name, e.ID)
				return nil
			})
		},
	}
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Track every app id found in a file or stdin",
		Long:  "import extracts every run of digits from the input and tracks each one as an app id. Ids that are already tracked are skipped.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				input = f
			}

			data, err := io.ReadAll(input)
			if err != nil {
				return fmt.Errorf("read import input: %w", err)
			}
			ids := refresh.ParseIDs(string(data))
			if len(ids) == 0 {
				return fmt.Errorf("no app ids found in input")
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.orchestrator.Import(ctx, ids)
				if res == nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "added %d of %d apps\n", res.Added, len(ids))
				if len(res.Skipped) > 0 {
					fmt.Fprintf(out, "already tracked: %s\n", strings.Join(res.Skipped, ", "))
				}
				failed := make([]string, 0, len(res.Errors))
				for id := range res.Errors {
					failed = append(failed, id)
				}
				sort.Strings(failed)
				for _, id := range failed {
					fmt.Fprintf(out, "failed: %s: %v\n", id, res.Errors[id])
				}
				return err
			})
		},
	}
}

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <app-id>",
		Short: "Stop tracking an app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.orchestrator.Remove(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed: %s\n", args[0])
				return nil
			})
		},
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked apps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return printEntities(cmd.OutOrStdout(), a.set.List(), asJSON)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printEntities(w io.Writer, entities []tracker.Entity, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(entities, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPLAYERS\tLAST NEWS\tCHECKED")
	for _, e := range entities {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", e.ID, e.Name, e.LiveCount, formatUnix(e.LastActivityAt), formatTime(e.LastCheckedAt))
	}
	return tw.Flush()
}

func formatUnix(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return formatTime(time.Unix(ts, 0))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"hit-tracker/pkg/config"
	"hit-tracker/pkg/errors"
	"hit-tracker/pkg/logger"
	"hit-tracker/pkg/report"
	"hit-tracker/pkg/storage"
	"hit-tracker/pkg/store"
)

var StatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show visitor statistics from the durable store",
	Long: `Show visitor statistics read directly from the durable store.

Only synced visits are included; hits still held in memory by a running
server appear after its next sync cycle.

With store.driver=sqlite this works while "hits serve" is running. A bolt
file can only be opened by one process, so with store.driver=bolt stop the
server first; otherwise the command gives up after a few seconds.

Examples:
  hits stats
  hits stats --plain`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		return PrintStats(cmd.Context(), cmd.OutOrStdout(), cfg, statsPlain)
	},
}

var statsPlain bool

func init() {
	StatsCmd.Flags().BoolVar(&statsPlain, "plain", false, "Print the same text report the server returns")
}

// PrintStats rebuilds the combined view from the store and prints it, as
// tables or, with plain, as the text report.
func PrintStats(ctx context.Context, w io.Writer, cfg *config.Config, plain bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(store.Config{Driver: cfg.Store.Driver, Path: cfg.Store.Path}, logger.ComponentLogger("store"))
	if err != nil {
		return errors.Wrap(err, "open durable store")
	}
	defer st.Close()

	tracker := storage.NewVisitTrackerWithConfig(storage.TrackerConfig{
		RecentSize: cfg.Tracker.RecentSize,
		TopK:       cfg.Tracker.TopK,
		Window:     cfg.Tracker.Window,
	}, storage.WithLogger(logger.ComponentLogger("storage")))
	if err := tracker.Rehydrate(ctx, st); err != nil {
		return err
	}

	latest, err := st.LatestVisit(ctx)
	if err != nil {
		return errors.Wrap(err, "read latest visit")
	}

	opts := report.Options{
		RecentSize: cfg.Tracker.RecentSize,
		TopK:       cfg.Tracker.TopK,
		Window:     cfg.Tracker.Window,
	}
	sections := report.Sections(tracker.View(), opts)

	if plain {
		return report.Render(w, sections)
	}
	return renderTables(w, cfg, latest, sections)
}

func renderTables(w io.Writer, cfg *config.Config, latest time.Time, sections []report.Section) error {
	last := "never"
	if !latest.IsZero() {
		last = latest.Local().Format(time.RFC3339)
	}
	fmt.Fprintln(w, pterm.Info.Sprintf("Store: %s (%s), latest visit: %s", cfg.Store.Path, cfg.Store.Driver, last))

	for _, s := range sections {
		fmt.Fprintln(w, pterm.DefaultSection.Sprint(s.Title))

		if len(s.Lines) == 0 {
			fmt.Fprintln(w, pterm.Gray("  no visitors"))
			continue
		}

		data := pterm.TableData{{"#", "Visitor", "Hits"}}
		for i, l := range s.Lines {
			hits := ""
			if l.HasCount {
				hits = strconv.FormatUint(l.Count, 10)
			}
			data = append(data, []string{strconv.Itoa(i + 1), l.ID, hits})
		}

		table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
		if err != nil {
			return errors.Wrap(err, "render table")
		}
		fmt.Fprintln(w, table)
	}
	return nil
}

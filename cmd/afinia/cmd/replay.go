package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/afinia/internal/replay"
	"github.com/danielpatrickdp/afinia/internal/update"
)

var replayJSON bool

// replayCmd runs a recorded conversation through the extractor and policy.
var replayCmd = &cobra.Command{
	Use:   "replay <fixture.json>",
	Short: "Replay a recorded conversation offline",
	Long: `Feed each recorded model response through the score extractor and the
smoothing policy, print the per-turn trajectory, and exit non-zero when the
fixture's expectations do not hold. No model or store is used.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := replay.LoadFixture(args[0])
		if err != nil {
			return err
		}
		results, summary, err := replay.Run(f)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if replayJSON {
			if err := printJSON(out, map[string]any{"results": results, "summary": summary}); err != nil {
				return err
			}
		} else {
			printReplay(out, f, results, summary)
		}

		if m := f.Check(results, summary.FinalState); len(m) > 0 {
			for _, mm := range m {
				fmt.Fprintf(cmd.ErrOrStderr(), "FAIL %s\n", mm)
			}
			return fmt.Errorf("%d expectation(s) failed", len(m))
		}
		return nil
	},
}

func init() {
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "output results as JSON")
}

func printReplay(w io.Writer, f *replay.Fixture, results []replay.ReplayResult, s replay.ReplaySummary) {
	if f.Description != "" {
		fmt.Fprintf(w, "%s\n\n", f.Description)
	}
	fmt.Fprintf(w, "%-10s  %-7s  %-9s  %s\n", "Turn", "Action", "Malformed", "Changes")
	fmt.Fprintf(w, "%-10s+-%-7s+-%-9s+-%s\n", "----------", "-------", "---------", "-------")
	for _, r := range results {
		malformed := "—"
		if r.Malformed {
			malformed = "yes"
		}
		var moved []string
		for _, c := range r.Changes {
			if c.Outcome == update.OutcomeApplied {
				moved = append(moved, fmt.Sprintf("%s %d→%d", c.Name, c.From, c.To))
			}
		}
		fmt.Fprintf(w, "%-10s  %-7s  %-9s  %s\n", r.TurnID, r.Action, malformed, strings.Join(moved, ", "))
	}

	fmt.Fprintf(w, "\nTurns: %d  Commits: %d  No-ops: %d  Malformed: %d\n", s.TotalTurns, s.Commits, s.NoOps, s.Malformed)
	fmt.Fprintln(w, "\nFinal state:")
	printParameters(w, s.FinalState)
}

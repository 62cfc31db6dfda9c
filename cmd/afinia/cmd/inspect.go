package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/afinia/internal/config"
	"github.com/danielpatrickdp/afinia/internal/logging"
	"github.com/danielpatrickdp/afinia/internal/params"
	"github.com/danielpatrickdp/afinia/internal/state"
)

var (
	inspectHistory int
	inspectTurns   int
	inspectJSON    bool
)

// inspectCmd prints a user's parameters, version history or turn log.
var inspectCmd = &cobra.Command{
	Use:   "inspect <user>",
	Short: "Show a user's parameters, history or turn log",
	Long: `Show the stored parameters of a user. --history lists stored versions
(sqlite backend only); --turns lists the provenance log.

Examples:
  afinia inspect ana
  afinia inspect ana --history 10
  afinia inspect ana --turns 20 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().IntVar(&inspectHistory, "history", 0, "list the N most recent versions")
	inspectCmd.Flags().IntVar(&inspectTurns, "turns", 0, "list the N most recent provenance entries")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "output as JSON instead of a table")
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	userID, err := state.ValidUserID(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if inspectTurns > 0 {
		return inspectTurnLog(cmd, cfg, userID, out)
	}

	store, err := state.Open(cmd.Context(), cfg.Store, logger.Named("store"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if inspectHistory > 0 {
		hs, ok := store.(state.HistoryStore)
		if !ok {
			return fmt.Errorf("store backend %q keeps no history", cfg.Store.Backend)
		}
		versions, err := hs.ListVersions(cmd.Context(), userID, inspectHistory)
		if err != nil {
			return err
		}
		if inspectJSON {
			return printJSON(out, versionRows(versions))
		}
		return printVersionTable(out, versions)
	}

	var set params.Set
	var version string
	if vs, ok := store.(state.VersionedStore); ok {
		set, version = vs.LoadVersion(cmd.Context(), userID)
	} else {
		set = store.Load(cmd.Context(), userID)
	}
	if inspectJSON {
		return printJSON(out, map[string]any{"user_id": userID, "version_id": version, "parameters": set})
	}
	fmt.Fprintf(out, "User:     %s\n", userID)
	if version != "" {
		fmt.Fprintf(out, "Version:  %s\n", version)
	}
	fmt.Fprintln(out)
	printParameters(out, set)
	return nil
}

func inspectTurnLog(cmd *cobra.Command, cfg config.Config, userID string, out io.Writer) error {
	if cfg.Provenance.Path == "" {
		return fmt.Errorf("provenance log disabled: set provenance.path")
	}
	rec, err := logging.OpenRecorder(cfg.Provenance.Path)
	if err != nil {
		return err
	}
	defer rec.Close()

	turns, err := rec.ListTurns(cmd.Context(), userID, inspectTurns)
	if err != nil {
		return err
	}
	if inspectJSON {
		return printJSON(out, turnRows(turns))
	}
	return printTurnTable(out, turns)
}

// #region output

type versionRow struct {
	VersionID  string     `json:"version_id"`
	ParentID   string     `json:"parent_id,omitempty"`
	CreatedAt  string     `json:"created_at"`
	Parameters params.Set `json:"parameters"`
}

func versionRows(versions []state.Version) []versionRow {
	rows := make([]versionRow, len(versions))
	for i, v := range versions {
		rows[i] = versionRow{
			VersionID:  v.VersionID,
			ParentID:   v.ParentID,
			CreatedAt:  v.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			Parameters: v.Params,
		}
	}
	return rows
}

func printVersionTable(w io.Writer, versions []state.Version) error {
	if len(versions) == 0 {
		fmt.Fprintln(w, "no versions found")
		return nil
	}
	fmt.Fprintf(w, "%-12s  %-12s  %7s  %s\n", "Version", "Parent", "Overall", "Time")
	fmt.Fprintf(w, "%-12s+-%-12s+-%7s+-%s\n", "------------", "------------", "-------", "--------------------")
	for _, v := range versions {
		fmt.Fprintf(w, "%-12s  %-12s  %7d  %s\n",
			shortID(v.VersionID), shortID(v.ParentID), v.Params[params.Overall],
			v.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

type turnRow struct {
	TurnID    string          `json:"turn_id"`
	VersionID string          `json:"version_id,omitempty"`
	Decision  string          `json:"decision"`
	Reason    string          `json:"reason,omitempty"`
	Malformed bool            `json:"malformed"`
	Proposal  json.RawMessage `json:"proposal,omitempty"`
	Changes   json.RawMessage `json:"changes,omitempty"`
	CreatedAt string          `json:"created_at"`
}

func turnRows(turns []logging.TurnEntry) []turnRow {
	rows := make([]turnRow, len(turns))
	for i, t := range turns {
		rows[i] = turnRow{
			TurnID:    t.TurnID,
			VersionID: t.VersionID,
			Decision:  t.Decision,
			Reason:    t.Reason,
			Malformed: t.Malformed,
			Proposal:  rawOrNil(t.ProposalJSON),
			Changes:   rawOrNil(t.ChangesJSON),
			CreatedAt: t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}
	return rows
}

func printTurnTable(w io.Writer, turns []logging.TurnEntry) error {
	if len(turns) == 0 {
		fmt.Fprintln(w, "no turns found")
		return nil
	}
	fmt.Fprintf(w, "%-12s  %-11s  %-9s  %-20s  %s\n", "Turn", "Decision", "Malformed", "Time", "Reason")
	fmt.Fprintf(w, "%-12s+-%-11s+-%-9s+-%-20s+-%s\n", "------------", "-----------", "---------", "--------------------", "------")
	for _, t := range turns {
		malformed := "—"
		if t.Malformed {
			malformed = "yes"
		}
		fmt.Fprintf(w, "%-12s  %-11s  %-9s  %-20s  %s\n",
			shortID(t.TurnID), t.Decision, malformed,
			t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"), t.Reason)
	}
	return nil
}

func printParameters(w io.Writer, set params.Set) {
	for _, name := range params.All {
		fmt.Fprintf(w, "  %-26s %3d\n", name, set[name])
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if id == "" {
		return "—"
	}
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func rawOrNil(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return nil
	}
	return json.RawMessage(s)
}

// #endregion output

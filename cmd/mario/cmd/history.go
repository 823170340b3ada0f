package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/mario/internal/core/journal"
	"github.com/solatis/mario/internal/types"
)

// previewLength bounds the payload column of history.
const previewLength = 48

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent dispatches from the journal",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete journal entries older than a duration",
	Args:  cobra.NoArgs,
	RunE:  runHistoryPrune,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <dispatch-id>",
	Short: "Show one journaled dispatch with its payload and bindings",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyPruneCmd, historyShowCmd)
	historyCmd.Flags().Int("limit", 20, "number of entries to show")
	historyPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "delete entries older than this")
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "journal is empty")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.CreatedAt.Local().Format(time.DateTime),
			string(e.Source),
			e.Kind.String(),
			preview(e),
			outcome(e),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"TIME", "SOURCE", "KIND", "MESSAGE", "RULE"},
		rows,
		func(row int) bool { return !entries[row].Matched },
	))
	return nil
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	olderThan, _ := cmd.Flags().GetDuration("older-than")
	if olderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer j.Close()

	n, err := j.Prune(cmd.Context(), time.Now().Add(-olderThan))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d entries\n", n)
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	id, err := types.ParseDispatchID(args[0])
	if err != nil {
		return fmt.Errorf("invalid dispatch id %q: %w", args[0], err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer j.Close()

	entry, err := j.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), formatEntry(entry))
	return nil
}

// formatEntry renders one dispatch as "key: value" lines followed by the
// final bindings in key order.
func formatEntry(e *journal.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "id:        %s\n", e.ID)
	fmt.Fprintf(&b, "time:      %s\n", e.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(&b, "source:    %s\n", e.Source)
	fmt.Fprintf(&b, "kind:      %s\n", e.Kind)
	fmt.Fprintf(&b, "digest:    %s\n", e.Digest)
	fmt.Fprintf(&b, "rule:      %s\n", outcome(*e))
	if e.Kind == types.KindRaw {
		fmt.Fprintf(&b, "message:   %s\n", preview(*e))
	} else {
		fmt.Fprintf(&b, "message:   %s\n", e.Payload)
	}
	if len(e.Bindings) == 0 {
		return b.String()
	}

	keys := make([]string, 0, len(e.Bindings))
	for k := range e.Bindings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString("bindings:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s = %q\n", k, e.Bindings[k])
	}
	return b.String()
}

func preview(e journal.Entry) string {
	if e.Kind == types.KindRaw {
		return fmt.Sprintf("<%d bytes>", len(e.Payload))
	}
	s := strings.Join(strings.Fields(e.Payload), " ")
	if r := []rune(s); len(r) > previewLength {
		s = string(r[:previewLength-3]) + "..."
	}
	return s
}

func outcome(e journal.Entry) string {
	switch {
	case !e.Matched:
		return "-"
	case !e.Completed:
		return e.RuleName + " (failed)"
	default:
		return e.RuleName
	}
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/mario/internal/rules"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Parse and compile the rules",
	Long: `Parse and compile every rule file and print a summary. With --format the
rules are printed in canonical form instead.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Bool("format", false, "print the rules in canonical form")
}

func runCheck(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetBool("format")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	set, err := loadRules(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format {
		fmt.Fprint(out, rules.Format(set.Rules()))
		return nil
	}

	for _, src := range set.Sources {
		fmt.Fprintf(out, "%s: %d rule(s)\n", src.Path, len(src.Rules))
		for _, r := range src.Rules {
			fmt.Fprintf(out, "  [%s] %d match, %d action\n", r.Name, len(r.Match), len(r.Actions))
		}
	}
	fmt.Fprintf(out, "%d rule(s) OK\n", len(set.Compiled))
	return nil
}

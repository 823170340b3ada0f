package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/solatis/mario/internal/core/config"
	"github.com/solatis/mario/internal/core/journal"
	"github.com/solatis/mario/internal/rules"
	"github.com/solatis/mario/internal/types"
)

// exitNoMatch is the --strict status when no rule accepted the message.
const exitNoMatch = 2

var plumbCmd = &cobra.Command{
	Use:   "plumb [raw|text|url] <message>",
	Short: "Dispatch a message through the rules",
	Long: `Dispatch a message to the first matching rule and run its actions.
Use - as the message to read it from stdin.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPlumb,
}

func init() {
	rootCmd.AddCommand(plumbCmd)
	plumbCmd.Flags().Bool("guess", false, "guess the kind from the message")
	plumbCmd.Flags().Bool("print-mimetype", false, "print the detected media type and exit")
	plumbCmd.Flags().Bool("dry-run", false, "report the matching rule without running its actions")
	plumbCmd.Flags().Bool("strict", false, "exit with status 2 when no rule matches")
	plumbCmd.Flags().Bool("no-journal", false, "do not record the dispatch")
}

func runPlumb(cmd *cobra.Command, args []string) error {
	guess, _ := cmd.Flags().GetBool("guess")
	printMime, _ := cmd.Flags().GetBool("print-mimetype")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	strict, _ := cmd.Flags().GetBool("strict")
	noJournal, _ := cmd.Flags().GetBool("no-journal")

	msg, err := readMessage(cmd.InOrStdin(), args, guess)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, classifier, cleanup := newEngine(cfg, rules.WithDryRun(dryRun))
	defer cleanup()

	if printMime {
		mediaType, err := classifier.Classify(ctx, msg.Kind, msg.Data)
		if err != nil {
			return err
		}
		if mediaType == "" {
			mediaType = "unknown"
		}
		fmt.Fprintln(cmd.OutOrStdout(), mediaType)
		return nil
	}

	set, err := loadRules(cfg)
	if err != nil {
		return err
	}

	res, dispatchErr := engine.Dispatch(ctx, msg, set.Compiled)

	if cfg.Journal.Enabled && !noJournal && !dryRun {
		recordDispatch(ctx, cfg, msg, res)
	}

	if dispatchErr != nil {
		return dispatchErr
	}

	if dryRun {
		printDryRun(cmd, res)
	}

	if !res.Matched {
		log.Info().Str("kind", msg.Kind.String()).Msg("No rule matched")
		if strict {
			return &ExitError{Code: exitNoMatch}
		}
		return nil
	}

	log.Info().Str("rule", res.RuleName).Bool("completed", res.Completed).Msg("Message plumbed")
	return nil
}

// recordDispatch journals best effort; a failure never changes the outcome.
func recordDispatch(ctx context.Context, cfg *config.Config, msg types.Message, res *rules.Result) {
	j, err := openJournal(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Journal unavailable")
		return
	}
	defer j.Close()

	if _, err := j.Record(ctx, msg, res, journal.SourceCLI); err != nil {
		log.Warn().Err(err).Msg("Failed to journal dispatch")
	}
}

func printDryRun(cmd *cobra.Command, res *rules.Result) {
	out := cmd.OutOrStdout()
	if !res.Matched {
		fmt.Fprintln(out, "no match")
		return
	}
	fmt.Fprintf(out, "rule %s\n", res.RuleName)
	for _, a := range res.Actions {
		arg := a.Resolved
		if arg == "" {
			arg = a.Argument
		}
		fmt.Fprintf(out, "  %s %s\n", a.Verb, arg)
	}
}

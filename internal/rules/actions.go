// internal/rules/actions.go
package rules

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/solatis/mario/internal/types"
)

/*
 * Action evaluators.
 *
 *   plumb run ARGV       every whitespace-separated word expanded on its
 *                        own, executed without a shell; ok iff exit 0
 *   plumb notify TEXT    notification titled with {rule_name}
 *   plumb save           {data} written to a plumber-temp-* file, path
 *                        bound to {data_file}
 *   plumb download URL   body of URL streamed to a plumber-* file, path
 *                        bound to {filename}
 *
 * A failed action returns Succeeded=false and stops the remaining actions of
 * the rule. Only save returns an error, when the temp file cannot be
 * written; that is a capability failure and aborts the dispatch.
 */

const (
	saveTempPattern     = "plumber-temp-"
	downloadTempPattern = "plumber-"
)

func (e *Engine) runAction(ctx context.Context, vars *Context, action types.ActionClause) (ActionOutcome, error) {
	outcome := ActionOutcome{
		Verb:     action.Verb,
		Argument: action.Argument,
		Line:     action.Line,
	}

	switch action.Verb {
	case types.ActionRun:
		return e.actionRun(ctx, vars, outcome), nil
	case types.ActionNotify:
		return e.actionNotify(vars, outcome), nil
	case types.ActionSave:
		return e.actionSave(vars, outcome)
	case types.ActionDownload:
		return e.actionDownload(ctx, vars, outcome), nil
	}
	return outcome, fmt.Errorf("%w: action %s", types.ErrCompile, action.Verb)
}

func (e *Engine) actionRun(ctx context.Context, vars *Context, outcome ActionOutcome) ActionOutcome {
	words := strings.Fields(outcome.Argument)
	argv := make([]string, 0, len(words))
	for _, word := range words {
		arg, ok := e.resolve(vars, word, outcome.Line)
		if !ok {
			return outcome.fail("unresolved reference in %q", word)
		}
		argv = append(argv, arg)
	}
	outcome.Resolved = strings.Join(argv, " ")
	if len(argv) == 0 {
		return outcome.fail("empty command")
	}
	if e.dryRun {
		return outcome.skip()
	}
	if e.caps.Runner == nil {
		return outcome.fail("no runner configured")
	}

	e.logger.Info().Strs("argv", argv).Msg("Executing")
	code, err := e.caps.Runner.Run(ctx, argv)
	if err != nil {
		e.logger.Info().Err(err).Str("program", argv[0]).Msg("Rule failed: cannot run program")
		return outcome.fail("%v", err)
	}
	if code != 0 {
		e.logger.Info().Int("exitCode", code).Msg("Target program exited with non-zero exit code")
		return outcome.fail("exit status %d", code)
	}
	outcome.Succeeded = true
	return outcome
}

func (e *Engine) actionNotify(vars *Context, outcome ActionOutcome) ActionOutcome {
	body, ok := e.resolve(vars, outcome.Argument, outcome.Line)
	if !ok {
		return outcome.fail("unresolved reference in %q", outcome.Argument)
	}
	outcome.Resolved = body
	if e.dryRun {
		return outcome.skip()
	}
	if e.caps.Notifier == nil {
		return outcome.fail("no notifier configured")
	}

	title, _ := vars.Lookup(types.VarRuleName)
	if err := e.caps.Notifier.Notify(title, body); err != nil {
		e.logger.Info().Err(err).Msg("Notification failed")
		return outcome.fail("%v", err)
	}
	outcome.Succeeded = true
	return outcome
}

func (e *Engine) actionSave(vars *Context, outcome ActionOutcome) (ActionOutcome, error) {
	data, ok := vars.Lookup(types.VarData)
	if !ok {
		return outcome.fail("no data to save"), nil
	}
	if e.dryRun {
		return outcome.skip(), nil
	}

	f, err := os.CreateTemp(e.tempDirectory(), saveTempPattern)
	if err != nil {
		return outcome, fmt.Errorf("%w: create temp file: %w", types.ErrCapability, err)
	}
	if _, err := f.WriteString(data); err != nil {
		f.Close()
		return outcome, fmt.Errorf("%w: write %s: %w", types.ErrCapability, f.Name(), err)
	}
	if err := f.Close(); err != nil {
		return outcome, fmt.Errorf("%w: close %s: %w", types.ErrCapability, f.Name(), err)
	}

	vars.Set(types.VarDataFile, f.Name())
	e.logger.Info().Str("path", f.Name()).Msg("Saved data")
	outcome.Resolved = f.Name()
	outcome.Succeeded = true
	return outcome, nil
}

func (e *Engine) actionDownload(ctx context.Context, vars *Context, outcome ActionOutcome) ActionOutcome {
	url, ok := e.resolve(vars, outcome.Argument, outcome.Line)
	if !ok {
		return outcome.fail("unresolved reference in %q", outcome.Argument)
	}
	outcome.Resolved = url
	if e.dryRun {
		return outcome.skip()
	}
	if e.caps.Fetcher == nil {
		return outcome.fail("no fetcher configured")
	}

	body, err := e.caps.Fetcher.Get(ctx, url)
	if err != nil {
		e.logger.Info().Err(err).Str("url", url).Msg("Error downloading file")
		return outcome.fail("%v", err)
	}
	defer body.Close()

	f, err := os.CreateTemp(e.tempDirectory(), downloadTempPattern)
	if err != nil {
		e.logger.Info().Err(err).Msg("Error downloading file")
		return outcome.fail("%v", err)
	}
	_, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(f.Name())
		err := copyErr
		if err == nil {
			err = closeErr
		}
		e.logger.Info().Err(err).Str("url", url).Msg("Error downloading file")
		return outcome.fail("%v", err)
	}

	vars.Set(types.VarFilename, f.Name())
	e.logger.Info().Str("url", url).Str("path", f.Name()).Msg("Downloaded file")
	outcome.Succeeded = true
	return outcome
}

func (o ActionOutcome) fail(format string, args ...any) ActionOutcome {
	o.Succeeded = false
	o.Detail = fmt.Sprintf(format, args...)
	return o
}

func (o ActionOutcome) skip() ActionOutcome {
	o.Succeeded = true
	o.Skipped = true
	return o
}

// internal/rules/clauses.go
package rules

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/solatis/mario/internal/types"
)

/*
 * Match clause evaluators.
 *
 * Closed vocabulary dispatched by an exhaustive switch over (Subject, Verb):
 *
 *   kind is K            declared kind equals K
 *   arg is E v...        Expand(E) equals one of the literals
 *   arg istype E re...   detected type of Expand(E) matches a pattern
 *   arg matches E re...  Expand(E) contains a match of a pattern
 *   arg rewrite E o,n... rebinds E's variable to Expand(E) with every pair
 *                        applied in order
 *
 * Each evaluator returns (matched, err). A missing variable or malformed
 * expression is reported as not matched with a nil error; err is reserved for
 * capability failures, which abort the dispatch.
 *
 * Patterns use backtracking regexp2 syntax (lookaround and backreferences
 * included) with search semantics.
 *
 * Capture groups of matches and istype bind as \0, \1, ... in group order.
 * Groups that did not participate bind the empty string. A later match in
 * the same rule overwrites earlier bindings of the same index.
 */

func (e *Engine) evalClause(ctx context.Context, vars *Context, cache *TypeCache, clause *CompiledClause) (bool, error) {
	switch clause.Subject {
	case types.SubjectKind:
		return e.matchKindIs(vars, clause), nil
	case types.SubjectArg:
		switch clause.Verb {
		case types.VerbIs:
			return e.matchArgIs(vars, clause), nil
		case types.VerbIsType:
			return e.matchArgIsType(ctx, vars, cache, clause)
		case types.VerbMatches:
			return e.matchArgMatches(vars, clause), nil
		case types.VerbRewrite:
			return e.matchArgRewrite(vars, clause), nil
		}
	}
	return false, fmt.Errorf("%w: clause %s %s", types.ErrCompile, clause.Subject, clause.Verb)
}

func (e *Engine) matchKindIs(vars *Context, clause *CompiledClause) bool {
	return vars.Kind() == clause.Kind
}

func (e *Engine) matchArgIs(vars *Context, clause *CompiledClause) bool {
	value, ok := e.resolve(vars, clause.Target, clause.Line)
	if !ok {
		return false
	}
	return slices.Contains(clause.Patterns, value)
}

func (e *Engine) matchArgIsType(ctx context.Context, vars *Context, cache *TypeCache, clause *CompiledClause) (bool, error) {
	value, ok := e.resolve(vars, clause.Target, clause.Line)
	if !ok {
		return false, nil
	}

	contentType, cached := cache.Get(value)
	if !cached {
		var err error
		contentType, err = e.classify(ctx, vars, value)
		if err != nil {
			return false, err
		}
		cache.Put(value, contentType)
	}
	if contentType == "" {
		e.logger.Info().Int("line", clause.Line).Msg("Couldn't determine content type")
		return false, nil
	}

	for _, re := range clause.Regexps {
		if groups := e.search(re, contentType, clause.Line); groups != nil {
			e.logger.Debug().Str("type", contentType).Str("match", groups[0]).Msg("Type matches")
			bindGroups(vars, groups)
			return true, nil
		}
	}
	e.logger.Debug().Str("type", contentType).Msg("Type doesn't match")
	return false, nil
}

func (e *Engine) classify(ctx context.Context, vars *Context, value string) (string, error) {
	if e.caps.Classifier == nil {
		return "", fmt.Errorf("%w: no classifier configured", types.ErrCapability)
	}
	contentType, err := e.caps.Classifier.Classify(ctx, vars.Kind(), value)
	if err != nil {
		if errors.Is(err, types.ErrCapability) {
			return "", err
		}
		return "", fmt.Errorf("%w: classify: %w", types.ErrCapability, err)
	}
	return contentType, nil
}

func (e *Engine) matchArgMatches(vars *Context, clause *CompiledClause) bool {
	value, ok := e.resolve(vars, clause.Target, clause.Line)
	if !ok {
		return false
	}
	for _, re := range clause.Regexps {
		if groups := e.search(re, value, clause.Line); groups != nil {
			bindGroups(vars, groups)
			return true
		}
	}
	return false
}

func (e *Engine) matchArgRewrite(vars *Context, clause *CompiledClause) bool {
	value, ok := e.resolve(vars, clause.Target, clause.Line)
	if !ok {
		return false
	}
	vars.Set(clause.BindTo, applyRewrites(value, clause.Rewrites))
	return true
}

// applyRewrites replaces every occurrence of each Old with its New, pair by
// pair, each pair seeing the output of the previous one.
func applyRewrites(value string, rewrites []Rewrite) string {
	for _, rw := range rewrites {
		value = strings.ReplaceAll(value, rw.Old, rw.New)
	}
	return value
}

// search finds the first match of re anywhere in s and returns the whole
// match followed by its groups, or nil. A match that exceeds the pattern
// timeout is logged and treated as no match.
func (e *Engine) search(re *regexp2.Regexp, s string, line int) []string {
	m, err := re.FindStringMatch(s)
	if err != nil {
		e.logger.Warn().Int("line", line).Str("pattern", re.String()).Err(err).Msg("Pattern match aborted")
		return nil
	}
	if m == nil {
		return nil
	}
	groups := m.Groups()
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.String()
	}
	return out
}

// bindGroups binds submatches (groups[1:]) as \0, \1, ...
func bindGroups(vars *Context, groups []string) {
	for i, g := range groups[1:] {
		vars.Set(GroupKey(i), g)
	}
}

// resolve expands expr, logging and reporting false on a missing variable
// or malformed expression.
func (e *Engine) resolve(vars *Context, expr string, line int) (string, bool) {
	value, err := Expand(expr, vars)
	if err != nil {
		var missing *MissingVariableError
		if errors.As(err, &missing) {
			e.logger.Info().Int("line", line).Str("var", strings.TrimPrefix(missing.Name, `\`)).Msg("No such variable")
		} else {
			e.logger.Info().Int("line", line).Err(err).Msg("Bad expression")
		}
		return "", false
	}
	return value, true
}

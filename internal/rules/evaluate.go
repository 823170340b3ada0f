// internal/rules/evaluate.go
package rules

import (
	"context"

	"github.com/solatis/mario/internal/types"
)

/*
 * Rule evaluation orchestration.
 *
 * First-match-wins decision list over CompiledRule in file order.
 *
 * Evaluation flow per rule:
 *   1. Checkpoint the context
 *   2. Match clauses in declared order, short-circuit on the first that
 *      does not hold (a missing variable counts as not holding)
 *   3. Not matched: RevertTo(checkpoint) and try the next rule
 *   4. Matched: bind rule_name, run actions in order until one fails, stop
 *
 * A matched rule ends evaluation even when one of its actions fails; later
 * rules are never tried as a fallback. A rule without match clauses always
 * matches.
 *
 * Capability errors (classifier backend unusable, save cannot write its temp
 * file) abort evaluation and are returned; everything else is a boolean
 * outcome. On a capability error during matching the context is reverted to
 * the rule's checkpoint before returning.
 */

// Evaluate runs rules against an existing context and type cache. Dispatch is
// the usual entry point; Evaluate lets callers seed the context themselves.
// On a capability error during actions the partial Result is returned along
// with the error.
func (e *Engine) Evaluate(ctx context.Context, vars *Context, cache *TypeCache, rules []*CompiledRule) (*Result, error) {
	e.logger.Info().Int("rules", len(rules)).Msg("Matching message against rules")

	for _, rule := range rules {
		e.logger.Debug().Str("rule", rule.Name).Msg("Matching against rule")

		mark := vars.Checkpoint()
		matched, err := e.matchRule(ctx, vars, cache, rule)
		if err != nil {
			vars.RevertTo(mark)
			return nil, err
		}
		if !matched {
			vars.RevertTo(mark)
			continue
		}

		e.logger.Info().Str("rule", rule.Name).Msg("Rule matched")
		return e.runActions(ctx, vars, rule)
	}

	e.logger.Info().Msg("No rule matched")
	return &Result{RuleIndex: -1, Bindings: vars.Snapshot()}, nil
}

// matchRule evaluates match clauses with short-circuit AND semantics.
func (e *Engine) matchRule(ctx context.Context, vars *Context, cache *TypeCache, rule *CompiledRule) (bool, error) {
	for i := range rule.Match {
		clause := &rule.Match[i]
		ok, err := e.evalClause(ctx, vars, cache, clause)
		if err != nil {
			return false, err
		}
		if !ok {
			e.logger.Debug().
				Str("rule", rule.Name).
				Int("line", clause.Line).
				Str("clause", FormatMatchClause(clause.MatchClause)).
				Msg("Clause failed")
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) runActions(ctx context.Context, vars *Context, rule *CompiledRule) (*Result, error) {
	result := &Result{
		Matched:   true,
		RuleName:  rule.Name,
		RuleIndex: rule.Index,
		Completed: true,
	}
	vars.Set(types.VarRuleName, rule.Name)

	for _, action := range rule.Actions {
		e.logger.Info().
			Str("rule", rule.Name).
			Str("action", FormatActionClause(action)).
			Bool("dryRun", e.dryRun).
			Msg("Executing action")

		outcome, err := e.runAction(ctx, vars, action)
		result.Actions = append(result.Actions, outcome)
		if err != nil {
			result.Completed = false
			result.Bindings = vars.Snapshot()
			return result, err
		}
		if !outcome.Succeeded {
			result.Completed = false
			break
		}
	}

	result.Bindings = vars.Snapshot()
	return result, nil
}

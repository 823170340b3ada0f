// internal/rules/compile.go
package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/solatis/mario/internal/types"
)

/*
 * Rule compilation and validation.
 *
 * Compiles types.Rule to CompiledRule once at load time so a malformed
 * pattern is a load error rather than a clause that silently never matches.
 *
 * Compilation workflow:
 *   1. kind is: pattern parsed into types.Kind
 *   2. arg matches / arg istype: every pattern compiled with regexp2
 *      (backtracking, so rule files may use lookaround and backreferences;
 *      search semantics at evaluation, bounded by patternTimeout)
 *   3. arg rewrite: every pattern split at its first comma into old,new;
 *      a pattern without a comma is rejected
 *   4. Target and action expressions tokenized so an unbalanced brace is
 *      reported with its line number
 *
 * Clause order is kept as written. Clauses may bind variables later clauses
 * read, so reordering by cost the way a stateless matcher could is unsound
 * here.
 */

// patternTimeout bounds one regular expression match. A match that runs
// out of time counts as no match.
const patternTimeout = time.Second

// Rewrite is one old,new substitution of a rewrite clause.
type Rewrite struct {
	Old string
	New string
}

// CompiledClause is a match clause ready for evaluation.
type CompiledClause struct {
	types.MatchClause
	Kind     types.Kind        // kind is
	Regexps  []*regexp2.Regexp // matches, istype
	Rewrites []Rewrite         // rewrite
	BindTo   string            // rewrite result variable
}

// CompiledRule is a rule ready for evaluation.
type CompiledRule struct {
	Name    string
	Index   int // position in the rule list
	Match   []CompiledClause
	Actions []types.ActionClause
}

// CompileError reports a clause that parsed but cannot be compiled.
type CompileError struct {
	Rule string
	Line int
	Err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("rule [%s], line %d: %v", e.Rule, e.Line, e.Err)
}

// Unwrap exposes both the cause and types.ErrCompile to errors.Is.
func (e *CompileError) Unwrap() []error {
	return []error{types.ErrCompile, e.Err}
}

// CompileAll compiles rules in order. The first error aborts compilation.
func CompileAll(rules []types.Rule) ([]*CompiledRule, error) {
	compiled := make([]*CompiledRule, 0, len(rules))
	for i := range rules {
		cr, err := Compile(&rules[i])
		if err != nil {
			return nil, err
		}
		cr.Index = i
		compiled = append(compiled, cr)
	}
	return compiled, nil
}

// Compile validates and pre-processes a rule for evaluation.
func Compile(rule *types.Rule) (*CompiledRule, error) {
	compiled := &CompiledRule{
		Name:    rule.Name,
		Match:   make([]CompiledClause, 0, len(rule.Match)),
		Actions: append([]types.ActionClause(nil), rule.Actions...),
	}

	for _, clause := range rule.Match {
		cc, err := compileClause(clause)
		if err != nil {
			return nil, &CompileError{Rule: rule.Name, Line: clause.Line, Err: err}
		}
		compiled.Match = append(compiled.Match, cc)
	}

	for _, action := range rule.Actions {
		if _, err := References(action.Argument); err != nil {
			return nil, &CompileError{Rule: rule.Name, Line: action.Line, Err: err}
		}
	}

	return compiled, nil
}

func compileClause(clause types.MatchClause) (CompiledClause, error) {
	cc := CompiledClause{MatchClause: clause}

	switch clause.Subject {
	case types.SubjectKind:
		if len(clause.Patterns) != 1 {
			return cc, fmt.Errorf("kind is expects one kind, got %d", len(clause.Patterns))
		}
		kind, err := types.ParseKind(clause.Patterns[0])
		if err != nil {
			return cc, err
		}
		cc.Kind = kind
		return cc, nil
	case types.SubjectArg:
	default:
		return cc, fmt.Errorf("unknown subject %v", clause.Subject)
	}

	if _, err := References(clause.Target); err != nil {
		return cc, err
	}

	switch clause.Verb {
	case types.VerbIs:
	case types.VerbMatches, types.VerbIsType:
		cc.Regexps = make([]*regexp2.Regexp, 0, len(clause.Patterns))
		for _, pattern := range clause.Patterns {
			re, err := regexp2.Compile(pattern, regexp2.None)
			if err != nil {
				return cc, fmt.Errorf("invalid pattern %q: %w", pattern, err)
			}
			re.MatchTimeout = patternTimeout
			cc.Regexps = append(cc.Regexps, re)
		}
	case types.VerbRewrite:
		cc.Rewrites = make([]Rewrite, 0, len(clause.Patterns))
		for _, pattern := range clause.Patterns {
			old, repl, ok := strings.Cut(pattern, ",")
			if !ok {
				return cc, fmt.Errorf("rewrite pattern %q is not an old,new pair", pattern)
			}
			cc.Rewrites = append(cc.Rewrites, Rewrite{Old: old, New: repl})
		}
		cc.BindTo = RewriteTarget(clause.Target)
	default:
		return cc, fmt.Errorf("unknown verb %v", clause.Verb)
	}

	return cc, nil
}

// internal/rules/format.go
package rules

import (
	"strings"

	"github.com/solatis/mario/internal/types"
)

// Format renders rules in canonical rule-file form: one clause per line,
// patterns on the clause line, data shorthand expanded, comments dropped,
// one blank line between sections. Parse(Format(r)) yields r again
// (line numbers aside).
func Format(rules []types.Rule) string {
	var b strings.Builder
	for i, rule := range rules {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("[" + rule.Name + "]\n")
		for _, clause := range rule.Match {
			b.WriteString(FormatMatchClause(clause))
			b.WriteByte('\n')
		}
		for _, action := range rule.Actions {
			b.WriteString(FormatActionClause(action))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// FormatMatchClause renders a single match clause.
func FormatMatchClause(clause types.MatchClause) string {
	parts := []string{clause.Subject.String(), clause.Verb.String()}
	if clause.Subject == types.SubjectArg {
		parts = append(parts, clause.Target)
	}
	parts = append(parts, clause.Patterns...)
	return strings.Join(parts, " ")
}

// FormatActionClause renders a single plumb clause.
func FormatActionClause(action types.ActionClause) string {
	if action.Argument == "" {
		return "plumb " + action.Verb.String()
	}
	return "plumb " + action.Verb.String() + " " + action.Argument
}

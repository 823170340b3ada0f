// internal/types/rules.go
package types

/*
 * Domain types for plumbing rules.
 *
 * Provides Rule, MatchClause and ActionClause produced by the grammar in
 * internal/rules and consumed by compilation and evaluation. Subjects and
 * verbs are closed enums: extending the vocabulary is a code change, never
 * a runtime registration, because run and download execute programs and
 * fetch arbitrary URLs.
 *
 * Key types:
 *   - Rule: named pair of match clauses and action clauses
 *   - MatchClause: subject + verb + target expression + patterns
 *   - ActionClause: plumb verb + raw argument string
 *
 * Dependencies: None
 */

// Subject is the object a match clause inspects.
type Subject int

const (
	SubjectUnspecified Subject = iota
	SubjectKind
	SubjectArg
)

// String returns the rule-file spelling of the subject.
func (s Subject) String() string {
	switch s {
	case SubjectKind:
		return "kind"
	case SubjectArg:
		return "arg"
	default:
		return "unspecified"
	}
}

// Verb is the operation a match clause applies to its subject.
type Verb int

const (
	VerbUnspecified Verb = iota
	VerbIs
	VerbIsType
	VerbMatches
	VerbRewrite
)

// String returns the rule-file spelling of the verb.
func (v Verb) String() string {
	switch v {
	case VerbIs:
		return "is"
	case VerbIsType:
		return "istype"
	case VerbMatches:
		return "matches"
	case VerbRewrite:
		return "rewrite"
	default:
		return "unspecified"
	}
}

// ActionVerb is the operation of a plumb line.
type ActionVerb int

const (
	ActionUnspecified ActionVerb = iota
	ActionRun
	ActionNotify
	ActionSave
	ActionDownload
)

// String returns the rule-file spelling of the action verb.
func (a ActionVerb) String() string {
	switch a {
	case ActionRun:
		return "run"
	case ActionNotify:
		return "notify"
	case ActionSave:
		return "save"
	case ActionDownload:
		return "download"
	default:
		return "unspecified"
	}
}

// MatchClause is a single condition of a rule.
// For `kind is K`, Target is empty and Patterns holds K.
// The `data` shorthand is stored as SubjectArg with Target "{data}".
type MatchClause struct {
	Subject  Subject
	Verb     Verb
	Target   string   // expression with {name} references, resolved at evaluation
	Patterns []string // literals, regular expressions or old,new pairs depending on Verb
	Line     int      // 1-based line in the rule file; 0 when built in code
}

// ActionClause is a single plumb line of a rule.
type ActionClause struct {
	Verb     ActionVerb
	Argument string // raw argument string with {name} references
	Line     int
}

// Rule is a named pair of match and action clauses.
// An empty Match list always matches.
type Rule struct {
	Name    string
	Match   []MatchClause
	Actions []ActionClause
}

// Reserved context variables.
const (
	VarData     = "data"
	VarKind     = "kind"
	VarNetloc   = "netloc"
	VarNetpath  = "netpath"
	VarRuleName = "rule_name"
	VarDataFile = "data_file"
	VarFilename = "filename"
)

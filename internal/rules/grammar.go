// internal/rules/grammar.go
package rules

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/solatis/mario/internal/types"
)

/*
 * Rule file grammar.
 *
 * Line-oriented parser producing []types.Rule in file order:
 *
 *   [name]                          section header, name is any non-']' text
 *   kind is raw|text|url            kind clause
 *   arg <verb> <target> <pat...>    match clause, verb in is/istype/matches/rewrite
 *   data <verb> <pat...>            shorthand for arg <verb> {data} <pat...>
 *       <pat...>                    continuation: more patterns for the previous arg clause
 *   plumb <verb> <argument string>  action clause, verb in run/notify/save/download
 *
 * Section headers start in column 0. Comments start at a '#' that begins a
 * line, follows whitespace, or follows a section header's ']'. Blank lines
 * are ignored everywhere. Match lines must precede action lines and every
 * section needs at least one action.
 *
 * Continuation hazard: any non-blank line whose first field is not a subject
 * keyword is absorbed as patterns of the previous arg clause, so a misspelled
 * subject ("agr matches ...") becomes patterns rather than an error. The
 * behavior is kept because existing rule files rely on free indentation.
 *
 * Errors: the first error aborts parsing with *ParseError; no partial rule
 * list is ever returned.
 */

// maxLineLength bounds a single rule file line.
const maxLineLength = 1024 * 1024

// ParseError describes a rule file syntax error.
type ParseError struct {
	Line   int    // 1-based line number
	Column int    // 1-based column in runes
	Text   string // offending line
	Msg    string
}

// Error renders the error with a caret under the offending column.
func (e *ParseError) Error() string {
	caret := strings.Repeat(" ", max(e.Column-1, 0)) + "^"
	return fmt.Sprintf("line %d, column %d: %s\n\t%s\n\t%s", e.Line, e.Column, e.Msg, e.Text, caret)
}

// Unwrap makes errors.Is(err, types.ErrParse) hold.
func (e *ParseError) Unwrap() error {
	return types.ErrParse
}

var matchVerbs = map[string]types.Verb{
	"is":      types.VerbIs,
	"istype":  types.VerbIsType,
	"matches": types.VerbMatches,
	"rewrite": types.VerbRewrite,
}

var actionVerbs = map[string]types.ActionVerb{
	"run":      types.ActionRun,
	"notify":   types.ActionNotify,
	"save":     types.ActionSave,
	"download": types.ActionDownload,
}

// field is a whitespace-separated token and its byte offset in the line.
type field struct {
	text   string
	offset int
}

type parser struct {
	rules      []types.Rule
	cur        *types.Rule
	headerLine int
	headerText string
	inActions  bool
	lastArg    int // index into cur.Match accepting continuation lines, -1 if none

	lineNo int
	line   string
}

// ParseString parses rules from a string.
func ParseString(s string) ([]types.Rule, error) {
	return Parse(strings.NewReader(s))
}

// Parse reads a rule file and returns its rules in declaration order.
func Parse(r io.Reader) ([]types.Rule, error) {
	p := &parser{lastArg: -1}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for scanner.Scan() {
		p.lineNo++
		p.line = strings.TrimSuffix(scanner.Text(), "\r")
		if err := p.parseLine(); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}

	if err := p.finishSection(); err != nil {
		return nil, err
	}
	if p.rules == nil {
		return []types.Rule{}, nil
	}
	return p.rules, nil
}

func (p *parser) parseLine() error {
	if strings.TrimSpace(p.line) == "" {
		return nil
	}
	// Headers start in column 0; an indented "[a-z]+" is a pattern.
	if strings.HasPrefix(p.line, "[") {
		return p.parseHeader()
	}

	body := stripComment(p.line)
	fields := splitFields(body)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0].text {
	case "kind":
		return p.parseKindClause(fields)
	case "arg":
		return p.parseArgClause(fields, false)
	case "data":
		return p.parseArgClause(fields, true)
	case "plumb":
		return p.parseActionClause(body, fields)
	default:
		return p.parseContinuation(fields)
	}
}

func (p *parser) parseHeader() error {
	end := strings.IndexByte(p.line, ']')
	if end < 0 {
		return p.errorAt(0, "section header is missing ']'")
	}
	name := p.line[1:end]
	if name == "" {
		return p.errorAt(0, "empty section name")
	}
	after := strings.TrimSpace(p.line[end+1:])
	if after != "" && !strings.HasPrefix(after, "#") {
		return p.errorAt(end+1, "unexpected text after section header")
	}

	if err := p.finishSection(); err != nil {
		return err
	}
	p.cur = &types.Rule{Name: name}
	p.headerLine = p.lineNo
	p.headerText = p.line
	p.inActions = false
	p.lastArg = -1
	return nil
}

func (p *parser) parseKindClause(fields []field) error {
	if err := p.requireMatchPosition(fields[0]); err != nil {
		return err
	}
	if len(fields) < 2 {
		return p.errorAt(fields[0].offset, "missing verb")
	}
	if fields[1].text != "is" {
		return p.errorAt(fields[1].offset, fmt.Sprintf("unknown verb %q for subject kind", fields[1].text))
	}
	if len(fields) != 3 {
		return p.errorAt(fields[1].offset, "kind is expects exactly one of raw, text, url")
	}
	if _, err := types.ParseKind(fields[2].text); err != nil {
		return p.errorAt(fields[2].offset, fmt.Sprintf("unknown kind %q", fields[2].text))
	}

	p.cur.Match = append(p.cur.Match, types.MatchClause{
		Subject:  types.SubjectKind,
		Verb:     types.VerbIs,
		Patterns: []string{fields[2].text},
		Line:     p.lineNo,
	})
	p.lastArg = -1
	return nil
}

func (p *parser) parseArgClause(fields []field, shorthand bool) error {
	if err := p.requireMatchPosition(fields[0]); err != nil {
		return err
	}
	if len(fields) < 2 {
		return p.errorAt(fields[0].offset, "missing verb")
	}
	verb, ok := matchVerbs[fields[1].text]
	if !ok {
		return p.errorAt(fields[1].offset, fmt.Sprintf("unknown verb %q for subject %s", fields[1].text, fields[0].text))
	}

	clause := types.MatchClause{
		Subject: types.SubjectArg,
		Verb:    verb,
		Line:    p.lineNo,
	}
	rest := fields[2:]
	if shorthand {
		clause.Target = "{" + types.VarData + "}"
	} else {
		if len(rest) == 0 {
			return p.errorAt(fields[1].offset, "missing target expression")
		}
		clause.Target = rest[0].text
		rest = rest[1:]
	}
	clause.Patterns = fieldTexts(rest)

	p.cur.Match = append(p.cur.Match, clause)
	p.lastArg = len(p.cur.Match) - 1
	return nil
}

func (p *parser) parseActionClause(body string, fields []field) error {
	if p.cur == nil {
		return p.errorAt(fields[0].offset, "clause outside of a section")
	}
	if len(fields) < 2 {
		return p.errorAt(fields[0].offset, "missing verb")
	}
	verb, ok := actionVerbs[fields[1].text]
	if !ok {
		return p.errorAt(fields[1].offset, fmt.Sprintf("unknown verb %q for subject plumb", fields[1].text))
	}

	argument := strings.TrimSpace(body[fields[1].offset+len(fields[1].text):])
	if argument == "" && verb != types.ActionSave {
		return p.errorAt(fields[1].offset, fmt.Sprintf("plumb %s requires an argument", fields[1].text))
	}

	p.cur.Actions = append(p.cur.Actions, types.ActionClause{
		Verb:     verb,
		Argument: argument,
		Line:     p.lineNo,
	})
	p.inActions = true
	p.lastArg = -1
	return nil
}

func (p *parser) parseContinuation(fields []field) error {
	if p.cur == nil {
		return p.errorAt(fields[0].offset, "text outside of a section")
	}
	if p.lastArg < 0 {
		return p.errorAt(fields[0].offset, fmt.Sprintf("unexpected %q: not a clause and nothing to continue", fields[0].text))
	}
	clause := &p.cur.Match[p.lastArg]
	clause.Patterns = append(clause.Patterns, fieldTexts(fields)...)
	return nil
}

func (p *parser) requireMatchPosition(subject field) error {
	if p.cur == nil {
		return p.errorAt(subject.offset, "clause outside of a section")
	}
	if p.inActions {
		return p.errorAt(subject.offset, "match clause after plumb clause")
	}
	return nil
}

// finishSection validates and commits the section being parsed.
func (p *parser) finishSection() error {
	if p.cur == nil {
		return nil
	}
	for _, clause := range p.cur.Match {
		if clause.Subject == types.SubjectArg && len(clause.Patterns) == 0 {
			return &ParseError{
				Line:   clause.Line,
				Column: 1,
				Text:   clause.Target,
				Msg:    fmt.Sprintf("arg %s clause has no patterns", clause.Verb),
			}
		}
	}
	if len(p.cur.Actions) == 0 {
		return &ParseError{
			Line:   p.headerLine,
			Column: 1,
			Text:   p.headerText,
			Msg:    fmt.Sprintf("rule [%s] has no plumb clauses", p.cur.Name),
		}
	}
	p.rules = append(p.rules, *p.cur)
	p.cur = nil
	return nil
}

func (p *parser) errorAt(offset int, msg string) *ParseError {
	return &ParseError{
		Line:   p.lineNo,
		Column: utf8.RuneCountInString(p.line[:offset]) + 1,
		Text:   p.line,
		Msg:    msg,
	}
}

// stripComment cuts the line at the first '#' that starts the line or
// follows whitespace. Byte scanning is UTF-8 safe: '#', ' ' and '\t' never
// occur inside multi-byte sequences.
func stripComment(line string) string {
	for i := 0; i < len(line); i++ {
		if line[i] != '#' {
			continue
		}
		if i == 0 || line[i-1] == ' ' || line[i-1] == '\t' {
			return line[:i]
		}
	}
	return line
}

// splitFields splits on Unicode whitespace like strings.Fields, keeping offsets.
func splitFields(s string) []field {
	var fields []field
	start := -1
	for i, r := range s {
		if unicode.IsSpace(r) {
			if start >= 0 {
				fields = append(fields, field{text: s[start:i], offset: start})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		fields = append(fields, field{text: s[start:], offset: start})
	}
	return fields
}

func fieldTexts(fields []field) []string {
	texts := make([]string, 0, len(fields))
	for _, f := range fields {
		texts = append(texts, f.text)
	}
	return texts
}

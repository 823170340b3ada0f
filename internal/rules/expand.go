// internal/rules/expand.go
package rules

import (
	"fmt"
	"strings"

	"github.com/solatis/mario/internal/types"
)

/*
 * Expression resolution.
 *
 * Expressions are raw strings carrying {name} references resolved against a
 * Context at evaluation time:
 *
 *   {name}   value of name; unbound name fails with ErrMissingVariable
 *   {0}      digits-only names read as match groups, i.e. {\0}
 *   {{ }}    literal braces
 *
 * An unclosed '{' or a lone '}' fails with ErrBadExpression. Both failures
 * make the owning clause or action fail; neither is fatal to a dispatch.
 */

// groupKey returns the context key for a digits-only reference. Group
// bindings live under a leading backslash so they can never collide with a
// message field.
func groupKey(name string) string {
	if name == "" {
		return `\`
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return name
		}
	}
	return `\` + name
}

// GroupKey returns the context key match group i is bound under.
func GroupKey(i int) string {
	return fmt.Sprintf(`\%d`, i)
}

type exprToken struct {
	literal string
	ref     string
	isRef   bool
}

func tokenize(expr string) ([]exprToken, error) {
	var tokens []exprToken
	var lit strings.Builder
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch c {
		case '{':
			if i+1 < len(expr) && expr[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(expr[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unclosed '{' at offset %d in %q", types.ErrBadExpression, i, expr)
			}
			name := expr[i+1 : i+1+end]
			if len(name) > types.MaxVariableNameLength {
				return nil, fmt.Errorf("%w: variable name longer than %d bytes", types.ErrBadExpression, types.MaxVariableNameLength)
			}
			if lit.Len() > 0 {
				tokens = append(tokens, exprToken{literal: lit.String()})
				lit.Reset()
			}
			tokens = append(tokens, exprToken{ref: groupKey(name), isRef: true})
			i += end + 1
		case '}':
			if i+1 < len(expr) && expr[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("%w: single '}' at offset %d in %q", types.ErrBadExpression, i, expr)
		default:
			lit.WriteByte(c)
		}
	}
	if lit.Len() > 0 {
		tokens = append(tokens, exprToken{literal: lit.String()})
	}
	return tokens, nil
}

// Expand resolves every reference in expr against vars.
func Expand(expr string, vars *Context) (string, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, tok := range tokens {
		if !tok.isRef {
			b.WriteString(tok.literal)
			continue
		}
		v, err := vars.Get(tok.ref)
		if err != nil {
			return "", err
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

// References returns the context keys expr refers to, in order of
// appearance, duplicates included.
func References(expr string) ([]string, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	var refs []string
	for _, tok := range tokens {
		if tok.isRef {
			refs = append(refs, tok.ref)
		}
	}
	return refs, nil
}

// RewriteTarget returns the variable a rewrite clause binds its result to:
// the first reference in expr, or expr with surrounding braces trimmed when
// it holds none.
func RewriteTarget(expr string) string {
	if refs, err := References(expr); err == nil && len(refs) > 0 {
		return refs[0]
	}
	return strings.Trim(expr, "{}")
}

package types

import "errors"

// Sentinel errors for mario operations.
var (
	// ErrParse indicates a malformed rule file. Fatal to rule loading.
	ErrParse = errors.New("rule file syntax error")

	// ErrCompile indicates a syntactically valid clause whose patterns
	// cannot be compiled (bad regular expression, rewrite pair without comma).
	ErrCompile = errors.New("rule compilation failed")

	// ErrUnknownKind indicates a kind other than raw, text or url.
	ErrUnknownKind = errors.New("unknown message kind")

	// ErrMissingVariable indicates an expression references an unbound
	// context variable. Never fatal: the owning clause or action fails.
	ErrMissingVariable = errors.New("no such variable")

	// ErrBadExpression indicates an expression with an unbalanced brace.
	// Treated like ErrMissingVariable.
	ErrBadExpression = errors.New("malformed expression")

	// ErrCapability indicates an external collaborator is unusable
	// (classifier backend, temp file creation). Fatal to the dispatch.
	ErrCapability = errors.New("capability failure")

	// ErrNoRules indicates no rule file could be found or all were empty.
	ErrNoRules = errors.New("no rules loaded")

	// ErrMessageTooLarge indicates a payload exceeds the configured limit.
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
)

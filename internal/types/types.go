// Package types provides domain models shared across mario components.
//
// Zero-dependency design: types.go, rules.go and errors.go use only the
// standard library so the rule grammar and engine can be embedded without
// pulling in storage or transport deps. ID utilities in ids.go import uuid
// but are isolated for the same reason.
package types

import (
	"fmt"
	"net/url"
	"unicode/utf8"
)

// Kind is the coarse classification of a message, supplied by the caller
// or guessed before evaluation.
type Kind int

const (
	KindUnspecified Kind = iota
	KindRaw
	KindText
	KindURL
)

var kindNames = map[Kind]string{
	KindRaw:  "raw",
	KindText: "text",
	KindURL:  "url",
}

// String returns the rule-file spelling of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unspecified"
}

// ParseKind converts a rule-file spelling ("raw", "text", "url") to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnspecified, fmt.Errorf("%w: %q (expected raw, text or url)", ErrUnknownKind, s)
}

// Kinds lists the valid kinds in declaration order.
func Kinds() []Kind {
	return []Kind{KindRaw, KindText, KindURL}
}

// Message is the unit the plumber dispatches: a payload and its kind.
// Data holds arbitrary bytes for KindRaw; Go strings carry them unchanged.
type Message struct {
	Kind Kind
	Data string
}

// GuessKind applies the plumber's heuristics: anything that is not valid
// UTF-8 is raw, UTF-8 with a URL scheme is a url, everything else is text.
func GuessKind(data []byte) Kind {
	if !utf8.Valid(data) {
		return KindRaw
	}
	u, err := url.Parse(string(data))
	if err == nil && u.Scheme != "" {
		return KindURL
	}
	return KindText
}

// Resource limits for messages accepted from the network.
const (
	// MaxVariableNameLength bounds the {name} references accepted by the
	// expression resolver.
	MaxVariableNameLength = 128

	// DefaultMaxMessageSize caps payloads accepted by the plumbing service.
	DefaultMaxMessageSize = 1024 * 1024
)

// internal/rules/context.go
package rules

import (
	"fmt"
	"sort"

	"github.com/solatis/mario/internal/types"
)

/*
 * Transactional variable context.
 *
 * Holds the variables one dispatch works on (message fields, capture groups,
 * rewrites, action results) together with an undo log. Every Set appends one
 * entry recording whether the key existed and its prior value; RevertTo pops
 * entries back to a checkpoint and undoes them in reverse order. A failed
 * rule attempt therefore costs O(changes) to roll back instead of a copy of
 * the whole map per attempt.
 *
 * Set on an unchanged value still appends an entry, so the key shows up in
 * ChangesSinceStart and is undone by Revert like any other write.
 *
 * Key order is the order of first insertion and survives updates; undoing an
 * insert removes the key from the order again.
 *
 * The declared kind of the message is fixed when the context is created.
 * `kind is` and the classifier read it from there, so rebinding the kind
 * variable (arg rewrite {kind} ...) changes expansions only.
 *
 * Not safe for concurrent use. One Context per dispatch.
 */

// MissingVariableError reports a reference to an unbound variable.
type MissingVariableError struct {
	Name string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("no such variable: {%s}", e.Name)
}

// Unwrap makes errors.Is(err, types.ErrMissingVariable) hold.
func (e *MissingVariableError) Unwrap() error {
	return types.ErrMissingVariable
}

type undoEntry struct {
	key     string
	prior   string
	existed bool
}

// Context is a string-keyed variable store with undo-log rollback.
type Context struct {
	values map[string]string
	order  []string
	log    []undoEntry
	kind   types.Kind
}

// NewContext creates a context seeded with values. Keys listed in order come
// first, in that order; remaining seed keys follow sorted. Seeding is not
// logged and cannot be reverted. A seeded kind variable becomes the declared
// kind.
func NewContext(seed map[string]string, order ...string) *Context {
	c := &Context{values: make(map[string]string, len(seed))}
	if kind, err := types.ParseKind(seed[types.VarKind]); err == nil {
		c.kind = kind
	}
	for _, key := range order {
		if v, ok := seed[key]; ok {
			if _, dup := c.values[key]; !dup {
				c.values[key] = v
				c.order = append(c.order, key)
			}
		}
	}
	var rest []string
	for key := range seed {
		if _, ok := c.values[key]; !ok {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		c.values[key] = seed[key]
		c.order = append(c.order, key)
	}
	return c
}

// NewMessageContext seeds a context from a message: data and kind, plus
// netloc and netpath for url messages.
func NewMessageContext(msg types.Message) *Context {
	seed := map[string]string{
		types.VarData: msg.Data,
		types.VarKind: msg.Kind.String(),
	}
	order := []string{types.VarData, types.VarKind}
	if msg.Kind == types.KindURL {
		seed[types.VarNetloc], seed[types.VarNetpath] = splitURL(msg.Data)
		order = append(order, types.VarNetloc, types.VarNetpath)
	}
	c := NewContext(seed, order...)
	c.kind = msg.Kind
	return c
}

// Kind returns the declared kind of the message.
func (c *Context) Kind() types.Kind {
	return c.kind
}

// Set binds key to value and logs how to undo it.
func (c *Context) Set(key, value string) {
	prior, existed := c.values[key]
	c.log = append(c.log, undoEntry{key: key, prior: prior, existed: existed})
	if !existed {
		c.order = append(c.order, key)
	}
	c.values[key] = value
}

// Get returns the value of key or a *MissingVariableError.
func (c *Context) Get(key string) (string, error) {
	v, ok := c.values[key]
	if !ok {
		return "", &MissingVariableError{Name: key}
	}
	return v, nil
}

// Lookup returns the value of key and whether it is bound.
func (c *Context) Lookup(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Checkpoint returns a mark for RevertTo.
func (c *Context) Checkpoint() int {
	return len(c.log)
}

// RevertTo undoes every Set made after mark, newest first.
func (c *Context) RevertTo(mark int) {
	if mark < 0 {
		mark = 0
	}
	for len(c.log) > mark {
		e := c.log[len(c.log)-1]
		c.log = c.log[:len(c.log)-1]
		if e.existed {
			c.values[e.key] = e.prior
			continue
		}
		delete(c.values, e.key)
		c.removeFromOrder(e.key)
	}
}

// Revert undoes every logged Set, leaving the context as it was seeded.
func (c *Context) Revert() {
	c.RevertTo(0)
}

// ChangesSinceStart returns the keys written since the log was last empty,
// with their current values.
func (c *Context) ChangesSinceStart() map[string]string {
	changes := make(map[string]string)
	for _, e := range c.log {
		changes[e.key] = c.values[e.key]
	}
	return changes
}

// Keys returns bound keys in order of first insertion.
func (c *Context) Keys() []string {
	return append([]string(nil), c.order...)
}

// Len returns the number of bound keys.
func (c *Context) Len() int {
	return len(c.values)
}

// Snapshot returns a copy of the current bindings.
func (c *Context) Snapshot() map[string]string {
	snap := make(map[string]string, len(c.values))
	for k, v := range c.values {
		snap[k] = v
	}
	return snap
}

func (c *Context) removeFromOrder(key string) {
	for i := len(c.order) - 1; i >= 0; i-- {
		if c.order[i] == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

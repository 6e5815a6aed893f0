package actor

import "sort"

// Handler processes one message. Exactly one handler runs at a time per
// actor; blocking inside a handler blocks only this actor's mailbox.
type Handler func(c *Context, args ...any) (any, error)

// Handlers maps message topics to their handlers.
type Handlers map[string]Handler

// Definition declares an actor behavior. For in-memory placement it is held
// by reference; for any other placement it must be produced by a factory
// registered in a behavior registry so the receiving process can rebuild it.
type Definition struct {
	// Name identifies the behavior factory. Required for non-local placement.
	Name string

	// Version of the behavior factory. Empty means "1".
	Version string

	// Mixins lists named behaviors whose handlers are merged into this one,
	// in order, before this definition's own handlers. Later entries win.
	Mixins []string

	// Resources names injector-managed singletons the behavior depends on.
	Resources []string

	// Handlers maps topics to handler funcs.
	Handlers Handlers

	// Initialize runs once after construction, before the first message.
	Initialize func(c *Context) error

	// Destroy runs once after the mailbox drained and children are destroyed.
	Destroy func(c *Context) error
}

// Topics returns the sorted list of topics this definition handles directly.
func (d *Definition) Topics() []string {
	out := make([]string, 0, len(d.Handlers))
	for t := range d.Handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Clone returns a shallow copy with an independent handler map, so merged or
// per-member copies never mutate the original.
func (d *Definition) Clone() *Definition {
	c := *d
	c.Handlers = make(Handlers, len(d.Handlers))
	for t, h := range d.Handlers {
		c.Handlers[t] = h
	}
	c.Mixins = append([]string(nil), d.Mixins...)
	c.Resources = append([]string(nil), d.Resources...)
	return &c
}

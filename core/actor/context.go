package actor

import (
	"context"
	"log/slog"
)

// Context is handed to behavior hooks and handlers. It carries the actor's
// run context, its logger, injected resources and custom parameters, plus the
// actor's own reference for creating children or reaching the parent.
type Context struct {
	context.Context

	log       *slog.Logger
	engine    *Actor
	self      Ref
	resources map[string]any
	params    map[string]any
}

func (c *Context) Log() *slog.Logger { return c.log }

// Self returns the reference of the actor this context belongs to.
func (c *Context) Self() Ref { return c.self }

// Parent returns the owning actor's reference, nil for the root.
func (c *Context) Parent() Ref {
	if c.self == nil {
		return nil
	}
	return c.self.Parent()
}

// Resource returns an injected resource by name, nil if not declared.
func (c *Context) Resource(name string) any { return c.resources[name] }

// Param returns a custom creation parameter by name.
func (c *Context) Param(name string) any { return c.params[name] }

// CreateChild creates a child of this actor.
func (c *Context) CreateChild(ctx context.Context, def *Definition, opts CreateOptions) (Ref, error) {
	if c.self == nil {
		return nil, ErrNoBehavior
	}
	return c.self.CreateChild(ctx, def, opts)
}

// ForwardToParent reroutes inbound messages matching any of the given topic
// patterns to the parent without local handling. First registered match wins.
func (c *Context) ForwardToParent(patterns ...string) error {
	parent := c.Parent()
	if parent == nil {
		return ErrNoChildToForward
	}
	return c.engine.addForward(parent, patterns...)
}

// ForwardToChild reroutes inbound messages matching any of the given topic
// patterns to the child without local handling. First registered match wins.
func (c *Context) ForwardToChild(child Ref, patterns ...string) error {
	if child == nil {
		return ErrNoChildToForward
	}
	return c.engine.addForward(child, patterns...)
}

package system

import (
	"context"

	"github.com/codewandler/troupe-go/core/actor"
)

// disabledRef is the placement of a switched-off actor: it exists in the
// tree but rejects all traffic. Reconfiguring it to a live placement brings
// the actor up under the same handle.
type disabledRef struct {
	id     string
	name   string
	parent actor.Ref
}

func (r *disabledRef) ID() string        { return r.id }
func (r *disabledRef) Name() string      { return r.name }
func (r *disabledRef) Mode() actor.Mode  { return actor.ModeDisabled }
func (r *disabledRef) Parent() actor.Ref { return r.parent }

func (r *disabledRef) Send(context.Context, string, ...any) error {
	return actor.ErrDisabled
}

func (r *disabledRef) SendAndReceive(context.Context, string, ...any) (any, error) {
	return nil, actor.ErrDisabled
}

func (r *disabledRef) BroadcastAndReceive(context.Context, string, ...any) ([]any, error) {
	return nil, actor.ErrDisabled
}

func (r *disabledRef) Destroy(context.Context) error { return nil }

func (r *disabledRef) Metrics(context.Context) (actor.Metrics, error) {
	return actor.Metrics{}, nil
}

func (r *disabledRef) Tree(context.Context) (*actor.TreeNode, error) {
	return &actor.TreeNode{Name: r.name, Location: actor.SelfLocation()}, nil
}

func (r *disabledRef) CreateChild(context.Context, *actor.Definition, actor.CreateOptions) (actor.Ref, error) {
	return nil, actor.ErrDisabled
}

func (r *disabledRef) ChangeConfiguration(context.Context, actor.CreateOptions) error {
	return actor.ErrDisabled
}

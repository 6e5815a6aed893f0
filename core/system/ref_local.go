package system

import (
	"context"
	"fmt"

	"github.com/codewandler/troupe-go/core/actor"
)

// localRef fronts an in-process engine. Tree walking, child bookkeeping and
// reconfiguration live in the owning handle; this reference only carries
// engine traffic.
type localRef struct {
	id     string
	name   string
	parent actor.Ref
	a      *actor.Actor
}

func (r *localRef) ID() string        { return r.id }
func (r *localRef) Name() string      { return r.name }
func (r *localRef) Mode() actor.Mode  { return actor.ModeInMemory }
func (r *localRef) Parent() actor.Ref { return r.parent }

func (r *localRef) Send(ctx context.Context, topic string, args ...any) error {
	_, err := r.a.Deliver(ctx, topic, args, false)
	return err
}

func (r *localRef) SendAndReceive(ctx context.Context, topic string, args ...any) (any, error) {
	return r.a.Deliver(ctx, topic, args, true)
}

func (r *localRef) BroadcastAndReceive(ctx context.Context, topic string, args ...any) ([]any, error) {
	res, err := r.a.Deliver(ctx, topic, args, true)
	if err != nil {
		return nil, err
	}
	return []any{res}, nil
}

func (r *localRef) Destroy(ctx context.Context) error {
	return r.a.Stop(ctx)
}

func (r *localRef) Metrics(ctx context.Context) (actor.Metrics, error) {
	return r.a.Snapshot(), nil
}

func (r *localRef) Tree(ctx context.Context) (*actor.TreeNode, error) {
	return &actor.TreeNode{Name: r.name, Location: actor.SelfLocation()}, nil
}

func (r *localRef) CreateChild(ctx context.Context, def *actor.Definition, opts actor.CreateOptions) (actor.Ref, error) {
	return nil, fmt.Errorf("create children through the owning handle")
}

func (r *localRef) ChangeConfiguration(ctx context.Context, opts actor.CreateOptions) error {
	return fmt.Errorf("reconfigure through the owning handle")
}

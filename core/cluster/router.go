package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/codewandler/troupe-go/core/actor"
)

// RouterOptions configure a cluster router.
type RouterOptions struct {
	ID     string
	Name   string
	Mode   actor.Mode
	Parent actor.Ref
	Log    *slog.Logger

	// Balancer names a registered balancer; empty selects round-robin.
	Balancer string
}

// Router fronts a fixed set of identically configured members behind one
// actor reference. Per-message routing goes through the balancer; broadcast
// and destroy reach every member.
type Router struct {
	id     string
	name   string
	mode   actor.Mode
	parent actor.Ref
	log    *slog.Logger

	mu       sync.Mutex
	members  []actor.Ref
	balancer Balancer
}

// NewRouter builds a router over the given members. Member order is cluster
// order; balancers and metrics keys follow it.
func NewRouter(opts RouterOptions, members []actor.Ref) (*Router, error) {
	if len(members) == 0 {
		return nil, ErrEmptyCluster
	}
	b, err := NewBalancer(opts.Balancer)
	if err != nil {
		return nil, err
	}
	if opts.Log == nil {
		opts.Log = slog.New(slog.DiscardHandler)
	}

	r := &Router{
		id:       opts.ID,
		name:     opts.Name,
		mode:     opts.Mode,
		parent:   opts.Parent,
		log:      opts.Log.With(slog.String("cluster", opts.Name)),
		members:  members,
		balancer: b,
	}
	b.ClusterChanged(r.memberIDs())
	return r, nil
}

func (r *Router) ID() string        { return r.id }
func (r *Router) Name() string      { return r.name }
func (r *Router) Mode() actor.Mode  { return r.mode }
func (r *Router) Parent() actor.Ref { return r.parent }

// Size returns the current member count.
func (r *Router) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *Router) memberIDs() []string {
	ids := make([]string, len(r.members))
	for i, m := range r.members {
		ids[i] = m.ID()
	}
	return ids
}

// Remove drops a member from the cluster and renotifies the balancer. The
// member itself is not destroyed; the caller owns its teardown.
func (r *Router) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.members {
		if m.ID() == id {
			r.members = append(r.members[:i], r.members[i+1:]...)
			r.balancer.ClusterChanged(r.memberIDs())
			return true
		}
	}
	return false
}

// pick runs the balancer and resolves its choice to a member reference.
func (r *Router) pick(topic string, args []any) (actor.Ref, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.members) == 0 {
		return nil, actor.ErrNoChildToForward
	}
	id := r.balancer.Forward(topic, args)
	for _, m := range r.members {
		if m.ID() == id {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w (balancer chose %q)", actor.ErrNoChildToForward, id)
}

func (r *Router) Send(ctx context.Context, topic string, args ...any) error {
	m, err := r.pick(topic, args)
	if err != nil {
		return err
	}
	return m.Send(ctx, topic, args...)
}

func (r *Router) SendAndReceive(ctx context.Context, topic string, args ...any) (any, error) {
	m, err := r.pick(topic, args)
	if err != nil {
		return nil, err
	}
	return m.SendAndReceive(ctx, topic, args...)
}

// BroadcastAndReceive sends to every member and collects the responses in
// cluster order. The first member error fails the whole broadcast.
func (r *Router) BroadcastAndReceive(ctx context.Context, topic string, args ...any) ([]any, error) {
	r.mu.Lock()
	members := make([]actor.Ref, len(r.members))
	copy(members, r.members)
	r.mu.Unlock()

	if len(members) == 0 {
		return nil, actor.ErrNoChildToForward
	}

	results := make([]any, len(members))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range members {
		g.Go(func() error {
			res, err := m.SendAndReceive(gctx, topic, args...)
			if err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Destroy tears down every member. Members are destroyed concurrently; the
// router keeps the first error but always attempts all of them.
func (r *Router) Destroy(ctx context.Context) error {
	r.mu.Lock()
	members := r.members
	r.members = nil
	r.balancer.ClusterChanged(nil)
	r.mu.Unlock()

	var g errgroup.Group
	for _, m := range members {
		g.Go(func() error { return m.Destroy(ctx) })
	}
	return g.Wait()
}

// Metrics returns one entry per member, keyed by its cluster index, plus a
// "summary" entry with the element-wise sum.
func (r *Router) Metrics(ctx context.Context) (actor.Metrics, error) {
	r.mu.Lock()
	members := make([]actor.Ref, len(r.members))
	copy(members, r.members)
	r.mu.Unlock()

	out := actor.Metrics{}
	all := make([]actor.Metrics, 0, len(members))
	for i, m := range members {
		mm, err := m.Metrics(ctx)
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
		out[strconv.Itoa(i)] = mm
		all = append(all, mm)
	}
	out["summary"] = actor.Sum(all...)
	return out, nil
}

func (r *Router) Tree(ctx context.Context) (*actor.TreeNode, error) {
	r.mu.Lock()
	members := make([]actor.Ref, len(r.members))
	copy(members, r.members)
	r.mu.Unlock()

	node := &actor.TreeNode{Name: r.name, Location: actor.SelfLocation()}
	for i, m := range members {
		child, err := m.Tree(ctx)
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

func (r *Router) CreateChild(ctx context.Context, def *actor.Definition, opts actor.CreateOptions) (actor.Ref, error) {
	return nil, fmt.Errorf("clustered actors cannot have children")
}

func (r *Router) ChangeConfiguration(ctx context.Context, opts actor.CreateOptions) error {
	return fmt.Errorf("reconfigure clusters via the system handle")
}

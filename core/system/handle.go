package system

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/troupe-go/core/actor"
	"github.com/codewandler/troupe-go/core/cluster"
	"github.com/codewandler/troupe-go/core/proc"
)

// refBox wraps the current placement so the pointer can be swapped
// atomically during reconfiguration.
type refBox struct {
	ref actor.Ref
}

// Handle is the stable reference the system hands out. Its identity never
// changes; the placement underneath (local engine, transport proxy, cluster
// router or disabled stub) is swappable through ChangeConfiguration.
type Handle struct {
	sys    *System
	parent *Handle
	id     string
	name   string
	def    *actor.Definition

	delegate atomic.Pointer[refBox]

	mu        sync.Mutex
	opts      actor.CreateOptions
	children  []*Handle
	destroyed bool

	// engines spawned while building a delegate; started only after the
	// delegate pointer is stored, so hooks running in the engine goroutine
	// always see a usable handle
	starts []func(context.Context)
}

func newHandle(ctx context.Context, sys *System, parent *Handle, def *actor.Definition, opts actor.CreateOptions) (*Handle, error) {
	if def == nil {
		return nil, actor.ErrNoBehavior
	}
	if sys.cfg != nil && opts.Name != "" {
		if over, ok := sys.cfg.Lookup(opts.Name); ok {
			opts = overlay(opts, over)
		}
	}

	h := &Handle{
		sys:    sys,
		parent: parent,
		id:     gonanoid.Must(),
		name:   opts.Name,
		def:    def,
		opts:   opts,
	}

	ref, err := h.buildDelegate(ctx, opts)
	if err != nil {
		return nil, err
	}
	h.delegate.Store(&refBox{ref: ref})
	h.runStarts(ctx)
	return h, nil
}

func (h *Handle) runStarts(ctx context.Context) {
	h.mu.Lock()
	starts := h.starts
	h.starts = nil
	h.mu.Unlock()
	for _, start := range starts {
		start(ctx)
	}
}

// buildDelegate constructs the placement described by opts under this
// handle's identity.
func (h *Handle) buildDelegate(ctx context.Context, opts actor.CreateOptions) (actor.Ref, error) {
	switch opts.Mode {
	case actor.ModeDisabled:
		return &disabledRef{id: h.id, name: h.name, parent: h.parentRef()}, nil

	case "", actor.ModeInMemory:
		return h.buildCluster(ctx, opts, func(ctx context.Context, id string) (actor.Ref, error) {
			return h.spawnLocal(ctx, id, opts)
		})

	case actor.ModeThreaded:
		return h.buildCluster(ctx, opts, func(ctx context.Context, id string) (actor.Ref, error) {
			return h.spawnProxy(ctx, id, opts, proc.ThreadOpener{Env: h.sys.Env()})
		})

	case actor.ModeForked:
		return h.buildCluster(ctx, opts, func(ctx context.Context, id string) (actor.Ref, error) {
			return h.spawnProxy(ctx, id, opts, proc.ForkOpener{})
		})

	case actor.ModeRemote:
		return h.buildRemote(ctx, opts)

	default:
		return nil, fmt.Errorf("unknown placement mode %q", opts.Mode)
	}
}

type spawnFunc func(ctx context.Context, id string) (actor.Ref, error)

// buildCluster spawns either a singleton or ClusterSize members behind a
// router. Member identities derive from the handle identity.
func (h *Handle) buildCluster(ctx context.Context, opts actor.CreateOptions, spawn spawnFunc) (actor.Ref, error) {
	if opts.ClusterSize <= 1 {
		return spawn(ctx, h.id)
	}

	members := make([]actor.Ref, 0, opts.ClusterSize)
	for i := range opts.ClusterSize {
		m, err := spawn(ctx, fmt.Sprintf("%s-%d", h.id, i))
		if err != nil {
			for _, prev := range members {
				_ = prev.Destroy(ctx)
			}
			return nil, err
		}
		members = append(members, m)
	}

	return cluster.NewRouter(cluster.RouterOptions{
		ID:       h.id,
		Name:     h.name,
		Mode:     h.mode(opts),
		Parent:   h.parentRef(),
		Log:      h.sys.log,
		Balancer: opts.Balancer,
	}, members)
}

// buildRemote places one member per cluster address, or a singleton on
// Host:Port when no address list is given.
func (h *Handle) buildRemote(ctx context.Context, opts actor.CreateOptions) (actor.Ref, error) {
	if len(opts.Cluster) == 0 {
		return h.spawnProxy(ctx, h.id, opts, proc.RemoteOpener{Host: opts.Host, Port: opts.Port})
	}

	members := make([]actor.Ref, 0, len(opts.Cluster))
	for i, addr := range opts.Cluster {
		host, port, err := splitHostPort(addr)
		if err != nil {
			for _, prev := range members {
				_ = prev.Destroy(ctx)
			}
			return nil, err
		}
		m, err := h.spawnProxy(ctx, fmt.Sprintf("%s-%d", h.id, i), opts, proc.RemoteOpener{Host: host, Port: port})
		if err != nil {
			for _, prev := range members {
				_ = prev.Destroy(ctx)
			}
			return nil, err
		}
		members = append(members, m)
	}

	return cluster.NewRouter(cluster.RouterOptions{
		ID:       h.id,
		Name:     h.name,
		Mode:     actor.ModeRemote,
		Parent:   h.parentRef(),
		Log:      h.sys.log,
		Balancer: opts.Balancer,
	}, members)
}

func (h *Handle) spawnLocal(ctx context.Context, id string, opts actor.CreateOptions) (actor.Ref, error) {
	var resources map[string]any
	if len(h.def.Resources) > 0 {
		var err error
		resources, err = h.sys.injector.Resolve(ctx, h.def.Resources)
		if err != nil {
			return nil, err
		}
	}

	a, err := actor.New(actor.Options{
		ID:              id,
		Name:            h.name,
		Log:             h.sys.log,
		MailboxSize:     h.sys.mailbox,
		Instrumentation: h.sys.actorIns,
		Resources:       resources,
		Params:          opts.CustomParameters,
		OnDrained:       h.destroyChildren,
	}, h.def)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.starts = append(h.starts, func(ctx context.Context) { a.Start(ctx, h) })
	h.mu.Unlock()
	return &localRef{id: id, name: h.name, parent: h.parentRef(), a: a}, nil
}

func (h *Handle) spawnProxy(ctx context.Context, id string, opts actor.CreateOptions, opener proc.Opener) (actor.Ref, error) {
	return proc.NewProxy(ctx, proc.ProxyOptions{
		ID:          id,
		Name:        h.name,
		Mode:        h.mode(opts),
		Parent:      h.parentRef(),
		Log:         h.sys.log,
		Opener:      opener,
		Marshallers: h.sys.marshallers,
		Bus:         h.sys.bus,
		Metrics:     h.sys.transportIns,
		OnCrash:     opts.OnCrash,
		LogLevel:    opts.LogLevel,
		Params:      opts.CustomParameters,
		MailboxSize: h.sys.mailbox,
	}, h.def)
}

func (h *Handle) mode(opts actor.CreateOptions) actor.Mode {
	if opts.Mode == "" {
		return actor.ModeInMemory
	}
	return opts.Mode
}

// parentRef returns the parent as a plain interface, avoiding a typed nil for
// the root.
func (h *Handle) parentRef() actor.Ref {
	if h.parent == nil {
		return nil
	}
	return h.parent
}

func (h *Handle) deleg() actor.Ref { return h.delegate.Load().ref }

func (h *Handle) ID() string   { return h.id }
func (h *Handle) Name() string { return h.name }

func (h *Handle) Mode() actor.Mode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mode(h.opts)
}

func (h *Handle) Parent() actor.Ref { return h.parentRef() }

func (h *Handle) Send(ctx context.Context, topic string, args ...any) error {
	return h.deleg().Send(ctx, topic, args...)
}

func (h *Handle) SendAndReceive(ctx context.Context, topic string, args ...any) (any, error) {
	return h.deleg().SendAndReceive(ctx, topic, args...)
}

func (h *Handle) BroadcastAndReceive(ctx context.Context, topic string, args ...any) ([]any, error) {
	return h.deleg().BroadcastAndReceive(ctx, topic, args...)
}

// CreateChild creates a child under this handle. The child's placement comes
// from opts (overridden by the system's config provider). When this actor is
// transported, the call travels over its connection and the child lives in
// the hosting process.
func (h *Handle) CreateChild(ctx context.Context, def *actor.Definition, opts actor.CreateOptions) (actor.Ref, error) {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return nil, actor.ErrDestroyed
	}
	h.mu.Unlock()

	if _, ok := h.deleg().(*localRef); !ok {
		return h.deleg().CreateChild(ctx, def, opts)
	}

	child, err := newHandle(ctx, h.sys, h, def, opts)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.children = append(h.children, child)
	h.mu.Unlock()
	return child, nil
}

// destroyChildren tears children down in reverse creation order. For local
// placements it runs between mailbox drain and the destroy hook, giving the
// children-first destruction order.
func (h *Handle) destroyChildren(ctx context.Context) {
	h.mu.Lock()
	children := h.children
	h.children = nil
	h.mu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		if err := children[i].Destroy(ctx); err != nil {
			h.sys.log.Error("child destroy failed",
				"actor", children[i].Name(),
				"error", err,
			)
		}
	}
}

func (h *Handle) childHandles() []*Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Handle, len(h.children))
	copy(out, h.children)
	return out
}

func (h *Handle) removeChild(child *Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, c := range h.children {
		if c == child {
			h.children = append(h.children[:i], h.children[i+1:]...)
			return
		}
	}
}

// Destroy tears down the subtree rooted at this handle. Idempotent.
func (h *Handle) Destroy(ctx context.Context) error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return nil
	}
	h.destroyed = true
	h.mu.Unlock()

	err := h.deleg().Destroy(ctx)

	// non-local placements keep no local children, but a disabled or failed
	// delegate never ran the drain callback
	h.destroyChildren(ctx)

	if h.parent != nil {
		h.parent.removeChild(h)
	}
	return err
}

// Metrics aggregates this actor's snapshot with its whole subtree.
func (h *Handle) Metrics(ctx context.Context) (actor.Metrics, error) {
	own, err := h.deleg().Metrics(ctx)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	children := make([]*Handle, len(h.children))
	copy(children, h.children)
	h.mu.Unlock()

	all := []actor.Metrics{own}
	for _, c := range children {
		cm, err := c.Metrics(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, cm)
	}
	return actor.Sum(all...), nil
}

// Tree returns the introspected subtree. Non-local children report their
// own location; the transport walks their side of the tree.
func (h *Handle) Tree(ctx context.Context) (*actor.TreeNode, error) {
	node, err := h.deleg().Tree(ctx)
	if err != nil {
		return nil, err
	}
	if h.name != "" {
		node.Name = h.name
	}

	h.mu.Lock()
	children := make([]*Handle, len(h.children))
	copy(children, h.children)
	h.mu.Unlock()

	for _, c := range children {
		child, err := c.Tree(ctx)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

// ChangeConfiguration rebuilds the placement under the same identity. The
// old placement is destroyed first; in-flight messages to it drain before
// the swap, new sends reach the new placement after it.
func (h *Handle) ChangeConfiguration(ctx context.Context, opts actor.CreateOptions) error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return actor.ErrDestroyed
	}
	merged := overlay(h.opts, opts)
	h.mu.Unlock()

	if err := h.deleg().Destroy(ctx); err != nil {
		return err
	}

	ref, err := h.buildDelegate(ctx, merged)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.opts = merged
	h.mu.Unlock()
	h.delegate.Store(&refBox{ref: ref})
	h.runStarts(ctx)

	h.sys.log.Info("actor reconfigured",
		"actor", h.name,
		"mode", string(h.mode(merged)),
	)
	return nil
}

package system

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/codewandler/troupe-go/core/actor"
	"github.com/codewandler/troupe-go/core/behavior"
	"github.com/codewandler/troupe-go/core/bus"
	"github.com/codewandler/troupe-go/core/inject"
	"github.com/codewandler/troupe-go/core/proc"
)

// Options configure a System. The zero value gives a working single-process
// runtime with discard logging.
type Options struct {
	Log *slog.Logger
	// LogLevel is the initial level ("debug", "info", "warn", "error").
	// Adjustable at runtime through SetLogLevel.
	LogLevel string

	// Config supplies per-actor placement overrides by name.
	Config Provider

	// Registry holds the named behaviors available for non-local placements.
	Registry *behavior.Registry
	// Marshallers encode typed message arguments across transports.
	Marshallers *behavior.Marshallers
	// Resources are declared with the injector at startup.
	Resources []inject.Resource

	ActorMetrics     actor.ActorMetrics
	TransportMetrics proc.TransportMetrics

	// MailboxSize for every actor created by this system. Defaults to 1024.
	MailboxSize int
}

// System owns one actor tree plus the shared machinery around it: behavior
// registry, marshalling registry, resource injector and system bus.
type System struct {
	log   *slog.Logger
	level *slog.LevelVar
	cfg   Provider

	registry     *behavior.Registry
	marshallers  *behavior.Marshallers
	injector     *inject.Injector
	bus          *bus.Bus
	actorIns     actor.ActorMetrics
	transportIns proc.TransportMetrics
	mailbox      int

	root *Handle

	mu        sync.Mutex
	destroyed bool
}

// New builds a system and starts its root actor.
func New(ctx context.Context, opts Options) (*System, error) {
	level := new(slog.LevelVar)
	if opts.LogLevel != "" {
		lvl, err := proc.ParseLevel(opts.LogLevel)
		if err != nil {
			return nil, err
		}
		level.Set(lvl)
	}
	if opts.Log == nil {
		opts.Log = slog.New(slog.DiscardHandler)
	}
	if opts.Registry == nil {
		opts.Registry = behavior.NewRegistry()
	}
	if opts.Marshallers == nil {
		opts.Marshallers, _ = behavior.NewMarshallers()
	}
	if opts.ActorMetrics == nil {
		opts.ActorMetrics = actor.NopActorMetrics()
	}
	if opts.TransportMetrics == nil {
		opts.TransportMetrics = proc.NopTransportMetrics()
	}
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = 1024
	}

	injector, err := inject.New(opts.Resources...)
	if err != nil {
		return nil, err
	}

	s := &System{
		log:          opts.Log,
		level:        level,
		cfg:          opts.Config,
		registry:     opts.Registry,
		marshallers:  opts.Marshallers,
		injector:     injector,
		bus:          bus.New(bus.Options{Log: opts.Log}),
		actorIns:     opts.ActorMetrics,
		transportIns: opts.TransportMetrics,
		mailbox:      opts.MailboxSize,
	}

	root, err := newHandle(ctx, s, nil, &actor.Definition{Name: "root"}, actor.CreateOptions{Name: "root"})
	if err != nil {
		return nil, err
	}
	s.root = root
	return s, nil
}

// Root returns the root of the actor tree. All top-level actors are its
// children.
func (s *System) Root() *Handle { return s.root }

// Bus returns the system bus. Events published here reach subscribers in
// every bridged process.
func (s *System) Bus() *bus.Bus { return s.bus }

func (s *System) Registry() *behavior.Registry       { return s.registry }
func (s *System) Marshallers() *behavior.Marshallers { return s.marshallers }
func (s *System) Injector() *inject.Injector         { return s.injector }

// CreateChild creates a top-level actor under the root.
func (s *System) CreateChild(ctx context.Context, def *actor.Definition, opts actor.CreateOptions) (actor.Ref, error) {
	return s.root.CreateChild(ctx, def, opts)
}

// Tree introspects the whole actor tree.
func (s *System) Tree(ctx context.Context) (*actor.TreeNode, error) {
	return s.root.Tree(ctx)
}

// SetLogLevel adjusts the runtime log level without a restart. It applies
// wherever the system's level var is wired into a handler.
func (s *System) SetLogLevel(name string) error {
	lvl, err := proc.ParseLevel(name)
	if err != nil {
		return err
	}
	s.level.Set(lvl)
	return nil
}

// Level exposes the adjustable level var for handler construction.
func (s *System) Level() *slog.LevelVar { return s.level }

// ChangeGlobalConfiguration reconfigures every actor with the given name,
// walking the local tree depth-first.
func (s *System) ChangeGlobalConfiguration(ctx context.Context, name string, opts actor.CreateOptions) error {
	if name == "" {
		return fmt.Errorf("actor name is required")
	}

	var walk func(h *Handle) error
	walk = func(h *Handle) error {
		for _, c := range h.childHandles() {
			if err := walk(c); err != nil {
				return err
			}
		}
		if h.Name() == name {
			return h.ChangeConfiguration(ctx, opts)
		}
		return nil
	}
	return walk(s.root)
}

// Env is the endpoint environment for hosting actors placed into this
// process by a parent over fork, thread or socket.
func (s *System) Env() proc.Env {
	return proc.Env{
		Log:         s.log,
		Level:       s.level,
		Registry:    s.registry,
		Marshallers: s.marshallers,
		Injector:    s.injector,
		Bus:         s.bus,
		NewActor:    s.hostActor,
	}
}

// hostActor spawns a locally rooted actor for an endpoint. Unlike children
// created through a handle, the identity is dictated by the parent process.
func (s *System) hostActor(ctx context.Context, def *actor.Definition, cfg proc.ActorConfig) (actor.Ref, error) {
	h := &Handle{
		sys:  s,
		id:   cfg.ID,
		name: cfg.Name,
		def:  def,
		opts: actor.CreateOptions{Name: cfg.Name, CustomParameters: cfg.Params},
	}

	a, err := actor.New(actor.Options{
		ID:              cfg.ID,
		Name:            cfg.Name,
		Log:             s.log,
		MailboxSize:     cfg.MailboxSize,
		Instrumentation: s.actorIns,
		Resources:       cfg.Resources,
		Params:          cfg.Params,
		OnDrained:       h.destroyChildren,
	}, def)
	if err != nil {
		return nil, err
	}

	h.delegate.Store(&refBox{ref: &localRef{id: cfg.ID, name: cfg.Name, a: a}})
	a.Start(ctx, h)

	// the creation handshake acks only a fully initialized actor
	<-a.InitDone()
	if err := a.InitErr(); err != nil {
		return nil, err
	}
	return h, nil
}

// Listen makes this process available as a remote placement target.
func (s *System) Listen(ctx context.Context, addr string) (*proc.Listener, error) {
	return proc.Listen(ctx, addr, s.Env())
}

// RunWorker serves a forked placement over the inherited pipes. Binaries
// that fork actors must branch into this when proc.IsWorker reports true.
func (s *System) RunWorker(ctx context.Context) error {
	return proc.RunWorker(ctx, s.Env())
}

// Destroy tears the tree down bottom-up, then closes the injector's
// resources in reverse instantiation order and shuts the bus. Idempotent.
func (s *System) Destroy(ctx context.Context) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	s.destroyed = true
	s.mu.Unlock()

	err := s.root.Destroy(ctx)
	if ierr := s.injector.Destroy(ctx); err == nil {
		err = ierr
	}
	s.bus.Close()
	return err
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("bad cluster address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("bad cluster address %q: %w", addr, err)
	}
	return host, port, nil
}

package actor

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Options configure a local actor engine.
type Options struct {
	ID          string
	Name        string
	Log         *slog.Logger
	MailboxSize int
	// Instrumentation receives per-message metrics. Defaults to a no-op.
	Instrumentation ActorMetrics
	// Resources are the injected singletons declared by the definition.
	Resources map[string]any
	// Params is the immutable custom-parameter bag from CreateOptions.
	Params map[string]any
	// OnDrained runs after the mailbox drained and before the destroy hook.
	// The owning reference uses it to destroy children bottom-up.
	OnDrained func(ctx context.Context)
}

type reply struct {
	result any
	err    error
}

type envelope struct {
	topic string
	args  []any
	reply chan reply // nil for fire-and-forget
}

type forwardRule struct {
	pattern string
	re      *regexp.Regexp
	target  Ref
}

func (r forwardRule) match(topic string) bool {
	if r.pattern == topic {
		return true
	}
	return r.re != nil && r.re.MatchString(topic)
}

// Actor is the local engine owning one unit of behavior: a lifecycle state
// machine plus one ordered mailbox. Exactly one handler is in flight at any
// time. There is one engine per logical actor regardless of placement; for
// non-local placements it lives in the child endpoint's process.
type Actor struct {
	id   string
	name string
	log  *slog.Logger
	def  *Definition
	ins  ActorMetrics

	mu      sync.Mutex
	state   State
	initErr error
	stopCtx context.Context

	mailbox  chan *envelope
	stopping chan struct{}
	initDone chan struct{}
	done     chan struct{}

	fwMu     sync.RWMutex
	forwards []forwardRule

	runCtx    context.Context
	actorCtx  *Context
	onDrained func(ctx context.Context)

	received  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
}

// New creates an engine in state "new". Call Start to begin initialization.
func New(opts Options, def *Definition) (*Actor, error) {
	if def == nil {
		return nil, ErrNoBehavior
	}
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = 1024
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Instrumentation == nil {
		opts.Instrumentation = NopActorMetrics()
	}

	return &Actor{
		id:        opts.ID,
		name:      opts.Name,
		log:       opts.Log,
		def:       def,
		ins:       opts.Instrumentation,
		state:     StateNew,
		mailbox:   make(chan *envelope, opts.MailboxSize),
		stopping:  make(chan struct{}),
		initDone:  make(chan struct{}),
		done:      make(chan struct{}),
		onDrained: opts.OnDrained,
		actorCtx: &Context{
			log:       opts.Log,
			resources: opts.Resources,
			params:    opts.Params,
		},
	}, nil
}

func (a *Actor) ID() string   { return a.id }
func (a *Actor) Name() string { return a.name }

// State returns the current lifecycle state.
func (a *Actor) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// InitDone is closed once initialization finished, successfully or not.
func (a *Actor) InitDone() <-chan struct{} { return a.initDone }

// InitErr returns the Initialize hook error, if any.
func (a *Actor) InitErr() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initErr
}

// Done is closed when the actor has fully stopped.
func (a *Actor) Done() <-chan struct{} { return a.done }

// Start transitions to "initializing" and begins the mailbox loop. The
// Initialize hook runs asynchronously; messages delivered before it completes
// fail with ErrNotInitialized.
func (a *Actor) Start(ctx context.Context, self Ref) {
	a.mu.Lock()
	if a.state != StateNew {
		a.mu.Unlock()
		return
	}
	if a.def.Initialize == nil {
		// nothing to initialize, deliverable right away
		a.state = StateIdle
	} else {
		a.state = StateInitializing
	}
	// the engine outlives the creating call; its context must not end with it
	runCtx := context.WithoutCancel(ctx)
	a.runCtx = runCtx
	a.actorCtx.Context = runCtx
	a.actorCtx.engine = a
	a.actorCtx.self = self
	started := a.state
	a.mu.Unlock()

	if started == StateIdle {
		close(a.initDone)
	}
	go a.run()
}

// Deliver enqueues a message. With wantReply it blocks until the handler
// responded; otherwise it returns as soon as the message is enqueued.
func (a *Actor) Deliver(ctx context.Context, topic string, args []any, wantReply bool) (any, error) {
	a.mu.Lock()
	switch a.state {
	case StateNew, StateInitializing:
		a.mu.Unlock()
		return nil, ErrNotInitialized
	case StateDestroying, StateDestroyed:
		a.mu.Unlock()
		return nil, ErrDestroyed
	}
	a.mu.Unlock()

	env := &envelope{topic: topic, args: args}
	if wantReply {
		env.reply = make(chan reply, 1)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.stopping:
		return nil, ErrDestroyed
	case a.mailbox <- env:
		a.received.Add(1)
		a.ins.MailboxDepth(a.id, len(a.mailbox))
	}

	if !wantReply {
		return nil, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-env.reply:
		return r.result, r.err
	case <-a.done:
		// the drain replies to everything already enqueued
		select {
		case r := <-env.reply:
			return r.result, r.err
		default:
			return nil, ErrDestroyed
		}
	}
}

// Stop drains the mailbox, runs OnDrained, then the destroy hook, exactly
// once. Stopping an already stopped actor waits for completion and returns.
func (a *Actor) Stop(ctx context.Context) error {
	a.mu.Lock()
	switch a.state {
	case StateDestroyed:
		a.mu.Unlock()
		return nil
	case StateDestroying:
		a.mu.Unlock()
		<-a.done
		return nil
	case StateNew:
		// never started, nothing to drain
		a.state = StateDestroyed
		a.mu.Unlock()
		close(a.initDone)
		close(a.done)
		return nil
	}
	a.state = StateDestroying
	a.stopCtx = ctx
	a.mu.Unlock()

	close(a.stopping)
	<-a.done
	return nil
}

// Snapshot returns this actor's own metrics. Values are float64 so snapshots
// survive a JSON round trip unchanged.
func (a *Actor) Snapshot() Metrics {
	return Metrics{
		"received":  float64(a.received.Load()),
		"processed": float64(a.processed.Load()),
		"failed":    float64(a.failed.Load()),
		"mailbox":   float64(len(a.mailbox)),
	}
}

// ---- internals ----

func (a *Actor) run() {
	defer close(a.done)

	if a.def.Initialize != nil {
		if err := a.initialize(); err != nil {
			return
		}
	}

	for {
		select {
		case <-a.stopping:
			a.shutdown()
			return
		case env := <-a.mailbox:
			a.dispatch(env)
		}
	}
}

func (a *Actor) initialize() error {
	var err error
	if a.def.Initialize != nil {
		err = a.safeInit()
	}

	a.mu.Lock()
	if err != nil {
		a.initErr = err
		a.state = StateDestroyed
	} else if a.state == StateInitializing {
		a.state = StateIdle
	}
	a.mu.Unlock()
	close(a.initDone)

	if err != nil {
		a.log.Error("actor initialization failed",
			slog.String("actor", a.name),
			slog.Any("error", err),
		)
	}
	return err
}

func (a *Actor) safeInit() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("initialize panicked: %v", r)
		}
	}()
	return a.def.Initialize(a.actorCtx)
}

func (a *Actor) shutdown() {
	// drain everything that made it into the mailbox
	for {
		select {
		case env := <-a.mailbox:
			a.dispatch(env)
		default:
			a.finalize()
			return
		}
	}
}

func (a *Actor) finalize() {
	ctx := a.stopCtx
	if ctx == nil {
		ctx = context.Background()
	}

	if a.onDrained != nil {
		a.onDrained(ctx)
	}

	if a.def.Destroy != nil {
		if err := a.safeDestroy(); err != nil {
			a.log.Error("destroy hook failed",
				slog.String("actor", a.name),
				slog.Any("error", err),
			)
		}
	}

	a.mu.Lock()
	a.state = StateDestroyed
	a.mu.Unlock()
}

func (a *Actor) safeDestroy() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("destroy hook panicked: %v", r)
		}
	}()
	return a.def.Destroy(a.actorCtx)
}

func (a *Actor) dispatch(env *envelope) {
	a.setProcessing(true)
	defer a.setProcessing(false)

	timer := a.ins.MessageDuration(env.topic)
	res, err := a.safeHandle(env)
	timer.ObserveDuration()

	a.processed.Add(1)
	a.ins.MessageProcessed(env.topic, err == nil)
	if err != nil {
		a.failed.Add(1)
	}

	if env.reply != nil {
		env.reply <- reply{result: res, err: err}
		return
	}
	if err != nil {
		// fire-and-forget: handler errors are logged, never raised
		a.log.Error("handler failed",
			slog.String("actor", a.name),
			slog.String("topic", env.topic),
			slog.Any("error", err),
		)
	}
}

func (a *Actor) safeHandle(env *envelope) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("handler panicked",
				slog.String("topic", env.topic),
				slog.Any("recovered", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return a.handle(env)
}

func (a *Actor) handle(env *envelope) (any, error) {
	// forwarding rules preempt local handling, first match wins
	a.fwMu.RLock()
	rules := a.forwards
	a.fwMu.RUnlock()
	for _, rule := range rules {
		if !rule.match(env.topic) {
			continue
		}
		if env.reply != nil {
			return rule.target.SendAndReceive(a.runCtx, env.topic, env.args...)
		}
		return nil, rule.target.Send(a.runCtx, env.topic, env.args...)
	}

	h, ok := a.def.Handlers[env.topic]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, env.topic)
	}
	return h(a.actorCtx, env.args...)
}

func (a *Actor) addForward(target Ref, patterns ...string) error {
	rules := make([]forwardRule, 0, len(patterns))
	for _, p := range patterns {
		rule := forwardRule{pattern: p, target: target}
		if re, err := regexp.Compile("^(?:" + p + ")$"); err == nil {
			rule.re = re
		}
		rules = append(rules, rule)
	}

	a.fwMu.Lock()
	a.forwards = append(a.forwards, rules...)
	a.fwMu.Unlock()
	return nil
}

func (a *Actor) setProcessing(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if on && a.state == StateIdle {
		a.state = StateProcessing
	} else if !on && a.state == StateProcessing {
		a.state = StateIdle
	}
}

package proc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/troupe-go/core/actor"
	"github.com/codewandler/troupe-go/core/behavior"
	"github.com/codewandler/troupe-go/core/bus"
	"github.com/codewandler/troupe-go/internal/codec"
)

// Opener opens the physical channel to a child endpoint. Fork, thread and
// remote placements plug in here; everything above the channel is shared.
type Opener interface {
	Open(ctx context.Context) (conn *Conn, err error)
}

// ProxyOptions configure a transport proxy.
type ProxyOptions struct {
	ID     string
	Name   string
	Mode   actor.Mode
	Parent actor.Ref

	Log         *slog.Logger
	Opener      Opener
	Marshallers *behavior.Marshallers
	Bus         *bus.Bus
	Metrics     TransportMetrics

	OnCrash actor.OnCrash
	// RespawnAttempts bounds handshake retries after a crash. Default 3.
	RespawnAttempts int

	LogLevel    string
	Params      map[string]any
	MailboxSize int
}

type pendingReply struct {
	frame Frame
	err   error
}

// Proxy is the parent-side stub of a non-local actor. It implements the
// actor reference contract over a framed channel; the paired endpoint hosts
// the one real actor engine.
type Proxy struct {
	id     string
	name   string
	mode   actor.Mode
	parent actor.Ref
	log    *slog.Logger

	opener Opener
	ms     *behavior.Marshallers
	bus    *bus.Bus
	ins    TransportMetrics

	onCrash  actor.OnCrash
	attempts int
	logLevel string
	params   map[string]any
	mailbox  int

	desc   behavior.Descriptor
	bridge *busBridge

	mu      sync.Mutex
	conn    *Conn
	pending map[string]chan pendingReply
	failed  bool
	// closing suppresses respawn during teardown; destroyed rejects all
	// traffic once teardown finished
	closing   bool
	destroyed bool
}

// busBridge pushes parent-side bus events down this proxy's connection.
type busBridge struct {
	p *Proxy
}

func (b *busBridge) Forward(ev bus.Event) error {
	b.p.mu.Lock()
	conn := b.p.conn
	b.p.mu.Unlock()
	if conn == nil {
		return nil // nothing to bridge while down
	}
	return conn.Write(Frame{Type: FrameBusEvent, Body: mustBody(BusEventBody{Event: ev})})
}

// NewProxy compiles the definition and runs the creation handshake. The
// returned proxy accepts application traffic only after the endpoint
// acknowledged with actor-created.
func NewProxy(ctx context.Context, opts ProxyOptions, def *actor.Definition) (*Proxy, error) {
	if opts.Opener == nil {
		return nil, fmt.Errorf("%w: opener is required", ErrHandshake)
	}
	if opts.ID == "" {
		opts.ID = gonanoid.Must()
	}
	if opts.Log == nil {
		opts.Log = slog.New(slog.DiscardHandler)
	}
	if opts.Metrics == nil {
		opts.Metrics = NopTransportMetrics()
	}
	if opts.Marshallers == nil {
		opts.Marshallers, _ = behavior.NewMarshallers()
	}
	if opts.RespawnAttempts <= 0 {
		opts.RespawnAttempts = 3
	}

	desc, err := behavior.Compile(def)
	if err != nil {
		return nil, err
	}

	p := &Proxy{
		id:       opts.ID,
		name:     opts.Name,
		mode:     opts.Mode,
		parent:   opts.Parent,
		log:      opts.Log.With(slog.String("proxy", string(opts.Mode)), slog.String("actor", opts.Name)),
		opener:   opts.Opener,
		ms:       opts.Marshallers,
		bus:      opts.Bus,
		ins:      opts.Metrics,
		onCrash:  opts.OnCrash,
		attempts: opts.RespawnAttempts,
		logLevel: opts.LogLevel,
		params:   opts.Params,
		mailbox:  opts.MailboxSize,
		desc:     desc,
		pending:  make(map[string]chan pendingReply),
	}
	p.bridge = &busBridge{p: p}

	if err := p.spawn(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Proxy) ID() string        { return p.id }
func (p *Proxy) Name() string      { return p.name }
func (p *Proxy) Mode() actor.Mode  { return p.mode }
func (p *Proxy) Parent() actor.Ref { return p.parent }

// spawn opens the channel and runs the handshake under the proxy identity.
func (p *Proxy) spawn(ctx context.Context) error {
	conn, err := p.opener.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	parentID := ""
	if p.parent != nil {
		parentID = p.parent.ID()
	}

	create := Frame{
		Type: FrameCreateActor,
		ID:   gonanoid.Must(),
		Body: mustBody(CreateActorBody{
			Behaviour:       p.desc,
			BehaviourFormat: behavior.FormatFactoryV1,
			Context:         p.params,
			ContextFormat:   "json",
			Config: CreateConfig{
				ID:          p.id,
				Name:        p.name,
				MailboxSize: p.mailbox,
			},
			Parent:      ParentInfo{ID: parentID},
			LogLevel:    p.logLevel,
			Marshallers: p.ms.Types(),
		}),
	}
	if err := conn.Write(create); err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	// the endpoint sends nothing before acknowledging creation
	ack, err := conn.Read()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if ack.Error != "" {
		_ = conn.Close()
		return fmt.Errorf("%w: %s", ErrHandshake, ack.Error)
	}
	var body ActorCreatedBody
	if err := json.Unmarshal(ack.Body, &body); err != nil || ack.Type != FrameActorCreated {
		_ = conn.Close()
		return fmt.Errorf("%w: unexpected handshake reply %q", ErrHandshake, ack.Type)
	}

	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()

	if p.bus != nil {
		p.bus.AttachBridge(p.bridge)
	}

	go p.readLoop(conn)
	return nil
}

func (p *Proxy) readLoop(conn *Conn) {
	for {
		f, err := conn.Read()
		if err != nil {
			p.onDisconnect(conn, err)
			return
		}

		switch f.Type {
		case FrameActorResponse, FrameActorCreated, FrameActorDestroyed:
			p.mu.Lock()
			ch, ok := p.pending[f.ID]
			if ok {
				delete(p.pending, f.ID)
			}
			p.ins.PendingRequests(p.id, len(p.pending))
			p.mu.Unlock()
			if ok {
				ch <- pendingReply{frame: f}
			}

		case FrameBusEvent:
			if p.bus == nil {
				continue
			}
			var body BusEventBody
			if err := json.Unmarshal(f.Body, &body); err != nil {
				p.log.Warn("bad bus-event frame", slog.Any("error", err))
				continue
			}
			p.bus.Inject(body.Event, p.bridge)

		default:
			p.log.Warn("unexpected frame from endpoint", slog.String("type", f.Type))
		}
	}
}

// onDisconnect rejects the whole pending-response table, then either
// respawns under the same identity or fails the proxy permanently.
func (p *Proxy) onDisconnect(conn *Conn, cause error) {
	p.mu.Lock()
	if p.conn != conn {
		p.mu.Unlock()
		return
	}
	p.conn = nil
	rejected := p.pending
	p.pending = make(map[string]chan pendingReply)
	p.ins.PendingRequests(p.id, 0)
	tearingDown := p.destroyed || p.closing
	p.mu.Unlock()

	_ = conn.Close()

	for _, ch := range rejected {
		ch <- pendingReply{err: fmt.Errorf("%w: %v", ErrConnClosed, cause)}
	}

	if tearingDown {
		return
	}

	if p.bus != nil {
		p.bus.DetachBridge(p.bridge)
	}

	p.log.Warn("transport channel closed", slog.Any("error", cause))

	if p.onCrash != actor.OnCrashRespawn {
		p.fail()
		return
	}

	// respawn: same identity, same options, fresh channel
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err := p.spawn(context.Background()); err != nil {
			p.log.Error("respawn attempt failed",
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
			continue
		}
		p.log.Info("actor respawned", slog.String("id", p.id))
		p.ins.Respawned(p.id)
		return
	}
	p.fail()
}

func (p *Proxy) fail() {
	p.mu.Lock()
	p.failed = true
	p.mu.Unlock()
	p.log.Error("proxy permanently failed", slog.String("id", p.id))
}

func (p *Proxy) currentConn() (*Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.destroyed:
		return nil, actor.ErrDestroyed
	case p.failed:
		return nil, ErrProxyFailed
	case p.conn == nil:
		return nil, ErrConnClosed
	}
	return p.conn, nil
}

// call performs one correlated round trip.
func (p *Proxy) call(ctx context.Context, frameType string, body json.RawMessage) (Frame, error) {
	conn, err := p.currentConn()
	if err != nil {
		return Frame{}, err
	}

	corrID := gonanoid.Must()
	ch := make(chan pendingReply, 1)

	p.mu.Lock()
	p.pending[corrID] = ch
	p.ins.PendingRequests(p.id, len(p.pending))
	p.mu.Unlock()

	timer := p.ins.RequestDuration(frameType)
	defer timer.ObserveDuration()

	if err := conn.Write(Frame{Type: frameType, ID: corrID, Body: body}); err != nil {
		p.mu.Lock()
		delete(p.pending, corrID)
		p.mu.Unlock()
		p.ins.RequestCompleted(frameType, false)
		return Frame{}, err
	}

	select {
	case <-ctx.Done():
		p.mu.Lock()
		delete(p.pending, corrID)
		p.mu.Unlock()
		p.ins.RequestCompleted(frameType, false)
		return Frame{}, ctx.Err()
	case r := <-ch:
		p.ins.RequestCompleted(frameType, r.err == nil)
		if r.err != nil {
			return Frame{}, r.err
		}
		return r.frame, nil
	}
}

func (p *Proxy) Send(ctx context.Context, topic string, args ...any) error {
	conn, err := p.currentConn()
	if err != nil {
		return err
	}
	wire, err := p.ms.Encode(args)
	if err != nil {
		return err
	}
	return conn.Write(Frame{
		Type: FrameActorMessage,
		Body: mustBody(ActorMessageBody{Topic: topic, Message: wire, Receive: false}),
	})
}

func (p *Proxy) SendAndReceive(ctx context.Context, topic string, args ...any) (any, error) {
	wire, err := p.ms.Encode(args)
	if err != nil {
		return nil, err
	}
	f, err := p.call(ctx, FrameActorMessage, mustBody(ActorMessageBody{
		Topic:   topic,
		Message: wire,
		Receive: true,
	}))
	if err != nil {
		return nil, err
	}
	return p.decodeResponse(f)
}

func (p *Proxy) BroadcastAndReceive(ctx context.Context, topic string, args ...any) ([]any, error) {
	// a non-clustered actor is a singleton cluster
	res, err := p.SendAndReceive(ctx, topic, args...)
	if err != nil {
		return nil, err
	}
	return []any{res}, nil
}

func (p *Proxy) decodeResponse(f Frame) (any, error) {
	var body ActorResponseBody
	if err := json.Unmarshal(f.Body, &body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if body.Error != "" {
		return nil, errors.New(body.Error)
	}
	return p.ms.DecodeOne(body.Response)
}

func (p *Proxy) Metrics(ctx context.Context) (actor.Metrics, error) {
	f, err := p.call(ctx, FrameActorMetrics, nil)
	if err != nil {
		return nil, err
	}
	res, err := p.decodeResponse(f)
	if err != nil {
		return nil, err
	}
	m, ok := res.(map[string]any)
	if !ok {
		return actor.Metrics{}, nil
	}
	return actor.Metrics(m), nil
}

func (p *Proxy) Tree(ctx context.Context) (*actor.TreeNode, error) {
	f, err := p.call(ctx, FrameActorTree, nil)
	if err != nil {
		return nil, err
	}
	return decodeTree(f)
}

func decodeTree(f Frame) (*actor.TreeNode, error) {
	var body ActorResponseBody
	if err := json.Unmarshal(f.Body, &body); err != nil {
		return nil, err
	}
	if body.Error != "" {
		return nil, errors.New(body.Error)
	}

	c := codec.JSONCodec{}
	data, err := c.Marshal(body.Response)
	if err != nil {
		return nil, err
	}
	var node actor.TreeNode
	if err := c.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// Destroy tears down the remote actor and the channel. Destroying an
// already-destroyed proxy is a no-op.
func (p *Proxy) Destroy(ctx context.Context) error {
	p.mu.Lock()
	if p.destroyed || p.closing {
		p.mu.Unlock()
		return nil
	}
	p.closing = true
	conn := p.conn
	p.mu.Unlock()

	if p.bus != nil {
		p.bus.DetachBridge(p.bridge)
	}

	var err error
	if conn != nil {
		_, err = p.call(ctx, FrameDestroyActor, nil)
		_ = conn.Close()
	}

	p.mu.Lock()
	p.destroyed = true
	p.mu.Unlock()

	if err != nil && !errors.Is(err, ErrConnClosed) {
		return err
	}
	return nil
}

// CreateChild creates a child inside the endpoint process, parented to the
// hosted actor. The returned reference shares this proxy's connection.
func (p *Proxy) CreateChild(ctx context.Context, def *actor.Definition, opts actor.CreateOptions) (actor.Ref, error) {
	return p.createChild(ctx, "", p, def, opts)
}

func (p *Proxy) createChild(ctx context.Context, parentID string, parent actor.Ref, def *actor.Definition, opts actor.CreateOptions) (actor.Ref, error) {
	desc, err := behavior.Compile(def)
	if err != nil {
		return nil, err
	}
	f, err := p.call(ctx, FrameCreateChild, mustBody(CreateChildBody{
		Behaviour:       desc,
		BehaviourFormat: behavior.FormatFactoryV1,
		Parent:          parentID,
		Options:         toChildOptions(opts),
	}))
	if err != nil {
		return nil, err
	}
	if f.Error != "" {
		return nil, errors.New(f.Error)
	}
	var body ActorCreatedBody
	if err := json.Unmarshal(f.Body, &body); err != nil {
		return nil, fmt.Errorf("bad actor-created body: %w", err)
	}
	mode := opts.Mode
	if mode == "" {
		mode = actor.ModeInMemory
	}
	return &childProxy{
		p:      p,
		id:     body.ID,
		name:   opts.Name,
		mode:   mode,
		parent: parent,
	}, nil
}

func (p *Proxy) ChangeConfiguration(ctx context.Context, opts actor.CreateOptions) error {
	return fmt.Errorf("%w: reconfigure via the system handle", ErrNotSupported)
}

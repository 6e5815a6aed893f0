package proc

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"github.com/codewandler/troupe-go/core/actor"
)

// childProxy references an actor created inside the endpoint process through
// a parent proxy. It shares that proxy's connection and pending table; every
// frame carries the child id so the endpoint can route it.
type childProxy struct {
	p      *Proxy
	id     string
	name   string
	mode   actor.Mode
	parent actor.Ref

	destroyed atomic.Bool
}

func (c *childProxy) ID() string        { return c.id }
func (c *childProxy) Name() string      { return c.name }
func (c *childProxy) Mode() actor.Mode  { return c.mode }
func (c *childProxy) Parent() actor.Ref { return c.parent }

func (c *childProxy) Send(ctx context.Context, topic string, args ...any) error {
	if c.destroyed.Load() {
		return actor.ErrDestroyed
	}
	conn, err := c.p.currentConn()
	if err != nil {
		return err
	}
	wire, err := c.p.ms.Encode(args)
	if err != nil {
		return err
	}
	return conn.Write(Frame{
		Type: FrameActorMessage,
		Body: mustBody(ActorMessageBody{Topic: topic, Message: wire, Actor: c.id, Receive: false}),
	})
}

func (c *childProxy) SendAndReceive(ctx context.Context, topic string, args ...any) (any, error) {
	if c.destroyed.Load() {
		return nil, actor.ErrDestroyed
	}
	wire, err := c.p.ms.Encode(args)
	if err != nil {
		return nil, err
	}
	f, err := c.p.call(ctx, FrameActorMessage, mustBody(ActorMessageBody{
		Topic:   topic,
		Message: wire,
		Actor:   c.id,
		Receive: true,
	}))
	if err != nil {
		return nil, err
	}
	return c.p.decodeResponse(f)
}

// BroadcastAndReceive fans out on the endpoint side, where the child's
// cluster router lives.
func (c *childProxy) BroadcastAndReceive(ctx context.Context, topic string, args ...any) ([]any, error) {
	if c.destroyed.Load() {
		return nil, actor.ErrDestroyed
	}
	wire, err := c.p.ms.Encode(args)
	if err != nil {
		return nil, err
	}
	f, err := c.p.call(ctx, FrameActorMessage, mustBody(ActorMessageBody{
		Topic:     topic,
		Message:   wire,
		Actor:     c.id,
		Receive:   true,
		Broadcast: true,
	}))
	if err != nil {
		return nil, err
	}
	res, err := c.p.decodeResponse(f)
	if err != nil {
		return nil, err
	}
	out, ok := res.([]any)
	if !ok {
		return []any{res}, nil
	}
	return out, nil
}

func (c *childProxy) CreateChild(ctx context.Context, def *actor.Definition, opts actor.CreateOptions) (actor.Ref, error) {
	if c.destroyed.Load() {
		return nil, actor.ErrDestroyed
	}
	return c.p.createChild(ctx, c.id, c, def, opts)
}

func (c *childProxy) ChangeConfiguration(ctx context.Context, opts actor.CreateOptions) error {
	if c.destroyed.Load() {
		return actor.ErrDestroyed
	}
	f, err := c.p.call(ctx, FrameChangeConfig, mustBody(ChangeConfigBody{
		Actor:   c.id,
		Options: toChildOptions(opts),
	}))
	if err != nil {
		return err
	}
	var body ActorResponseBody
	if err := json.Unmarshal(f.Body, &body); err != nil {
		return err
	}
	if body.Error != "" {
		return errors.New(body.Error)
	}
	if opts.Mode != "" {
		c.mode = opts.Mode
	}
	return nil
}

func (c *childProxy) Metrics(ctx context.Context) (actor.Metrics, error) {
	if c.destroyed.Load() {
		return nil, actor.ErrDestroyed
	}
	f, err := c.p.call(ctx, FrameActorMetrics, mustBody(ActorTargetBody{Actor: c.id}))
	if err != nil {
		return nil, err
	}
	res, err := c.p.decodeResponse(f)
	if err != nil {
		return nil, err
	}
	m, ok := res.(map[string]any)
	if !ok {
		return actor.Metrics{}, nil
	}
	return actor.Metrics(m), nil
}

func (c *childProxy) Tree(ctx context.Context) (*actor.TreeNode, error) {
	if c.destroyed.Load() {
		return nil, actor.ErrDestroyed
	}
	f, err := c.p.call(ctx, FrameActorTree, mustBody(ActorTargetBody{Actor: c.id}))
	if err != nil {
		return nil, err
	}
	return decodeTree(f)
}

// Destroy tears down the endpoint-side child. Idempotent.
func (c *childProxy) Destroy(ctx context.Context) error {
	if !c.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	f, err := c.p.call(ctx, FrameDestroyActor, mustBody(ActorTargetBody{Actor: c.id}))
	if err != nil {
		if errors.Is(err, ErrConnClosed) || errors.Is(err, actor.ErrDestroyed) {
			return nil
		}
		return err
	}
	if f.Type == FrameActorDestroyed {
		return nil
	}
	var body ActorResponseBody
	if err := json.Unmarshal(f.Body, &body); err != nil {
		return err
	}
	if body.Error != "" {
		return errors.New(body.Error)
	}
	return nil
}

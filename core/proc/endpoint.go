package proc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codewandler/troupe-go/core/actor"
	"github.com/codewandler/troupe-go/core/behavior"
	"github.com/codewandler/troupe-go/core/bus"
	"github.com/codewandler/troupe-go/core/inject"
)

// ActorConfig is what the endpoint hands to the host when the handshake
// asks for an actor.
type ActorConfig struct {
	ID          string
	Name        string
	MailboxSize int
	Params      map[string]any
	// Resources are already resolved against the endpoint's injector.
	Resources map[string]any
}

// Env is the environment an endpoint serves actors in. The hosting process
// wires its registry, marshallers, injector and bus; NewActor builds the
// local reference (the system package plugs its own spawner in here).
type Env struct {
	Log         *slog.Logger
	Level       *slog.LevelVar
	Registry    *behavior.Registry
	Marshallers *behavior.Marshallers
	Injector    *inject.Injector
	Bus         *bus.Bus
	NewActor    func(ctx context.Context, def *actor.Definition, cfg ActorConfig) (actor.Ref, error)
}

func (e Env) withDefaults() Env {
	if e.Log == nil {
		e.Log = slog.New(slog.DiscardHandler)
	}
	if e.Registry == nil {
		e.Registry = behavior.NewRegistry()
	}
	if e.Marshallers == nil {
		e.Marshallers, _ = behavior.NewMarshallers()
	}
	if e.Bus == nil {
		e.Bus = bus.New(bus.Options{Log: e.Log})
	}
	return e
}

// connBridge forwards local bus events over the endpoint's connection.
type connBridge struct {
	conn *Conn
}

func (b *connBridge) Forward(ev bus.Event) error {
	return b.conn.Write(Frame{Type: FrameBusEvent, Body: mustBody(BusEventBody{Event: ev})})
}

// Serve runs the child side of one transport connection: it answers the
// creation handshake, hosts one actor plus any children created through it
// and serves their traffic until the actor is destroyed or the connection
// drops. If the connection drops first, the hosted actor is destroyed, the
// parent exclusively owns it.
func Serve(ctx context.Context, conn *Conn, env Env) error {
	env = env.withDefaults()
	log := env.Log.With(slog.String("component", "endpoint"))

	var (
		ref      actor.Ref
		children = map[string]actor.Ref{}
		bridge   = &connBridge{conn: conn}
	)
	defer func() {
		env.Bus.DetachBridge(bridge)
		_ = conn.Close()
		if ref != nil {
			_ = ref.Destroy(context.Background())
		}
	}()

	// target resolves the actor a frame addresses; the hosted actor owns
	// the empty id.
	target := func(id string) (actor.Ref, error) {
		if id == "" {
			return ref, nil
		}
		if c, ok := children[id]; ok {
			return c, nil
		}
		return nil, fmt.Errorf("unknown child actor %q", id)
	}

	for {
		f, err := conn.Read()
		if err != nil {
			if ref != nil {
				log.Warn("connection lost, destroying hosted actor",
					slog.String("actor", ref.Name()),
					slog.Any("error", err),
				)
			}
			return err
		}

		switch f.Type {
		case FrameCreateActor:
			created, err := createActor(ctx, f, env, log)
			if err != nil {
				_ = conn.Write(Frame{Type: FrameActorCreated, ID: f.ID, Error: err.Error()})
				continue
			}
			ref = created
			env.Bus.AttachBridge(bridge)
			_ = conn.Write(Frame{
				Type: FrameActorCreated,
				ID:   f.ID,
				Body: mustBody(ActorCreatedBody{ID: ref.ID()}),
			})

		case FrameCreateChild:
			if ref == nil {
				_ = conn.Write(Frame{Type: FrameActorCreated, ID: f.ID, Error: ErrHandshake.Error()})
				continue
			}
			child, err := createChild(ctx, f, env, target)
			if err != nil {
				_ = conn.Write(Frame{Type: FrameActorCreated, ID: f.ID, Error: err.Error()})
				continue
			}
			children[child.ID()] = child
			_ = conn.Write(Frame{
				Type: FrameActorCreated,
				ID:   f.ID,
				Body: mustBody(ActorCreatedBody{ID: child.ID()}),
			})

		case FrameActorMessage:
			if ref == nil {
				_ = conn.Write(respErr(f.ID, ErrHandshake))
				continue
			}
			handleMessage(ctx, conn, env, target, f)

		case FrameActorTree:
			to, err := resolveTarget(ref, target, f)
			if err != nil {
				_ = conn.Write(respErr(f.ID, err))
				continue
			}
			node, err := to.Tree(ctx)
			writeResponse(conn, env, f.ID, node, err)

		case FrameActorMetrics:
			to, err := resolveTarget(ref, target, f)
			if err != nil {
				_ = conn.Write(respErr(f.ID, err))
				continue
			}
			m, err := to.Metrics(ctx)
			writeResponse(conn, env, f.ID, m, err)

		case FrameChangeConfig:
			var body ChangeConfigBody
			if err := json.Unmarshal(f.Body, &body); err != nil {
				_ = conn.Write(respErr(f.ID, err))
				continue
			}
			to, err := target(body.Actor)
			if err != nil || to == nil {
				_ = conn.Write(respErr(f.ID, orHandshake(err)))
				continue
			}
			writeResponse(conn, env, f.ID, nil, to.ChangeConfiguration(ctx, body.Options.createOptions()))

		case FrameDestroyActor:
			var body ActorTargetBody
			if len(f.Body) > 0 {
				_ = json.Unmarshal(f.Body, &body)
			}
			if body.Actor != "" {
				to, err := target(body.Actor)
				if err == nil {
					err = to.Destroy(ctx)
					delete(children, body.Actor)
				}
				if err != nil {
					_ = conn.Write(respErr(f.ID, err))
					continue
				}
				_ = conn.Write(Frame{Type: FrameActorDestroyed, ID: f.ID})
				continue
			}
			if ref != nil {
				_ = ref.Destroy(ctx)
				ref = nil
			}
			_ = conn.Write(Frame{Type: FrameActorDestroyed, ID: f.ID})
			return nil

		case FrameBusEvent:
			var body BusEventBody
			if err := json.Unmarshal(f.Body, &body); err != nil {
				log.Warn("bad bus-event frame", slog.Any("error", err))
				continue
			}
			env.Bus.Inject(body.Event, bridge)

		default:
			log.Warn("unknown frame type", slog.String("type", f.Type))
		}
	}
}

func createActor(ctx context.Context, f Frame, env Env, log *slog.Logger) (actor.Ref, error) {
	if env.NewActor == nil {
		return nil, fmt.Errorf("endpoint cannot host actors")
	}

	var body CreateActorBody
	if err := json.Unmarshal(f.Body, &body); err != nil {
		return nil, fmt.Errorf("bad create-actor body: %w", err)
	}
	if body.BehaviourFormat != behavior.FormatFactoryV1 {
		return nil, fmt.Errorf("%w: %q", behavior.ErrBadFormat, body.BehaviourFormat)
	}
	if err := env.Marshallers.Require(body.Marshallers); err != nil {
		return nil, err
	}
	if env.Level != nil && body.LogLevel != "" {
		if lvl, err := ParseLevel(body.LogLevel); err == nil {
			env.Level.Set(lvl)
		}
	}

	def, err := env.Registry.Reconstruct(body.Behaviour, body.Context)
	if err != nil {
		return nil, err
	}

	var resources map[string]any
	if len(def.Resources) > 0 {
		if env.Injector == nil {
			return nil, fmt.Errorf("%w: no injector configured", inject.ErrUnknownResource)
		}
		resources, err = env.Injector.Resolve(ctx, def.Resources)
		if err != nil {
			return nil, err
		}
	}

	params := body.Context
	if body.Config.Params != nil {
		params = body.Config.Params
	}

	log.Debug("creating actor",
		slog.String("behavior", body.Behaviour.Name),
		slog.String("id", body.Config.ID),
	)

	return env.NewActor(ctx, def, ActorConfig{
		ID:          body.Config.ID,
		Name:        body.Config.Name,
		MailboxSize: body.Config.MailboxSize,
		Params:      params,
		Resources:   resources,
	})
}

// createChild builds a child of an endpoint-hosted actor from its wire
// descriptor and places it through the host's own reference.
func createChild(ctx context.Context, f Frame, env Env, target func(string) (actor.Ref, error)) (actor.Ref, error) {
	var body CreateChildBody
	if err := json.Unmarshal(f.Body, &body); err != nil {
		return nil, fmt.Errorf("bad create-child body: %w", err)
	}
	if body.BehaviourFormat != behavior.FormatFactoryV1 {
		return nil, fmt.Errorf("%w: %q", behavior.ErrBadFormat, body.BehaviourFormat)
	}

	def, err := env.Registry.Reconstruct(body.Behaviour, body.Options.CustomParameters)
	if err != nil {
		return nil, err
	}
	parent, err := target(body.Parent)
	if err != nil {
		return nil, err
	}
	return parent.CreateChild(ctx, def, body.Options.createOptions())
}

// resolveTarget picks the addressed actor for frames whose body is an
// optional ActorTargetBody.
func resolveTarget(ref actor.Ref, target func(string) (actor.Ref, error), f Frame) (actor.Ref, error) {
	var body ActorTargetBody
	if len(f.Body) > 0 {
		if err := json.Unmarshal(f.Body, &body); err != nil {
			return nil, err
		}
	}
	to, err := target(body.Actor)
	if err != nil {
		return nil, err
	}
	if to == nil {
		return nil, ErrHandshake
	}
	return to, nil
}

func orHandshake(err error) error {
	if err != nil {
		return err
	}
	return ErrHandshake
}

func handleMessage(ctx context.Context, conn *Conn, env Env, target func(string) (actor.Ref, error), f Frame) {
	var body ActorMessageBody
	if err := json.Unmarshal(f.Body, &body); err != nil {
		if f.ID != "" {
			_ = conn.Write(respErr(f.ID, err))
		}
		return
	}

	to, err := target(body.Actor)
	if err != nil || to == nil {
		if body.Receive || body.Broadcast {
			_ = conn.Write(respErr(f.ID, orHandshake(err)))
		}
		return
	}

	args, err := env.Marshallers.Decode(body.Message)
	if err != nil {
		if body.Receive || body.Broadcast {
			_ = conn.Write(respErr(f.ID, err))
		}
		return
	}

	if body.Broadcast {
		res, err := to.BroadcastAndReceive(ctx, body.Topic, args...)
		writeResponse(conn, env, f.ID, res, err)
		return
	}

	if !body.Receive {
		// handler errors on fire-and-forget stay child-side (logged there)
		_ = to.Send(ctx, body.Topic, args...)
		return
	}

	res, err := to.SendAndReceive(ctx, body.Topic, args...)
	writeResponse(conn, env, f.ID, res, err)
}

func writeResponse(conn *Conn, env Env, id string, res any, err error) {
	if err != nil {
		_ = conn.Write(respErr(id, err))
		return
	}
	wire, encErr := env.Marshallers.EncodeOne(res)
	if encErr != nil {
		_ = conn.Write(respErr(id, encErr))
		return
	}
	_ = conn.Write(Frame{
		Type: FrameActorResponse,
		ID:   id,
		Body: mustBody(ActorResponseBody{Response: wire}),
	})
}

func respErr(id string, err error) Frame {
	return Frame{
		Type: FrameActorResponse,
		ID:   id,
		Body: mustBody(ActorResponseBody{Error: err.Error()}),
	}
}

// ParseLevel maps the wire log level names onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

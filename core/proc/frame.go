package proc

import (
	"encoding/json"

	"github.com/codewandler/troupe-go/core/actor"
	"github.com/codewandler/troupe-go/core/behavior"
	"github.com/codewandler/troupe-go/core/bus"
)

// Frame types exchanged between proxy and endpoint.
const (
	FrameCreateActor    = "create-actor"
	FrameActorCreated   = "actor-created"
	FrameCreateChild    = "create-child"
	FrameActorMessage   = "actor-message"
	FrameActorResponse  = "actor-response"
	FrameActorTree      = "actor-tree"
	FrameActorMetrics   = "actor-metrics"
	FrameChangeConfig   = "change-config"
	FrameDestroyActor   = "destroy-actor"
	FrameActorDestroyed = "actor-destroyed"
	FrameBusEvent       = "bus-event"
)

// Frame is the one wire unit; frames are newline-delimited JSON objects.
// ID correlates a request with its response and is present only when a
// response is expected. Error is set instead of Body on failure replies.
type Frame struct {
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	Body  json.RawMessage `json:"body,omitempty"`
	Error string          `json:"error,omitempty"`
}

// CreateActorBody is the bootstrap payload of the creation handshake.
type CreateActorBody struct {
	Behaviour       behavior.Descriptor `json:"behaviour"`
	BehaviourFormat string              `json:"behaviourFormat"`
	Context         map[string]any      `json:"context,omitempty"`
	ContextFormat   string              `json:"contextFormat,omitempty"`
	Config          CreateConfig        `json:"config"`
	Parent          ParentInfo          `json:"parent"`
	LogLevel        string              `json:"logLevel,omitempty"`
	Marshallers     []string            `json:"marshallers,omitempty"`
}

// CreateConfig pins the identity the endpoint must create the actor under.
// Respawn re-sends the same config so the identity survives a crash.
type CreateConfig struct {
	ID          string         `json:"id"`
	Name        string         `json:"name,omitempty"`
	MailboxSize int            `json:"mailboxSize,omitempty"`
	Params      map[string]any `json:"customParameters,omitempty"`
}

type ParentInfo struct {
	ID string `json:"id"`
}

type ActorCreatedBody struct {
	ID string `json:"id"`
}

// CreateChildBody asks the endpoint to create a child under its hosted
// actor, or under a previously created child when Parent is set. The
// endpoint answers with actor-created.
type CreateChildBody struct {
	Behaviour       behavior.Descriptor `json:"behaviour"`
	BehaviourFormat string              `json:"behaviourFormat"`
	Parent          string              `json:"parent,omitempty"`
	Options         ChildOptions        `json:"options"`
}

// ChildOptions is the wire form of placement options for create-child and
// change-config.
type ChildOptions struct {
	Mode             string         `json:"mode,omitempty"`
	Name             string         `json:"name,omitempty"`
	ClusterSize      int            `json:"clusterSize,omitempty"`
	Balancer         string         `json:"balancer,omitempty"`
	OnCrash          string         `json:"onCrash,omitempty"`
	CustomParameters map[string]any `json:"customParameters,omitempty"`
	LogLevel         string         `json:"logLevel,omitempty"`
	Host             string         `json:"host,omitempty"`
	Port             int            `json:"port,omitempty"`
	Cluster          []string       `json:"cluster,omitempty"`
}

func toChildOptions(o actor.CreateOptions) ChildOptions {
	return ChildOptions{
		Mode:             string(o.Mode),
		Name:             o.Name,
		ClusterSize:      o.ClusterSize,
		Balancer:         o.Balancer,
		OnCrash:          string(o.OnCrash),
		CustomParameters: o.CustomParameters,
		LogLevel:         o.LogLevel,
		Host:             o.Host,
		Port:             o.Port,
		Cluster:          o.Cluster,
	}
}

func (o ChildOptions) createOptions() actor.CreateOptions {
	return actor.CreateOptions{
		Mode:             actor.Mode(o.Mode),
		Name:             o.Name,
		ClusterSize:      o.ClusterSize,
		Balancer:         o.Balancer,
		OnCrash:          actor.OnCrash(o.OnCrash),
		CustomParameters: o.CustomParameters,
		LogLevel:         o.LogLevel,
		Host:             o.Host,
		Port:             o.Port,
		Cluster:          o.Cluster,
	}
}

// ChangeConfigBody rebuilds the placement of an endpoint-side child.
type ChangeConfigBody struct {
	Actor   string       `json:"actor,omitempty"`
	Options ChildOptions `json:"options"`
}

// ActorMessageBody is the child-bound runtime envelope. Actor addresses an
// endpoint-side child; empty means the hosted actor itself.
type ActorMessageBody struct {
	Topic   string `json:"topic"`
	Message []any  `json:"message,omitempty"`
	Actor   string `json:"actor,omitempty"`
	// Receive requests a response; fire-and-forget messages set it false
	// and carry no correlation id.
	Receive bool `json:"receive"`
	// Broadcast fans the message out to every cluster member of the target
	// and collects the responses. Implies Receive.
	Broadcast bool `json:"broadcast,omitempty"`
}

// ActorTargetBody addresses introspection and destroy frames at an
// endpoint-side child. A missing body targets the hosted actor.
type ActorTargetBody struct {
	Actor string `json:"actor,omitempty"`
}

// ActorResponseBody carries either a response or an error, never both.
type ActorResponseBody struct {
	Response any    `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BusEventBody bridges system-bus events across the connection.
type BusEventBody struct {
	Event bus.Event `json:"event"`
}

func mustBody(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// all body types are plain JSON-safe structs
		panic(err)
	}
	return data
}

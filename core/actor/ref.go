package actor

import "context"

// Mode is the physical execution placement of an actor.
type Mode string

const (
	ModeInMemory Mode = "in-memory"
	ModeForked   Mode = "forked"
	ModeThreaded Mode = "threaded"
	ModeRemote   Mode = "remote"
	ModeDisabled Mode = "disabled"
)

// OnCrash selects the proxy policy after an unrecoverable transport failure.
type OnCrash string

const (
	// OnCrashFail permanently fails the reference; all later sends error out.
	OnCrashFail OnCrash = ""
	// OnCrashRespawn re-runs the creation handshake under the same identity
	// and swaps the underlying transport transparently.
	OnCrashRespawn OnCrash = "respawn"
)

// CreateOptions configure child creation. The zero value creates an unnamed
// in-memory singleton child.
type CreateOptions struct {
	Mode        Mode
	Name        string
	ClusterSize int
	// Balancer names a registered cluster balancer. Empty selects round-robin.
	Balancer         string
	OnCrash          OnCrash
	CustomParameters map[string]any
	// LogLevel applied in the child endpoint for non-local placements
	// ("debug", "info", "warn", "error"). Empty inherits the parent level.
	LogLevel string

	// Remote placement only.
	Host string
	Port int
	// Cluster lists host:port endpoints; one member is created per entry.
	Cluster []string
}

// Location identifies the process an actor physically runs in.
type Location struct {
	Hostname string `json:"hostname"`
	PID      int    `json:"pid"`
}

// TreeNode is one node of the introspected actor tree.
type TreeNode struct {
	Name     string      `json:"name"`
	Location Location    `json:"location"`
	Children []*TreeNode `json:"children,omitempty"`
}

// Ref is the placement-independent actor reference. Every transport proxy,
// the cluster router and the local in-memory reference implement this exact
// contract; relocating an actor never changes the calling code.
type Ref interface {
	// ID returns the unique actor id, stable across respawn.
	ID() string

	// Name returns the configured actor name (may be empty).
	Name() string

	// Mode returns the placement this reference fronts.
	Mode() Mode

	// Parent returns the owning actor's reference, nil for the root.
	Parent() Ref

	// CreateChild creates a child actor from the definition. The returned
	// reference is usable immediately; messages sent before the child's
	// Initialize hook completes fail with ErrNotInitialized.
	CreateChild(ctx context.Context, def *Definition, opts CreateOptions) (Ref, error)

	// Send delivers a fire-and-forget message. Handler errors are logged,
	// not returned; transport failures are.
	Send(ctx context.Context, topic string, args ...any) error

	// SendAndReceive delivers a message and waits for the handler response.
	SendAndReceive(ctx context.Context, topic string, args ...any) (any, error)

	// BroadcastAndReceive sends to every cluster member and collects all
	// responses. A non-clustered actor is treated as a singleton cluster.
	BroadcastAndReceive(ctx context.Context, topic string, args ...any) ([]any, error)

	// Destroy drains the mailbox, destroys children bottom-up and runs the
	// destroy hook once. Destroying a destroyed actor is a no-op.
	Destroy(ctx context.Context) error

	// Metrics returns the aggregated metrics snapshot for this actor and
	// its subtree.
	Metrics(ctx context.Context) (Metrics, error)

	// Tree returns the introspected actor tree rooted at this actor.
	Tree(ctx context.Context) (*TreeNode, error)

	// ChangeConfiguration rebuilds the underlying actor with the new options
	// without changing this reference's identity.
	ChangeConfiguration(ctx context.Context, opts CreateOptions) error
}

// SelfLocation returns the Location of the current process.
func SelfLocation() Location {
	return selfLocation()
}

package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/troupe-go/core/actor"
	"github.com/codewandler/troupe-go/core/behavior"
	"github.com/codewandler/troupe-go/core/inject"
	"github.com/codewandler/troupe-go/core/proc"
)

// TestMain doubles as the entry point of forked workers: forked placements
// re-exec this test binary, which must serve the endpoint instead of running
// the suite.
func TestMain(m *testing.M) {
	if proc.IsWorker() {
		reg := behavior.NewRegistry()
		if err := reg.RegisterDefinition(echoDefinition()); err != nil {
			fmt.Fprintln(os.Stderr, "worker registry:", err)
			os.Exit(1)
		}
		s, err := New(context.Background(), Options{Registry: reg})
		if err != nil {
			fmt.Fprintln(os.Stderr, "worker system:", err)
			os.Exit(1)
		}
		if err := s.RunWorker(context.Background()); err != nil && !errors.Is(err, proc.ErrConnClosed) {
			fmt.Fprintln(os.Stderr, "worker:", err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func echoDefinition() *actor.Definition {
	return &actor.Definition{
		Name: "echo",
		Handlers: actor.Handlers{
			"say": func(c *actor.Context, args ...any) (any, error) {
				if len(args) == 0 {
					return nil, nil
				}
				return args[0], nil
			},
			"whoami": func(c *actor.Context, args ...any) (any, error) {
				return c.Self().ID(), nil
			},
			"greeting": func(c *actor.Context, args ...any) (any, error) {
				return c.Param("greeting"), nil
			},
		},
	}
}

func newSystem(t *testing.T, opts Options) *System {
	t.Helper()
	s, err := New(t.Context(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Destroy(context.Background()) })
	return s
}

func TestSystem_InMemoryChild(t *testing.T) {
	s := newSystem(t, Options{})

	child, err := s.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{Name: "echo"})
	require.NoError(t, err)
	require.Equal(t, actor.ModeInMemory, child.Mode())

	res, err := child.SendAndReceive(t.Context(), "say", "hi")
	require.NoError(t, err)
	require.Equal(t, "hi", res)
}

func TestSystem_ChildOfChild(t *testing.T) {
	s := newSystem(t, Options{})

	parent, err := s.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{Name: "parent"})
	require.NoError(t, err)

	child, err := parent.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{Name: "child"})
	require.NoError(t, err)
	require.Equal(t, parent.ID(), child.Parent().ID())

	res, err := child.SendAndReceive(t.Context(), "say", "nested")
	require.NoError(t, err)
	require.Equal(t, "nested", res)
}

func TestSystem_CustomParameters(t *testing.T) {
	s := newSystem(t, Options{})

	child, err := s.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{
		Name:             "echo",
		CustomParameters: map[string]any{"greeting": "hello"},
	})
	require.NoError(t, err)

	res, err := child.SendAndReceive(t.Context(), "greeting")
	require.NoError(t, err)
	require.Equal(t, "hello", res)
}

func TestSystem_ResourceInjection(t *testing.T) {
	opened := 0
	s := newSystem(t, Options{
		Resources: []inject.Resource{{
			Name: "store",
			Open: func(ctx context.Context, deps map[string]any) (any, error) {
				opened++
				return map[string]string{"k": "v"}, nil
			},
		}},
	})

	def := &actor.Definition{
		Name:      "reader",
		Resources: []string{"store"},
		Handlers: actor.Handlers{
			"get": func(c *actor.Context, args ...any) (any, error) {
				store := c.Resource("store").(map[string]string)
				return store[args[0].(string)], nil
			},
		},
	}

	a, err := s.CreateChild(t.Context(), def, actor.CreateOptions{Name: "reader-a"})
	require.NoError(t, err)
	b, err := s.CreateChild(t.Context(), def, actor.CreateOptions{Name: "reader-b"})
	require.NoError(t, err)

	res, err := a.SendAndReceive(t.Context(), "get", "k")
	require.NoError(t, err)
	require.Equal(t, "v", res)

	_, err = b.SendAndReceive(t.Context(), "get", "k")
	require.NoError(t, err)

	// the resource is a shared singleton
	require.Equal(t, 1, opened)
}

func TestSystem_ThreadedChild(t *testing.T) {
	reg := behavior.NewRegistry()
	require.NoError(t, reg.RegisterDefinition(echoDefinition()))

	s := newSystem(t, Options{Registry: reg})

	child, err := s.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{
		Name: "echo",
		Mode: actor.ModeThreaded,
	})
	require.NoError(t, err)
	require.Equal(t, actor.ModeThreaded, child.Mode())

	res, err := child.SendAndReceive(t.Context(), "say", "over the pipe")
	require.NoError(t, err)
	require.Equal(t, "over the pipe", res)
}

func TestSystem_ThreadedCluster(t *testing.T) {
	reg := behavior.NewRegistry()
	require.NoError(t, reg.RegisterDefinition(echoDefinition()))

	s := newSystem(t, Options{Registry: reg})

	c, err := s.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{
		Name:        "workers",
		Mode:        actor.ModeThreaded,
		ClusterSize: 3,
	})
	require.NoError(t, err)

	// each member answers with its own id, round-robin hits all three
	seen := map[any]struct{}{}
	for range 3 {
		res, err := c.SendAndReceive(t.Context(), "whoami")
		require.NoError(t, err)
		seen[res] = struct{}{}
	}
	require.Len(t, seen, 3)

	m, err := c.Metrics(t.Context())
	require.NoError(t, err)
	require.Contains(t, m, "0")
	require.Contains(t, m, "1")
	require.Contains(t, m, "2")
	require.Contains(t, m, "summary")
}

func TestSystem_BroadcastReachesAllMembers(t *testing.T) {
	s := newSystem(t, Options{})

	c, err := s.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{
		Name:        "workers",
		ClusterSize: 3,
	})
	require.NoError(t, err)

	res, err := c.BroadcastAndReceive(t.Context(), "whoami")
	require.NoError(t, err)
	require.Len(t, res, 3)
}

func TestSystem_DisabledPlacement(t *testing.T) {
	s := newSystem(t, Options{})

	child, err := s.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{
		Name: "echo",
		Mode: actor.ModeDisabled,
	})
	require.NoError(t, err)

	err = child.Send(t.Context(), "say", "x")
	require.ErrorIs(t, err, actor.ErrDisabled)
	_, err = child.SendAndReceive(t.Context(), "say", "x")
	require.ErrorIs(t, err, actor.ErrDisabled)

	// switching it on keeps the identity
	id := child.ID()
	require.NoError(t, child.ChangeConfiguration(t.Context(), actor.CreateOptions{Mode: actor.ModeInMemory}))
	require.Equal(t, id, child.ID())

	res, err := child.SendAndReceive(t.Context(), "say", "alive")
	require.NoError(t, err)
	require.Equal(t, "alive", res)
}

func TestSystem_ConfigProviderOverridesPlacement(t *testing.T) {
	s := newSystem(t, Options{
		Config: MapProvider{
			"echo": {Mode: actor.ModeDisabled},
		},
	})

	child, err := s.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{Name: "echo"})
	require.NoError(t, err)
	require.Equal(t, actor.ModeDisabled, child.Mode())

	err = child.Send(t.Context(), "say", "x")
	require.ErrorIs(t, err, actor.ErrDisabled)
}

func TestSystem_ChangeConfigurationAcrossPlacements(t *testing.T) {
	reg := behavior.NewRegistry()
	require.NoError(t, reg.RegisterDefinition(echoDefinition()))

	s := newSystem(t, Options{Registry: reg})

	child, err := s.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{Name: "echo"})
	require.NoError(t, err)
	id := child.ID()

	res, err := child.SendAndReceive(t.Context(), "say", "local")
	require.NoError(t, err)
	require.Equal(t, "local", res)

	require.NoError(t, child.ChangeConfiguration(t.Context(), actor.CreateOptions{Mode: actor.ModeThreaded}))
	require.Equal(t, id, child.ID())
	require.Equal(t, actor.ModeThreaded, child.Mode())

	res, err = child.SendAndReceive(t.Context(), "say", "moved")
	require.NoError(t, err)
	require.Equal(t, "moved", res)
}

func TestSystem_ChangeGlobalConfiguration(t *testing.T) {
	s := newSystem(t, Options{})

	a, err := s.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{Name: "worker"})
	require.NoError(t, err)
	parent, err := s.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{Name: "parent"})
	require.NoError(t, err)
	b, err := parent.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{Name: "worker"})
	require.NoError(t, err)

	require.NoError(t, s.ChangeGlobalConfiguration(t.Context(), "worker", actor.CreateOptions{Mode: actor.ModeDisabled}))

	require.ErrorIs(t, a.Send(t.Context(), "say", "x"), actor.ErrDisabled)
	require.ErrorIs(t, b.Send(t.Context(), "say", "x"), actor.ErrDisabled)

	// other actors are untouched
	_, err = parent.SendAndReceive(t.Context(), "say", "still here")
	require.NoError(t, err)
}

func TestSystem_DestroyOrderChildrenFirst(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) func(*actor.Context) error {
		return func(*actor.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	s := newSystem(t, Options{})

	parentDef := &actor.Definition{Name: "parent", Destroy: record("parent")}
	childDef := &actor.Definition{Name: "child", Destroy: record("child")}
	grandDef := &actor.Definition{Name: "grandchild", Destroy: record("grandchild")}

	parent, err := s.CreateChild(t.Context(), parentDef, actor.CreateOptions{Name: "parent"})
	require.NoError(t, err)
	child, err := parent.CreateChild(t.Context(), childDef, actor.CreateOptions{Name: "child"})
	require.NoError(t, err)
	_, err = child.CreateChild(t.Context(), grandDef, actor.CreateOptions{Name: "grandchild"})
	require.NoError(t, err)

	require.NoError(t, parent.Destroy(t.Context()))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"grandchild", "child", "parent"}, order)
}

func TestSystem_TreeIntrospection(t *testing.T) {
	reg := behavior.NewRegistry()
	require.NoError(t, reg.RegisterDefinition(echoDefinition()))

	s := newSystem(t, Options{Registry: reg})

	parent, err := s.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{Name: "parent"})
	require.NoError(t, err)
	_, err = parent.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{Name: "leaf-local"})
	require.NoError(t, err)
	_, err = parent.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{Name: "leaf-threaded", Mode: actor.ModeThreaded})
	require.NoError(t, err)

	tree, err := s.Tree(t.Context())
	require.NoError(t, err)
	require.Equal(t, "root", tree.Name)
	require.Len(t, tree.Children, 1)

	p := tree.Children[0]
	require.Equal(t, "parent", p.Name)
	require.Len(t, p.Children, 2)

	names := []string{p.Children[0].Name, p.Children[1].Name}
	require.ElementsMatch(t, []string{"leaf-local", "leaf-threaded"}, names)
}

func TestSystem_BusBridgedToThreadedChild(t *testing.T) {
	reg := behavior.NewRegistry()

	// the child-side behavior publishes on its hosting process's bus
	def := &actor.Definition{
		Name: "publisher",
		Handlers: actor.Handlers{
			"announce": func(c *actor.Context, args ...any) (any, error) {
				return "ok", nil
			},
		},
	}
	require.NoError(t, reg.RegisterDefinition(def))

	s := newSystem(t, Options{Registry: reg})

	events, cancel, err := s.Bus().Subscribe("system/.*")
	require.NoError(t, err)
	defer cancel()

	_, err = s.CreateChild(t.Context(), def, actor.CreateOptions{Name: "publisher", Mode: actor.ModeThreaded})
	require.NoError(t, err)

	s.Bus().Publish("system/hello", "payload")

	select {
	case ev := <-events:
		require.Equal(t, "system/hello", ev.Topic)
		require.Equal(t, "payload", ev.Data)
	case <-time.After(time.Second):
		t.Fatal("no bus event received")
	}
}

func TestSystem_SendBeforeInitializeFails(t *testing.T) {
	release := make(chan struct{})
	def := &actor.Definition{
		Name: "slow-init",
		Initialize: func(c *actor.Context) error {
			<-release
			return nil
		},
		Handlers: actor.Handlers{
			"ping": func(c *actor.Context, args ...any) (any, error) { return "pong", nil },
		},
	}

	s := newSystem(t, Options{})
	child, err := s.CreateChild(t.Context(), def, actor.CreateOptions{Name: "slow-init"})
	require.NoError(t, err)

	_, err = child.SendAndReceive(t.Context(), "ping")
	require.ErrorIs(t, err, actor.ErrNotInitialized)

	close(release)
	require.Eventually(t, func() bool {
		res, err := child.SendAndReceive(t.Context(), "ping")
		return err == nil && res == "pong"
	}, time.Second, 10*time.Millisecond)
}

func TestSystem_ThreadedChildSurvivesCreationContext(t *testing.T) {
	reg := behavior.NewRegistry()
	require.NoError(t, reg.RegisterDefinition(echoDefinition()))

	s := newSystem(t, Options{Registry: reg})

	createCtx, cancel := context.WithCancel(t.Context())
	child, err := s.CreateChild(createCtx, echoDefinition(), actor.CreateOptions{
		Name: "echo",
		Mode: actor.ModeThreaded,
	})
	require.NoError(t, err)

	res, err := child.SendAndReceive(t.Context(), "say", "before")
	require.NoError(t, err)
	require.Equal(t, "before", res)

	// the creation context ends with the creating call, not with the actor
	cancel()

	res, err = child.SendAndReceive(t.Context(), "say", "after")
	require.NoError(t, err)
	require.Equal(t, "after", res)
}

func TestSystem_CreateChildOfThreadedActor(t *testing.T) {
	reg := behavior.NewRegistry()
	require.NoError(t, reg.RegisterDefinition(echoDefinition()))

	s := newSystem(t, Options{Registry: reg})

	child, err := s.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{
		Name: "gateway",
		Mode: actor.ModeThreaded,
	})
	require.NoError(t, err)

	// the grandchild is created inside the endpoint, through the transport
	grand, err := child.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{Name: "leaf"})
	require.NoError(t, err)
	require.Equal(t, child.ID(), grand.Parent().ID())

	res, err := grand.SendAndReceive(t.Context(), "say", "down two levels")
	require.NoError(t, err)
	require.Equal(t, "down two levels", res)

	tree, err := child.Tree(t.Context())
	require.NoError(t, err)
	require.Len(t, tree.Children, 1)
	require.Equal(t, "leaf", tree.Children[0].Name)

	require.NoError(t, grand.Destroy(t.Context()))
	require.NoError(t, grand.Destroy(t.Context())) // idempotent
	_, err = grand.SendAndReceive(t.Context(), "say", "gone")
	require.ErrorIs(t, err, actor.ErrDestroyed)

	// the hosted actor itself is unaffected
	res, err = child.SendAndReceive(t.Context(), "say", "still up")
	require.NoError(t, err)
	require.Equal(t, "still up", res)
}

func TestSystem_ThreadedChildBroadcastCluster(t *testing.T) {
	reg := behavior.NewRegistry()
	require.NoError(t, reg.RegisterDefinition(echoDefinition()))

	s := newSystem(t, Options{Registry: reg})

	child, err := s.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{
		Name: "gateway",
		Mode: actor.ModeThreaded,
	})
	require.NoError(t, err)

	// the grandchild cluster lives endpoint-side; broadcast fans out there
	workers, err := child.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{
		Name:        "workers",
		ClusterSize: 3,
	})
	require.NoError(t, err)

	res, err := workers.BroadcastAndReceive(t.Context(), "whoami")
	require.NoError(t, err)
	require.Len(t, res, 3)
}

func TestSystem_ForkedChild(t *testing.T) {
	reg := behavior.NewRegistry()
	require.NoError(t, reg.RegisterDefinition(echoDefinition()))

	s := newSystem(t, Options{Registry: reg})

	child, err := s.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{
		Name: "echo",
		Mode: actor.ModeForked,
	})
	require.NoError(t, err)
	require.Equal(t, actor.ModeForked, child.Mode())

	res, err := child.SendAndReceive(t.Context(), "say", "over the fork")
	require.NoError(t, err)
	require.Equal(t, "over the fork", res)

	// the worker runs in its own process
	tree, err := child.Tree(t.Context())
	require.NoError(t, err)
	require.NotZero(t, tree.Location.PID)
	require.NotEqual(t, os.Getpid(), tree.Location.PID)

	require.NoError(t, child.Destroy(t.Context()))
}

func TestSystem_ForkedCluster(t *testing.T) {
	reg := behavior.NewRegistry()
	require.NoError(t, reg.RegisterDefinition(echoDefinition()))

	s := newSystem(t, Options{Registry: reg})

	c, err := s.CreateChild(t.Context(), echoDefinition(), actor.CreateOptions{
		Name:        "workers",
		Mode:        actor.ModeForked,
		ClusterSize: 3,
	})
	require.NoError(t, err)

	seen := map[any]struct{}{}
	for range 3 {
		res, err := c.SendAndReceive(t.Context(), "whoami")
		require.NoError(t, err)
		seen[res] = struct{}{}
	}
	require.Len(t, seen, 3)

	m, err := c.Metrics(t.Context())
	require.NoError(t, err)
	require.Contains(t, m, "0")
	require.Contains(t, m, "1")
	require.Contains(t, m, "2")
	require.Contains(t, m, "summary")
}

func TestSystem_SetLogLevel(t *testing.T) {
	s := newSystem(t, Options{LogLevel: "info"})

	require.NoError(t, s.SetLogLevel("debug"))
	require.Error(t, s.SetLogLevel("shouting"))
}

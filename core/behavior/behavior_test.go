package behavior

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/troupe-go/core/actor"
)

func TestRegistry_register_and_resolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("echo", "", func(map[string]any) (*actor.Definition, error) {
		return &actor.Definition{Name: "echo"}, nil
	}))

	_, err := r.Resolve("echo", "")
	require.NoError(t, err)
	_, err = r.Resolve("echo", "1")
	require.NoError(t, err)
	_, err = r.Resolve("echo@1", "")
	require.NoError(t, err)

	_, err = r.Resolve("echo", "2")
	require.ErrorIs(t, err, ErrUnknownBehavior)

	err = r.Register("echo", "1", func(map[string]any) (*actor.Definition, error) { return nil, nil })
	require.ErrorIs(t, err, ErrDuplicateBehavior)
}

func TestCompile_requires_name(t *testing.T) {
	_, err := Compile(&actor.Definition{})
	require.ErrorIs(t, err, ErrUnnamedBehavior)
}

func TestDescriptor_roundtrip_with_mixins(t *testing.T) {
	r := NewRegistry()

	// three-level "inheritance" expressed as capability composition:
	// base <- counter <- speaking
	r.MustRegister("base", "", func(map[string]any) (*actor.Definition, error) {
		return &actor.Definition{
			Name: "base",
			Handlers: actor.Handlers{
				"kind": func(c *actor.Context, args ...any) (any, error) { return "base", nil },
				"ping": func(c *actor.Context, args ...any) (any, error) { return "pong", nil },
			},
		}, nil
	})
	r.MustRegister("counter", "", func(map[string]any) (*actor.Definition, error) {
		n := 0
		return &actor.Definition{
			Name:   "counter",
			Mixins: []string{"base"},
			Handlers: actor.Handlers{
				"kind": func(c *actor.Context, args ...any) (any, error) { return "counter", nil },
				"incr": func(c *actor.Context, args ...any) (any, error) { n++; return float64(n), nil },
			},
		}, nil
	})
	r.MustRegister("speaking", "", func(params map[string]any) (*actor.Definition, error) {
		greeting, _ := params["greeting"].(string)
		if greeting == "" {
			greeting = "hello"
		}
		return &actor.Definition{
			Name:   "speaking",
			Mixins: []string{"counter"},
			Handlers: actor.Handlers{
				"speak": func(c *actor.Context, args ...any) (any, error) { return greeting, nil },
			},
		}, nil
	})

	src, err := r.Resolve("speaking", "")
	require.NoError(t, err)
	def, err := src(nil)
	require.NoError(t, err)

	desc, err := Compile(def)
	require.NoError(t, err)
	require.Equal(t, FormatFactoryV1, desc.Format)
	require.Equal(t, "speaking", desc.Name)
	require.Equal(t, "1", desc.Version)

	rebuilt, err := r.Reconstruct(desc, map[string]any{"greeting": "hi"})
	require.NoError(t, err)

	// every inherited member survives the round trip
	for _, topic := range []string{"ping", "kind", "incr", "speak"} {
		require.Contains(t, rebuilt.Handlers, topic)
	}

	// the most derived member wins
	res, err := rebuilt.Handlers["kind"](nil)
	require.NoError(t, err)
	require.Equal(t, "counter", res)

	res, err = rebuilt.Handlers["speak"](nil)
	require.NoError(t, err)
	require.Equal(t, "hi", res)

	res, err = rebuilt.Handlers["ping"](nil)
	require.NoError(t, err)
	require.Equal(t, "pong", res)
}

func TestReconstruct_unknown_behavior(t *testing.T) {
	r := NewRegistry()
	_, err := r.Reconstruct(Descriptor{Format: FormatFactoryV1, Name: "ghost", Version: "1"}, nil)
	require.ErrorIs(t, err, ErrUnknownBehavior)
}

func TestReconstruct_bad_format(t *testing.T) {
	r := NewRegistry()
	_, err := r.Reconstruct(Descriptor{Format: "source/v0", Name: "x"}, nil)
	require.ErrorIs(t, err, ErrBadFormat)
}

type temperature struct {
	Celsius float64 `json:"celsius"`
}

func TestMarshallers_roundtrip(t *testing.T) {
	ms, err := NewMarshallers(JSON[temperature]("temperature"))
	require.NoError(t, err)

	args, err := ms.Encode([]any{"plain", temperature{Celsius: 21.5}})
	require.NoError(t, err)
	require.Equal(t, "plain", args[0])

	wire, ok := args[1].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "temperature", wire["$type"])

	back, err := ms.Decode(args)
	require.NoError(t, err)
	require.Equal(t, "plain", back[0])
	require.Equal(t, temperature{Celsius: 21.5}, back[1])
}

func TestMarshallers_nested_values(t *testing.T) {
	ms, err := NewMarshallers(JSON[temperature]("temperature"))
	require.NoError(t, err)

	args, err := ms.Encode([]any{
		map[string]any{"reading": temperature{Celsius: 3}},
		[]any{temperature{Celsius: 4}},
	})
	require.NoError(t, err)

	back, err := ms.Decode(args)
	require.NoError(t, err)
	require.Equal(t, temperature{Celsius: 3}, back[0].(map[string]any)["reading"])
	require.Equal(t, temperature{Celsius: 4}, back[1].([]any)[0])
}

func TestMarshallers_require(t *testing.T) {
	ms, err := NewMarshallers(JSON[temperature](""))
	require.NoError(t, err)
	require.NoError(t, ms.Require(ms.Types()))
	require.ErrorIs(t, ms.Require([]string{"nope"}), ErrUnknownMarshaller)
}

func TestMarshallers_duplicate_tag(t *testing.T) {
	_, err := NewMarshallers(JSON[temperature]("t"), JSON[temperature]("t"))
	require.ErrorIs(t, err, ErrDuplicateMarshaller)
}

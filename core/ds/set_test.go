package ds

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSet_order(t *testing.T) {
	s := NewSet("c", "a", "b", "a")
	require.Equal(t, 3, s.Len())
	require.Equal(t, []string{"c", "a", "b"}, s.Values())
	require.Equal(t, "a", s.At(1))
}

func TestSet_remove_keeps_order(t *testing.T) {
	s := NewSet(1, 2, 3, 4)
	s.Remove(2, 9)
	require.Equal(t, []int{1, 3, 4}, s.Values())
	require.False(t, s.Contains(2))
}

func TestSet_json_roundtrip(t *testing.T) {
	s := NewSet("x", "y")
	data, err := json.Marshal(s)
	require.NoError(t, err)
	require.JSONEq(t, `["x","y"]`, string(data))

	var back Set[string]
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, []string{"x", "y"}, back.Values())
}

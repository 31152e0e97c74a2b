package storage

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/szrrizvi/arebac/pkg/dataset"
)

func newTestEngine(t *testing.T) *BadgerEngine {
	t.Helper()
	engine, err := NewBadgerEngineInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func loadFriends(t *testing.T, engine *BadgerEngine) {
	t.Helper()
	ds, err := dataset.Read(strings.NewReader(`
E 5 7 FRIEND
E 5 9 FRIEND
E 5 12 FRIEND since=2010
E 5 12 FRIEND
E 7 5 FRIEND
E 12 9 WORKS_WITH
N 12 color=red age=31
N 9 color=blue
`))
	require.NoError(t, err)
	require.NoError(t, engine.BulkLoad(context.Background(), ds))
}

func TestNewBadgerEngineRequiresDir(t *testing.T) {
	_, err := NewBadgerEngineWithOptions(BadgerOptions{})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestBulkLoad(t *testing.T) {
	engine := newTestEngine(t)
	loadFriends(t, engine)

	nodes, err := engine.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(4), nodes)

	edges, err := engine.EdgeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(5), edges, "the repeated 5 -> 12 edge merges")

	t.Run("node attributes", func(t *testing.T) {
		n, err := engine.GetNode("12")
		require.NoError(t, err)
		assert.Equal(t, "red", n.Attrs["color"])
		assert.Equal(t, json.Number("31"), n.Attrs["age"], "numbers come back as JSON numbers")

		bare, err := engine.GetNode("7")
		require.NoError(t, err)
		assert.Empty(t, bare.Attrs)
	})

	t.Run("edge attributes survive merge", func(t *testing.T) {
		e, err := engine.GetEdge("5", "FRIEND", "12")
		require.NoError(t, err)
		assert.Equal(t, json.Number("2010"), e.Attrs["since"])
	})

	t.Run("neighbours in key order", func(t *testing.T) {
		out, err := engine.Neighbours("5", "FRIEND", Outgoing)
		require.NoError(t, err)
		assert.Equal(t, []NodeID{"12", "7", "9"}, out)

		in, err := engine.Neighbours("9", "FRIEND", Incoming)
		require.NoError(t, err)
		assert.Equal(t, []NodeID{"5"}, in)

		none, err := engine.Neighbours("5", "WORKS_WITH", Outgoing)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("probe", func(t *testing.T) {
		red, err := engine.Probe("color", "red")
		require.NoError(t, err)
		assert.Equal(t, []NodeID{"12"}, red)

		aged, err := engine.Probe("age", "31")
		require.NoError(t, err)
		assert.Equal(t, []NodeID{"12"}, aged)
	})
}

func TestPutNodeReindexes(t *testing.T) {
	engine := newTestEngine(t)
	require.NoError(t, engine.PutNode(&Node{ID: "a", Attrs: map[string]any{"color": "red"}}))
	require.NoError(t, engine.PutNode(&Node{ID: "a", Label: "Thing", Attrs: map[string]any{"color": "blue", "size": "xl"}}))

	n, err := engine.GetNode("a")
	require.NoError(t, err)
	assert.Equal(t, "Thing", n.Label)
	assert.Equal(t, map[string]any{"color": "blue", "size": "xl"}, n.Attrs)

	red, err := engine.Probe("color", "red")
	require.NoError(t, err)
	assert.Empty(t, red)
	blue, err := engine.Probe("color", "blue")
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"a"}, blue)
}

func TestPutNodeReindexesLargeInteger(t *testing.T) {
	engine := newTestEngine(t)
	require.NoError(t, engine.PutNode(&Node{ID: "a", Attrs: map[string]any{"serial": int64(9007199254740993)}}))
	require.NoError(t, engine.PutNode(&Node{ID: "a", Attrs: map[string]any{"serial": int64(5)}}))

	n, err := engine.GetNode("a")
	require.NoError(t, err)
	assert.Equal(t, json.Number("5"), n.Attrs["serial"])

	stale, err := engine.Probe("serial", int64(9007199254740993))
	require.NoError(t, err)
	assert.Empty(t, stale)
	current, err := engine.Probe("serial", "5")
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"a"}, current)
}

func TestProbeDoesNotLeakAcrossValues(t *testing.T) {
	engine := newTestEngine(t)
	require.NoError(t, engine.PutNode(&Node{ID: "x", Attrs: map[string]any{"name": "ab"}}))
	require.NoError(t, engine.PutNode(&Node{ID: "y", Attrs: map[string]any{"name": "a"}}))

	out, err := engine.Probe("name", "a")
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"y"}, out)
}

func TestPutEdgeCreatesEndpoints(t *testing.T) {
	engine := newTestEngine(t)
	require.NoError(t, engine.PutEdge(&Edge{Source: "a", Target: "a", Type: "SELF"}))

	_, err := engine.GetNode("a")
	require.NoError(t, err)
	out, err := engine.Neighbours("a", "SELF", Outgoing)
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"a"}, out)
}

func TestValidation(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name string
		err  error
		call func() error
	}{
		{"nil node", ErrInvalidData, func() error { return engine.PutNode(nil) }},
		{"empty node id", ErrInvalidID, func() error { return engine.PutNode(&Node{}) }},
		{"zero byte in id", ErrInvalidID, func() error { return engine.PutNode(&Node{ID: "a\x00b"}) }},
		{"bad attribute name", ErrInvalidData, func() error {
			return engine.PutNode(&Node{ID: "a", Attrs: map[string]any{"": 1}})
		}},
		{"edge without type", ErrInvalidData, func() error { return engine.PutEdge(&Edge{Source: "a", Target: "b"}) }},
		{"edge with empty endpoint", ErrInvalidID, func() error {
			return engine.PutEdge(&Edge{Source: "a", Type: "R"})
		}},
		{"missing node", ErrNotFound, func() error { _, err := engine.GetNode("nope"); return err }},
		{"missing edge", ErrNotFound, func() error { _, err := engine.GetEdge("a", "R", "b"); return err }},
		{"invalid lookup", ErrInvalidID, func() error { _, err := engine.GetNode(""); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), tt.err)
		})
	}
}

func TestBulkLoadCancelled(t *testing.T) {
	engine := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := engine.BulkLoad(ctx, &dataset.Dataset{Edges: []dataset.Edge{{Source: "1", Target: "2", Type: "R"}}})
	assert.ErrorIs(t, err, context.Canceled)

	n, err := engine.NodeCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClosedEngine(t *testing.T) {
	engine, err := NewBadgerEngineInMemory()
	require.NoError(t, err)
	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close(), "closing twice is a no-op")

	_, err = engine.GetNode("a")
	assert.ErrorIs(t, err, ErrStorageClosed)
	assert.ErrorIs(t, engine.PutNode(&Node{ID: "a"}), ErrStorageClosed)
	_, err = engine.NodeCount()
	assert.ErrorIs(t, err, ErrStorageClosed)
	assert.ErrorIs(t, engine.Sync(), ErrStorageClosed)
	lsm, vlog := engine.Size()
	assert.Zero(t, lsm+vlog)
}

func TestNodeAttrFallsBackToID(t *testing.T) {
	n := &Node{ID: "5"}
	v, ok := n.Attr("id")
	assert.True(t, ok)
	assert.Equal(t, "5", v)

	n.Attrs = map[string]any{"id": float64(99)}
	v, _ = n.Attr("id")
	assert.Equal(t, float64(99), v)

	_, ok = n.Attr("color")
	assert.False(t, ok)
}

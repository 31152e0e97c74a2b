package indexed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/szrrizvi/arebac/pkg/attrs"
	"github.com/szrrizvi/arebac/pkg/dataset"
	"github.com/szrrizvi/arebac/pkg/pattern"
)

func buildFriends(t *testing.T) *Graph {
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
	return FromDataset(ds, attrs.DefaultPolicy())
}

func ids(g *Graph, nodes []NodeID) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = g.ExternalID(n)
	}
	return out
}

func TestGraphAdjacency(t *testing.T) {
	g := buildFriends(t)

	assert.Equal(t, 4, g.NodeCount())
	assert.Equal(t, 5, g.EdgeCount())
	assert.Equal(t, []string{"FRIEND", "WORKS_WITH"}, g.RelTypes())

	five, ok := g.Lookup("5")
	require.True(t, ok)
	nine, _ := g.Lookup("9")
	twelve, _ := g.Lookup("12")

	// Attributed nodes are registered first, so 12 and 9 get the lowest ids.
	t.Run("typed out neighbours are sorted and distinct", func(t *testing.T) {
		assert.Equal(t, []string{"12", "9", "7"}, ids(g, g.Neighbours(five, "FRIEND", Out)))
		assert.Empty(t, g.Neighbours(five, "WORKS_WITH", Out))
		assert.Empty(t, g.Neighbours(five, "UNKNOWN", Out))
	})

	t.Run("in neighbours", func(t *testing.T) {
		assert.Equal(t, []string{"7"}, ids(g, g.Neighbours(five, "FRIEND", In)))
		assert.Equal(t, []string{"12", "5"}, ids(g, g.AllNeighbours(nine, In)))
	})

	t.Run("has edge", func(t *testing.T) {
		assert.True(t, g.HasEdge(five, twelve, "FRIEND"))
		assert.False(t, g.HasEdge(twelve, five, "FRIEND"))
		assert.False(t, g.HasEdge(five, twelve, "WORKS_WITH"))
	})

	t.Run("edge attributes merge", func(t *testing.T) {
		ea, ok := g.EdgeAttrs(five, twelve, "FRIEND")
		require.True(t, ok)
		assert.Equal(t, int64(2010), ea["since"])

		_, ok = g.EdgeAttrs(twelve, five, "FRIEND")
		assert.False(t, ok)
	})

	t.Run("invalid ids", func(t *testing.T) {
		assert.Nil(t, g.Neighbours(NodeID(99), "FRIEND", Out))
		assert.Equal(t, "", g.ExternalID(-1))
		_, ok := g.Attrs(NodeID(99))
		assert.False(t, ok)
	})
}

func TestGraphProbe(t *testing.T) {
	g := buildFriends(t)
	twelve, _ := g.Lookup("12")

	assert.Equal(t, []NodeID{twelve}, g.Probe("color", "red"))
	assert.Equal(t, []NodeID{twelve}, g.Probe("age", "31"))
	assert.Equal(t, []NodeID{twelve}, g.Probe("age", " 31"), "int attributes probe by canonical form")
	assert.Empty(t, g.Probe("color", "green"))
}

func TestNodeViewIDFallback(t *testing.T) {
	g := buildFriends(t)
	seven, _ := g.Lookup("7")

	v, ok := g.Node(seven).Attr(pattern.IDAttr)
	require.True(t, ok)
	assert.Equal(t, "7", v)

	_, ok = g.Node(seven).Attr("color")
	assert.False(t, ok)
}

func friendPattern(t *testing.T, edgeAttrs map[string]string) (*pattern.Node, *pattern.Node, *pattern.Edge) {
	t.Helper()
	g := pattern.NewGraph()
	x := pattern.NewNode("x", "Person")
	y := pattern.NewNode("y", "Person")
	require.NoError(t, g.AddNode(x))
	require.NoError(t, g.AddNode(y))
	e := pattern.NewEdge("r", x, y, "FRIEND")
	for k, v := range edgeAttrs {
		require.NoError(t, e.SetAttr(k, v))
	}
	e, err := g.AddEdge(e)
	require.NoError(t, err)
	return x, y, e
}

func TestAccessFindNeighbours(t *testing.T) {
	g := buildFriends(t)
	a := NewAccess(g, nil)
	ctx := context.Background()
	five, _ := g.Lookup("5")
	twelve, _ := g.Lookup("12")

	x, y, e := friendPattern(t, nil)

	got, err := a.FindNeighbours(ctx, e, x, five)
	require.NoError(t, err)
	assert.Equal(t, []string{"12", "9", "7"}, ids(g, got))

	got, err = a.FindNeighbours(ctx, e, y, five)
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, ids(g, got), "bound target follows incoming edges")

	require.NoError(t, y.SetAttr("color", "red"))
	got, err = a.FindNeighbours(ctx, e, x, five)
	require.NoError(t, err)
	assert.Equal(t, []NodeID{twelve}, got)

	_, _, e2 := friendPattern(t, map[string]string{"since": "2010"})
	got, err = a.FindNeighbours(ctx, e2, e2.Source(), five)
	require.NoError(t, err)
	assert.Equal(t, []NodeID{twelve}, got)
}

func TestAccessFindNode(t *testing.T) {
	g := buildFriends(t)
	a := NewAccess(g, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		attrs map[string]string
		found string
	}{
		{"by id", map[string]string{"id": "12"}, "12"},
		{"id and matching attr", map[string]string{"id": "12", "color": "red"}, "12"},
		{"id and mismatching attr", map[string]string{"id": "12", "color": "blue"}, ""},
		{"unknown id", map[string]string{"id": "404"}, ""},
		{"no id", map[string]string{"color": "red"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := pattern.NewNode("v", "")
			for k, val := range tt.attrs {
				require.NoError(t, v.SetAttr(k, val))
			}
			n, ok, err := a.FindNode(ctx, v)
			require.NoError(t, err)
			if tt.found == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.found, g.ExternalID(n))
		})
	}

	t.Run("explicit id overrides id attribute", func(t *testing.T) {
		v := pattern.NewNode("v", "")
		require.NoError(t, v.SetAttr("id", "5"))
		n, ok, err := a.FindNodeByID(ctx, v, "9")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "9", g.ExternalID(n))
	})
}

func TestAccessRelationshipExists(t *testing.T) {
	g := buildFriends(t)
	a := NewAccess(g, nil)
	ctx := context.Background()
	five, _ := g.Lookup("5")
	seven, _ := g.Lookup("7")
	twelve, _ := g.Lookup("12")

	_, _, e := friendPattern(t, nil)
	ok, err := a.RelationshipExists(ctx, five, seven, e)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = a.RelationshipExists(ctx, twelve, five, e)
	assert.False(t, ok)

	_, _, withAttr := friendPattern(t, map[string]string{"since": "2010"})
	ok, _ = a.RelationshipExists(ctx, five, seven, withAttr)
	assert.False(t, ok)
	ok, _ = a.RelationshipExists(ctx, five, twelve, withAttr)
	assert.True(t, ok)
}

func TestAccessProbe(t *testing.T) {
	g := buildFriends(t)
	a := NewAccess(g, nil)
	ctx := context.Background()
	seven, _ := g.Lookup("7")

	got, err := a.ProbeAttr(ctx, pattern.IDAttr, "7")
	require.NoError(t, err)
	assert.Equal(t, []NodeID{seven}, got)

	at, ok, err := a.NodeAttributes(ctx, seven)
	require.NoError(t, err)
	require.True(t, ok)
	id, _ := at.Attr(pattern.IDAttr)
	assert.Equal(t, "7", id)

	_, ok, _ = a.NodeAttributes(ctx, NodeID(1000))
	assert.False(t, ok)
}

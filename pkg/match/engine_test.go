package match_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/szrrizvi/arebac/pkg/attrs"
	"github.com/szrrizvi/arebac/pkg/dataset"
	"github.com/szrrizvi/arebac/pkg/indexed"
	"github.com/szrrizvi/arebac/pkg/match"
	"github.com/szrrizvi/arebac/pkg/pattern"
	"github.com/szrrizvi/arebac/pkg/reference"
)

// =============================================================================
// Helpers
// =============================================================================

const friends = `
E 5 7 FRIEND
E 5 9 FRIEND
E 5 12 FRIEND
E 9 12 FRIEND
N 12 color=red
N 7 color=blue
N 9 color=blue
`

func targetGraph(t *testing.T, text string) *indexed.Graph {
	t.Helper()
	ds, err := dataset.Read(strings.NewReader(text))
	require.NoError(t, err)
	return indexed.FromDataset(ds, attrs.DefaultPolicy())
}

// builder assembles a pattern with terse helpers.
type builder struct {
	t *testing.T
	g *pattern.Graph
}

func newPattern(t *testing.T) *builder {
	return &builder{t: t, g: pattern.NewGraph()}
}

func (b *builder) node(name string, kv ...string) *pattern.Node {
	n := pattern.NewNode(name, "")
	for i := 0; i+1 < len(kv); i += 2 {
		require.NoError(b.t, n.SetAttr(kv[i], kv[i+1]))
	}
	require.NoError(b.t, b.g.AddNode(n))
	return n
}

func (b *builder) edge(src, tgt *pattern.Node, relType string, kv ...string) *pattern.Edge {
	e := pattern.NewEdge("", src, tgt, relType)
	for i := 0; i+1 < len(kv); i += 2 {
		require.NoError(b.t, e.SetAttr(kv[i], kv[i+1]))
	}
	stored, err := b.g.AddEdge(e)
	require.NoError(b.t, err)
	return stored
}

func (b *builder) holder(mex []pattern.ExclusionPair, schema ...*pattern.Node) *pattern.Holder {
	if len(schema) == 0 {
		schema = pattern.AllNodesSchema(b.g)
	}
	h, err := pattern.NewHolder(b.g, mex, schema)
	require.NoError(b.t, err)
	return h
}

func newEngine(t *testing.T, h *pattern.Holder, g *indexed.Graph, opts ...match.Option) *match.Engine[indexed.NodeID] {
	t.Helper()
	e, err := match.New(h, match.Strategies[indexed.NodeID]{Access: indexed.NewAccess(g, nil)}, opts...)
	require.NoError(t, err)
	return e
}

func rowStrings(g *indexed.Graph, rows [][]indexed.NodeID) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		parts := make([]string, len(r))
		for j, n := range r {
			parts[j] = g.ExternalID(n)
		}
		out[i] = strings.Join(parts, ",")
	}
	sort.Strings(out)
	return out
}

// recorder is a Tracer that keeps every event.
type recorder struct {
	assigns   int
	prunes    [][2]int
	conflicts []conflictEvent
	backjumps int
	onAssign  func()
}

type conflictEvent struct {
	v         string
	conflicts []*pattern.Node
	bound     []*pattern.Node
}

func (r *recorder) Assign(int, *pattern.Node, any) {
	r.assigns++
	if r.onAssign != nil {
		r.onAssign()
	}
}

func (r *recorder) Prune(_ int, _ *pattern.Node, before, after int) {
	r.prunes = append(r.prunes, [2]int{before, after})
}

func (r *recorder) Conflict(_ int, v *pattern.Node, conflicts, bound []*pattern.Node) {
	r.conflicts = append(r.conflicts, conflictEvent{v.Name(), conflicts, bound})
}

func (r *recorder) Backjump(int, *pattern.Node) { r.backjumps++ }

// =============================================================================
// Scenarios
// =============================================================================

func TestScenarioFriendsOfBoundNode(t *testing.T) {
	g := targetGraph(t, friends)
	p := newPattern(t)
	x := p.node("x", "id", "5")
	y := p.node("y")
	p.edge(x, y, "FRIEND")

	res, err := newEngine(t, p.holder(nil, y), g).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, match.StatusCompleted, res.Status)
	assert.Equal(t, []string{"12", "7", "9"}, rowStrings(g, res.Rows))
}

func TestScenarioAttributeFilter(t *testing.T) {
	g := targetGraph(t, friends)
	p := newPattern(t)
	x := p.node("x", "id", "5")
	y := p.node("y", "color", "red")
	p.edge(x, y, "FRIEND")

	res, err := newEngine(t, p.holder(nil, y), g).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"12"}, rowStrings(g, res.Rows))
	assert.True(t, res.Found())
}

func TestScenarioUnanchoredCycle(t *testing.T) {
	g := targetGraph(t, "1 2\n2 3\n3 1\n")
	p := newPattern(t)
	a, b, c := p.node("a"), p.node("b"), p.node("c")
	p.edge(a, b, "RelA")
	p.edge(b, c, "RelA")
	p.edge(c, a, "RelA")

	rec := &recorder{}
	res, err := newEngine(t, p.holder(nil), g, match.WithTracer(rec)).Check(context.Background())
	require.ErrorIs(t, err, match.ErrCouldNotStart)
	assert.Equal(t, match.StatusNotStarted, res.Status)
	assert.Nil(t, res.Rows)
	assert.Zero(t, rec.assigns)
}

// =============================================================================
// Init
// =============================================================================

func TestInitOutcomes(t *testing.T) {
	g := targetGraph(t, friends)

	tests := []struct {
		name   string
		build  func(p *builder) *pattern.Holder
		err    error
		status match.Status
		rows   []string
	}{
		{
			name: "pre-bound node not found",
			build: func(p *builder) *pattern.Holder {
				x, y := p.node("x", "id", "404"), p.node("y")
				p.edge(x, y, "FRIEND")
				return p.holder(nil)
			},
			err:    match.ErrCouldNotStart,
			status: match.StatusNotStarted,
		},
		{
			name: "pre-bound attribute mismatch",
			build: func(p *builder) *pattern.Holder {
				x, y := p.node("x", "id", "12", "color", "blue"), p.node("y")
				p.edge(y, x, "FRIEND")
				return p.holder(nil)
			},
			err:    match.ErrCouldNotStart,
			status: match.StatusNotStarted,
		},
		{
			name: "edge between bound nodes missing",
			build: func(p *builder) *pattern.Holder {
				x, z := p.node("x", "id", "5"), p.node("z", "id", "9")
				p.edge(z, x, "FRIEND")
				return p.holder(nil)
			},
			err:    match.ErrPrecheckFailed,
			status: match.StatusNotStarted,
		},
		{
			name: "exclusion between bound nodes",
			build: func(p *builder) *pattern.Holder {
				x, z := p.node("x", "id", "5"), p.node("z", "id", "5")
				return p.holder([]pattern.ExclusionPair{{A: x, B: z}})
			},
			err:    match.ErrPrecheckFailed,
			status: match.StatusNotStarted,
		},
		{
			name: "edge between bound nodes present",
			build: func(p *builder) *pattern.Holder {
				x, z := p.node("x", "id", "5"), p.node("z", "id", "9")
				p.edge(x, z, "FRIEND")
				return p.holder(nil)
			},
			status: match.StatusCompleted,
			rows:   []string{"5,9"},
		},
		{
			name: "initial forward check empties a set",
			build: func(p *builder) *pattern.Holder {
				x, y := p.node("x", "id", "7"), p.node("y")
				p.edge(x, y, "FRIEND")
				return p.holder(nil)
			},
			status: match.StatusCompleted,
			rows:   []string{},
		},
		{
			name: "alternative start from attributes",
			build: func(p *builder) *pattern.Holder {
				x, y := p.node("x"), p.node("y", "color", "red")
				p.edge(x, y, "FRIEND")
				return p.holder(nil)
			},
			status: match.StatusCompleted,
			rows:   []string{"5,12", "9,12"},
		},
		{
			name: "alternative start finds nothing",
			build: func(p *builder) *pattern.Holder {
				x, y := p.node("x"), p.node("y", "color", "green")
				p.edge(x, y, "FRIEND")
				return p.holder(nil)
			},
			err:    match.ErrCouldNotStart,
			status: match.StatusNotStarted,
		},
		{
			name: "second component without anchor",
			build: func(p *builder) *pattern.Holder {
				x, y := p.node("x", "id", "5"), p.node("y")
				p.edge(x, y, "FRIEND")
				p.node("loose")
				return p.holder(nil)
			},
			err:    match.ErrCouldNotStart,
			status: match.StatusNotStarted,
		},
		{
			name: "empty pattern has one empty row",
			build: func(p *builder) *pattern.Holder {
				return p.holder(nil)
			},
			status: match.StatusCompleted,
			rows:   []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.build(newPattern(t))
			res, err := newEngine(t, h, g).Check(context.Background())
			require.NotNil(t, res)
			assert.Equal(t, tt.status, res.Status)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				if errors.Is(tt.err, match.ErrPrecheckFailed) {
					assert.ErrorIs(t, err, match.ErrCouldNotStart)
				}
				assert.Nil(t, res.Rows)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.rows, rowStrings(g, res.Rows))
		})
	}
}

func TestExplicitBindings(t *testing.T) {
	g := targetGraph(t, friends)

	t.Run("override id attribute", func(t *testing.T) {
		p := newPattern(t)
		x, y := p.node("x", "id", "7"), p.node("y")
		p.edge(x, y, "FRIEND")
		h := p.holder(nil, y)

		res, err := newEngine(t, h, g).CheckWithBindings(context.Background(), map[*pattern.Node]string{x: "9"})
		require.NoError(t, err)
		assert.Equal(t, []string{"12"}, rowStrings(g, res.Rows))
	})

	t.Run("bind a free node", func(t *testing.T) {
		p := newPattern(t)
		x, y := p.node("x"), p.node("y")
		p.edge(x, y, "FRIEND")
		h := p.holder(nil, x)

		res, err := newEngine(t, h, g).CheckWithBindings(context.Background(), map[*pattern.Node]string{y: "12"})
		require.NoError(t, err)
		assert.Equal(t, []string{"5", "9"}, rowStrings(g, res.Rows))
	})

	t.Run("node outside pattern", func(t *testing.T) {
		p := newPattern(t)
		p.node("x", "id", "5")
		h := p.holder(nil)

		res, err := newEngine(t, h, g).CheckWithBindings(context.Background(), map[*pattern.Node]string{pattern.NewNode("z", ""): "5"})
		require.ErrorIs(t, err, match.ErrUnknownBinding)
		assert.Equal(t, match.StatusFailed, res.Status)
	})
}

// =============================================================================
// Engine contract
// =============================================================================

func TestEngineSingleUse(t *testing.T) {
	g := targetGraph(t, friends)
	p := newPattern(t)
	p.node("x", "id", "5")
	e := newEngine(t, p.holder(nil), g)

	_, err := e.Check(context.Background())
	require.NoError(t, err)
	res, err := e.Check(context.Background())
	assert.ErrorIs(t, err, match.ErrAlreadyRun)
	assert.Nil(t, res)
}

func TestNewRequiresAccess(t *testing.T) {
	p := newPattern(t)
	p.node("x")
	_, err := match.New(p.holder(nil), match.Strategies[indexed.NodeID]{})
	assert.ErrorIs(t, err, match.ErrNoAccess)

	_, err = match.New[indexed.NodeID](nil, match.Strategies[indexed.NodeID]{})
	assert.Error(t, err)
}

type failingAccess struct {
	*indexed.Access
}

func (failingAccess) FindNeighbours(context.Context, *pattern.Edge, *pattern.Node, indexed.NodeID) ([]indexed.NodeID, error) {
	return nil, errors.New("connection reset")
}

func TestBackendFailureAborts(t *testing.T) {
	g := targetGraph(t, friends)
	p := newPattern(t)
	x, y := p.node("x", "id", "5"), p.node("y")
	p.edge(x, y, "FRIEND")

	e, err := match.New(p.holder(nil), match.Strategies[indexed.NodeID]{Access: failingAccess{indexed.NewAccess(g, nil)}})
	require.NoError(t, err)
	res, err := e.Check(context.Background())
	require.ErrorIs(t, err, match.ErrBackend)
	assert.ErrorContains(t, err, "connection reset")
	assert.Equal(t, match.StatusFailed, res.Status)
}

func TestSelfLoop(t *testing.T) {
	g := targetGraph(t, "E 1 1 R\nE 1 2 R\nE 2 3 R\nN 1 kind=a\nN 2 kind=a\n")
	p := newPattern(t)
	x := p.node("x", "kind", "a")
	p.edge(x, x, "R")

	res, err := newEngine(t, p.holder(nil), g).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, rowStrings(g, res.Rows))
}

func TestMutualExclusion(t *testing.T) {
	g := targetGraph(t, friends)
	p := newPattern(t)
	x, y, z := p.node("x", "id", "5"), p.node("y"), p.node("z")
	p.edge(x, y, "FRIEND")
	p.edge(x, z, "FRIEND")
	h := p.holder([]pattern.ExclusionPair{{A: y, B: z}}, y, z)

	res, err := newEngine(t, h, g).Check(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Rows, 6)
	for _, row := range res.Rows {
		assert.NotEqual(t, row[0], row[1])
	}
}

func TestDistinctProjection(t *testing.T) {
	g := targetGraph(t, friends)
	p := newPattern(t)
	x, y, z := p.node("x", "id", "5"), p.node("y"), p.node("z")
	p.edge(x, y, "FRIEND")
	p.edge(x, z, "FRIEND")

	res, err := newEngine(t, p.holder(nil, x), g).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"5"}, rowStrings(g, res.Rows))
	assert.Equal(t, 9, res.Stats.Leaves)
}

// =============================================================================
// Backjumping
// =============================================================================

// backjumpGraph makes every c candidate fail on d regardless of b.
const backjumpGraph = `
E 1 2 R1
E 1 3 R1
E 1 4 R2
E 1 5 R2
E 1 6 R2
E 4 7 R3
E 5 7 R3
E 6 8 R3
N 7 color=blue
N 8 color=blue
`

func TestBackjumpSkipsIrrelevantNode(t *testing.T) {
	g := targetGraph(t, backjumpGraph)
	p := newPattern(t)
	a := p.node("a", "id", "1")
	b, c, d := p.node("b"), p.node("c"), p.node("d", "color", "red")
	p.edge(a, b, "R1")
	p.edge(a, c, "R2")
	p.edge(c, d, "R3")

	rec := &recorder{}
	res, err := newEngine(t, p.holder(nil), g, match.WithTracer(rec)).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, match.StatusCompleted, res.Status)
	assert.Empty(t, res.Rows)

	// b=2, then c=4,5,6 all fail; b=3 is never tried.
	assert.Equal(t, 4, res.Stats.Assignments)
	assert.Equal(t, 1, res.Stats.Backjumps)
	assert.Equal(t, 1, rec.backjumps)
	require.NotEmpty(t, rec.conflicts)
	assert.Equal(t, "c", rec.conflicts[0].v)
	assert.Equal(t, []*pattern.Node{a}, rec.conflicts[0].conflicts)
}

// =============================================================================
// Cancellation
// =============================================================================

func TestKillBeforeCheck(t *testing.T) {
	g := targetGraph(t, friends)
	p := newPattern(t)
	x, y := p.node("x", "id", "5"), p.node("y")
	p.edge(x, y, "FRIEND")

	rec := &recorder{}
	e := newEngine(t, p.holder(nil), g, match.WithTracer(rec))
	e.Kill()
	res, err := e.Check(context.Background())
	require.ErrorIs(t, err, match.ErrKilled)
	assert.Equal(t, match.StatusKilled, res.Status)
	assert.Nil(t, res.Rows)
	assert.Zero(t, rec.assigns)
}

func TestCancelledContext(t *testing.T) {
	g := targetGraph(t, friends)
	p := newPattern(t)
	p.node("x", "id", "5")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := newEngine(t, p.holder(nil), g).Check(ctx)
	require.ErrorIs(t, err, match.ErrKilled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, match.StatusKilled, res.Status)
}

func TestKillDuringSearch(t *testing.T) {
	g := targetGraph(t, friends)
	p := newPattern(t)
	x, y, z := p.node("x", "id", "5"), p.node("y"), p.node("z")
	p.edge(x, y, "FRIEND")
	p.edge(x, z, "FRIEND")

	rec := &recorder{}
	e := newEngine(t, p.holder(nil), g, match.WithTracer(rec))
	rec.onAssign = e.Kill

	res, err := e.Check(context.Background())
	require.ErrorIs(t, err, match.ErrKilled)
	assert.Nil(t, res.Rows, "no partial results after a kill")
	assert.Equal(t, 1, res.Stats.Assignments)
	assert.Equal(t, 1, rec.assigns)
}

type slowAccess struct {
	*indexed.Access
	delay time.Duration
}

func (s slowAccess) FindNeighbours(ctx context.Context, e *pattern.Edge, bound *pattern.Node, v indexed.NodeID) ([]indexed.NodeID, error) {
	time.Sleep(s.delay)
	return s.Access.FindNeighbours(ctx, e, bound, v)
}

func TestWatchdogKillsSlowSearch(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			fmt.Fprintf(&sb, "%d %d\n", i, j)
		}
	}
	g := targetGraph(t, sb.String())

	p := newPattern(t)
	prev := p.node("n0", "id", "0")
	for i := 1; i < 5; i++ {
		n := p.node("n" + strconv.Itoa(i))
		p.edge(prev, n, "RelA")
		prev = n
	}

	e, err := match.New(p.holder(nil),
		match.Strategies[indexed.NodeID]{Access: slowAccess{indexed.NewAccess(g, nil), 5 * time.Millisecond}},
		match.WithTimeout(40*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	res, err := e.Check(context.Background())
	require.ErrorIs(t, err, match.ErrKilled)
	assert.Equal(t, match.StatusKilled, res.Status)
	assert.Less(t, time.Since(start), 2*time.Second)
}

// =============================================================================
// Properties
// =============================================================================

type randomCase struct {
	target string
	build  func(p *builder) *pattern.Holder
}

func genCase(r *rand.Rand) randomCase {
	colors := []string{"red", "blue"}
	types := []string{"R1", "R2"}

	var sb strings.Builder
	const size = 6
	for i := 0; i < size; i++ {
		fmt.Fprintf(&sb, "N %d color=%s\n", i, colors[r.IntN(len(colors))])
	}
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			if r.IntN(10) < 3 {
				fmt.Fprintf(&sb, "E %d %d %s w=%d\n", i, j, types[r.IntN(len(types))], 1+r.IntN(2))
			}
		}
	}

	k := 2 + r.IntN(3)
	type edgeSpec struct {
		src, tgt int
		typ, w   string
	}
	var edges []edgeSpec
	for i := 1; i < k; i++ {
		parent := r.IntN(i)
		e := edgeSpec{src: parent, tgt: i, typ: types[r.IntN(len(types))]}
		if r.IntN(2) == 0 {
			e.src, e.tgt = e.tgt, e.src
		}
		edges = append(edges, e)
	}
	for extra := r.IntN(3); extra > 0; extra-- {
		edges = append(edges, edgeSpec{src: r.IntN(k), tgt: r.IntN(k), typ: types[r.IntN(len(types))]})
	}
	for i := range edges {
		if r.IntN(4) == 0 {
			edges[i].w = strconv.Itoa(1 + r.IntN(2))
		}
	}

	nodeAttrs := make([][]string, k)
	if r.IntN(2) == 0 {
		nodeAttrs[0] = []string{"id", strconv.Itoa(r.IntN(size))}
	} else {
		nodeAttrs[0] = []string{"color", colors[r.IntN(len(colors))]}
	}
	for i := 1; i < k; i++ {
		if r.IntN(3) == 0 {
			nodeAttrs[i] = []string{"color", colors[r.IntN(len(colors))]}
		}
	}

	mex := [2]int{-1, -1}
	if r.IntN(2) == 0 {
		a, b := r.IntN(k), r.IntN(k)
		if a != b {
			mex = [2]int{a, b}
		}
	}
	projectAll := r.IntN(2) == 0

	return randomCase{
		target: sb.String(),
		build: func(p *builder) *pattern.Holder {
			nodes := make([]*pattern.Node, k)
			for i := range nodes {
				nodes[i] = p.node("n"+strconv.Itoa(i), nodeAttrs[i]...)
			}
			for _, e := range edges {
				if e.w != "" {
					p.edge(nodes[e.src], nodes[e.tgt], e.typ, "w", e.w)
				} else {
					p.edge(nodes[e.src], nodes[e.tgt], e.typ)
				}
			}
			var pairs []pattern.ExclusionPair
			if mex[0] >= 0 {
				pairs = append(pairs, pattern.ExclusionPair{A: nodes[mex[0]], B: nodes[mex[1]]})
			}
			if projectAll {
				return p.holder(pairs)
			}
			return p.holder(pairs, nodes[k-1], nodes[0])
		},
	}
}

func TestEquivalenceWithBruteForce(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	ctx := context.Background()

	for i := 0; i < 150; i++ {
		tc := genCase(r)
		t.Run(fmt.Sprintf("case%03d", i), func(t *testing.T) {
			g := targetGraph(t, tc.target)
			h := tc.build(newPattern(t))

			rec := &recorder{}
			res, err := newEngine(t, h, g, match.WithTracer(rec)).Check(ctx)
			want, refErr := reference.Enumerate(ctx, h, g, nil)
			require.NoError(t, refErr)

			if errors.Is(err, match.ErrCouldNotStart) {
				// Every generated pattern is connected and anchored, so a
				// failed start must mean there is nothing to find.
				assert.Empty(t, want)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, rowStrings(g, want), rowStrings(g, res.Rows))

			for _, pr := range rec.prunes {
				assert.LessOrEqual(t, pr[1], pr[0], "candidate sets never grow")
			}
			for _, c := range rec.conflicts {
				bound := make(map[*pattern.Node]bool, len(c.bound))
				for _, n := range c.bound {
					bound[n] = true
				}
				for _, n := range c.conflicts {
					assert.True(t, bound[n], "conflict %s at %s is bound", n.Name(), c.v)
				}
			}
		})
	}
}

func TestDeterminism(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		tc := genCase(r)
		g := targetGraph(t, tc.target)
		h := tc.build(newPattern(t))

		first, err1 := newEngine(t, h, g).Check(ctx)
		second, err2 := newEngine(t, h, g).Check(ctx)
		assert.Equal(t, err1 == nil, err2 == nil)
		assert.Equal(t, first.Status, second.Status)
		assert.Equal(t, first.Rows, second.Rows, "same inputs give the same rows in the same order")
		assert.Equal(t, first.Stats.Assignments, second.Stats.Assignments)
	}
}

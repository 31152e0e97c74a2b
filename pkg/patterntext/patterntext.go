// Package patterntext reads patterns written in a small MATCH / WHERE /
// RETURN language and turns them into pattern holders.
//
//	MATCH (n1:Person)-[rel1:RelA]->(n2:Person)
//	MATCH (n2:Person)<-[rel2:RelB]-(n3:Person)
//	WHERE n1.`id`=5 AND n1 <> n3 AND n2.`color`="red" AND rel1.`since`=2010
//	RETURN DISTINCT n1, n3
//
// A WHERE equality on a node or relationship becomes an attribute
// requirement; `a <> b` between two nodes becomes a mutual-exclusion pair.
// Without RETURN every node is projected. Results are always distinct, so
// DISTINCT is accepted and has no further effect.
package patterntext

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/szrrizvi/arebac/pkg/pattern"
)

// Separator divides queries in a multi-query file.
const Separator = "-----"

var (
	ErrSyntax          = errors.New("patterntext: syntax error")
	ErrUnknownVariable = errors.New("patterntext: unknown variable")
	ErrUndirected      = errors.New("patterntext: relationship must have exactly one direction")
	ErrDuplicateRel    = errors.New("patterntext: duplicate relationship name")
	ErrVariableKind    = errors.New("patterntext: variable used as both node and relationship")
	ErrLabelConflict   = errors.New("patterntext: conflicting labels")
)

// Parse builds a holder from a single query.
func Parse(src string) (*pattern.Holder, error) {
	q, err := parser.ParseString("", src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyntax, err)
	}
	return build(q)
}

// ParseAll parses every query in r. Queries are separated by lines starting
// with Separator; empty sections are skipped.
func ParseAll(r io.Reader) ([]*pattern.Holder, error) {
	var (
		out   []*pattern.Holder
		buf   strings.Builder
		start = 1
		line  = 0
	)
	flush := func() error {
		src := buf.String()
		buf.Reset()
		if strings.TrimSpace(src) == "" {
			return nil
		}
		h, err := Parse(src)
		if err != nil {
			return fmt.Errorf("query %d (line %d): %w", len(out)+1, start, err)
		}
		out = append(out, h)
		return nil
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line++
		text := sc.Text()
		if strings.HasPrefix(strings.TrimSpace(text), Separator) {
			if err := flush(); err != nil {
				return nil, err
			}
			start = line + 1
			continue
		}
		buf.WriteString(text)
		buf.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseFile reads and parses every query in path.
func ParseFile(path string) ([]*pattern.Holder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseAll(f)
}

type pendingEdge struct {
	src, tgt *pattern.Node
	name     string
	relType  string
	attrs    []pattern.Attribute
}

type builder struct {
	g     *pattern.Graph
	nodes map[string]*pattern.Node
	rels  map[string]*pendingEdge
	edges []*pendingEdge
}

func build(q *query) (*pattern.Holder, error) {
	b := &builder{
		g:     pattern.NewGraph(),
		nodes: make(map[string]*pattern.Node),
		rels:  make(map[string]*pendingEdge),
	}

	for _, m := range q.Matches {
		prev, err := b.node(m.Start)
		if err != nil {
			return nil, err
		}
		for _, s := range m.Steps {
			next, err := b.node(s.Node)
			if err != nil {
				return nil, err
			}
			if err := b.relationship(prev, next, s); err != nil {
				return nil, err
			}
			prev = next
		}
	}

	var mex []pattern.ExclusionPair
	for _, c := range q.Where {
		if c.Attr == nil {
			a, err := b.lookupNode(c.Var)
			if err != nil {
				return nil, err
			}
			other, err := b.lookupNode(c.Excl)
			if err != nil {
				return nil, err
			}
			mex = append(mex, pattern.ExclusionPair{A: a, B: other})
			continue
		}
		if n, ok := b.nodes[c.Var]; ok {
			if err := n.SetAttr(c.Attr.Name, c.Attr.Value); err != nil {
				return nil, err
			}
			continue
		}
		if r, ok := b.rels[c.Var]; ok {
			r.attrs = append(r.attrs, pattern.Attribute{Name: c.Attr.Name, Value: c.Attr.Value})
			continue
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, c.Var)
	}

	for _, pe := range b.edges {
		e := pattern.NewEdge(pe.name, pe.src, pe.tgt, pe.relType)
		for _, a := range pe.attrs {
			if err := e.SetAttr(a.Name, a.Value); err != nil {
				return nil, err
			}
		}
		if _, err := b.g.AddEdge(e); err != nil {
			return nil, err
		}
	}

	schema := pattern.AllNodesSchema(b.g)
	if q.Return != nil {
		schema = schema[:0:0]
		for _, name := range q.Return.Vars {
			n, err := b.lookupNode(name)
			if err != nil {
				return nil, err
			}
			schema = append(schema, n)
		}
	}
	return pattern.NewHolder(b.g, mex, schema)
}

// node returns the node for p, creating it on first use. The label of the
// first occurrence wins; a later, different label is an error.
func (b *builder) node(p *nodePat) (*pattern.Node, error) {
	if _, ok := b.rels[p.Var]; ok {
		return nil, fmt.Errorf("%w: %s", ErrVariableKind, p.Var)
	}
	if n, ok := b.nodes[p.Var]; ok {
		if p.Label != "" && n.Label() != "" && p.Label != n.Label() {
			return nil, fmt.Errorf("%w: %s is %s and %s", ErrLabelConflict, p.Var, n.Label(), p.Label)
		}
		return n, nil
	}
	n := pattern.NewNode(p.Var, p.Label)
	if err := b.g.AddNode(n); err != nil {
		return nil, err
	}
	b.nodes[p.Var] = n
	return n, nil
}

func (b *builder) relationship(prev, next *pattern.Node, s *step) error {
	pe := &pendingEdge{name: s.Rel.Var, relType: s.Rel.Type}
	switch {
	case s.Left == "-" && s.Right == "->":
		pe.src, pe.tgt = prev, next
	case s.Left == "<-" && s.Right == "-":
		pe.src, pe.tgt = next, prev
	default:
		return fmt.Errorf("%w: %s%s%s", ErrUndirected, s.Left, s.Rel.Var, s.Right)
	}

	if pe.name == "" {
		pe.name = fmt.Sprintf("_r%d", len(b.edges))
	} else {
		if _, ok := b.rels[pe.name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateRel, pe.name)
		}
		if _, ok := b.nodes[pe.name]; ok {
			return fmt.Errorf("%w: %s", ErrVariableKind, pe.name)
		}
		b.rels[pe.name] = pe
	}
	b.edges = append(b.edges, pe)
	return nil
}

func (b *builder) lookupNode(name string) (*pattern.Node, error) {
	n, ok := b.nodes[name]
	if !ok {
		if _, rel := b.rels[name]; rel {
			return nil, fmt.Errorf("%w: %s is a relationship", ErrVariableKind, name)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}
	return n, nil
}

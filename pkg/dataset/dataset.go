// Package dataset reads target graphs from files.
//
// Two formats are supported.
//
// Text edge lists, one record per line:
//
//	# comment
//	1 2                       edge 1 -> 2 of type RelA
//	E 1 3 FRIEND since=2010   typed edge with attributes
//	N 3 color="red" age=31    node attributes
//
// Unquoted integer values are stored as int64, everything else as string.
//
// Combined JSON exports in the Neo4j APOC layout:
//
//	{
//	  "nodes": [{"id":"1","labels":["Person"],"properties":{"age":30}}],
//	  "relationships": [{"id":"0","type":"KNOWS","startNode":"1","endNode":"2","properties":{}}]
//	}
//
// Load picks the format from the file extension.
package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultRelType is the relation type of untyped edge lines.
const DefaultRelType = "RelA"

// ErrSyntax is wrapped by every parse error.
var ErrSyntax = errors.New("dataset: syntax error")

// Node carries the attributes of one target node.
type Node struct {
	ID    string
	Label string
	Attrs map[string]any
}

// Edge is one directed, typed relationship.
type Edge struct {
	Source string
	Target string
	Type   string
	Attrs  map[string]any
}

// Dataset is a parsed file. Nodes only lists nodes with attributes or
// labels; edge endpoints exist implicitly.
type Dataset struct {
	Nodes []Node
	Edges []Edge
}

// NodeCount returns the number of distinct node ids mentioned anywhere.
func (d *Dataset) NodeCount() int {
	seen := make(map[string]struct{}, len(d.Nodes)+len(d.Edges))
	for _, n := range d.Nodes {
		seen[n.ID] = struct{}{}
	}
	for _, e := range d.Edges {
		seen[e.Source] = struct{}{}
		seen[e.Target] = struct{}{}
	}
	return len(seen)
}

// Load reads path. Files ending in .json are read as combined exports,
// everything else as text.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ReadJSON(f)
	}
	return Read(f)
}

// Read parses the text format.
func Read(r io.Reader) (*Dataset, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	ds := &Dataset{}
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := ds.parseLine(line); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning dataset: %w", err)
	}
	return ds, nil
}

func (d *Dataset) parseLine(line string) error {
	fields, err := splitFields(line)
	if err != nil {
		return err
	}

	switch fields[0] {
	case "E":
		if len(fields) < 4 {
			return fmt.Errorf("%w: edge needs source, target and type", ErrSyntax)
		}
		a, err := parseAttrs(fields[4:])
		if err != nil {
			return err
		}
		d.Edges = append(d.Edges, Edge{Source: fields[1], Target: fields[2], Type: fields[3], Attrs: a})
	case "N":
		if len(fields) < 2 {
			return fmt.Errorf("%w: node needs an id", ErrSyntax)
		}
		a, err := parseAttrs(fields[2:])
		if err != nil {
			return err
		}
		d.Nodes = append(d.Nodes, Node{ID: fields[1], Attrs: a})
	default:
		if len(fields) != 2 {
			return fmt.Errorf("%w: expected \"src tgt\", got %d fields", ErrSyntax, len(fields))
		}
		for _, f := range fields {
			if _, err := strconv.ParseInt(f, 10, 64); err != nil {
				return fmt.Errorf("%w: node id %q is not an integer", ErrSyntax, f)
			}
		}
		d.Edges = append(d.Edges, Edge{Source: fields[0], Target: fields[1], Type: DefaultRelType})
	}
	return nil
}

// splitFields splits on whitespace, keeping double-quoted runs (with Go
// escapes) inside one field.
func splitFields(line string) ([]string, error) {
	var (
		fields []string
		cur    strings.Builder
		quoted bool
		escape bool
	)
	for _, r := range line {
		switch {
		case escape:
			cur.WriteRune(r)
			escape = false
		case quoted && r == '\\':
			cur.WriteRune(r)
			escape = true
		case r == '"':
			cur.WriteRune(r)
			quoted = !quoted
		case !quoted && (r == ' ' || r == '\t'):
			if cur.Len() > 0 {
				fields = append(fields, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if quoted {
		return nil, fmt.Errorf("%w: unterminated quote", ErrSyntax)
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields, nil
}

func parseAttrs(fields []string) (map[string]any, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		k, raw, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: attribute %q is not name=value", ErrSyntax, f)
		}
		v, err := parseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: attribute %s: %v", ErrSyntax, k, err)
		}
		out[k] = v
	}
	return out, nil
}

func parseValue(raw string) (any, error) {
	if strings.HasPrefix(raw, `"`) {
		return strconv.Unquote(raw)
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i, nil
	}
	return raw, nil
}

// =============================================================================
// Combined JSON export
// =============================================================================

type exportNode struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

type exportRelationship struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	StartNode  string         `json:"startNode"`
	EndNode    string         `json:"endNode"`
	Properties map[string]any `json:"properties"`
}

type export struct {
	Nodes         []exportNode         `json:"nodes"`
	Relationships []exportRelationship `json:"relationships"`
}

// ReadJSON parses a combined export. Numbers decode as float64; attribute
// comparison treats integral floats as integers.
func ReadJSON(r io.Reader) (*Dataset, error) {
	var ex export
	if err := json.NewDecoder(r).Decode(&ex); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}

	ds := &Dataset{
		Nodes: make([]Node, 0, len(ex.Nodes)),
		Edges: make([]Edge, 0, len(ex.Relationships)),
	}
	for i, n := range ex.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("%w: node %d has no id", ErrSyntax, i)
		}
		node := Node{ID: n.ID, Attrs: n.Properties}
		if len(n.Labels) > 0 {
			node.Label = n.Labels[0]
		}
		ds.Nodes = append(ds.Nodes, node)
	}
	for i, rel := range ex.Relationships {
		if rel.StartNode == "" || rel.EndNode == "" {
			return nil, fmt.Errorf("%w: relationship %d is missing an endpoint", ErrSyntax, i)
		}
		typ := rel.Type
		if typ == "" {
			typ = DefaultRelType
		}
		ds.Edges = append(ds.Edges, Edge{Source: rel.StartNode, Target: rel.EndNode, Type: typ, Attrs: rel.Properties})
	}
	return ds, nil
}

package storage

import (
	"errors"
	"strings"

	"github.com/szrrizvi/arebac/pkg/pattern"
)

// Common errors returned by storage operations.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidData   = errors.New("invalid data")
	ErrStorageClosed = errors.New("storage closed")
)

// NodeID is the external identity of a stored node. It is what the match
// engine binds pattern nodes to when running against the live store.
//
// IDs must be non-empty and must not contain a zero byte, which separates
// key components.
type NodeID string

// Node is a stored target node.
//
// Attribute values keep the JSON types they were stored with: strings stay
// strings, numbers come back as json.Number with their exact text.
// Comparison goes through attrs.Policy.
type Node struct {
	ID    NodeID         `json:"id"`
	Label string         `json:"label,omitempty"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Attr returns an attribute of n. The id attribute falls back to the node
// identity when n carries no attribute of that name.
func (n *Node) Attr(name string) (any, bool) {
	if v, ok := n.Attrs[name]; ok {
		return v, true
	}
	if name == pattern.IDAttr {
		return string(n.ID), true
	}
	return nil, false
}

// Edge is a stored directed, typed relationship. There is at most one edge
// per (Source, Type, Target); storing it again merges attributes.
type Edge struct {
	Source NodeID         `json:"source"`
	Target NodeID         `json:"target"`
	Type   string         `json:"type"`
	Attrs  map[string]any `json:"attrs,omitempty"`
}

// Attr returns an attribute of e.
func (e *Edge) Attr(name string) (any, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// Direction selects which adjacency index a lookup walks.
type Direction uint8

const (
	Outgoing Direction = iota
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "in"
	}
	return "out"
}

func validID(id NodeID) bool {
	return id != "" && strings.IndexByte(string(id), 0) < 0
}

func validType(t string) bool {
	return t != "" && strings.IndexByte(t, 0) < 0
}

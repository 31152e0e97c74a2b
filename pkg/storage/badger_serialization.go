// Package storage - Serialization helpers for BadgerDB.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// serializeNode converts a Node to JSON bytes for BadgerDB storage.
func serializeNode(node *Node) ([]byte, error) {
	return json.Marshal(node)
}

// deserializeNode converts JSON bytes back to a Node.
func deserializeNode(data []byte) (*Node, error) {
	var node Node
	if err := decode(data, &node); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling node: %w", ErrInvalidData, err)
	}
	return &node, nil
}

// serializeEdge converts an Edge to JSON bytes for BadgerDB storage.
func serializeEdge(edge *Edge) ([]byte, error) {
	return json.Marshal(edge)
}

// deserializeEdge converts JSON bytes back to an Edge.
func deserializeEdge(data []byte) (*Edge, error) {
	var edge Edge
	if err := decode(data, &edge); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling edge: %w", ErrInvalidData, err)
	}
	return &edge, nil
}

// decode keeps numbers as json.Number so int64 attributes survive a round
// trip exactly.
func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

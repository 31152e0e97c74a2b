// Package storage is the live-store target graph backend, built on
// BadgerDB.
//
// BadgerEngine keeps nodes, typed edges and two secondary indexes: the
// incoming adjacency of every node and an attribute index used to seed
// candidate sets. Access answers the match engine's neighbourhood queries
// from it, each in its own read transaction, so a long match observes
// concurrent writes lookup by lookup.
package storage

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/szrrizvi/arebac/pkg/attrs"
	"github.com/szrrizvi/arebac/pkg/dataset"
	"github.com/szrrizvi/arebac/pkg/pool"
)

// Key prefixes for BadgerDB storage organization
// Using single-byte prefixes for efficiency
const (
	prefixNode          = byte(0x01) // node:nodeID -> Node
	prefixEdge          = byte(0x02) // edge:src:type:tgt -> Edge, doubles as the outgoing index
	prefixIncomingIndex = byte(0x05) // incoming:tgt:type:src -> []byte{}
	prefixAttrIndex     = byte(0x06) // attr:name:canonical:nodeID -> []byte{}
)

// bulkBatchSize bounds the records written per transaction by BulkLoad.
const bulkBatchSize = 1000

// BadgerEngine provides persistent storage of a target graph using
// BadgerDB.
//
// Key Structure:
//   - Nodes: 0x01 + nodeID -> JSON(Node)
//   - Edges: 0x02 + src + 0x00 + type + 0x00 + tgt -> JSON(Edge)
//   - Incoming Index: 0x05 + tgt + 0x00 + type + 0x00 + src -> empty
//   - Attribute Index: 0x06 + name + 0x00 + canonical value + 0x00 + nodeID -> empty
//
// Attribute index entries are keyed by the canonical form under the
// engine's attrs.Policy. Opening a store with a different policy than it was
// loaded with makes probes on reclassified attributes miss.
//
// Example:
//
//	engine, err := storage.NewBadgerEngine("/path/to/data")
//	if err != nil {
//		klog.Fatal(err)
//	}
//	defer engine.Close()
//
//	err = engine.PutEdge(&storage.Edge{Source: "5", Target: "7", Type: "FRIEND"})
type BadgerEngine struct {
	db     *badger.DB
	policy *attrs.Policy
	mu     sync.RWMutex // Guards closed; held shared by every transaction
	closed bool
}

// BadgerOptions configures the BadgerDB engine.
type BadgerOptions struct {
	// DataDir is the directory for storing data files.
	// Required unless InMemory is set.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode.
	// Useful for testing. Data is not persisted.
	InMemory bool

	// SyncWrites forces fsync after each write.
	// Slower but more durable.
	SyncWrites bool

	// Logger for BadgerDB internal logging.
	// If nil, BadgerDB logging is discarded.
	Logger badger.Logger

	// LowMemory shrinks memtables and caches.
	LowMemory bool

	// Policy classifies attribute names for the attribute index.
	// Defaults to attrs.DefaultPolicy().
	Policy *attrs.Policy
}

// NewBadgerEngine creates a persistent storage engine with default settings.
func NewBadgerEngine(dataDir string) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{
		DataDir: dataDir,
	})
}

// NewBadgerEngineWithOptions creates a BadgerEngine with custom configuration.
//
// Thread Safety:
//
//	Safe for concurrent use from multiple goroutines.
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	if !opts.InMemory && opts.DataDir == "" {
		return nil, fmt.Errorf("%w: data directory required", ErrInvalidData)
	}
	dir := opts.DataDir
	if opts.InMemory {
		dir = ""
	}
	badgerOpts := badger.DefaultOptions(dir)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}

	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}

	// A nil logger silences BadgerDB
	badgerOpts = badgerOpts.WithLogger(opts.Logger)

	if opts.LowMemory {
		badgerOpts = badgerOpts.
			WithMemTableSize(16 << 20).     // 16MB instead of 64MB
			WithValueLogFileSize(64 << 20). // 64MB instead of 1GB
			WithNumMemtables(2).            // 2 instead of 5
			WithNumLevelZeroTables(2).      // 2 instead of 5
			WithNumLevelZeroTablesStall(4). // 4 instead of 15
			WithBlockCacheSize(32 << 20).   // 32MB block cache
			WithIndexCacheSize(16 << 20)    // 16MB index cache
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	policy := opts.Policy
	if policy == nil {
		policy = attrs.DefaultPolicy()
	}
	return &BadgerEngine{db: db, policy: policy}, nil
}

// NewBadgerEngineInMemory creates an in-memory BadgerDB for testing.
//
// Data is not persisted and is lost when the engine is closed.
func NewBadgerEngineInMemory() (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{
		InMemory: true,
	})
}

// Policy returns the attribute policy of the engine.
func (b *BadgerEngine) Policy() *attrs.Policy { return b.policy }

// ============================================================================
// Key encoding helpers
// ============================================================================
//
// Every helper appends to dst, so reads can build keys in pooled buffers.
// Keys handed to txn.Set must not be pooled: the transaction keeps them
// until commit.

func nodeKey(dst []byte, id NodeID) []byte {
	dst = append(dst, prefixNode)
	return append(dst, id...)
}

// edgeKey addresses the edge record. Its (src, type) prefix is the outgoing
// adjacency of src.
func edgeKey(dst []byte, src NodeID, relType string, tgt NodeID) []byte {
	dst = edgePrefix(dst, src, relType)
	return append(dst, tgt...)
}

func edgePrefix(dst []byte, src NodeID, relType string) []byte {
	dst = append(dst, prefixEdge)
	dst = append(dst, src...)
	dst = append(dst, 0x00)
	dst = append(dst, relType...)
	return append(dst, 0x00)
}

func incomingIndexKey(dst []byte, tgt NodeID, relType string, src NodeID) []byte {
	dst = incomingIndexPrefix(dst, tgt, relType)
	return append(dst, src...)
}

func incomingIndexPrefix(dst []byte, tgt NodeID, relType string) []byte {
	dst = append(dst, prefixIncomingIndex)
	dst = append(dst, tgt...)
	dst = append(dst, 0x00)
	dst = append(dst, relType...)
	return append(dst, 0x00)
}

func attrIndexKey(dst []byte, name, canonical string, id NodeID) []byte {
	dst = attrIndexPrefix(dst, name, canonical)
	return append(dst, id...)
}

func attrIndexPrefix(dst []byte, name, canonical string) []byte {
	dst = append(dst, prefixAttrIndex)
	dst = append(dst, name...)
	dst = append(dst, 0x00)
	dst = append(dst, canonical...)
	return append(dst, 0x00)
}

// ============================================================================
// Transactions
// ============================================================================

func (b *BadgerEngine) view(fn func(txn *badger.Txn) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return b.db.View(fn)
}

func (b *BadgerEngine) update(fn func(txn *badger.Txn) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return b.db.Update(fn)
}

// ============================================================================
// Writes
// ============================================================================

// PutNode stores n, merging its attributes into an existing node of the
// same id. A non-empty label replaces the stored one.
func (b *BadgerEngine) PutNode(n *Node) error {
	if n == nil {
		return ErrInvalidData
	}
	if !validID(n.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, n.ID)
	}
	return b.update(func(txn *badger.Txn) error {
		return b.putNodeTxn(txn, n)
	})
}

// PutEdge stores e, creating missing endpoints and merging attributes into
// an existing edge with the same (source, type, target).
func (b *BadgerEngine) PutEdge(e *Edge) error {
	if err := checkEdge(e); err != nil {
		return err
	}
	return b.update(func(txn *badger.Txn) error {
		return b.putEdgeTxn(txn, e)
	})
}

func checkEdge(e *Edge) error {
	if e == nil || !validType(e.Type) {
		return ErrInvalidData
	}
	if !validID(e.Source) || !validID(e.Target) {
		return fmt.Errorf("%w: edge %q -> %q", ErrInvalidID, e.Source, e.Target)
	}
	return nil
}

func (b *BadgerEngine) putNodeTxn(txn *badger.Txn, n *Node) error {
	stored, err := getNodeTxn(txn, n.ID)
	switch {
	case err == ErrNotFound:
		stored = &Node{ID: n.ID}
	case err != nil:
		return err
	}

	if n.Label != "" {
		stored.Label = n.Label
	}
	if len(n.Attrs) > 0 && stored.Attrs == nil {
		stored.Attrs = make(map[string]any, len(n.Attrs))
	}
	for name, v := range n.Attrs {
		if name == "" || strings.IndexByte(name, 0) >= 0 {
			return fmt.Errorf("%w: attribute name %q", ErrInvalidData, name)
		}
		if old, ok := stored.Attrs[name]; ok {
			if err := txn.Delete(attrIndexKey(nil, name, b.policy.Canonical(name, old), n.ID)); err != nil {
				return err
			}
		}
		stored.Attrs[name] = v
		if err := txn.Set(attrIndexKey(nil, name, b.policy.Canonical(name, v), n.ID), []byte{}); err != nil {
			return err
		}
	}

	data, err := serializeNode(stored)
	if err != nil {
		return fmt.Errorf("failed to encode node: %w", err)
	}
	return txn.Set(nodeKey(nil, n.ID), data)
}

func (b *BadgerEngine) putEdgeTxn(txn *badger.Txn, e *Edge) error {
	for _, id := range []NodeID{e.Source, e.Target} {
		if _, err := txn.Get(nodeKey(nil, id)); err == badger.ErrKeyNotFound {
			if err := b.putNodeTxn(txn, &Node{ID: id}); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}

	stored, err := getEdgeTxn(txn, e.Source, e.Type, e.Target)
	switch {
	case err == ErrNotFound:
		stored = &Edge{Source: e.Source, Target: e.Target, Type: e.Type}
	case err != nil:
		return err
	}
	if len(e.Attrs) > 0 {
		if stored.Attrs == nil {
			stored.Attrs = make(map[string]any, len(e.Attrs))
		}
		maps.Copy(stored.Attrs, e.Attrs)
	}

	data, err := serializeEdge(stored)
	if err != nil {
		return fmt.Errorf("failed to encode edge: %w", err)
	}
	if err := txn.Set(edgeKey(nil, e.Source, e.Type, e.Target), data); err != nil {
		return err
	}
	return txn.Set(incomingIndexKey(nil, e.Target, e.Type, e.Source), []byte{})
}

// BulkLoad stores every node and edge of ds. Records are written in
// batches, each in its own transaction; a failure leaves earlier batches
// committed. ctx is checked between batches.
func (b *BadgerEngine) BulkLoad(ctx context.Context, ds *dataset.Dataset) error {
	if ds == nil {
		return ErrInvalidData
	}

	nodes := make([]*Node, 0, len(ds.Nodes))
	for _, n := range ds.Nodes {
		node := &Node{ID: NodeID(n.ID), Label: n.Label, Attrs: n.Attrs}
		if !validID(node.ID) {
			return fmt.Errorf("%w: %q", ErrInvalidID, n.ID)
		}
		nodes = append(nodes, node)
	}
	edges := make([]*Edge, 0, len(ds.Edges))
	for _, e := range ds.Edges {
		edge := &Edge{Source: NodeID(e.Source), Target: NodeID(e.Target), Type: e.Type, Attrs: e.Attrs}
		if err := checkEdge(edge); err != nil {
			return err
		}
		edges = append(edges, edge)
	}

	for start := 0; start < len(nodes); start += bulkBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := nodes[start:min(start+bulkBatchSize, len(nodes))]
		if err := b.update(func(txn *badger.Txn) error {
			for _, n := range batch {
				if err := b.putNodeTxn(txn, n); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return fmt.Errorf("loading nodes: %w", err)
		}
	}
	for start := 0; start < len(edges); start += bulkBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := edges[start:min(start+bulkBatchSize, len(edges))]
		if err := b.update(func(txn *badger.Txn) error {
			for _, e := range batch {
				if err := b.putEdgeTxn(txn, e); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return fmt.Errorf("loading edges: %w", err)
		}
	}
	return nil
}

// ============================================================================
// Reads
// ============================================================================

// GetNode returns the node with the given id.
func (b *BadgerEngine) GetNode(id NodeID) (*Node, error) {
	if !validID(id) {
		return nil, ErrInvalidID
	}
	var node *Node
	err := b.view(func(txn *badger.Txn) error {
		var err error
		node, err = getNodeTxn(txn, id)
		return err
	})
	return node, err
}

// GetEdge returns the edge of relType from src to tgt.
func (b *BadgerEngine) GetEdge(src NodeID, relType string, tgt NodeID) (*Edge, error) {
	if !validID(src) || !validID(tgt) {
		return nil, ErrInvalidID
	}
	var edge *Edge
	err := b.view(func(txn *badger.Txn) error {
		var err error
		edge, err = getEdgeTxn(txn, src, relType, tgt)
		return err
	})
	return edge, err
}

// Neighbours returns the nodes adjacent to id through edges of relType in
// direction dir, in key order.
func (b *BadgerEngine) Neighbours(id NodeID, relType string, dir Direction) ([]NodeID, error) {
	var out []NodeID
	err := b.view(func(txn *badger.Txn) error {
		out = neighboursTxn(txn, id, relType, dir)
		return nil
	})
	return out, err
}

// Probe returns the nodes whose attribute name has the canonical form of
// value, in key order.
func (b *BadgerEngine) Probe(name string, value any) ([]NodeID, error) {
	var out []NodeID
	err := b.view(func(txn *badger.Txn) error {
		out = probeTxn(txn, name, b.policy.Canonical(name, value))
		return nil
	})
	return out, err
}

func getNodeTxn(txn *badger.Txn, id NodeID) (*Node, error) {
	key := nodeKey(pool.GetKeyBuffer(), id)
	defer pool.PutKeyBuffer(key)

	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var node *Node
	err = item.Value(func(val []byte) error {
		node, err = deserializeNode(val)
		return err
	})
	return node, err
}

func getEdgeTxn(txn *badger.Txn, src NodeID, relType string, tgt NodeID) (*Edge, error) {
	key := edgeKey(pool.GetKeyBuffer(), src, relType, tgt)
	defer pool.PutKeyBuffer(key)

	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var edge *Edge
	err = item.Value(func(val []byte) error {
		edge, err = deserializeEdge(val)
		return err
	})
	return edge, err
}

func neighboursTxn(txn *badger.Txn, id NodeID, relType string, dir Direction) []NodeID {
	buf := pool.GetKeyBuffer()
	defer pool.PutKeyBuffer(buf)

	var prefix []byte
	if dir == Incoming {
		prefix = incomingIndexPrefix(buf, id, relType)
	} else {
		prefix = edgePrefix(buf, id, relType)
	}
	return scanSuffixes(txn, prefix)
}

func probeTxn(txn *badger.Txn, name, canonical string) []NodeID {
	buf := pool.GetKeyBuffer()
	defer pool.PutKeyBuffer(buf)
	return scanSuffixes(txn, attrIndexPrefix(buf, name, canonical))
}

// scanSuffixes returns the node ids that follow prefix in every key under
// it. Suffixes that are not valid ids belong to a longer prefix and are
// skipped.
func scanSuffixes(txn *badger.Txn, prefix []byte) []NodeID {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []NodeID
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		id := NodeID(it.Item().Key()[len(prefix):])
		if validID(id) {
			out = append(out, id)
		}
	}
	return out
}

// ============================================================================
// Stats and Lifecycle
// ============================================================================

// NodeCount returns the total number of nodes.
func (b *BadgerEngine) NodeCount() (int64, error) {
	return b.countPrefix(prefixNode)
}

// EdgeCount returns the total number of edges.
func (b *BadgerEngine) EdgeCount() (int64, error) {
	return b.countPrefix(prefixEdge)
}

func (b *BadgerEngine) countPrefix(p byte) (int64, error) {
	var count int64
	err := b.view(func(txn *badger.Txn) error {
		prefix := []byte{p}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close closes the BadgerDB database.
func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	return b.db.Close()
}

// Sync forces a sync of all data to disk.
func (b *BadgerEngine) Sync() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return b.db.Sync()
}

// RunGC runs garbage collection on the BadgerDB value log.
// Should be called periodically for long-running applications.
func (b *BadgerEngine) RunGC() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return b.db.RunValueLogGC(0.5)
}

// Size returns the approximate size of the database in bytes.
func (b *BadgerEngine) Size() (lsm, vlog int64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, 0
	}
	return b.db.Size()
}

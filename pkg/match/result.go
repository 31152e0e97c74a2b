package match

import (
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/szrrizvi/arebac/pkg/pattern"
	"github.com/szrrizvi/arebac/pkg/pool"
)

// Status is the outcome of a check.
type Status int

const (
	// StatusCompleted means the search space was exhausted. Zero rows is a
	// proof that the pattern has no match.
	StatusCompleted Status = iota
	// StatusNotStarted means initialisation failed; nothing is known.
	StatusNotStarted
	// StatusKilled means the search was cancelled; nothing is known.
	StatusKilled
	// StatusFailed means a backend failure or an invariant violation.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusNotStarted:
		return "not_started"
	case StatusKilled:
		return "killed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Stats counts search events.
type Stats struct {
	Assignments int           // values bound during search
	Prunes      int           // candidate sets shrunk by forward checking
	Backjumps   int           // frames abandoned early
	Leaves      int           // complete assignments reached
	Duration    time.Duration // wall time of the check
}

// Result is what a check produced.
type Result[N comparable] struct {
	// Schema is the projection; Rows[i][j] is the identity bound to Schema[j].
	Schema []*pattern.Node
	// Rows are distinct, in discovery order. Nil unless Status is
	// StatusCompleted.
	Rows   [][]N
	Status Status
	Stats  Stats
}

// Found reports whether the check completed with at least one row.
func (r *Result[N]) Found() bool {
	return r != nil && r.Status == StatusCompleted && len(r.Rows) > 0
}

// Binding returns the identity bound to v in row i.
func (r *Result[N]) Binding(i int, v *pattern.Node) (N, bool) {
	var zero N
	if r == nil || i < 0 || i >= len(r.Rows) {
		return zero, false
	}
	for j, s := range r.Schema {
		if s == v {
			return r.Rows[i][j], true
		}
	}
	return zero, false
}

// rowSet collects distinct projected rows.
type rowSet[N comparable] struct {
	seen map[[blake2b.Size256]byte]struct{}
	rows [][]N
}

func newRowSet[N comparable]() *rowSet[N] {
	return &rowSet[N]{seen: make(map[[blake2b.Size256]byte]struct{})}
}

// add keeps row unless an equal row was added before.
func (rs *rowSet[N]) add(row []N) bool {
	key := fingerprint(row)
	if _, dup := rs.seen[key]; dup {
		return false
	}
	rs.seen[key] = struct{}{}
	rs.rows = append(rs.rows, row)
	return true
}

func (rs *rowSet[N]) len() int { return len(rs.rows) }

// fingerprint hashes the Go-syntax form of every identity, NUL separated.
func fingerprint[N comparable](row []N) [blake2b.Size256]byte {
	buf := pool.GetByteBuffer()
	for _, x := range row {
		buf = fmt.Appendf(buf, "%#v", x)
		buf = append(buf, 0)
	}
	sum := blake2b.Sum256(buf)
	pool.PutByteBuffer(buf)
	return sum
}

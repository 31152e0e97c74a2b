package pattern

import "errors"

// Errors returned while building patterns.
var (
	ErrFrozen         = errors.New("pattern: graph is frozen")
	ErrDuplicateNode  = errors.New("pattern: duplicate node name")
	ErrNodeOwned      = errors.New("pattern: node already belongs to a graph")
	ErrForeignNode    = errors.New("pattern: node is not a member of the graph")
	ErrEmptyAttrName  = errors.New("pattern: empty attribute name")
	ErrSelfExclusion  = errors.New("pattern: node excluded from itself")
	ErrDuplicateInRow = errors.New("pattern: node listed twice in result schema")
	ErrNilGraph       = errors.New("pattern: nil graph")
)

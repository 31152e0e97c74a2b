package match

// indexThreshold is the size above which a Set keeps a membership map.
const indexThreshold = 16

// Set is an immutable, insertion-ordered set of target identities.
//
// Operations that would change a set return a new one and leave the
// receiver untouched, so a set can be shared between the search state and
// its undo trail. Operations that change nothing return the receiver itself;
// callers rely on pointer equality to detect that no value was removed.
type Set[N comparable] struct {
	items []N
	index map[N]struct{}
}

// NewSet builds a set from items, dropping duplicates and keeping first
// occurrences in order.
func NewSet[N comparable](items ...N) *Set[N] {
	s := &Set[N]{items: make([]N, 0, len(items))}
	if len(items) > indexThreshold {
		s.index = make(map[N]struct{}, len(items))
		for _, x := range items {
			if _, dup := s.index[x]; dup {
				continue
			}
			s.index[x] = struct{}{}
			s.items = append(s.items, x)
		}
		return s
	}
	for _, x := range items {
		if !s.Contains(x) {
			s.items = append(s.items, x)
		}
	}
	return s
}

// newSetTrusted wraps items that are known to be duplicate free.
func newSetTrusted[N comparable](items []N) *Set[N] {
	s := &Set[N]{items: items}
	if len(items) > indexThreshold {
		s.index = make(map[N]struct{}, len(items))
		for _, x := range items {
			s.index[x] = struct{}{}
		}
	}
	return s
}

// Len returns the number of identities. A nil set is empty.
func (s *Set[N]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Items returns the identities in order. The slice must not be modified.
func (s *Set[N]) Items() []N {
	if s == nil {
		return nil
	}
	return s.items
}

// Contains reports membership.
func (s *Set[N]) Contains(x N) bool {
	if s == nil {
		return false
	}
	if s.index != nil {
		_, ok := s.index[x]
		return ok
	}
	for _, y := range s.items {
		if y == x {
			return true
		}
	}
	return false
}

// Without returns the set minus x.
func (s *Set[N]) Without(x N) *Set[N] {
	if !s.Contains(x) {
		return s
	}
	out := make([]N, 0, len(s.items)-1)
	for _, y := range s.items {
		if y != x {
			out = append(out, y)
		}
	}
	return newSetTrusted(out)
}

// Intersect returns the members of s that are also in o, in s's order.
func (s *Set[N]) Intersect(o *Set[N]) *Set[N] {
	if s == nil {
		return nil
	}
	kept := make([]N, 0, len(s.items))
	for _, x := range s.items {
		if o.Contains(x) {
			kept = append(kept, x)
		}
	}
	if len(kept) == len(s.items) {
		return s
	}
	return newSetTrusted(kept)
}

package match

import "math/bits"

// varSet is a set of pattern node indices.
type varSet []uint64

func newVarSet(n int) varSet { return make(varSet, (n+63)/64) }

func (v varSet) has(i int) bool {
	w := i / 64
	return w < len(v) && v[w]&(1<<(uint(i)%64)) != 0
}

func (v varSet) add(i int) { v[i/64] |= 1 << (uint(i) % 64) }

func (v varSet) del(i int) { v[i/64] &^= 1 << (uint(i) % 64) }

// union adds every member of o. A nil o is empty.
func (v varSet) union(o varSet) {
	for w := range o {
		v[w] |= o[w]
	}
}

func (v varSet) clone() varSet {
	out := make(varSet, len(v))
	copy(out, v)
	return out
}

func (v varSet) empty() bool {
	for _, w := range v {
		if w != 0 {
			return false
		}
	}
	return true
}

func (v varSet) subsetOf(o varSet) bool {
	for w := range v {
		var ow uint64
		if w < len(o) {
			ow = o[w]
		}
		if v[w]&^ow != 0 {
			return false
		}
	}
	return true
}

// members lists the indices in ascending order.
func (v varSet) members() []int {
	var out []int
	for w, word := range v {
		for word != 0 {
			b := bits.TrailingZeros64(word)
			out = append(out, w*64+b)
			word &^= 1 << uint(b)
		}
	}
	return out
}

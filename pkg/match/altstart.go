package match

import (
	"context"
	"fmt"

	"github.com/szrrizvi/arebac/pkg/pattern"
)

// AttrStart seeds candidates from attribute requirements. For every node
// with at least one requirement it probes the backend on the first
// requirement and keeps the probe results that satisfy all of them.
//
// Nodes without requirements are left unseeded; there is no full scan.
type AttrStart[N comparable] struct {
	Prober  Prober[N]
	Checker AttrChecker
}

// StartPop implements Starter.
func (a AttrStart[N]) StartPop(ctx context.Context, nodes []*pattern.Node) (map[*pattern.Node]*Set[N], bool, error) {
	seeds := make(map[*pattern.Node]*Set[N])
	for _, v := range nodes {
		reqs := v.Requirements()
		if len(reqs) == 0 {
			continue
		}

		probed, err := a.Prober.ProbeAttr(ctx, reqs[0].Name, reqs[0].Value)
		if err != nil {
			return nil, false, fmt.Errorf("probing %s.%s: %w", v.Name(), reqs[0].Name, err)
		}

		kept := make([]N, 0, len(probed))
		for _, n := range probed {
			at, ok, err := a.Prober.NodeAttributes(ctx, n)
			if err != nil {
				return nil, false, fmt.Errorf("reading attributes for %s: %w", v.Name(), err)
			}
			if ok && a.Checker.CheckAttrs(v, at) {
				kept = append(kept, n)
			}
		}
		if len(kept) == 0 {
			return nil, false, nil
		}
		seeds[v] = NewSet(kept...)
	}
	return seeds, true, nil
}

// noStart is used when the backend cannot probe by attribute.
type noStart[N comparable] struct{}

func (noStart[N]) StartPop(context.Context, []*pattern.Node) (map[*pattern.Node]*Set[N], bool, error) {
	return nil, true, nil
}

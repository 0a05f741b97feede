package plan

import (
	"context"
	"maps"
)

type inMemSource struct {
	plans map[string]Plan
}

// NewInMemSource returns a Source backed by the given plans. Panics if no
// plans are provided to ensure the catalog always has at least one valid
// plan. Plans are deep-copied so later modifications by the caller cannot
// affect the source.
func NewInMemSource(plans ...Plan) Source {
	if len(plans) < 1 {
		panic("plan: at least one plan is required")
	}

	plansCopy := make(map[string]Plan, len(plans))
	for _, p := range plans {
		plansCopy[p.ID] = clonePlan(p)
	}

	return &inMemSource{plans: plansCopy}
}

// Load returns a copy of all plans from memory.
func (s *inMemSource) Load(ctx context.Context) (map[string]Plan, error) {
	out := make(map[string]Plan, len(s.plans))
	for id, p := range s.plans {
		out[id] = clonePlan(p)
	}
	return out, nil
}

func clonePlan(p Plan) Plan {
	p.PriceIDs = maps.Clone(p.PriceIDs)
	p.Prices = maps.Clone(p.Prices)
	return p
}

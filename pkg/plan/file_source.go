package plan

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type fileSource struct {
	path string
}

// NewFileSource returns a Source that reads plans from a YAML file on
// each Load. The file holds a top-level "plans" list:
//
//	plans:
//	  - id: pro
//	    name: Pro
//	    tier: 1
//	    prices:
//	      month: price_pro_month
//	      year: price_pro_year
//	    grants:
//	      on_subscribe: 200
//	      monthly: 500
//	      yearly: 6000
func NewFileSource(path string) Source {
	return &fileSource{path: path}
}

func (s *fileSource) Load(ctx context.Context) (map[string]Plan, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	plans := make(map[string]Plan, len(doc.Plans))
	for _, p := range doc.Plans {
		if p.ID == "" {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan without ID in %s", s.path))
		}
		if _, exists := plans[p.ID]; exists {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("duplicate plan ID %s in %s", p.ID, s.path))
		}
		plans[p.ID] = p
	}
	return plans, nil
}

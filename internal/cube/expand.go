package cube

import (
	"github.com/arx-os/datakernel-cube/internal/schema"
	"github.com/arx-os/datakernel-cube/pkg/cubeerr"
)

// expandAttributes walks each requested attribute's drill-down chain (for
// a dimension attribute) or records it for resolver lookup (spec.md §4.6),
// returning the full required-dimension set and the subset of attributes
// that need the AttributeResolver.
func (p *Planner) expandAttributes(attrs []string) (map[string]struct{}, []string, error) {
	required := map[string]struct{}{}
	var resolved []string
	for _, attr := range attrs {
		if _, ok := p.Cube.Dimensions[attr]; ok {
			for _, d := range p.Cube.DrillPath(attr) {
				required[d] = struct{}{}
			}
			continue
		}
		if p.Resolver != nil {
			capability := p.Resolver.Capability()
			if _, ok := capability.Attributes[attr]; ok {
				resolved = append(resolved, attr)
				for _, d := range capability.KeyDims {
					required[d] = struct{}{}
				}
				continue
			}
		}
		return nil, nil, cubeerr.New(cubeerr.KindUnknownAttribute, "unknown attribute: "+attr)
	}
	return required, resolved, nil
}

// compatibleMeasures splits the requested measures into stored-compatible,
// computed-compatible, and dropped (unknown or not coverable by any
// aggregation whose keys are a superset of D), per spec.md §4.6's
// compatible-measure derivation rule.
func (p *Planner) compatibleMeasures(D []string, requested []string) (stored []string, computed []string, dropped []string) {
	for _, name := range requested {
		if _, ok := p.Cube.Measures[name]; ok {
			if p.measureCompatible(D, name) {
				stored = append(stored, name)
			} else {
				dropped = append(dropped, name)
			}
			continue
		}
		if cm, ok := p.Cube.ComputedMeasures[name]; ok {
			allOK := true
			for _, dep := range cm.Deps {
				if !p.measureCompatible(D, dep) {
					allOK = false
					break
				}
			}
			if allOK {
				computed = append(computed, name)
			} else {
				dropped = append(dropped, name)
			}
			continue
		}
		dropped = append(dropped, name)
	}
	return stored, computed, dropped
}

func (p *Planner) measureCompatible(D []string, measure string) bool {
	for _, id := range p.Cube.AggregationOrder {
		cfg := p.Cube.Aggregations[id]
		if !isSubset(D, cfg.Keys) {
			continue
		}
		for _, ma := range cfg.Measures {
			if ma.Measure == measure {
				return true
			}
		}
	}
	return false
}

func (p *Planner) aggregatorFor(measure string) *schema.Aggregator {
	for _, id := range p.Cube.AggregationOrder {
		cfg := p.Cube.Aggregations[id]
		for _, ma := range cfg.Measures {
			if ma.Measure == measure {
				return ma.Aggregator
			}
		}
	}
	return nil
}

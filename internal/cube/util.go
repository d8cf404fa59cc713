package cube

import (
	"sort"

	"github.com/arx-os/datakernel-cube/internal/predicate"
	"github.com/arx-os/datakernel-cube/internal/reducer"
	"github.com/arx-os/datakernel-cube/internal/schema"
)

func whereDimensions(p *predicate.P) map[string]struct{} {
	if p == nil {
		return nil
	}
	return predicate.DimensionsOf(p)
}

func isSubset(small, big []string) bool {
	for _, s := range small {
		found := false
		for _, b := range big {
			if s == b {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func cloneSet(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func dimTupleCompare(cube *schema.Cube, dims []string) reducer.KeyCompare {
	return func(a, b []any) int {
		for i, d := range dims {
			if c := cube.Compare(d, a[i], b[i]); c != 0 {
				return c
			}
		}
		return 0
	}
}

func indexOfString(list []string, s string) int {
	for i, x := range list {
		if x == s {
			return i
		}
	}
	return -1
}

func toFloat64(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	default:
		return 0
	}
}

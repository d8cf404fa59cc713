// Package predicate implements the symbolic AggregationPredicate algebra of
// spec.md §4.2 (component C2): AlwaysTrue/AlwaysFalse/Eq/NotEq/Between/In/
// Not/And/Or, a canonicalizing Simplify, a fully-specified-dimension
// extractor, and a recursive matcher.
//
// The algebra is generic over value types via the Comparer interface rather
// than hardcoding a FieldType dependency, so this package has no import on
// internal/schema -- schema.Cube implements Comparer instead, mirroring
// the "accept interfaces, return structs" idiom the teacher repo follows
// throughout internal/cache (e.g. AdvancedCache accepting a CacheBackend
// interface rather than depending on a concrete store).
package predicate

// Kind distinguishes the predicate's shape.
type Kind int

const (
	KindAlwaysTrue Kind = iota
	KindAlwaysFalse
	KindEq
	KindNotEq
	KindBetween
	KindIn
	KindNot
	KindAnd
	KindOr
)

// Record is the minimal surface Matches needs from an ingest/query record.
type Record interface {
	Get(dim string) (any, bool)
}

// Comparer compares two values belonging to the same dimension. Schema
// field types supply this via their registered comparator.
type Comparer interface {
	Compare(dim string, a, b any) int
}

// P is a single predicate node. Only the fields relevant to Kind are
// populated; this mirrors the small tagged-union shape the original source
// models, generalized to a single Go struct instead of a class hierarchy so
// Simplify can pattern-match on Kind directly.
type P struct {
	Kind Kind

	Dim   string // Eq, NotEq, Between, In
	Value any    // Eq, NotEq
	Lo    any    // Between
	Hi    any    // Between
	Set   []any  // In

	Sub []*P // Not (len 1), And, Or
}

// AlwaysTrue is the identity predicate.
var AlwaysTrue = &P{Kind: KindAlwaysTrue}

// AlwaysFalse is the absorbing predicate.
var AlwaysFalse = &P{Kind: KindAlwaysFalse}

// Eq builds an equality predicate.
func Eq(dim string, v any) *P { return &P{Kind: KindEq, Dim: dim, Value: v} }

// NotEq builds an inequality predicate.
func NotEq(dim string, v any) *P { return &P{Kind: KindNotEq, Dim: dim, Value: v} }

// Between builds an inclusive range predicate.
func Between(dim string, lo, hi any) *P { return &P{Kind: KindBetween, Dim: dim, Lo: lo, Hi: hi} }

// In builds a set-membership predicate.
func In(dim string, values ...any) *P { return &P{Kind: KindIn, Dim: dim, Set: values} }

// Not negates a predicate.
func Not(p *P) *P { return &P{Kind: KindNot, Sub: []*P{p}} }

// And conjoins predicates.
func And(ps ...*P) *P { return &P{Kind: KindAnd, Sub: ps} }

// Or disjoins predicates.
func Or(ps ...*P) *P { return &P{Kind: KindOr, Sub: ps} }

// DimensionsOf returns the set of dimensions p mentions, including nested
// sub-predicates.
func DimensionsOf(p *P) map[string]struct{} {
	out := map[string]struct{}{}
	collectDimensions(p, out)
	return out
}

func collectDimensions(p *P, out map[string]struct{}) {
	if p == nil {
		return
	}
	switch p.Kind {
	case KindEq, KindNotEq, KindBetween, KindIn:
		out[p.Dim] = struct{}{}
	case KindNot, KindAnd, KindOr:
		for _, s := range p.Sub {
			collectDimensions(s, out)
		}
	}
}

// Matches evaluates p against r using cmp for value comparisons.
func Matches(p *P, r Record, cmp Comparer) bool {
	switch p.Kind {
	case KindAlwaysTrue:
		return true
	case KindAlwaysFalse:
		return false
	case KindEq:
		v, ok := r.Get(p.Dim)
		return ok && cmp.Compare(p.Dim, v, p.Value) == 0
	case KindNotEq:
		v, ok := r.Get(p.Dim)
		return ok && cmp.Compare(p.Dim, v, p.Value) != 0
	case KindBetween:
		v, ok := r.Get(p.Dim)
		if !ok {
			return false
		}
		return cmp.Compare(p.Dim, v, p.Lo) >= 0 && cmp.Compare(p.Dim, v, p.Hi) <= 0
	case KindIn:
		v, ok := r.Get(p.Dim)
		if !ok {
			return false
		}
		for _, candidate := range p.Set {
			if cmp.Compare(p.Dim, v, candidate) == 0 {
				return true
			}
		}
		return false
	case KindNot:
		return !Matches(p.Sub[0], r, cmp)
	case KindAnd:
		for _, s := range p.Sub {
			if !Matches(s, r, cmp) {
				return false
			}
		}
		return true
	case KindOr:
		for _, s := range p.Sub {
			if Matches(s, r, cmp) {
				return true
			}
		}
		return false
	default:
		panic("predicate: unknown kind")
	}
}

// FullySpecified returns the map {dim: value} for every dimension that
// Simplify(p) forces to exactly one value (spec.md §4.2). Used by the
// planner to prune drill-downs and by the aggregation engine to derive a
// key range directly.
func FullySpecified(p *P, cmp Comparer) map[string]any {
	out := map[string]any{}
	simplified := Simplify(p, cmp)
	collectFullySpecified(simplified, cmp, out)
	return out
}

func collectFullySpecified(p *P, cmp Comparer, out map[string]any) {
	switch p.Kind {
	case KindEq:
		out[p.Dim] = p.Value
	case KindBetween:
		if cmp.Compare(p.Dim, p.Lo, p.Hi) == 0 {
			out[p.Dim] = p.Lo
		}
	case KindAnd:
		for _, s := range p.Sub {
			collectFullySpecified(s, cmp, out)
		}
	}
}

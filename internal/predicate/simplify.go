package predicate

// Simplify canonicalizes p per spec.md §4.2:
//   - nested And/Or are flattened into their parent
//   - AlwaysFalse absorbs an And, AlwaysTrue absorbs an Or
//   - AlwaysTrue is dropped from an And, AlwaysFalse from an Or
//   - an empty And collapses to AlwaysTrue, an empty Or to AlwaysFalse
//   - a singleton And/Or collapses to its one child
//   - multiple Eq conjuncts on the same dimension merge (conflicting values
//     yield AlwaysFalse)
//   - multiple Between conjuncts on the same dimension intersect (an empty
//     resulting range yields AlwaysFalse)
//   - an Eq conjunct outside a Between conjunct's range on the same
//     dimension yields AlwaysFalse; inside it, the Eq subsumes the Between
//   - Not(Not(x)) collapses to x; Not(AlwaysTrue/AlwaysFalse) collapses
//
// Simplify is idempotent: Simplify(Simplify(p, cmp), cmp) is structurally
// equal to Simplify(p, cmp), since every rule above leaves its output in a
// form none of the other rules can further rewrite.
func Simplify(p *P, cmp Comparer) *P {
	switch p.Kind {
	case KindAlwaysTrue, KindAlwaysFalse:
		return p
	case KindEq, KindNotEq:
		return p
	case KindBetween:
		if cmp.Compare(p.Dim, p.Lo, p.Hi) > 0 {
			return AlwaysFalse
		}
		return p
	case KindIn:
		return simplifyIn(p, cmp)
	case KindNot:
		return simplifyNot(p, cmp)
	case KindAnd:
		return simplifyAnd(p, cmp)
	case KindOr:
		return simplifyOr(p, cmp)
	default:
		panic("predicate: unknown kind")
	}
}

func simplifyIn(p *P, cmp Comparer) *P {
	var uniq []any
	for _, v := range p.Set {
		dup := false
		for _, u := range uniq {
			if cmp.Compare(p.Dim, v, u) == 0 {
				dup = true
				break
			}
		}
		if !dup {
			uniq = append(uniq, v)
		}
	}
	switch len(uniq) {
	case 0:
		return AlwaysFalse
	case 1:
		return Eq(p.Dim, uniq[0])
	default:
		return &P{Kind: KindIn, Dim: p.Dim, Set: uniq}
	}
}

func simplifyNot(p *P, cmp Comparer) *P {
	child := Simplify(p.Sub[0], cmp)
	switch child.Kind {
	case KindAlwaysTrue:
		return AlwaysFalse
	case KindAlwaysFalse:
		return AlwaysTrue
	case KindNot:
		return child.Sub[0]
	default:
		return &P{Kind: KindNot, Sub: []*P{child}}
	}
}

func flatten(children []*P, kind Kind) []*P {
	var out []*P
	for _, c := range children {
		if c.Kind == kind {
			out = append(out, flatten(c.Sub, kind)...)
		} else {
			out = append(out, c)
		}
	}
	return out
}

type dimBounds struct {
	hasEq      bool
	eqVal      any
	hasBetween bool
	lo, hi     any
}

func simplifyAnd(p *P, cmp Comparer) *P {
	children := make([]*P, len(p.Sub))
	for i, s := range p.Sub {
		children[i] = Simplify(s, cmp)
	}
	children = flatten(children, KindAnd)

	var kept []*P
	for _, c := range children {
		switch c.Kind {
		case KindAlwaysFalse:
			return AlwaysFalse
		case KindAlwaysTrue:
			// dropped
		default:
			kept = append(kept, c)
		}
	}

	bounds := map[string]*dimBounds{}
	var dimOrder []string
	var others []*P

	for _, c := range kept {
		if c.Kind != KindEq && c.Kind != KindBetween {
			if !containsEqual(others, c, cmp) {
				others = append(others, c)
			}
			continue
		}
		b, seen := bounds[c.Dim]
		if !seen {
			b = &dimBounds{}
			bounds[c.Dim] = b
			dimOrder = append(dimOrder, c.Dim)
		}
		if c.Kind == KindEq {
			if b.hasEq && cmp.Compare(c.Dim, b.eqVal, c.Value) != 0 {
				return AlwaysFalse
			}
			b.hasEq = true
			b.eqVal = c.Value
		} else {
			if b.hasBetween {
				if cmp.Compare(c.Dim, c.Lo, b.lo) > 0 {
					b.lo = c.Lo
				}
				if cmp.Compare(c.Dim, c.Hi, b.hi) < 0 {
					b.hi = c.Hi
				}
			} else {
				b.hasBetween = true
				b.lo, b.hi = c.Lo, c.Hi
			}
			if cmp.Compare(c.Dim, b.lo, b.hi) > 0 {
				return AlwaysFalse
			}
		}
		if b.hasEq && b.hasBetween {
			if cmp.Compare(c.Dim, b.eqVal, b.lo) < 0 || cmp.Compare(c.Dim, b.eqVal, b.hi) > 0 {
				return AlwaysFalse
			}
		}
	}

	var merged []*P
	for _, dim := range dimOrder {
		b := bounds[dim]
		if b.hasEq {
			merged = append(merged, Eq(dim, b.eqVal))
		} else if b.hasBetween {
			merged = append(merged, Between(dim, b.lo, b.hi))
		}
	}

	final := append(merged, others...)
	switch len(final) {
	case 0:
		return AlwaysTrue
	case 1:
		return final[0]
	default:
		return &P{Kind: KindAnd, Sub: final}
	}
}

func simplifyOr(p *P, cmp Comparer) *P {
	children := make([]*P, len(p.Sub))
	for i, s := range p.Sub {
		children[i] = Simplify(s, cmp)
	}
	children = flatten(children, KindOr)

	var kept []*P
	for _, c := range children {
		switch c.Kind {
		case KindAlwaysTrue:
			return AlwaysTrue
		case KindAlwaysFalse:
			// dropped
		default:
			if !containsEqual(kept, c, cmp) {
				kept = append(kept, c)
			}
		}
	}

	switch len(kept) {
	case 0:
		return AlwaysFalse
	case 1:
		return kept[0]
	default:
		return &P{Kind: KindOr, Sub: kept}
	}
}

func containsEqual(list []*P, p *P, cmp Comparer) bool {
	for _, c := range list {
		if equalP(c, p, cmp) {
			return true
		}
	}
	return false
}

func equalP(a, b *P, cmp Comparer) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindAlwaysTrue, KindAlwaysFalse:
		return true
	case KindEq, KindNotEq:
		return a.Dim == b.Dim && cmp.Compare(a.Dim, a.Value, b.Value) == 0
	case KindBetween:
		return a.Dim == b.Dim && cmp.Compare(a.Dim, a.Lo, b.Lo) == 0 && cmp.Compare(a.Dim, a.Hi, b.Hi) == 0
	case KindIn:
		if a.Dim != b.Dim || len(a.Set) != len(b.Set) {
			return false
		}
		for _, v := range a.Set {
			found := false
			for _, w := range b.Set {
				if cmp.Compare(a.Dim, v, w) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case KindNot:
		return equalP(a.Sub[0], b.Sub[0], cmp)
	case KindAnd, KindOr:
		if len(a.Sub) != len(b.Sub) {
			return false
		}
		for i := range a.Sub {
			if !equalP(a.Sub[i], b.Sub[i], cmp) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

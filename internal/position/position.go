// Package position computes fractional sort keys for board columns. Moving
// or inserting one card costs exactly one write (its own position field) and
// never renumbers siblings, so concurrent users do not contend on unrelated
// rows.
package position

// Gap is the spacing constant used when inserting at a list end or into an
// empty column.
const Gap = 1000

// Epsilon is the gap width below which repeated same-slot insertion has
// degraded the keys enough to be worth logging. Board keys are never
// rebalanced automatically; only the queue path renumbers.
const Epsilon = 1e-6

// Between returns a sort key strictly between prev and next. A nil neighbor
// means the slot is at that end of the list.
func Between(prev, next *float64) float64 {
	switch {
	case prev != nil && next != nil:
		return (*prev + *next) / 2
	case prev != nil:
		return *prev + Gap
	case next != nil:
		return *next - Gap
	default:
		return Gap
	}
}

// Crowded reports whether the gap between two neighbors has shrunk below
// Epsilon. Callers only log it; allocation still proceeds.
func Crowded(prev, next *float64) bool {
	if prev == nil || next == nil {
		return false
	}
	return *next-*prev < Epsilon
}

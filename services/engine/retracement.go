package engine

import (
	"fmt"
	"math"
)

// ActionKind tags a RetractionAction.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionExtraDistance
	ActionSkipLevels
	ActionCancelSession
)

func (k ActionKind) String() string {
	switch k {
	case ActionExtraDistance:
		return "extra"
	case ActionSkipLevels:
		return "skip"
	case ActionCancelSession:
		return "cancel"
	default:
		return "none"
	}
}

// RetractionAction is one of ExtraDistance, SkipLevels or CancelSession.
type RetractionAction struct {
	Kind  ActionKind
	Extra float64
	Skip  int
}

// ExtraDistance raises the target to base + d.
func ExtraDistance(d float64) RetractionAction {
	return RetractionAction{Kind: ActionExtraDistance, Extra: d}
}

// SkipLevels moves the target n rungs up the ladder.
func SkipLevels(n int) RetractionAction { return RetractionAction{Kind: ActionSkipLevels, Skip: n} }

// CancelSession blocks the session for the rest of its day.
func CancelSession() RetractionAction { return RetractionAction{Kind: ActionCancelSession} }

// RetracementRule matches pull-backs in [Min, Max). Max of +Inf leaves it open.
type RetracementRule struct {
	Min    float64
	Max    float64
	Action RetractionAction
}

func (r RetracementRule) matches(v float64) bool { return v >= r.Min && v < r.Max }

// RetracementTable is ordered; the first matching rule wins.
type RetracementTable []RetracementRule

// Lookup returns the first rule matching r; ok is false below the smallest range.
func (t RetracementTable) Lookup(r float64) (RetractionAction, bool) {
	for _, rule := range t {
		if rule.matches(r) {
			return rule.Action, true
		}
	}
	return RetractionAction{}, false
}

func (t RetracementTable) validate() error {
	for i, rule := range t {
		if !(rule.Max > rule.Min) {
			return ValidationError{Msg: fmt.Sprintf("retracement rule %d: empty range [%g, %g)", i, rule.Min, rule.Max)}
		}
		if i > 0 && rule.Min < t[i-1].Max {
			return ValidationError{Msg: fmt.Sprintf("retracement rule %d overlaps rule %d", i, i-1)}
		}
		if rule.Action.Kind == ActionSkipLevels && rule.Action.Skip < 0 {
			return ValidationError{Msg: fmt.Sprintf("retracement rule %d: negative skip", i)}
		}
	}
	return nil
}

// Pullback measures the retracement from the session extreme on the side of price.
func Pullback(open, high, low, price float64) float64 {
	if price >= open {
		return high - price
	}
	return price - low
}

// Ladder is the ascending list of target distances.
type Ladder []float64

// Top returns the highest rung.
func (l Ladder) Top() float64 { return l[len(l)-1] }

// Index returns the rung equal to d.
func (l Ladder) Index(d float64) (int, bool) {
	for i, v := range l {
		if math.Abs(v-d) < 1e-9 {
			return i, true
		}
	}
	return 0, false
}

// LevelFor returns the lowest rung at or above d, clamped to the top.
func (l Ladder) LevelFor(d float64) int {
	for i, v := range l {
		if d <= v+1e-9 {
			return i
		}
	}
	return len(l) - 1
}

// IsLowestBand reports whether d sits below the second rung.
func (l Ladder) IsLowestBand(d float64) bool {
	return len(l) < 2 || d < l[1]
}

// ResolveTarget applies action to the base rung. ok is false when base is not a
// rung or the result overshoots the ladder top by more than tolerance.
func ResolveTarget(ladder Ladder, base float64, action RetractionAction, tolerance float64) (float64, bool) {
	if len(ladder) == 0 {
		return 0, false
	}
	baseIdx, found := ladder.Index(base)
	if !found {
		return 0, false
	}
	idx := baseIdx
	extra := 0.0
	switch action.Kind {
	case ActionSkipLevels:
		idx += action.Skip
	case ActionExtraDistance:
		extra = action.Extra
	case ActionCancelSession:
		return 0, false
	}
	if idx > len(ladder)-1 {
		idx = len(ladder) - 1
	}
	target := math.Max(ladder[idx], ladder[baseIdx]+extra)
	if target > ladder.Top()+tolerance {
		return 0, false
	}
	return target, true
}

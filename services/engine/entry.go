package engine

// Entry evaluation

import (
	"go.uber.org/zap"
)

func (e *Engine) evaluateEntries(s PriceSample) {
	for _, ss := range e.sessions {
		if !ss.active || !ss.allowed || ss.trade != nil {
			continue
		}
		for _, z := range ss.spec.ZonesAt(s.Time) {
			opened, stop := e.tryZone(ss, z, s)
			if opened || stop {
				break
			}
		}
	}
}

// tryZone returns stop=true when the session was cancelled.
func (e *Engine) tryZone(ss *sessionState, z Zone, s PriceSample) (opened, stop bool) {
	p := e.params
	distance := abs(s.Price - ss.open)
	if !e.inEntryBand(distance, z.BaseDistance) {
		return false, false
	}
	r := Pullback(ss.open, ss.high, ss.low, s.Price)
	action, _ := p.Retracement.Lookup(r)
	if action.Kind == ActionCancelSession {
		if ss.trade == nil {
			e.block(ss, s.Time, s.Price, "retracement")
		}
		return false, true
	}
	target, ok := ResolveTarget(p.Ladder, z.BaseDistance, action, p.Tolerance)
	if !ok || distance < target || distance > target+p.Tolerance {
		return false, false
	}
	level := p.Ladder.LevelFor(target)
	if e.variant.TrackUsedLevels && ss.used[level] {
		return false, false
	}
	dir := Short
	if s.Price < ss.open {
		dir = Long
	}
	forced := z.ForcedClose.On(s.Time)
	if zi, ok := ss.schedule.Zone(ss.spec.ID, z.ID); ok {
		forced = zi.ForcedClose
	}
	ss.trade = &Trade{
		Direction:    dir,
		Entry:        s.Price,
		Session:      ss.spec.ID,
		Zone:         z.ID,
		ForcedClose:  forced,
		OpenedAt:     s.Time,
		Target:       target,
		OpenDistance: distance,
		NoCloseRules: z.NoCloseRules,
		ExtremeAt:    s.Time,
	}
	if e.variant.TrackUsedLevels {
		ss.used[level] = true
	}
	e.opened++
	e.emit(Event{Ts: s.Time, Type: EventTradeOpen, Session: ss.spec.ID, Price: s.Price})
	e.log.Info("open",
		zap.Stringer("session", ss.spec.ID),
		zap.Int("zone", z.ID),
		zap.Stringer("dir", dir),
		zap.Float64("entry", s.Price),
		zap.Float64("target", target),
		zap.Float64("distance", distance),
		zap.Float64("pullback", r),
		zap.Time("forced_close", ss.trade.ForcedClose),
	)
	return true, false
}

// inEntryBand admits [base, base+tol], or with escalation any distance within
// tolerance of a rung above base.
func (e *Engine) inEntryBand(distance, base float64) bool {
	tol := e.params.Tolerance
	if distance < base {
		return false
	}
	if distance <= base+tol {
		return true
	}
	if !e.variant.Escalation {
		return false
	}
	for _, rung := range e.params.Ladder {
		if rung > base && abs(distance-rung) <= tol {
			return true
		}
	}
	return false
}

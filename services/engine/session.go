package engine

// Session tracking and volatility gates

import (
	"time"

	"go.uber.org/zap"
)

func (e *Engine) trackSessions(s PriceSample) {
	for _, ss := range e.sessions {
		inside := ss.spec.Window.Contains(s.Time)
		switch {
		case !ss.allowed:
			if ss.active {
				e.endSession(ss, s.Time)
			}
		case inside && !ss.active:
			ss.active = true
			ss.open, ss.high, ss.low = s.Price, s.Price, s.Price
			e.emit(Event{Ts: s.Time, Type: EventSessionStart, Session: ss.spec.ID, Price: s.Price})
			e.log.Debug("session start", zap.Stringer("session", ss.spec.ID), zap.Time("ts", s.Time), zap.Float64("open", s.Price))
		case inside:
			if s.Price > ss.high {
				ss.high = s.Price
			}
			if s.Price < ss.low {
				ss.low = s.Price
			}
		case ss.active:
			e.endSession(ss, s.Time)
		}
	}
}

func (e *Engine) endSession(ss *sessionState, now time.Time) {
	e.emit(Event{Ts: now, Type: EventSessionEnd, Session: ss.spec.ID})
	e.log.Debug("session end", zap.Stringer("session", ss.spec.ID), zap.Time("ts", now),
		zap.Float64("open", ss.open), zap.Float64("high", ss.high), zap.Float64("low", ss.low))
	ss.active = false
	ss.open, ss.high, ss.low = 0, 0, 0
}

// block clears allowed for the rest of the day.
func (e *Engine) block(ss *sessionState, now time.Time, price float64, why string) {
	if !ss.allowed {
		return
	}
	ss.allowed = false
	e.emit(Event{Ts: now, Type: EventSessionBlocked, Session: ss.spec.ID, Price: price, Details: map[string]string{"reason": why}})
	e.log.Info("session blocked", zap.Stringer("session", ss.spec.ID), zap.Time("ts", now), zap.String("reason", why))
}

func (e *Engine) applyGates(s PriceSample) {
	for i, g := range e.params.Gates {
		st := &e.gates[i]
		if g.Check.Matches(s.Time) && st.set {
			if abs(s.Price-st.ref) >= g.Threshold {
				if ss := e.session(g.Session); ss != nil {
					e.block(ss, s.Time, s.Price, "volatility")
				}
			}
			st.set = false
		}
		if g.Reference.Matches(s.Time) {
			st.ref, st.set = s.Price, true
			e.emit(Event{Ts: s.Time, Type: EventGateReference, Session: g.Session, Price: s.Price})
		}
	}
}

package engine

// Trade lifecycle: exits in priority order

import (
	"time"

	"go.uber.org/zap"
)

func (e *Engine) manageTrades(s PriceSample) {
	for _, ss := range e.sessions {
		t := ss.trade
		if t == nil {
			continue
		}
		if reason, price, ok := e.exitFor(ss, t, s); ok {
			e.closeTrade(ss, price, s.Time, reason)
		}
	}
}

func (e *Engine) exitFor(ss *sessionState, t *Trade, s PriceSample) (ExitReason, float64, bool) {
	p := e.params
	now, px := s.Time, s.Price
	t.observe(px, now)

	switch {
	case !now.Before(t.ForcedClose):
		return ExitForcedClose, px, true
	case abs(px-t.Entry) >= p.StopDistance:
		return ExitGSL, px, true
	case ss.active && abs(px-ss.open) >= p.SweepDistance:
		return ExitSweep, px, true
	case !p.Calendar.InAnySession(now):
		return ExitOutsideSessions, px, true
	}

	if t.NoCloseRules && !e.variant.WaiveNoCloseRules {
		return "", 0, false
	}

	sinceExtreme := now.Sub(t.ExtremeAt)
	limit := p.TimeCloseHighBand
	if p.Ladder.IsLowestBand(t.Target) {
		limit = p.TimeCloseLowBand
		if e.variant.PartialLock && partialLockDue(p.PartialLock, t, sinceExtreme) {
			return ExitPartialClose, t.lockPrice(p.PartialLock.Lock), true
		}
		if e.variant.breakEvenApplies(t) && t.MaxAdverse >= p.BreakEvenAdverse && abs(px-t.Entry) < p.BreakEvenBand {
			return ExitBreakEven, px, true
		}
	}
	if sinceExtreme >= limit {
		return ExitTimeClose, px, true
	}
	return "", 0, false
}

func partialLockDue(pl PartialLock, t *Trade, since time.Duration) bool {
	return t.MaxFavorable >= pl.MinPeak && t.MaxFavorable <= pl.MaxPeak && since >= pl.After
}

func (t *Trade) lockPrice(lock float64) float64 {
	if t.Direction == Long {
		return t.Entry + lock
	}
	return t.Entry - lock
}

func (e *Engine) closeTrade(ss *sessionState, price float64, now time.Time, reason ExitReason) {
	rec := ss.trade.close(price, now, reason, e.variant.Name)
	ss.trade = nil
	e.ledger.Append(rec)
	e.emit(Event{Ts: now, Type: EventTradeClose, Session: rec.Session, Price: price, Details: map[string]string{"reason": string(reason)}})
	e.log.Info("close",
		zap.Stringer("session", rec.Session),
		zap.Int("zone", rec.Zone),
		zap.Stringer("dir", rec.Direction),
		zap.Float64("entry", rec.EntryPrice),
		zap.Float64("exit", price),
		zap.String("reason", string(reason)),
		zap.Float64("pnl", rec.PnL),
	)
}

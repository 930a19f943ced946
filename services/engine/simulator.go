package engine

// Per-run simulator: one instance owns all mutable state of one variant run.

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type sessionState struct {
	spec    SessionSpec
	active  bool
	allowed bool
	open    float64
	high    float64
	low     float64
	used    map[int]bool
	trade   *Trade
	// day is the session-day the allowed flag and used levels belong to.
	day      time.Time
	schedule DaySchedule
}

type gateState struct {
	ref float64
	set bool
}

// Engine runs one variant over a sample stream. It owns every piece of mutable
// state of the run and is not safe for concurrent use.
type Engine struct {
	params   Params
	variant  Variant
	log      *zap.Logger
	events   *EventLog
	ledger   Ledger
	sessions []*sessionState
	gates    []gateState
	last     PriceSample
	seen     bool
	opened   int
	finished bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithEventLog records session, gate and trade events into l.
func WithEventLog(l *EventLog) Option { return func(e *Engine) { e.events = l } }

// New validates p and returns an engine for variant v.
func New(p Params, v Variant, opts ...Option) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("engine params: %w", err)
	}
	e := &Engine{
		params:  p,
		variant: v,
		log:     zap.NewNop(),
		gates:   make([]gateState, len(p.Gates)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With(zap.String("variant", v.Name))
	for _, spec := range p.Calendar.Sessions {
		e.sessions = append(e.sessions, &sessionState{spec: spec, allowed: true, used: map[int]bool{}})
	}
	return e, nil
}

// Ledger returns the closed trades recorded so far.
func (e *Engine) Ledger() *Ledger { return &e.ledger }

// Opened returns the number of trades opened so far.
func (e *Engine) Opened() int { return e.opened }

// Step processes one sample to completion.
func (e *Engine) Step(s PriceSample) {
	if e.finished {
		return
	}
	e.rollover(s.Time)
	e.trackSessions(s)
	e.applyGates(s)
	e.manageTrades(s)
	e.evaluateEntries(s)
	e.last = s
	e.seen = true
}

// StepBar feeds every sample path produces for bar.
func (e *Engine) StepBar(bar Bar, path IntrabarPath) {
	for _, s := range path.Samples(bar) {
		e.Step(s)
	}
}

// Finish closes every open trade at the last seen price and returns the ledger.
// Further samples are ignored.
func (e *Engine) Finish() []ClosedTradeRecord {
	if !e.finished && e.seen {
		for _, ss := range e.sessions {
			if ss.trade != nil {
				e.closeTrade(ss, e.last.Price, e.last.Time, ExitEndOfBacktest)
			}
		}
	}
	e.finished = true
	return e.ledger.Records()
}

// rollover starts a new session-day for every session whose day changed. A
// session crossing midnight keeps its state until its window ends.
func (e *Engine) rollover(now time.Time) {
	for _, ss := range e.sessions {
		day := sessionDay(ss.spec.Window, now)
		if !ss.day.IsZero() && ss.day.Equal(day) {
			continue
		}
		if ss.active {
			e.endSession(ss, now)
		}
		ss.allowed = true
		ss.used = map[int]bool{}
		ss.day = day
		ss.schedule = e.params.Calendar.Day(day)
	}
}

func (e *Engine) session(id SessionID) *sessionState {
	for _, ss := range e.sessions {
		if ss.spec.ID == id {
			return ss
		}
	}
	return nil
}

func (e *Engine) emit(ev Event) {
	if e.events != nil {
		e.events.Append(ev)
	}
}

// Run drives a fresh engine over every bar of src and finishes it.
func Run(ctx context.Context, src BarSource, p Params, v Variant, path IntrabarPath, opts ...Option) (Result, error) {
	eng, err := New(p, v, opts...)
	if err != nil {
		return Result{}, err
	}
	it, err := src.Open(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("open bar source: %w", err)
	}
	defer it.Close()
	var res Result
	for it.Next() {
		if res.Bars%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}
		bar := it.Bar()
		for _, s := range path.Samples(bar) {
			eng.Step(s)
			res.Samples++
		}
		res.Bars++
	}
	if err := it.Err(); err != nil {
		return Result{}, fmt.Errorf("read bars: %w", err)
	}
	res.Records = eng.Finish()
	res.Opened = eng.Opened()
	return res, nil
}

// Result is the outcome of Run.
type Result struct {
	Records []ClosedTradeRecord
	Bars    int
	Samples int
	Opened  int
}

package engine

import "time"

// ClosedTradeRecord is an immutable snapshot of a finished trade.
type ClosedTradeRecord struct {
	Variant      string     `json:"variant"`
	Session      SessionID  `json:"session"`
	Zone         int        `json:"zone"`
	Direction    Direction  `json:"direction"`
	Target       float64    `json:"target"`
	OpenDistance float64    `json:"open_distance"`
	NoCloseRules bool       `json:"no_close_rules"`
	EntryTime    time.Time  `json:"entry_time"`
	EntryPrice   float64    `json:"entry_price"`
	ExitTime     time.Time  `json:"exit_time"`
	ExitPrice    float64    `json:"exit_price"`
	Reason       ExitReason `json:"reason"`
	PnL          float64    `json:"pnl"`
	MaxFavorable float64    `json:"max_favorable"`
	MaxAdverse   float64    `json:"max_adverse"`
}

// Win reports a strictly positive result.
func (r ClosedTradeRecord) Win() bool { return r.PnL > 0 }

// Duration is the time between entry and exit.
func (r ClosedTradeRecord) Duration() time.Duration { return r.ExitTime.Sub(r.EntryTime) }

// Ledger is append-only.
type Ledger struct {
	records []ClosedTradeRecord
}

// Append records r after every earlier close.
func (l *Ledger) Append(r ClosedTradeRecord) { l.records = append(l.records, r) }

// Records returns a copy in close order.
func (l *Ledger) Records() []ClosedTradeRecord {
	out := make([]ClosedTradeRecord, len(l.records))
	copy(out, l.records)
	return out
}

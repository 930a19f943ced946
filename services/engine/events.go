package engine

import "time"

// EventType classifies an Event.
type EventType int

const (
	EventSessionStart EventType = iota
	EventSessionEnd
	EventSessionBlocked
	EventGateReference
	EventTradeOpen
	EventTradeClose
)

func (t EventType) String() string {
	switch t {
	case EventSessionStart:
		return "session_start"
	case EventSessionEnd:
		return "session_end"
	case EventSessionBlocked:
		return "session_blocked"
	case EventGateReference:
		return "gate_reference"
	case EventTradeOpen:
		return "trade_open"
	case EventTradeClose:
		return "trade_close"
	default:
		return "unknown"
	}
}

func (t EventType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Event is one state change of a session, gate or trade.
type Event struct {
	Ts      time.Time         `json:"ts"`
	Type    EventType         `json:"type"`
	Session SessionID         `json:"session"`
	Price   float64           `json:"price,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// EventLog collects events in emission order.
type EventLog struct {
	Events []Event `json:"events"`
}

// Append adds e to the log.
func (l *EventLog) Append(e Event) { l.Events = append(l.Events, e) }

// Filter returns the events of type t.
func (l *EventLog) Filter(t EventType) []Event {
	var out []Event
	for _, e := range l.Events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

package engine

// Session calendar

import (
	"fmt"
	"time"
)

// SessionID identifies a configured session.
type SessionID int

const (
	SessionOne SessionID = 1
	SessionTwo SessionID = 2
)

func (s SessionID) String() string { return fmt.Sprintf("session%d", int(s)) }

// TimeOfDay is a wall-clock minute in the location of the sample it is applied to.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// At returns the time of day hour:minute.
func At(hour, minute int) TimeOfDay { return TimeOfDay{Hour: hour, Minute: minute} }

// ParseTimeOfDay accepts "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

func (t TimeOfDay) minutes() int { return t.Hour*60 + t.Minute }

// On returns the instant of t on the calendar date of day, in day's location.
// time.Date normalizes wall times skipped by a DST transition.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, day.Location())
}

// Matches reports whether ts falls in the wall-clock minute t.
func (t TimeOfDay) Matches(ts time.Time) bool {
	return ts.Hour() == t.Hour && ts.Minute() == t.Minute
}

func minuteOfDay(ts time.Time) int { return ts.Hour()*60 + ts.Minute() }

// Window is a half-open [Start, End) time-of-day range; End before Start wraps midnight.
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Contains reports whether the wall-clock minute of ts lies in the window.
func (w Window) Contains(ts time.Time) bool {
	m := minuteOfDay(ts)
	s, e := w.Start.minutes(), w.End.minutes()
	if s <= e {
		return m >= s && m < e
	}
	return m >= s || m < e
}

func (w Window) String() string { return w.Start.String() + "-" + w.End.String() }

// wraps reports whether the window crosses midnight.
func (w Window) wraps() bool { return w.End.minutes() <= w.Start.minutes() }

// Zone is an entry sub-window of a session. Never mutated after construction.
type Zone struct {
	ID           int
	Window       Window
	ForcedClose  TimeOfDay
	BaseDistance float64
	NoCloseRules bool
}

// SessionSpec is one trading session and its entry zones.
type SessionSpec struct {
	ID     SessionID
	Window Window
	Zones  []Zone
}

// ZonesAt returns the zones whose window contains ts, in configuration order.
func (s SessionSpec) ZonesAt(ts time.Time) []Zone {
	var out []Zone
	for _, z := range s.Zones {
		if z.Window.Contains(ts) {
			out = append(out, z)
		}
	}
	return out
}

// Calendar holds the configured sessions in evaluation order.
type Calendar struct {
	Sessions []SessionSpec
}

// InAnySession reports whether any session window contains ts.
func (c Calendar) InAnySession(ts time.Time) bool {
	for _, s := range c.Sessions {
		if s.Window.Contains(ts) {
			return true
		}
	}
	return false
}

// ZoneInstant is a zone resolved to absolute times.
type ZoneInstant struct {
	Zone        Zone
	Start       time.Time
	End         time.Time
	ForcedClose time.Time
}

// SessionInstant is a session resolved to absolute times for one session-day.
type SessionInstant struct {
	ID    SessionID
	Start time.Time
	End   time.Time
	Zones []ZoneInstant
}

// DaySchedule lists the sessions that start on Date.
type DaySchedule struct {
	Date     time.Time
	Weekend  bool
	Sessions []SessionInstant
}

// Zone returns the resolved instants of one zone of one session.
func (d DaySchedule) Zone(session SessionID, zone int) (ZoneInstant, bool) {
	for _, s := range d.Sessions {
		if s.ID != session {
			continue
		}
		for _, z := range s.Zones {
			if z.Zone.ID == zone {
				return z, true
			}
		}
	}
	return ZoneInstant{}, false
}

// Day resolves the configured windows of the sessions starting on the date of
// day. A session that wraps midnight ends on the following date, and so do its
// zones that begin before the session start time. Each zone's forced close is
// the first occurrence at or after the zone start.
func (c Calendar) Day(day time.Time) DaySchedule {
	wd := day.Weekday()
	out := DaySchedule{
		Date:    TimeOfDay{}.On(day),
		Weekend: wd == time.Saturday || wd == time.Sunday,
	}
	for _, s := range c.Sessions {
		start, end := resolveWindow(s.Window, out.Date)
		si := SessionInstant{ID: s.ID, Start: start, End: end}
		for _, z := range s.Zones {
			zday := out.Date
			if s.Window.wraps() && z.Window.Start.minutes() < s.Window.Start.minutes() {
				zday = nextDate(zday)
			}
			zs, ze := resolveWindow(z.Window, zday)
			forced := z.ForcedClose.On(zday)
			if forced.Before(zs) {
				forced = z.ForcedClose.On(nextDate(zday))
			}
			si.Zones = append(si.Zones, ZoneInstant{Zone: z, Start: zs, End: ze, ForcedClose: forced})
		}
		out.Sessions = append(out.Sessions, si)
	}
	return out
}

func resolveWindow(w Window, day time.Time) (time.Time, time.Time) {
	start := w.Start.On(day)
	end := w.End.On(day)
	if w.wraps() {
		end = w.End.On(nextDate(day))
	}
	return start, end
}

// nextDate returns midnight of the calendar date after day.
func nextDate(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, day.Location())
}

// sessionDay returns midnight of the date the session instance owning ts
// started on. Samples in the after-midnight tail of a wrapping window belong
// to the previous date.
func sessionDay(w Window, ts time.Time) time.Time {
	y, m, d := ts.Date()
	if w.wraps() && minuteOfDay(ts) < w.End.minutes() {
		d--
	}
	return time.Date(y, m, d, 0, 0, 0, 0, ts.Location())
}

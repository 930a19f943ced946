package engine

// Parameter validation

import (
	"errors"
	"fmt"
)

// ValidationError reports an inconsistent parameter set.
type ValidationError struct{ Msg string }

func (e ValidationError) Error() string { return e.Msg }

// Validate checks structural consistency. A zone base distance that is not a
// ladder rung is accepted and resolves to "no trade" at run time.
func (p Params) Validate() error {
	var errs []error
	if len(p.Ladder) == 0 {
		errs = append(errs, ValidationError{Msg: "ladder is empty"})
	}
	for i := 1; i < len(p.Ladder); i++ {
		if p.Ladder[i] <= p.Ladder[i-1] {
			errs = append(errs, ValidationError{Msg: fmt.Sprintf("ladder not ascending at rung %d", i)})
		}
	}
	if p.Tolerance < 0 {
		errs = append(errs, ValidationError{Msg: "tolerance must be >= 0"})
	}
	if p.StopDistance <= 0 {
		errs = append(errs, ValidationError{Msg: "stop distance must be > 0"})
	}
	if p.SweepDistance <= 0 {
		errs = append(errs, ValidationError{Msg: "sweep distance must be > 0"})
	}
	if len(p.Calendar.Sessions) == 0 {
		errs = append(errs, ValidationError{Msg: "no sessions configured"})
	}
	seen := map[SessionID]bool{}
	for _, s := range p.Calendar.Sessions {
		if seen[s.ID] {
			errs = append(errs, ValidationError{Msg: fmt.Sprintf("duplicate %s", s.ID)})
		}
		seen[s.ID] = true
		if s.Window.Start == s.Window.End {
			errs = append(errs, ValidationError{Msg: fmt.Sprintf("%s: empty window", s.ID)})
		}
		for _, z := range s.Zones {
			if z.BaseDistance <= 0 {
				errs = append(errs, ValidationError{Msg: fmt.Sprintf("%s zone %d: base distance must be > 0", s.ID, z.ID)})
			}
		}
	}
	for _, g := range p.Gates {
		if !seen[g.Session] {
			errs = append(errs, ValidationError{Msg: fmt.Sprintf("gate references unknown %s", g.Session)})
		}
	}
	if err := p.Retracement.validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

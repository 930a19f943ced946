package feed

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// YearSet is a set of calendar years. The empty set matches every year.
type YearSet map[int]bool

// ParseYears accepts "2024", "2020-2022" and comma-separated mixes of both.
func ParseYears(s string) (YearSet, error) {
	set := YearSet{}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return set, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid year %q: %w", part, err)
		}
		to := from
		if isRange {
			if to, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("invalid year range %q: %w", part, err)
			}
		}
		if to < from {
			return nil, fmt.Errorf("invalid year range %q: end before start", part)
		}
		for y := from; y <= to; y++ {
			set[y] = true
		}
	}
	return set, nil
}

func (s YearSet) Contains(y int) bool { return len(s) == 0 || s[y] }

func (s YearSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for y := range s {
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

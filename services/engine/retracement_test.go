package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetracementLookup(t *testing.T) {
	table := DefaultParams().Retracement
	cases := []struct {
		r    float64
		want RetractionAction
		ok   bool
	}{
		{0, RetractionAction{}, false},
		{14.99, RetractionAction{}, false},
		{15, ExtraDistance(18), true},
		{29.9, ExtraDistance(18), true},
		{29.95, ExtraDistance(18), true},
		{30, SkipLevels(1), true},
		{35.99, SkipLevels(1), true},
		{36, SkipLevels(2), true},
		{45.9, SkipLevels(2), true},
		{46, CancelSession(), true},
		{1e6, CancelSession(), true},
	}
	for _, tc := range cases {
		got, ok := table.Lookup(tc.r)
		assert.Equal(t, tc.ok, ok, "r=%v", tc.r)
		assert.Equal(t, tc.want, got, "r=%v", tc.r)
	}
}

func TestPullback(t *testing.T) {
	assert.Equal(t, 20.0, Pullback(100, 170, 95, 150))
	assert.Equal(t, 0.0, Pullback(100, 100, 100, 100))
	assert.Equal(t, 12.0, Pullback(100, 110, 40, 52))
}

func TestResolveTarget(t *testing.T) {
	ladder := Ladder{45, 70, 100, 130}
	cases := []struct {
		name   string
		base   float64
		action RetractionAction
		want   float64
		ok     bool
	}{
		{"no adjustment", 45, RetractionAction{}, 45, true},
		{"extra distance", 45, ExtraDistance(18), 63, true},
		{"extra on 70", 70, ExtraDistance(18), 88, true},
		{"skip one", 45, SkipLevels(1), 70, true},
		{"skip two", 45, SkipLevels(2), 100, true},
		{"skip clamps at top", 100, SkipLevels(2), 130, true},
		{"extra beyond top plus tolerance", 130, ExtraDistance(18), 0, false},
		{"extra within tolerance of top", 130, ExtraDistance(9), 139, true},
		{"off ladder base", 50, RetractionAction{}, 0, false},
		{"cancel", 45, CancelSession(), 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ResolveTarget(ladder, tc.base, tc.action, 9)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLadderHelpers(t *testing.T) {
	l := Ladder{45, 70, 100, 130}
	assert.Equal(t, 1, l.LevelFor(63))
	assert.Equal(t, 0, l.LevelFor(45))
	assert.Equal(t, 3, l.LevelFor(139))
	assert.True(t, l.IsLowestBand(63))
	assert.False(t, l.IsLowestBand(70))
}

func TestOffLadderZoneNeverTrades(t *testing.T) {
	p := DefaultParams()
	p.Calendar.Sessions[0].Zones[0].BaseDistance = 50
	d := newDriver(t, p, Canonical())
	d.at(3, 8, 0, 100).at(3, 8, 16, 150)
	assert.Nil(t, d.trade(SessionOne))
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.Ladder = Ladder{45, 40}
	p.Retracement = RetracementTable{
		{Min: 10, Max: 20, Action: ExtraDistance(5)},
		{Min: 15, Max: math.Inf(1), Action: CancelSession()},
	}
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ladder not ascending")
	assert.Contains(t, err.Error(), "overlaps")

	var ve ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = New(p, Canonical())
	assert.Error(t, err)
}

package config

// Run configuration: YAML file, .env files, SBT_* environment overrides.

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"session-backtest/services/engine"
	"session-backtest/services/feed"
	"session-backtest/strategies"
)

// Config is the resolved file, environment and flag configuration.
type Config struct {
	Engine     EngineConfig     `yaml:"engine" json:"engine"`
	Run        RunConfig        `yaml:"run" json:"run"`
	Feed       FeedConfig       `yaml:"feed" json:"feed"`
	Output     OutputConfig     `yaml:"output" json:"output"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse" json:"clickhouse"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// EngineConfig is the file form of engine.Params.
type EngineConfig struct {
	Ladder            []float64       `yaml:"ladder" json:"ladder"`
	Tolerance         float64         `yaml:"tolerance" json:"tolerance"`
	StopDistance      float64         `yaml:"stop_distance" json:"stop_distance"`
	SweepDistance     float64         `yaml:"sweep_distance" json:"sweep_distance"`
	BreakEvenAdverse  float64         `yaml:"break_even_adverse" json:"break_even_adverse"`
	BreakEvenBand     float64         `yaml:"break_even_band" json:"break_even_band"`
	TimeCloseLowBand  time.Duration   `yaml:"time_close_low_band" json:"time_close_low_band"`
	TimeCloseHighBand time.Duration   `yaml:"time_close_high_band" json:"time_close_high_band"`
	Sessions          []SessionConfig `yaml:"sessions" json:"sessions"`
	Retracement       []RuleConfig    `yaml:"retracement" json:"retracement"`
	Gates             []GateConfig    `yaml:"gates" json:"gates"`
	PartialLock       LockConfig      `yaml:"partial_lock" json:"partial_lock"`
}

type SessionConfig struct {
	ID     int          `yaml:"id" json:"id"`
	Window string       `yaml:"window" json:"window"`
	Zones  []ZoneConfig `yaml:"zones" json:"zones"`
}

type ZoneConfig struct {
	ID           int     `yaml:"id" json:"id"`
	Window       string  `yaml:"window" json:"window"`
	ForcedClose  string  `yaml:"forced_close" json:"forced_close"`
	Base         float64 `yaml:"base" json:"base"`
	NoCloseRules bool    `yaml:"no_close_rules" json:"no_close_rules"`
}

// RuleConfig maps a pull-back range to an action. A nil Max leaves the range open.
type RuleConfig struct {
	Min    float64  `yaml:"min" json:"min"`
	Max    *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Action string   `yaml:"action" json:"action"`
	Value  float64  `yaml:"value,omitempty" json:"value,omitempty"`
}

type GateConfig struct {
	Session   int     `yaml:"session" json:"session"`
	Reference string  `yaml:"reference" json:"reference"`
	Check     string  `yaml:"check" json:"check"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

type LockConfig struct {
	MinPeak float64       `yaml:"min_peak" json:"min_peak"`
	MaxPeak float64       `yaml:"max_peak" json:"max_peak"`
	Lock    float64       `yaml:"lock" json:"lock"`
	After   time.Duration `yaml:"after" json:"after"`
}

// RunConfig selects variants and run-wide switches.
type RunConfig struct {
	Variants        []string `yaml:"variants" json:"variants"`
	Escalation      bool     `yaml:"escalation" json:"escalation"`
	TrackUsedLevels bool     `yaml:"track_used_levels" json:"track_used_levels"`
	PartialLock     bool     `yaml:"partial_lock" json:"partial_lock"`
	Intrabar        string   `yaml:"intrabar" json:"intrabar"`
	Parallel        int      `yaml:"parallel" json:"parallel"`
}

// FeedConfig locates the bar file and its time zones.
type FeedConfig struct {
	Path     string `yaml:"path" json:"path"`
	SourceTZ string `yaml:"source_tz" json:"source_tz"`
	TargetTZ string `yaml:"target_tz" json:"target_tz"`
	Years    string `yaml:"years" json:"years"`
}

type OutputConfig struct {
	Dir   string `yaml:"dir" json:"dir"`
	Arrow bool   `yaml:"arrow" json:"arrow"`
}

// ClickHouseConfig holds the bar store connection. Password is excluded from JSON.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Database string `yaml:"database" json:"database"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	Symbol   string `yaml:"symbol" json:"symbol"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// Default mirrors engine.DefaultParams with the canonical variant.
func Default() Config {
	return Config{
		Engine: FromParams(engine.DefaultParams()),
		Run: RunConfig{
			Variants: []string{strategies.Canonical},
			Intrabar: engine.PathOpen.String(),
			Parallel: 0,
		},
		Feed: FeedConfig{
			SourceTZ: "America/Chicago",
			TargetTZ: "Europe/London",
		},
		Output: OutputConfig{Dir: "out"},
		ClickHouse: ClickHouseConfig{
			Addr:     "localhost:9000",
			Database: "backtest",
			Username: "default",
			Symbol:   "GER30",
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// LoadDotEnv loads the given .env files, skipping ones that do not exist.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads path over the defaults, applies SBT_* overrides and validates.
// An empty path uses the defaults.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read is Load without validation, for callers that layer flags on top.
func Read(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SBT_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	str := func(k string, dst *string) {
		if v, ok := get(k); ok {
			*dst = v
		}
	}
	var errs []error
	flag := func(k string, dst *bool) {
		if v, ok := get(k); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", k, err))
				return
			}
			*dst = b
		}
	}

	str("SBT_FEED_PATH", &c.Feed.Path)
	str("SBT_FEED_YEARS", &c.Feed.Years)
	str("SBT_SOURCE_TZ", &c.Feed.SourceTZ)
	str("SBT_TARGET_TZ", &c.Feed.TargetTZ)
	str("SBT_INTRABAR", &c.Run.Intrabar)
	str("SBT_OUTPUT_DIR", &c.Output.Dir)
	str("SBT_CH_ADDR", &c.ClickHouse.Addr)
	str("SBT_CH_DATABASE", &c.ClickHouse.Database)
	str("SBT_CH_USER", &c.ClickHouse.Username)
	str("SBT_CH_PASSWORD", &c.ClickHouse.Password)
	str("SBT_CH_SYMBOL", &c.ClickHouse.Symbol)
	str("SBT_SERVER_ADDR", &c.Server.Addr)
	flag("SBT_ESCALATION", &c.Run.Escalation)
	flag("SBT_TRACK_USED_LEVELS", &c.Run.TrackUsedLevels)
	flag("SBT_PARTIAL_LOCK", &c.Run.PartialLock)
	if v, ok := get("SBT_VARIANTS"); ok {
		c.Run.Variants = strings.Split(v, ",")
	}
	if v, ok := get("SBT_PARALLEL"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SBT_PARALLEL: %w", err))
		} else {
			c.Run.Parallel = n
		}
	}
	return errors.Join(errs...)
}

// Resolved holds the engine-facing values of a valid Config.
type Resolved struct {
	Params   engine.Params
	Variants []engine.Variant
	Path     engine.IntrabarPath
	Feed     feed.Options
}

// Resolve converts every section and returns all problems found, joined.
func (c Config) Resolve() (Resolved, error) {
	var (
		r    Resolved
		err  error
		errs []error
	)
	if r.Params, err = c.Params(); err != nil {
		errs = append(errs, err)
	}
	if r.Variants, err = c.Variants(); err != nil {
		errs = append(errs, err)
	}
	if r.Path, err = c.Path(); err != nil {
		errs = append(errs, err)
	}
	if r.Feed, err = c.FeedOptions(); err != nil {
		errs = append(errs, err)
	}
	if c.Run.Parallel < 0 {
		errs = append(errs, fmt.Errorf("run.parallel must be >= 0, got %d", c.Run.Parallel))
	}
	if err := errors.Join(errs...); err != nil {
		return Resolved{}, err
	}
	return r, nil
}

// Validate returns every problem found, joined.
func (c Config) Validate() error {
	_, err := c.Resolve()
	return err
}

// Variants resolves run.variants and applies the run-wide switches.
func (c Config) Variants() ([]engine.Variant, error) {
	vs, err := strategies.Lookup(c.Run.Variants...)
	if err != nil {
		return nil, err
	}
	tune := strategies.Tune{
		Escalation:      c.Run.Escalation,
		TrackUsedLevels: c.Run.TrackUsedLevels,
		PartialLock:     c.Run.PartialLock,
	}
	return tune.Apply(vs), nil
}

// Path parses run.intrabar.
func (c Config) Path() (engine.IntrabarPath, error) {
	return engine.ParseIntrabarPath(c.Run.Intrabar)
}

// FeedOptions loads the feed time zones and parses the year filter.
func (c Config) FeedOptions() (feed.Options, error) {
	src, err := time.LoadLocation(c.Feed.SourceTZ)
	if err != nil {
		return feed.Options{}, fmt.Errorf("feed.source_tz: %w", err)
	}
	tgt, err := time.LoadLocation(c.Feed.TargetTZ)
	if err != nil {
		return feed.Options{}, fmt.Errorf("feed.target_tz: %w", err)
	}
	years, err := feed.ParseYears(c.Feed.Years)
	if err != nil {
		return feed.Options{}, fmt.Errorf("feed.years: %w", err)
	}
	return feed.Options{Source: src, Target: tgt, Years: years}, nil
}

// Params converts the engine section and validates the result.
func (c Config) Params() (engine.Params, error) {
	e := c.Engine
	p := engine.Params{
		Ladder:            engine.Ladder(append([]float64(nil), e.Ladder...)),
		Tolerance:         e.Tolerance,
		StopDistance:      e.StopDistance,
		SweepDistance:     e.SweepDistance,
		BreakEvenAdverse:  e.BreakEvenAdverse,
		BreakEvenBand:     e.BreakEvenBand,
		TimeCloseLowBand:  e.TimeCloseLowBand,
		TimeCloseHighBand: e.TimeCloseHighBand,
		PartialLock: engine.PartialLock{
			MinPeak: e.PartialLock.MinPeak,
			MaxPeak: e.PartialLock.MaxPeak,
			Lock:    e.PartialLock.Lock,
			After:   e.PartialLock.After,
		},
	}
	var errs []error
	for _, sc := range e.Sessions {
		w, err := ParseWindow(sc.Window)
		if err != nil {
			errs = append(errs, fmt.Errorf("session %d: %w", sc.ID, err))
			continue
		}
		spec := engine.SessionSpec{ID: engine.SessionID(sc.ID), Window: w}
		for _, zc := range sc.Zones {
			zw, err := ParseWindow(zc.Window)
			if err != nil {
				errs = append(errs, fmt.Errorf("session %d zone %d: %w", sc.ID, zc.ID, err))
				continue
			}
			fc, err := engine.ParseTimeOfDay(zc.ForcedClose)
			if err != nil {
				errs = append(errs, fmt.Errorf("session %d zone %d forced_close: %w", sc.ID, zc.ID, err))
				continue
			}
			spec.Zones = append(spec.Zones, engine.Zone{
				ID: zc.ID, Window: zw, ForcedClose: fc, BaseDistance: zc.Base, NoCloseRules: zc.NoCloseRules,
			})
		}
		p.Calendar.Sessions = append(p.Calendar.Sessions, spec)
	}
	for i, rc := range e.Retracement {
		action, err := parseAction(rc.Action, rc.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("retracement rule %d: %w", i, err))
			continue
		}
		upper := math.Inf(1)
		if rc.Max != nil {
			upper = *rc.Max
		}
		p.Retracement = append(p.Retracement, engine.RetracementRule{Min: rc.Min, Max: upper, Action: action})
	}
	for i, gc := range e.Gates {
		ref, err := engine.ParseTimeOfDay(gc.Reference)
		if err != nil {
			errs = append(errs, fmt.Errorf("gate %d reference: %w", i, err))
			continue
		}
		check, err := engine.ParseTimeOfDay(gc.Check)
		if err != nil {
			errs = append(errs, fmt.Errorf("gate %d check: %w", i, err))
			continue
		}
		p.Gates = append(p.Gates, engine.Gate{
			Session: engine.SessionID(gc.Session), Reference: ref, Check: check, Threshold: gc.Threshold,
		})
	}
	if err := errors.Join(errs...); err != nil {
		return engine.Params{}, err
	}
	if err := p.Validate(); err != nil {
		return engine.Params{}, err
	}
	return p, nil
}

// FromParams renders p back into its file form.
func FromParams(p engine.Params) EngineConfig {
	e := EngineConfig{
		Ladder:            append([]float64(nil), p.Ladder...),
		Tolerance:         p.Tolerance,
		StopDistance:      p.StopDistance,
		SweepDistance:     p.SweepDistance,
		BreakEvenAdverse:  p.BreakEvenAdverse,
		BreakEvenBand:     p.BreakEvenBand,
		TimeCloseLowBand:  p.TimeCloseLowBand,
		TimeCloseHighBand: p.TimeCloseHighBand,
		PartialLock: LockConfig{
			MinPeak: p.PartialLock.MinPeak,
			MaxPeak: p.PartialLock.MaxPeak,
			Lock:    p.PartialLock.Lock,
			After:   p.PartialLock.After,
		},
	}
	for _, s := range p.Calendar.Sessions {
		sc := SessionConfig{ID: int(s.ID), Window: s.Window.String()}
		for _, z := range s.Zones {
			sc.Zones = append(sc.Zones, ZoneConfig{
				ID: z.ID, Window: z.Window.String(), ForcedClose: z.ForcedClose.String(),
				Base: z.BaseDistance, NoCloseRules: z.NoCloseRules,
			})
		}
		e.Sessions = append(e.Sessions, sc)
	}
	for _, r := range p.Retracement {
		rc := RuleConfig{Min: r.Min, Action: r.Action.Kind.String()}
		if !math.IsInf(r.Max, 1) {
			upper := r.Max
			rc.Max = &upper
		}
		switch r.Action.Kind {
		case engine.ActionExtraDistance:
			rc.Value = r.Action.Extra
		case engine.ActionSkipLevels:
			rc.Value = float64(r.Action.Skip)
		}
		e.Retracement = append(e.Retracement, rc)
	}
	for _, g := range p.Gates {
		e.Gates = append(e.Gates, GateConfig{
			Session: int(g.Session), Reference: g.Reference.String(), Check: g.Check.String(), Threshold: g.Threshold,
		})
	}
	return e
}

// ParseWindow accepts "HH:MM-HH:MM".
func ParseWindow(s string) (engine.Window, error) {
	start, end, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return engine.Window{}, fmt.Errorf("window %q: want HH:MM-HH:MM", s)
	}
	a, err := engine.ParseTimeOfDay(strings.TrimSpace(start))
	if err != nil {
		return engine.Window{}, err
	}
	b, err := engine.ParseTimeOfDay(strings.TrimSpace(end))
	if err != nil {
		return engine.Window{}, err
	}
	return engine.Window{Start: a, End: b}, nil
}

func parseAction(kind string, value float64) (engine.RetractionAction, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "extra":
		return engine.ExtraDistance(value), nil
	case "skip":
		if value != math.Trunc(value) {
			return engine.RetractionAction{}, fmt.Errorf("skip needs a whole number of levels, got %g", value)
		}
		return engine.SkipLevels(int(value)), nil
	case "cancel":
		return engine.CancelSession(), nil
	default:
		return engine.RetractionAction{}, fmt.Errorf("unknown action %q", kind)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-backtest/services/engine"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultRoundTripsToParams(t *testing.T) {
	p, err := Default().Params()
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultParams(), p)
}

func TestLoadOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	body := `
engine:
  tolerance: 5
  time_close_low_band: 20m
  retracement:
    - {min: 10, max: 20, action: extra, value: 12}
    - {min: 20, action: cancel}
run:
  variants: [all]
  escalation: true
  intrabar: low-high
feed:
  years: "2020-2021"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	p, err := cfg.Params()
	require.NoError(t, err)
	assert.Equal(t, 5.0, p.Tolerance)
	assert.Equal(t, 20*time.Minute, p.TimeCloseLowBand)
	assert.Equal(t, 31*time.Minute, p.TimeCloseHighBand)
	require.Len(t, p.Retracement, 2)
	a, ok := p.Retracement.Lookup(500)
	require.True(t, ok)
	assert.Equal(t, engine.ActionCancelSession, a.Kind)
	assert.Len(t, p.Calendar.Sessions, 2)

	vs, err := cfg.Variants()
	require.NoError(t, err)
	assert.Len(t, vs, 5)
	for _, v := range vs {
		assert.True(t, v.Escalation, v.Name)
	}
	path2, err := cfg.Path()
	require.NoError(t, err)
	assert.Equal(t, engine.PathLowHigh, path2)

	opts, err := cfg.FeedOptions()
	require.NoError(t, err)
	assert.True(t, opts.Years.Contains(2021))
	assert.False(t, opts.Years.Contains(2022))
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"SBT_FEED_PATH":    "/data/dax.csv",
		"SBT_VARIANTS":     "canonical,no-be-any",
		"SBT_PARALLEL":     "3",
		"SBT_PARTIAL_LOCK": "true",
		"SBT_CH_PASSWORD":  "secret",
		"SBT_SERVER_ADDR":  " ",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/data/dax.csv", cfg.Feed.Path)
	assert.Equal(t, []string{"canonical", "no-be-any"}, cfg.Run.Variants)
	assert.Equal(t, 3, cfg.Run.Parallel)
	assert.True(t, cfg.Run.PartialLock)
	assert.Equal(t, "secret", cfg.ClickHouse.Password)
	assert.Equal(t, ":8080", cfg.Server.Addr)

	err = cfg.ApplyEnv(env(map[string]string{"SBT_PARALLEL": "x", "SBT_ESCALATION": "maybe"}))
	assert.ErrorContains(t, err, "SBT_PARALLEL")
	assert.ErrorContains(t, err, "SBT_ESCALATION")
}

func TestValidateJoinsProblems(t *testing.T) {
	cfg := Default()
	cfg.Run.Variants = []string{"nope"}
	cfg.Run.Intrabar = "zigzag"
	cfg.Feed.TargetTZ = "Mars/Olympus"
	cfg.Engine.Sessions[0].Window = "8-12"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"unknown variant", "intrabar", "target_tz", "session 1"} {
		assert.ErrorContains(t, err, want)
	}
}

func TestResolveReturnsEngineValues(t *testing.T) {
	cfg := Default()
	cfg.Run.Variants = []string{"no-be-any"}
	cfg.Run.Intrabar = "path"
	cfg.Run.TrackUsedLevels = true
	cfg.Feed.Years = "2024"

	r, err := cfg.Resolve()
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultParams(), r.Params)
	require.Len(t, r.Variants, 1)
	assert.Equal(t, "no-be-any", r.Variants[0].Name)
	assert.True(t, r.Variants[0].TrackUsedLevels)
	assert.Equal(t, engine.PathOpenExtremumOtherClose, r.Path)
	assert.Equal(t, "America/Chicago", r.Feed.Source.String())
	assert.Equal(t, "Europe/London", r.Feed.Target.String())
	assert.True(t, r.Feed.Years.Contains(2024))
	assert.False(t, r.Feed.Years.Contains(2023))

	cfg.Run.Parallel = -1
	r, err = cfg.Resolve()
	assert.ErrorContains(t, err, "run.parallel")
	assert.Empty(t, r.Variants)
}

func TestParamsRejectsInvalidEngine(t *testing.T) {
	cfg := Default()
	cfg.Engine.Tolerance = -1
	_, err := cfg.Params()
	var ve engine.ValidationError
	assert.ErrorAs(t, err, &ve)

	cfg = Default()
	cfg.Engine.Retracement[1].Action = "skip"
	cfg.Engine.Retracement[1].Value = 1.5
	_, err = cfg.Params()
	assert.ErrorContains(t, err, "whole number")
}

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("22:00 - 06:00")
	require.NoError(t, err)
	assert.Equal(t, engine.Window{Start: engine.At(22, 0), End: engine.At(6, 0)}, w)

	_, err = ParseWindow("22:00")
	assert.Error(t, err)
}

func TestSnapshotHidesSecrets(t *testing.T) {
	a := Default()
	b := Default()
	b.ClickHouse.Password = "hunter2"

	sa := a.Snapshot("v1", time.Unix(0, 0))
	sb := b.Snapshot("v1", time.Unix(0, 0))
	assert.Equal(t, sa.ConfigHash, sb.ConfigHash)
	assert.NotEqual(t, sa.SecretsHash, sb.SecretsHash)

	b.Run.Escalation = true
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestLoadDotEnvSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SBT_TEST_DOTENV=loaded\n"), 0o644))
	t.Setenv("SBT_TEST_DOTENV", "")
	os.Unsetenv("SBT_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "loaded", os.Getenv("SBT_TEST_DOTENV"))
}

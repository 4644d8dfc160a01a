package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pomamo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 10*time.Second, cfg.Duration("Business.Reason.CurrentReason.UseReasonSlotMargin", 10*time.Second))
	assert.True(t, cfg.Bool("ReasonColorSlot.Processing.GuessColor", true))
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadFileSettings(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: sqlite
  path: /tmp/x.db
days:
  timezone: Europe/Paris
  cutoff: 6h
settings:
  Business.Reason.CurrentReason.UseReasonSlotMargin: 15s
  Business.Reason.CurrentReason.LimitMargin: 90
  ReasonColorSlot.Processing.GuessColor: false
  Broken.Duration: soon
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/x.db", cfg.Store.Path)
	assert.Equal(t, 6*time.Hour, cfg.DayCutoff())
	assert.Equal(t, 15*time.Second, cfg.Duration("Business.Reason.CurrentReason.UseReasonSlotMargin", 10*time.Second))
	assert.Equal(t, 90*time.Second, cfg.Duration("Business.Reason.CurrentReason.LimitMargin", time.Minute))
	assert.False(t, cfg.Bool("ReasonColorSlot.Processing.GuessColor", true))
	assert.Equal(t, time.Minute, cfg.Duration("Broken.Duration", time.Minute), "malformed value falls back to default")
}

func TestEnvOverridesSetting(t *testing.T) {
	path := writeConfig(t, `
settings:
  Business.Reason.CurrentReason.CurrentMachineModeMargin: 30s
`)
	t.Setenv(EnvKey("Business.Reason.CurrentReason.CurrentMachineModeMargin"), "45s")
	t.Setenv("POMAMO_DB", "/tmp/env.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.db", cfg.Store.Path)
	assert.Equal(t, 45*time.Second, cfg.Duration("Business.Reason.CurrentReason.CurrentMachineModeMargin", 0))
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load(writeConfig(t, "store:\n  driver: oracle\n"))
	require.ErrorIs(t, err, ErrInvalid)

	_, err = Load(writeConfig(t, "store:\n  driver: postgres\n"))
	require.ErrorIs(t, err, ErrInvalid)

	_, err = Load(writeConfig(t, "days:\n  cutoff: later\n"))
	require.ErrorIs(t, err, ErrInvalid)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "POMAMO_SETTING_BUSINESS_REASON_SLOTS_FETCHMARGIN", EnvKey("Business.Reason.Slots.FetchMargin"))
}

func TestMapGetter(t *testing.T) {
	m := Map{"a": "2m", "b": "yes", "c": "true"}
	assert.Equal(t, 2*time.Minute, m.Duration("a", 0))
	assert.Equal(t, time.Second, m.Duration("missing", time.Second))
	assert.False(t, m.Bool("b", false), "ParseBool rejects yes")
	assert.True(t, m.Bool("c", false))
}

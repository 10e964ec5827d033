package config_test

import (
	"slices"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/MrWong99/renoquote/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	d := config.Diff(cfg, config.Default())
	if d.Changed() {
		t.Errorf("Diff of identical configs = %+v, want no change", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired = %v, want none for a log level change", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.ListenAddr = ":9000"
	new.Confidence.Weights.Semantic = 0.5
	new.Confidence.Weights.Vendor = 0.05
	m := decimal.RequireFromString("0.3")
	new.Pricing.Margin = &m
	new.Pricing.RegionalMultipliers["Corse"] = decimal.RequireFromString("1.3")

	d := config.Diff(old, new)
	want := []string{"server", "confidence", "pricing"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.LogLevelChanged {
		t.Error("LogLevelChanged = true, want false")
	}
}

package integration

import (
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"

	"github.com/rony4d/go-allowance-ledger/issuance"
)

// Package integration provides configuration presets for assembling an
// allowance ledger deployment. Presets bundle the economic rules and the
// scenario-driver settings into named profiles so operators can spin up
// a ledger tuned for a workload without tweaking individual flags.
//
// Usage:
//   cfg := integration.FakePreset()    // for development
//   cfg := integration.DefaultPreset() // for production
//   cfg := integration.StressPreset()  // for load scenarios
//
// Each preset returns a PresetConfig struct that the launcher merges
// into its main config during initialization.

// PresetConfig captures the tunable parameters that vary across preset
// profiles. It intentionally excludes fields that are always the same
// (like the data directory) so presets focus on the economic and
// scenario trade-offs.
type PresetConfig struct {
	Name        string    // human-readable identifier (e.g. "fake", "stress")
	EpochLength idx.Block // blocks per epoch; shorter epochs close faster
	CurveUnits  uint64    // flat issuance: credit units per entitlement per epoch
	Holders     int       // scenario: number of entitlement holders
	Investors   int       // scenario: number of investors
	Epochs      int       // scenario: number of epochs to run
	LogJSON     bool      // emit structured JSON logs instead of text
}

func DefaultPreset() PresetConfig {
	return PresetConfig{
		Name:        "default",
		EpochLength: issuance.DefaultEpochLength,
		CurveUnits:  1000,
		Holders:     3,
		Investors:   2,
		Epochs:      3,
		LogJSON:     false,
	}
}

// FakePreset returns the accelerated configuration for development and
// testing: epochs short enough that a scenario crosses several of them
// in well under a second.
func FakePreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "fake"
	cfg.EpochLength = issuance.FakeEpochLength
	return cfg
}

// StressPreset returns a configuration for load scenarios: short epochs
// with many participants, so the engine's maps and the record feeds see
// realistic churn. JSON logs keep the high-volume output machine
// readable.
func StressPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "stress"
	cfg.EpochLength = issuance.FakeEpochLength
	cfg.Holders = 50
	cfg.Investors = 20
	cfg.Epochs = 10
	cfg.LogJSON = true
	return cfg
}

// Rules maps the preset onto the issuance rules it implies.
func (p PresetConfig) Rules() issuance.Rules {
	return issuance.Rules{
		Name:        p.Name,
		EpochLength: p.EpochLength,
		Curve:       issuance.FlatCurve(p.CurveUnits),
	}
}

// GetPresetByName looks up a preset by its string identifier. Returns an
// error if the name is unrecognized. This helper backs CLI flags like
// --preset=fake.
func GetPresetByName(name string) (PresetConfig, error) {
	switch name {
	case "default":
		return DefaultPreset(), nil
	case "fake":
		return FakePreset(), nil
	case "stress":
		return StressPreset(), nil
	default:
		return PresetConfig{}, fmt.Errorf("unknown preset: %q (valid: default, fake, stress)", name)
	}
}

// ApplyPreset merges a preset into an existing preset config. Fields set
// in the preset override the corresponding values in the target, so a
// preset can be applied on top of CLI overrides without clobbering
// unrelated settings.
func ApplyPreset(target *PresetConfig, preset PresetConfig) {
	if preset.Name != "" {
		target.Name = preset.Name
	}
	if preset.EpochLength > 0 {
		target.EpochLength = preset.EpochLength
	}
	if preset.CurveUnits > 0 {
		target.CurveUnits = preset.CurveUnits
	}
	if preset.Holders > 0 {
		target.Holders = preset.Holders
	}
	if preset.Investors > 0 {
		target.Investors = preset.Investors
	}
	if preset.Epochs > 0 {
		target.Epochs = preset.Epochs
	}
	target.LogJSON = preset.LogJSON
}

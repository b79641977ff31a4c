package config

import (
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/gpas/pkg/cli"
)

func TestDefaults(t *testing.T) {
	cfg := NewConfig()
	for ft := Feature(0); ft < FeatCount; ft++ {
		be.True(t, cfg.IsFeatureEnabled(ft))
	}
	be.Equal(t, cfg.IsWarningEnabled(WarnShadow), false)
	be.True(t, cfg.IsWarningEnabled(WarnUnusedResult))
	be.True(t, cfg.IsWarningEnabled(WarnExtra))
	be.Equal(t, cfg.StringCapacity, 256)
	be.Equal(t, cfg.StdName, "default")
	be.Equal(t, cfg.FeatureMap["real-widening"], FeatRealWidening)
	be.Equal(t, cfg.WarningMap["unused-result"], WarnUnusedResult)
}

func TestApplyStd(t *testing.T) {
	cfg := NewConfig()
	be.Err(t, cfg.ApplyStd("strict"), nil)
	be.Equal(t, cfg.StdName, "strict")
	be.Equal(t, cfg.IsFeatureEnabled(FeatBoolLiterals), false)
	be.Equal(t, cfg.IsFeatureEnabled(FeatRealWidening), false)
	be.True(t, cfg.IsWarningEnabled(WarnShadow))

	be.Err(t, cfg.ApplyStd("default"), nil)
	be.True(t, cfg.IsFeatureEnabled(FeatBoolLiterals))
	be.True(t, cfg.IsFeatureEnabled(FeatRealWidening))

	be.Err(t, cfg.ApplyStd("iso"), "unsupported standard 'iso'")
}

func TestProcessFlagString(t *testing.T) {
	cfg := NewConfig()
	cfg.ProcessFlagString("-Wshadow -Wno-extra -Fno-prologue -Fbogus -Wbogus")
	be.True(t, cfg.IsWarningEnabled(WarnShadow))
	be.Equal(t, cfg.IsWarningEnabled(WarnExtra), false)
	be.Equal(t, cfg.IsFeatureEnabled(FeatPrologue), false)
	be.True(t, cfg.IsFeatureEnabled(FeatAssert))

	cfg.ProcessFlagString("-Wno-all")
	for wt := Warning(0); wt < WarnCount; wt++ {
		be.Equal(t, cfg.IsWarningEnabled(wt), false)
	}
	cfg.ProcessFlagString("-Fprologue -Wall")
	be.True(t, cfg.IsFeatureEnabled(FeatPrologue))
	be.True(t, cfg.IsWarningEnabled(WarnShadow))
}

func TestProcessFlagsAppliesAllFirst(t *testing.T) {
	cfg := NewConfig()
	given := []string{"Wshadow", "Wno-all"}
	cfg.ProcessFlags(func(fn func(name string)) {
		for _, name := range given {
			fn(name)
		}
	})
	be.True(t, cfg.IsWarningEnabled(WarnShadow))
	be.Equal(t, cfg.IsWarningEnabled(WarnUnusedResult), false)
}

func TestSetStringCapacity(t *testing.T) {
	cfg := NewConfig()
	be.Err(t, cfg.SetStringCapacity(1), "string capacity must be at least 2, got 1")
	be.Equal(t, cfg.StringCapacity, 256)
	be.Err(t, cfg.SetStringCapacity(64), nil)
	be.Equal(t, cfg.StringCapacity, 64)
}

func TestFlagGroups(t *testing.T) {
	cfg := NewConfig()
	fs := cli.NewFlagSet("gpas")
	warnings, features := cfg.SetupFlagGroups(fs)
	be.Equal(t, len(warnings), int(WarnCount)+1)
	be.Equal(t, len(features), int(FeatCount))
	be.Equal(t, warnings[WarnShadow].Name, "shadow")
	be.Equal(t, warnings[len(warnings)-1].Name, "all")
	be.Equal(t, features[FeatAssert].Default, true)
	be.Equal(t, len(fs.Groups()), 2)

	be.Err(t, fs.Parse([]string{"-Wno-all", "-Wextra", "-Fno-assert", "prog.pas"}), nil)
	cfg.ApplyFlagGroups(warnings, features)

	be.Equal(t, cfg.IsWarningEnabled(WarnShadow), false)
	be.Equal(t, cfg.IsWarningEnabled(WarnUnusedResult), false)
	be.True(t, cfg.IsWarningEnabled(WarnExtra))
	be.Equal(t, cfg.IsFeatureEnabled(FeatAssert), false)
	be.True(t, cfg.IsFeatureEnabled(FeatPrologue))
	be.Equal(t, fs.Args(), []string{"prog.pas"})
}

func TestFlagGroupsUntouched(t *testing.T) {
	cfg := NewConfig()
	fs := cli.NewFlagSet("gpas")
	warnings, features := cfg.SetupFlagGroups(fs)
	be.Err(t, fs.Parse(nil), nil)
	cfg.ApplyFlagGroups(warnings, features)
	be.Equal(t, cfg.IsWarningEnabled(WarnShadow), false)
	be.True(t, cfg.IsWarningEnabled(WarnExtra))
}

package config

import (
	"fmt"
	"strings"

	"github.com/xplshn/gpas/pkg/cli"
)

type Feature int

const (
	FeatAssert Feature = iota
	FeatBoolLiterals
	FeatRealWidening
	FeatPrologue
	FeatFallbackReturn
	FeatCount
)

type Warning int

const (
	WarnShadow Warning = iota
	WarnUnusedResult
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features       map[Feature]Info
	Warnings       map[Warning]Info
	FeatureMap     map[string]Feature
	WarningMap     map[string]Warning
	StdName        string
	StringCapacity int
	IntType        string
	RealType       string
	BoolType       string
	CharPtrType    string
}

func NewConfig() *Config {
	cfg := &Config{
		Features:       make(map[Feature]Info),
		Warnings:       make(map[Warning]Info),
		FeatureMap:     make(map[string]Feature),
		WarningMap:     make(map[string]Warning),
		StdName:        "default",
		StringCapacity: 256,
		IntType:        "int",
		RealType:       "double",
		BoolType:       "bool",
		CharPtrType:    "char*",
	}

	features := map[Feature]Info{
		FeatAssert:         {"assert", true, "Lower `assert(...)` statements into checked branches."},
		FeatBoolLiterals:   {"bool-literals", true, "Treat undeclared `true`/`false` identifiers as boolean literals."},
		FeatRealWidening:   {"real-widening", true, "Allow implicit integer to real widening."},
		FeatPrologue:       {"prologue", true, "Emit the #include prologue at the top of the translation unit."},
		FeatFallbackReturn: {"fallback-return", true, "Synthesize a zero-value return at the end of every function."},
	}

	warnings := map[Warning]Info{
		WarnShadow:       {"shadow", false, "Warn when a declaration shadows one from an enclosing scope."},
		WarnUnusedResult: {"unused-result", true, "Warn when a function result is discarded by a call statement."},
		WarnExtra:        {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// SetStringCapacity changes the fixed size of string buffers. Capacities below 2 cannot
// hold a character plus terminator and are rejected.
func (c *Config) SetStringCapacity(n int) error {
	if n < 2 {
		return fmt.Errorf("string capacity must be at least 2, got %d", n)
	}
	c.StringCapacity = n
	return nil
}

func (c *Config) ApplyStd(stdName string) error {
	type stdSettings struct {
		feature      Feature
		defaultValue bool
		strictValue  bool
	}

	settings := []stdSettings{
		{FeatBoolLiterals, true, false},
		{FeatRealWidening, true, false},
	}

	switch stdName {
	case "default", "":
		for _, s := range settings {
			c.SetFeature(s.feature, s.defaultValue)
		}
		c.StdName = "default"
	case "strict":
		for _, s := range settings {
			c.SetFeature(s.feature, s.strictValue)
		}
		c.SetWarning(WarnShadow, true)
		c.StdName = stdName
	default:
		return fmt.Errorf("unsupported standard '%s'. Supported: 'default', 'strict'", stdName)
	}
	return nil
}

func (c *Config) applyFlag(flag string) {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		name = trimmed
		isWarning = true
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, enable)
		}
		return
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
		}
	} else {
		if f, ok := c.FeatureMap[name]; ok {
			c.SetFeature(f, enable)
		}
	}
}

// ProcessFlags applies -W/-F style flags; -Wall and -Wno-all go first so that
// individual flags can override them.
func (c *Config) ProcessFlags(visitFlag func(fn func(name string))) {
	visitFlag(func(name string) {
		if name == "Wall" || name == "Wno-all" {
			c.applyFlag("-" + name)
		}
	})
	visitFlag(func(name string) {
		if name != "Wall" && name != "Wno-all" {
			c.applyFlag("-" + name)
		}
	})
}

func (c *Config) ProcessFlagString(flagStr string) {
	for _, flag := range strings.Fields(flagStr) {
		c.applyFlag(flag)
	}
}

// SetupFlagGroups registers -W<warning> and -F<feature> switches on fs. The returned
// entries are indexed by Warning and Feature; -Wall is the last warning entry.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) (warnings, features []cli.FlagGroupEntry) {
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		warnings = append(warnings, cli.FlagGroupEntry{
			Name: info.Name, Prefix: "W", Usage: info.Description, Default: info.Enabled,
			Enabled: new(bool), Disabled: new(bool),
		})
	}
	warnings = append(warnings, cli.FlagGroupEntry{
		Name: "all", Prefix: "W", Usage: "Enable every warning.", Enabled: new(bool), Disabled: new(bool),
	})
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		features = append(features, cli.FlagGroupEntry{
			Name: info.Name, Prefix: "F", Usage: info.Description, Default: info.Enabled,
			Enabled: new(bool), Disabled: new(bool),
		})
	}
	fs.AddFlagGroup("Warning Flags", "", "warning", warnings)
	fs.AddFlagGroup("Feature Flags", "", "feature", features)
	return warnings, features
}

// ApplyFlagGroups applies the switches recorded by SetupFlagGroups. -Wall and -Wno-all go
// first so individual switches override them.
func (c *Config) ApplyFlagGroups(warnings, features []cli.FlagGroupEntry) {
	if n := len(warnings); n > int(WarnCount) {
		all := warnings[n-1]
		if *all.Enabled || *all.Disabled {
			for i := Warning(0); i < WarnCount; i++ {
				c.SetWarning(i, *all.Enabled)
			}
		}
		warnings = warnings[:n-1]
	}
	for i, e := range warnings {
		if *e.Enabled {
			c.SetWarning(Warning(i), true)
		}
		if *e.Disabled {
			c.SetWarning(Warning(i), false)
		}
	}
	for i, e := range features {
		if *e.Enabled {
			c.SetFeature(Feature(i), true)
		}
		if *e.Disabled {
			c.SetFeature(Feature(i), false)
		}
	}
}

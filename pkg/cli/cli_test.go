package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

type opts struct {
	output  string
	verbose bool
	jobs    int
	include []string
}

func newTestSet() (*FlagSet, *opts) {
	o := &opts{}
	fs := NewFlagSet("gpas")
	fs.String(&o.output, "output", "o", "a.c", "Place the output into <file>", "file")
	fs.Bool(&o.verbose, "verbose", "v", false, "Log compiler phases")
	fs.Int(&o.jobs, "jobs", "j", 1, "Parallel jobs", "n")
	fs.List(&o.include, "include", "I", nil, "Extra search path", "dir")
	return fs, o
}

func TestParseDefaults(t *testing.T) {
	fs, o := newTestSet()
	be.Err(t, fs.Parse([]string{"in.pas"}), nil)
	be.Equal(t, o.output, "a.c")
	be.Equal(t, o.verbose, false)
	be.Equal(t, o.jobs, 1)
	be.Equal(t, fs.Args(), []string{"in.pas"})
}

func TestParseForms(t *testing.T) {
	fs, o := newTestSet()
	err := fs.Parse([]string{
		"--output", "x.c", "-v", "--jobs=4", "-Ia", "-I", "b", "--include=c", "one.pas", "-", "--", "-two.pas",
	})
	be.Err(t, err, nil)
	be.Equal(t, o.output, "x.c")
	be.True(t, o.verbose)
	be.Equal(t, o.jobs, 4)
	be.Equal(t, o.include, []string{"a", "b", "c"})
	be.Equal(t, fs.Args(), []string{"one.pas", "-", "-two.pas"})
}

func TestParseShorthandAttachedValue(t *testing.T) {
	fs, o := newTestSet()
	be.Err(t, fs.Parse([]string{"-oout.c", "-j=8"}), nil)
	be.Equal(t, o.output, "out.c")
	be.Equal(t, o.jobs, 8)
}

func TestParseBoolValue(t *testing.T) {
	fs, o := newTestSet()
	be.Err(t, fs.Parse([]string{"--verbose=false"}), nil)
	be.Equal(t, o.verbose, false)
	be.Err(t, fs.Parse([]string{"--verbose=maybe"}), "invalid boolean value 'maybe'")
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		args []string
		err  string
	}{
		{[]string{"--nope"}, "unknown flag: --nope"},
		{[]string{"-x"}, "unknown flag: -x"},
		{[]string{"--output"}, "flag needs an argument: --output"},
		{[]string{"-o"}, "flag needs an argument: -o"},
		{[]string{"--jobs", "many"}, "invalid integer value 'many'"},
		{[]string{"--=1"}, "empty flag name"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			fs, _ := newTestSet()
			be.Err(t, fs.Parse(tt.args), tt.err)
		})
	}
}

func TestRedefinitionPanics(t *testing.T) {
	fs, _ := newTestSet()
	defer func() { be.True(t, recover() != nil) }()
	var s string
	fs.String(&s, "output", "", "", "", "")
}

func TestFlagGroups(t *testing.T) {
	fs, _ := newTestSet()
	entries := []FlagGroupEntry{
		{Name: "shadow", Prefix: "W", Usage: "Warn on shadowing", Enabled: new(bool), Disabled: new(bool)},
		{Name: "extra", Prefix: "W", Usage: "Extra warnings", Default: true, Enabled: new(bool), Disabled: new(bool)},
	}
	fs.AddFlagGroup("Warning Flags", "", "warning", entries)

	be.Err(t, fs.Parse([]string{"-Wshadow", "-Wno-extra", "in.pas"}), nil)
	be.True(t, *entries[0].Enabled)
	be.Equal(t, *entries[0].Disabled, false)
	be.True(t, *entries[1].Disabled)
	be.Equal(t, fs.Args(), []string{"in.pas"})
	be.Equal(t, len(fs.Groups()), 1)
	be.True(t, fs.Lookup("Wno-shadow") != nil)
}

func TestHelpPage(t *testing.T) {
	fs, _ := newTestSet()
	fs.AddFlagGroup("Warning Flags", "", "warning", []FlagGroupEntry{
		{Name: "shadow", Prefix: "W", Usage: "Warn on shadowing", Enabled: new(bool), Disabled: new(bool)},
		{Name: "extra", Prefix: "W", Usage: "Extra warnings", Default: true, Enabled: new(bool), Disabled: new(bool)},
	})
	app := &App{
		Name: "gpas", Synopsis: "[options] <input.pas>", Description: "Compiles a program to C.",
		Authors: []string{"xplshn"}, FlagSet: fs, Width: 100,
	}
	page := app.HelpPage()

	for _, want := range []string{
		"Synopsis", "gpas [options] <input.pas>", "Compiles a program to C.",
		"-o, --output <file>", "|a.c|", "-j, --jobs <n>", "-v, --verbose",
		"Warning Flags", "-W<warning>", "-Wno-<warning>", "Authors: xplshn",
	} {
		be.True(t, strings.Contains(page, want))
	}
	// Group switches are listed under their group, not as options.
	be.Equal(t, strings.Contains(page, "--Wshadow"), false)

	lines := strings.Split(page, "\n")
	var extra, shadow string
	for _, l := range lines {
		if strings.Contains(l, "Extra warnings") {
			extra = l
		}
		if strings.Contains(l, "Warn on shadowing") {
			shadow = l
		}
	}
	be.True(t, strings.HasSuffix(extra, "|x|"))
	be.True(t, strings.HasSuffix(shadow, "|-|"))
	// Entries are sorted by name.
	be.True(t, strings.Index(page, "Extra warnings") < strings.Index(page, "Warn on shadowing"))
}

func TestRun(t *testing.T) {
	var got []string
	var stdout, stderr bytes.Buffer
	app := NewApp("gpas")
	app.Stdout, app.Stderr, app.Width = &stdout, &stderr, 80
	app.Synopsis = "<input.pas>"
	app.Action = func(args []string) error { got = args; return nil }

	be.Err(t, app.Run([]string{"a.pas"}), nil)
	be.Equal(t, got, []string{"a.pas"})
}

func TestRunHelp(t *testing.T) {
	var stdout bytes.Buffer
	app := NewApp("gpas")
	app.Stdout, app.Width = &stdout, 80
	app.Action = func([]string) error { t.Fatal("action must not run"); return nil }

	be.Err(t, app.Run([]string{"-h"}), nil)
	be.True(t, strings.Contains(stdout.String(), "--help"))
}

func TestRunParseError(t *testing.T) {
	var stderr bytes.Buffer
	app := NewApp("gpas")
	app.Stderr = &stderr
	app.Synopsis = "<input.pas>"

	be.Err(t, app.Run([]string{"--bogus"}), "unknown flag: --bogus")
	be.True(t, strings.Contains(stderr.String(), "Usage: gpas <input.pas>"))
}

func TestWrapText(t *testing.T) {
	be.Equal(t, wrapText("one two three four", 9), []string{"one two", "three", "four"})
	be.Equal(t, wrapText("", 9), []string(nil))
	be.Equal(t, wrapText("unbroken", 0), []string{"unbroken"})
}

package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/term"
)

type Value interface {
	String() string
	Set(string) error
	Get() any
}

type stringValue struct{ p *string }

func (v *stringValue) Set(s string) error { *v.p = s; return nil }
func (v *stringValue) String() string     { return *v.p }
func (v *stringValue) Get() any           { return *v.p }

type boolValue struct{ p *bool }

// Set accepts an empty string as true so that a bare --flag enables it.
func (v *boolValue) Set(s string) error {
	if s == "" {
		*v.p = true
		return nil
	}
	val, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean value '%s': %w", s, err)
	}
	*v.p = val
	return nil
}
func (v *boolValue) String() string { return strconv.FormatBool(*v.p) }
func (v *boolValue) Get() any       { return *v.p }

type intValue struct{ p *int }

func (v *intValue) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer value '%s': %w", s, err)
	}
	*v.p = n
	return nil
}
func (v *intValue) String() string { return strconv.Itoa(*v.p) }
func (v *intValue) Get() any       { return *v.p }

type listValue struct{ p *[]string }

func (v *listValue) Set(s string) error { *v.p = append(*v.p, s); return nil }
func (v *listValue) String() string     { return strings.Join(*v.p, ", ") }
func (v *listValue) Get() any           { return *v.p }

type Flag struct {
	Name         string
	Shorthand    string
	Usage        string
	Value        Value
	DefValue     string
	ExpectedType string
}

func (f *Flag) isBool() bool { _, ok := f.Value.(*boolValue); return ok }

// FlagGroup is a family of -<prefix><name> / -<prefix>no-<name> switches such as -Wshadow.
type FlagGroup struct {
	Name        string
	Description string
	GroupType   string
	Flags       []FlagGroupEntry
}

// FlagGroupEntry points Enabled and Disabled at bools that record whether the switch was
// given; Default is only shown in help.
type FlagGroupEntry struct {
	Name     string
	Prefix   string
	Usage    string
	Default  bool
	Enabled  *bool
	Disabled *bool
}

type FlagSet struct {
	name       string
	flags      map[string]*Flag
	shorthands map[string]*Flag
	order      []string
	args       []string
	groups     []FlagGroup
}

func NewFlagSet(name string) *FlagSet {
	return &FlagSet{name: name, flags: make(map[string]*Flag), shorthands: make(map[string]*Flag)}
}

func (f *FlagSet) Args() []string          { return f.args }
func (f *FlagSet) Lookup(name string) *Flag { return f.flags[name] }
func (f *FlagSet) Groups() []FlagGroup      { return f.groups }

func (f *FlagSet) String(p *string, name, shorthand, value, usage, expectedType string) {
	*p = value
	f.Var(&stringValue{p}, name, shorthand, usage, value, expectedType)
}

func (f *FlagSet) Bool(p *bool, name, shorthand string, value bool, usage string) {
	*p = value
	f.Var(&boolValue{p}, name, shorthand, usage, strconv.FormatBool(value), "")
}

func (f *FlagSet) Int(p *int, name, shorthand string, value int, usage, expectedType string) {
	*p = value
	f.Var(&intValue{p}, name, shorthand, usage, strconv.Itoa(value), expectedType)
}

func (f *FlagSet) List(p *[]string, name, shorthand string, value []string, usage, expectedType string) {
	*p = value
	f.Var(&listValue{p}, name, shorthand, usage, strings.Join(value, ","), expectedType)
}

// Var registers a flag. Redefining a name or shorthand is a programming error.
func (f *FlagSet) Var(value Value, name, shorthand, usage, defValue, expectedType string) {
	if name == "" {
		panic("flag name cannot be empty")
	}
	if _, ok := f.flags[name]; ok {
		panic(fmt.Sprintf("flag redefined: %s", name))
	}
	flag := &Flag{Name: name, Shorthand: shorthand, Usage: usage, Value: value, DefValue: defValue, ExpectedType: expectedType}
	f.flags[name] = flag
	f.order = append(f.order, name)
	if shorthand == "" {
		return
	}
	if _, ok := f.shorthands[shorthand]; ok {
		panic(fmt.Sprintf("shorthand flag redefined: %s", shorthand))
	}
	f.shorthands[shorthand] = flag
}

// AddFlagGroup defines an enable and a disable switch for every entry.
func (f *FlagSet) AddFlagGroup(name, description, groupType string, entries []FlagGroupEntry) {
	for _, e := range entries {
		if e.Enabled != nil {
			f.Bool(e.Enabled, e.Prefix+e.Name, "", false, e.Usage)
		}
		if e.Disabled != nil {
			f.Bool(e.Disabled, e.Prefix+"no-"+e.Name, "", false, "Disable '"+e.Name+"'")
		}
	}
	f.groups = append(f.groups, FlagGroup{Name: name, Description: description, GroupType: groupType, Flags: entries})
}

// Parse consumes arguments. Single-dash names are tried as whole flags first (-Wshadow),
// then as a shorthand with an attached or following value (-o out.c, -oout.c).
func (f *FlagSet) Parse(arguments []string) error {
	f.args = nil
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		switch {
		case arg == "--":
			f.args = append(f.args, arguments[i+1:]...)
			return nil
		case len(arg) < 2 || arg[0] != '-':
			f.args = append(f.args, arg)
		case strings.HasPrefix(arg, "--"):
			if err := f.parseNamed(arg[2:], "--", arguments, &i); err != nil {
				return err
			}
		default:
			name, _, _ := strings.Cut(arg[1:], "=")
			if _, ok := f.flags[name]; ok {
				if err := f.parseNamed(arg[1:], "-", arguments, &i); err != nil {
					return err
				}
				continue
			}
			if err := f.parseShort(arg, arguments, &i); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *FlagSet) parseNamed(spec, dashes string, arguments []string, i *int) error {
	name, value, hasValue := strings.Cut(spec, "=")
	if name == "" {
		return fmt.Errorf("empty flag name")
	}
	flag, ok := f.flags[name]
	if !ok {
		return fmt.Errorf("unknown flag: %s%s", dashes, name)
	}
	if hasValue {
		return flag.Value.Set(value)
	}
	if flag.isBool() {
		return flag.Value.Set("")
	}
	if *i+1 >= len(arguments) {
		return fmt.Errorf("flag needs an argument: %s%s", dashes, name)
	}
	*i++
	return flag.Value.Set(arguments[*i])
}

func (f *FlagSet) parseShort(arg string, arguments []string, i *int) error {
	shorthand := arg[1:2]
	flag, ok := f.shorthands[shorthand]
	if !ok {
		return fmt.Errorf("unknown flag: %s", arg)
	}
	if flag.isBool() {
		return flag.Value.Set("")
	}
	value := strings.TrimPrefix(arg[2:], "=")
	if value == "" {
		if *i+1 >= len(arguments) {
			return fmt.Errorf("flag needs an argument: -%s", shorthand)
		}
		*i++
		value = arguments[*i]
	}
	return flag.Value.Set(value)
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	Authors     []string
	Repository  string
	FlagSet     *FlagSet
	Action      func(args []string) error
	Stdout      io.Writer
	Stderr      io.Writer
	Width       int // help text width; 0 asks the terminal
}

func NewApp(name string) *App {
	return &App{Name: name, FlagSet: NewFlagSet(name), Stdout: os.Stdout, Stderr: os.Stderr}
}

func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintln(a.Stderr, err)
		fmt.Fprintf(a.Stderr, "Usage: %s %s\nRun '%s --help' for all available options.\n", a.Name, a.Synopsis, a.Name)
		return err
	}
	if help {
		fmt.Fprint(a.Stdout, a.HelpPage())
		return nil
	}
	if a.Action != nil {
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

func (a *App) width() int {
	if a.Width > 0 {
		return a.Width
	}
	return terminalWidth()
}

// HelpPage renders options and flag groups in two aligned columns wrapped to the width.
func (a *App) HelpPage() string {
	var sb strings.Builder
	width := a.width()

	if a.Synopsis != "" {
		fmt.Fprintf(&sb, "\n    Synopsis\n        %s %s\n", a.Name, a.Synopsis)
	}
	if a.Description != "" {
		sb.WriteString("\n    Description\n")
		for _, line := range wrapText(a.Description, width-8) {
			fmt.Fprintf(&sb, "        %s\n", line)
		}
	}

	type row struct{ left, usage, right string }
	var options []row
	for _, name := range a.FlagSet.order {
		flag := a.FlagSet.flags[name]
		if a.isGroupFlag(name) {
			continue
		}
		right := ""
		if !flag.isBool() && flag.DefValue != "" {
			right = "|" + flag.DefValue + "|"
		}
		options = append(options, row{formatFlag(flag), flag.Usage, right})
	}
	sort.Slice(options, func(i, j int) bool { return options[i].left < options[j].left })

	leftWidth := 0
	for _, r := range options {
		leftWidth = max(leftWidth, len(r.left))
	}
	for _, g := range a.FlagSet.groups {
		leftWidth = max(leftWidth, len(groupSwitch(g, true)))
	}

	writeRow := func(r row) {
		usageWidth := max(width-8-leftWidth-1-len(r.right)-2, 10)
		lines := wrapText(r.usage, usageWidth)
		if len(lines) == 0 {
			lines = []string{""}
		}
		if r.right != "" {
			fmt.Fprintf(&sb, "        %-*s %-*s  %s\n", leftWidth, r.left, usageWidth, lines[0], r.right)
		} else {
			fmt.Fprintf(&sb, "        %-*s %s\n", leftWidth, r.left, lines[0])
		}
		for _, l := range lines[1:] {
			fmt.Fprintf(&sb, "        %s %s\n", strings.Repeat(" ", leftWidth), l)
		}
	}

	if len(options) > 0 {
		sb.WriteString("\n    Options\n")
		for _, r := range options {
			writeRow(r)
		}
	}

	for _, g := range a.FlagSet.groups {
		fmt.Fprintf(&sb, "\n    %s\n", g.Name)
		if g.Description != "" {
			fmt.Fprintf(&sb, "        %s\n", g.Description)
		}
		writeRow(row{groupSwitch(g, false), "Enable a specific " + g.GroupType, ""})
		writeRow(row{groupSwitch(g, true), "Disable a specific " + g.GroupType, ""})
		entries := append([]FlagGroupEntry(nil), g.Flags...)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		for _, e := range entries {
			state := "|-|"
			if e.Default {
				state = "|x|"
			}
			writeRow(row{e.Name, e.Usage, state})
		}
	}

	if len(a.Authors) > 0 || a.Repository != "" {
		sb.WriteString("\n")
		if len(a.Authors) > 0 {
			fmt.Fprintf(&sb, "    Authors: %s\n", strings.Join(a.Authors, ", "))
		}
		if a.Repository != "" {
			fmt.Fprintf(&sb, "    See %s\n", a.Repository)
		}
	}
	return sb.String()
}

func (a *App) isGroupFlag(name string) bool {
	for _, g := range a.FlagSet.groups {
		for _, e := range g.Flags {
			if name == e.Prefix+e.Name || name == e.Prefix+"no-"+e.Name {
				return true
			}
		}
	}
	return false
}

func groupSwitch(g FlagGroup, negated bool) string {
	prefix := ""
	if len(g.Flags) > 0 {
		prefix = g.Flags[0].Prefix
	}
	if negated {
		return fmt.Sprintf("-%sno-<%s>", prefix, g.GroupType)
	}
	return fmt.Sprintf("-%s<%s>", prefix, g.GroupType)
}

func formatFlag(flag *Flag) string {
	var sb strings.Builder
	if flag.Shorthand != "" {
		fmt.Fprintf(&sb, "-%s, ", flag.Shorthand)
	}
	fmt.Fprintf(&sb, "--%s", flag.Name)
	if !flag.isBool() && flag.ExpectedType != "" {
		fmt.Fprintf(&sb, " <%s>", flag.ExpectedType)
	}
	return sb.String()
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return max(width, 20)
}

func wrapText(text string, maxWidth int) []string {
	words := strings.Fields(text)
	if maxWidth <= 0 || len(words) == 0 {
		if len(words) == 0 {
			return nil
		}
		return []string{text}
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) > maxWidth {
			lines = append(lines, line)
			line = w
			continue
		}
		line += " " + w
	}
	return append(lines, line)
}

// Package compiler runs the lex, parse and generate phases over one source file.
package compiler

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/xplshn/gpas/pkg/ast"
	"github.com/xplshn/gpas/pkg/codegen"
	"github.com/xplshn/gpas/pkg/config"
	"github.com/xplshn/gpas/pkg/ir"
	"github.com/xplshn/gpas/pkg/lexer"
	"github.com/xplshn/gpas/pkg/parser"
	"github.com/xplshn/gpas/pkg/util"
)

// Result is everything one compilation produced. Unit is nil when parsing failed, since
// generating from a broken tree only adds follow-on errors.
type Result struct {
	Root     *ast.Node
	Unit     *ir.Unit
	Reporter *util.Reporter
	Phases   []Phase
}

type Phase struct {
	Name     string
	Duration time.Duration
}

func (r *Result) OK() bool { return !r.Reporter.HasErrors() }

// Options tweak a run. Log receives one line per phase when non-nil.
type Options struct {
	Log io.Writer
	// GenerateOnSyntaxError keeps going after syntax errors.
	GenerateOnSyntaxError bool
}

func (o Options) logf(format string, args ...interface{}) {
	if o.Log != nil {
		fmt.Fprintf(o.Log, format+"\n", args...)
	}
}

// Compile lexes, parses and lowers src. Diagnostics land in the result's reporter.
func Compile(name string, src []byte, cfg *config.Config, opts Options) *Result {
	rep := util.NewReporter(cfg)
	content := []rune(string(src))
	rep.SetSourceFiles([]util.SourceFileRecord{{Name: name, Content: content}})
	res := &Result{Reporter: rep}

	timed := func(phase string, fn func()) {
		opts.logf("%s...", phase)
		start := time.Now()
		fn()
		res.Phases = append(res.Phases, Phase{Name: phase, Duration: time.Since(start)})
	}

	timed("Parsing", func() {
		p := parser.NewParser(lexer.NewLexer(content, 0, cfg, rep), rep)
		res.Root = p.Parse()
	})
	if rep.HasErrors() && !opts.GenerateOnSyntaxError {
		return res
	}

	timed("Generating C", func() {
		res.Unit = codegen.Generate(res.Root, cfg, rep)
	})
	return res
}

// CompileFile reads path and compiles it.
func CompileFile(path string, cfg *config.Config, opts Options) (*Result, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read file '%s': %w", path, err)
	}
	return Compile(path, src, cfg, opts), nil
}

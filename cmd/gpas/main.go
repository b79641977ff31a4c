package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goforj/godump"
	"github.com/xplshn/gpas/pkg/cli"
	"github.com/xplshn/gpas/pkg/codegen"
	"github.com/xplshn/gpas/pkg/compiler"
	"github.com/xplshn/gpas/pkg/config"
	"github.com/xplshn/gpas/pkg/lexer"
	"github.com/xplshn/gpas/pkg/token"
	"github.com/xplshn/gpas/pkg/util"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// errCompile marks a run that already printed its diagnostics.
var errCompile = errors.New("compilation failed")

func run(args []string, stdout, stderr io.Writer) int {
	app := cli.NewApp("gpas")
	app.Synopsis = "[options] <input.pas>"
	app.Description = "Translates a small Pascal-like language into C. Every heap buffer the program allocates is freed on every path."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/gpas>"
	app.Stdout, app.Stderr = stdout, stderr

	var (
		outFile     string
		emit        string
		std         string
		capacity    int
		verbose     bool
		dumpAST     bool
		dumpTokens  bool
		keepInvalid bool
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Place the output into <file> (default: <input>.c, '-' for stdout).", "file")
	fs.String(&emit, "emit", "e", "c", "Select the output: compilable C or an annotated statement listing (c, ir).", "backend")
	fs.String(&std, "std", "", "default", "Specify language standard (default, strict)", "std")
	fs.Int(&capacity, "string-capacity", "", 256, "Size in bytes of every string buffer.", "bytes")
	fs.Bool(&verbose, "verbose", "v", false, "Print each compilation phase.")
	fs.Bool(&dumpAST, "dump-ast", "", false, "Dump the syntax tree and exit.")
	fs.Bool(&dumpTokens, "dump-tokens", "", false, "Dump the token stream and exit.")
	fs.Bool(&keepInvalid, "keep-invalid", "", false, "Write the output even when errors were reported.")

	cfg := config.NewConfig()
	warningFlags, featureFlags := cfg.SetupFlagGroups(fs)

	app.Action = func(inputs []string) error {
		if err := cfg.ApplyStd(std); err != nil {
			fmt.Fprintf(stderr, "gpas: %v\n", err)
			return err
		}
		cfg.ApplyFlagGroups(warningFlags, featureFlags)
		if err := cfg.SetStringCapacity(capacity); err != nil {
			fmt.Fprintf(stderr, "gpas: %v\n", err)
			return err
		}

		backend, err := codegen.NewBackend(emit)
		if err != nil {
			fmt.Fprintf(stderr, "gpas: %v\n", err)
			return err
		}

		if len(inputs) != 1 {
			err := fmt.Errorf("expected exactly one input file, got %d", len(inputs))
			fmt.Fprintf(stderr, "gpas: %v\n", err)
			return err
		}
		input := inputs[0]

		if dumpTokens {
			return dumpTokenStream(input, cfg, stdout, stderr)
		}

		opts := compiler.Options{}
		if verbose {
			opts.Log = stdout
			fmt.Fprintln(stdout, "----------------------")
		}
		res, err := compiler.CompileFile(input, cfg, opts)
		if err != nil {
			fmt.Fprintf(stderr, "gpas: %v\n", err)
			return err
		}

		if dumpAST {
			fmt.Fprintln(stdout, godump.DumpStr(res.Root))
			res.Reporter.Print(stderr)
			return nil
		}

		res.Reporter.Print(stderr)
		if res.Unit == nil || (!res.OK() && !keepInvalid) {
			return errCompile
		}

		out, err := backend.Generate(res.Unit, cfg)
		if err != nil {
			fmt.Fprintf(stderr, "gpas: %v\n", err)
			return err
		}
		if outFile == "" {
			ext := ".c"
			if strings.EqualFold(emit, "ir") {
				ext = ".ir"
			}
			outFile = strings.TrimSuffix(input, filepath.Ext(input)) + ext
		}
		if err := writeOutput(outFile, out.String(), stdout); err != nil {
			fmt.Fprintf(stderr, "gpas: %v\n", err)
			return err
		}
		if verbose {
			for _, ph := range res.Phases {
				fmt.Fprintf(stdout, "%-14s %v\n", ph.Name, ph.Duration)
			}
			fmt.Fprintf(stdout, "Wrote '%s'\n", outFile)
			fmt.Fprintln(stdout, "----------------------")
		}
		if !res.OK() {
			return errCompile
		}
		return nil
	}

	if err := app.Run(args); err != nil {
		return 1
	}
	return 0
}

func writeOutput(path, text string, stdout io.Writer) error {
	if path == "-" {
		_, err := io.WriteString(stdout, text)
		return err
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("could not write '%s': %w", path, err)
	}
	return nil
}

func dumpTokenStream(path string, cfg *config.Config, stdout, stderr io.Writer) error {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "gpas: could not read file '%s': %v\n", path, err)
		return err
	}
	content := []rune(string(src))
	rep := util.NewReporter(cfg)
	rep.SetSourceFiles([]util.SourceFileRecord{{Name: path, Content: content}})
	for _, tok := range lexer.NewLexer(content, 0, cfg, rep).Tokenize() {
		fmt.Fprintf(stdout, "%d:%d\t%s", tok.Line, tok.Column, tok.Type)
		if tok.Value != "" {
			fmt.Fprintf(stdout, "\t%q", tok.Value)
		}
		fmt.Fprintln(stdout)
		if tok.Type == token.EOF {
			break
		}
	}
	rep.Print(stderr)
	if rep.HasErrors() {
		return errCompile
	}
	return nil
}

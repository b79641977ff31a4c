package util

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/xplshn/gpas/pkg/config"
	"github.com/xplshn/gpas/pkg/token"
)

type Category int

const (
	Lexical Category = iota
	Syntax
	Semantic
)

func (c Category) String() string {
	switch c {
	case Lexical: return "lexical"
	case Syntax: return "syntax"
	case Semantic: return "semantic"
	}
	return "unknown"
}

type Severity int

const (
	SevError Severity = iota
	SevWarning
)

// Diagnostic is one positioned compiler message.
type Diagnostic struct {
	Category Category
	Severity Severity
	Tok      token.Token
	Message  string
	Warning  config.Warning
}

func (d Diagnostic) Line() int   { return d.Tok.Line }
func (d Diagnostic) Column() int { return d.Tok.Column }

func (d Diagnostic) Error() string {
	kind := "error"
	if d.Severity == SevWarning {
		kind = "warning"
	}
	return fmt.Sprintf("%d:%d: %s %s: %s", d.Tok.Line, d.Tok.Column, d.Category, kind, d.Message)
}

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

type diagKey struct {
	line, col int
	msg       string
}

// Reporter collects diagnostics for one compilation. Identical messages at the same
// position are reported once.
type Reporter struct {
	cfg   *config.Config
	diags []Diagnostic
	seen  map[diagKey]bool
	files []SourceFileRecord
}

func NewReporter(cfg *config.Config) *Reporter {
	return &Reporter{cfg: cfg, seen: make(map[diagKey]bool)}
}

// SetSourceFiles stores the source code for all input files for rich error messages
func (r *Reporter) SetSourceFiles(files []SourceFileRecord) { r.files = files }

func (r *Reporter) add(d Diagnostic) {
	key := diagKey{d.Tok.Line, d.Tok.Column, d.Message}
	if r.seen[key] {
		return
	}
	r.seen[key] = true
	r.diags = append(r.diags, d)
}

func (r *Reporter) Error(cat Category, tok token.Token, format string, args ...interface{}) {
	r.add(Diagnostic{Category: cat, Severity: SevError, Tok: tok, Message: fmt.Sprintf(format, args...)})
}

// Warn records a warning if the corresponding warning is enabled
func (r *Reporter) Warn(wt config.Warning, tok token.Token, format string, args ...interface{}) {
	if r.cfg != nil && !r.cfg.IsWarningEnabled(wt) {
		return
	}
	r.add(Diagnostic{Category: Semantic, Severity: SevWarning, Tok: tok, Message: fmt.Sprintf(format, args...), Warning: wt})
}

func (r *Reporter) All() []Diagnostic { return r.diags }

// Sorted returns the diagnostics ordered by position; report order breaks ties.
func (r *Reporter) Sorted() []Diagnostic {
	out := make([]Diagnostic, len(r.diags))
	copy(out, r.diags)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Tok, out[j].Tok
		if a.FileIndex != b.FileIndex {
			return a.FileIndex < b.FileIndex
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
	return out
}

func (r *Reporter) Errors() []Diagnostic {
	var errs []Diagnostic
	for _, d := range r.diags {
		if d.Severity == SevError {
			errs = append(errs, d)
		}
	}
	return errs
}

func (r *Reporter) Warnings() []Diagnostic {
	var warns []Diagnostic
	for _, d := range r.diags {
		if d.Severity == SevWarning {
			warns = append(warns, d)
		}
	}
	return warns
}

func (r *Reporter) HasErrors() bool { return len(r.Errors()) > 0 }
func (r *Reporter) ErrorCount() int { return len(r.Errors()) }

// findFileAndLine converts a global token to a file-specific location
func (r *Reporter) findFileAndLine(tok token.Token) (filename string, line, col int) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(r.files) {
		return "unknown", tok.Line, tok.Column
	}
	return r.files[tok.FileIndex].Name, tok.Line, tok.Column
}

// printErrorLine prints the source line and a caret indicating the error position
func (r *Reporter) printErrorLine(w io.Writer, tok token.Token, color bool) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(r.files) || tok.Line == 0 {
		return
	}

	content := r.files[tok.FileIndex].Content
	lineNum := tok.Line
	lineStart := 0
	// Find the start of the error line
	for i, ch := range content {
		if lineNum <= 1 {
			break
		}
		if ch == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}

	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}

	fmt.Fprintf(w, "  %s\n", string(content[lineStart:lineEnd]))

	pad := ""
	if tok.Column > 1 {
		pad = strings.Repeat(" ", tok.Column-1)
	}
	caret := "^"
	if tok.Len > 1 {
		caret += strings.Repeat("~", tok.Len-1)
	}
	if color {
		fmt.Fprintf(w, "  %s\033[32m%s\033[0m\n", pad, caret)
	} else {
		fmt.Fprintf(w, "  %s%s\n", pad, caret)
	}
}

// Print renders every diagnostic in report order.
func (r *Reporter) Print(w io.Writer) {
	color := isTerminal(w)
	for _, d := range r.diags {
		filename, line, col := r.findFileAndLine(d.Tok)
		label, code := "error:", "\033[31m"
		if d.Severity == SevWarning {
			label, code = "warning:", "\033[33m"
		}
		if color {
			fmt.Fprintf(w, "%s:%d:%d: %s%s\033[0m %s", filename, line, col, code, label, d.Message)
		} else {
			fmt.Fprintf(w, "%s:%d:%d: %s %s", filename, line, col, label, d.Message)
		}
		if d.Severity == SevWarning && r.cfg != nil {
			fmt.Fprintf(w, " [-W%s]", r.cfg.Warnings[d.Warning].Name)
		} else if d.Severity == SevError {
			fmt.Fprintf(w, " [%s]", d.Category)
		}
		fmt.Fprintln(w)
		r.printErrorLine(w, d.Tok, color)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

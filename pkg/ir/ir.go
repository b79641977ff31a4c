package ir

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

type Kind int

const (
	Prologue Kind = iota
	Proto
	FuncBegin
	FuncEnd
	BlockBegin
	BlockEnd
	Decl
	Alloc
	Assign
	Free
	Label
	Jump
	Branch
	Call
	Return
	Abort
	IO
)

func (k Kind) String() string {
	switch k {
	case Prologue: return "prologue"
	case Proto: return "proto"
	case FuncBegin: return "func-begin"
	case FuncEnd: return "func-end"
	case BlockBegin: return "block-begin"
	case BlockEnd: return "block-end"
	case Decl: return "decl"
	case Alloc: return "alloc"
	case Assign: return "assign"
	case Free: return "free"
	case Label: return "label"
	case Jump: return "jump"
	case Branch: return "branch"
	case Call: return "call"
	case Return: return "return"
	case Abort: return "abort"
	case IO: return "io"
	}
	return "unknown"
}

// Stmt is one line of target code. Depth is the brace nesting used for indentation.
type Stmt struct {
	Kind  Kind
	Text  string
	Depth int
}

// Unit is an ordered translation unit.
type Unit struct {
	Stmts []Stmt
}

func (u *Unit) Append(kind Kind, depth int, text string) {
	u.Stmts = append(u.Stmts, Stmt{Kind: kind, Text: text, Depth: depth})
}

// Lines renders every statement with four spaces of indentation per depth. Labels are
// dedented one level.
func (u *Unit) Lines() []string {
	lines := make([]string, 0, len(u.Stmts))
	for _, s := range u.Stmts {
		depth := s.Depth
		if s.Kind == Label && depth > 0 {
			depth--
		}
		lines = append(lines, strings.Repeat("    ", depth)+s.Text)
	}
	return lines
}

func (u *Unit) String() string {
	return strings.Join(u.Lines(), "\n") + "\n"
}

// Texts returns the bare statement texts of the given kinds, or of all statements when
// no kind is given.
func (u *Unit) Texts(kinds ...Kind) []string {
	var out []string
	for _, s := range u.Stmts {
		if len(kinds) == 0 || hasKind(kinds, s.Kind) {
			out = append(out, s.Text)
		}
	}
	return out
}

func hasKind(kinds []Kind, k Kind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

func (u *Unit) Count(kind Kind) int {
	n := 0
	for _, s := range u.Stmts {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// Fingerprint hashes the statement list, excluding the prologue, so it can be embedded
// in the prologue itself.
func (u *Unit) Fingerprint() uint64 {
	d := xxhash.New()
	for _, s := range u.Stmts {
		if s.Kind == Prologue {
			continue
		}
		d.WriteString(s.Text)
		d.WriteString("\n")
	}
	return d.Sum64()
}

// Package symtab implements the scoped symbol environment shared by the type evaluator
// and the code emitter.
package symtab

import (
	"errors"
	"fmt"

	"github.com/xplshn/gpas/pkg/ast"
)

var (
	ErrRedeclared = errors.New("redeclared")
	ErrUndeclared = errors.New("undeclared identifier")
)

type Kind int

const (
	Variable Kind = iota
	Function
	Procedure
)

func (k Kind) String() string {
	switch k {
	case Variable: return "variable"
	case Function: return "function"
	case Procedure: return "procedure"
	}
	return "symbol"
}

type Param struct {
	Name  string
	Type  *ast.Type
	ByRef bool
}

type Symbol struct {
	Name     string
	Kind     Kind
	Type     *ast.Type // Return type for functions, ast.TypeVoid for procedures
	Depth    int
	Target   string // Emitted identifier
	SizeName string // Emitted element-count shadow, arrays only
	Indirect bool
	Params   []Param
	// Synthetic symbols are temporaries and size shadows; user lookups never see them.
	Synthetic bool
	// Const symbols stand for a literal spelled in place; Target holds its text.
	Const bool
	Next  *Symbol
}

func (s *Symbol) IsCallable() bool { return s.Kind != Variable }

func (s *Symbol) ParamTypes() []*ast.Type {
	types := make([]*ast.Type, len(s.Params))
	for i, p := range s.Params {
		types[i] = p.Type
	}
	return types
}

// Signature renders a callable as name(type, var type): ret.
func (s *Symbol) Signature() string {
	sig := s.Name + "("
	for i, p := range s.Params {
		if i > 0 {
			sig += ", "
		}
		if p.ByRef {
			sig += "var "
		}
		sig += ast.TypeToString(p.Type)
	}
	sig += ")"
	if s.Kind == Function {
		sig += ": " + ast.TypeToString(s.Type)
	}
	return sig
}

type Scope struct {
	Symbols *Symbol
	Parent  *Scope
	Depth   int
}

// Env is a stack of scopes. Depth 0 is the outermost scope and is never exited.
type Env struct {
	current *Scope
}

func New() *Env { return &Env{current: &Scope{}} }

func (e *Env) Depth() int { return e.current.Depth }

func (e *Env) Enter() {
	e.current = &Scope{Parent: e.current, Depth: e.current.Depth + 1}
}

// Exit drops every symbol of the current depth.
func (e *Env) Exit() {
	if e.current.Parent != nil {
		e.current = e.current.Parent
	}
}

// Declare inserts sym at the current depth; (name, kind) must be unique per depth.
// Variables also get their emitted identifier registered as a synthetic alias.
func (e *Env) Declare(sym *Symbol) error {
	sym.Depth = e.current.Depth
	if !sym.Synthetic {
		for s := e.current.Symbols; s != nil; s = s.Next {
			if s.Synthetic || s.Name != sym.Name {
				continue
			}
			if s.Kind == sym.Kind {
				return fmt.Errorf("%w: '%s' is already declared in this scope", ErrRedeclared, sym.Name)
			}
		}
	}
	sym.Next = e.current.Symbols
	e.current.Symbols = sym

	if sym.Kind == Variable && sym.Target != "" && sym.Target != sym.Name {
		alias := *sym
		alias.Name, alias.Synthetic = sym.Target, true
		alias.Next = e.current.Symbols
		e.current.Symbols = &alias
	}
	return nil
}

// Shadows returns the visible symbol of an enclosing depth that name would hide.
func (e *Env) Shadows(name string) *Symbol {
	for s := e.current.Parent; s != nil; s = s.Parent {
		for sym := s.Symbols; sym != nil; sym = sym.Next {
			if !sym.Synthetic && sym.Kind == Variable && sym.Name == name {
				return sym
			}
		}
	}
	return nil
}

func (e *Env) find(name string, synthetic bool, accept func(*Symbol) bool) *Symbol {
	for s := e.current; s != nil; s = s.Parent {
		for sym := s.Symbols; sym != nil; sym = sym.Next {
			if sym.Name == name && sym.Synthetic == synthetic && accept(sym) {
				return sym
			}
		}
	}
	return nil
}

// Lookup returns the variable visible at the highest depth.
func (e *Env) Lookup(name string) (*Symbol, error) {
	if sym := e.find(name, false, func(s *Symbol) bool { return s.Kind == Variable }); sym != nil {
		return sym, nil
	}
	return nil, fmt.Errorf("%w '%s'", ErrUndeclared, name)
}

// LookupAny returns the innermost user symbol of any kind.
func (e *Env) LookupAny(name string) *Symbol {
	return e.find(name, false, func(*Symbol) bool { return true })
}

// LookupTarget resolves an emitted identifier (v_x, tmp_3, size_x) to its symbol.
func (e *Env) LookupTarget(target string) *Symbol {
	return e.find(target, true, func(*Symbol) bool { return true })
}

func (e *Env) callables(name string) []*Symbol {
	var found []*Symbol
	seen := make(map[Kind]bool)
	for s := e.current; s != nil; s = s.Parent {
		for sym := s.Symbols; sym != nil; sym = sym.Next {
			if sym.Synthetic || !sym.IsCallable() || sym.Name != name || seen[sym.Kind] {
				continue
			}
			seen[sym.Kind] = true
			found = append(found, sym)
		}
	}
	return found
}

// LookupCallable resolves name against the argument types. When no candidate matches
// exactly, the candidate with the fewest mismatches is returned along with an error, so
// analysis can continue with its return type. Ties go to the first candidate found.
func (e *Env) LookupCallable(name string, argTypes []*ast.Type, accepts func(p Param, arg *ast.Type) bool) (*Symbol, error) {
	candidates := e.callables(name)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w '%s'", ErrUndeclared, name)
	}

	var best *Symbol
	bestScore := -1
	for _, c := range candidates {
		score := mismatches(c, argTypes, accepts)
		if score == 0 {
			return c, nil
		}
		if best == nil || score < bestScore {
			best, bestScore = c, score
		}
	}
	return best, fmt.Errorf("wrong arguments in call to '%s', expected %s", name, best.Signature())
}

func mismatches(c *Symbol, argTypes []*ast.Type, accepts func(p Param, arg *ast.Type) bool) int {
	n := len(c.Params)
	if len(argTypes) > n {
		n = len(argTypes)
	}
	score := 0
	for i := 0; i < n; i++ {
		if i >= len(c.Params) || i >= len(argTypes) {
			score++
			continue
		}
		if !accepts(c.Params[i], argTypes[i]) {
			score++
		}
	}
	return score
}

package typeChecker

import (
	"errors"
	"strings"

	"github.com/xplshn/gpas/pkg/ast"
	"github.com/xplshn/gpas/pkg/config"
	"github.com/xplshn/gpas/pkg/symtab"
	"github.com/xplshn/gpas/pkg/token"
	"github.com/xplshn/gpas/pkg/util"
)

// TypeChecker evaluates expression types against a symbol environment. It never fails:
// problems are reported and ast.TypeUnknown is returned, and operands of unknown type
// produce no further diagnostics.
type TypeChecker struct {
	env *symtab.Env
	cfg *config.Config
	rep *util.Reporter
}

func NewTypeChecker(env *symtab.Env, cfg *config.Config, rep *util.Reporter) *TypeChecker {
	return &TypeChecker{env: env, cfg: cfg, rep: rep}
}

func (tc *TypeChecker) errorf(tok token.Token, format string, args ...interface{}) {
	tc.rep.Error(util.Semantic, tok, format, args...)
}

var builtins = map[string]bool{"read": true, "write": true, "writeln": true}

// IsBuiltin reports whether name is one of the predefined I/O procedures.
func IsBuiltin(name string) bool { return builtins[strings.ToLower(name)] }

// Assignable reports whether a value of type src may be stored in dst.
func (tc *TypeChecker) Assignable(dst, src *ast.Type) bool {
	if dst.IsUnknown() || src.IsUnknown() {
		return true
	}
	if dst.Equal(src) {
		return true
	}
	return dst.Kind == ast.TYPE_REAL && src.Kind == ast.TYPE_INTEGER && tc.cfg.IsFeatureEnabled(config.FeatRealWidening)
}

// Accepts reports whether arg may bind to p. By-reference parameters need the exact type.
func (tc *TypeChecker) Accepts(p symtab.Param, arg *ast.Type) bool {
	if p.ByRef {
		return p.Type.IsUnknown() || arg.IsUnknown() || p.Type.Equal(arg)
	}
	return tc.Assignable(p.Type, arg)
}

// IsBoolLiteral reports whether an identifier falls back to a boolean literal. A visible
// variable of that name always wins.
func (tc *TypeChecker) IsBoolLiteral(name string) (value, ok bool) {
	if !tc.cfg.IsFeatureEnabled(config.FeatBoolLiterals) {
		return false, false
	}
	lower := strings.ToLower(name)
	if lower != "true" && lower != "false" {
		return false, false
	}
	if _, err := tc.env.Lookup(name); err == nil {
		return false, false
	}
	return lower == "true", true
}

// ResolveIdent looks up a variable reference, reporting undeclared names.
func (tc *TypeChecker) ResolveIdent(node *ast.Node) *symtab.Symbol {
	name := node.Data.(ast.IdentNode).Name
	sym, err := tc.env.Lookup(name)
	if err == nil {
		return sym
	}
	if other := tc.env.LookupAny(name); other != nil {
		tc.errorf(node.Tok, "%s '%s' cannot be used as a value", other.Kind, name)
	} else {
		tc.errorf(node.Tok, "undeclared identifier '%s'", name)
	}
	return nil
}

// TypeOf returns the type of node. Statements have type void.
func (tc *TypeChecker) TypeOf(node *ast.Node) *ast.Type {
	if node == nil {
		return ast.TypeUnknown
	}
	switch node.Type {
	case ast.Integer: return ast.TypeInteger
	case ast.Real: return ast.TypeReal
	case ast.String: return ast.TypeString
	case ast.Boolean: return ast.TypeBoolean
	case ast.Ident:
		if _, ok := tc.IsBoolLiteral(node.Data.(ast.IdentNode).Name); ok {
			return ast.TypeBoolean
		}
		if sym := tc.ResolveIdent(node); sym != nil {
			return sym.Type
		}
		return ast.TypeUnknown
	case ast.BinaryOp:
		d := node.Data.(ast.BinaryOpNode)
		return tc.Binary(node.Tok, d.Op, tc.ValueOf(d.Left), tc.ValueOf(d.Right))
	case ast.UnaryOp:
		d := node.Data.(ast.UnaryOpNode)
		return tc.Unary(node.Tok, d.Op, tc.ValueOf(d.Expr))
	case ast.Sign:
		d := node.Data.(ast.SignNode)
		return tc.Sign(node.Tok, tc.ValueOf(d.Expr))
	case ast.Call:
		d := node.Data.(ast.CallNode)
		argTypes := make([]*ast.Type, len(d.Args))
		for i, arg := range d.Args {
			argTypes[i] = tc.TypeOf(arg)
		}
		_, typ, _ := tc.Call(node, argTypes)
		return typ
	case ast.Program, ast.Callable, ast.Param, ast.VarDecl, ast.Block, ast.Assign,
		ast.Return, ast.While, ast.If, ast.Assert:
		return ast.TypeVoid
	}
	return ast.TypeUnknown
}

// ValueOf is TypeOf for a position that needs a value; procedure calls are rejected.
func (tc *TypeChecker) ValueOf(node *ast.Node) *ast.Type {
	return tc.RequireValue(node, tc.TypeOf(node))
}

func (tc *TypeChecker) RequireValue(node *ast.Node, t *ast.Type) *ast.Type {
	if t != nil && t.Kind == ast.TYPE_VOID {
		name := ""
		if node != nil && node.Type == ast.Call {
			name = node.Data.(ast.CallNode).Name
		}
		tc.errorf(node.Tok, "procedure '%s' does not return a value", name)
		return ast.TypeUnknown
	}
	return t
}

func (tc *TypeChecker) Sign(tok token.Token, operand *ast.Type) *ast.Type {
	if operand.IsUnknown() {
		return ast.TypeUnknown
	}
	if !operand.IsNumeric() {
		tc.errorf(tok, "sign operator '%s' needs an integer or real operand, got %s", tok.Type, operand)
		return ast.TypeUnknown
	}
	return operand
}

func (tc *TypeChecker) Unary(tok token.Token, op token.Type, operand *ast.Type) *ast.Type {
	switch op {
	case token.Not:
		if !operand.IsUnknown() && operand.Kind != ast.TYPE_BOOLEAN {
			tc.errorf(tok, "operator 'not' needs a boolean operand, got %s", operand)
		}
		return ast.TypeBoolean
	case token.Length:
		if !operand.IsUnknown() && !operand.IsArray() {
			tc.errorf(tok, "length needs an array operand, got %s", operand)
		}
		return ast.TypeInteger
	}
	tc.errorf(tok, "unknown unary operator '%s'", op)
	return ast.TypeUnknown
}

// widen returns the common numeric type of l and r.
func (tc *TypeChecker) widen(tok token.Token, l, r *ast.Type) *ast.Type {
	if l.Kind == r.Kind {
		return l
	}
	if !tc.cfg.IsFeatureEnabled(config.FeatRealWidening) {
		tc.errorf(tok, "operator '%s' mixes %s and %s; implicit widening is disabled", tok.Type, l, r)
		return ast.TypeUnknown
	}
	return ast.TypeReal
}

func (tc *TypeChecker) Binary(tok token.Token, op token.Type, l, r *ast.Type) *ast.Type {
	switch op {
	case token.Index:
		if l.IsUnknown() {
			return ast.TypeUnknown
		}
		if !l.IsArray() {
			tc.errorf(tok, "cannot index a value of type %s", l)
			return ast.TypeUnknown
		}
		if !r.IsUnknown() && r.Kind != ast.TYPE_INTEGER {
			tc.errorf(tok, "array index must be integer, got %s", r)
		}
		return l.Elem

	case token.And, token.Or:
		if !l.IsUnknown() && !r.IsUnknown() && (l.Kind != ast.TYPE_BOOLEAN || r.Kind != ast.TYPE_BOOLEAN) {
			tc.errorf(tok, "operator '%s' needs boolean operands, got %s and %s", op, l, r)
		}
		return ast.TypeBoolean

	case token.Eq, token.Neq, token.Lt, token.Lte, token.Gt, token.Gte:
		if l.IsUnknown() || r.IsUnknown() {
			return ast.TypeBoolean
		}
		switch {
		case l.IsNumeric() && r.IsNumeric():
			tc.widen(tok, l, r)
		case l.Kind == r.Kind && (l.Kind == ast.TYPE_BOOLEAN || l.Kind == ast.TYPE_STRING):
		default:
			tc.errorf(tok, "cannot compare %s with %s", l, r)
		}
		return ast.TypeBoolean

	case token.Rem, token.Mod:
		if l.IsUnknown() || r.IsUnknown() {
			return ast.TypeUnknown
		}
		if l.Kind != ast.TYPE_INTEGER || r.Kind != ast.TYPE_INTEGER {
			tc.errorf(tok, "operator '%s' needs integer operands, got %s and %s", op, l, r)
			return ast.TypeUnknown
		}
		return ast.TypeInteger

	case token.Plus, token.Minus, token.Star, token.Slash:
		if l.IsUnknown() || r.IsUnknown() {
			return ast.TypeUnknown
		}
		if l.IsNumeric() && r.IsNumeric() {
			return tc.widen(tok, l, r)
		}
		if op == token.Plus && l.IsString() && r.IsString() {
			return ast.TypeString
		}
		tc.errorf(tok, "operator '%s' cannot be applied to %s and %s", op, l, r)
		return ast.TypeUnknown
	}
	tc.errorf(tok, "unknown binary operator '%s'", op)
	return ast.TypeUnknown
}

// Call resolves a call node given its argument types. Built-ins resolve to a nil
// symbol. A mismatched call reports one error and still yields the closest
// candidate's return type; ok is false in that case.
func (tc *TypeChecker) Call(node *ast.Node, argTypes []*ast.Type) (sym *symtab.Symbol, typ *ast.Type, ok bool) {
	d := node.Data.(ast.CallNode)
	if IsBuiltin(d.Name) {
		tc.checkBuiltin(node, argTypes)
		return nil, ast.TypeVoid, true
	}

	sym, err := tc.env.LookupCallable(d.Name, argTypes, tc.Accepts)
	if sym == nil {
		if v := tc.env.LookupAny(d.Name); v != nil {
			tc.errorf(node.Tok, "'%s' is a %s, not a function or procedure", d.Name, v.Kind)
		} else {
			tc.errorf(node.Tok, "undeclared function or procedure '%s'", d.Name)
		}
		return nil, ast.TypeUnknown, false
	}
	if err != nil {
		tc.errorf(node.Tok, "%v", err)
		return sym, sym.Type, false
	}

	ok = true
	for i, p := range sym.Params {
		if p.ByRef && !ast.IsLValue(d.Args[i]) {
			tc.errorf(d.Args[i].Tok, "argument %d of '%s' is passed by reference and must be a variable", i+1, d.Name)
			ok = false
		}
	}
	return sym, sym.Type, ok
}

func (tc *TypeChecker) checkBuiltin(node *ast.Node, argTypes []*ast.Type) {
	d := node.Data.(ast.CallNode)
	name := strings.ToLower(d.Name)
	if name == "read" && len(d.Args) == 0 {
		tc.errorf(node.Tok, "read needs at least one argument")
	}
	for i, t := range argTypes {
		arg := d.Args[i]
		t = tc.RequireValue(arg, t)
		if t.IsUnknown() {
			continue
		}
		if name == "read" {
			if !ast.IsLValue(arg) {
				tc.errorf(arg.Tok, "argument %d of read must be a variable", i+1)
				continue
			}
			if t.Kind != ast.TYPE_INTEGER && t.Kind != ast.TYPE_REAL && t.Kind != ast.TYPE_STRING {
				tc.errorf(arg.Tok, "cannot read a value of type %s", t)
			}
			continue
		}
		if t.IsArray() {
			tc.errorf(arg.Tok, "cannot write a value of type %s", t)
		}
	}
}

// CheckCondition requires a boolean for while, if and assert conditions.
func (tc *TypeChecker) CheckCondition(tok token.Token, construct string, t *ast.Type) {
	if !t.IsUnknown() && t.Kind != ast.TYPE_BOOLEAN {
		tc.errorf(tok, "%s condition must be boolean, got %s", construct, t)
	}
}

func (tc *TypeChecker) CheckAssign(tok token.Token, dst, src *ast.Type) bool {
	if tc.Assignable(dst, src) {
		return true
	}
	tc.errorf(tok, "cannot assign %s to %s", src, dst)
	return false
}

// CheckElementType restricts array element types to integer, real and boolean.
func (tc *TypeChecker) CheckElementType(tok token.Token, t *ast.Type) bool {
	if !t.IsArray() || t.Elem.IsUnknown() {
		return true
	}
	switch t.Elem.Kind {
	case ast.TYPE_INTEGER, ast.TYPE_REAL, ast.TYPE_BOOLEAN:
		return true
	}
	tc.errorf(tok, "array elements must be integer, real or boolean, got %s", t.Elem)
	return false
}

// CheckReturn validates a return statement. ret is nil outside functions.
func (tc *TypeChecker) CheckReturn(tok token.Token, ret *ast.Type, value *ast.Type, hasValue bool) bool {
	switch {
	case ret == nil && hasValue:
		tc.errorf(tok, "return with a value outside a function")
	case ret != nil && !hasValue:
		tc.errorf(tok, "function must return a value of type %s", ret)
	case ret != nil && !tc.Assignable(ret, value):
		tc.errorf(tok, "cannot return %s from a function returning %s", value, ret)
	default:
		return true
	}
	return false
}

// Declare adds a symbol and reports redeclaration in the same scope.
func (tc *TypeChecker) Declare(tok token.Token, sym *symtab.Symbol) bool {
	if err := tc.env.Declare(sym); err != nil {
		if errors.Is(err, symtab.ErrRedeclared) {
			tc.errorf(tok, "'%s' is already declared in this scope", sym.Name)
		} else {
			tc.errorf(tok, "%v", err)
		}
		return false
	}
	return true
}

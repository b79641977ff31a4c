package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xplshn/gpas/pkg/ast"
	"github.com/xplshn/gpas/pkg/ir"
	"github.com/xplshn/gpas/pkg/symtab"
	"github.com/xplshn/gpas/pkg/token"
	"github.com/xplshn/gpas/pkg/typeChecker"
)

// codegenExpr emits the statements computing node and returns the symbol holding the
// result. Literals and plain variable references emit nothing.
func (ctx *Context) codegenExpr(node *ast.Node) *symtab.Symbol {
	if node == nil {
		return ctx.placeholder(nil)
	}
	switch node.Type {
	case ast.Integer:
		return constant(ast.TypeInteger, strconv.FormatInt(node.Data.(ast.IntegerNode).Value, 10))
	case ast.Real:
		return constant(ast.TypeReal, realLiteral(node.Data.(ast.RealNode)))
	case ast.String:
		return constant(ast.TypeString, cQuote(node.Data.(ast.StringNode).Value))
	case ast.Boolean:
		return constant(ast.TypeBoolean, strconv.FormatBool(node.Data.(ast.BooleanNode).Value))
	case ast.Ident:
		return ctx.codegenIdent(node)
	case ast.BinaryOp:
		return ctx.codegenBinaryOp(node)
	case ast.UnaryOp:
		return ctx.codegenUnaryOp(node)
	case ast.Sign:
		return ctx.codegenSign(node)
	case ast.Call:
		return ctx.codegenCall(node)
	case ast.Program, ast.Callable, ast.Param, ast.VarDecl, ast.Block, ast.Assign,
		ast.Return, ast.While, ast.If, ast.Assert:
		ctx.errorf(node.Tok, "statement used as an expression")
	}
	return ctx.placeholder(nil)
}

// codegenValue is codegenExpr for positions that need a value.
func (ctx *Context) codegenValue(node *ast.Node) *symtab.Symbol {
	sym := ctx.codegenExpr(node)
	if t := ctx.tc.RequireValue(node, sym.Type); t != sym.Type {
		return ctx.placeholder(t)
	}
	return sym
}

func realLiteral(d ast.RealNode) string {
	if d.Text != "" {
		return d.Text
	}
	s := strconv.FormatFloat(d.Value, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

func (ctx *Context) codegenIdent(node *ast.Node) *symtab.Symbol {
	name := node.Data.(ast.IdentNode).Name
	if value, ok := ctx.tc.IsBoolLiteral(name); ok {
		return constant(ast.TypeBoolean, strconv.FormatBool(value))
	}
	if sym := ctx.tc.ResolveIdent(node); sym != nil {
		return sym
	}
	return ctx.placeholder(nil)
}

func cOp(op token.Type) string {
	switch op {
	case token.Eq: return "=="
	case token.Neq: return "!="
	case token.And: return "&&"
	case token.Or: return "||"
	case token.Mod, token.Rem: return "%"
	}
	return op.String()
}

func isComparison(op token.Type) bool {
	switch op {
	case token.Eq, token.Neq, token.Lt, token.Lte, token.Gt, token.Gte:
		return true
	}
	return false
}

// arrayRef is the C expression for an array operand of a subscript.
func arrayRef(sym *symtab.Symbol) string {
	if sym.Indirect {
		return "(*" + sym.Target + ")"
	}
	return sym.Target
}

func (ctx *Context) codegenBinaryOp(node *ast.Node) *symtab.Symbol {
	d := node.Data.(ast.BinaryOpNode)
	l := ctx.codegenValue(d.Left)
	r := ctx.codegenValue(d.Right)
	t := ctx.tc.Binary(node.Tok, d.Op, l.Type, r.Type)
	if t.IsUnknown() || l.Type.IsUnknown() || r.Type.IsUnknown() {
		return ctx.placeholder(t)
	}

	switch {
	case d.Op == token.Index:
		tmp := ctx.newTemp(t)
		tmp.Indirect = true
		ctx.emit(ir.Decl, "%s* %s = &%s[%s];", ctx.cType(t), tmp.Target, arrayRef(l), ref(r))
		return tmp
	case d.Op == token.Plus && t.IsString():
		return ctx.codegenConcat(l, r)
	case isComparison(d.Op) && l.Type.IsString():
		tmp := ctx.newTemp(t)
		ctx.emit(ir.Decl, "%s %s = strcmp(%s, %s) %s 0;", ctx.cType(t), tmp.Target, ref(l), ref(r), cOp(d.Op))
		return tmp
	}
	tmp := ctx.newTemp(t)
	ctx.emit(ir.Decl, "%s %s = %s %s %s;", ctx.cType(t), tmp.Target, ref(l), cOp(d.Op), ref(r))
	return tmp
}

// codegenConcat writes l and r into a fresh buffer owned by the result, truncating at
// the string capacity.
func (ctx *Context) codegenConcat(l, r *symtab.Symbol) *symtab.Symbol {
	tmp := ctx.newTemp(ast.TypeString)
	capacity := ctx.cfg.StringCapacity
	ctx.emit(ir.Alloc, "%s %s = (%s)malloc(%d);", ctx.cfg.CharPtrType, tmp.Target, ctx.cfg.CharPtrType, capacity)
	ctx.emit(ir.Call, "snprintf(%s, %d, \"%%s%%s\", %s, %s);", tmp.Target, capacity, ref(l), ref(r))
	ctx.own.alloc(tmp.Target, tmp.Depth, false)
	return tmp
}

func (ctx *Context) codegenUnaryOp(node *ast.Node) *symtab.Symbol {
	d := node.Data.(ast.UnaryOpNode)
	operand := ctx.codegenValue(d.Expr)
	t := ctx.tc.Unary(node.Tok, d.Op, operand.Type)
	if t.IsUnknown() || operand.Type.IsUnknown() {
		return ctx.placeholder(t)
	}
	switch d.Op {
	case token.Not:
		if operand.Type.Kind != ast.TYPE_BOOLEAN {
			return ctx.placeholder(t)
		}
		tmp := ctx.newTemp(t)
		ctx.emit(ir.Decl, "%s %s = !%s;", ctx.cType(t), tmp.Target, ref(operand))
		return tmp
	case token.Length:
		if !operand.Type.IsArray() {
			return ctx.placeholder(t)
		}
		tmp := ctx.newTemp(t)
		ctx.emit(ir.Decl, "%s %s = %s;", ctx.cType(t), tmp.Target, sizeRef(operand))
		return tmp
	}
	return ctx.placeholder(t)
}

func (ctx *Context) codegenSign(node *ast.Node) *symtab.Symbol {
	d := node.Data.(ast.SignNode)
	operand := ctx.codegenValue(d.Expr)
	t := ctx.tc.Sign(node.Tok, operand.Type)
	if t.IsUnknown() {
		return ctx.placeholder(t)
	}
	tmp := ctx.newTemp(t)
	ctx.emit(ir.Decl, "%s %s = %s%s;", ctx.cType(t), tmp.Target, d.Op, ref(operand))
	return tmp
}

// --- Calls ---

func (ctx *Context) codegenCall(node *ast.Node) *symtab.Symbol {
	d := node.Data.(ast.CallNode)
	args := make([]*symtab.Symbol, len(d.Args))
	argTypes := make([]*ast.Type, len(d.Args))
	for i, arg := range d.Args {
		args[i] = ctx.codegenExpr(arg)
		argTypes[i] = args[i].Type
	}

	sym, t, ok := ctx.tc.Call(node, argTypes)
	if typeChecker.IsBuiltin(d.Name) {
		ctx.codegenBuiltin(strings.ToLower(d.Name), args)
		return constant(ast.TypeVoid, "")
	}
	if sym == nil || !ok {
		return ctx.placeholder(t)
	}

	var cargs []string
	for i, p := range sym.Params {
		a := args[i]
		switch {
		case p.ByRef && p.Type.IsArray():
			cargs = append(cargs, addr(a), sizeAddr(a))
		case p.ByRef:
			cargs = append(cargs, addr(a))
		case p.Type.IsArray():
			cargs = append(cargs, ref(a), sizeRef(a))
		default:
			cargs = append(cargs, ref(a))
		}
	}

	switch {
	case sym.Kind == symtab.Procedure:
		ctx.emit(ir.Call, "%s(%s);", sym.Target, strings.Join(cargs, ", "))
		return constant(ast.TypeVoid, "")
	case t.IsArray():
		tmp := ctx.newTemp(t)
		ctx.emit(ir.Decl, "%s %s;", ctx.cfg.IntType, tmp.SizeName)
		cargs = append(cargs, "&"+tmp.SizeName)
		ctx.emit(ir.Call, "%s %s = %s(%s);", ctx.cType(t), tmp.Target, sym.Target, strings.Join(cargs, ", "))
		ctx.own.alloc(tmp.Target, tmp.Depth, true)
		return tmp
	}
	tmp := ctx.newTemp(t)
	ctx.emit(ir.Call, "%s %s = %s(%s);", ctx.cType(t), tmp.Target, sym.Target, strings.Join(cargs, ", "))
	if t.IsString() {
		ctx.own.alloc(tmp.Target, tmp.Depth, false)
	}
	return tmp
}

// codegenBuiltin lowers read, write and writeln to one scanf or printf each.
func (ctx *Context) codegenBuiltin(name string, args []*symtab.Symbol) {
	var formats, cargs []string
	for _, a := range args {
		switch name {
		case "read":
			switch a.Type.Kind {
			case ast.TYPE_INTEGER:
				formats, cargs = append(formats, "%d"), append(cargs, addr(a))
			case ast.TYPE_REAL:
				formats, cargs = append(formats, "%lf"), append(cargs, addr(a))
			case ast.TYPE_STRING:
				formats, cargs = append(formats, fmt.Sprintf("%%%ds", ctx.cfg.StringCapacity-1)), append(cargs, ref(a))
			}
		default:
			switch a.Type.Kind {
			case ast.TYPE_INTEGER:
				formats, cargs = append(formats, "%d"), append(cargs, ref(a))
			case ast.TYPE_REAL:
				formats, cargs = append(formats, "%f"), append(cargs, ref(a))
			case ast.TYPE_BOOLEAN:
				formats, cargs = append(formats, "%s"), append(cargs, fmt.Sprintf("%s ? \"true\" : \"false\"", ref(a)))
			case ast.TYPE_STRING:
				formats, cargs = append(formats, "%s"), append(cargs, ref(a))
			}
		}
	}

	if name == "read" {
		if len(formats) > 0 {
			ctx.emit(ir.IO, "scanf(%s, %s);", cQuote(strings.Join(formats, " ")), strings.Join(cargs, ", "))
		}
		return
	}

	format := strings.Join(formats, "")
	if name == "writeln" {
		format += "\n"
	}
	if format == "" {
		return
	}
	if len(cargs) == 0 {
		ctx.emit(ir.IO, "printf(%s);", cQuote(format))
		return
	}
	ctx.emit(ir.IO, "printf(%s, %s);", cQuote(format), strings.Join(cargs, ", "))
}

package codegen

import (
	"fmt"
	"strings"

	"github.com/xplshn/gpas/pkg/ast"
	"github.com/xplshn/gpas/pkg/config"
	"github.com/xplshn/gpas/pkg/ir"
	"github.com/xplshn/gpas/pkg/symtab"
	"github.com/xplshn/gpas/pkg/token"
	"github.com/xplshn/gpas/pkg/typeChecker"
	"github.com/xplshn/gpas/pkg/util"
)

// Context is the state of one compilation. Counters are never reset.
type Context struct {
	unit        *ir.Unit
	env         *symtab.Env
	tc          *typeChecker.TypeChecker
	cfg         *config.Config
	rep         *util.Reporter
	own         *tracker
	tempCount   int
	whileCount  int
	ifCount     int
	assertCount int
	inMain      bool
	currentFunc *symtab.Symbol // nil in main
	funcDepth   int            // depth of the current callable's outermost scope
	pending     [][]*ast.Node  // statements still to come in each open block, innermost last
	indent      int
}

func NewContext(cfg *config.Config, rep *util.Reporter) *Context {
	env := symtab.New()
	return &Context{
		unit: &ir.Unit{},
		env:  env,
		tc:   typeChecker.NewTypeChecker(env, cfg, rep),
		cfg:  cfg,
		rep:  rep,
		own:  newTracker(),
	}
}

// Generate lowers a program tree into a translation unit. Semantic errors are recorded in
// rep; the unit is still produced but is only valid when rep has no errors.
func Generate(root *ast.Node, cfg *config.Config, rep *util.Reporter) *ir.Unit {
	return NewContext(cfg, rep).Generate(root)
}

func (ctx *Context) Generate(root *ast.Node) *ir.Unit {
	if root == nil || root.Type != ast.Program {
		return ctx.unit
	}
	prog := root.Data.(ast.ProgramNode)

	var callables []*symtab.Symbol
	for _, c := range prog.Callables {
		if sym := ctx.declareCallable(c); sym != nil {
			ctx.emit(ir.Proto, "%s;", ctx.signature(sym))
			callables = append(callables, sym)
		} else {
			callables = append(callables, nil)
		}
	}

	for i, c := range prog.Callables {
		if callables[i] != nil {
			ctx.codegenCallable(c, callables[i])
		}
	}

	ctx.codegenMain(prog.Body)

	if ctx.cfg.IsFeatureEnabled(config.FeatPrologue) {
		ctx.unit.Stmts = append(ctx.prologue(prog.Name), ctx.unit.Stmts...)
	}
	return ctx.unit
}

func (ctx *Context) prologue(name string) []ir.Stmt {
	lines := []string{
		fmt.Sprintf("/* program %s, fingerprint %016x */", name, ctx.unit.Fingerprint()),
		"#include <stdbool.h>",
		"#include <stdio.h>",
		"#include <stdlib.h>",
		"#include <string.h>",
	}
	stmts := make([]ir.Stmt, len(lines))
	for i, l := range lines {
		stmts[i] = ir.Stmt{Kind: ir.Prologue, Text: l}
	}
	return stmts
}

func (ctx *Context) emit(kind ir.Kind, format string, args ...interface{}) {
	text := format
	if len(args) > 0 {
		text = fmt.Sprintf(format, args...)
	}
	ctx.unit.Append(kind, ctx.indent, text)
}

func (ctx *Context) errorf(tok token.Token, format string, args ...interface{}) {
	ctx.rep.Error(util.Semantic, tok, format, args...)
}

func (ctx *Context) cType(t *ast.Type) string {
	switch t.Kind {
	case ast.TYPE_VOID: return "void"
	case ast.TYPE_REAL: return ctx.cfg.RealType
	case ast.TYPE_BOOLEAN: return ctx.cfg.BoolType
	case ast.TYPE_STRING: return ctx.cfg.CharPtrType
	case ast.TYPE_ARRAY: return ctx.cType(t.Elem) + "*"
	}
	return ctx.cfg.IntType
}

func (ctx *Context) zeroValue(t *ast.Type) string {
	switch t.Kind {
	case ast.TYPE_REAL: return "0.0"
	case ast.TYPE_BOOLEAN: return "false"
	case ast.TYPE_STRING, ast.TYPE_ARRAY: return "NULL"
	}
	return "0"
}

// newTemp declares the next tmp_<N> at the current depth.
func (ctx *Context) newTemp(t *ast.Type) *symtab.Symbol {
	name := fmt.Sprintf("tmp_%d", ctx.tempCount)
	ctx.tempCount++
	sym := &symtab.Symbol{Name: name, Kind: symtab.Variable, Type: t, Target: name, Synthetic: true}
	if t.IsArray() {
		sym.SizeName = "size_" + name
	}
	ctx.env.Declare(sym)
	return sym
}

// constant wraps literal text as a result symbol that emits no statement.
func constant(t *ast.Type, text string) *symtab.Symbol {
	return &symtab.Symbol{Name: text, Kind: symtab.Variable, Type: t, Target: text, Const: true}
}

// placeholder stands in for an expression that failed to check.
func (ctx *Context) placeholder(t *ast.Type) *symtab.Symbol {
	if t == nil || t.Kind == ast.TYPE_VOID {
		t = ast.TypeUnknown
	}
	return constant(t, ctx.zeroValue(t))
}

// ref is the C expression reading sym's value.
func ref(sym *symtab.Symbol) string {
	if sym.Indirect {
		return "*" + sym.Target
	}
	return sym.Target
}

// addr is the C expression for a pointer to sym's storage.
func addr(sym *symtab.Symbol) string {
	if sym.Indirect {
		return sym.Target
	}
	return "&" + sym.Target
}

func sizeRef(sym *symtab.Symbol) string {
	if sym.SizeName == "" {
		return "0"
	}
	if sym.Indirect {
		return "*" + sym.SizeName
	}
	return sym.SizeName
}

func sizeAddr(sym *symtab.Symbol) string {
	if sym.Indirect {
		return sym.SizeName
	}
	return "&" + sym.SizeName
}

// cQuote renders s as a C string literal.
func cQuote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"': sb.WriteString(`\"`)
		case '\\': sb.WriteString(`\\`)
		case '\n': sb.WriteString(`\n`)
		case '\t': sb.WriteString(`\t`)
		case '\r': sb.WriteString(`\r`)
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(&sb, `\%03o`, c)
			} else {
				sb.WriteByte(c)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// --- Declarations ---

func (ctx *Context) declareCallable(node *ast.Node) *symtab.Symbol {
	d := node.Data.(ast.CallableNode)
	sym := &symtab.Symbol{Name: d.Name, Kind: symtab.Procedure, Type: ast.TypeVoid, Target: "f_" + d.Name}
	if d.IsFunction {
		sym.Kind, sym.Type = symtab.Function, d.ReturnType
		ctx.tc.CheckElementType(node.Tok, d.ReturnType)
	}
	if other := ctx.env.LookupAny(d.Name); other != nil && other.IsCallable() {
		sym.Target += "_" + sym.Kind.String()
	}
	for _, p := range d.Params {
		pd := p.Data.(ast.ParamNode)
		ctx.tc.CheckElementType(p.Tok, pd.Type)
		sym.Params = append(sym.Params, symtab.Param{Name: pd.Name, Type: pd.Type, ByRef: pd.ByRef})
	}
	if typeChecker.IsBuiltin(d.Name) {
		ctx.errorf(node.Tok, "'%s' is a predefined procedure and cannot be redeclared", d.Name)
		return nil
	}
	if !ctx.tc.Declare(node.Tok, sym) {
		return nil
	}
	return sym
}

// paramDecl returns the C parameter list entries for one source parameter.
func (ctx *Context) paramDecl(p symtab.Param) string {
	star := ""
	if p.ByRef {
		star = "*"
	}
	decl := fmt.Sprintf("%s%s v_%s", ctx.cType(p.Type), star, p.Name)
	if p.Type.IsArray() {
		decl += fmt.Sprintf(", %s%s size_%s", ctx.cfg.IntType, star, p.Name)
	}
	return decl
}

func (ctx *Context) signature(sym *symtab.Symbol) string {
	var params []string
	for _, p := range sym.Params {
		params = append(params, ctx.paramDecl(p))
	}
	if sym.Type.IsArray() {
		params = append(params, ctx.cfg.IntType+"* out_size")
	}
	if len(params) == 0 {
		params = []string{"void"}
	}
	return fmt.Sprintf("%s %s(%s)", ctx.cType(sym.Type), sym.Target, strings.Join(params, ", "))
}

func (ctx *Context) codegenCallable(node *ast.Node, sym *symtab.Symbol) {
	d := node.Data.(ast.CallableNode)
	ctx.inMain, ctx.currentFunc = false, sym

	ctx.emit(ir.FuncBegin, "%s {", ctx.signature(sym))
	ctx.indent++
	ctx.env.Enter()
	ctx.funcDepth = ctx.env.Depth()

	for i, p := range d.Params {
		ctx.declareParam(p, sym.Params[i])
	}

	returned := ctx.codegenBlockBody(d.Body)
	ctx.freeScope(!returned)

	if d.IsFunction && !returned {
		ctx.rep.Warn(config.WarnExtra, node.Tok, "function '%s' may reach its end without returning a value", d.Name)
		if ctx.cfg.IsFeatureEnabled(config.FeatFallbackReturn) {
			ctx.emitBareReturn(sym.Type)
		}
	}

	ctx.env.Exit()
	ctx.own.reset()
	ctx.indent--
	ctx.emit(ir.FuncEnd, "}")
	ctx.currentFunc = nil
}

// declareParam registers a parameter. Value strings and arrays are copied on entry so the
// callee owns what it may free or replace.
func (ctx *Context) declareParam(node *ast.Node, p symtab.Param) {
	sym := &symtab.Symbol{
		Name: p.Name, Kind: symtab.Variable, Type: p.Type, Target: "v_" + p.Name, Indirect: p.ByRef,
	}
	if p.Type.IsArray() {
		sym.SizeName = "size_" + p.Name
	}
	if !ctx.tc.Declare(node.Tok, sym) {
		return
	}
	if p.ByRef || !p.Type.IsBuffer() {
		return
	}
	cp := ctx.copyBuffer(sym)
	ctx.emit(ir.Assign, "%s = %s;", sym.Target, cp.Target)
	if p.Type.IsArray() {
		ctx.emit(ir.Assign, "%s = %s;", sym.SizeName, cp.SizeName)
	}
	ctx.own.move(cp.Target, sym.Target, sym.Depth)
}

func (ctx *Context) codegenMain(body *ast.Node) {
	ctx.inMain, ctx.currentFunc = true, nil
	ctx.emit(ir.FuncBegin, "%s main(void) {", ctx.cfg.IntType)
	ctx.indent++
	ctx.funcDepth = ctx.env.Depth() + 1
	ctx.codegenBlockBody(body)
	ctx.emit(ir.Return, "return 0;")
	ctx.own.reset()
	ctx.indent--
	ctx.emit(ir.FuncEnd, "}")
}

// codegenBlockBody emits a block's statements in a new scope without braces; the
// enclosing function supplies them. It reports whether the block ends in a return, in
// which case the return already released this scope's buffers.
func (ctx *Context) codegenBlockBody(node *ast.Node) bool {
	ctx.env.Enter()
	stmts := []*ast.Node{node}
	if node != nil && node.Type == ast.Block {
		stmts = node.Data.(ast.BlockNode).Stmts
	}
	ctx.pending = append(ctx.pending, nil)
	for i, stmt := range stmts {
		ctx.pending[len(ctx.pending)-1] = stmts[i+1:]
		ctx.codegenStmt(stmt)
	}
	ctx.pending = ctx.pending[:len(ctx.pending)-1]
	returned := len(stmts) > 0 && stmts[len(stmts)-1] != nil && stmts[len(stmts)-1].Type == ast.Return
	ctx.freeScope(!returned)
	ctx.env.Exit()
	return returned
}

// codegenBlock emits a braced scope. A non-block statement used as a body gets one too.
func (ctx *Context) codegenBlock(node *ast.Node) {
	if node == nil {
		return
	}
	ctx.emit(ir.BlockBegin, "{")
	ctx.indent++
	ctx.codegenBlockBody(node)
	ctx.indent--
	ctx.emit(ir.BlockEnd, "}")
}

func (ctx *Context) codegenStmt(node *ast.Node) {
	if node == nil {
		return
	}
	switch node.Type {
	case ast.VarDecl:
		ctx.codegenVarDecl(node)
	case ast.Block:
		ctx.codegenBlock(node)
	case ast.Assign:
		ctx.codegenAssign(node)
	case ast.Call:
		d := node.Data.(ast.CallNode)
		if res := ctx.codegenCall(node); res.Type.Kind != ast.TYPE_VOID && !res.Type.IsUnknown() {
			ctx.rep.Warn(config.WarnUnusedResult, node.Tok, "result of function '%s' is discarded", d.Name)
		}
	case ast.Return:
		ctx.codegenReturn(node)
	case ast.While:
		ctx.codegenWhile(node)
	case ast.If:
		ctx.codegenIf(node)
	case ast.Assert:
		ctx.codegenAssert(node)
	case ast.Integer, ast.Real, ast.String, ast.Boolean, ast.Ident, ast.BinaryOp, ast.UnaryOp, ast.Sign:
		ctx.errorf(node.Tok, "expression used as a statement")
	case ast.Program, ast.Callable, ast.Param:
		ctx.errorf(node.Tok, "declaration not allowed here")
	}
}

// cName picks the emitted identifier for a new variable. A name that shadows a visible
// variable gets a depth suffix so both stay addressable in one C function, and a
// further counter when that spelling is already taken by another visible variable.
func (ctx *Context) cName(name string) string {
	base := name
	if ctx.env.Shadows(name) != nil {
		base = fmt.Sprintf("%s_%d", name, ctx.env.Depth())
	}
	for n := 1; ctx.nameTaken(base); n++ {
		base = fmt.Sprintf("%s_%d_%d", name, ctx.env.Depth(), n)
	}
	return base
}

func (ctx *Context) nameTaken(base string) bool {
	target := "v_" + base
	return ctx.env.LookupTarget(target) != nil || ctx.own.owns(target)
}

func (ctx *Context) codegenVarDecl(node *ast.Node) {
	d := node.Data.(ast.VarDeclNode)
	if outer := ctx.env.Shadows(d.Name); outer != nil {
		ctx.rep.Warn(config.WarnShadow, node.Tok, "declaration of '%s' shadows a variable from an outer scope", d.Name)
	}

	base := ctx.cName(d.Name)
	sym := &symtab.Symbol{Name: d.Name, Kind: symtab.Variable, Type: d.Type, Target: "v_" + base}
	if d.Type.IsArray() {
		sym.SizeName = "size_" + base
	}

	validElem := ctx.tc.CheckElementType(node.Tok, d.Type)

	// The size expression is evaluated before the name becomes visible.
	var size *symtab.Symbol
	if d.Type.IsArray() && validElem {
		size = constant(ast.TypeInteger, "0")
		if d.SizeExpr != nil {
			size = ctx.codegenValue(d.SizeExpr)
			if !size.Type.IsUnknown() && size.Type.Kind != ast.TYPE_INTEGER {
				ctx.errorf(d.SizeExpr.Tok, "array size must be integer, got %s", size.Type)
			}
		}
	}

	if !ctx.tc.Declare(node.Tok, sym) || !validElem {
		return
	}

	switch d.Type.Kind {
	case ast.TYPE_STRING:
		ctx.emit(ir.Alloc, "%s %s = (%s)malloc(%d);", ctx.cType(d.Type), sym.Target, ctx.cType(d.Type), ctx.cfg.StringCapacity)
		ctx.emit(ir.Assign, "%s[0] = '\\0';", sym.Target)
		ctx.own.alloc(sym.Target, sym.Depth, false)
	case ast.TYPE_ARRAY:
		ctx.emit(ir.Decl, "%s %s = %s;", ctx.cfg.IntType, sym.SizeName, ref(size))
		ctx.emitArrayAlloc(sym, sym.SizeName, true)
		ctx.own.alloc(sym.Target, sym.Depth, true)
	default:
		ctx.emit(ir.Decl, "%s %s = %s;", ctx.cType(d.Type), sym.Target, ctx.zeroValue(d.Type))
	}
}

func (ctx *Context) emitArrayAlloc(sym *symtab.Symbol, count string, declare bool) {
	elem := ctx.cType(sym.Type.Elem)
	prefix := ""
	if declare {
		prefix = ctx.cType(sym.Type) + " "
	}
	ctx.emit(ir.Alloc, "%s%s = (%s*)malloc(%s * sizeof(%s));", prefix, sym.Target, elem, count, elem)
}

package codegen

import (
	"fmt"

	"github.com/xplshn/gpas/pkg/ast"
	"github.com/xplshn/gpas/pkg/config"
	"github.com/xplshn/gpas/pkg/ir"
	"github.com/xplshn/gpas/pkg/symtab"
)

func (ctx *Context) newLabel(counter *int, kinds ...string) []string {
	n := *counter
	*counter++
	labels := make([]string, len(kinds))
	for i, k := range kinds {
		labels[i] = fmt.Sprintf("%s_%d", k, n)
	}
	return labels
}

func (ctx *Context) label(name string) { ctx.emit(ir.Label, "%s:;", name) }

// codegenCond evaluates a condition in its own scope. Buffers allocated while computing it
// are freed before the caller branches, so every path sees them released.
func (ctx *Context) codegenCond(node *ast.Node, construct string) string {
	ctx.env.Enter()
	cond := ctx.codegenValue(node)
	ctx.tc.CheckCondition(node.Tok, construct, cond.Type)
	if cond.Indirect {
		// The pointer may reach into a buffer freed below.
		tmp := ctx.newTemp(cond.Type)
		ctx.emit(ir.Decl, "%s %s = %s;", ctx.cType(cond.Type), tmp.Target, ref(cond))
		cond = tmp
	}
	ctx.freeScope(true)
	ctx.env.Exit()
	return ref(cond)
}

func (ctx *Context) codegenWhile(node *ast.Node) {
	d := node.Data.(ast.WhileNode)
	labels := ctx.newLabel(&ctx.whileCount, "while_entry", "while_exit")
	entry, exit := labels[0], labels[1]

	ctx.label(entry)
	cond := ctx.codegenCond(d.Cond, "while")
	ctx.emit(ir.Branch, "if (!(%s)) goto %s;", cond, exit)
	ctx.codegenBlock(d.Body)
	ctx.emit(ir.Jump, "goto %s;", entry)
	ctx.label(exit)
}

func (ctx *Context) codegenIf(node *ast.Node) {
	d := node.Data.(ast.IfNode)
	labels := ctx.newLabel(&ctx.ifCount, "if_entry", "else_entry", "if_exit")
	entry, elseEntry, exit := labels[0], labels[1], labels[2]

	ctx.label(entry)
	cond := ctx.codegenCond(d.Cond, "if")
	ctx.emit(ir.Branch, "if (!(%s)) goto %s;", cond, elseEntry)
	ctx.codegenBlock(d.ThenBody)
	ctx.emit(ir.Jump, "goto %s;", exit)
	ctx.label(elseEntry)
	ctx.codegenBlock(d.ElseBody)
	ctx.label(exit)
}

func (ctx *Context) codegenAssert(node *ast.Node) {
	d := node.Data.(ast.AssertNode)
	if !ctx.cfg.IsFeatureEnabled(config.FeatAssert) {
		ctx.tc.CheckCondition(d.Cond.Tok, "assert", ctx.tc.ValueOf(d.Cond))
		return
	}
	labels := ctx.newLabel(&ctx.assertCount, "assert_entry", "assert_exit")
	entry, exit := labels[0], labels[1]

	ctx.label(entry)
	cond := ctx.codegenCond(d.Cond, "assert")
	ctx.emit(ir.Branch, "if (%s) goto %s;", cond, exit)
	msg := fmt.Sprintf("assertion failed at %d:%d: %s\n", node.Tok.Line, node.Tok.Column, ast.Format(d.Cond))
	ctx.emit(ir.IO, "fprintf(stderr, \"%%s\", %s);", cQuote(msg))
	ctx.emit(ir.Abort, "abort();")
	ctx.label(exit)
}

// codegenReturn frees everything the function still owns on this path, then returns. A
// returned string or array is handed to the caller instead of being freed.
func (ctx *Context) codegenReturn(node *ast.Node) {
	d := node.Data.(ast.ReturnNode)

	var retType *ast.Type
	if ctx.currentFunc != nil && ctx.currentFunc.Kind == symtab.Function {
		retType = ctx.currentFunc.Type
	}

	if d.Expr == nil {
		ctx.tc.CheckReturn(node.Tok, retType, nil, false)
		ctx.freeForReturn("")
		ctx.emitBareReturn(retType)
		return
	}

	val := ctx.codegenValue(d.Expr)
	ok := ctx.tc.CheckReturn(node.Tok, retType, val.Type, true)
	if !ok || retType == nil || val.Type.IsUnknown() || retType.IsUnknown() {
		ctx.freeForReturn("")
		ctx.emitBareReturn(retType)
		return
	}

	if retType.IsBuffer() {
		// Returning leaves every scope, so a named owner is handed over from any depth.
		if val.Indirect || val.Const || !ctx.own.owns(val.Target) {
			val = ctx.ownedValue(val)
		}
		if retType.IsArray() {
			ctx.emit(ir.Assign, "*out_size = %s;", sizeRef(val))
		}
		ctx.freeForReturn(val.Target)
		ctx.emit(ir.Return, "return %s;", val.Target)
		return
	}

	if val.Indirect {
		// The pointer may reach into a buffer freed below.
		tmp := ctx.newTemp(val.Type)
		ctx.emit(ir.Decl, "%s %s = %s;", ctx.cType(val.Type), tmp.Target, ref(val))
		val = tmp
	}
	ctx.freeForReturn("")
	ctx.emit(ir.Return, "return %s;", ref(val))
}

func (ctx *Context) emitBareReturn(retType *ast.Type) {
	switch {
	case ctx.inMain:
		ctx.emit(ir.Return, "return 0;")
	case retType != nil:
		if retType.IsArray() {
			ctx.emit(ir.Assign, "*out_size = 0;")
		}
		ctx.emit(ir.Return, "return %s;", ctx.zeroValue(retType))
	default:
		ctx.emit(ir.Return, "return;")
	}
}

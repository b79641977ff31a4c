package codegen

import (
	"sort"

	"github.com/xplshn/gpas/pkg/ast"
	"github.com/xplshn/gpas/pkg/ir"
	"github.com/xplshn/gpas/pkg/symtab"
	"github.com/xplshn/gpas/pkg/token"
)

// record is one live heap buffer. Owners are emitted identifiers, which are unique among
// the variables visible in one function.
type record struct {
	addr  int
	owner string
	depth int
	array bool
}

type tracker struct {
	nextAddr int
	byOwner  map[string]*record
}

func newTracker() *tracker { return &tracker{byOwner: make(map[string]*record)} }

func (t *tracker) lookup(owner string) *record { return t.byOwner[owner] }

func (t *tracker) owns(owner string) bool { return t.byOwner[owner] != nil }

// alloc registers a fresh buffer. The caller must have released any previous record of
// owner; an existing one is replaced.
func (t *tracker) alloc(owner string, depth int, array bool) *record {
	r := &record{addr: t.nextAddr, owner: owner, depth: depth, array: array}
	t.nextAddr++
	t.byOwner[owner] = r
	return r
}

func (t *tracker) release(owner string) *record {
	r := t.byOwner[owner]
	delete(t.byOwner, owner)
	return r
}

// move hands from's buffer to the owner to, which lives at depth.
func (t *tracker) move(from, to string, depth int) {
	r := t.release(from)
	if r == nil {
		return
	}
	r.owner, r.depth = to, depth
	t.byOwner[to] = r
}

func (t *tracker) reset() { t.byOwner = make(map[string]*record) }

// selectRecords returns matching records, strings before arrays, then in allocation order.
func (t *tracker) selectRecords(match func(*record) bool) []*record {
	var out []*record
	for _, r := range t.byOwner {
		if match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].array != out[j].array {
			return !out[i].array
		}
		return out[i].addr < out[j].addr
	})
	return out
}

func (t *tracker) atDepth(depth int) []*record {
	return t.selectRecords(func(r *record) bool { return r.depth == depth })
}

func (t *tracker) from(depth int, except string) []*record {
	return t.selectRecords(func(r *record) bool { return r.depth >= depth && r.owner != except })
}

// freeScope releases the buffers owned at the current depth. When emit is false the
// records are dropped silently because a return already freed them on this path.
func (ctx *Context) freeScope(emit bool) {
	for _, r := range ctx.own.atDepth(ctx.env.Depth()) {
		if emit {
			ctx.emit(ir.Free, "free(%s);", r.owner)
		}
		ctx.own.release(r.owner)
	}
}

// freeOwner frees and forgets target's buffer if it has one.
func (ctx *Context) freeOwner(owner string) {
	if ctx.own.release(owner) != nil {
		ctx.emit(ir.Free, "free(%s);", owner)
	}
}

// freeForReturn frees every buffer of the current function except keep, leaving the
// tracker untouched for the fall-through path.
func (ctx *Context) freeForReturn(keep string) {
	for _, r := range ctx.own.from(ctx.funcDepth, keep) {
		ctx.emit(ir.Free, "free(%s);", r.owner)
	}
}

// copyBuffer allocates a new owned temporary holding a copy of src's buffer.
func (ctx *Context) copyBuffer(src *symtab.Symbol) *symtab.Symbol {
	tmp := ctx.newTemp(src.Type)
	if src.Type.IsArray() {
		elem := ctx.cType(src.Type.Elem)
		ctx.emit(ir.Decl, "%s %s = %s;", ctx.cfg.IntType, tmp.SizeName, sizeRef(src))
		ctx.emitArrayAlloc(tmp, tmp.SizeName, true)
		ctx.emit(ir.Call, "memcpy(%s, %s, %s * sizeof(%s));", tmp.Target, ref(src), tmp.SizeName, elem)
		ctx.own.alloc(tmp.Target, tmp.Depth, true)
		return tmp
	}
	ctx.emitStringCopy(tmp, ref(src))
	return tmp
}

// materialize turns a string literal into an owned buffer.
func (ctx *Context) materialize(lit *symtab.Symbol) *symtab.Symbol {
	tmp := ctx.newTemp(ast.TypeString)
	ctx.emitStringCopy(tmp, lit.Target)
	return tmp
}

func (ctx *Context) emitStringCopy(tmp *symtab.Symbol, src string) {
	capacity := ctx.cfg.StringCapacity
	ctx.emit(ir.Alloc, "%s %s = (%s)malloc(%d);", ctx.cfg.CharPtrType, tmp.Target, ctx.cfg.CharPtrType, capacity)
	ctx.emit(ir.Call, "strncpy(%s, %s, %d);", tmp.Target, src, capacity-1)
	ctx.emit(ir.Assign, "%s[%d] = '\\0';", tmp.Target, capacity-1)
	ctx.own.alloc(tmp.Target, tmp.Depth, false)
}

// ownedValue returns a buffer that may be handed to a new owner. Owned temporaries are
// returned as is, a named owner only when canMove allows it; anything else is copied.
func (ctx *Context) ownedValue(val *symtab.Symbol) *symtab.Symbol {
	switch {
	case val.Const && val.Type.IsString():
		return ctx.materialize(val)
	case val.Indirect || !ctx.own.owns(val.Target):
		return ctx.copyBuffer(val)
	case val.Synthetic || ctx.canMove(val):
		return val
	}
	return ctx.copyBuffer(val)
}

// canMove reports whether a named owner may give its buffer away at this point. The move
// has to run exactly when the owner's scope runs, so it must sit directly in the owner's
// block, and the owner must not be mentioned again before that block ends.
func (ctx *Context) canMove(owner *symtab.Symbol) bool {
	r := ctx.own.lookup(owner.Target)
	if r == nil || r.depth != ctx.env.Depth() || len(ctx.pending) == 0 {
		return false
	}
	for _, stmt := range ctx.pending[len(ctx.pending)-1] {
		if ast.Mentions(stmt, owner.Name) {
			return false
		}
	}
	return true
}

// transfer makes target the owner of val's buffer. target's previous buffer is freed
// first and a named source is cleared so its later frees are no-ops.
func (ctx *Context) transfer(target, val *symtab.Symbol) {
	if target.Target == val.Target && target.Indirect == val.Indirect {
		return
	}
	src := ctx.ownedValue(val)

	if target.Indirect {
		// The caller's variable keeps owning whatever it holds.
		ctx.emit(ir.Free, "free(%s);", ref(target))
		ctx.emit(ir.Assign, "%s = %s;", ref(target), src.Target)
		if target.Type.IsArray() {
			ctx.emit(ir.Assign, "%s = %s;", sizeRef(target), sizeRef(src))
		}
		ctx.own.release(src.Target)
		ctx.clearSource(src)
		return
	}

	ctx.freeOwner(target.Target)
	ctx.emit(ir.Assign, "%s = %s;", target.Target, src.Target)
	if target.Type.IsArray() {
		ctx.emit(ir.Assign, "%s = %s;", target.SizeName, sizeRef(src))
	}
	ctx.clearSource(src)
	ctx.own.move(src.Target, target.Target, target.Depth)
}

// clearSource nulls a named variable that just gave its buffer away.
func (ctx *Context) clearSource(src *symtab.Symbol) {
	if src.Synthetic {
		return
	}
	ctx.emit(ir.Assign, "%s = NULL;", src.Target)
	if src.Type.IsArray() {
		ctx.emit(ir.Assign, "%s = 0;", src.SizeName)
	}
}

func (ctx *Context) codegenAssign(node *ast.Node) {
	d := node.Data.(ast.AssignNode)
	val := ctx.codegenValue(d.Rhs)

	var target *symtab.Symbol
	switch d.Lhs.Type {
	case ast.Ident:
		if target = ctx.tc.ResolveIdent(d.Lhs); target == nil {
			return
		}
	case ast.BinaryOp:
		if d.Lhs.Data.(ast.BinaryOpNode).Op != token.Index {
			ctx.errorf(d.Lhs.Tok, "invalid assignment target")
			return
		}
		target = ctx.codegenExpr(d.Lhs)
	default:
		ctx.errorf(d.Lhs.Tok, "invalid assignment target")
		return
	}

	if target.Type.IsUnknown() || val.Type.IsUnknown() {
		return
	}
	if !ctx.tc.CheckAssign(node.Tok, target.Type, val.Type) {
		return
	}

	if target.Type.IsBuffer() {
		ctx.transfer(target, val)
		return
	}
	ctx.emit(ir.Assign, "%s = %s;", ref(target), ref(val))
}

package symtab

import (
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/gpas/pkg/ast"
)

func variable(name string, t *ast.Type) *Symbol {
	return &Symbol{Name: name, Kind: Variable, Type: t, Target: "v_" + name}
}

func exact(p Param, arg *ast.Type) bool { return p.Type.Equal(arg) }

func TestEnterExitRestoresVisibility(t *testing.T) {
	env := New()
	be.Equal(t, env.Depth(), 0)

	env.Enter()
	be.Err(t, env.Declare(variable("x", ast.TypeInteger)), nil)
	env.Enter()
	be.Equal(t, env.Depth(), 2)
	be.Err(t, env.Declare(variable("y", ast.TypeReal)), nil)

	y, err := env.Lookup("y")
	be.Err(t, err, nil)
	be.Equal(t, y.Depth, 2)

	env.Exit()
	_, err = env.Lookup("y")
	be.Err(t, err, ErrUndeclared)
	x, err := env.Lookup("x")
	be.Err(t, err, nil)
	be.Equal(t, x.Depth, 1)
}

func TestExitAtOutermostScopeIsNoop(t *testing.T) {
	env := New()
	env.Exit()
	be.Equal(t, env.Depth(), 0)
}

func TestShadowingAndRestore(t *testing.T) {
	env := New()
	env.Enter()
	be.Err(t, env.Declare(variable("x", ast.TypeInteger)), nil)
	env.Enter()
	be.True(t, env.Shadows("x") != nil)
	be.Err(t, env.Declare(variable("x", ast.TypeString)), nil)

	inner, _ := env.Lookup("x")
	be.Equal(t, inner.Type.String(), "string")

	env.Exit()
	outer, _ := env.Lookup("x")
	be.Equal(t, outer.Type.String(), "integer")
	be.Equal(t, env.Shadows("x"), (*Symbol)(nil))
}

func TestRedeclarationSameDepth(t *testing.T) {
	env := New()
	be.Err(t, env.Declare(variable("x", ast.TypeInteger)), nil)
	err := env.Declare(variable("x", ast.TypeReal))
	be.Err(t, err, ErrRedeclared)
	be.Err(t, err, "'x' is already declared in this scope")
}

func TestSameNameDifferentKinds(t *testing.T) {
	env := New()
	be.Err(t, env.Declare(&Symbol{Name: "f", Kind: Function, Type: ast.TypeInteger}), nil)
	be.Err(t, env.Declare(&Symbol{Name: "f", Kind: Procedure, Type: ast.TypeVoid}), nil)
	be.Err(t, env.Declare(variable("f", ast.TypeInteger)), nil)

	v, err := env.Lookup("f")
	be.Err(t, err, nil)
	be.Equal(t, v.Kind, Variable)
}

func TestLookupSkipsCallables(t *testing.T) {
	env := New()
	be.Err(t, env.Declare(&Symbol{Name: "f", Kind: Procedure, Type: ast.TypeVoid}), nil)
	_, err := env.Lookup("f")
	be.Err(t, err, ErrUndeclared)
	be.True(t, env.LookupAny("f") != nil)
}

func TestTargetAlias(t *testing.T) {
	env := New()
	env.Enter()
	be.Err(t, env.Declare(variable("count", ast.TypeInteger)), nil)

	alias := env.LookupTarget("v_count")
	be.True(t, alias != nil)
	be.Equal(t, alias.Name, "v_count")
	be.Equal(t, alias.Target, "v_count")
	be.True(t, alias.Synthetic)

	// Aliases never answer user lookups.
	_, err := env.Lookup("v_count")
	be.Err(t, err, ErrUndeclared)
}

func TestSyntheticSymbolsSkipRedeclarationCheck(t *testing.T) {
	env := New()
	tmp := &Symbol{Name: "tmp_0", Kind: Variable, Type: ast.TypeInteger, Target: "tmp_0", Synthetic: true}
	be.Err(t, env.Declare(tmp), nil)
	be.Err(t, env.Declare(variable("tmp_0", ast.TypeInteger)), nil)
	be.Equal(t, env.LookupTarget("tmp_0").Synthetic, true)
}

func TestLookupCallableExact(t *testing.T) {
	env := New()
	f := &Symbol{Name: "f", Kind: Function, Type: ast.TypeInteger,
		Params: []Param{{Name: "a", Type: ast.TypeInteger}, {Name: "b", Type: ast.TypeString}}}
	be.Err(t, env.Declare(f), nil)

	got, err := env.LookupCallable("f", []*ast.Type{ast.TypeInteger, ast.TypeString}, exact)
	be.Err(t, err, nil)
	be.Equal(t, got, f)
}

func TestLookupCallableFallbackPicksFewestMismatches(t *testing.T) {
	env := New()
	fn := &Symbol{Name: "g", Kind: Function, Type: ast.TypeReal,
		Params: []Param{{Name: "a", Type: ast.TypeInteger}, {Name: "b", Type: ast.TypeInteger}}}
	proc := &Symbol{Name: "g", Kind: Procedure, Type: ast.TypeVoid,
		Params: []Param{{Name: "a", Type: ast.TypeString}, {Name: "b", Type: ast.TypeString}}}
	be.Err(t, env.Declare(fn), nil)
	be.Err(t, env.Declare(proc), nil)

	got, err := env.LookupCallable("g", []*ast.Type{ast.TypeInteger, ast.TypeBoolean}, exact)
	be.Err(t, err, "wrong arguments in call to 'g', expected g(integer, integer): real")
	be.Equal(t, got, fn)
}

func TestLookupCallableArityCountsAsMismatch(t *testing.T) {
	env := New()
	p := &Symbol{Name: "p", Kind: Procedure, Type: ast.TypeVoid, Params: []Param{{Name: "a", Type: ast.TypeInteger}}}
	be.Err(t, env.Declare(p), nil)

	got, err := env.LookupCallable("p", nil, exact)
	be.Err(t, err, "wrong arguments in call to 'p', expected p(integer)")
	be.Equal(t, got, p)
}

func TestLookupCallableUndeclared(t *testing.T) {
	env := New()
	got, err := env.LookupCallable("nope", nil, exact)
	be.Err(t, err, ErrUndeclared)
	be.Equal(t, got, (*Symbol)(nil))
}

func TestInnerCallableHidesOuterOfSameKind(t *testing.T) {
	env := New()
	outer := &Symbol{Name: "h", Kind: Procedure, Type: ast.TypeVoid}
	be.Err(t, env.Declare(outer), nil)
	env.Enter()
	inner := &Symbol{Name: "h", Kind: Procedure, Type: ast.TypeVoid, Params: []Param{{Name: "x", Type: ast.TypeInteger}}}
	be.Err(t, env.Declare(inner), nil)

	be.Equal(t, len(env.callables("h")), 1)
	got, _ := env.LookupCallable("h", nil, exact)
	be.Equal(t, got, inner)
}

func TestSignature(t *testing.T) {
	s := &Symbol{Name: "swap", Kind: Procedure, Type: ast.TypeVoid, Params: []Param{
		{Name: "a", Type: ast.ArrayOf(ast.TypeReal), ByRef: true},
		{Name: "n", Type: ast.TypeInteger},
	}}
	be.Equal(t, s.Signature(), "swap(var array of real, integer)")
	be.Equal(t, len(s.ParamTypes()), 2)
}

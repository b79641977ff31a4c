package codegen

import (
	"fmt"
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/gpas/pkg/config"
	"github.com/xplshn/gpas/pkg/golden"
	"github.com/xplshn/gpas/pkg/ir"
	"github.com/xplshn/gpas/pkg/lexer"
	"github.com/xplshn/gpas/pkg/parser"
	"github.com/xplshn/gpas/pkg/util"
)

// compile parses and lowers src after applying -W/-F flags. Syntax errors fail the test.
func compile(t *testing.T, src string, flags ...string) (*ir.Unit, *util.Reporter) {
	t.Helper()
	cfg := config.NewConfig()
	cfg.ProcessFlagString(strings.Join(flags, " "))
	rep := util.NewReporter(cfg)
	root := parser.NewParser(lexer.NewLexer([]rune(src), 0, cfg, rep), rep).Parse()
	be.Equal(t, rep.ErrorCount(), 0)
	return Generate(root, cfg, rep), rep
}

// body returns every statement text except the prologue.
func body(u *ir.Unit) []string {
	var out []string
	for _, s := range u.Stmts {
		if s.Kind != ir.Prologue {
			out = append(out, s.Text)
		}
	}
	return out
}

func messages(diags []util.Diagnostic) []string {
	var out []string
	for _, d := range diags {
		out = append(out, fmt.Sprintf("%d:%d: %s", d.Line(), d.Column(), d.Message))
	}
	return out
}

func contains(t *testing.T, got []string, want ...string) {
	t.Helper()
	if missing, ok := golden.MatchInOrder(want, got); !ok {
		t.Fatalf("missing %q in order; got:\n%s", missing, strings.Join(got, "\n"))
	}
}

func TestScalarAssignmentThroughTemporary(t *testing.T) {
	u, rep := compile(t, `program p;
var i: integer;
begin
  i := 2 + 3
end.`)
	be.Equal(t, rep.ErrorCount(), 0)
	be.Equal(t, body(u), []string{
		"int main(void) {",
		"int v_i = 0;",
		"int tmp_0 = 2 + 3;",
		"v_i = tmp_0;",
		"return 0;",
		"}",
	})
}

func TestPrologue(t *testing.T) {
	u, _ := compile(t, "program demo;\nbegin\nend.")
	pro := u.Texts(ir.Prologue)
	be.Equal(t, len(pro), 5)
	be.True(t, strings.HasPrefix(pro[0], "/* program demo, fingerprint "))
	be.True(t, strings.Contains(pro[0], fmt.Sprintf("%016x", u.Fingerprint())))
	be.Equal(t, pro[1:], []string{
		"#include <stdbool.h>", "#include <stdio.h>", "#include <stdlib.h>", "#include <string.h>",
	})

	u, _ = compile(t, "program demo;\nbegin\nend.", "-Fno-prologue")
	be.Equal(t, u.Count(ir.Prologue), 0)
	be.Equal(t, u.Stmts[0].Text, "int main(void) {")
}

func TestStringLifecycle(t *testing.T) {
	u, rep := compile(t, `program p;
var s: string;
begin
  s := 'hi';
  writeln(s)
end.`)
	be.Equal(t, rep.ErrorCount(), 0)
	be.Equal(t, body(u), []string{
		"int main(void) {",
		"char* v_s = (char*)malloc(256);",
		`v_s[0] = '\0';`,
		"char* tmp_0 = (char*)malloc(256);",
		`strncpy(tmp_0, "hi", 255);`,
		`tmp_0[255] = '\0';`,
		"free(v_s);",
		"v_s = tmp_0;",
		`printf("%s\n", v_s);`,
		"free(v_s);",
		"return 0;",
		"}",
	})
	be.Equal(t, u.Count(ir.Alloc), u.Count(ir.Free))
}

func TestStringCapacity(t *testing.T) {
	cfg := config.NewConfig()
	be.Err(t, cfg.SetStringCapacity(16), nil)
	rep := util.NewReporter(cfg)
	root := parser.NewParser(lexer.NewLexer([]rune("program p;\nvar s: string;\nbegin\n  read(s)\nend."), 0, cfg, rep), rep).Parse()
	u := Generate(root, cfg, rep)
	be.Equal(t, rep.ErrorCount(), 0)
	contains(t, body(u), "char* v_s = (char*)malloc(16);", `scanf("%15s", v_s);`)
}

func TestArrayMoveClearsSource(t *testing.T) {
	u, rep := compile(t, `program p;
var a, b: array[3] of integer;
begin
  a := b
end.`)
	be.Equal(t, rep.ErrorCount(), 0)
	be.Equal(t, body(u), []string{
		"int main(void) {",
		"int size_a = 3;",
		"int* v_a = (int*)malloc(size_a * sizeof(int));",
		"int size_b = 3;",
		"int* v_b = (int*)malloc(size_b * sizeof(int));",
		"free(v_a);",
		"v_a = v_b;",
		"size_a = size_b;",
		"v_b = NULL;",
		"size_b = 0;",
		"free(v_a);",
		"return 0;",
		"}",
	})
}

func TestArrayElementAccess(t *testing.T) {
	u, rep := compile(t, `program p;
var a: array[4] of real;
    i: integer;
    x: real;
begin
  a[i] := 1.5;
  x := a[i + 1];
  i := length(a)
end.`)
	be.Equal(t, rep.ErrorCount(), 0)
	contains(t, body(u),
		"double* tmp_0 = &v_a[v_i];",
		"*tmp_0 = 1.5;",
		"int tmp_1 = v_i + 1;",
		"double* tmp_2 = &v_a[tmp_1];",
		"v_x = *tmp_2;",
		"int tmp_3 = size_a;",
		"v_i = tmp_3;",
	)
}

func TestLabelsAreUniquePerCounter(t *testing.T) {
	u, rep := compile(t, `program p;
var i: integer;
begin
  while i < 3 do
  begin
    while i < 2 do i := i + 1;
    i := i + 1
  end;
  if i = 3 then writeln('three') else writeln('other');
  if i = 4 then writeln('four');
  while i > 0 do i := i - 1
end.`)
	be.Equal(t, rep.ErrorCount(), 0)
	labels := u.Texts(ir.Label)
	be.Equal(t, labels, []string{
		"while_entry_0:;", "while_entry_1:;", "while_exit_1:;", "while_exit_0:;",
		"if_entry_0:;", "else_entry_0:;", "if_exit_0:;",
		"if_entry_1:;", "else_entry_1:;", "if_exit_1:;",
		"while_entry_2:;", "while_exit_2:;",
	})
	seen := map[string]bool{}
	for _, l := range labels {
		be.Equal(t, seen[l], false)
		seen[l] = true
	}
}

func TestWhileLowering(t *testing.T) {
	u, _ := compile(t, `program p;
var i: integer;
begin
  while i < 3 do i := i + 1
end.`)
	contains(t, body(u),
		"while_entry_0:;",
		"bool tmp_0 = v_i < 3;",
		"if (!(tmp_0)) goto while_exit_0;",
		"{",
		"int tmp_1 = v_i + 1;",
		"v_i = tmp_1;",
		"}",
		"goto while_entry_0;",
		"while_exit_0:;",
	)
}

func TestIfElseLowering(t *testing.T) {
	u, _ := compile(t, `program p;
var s: string;
begin
  if s = 'x' then writeln(1) else writeln(2)
end.`)
	contains(t, body(u),
		"if_entry_0:;",
		`bool tmp_0 = strcmp(v_s, "x") == 0;`,
		"if (!(tmp_0)) goto else_entry_0;",
		`printf("%d\n", 1);`,
		"goto if_exit_0;",
		"else_entry_0:;",
		`printf("%d\n", 2);`,
		"if_exit_0:;",
	)
}

func TestAssertLowering(t *testing.T) {
	src := `program p;
var i: integer;
begin
  assert(i >= 0)
end.`
	u, _ := compile(t, src)
	contains(t, body(u),
		"assert_entry_0:;",
		"bool tmp_0 = v_i >= 0;",
		"if (tmp_0) goto assert_exit_0;",
		`fprintf(stderr, "%s", "assertion failed at 4:3: i >= 0\n");`,
		"abort();",
		"assert_exit_0:;",
	)

	u, rep := compile(t, src, "-Fno-assert")
	be.Equal(t, rep.ErrorCount(), 0)
	be.Equal(t, u.Count(ir.Label), 0)
	be.Equal(t, u.Count(ir.Abort), 0)
}

func TestDisabledAssertStillChecksCondition(t *testing.T) {
	_, rep := compile(t, "program p;\nbegin\n  assert(1)\nend.", "-Fno-assert")
	be.Equal(t, messages(rep.Errors()), []string{"3:10: assert condition must be boolean, got integer"})
}

func TestIndirectConditionIsCopied(t *testing.T) {
	u, _ := compile(t, `program p;
var flags: array[2] of boolean;
begin
  while flags[0] do flags[0] := false
end.`)
	contains(t, body(u),
		"bool* tmp_0 = &v_flags[0];",
		"bool tmp_1 = *tmp_0;",
		"if (!(tmp_1)) goto while_exit_0;",
	)
}

func TestByReferenceParameters(t *testing.T) {
	u, rep := compile(t, `program p;
procedure inc(var x: integer);
begin
  x := x + 1
end;
var i: integer;
begin
  inc(i)
end.`)
	be.Equal(t, rep.ErrorCount(), 0)
	be.Equal(t, body(u), []string{
		"void f_inc(int* v_x);",
		"void f_inc(int* v_x) {",
		"int tmp_0 = *v_x + 1;",
		"*v_x = tmp_0;",
		"}",
		"int main(void) {",
		"int v_i = 0;",
		"f_inc(&v_i);",
		"return 0;",
		"}",
	})
}

func TestByReferenceStringReplacesCallerBuffer(t *testing.T) {
	u, rep := compile(t, `program p;
procedure fill(var s: string);
begin
  s := 'full'
end;
var t: string;
begin
  fill(t)
end.`)
	be.Equal(t, rep.ErrorCount(), 0)
	contains(t, body(u),
		"void f_fill(char** v_s) {",
		"char* tmp_0 = (char*)malloc(256);",
		"free(*v_s);",
		"*v_s = tmp_0;",
		"}",
		"f_fill(&v_t);",
		"free(v_t);",
	)
	// The callee frees nothing else: the caller still owns the buffer.
	be.Equal(t, u.Count(ir.Free), 2)
}

func TestValueStringParameterIsCopiedAndReturned(t *testing.T) {
	u, rep := compile(t, `program p;
function greet(name: string): string;
begin
  return 'hi ' + name
end;
var s: string;
begin
  s := greet('bob')
end.`)
	be.Equal(t, rep.ErrorCount(), 0)
	be.Equal(t, len(rep.Warnings()), 0)
	be.Equal(t, body(u), []string{
		"char* f_greet(char* v_name);",
		"char* f_greet(char* v_name) {",
		"char* tmp_0 = (char*)malloc(256);",
		"strncpy(tmp_0, v_name, 255);",
		`tmp_0[255] = '\0';`,
		"v_name = tmp_0;",
		"char* tmp_1 = (char*)malloc(256);",
		`snprintf(tmp_1, 256, "%s%s", "hi ", v_name);`,
		"free(v_name);",
		"return tmp_1;",
		"}",
		"int main(void) {",
		"char* v_s = (char*)malloc(256);",
		`v_s[0] = '\0';`,
		`char* tmp_2 = f_greet("bob");`,
		"free(v_s);",
		"v_s = tmp_2;",
		"free(v_s);",
		"return 0;",
		"}",
	})
}

func TestArrayReturn(t *testing.T) {
	u, rep := compile(t, `program p;
function mk(n: integer): array of integer;
var r: array[n] of integer;
begin
  r[0] := n;
  return r
end;
var b: array[1] of integer;
begin
  b := mk(3);
  writeln(length(b))
end.`)
	be.Equal(t, rep.ErrorCount(), 0)
	contains(t, body(u),
		"int* f_mk(int v_n, int* out_size);",
		"int* f_mk(int v_n, int* out_size) {",
		"int size_r = v_n;",
		"int* v_r = (int*)malloc(size_r * sizeof(int));",
		"int* tmp_0 = &v_r[0];",
		"*tmp_0 = v_n;",
		"*out_size = size_r;",
		"return v_r;",
		"}",
		"int size_b = 1;",
		"int size_tmp_1;",
		"int* tmp_1 = f_mk(3, &size_tmp_1);",
		"free(v_b);",
		"v_b = tmp_1;",
		"size_b = size_tmp_1;",
		"int tmp_2 = size_b;",
		`printf("%d\n", tmp_2);`,
		"free(v_b);",
	)
	// v_r is handed to the caller, never freed in the callee.
	for _, line := range body(u) {
		be.True(t, line != "free(v_r);")
	}
}

func TestValueArrayParameterIsCopied(t *testing.T) {
	u, rep := compile(t, `program p;
procedure zero(a: array of integer);
begin
  a[0] := 0
end;
var b: array[2] of integer;
begin
  zero(b)
end.`)
	be.Equal(t, rep.ErrorCount(), 0)
	contains(t, body(u),
		"void f_zero(int* v_a, int size_a) {",
		"int size_tmp_0 = size_a;",
		"int* tmp_0 = (int*)malloc(size_tmp_0 * sizeof(int));",
		"memcpy(tmp_0, v_a, size_tmp_0 * sizeof(int));",
		"v_a = tmp_0;",
		"size_a = size_tmp_0;",
		"free(v_a);",
		"}",
		"f_zero(v_b, size_b);",
	)
}

func TestEarlyReturnFreesEveryLiveBuffer(t *testing.T) {
	u, rep := compile(t, `program p;
function f(n: integer): integer;
var s: string;
begin
  if n > 0 then
  begin
    var t: string;
    return n
  end;
  return 0
end;
begin
end.`)
	be.Equal(t, rep.ErrorCount(), 0)
	contains(t, body(u),
		"char* v_s = (char*)malloc(256);",
		"char* v_t = (char*)malloc(256);",
		"free(v_s);",
		"free(v_t);",
		"return v_n;",
		"}",
		"goto if_exit_0;",
		"free(v_s);",
		"return 0;",
	)
	be.Equal(t, u.Count(ir.Free), 3)
}

func TestIndirectScalarReturnIsCopiedBeforeFree(t *testing.T) {
	u, _ := compile(t, `program p;
function first(a: array of integer): integer;
begin
  return a[0]
end;
begin
end.`)
	contains(t, body(u),
		"int* tmp_1 = &v_a[0];",
		"int tmp_2 = *tmp_1;",
		"free(v_a);",
		"return tmp_2;",
	)
}

func TestFallbackReturn(t *testing.T) {
	src := `program p;
function f: integer;
begin
  writeln('no return')
end;
begin
end.`
	u, rep := compile(t, src)
	be.Equal(t, messages(rep.Warnings()), []string{"2:10: function 'f' may reach its end without returning a value"})
	contains(t, body(u), "int f_f(void) {", `printf("%s\n", "no return");`, "return 0;", "}")

	u, rep = compile(t, src, "-Fno-fallback-return", "-Wno-extra")
	be.Equal(t, len(rep.Warnings()), 0)
	be.Equal(t, u.Count(ir.Return), 1)
}

func TestUnusedResultWarning(t *testing.T) {
	src := `program p;
function f: integer;
begin
  return 1
end;
begin
  f
end.`
	_, rep := compile(t, src)
	be.Equal(t, messages(rep.Warnings()), []string{"7:3: result of function 'f' is discarded"})

	_, rep = compile(t, src, "-Wno-unused-result")
	be.Equal(t, len(rep.Warnings()), 0)
}

func TestShadowingRenamesInnerVariable(t *testing.T) {
	src := `program p;
var x: integer;
begin
  begin
    var x: string;
    x := 'a'
  end;
  x := 1
end.`
	u, rep := compile(t, src, "-Wshadow")
	be.Equal(t, rep.ErrorCount(), 0)
	be.Equal(t, messages(rep.Warnings()), []string{"5:9: declaration of 'x' shadows a variable from an outer scope"})
	contains(t, body(u),
		"int v_x = 0;",
		"{",
		"char* v_x_2 = (char*)malloc(256);",
		"v_x_2 = tmp_0;",
		"free(v_x_2);",
		"}",
		"v_x = 1;",
	)

	_, rep = compile(t, src)
	be.Equal(t, len(rep.Warnings()), 0)
}

func TestCallablesSharingANameGetDistinctTargets(t *testing.T) {
	u, rep := compile(t, `program p;
function f(n: integer): integer;
begin
  return n
end;
procedure f(s: string);
begin
  writeln(s)
end;
var i: integer;
begin
  i := f(1);
  f('x')
end.`)
	be.Equal(t, rep.ErrorCount(), 0)
	contains(t, body(u),
		"int f_f(int v_n);",
		"void f_f_procedure(char* v_s);",
		"int tmp_1 = f_f(1);",
		`f_f_procedure("x");`,
	)
}

func TestBuiltinIO(t *testing.T) {
	u, rep := compile(t, `program p;
var i: integer;
    r: real;
    b: boolean;
    s: string;
begin
  read(i, r, s);
  write(i, ' ', r);
  writeln(b);
  writeln
end.`)
	be.Equal(t, rep.ErrorCount(), 0)
	be.Equal(t, u.Texts(ir.IO), []string{
		`scanf("%d %lf %255s", &v_i, &v_r, v_s);`,
		`printf("%d%s%f", v_i, " ", v_r);`,
		`printf("%s\n", v_b ? "true" : "false");`,
		`printf("\n");`,
	})
}

func TestBooleanLiteralFallback(t *testing.T) {
	u, rep := compile(t, `program p;
var b: boolean;
begin
  b := true;
  begin
    var true: integer;
    true := 2
  end
end.`)
	be.Equal(t, rep.ErrorCount(), 0)
	contains(t, body(u), "v_b = true;", "int v_true = 0;", "v_true = 2;")
}

func TestRealWidening(t *testing.T) {
	u, rep := compile(t, `program p;
var r: real;
begin
  r := 1 + 2.5
end.`)
	be.Equal(t, rep.ErrorCount(), 0)
	contains(t, body(u), "double v_r = 0.0;", "double tmp_0 = 1 + 2.5;", "v_r = tmp_0;")
}

func TestSemanticErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			"undeclared once",
			"program p;\nvar x: integer;\nbegin\n  x := y + 1\nend.",
			[]string{"4:8: undeclared identifier 'y'"},
		},
		{
			"assignment mismatch",
			"program p;\nvar i: integer;\nbegin\n  i := 'a'\nend.",
			[]string{"4:5: cannot assign string to integer"},
		},
		{
			"redeclared",
			"program p;\nvar i: integer;\n    i: real;\nbegin\nend.",
			[]string{"3:5: 'i' is already declared in this scope"},
		},
		{
			"program variables are not visible in callables",
			"program p;\nprocedure q;\nbegin\n  g := 1\nend;\nvar g: integer;\nbegin\nend.",
			[]string{"4:3: undeclared identifier 'g'"},
		},
		{
			"builtin redeclared",
			"program p;\nprocedure writeln;\nbegin\nend;\nbegin\nend.",
			[]string{"2:11: 'writeln' is a predefined procedure and cannot be redeclared"},
		},
		{
			"string array",
			"program p;\nvar a: array[2] of string;\nbegin\nend.",
			[]string{"2:5: array elements must be integer, real or boolean, got string"},
		},
		{
			"real array size",
			"program p;\nvar a: array[1.5] of integer;\nbegin\nend.",
			[]string{"2:14: array size must be integer, got real"},
		},
		{
			"return value from procedure",
			"program p;\nprocedure q;\nbegin\n  return 1\nend;\nbegin\nend.",
			[]string{"4:3: return with a value outside a function"},
		},
		{
			"non boolean while",
			"program p;\nbegin\n  while 1 do writeln\nend.",
			[]string{"3:9: while condition must be boolean, got integer"},
		},
		{
			"callable used as a value",
			"program p;\nfunction f: integer;\nbegin\n  return 1\nend;\nvar i: integer;\nbegin\n  i := f + 1\nend.",
			[]string{"8:8: function 'f' cannot be used as a value"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rep := compile(t, tt.src)
			be.Equal(t, messages(rep.Errors()), tt.want)
		})
	}
}

func TestCQuote(t *testing.T) {
	be.Equal(t, cQuote(`a"b\c`), `"a\"b\\c"`)
	be.Equal(t, cQuote("tab\there\n"), `"tab\there\n"`)
	be.Equal(t, cQuote("\x01"), `"\001"`)
}

func TestTrackerOrdersStringsBeforeArrays(t *testing.T) {
	tr := newTracker()
	tr.alloc("v_a", 1, true)
	tr.alloc("v_s", 1, false)
	tr.alloc("v_t", 2, false)
	tr.move("v_t", "v_u", 1)

	var owners []string
	for _, r := range tr.atDepth(1) {
		owners = append(owners, r.owner)
	}
	be.Equal(t, owners, []string{"v_s", "v_u", "v_a"})
	be.Equal(t, tr.owns("v_t"), false)
	be.Equal(t, len(tr.from(0, "v_s")), 2)

	tr.reset()
	be.Equal(t, len(tr.from(0, "")), 0)
}

func TestGoldenScenarios(t *testing.T) {
	for _, file := range []string{"testdata/lowering.md", "testdata/diagnostics.md"} {
		cases, err := golden.Load(file)
		be.Err(t, err, nil)
		for _, c := range cases {
			t.Run(c.Name, func(t *testing.T) {
				cfg := config.NewConfig()
				cfg.ProcessFlagString(c.Flags)
				rep := util.NewReporter(cfg)
				root := parser.NewParser(lexer.NewLexer([]rune(c.Source), 0, cfg, rep), rep).Parse()
				u := Generate(root, cfg, rep)

				if c.HasErrors {
					got := messages(rep.Errors())
					if len(c.Errors) == 0 {
						got = nil
					}
					be.Equal(t, got, c.Errors)
				}
				if c.C != nil {
					contains(t, u.Lines(), c.C...)
				}
			})
		}
	}
}

func TestBackends(t *testing.T) {
	cfg := config.NewConfig()
	u, _ := compile(t, "program p;\nvar i: integer;\nbegin\n  i := 1\nend.")

	c, err := NewBackend("C")
	be.Err(t, err, nil)
	out, err := c.Generate(u, cfg)
	be.Err(t, err, nil)
	be.Equal(t, out.String(), u.String())

	listing, err := NewBackend("ir")
	be.Err(t, err, nil)
	out, err = listing.Generate(u, cfg)
	be.Err(t, err, nil)
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	be.Equal(t, lines[0], fmt.Sprintf("; %d statements, string capacity 256, fingerprint %016x", len(u.Stmts), u.Fingerprint()))
	be.Equal(t, len(lines), len(u.Stmts)+1)
	be.Equal(t, lines[len(lines)-2], "return      1  return 0;")
	be.Equal(t, lines[len(lines)-1], "func-end    0  }")

	_, err = c.Generate(nil, cfg)
	be.Err(t, err, "no translation unit")
	_, err = NewBackend("qbe")
	be.Err(t, err, "unsupported backend 'qbe'")
}

// Package ast defines the types used to represent the Abstract Syntax Tree (AST)
package ast

import (
	"github.com/xplshn/gpas/pkg/token"
)

// NodeType defines the kind of a node in the AST
type NodeType int

// Node types enum
const (
	// Expressions
	Integer NodeType = iota
	Real
	String
	Boolean
	Ident
	BinaryOp
	UnaryOp
	Sign
	Call

	// Statements and declarations
	Program
	Callable
	Param
	VarDecl
	Block
	Assign
	Return
	While
	If
	Assert
)

// Node represents a node in the Abstract Syntax Tree
type Node struct {
	Type   NodeType
	Tok    token.Token
	Parent *Node
	Data   interface{}
}

// TypeKind defines the kind of a semantic Type
type TypeKind int

// Type kinds enum
const (
	TYPE_UNKNOWN TypeKind = iota
	TYPE_VOID
	TYPE_INTEGER
	TYPE_REAL
	TYPE_BOOLEAN
	TYPE_STRING
	TYPE_ARRAY
)

// Type is a semantic type of the source language
type Type struct {
	Kind TypeKind
	Elem *Type // Element type for arrays
}

// Pre-defined types
var (
	TypeUnknown = &Type{Kind: TYPE_UNKNOWN}
	TypeVoid    = &Type{Kind: TYPE_VOID}
	TypeInteger = &Type{Kind: TYPE_INTEGER}
	TypeReal    = &Type{Kind: TYPE_REAL}
	TypeBoolean = &Type{Kind: TYPE_BOOLEAN}
	TypeString  = &Type{Kind: TYPE_STRING}
)

func ArrayOf(elem *Type) *Type { return &Type{Kind: TYPE_ARRAY, Elem: elem} }

func (t *Type) IsUnknown() bool { return t == nil || t.Kind == TYPE_UNKNOWN }
func (t *Type) IsArray() bool   { return t != nil && t.Kind == TYPE_ARRAY }
func (t *Type) IsString() bool  { return t != nil && t.Kind == TYPE_STRING }
func (t *Type) IsNumeric() bool { return t != nil && (t.Kind == TYPE_INTEGER || t.Kind == TYPE_REAL) }

// IsBuffer reports whether values of this type live in a heap buffer.
func (t *Type) IsBuffer() bool { return t.IsArray() || t.IsString() }

// Equal compares structurally; arrays of equal element types are equal regardless of size.
func (t *Type) Equal(o *Type) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Kind != o.Kind {
		return false
	}
	if t.Kind == TYPE_ARRAY {
		return t.Elem.Equal(o.Elem)
	}
	return true
}

func (t *Type) String() string { return TypeToString(t) }

func TypeToString(t *Type) string {
	if t == nil {
		return "unknown"
	}
	switch t.Kind {
	case TYPE_VOID: return "void"
	case TYPE_INTEGER: return "integer"
	case TYPE_REAL: return "real"
	case TYPE_BOOLEAN: return "boolean"
	case TYPE_STRING: return "string"
	case TYPE_ARRAY: return "array of " + TypeToString(t.Elem)
	}
	return "unknown"
}

// --- Node Data Structs ---
type IntegerNode struct{ Value int64 }
type RealNode struct{ Value float64; Text string }
type StringNode struct{ Value string }
type BooleanNode struct{ Value bool }
type IdentNode struct{ Name string }
type BinaryOpNode struct{ Op token.Type; Left, Right *Node }
type UnaryOpNode struct{ Op token.Type; Expr *Node }
type SignNode struct{ Op token.Type; Expr *Node }
type CallNode struct{ Name string; Args []*Node }
type ProgramNode struct {
	Name      string
	Callables []*Node
	Body      *Node
}
type CallableNode struct {
	Name       string
	IsFunction bool
	Params     []*Node
	ReturnType *Type
	Body       *Node
}
type ParamNode struct{ Name string; Type *Type; ByRef bool }
type VarDeclNode struct {
	Name     string
	Type     *Type
	SizeExpr *Node // nil when the array has no explicit size
}
type BlockNode struct{ Stmts []*Node }
type AssignNode struct{ Lhs, Rhs *Node }
type ReturnNode struct{ Expr *Node }
type WhileNode struct{ Cond, Body *Node }
type IfNode struct{ Cond, ThenBody, ElseBody *Node }
type AssertNode struct{ Cond *Node }

// --- Node Constructors ---

func newNode(tok token.Token, nodeType NodeType, data interface{}, children ...*Node) *Node {
	node := &Node{Type: nodeType, Tok: tok, Data: data}
	for _, child := range children {
		if child != nil {
			child.Parent = node
		}
	}
	return node
}

func NewInteger(tok token.Token, value int64) *Node {
	return newNode(tok, Integer, IntegerNode{Value: value})
}
func NewReal(tok token.Token, value float64, text string) *Node {
	return newNode(tok, Real, RealNode{Value: value, Text: text})
}
func NewString(tok token.Token, value string) *Node {
	return newNode(tok, String, StringNode{Value: value})
}
func NewBoolean(tok token.Token, value bool) *Node {
	return newNode(tok, Boolean, BooleanNode{Value: value})
}
func NewIdent(tok token.Token, name string) *Node {
	return newNode(tok, Ident, IdentNode{Name: name})
}
func NewBinaryOp(tok token.Token, op token.Type, left, right *Node) *Node {
	return newNode(tok, BinaryOp, BinaryOpNode{Op: op, Left: left, Right: right}, left, right)
}
func NewIndex(tok token.Token, array, index *Node) *Node {
	return NewBinaryOp(tok, token.Index, array, index)
}
func NewUnaryOp(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, UnaryOp, UnaryOpNode{Op: op, Expr: expr}, expr)
}
func NewSign(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, Sign, SignNode{Op: op, Expr: expr}, expr)
}
func NewCall(tok token.Token, name string, args []*Node) *Node {
	return newNode(tok, Call, CallNode{Name: name, Args: args}, args...)
}
func NewProgram(tok token.Token, name string, callables []*Node, body *Node) *Node {
	node := newNode(tok, Program, ProgramNode{Name: name, Callables: callables, Body: body}, body)
	for _, c := range callables {
		c.Parent = node
	}
	return node
}
func NewCallable(tok token.Token, name string, isFunction bool, params []*Node, returnType *Type, body *Node) *Node {
	node := newNode(tok, Callable, CallableNode{
		Name: name, IsFunction: isFunction, Params: params, ReturnType: returnType, Body: body,
	}, body)
	for _, p := range params {
		p.Parent = node
	}
	return node
}
func NewParam(tok token.Token, name string, typ *Type, byRef bool) *Node {
	return newNode(tok, Param, ParamNode{Name: name, Type: typ, ByRef: byRef})
}
func NewVarDecl(tok token.Token, name string, typ *Type, sizeExpr *Node) *Node {
	return newNode(tok, VarDecl, VarDeclNode{Name: name, Type: typ, SizeExpr: sizeExpr}, sizeExpr)
}
func NewBlock(tok token.Token, stmts []*Node) *Node {
	return newNode(tok, Block, BlockNode{Stmts: stmts}, stmts...)
}
func NewAssign(tok token.Token, lhs, rhs *Node) *Node {
	return newNode(tok, Assign, AssignNode{Lhs: lhs, Rhs: rhs}, lhs, rhs)
}
func NewReturn(tok token.Token, expr *Node) *Node {
	return newNode(tok, Return, ReturnNode{Expr: expr}, expr)
}
func NewWhile(tok token.Token, cond, body *Node) *Node {
	return newNode(tok, While, WhileNode{Cond: cond, Body: body}, cond, body)
}
func NewIf(tok token.Token, cond, thenBody, elseBody *Node) *Node {
	return newNode(tok, If, IfNode{Cond: cond, ThenBody: thenBody, ElseBody: elseBody}, cond, thenBody, elseBody)
}
func NewAssert(tok token.Token, cond *Node) *Node {
	return newNode(tok, Assert, AssertNode{Cond: cond}, cond)
}

// IsLValue reports whether the node names storage that can be assigned or passed by reference.
func IsLValue(node *Node) bool {
	if node == nil {
		return false
	}
	switch node.Type {
	case Ident:
		return true
	case BinaryOp:
		return node.Data.(BinaryOpNode).Op == token.Index
	}
	return false
}

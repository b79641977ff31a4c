package ast

// Walk visits node and its descendants depth-first. Returning false from fn skips the
// children of that node.
func Walk(node *Node, fn func(*Node) bool) {
	if node == nil || !fn(node) {
		return
	}
	switch d := node.Data.(type) {
	case BinaryOpNode:
		Walk(d.Left, fn)
		Walk(d.Right, fn)
	case UnaryOpNode:
		Walk(d.Expr, fn)
	case SignNode:
		Walk(d.Expr, fn)
	case CallNode:
		walkAll(d.Args, fn)
	case ProgramNode:
		walkAll(d.Callables, fn)
		Walk(d.Body, fn)
	case CallableNode:
		walkAll(d.Params, fn)
		Walk(d.Body, fn)
	case VarDeclNode:
		Walk(d.SizeExpr, fn)
	case BlockNode:
		walkAll(d.Stmts, fn)
	case AssignNode:
		Walk(d.Lhs, fn)
		Walk(d.Rhs, fn)
	case ReturnNode:
		Walk(d.Expr, fn)
	case WhileNode:
		Walk(d.Cond, fn)
		Walk(d.Body, fn)
	case IfNode:
		Walk(d.Cond, fn)
		Walk(d.ThenBody, fn)
		Walk(d.ElseBody, fn)
	case AssertNode:
		Walk(d.Cond, fn)
	}
}

func walkAll(nodes []*Node, fn func(*Node) bool) {
	for _, n := range nodes {
		Walk(n, fn)
	}
}

// Mentions reports whether an identifier called name occurs anywhere under node.
func Mentions(node *Node, name string) bool {
	found := false
	Walk(node, func(n *Node) bool {
		if id, ok := n.Data.(IdentNode); ok && id.Name == name {
			found = true
		}
		return !found
	})
	return found
}

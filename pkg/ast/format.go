package ast

import (
	"strconv"
	"strings"

	"github.com/xplshn/gpas/pkg/token"
)

// Format renders an expression back in source syntax. It is used for assertion
// messages, so it favours readability over round-tripping exact spacing.
func Format(node *Node) string {
	var sb strings.Builder
	format(&sb, node, 0)
	return sb.String()
}

func precedence(op token.Type) int {
	switch op {
	case token.Or: return 1
	case token.And: return 2
	case token.Eq, token.Neq, token.Lt, token.Lte, token.Gt, token.Gte: return 3
	case token.Plus, token.Minus: return 4
	case token.Star, token.Slash, token.Rem, token.Mod: return 5
	}
	return 0
}

func format(sb *strings.Builder, node *Node, parentPrec int) {
	if node == nil {
		return
	}
	switch d := node.Data.(type) {
	case IntegerNode:
		sb.WriteString(strconv.FormatInt(d.Value, 10))
	case RealNode:
		if d.Text != "" {
			sb.WriteString(d.Text)
		} else {
			sb.WriteString(strconv.FormatFloat(d.Value, 'g', -1, 64))
		}
	case StringNode:
		sb.WriteByte('\'')
		sb.WriteString(strings.ReplaceAll(d.Value, "'", "''"))
		sb.WriteByte('\'')
	case BooleanNode:
		sb.WriteString(strconv.FormatBool(d.Value))
	case IdentNode:
		sb.WriteString(d.Name)
	case BinaryOpNode:
		if d.Op == token.Index {
			format(sb, d.Left, 6)
			sb.WriteByte('[')
			format(sb, d.Right, 0)
			sb.WriteByte(']')
			return
		}
		prec := precedence(d.Op)
		if prec < parentPrec {
			sb.WriteByte('(')
		}
		format(sb, d.Left, prec)
		sb.WriteString(" " + d.Op.String() + " ")
		format(sb, d.Right, prec+1)
		if prec < parentPrec {
			sb.WriteByte(')')
		}
	case UnaryOpNode:
		if d.Op == token.Length {
			sb.WriteString("length(")
			format(sb, d.Expr, 0)
			sb.WriteByte(')')
			return
		}
		sb.WriteString("not ")
		format(sb, d.Expr, 6)
	case SignNode:
		sb.WriteString(d.Op.String())
		format(sb, d.Expr, 6)
	case CallNode:
		sb.WriteString(d.Name)
		sb.WriteByte('(')
		for i, arg := range d.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			format(sb, arg, 0)
		}
		sb.WriteByte(')')
	}
}

package token

type Type int

const (
	EOF Type = iota
	Illegal
	Ident
	Integer
	Real
	String
	Program
	Function
	Procedure
	Var
	Begin
	End
	If
	Then
	Else
	While
	Do
	Return
	Assert
	Array
	Of
	IntegerKw
	RealKw
	BooleanKw
	StringKw
	And
	Or
	Not
	Mod
	Length
	LParen
	RParen
	LBracket
	RBracket
	Semi
	Comma
	Colon
	Dot
	Assign
	Plus
	Minus
	Star
	Slash
	Rem
	Eq
	Neq
	Lt
	Gt
	Lte
	Gte
	// Index never comes out of the lexer; it tags subscript binary nodes.
	Index
)

var KeywordMap = map[string]Type{
	"program":   Program,
	"function":  Function,
	"procedure": Procedure,
	"var":       Var,
	"begin":     Begin,
	"end":       End,
	"if":        If,
	"then":      Then,
	"else":      Else,
	"while":     While,
	"do":        Do,
	"return":    Return,
	"assert":    Assert,
	"array":     Array,
	"of":        Of,
	"integer":   IntegerKw,
	"real":      RealKw,
	"boolean":   BooleanKw,
	"string":    StringKw,
	"and":       And,
	"or":        Or,
	"not":       Not,
	"mod":       Mod,
	"length":    Length,
}

// Reverse mapping from Type to the keyword string
var TypeStrings = make(map[Type]string)

var symbolStrings = map[Type]string{
	EOF: "end of file", Illegal: "illegal", Ident: "identifier", Integer: "integer literal",
	Real: "real literal", String: "string literal",
	LParen: "(", RParen: ")", LBracket: "[", RBracket: "]", Semi: ";", Comma: ",", Colon: ":",
	Dot: ".", Assign: ":=", Plus: "+", Minus: "-", Star: "*", Slash: "/", Rem: "%", Eq: "=",
	Neq: "<>", Lt: "<", Gt: ">", Lte: "<=", Gte: ">=", Index: "[]",
}

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
	for typ, str := range symbolStrings {
		TypeStrings[typ] = str
	}
}

func (t Type) String() string {
	if s, ok := TypeStrings[t]; ok {
		return s
	}
	return "unknown"
}

type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Line      int
	Column    int
	Len       int
}

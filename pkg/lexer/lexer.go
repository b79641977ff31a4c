package lexer

import (
	"strings"
	"unicode"

	"github.com/xplshn/gpas/pkg/config"
	"github.com/xplshn/gpas/pkg/token"
	"github.com/xplshn/gpas/pkg/util"
)

type Lexer struct {
	source    []rune
	fileIndex int
	pos       int
	line      int
	column    int
	cfg       *config.Config
	rep       *util.Reporter
}

func NewLexer(source []rune, fileIndex int, cfg *config.Config, rep *util.Reporter) *Lexer {
	return &Lexer{
		source: source, fileIndex: fileIndex, line: 1, column: 1, cfg: cfg, rep: rep,
	}
}

// Next returns the next token. Lexical errors are reported and the offending input is
// skipped, so Next always makes progress and eventually yields EOF.
func (l *Lexer) Next() token.Token {
	for {
		l.skipWhitespaceAndComments()
		startPos, startCol, startLine := l.pos, l.column, l.line

		if l.isAtEnd() {
			return l.makeToken(token.EOF, "", startPos, startCol, startLine)
		}

		ch := l.peek()
		if unicode.IsLetter(ch) || ch == '_' {
			l.advance()
			return l.identifierOrKeyword(startPos, startCol, startLine)
		}
		if unicode.IsDigit(ch) {
			return l.numberLiteral(startPos, startCol, startLine)
		}

		l.advance()
		switch ch {
		case '(': return l.makeToken(token.LParen, "", startPos, startCol, startLine)
		case ')': return l.makeToken(token.RParen, "", startPos, startCol, startLine)
		case '[': return l.makeToken(token.LBracket, "", startPos, startCol, startLine)
		case ']': return l.makeToken(token.RBracket, "", startPos, startCol, startLine)
		case ';': return l.makeToken(token.Semi, "", startPos, startCol, startLine)
		case ',': return l.makeToken(token.Comma, "", startPos, startCol, startLine)
		case '.': return l.makeToken(token.Dot, "", startPos, startCol, startLine)
		case '+': return l.makeToken(token.Plus, "", startPos, startCol, startLine)
		case '-': return l.makeToken(token.Minus, "", startPos, startCol, startLine)
		case '*': return l.makeToken(token.Star, "", startPos, startCol, startLine)
		case '/': return l.makeToken(token.Slash, "", startPos, startCol, startLine)
		case '%': return l.makeToken(token.Rem, "", startPos, startCol, startLine)
		case '=': return l.makeToken(token.Eq, "", startPos, startCol, startLine)
		case ':': return l.matchThen('=', token.Assign, token.Colon, startPos, startCol, startLine)
		case '<':
			return l.less(startPos, startCol, startLine)
		case '>':
			return l.matchThen('=', token.Gte, token.Gt, startPos, startCol, startLine)
		case '\'':
			return l.stringLiteral(startPos, startCol, startLine)
		}

		tok := l.makeToken(token.Illegal, string(ch), startPos, startCol, startLine)
		l.rep.Error(util.Lexical, tok, "unexpected character '%c'", ch)
	}
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type: tokType, Value: value, FileIndex: l.fileIndex,
		Line: startLine, Column: startCol, Len: l.pos - startPos,
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch l.peek() {
		case ' ', '\t', '\n', '\r':
			l.advance()
		case '{':
			l.blockComment("}")
		case '(':
			if l.peekNext() != '*' {
				return
			}
			l.blockComment("*)")
		case '/':
			if l.peekNext() != '/' {
				return
			}
			l.lineComment()
		default:
			return
		}
	}
}

// blockComment consumes a comment whose opener is at the current position and which
// ends with closer.
func (l *Lexer) blockComment(closer string) {
	startPos, startCol, startLine := l.pos, l.column, l.line
	l.advance()
	if closer == "*)" {
		l.advance()
	}
	end := []rune(closer)
	for !l.isAtEnd() {
		if l.peek() == end[0] && (len(end) == 1 || l.peekNext() == end[1]) {
			for range end {
				l.advance()
			}
			return
		}
		l.advance()
	}
	tok := l.makeToken(token.Illegal, "", startPos, startCol, startLine)
	tok.Len = len(end)
	l.rep.Error(util.Lexical, tok, "unterminated comment")
}

func (l *Lexer) lineComment() {
	for !l.isAtEnd() && l.peek() != '\n' {
		l.advance()
	}
}

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	value := string(l.source[startPos:l.pos])
	if tokType, isKeyword := token.KeywordMap[strings.ToLower(value)]; isKeyword {
		return l.makeToken(tokType, "", startPos, startCol, startLine)
	}
	return l.makeToken(token.Ident, value, startPos, startCol, startLine)
}

func (l *Lexer) digits() int {
	n := 0
	for unicode.IsDigit(l.peek()) {
		l.advance()
		n++
	}
	return n
}

func (l *Lexer) numberLiteral(startPos, startCol, startLine int) token.Token {
	tokType := token.Integer
	l.digits()

	if l.peek() == '.' && unicode.IsDigit(l.peekNext()) {
		tokType = token.Real
		l.advance()
		l.digits()
	}

	malformed := false
	if l.peek() == 'e' || l.peek() == 'E' {
		tokType = token.Real
		l.advance()
		if l.peek() == '+' || l.peek() == '-' {
			l.advance()
		}
		if l.digits() == 0 {
			malformed = true
		}
	}

	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_' {
		l.advance()
		malformed = true
	}

	value := string(l.source[startPos:l.pos])
	tok := l.makeToken(tokType, value, startPos, startCol, startLine)
	if malformed {
		l.rep.Error(util.Lexical, tok, "malformed number '%s'", value)
		tok.Value = "0"
		tok.Type = token.Integer
	}
	return tok
}

// stringLiteral reads a single-quoted string; a doubled quote stands for one quote.
// Strings may not span lines.
func (l *Lexer) stringLiteral(startPos, startCol, startLine int) token.Token {
	var sb strings.Builder
	for {
		if l.isAtEnd() || l.peek() == '\n' {
			tok := l.makeToken(token.String, sb.String(), startPos, startCol, startLine)
			l.rep.Error(util.Lexical, tok, "unterminated string literal")
			return tok
		}
		ch := l.advance()
		if ch == '\'' {
			if l.peek() != '\'' {
				break
			}
			l.advance()
		}
		sb.WriteRune(ch)
	}
	return l.makeToken(token.String, sb.String(), startPos, startCol, startLine)
}

func (l *Lexer) matchThen(expected rune, thenType, elseType token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(expected) {
		return l.makeToken(thenType, "", sPos, sCol, sLine)
	}
	return l.makeToken(elseType, "", sPos, sCol, sLine)
}

func (l *Lexer) less(sPos, sCol, sLine int) token.Token {
	if l.match('=') {
		return l.makeToken(token.Lte, "", sPos, sCol, sLine)
	}
	if l.match('>') {
		return l.makeToken(token.Neq, "", sPos, sCol, sLine)
	}
	return l.makeToken(token.Lt, "", sPos, sCol, sLine)
}

// Tokenize drains the lexer; used by --dump-tokens and tests.
func (l *Lexer) Tokenize() []token.Token {
	var toks []token.Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks
		}
	}
}

// Package policylang implements the restricted boolean expression language
// used by access policies. Expressions are parsed into an AST and evaluated
// by a tree walker against a closed set of context variables; they cannot
// reach the host environment, call unregistered functions, or loop.
package policylang

import (
	"fmt"
	"unicode"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent
	TokenNumber
	TokenString
	TokenAnd      // &&
	TokenOr       // ||
	TokenNot      // !
	TokenEq       // ===
	TokenNeq      // !==
	TokenLt       // <
	TokenLte      // <=
	TokenGt       // >
	TokenGte      // >=
	TokenPlus     // trailing role marker, e.g. admin+
	TokenDot      // .
	TokenComma    // ,
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenArrow    // =>
)

// Token is one lexical token with its position in the source expression.
type Token struct {
	Type TokenType
	Text string
	Pos  int
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "end of expression"
	}
	return fmt.Sprintf("%q", t.Text)
}

type lexer struct {
	input string
	pos   int
}

// Lex tokenizes a policy expression. It returns a SyntaxError for any
// character outside the language.
func Lex(input string) ([]Token, error) {
	l := &lexer{input: input}
	var tokens []Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) next() (Token, error) {
	for l.pos < len(l.input) && isSpace(l.input[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}, nil
	}

	start := l.pos
	c := l.input[l.pos]

	switch {
	case isIdentStart(c):
		for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
			l.pos++
		}
		return Token{Type: TokenIdent, Text: l.input[start:l.pos], Pos: start}, nil

	case isDigit(c):
		for l.pos < len(l.input) && (isDigit(l.input[l.pos]) || l.input[l.pos] == '.') {
			// A dot is part of the number only when followed by a digit,
			// so "1.length" lexes as number, dot, ident.
			if l.input[l.pos] == '.' && (l.pos+1 >= len(l.input) || !isDigit(l.input[l.pos+1])) {
				break
			}
			l.pos++
		}
		return Token{Type: TokenNumber, Text: l.input[start:l.pos], Pos: start}, nil

	case c == '\'' || c == '"':
		quote := c
		l.pos++
		for l.pos < len(l.input) && l.input[l.pos] != quote {
			l.pos++
		}
		if l.pos >= len(l.input) {
			return Token{}, &SyntaxError{Pos: start, Msg: "unterminated string"}
		}
		text := l.input[start+1 : l.pos]
		l.pos++
		return Token{Type: TokenString, Text: text, Pos: start}, nil
	}

	two := ""
	if l.pos+1 < len(l.input) {
		two = l.input[l.pos : l.pos+2]
	}
	three := ""
	if l.pos+2 < len(l.input) {
		three = l.input[l.pos : l.pos+3]
	}

	switch {
	case three == "===":
		l.pos += 3
		return Token{Type: TokenEq, Text: "===", Pos: start}, nil
	case three == "!==":
		l.pos += 3
		return Token{Type: TokenNeq, Text: "!==", Pos: start}, nil
	case two == "&&":
		l.pos += 2
		return Token{Type: TokenAnd, Text: "&&", Pos: start}, nil
	case two == "||":
		l.pos += 2
		return Token{Type: TokenOr, Text: "||", Pos: start}, nil
	case two == "<=":
		l.pos += 2
		return Token{Type: TokenLte, Text: "<=", Pos: start}, nil
	case two == ">=":
		l.pos += 2
		return Token{Type: TokenGte, Text: ">=", Pos: start}, nil
	case two == "=>":
		l.pos += 2
		return Token{Type: TokenArrow, Text: "=>", Pos: start}, nil
	}

	l.pos++
	switch c {
	case '!':
		return Token{Type: TokenNot, Text: "!", Pos: start}, nil
	case '<':
		return Token{Type: TokenLt, Text: "<", Pos: start}, nil
	case '>':
		return Token{Type: TokenGt, Text: ">", Pos: start}, nil
	case '+':
		return Token{Type: TokenPlus, Text: "+", Pos: start}, nil
	case '.':
		return Token{Type: TokenDot, Text: ".", Pos: start}, nil
	case ',':
		return Token{Type: TokenComma, Text: ",", Pos: start}, nil
	case '(':
		return Token{Type: TokenLParen, Text: "(", Pos: start}, nil
	case ')':
		return Token{Type: TokenRParen, Text: ")", Pos: start}, nil
	case '[':
		return Token{Type: TokenLBracket, Text: "[", Pos: start}, nil
	case ']':
		return Token{Type: TokenRBracket, Text: "]", Pos: start}, nil
	}

	return Token{}, &SyntaxError{Pos: start, Msg: fmt.Sprintf("unexpected character %q", string(rune(c)))}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c))
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

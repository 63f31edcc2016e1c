package policylang

import (
	"fmt"
	"strconv"
)

// arrayMethods is the closed set of methods callable on arrays (and, for
// includes/length, strings). Anything else after a dot is property access.
var arrayMethods = map[string]bool{
	"every":    true,
	"some":     true,
	"filter":   true,
	"map":      true,
	"includes": true,
}

// Parse turns a policy expression into an AST. The grammar, lowest to
// highest precedence: || then && then ===/!== then </<=/>/>= then !
// then postfix (dots, calls, trailing +) then primaries.
func Parse(source string) (*Expr, error) {
	tokens, err := Lex(source)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != TokenEOF {
		return nil, &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("unexpected %s", tok)}
	}
	return &Expr{Source: source, Root: root}, nil
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *parser) advance() Token {
	tok := p.tokens[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(tt TokenType, what string) (Token, error) {
	tok := p.peek()
	if tok.Type != tt {
		return Token{}, &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("expected %s, got %s", what, tok)}
	}
	return p.advance(), nil
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == TokenOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: "||", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == TokenAnd {
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: "&&", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseEquality() (Node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case TokenEq:
			p.advance()
			right, err := p.parseComparison()
			if err != nil {
				return nil, err
			}
			left = &BinaryNode{Op: "===", Left: left, Right: right}
		case TokenNeq:
			p.advance()
			right, err := p.parseComparison()
			if err != nil {
				return nil, err
			}
			left = &BinaryNode{Op: "!==", Left: left, Right: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.peek().Type {
		case TokenLt:
			op = "<"
		case TokenLte:
			op = "<="
		case TokenGt:
			op = ">"
		case TokenGte:
			op = ">="
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (Node, error) {
	if p.peek().Type == TokenNot {
		p.advance()
		node, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryNode{Op: "!", Node: node}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Node, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case TokenDot:
			p.advance()
			name, err := p.expect(TokenIdent, "property name")
			if err != nil {
				return nil, err
			}
			if p.peek().Type == TokenLParen {
				if !arrayMethods[name.Text] {
					return nil, &SyntaxError{Pos: name.Pos, Msg: fmt.Sprintf("unknown method %q", name.Text)}
				}
				args, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				node = &CallNode{Recv: node, Name: name.Text, Args: args}
			} else {
				node = &MemberNode{Object: node, Name: name.Text}
			}
		case TokenPlus:
			ident, ok := node.(*IdentNode)
			if !ok {
				return nil, &SyntaxError{Pos: p.peek().Pos, Msg: "the + marker applies to a role name only"}
			}
			p.advance()
			node = &RoleAtLeastNode{Role: ident.Name}
		default:
			return node, nil
		}
	}
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.peek()
	switch tok.Type {
	case TokenNumber:
		p.advance()
		f, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return nil, &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("invalid number %q", tok.Text)}
		}
		return &NumberNode{Value: f}, nil

	case TokenString:
		p.advance()
		return &StringNode{Value: tok.Text}, nil

	case TokenIdent:
		switch tok.Text {
		case "true":
			p.advance()
			return &BoolNode{Value: true}, nil
		case "false":
			p.advance()
			return &BoolNode{Value: false}, nil
		}
		// param => body closure, only valid as a method argument; the
		// evaluator rejects closures anywhere else.
		if p.tokens[p.pos+1].Type == TokenArrow {
			p.advance()
			p.advance()
			body, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			return &ClosureNode{Param: tok.Text, Body: body}, nil
		}
		p.advance()
		if p.peek().Type == TokenLParen {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return &CallNode{Name: tok.Text, Args: args}, nil
		}
		return &IdentNode{Name: tok.Text}, nil

	case TokenLParen:
		p.advance()
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen, `")"`); err != nil {
			return nil, err
		}
		return node, nil

	case TokenLBracket:
		p.advance()
		var elems []Node
		for p.peek().Type != TokenRBracket {
			elem, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			elems = append(elems, elem)
			if p.peek().Type == TokenComma {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(TokenRBracket, `"]"`); err != nil {
			return nil, err
		}
		return &ArrayNode{Elems: elems}, nil
	}

	return nil, &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("unexpected %s", tok)}
}

func (p *parser) parseArgs() ([]Node, error) {
	if _, err := p.expect(TokenLParen, `"("`); err != nil {
		return nil, err
	}
	var args []Node
	for p.peek().Type != TokenRParen {
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.peek().Type == TokenComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokenRParen, `")"`); err != nil {
		return nil, err
	}
	return args, nil
}

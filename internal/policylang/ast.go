package policylang

import "fmt"

// Node is one node of a parsed policy expression.
type Node interface {
	node()
}

// BoolNode is a true/false literal.
type BoolNode struct {
	Value bool
}

// NumberNode is a numeric literal. All numbers are float64, matching the
// JSON payloads the expressions run against.
type NumberNode struct {
	Value float64
}

// StringNode is a quoted string literal.
type StringNode struct {
	Value string
}

// ArrayNode is an array literal, e.g. ["active", "paused"].
type ArrayNode struct {
	Elems []Node
}

// IdentNode is a bare identifier: a context slot (self, target, body, isSelf,
// operation), a role name, or a closure parameter.
type IdentNode struct {
	Name string
}

// RoleAtLeastNode is a hierarchical role check written role+, e.g. admin+.
type RoleAtLeastNode struct {
	Role string
}

// MemberNode is property access, e.g. target.status or items.length.
type MemberNode struct {
	Object Node
	Name   string
}

// CallNode is either a whitelisted array method (Recv != nil), e.g.
// items.every(x => ...), or a host-registered helper (Recv == nil).
type CallNode struct {
	Recv Node
	Name string
	Args []Node
}

// ClosureNode is the predicate argument of an array method: param => body.
type ClosureNode struct {
	Param string
	Body  Node
}

// UnaryNode is logical negation.
type UnaryNode struct {
	Op   string
	Node Node
}

// BinaryNode covers &&, ||, ===, !==, <, <=, >, >=.
type BinaryNode struct {
	Op    string
	Left  Node
	Right Node
}

func (*BoolNode) node()        {}
func (*NumberNode) node()      {}
func (*StringNode) node()      {}
func (*ArrayNode) node()       {}
func (*IdentNode) node()       {}
func (*RoleAtLeastNode) node() {}
func (*MemberNode) node()      {}
func (*CallNode) node()        {}
func (*ClosureNode) node()     {}
func (*UnaryNode) node()       {}
func (*BinaryNode) node()      {}

// Expr is a parsed, ready-to-evaluate expression.
type Expr struct {
	Source string
	Root   Node
}

// References reports whether the expression mentions the given context slot
// as the root of any identifier or property path. Used to skip rules whose
// guard is irrelevant for the current request (e.g. a body rule on a delete).
func (e *Expr) References(name string) bool {
	return references(e.Root, name, nil)
}

func references(n Node, name string, shadowed []string) bool {
	switch v := n.(type) {
	case *IdentNode:
		for _, s := range shadowed {
			if v.Name == s {
				return false
			}
		}
		return v.Name == name
	case *RoleAtLeastNode:
		return false
	case *ArrayNode:
		for _, e := range v.Elems {
			if references(e, name, shadowed) {
				return true
			}
		}
	case *MemberNode:
		return references(v.Object, name, shadowed)
	case *CallNode:
		if v.Recv != nil && references(v.Recv, name, shadowed) {
			return true
		}
		for _, a := range v.Args {
			if references(a, name, shadowed) {
				return true
			}
		}
	case *ClosureNode:
		return references(v.Body, name, append(shadowed, v.Param))
	case *UnaryNode:
		return references(v.Node, name, shadowed)
	case *BinaryNode:
		return references(v.Left, name, shadowed) || references(v.Right, name, shadowed)
	}
	return false
}

// SyntaxError reports a malformed expression with the offending position.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: %s", e.Pos, e.Msg)
}

// EvalError reports a failure during evaluation: an unknown identifier, a
// type mismatch, or a misused operation. Callers must treat it as a denial.
type EvalError struct {
	Msg string
}

func (e *EvalError) Error() string {
	return e.Msg
}

func evalErrorf(format string, args ...any) *EvalError {
	return &EvalError{Msg: fmt.Sprintf(format, args...)}
}

package policylang

import "strings"

// Roles resolves role names to ranks. Implemented by the access package's
// role hierarchy.
type Roles interface {
	Rank(role string) (int, bool)
}

// Helper is a host-registered predicate callable by name from expressions.
// Helpers receive already-evaluated argument values.
type Helper func(args []any) (any, error)

// Vars is the closed variable set an expression evaluates against. Self,
// Target and Body may be nil; the evaluator substitutes an empty record.
type Vars struct {
	Role      string
	IsSelf    bool
	Self      map[string]any
	Target    map[string]any
	Body      map[string]any
	Operation string
}

// Evaluator walks expression ASTs against Vars. It is immutable after
// construction and safe for concurrent use.
type Evaluator struct {
	roles   Roles
	helpers map[string]Helper
}

// NewEvaluator builds an evaluator over the given role hierarchy and a fixed
// set of helper predicates.
func NewEvaluator(roles Roles, helpers map[string]Helper) *Evaluator {
	h := make(map[string]Helper, len(helpers))
	for name, fn := range helpers {
		h[name] = fn
	}
	return &Evaluator{roles: roles, helpers: h}
}

// Eval evaluates the expression to a boolean. Any failure — unknown
// identifier, type mismatch, misused operation — returns an EvalError and
// the caller must treat the expression as false.
func (ev *Evaluator) Eval(expr *Expr, vars Vars) (bool, error) {
	val, err := ev.eval(expr.Root, vars, nil)
	if err != nil {
		return false, err
	}
	b, ok := val.(bool)
	if !ok {
		return false, evalErrorf("expression %q did not evaluate to a boolean (got %T)", expr.Source, val)
	}
	return b, nil
}

// scope holds closure parameter bindings during array method evaluation.
type scope struct {
	name  string
	value any
	outer *scope
}

func (s *scope) lookup(name string) (any, bool) {
	for cur := s; cur != nil; cur = cur.outer {
		if cur.name == name {
			return cur.value, true
		}
	}
	return nil, false
}

func (ev *Evaluator) eval(n Node, vars Vars, sc *scope) (any, error) {
	switch v := n.(type) {
	case *BoolNode:
		return v.Value, nil
	case *NumberNode:
		return v.Value, nil
	case *StringNode:
		return v.Value, nil

	case *ArrayNode:
		elems := make([]any, 0, len(v.Elems))
		for _, e := range v.Elems {
			val, err := ev.eval(e, vars, sc)
			if err != nil {
				return nil, err
			}
			elems = append(elems, val)
		}
		return elems, nil

	case *IdentNode:
		return ev.resolveIdent(v.Name, vars, sc)

	case *RoleAtLeastNode:
		threshold, ok := ev.roles.Rank(v.Role)
		if !ok {
			return nil, evalErrorf("unknown role %q in rank check", v.Role)
		}
		have, ok := ev.roles.Rank(vars.Role)
		if !ok {
			return nil, evalErrorf("unknown subject role %q", vars.Role)
		}
		return have >= threshold, nil

	case *MemberNode:
		obj, err := ev.eval(v.Object, vars, sc)
		if err != nil {
			return nil, err
		}
		return member(obj, v.Name)

	case *CallNode:
		if v.Recv == nil {
			return ev.callHelper(v, vars, sc)
		}
		return ev.callMethod(v, vars, sc)

	case *ClosureNode:
		return nil, evalErrorf("closures are only valid as array method arguments")

	case *UnaryNode:
		val, err := ev.eval(v.Node, vars, sc)
		if err != nil {
			return nil, err
		}
		b, ok := val.(bool)
		if !ok {
			return nil, evalErrorf("operator ! requires a boolean, got %T", val)
		}
		return !b, nil

	case *BinaryNode:
		return ev.evalBinary(v, vars, sc)
	}
	return nil, evalErrorf("unsupported expression node %T", n)
}

func (ev *Evaluator) resolveIdent(name string, vars Vars, sc *scope) (any, error) {
	if val, ok := sc.lookup(name); ok {
		return val, nil
	}
	switch name {
	case "isSelf":
		return vars.IsSelf, nil
	case "operation":
		return vars.Operation, nil
	case "self":
		return record(vars.Self), nil
	case "target":
		return record(vars.Target), nil
	case "body":
		return record(vars.Body), nil
	}
	// A bare role name is an exact role equality check on the subject.
	if _, ok := ev.roles.Rank(name); ok {
		return vars.Role == name, nil
	}
	return nil, evalErrorf("unknown identifier %q", name)
}

func (ev *Evaluator) callHelper(call *CallNode, vars Vars, sc *scope) (any, error) {
	fn, ok := ev.helpers[call.Name]
	if !ok {
		return nil, evalErrorf("unknown function %q", call.Name)
	}
	args := make([]any, 0, len(call.Args))
	for _, a := range call.Args {
		if _, isClosure := a.(*ClosureNode); isClosure {
			return nil, evalErrorf("closures cannot be passed to %q", call.Name)
		}
		val, err := ev.eval(a, vars, sc)
		if err != nil {
			return nil, err
		}
		args = append(args, val)
	}
	out, err := fn(args)
	if err != nil {
		return nil, evalErrorf("helper %q: %v", call.Name, err)
	}
	return out, nil
}

func (ev *Evaluator) callMethod(call *CallNode, vars Vars, sc *scope) (any, error) {
	recv, err := ev.eval(call.Recv, vars, sc)
	if err != nil {
		return nil, err
	}

	if call.Name == "includes" {
		if len(call.Args) != 1 {
			return nil, evalErrorf("includes takes exactly one argument")
		}
		needle, err := ev.eval(call.Args[0], vars, sc)
		if err != nil {
			return nil, err
		}
		switch hay := recv.(type) {
		case []any:
			for _, item := range hay {
				if strictEqual(item, needle) {
					return true, nil
				}
			}
			return false, nil
		case string:
			s, ok := needle.(string)
			if !ok {
				return nil, evalErrorf("string includes requires a string argument, got %T", needle)
			}
			return strings.Contains(hay, s), nil
		}
		return nil, evalErrorf("includes requires an array or string, got %T", recv)
	}

	// every / some / filter / map take a single closure and run it over a
	// finite array; this is the only iteration the language has.
	arr, ok := recv.([]any)
	if !ok {
		return nil, evalErrorf("%s requires an array, got %T", call.Name, recv)
	}
	if len(call.Args) != 1 {
		return nil, evalErrorf("%s takes exactly one predicate argument", call.Name)
	}
	closure, ok := call.Args[0].(*ClosureNode)
	if !ok {
		return nil, evalErrorf("%s requires a closure argument (x => ...)", call.Name)
	}

	evalPred := func(item any) (any, error) {
		return ev.eval(closure.Body, vars, &scope{name: closure.Param, value: item, outer: sc})
	}
	boolPred := func(item any) (bool, error) {
		out, err := evalPred(item)
		if err != nil {
			return false, err
		}
		b, ok := out.(bool)
		if !ok {
			return false, evalErrorf("%s predicate must return a boolean, got %T", call.Name, out)
		}
		return b, nil
	}

	switch call.Name {
	case "every":
		for _, item := range arr {
			ok, err := boolPred(item)
			if err != nil {
				return nil, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case "some":
		for _, item := range arr {
			ok, err := boolPred(item)
			if err != nil {
				return nil, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case "filter":
		var out []any
		for _, item := range arr {
			ok, err := boolPred(item)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, item)
			}
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	case "map":
		out := make([]any, 0, len(arr))
		for _, item := range arr {
			val, err := evalPred(item)
			if err != nil {
				return nil, err
			}
			out = append(out, val)
		}
		return out, nil
	}
	return nil, evalErrorf("unknown method %q", call.Name)
}

func (ev *Evaluator) evalBinary(b *BinaryNode, vars Vars, sc *scope) (any, error) {
	switch b.Op {
	case "&&", "||":
		left, err := ev.eval(b.Left, vars, sc)
		if err != nil {
			return nil, err
		}
		lb, ok := left.(bool)
		if !ok {
			return nil, evalErrorf("operator %s requires booleans, got %T", b.Op, left)
		}
		// Short circuit, so an irrelevant right side cannot fail the guard.
		if b.Op == "&&" && !lb {
			return false, nil
		}
		if b.Op == "||" && lb {
			return true, nil
		}
		right, err := ev.eval(b.Right, vars, sc)
		if err != nil {
			return nil, err
		}
		rb, ok := right.(bool)
		if !ok {
			return nil, evalErrorf("operator %s requires booleans, got %T", b.Op, right)
		}
		return rb, nil
	}

	left, err := ev.eval(b.Left, vars, sc)
	if err != nil {
		return nil, err
	}
	right, err := ev.eval(b.Right, vars, sc)
	if err != nil {
		return nil, err
	}

	switch b.Op {
	case "===":
		return strictEqual(left, right), nil
	case "!==":
		return !strictEqual(left, right), nil
	}

	// Ordering comparisons: numbers with numbers, strings with strings.
	switch l := left.(type) {
	case float64:
		r, ok := right.(float64)
		if !ok {
			return nil, evalErrorf("operator %s: cannot compare number with %T", b.Op, right)
		}
		return orderResult(b.Op, compareFloat(l, r)), nil
	case string:
		r, ok := right.(string)
		if !ok {
			return nil, evalErrorf("operator %s: cannot compare string with %T", b.Op, right)
		}
		return orderResult(b.Op, compareString(l, r)), nil
	}
	return nil, evalErrorf("operator %s requires numbers or strings, got %T", b.Op, left)
}

// strictEqual mirrors === on scalars: values of different types are unequal,
// never an error, so absent-slot guards like target.x === "y" stay false
// instead of failing the whole expression.
func strictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	}
	// Arrays and records compare by identity in the source language; there
	// is no identity here, so they are simply never equal.
	return false
}

// member resolves property access. Missing keys and access through nil give
// nil rather than an error, matching how the expressions treat an absent
// target or body as an empty record at any depth.
func member(obj any, name string) (any, error) {
	switch o := obj.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return normalize(o[name]), nil
	case []any:
		if name == "length" {
			return float64(len(o)), nil
		}
		return nil, evalErrorf("arrays have no property %q", name)
	case string:
		if name == "length" {
			return float64(len(o)), nil
		}
		return nil, evalErrorf("strings have no property %q", name)
	}
	return nil, evalErrorf("cannot access property %q on %T", name, obj)
}

func record(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// normalize widens the numeric types a repository or JSON decoder may
// produce into the single float64 numeric type of the language.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	}
	return v
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func orderResult(op string, cmp int) bool {
	switch op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}


package policylang

import (
	"errors"
	"testing"
)

type testRoles map[string]int

func (r testRoles) Rank(role string) (int, bool) {
	rank, ok := r[role]
	return rank, ok
}

var roles = testRoles{"influencer": 1, "admin": 2, "super_admin": 3}

func mustParse(t *testing.T, src string) *Expr {
	t.Helper()
	expr, err := Parse(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return expr
}

func evalBool(t *testing.T, src string, vars Vars) bool {
	t.Helper()
	ev := NewEvaluator(roles, nil)
	out, err := ev.Eval(mustParse(t, src), vars)
	if err != nil {
		t.Fatalf("eval %q: %v", src, err)
	}
	return out
}

func TestRoleAtLeast(t *testing.T) {
	cases := []struct {
		role string
		want bool
	}{
		{"influencer", false},
		{"admin", true},
		{"super_admin", true},
	}
	for _, tc := range cases {
		got := evalBool(t, "admin+", Vars{Role: tc.role})
		if got != tc.want {
			t.Fatalf("admin+ for role %s: got %v, want %v", tc.role, got, tc.want)
		}
	}
}

func TestBareRoleIsExactMatch(t *testing.T) {
	if !evalBool(t, "admin", Vars{Role: "admin"}) {
		t.Fatal("admin should match role admin")
	}
	if evalBool(t, "admin", Vars{Role: "super_admin"}) {
		t.Fatal("bare role name must not match a higher role")
	}
}

func TestUnknownRoleInRankCheck(t *testing.T) {
	ev := NewEvaluator(roles, nil)
	if _, err := ev.Eval(mustParse(t, "moderator+"), Vars{Role: "admin"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestContextSlots(t *testing.T) {
	vars := Vars{
		Role:      "influencer",
		IsSelf:    true,
		Self:      map[string]any{"id": "u1", "score": 7},
		Target:    map[string]any{"id": "u1", "status": "active"},
		Body:      map[string]any{"name": "x"},
		Operation: "update",
	}
	if !evalBool(t, `isSelf && operation === "update"`, vars) {
		t.Fatal("isSelf/operation should hold")
	}
	if !evalBool(t, `self.id === target.id`, vars) {
		t.Fatal("self.id should equal target.id")
	}
	if !evalBool(t, "self.score >= 5", vars) {
		t.Fatal("integer fields must compare as numbers")
	}
}

func TestAbsentSlotsAreEmptyRecords(t *testing.T) {
	// No target, no body: property access yields nil, strict comparison
	// stays false rather than erroring.
	vars := Vars{Role: "admin"}
	if evalBool(t, `target.status === "active"`, vars) {
		t.Fatal("absent target should not match")
	}
	if !evalBool(t, `target.status !== "active"`, vars) {
		t.Fatal("absent target should be strictly unequal")
	}
	if !evalBool(t, "body.owner.id === target.owner.id", vars) {
		t.Fatal("nil paths on both sides should be equal")
	}
}

func TestStrictEqualityAcrossTypes(t *testing.T) {
	vars := Vars{Role: "admin", Body: map[string]any{"count": float64(1)}}
	if evalBool(t, `body.count === "1"`, vars) {
		t.Fatal("number must not strictly equal string")
	}
	if !evalBool(t, "body.count === 1", vars) {
		t.Fatal("number should equal number")
	}
}

func TestOrderingRequiresMatchingTypes(t *testing.T) {
	ev := NewEvaluator(roles, nil)
	vars := Vars{Role: "admin", Body: map[string]any{"count": "many"}}
	if _, err := ev.Eval(mustParse(t, "body.count > 3"), vars); err == nil {
		t.Fatal("expected type mismatch error")
	}
	var evalErr *EvalError
	_, err := ev.Eval(mustParse(t, "body.count > 3"), vars)
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvalError, got %T", err)
	}
}

func TestArrayMethods(t *testing.T) {
	vars := Vars{
		Role: "admin",
		Body: map[string]any{
			"items": []any{
				map[string]any{"qty": float64(2)},
				map[string]any{"qty": float64(5)},
			},
			"tags": []any{"a", "b"},
		},
	}
	if !evalBool(t, "body.items.every(x => x.qty > 0)", vars) {
		t.Fatal("every should hold")
	}
	if !evalBool(t, "body.items.some(x => x.qty > 4)", vars) {
		t.Fatal("some should hold")
	}
	if !evalBool(t, "body.items.filter(x => x.qty > 4).length === 1", vars) {
		t.Fatal("filter/length should give 1")
	}
	if !evalBool(t, "body.items.map(x => x.qty).includes(5)", vars) {
		t.Fatal("map/includes should find 5")
	}
	if !evalBool(t, `body.tags.includes("a")`, vars) {
		t.Fatal("includes should find a")
	}
	if !evalBool(t, "body.tags.length === 2", vars) {
		t.Fatal("length should be 2")
	}
}

func TestHelpers(t *testing.T) {
	helpers := map[string]Helper{
		"sameTeam": func(args []any) (any, error) {
			if len(args) != 2 {
				return nil, errors.New("sameTeam takes two records")
			}
			a, _ := args[0].(map[string]any)
			b, _ := args[1].(map[string]any)
			return a["team"] == b["team"], nil
		},
	}
	ev := NewEvaluator(roles, helpers)
	vars := Vars{
		Role:   "admin",
		Self:   map[string]any{"team": "growth"},
		Target: map[string]any{"team": "growth"},
	}
	out, err := ev.Eval(mustParse(t, "sameTeam(self, target)"), vars)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !out {
		t.Fatal("sameTeam should hold")
	}

	if _, err := ev.Eval(mustParse(t, "notRegistered(self)"), vars); err == nil {
		t.Fatal("expected error for unregistered function")
	}
}

func TestNonBooleanResultIsError(t *testing.T) {
	ev := NewEvaluator(roles, nil)
	if _, err := ev.Eval(mustParse(t, "self.id"), Vars{Role: "admin", Self: map[string]any{"id": "u1"}}); err == nil {
		t.Fatal("expected error for non-boolean result")
	}
}

func TestUnknownIdentifierIsError(t *testing.T) {
	ev := NewEvaluator(roles, nil)
	if _, err := ev.Eval(mustParse(t, "ownerOnly"), Vars{Role: "admin"}); err == nil {
		t.Fatal("expected error for unknown identifier")
	}
}

func TestNeverAndLiteralBooleans(t *testing.T) {
	// "false" and "true" are ordinary literals; nothing special-cases them.
	if evalBool(t, "false", Vars{Role: "admin"}) {
		t.Fatal("false must evaluate false")
	}
	if !evalBool(t, "true", Vars{Role: "influencer"}) {
		t.Fatal("true must evaluate true")
	}
}

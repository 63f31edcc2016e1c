package access

import (
	"fmt"

	"github.com/rpbarone/bdn-api-sub001/internal/policylang"
)

// Operation is one of the four gated actions, derived from the HTTP method.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// MapMethod maps an HTTP method to an Operation. Anything outside the five
// supported methods is an UnsupportedOperation defect.
func MapMethod(method string) (Operation, *AppError) {
	switch method {
	case "GET":
		return OpRead, nil
	case "POST":
		return OpCreate, nil
	case "PUT", "PATCH":
		return OpUpdate, nil
	case "DELETE":
		return OpDelete, nil
	}
	return "", UnsupportedOperationError(method)
}

// Field level tokens with meaning beyond an exact role name.
const (
	LevelPublic   = "public"
	LevelOwn      = "own"
	FieldWildcard = "*"
)

// Rule is one named invariant, kept in declaration order.
type Rule struct {
	Name string
	Expr *policylang.Expr
}

// FieldPolicy holds the per-level field whitelists for one direction.
// Level keys are "public" (read only), "own", or an exact role name.
type FieldPolicy struct {
	Read  map[string][]string
	Write map[string][]string
}

// PolicyDefinition is the declarative policy for one resource type.
// Permission and rule expressions are compiled at load time.
type PolicyDefinition struct {
	Resource    string
	Permissions map[Operation]*policylang.Expr
	Fields      FieldPolicy
	Rules       []Rule
}

// DefaultPolicy controls what happens to resources with no registered
// policy.
type DefaultPolicy string

const (
	DefaultDeny  DefaultPolicy = "deny"
	DefaultAllow DefaultPolicy = "allow"
)

// PolicyRegistry holds one PolicyDefinition per resource type. Populated
// once at startup and immutable afterwards, so lookups need no locking.
type PolicyRegistry struct {
	policies map[string]*PolicyDefinition
	fallback DefaultPolicy
}

// NewPolicyRegistry builds a registry from loaded definitions.
func NewPolicyRegistry(policies []*PolicyDefinition, fallback DefaultPolicy) (*PolicyRegistry, error) {
	if fallback == "" {
		fallback = DefaultDeny
	}
	if fallback != DefaultDeny && fallback != DefaultAllow {
		return nil, fmt.Errorf("invalid default policy %q (want deny or allow)", fallback)
	}
	byResource := make(map[string]*PolicyDefinition, len(policies))
	for _, p := range policies {
		if _, dup := byResource[p.Resource]; dup {
			return nil, fmt.Errorf("duplicate policy for resource %q", p.Resource)
		}
		byResource[p.Resource] = p
	}
	return &PolicyRegistry{policies: byResource, fallback: fallback}, nil
}

// Get returns the policy for a resource type, or nil if none is registered.
func (r *PolicyRegistry) Get(resource string) *PolicyDefinition {
	return r.policies[resource]
}

// Default returns the global default policy for unregistered resources.
func (r *PolicyRegistry) Default() DefaultPolicy {
	return r.fallback
}

// Resources returns the resource types with a registered policy.
func (r *PolicyRegistry) Resources() []string {
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	return names
}

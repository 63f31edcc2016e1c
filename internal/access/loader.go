package access

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rpbarone/bdn-api-sub001/internal/policylang"
)

// policyFile is the on-disk shape of the policy source.
type policyFile struct {
	Default   DefaultPolicy             `yaml:"default"`
	Roles     map[string]int            `yaml:"roles"`
	Resources map[string]policyFileSpec `yaml:"resources"`
}

type policyFileSpec struct {
	Permissions map[string]string `yaml:"permissions"`
	Fields      policyFileFields  `yaml:"fields"`
	Rules       orderedExprs      `yaml:"rules"`
}

type policyFileFields struct {
	Read  map[string][]string `yaml:"read"`
	Write map[string][]string `yaml:"write"`
}

// orderedExprs decodes a YAML mapping of rule name to expression while
// preserving declaration order, which plain map decoding would lose. Rule
// order is semantically significant: only the first violation is reported.
type orderedExprs []namedExpr

type namedExpr struct {
	Name string
	Expr string
}

func (o *orderedExprs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("rules must be a mapping of name to expression")
	}
	out := make(orderedExprs, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var name, expr string
		if err := node.Content[i].Decode(&name); err != nil {
			return err
		}
		if err := node.Content[i+1].Decode(&expr); err != nil {
			return err
		}
		out = append(out, namedExpr{Name: name, Expr: expr})
	}
	*o = out
	return nil
}

// LoadPolicyFile reads and validates the policy source. Every expression is
// compiled here so a malformed policy is rejected at startup with an error
// naming the resource and field, never discovered mid-request.
func LoadPolicyFile(path string) (*RoleHierarchy, *PolicyRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicies(raw)
}

// ParsePolicies parses and validates policy YAML.
func ParsePolicies(raw []byte) (*RoleHierarchy, *PolicyRegistry, error) {
	var file policyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, nil, fmt.Errorf("parse policy file: %w", err)
	}

	if err := validateRoles(file.Roles); err != nil {
		return nil, nil, err
	}
	roles := NewRoleHierarchy(file.Roles)

	var policies []*PolicyDefinition
	for resource, spec := range file.Resources {
		policy, err := buildPolicy(resource, spec, roles)
		if err != nil {
			return nil, nil, err
		}
		policies = append(policies, policy)
	}

	registry, err := NewPolicyRegistry(policies, file.Default)
	if err != nil {
		return nil, nil, err
	}
	return roles, registry, nil
}

func validateRoles(ranks map[string]int) error {
	seen := make(map[int]string, len(ranks))
	for role, rank := range ranks {
		if other, dup := seen[rank]; dup {
			return fmt.Errorf("roles %q and %q share rank %d; ranks must be totally ordered", role, other, rank)
		}
		seen[rank] = role
	}
	return nil
}

func buildPolicy(resource string, spec policyFileSpec, roles *RoleHierarchy) (*PolicyDefinition, error) {
	policy := &PolicyDefinition{
		Resource:    resource,
		Permissions: make(map[Operation]*policylang.Expr, len(spec.Permissions)),
		Fields: FieldPolicy{
			Read:  spec.Fields.Read,
			Write: spec.Fields.Write,
		},
	}

	for opName, src := range spec.Permissions {
		op := Operation(opName)
		switch op {
		case OpCreate, OpRead, OpUpdate, OpDelete:
		default:
			return nil, fmt.Errorf("policy %s: permissions: unknown operation %q", resource, opName)
		}
		expr, err := policylang.Parse(src)
		if err != nil {
			return nil, fmt.Errorf("policy %s: permissions.%s: %w", resource, opName, err)
		}
		policy.Permissions[op] = expr
	}

	if err := validateLevels(resource, "fields.read", spec.Fields.Read, roles, true); err != nil {
		return nil, err
	}
	if err := validateLevels(resource, "fields.write", spec.Fields.Write, roles, false); err != nil {
		return nil, err
	}

	for _, r := range spec.Rules {
		expr, err := policylang.Parse(r.Expr)
		if err != nil {
			return nil, fmt.Errorf("policy %s: rules.%s: %w", resource, r.Name, err)
		}
		policy.Rules = append(policy.Rules, Rule{Name: r.Name, Expr: expr})
	}

	return policy, nil
}

func validateLevels(resource, field string, levels map[string][]string, roles *RoleHierarchy, allowPublic bool) error {
	for level := range levels {
		if level == LevelOwn {
			continue
		}
		if level == LevelPublic {
			if allowPublic {
				continue
			}
			return fmt.Errorf("policy %s: %s: level %q applies to reads only", resource, field, level)
		}
		if _, ok := roles.Rank(level); !ok {
			return fmt.Errorf("policy %s: %s: unknown level %q (want public, own, or a role name)", resource, field, level)
		}
	}
	return nil
}

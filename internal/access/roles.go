package access

import "sort"

// Default role ranks. A policy file may extend or override these at load
// time; after that the hierarchy never changes for the process lifetime.
const (
	RoleInfluencer = "influencer"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// RoleHierarchy maps role names to integer ranks, strictly increasing with
// privilege. Immutable after construction.
type RoleHierarchy struct {
	ranks map[string]int
}

// NewRoleHierarchy builds a hierarchy from explicit ranks. With no ranks
// given, the default influencer < admin < super_admin ordering applies.
func NewRoleHierarchy(ranks map[string]int) *RoleHierarchy {
	if len(ranks) == 0 {
		ranks = map[string]int{
			RoleInfluencer: 1,
			RoleAdmin:      2,
			RoleSuperAdmin: 3,
		}
	}
	copied := make(map[string]int, len(ranks))
	for role, rank := range ranks {
		copied[role] = rank
	}
	return &RoleHierarchy{ranks: copied}
}

// Rank returns the rank of a role. The boolean is false for unregistered
// roles; callers must treat that as a hard failure, not a permit.
func (h *RoleHierarchy) Rank(role string) (int, bool) {
	rank, ok := h.ranks[role]
	return rank, ok
}

// AtLeast reports whether role ranks at or above threshold. Either role
// being unregistered fails closed.
func (h *RoleHierarchy) AtLeast(role, threshold string) bool {
	have, ok := h.ranks[role]
	if !ok {
		return false
	}
	want, ok := h.ranks[threshold]
	if !ok {
		return false
	}
	return have >= want
}

// Roles returns all registered role names in ascending rank order.
func (h *RoleHierarchy) Roles() []string {
	names := make([]string, 0, len(h.ranks))
	for name := range h.ranks {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return h.ranks[names[i]] < h.ranks[names[j]]
	})
	return names
}

package access

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeRepo is an in-memory Repository keyed by "resource/id".
type fakeRepo struct {
	records map[string]map[string]any
	err     error
	calls   int
}

func (r *fakeRepo) FindByID(ctx context.Context, resource, id string) (map[string]any, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	record, ok := r.records[resource+"/"+id]
	if !ok {
		return nil, nil
	}
	return record, nil
}

func pipelineEngine(t *testing.T, yamlPolicy string, repo Repository) *Engine {
	t.Helper()
	roles, registry, err := ParsePolicies([]byte(yamlPolicy))
	if err != nil {
		t.Fatalf("load policies: %v", err)
	}
	return NewEngine(roles, registry, repo, Options{})
}

const userPolicy = `
default: deny
resources:
  users:
    permissions:
      read: "isSelf || admin+"
      update: "admin+"
    fields:
      read:
        public: [id]
        own: [email]
      write:
        admin: [name]
    rules:
      no_status_flip: 'body.status !== "banned" || admin+'
`

func TestPipelineDeniesBeforeProjection(t *testing.T) {
	repo := &fakeRepo{records: map[string]map[string]any{
		"users/u2": {"id": "u2", "name": "other"},
	}}
	e := pipelineEngine(t, userPolicy, repo)

	body := map[string]any{"name": "x", "status": "banned"}
	_, appErr := e.Authorize(context.Background(),
		Subject{ID: "u1", Role: RoleInfluencer}, "users", "PUT",
		map[string]string{"id": "u2"}, body)

	if appErr == nil {
		t.Fatal("expected denial")
	}
	if appErr.Code != "PERMISSION_DENIED" {
		t.Fatalf("expected PERMISSION_DENIED, got %s", appErr.Code)
	}
	if appErr.Status != 403 {
		t.Fatalf("expected 403, got %d", appErr.Status)
	}
	// Denial happens before projection: the payload is untouched.
	if len(body) != 2 {
		t.Fatalf("payload must not be projected on denial, got %v", body)
	}
}

func TestPipelineSelfReadExposesOwnFields(t *testing.T) {
	repo := &fakeRepo{records: map[string]map[string]any{
		"users/u1": {"id": "u1", "email": "a@b.c", "secret": "x"},
	}}
	e := pipelineEngine(t, userPolicy, repo)

	decision, appErr := e.Authorize(context.Background(),
		Subject{ID: "u1", Role: RoleInfluencer}, "users", "GET",
		map[string]string{"id": "u1"}, nil)
	if appErr != nil {
		t.Fatalf("expected isSelf read to pass, got %v", appErr)
	}
	if !decision.Ctx.IsSelf {
		t.Fatal("expected isSelf true")
	}
	if decision.ReadProject == nil {
		t.Fatal("expected a read projector for GET")
	}

	out := decision.ReadProject(map[string]any{"id": "u1", "email": "a@b.c", "secret": "x"}).(map[string]any)
	if out["email"] != "a@b.c" {
		t.Fatalf("expected email visible to self, got %v", out)
	}
	if _, ok := out["secret"]; ok {
		t.Fatal("secret must stay hidden")
	}
}

func TestPipelineAbsentOperationIsDenied(t *testing.T) {
	// The policy has no delete entry, so delete is denied for everyone,
	// including super_admin.
	repo := &fakeRepo{records: map[string]map[string]any{
		"users/u2": {"id": "u2"},
	}}
	e := pipelineEngine(t, userPolicy, repo)

	_, appErr := e.Authorize(context.Background(),
		Subject{ID: "s1", Role: RoleSuperAdmin}, "users", "DELETE",
		map[string]string{"id": "u2"}, nil)
	if appErr == nil || appErr.Code != "PERMISSION_DENIED" {
		t.Fatalf("expected PERMISSION_DENIED for unlisted operation, got %v", appErr)
	}
}

func TestPipelinePolicyMissingDefaultDeny(t *testing.T) {
	e := pipelineEngine(t, userPolicy, &fakeRepo{})

	_, appErr := e.Authorize(context.Background(),
		Subject{ID: "s1", Role: RoleSuperAdmin}, "invoices", "GET", nil, nil)
	if appErr == nil || appErr.Code != "POLICY_MISSING" {
		t.Fatalf("expected POLICY_MISSING, got %v", appErr)
	}
	if appErr.Status != 403 {
		t.Fatalf("expected 403, got %d", appErr.Status)
	}
}

func TestPipelinePolicyMissingDefaultAllow(t *testing.T) {
	e := pipelineEngine(t, "default: allow\n", &fakeRepo{})

	decision, appErr := e.Authorize(context.Background(),
		Subject{ID: "u1", Role: RoleInfluencer}, "invoices", "GET", nil, nil)
	if appErr != nil {
		t.Fatalf("expected allow under default allow, got %v", appErr)
	}
	// No policy means no field constraints.
	out := decision.ReadProject(map[string]any{"total": 10}).(map[string]any)
	if out["total"] != 10 {
		t.Fatalf("expected unfiltered data, got %v", out)
	}
}

func TestPipelineUnknownRole(t *testing.T) {
	e := pipelineEngine(t, userPolicy, &fakeRepo{})

	_, appErr := e.Authorize(context.Background(),
		Subject{ID: "u1", Role: "moderator"}, "users", "GET", nil, nil)
	if appErr == nil || appErr.Code != "UNKNOWN_ROLE" {
		t.Fatalf("expected UNKNOWN_ROLE, got %v", appErr)
	}
	if appErr.Status != 500 {
		t.Fatalf("expected 500, got %d", appErr.Status)
	}
}

func TestPipelineUnsupportedMethod(t *testing.T) {
	e := pipelineEngine(t, userPolicy, &fakeRepo{})

	_, appErr := e.Authorize(context.Background(),
		Subject{ID: "u1", Role: RoleAdmin}, "users", "OPTIONS", nil, nil)
	if appErr == nil || appErr.Code != "UNSUPPORTED_OPERATION" {
		t.Fatalf("expected UNSUPPORTED_OPERATION, got %v", appErr)
	}
}

func TestPipelineRuleViolationSurfacesName(t *testing.T) {
	repo := &fakeRepo{records: map[string]map[string]any{
		"users/u1": {"id": "u1"},
	}}
	e := pipelineEngine(t, `
default: deny
resources:
  users:
    permissions:
      update: "isSelf || admin+"
    rules:
      no_self_ban: '!(isSelf && body.status === "banned")'
`, repo)

	// The subject passes the permission gate (isSelf) but trips the rule.
	_, appErr := e.Authorize(context.Background(),
		Subject{ID: "u1", Role: RoleInfluencer}, "users", "PUT",
		map[string]string{"id": "u1"}, map[string]any{"status": "banned"})
	if appErr == nil {
		t.Fatal("expected rule violation")
	}
	if appErr.Code != "RULE_VIOLATED" || appErr.Rule != "no_self_ban" {
		t.Fatalf("expected RULE_VIOLATED no_self_ban, got %v", appErr)
	}
	if appErr.Status != 403 {
		t.Fatalf("expected 403, got %d", appErr.Status)
	}
}

func TestPipelineWriteProjectionAfterAllow(t *testing.T) {
	repo := &fakeRepo{records: map[string]map[string]any{
		"users/u2": {"id": "u2"},
	}}
	e := pipelineEngine(t, userPolicy, repo)

	body := map[string]any{"name": "x", "secret": "y"}
	decision, appErr := e.Authorize(context.Background(),
		Subject{ID: "a1", Role: RoleAdmin}, "users", "PUT",
		map[string]string{"id": "u2"}, body)
	if appErr != nil {
		t.Fatalf("expected allow, got %v", appErr)
	}
	if _, ok := decision.Ctx.Body["secret"]; ok {
		t.Fatal("expected secret projected out of the payload")
	}
	if body["name"] != "x" {
		t.Fatal("expected name kept in the shared payload map")
	}
}

func TestPipelineRepositoryFailureFailsOpen(t *testing.T) {
	repo := &fakeRepo{err: errors.New("connection refused")}
	e := pipelineEngine(t, userPolicy, repo)

	// Fetch failure degrades to an absent target. isSelf is then false and
	// the read permission falls through to the role check.
	_, appErr := e.Authorize(context.Background(),
		Subject{ID: "u1", Role: RoleInfluencer}, "users", "GET",
		map[string]string{"id": "u1"}, nil)
	if appErr == nil || appErr.Code != "PERMISSION_DENIED" {
		t.Fatalf("expected denial with absent target, got %v", appErr)
	}

	decision, appErr := e.Authorize(context.Background(),
		Subject{ID: "a1", Role: RoleAdmin}, "users", "GET",
		map[string]string{"id": "u1"}, nil)
	if appErr != nil {
		t.Fatalf("admin read should still pass, got %v", appErr)
	}
	if decision.Ctx.Target != nil {
		t.Fatal("expected absent target after fetch failure")
	}
}

func TestPipelineTargetCaching(t *testing.T) {
	repo := &fakeRepo{records: map[string]map[string]any{
		"users/u1": {"id": "u1", "email": "a@b.c"},
	}}
	e := pipelineEngine(t, userPolicy, repo)

	subject := Subject{ID: "u1", Role: RoleInfluencer}
	params := map[string]string{"id": "u1"}

	if _, appErr := e.Authorize(context.Background(), subject, "users", "GET", params, nil); appErr != nil {
		t.Fatalf("first read: %v", appErr)
	}
	if _, appErr := e.Authorize(context.Background(), subject, "users", "GET", params, nil); appErr != nil {
		t.Fatalf("second read: %v", appErr)
	}
	if repo.calls != 1 {
		t.Fatalf("expected one repository fetch, got %d", repo.calls)
	}

	// After the TTL the snapshot is refetched and reflects mutations.
	repo.records["users/u1"]["email"] = "new@b.c"
	e.cache.now = func() time.Time { return time.Now().Add(DefaultTargetTTL + time.Second) }
	decision, appErr := e.Authorize(context.Background(), subject, "users", "GET", params, nil)
	if appErr != nil {
		t.Fatalf("third read: %v", appErr)
	}
	if repo.calls != 2 {
		t.Fatalf("expected refetch after TTL, got %d calls", repo.calls)
	}
	if decision.Ctx.Target["email"] != "new@b.c" {
		t.Fatalf("expected refreshed snapshot, got %v", decision.Ctx.Target)
	}
}

func TestPipelineNoFetchForCreate(t *testing.T) {
	repo := &fakeRepo{}
	e := pipelineEngine(t, `
default: deny
resources:
  users:
    permissions:
      create: "admin+"
`, repo)

	_, appErr := e.Authorize(context.Background(),
		Subject{ID: "a1", Role: RoleAdmin}, "users", "POST",
		map[string]string{"id": "ignored"}, map[string]any{"name": "x"})
	if appErr != nil {
		t.Fatalf("expected create allowed, got %v", appErr)
	}
	if repo.calls != 0 {
		t.Fatalf("create must not fetch a target, got %d calls", repo.calls)
	}
}

func TestPipelineExpressionErrorDenies(t *testing.T) {
	// The permission expression references an unknown helper; evaluation
	// fails and the request is denied, never permitted.
	e := pipelineEngine(t, `
default: deny
resources:
  users:
    permissions:
      read: "mysteryCheck(self)"
`, &fakeRepo{})

	_, appErr := e.Authorize(context.Background(),
		Subject{ID: "a1", Role: RoleAdmin}, "users", "GET", nil, nil)
	if appErr == nil || appErr.Code != "EXPRESSION_ERROR" {
		t.Fatalf("expected EXPRESSION_ERROR, got %v", appErr)
	}
	if appErr.Status != 403 {
		t.Fatalf("expected 403, got %d", appErr.Status)
	}
}

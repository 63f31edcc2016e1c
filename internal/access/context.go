package access

import (
	"context"
	"fmt"
	"log"

	"github.com/rpbarone/bdn-api-sub001/internal/policylang"
)

// Subject is the authenticated actor, resolved by the auth layer before the
// engine runs.
type Subject struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// Repository is the injected persistence capability the engine uses to
// resolve targets. A fetch may fail transiently; the engine treats any error
// as "absent", never as a request failure.
type Repository interface {
	FindByID(ctx context.Context, resource, id string) (map[string]any, error)
}

// PermissionContext is the request-scoped context every policy expression
// evaluates against. Built once per request; Body is the only part mutated
// afterwards (by write projection).
type PermissionContext struct {
	Subject   Subject
	Resource  string
	Operation Operation
	Policy    *PolicyDefinition
	Target    map[string]any
	Body      map[string]any
	Params    map[string]string
	IsSelf    bool
}

// vars exposes the context to the expression evaluator.
func (pc *PermissionContext) vars() policylang.Vars {
	return policylang.Vars{
		Role:      pc.Subject.Role,
		IsSelf:    pc.IsSelf,
		Self:      map[string]any{"id": pc.Subject.ID, "role": pc.Subject.Role},
		Target:    pc.Target,
		Body:      pc.Body,
		Operation: string(pc.Operation),
	}
}

// buildContext assembles the PermissionContext for one request. For
// single-entity operations it resolves the target through the cache, then
// the repository. A failed fetch is logged and degrades to an absent target;
// the permission and rule expressions then run against an empty record.
func (e *Engine) buildContext(ctx context.Context, subject Subject, resource string, op Operation, params map[string]string, body map[string]any) *PermissionContext {
	pc := &PermissionContext{
		Subject:   subject,
		Resource:  resource,
		Operation: op,
		Policy:    e.registry.Get(resource),
		Body:      body,
		Params:    params,
	}

	id := params["id"]
	if id != "" && (op == OpRead || op == OpUpdate || op == OpDelete) {
		pc.Target = e.resolveTarget(ctx, resource, id)
	}

	pc.IsSelf = pc.Target != nil && identity(pc.Target["id"]) == subject.ID
	return pc
}

func (e *Engine) resolveTarget(ctx context.Context, resource, id string) map[string]any {
	if record, ok := e.cache.Get(resource, id); ok {
		return record
	}

	fetchCtx := ctx
	if e.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, e.fetchTimeout)
		defer cancel()
	}

	record, err := e.repo.FindByID(fetchCtx, resource, id)
	if err != nil {
		log.Printf("WARN: access: fetch %s/%s failed, proceeding without target: %v", resource, id, err)
		return nil
	}
	if record == nil {
		return nil
	}

	e.cache.Put(resource, id, record)
	return record
}

// identity stringifies a record id for comparison with the subject id,
// covering repositories that return non-string keys.
func identity(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

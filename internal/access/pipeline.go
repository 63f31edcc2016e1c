package access

import (
	"context"
	"time"

	"github.com/rpbarone/bdn-api-sub001/internal/policylang"
)

// Engine is the access control pipeline: per-request context building,
// permission evaluation, rule checks, and field projection. Everything it
// holds is immutable after construction except the target cache, which
// synchronizes internally, so one Engine serves all requests concurrently.
type Engine struct {
	roles        *RoleHierarchy
	registry     *PolicyRegistry
	repo         Repository
	cache        *TargetCache
	evaluator    *policylang.Evaluator
	fetchTimeout time.Duration
}

// Options tunes the engine. Zero values fall back to defaults.
type Options struct {
	// TargetTTL is how long fetched target snapshots are reused.
	TargetTTL time.Duration
	// FetchTimeout bounds a single repository fetch during target
	// resolution. Zero means the request's own deadline applies.
	FetchTimeout time.Duration
	// Helpers are host-registered predicates callable from expressions.
	Helpers map[string]policylang.Helper
}

// NewEngine wires the pipeline from its immutable collaborators.
func NewEngine(roles *RoleHierarchy, registry *PolicyRegistry, repo Repository, opts Options) *Engine {
	return &Engine{
		roles:        roles,
		registry:     registry,
		repo:         repo,
		cache:        NewTargetCache(opts.TargetTTL),
		evaluator:    policylang.NewEvaluator(roles, opts.Helpers),
		fetchTimeout: opts.FetchTimeout,
	}
}

// Decision is the successful outcome of the pipeline. For create/update the
// context's Body has been projected down to writable fields; for read,
// ReadProject filters whatever data the caller later produces.
type Decision struct {
	Ctx         *PermissionContext
	ReadProject func(data any) any
}

// Authorize runs the pipeline for one request: build context, evaluate the
// permission expression, evaluate rules, then project fields. It is
// terminal on the first rejection and every ambiguous outcome is a denial.
func (e *Engine) Authorize(ctx context.Context, subject Subject, resource, method string, params map[string]string, body map[string]any) (*Decision, *AppError) {
	if _, ok := e.roles.Rank(subject.Role); !ok {
		return nil, UnknownRoleError(subject.Role)
	}

	op, appErr := MapMethod(method)
	if appErr != nil {
		return nil, appErr
	}

	pc := e.buildContext(ctx, subject, resource, op, params, body)

	if appErr := e.checkPermission(pc); appErr != nil {
		return nil, appErr
	}
	if appErr := e.checkRules(pc); appErr != nil {
		return nil, appErr
	}

	decision := &Decision{Ctx: pc}
	switch op {
	case OpCreate, OpUpdate:
		e.projectWrite(pc)
	case OpRead:
		decision.ReadProject = e.readProjector(pc)
	}
	return decision, nil
}

// Cache exposes the target cache, mainly for tests and metrics-free
// introspection.
func (e *Engine) Cache() *TargetCache {
	return e.cache
}

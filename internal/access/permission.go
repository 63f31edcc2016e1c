package access

import "log"

// checkPermission runs the permission expression for the requested
// operation. Fail-closed: a missing policy (under default deny), a missing
// operation entry, a false expression, and an expression failure all deny.
func (e *Engine) checkPermission(pc *PermissionContext) *AppError {
	if pc.Policy == nil {
		if e.registry.Default() == DefaultAllow {
			return nil
		}
		return PolicyMissingError(pc.Resource)
	}

	expr, ok := pc.Policy.Permissions[pc.Operation]
	if !ok {
		return PermissionDeniedError(pc.Operation, pc.Resource)
	}

	allowed, err := e.evaluator.Eval(expr, pc.vars())
	if err != nil {
		// A bad expression is a policy defect, not a request defect.
		log.Printf("ERROR: access: policy %s: permissions.%s: %v", pc.Resource, pc.Operation, err)
		return ExpressionDeniedError(pc.Resource, err)
	}
	if !allowed {
		return PermissionDeniedError(pc.Operation, pc.Resource)
	}
	return nil
}

package access

import "log"

// checkRules evaluates the policy's invariant rules in declaration order and
// reports the first violation. A rule whose expression references body or
// target while that slot is absent is skipped: its guard is irrelevant to
// this request, not violated by it. An evaluation failure counts as a
// violation (fail-closed) and short-circuits like any other.
func (e *Engine) checkRules(pc *PermissionContext) *AppError {
	if pc.Policy == nil {
		return nil
	}

	for _, rule := range pc.Policy.Rules {
		if pc.Body == nil && rule.Expr.References("body") {
			continue
		}
		if pc.Target == nil && rule.Expr.References("target") {
			continue
		}

		ok, err := e.evaluator.Eval(rule.Expr, pc.vars())
		if err != nil {
			log.Printf("ERROR: access: policy %s: rules.%s: %v", pc.Resource, rule.Name, err)
			return RuleViolatedError(rule.Name)
		}
		if !ok {
			return RuleViolatedError(rule.Name)
		}
	}
	return nil
}

package access

// projectWrite filters the write payload down to the fields the subject may
// set, mutating pc.Body in place so every later consumer of the context sees
// the filtered payload. Granted levels: "own" when the subject is the
// target, the subject's exact role, and the "admin" set additionally for
// super_admin (a grant union, not an override). A wildcard in the allowed
// set disables filtering entirely.
func (e *Engine) projectWrite(pc *PermissionContext) {
	if pc.Body == nil || pc.Policy == nil {
		return
	}
	levels := pc.Policy.Fields.Write

	allowed := make(map[string]bool)
	if pc.IsSelf {
		grant(allowed, levels[LevelOwn])
	}
	grant(allowed, levels[pc.Subject.Role])
	if pc.Subject.Role == RoleSuperAdmin {
		grant(allowed, levels[RoleAdmin])
	}

	if allowed[FieldWildcard] {
		return
	}
	for key := range pc.Body {
		if !allowed[key] {
			delete(pc.Body, key)
		}
	}
}

// readProjector returns the read-side filter for this context. The visible
// set unions "public" unconditionally, "own" when the subject is the target,
// and every level the subject's rank reaches (an exact role match or any
// role level ranked at or below the subject). The projector applies to a
// single record or a slice of records and never synthesizes absent fields.
func (e *Engine) readProjector(pc *PermissionContext) func(data any) any {
	if pc.Policy == nil {
		// Only reachable under default allow; no policy means no field
		// constraints either.
		return func(data any) any { return data }
	}
	levels := pc.Policy.Fields.Read

	visible := make(map[string]bool)
	grant(visible, levels[LevelPublic])
	if pc.IsSelf {
		grant(visible, levels[LevelOwn])
	}
	for level, fields := range levels {
		if level == LevelPublic || level == LevelOwn {
			continue
		}
		if level == pc.Subject.Role || e.roles.AtLeast(pc.Subject.Role, level) {
			grant(visible, fields)
		}
	}

	if visible[FieldWildcard] {
		return func(data any) any { return data }
	}

	filterRecord := func(record map[string]any) map[string]any {
		out := make(map[string]any, len(visible))
		for field := range visible {
			if val, ok := record[field]; ok {
				out[field] = val
			}
		}
		return out
	}

	return func(data any) any {
		switch d := data.(type) {
		case map[string]any:
			return filterRecord(d)
		case []map[string]any:
			out := make([]map[string]any, len(d))
			for i, record := range d {
				out[i] = filterRecord(record)
			}
			return out
		case []any:
			out := make([]any, len(d))
			for i, item := range d {
				if record, ok := item.(map[string]any); ok {
					out[i] = filterRecord(record)
				} else {
					out[i] = item
				}
			}
			return out
		}
		return data
	}
}

func grant(set map[string]bool, fields []string) {
	for _, f := range fields {
		set[f] = true
	}
}

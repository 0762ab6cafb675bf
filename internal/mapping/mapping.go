// Package mapping translates a host-provided evaluation context into the
// interpreter's subject/context view.
package mapping

// subjectStringFields and contextStringFields are the well-known top-level keys that
// land in a typed slot rather than falling through to the generic subject
// bucket.
var subjectStringFields = []string{"id", "email", "role"}
var contextStringFields = []string{"environment", "device", "app_version"}

// Map splits a flat, host-provided record into the subject and context
// views the expression interpreter operates on. Non-object input
// (including arrays, which are explicitly rejected) yields two empty maps
// rather than an error: the façade never fails an evaluation because of a
// malformed context, it just evaluates against nothing.
func Map(raw any) (subject map[string]any, context map[string]any) {
	subject = map[string]any{}
	context = map[string]any{}

	flat, ok := raw.(map[string]any)
	if !ok {
		return subject, context
	}

	known := make(map[string]struct{}, len(subjectStringFields)+len(contextStringFields))
	for _, f := range subjectStringFields {
		if v, ok := flat[f].(string); ok {
			subject[f] = v
		}
		known[f] = struct{}{}
	}
	for _, f := range contextStringFields {
		if v, ok := flat[f].(string); ok {
			context[f] = v
		}
		known[f] = struct{}{}
	}

	for key, value := range flat {
		if _, isKnown := known[key]; isKnown {
			continue
		}
		switch {
		case hasPrefix(key, "user.") && len(key) > len("user."):
			subject[key[len("user."):]] = value
		case hasPrefix(key, "context.") && len(key) > len("context."):
			context[key[len("context."):]] = value
		default:
			subject[key] = value
		}
	}

	return subject, context
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

package schema

// Describe renders the registry as plain values (maps, slices, strings) in
// registration order, for dumps and golden tests.
func (r *Registry) Describe() []any {
	out := make([]any, 0, len(r.order))
	for _, m := range r.Models() {
		out = append(out, m.describe())
	}
	return out
}

func (m *Model) describe() map[string]any {
	fields := make([]any, 0, len(m.Fields))
	for _, f := range m.Fields {
		entry := map[string]any{"name": f.Name}
		if f.Label != "" {
			entry["label"] = f.Label
		}
		if f.HasDefault {
			entry["default"] = f.Default
		}
		fields = append(fields, entry)
	}

	relations := make([]any, 0, len(m.Relations))
	for _, rel := range m.Relations {
		entry := map[string]any{
			"name":   rel.Name,
			"kind":   rel.Kind.String(),
			"target": rel.Target,
		}
		if rel.RelatedName != "" {
			entry["related_name"] = rel.RelatedName
		}
		if rel.Through != "" {
			entry["through"] = rel.Through
		}
		relations = append(relations, entry)
	}

	reverse := make([]any, 0, len(m.reverseNames))
	for _, name := range m.reverseNames {
		for _, rev := range m.reverse[name] {
			reverse = append(reverse, map[string]any{
				"name":  rev.Name,
				"model": rev.Model,
				"field": rev.Field,
				"kind":  rev.Kind.String(),
			})
		}
	}

	out := map[string]any{
		"name":      m.Name,
		"fields":    fields,
		"relations": relations,
		"reverse":   reverse,
	}
	if m.Junction {
		out["junction"] = true
	}
	return out
}

package provider

// requiredFields reads the "required" list of a JSON schema object that may
// have been built in Go ([]string) or decoded from JSON ([]any).
func requiredFields(schema map[string]any) []string {
	switch v := schema["required"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// schemaProperties returns the "properties" map of a JSON schema object.
func schemaProperties(schema map[string]any) map[string]any {
	props, _ := schema["properties"].(map[string]any)
	return props
}

package tools

// Schema helpers for building the JSON Schema of an action's arguments.

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// EmptySchema is the schema of an action that takes no arguments.
func EmptySchema() map[string]interface{} {
	return ObjectSchema(map[string]interface{}{})
}

// StringProperty creates a string property with optional description.
func StringProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// DecimalProperty creates a string property holding a non-negative decimal
// amount such as "0.01" or "25".
func DecimalProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
		"pattern":     `^\d+(\.\d+)?$`,
	}
}

// StringEnumProperty creates a string property with allowed values.
func StringEnumProperty(description string, values ...string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
		"enum":        values,
	}
}

// WithThought adds a thought parameter to an existing schema.
// If requireThought is true, "thought" is added to the required array.
func WithThought(schema map[string]interface{}, requireThought bool) map[string]interface{} {
	result := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		result[k] = v
	}

	props := make(map[string]interface{})
	if existing, ok := result["properties"].(map[string]interface{}); ok {
		for k, v := range existing {
			props[k] = v
		}
	}
	props["thought"] = StringProperty(
		"Your reasoning about why you're using this action and what you expect it to change. " +
			"Required for anything that moves funds.",
	)
	result["properties"] = props

	if requireThought {
		var required []string
		if existing, ok := result["required"].([]string); ok {
			required = append(required, existing...)
		}
		result["required"] = append(required, "thought")
	}

	return result
}

// BuildSchemaWithThought creates an ObjectSchema and adds thought support in one call.
func BuildSchemaWithThought(properties map[string]interface{}, requireThought bool, required ...string) map[string]interface{} {
	return WithThought(ObjectSchema(properties, required...), requireThought)
}

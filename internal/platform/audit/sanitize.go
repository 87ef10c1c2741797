package audit

// Redacted replaces values of denied fields.
const Redacted = "[REDACTED]"

// Sanitize applies the policy to a flat map of request fields and returns a
// copy safe for persistence. Denied fields become Redacted. Allowed fields
// keep primitive values; composite values are reduced to "[OBJECT]". Every
// other field is reduced to a placeholder naming its type, so a new request
// field can never leak into the log by default.
func Sanitize(p *Policy, input map[string]interface{}) map[string]interface{} {
	if input == nil {
		return nil
	}

	out := make(map[string]interface{}, len(input))
	for key, value := range input {
		switch {
		case p.Denied(key):
			out[key] = Redacted
		case p.Allowed(key):
			if isPrimitive(value) {
				out[key] = value
			} else {
				out[key] = "[OBJECT]"
			}
		default:
			out[key] = "[" + typeName(value) + "]"
		}
	}
	return out
}

// isPrimitive reports whether the value is a scalar safe to log for an
// allowed field.
func isPrimitive(v interface{}) bool {
	switch v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

// typeName reduces a value to a coarse type label. Labels follow the JSON
// type system since inputs arrive as decoded JSON.
func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return "number"
	case []interface{}:
		return "array"
	default:
		return "object"
	}
}

package runtime

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/riverbedai/riverbed/pkg/domain"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.\-]+)\s*\}\}`)

// renderTemplate interpolates {{dot.path}} placeholders against a context
// map. Unresolvable placeholders render empty; a missing value is a
// defined default, never an error.
func renderTemplate(text string, contextData map[string]any) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		path := placeholderRe.FindStringSubmatch(match)[1]
		v, ok := lookupPath(contextData, path)
		if !ok || v == nil {
			return ""
		}
		return stringify(v)
	})
}

// lookupPath walks a dot path through nested maps.
func lookupPath(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = mm[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = stringify(e)
		}
		return strings.Join(parts, ", ")
	case float64:
		// Trim the ".000000" noise from whole numbers.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// renderParams renders string values inside a parameter map, leaving other
// value types untouched.
func renderParams(params map[string]any, contextData map[string]any) map[string]any {
	if len(params) == 0 {
		return params
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		switch t := v.(type) {
		case string:
			out[k] = renderTemplate(t, contextData)
		case map[string]any:
			out[k] = renderParams(t, contextData)
		default:
			out[k] = v
		}
	}
	return out
}

// checkSchema validates LM output against a node's output contract: the
// value must be an object, carry every required key, and match declared
// property types where given.
func checkSchema(output map[string]any, schema *domain.OutputSchema) error {
	if schema == nil {
		return nil
	}
	var missing []string
	for _, key := range schema.Required {
		if _, ok := output[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required keys %s", domain.ErrOutputSchema, strings.Join(missing, ", "))
	}
	for key, spec := range schema.Properties {
		specMap, ok := spec.(map[string]any)
		if !ok {
			continue
		}
		wantType, _ := specMap["type"].(string)
		if wantType == "" {
			continue
		}
		v, present := output[key]
		if !present || v == nil {
			continue
		}
		if !typeMatches(v, wantType) {
			return fmt.Errorf("%w: key %q is not a %s", domain.ErrOutputSchema, key, wantType)
		}
	}
	return nil
}

func typeMatches(v any, wantType string) bool {
	switch wantType {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}

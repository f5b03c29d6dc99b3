package nlu

import (
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	"training-platform/internal/models"
)

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// CheckLabel reports whether label can be written unquoted as an intent name
// or inside entity markup and still read back as the same string.
func CheckLabel(label string) error {
	if !labelPattern.MatchString(label) {
		return fmt.Errorf("label '%s' may only contain ASCII letters, digits, '_', '-' and '.'", label)
	}
	var v interface{}
	if err := yaml.Unmarshal([]byte(label), &v); err != nil {
		return fmt.Errorf("label '%s' is not a plain YAML name", label)
	}
	if s, ok := v.(string); !ok || s != label {
		return fmt.Errorf("label '%s' is read by YAML as %s, not as a name", label, yamlKind(v))
	}
	return nil
}

func yamlKind(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "a boolean"
	case int, int64, uint64, float64:
		return "a number"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// CheckRecord reports every reason a stored record cannot be written into a
// training document: line breaks in the text, unusable labels and
// inconsistent entity spans.
func CheckRecord(r Record) []string {
	var problems []string
	if models.HasLineBreak(r.Text) {
		problems = append(problems, "message text contains a line break")
	}
	if r.Intent != "" {
		if err := CheckLabel(r.Intent); err != nil {
			problems = append(problems, "intent "+err.Error())
		}
	}
	for i, ent := range r.Entities {
		if ent.Label == "" {
			continue
		}
		if err := CheckLabel(ent.Label); err != nil {
			problems = append(problems, fmt.Sprintf("entity #%d: %s", i+1, err))
		}
	}
	if report := ValidateEntities(r.Text, r.Entities); !report.Valid {
		problems = append(problems, report.Errors...)
	}
	return problems
}

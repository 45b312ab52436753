// Package template renders {{variable}} placeholders in campaign
// subject and body templates with contact attributes.
package template

import (
	"regexp"
	"sort"
	"strings"
)

// varPattern matches {{variable_name}} placeholders.
var varPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Recognized is the set of placeholders a contact record can fill.
var Recognized = map[string]bool{
	"first_name": true,
	"last_name":  true,
	"full_name":  true,
	"company":    true,
	"email":      true,
	"phone":      true,
}

// Render substitutes {{variable}} placeholders with values from
// attrs. Placeholders with no value in attrs are kept verbatim so a
// malformed template degrades instead of aborting the send.
func Render(template string, attrs map[string]string) string {
	if template == "" {
		return template
	}

	return varPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		if value, ok := attrs[name]; ok {
			return value
		}
		return match
	})
}

// ValidationResult lists placeholders outside the recognized set.
type ValidationResult struct {
	Valid            bool     `json:"valid"`
	UnknownVariables []string `json:"unknown_variables,omitempty"`
}

// Validate enumerates placeholders not in the recognized variable
// set. It is a static pre-send check for campaign authors; Render
// never consults it.
func Validate(template string) ValidationResult {
	seen := make(map[string]bool)
	var unknown []string

	for _, m := range varPattern.FindAllStringSubmatch(template, -1) {
		name := strings.TrimSpace(m[1])
		if Recognized[name] || seen[name] {
			continue
		}
		seen[name] = true
		unknown = append(unknown, name)
	}

	sort.Strings(unknown)
	return ValidationResult{Valid: len(unknown) == 0, UnknownVariables: unknown}
}

package queue

import "strings"

// missingVariables returns declared template variables absent from the
// supplied map, in declaration order.
func missingVariables(declared []string, supplied map[string]string) []string {
	var missing []string
	for _, name := range declared {
		if _, ok := supplied[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// substitute replaces {{name}} placeholders with supplied values.
// Both {{name}} and the spaced {{ name }} form are recognized.
func substitute(s string, vars map[string]string) string {
	for name, value := range vars {
		s = strings.ReplaceAll(s, "{{"+name+"}}", value)
		s = strings.ReplaceAll(s, "{{ "+name+" }}", value)
	}
	return s
}

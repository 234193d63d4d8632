package tools

import "fmt"

// renderDoc synthesises the three-section documentation block described in
// spec section 4.3: description with a one-line example invocation,
// rendered input schema, rendered output schema (when present).
func renderDoc(t *Tool) string {
	doc := fmt.Sprintf("%s\n%s\nExample: %s(input)\n", t.FullName(), t.Description, t.FullName())
	doc += fmt.Sprintf("Input: %s\n", t.InputSchema.Render())
	if t.OutputSchema != nil {
		doc += fmt.Sprintf("Output: %s\n", t.OutputSchema.Render())
	}
	return doc
}

package structured

import (
	"strings"

	gojson "github.com/goccy/go-json"
)

// StrictJSONAddendum is appended to the prompt when the previous response
// contained no parseable JSON.
const StrictJSONAddendum = "Your previous reply could not be parsed. Respond with ONLY one JSON object. " +
	"No prose, no markdown code fences, no comments. The first character must be '{' and the last must be '}'."

// BuildSystemPrompt creates the instruction block sent alongside the user
// prompt for schema-guided generation.
func BuildSystemPrompt(schema *Schema) string {
	var sb strings.Builder

	sb.WriteString("You are a helpful assistant that generates structured JSON output.\n\n")
	sb.WriteString("IMPORTANT INSTRUCTIONS:\n")
	sb.WriteString("1. You MUST respond with valid JSON that conforms to the schema below.\n")
	sb.WriteString("2. Do NOT include any text before or after the JSON.\n")
	sb.WriteString("3. Do NOT wrap the JSON in an extra top-level key.\n")
	sb.WriteString("4. Use the exact field names from the schema.\n")
	sb.WriteString("5. Enum values must match one of the listed values exactly.\n")
	sb.WriteString("6. Ensure all required fields are present and have valid values.\n\n")

	if schema != nil {
		if b, err := gojson.MarshalIndent(schema.JSONSchema(), "", "  "); err == nil {
			sb.WriteString("JSON Schema:\n")
			sb.Write(b)
			sb.WriteString("\n\n")
		}
	}
	sb.WriteString("Respond with ONLY the JSON object.")
	return sb.String()
}

// withStrictAddendum appends the JSON-only addendum to a prompt.
func withStrictAddendum(prompt string) string {
	return strings.TrimRight(prompt, "\n") + "\n\n" + StrictJSONAddendum
}

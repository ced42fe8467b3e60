package query

import "strings"

// SystemPrompt instructs the model to stay within the retrieved context.
const SystemPrompt = "You answer questions using only the provided context."

// BuildPrompt renders the grounding prompt: every context as a "- "
// bullet separated by blank lines, followed by the question. With no
// contexts the Context section is empty.
func BuildPrompt(question string, contexts []string) string {
	var sb strings.Builder
	sb.WriteString("Use the following context to answer the question.\n\nContext:\n")
	for i, c := range contexts {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("- ")
		sb.WriteString(c)
	}
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\nAnswer concisely using the context above.")
	return sb.String()
}

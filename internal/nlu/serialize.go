package nlu

import "strings"

const (
	// FormatVersion is the RASA training data format version written into every document.
	FormatVersion = "3.1"

	// EmptyDocument is returned in place of a document when nothing matched the export filter.
	EmptyDocument = "# No approved annotations found for the specified criteria"
)

// Serialize writes the corpus as a RASA NLU document. Intents are sorted,
// examples keep corpus order, and every intent block ends with a blank line.
func Serialize(c *Corpus) string {
	var b strings.Builder
	b.WriteString("version: \"" + FormatVersion + "\"\n")
	b.WriteString("\n")
	b.WriteString("nlu:\n")

	for _, intent := range c.SortedIntents() {
		b.WriteString("- intent: " + intent + "\n")
		b.WriteString("  examples: |\n")
		for _, ex := range c.Intents[intent] {
			b.WriteString("    - " + ex.Text + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

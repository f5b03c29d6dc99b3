package nlu

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"training-platform/internal/models"
)

// Diagnostics separates fatal structural errors from advisory warnings.
type Diagnostics struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func newDiagnostics() Diagnostics {
	return Diagnostics{Errors: []string{}, Warnings: []string{}}
}

// OK reports whether no structural errors were found.
func (d Diagnostics) OK() bool {
	return len(d.Errors) == 0
}

func (d *Diagnostics) errorf(format string, args ...interface{}) {
	d.Errors = append(d.Errors, fmt.Sprintf(format, args...))
}

func (d *Diagnostics) warnf(format string, args ...interface{}) {
	d.Warnings = append(d.Warnings, fmt.Sprintf(format, args...))
}

// ValidateStructure parses document as an untrusted artifact and reports
// structural problems. It knows nothing about how the document was produced.
func ValidateStructure(document string) Diagnostics {
	_, diag := ReadDocument(document)
	return diag
}

// ReadDocument parses an NLU document into a corpus. Examples are recovered
// from their inline markup. The corpus holds whatever could be read even when
// structural errors are reported.
func ReadDocument(document string) (*Corpus, Diagnostics) {
	diag := newDiagnostics()
	corpus := NewCorpus()

	var root interface{}
	if err := yaml.Unmarshal([]byte(document), &root); err != nil {
		diag.errorf("YAML parsing error: %v", err)
		return corpus, diag
	}
	doc, ok := root.(map[string]interface{})
	if !ok {
		diag.errorf("Document must be a mapping with 'version' and 'nlu' keys")
		return corpus, diag
	}

	if _, ok := doc["version"]; !ok {
		diag.errorf("Missing 'version' field")
	}
	rawNLU, ok := doc["nlu"]
	if !ok {
		diag.errorf("Missing 'nlu' section")
		return corpus, diag
	}
	items, ok := rawNLU.([]interface{})
	if !ok {
		diag.errorf("'nlu' section must be a list")
		return corpus, diag
	}

	seen := make(map[string]bool)
	for idx, rawItem := range items {
		item, ok := rawItem.(map[string]interface{})
		if !ok {
			diag.errorf("NLU item %d must be a dictionary", idx)
			continue
		}
		rawIntent, ok := item["intent"]
		if !ok {
			diag.errorf("NLU item %d missing 'intent' field", idx)
			continue
		}
		intent := fmt.Sprint(rawIntent)
		if seen[intent] {
			diag.warnf("Duplicate intent '%s' found", intent)
		}
		seen[intent] = true

		rawExamples, ok := item["examples"]
		if !ok {
			diag.errorf("Intent '%s' missing 'examples' field", intent)
			continue
		}
		examples, ok := rawExamples.(string)
		if !ok {
			diag.errorf("Examples for '%s' must be a string", intent)
			continue
		}

		lines := exampleLines(examples)
		if len(lines) == 0 {
			diag.warnf("Intent '%s' has no examples", intent)
			continue
		}
		for _, line := range lines {
			_, entities := ParseMarkup(line)
			corpus.Add(intent, Example{Text: line, Entities: entities})
		}
	}
	return corpus, diag
}

// VerifyDocument validates document and then checks that reading it back
// yields the intents, examples and entity labels of c. A document can be
// well formed and still say something else than the corpus it was written
// from; every such difference is a structural error.
func VerifyDocument(c *Corpus, document string) Diagnostics {
	got, diag := ReadDocument(document)
	if !diag.OK() {
		return diag
	}

	for _, intent := range c.SortedIntents() {
		examples, ok := got.Intents[intent]
		if !ok {
			diag.errorf("Intent '%s' does not read back from the document", intent)
			continue
		}
		for _, ex := range c.Intents[intent] {
			if !containsExample(examples, ex) {
				diag.errorf("Example '%s' of intent '%s' does not read back from the document", ex.Text, intent)
			}
		}
	}
	for _, intent := range got.SortedIntents() {
		if _, ok := c.Intents[intent]; !ok {
			diag.errorf("Document contains intent '%s' that is not in the exported data", intent)
		}
	}
	return diag
}

func containsExample(examples []Example, want Example) bool {
	text := strings.TrimSpace(want.Text)
	for _, ex := range examples {
		if ex.Text == text && sameLabels(ex.Entities, want.Entities) {
			return true
		}
	}
	return false
}

// sameLabels compares entity labels in text order.
func sameLabels(read, written []models.Entity) bool {
	if len(read) != len(written) {
		return false
	}
	sorted := make([]models.Entity, len(written))
	copy(sorted, written)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	for i := range read {
		if read[i].Label != sorted[i].Label || read[i].Value != sorted[i].Value {
			return false
		}
	}
	return true
}

// exampleLines extracts the bullet items of a literal examples block.
func exampleLines(block string) []string {
	var out []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimPrefix(line, "-")
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Vocabulary is the set of intent and entity labels already known to the live assistant.
type Vocabulary struct {
	intents  map[string]struct{}
	entities map[string]struct{}
}

func NewVocabulary(intents, entities []string) Vocabulary {
	v := Vocabulary{
		intents:  make(map[string]struct{}, len(intents)),
		entities: make(map[string]struct{}, len(entities)),
	}
	for _, i := range intents {
		v.intents[i] = struct{}{}
	}
	for _, e := range entities {
		v.entities[e] = struct{}{}
	}
	return v
}

func (v Vocabulary) HasIntent(intent string) bool {
	_, ok := v.intents[intent]
	return ok
}

func (v Vocabulary) HasEntity(entity string) bool {
	_, ok := v.entities[entity]
	return ok
}

// CheckDrift compares the corpus labels against the live vocabulary.
// It only ever produces warnings.
func CheckDrift(c *Corpus, vocab Vocabulary) []string {
	warnings := []string{}
	reported := make(map[string]bool)

	for _, intent := range c.SortedIntents() {
		if !vocab.HasIntent(intent) {
			warnings = append(warnings, fmt.Sprintf("Intent '%s' not found in existing data. This will create a new intent.", intent))
		}
		for _, ex := range c.Intents[intent] {
			for _, ent := range ex.Entities {
				if vocab.HasEntity(ent.Label) {
					continue
				}
				msg := fmt.Sprintf("Entity '%s' in intent '%s' not found in existing data", ent.Label, intent)
				if !reported[msg] {
					reported[msg] = true
					warnings = append(warnings, msg)
				}
			}
		}
	}
	return warnings
}

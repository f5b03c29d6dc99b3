package nlu

import (
	"sort"

	"training-platform/internal/models"
)

// Record is the part of an approved annotation that feeds the corpus.
type Record struct {
	ID       int64
	Intent   string
	Text     string
	Entities []models.Entity
}

// RecordFromAnnotation projects an annotation onto a corpus record.
func RecordFromAnnotation(a *models.Annotation) Record {
	return Record{
		ID:       a.ID,
		Intent:   a.Intent(),
		Text:     a.MessageText,
		Entities: a.ExportEntities(),
	}
}

// Example is one rendered training example together with the entities it was rendered from.
type Example struct {
	Text     string
	Entities []models.Entity
}

// Corpus maps intent labels to their deduplicated examples in first-seen order.
type Corpus struct {
	Intents     map[string][]Example
	SourceCount int
}

func NewCorpus() *Corpus {
	return &Corpus{Intents: make(map[string][]Example)}
}

// Add appends ex to the intent unless an identical rendered example is already present.
func (c *Corpus) Add(intent string, ex Example) bool {
	for _, existing := range c.Intents[intent] {
		if existing.Text == ex.Text {
			return false
		}
	}
	c.Intents[intent] = append(c.Intents[intent], ex)
	return true
}

// SortedIntents returns the intent labels in ascending order.
func (c *Corpus) SortedIntents() []string {
	intents := make([]string, 0, len(c.Intents))
	for intent := range c.Intents {
		intents = append(intents, intent)
	}
	sort.Strings(intents)
	return intents
}

// ExampleCount is the number of unique examples across all intents.
func (c *Corpus) ExampleCount() int {
	n := 0
	for _, examples := range c.Intents {
		n += len(examples)
	}
	return n
}

// Empty reports whether the corpus has no intents.
func (c *Corpus) Empty() bool {
	return len(c.Intents) == 0
}

// Aggregate groups records by intent, renders each example and drops exact
// duplicates within an intent. Records without an intent contribute nothing
// but are still counted in SourceCount.
func Aggregate(records []Record) *Corpus {
	corpus := NewCorpus()
	corpus.SourceCount = len(records)
	for _, r := range records {
		if r.Intent == "" {
			continue
		}
		corpus.Add(r.Intent, Example{
			Text:     Render(r.Text, r.Entities),
			Entities: r.Entities,
		})
	}
	return corpus
}

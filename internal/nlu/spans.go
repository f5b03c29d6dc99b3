package nlu

import (
	"fmt"
	"sort"

	"training-platform/internal/models"
)

// SpanReport is the outcome of validating the entity spans of one message.
type SpanReport struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ValidateSpans checks entities against text and accumulates every problem
// found instead of stopping at the first one. Entities are numbered from 1
// in messages.
func ValidateSpans(text string, entities []models.EntityInput) SpanReport {
	if text == "" {
		return SpanReport{Errors: []string{"text must not be empty"}}
	}

	runes := []rune(text)
	length := len(runes)
	errs := []string{}
	var placed []models.Entity

	for i, ent := range entities {
		n := i + 1
		if ent.Label == "" {
			errs = append(errs, fmt.Sprintf("entity #%d: missing 'entity' field", n))
		}
		if ent.Value == "" {
			errs = append(errs, fmt.Sprintf("entity #%d: missing 'value' field", n))
		}
		if ent.Start == nil {
			errs = append(errs, fmt.Sprintf("entity #%d: missing 'start' field", n))
		}
		if ent.End == nil {
			errs = append(errs, fmt.Sprintf("entity #%d: missing 'end' field", n))
		}
		if ent.Start == nil || ent.End == nil {
			continue
		}

		start, end := *ent.Start, *ent.End
		inRange := true
		if start < 0 {
			errs = append(errs, fmt.Sprintf("entity #%d: 'start' must not be negative (start=%d)", n, start))
			inRange = false
		}
		if end > length {
			errs = append(errs, fmt.Sprintf("entity #%d: 'end' (%d) exceeds text length (%d)", n, end, length))
			inRange = false
		}
		if start >= end {
			errs = append(errs, fmt.Sprintf("entity #%d: 'start' (%d) must be less than 'end' (%d)", n, start, end))
			inRange = false
		}
		if !inRange {
			continue
		}

		if actual := string(runes[start:end]); actual != ent.Value {
			errs = append(errs, fmt.Sprintf("entity #%d: value '%s' does not match text at %d-%d: '%s'", n, ent.Value, start, end, actual))
		}
		placed = append(placed, models.Entity{Label: ent.Label, Value: ent.Value, Start: start, End: end})
	}

	sort.SliceStable(placed, func(i, j int) bool {
		return placed[i].Start < placed[j].Start
	})
	for i := 0; i+1 < len(placed); i++ {
		prev, next := placed[i], placed[i+1]
		if prev.End > next.Start {
			errs = append(errs, fmt.Sprintf("entities overlap: '%s' (%d-%d) with '%s' (%d-%d)",
				prev.Value, prev.Start, prev.End, next.Value, next.Start, next.End))
		}
	}

	return SpanReport{Valid: len(errs) == 0, Errors: errs}
}

// ValidateEntities validates stored entities, which always carry both offsets.
func ValidateEntities(text string, entities []models.Entity) SpanReport {
	in := make([]models.EntityInput, len(entities))
	for i := range entities {
		start, end := entities[i].Start, entities[i].End
		in[i] = models.EntityInput{Label: entities[i].Label, Value: entities[i].Value, Start: &start, End: &end}
	}
	return ValidateSpans(text, in)
}

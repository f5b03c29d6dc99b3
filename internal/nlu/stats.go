package nlu

import "math"

// Stats summarizes an export.
type Stats struct {
	TotalIntents         int            `json:"total_intents"`
	TotalExamples        int            `json:"total_examples"`
	TotalEntitiesUsed    int            `json:"total_entities_used"`
	EntityUsage          map[string]int `json:"entity_usage"`
	AvgExamplesPerIntent float64        `json:"avg_examples_per_intent"`
	TotalAnnotations     int            `json:"total_annotations"`
}

// ComputeStats counts intents, unique examples and entity label usage of c.
func ComputeStats(c *Corpus) Stats {
	s := Stats{
		TotalIntents:     len(c.Intents),
		TotalExamples:    c.ExampleCount(),
		EntityUsage:      make(map[string]int),
		TotalAnnotations: c.SourceCount,
	}
	for _, examples := range c.Intents {
		for _, ex := range examples {
			for _, ent := range ex.Entities {
				s.EntityUsage[ent.Label]++
			}
		}
	}
	s.TotalEntitiesUsed = len(s.EntityUsage)
	if s.TotalIntents > 0 {
		avg := float64(s.TotalExamples) / float64(s.TotalIntents)
		s.AvgExamplesPerIntent = math.Round(avg*100) / 100
	}
	return s
}

// Package nlu turns approved annotations into a RASA NLU training document
// and validates that document.
package nlu

import (
	"sort"
	"strings"

	"training-platform/internal/models"
)

// Render wraps every entity span of text in inline markup: [value](label).
// Offsets are trusted; spans outside the text are skipped. Callers validate first.
func Render(text string, entities []models.Entity) string {
	if len(entities) == 0 {
		return text
	}

	ordered := make([]models.Entity, len(entities))
	copy(ordered, entities)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start > ordered[j].Start
	})

	runes := []rune(text)
	for _, e := range ordered {
		if e.Start < 0 || e.End > len(runes) || e.Start >= e.End {
			continue
		}
		var b strings.Builder
		b.WriteString(string(runes[:e.Start]))
		b.WriteByte('[')
		b.WriteString(string(runes[e.Start:e.End]))
		b.WriteString("](")
		b.WriteString(e.Label)
		b.WriteByte(')')
		b.WriteString(string(runes[e.End:]))
		runes = []rune(b.String())
	}
	return string(runes)
}

// ParseMarkup is the inverse of Render. It returns the plain text and the
// entities found in marked. Brackets that do not form a complete
// [value](label) construct are kept as literal text.
func ParseMarkup(marked string) (string, []models.Entity) {
	src := []rune(marked)
	var plain []rune
	entities := []models.Entity{}

	for i := 0; i < len(src); {
		if src[i] != '[' {
			plain = append(plain, src[i])
			i++
			continue
		}
		value, label, next, ok := scanSpan(src, i)
		if !ok {
			plain = append(plain, src[i])
			i++
			continue
		}
		start := len(plain)
		plain = append(plain, value...)
		entities = append(entities, models.Entity{
			Label: string(label),
			Value: string(value),
			Start: start,
			End:   len(plain),
		})
		i = next
	}
	return string(plain), entities
}

// scanSpan reads "[value](label)" starting at src[at] == '['.
func scanSpan(src []rune, at int) (value, label []rune, next int, ok bool) {
	closeBracket := -1
	for j := at + 1; j < len(src); j++ {
		if src[j] == '[' {
			return nil, nil, 0, false
		}
		if src[j] == ']' {
			closeBracket = j
			break
		}
	}
	if closeBracket <= at+1 || closeBracket+1 >= len(src) || src[closeBracket+1] != '(' {
		return nil, nil, 0, false
	}
	closeParen := -1
	for j := closeBracket + 2; j < len(src); j++ {
		if src[j] == ')' {
			closeParen = j
			break
		}
		if src[j] == '(' || src[j] == ' ' {
			return nil, nil, 0, false
		}
	}
	if closeParen <= closeBracket+2 {
		return nil, nil, 0, false
	}
	return src[at+1 : closeBracket], src[closeBracket+2 : closeParen], closeParen + 1, true
}

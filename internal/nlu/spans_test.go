package nlu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"training-platform/internal/models"
)

func intp(v int) *int { return &v }

func span(label, value string, start, end int) models.EntityInput {
	return models.EntityInput{Label: label, Value: value, Start: intp(start), End: intp(end)}
}

func TestValidateSpansValid(t *testing.T) {
	report := ValidateSpans("quiero 2 camisas", []models.EntityInput{
		span("cantidad", "2", 7, 8),
		span("producto", "camisas", 9, 16),
	})
	assert.True(t, report.Valid)
	assert.Empty(t, report.Errors)
}

func TestValidateSpansNoEntities(t *testing.T) {
	report := ValidateSpans("hola", nil)
	assert.True(t, report.Valid)
}

func TestValidateSpansEmptyTextShortCircuits(t *testing.T) {
	report := ValidateSpans("", []models.EntityInput{span("x", "y", 0, 1), {}})
	assert.False(t, report.Valid)
	assert.Equal(t, []string{"text must not be empty"}, report.Errors)
}

func TestValidateSpansMissingFields(t *testing.T) {
	report := ValidateSpans("hola", []models.EntityInput{
		{Label: "", Value: "", Start: nil, End: intp(2)},
		span("saludo", "hola", 0, 4),
	})
	assert.False(t, report.Valid)
	assert.Equal(t, []string{
		"entity #1: missing 'entity' field",
		"entity #1: missing 'value' field",
		"entity #1: missing 'start' field",
	}, report.Errors)
}

func TestValidateSpansAccumulatesIndependentDefects(t *testing.T) {
	text := "quiero 2 camisas rojas"
	report := ValidateSpans(text, []models.EntityInput{
		span("cantidad", "2", -1, 8),
		span("producto", "camisas", 9, 40),
		span("color", "azules", 17, 22),
		span("producto", "camisas", 9, 16),
		span("prenda", "camisas rojas", 9, 22),
	})

	assert.False(t, report.Valid)
	require.Len(t, report.Errors, 5)
	assert.Equal(t, "entity #1: 'start' must not be negative (start=-1)", report.Errors[0])
	assert.Equal(t, "entity #2: 'end' (40) exceeds text length (22)", report.Errors[1])
	assert.Equal(t, "entity #3: value 'azules' does not match text at 17-22: 'rojas'", report.Errors[2])
	assert.Contains(t, report.Errors[3], "entities overlap: 'camisas' (9-16)")
	assert.Contains(t, report.Errors[4], "entities overlap: 'camisas rojas' (9-22) with 'azules' (17-22)")
}

func TestValidateSpansInvertedRange(t *testing.T) {
	report := ValidateSpans("hola", []models.EntityInput{span("x", "ho", 2, 2)})
	assert.Equal(t, []string{"entity #1: 'start' (2) must be less than 'end' (2)"}, report.Errors)
}

func TestValidateSpansCountsRunes(t *testing.T) {
	report := ValidateSpans("añadir camisa", []models.EntityInput{span("producto", "camisa", 7, 13)})
	assert.True(t, report.Valid, report.Errors)
}

func TestValidateEntities(t *testing.T) {
	report := ValidateEntities("hola", []models.Entity{{Label: "saludo", Value: "hola", Start: 0, End: 4}})
	assert.True(t, report.Valid)

	report = ValidateEntities("hola", []models.Entity{{Label: "saludo", Value: "hols", Start: 0, End: 4}})
	assert.False(t, report.Valid)
}

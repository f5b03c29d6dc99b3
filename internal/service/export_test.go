package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"training-platform/internal/models"
	"training-platform/internal/nlu"
)

func shirtDraft() models.AnnotationDraft {
	return bothDraft("quiero 2 camisas", "agregar_al_carrito",
		ent("cantidad", "2", 7, 8),
		ent("producto", "camisas", 9, 16),
	)
}

func TestExportEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedEvent(t, `{"parse_data":{"intent":{"name":"agregar_al_carrito"},"entities":[{"entity":"cantidad"},{"entity":"producto"}]}}`)
	f.seedEvent(t, `{"parse_data":{"intent":{"name":"saludar"},"entities":[]}}`)

	f.createApproved(t, shirtDraft())
	f.createApproved(t, shirtDraft())
	f.createApproved(t, intentDraft("hola", "saludar"))
	_, err := f.svc.Create(ctx, f.analyst, intentDraft("pendiente", "saludar"))
	require.NoError(t, err)

	result, err := f.export.Preview(ctx, models.ExportFilter{})
	require.NoError(t, err)

	want := "version: \"3.1\"\n" +
		"\n" +
		"nlu:\n" +
		"- intent: agregar_al_carrito\n" +
		"  examples: |\n" +
		"    - quiero [2](cantidad) [camisas](producto)\n" +
		"\n" +
		"- intent: saludar\n" +
		"  examples: |\n" +
		"    - hola\n" +
		"\n"
	if diff := cmp.Diff(want, result.Document); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
	assert.True(t, result.IsValid)
	assert.True(t, result.CanExport)

	assert.Equal(t, nlu.Stats{
		TotalIntents:         2,
		TotalExamples:        2,
		TotalEntitiesUsed:    2,
		EntityUsage:          map[string]int{"cantidad": 1, "producto": 1},
		AvgExamplesPerIntent: 1,
		TotalAnnotations:     3,
	}, result.Stats)

	file, err := f.export.Download(ctx, models.ExportFilter{})
	require.NoError(t, err)
	assert.Equal(t, result.Document, string(file.Content))
	assert.Equal(t, "nlu_annotations_20260310_090000.yml", file.Filename)
	assert.Equal(t, ExportContentType, file.ContentType)
}

func TestExportEmptySelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.analyst, intentDraft("hola", "saludar"))
	require.NoError(t, err)

	result, err := f.export.Preview(ctx, models.ExportFilter{})
	require.NoError(t, err)
	assert.Equal(t, nlu.EmptyDocument, result.Document)
	assert.Equal(t, []string{"No annotations available for export"}, result.Warnings)
	assert.Empty(t, result.Errors)
	assert.False(t, result.IsValid)
	assert.False(t, result.CanExport)
	assert.Zero(t, result.Stats.TotalAnnotations)

	_, err = f.export.Download(ctx, models.ExportFilter{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExportUnknownLabelsAreWarningsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createApproved(t, shirtDraft())

	result, err := f.export.Preview(ctx, models.ExportFilter{})
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	assert.True(t, result.CanExport)
	assert.Equal(t, []string{
		"Intent 'agregar_al_carrito' not found in existing data. This will create a new intent.",
		"Entity 'cantidad' in intent 'agregar_al_carrito' not found in existing data",
		"Entity 'producto' in intent 'agregar_al_carrito' not found in existing data",
	}, result.Warnings)

	_, err = f.export.Download(ctx, models.ExportFilter{})
	assert.NoError(t, err)
}

func TestExportExcludesInconsistentApprovedRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createApproved(t, intentDraft("hola", "saludar"))

	reviewedAt := base
	broken := &models.Annotation{
		ConversationID:    "conv-9",
		MessageText:       "quiero 2 camisas",
		CorrectedIntent:   strp("agregar_al_carrito"),
		OriginalEntities:  models.Entities{},
		CorrectedEntities: models.Entities{{Label: "cantidad", Value: "3", Start: 7, End: 8}},
		AnnotationType:    models.TypeBoth,
		Status:            models.StatusApproved,
		AnnotatedBy:       f.analyst.ID,
		AnnotatedAt:       base,
		ReviewedBy:        &f.lead.ID,
		ReviewedAt:        &reviewedAt,
		UpdatedAt:         base,
	}
	require.NoError(t, f.annotations.Create(ctx, broken))

	result, err := f.export.Preview(ctx, models.ExportFilter{})
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.False(t, result.CanExport)
	assert.Equal(t, []string{
		fmt.Sprintf("annotation #%d: entity #1: value '3' does not match text at 7-8: '2'", broken.ID),
	}, result.Errors)
	assert.NotContains(t, result.Document, "camisas")
	assert.Equal(t, 2, result.Stats.TotalAnnotations)

	_, err = f.export.Download(ctx, models.ExportFilter{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestExportFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createApproved(t, intentDraft("hola", "saludar"))
	f.clock.advance(48 * time.Hour)
	f.createApproved(t, intentDraft("adios", "despedir"))
	f.createApproved(t, intentDraft("buenas", "saludar"))

	from := base.Add(-time.Hour)
	to := base.Add(24 * time.Hour)
	result, err := f.export.Preview(ctx, models.ExportFilter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Contains(t, result.Document, "- hola\n")
	assert.NotContains(t, result.Document, "adios")
	assert.NotContains(t, result.Document, "buenas")

	result, err = f.export.Preview(ctx, models.ExportFilter{Intent: "saludar"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.TotalIntents)
	assert.Equal(t, 2, result.Stats.TotalExamples)

	_, err = f.export.Preview(ctx, models.ExportFilter{From: &to, To: &from})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestExportDoesNotChangeAnnotations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createApproved(t, shirtDraft())

	first, err := f.export.Preview(ctx, models.ExportFilter{})
	require.NoError(t, err)
	_, err = f.export.Download(ctx, models.ExportFilter{})
	require.NoError(t, err)
	second, err := f.export.Preview(ctx, models.ExportFilter{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	stored, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
}

func TestVocabularyListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedEvent(t, `{"parse_data":{"intent":{"name":"saludar"},"entities":[{"entity":"nombre"}]}}`)

	intents, err := f.export.IntentVocabulary(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"saludar"}, intents)

	entities, err := f.export.EntityVocabulary(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"nombre"}, entities)
}

func storeApproved(t *testing.T, f *fixture, text, intent string, entities models.Entities) *models.Annotation {
	t.Helper()
	reviewedAt := base
	a := &models.Annotation{
		ConversationID:    "conv-legacy",
		MessageText:       text,
		CorrectedIntent:   strp(intent),
		OriginalEntities:  models.Entities{},
		CorrectedEntities: entities,
		AnnotationType:    models.TypeBoth,
		Status:            models.StatusApproved,
		AnnotatedBy:       f.analyst.ID,
		AnnotatedAt:       base,
		ReviewedBy:        &f.lead.ID,
		ReviewedAt:        &reviewedAt,
		UpdatedAt:         base,
	}
	require.NoError(t, f.annotations.Create(context.Background(), a))
	return a
}

func TestExportExcludesRecordsThatBreakTheDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createApproved(t, intentDraft("hola", "saludar"))
	commented := storeApproved(t, f, "quiero pedir", "pedir #2", models.Entities{})
	multiline := storeApproved(t, f, "hola\nmundo", "saludar", models.Entities{})
	badEntity := storeApproved(t, f, "quiero 2 camisas", "comprar", models.Entities{{Label: "cant)x", Value: "2", Start: 7, End: 8}})

	result, err := f.export.Preview(ctx, models.ExportFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		fmt.Sprintf("annotation #%d: entity #1: label 'cant)x' may only contain ASCII letters, digits, '_', '-' and '.'", badEntity.ID),
		fmt.Sprintf("annotation #%d: intent label 'pedir #2' may only contain ASCII letters, digits, '_', '-' and '.'", commented.ID),
		fmt.Sprintf("annotation #%d: message text contains a line break", multiline.ID),
	}, result.Errors)
	assert.True(t, result.IsValid)
	assert.False(t, result.CanExport)
	assert.Equal(t, "version: \"3.1\"\n\nnlu:\n- intent: saludar\n  examples: |\n    - hola\n\n", result.Document)
	assert.Equal(t, 4, result.Stats.TotalAnnotations)

	_, err = f.export.Download(ctx, models.ExportFilter{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestExportOnlyEntityCorrections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createApproved(t, models.AnnotationDraft{
		ConversationID:    "conv-2",
		MessageText:       "quiero 2 camisas",
		CorrectedEntities: []models.EntityInput{ent("cantidad", "2", 7, 8)},
		AnnotationType:    models.TypeEntity,
	})

	result, err := f.export.Preview(ctx, models.ExportFilter{})
	require.NoError(t, err)
	assert.Equal(t, nlu.EmptyDocument, result.Document)
	assert.Equal(t, 1, result.Stats.TotalAnnotations)
	assert.Equal(t, []string{
		"No annotations available for export",
		"1 matching annotation(s) have no intent correction and produce no examples",
	}, result.Warnings)
	assert.Empty(t, result.Errors)
	assert.False(t, result.CanExport)

	_, err = f.export.Download(ctx, models.ExportFilter{})
	assert.ErrorIs(t, err, ErrNotFound)
}

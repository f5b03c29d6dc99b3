package nlu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"training-platform/internal/models"
)

func TestValidateStructure(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		errors   []string
		warnings []string
	}{
		{
			name: "well formed",
			doc:  "version: \"3.1\"\n\nnlu:\n- intent: saludar\n  examples: |\n    - hola\n\n",
		},
		{
			name:   "missing version",
			doc:    "nlu:\n- intent: saludar\n  examples: |\n    - hola\n",
			errors: []string{"Missing 'version' field"},
		},
		{
			name:   "missing nlu",
			doc:    "version: \"3.1\"\n",
			errors: []string{"Missing 'nlu' section"},
		},
		{
			name:   "nlu not a list",
			doc:    "version: \"3.1\"\nnlu: saludar\n",
			errors: []string{"'nlu' section must be a list"},
		},
		{
			name:   "item not a mapping",
			doc:    "version: \"3.1\"\nnlu:\n- saludar\n",
			errors: []string{"NLU item 0 must be a dictionary"},
		},
		{
			name:   "item without intent",
			doc:    "version: \"3.1\"\nnlu:\n- examples: |\n    - hola\n",
			errors: []string{"NLU item 0 missing 'intent' field"},
		},
		{
			name:   "intent without examples",
			doc:    "version: \"3.1\"\nnlu:\n- intent: saludar\n",
			errors: []string{"Intent 'saludar' missing 'examples' field"},
		},
		{
			name:   "examples not a string",
			doc:    "version: \"3.1\"\nnlu:\n- intent: saludar\n  examples:\n  - hola\n",
			errors: []string{"Examples for 'saludar' must be a string"},
		},
		{
			name:     "empty examples and duplicate intent are warnings",
			doc:      "version: \"3.1\"\nnlu:\n- intent: saludar\n  examples: \"\"\n- intent: saludar\n  examples: |\n    - hola\n",
			warnings: []string{"Intent 'saludar' has no examples", "Duplicate intent 'saludar' found"},
		},
		{
			name:   "placeholder document",
			doc:    EmptyDocument,
			errors: []string{"Document must be a mapping with 'version' and 'nlu' keys"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diag := ValidateStructure(tt.doc)
			if tt.errors == nil {
				tt.errors = []string{}
			}
			if tt.warnings == nil {
				tt.warnings = []string{}
			}
			assert.Equal(t, tt.errors, diag.Errors)
			assert.ElementsMatch(t, tt.warnings, diag.Warnings)
		})
	}
}

func TestValidateStructureParseError(t *testing.T) {
	diag := ValidateStructure("version: \"3.1\"\nnlu: [unclosed\n")
	require.Len(t, diag.Errors, 1)
	assert.Contains(t, diag.Errors[0], "YAML parsing error")
	assert.False(t, diag.OK())
}

func TestReadDocumentRecoversEntities(t *testing.T) {
	corpus, diag := ReadDocument("version: \"3.1\"\nnlu:\n- intent: agregar\n  examples: |\n    - quiero [2](cantidad) [camisas](producto)\n    - hola\n")
	require.True(t, diag.OK())

	examples := corpus.Intents["agregar"]
	require.Len(t, examples, 2)
	assert.Equal(t, []models.Entity{
		{Label: "cantidad", Value: "2", Start: 7, End: 8},
		{Label: "producto", Value: "camisas", Start: 9, End: 16},
	}, examples[0].Entities)
	assert.Empty(t, examples[1].Entities)
}

func TestCheckDrift(t *testing.T) {
	corpus := Aggregate([]Record{
		{Intent: "saludar", Text: "hola"},
		{Intent: "comprar", Text: "2 camisas", Entities: []models.Entity{
			{Label: "cantidad", Value: "2", Start: 0, End: 1},
			{Label: "producto", Value: "camisas", Start: 2, End: 9},
		}},
		{Intent: "comprar", Text: "3 camisas", Entities: []models.Entity{
			{Label: "cantidad", Value: "3", Start: 0, End: 1},
		}},
	})
	vocab := NewVocabulary([]string{"saludar"}, []string{"producto"})

	warnings := CheckDrift(corpus, vocab)

	assert.Equal(t, []string{
		"Intent 'comprar' not found in existing data. This will create a new intent.",
		"Entity 'cantidad' in intent 'comprar' not found in existing data",
	}, warnings)
}

func TestUnknownIntentIsOnlyAWarning(t *testing.T) {
	corpus := Aggregate([]Record{{Intent: "pedir_factura", Text: "necesito factura"}})
	doc := Serialize(corpus)

	diag := ValidateStructure(doc)
	warnings := CheckDrift(corpus, NewVocabulary([]string{"saludar"}, nil))

	assert.Empty(t, diag.Errors)
	assert.Len(t, warnings, 1)
}

func TestVerifyDocumentCatchesLabelsThatChangeOnRead(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		errors []string
	}{
		{
			name:   "clean",
			record: Record{Intent: "agregar_al_carrito", Text: "quiero 2 camisas", Entities: []models.Entity{{Label: "cantidad", Value: "2", Start: 7, End: 8}}},
		},
		{
			name:   "comment in intent",
			record: Record{Intent: "pedir #2", Text: "quiero pedir"},
			errors: []string{
				"Intent 'pedir #2' does not read back from the document",
				"Document contains intent 'pedir' that is not in the exported data",
			},
		},
		{
			name:   "null intent",
			record: Record{Intent: "null", Text: "hola"},
			errors: []string{
				"Intent 'null' does not read back from the document",
				"Document contains intent '<nil>' that is not in the exported data",
			},
		},
		{
			name:   "parenthesis in entity label",
			record: Record{Intent: "comprar", Text: "quiero 2 camisas", Entities: []models.Entity{{Label: "cant)x", Value: "2", Start: 7, End: 8}}},
			errors: []string{"Example 'quiero [2](cant)x) camisas' of intent 'comprar' does not read back from the document"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corpus := Aggregate([]Record{tt.record})
			diag := VerifyDocument(corpus, Serialize(corpus))
			if tt.errors == nil {
				assert.True(t, diag.OK(), diag.Errors)
				return
			}
			assert.Equal(t, tt.errors, diag.Errors)
		})
	}
}

func TestVerifyDocumentStopsOnStructuralErrors(t *testing.T) {
	corpus := Aggregate([]Record{{Intent: "saludar", Text: "hola"}})
	diag := VerifyDocument(corpus, "version: \"3.1\"\nnlu: [unclosed\n")
	require.Len(t, diag.Errors, 1)
	assert.Contains(t, diag.Errors[0], "YAML parsing error")
}

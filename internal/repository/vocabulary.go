package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// VocabularyRepository reads the labels the live assistant has produced,
// as recorded by the RASA tracker store in the events table.
type VocabularyRepository interface {
	IntentLabels(ctx context.Context) ([]string, error)
	EntityLabels(ctx context.Context) ([]string, error)
}

type vocabularyRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewVocabularyRepository(db *sqlx.DB, logger *zap.Logger) VocabularyRepository {
	return &vocabularyRepository{db: db, logger: logger}
}

var intentLabelQueries = map[string]string{
	DriverPostgres: `
		SELECT DISTINCT data::jsonb->'parse_data'->'intent'->>'name' AS intent_name
		FROM events
		WHERE type_name = 'user'
		  AND data::jsonb->'parse_data'->'intent'->>'name' IS NOT NULL
		ORDER BY intent_name`,
	DriverSQLite: `
		SELECT DISTINCT json_extract(data, '$.parse_data.intent.name') AS intent_name
		FROM events
		WHERE type_name = 'user'
		  AND json_extract(data, '$.parse_data.intent.name') IS NOT NULL
		ORDER BY intent_name`,
}

var entityLabelQueries = map[string]string{
	DriverPostgres: `
		SELECT DISTINCT ent->>'entity' AS entity_type
		FROM events,
		     jsonb_array_elements(
		         CASE WHEN jsonb_typeof(data::jsonb->'parse_data'->'entities') = 'array'
		              THEN data::jsonb->'parse_data'->'entities'
		              ELSE '[]'::jsonb END
		     ) AS ent
		WHERE type_name = 'user'
		  AND ent->>'entity' IS NOT NULL
		ORDER BY entity_type`,
	DriverSQLite: `
		SELECT DISTINCT json_extract(ent.value, '$.entity') AS entity_type
		FROM events, json_each(events.data, '$.parse_data.entities') AS ent
		WHERE events.type_name = 'user'
		  AND json_extract(ent.value, '$.entity') IS NOT NULL
		ORDER BY entity_type`,
}

func (r *vocabularyRepository) IntentLabels(ctx context.Context) ([]string, error) {
	return r.labels(ctx, intentLabelQueries[r.db.DriverName()], "intent")
}

func (r *vocabularyRepository) EntityLabels(ctx context.Context) ([]string, error) {
	return r.labels(ctx, entityLabelQueries[r.db.DriverName()], "entity")
}

func (r *vocabularyRepository) labels(ctx context.Context, query, kind string) ([]string, error) {
	labels := []string{}
	if err := r.db.SelectContext(ctx, &labels, query); err != nil {
		r.logger.Error("Failed to read reference vocabulary", zap.String("kind", kind), zap.Error(err))
		return nil, err
	}

	out := labels[:0]
	for _, l := range labels {
		if l != "" {
			out = append(out, l)
		}
	}
	return out, nil
}

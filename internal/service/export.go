package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"training-platform/internal/models"
	"training-platform/internal/nlu"
	"training-platform/internal/repository"
)

const (
	ExportContentType  = "application/x-yaml; charset=utf-8"
	noAnnotationsError = "No approved annotations found for the specified criteria"
	noAnnotationsWarn  = "No annotations available for export"
)

// ExportResult is the preview of an NLU export.
type ExportResult struct {
	Document  string    `json:"yaml_content"`
	Stats     nlu.Stats `json:"stats"`
	Errors    []string  `json:"validation_errors"`
	Warnings  []string  `json:"validation_warnings"`
	IsValid   bool      `json:"is_valid"`
	CanExport bool      `json:"can_export"`
}

// ExportFile is a downloadable NLU document.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ExportService builds RASA NLU training data from approved annotations.
// It only reads; every call recomputes the document from the current state.
type ExportService interface {
	Preview(ctx context.Context, filter models.ExportFilter) (*ExportResult, error)
	Download(ctx context.Context, filter models.ExportFilter) (*ExportFile, error)
	IntentVocabulary(ctx context.Context) ([]string, error)
	EntityVocabulary(ctx context.Context) ([]string, error)
}

type exportService struct {
	annotations repository.AnnotationRepository
	vocabulary  repository.VocabularyRepository
	logger      *zap.Logger
	now         func() time.Time
}

func NewExportService(annotations repository.AnnotationRepository, vocabulary repository.VocabularyRepository, logger *zap.Logger) ExportService {
	return &exportService{
		annotations: annotations,
		vocabulary:  vocabulary,
		logger:      logger,
		now:         utcNow,
	}
}

func (s *exportService) Preview(ctx context.Context, filter models.ExportFilter) (*ExportResult, error) {
	return s.build(ctx, filter)
}

func (s *exportService) Download(ctx context.Context, filter models.ExportFilter) (*ExportFile, error) {
	result, err := s.build(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		return nil, &ValidationError{Problems: append([]string{"cannot export invalid document"}, result.Errors...)}
	}
	if result.Document == nlu.EmptyDocument {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, noAnnotationsError)
	}
	return &ExportFile{
		Filename:    "nlu_annotations_" + s.now().Format("20060102_150405") + ".yml",
		ContentType: ExportContentType,
		Content:     []byte(result.Document),
	}, nil
}

func (s *exportService) build(ctx context.Context, filter models.ExportFilter) (*ExportResult, error) {
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, newValidationError("from_date must not be after to_date")
	}

	approved, err := s.annotations.ListApproved(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load approved annotations: %w", err)
	}
	if len(approved) == 0 {
		return emptyResult(nil), nil
	}

	var faults []string
	records := make([]nlu.Record, 0, len(approved))
	for i := range approved {
		a := &approved[i]
		record := nlu.RecordFromAnnotation(a)
		if problems := nlu.CheckRecord(record); len(problems) > 0 {
			for _, msg := range problems {
				faults = append(faults, fmt.Sprintf("annotation #%d: %s", a.ID, msg))
			}
			s.logger.Error("Approved annotation cannot be exported",
				zap.Int64("annotation_id", a.ID),
				zap.Strings("errors", problems),
			)
			continue
		}
		records = append(records, record)
	}

	corpus := nlu.Aggregate(records)
	if corpus.Empty() {
		result := emptyResult(faults)
		result.Stats.TotalAnnotations = len(approved)
		if withoutIntent := countWithoutIntent(records); withoutIntent > 0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%d matching annotation(s) have no intent correction and produce no examples", withoutIntent))
		}
		return result, nil
	}

	document := nlu.Serialize(corpus)
	diag := nlu.VerifyDocument(corpus, document)

	intents, err := s.vocabulary.IntentLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference intents: %w", err)
	}
	entities, err := s.vocabulary.EntityLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference entities: %w", err)
	}
	drift := nlu.CheckDrift(corpus, nlu.NewVocabulary(intents, entities))

	stats := nlu.ComputeStats(corpus)
	stats.TotalAnnotations = len(approved)

	result := &ExportResult{
		Document: document,
		Stats:    stats,
		Errors:   append(diag.Errors, faults...),
		Warnings: append(diag.Warnings, drift...),
		IsValid:  diag.OK(),
	}
	result.CanExport = len(result.Errors) == 0

	s.logger.Info("NLU export built",
		zap.Int("annotations", len(approved)),
		zap.Int("intents", stats.TotalIntents),
		zap.Int("examples", stats.TotalExamples),
		zap.Int("errors", len(result.Errors)),
		zap.Int("warnings", len(result.Warnings)),
	)
	return result, nil
}

func countWithoutIntent(records []nlu.Record) int {
	n := 0
	for _, r := range records {
		if r.Intent == "" {
			n++
		}
	}
	return n
}

func emptyResult(faults []string) *ExportResult {
	errs := []string{}
	errs = append(errs, faults...)
	return &ExportResult{
		Document: nlu.EmptyDocument,
		Stats:    nlu.Stats{EntityUsage: map[string]int{}},
		Errors:   errs,
		Warnings: []string{noAnnotationsWarn},
	}
}

func (s *exportService) IntentVocabulary(ctx context.Context) ([]string, error) {
	labels, err := s.vocabulary.IntentLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference intents: %w", err)
	}
	return labels, nil
}

func (s *exportService) EntityVocabulary(ctx context.Context) ([]string, error) {
	labels, err := s.vocabulary.EntityLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference entities: %w", err)
	}
	return labels, nil
}

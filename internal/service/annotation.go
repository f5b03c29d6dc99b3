package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"training-platform/internal/models"
	"training-platform/internal/nlu"
	"training-platform/internal/notify"
	"training-platform/internal/repository"
)

// AnnotationService owns the annotation lifecycle:
//
//	pending -> approved -> trained -> deployed
//	pending -> rejected -> (edit) -> pending
//
// Every state change is a status-guarded write, so of two concurrent
// reviewers only the first one succeeds.
type AnnotationService interface {
	Create(ctx context.Context, actor models.Actor, draft models.AnnotationDraft) (*models.Annotation, error)
	Get(ctx context.Context, id int64) (*models.Annotation, error)
	List(ctx context.Context, filter models.AnnotationFilter) (*models.AnnotationPage, error)
	Update(ctx context.Context, actor models.Actor, id int64, update models.AnnotationUpdate) (*models.Annotation, error)
	Delete(ctx context.Context, actor models.Actor, id int64) error
	Review(ctx context.Context, actor models.Actor, id int64, decision models.ReviewDecision) (*models.Annotation, error)
	MarkTrained(ctx context.Context, ids []int64, jobID int64) ([]int64, error)
	MarkDeployed(ctx context.Context, jobID int64) ([]int64, error)
	Stats(ctx context.Context) (*models.AnnotationStats, error)
	History(ctx context.Context, id int64) ([]models.ActivityLog, error)
}

type annotationService struct {
	repo     repository.AnnotationRepository
	activity repository.ActivityRepository
	notifier notify.Notifier
	audit    *auditor
	logger   *zap.Logger
	now      func() time.Time
}

func NewAnnotationService(repo repository.AnnotationRepository, activity repository.ActivityRepository, notifier notify.Notifier, logger *zap.Logger) AnnotationService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	s := &annotationService{
		repo:     repo,
		activity: activity,
		notifier: notifier,
		logger:   logger,
		now:      utcNow,
	}
	s.audit = &auditor{repo: activity, logger: logger, now: func() time.Time { return s.now() }}
	return s
}

var systemActor = models.Actor{Username: "system", Role: models.RoleAdmin}

func (s *annotationService) Create(ctx context.Context, actor models.Actor, draft models.AnnotationDraft) (*models.Annotation, error) {
	entry := auditEntry{actor: &actor, action: models.ActionCreateAnnotation, entityType: models.EntityTypeAnnotation}

	if !actor.Role.AtLeast(models.RoleQAAnalyst) {
		entry.err = fmt.Errorf("%w: creating annotations requires role %s", ErrForbidden, models.RoleQAAnalyst)
		s.audit.record(ctx, entry)
		return nil, entry.err
	}

	draft.Normalize()
	if err := validateDraft(&draft); err != nil {
		entry.err = err
		s.audit.record(ctx, entry)
		return nil, err
	}

	now := s.now()
	a := &models.Annotation{
		ConversationID:     strings.TrimSpace(draft.ConversationID),
		MessageText:        draft.MessageText,
		MessageTimestamp:   draft.MessageTimestamp,
		OriginalIntent:     draft.OriginalIntent,
		CorrectedIntent:    draft.CorrectedIntent,
		OriginalConfidence: draft.OriginalConfidence,
		OriginalEntities:   draft.OriginalEntities,
		CorrectedEntities:  models.ToEntities(draft.CorrectedEntities),
		AnnotationType:     draft.AnnotationType,
		Status:             models.StatusPending,
		Notes:              draft.Notes,
		AnnotatedBy:        actor.ID,
		AnnotatedAt:        now,
		UpdatedAt:          now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		entry.err = fmt.Errorf("failed to create annotation: %w", err)
		s.audit.record(ctx, entry)
		return nil, entry.err
	}

	entry.entityID = int64Ptr(a.ID)
	entry.details = map[string]interface{}{
		"conversation_id": a.ConversationID,
		"annotation_type": a.AnnotationType,
		"intent":          a.Intent(),
	}
	s.audit.record(ctx, entry)

	if err := s.notifier.AnnotationSubmitted(ctx, a, actor.Username); err != nil {
		s.logger.Warn("Failed to notify reviewers", zap.Int64("annotation_id", a.ID), zap.Error(err))
	}
	return a, nil
}

// validateDraft runs the field checks and, when entities are authoritative,
// the span checks, and reports all problems together.
func validateDraft(d *models.AnnotationDraft) error {
	problems := d.Validate()
	if d.CorrectedIntent != nil {
		if err := nlu.CheckLabel(*d.CorrectedIntent); err != nil {
			problems = append(problems, "corrected_intent: "+err.Error())
		}
	}
	if d.AnnotationType.CorrectsEntities() && d.CorrectedEntities != nil && d.MessageText != "" {
		report := nlu.ValidateSpans(d.MessageText, d.CorrectedEntities)
		problems = append(problems, report.Errors...)
		for i, ent := range d.CorrectedEntities {
			if ent.Label == "" {
				continue
			}
			if err := nlu.CheckLabel(ent.Label); err != nil {
				problems = append(problems, fmt.Sprintf("entity #%d: %s", i+1, err))
			}
		}
	}
	if len(problems) > 0 {
		return newValidationError(problems...)
	}
	return nil
}

func (s *annotationService) Get(ctx context.Context, id int64) (*models.Annotation, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return a, nil
}

func (s *annotationService) List(ctx context.Context, filter models.AnnotationFilter) (*models.AnnotationPage, error) {
	filter.Normalize()
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, newValidationError(fmt.Sprintf("unknown status %q", filter.Status))
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list annotations: %w", err)
	}
	return &models.AnnotationPage{
		Items:      items,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: (total + filter.PageSize - 1) / filter.PageSize,
	}, nil
}

func (s *annotationService) Update(ctx context.Context, actor models.Actor, id int64, update models.AnnotationUpdate) (*models.Annotation, error) {
	entry := auditEntry{actor: &actor, action: models.ActionUpdateAnnotation, entityType: models.EntityTypeAnnotation, entityID: int64Ptr(id)}
	a, err := s.update(ctx, actor, id, update)
	entry.err = err
	if err == nil {
		entry.details = map[string]interface{}{"annotation_type": a.AnnotationType, "intent": a.Intent()}
	}
	s.audit.record(ctx, entry)
	return a, err
}

func (s *annotationService) update(ctx context.Context, actor models.Actor, id int64, update models.AnnotationUpdate) (*models.Annotation, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err)
	}
	if err := checkOwnership(actor, a, "edit"); err != nil {
		return nil, err
	}
	if !a.Status.Editable() {
		return nil, fmt.Errorf("%w: annotation %d is %s and can no longer be edited", ErrInvalidTransition, a.ID, a.Status)
	}

	draft := update.Apply(a)
	draft.Normalize()
	if err := validateDraft(&draft); err != nil {
		return nil, err
	}

	a.CorrectedIntent = draft.CorrectedIntent
	a.CorrectedEntities = models.ToEntities(draft.CorrectedEntities)
	a.AnnotationType = draft.AnnotationType
	a.Notes = draft.Notes
	a.Status = models.StatusPending
	a.ReviewedBy = nil
	a.ReviewedAt = nil
	a.RejectionReason = nil
	a.UpdatedAt = s.now()

	if err := s.repo.UpdateIfStatus(ctx, a, models.StatusPending, models.StatusRejected); err != nil {
		return nil, translateRepoError(err)
	}
	return a, nil
}

func (s *annotationService) Delete(ctx context.Context, actor models.Actor, id int64) error {
	entry := auditEntry{actor: &actor, action: models.ActionDeleteAnnotation, entityType: models.EntityTypeAnnotation, entityID: int64Ptr(id)}
	entry.err = s.delete(ctx, actor, id)
	s.audit.record(ctx, entry)
	return entry.err
}

func (s *annotationService) delete(ctx context.Context, actor models.Actor, id int64) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return translateRepoError(err)
	}
	if err := checkOwnership(actor, a, "delete"); err != nil {
		return err
	}
	if a.Status != models.StatusPending {
		return fmt.Errorf("%w: only pending annotations can be deleted (annotation %d is %s)", ErrInvalidTransition, a.ID, a.Status)
	}
	return translateRepoError(s.repo.DeleteIfStatus(ctx, id, models.StatusPending))
}

func checkOwnership(actor models.Actor, a *models.Annotation, verb string) error {
	if a.AnnotatedBy == actor.ID || actor.Role.AtLeast(models.RoleAdmin) {
		return nil
	}
	return fmt.Errorf("%w: only the creator or an admin may %s annotation %d", ErrForbidden, verb, a.ID)
}

func (s *annotationService) Review(ctx context.Context, actor models.Actor, id int64, decision models.ReviewDecision) (*models.Annotation, error) {
	action := models.ActionApproveAnnotation
	if !decision.Approved {
		action = models.ActionRejectAnnotation
	}
	entry := auditEntry{actor: &actor, action: action, entityType: models.EntityTypeAnnotation, entityID: int64Ptr(id)}

	a, err := s.review(ctx, actor, id, decision)
	entry.err = err
	if err == nil && a.RejectionReason != nil {
		entry.details = map[string]interface{}{"rejection_reason": *a.RejectionReason}
	}
	s.audit.record(ctx, entry)
	if err != nil {
		return nil, err
	}

	if err := s.notifier.AnnotationReviewed(ctx, a, actor.Username); err != nil {
		s.logger.Warn("Failed to notify reviewers", zap.Int64("annotation_id", a.ID), zap.Error(err))
	}
	return a, nil
}

func (s *annotationService) review(ctx context.Context, actor models.Actor, id int64, decision models.ReviewDecision) (*models.Annotation, error) {
	if !actor.Role.AtLeast(models.RoleQALead) {
		return nil, fmt.Errorf("%w: reviewing annotations requires role %s", ErrForbidden, models.RoleQALead)
	}
	var reason string
	if decision.RejectionReason != nil {
		reason = strings.TrimSpace(*decision.RejectionReason)
	}
	if !decision.Approved && reason == "" {
		return nil, newValidationError("rejection_reason is required when rejecting an annotation")
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err)
	}
	if a.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: annotation %d is %s, only pending annotations can be reviewed", ErrInvalidTransition, a.ID, a.Status)
	}

	now := s.now()
	a.ReviewedBy = int64Ptr(actor.ID)
	a.ReviewedAt = &now
	a.UpdatedAt = now
	if decision.Notes != nil {
		a.Notes = decision.Notes
	}
	if decision.Approved {
		a.Status = models.StatusApproved
		a.RejectionReason = nil
	} else {
		a.Status = models.StatusRejected
		a.RejectionReason = &reason
	}

	if err := s.repo.UpdateIfStatus(ctx, a, models.StatusPending); err != nil {
		return nil, translateRepoError(err)
	}
	return a, nil
}

func (s *annotationService) MarkTrained(ctx context.Context, ids []int64, jobID int64) ([]int64, error) {
	if jobID <= 0 {
		return nil, newValidationError("training job id must be positive")
	}
	changed, err := s.repo.MarkTrained(ctx, ids, jobID, s.now())
	s.recordJob(ctx, models.ActionMarkTrained, jobID, changed, err)
	if err != nil {
		return nil, fmt.Errorf("failed to mark annotations trained: %w", err)
	}
	return changed, nil
}

func (s *annotationService) MarkDeployed(ctx context.Context, jobID int64) ([]int64, error) {
	if jobID <= 0 {
		return nil, newValidationError("training job id must be positive")
	}
	changed, err := s.repo.MarkDeployed(ctx, jobID, s.now())
	s.recordJob(ctx, models.ActionMarkDeployed, jobID, changed, err)
	if err != nil {
		return nil, fmt.Errorf("failed to mark annotations deployed: %w", err)
	}
	return changed, nil
}

func (s *annotationService) recordJob(ctx context.Context, action string, jobID int64, ids []int64, err error) {
	s.audit.record(ctx, auditEntry{
		actor:      &systemActor,
		action:     action,
		entityType: models.EntityTypeTrainingJob,
		entityID:   int64Ptr(jobID),
		details:    map[string]interface{}{"annotation_ids": ids, "count": len(ids)},
		err:        err,
	})
}

func (s *annotationService) Stats(ctx context.Context) (*models.AnnotationStats, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count annotations: %w", err)
	}
	stats := &models.AnnotationStats{
		Pending:  counts[models.StatusPending],
		Approved: counts[models.StatusApproved],
		Rejected: counts[models.StatusRejected],
		Trained:  counts[models.StatusTrained],
		Deployed: counts[models.StatusDeployed],
	}
	for _, n := range counts {
		stats.Total += n
	}
	if reviewed := stats.Approved + stats.Rejected; reviewed > 0 {
		stats.ApprovalRate = math.Round(float64(stats.Approved)/float64(reviewed)*100*100) / 100
	}
	return stats, nil
}

func (s *annotationService) History(ctx context.Context, id int64) ([]models.ActivityLog, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, translateRepoError(err)
	}
	logs, err := s.activity.ListForEntity(ctx, models.EntityTypeAnnotation, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load annotation history: %w", err)
	}
	return logs, nil
}

func translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	var conflict *repository.StatusConflictError
	if errors.As(err, &conflict) {
		return fmt.Errorf("%w: annotation %d is now %s", ErrInvalidTransition, conflict.ID, conflict.Current)
	}
	return err
}

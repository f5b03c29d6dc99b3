package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"training-platform/internal/models"
)

// StatusConflictError reports that a conditional write found the annotation in another status.
type StatusConflictError struct {
	ID      int64
	Current models.AnnotationStatus
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("annotation %d is %s", e.ID, e.Current)
}

// AnnotationRepository defines the interface for annotation storage.
type AnnotationRepository interface {
	Create(ctx context.Context, a *models.Annotation) error
	GetByID(ctx context.Context, id int64) (*models.Annotation, error)
	List(ctx context.Context, filter models.AnnotationFilter) ([]models.Annotation, int, error)
	// UpdateIfStatus writes the mutable columns of a only while the stored
	// status is one of expected, then reloads a from the database.
	UpdateIfStatus(ctx context.Context, a *models.Annotation, expected ...models.AnnotationStatus) error
	DeleteIfStatus(ctx context.Context, id int64, expected ...models.AnnotationStatus) error
	ListApproved(ctx context.Context, filter models.ExportFilter) ([]models.Annotation, error)
	CountByStatus(ctx context.Context) (map[models.AnnotationStatus]int, error)
	MarkTrained(ctx context.Context, ids []int64, jobID int64, at time.Time) ([]int64, error)
	MarkDeployed(ctx context.Context, jobID int64, at time.Time) ([]int64, error)
}

type annotationRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewAnnotationRepository creates a new annotation repository.
func NewAnnotationRepository(db *sqlx.DB, logger *zap.Logger) AnnotationRepository {
	return &annotationRepository{
		db:     db,
		logger: logger,
	}
}

const annotationColumns = `id, conversation_id, message_text, message_timestamp, original_intent,
	corrected_intent, original_confidence, original_entities, corrected_entities, annotation_type,
	status, notes, rejection_reason, annotated_by, annotated_at, reviewed_by, reviewed_at,
	training_job_id, updated_at`

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func statusArgs(statuses []models.AnnotationStatus) []interface{} {
	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	return args
}

func (r *annotationRepository) Create(ctx context.Context, a *models.Annotation) error {
	query := r.db.Rebind(`
		INSERT INTO annotations (
			conversation_id, message_text, message_timestamp, original_intent, corrected_intent,
			original_confidence, original_entities, corrected_entities, annotation_type, status,
			notes, annotated_by, annotated_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	err := r.db.QueryRowxContext(ctx, query,
		a.ConversationID,
		a.MessageText,
		a.MessageTimestamp,
		a.OriginalIntent,
		a.CorrectedIntent,
		a.OriginalConfidence,
		a.OriginalEntities,
		a.CorrectedEntities,
		string(a.AnnotationType),
		string(a.Status),
		a.Notes,
		a.AnnotatedBy,
		a.AnnotatedAt,
		a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		r.logger.Error("Failed to create annotation", zap.String("conversation_id", a.ConversationID), zap.Error(err))
		return err
	}
	return nil
}

func (r *annotationRepository) GetByID(ctx context.Context, id int64) (*models.Annotation, error) {
	return getAnnotation(ctx, r.db, id)
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

func getAnnotation(ctx context.Context, q queryer, id int64) (*models.Annotation, error) {
	var a models.Annotation
	query := q.Rebind(`SELECT ` + annotationColumns + ` FROM annotations WHERE id = ?`)
	if err := sqlx.GetContext(ctx, q, &a, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *annotationRepository) List(ctx context.Context, filter models.AnnotationFilter) ([]models.Annotation, int, error) {
	filter.Normalize()

	var conds []string
	var args []interface{}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ConversationID != "" {
		conds = append(conds, "conversation_id = ?")
		args = append(args, filter.ConversationID)
	}
	if filter.Intent != "" {
		conds = append(conds, "corrected_intent = ?")
		args = append(args, filter.Intent)
	}
	if filter.AnnotatedBy != nil {
		conds = append(conds, "annotated_by = ?")
		args = append(args, *filter.AnnotatedBy)
	}
	if filter.ReviewedBy != nil {
		conds = append(conds, "reviewed_by = ?")
		args = append(args, *filter.ReviewedBy)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM annotations`+where), args...); err != nil {
		r.logger.Error("Failed to count annotations", zap.Error(err))
		return nil, 0, err
	}

	query := r.db.Rebind(`SELECT ` + annotationColumns + ` FROM annotations` + where +
		` ORDER BY annotated_at DESC, id DESC LIMIT ? OFFSET ?`)
	items := []models.Annotation{}
	if err := r.db.SelectContext(ctx, &items, query, append(args, filter.PageSize, filter.Offset())...); err != nil {
		r.logger.Error("Failed to list annotations", zap.Error(err))
		return nil, 0, err
	}
	return items, total, nil
}

func (r *annotationRepository) UpdateIfStatus(ctx context.Context, a *models.Annotation, expected ...models.AnnotationStatus) error {
	if len(expected) == 0 {
		return fmt.Errorf("no expected status given")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := tx.Rebind(`
		UPDATE annotations
		SET corrected_intent = ?, corrected_entities = ?, annotation_type = ?, status = ?,
			notes = ?, rejection_reason = ?, reviewed_by = ?, reviewed_at = ?,
			training_job_id = ?, updated_at = ?
		WHERE id = ? AND status IN (` + placeholders(len(expected)) + `)
	`)
	args := []interface{}{
		a.CorrectedIntent,
		a.CorrectedEntities,
		string(a.AnnotationType),
		string(a.Status),
		a.Notes,
		a.RejectionReason,
		a.ReviewedBy,
		a.ReviewedAt,
		a.TrainingJobID,
		a.UpdatedAt,
		a.ID,
	}
	args = append(args, statusArgs(expected)...)

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update annotation", zap.Int64("annotation_id", a.ID), zap.Error(err))
		return err
	}
	if err := conflictIfUnchanged(ctx, tx, result, a.ID); err != nil {
		return err
	}

	stored, err := getAnnotation(ctx, tx, a.ID)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	*a = *stored
	return nil
}

func (r *annotationRepository) DeleteIfStatus(ctx context.Context, id int64, expected ...models.AnnotationStatus) error {
	if len(expected) == 0 {
		return fmt.Errorf("no expected status given")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := tx.Rebind(`DELETE FROM annotations WHERE id = ? AND status IN (` + placeholders(len(expected)) + `)`)
	result, err := tx.ExecContext(ctx, query, append([]interface{}{id}, statusArgs(expected)...)...)
	if err != nil {
		r.logger.Error("Failed to delete annotation", zap.Int64("annotation_id", id), zap.Error(err))
		return err
	}
	if err := conflictIfUnchanged(ctx, tx, result, id); err != nil {
		return err
	}
	return tx.Commit()
}

// conflictIfUnchanged tells a missing row apart from a row in the wrong status
// when a conditional write touched nothing.
func conflictIfUnchanged(ctx context.Context, tx *sqlx.Tx, result sql.Result, id int64) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	var current string
	err = tx.GetContext(ctx, &current, tx.Rebind(`SELECT status FROM annotations WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return &StatusConflictError{ID: id, Current: models.AnnotationStatus(current)}
}

func (r *annotationRepository) ListApproved(ctx context.Context, filter models.ExportFilter) ([]models.Annotation, error) {
	conds := []string{"status = ?"}
	args := []interface{}{string(models.StatusApproved)}
	if filter.From != nil {
		conds = append(conds, "reviewed_at >= ?")
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		conds = append(conds, "reviewed_at < ?")
		args = append(args, filter.To.UTC())
	}
	if filter.Intent != "" {
		conds = append(conds, "corrected_intent = ?")
		args = append(args, filter.Intent)
	}

	query := r.db.Rebind(`SELECT ` + annotationColumns + ` FROM annotations WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY corrected_intent, reviewed_at, id`)

	items := []models.Annotation{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.Error("Failed to get approved annotations", zap.Error(err))
		return nil, err
	}
	return items, nil
}

func (r *annotationRepository) CountByStatus(ctx context.Context) (map[models.AnnotationStatus]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM annotations GROUP BY status`); err != nil {
		r.logger.Error("Failed to count annotations by status", zap.Error(err))
		return nil, err
	}

	counts := make(map[models.AnnotationStatus]int, len(rows))
	for _, row := range rows {
		counts[models.AnnotationStatus(row.Status)] = row.Count
	}
	return counts, nil
}

// MarkTrained moves approved annotations to trained and links them to jobID.
// With no ids every approved annotation is marked. Returns the ids that changed.
func (r *annotationRepository) MarkTrained(ctx context.Context, ids []int64, jobID int64, at time.Time) ([]int64, error) {
	conds := "status = ?"
	args := []interface{}{string(models.StatusApproved)}
	if len(ids) > 0 {
		conds += " AND id IN (" + placeholders(len(ids)) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}
	return r.bulkTransition(ctx, conds, args, models.StatusTrained, jobID, at)
}

// MarkDeployed moves the trained annotations of jobID to deployed.
func (r *annotationRepository) MarkDeployed(ctx context.Context, jobID int64, at time.Time) ([]int64, error) {
	return r.bulkTransition(ctx, "status = ? AND training_job_id = ?",
		[]interface{}{string(models.StatusTrained), jobID}, models.StatusDeployed, jobID, at)
}

func (r *annotationRepository) bulkTransition(ctx context.Context, conds string, args []interface{}, to models.AnnotationStatus, jobID int64, at time.Time) ([]int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ids := []int64{}
	if err := tx.SelectContext(ctx, &ids, tx.Rebind(`SELECT id FROM annotations WHERE `+conds+` ORDER BY id`), args...); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return ids, tx.Commit()
	}

	updateArgs := append([]interface{}{string(to), jobID, at}, args...)
	query := tx.Rebind(`UPDATE annotations SET status = ?, training_job_id = ?, updated_at = ? WHERE ` + conds)
	if _, err := tx.ExecContext(ctx, query, updateArgs...); err != nil {
		r.logger.Error("Failed to transition annotations", zap.String("to", string(to)), zap.Int64("job_id", jobID), zap.Error(err))
		return nil, err
	}
	return ids, tx.Commit()
}

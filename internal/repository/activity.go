package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"training-platform/internal/models"
)

// ActivityRepository stores the audit trail.
type ActivityRepository interface {
	Log(ctx context.Context, entry *models.ActivityLog) error
	ListForEntity(ctx context.Context, entityType string, entityID int64) ([]models.ActivityLog, error)
}

type activityRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewActivityRepository(db *sqlx.DB, logger *zap.Logger) ActivityRepository {
	return &activityRepository{db: db, logger: logger}
}

func (r *activityRepository) Log(ctx context.Context, entry *models.ActivityLog) error {
	query := r.db.Rebind(`
		INSERT INTO activity_logs (user_id, username, action, entity_type, entity_id, details, ip_address, success, error_message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	err := r.db.QueryRowxContext(ctx, query,
		entry.UserID,
		entry.Username,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		entry.Details,
		entry.IPAddress,
		entry.Success,
		entry.ErrorMessage,
		entry.Timestamp,
	).Scan(&entry.ID)
	if err != nil {
		r.logger.Error("Failed to write activity log", zap.String("action", entry.Action), zap.Error(err))
		return err
	}
	return nil
}

func (r *activityRepository) ListForEntity(ctx context.Context, entityType string, entityID int64) ([]models.ActivityLog, error) {
	query := r.db.Rebind(`
		SELECT id, user_id, username, action, entity_type, entity_id, details, ip_address, success, error_message, timestamp
		FROM activity_logs
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY timestamp, id
	`)
	logs := []models.ActivityLog{}
	if err := r.db.SelectContext(ctx, &logs, query, entityType, entityID); err != nil {
		r.logger.Error("Failed to list activity logs", zap.String("entity_type", entityType), zap.Int64("entity_id", entityID), zap.Error(err))
		return nil, err
	}
	return logs, nil
}

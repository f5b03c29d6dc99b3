package models

import "time"

// Audit actions recorded in activity_logs.
const (
	ActionLogin             = "login"
	ActionCreateAnnotation  = "create_annotation"
	ActionUpdateAnnotation  = "update_annotation"
	ActionDeleteAnnotation  = "delete_annotation"
	ActionApproveAnnotation = "approve_annotation"
	ActionRejectAnnotation  = "reject_annotation"
	ActionMarkTrained       = "mark_trained"
	ActionMarkDeployed      = "mark_deployed"
	ActionCreateUser        = "create_user"
)

const (
	EntityTypeAnnotation  = "annotation"
	EntityTypeUser        = "user"
	EntityTypeTrainingJob = "training_job"
)

// ActivityLog is one row of the audit trail.
type ActivityLog struct {
	ID           int64     `db:"id" json:"id"`
	UserID       *int64    `db:"user_id" json:"user_id,omitempty"`
	Username     string    `db:"username" json:"username"`
	Action       string    `db:"action" json:"action"`
	EntityType   string    `db:"entity_type" json:"entity_type"`
	EntityID     *int64    `db:"entity_id" json:"entity_id,omitempty"`
	Details      *string   `db:"details" json:"details,omitempty"`
	IPAddress    *string   `db:"ip_address" json:"ip_address,omitempty"`
	Success      bool      `db:"success" json:"success"`
	ErrorMessage *string   `db:"error_message" json:"error_message,omitempty"`
	Timestamp    time.Time `db:"timestamp" json:"timestamp"`
}

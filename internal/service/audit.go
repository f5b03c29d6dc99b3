package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"training-platform/internal/models"
	"training-platform/internal/repository"
)

type ipKey struct{}

// WithClientIP attaches the caller address so audit entries can record it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey{}, ip)
}

func clientIP(ctx context.Context) *string {
	ip, ok := ctx.Value(ipKey{}).(string)
	if !ok || ip == "" {
		return nil
	}
	return &ip
}

// auditor writes the activity trail. A failed audit write is logged and never
// fails the operation being audited.
type auditor struct {
	repo   repository.ActivityRepository
	logger *zap.Logger
	now    func() time.Time
}

type auditEntry struct {
	actor      *models.Actor
	username   string
	action     string
	entityType string
	entityID   *int64
	details    map[string]interface{}
	err        error
}

func (a *auditor) record(ctx context.Context, e auditEntry) {
	entry := &models.ActivityLog{
		Username:   e.username,
		Action:     e.action,
		EntityType: e.entityType,
		EntityID:   e.entityID,
		IPAddress:  clientIP(ctx),
		Success:    e.err == nil,
		Timestamp:  a.now(),
	}
	if e.actor != nil {
		entry.Username = e.actor.Username
		if e.actor.ID > 0 {
			entry.UserID = int64Ptr(e.actor.ID)
		}
	}
	if len(e.details) > 0 {
		if b, err := json.Marshal(e.details); err == nil {
			details := string(b)
			entry.Details = &details
		}
	}
	if e.err != nil {
		msg := e.err.Error()
		entry.ErrorMessage = &msg
	}

	fields := []zap.Field{
		zap.String("action", entry.Action),
		zap.String("username", entry.Username),
		zap.String("entity_type", entry.EntityType),
	}
	if entry.EntityID != nil {
		fields = append(fields, zap.Int64("entity_id", *entry.EntityID))
	}
	if e.err != nil {
		a.logger.Warn("Operation refused or failed", append(fields, zap.Error(e.err))...)
	} else {
		a.logger.Info("Operation succeeded", fields...)
	}

	// The trail must survive a cancelled request.
	if err := a.repo.Log(context.WithoutCancel(ctx), entry); err != nil {
		a.logger.Error("Failed to write activity log", append(fields, zap.Error(err))...)
	}
}

func int64Ptr(v int64) *int64 { return &v }

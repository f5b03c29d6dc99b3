package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"training-platform/internal/models"
	"training-platform/internal/service"
)

// AnnotationHandler exposes the annotation lifecycle.
type AnnotationHandler struct {
	annotations service.AnnotationService
	logger      *zap.Logger
}

func NewAnnotationHandler(annotations service.AnnotationService, logger *zap.Logger) *AnnotationHandler {
	return &AnnotationHandler{annotations: annotations, logger: logger}
}

// Create stores a new pending annotation.
// POST /api/v1/annotations
func (h *AnnotationHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var draft models.AnnotationDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		badRequest(c, "Invalid request body", err.Error())
		return
	}

	a, err := h.annotations.Create(c.Request.Context(), actor, draft)
	if err != nil {
		respondError(c, h.logger, err, "Failed to create annotation")
		return
	}
	c.JSON(http.StatusCreated, a)
}

// List returns a page of annotations.
// GET /api/v1/annotations?status=&conversation_id=&intent=&annotated_by=&reviewed_by=&page=&page_size=
func (h *AnnotationHandler) List(c *gin.Context) {
	filter := models.AnnotationFilter{
		Status:         models.AnnotationStatus(strings.TrimSpace(c.Query("status"))),
		ConversationID: strings.TrimSpace(c.Query("conversation_id")),
		Intent:         strings.TrimSpace(c.Query("intent")),
	}

	var problems []string
	intQuery := func(name string) int {
		raw := c.Query(name)
		if raw == "" {
			return 0
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			problems = append(problems, name+" must be a positive integer")
			return 0
		}
		return v
	}
	idQuery := func(names ...string) *int64 {
		for _, name := range names {
			if raw := c.Query(name); raw != "" {
				v, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					problems = append(problems, name+" must be an integer")
					return nil
				}
				return &v
			}
		}
		return nil
	}
	filter.Page = intQuery("page")
	filter.PageSize = intQuery("page_size")
	filter.AnnotatedBy = idQuery("annotated_by")
	filter.ReviewedBy = idQuery("reviewed_by", "approved_by")
	if filter.PageSize > models.MaxPageSize {
		problems = append(problems, "page_size must not exceed "+strconv.Itoa(models.MaxPageSize))
	}
	if len(problems) > 0 {
		badRequest(c, "Invalid query parameters", problems...)
		return
	}

	page, err := h.annotations.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch annotations")
		return
	}
	c.JSON(http.StatusOK, page)
}

// Stats returns counts per status.
// GET /api/v1/annotations/stats
func (h *AnnotationHandler) Stats(c *gin.Context) {
	stats, err := h.annotations.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch annotation statistics")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Get returns one annotation.
// GET /api/v1/annotations/:id
func (h *AnnotationHandler) Get(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	a, err := h.annotations.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch annotation")
		return
	}
	c.JSON(http.StatusOK, a)
}

// Update edits a pending or rejected annotation and sends it back to review.
// PUT /api/v1/annotations/:id
func (h *AnnotationHandler) Update(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	var update models.AnnotationUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, "Invalid request body", err.Error())
		return
	}

	a, err := h.annotations.Update(c.Request.Context(), actor, id, update)
	if err != nil {
		respondError(c, h.logger, err, "Failed to update annotation")
		return
	}
	c.JSON(http.StatusOK, a)
}

// Delete removes a pending annotation.
// DELETE /api/v1/annotations/:id
func (h *AnnotationHandler) Delete(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.annotations.Delete(c.Request.Context(), actor, id); err != nil {
		respondError(c, h.logger, err, "Failed to delete annotation")
		return
	}
	c.Status(http.StatusNoContent)
}

// Review approves or rejects a pending annotation.
// POST /api/v1/annotations/:id/approve
func (h *AnnotationHandler) Review(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	var decision models.ReviewDecision
	if err := c.ShouldBindJSON(&decision); err != nil {
		badRequest(c, "Invalid request body", err.Error())
		return
	}

	a, err := h.annotations.Review(c.Request.Context(), actor, id, decision)
	if err != nil {
		respondError(c, h.logger, err, "Failed to review annotation")
		return
	}
	c.JSON(http.StatusOK, a)
}

// History lists the audit trail of an annotation.
// GET /api/v1/annotations/:id/history
func (h *AnnotationHandler) History(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	logs, err := h.annotations.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch annotation history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": logs, "total": len(logs)})
}

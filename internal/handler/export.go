package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"training-platform/internal/models"
	"training-platform/internal/service"
)

const dateLayout = "2006-01-02"

// ExportHandler serves NLU exports and the reference vocabulary.
type ExportHandler struct {
	export service.ExportService
	logger *zap.Logger
}

func NewExportHandler(export service.ExportService, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{export: export, logger: logger}
}

// exportFilter reads from_date, to_date and intent_filter. Dates are UTC days
// and to_date covers the whole day.
func exportFilter(c *gin.Context) (models.ExportFilter, bool) {
	var filter models.ExportFilter
	if raw := strings.TrimSpace(c.Query("from_date")); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			badRequest(c, "Invalid date format. Use YYYY-MM-DD", "from_date: "+raw)
			return filter, false
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(c.Query("to_date")); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			badRequest(c, "Invalid date format. Use YYYY-MM-DD", "to_date: "+raw)
			return filter, false
		}
		to = to.AddDate(0, 0, 1)
		filter.To = &to
	}
	filter.Intent = strings.TrimSpace(c.Query("intent_filter"))
	if filter.Intent == "" {
		filter.Intent = strings.TrimSpace(c.Query("intent"))
	}
	return filter, true
}

// Preview renders the NLU document with stats and diagnostics.
// GET /api/v1/export/nlu/preview
func (h *ExportHandler) Preview(c *gin.Context) {
	filter, ok := exportFilter(c)
	if !ok {
		return
	}
	result, err := h.export.Preview(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err, "Error generating preview")
		return
	}
	c.JSON(http.StatusOK, result)
}

// Download returns the NLU document as a file attachment.
// GET /api/v1/export/nlu/download
func (h *ExportHandler) Download(c *gin.Context) {
	filter, ok := exportFilter(c)
	if !ok {
		return
	}
	file, err := h.export.Download(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err, "Error generating export")
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+file.Filename)
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

// Intents lists the intent labels known to the live assistant.
// GET /api/v1/export/intents
func (h *ExportHandler) Intents(c *gin.Context) {
	intents, err := h.export.IntentVocabulary(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Error retrieving intents")
		return
	}
	c.JSON(http.StatusOK, gin.H{"intents": intents, "total": len(intents), "source": "database"})
}

// Entities lists the entity labels known to the live assistant.
// GET /api/v1/export/entities
func (h *ExportHandler) Entities(c *gin.Context) {
	entities, err := h.export.EntityVocabulary(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Error retrieving entities")
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": entities, "total": len(entities), "source": "database"})
}

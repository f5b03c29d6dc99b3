package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type AnnotationStatus string

const (
	StatusPending  AnnotationStatus = "pending"
	StatusApproved AnnotationStatus = "approved"
	StatusRejected AnnotationStatus = "rejected"
	StatusTrained  AnnotationStatus = "trained"
	StatusDeployed AnnotationStatus = "deployed"
)

// Valid reports whether s is a known lifecycle status.
func (s AnnotationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusTrained, StatusDeployed:
		return true
	}
	return false
}

// Editable reports whether an annotation in status s may be edited by its creator.
func (s AnnotationStatus) Editable() bool {
	return s == StatusPending || s == StatusRejected
}

// AnnotationType decides which correction fields of an annotation are authoritative.
type AnnotationType string

const (
	TypeIntent AnnotationType = "intent"
	TypeEntity AnnotationType = "entity"
	TypeBoth   AnnotationType = "both"
)

func (t AnnotationType) Valid() bool {
	return t == TypeIntent || t == TypeEntity || t == TypeBoth
}

// CorrectsIntent reports whether the corrected intent is authoritative.
func (t AnnotationType) CorrectsIntent() bool {
	return t == TypeIntent || t == TypeBoth
}

// CorrectsEntities reports whether the corrected entity list is authoritative.
func (t AnnotationType) CorrectsEntities() bool {
	return t == TypeEntity || t == TypeBoth
}

// Entity is a labeled span of a message. Start and End are half-open
// offsets counted in runes of the message text.
type Entity struct {
	Label string `json:"entity"`
	Value string `json:"value"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Entities is stored as a JSON array column.
type Entities []Entity

// Value implements driver.Valuer.
func (e Entities) Value() (driver.Value, error) {
	if e == nil {
		e = Entities{}
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner. NULL scans to an empty list.
func (e *Entities) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*e = Entities{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("entities: unsupported column type %T", src)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		*e = Entities{}
		return nil
	}
	var out Entities
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("entities: %w", err)
	}
	if out == nil {
		out = Entities{}
	}
	*e = out
	return nil
}

// EntityInput is the client-supplied form of an entity, where offsets may be missing.
type EntityInput struct {
	Label string `json:"entity"`
	Value string `json:"value"`
	Start *int   `json:"start"`
	End   *int   `json:"end"`
}

// ToEntities converts inputs that carry both offsets. Inputs missing an offset are dropped.
func ToEntities(in []EntityInput) Entities {
	out := make(Entities, 0, len(in))
	for _, e := range in {
		if e.Start == nil || e.End == nil {
			continue
		}
		out = append(out, Entity{Label: e.Label, Value: e.Value, Start: *e.Start, End: *e.End})
	}
	return out
}

// Annotation represents a row of the 'annotations' table.
type Annotation struct {
	ID                 int64            `db:"id" json:"id"`
	ConversationID     string           `db:"conversation_id" json:"conversation_id"`
	MessageText        string           `db:"message_text" json:"message_text"`
	MessageTimestamp   *time.Time       `db:"message_timestamp" json:"message_timestamp,omitempty"`
	OriginalIntent     *string          `db:"original_intent" json:"original_intent,omitempty"`
	CorrectedIntent    *string          `db:"corrected_intent" json:"corrected_intent,omitempty"`
	OriginalConfidence *float64         `db:"original_confidence" json:"original_confidence,omitempty"`
	OriginalEntities   Entities         `db:"original_entities" json:"original_entities"`
	CorrectedEntities  Entities         `db:"corrected_entities" json:"corrected_entities"`
	AnnotationType     AnnotationType   `db:"annotation_type" json:"annotation_type"`
	Status             AnnotationStatus `db:"status" json:"status"`
	Notes              *string          `db:"notes" json:"notes,omitempty"`
	RejectionReason    *string          `db:"rejection_reason" json:"rejection_reason,omitempty"`
	AnnotatedBy        int64            `db:"annotated_by" json:"annotated_by"`
	AnnotatedAt        time.Time        `db:"annotated_at" json:"annotated_at"`
	ReviewedBy         *int64           `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt         *time.Time       `db:"reviewed_at" json:"reviewed_at,omitempty"`
	TrainingJobID      *int64           `db:"training_job_id" json:"training_job_id,omitempty"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// Intent returns the corrected intent or an empty string.
func (a *Annotation) Intent() string {
	if a.CorrectedIntent == nil {
		return ""
	}
	return *a.CorrectedIntent
}

// ExportEntities returns the entities that contribute to training data.
// Intent-only annotations contribute none.
func (a *Annotation) ExportEntities() Entities {
	if !a.AnnotationType.CorrectsEntities() {
		return Entities{}
	}
	return a.CorrectedEntities
}

// lineBreaks are the characters YAML scanners end a line on.
const lineBreaks = "\r\n\u0085\u2028\u2029"

// HasLineBreak reports whether s would span more than one line of a training document.
func HasLineBreak(s string) bool {
	return strings.ContainsAny(s, lineBreaks)
}

// AnnotationDraft carries the user-editable content of an annotation.
type AnnotationDraft struct {
	ConversationID     string         `json:"conversation_id"`
	MessageText        string         `json:"message_text"`
	MessageTimestamp   *time.Time     `json:"message_timestamp"`
	OriginalIntent     *string        `json:"original_intent"`
	CorrectedIntent    *string        `json:"corrected_intent"`
	OriginalConfidence *float64       `json:"original_confidence"`
	OriginalEntities   Entities       `json:"original_entities"`
	CorrectedEntities  []EntityInput  `json:"corrected_entities"`
	AnnotationType     AnnotationType `json:"annotation_type"`
	Notes              *string        `json:"notes"`
}

// Validate checks the field-level invariants of a draft and returns every
// violation found. Span consistency is checked separately.
func (d *AnnotationDraft) Validate() []string {
	var problems []string
	if strings.TrimSpace(d.ConversationID) == "" {
		problems = append(problems, "conversation_id is required")
	}
	if d.MessageText == "" {
		problems = append(problems, "message_text is required")
	} else if HasLineBreak(d.MessageText) {
		problems = append(problems, "message_text must be a single line")
	}
	if !d.AnnotationType.Valid() {
		problems = append(problems, fmt.Sprintf("annotation_type must be one of intent, entity, both (got %q)", d.AnnotationType))
		return problems
	}
	if d.AnnotationType.CorrectsIntent() && (d.CorrectedIntent == nil || strings.TrimSpace(*d.CorrectedIntent) == "") {
		problems = append(problems, fmt.Sprintf("corrected_intent is required for annotation_type %q", d.AnnotationType))
	}
	if d.AnnotationType.CorrectsEntities() && d.CorrectedEntities == nil {
		problems = append(problems, fmt.Sprintf("corrected_entities is required for annotation_type %q", d.AnnotationType))
	}
	if d.OriginalConfidence != nil && (*d.OriginalConfidence < 0 || *d.OriginalConfidence > 1) {
		problems = append(problems, "original_confidence must be between 0 and 1")
	}
	return problems
}

// Normalize drops fields that the annotation type makes non-authoritative.
func (d *AnnotationDraft) Normalize() {
	if d.AnnotationType == TypeIntent {
		d.CorrectedEntities = []EntityInput{}
	}
	if d.CorrectedIntent != nil {
		trimmed := strings.TrimSpace(*d.CorrectedIntent)
		if trimmed == "" {
			d.CorrectedIntent = nil
		} else {
			d.CorrectedIntent = &trimmed
		}
	}
	if d.OriginalEntities == nil {
		d.OriginalEntities = Entities{}
	}
}

// AnnotationUpdate holds the fields a creator may change. Nil fields keep their value.
type AnnotationUpdate struct {
	CorrectedIntent   *string         `json:"corrected_intent"`
	CorrectedEntities *[]EntityInput  `json:"corrected_entities"`
	AnnotationType    *AnnotationType `json:"annotation_type"`
	Notes             *string         `json:"notes"`
}

// Apply merges the update onto the current annotation and returns the resulting draft.
func (u *AnnotationUpdate) Apply(a *Annotation) AnnotationDraft {
	d := AnnotationDraft{
		ConversationID:     a.ConversationID,
		MessageText:        a.MessageText,
		MessageTimestamp:   a.MessageTimestamp,
		OriginalIntent:     a.OriginalIntent,
		CorrectedIntent:    a.CorrectedIntent,
		OriginalConfidence: a.OriginalConfidence,
		OriginalEntities:   a.OriginalEntities,
		AnnotationType:     a.AnnotationType,
		Notes:              a.Notes,
	}
	d.CorrectedEntities = make([]EntityInput, 0, len(a.CorrectedEntities))
	for _, e := range a.CorrectedEntities {
		start, end := e.Start, e.End
		d.CorrectedEntities = append(d.CorrectedEntities, EntityInput{Label: e.Label, Value: e.Value, Start: &start, End: &end})
	}
	if u.CorrectedIntent != nil {
		d.CorrectedIntent = u.CorrectedIntent
	}
	if u.CorrectedEntities != nil {
		d.CorrectedEntities = *u.CorrectedEntities
	}
	if u.AnnotationType != nil {
		d.AnnotationType = *u.AnnotationType
	}
	if u.Notes != nil {
		d.Notes = u.Notes
	}
	return d
}

// ReviewDecision is a reviewer's verdict on a pending annotation.
type ReviewDecision struct {
	Approved        bool    `json:"approved"`
	RejectionReason *string `json:"rejection_reason"`
	Notes           *string `json:"notes"`
}

// AnnotationFilter narrows annotation listings.
type AnnotationFilter struct {
	Status         AnnotationStatus
	ConversationID string
	Intent         string
	AnnotatedBy    *int64
	ReviewedBy     *int64
	Page           int
	PageSize       int
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Normalize clamps paging parameters into their allowed range.
func (f *AnnotationFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
}

// Offset returns the number of rows to skip for the current page.
func (f *AnnotationFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

type AnnotationPage struct {
	Items      []Annotation `json:"items"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	TotalPages int          `json:"total_pages"`
}

type AnnotationStats struct {
	Total        int     `json:"total"`
	Pending      int     `json:"pending"`
	Approved     int     `json:"approved"`
	Rejected     int     `json:"rejected"`
	Trained      int     `json:"trained"`
	Deployed     int     `json:"deployed"`
	ApprovalRate float64 `json:"approval_rate"`
}

// ExportFilter selects approved annotations by approval time and intent.
// From is inclusive, To is exclusive.
type ExportFilter struct {
	From   *time.Time
	To     *time.Time
	Intent string
}

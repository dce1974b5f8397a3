package models

import (
	"strings"
	"time"

	"campuswatch/internal/constants"
)

// ActivityStatus is the incident lifecycle state.
type ActivityStatus string

const (
	StatusUnassigned ActivityStatus = "Unassigned"
	StatusOpen       ActivityStatus = "Open"
	StatusInProgress ActivityStatus = "In Progress"
	StatusResolved   ActivityStatus = "Resolved"
)

// StatusGlyph returns the symbol used in outbound notification bodies.
func (s ActivityStatus) StatusGlyph() string {
	switch s {
	case StatusUnassigned:
		return "○"
	case StatusOpen:
		return "●"
	case StatusInProgress:
		return "◐"
	case StatusResolved:
		return "✓"
	default:
		return "?"
	}
}

// Category is one incident taxonomy entry. Owned by the admin subsystem;
// read-only input to classification.
type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsSystem bool   `json:"is_system"`
}

// ClassificationSource records how a ParsedActivityData was produced.
type ClassificationSource string

const (
	SourceAI       ClassificationSource = "ai"
	SourceFallback ClassificationSource = "fallback"
)

// ParsedActivityData is the classifier output contract. Sanitization
// guarantees all four content fields are present and within limits before
// this crosses into activity creation.
type ParsedActivityData struct {
	CategoryID  string               `json:"category_id"`
	Subcategory string               `json:"subcategory"`
	Location    string               `json:"location"`
	Notes       string               `json:"notes"`
	Source      ClassificationSource `json:"source,omitempty"`
}

// Activity is the persisted incident record.
type Activity struct {
	ID                     string         `json:"id"`
	CategoryID             string         `json:"category_id"`
	Subcategory            string         `json:"subcategory"`
	Location               string         `json:"location"`
	Notes                  string         `json:"notes"`
	Status                 ActivityStatus `json:"status"`
	ReporterPhone          string         `json:"reporter_phone"`
	AssignedToUserID       string         `json:"assigned_to_user_id,omitempty"`
	AssignmentInstructions string         `json:"assignment_instructions,omitempty"`
	ResolutionNotes        string         `json:"resolution_notes,omitempty"`
	NeedsReview            bool           `json:"needs_review"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

// ActivityUpdate is one entry in the append-only update log.
type ActivityUpdate struct {
	ID            string         `json:"id"`
	ActivityID    string         `json:"activity_id"`
	AuthorID      string         `json:"author_id"`
	Notes         string         `json:"notes"`
	StatusContext ActivityStatus `json:"status_context"`
	UpdateType    string         `json:"update_type"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Update types recorded in the activity log.
const (
	UpdateTypeCreated    = "created"
	UpdateTypeAssignment = "assignment"
	UpdateTypeStatus     = "status_change"
	UpdateTypeComment    = "comment"
	UpdateTypeResolution = "resolution"
)

// ReferenceNumber derives the human-facing reference from the category and
// the activity ID suffix, e.g. "MAI-1a2b3c4d".
func (a *Activity) ReferenceNumber() string {
	prefix := "GEN"
	if len(a.CategoryID) >= 3 {
		prefix = strings.ToUpper(a.CategoryID[:3])
	}
	id := strings.ReplaceAll(a.ID, "-", "")
	if len(id) > constants.ReferenceIDLength {
		id = id[:constants.ReferenceIDLength]
	}
	return prefix + "-" + id
}

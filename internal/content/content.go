// Package content implements the content repository from spec.md §3/§4.1:
// CRUD over ContentItem with soft delete and an append-only ContentHistory,
// backed by PostgreSQL through pgx, grounded on the teacher's
// syncservice note/task repositories' transactional upsert pattern.
package content

import (
	"time"

	"github.com/spencerjireh/portfoliobridge/internal/validation"
)

// Type mirrors validation.ContentType; re-exported here so callers of this
// package don't need to import validation just to name a type.
type Type = validation.ContentType

const (
	TypeProject    = validation.TypeProject
	TypeExperience = validation.TypeExperience
	TypeEducation  = validation.TypeEducation
	TypeSkill      = validation.TypeSkill
	TypeAbout      = validation.TypeAbout
	TypeContact    = validation.TypeContact
)

// Status is ContentItem.Status's domain.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// ChangeType is ContentHistory.ChangeType's domain.
type ChangeType string

const (
	ChangeCreated  ChangeType = "created"
	ChangeUpdated  ChangeType = "updated"
	ChangeDeleted  ChangeType = "deleted"
	ChangeRestored ChangeType = "restored"
)

// Item is spec.md §3's ContentItem.
type Item struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Slug      string         `json:"slug"`
	Data      map[string]any `json:"data"`
	Status    Status         `json:"status"`
	Version   int            `json:"version"`
	SortOrder int            `json:"sortOrder"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt *time.Time     `json:"deletedAt"`
}

// History is spec.md §3's ContentHistory: an append-only snapshot row.
type History struct {
	ID            string     `json:"id"`
	ContentID     string     `json:"contentId"`
	Version       int        `json:"version"`
	Data          map[string]any `json:"data"`
	ChangeType    ChangeType `json:"changeType"`
	ChangedBy     *string    `json:"changedBy,omitempty"`
	ChangeSummary *string    `json:"changeSummary,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// CreateInput is the payload accepted by Create.
type CreateInput struct {
	Type      Type
	Slug      string
	Data      map[string]any
	Status    Status // defaults to StatusDraft when empty
	SortOrder int
}

// UpdateInput is the payload accepted by UpdateWithHistory. Nil fields are
// left unchanged; a present field (even the zero value) is applied.
type UpdateInput struct {
	Slug          *string
	Data          map[string]any
	Status        *Status
	SortOrder     *int
	ChangeSummary *string
}

// ListQuery is the coerced, bounded admin listing filter (spec.md §4.1/§4.2).
type ListQuery struct {
	Type           *Type
	Status         *Status
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// Bundle is getBundle()'s partitioned view of published content.
type Bundle struct {
	Projects    []Item `json:"projects"`
	Experiences []Item `json:"experiences"`
	Education   []Item `json:"education"`
	Skills      []Item `json:"skills"`
	About       *Item  `json:"about"`
	Contact     *Item  `json:"contact"`
}

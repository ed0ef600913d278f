package tools

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/spencerjireh/portfoliobridge/internal/apierr"
	"github.com/spencerjireh/portfoliobridge/internal/auth"
	"github.com/spencerjireh/portfoliobridge/internal/content"
	"github.com/spencerjireh/portfoliobridge/internal/jsonutil"
	"github.com/spencerjireh/portfoliobridge/internal/validation"
)

// toFieldAPIErr lifts a validation.FieldErrors into an apierr.Error so
// FromAPIError can route it through the same Kind-based mapping used for
// repository errors.
func toFieldAPIErr(err error) error {
	fe, ok := err.(validation.FieldErrors)
	if !ok {
		return err
	}
	return apierr.NewValidation("validation failed", map[string][]string(fe))
}

// ContentTools wires the six content operations from spec.md §4.7 to a
// content.Repository, returning tool-shaped results rather than raw
// repository errors.
type ContentTools struct {
	repo content.Repository
}

func NewContentTools(repo content.Repository) *ContentTools {
	return &ContentTools{repo: repo}
}

// RegisterAll registers every content tool on reg.
func (t *ContentTools) RegisterAll(reg *Registry) {
	reg.MustRegister(Definition{
		Name:        "list_content",
		Description: "List published content, optionally filtered by type",
		Access:      AccessRead,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"type": map[string]any{"type": "string"},
			},
		},
	}, t.listContent)

	reg.MustRegister(Definition{
		Name:        "get_content",
		Description: "Fetch a single published content item by type and slug",
		Access:      AccessRead,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"type": map[string]any{"type": "string"},
				"slug": map[string]any{"type": "string"},
			},
			"required": []string{"type", "slug"},
		},
	}, t.getContent)

	reg.MustRegister(Definition{
		Name:        "search_content",
		Description: "Search published content by a free-text query",
		Access:      AccessRead,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"type":  map[string]any{"type": "string"},
				"limit": map[string]any{"type": "integer"},
			},
			"required": []string{"query"},
		},
	}, t.searchContent)

	reg.MustRegister(Definition{
		Name:        "create_content",
		Description: "Create a new content item (admin only)",
		Access:      AccessWrite,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"type": map[string]any{"type": "string"},
				"slug": map[string]any{"type": "string"},
				"data": map[string]any{"type": "object"},
			},
			"required": []string{"type", "data"},
		},
	}, t.createContent)

	reg.MustRegister(Definition{
		Name:        "update_content",
		Description: "Update an existing content item (admin only)",
		Access:      AccessWrite,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":     map[string]any{"type": "string"},
				"slug":   map[string]any{"type": "string"},
				"data":   map[string]any{"type": "object"},
				"status": map[string]any{"type": "string"},
			},
			"required": []string{"id"},
		},
	}, t.updateContent)

	reg.MustRegister(Definition{
		Name:        "delete_content",
		Description: "Soft-delete a content item (admin only)",
		Access:      AccessWrite,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{"type": "string"},
			},
			"required": []string{"id"},
		},
	}, t.deleteContent)
}

type listContentArgs struct {
	Type  string `json:"type"`
	Limit int    `json:"limit"`
}

const (
	listContentDefaultLimit = 50
	listContentMaxLimit     = 100

	searchContentDefaultLimit = 10
	searchContentMaxLimit     = 50
)

func (t *ContentTools) listContent(ctx context.Context, raw json.RawMessage) (any, error) {
	var args listContentArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, NewError(ErrCodeInvalidParams, "invalid arguments", nil)
		}
	}

	var typ *content.Type
	if args.Type != "" {
		ct := content.Type(args.Type)
		if !validation.IsKnownType(ct) {
			return nil, NewError(ErrCodeInvalidParams, "unknown content type", nil)
		}
		typ = &ct
	}

	limit := args.Limit
	if limit <= 0 || limit > listContentMaxLimit {
		limit = listContentDefaultLimit
	}

	items, err := t.repo.FindPublished(ctx, typ)
	if err != nil {
		return nil, NewError(ErrCodeInternal, err.Error(), nil)
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

type getContentArgs struct {
	Type string `json:"type"`
	Slug string `json:"slug"`
}

func (t *ContentTools) getContent(ctx context.Context, raw json.RawMessage) (any, error) {
	var args getContentArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, NewError(ErrCodeInvalidParams, "invalid arguments", nil)
	}
	if args.Type == "" || args.Slug == "" {
		return nil, NewError(ErrCodeInvalidParams, "type and slug are required", nil)
	}

	item, err := t.repo.FindBySlug(ctx, content.Type(args.Type), args.Slug)
	if err != nil {
		return nil, NewError(ErrCodeInternal, err.Error(), nil)
	}
	if item == nil || item.Status != content.StatusPublished {
		return nil, NewError(ErrCodeNotFound, "content item not found", nil)
	}
	return item, nil
}

type searchContentArgs struct {
	Query string `json:"query"`
	Type  string `json:"type"`
	Limit int    `json:"limit"`
}

var searchableTopFields = []string{"title", "description", "name", "content", "company", "role"}

// matchesQuery applies spec.md §4.7's search semantics to one item's data:
// a case-insensitive substring match on the union of searchableTopFields,
// on any string element of data.tags, and on any of those fields within
// elements of data.items (list-shaped content types).
func matchesQuery(data map[string]any, needle string) bool {
	for _, f := range searchableTopFields {
		if s, ok := jsonutil.GetString(data, f); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	for _, tag := range jsonutil.GetStringSlice(data, "tags") {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	if items, ok := data["items"].([]any); ok {
		for _, el := range items {
			sub, ok := el.(map[string]any)
			if !ok {
				continue
			}
			for _, f := range searchableTopFields {
				if s, ok := jsonutil.GetString(sub, f); ok && strings.Contains(strings.ToLower(s), needle) {
					return true
				}
			}
		}
	}
	return false
}

func (t *ContentTools) searchContent(ctx context.Context, raw json.RawMessage) (any, error) {
	var args searchContentArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, NewError(ErrCodeInvalidParams, "invalid arguments", nil)
	}
	if strings.TrimSpace(args.Query) == "" {
		return nil, NewError(ErrCodeInvalidParams, "query is required", nil)
	}

	limit := args.Limit
	if limit <= 0 || limit > searchContentMaxLimit {
		limit = searchContentDefaultLimit
	}

	var typ *content.Type
	if args.Type != "" {
		ct := content.Type(args.Type)
		typ = &ct
	}

	items, err := t.repo.FindPublished(ctx, typ)
	if err != nil {
		return nil, NewError(ErrCodeInternal, err.Error(), nil)
	}

	needle := strings.ToLower(args.Query)
	matched := make([]content.Item, 0, limit)
	for _, item := range items {
		if len(matched) >= limit {
			break
		}
		if matchesQuery(item.Data, needle) {
			matched = append(matched, item)
		}
	}
	return matched, nil
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
var dashRuns = regexp.MustCompile(`-{2,}`)

// deriveSlug implements create_content's slug auto-derivation (spec.md
// §4.7): lowercase, non-alphanumerics to hyphens, collapse runs, trim, cap
// at 100 characters.
func deriveSlug(source string) string {
	s := strings.ToLower(source)
	s = nonSlugChars.ReplaceAllString(s, "-")
	s = dashRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 100 {
		s = s[:100]
		s = strings.TrimRight(s, "-")
	}
	return s
}

type createContentArgs struct {
	Type      string         `json:"type"`
	Slug      string         `json:"slug"`
	Data      map[string]any `json:"data"`
	Status    string         `json:"status"`
	SortOrder int            `json:"sortOrder"`
}

func (t *ContentTools) createContent(ctx context.Context, raw json.RawMessage) (any, error) {
	var args createContentArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, NewError(ErrCodeInvalidParams, "invalid arguments", nil)
	}

	typ := content.Type(args.Type)
	if !validation.IsKnownType(typ) {
		return nil, NewError(ErrCodeInvalidParams, "unknown content type", nil)
	}

	slug := args.Slug
	if slug == "" {
		title, _ := jsonutil.GetString(args.Data, "title")
		name, _ := jsonutil.GetString(args.Data, "name")
		source := title
		if source == "" {
			source = name
		}
		if source == "" {
			return nil, NewError(ErrCodeValidation, "slug could not be derived: data.title or data.name is required", nil)
		}
		slug = deriveSlug(source)
		if slug == "" {
			return nil, NewError(ErrCodeValidation, "slug could not be derived from title/name", nil)
		}
	}

	if err := validation.ValidateSlug(slug); err != nil {
		return nil, FromAPIError(toFieldAPIErr(err))
	}
	if err := validation.ValidateContentData(typ, args.Data); err != nil {
		return nil, FromAPIError(toFieldAPIErr(err))
	}

	status := content.Status(args.Status)
	if status == "" {
		status = content.StatusDraft
	}

	item, err := t.repo.Create(ctx, content.CreateInput{
		Type: typ, Slug: slug, Data: args.Data, Status: status, SortOrder: args.SortOrder,
	}, auth.ChangedBy(ctx))
	if err != nil {
		return nil, FromAPIError(err)
	}
	return item, nil
}

type updateContentArgs struct {
	ID            string         `json:"id"`
	Slug          *string        `json:"slug"`
	Data          map[string]any `json:"data"`
	Status        *string        `json:"status"`
	SortOrder     *int           `json:"sortOrder"`
	ChangeSummary *string        `json:"changeSummary"`
}

func (t *ContentTools) updateContent(ctx context.Context, raw json.RawMessage) (any, error) {
	var args updateContentArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, NewError(ErrCodeInvalidParams, "invalid arguments", nil)
	}
	if args.ID == "" {
		return nil, NewError(ErrCodeInvalidParams, "id is required", nil)
	}

	existing, err := t.repo.FindByID(ctx, args.ID)
	if err != nil {
		return nil, FromAPIError(err)
	}
	if existing == nil {
		return nil, NewError(ErrCodeNotFound, "content item not found", nil)
	}

	if args.Data != nil {
		if err := validation.ValidateContentData(existing.Type, args.Data); err != nil {
			return nil, FromAPIError(toFieldAPIErr(err))
		}
	}
	if args.Slug != nil {
		if err := validation.ValidateSlug(*args.Slug); err != nil {
			return nil, FromAPIError(toFieldAPIErr(err))
		}
	}

	var status *content.Status
	if args.Status != nil {
		s := content.Status(*args.Status)
		status = &s
	}

	item, err := t.repo.UpdateWithHistory(ctx, args.ID, content.UpdateInput{
		Slug: args.Slug, Data: args.Data, Status: status, SortOrder: args.SortOrder,
		ChangeSummary: args.ChangeSummary,
	}, auth.ChangedBy(ctx))
	if err != nil {
		return nil, FromAPIError(err)
	}
	return item, nil
}

type deleteContentArgs struct {
	ID string `json:"id"`
}

func (t *ContentTools) deleteContent(ctx context.Context, raw json.RawMessage) (any, error) {
	var args deleteContentArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, NewError(ErrCodeInvalidParams, "invalid arguments", nil)
	}
	if args.ID == "" {
		return nil, NewError(ErrCodeInvalidParams, "id is required", nil)
	}

	if err := t.repo.Delete(ctx, args.ID, auth.ChangedBy(ctx)); err != nil {
		return nil, FromAPIError(err)
	}
	return map[string]any{"deleted": true, "id": args.ID}, nil
}

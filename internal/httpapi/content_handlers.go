package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/spencerjireh/portfoliobridge/internal/apierr"
	"github.com/spencerjireh/portfoliobridge/internal/auth"
	"github.com/spencerjireh/portfoliobridge/internal/content"
	"github.com/spencerjireh/portfoliobridge/internal/validation"
)

// ListPublicContent serves GET /api/v1/content?type= — published items only,
// per spec.md §6. Cacheable for 60s per the spec's response-header contract.
func (s *Server) ListPublicContent(w http.ResponseWriter, r *http.Request) {
	var typ *content.Type
	if raw := r.URL.Query().Get("type"); raw != "" {
		t := content.Type(raw)
		if !validation.IsKnownType(t) {
			apierr.WriteHTTP(w, r, apierr.NewValidation("invalid type", map[string][]string{"type": {"unknown content type"}}), s.DevMode)
			return
		}
		typ = &t
	}

	items, err := s.Content.FindPublished(r.Context(), typ)
	if err != nil {
		writeInternal(w, r, "failed to list content", err, s.DevMode)
		return
	}

	setCacheHeaders(w, items, 60)
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GetBundle serves GET /api/v1/content/bundle — the partitioned published
// view consumed by the portfolio's homepage, cacheable for 300s.
func (s *Server) GetBundle(w http.ResponseWriter, r *http.Request) {
	bundle, err := s.Content.GetBundle(r.Context())
	if err != nil {
		writeInternal(w, r, "failed to load bundle", err, s.DevMode)
		return
	}
	setCacheHeaders(w, bundle, 300)
	writeJSON(w, http.StatusOK, bundle)
}

// GetPublicContentItem serves GET /api/v1/content/{type}/{slug}.
func (s *Server) GetPublicContentItem(w http.ResponseWriter, r *http.Request) {
	typ := content.Type(chi.URLParam(r, "type"))
	slug := chi.URLParam(r, "slug")

	item, err := s.Content.FindBySlug(r.Context(), typ, slug)
	if err != nil {
		writeInternal(w, r, "failed to load content item", err, s.DevMode)
		return
	}
	if item == nil || item.Status != content.StatusPublished {
		apierr.WriteHTTP(w, r, apierr.NewNotFound("content item not found"), s.DevMode)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// AdminListContent serves GET /api/v1/admin/content, including drafts and
// (with includeDeleted=true) soft-deleted items.
func (s *Server) AdminListContent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	coerced := validation.CoerceListQuery(q.Get("limit"), q.Get("offset"))

	listQuery := content.ListQuery{
		IncludeDeleted: q.Get("includeDeleted") == "true",
		Limit:          coerced.Limit,
		Offset:         coerced.Offset,
	}
	if raw := q.Get("type"); raw != "" {
		t := content.Type(raw)
		listQuery.Type = &t
	}
	if raw := q.Get("status"); raw != "" {
		st := content.Status(raw)
		listQuery.Status = &st
	}

	items, err := s.Content.FindAll(r.Context(), listQuery)
	if err != nil {
		writeInternal(w, r, "failed to list content", err, s.DevMode)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "limit": listQuery.Limit, "offset": listQuery.Offset})
}

type createContentBody struct {
	Type      content.Type   `json:"type"`
	Slug      string         `json:"slug"`
	Data      map[string]any `json:"data"`
	Status    content.Status `json:"status"`
	SortOrder int            `json:"sortOrder"`
}

// AdminCreateContent serves POST /api/v1/admin/content. An Idempotency-Key
// header dedupes retried creates by replaying the first response verbatim
// (spec.md §6), matching the teacher's cache-backed idempotency approach
// (internal/cache.Cache) repurposed here for content creation instead of
// sync-mutation replay.
func (s *Server) AdminCreateContent(w http.ResponseWriter, r *http.Request) {
	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" {
		if cached, ok := s.idempotentReplay(r.Context(), idemKey); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write(cached)
			return
		}
	}

	var body createContentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.WriteHTTP(w, r, apierr.NewValidation("malformed request body", nil), s.DevMode)
		return
	}

	fields := map[string][]string{}
	if !validation.IsKnownType(body.Type) {
		fields["type"] = append(fields["type"], "unknown content type")
	}
	if err := validation.ValidateSlug(body.Slug); err != nil {
		fields["slug"] = append(fields["slug"], err.Error())
	}
	if len(fields) == 0 {
		if err := validation.ValidateContentData(body.Type, body.Data); err != nil {
			for k, v := range err.(validation.FieldErrors) {
				fields[k] = append(fields[k], v...)
			}
		}
	}
	if len(fields) > 0 {
		apierr.WriteHTTP(w, r, apierr.NewValidation("invalid content payload", fields), s.DevMode)
		return
	}

	item, err := s.Content.Create(r.Context(), content.CreateInput{
		Type: body.Type, Slug: body.Slug, Data: body.Data, Status: body.Status, SortOrder: body.SortOrder,
	}, auth.ChangedBy(r.Context()))
	if err != nil {
		writeInternal(w, r, "failed to create content item", err, s.DevMode)
		return
	}

	payload, _ := json.Marshal(item)
	if idemKey != "" {
		s.storeIdempotentReplay(r.Context(), idemKey, payload)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(payload)
}

type updateContentBody struct {
	Slug          *string        `json:"slug,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	Status        *string        `json:"status,omitempty"`
	SortOrder     *int           `json:"sortOrder,omitempty"`
	ChangeSummary *string        `json:"changeSummary,omitempty"`
}

// AdminUpdateContent serves PUT /api/v1/admin/content/{id}.
func (s *Server) AdminUpdateContent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body updateContentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.WriteHTTP(w, r, apierr.NewValidation("malformed request body", nil), s.DevMode)
		return
	}

	existing, err := s.Content.FindByID(r.Context(), id)
	if err != nil {
		writeInternal(w, r, "failed to load content item", err, s.DevMode)
		return
	}
	if existing == nil {
		apierr.WriteHTTP(w, r, apierr.NewNotFound("content item not found"), s.DevMode)
		return
	}

	fields := map[string][]string{}
	if body.Data != nil {
		if err := validation.ValidateContentData(existing.Type, body.Data); err != nil {
			for k, v := range err.(validation.FieldErrors) {
				fields[k] = append(fields[k], v...)
			}
		}
	}
	if body.Slug != nil {
		if err := validation.ValidateSlug(*body.Slug); err != nil {
			fields["slug"] = append(fields["slug"], err.Error())
		}
	}
	if len(fields) > 0 {
		apierr.WriteHTTP(w, r, apierr.NewValidation("invalid content payload", fields), s.DevMode)
		return
	}

	var status *content.Status
	if body.Status != nil {
		st := content.Status(*body.Status)
		status = &st
	}

	item, err := s.Content.UpdateWithHistory(r.Context(), id, content.UpdateInput{
		Slug: body.Slug, Data: body.Data, Status: status, SortOrder: body.SortOrder, ChangeSummary: body.ChangeSummary,
	}, auth.ChangedBy(r.Context()))
	if err != nil {
		writeInternal(w, r, "failed to update content item", err, s.DevMode)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// AdminDeleteContent serves DELETE /api/v1/admin/content/{id}?hard=true.
func (s *Server) AdminDeleteContent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if r.URL.Query().Get("hard") == "true" {
		if err := s.Content.HardDelete(r.Context(), id); err != nil {
			writeInternal(w, r, "failed to hard-delete content item", err, s.DevMode)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := s.Content.Delete(r.Context(), id, auth.ChangedBy(r.Context())); err != nil {
		writeInternal(w, r, "failed to delete content item", err, s.DevMode)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminGetHistory serves GET /api/v1/admin/content/{id}/history, descending
// by version per spec.md §4.1.
func (s *Server) AdminGetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()
	coerced := validation.CoerceListQuery(q.Get("limit"), q.Get("offset"))

	history, err := s.Content.GetHistory(r.Context(), id, coerced.Limit, coerced.Offset)
	if err != nil {
		writeInternal(w, r, "failed to load content history", err, s.DevMode)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history, "limit": coerced.Limit, "offset": coerced.Offset})
}

type restoreVersionBody struct {
	Version int `json:"version"`
}

// AdminRestoreVersion serves POST /api/v1/admin/content/{id}/restore.
func (s *Server) AdminRestoreVersion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body restoreVersionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Version <= 0 {
		apierr.WriteHTTP(w, r, apierr.NewValidation("a positive integer version is required", map[string][]string{"version": {"required"}}), s.DevMode)
		return
	}

	item, err := s.Content.RestoreVersion(r.Context(), id, body.Version, auth.ChangedBy(r.Context()))
	if err != nil {
		writeInternal(w, r, "failed to restore content version", err, s.DevMode)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// --- shared response helpers ------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeInternal wraps an opaque store error as apierr.KindInternal unless
// it already carries a structured classification (e.g. a conflict raised
// from inside a transaction).
func writeInternal(w http.ResponseWriter, r *http.Request, msg string, err error, devMode bool) {
	if ae, ok := apierr.As(err); ok {
		apierr.WriteHTTP(w, r, ae, devMode)
		return
	}
	apierr.WriteHTTP(w, r, apierr.NewInternal(msg, err), devMode)
}

// setCacheHeaders stamps a content-hash ETag and a max-age Cache-Control
// header onto a public GET response (spec.md §6). The ETag is derived from
// the serialized body rather than a version column, since bundle/list
// responses span many items with independent version counters.
func setCacheHeaders(w http.ResponseWriter, body any, maxAgeSeconds int) {
	b, err := json.Marshal(body)
	if err != nil {
		return
	}
	sum := sha256.Sum256(b)
	w.Header().Set("ETag", `"`+hex.EncodeToString(sum[:8])+`"`)
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAgeSeconds))
}

// idempotentReplay looks up a previously-stored response body for key.
func (s *Server) idempotentReplay(ctx context.Context, key string) ([]byte, bool) {
	if s.Cache == nil {
		return nil, false
	}
	v, ok, err := s.Cache.Get(ctx, "idem:"+key)
	if err != nil || !ok {
		return nil, false
	}
	return []byte(v), true
}

func (s *Server) storeIdempotentReplay(ctx context.Context, key string, body []byte) {
	if s.Cache == nil {
		return
	}
	_ = s.Cache.Set(ctx, "idem:"+key, string(body), 24*time.Hour)
}

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spencerjireh/portfoliobridge/internal/apierr"
	"github.com/spencerjireh/portfoliobridge/internal/breaker"
	"github.com/spencerjireh/portfoliobridge/internal/cache"
	"github.com/spencerjireh/portfoliobridge/internal/chatorch"
	"github.com/spencerjireh/portfoliobridge/internal/content"
	"github.com/spencerjireh/portfoliobridge/internal/eventbus"
	"github.com/spencerjireh/portfoliobridge/internal/llmclient"
	"github.com/spencerjireh/portfoliobridge/internal/mcpserver"
	"github.com/spencerjireh/portfoliobridge/internal/pii"
	"github.com/spencerjireh/portfoliobridge/internal/ratelimit"
	"github.com/spencerjireh/portfoliobridge/internal/tools"
)

const testAdminSecret = "a-test-admin-secret-at-least-32-bytes-long"

// --- content.Repository fake -------------------------------------------------

type fakeRepo struct {
	items   map[string]content.Item
	history map[string][]content.History
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{items: map[string]content.Item{}, history: map[string][]content.History{}}
}

// snapshot records it's pre-mutation state as a history row before in-place
// fields change, mirroring PGRepository.UpdateWithHistory's pre-update
// snapshot semantics (spec.md §3's ContentHistory invariant).
func (f *fakeRepo) snapshot(it content.Item, changeType content.ChangeType, changedBy *string) {
	f.history[it.ID] = append(f.history[it.ID], content.History{
		ID: it.ID + "_h" + string(rune('0'+len(f.history[it.ID]))), ContentID: it.ID,
		Version: it.Version, Data: it.Data, ChangeType: changeType, ChangedBy: changedBy,
	})
}

func (f *fakeRepo) FindByID(ctx context.Context, id string) (*content.Item, error) {
	if it, ok := f.items[id]; ok {
		return &it, nil
	}
	return nil, nil
}

func (f *fakeRepo) FindBySlug(ctx context.Context, typ content.Type, slug string) (*content.Item, error) {
	for _, it := range f.items {
		if it.Type == typ && it.Slug == slug && it.DeletedAt == nil {
			c := it
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) FindByType(ctx context.Context, typ content.Type) ([]content.Item, error) {
	out := []content.Item{}
	for _, it := range f.items {
		if it.Type == typ && it.DeletedAt == nil {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindPublished(ctx context.Context, typ *content.Type) ([]content.Item, error) {
	out := []content.Item{}
	for _, it := range f.items {
		if it.DeletedAt != nil || it.Status != content.StatusPublished {
			continue
		}
		if typ != nil && it.Type != *typ {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (f *fakeRepo) FindAll(ctx context.Context, q content.ListQuery) ([]content.Item, error) {
	out := []content.Item{}
	for _, it := range f.items {
		if it.DeletedAt != nil && !q.IncludeDeleted {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (f *fakeRepo) SlugExists(ctx context.Context, typ content.Type, slug string, excludeID string) (bool, error) {
	for id, it := range f.items {
		if it.Type == typ && it.Slug == slug && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) Create(ctx context.Context, in content.CreateInput, changedBy *string) (*content.Item, error) {
	exists, _ := f.SlugExists(ctx, in.Type, in.Slug, "")
	if exists {
		return nil, apierr.NewConflict("slug already exists")
	}
	status := in.Status
	if status == "" {
		status = content.StatusDraft
	}
	id := "content_" + in.Slug
	item := content.Item{ID: id, Type: in.Type, Slug: in.Slug, Data: in.Data, Status: status, Version: 1, SortOrder: in.SortOrder}
	f.items[id] = item
	return &item, nil
}

func (f *fakeRepo) UpdateWithHistory(ctx context.Context, id string, in content.UpdateInput, changedBy *string) (*content.Item, error) {
	it, ok := f.items[id]
	if !ok {
		return nil, apierr.NewNotFound("content item not found")
	}
	f.snapshot(it, content.ChangeUpdated, changedBy)
	if in.Slug != nil {
		it.Slug = *in.Slug
	}
	if in.Data != nil {
		it.Data = in.Data
	}
	if in.Status != nil {
		it.Status = *in.Status
	}
	it.Version++
	f.items[id] = it
	return &it, nil
}

func (f *fakeRepo) Delete(ctx context.Context, id string, changedBy *string) error {
	it, ok := f.items[id]
	if !ok {
		return apierr.NewNotFound("content item not found")
	}
	now := it.UpdatedAt
	it.DeletedAt = &now
	f.items[id] = it
	return nil
}

func (f *fakeRepo) HardDelete(ctx context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return apierr.NewNotFound("content item not found")
	}
	delete(f.items, id)
	return nil
}

func (f *fakeRepo) RestoreVersion(ctx context.Context, id string, version int, changedBy *string) (*content.Item, error) {
	it, ok := f.items[id]
	if !ok {
		return nil, apierr.NewNotFound("content item not found")
	}
	if it.Version == version {
		f.snapshot(it, content.ChangeRestored, changedBy)
		it.Version++
		f.items[id] = it
		return &it, nil
	}
	for _, h := range f.history[id] {
		if h.Version == version {
			f.snapshot(it, content.ChangeRestored, changedBy)
			it.Data = h.Data
			it.Version++
			f.items[id] = it
			return &it, nil
		}
	}
	return nil, apierr.NewNotFound("version not found")
}

func (f *fakeRepo) GetHistory(ctx context.Context, id string, limit, offset int) ([]content.History, error) {
	return f.history[id], nil
}

func (f *fakeRepo) GetBundle(ctx context.Context) (*content.Bundle, error) {
	b := &content.Bundle{}
	for _, it := range f.items {
		if it.DeletedAt != nil || it.Status != content.StatusPublished {
			continue
		}
		switch it.Type {
		case content.TypeProject:
			b.Projects = append(b.Projects, it)
		case content.TypeExperience:
			b.Experiences = append(b.Experiences, it)
		case content.TypeEducation:
			b.Education = append(b.Education, it)
		case content.TypeSkill:
			b.Skills = append(b.Skills, it)
		}
	}
	return b, nil
}

// --- chatorch test doubles ---------------------------------------------------

type fakeStore struct {
	sessions map[string]*chatorch.Session
	messages map[string][]chatorch.Message
	nextID   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]*chatorch.Session{}, messages: map[string][]chatorch.Message{}}
}

func (f *fakeStore) FindActiveSession(ctx context.Context, visitorID string) (*chatorch.Session, error) {
	for _, s := range f.sessions {
		if s.VisitorID == visitorID && s.Status == chatorch.SessionActive {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateSession(ctx context.Context, visitorID, ipHash string, userAgent *string) (*chatorch.Session, error) {
	f.nextID++
	s := &chatorch.Session{ID: "sess_" + string(rune('0'+f.nextID)), VisitorID: visitorID, IPHash: ipHash, UserAgent: userAgent, Status: chatorch.SessionActive}
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, sessionID string, role chatorch.MessageRole, content string, tokensUsed *int, model *string) (*chatorch.Message, error) {
	m := chatorch.Message{ID: "msg", SessionID: sessionID, Role: role, Content: content, TokensUsed: tokensUsed, Model: model}
	f.messages[sessionID] = append(f.messages[sessionID], m)
	return &m, nil
}

func (f *fakeStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]chatorch.Message, error) {
	msgs := f.messages[sessionID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

type fakeLLM struct {
	response *llmclient.Response
	err      error
}

func (f *fakeLLM) SendMessage(ctx context.Context, messages []llmclient.Message, opts llmclient.Options) (*llmclient.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

// --- server wiring helpers ----------------------------------------------------

func newTestServer(repo *fakeRepo, limiterCapacity float64, llm llmclient.Client) *Server {
	return newTestServerWithStore(repo, limiterCapacity, llm, newFakeStore())
}

func newTestServerWithStore(repo *fakeRepo, limiterCapacity float64, llm llmclient.Client, store *fakeStore) *Server {
	bus := eventbus.New()
	limiter := ratelimit.New(cache.NewInProcess(), ratelimit.Config{Capacity: limiterCapacity, RefillRate: 1, TTL: 0})
	llmBreaker := breaker.New("test-llm", breaker.DefaultConfig, bus)
	registry := tools.NewRegistry()
	tools.NewContentTools(repo).RegisterAll(registry)

	orch := chatorch.New(store, limiter, pii.NewDefault(), llmBreaker, llm, registry, bus, chatorch.Config{
		Model: "test-model", HistoryWindow: 20, RetryConfig: llmclient.RetryConfig{MaxRetries: 0},
	})

	mcpCore := mcpserver.NewServer(registry, repo)
	sessions := mcpserver.NewSessionManager()
	mcpHTTP := mcpserver.NewHTTPTransport(mcpCore, sessions, testAdminSecret, true, nil)

	return &Server{
		Content: repo, Chat: orch, MCP: mcpHTTP, Cache: cache.NewInProcess(),
		AdminSecret: testAdminSecret, DevMode: true,
	}
}

func adminReq(method, path string, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-Admin-Key", testAdminSecret)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// --- content handler tests ---------------------------------------------------

func TestListPublicContentOnlyReturnsPublished(t *testing.T) {
	repo := newFakeRepo()
	repo.items["content_1"] = content.Item{ID: "content_1", Type: content.TypeProject, Slug: "a", Status: content.StatusPublished}
	repo.items["content_2"] = content.Item{ID: "content_2", Type: content.TypeProject, Slug: "b", Status: content.StatusDraft}
	srv := newTestServer(repo, 10, &fakeLLM{})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/content", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("ETag"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "max-age=60")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	items, ok := body["items"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 1)
}

func TestGetPublicContentItemNotFoundWhenUnpublished(t *testing.T) {
	repo := newFakeRepo()
	repo.items["content_1"] = content.Item{ID: "content_1", Type: content.TypeProject, Slug: "a", Status: content.StatusDraft}
	srv := newTestServer(repo, 10, &fakeLLM{})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/content/project/a", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminCreateContentRejectsUnauthenticated(t *testing.T) {
	srv := newTestServer(newFakeRepo(), 10, &fakeLLM{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/content", strings.NewReader(`{}`))

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminCreateContentValidatesPayload(t *testing.T) {
	srv := newTestServer(newFakeRepo(), 10, &fakeLLM{})
	body := `{"type":"project","slug":"","data":{}}`

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, adminReq(http.MethodPost, "/api/v1/admin/content", body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminCreateContentHappyPathAndConflict(t *testing.T) {
	srv := newTestServer(newFakeRepo(), 10, &fakeLLM{})
	body := `{"type":"project","slug":"my-project","data":{"title":"T","description":"D"},"status":"draft"}`

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, adminReq(http.MethodPost, "/api/v1/admin/content", body))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec2 := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec2, adminReq(http.MethodPost, "/api/v1/admin/content", body))
	assert.Equal(t, http.StatusConflict, rec2.Code)
}

func TestAdminCreateContentIdempotencyKeyReplaysResponse(t *testing.T) {
	srv := newTestServer(newFakeRepo(), 10, &fakeLLM{})
	body := `{"type":"project","slug":"idem-project","data":{"title":"T","description":"D"}}`

	req1 := adminReq(http.MethodPost, "/api/v1/admin/content", body)
	req1.Header.Set("Idempotency-Key", "key-1")
	rec1 := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusCreated, rec1.Code)

	req2 := adminReq(http.MethodPost, "/api/v1/admin/content", body)
	req2.Header.Set("Idempotency-Key", "key-1")
	rec2 := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusCreated, rec2.Code)
	assert.Equal(t, rec1.Body.String(), rec2.Body.String())
}

func TestAdminDeleteContentSoftThenHard(t *testing.T) {
	repo := newFakeRepo()
	repo.items["content_1"] = content.Item{ID: "content_1", Type: content.TypeProject, Slug: "a", Status: content.StatusPublished}
	srv := newTestServer(repo, 10, &fakeLLM{})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, adminReq(http.MethodDelete, "/api/v1/admin/content/content_1", ""))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec2 := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec2, adminReq(http.MethodDelete, "/api/v1/admin/content/content_1?hard=true", ""))
	assert.Equal(t, http.StatusNoContent, rec2.Code)
}

// --- chat handler tests -------------------------------------------------------

func TestPostChatHappyPath(t *testing.T) {
	srv := newTestServer(newFakeRepo(), 10, &fakeLLM{response: &llmclient.Response{Content: "hi there", TokensUsed: 5, Model: "test-model"}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"visitorId":"v1","message":"hello"}`))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "hi there", body["content"])
}

func TestPostChatRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(newFakeRepo(), 10, &fakeLLM{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostChatRateLimited(t *testing.T) {
	srv := newTestServer(newFakeRepo(), 1, &fakeLLM{response: &llmclient.Response{Content: "ok", TokensUsed: 1, Model: "test-model"}})

	req1 := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"visitorId":"v1","message":"one"}`))
	rec1 := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusOK, rec1.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"visitorId":"v1","message":"two"}`))
	rec2 := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusTooManyRequests, rec2.Code)
	assert.NotEmpty(t, rec2.Header().Get("Retry-After"))
}

// --- health handler tests ------------------------------------------------------

func TestHealthLive(t *testing.T) {
	srv := newTestServer(newFakeRepo(), 10, &fakeLLM{})
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyWithNilDB(t *testing.T) {
	srv := newTestServer(newFakeRepo(), 10, &fakeLLM{})
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

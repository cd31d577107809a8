package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/config"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/core"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/core/profiles"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/store"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/web/middleware"
)

const rosterCSV = "FECHA,TURNO,CANT,CONDUCTOR 1,CONDUCTOR 2\n" +
	"15/03/2023,PRIMER TURNO,2,Juan Valdes,Ana Perez\n" +
	"15/03/2023,SEGUNDO TURNO,1,Pedro Soto,\n"

// memStore keeps committed imports in memory.
type memStore struct {
	mu    sync.Mutex
	saved map[uuid.UUID]*core.Result
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[uuid.UUID]*core.Result)}
}

func (m *memStore) SaveImport(_ context.Context, id uuid.UUID, res *core.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.saved[id]; ok {
		return errors.New("duplicate key value violates unique constraint")
	}
	m.saved[id] = res
	return nil
}

func (m *memStore) GetImport(_ context.Context, id uuid.UUID) (*store.ImportDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.saved[id]
	if !ok {
		return nil, store.ErrImportNotFound
	}
	return &store.ImportDetail{
		ImportRecord: store.ImportRecord{ID: id, FileName: res.FileName, RecordCount: len(res.Records)},
		Records:      res.Records,
	}, nil
}

func (m *memStore) ListImports(_ context.Context, _ int) ([]store.ImportRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.ImportRecord, 0, len(m.saved))
	for id, res := range m.saved {
		out = append(out, store.ImportRecord{ID: id, FileName: res.FileName})
	}
	return out, nil
}

func (m *memStore) DeleteImport(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.saved[id]; !ok {
		return errors.Wrapf(store.ErrImportNotFound, "%s", id)
	}
	delete(m.saved, id)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
		Import: config.ImportConfig{
			MaxFileSize:      1 << 20,
			MaxConcurrent:    2,
			MaxWaitTime:      time.Second,
			Timeout:          10 * time.Second,
			PreviewCacheSize: 10,
		},
		Security: config.SecurityConfig{EnableCSP: true},
		Logging:  config.LoggingConfig{Level: "info", Format: "text"},
	}
}

func newTestServer(t *testing.T, st ImportStore, mutate func(*config.Config)) *Server {
	t.Helper()
	reg, err := profiles.NewRegistry()
	require.NoError(t, err)
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	limiter := core.NewRunLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime)
	return NewServer(core.NewPipeline(reg, nil), limiter, st, cfg)
}

func uploadRequest(t *testing.T, target, fileName, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) middleware.ErrorResponse {
	t.Helper()
	var resp middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func previewRoster(t *testing.T, s *Server) Preview {
	t.Helper()
	rec := serve(s, uploadRequest(t, "/api/imports/preview", "marzo.csv", rosterCSV, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var p Preview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var h HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 4, h.Profiles)
	assert.False(t, h.Persistence)
	assert.Equal(t, 2, h.Imports.MaxConcurrent)
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestListProfiles(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/profiles", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var list []ProfileSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))

	names := make([]string, 0, len(list))
	for _, p := range list {
		names = append(names, p.Name)
		if p.Name == profiles.Strict {
			assert.True(t, p.StrictMode)
			assert.False(t, p.AutoCorrection)
		}
	}
	assert.ElementsMatch(t, []string{"default", "strict", "permissive", "legacy"}, names)
}

func TestGetProfile_Formats(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/profiles/strict", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var p core.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "strict", p.Name)
	assert.True(t, p.Validation.StrictMode)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/profiles/legacy?format=yaml", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "name: legacy")

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/profiles/default?format=toml", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/toml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "[validation]")
}

func TestGetProfile_NotFound(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/profiles/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "PRF002", decodeError(t, rec).Code)
}

func TestPreviewAndCommit(t *testing.T) {
	st := newMemStore()
	s := newTestServer(t, st, nil)

	p := previewRoster(t, s)
	require.True(t, p.Result.Accepted, "failure: %+v", p.Result.Failure)
	assert.Equal(t, "default", p.Result.Profile)
	assert.True(t, p.Result.AutoSelected)
	assert.Len(t, p.Result.Records, 2)
	assert.Equal(t, "csv", string(p.Sheet.Format))

	rec := serve(s, httptest.NewRequest(http.MethodPost, "/api/imports/"+p.ID.String()+"/commit", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cr CommitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cr))
	assert.True(t, cr.Committed)
	assert.Equal(t, 2, cr.Records)
	assert.Contains(t, st.saved, p.ID)

	// A second commit of the same preview is a no-op.
	rec = serve(s, httptest.NewRequest(http.MethodPost, "/api/imports/"+p.ID.String()+"/commit", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/imports/"+p.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got Preview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Committed)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/imports", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []store.ImportRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestPreview_PinnedProfile(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := serve(s, uploadRequest(t, "/api/imports/preview", "marzo.csv", rosterCSV,
		map[string]string{"profile": profiles.Permissive}))
	require.Equal(t, http.StatusOK, rec.Code)

	var p Preview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, profiles.Permissive, p.Result.Profile)
	assert.False(t, p.Result.AutoSelected)
}

func TestPreview_Errors(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		content  string
		status   int
		code     string
	}{
		{"no file", "", "", http.StatusBadRequest, "FILE004"},
		{"unsupported type", "roster.pdf", "%PDF", http.StatusUnsupportedMediaType, "FILE002"},
		{"empty file", "roster.csv", "  \n", http.StatusBadRequest, "FILE005"},
	}
	s := newTestServer(t, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, uploadRequest(t, "/api/imports/preview", tt.fileName, tt.content, nil))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestPreview_RejectedRosterCannotBeCommitted(t *testing.T) {
	s := newTestServer(t, newMemStore(), nil)
	rec := serve(s, uploadRequest(t, "/api/imports/preview", "notes.csv", "hello,world\nfoo,bar\n", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var p Preview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	require.False(t, p.Result.Accepted)
	require.NotNil(t, p.Result.Failure)
	assert.Equal(t, "STR001", p.Result.Failure.Code)

	rec = serve(s, httptest.NewRequest(http.MethodPost, "/api/imports/"+p.ID.String()+"/commit", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "ROW002", decodeError(t, rec).Code)
}

func TestCommit_WithoutStore(t *testing.T) {
	s := newTestServer(t, nil, nil)
	p := previewRoster(t, s)

	rec := serve(s, httptest.NewRequest(http.MethodPost, "/api/imports/"+p.ID.String()+"/commit", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "DB003", decodeError(t, rec).Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/imports", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCommit_UnknownID(t *testing.T) {
	s := newTestServer(t, newMemStore(), nil)

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		rec := serve(s, httptest.NewRequest(http.MethodPost, "/api/imports/"+id+"/commit", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, id)
		assert.Equal(t, "UPL002", decodeError(t, rec).Code, id)
	}
}

func TestCommit_RequiresAPIKey(t *testing.T) {
	s := newTestServer(t, newMemStore(), func(cfg *config.Config) {
		cfg.Security.RequireAPIKey = true
		cfg.Security.APIKeys = []string{"k-123"}
	})
	p := previewRoster(t, s)
	target := "/api/imports/" + p.ID.String() + "/commit"

	rec := serve(s, httptest.NewRequest(http.MethodPost, target, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "REQ001", decodeError(t, rec).Code)

	req := httptest.NewRequest(http.MethodPost, target, nil)
	req.Header.Set(middleware.APIKeyHeader, "wrong")
	rec = serve(s, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "REQ002", decodeError(t, rec).Code)

	req = httptest.NewRequest(http.MethodPost, target, nil)
	req.Header.Set(middleware.APIKeyHeader, "k-123")
	rec = serve(s, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestGetImport_FallsBackToStore(t *testing.T) {
	st := newMemStore()
	id := uuid.New()
	st.saved[id] = &core.Result{FileName: "abril.xlsx", Accepted: true}
	s := newTestServer(t, st, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/imports/"+id.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var detail store.ImportDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "abril.xlsx", detail.FileName)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/imports/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteImport(t *testing.T) {
	st := newMemStore()
	s := newTestServer(t, st, nil)

	p := previewRoster(t, s)
	rec := serve(s, httptest.NewRequest(http.MethodPost, "/api/imports/"+p.ID.String()+"/commit", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(s, httptest.NewRequest(http.MethodDelete, "/api/imports/"+p.ID.String(), nil))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.NotContains(t, st.saved, p.ID)

	// The cached preview can be committed again.
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/imports/"+p.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got Preview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.Committed)

	rec = serve(s, httptest.NewRequest(http.MethodDelete, "/api/imports/"+p.ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodDelete, "/api/imports/not-a-uuid", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteImport_WithoutStore(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := serve(s, httptest.NewRequest(http.MethodDelete, "/api/imports/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPages(t *testing.T) {
	s := newTestServer(t, newMemStore(), nil)

	rec := serve(s, uploadRequest(t, "/imports", "marzo.csv", rosterCSV, nil))
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	location := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/imports/"), location)

	rec = serve(s, httptest.NewRequest(http.MethodGet, location, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "marzo.csv")
	assert.Contains(t, body, "PRIMER TURNO")
	assert.Contains(t, body, "JUAN VALDEZ")
	assert.Contains(t, body, `action="`+location+`/commit"`)

	rec = serve(s, httptest.NewRequest(http.MethodPost, location+"/commit", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "committed")
}

func TestPages_ErrorIsHTML(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/imports/"+uuid.NewString(), nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "UPL002")
}

func TestPreviewCache_EvictsOldest(t *testing.T) {
	c := newPreviewCache(2)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		c.put(&Preview{ID: id, Result: &core.Result{}})
	}

	_, ok := c.get(ids[0])
	assert.False(t, ok)
	recent := c.recent()
	require.Len(t, recent, 2)
	assert.Equal(t, ids[2], recent[0].ID)
	assert.Equal(t, ids[1], recent[1].ID)

	require.Equal(t, claimGranted, c.claimCommit(ids[1]))
	c.finishCommit(ids[1], true)
	p, ok := c.get(ids[1])
	require.True(t, ok)
	assert.True(t, p.Committed)
}

func TestPreviewCache_ClaimCommit(t *testing.T) {
	c := newPreviewCache(2)
	id := uuid.New()
	c.put(&Preview{ID: id, Result: &core.Result{}})

	assert.Equal(t, claimMissing, c.claimCommit(uuid.New()))
	assert.Equal(t, claimGranted, c.claimCommit(id))
	assert.Equal(t, claimBusy, c.claimCommit(id))

	// A failed save releases the claim without marking the preview.
	c.finishCommit(id, false)
	p, _ := c.get(id)
	assert.False(t, p.Committed)
	assert.Equal(t, claimGranted, c.claimCommit(id))

	c.finishCommit(id, true)
	assert.Equal(t, claimCommitted, c.claimCommit(id))

	c.markDeleted(id)
	assert.Equal(t, claimGranted, c.claimCommit(id))
}

// blockingStore holds SaveImport until release is closed.
type blockingStore struct {
	*memStore
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) SaveImport(ctx context.Context, id uuid.UUID, res *core.Result) error {
	b.entered <- struct{}{}
	<-b.release
	return b.memStore.SaveImport(ctx, id, res)
}

func TestCommit_ConcurrentCommitsStoreOnce(t *testing.T) {
	st := &blockingStore{
		memStore: newMemStore(),
		entered:  make(chan struct{}, 2),
		release:  make(chan struct{}),
	}
	s := newTestServer(t, st, nil)
	p := previewRoster(t, s)
	target := "/api/imports/" + p.ID.String() + "/commit"

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- serve(s, httptest.NewRequest(http.MethodPost, target, nil))
	}()
	<-st.entered

	rec := serve(s, httptest.NewRequest(http.MethodPost, target, nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "UPL005", decodeError(t, rec).Code)

	close(st.release)
	rec = <-first
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, st.saved, 1)

	rec = serve(s, httptest.NewRequest(http.MethodPost, target, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, st.entered, 0, "a committed preview is not stored again")
}

func TestStatusForCode(t *testing.T) {
	assert.Equal(t, http.StatusRequestEntityTooLarge, statusForCode("FILE001"))
	assert.Equal(t, http.StatusServiceUnavailable, statusForCode("UPL001"))
	assert.Equal(t, http.StatusConflict, statusForCode("DB002"))
	assert.Equal(t, http.StatusConflict, statusForCode("UPL005"))
	assert.Equal(t, http.StatusInternalServerError, statusForCode("ERR000"))
}

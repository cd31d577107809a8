package web

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/a-h/templ"
	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/core"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/logging"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/sheet"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/store"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/web/templates"
)

// multipartMemory is the part of an upload kept in memory before spilling to disk.
const multipartMemory = 8 << 20

var errNoFile = errors.WithHint(errors.New("no file provided"), "send the roster in the multipart field \"file\"")

var errCommitInProgress = errors.WithHint(errors.New("commit already in progress"),
	"wait for the running commit to finish")

// ProfileSummary is a profile as listed by the API.
type ProfileSummary struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	Description    string `json:"description,omitempty"`
	StrictMode     bool   `json:"strictMode"`
	AutoCorrection bool   `json:"autoCorrection"`
	MaxWarnings    int    `json:"maxWarnings"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status      string                `json:"status"`
	Profiles    int                   `json:"profiles"`
	Persistence bool                  `json:"persistence"`
	Imports     core.RunLimiterStatus `json:"imports"`
}

// CommitResponse is the body of a successful commit.
type CommitResponse struct {
	ID        uuid.UUID `json:"id"`
	Committed bool      `json:"committed"`
	Records   int       `json:"records"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Profiles:    s.pipeline.Registry().Count(),
		Persistence: s.store != nil,
		Imports:     s.limiter.Status(),
	})
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles := s.pipeline.Registry().All()
	out := make([]ProfileSummary, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, ProfileSummary{
			Name:           p.Name,
			Version:        p.Version,
			Description:    p.Description,
			StrictMode:     p.Validation.StrictMode,
			AutoCorrection: p.Validation.AutoCorrection,
			MaxWarnings:    p.Validation.MaxWarnings,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetProfile returns one profile as JSON, or as YAML or TOML when
// ?format= asks for it.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, ok := s.pipeline.Registry().Lookup(name)
	if !ok {
		s.respondError(w, r, errors.Wrapf(core.ErrProfileNotFound, "profile %q", name), http.StatusNotFound)
		return
	}

	var (
		data        []byte
		err         error
		contentType string
	)
	switch r.URL.Query().Get("format") {
	case "yaml", "yml":
		data, err = yaml.Marshal(p)
		contentType = "application/yaml"
	case "toml":
		data, err = toml.Marshal(p)
		contentType = "application/toml"
	default:
		writeJSON(w, http.StatusOK, p)
		return
	}
	if err != nil {
		s.respondError(w, r, errors.Wrapf(err, "encode profile %s", name), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(data)
}

// runPreview reads the uploaded roster and runs it through the pipeline.
// The outcome is cached for review and commit.
func (s *Server) runPreview(w http.ResponseWriter, r *http.Request) (*Preview, error) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errors.WithHintf(
				errors.Wrapf(sheet.ErrFileTooLarge, "upload exceeds %d bytes", maxSize),
				"split the roster into files smaller than %d bytes", maxSize)
		}
		return nil, errors.Wrap(errNoFile, err.Error())
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errNoFile
	}
	defer file.Close()

	profile := r.FormValue("profile")
	if profile == "" {
		profile = s.cfg.Import.DefaultProfile
	}

	id := uuid.New()
	ctx := core.ContextWithImportID(r.Context(), id.String())
	if profile != "" {
		ctx = core.ContextWithProfile(ctx, profile)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Import.Timeout)
	defer cancel()
	logger := logging.WithFields(ctx, "file", header.Filename)

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	grid, info, err := sheet.Read(file, header.Filename, sheet.Options{
		Sheet:   r.FormValue("sheet"),
		MaxSize: maxSize,
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := s.pipeline.Run(grid, core.Options{
		Profile:  profile,
		FileName: header.Filename,
		Logger:   logger,
	})
	p := &Preview{ID: id, Sheet: info, Result: res, CreatedAt: time.Now()}
	s.previews.put(p)
	return p, nil
}

// handlePreview imports an uploaded roster without storing it.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	p, err := s.runPreview(w, r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// commitPreview stores an accepted preview.
func (s *Server) commitPreview(ctx context.Context, idParam string) (*Preview, error) {
	id, err := uuid.Parse(idParam)
	if err != nil {
		return nil, errors.Wrapf(store.ErrImportNotFound, "invalid id %q", idParam)
	}
	p, ok := s.previews.get(id)
	if !ok {
		return nil, errors.WithHint(errors.Wrapf(store.ErrImportNotFound, "%s", id),
			"previews expire; upload the file again")
	}
	if s.store == nil {
		return nil, store.ErrDisabled
	}
	if !p.Result.Accepted {
		return nil, store.ErrRejectedImport
	}

	switch s.previews.claimCommit(id) {
	case claimCommitted:
		p.Committed = true
		return &p, nil
	case claimBusy:
		return nil, errCommitInProgress
	case claimMissing:
		return nil, errors.WithHint(errors.Wrapf(store.ErrImportNotFound, "%s", id),
			"previews expire; upload the file again")
	}

	ctx = core.ContextWithImportID(ctx, id.String())
	err = s.store.SaveImport(ctx, id, p.Result)
	s.previews.finishCommit(id, err == nil)
	if err != nil {
		return nil, err
	}
	p.Committed = true
	logging.FromContext(ctx).Info("import committed",
		"file", p.Result.FileName,
		"profile", p.Result.Profile,
		"records", len(p.Result.Records),
	)
	return &p, nil
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	p, err := s.commitPreview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, CommitResponse{ID: p.ID, Committed: true, Records: len(p.Result.Records)})
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, r, store.ErrDisabled, 0)
		return
	}
	imports, err := s.store.ListImports(r.Context(), parseIntParam(r, "limit", 50))
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, imports)
}

// handleGetImport answers with a cached preview, or with the stored import
// once the preview has expired.
func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		s.respondError(w, r, errors.Wrapf(store.ErrImportNotFound, "invalid id %q", idParam), 0)
		return
	}
	if p, ok := s.previews.get(id); ok {
		writeJSON(w, http.StatusOK, p)
		return
	}
	if s.store == nil {
		s.respondError(w, r, errors.Wrapf(store.ErrImportNotFound, "%s", id), 0)
		return
	}
	detail, err := s.store.GetImport(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDeleteImport(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, r, store.ErrDisabled, 0)
		return
	}
	idParam := chi.URLParam(r, "id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		s.respondError(w, r, errors.Wrapf(store.ErrImportNotFound, "invalid id %q", idParam), 0)
		return
	}
	if err := s.store.DeleteImport(r.Context(), id); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	s.previews.markDeleted(id)
	logging.FromContext(r.Context()).Info("import deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// Pages

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	recent := s.previews.recent()
	items := make([]templates.PreviewItem, 0, len(recent))
	for _, p := range recent {
		items = append(items, templates.PreviewItem{
			ID:        p.ID.String(),
			FileName:  p.Result.FileName,
			Profile:   p.Result.Profile,
			Accepted:  p.Result.Accepted,
			Committed: p.Committed,
			Records:   len(p.Result.Records),
			Errors:    len(p.Result.Diagnostics.Errors),
			Warnings:  len(p.Result.Diagnostics.Warnings),
			CreatedAt: p.CreatedAt,
		})
	}
	names := s.pipeline.Registry().Names()
	sort.Strings(names)
	s.render(w, r, "Roster imports", templates.PreviewList(items, names))
}

func (s *Server) handlePreviewPage(w http.ResponseWriter, r *http.Request) {
	p, err := s.runPreview(w, r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	http.Redirect(w, r, "/imports/"+p.ID.String(), http.StatusSeeOther)
}

func (s *Server) handleReviewPage(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		s.respondError(w, r, errors.Wrapf(store.ErrImportNotFound, "invalid id %q", idParam), 0)
		return
	}
	p, ok := s.previews.get(id)
	if !ok {
		s.respondError(w, r, errors.Wrapf(store.ErrImportNotFound, "%s", id), 0)
		return
	}
	s.render(w, r, p.Result.FileName, templates.Review(templates.ReviewView{
		ID:        p.ID.String(),
		Result:    p.Result,
		Committed: p.Committed,
		CanCommit: s.store != nil && !s.cfg.Security.RequireAPIKey,
	}))
}

// handleCommitPage commits from the review form. Forms cannot send the API
// key header, so the page refuses when keys are required.
func (s *Server) handleCommitPage(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Security.RequireAPIKey {
		s.respondError(w, r, errors.New("missing api key"), http.StatusUnauthorized)
		return
	}
	p, err := s.commitPreview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	http.Redirect(w, r, "/imports/"+p.ID.String(), http.StatusSeeOther)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, title string, body templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Layout(title, body).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render page", "error", err)
	}
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

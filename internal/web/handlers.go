package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/csvlint/internal/core"
	"github.com/JonMunkholm/csvlint/internal/csvw"
	"github.com/JonMunkholm/csvlint/internal/schema"
	"github.com/JonMunkholm/csvlint/internal/store"
)

// multipartMemory is how much of a multipart body is held in memory; the
// rest is spooled to temporary files.
const multipartMemory = 32 << 20

// maxListLimit caps the limit query parameter of /api/runs.
const maxListLimit = 500

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status  string              `json:"status"`
	Runs    *core.LimiterStatus `json:"runs,omitempty"`
	History bool                `json:"history"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", History: s.history != nil}
	if l := s.service.Limiter(); l != nil {
		st := l.Status()
		resp.Runs = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleValidate runs a validation on a multipart upload: one "metadata"
// part (CSVW metadata or a JSON Table Schema) and one or more "file" parts
// named after the tables they hold. The report is returned whether or not
// the data is valid.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Validation.MaxFileSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, errFileTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, fmt.Errorf("invalid upload: %w", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	opts, err := s.runOptions(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	metaName, metaData, err := readMetadataPart(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	sources, closeAll, err := openFileParts(r.MultipartForm.File["file"])
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	defer closeAll()

	ctx := WithRequestMetadata(r.Context(), r)
	isYAML := schema.IsYAMLPath(metaName)

	var report *core.Report
	switch core.DetectDocument(metaData) {
	case core.DocumentTableSchema:
		if len(sources) != 1 {
			err = &schema.MetadataError{Message: fmt.Sprintf("a table schema validates one file, got %d", len(sources))}
			break
		}
		var sch *schema.Schema
		if sch, err = schema.Parse(metaName, metaData, isYAML); err == nil {
			report, err = s.service.ValidateSchema(ctx, sch, sources[0])
		}
	case core.DocumentMetadata:
		var group *csvw.Group
		if group, err = csvw.ParseMetadata(uploadURL(metaName), metaData, isYAML); err == nil {
			report, err = s.service.ValidateTables(ctx, group, sources, opts)
		}
	default:
		err = errUnknownDoc
	}
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) runOptions(r *http.Request) (core.Options, error) {
	opts := core.Options{Strict: s.cfg.Validation.StrictHeaders}
	var err error
	if opts.Strict, err = parseBoolParam(r, "strict", opts.Strict); err != nil {
		return opts, err
	}
	if opts.Structural, err = parseBoolParam(r, "structural", false); err != nil {
		return opts, err
	}
	return opts, nil
}

func readMetadataPart(r *http.Request) (string, []byte, error) {
	f, header, err := r.FormFile("metadata")
	if err != nil {
		return "", nil, &csvw.MetadataError{Message: "no metadata part in upload"}
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, fmt.Errorf("read metadata part: %w", err)
	}
	return header.Filename, data, nil
}

func openFileParts(parts []*multipart.FileHeader) ([]core.Source, func(), error) {
	var files []multipart.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}
	if len(parts) == 0 {
		return nil, closeAll, core.ErrNoFiles
	}

	sources := make([]core.Source, 0, len(parts))
	for _, p := range parts {
		f, err := p.Open()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open part %s: %w", p.Filename, err)
		}
		files = append(files, f)
		sources = append(sources, core.Source{Name: p.Filename, Reader: f})
	}
	return sources, closeAll, nil
}

// uploadURL is the base URL of an uploaded metadata document. Relative
// table URLs resolve next to it and match file parts by name.
func uploadURL(name string) string {
	return (&url.URL{Scheme: "file", Path: "/uploads/" + name}).String()
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondError(w, r, store.ErrDisabled, statusFor(store.ErrDisabled))
		return
	}
	limit := min(parseIntParam(r, "limit", store.DefaultListLimit), maxListLimit)
	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := s.runID(w, r)
	if !ok {
		return
	}
	report, err := s.history.GetRun(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRunKinds(w http.ResponseWriter, r *http.Request) {
	id, ok := s.runID(w, r)
	if !ok {
		return
	}
	counts, err := s.history.KindCounts(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if counts == nil {
		counts = []store.KindCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}

// runID parses the runID path parameter and checks that history is
// enabled, writing the error response when it returns false.
func (s *Server) runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if s.history == nil {
		s.respondError(w, r, store.ErrDisabled, statusFor(store.ErrDisabled))
		return uuid.Nil, false
	}
	raw := chi.URLParam(r, "runID")
	id, err := uuid.Parse(raw)
	if err != nil {
		err = fmt.Errorf("%w: invalid id %q", store.ErrRunNotFound, raw)
		s.respondError(w, r, err, statusFor(err))
		return uuid.Nil, false
	}
	return id, true
}

// parseIntParam extracts a positive integer query parameter with a default.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}

func parseBoolParam(r *http.Request, name string, defaultVal bool) (bool, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal, fmt.Errorf("invalid option %s=%q", name, val)
	}
	return b, nil
}

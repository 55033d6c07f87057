package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"docrag/internal/blob"
	"docrag/internal/config"
	"docrag/internal/models"
	"docrag/internal/util"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// Backend is the document service the handlers drive.
type Backend interface {
	Ingest(ctx context.Context, data []byte, filename string) (models.Document, error)
	Query(ctx context.Context, q models.Query) (models.Answer, error)
	DownloadReference(ctx context.Context, documentID string) (models.DownloadRef, error)
	Document(ctx context.Context, documentID string) (models.Document, error)
}

// SignedFiles resolves signed local blob links. Only the fs blob backend
// provides one.
type SignedFiles interface {
	Open(key, exp, sig string) (string, error)
}

type Server struct {
	backend Backend
	files   SignedFiles
	cfg     config.Config
	logger  *zap.Logger
}

func NewServer(backend Backend, files SignedFiles, cfg config.Config, logger *zap.Logger) *Server {
	return &Server{backend: backend, files: files, cfg: cfg, logger: logger}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(withCORS)

	r.Get("/healthz", s.handleHealthz)
	r.Route("/documents", func(r chi.Router) {
		r.Post("/", s.handleUpload)
		r.Post("/batch", s.handleUploadBatch)
		r.Get("/{documentID}", s.handleDocument)
		r.Get("/{documentID}/download", s.handleDownload)
	})
	r.Post("/query", s.handleQuery)
	if s.files != nil {
		r.Get("/blobs/*", s.handleBlob)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusNotFound, errors.New("not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleUpload accepts either a multipart form with a "file" field or a raw
// application/pdf body named by the filename query parameter. It returns
// once ingestion has finished.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := s.cfg.Ingest.MaxUploadBytes
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	}

	data, filename, err := readUpload(r, limit)
	if err != nil {
		ctxzap.Warn(ctx, "reject upload", zap.Error(err))
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			err = fmt.Errorf("%w: upload exceeds %d bytes", util.ErrInvalidFormat, limit)
		case !errors.Is(err, errBadRequest):
			err = fmt.Errorf("%w: %w", errBadRequest, err)
		}
		writeErr(w, statusFor(err), err)
		return
	}

	if limit > 0 && int64(len(data)) > limit {
		err := fmt.Errorf("%w: upload exceeds %d bytes", util.ErrInvalidFormat, limit)
		writeErr(w, statusFor(err), err)
		return
	}

	doc, err := s.backend.Ingest(ctx, data, filename)
	if err != nil {
		ctxzap.Error(ctx, "ingest failed", zap.String("filename", filename), zap.Error(err))
		if doc.DocumentID != "" {
			writeErrWith(w, statusFor(err), err, map[string]any{"document": doc})
			return
		}
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// maxBatchFiles caps the file parts accepted by one batch upload.
const maxBatchFiles = 20

type batchResult struct {
	Filename string           `json:"filename"`
	Document *models.Document `json:"document,omitempty"`
	Error    map[string]any   `json:"error,omitempty"`
}

// handleUploadBatch ingests every "file" part of a multipart upload in order.
// Each file gets its own result; one bad file does not fail the others.
func (s *Server) handleUploadBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := s.cfg.Ingest.MaxUploadBytes
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit*maxBatchFiles+1<<20)
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("%w: batch uploads must be multipart/form-data", errBadRequest))
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			err = fmt.Errorf("%w: batch exceeds %d bytes", util.ErrInvalidFormat, tooBig.Limit)
		} else {
			err = fmt.Errorf("%w: parse multipart: %w", errBadRequest, err)
		}
		writeErr(w, statusFor(err), err)
		return
	}
	files := r.MultipartForm.File["file"]
	switch {
	case len(files) == 0:
		writeErr(w, http.StatusBadRequest, fmt.Errorf("%w: no file provided", errBadRequest))
		return
	case len(files) > maxBatchFiles:
		writeErr(w, http.StatusBadRequest, fmt.Errorf("%w: at most %d files per batch, got %d", errBadRequest, maxBatchFiles, len(files)))
		return
	}

	results := make([]batchResult, 0, len(files))
	indexed := 0
	for _, fh := range files {
		res := batchResult{Filename: filepath.Base(fh.Filename)}
		doc, err := s.ingestPart(ctx, fh, limit)
		if doc.DocumentID != "" {
			res.Document = &doc
		}
		if err != nil {
			ctxzap.Warn(ctx, "batch file failed", zap.String("filename", res.Filename), zap.Error(err))
			apiErr := toAPIError(statusFor(err), err)
			res.Error = map[string]any{"code": apiErr.Code, "type": apiErr.Type, "message": apiErr.Message}
		} else {
			indexed++
		}
		results = append(results, res)
		if ctx.Err() != nil {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"indexed": indexed,
		"failed":  len(results) - indexed,
	})
}

func (s *Server) ingestPart(ctx context.Context, fh *multipart.FileHeader, limit int64) (models.Document, error) {
	if limit > 0 && fh.Size > limit {
		return models.Document{}, fmt.Errorf("%w: upload exceeds %d bytes", util.ErrInvalidFormat, limit)
	}
	f, err := fh.Open()
	if err != nil {
		return models.Document{}, fmt.Errorf("%w: open part: %w", errBadRequest, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return models.Document{}, fmt.Errorf("%w: read part: %w", errBadRequest, err)
	}
	return s.backend.Ingest(ctx, data, filepath.Base(fh.Filename))
}

func readUpload(r *http.Request, limit int64) ([]byte, string, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		maxMem := limit
		if maxMem <= 0 {
			maxMem = 32 << 20
		}
		if err := r.ParseMultipartForm(maxMem); err != nil {
			return nil, "", fmt.Errorf("parse multipart: %w", err)
		}
		f, fh, err := r.FormFile("file")
		if err != nil {
			return nil, "", fmt.Errorf("%w: no file provided", errBadRequest)
		}
		defer f.Close()
		b, err := io.ReadAll(f)
		if err != nil {
			return nil, "", fmt.Errorf("read upload: %w", err)
		}
		return b, filepath.Base(fh.Filename), nil
	}
	name := strings.TrimSpace(r.URL.Query().Get("filename"))
	if name == "" {
		return nil, "", fmt.Errorf("%w: filename is required for raw uploads", errBadRequest)
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	return b, name, nil
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.backend.Document(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	ref, err := s.backend.DownloadReference(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	if r.URL.Query().Get("redirect") == "1" {
		http.Redirect(w, r, ref.URL, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

type queryRequest struct {
	Question    string   `json:"question"`
	TopK        int      `json:"top_k"`
	DocumentIDs []string `json:"document_ids"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("%w: invalid json: %v", errBadRequest, err))
		return
	}
	start := time.Now()
	ans, err := s.backend.Query(r.Context(), models.Query{
		Text:   req.Question,
		TopK:   req.TopK,
		Filter: models.QueryFilter{DocumentIDs: req.DocumentIDs},
	})
	if err != nil {
		ctxzap.Error(r.Context(), "query failed", zap.Error(err))
		writeErr(w, statusFor(err), err)
		return
	}
	ctxzap.Info(r.Context(), "query served", zap.Int("sources", len(ans.Sources)), zap.Duration("took", time.Since(start)))
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path, err := s.files.Open(chi.URLParam(r, "*"), q.Get("exp"), q.Get("sig"))
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

var _ SignedFiles = (*blob.FSStore)(nil)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeErrWith(w, code, err, nil)
}

func writeErrWith(w http.ResponseWriter, code int, err error, extra map[string]any) {
	apiErr := toAPIError(code, err)
	body := map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"type":    apiErr.Type,
			"message": apiErr.Message,
		},
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, code, body)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

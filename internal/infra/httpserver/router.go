package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	appanalysis "github.com/shivanishrees/malscan/internal/application/analysis"
	domain "github.com/shivanishrees/malscan/internal/domain/analysis"
	"github.com/shivanishrees/malscan/internal/infra/quarantine"
	"github.com/shivanishrees/malscan/internal/infra/reconstruct"
	"github.com/shivanishrees/malscan/internal/middleware"
)

// maxUploadBytes bounds multipart uploads (64 MiB).
const maxUploadBytes = 64 << 20

type Router struct {
	svc          *appanalysis.Service
	quarantine   *quarantine.Store
	rebuilder    *reconstruct.Rebuilder
	uploadDir    string
	allowedTypes []string
	log          *logrus.Logger
}

func NewRouter(svc *appanalysis.Service, q *quarantine.Store, rb *reconstruct.Rebuilder, uploadDir string, allowedTypes []string, log *logrus.Logger) http.Handler {
	r := &Router{svc: svc, quarantine: q, rebuilder: rb, uploadDir: uploadDir, allowedTypes: allowedTypes, log: log}
	mux := chi.NewRouter()

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/analyses", r.wrap(r.handleUpload))
		rt.Post("/reconstruct", r.wrap(r.handleReconstruct))
		rt.Post("/analyses/hash", r.wrap(r.handleInitiateByHash))
		rt.Get("/analyses/latest", r.wrap(r.handleLatest))
		rt.Get("/analyses/{id}", r.wrap(r.handleStatus))
		rt.Get("/modules", r.wrap(r.handleModules))
		rt.Delete("/quarantine/{hash}", r.wrap(r.handleSecureDelete))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			switch {
			case domain.IsInvalidRequest(err):
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, domain.ErrNotFound):
				writeError(w, http.StatusNotFound, "not found")
			default:
				r.log.WithError(err).Error("request failed")
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

// POST /v1/analyses accepts a multipart upload. The file is hashed and quarantined
// server-side, then analysis starts in the background.
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		return &domain.InvalidRequestError{Field: "file", Reason: "invalid multipart body"}
	}

	file, header, err := req.FormFile("file")
	if err != nil {
		return &domain.InvalidRequestError{Field: "file", Reason: "file part is required"}
	}
	defer file.Close()

	fileName := middleware.SanitizeString(header.Filename)
	if err := middleware.ValidateFileName(fileName); err != nil {
		return &domain.InvalidRequestError{Field: "file_name", Reason: err.Error()}
	}

	fileType := declaredType(header, fileName)
	if err := middleware.ValidateFileType(fileType, r.allowedTypes); err != nil {
		return &domain.InvalidRequestError{Field: "file_type", Reason: err.Error()}
	}

	hash, tmpPath, size, err := quarantine.HashReader(file, r.uploadDir)
	if err != nil {
		return fmt.Errorf("spool upload: %w", err)
	}

	if _, err := r.quarantine.Quarantine(req.Context(), tmpPath, hash, fileName, "uploaded for analysis"); err != nil {
		return err
	}

	fd := domain.FileDescriptor{Hash: hash, Name: fileName, Size: size, Type: fileType}
	res, err := r.svc.Initiate(req.Context(), fd, map[string]string{"source": "upload"})
	if err != nil {
		return err
	}

	middleware.IncrementAnalyses()
	return writeJSON(w, http.StatusAccepted, map[string]any{
		"id":        res.ID,
		"status":    res.Status,
		"file_hash": hash,
		"reused":    res.Reused,
	})
}

// POST /v1/reconstruct accepts a multipart upload and answers with a
// clean rebuilt copy. The original never leaves quarantine; only the
// reconstruction is usable afterwards.
func (r *Router) handleReconstruct(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		return &domain.InvalidRequestError{Field: "file", Reason: "invalid multipart body"}
	}

	file, header, err := req.FormFile("file")
	if err != nil {
		return &domain.InvalidRequestError{Field: "file", Reason: "file part is required"}
	}
	defer file.Close()

	fileName := middleware.SanitizeString(header.Filename)
	if err := middleware.ValidateFileName(fileName); err != nil {
		return &domain.InvalidRequestError{Field: "file_name", Reason: err.Error()}
	}

	hash, tmpPath, _, err := quarantine.HashReader(file, r.uploadDir)
	if err != nil {
		return fmt.Errorf("spool upload: %w", err)
	}

	safePath, err := r.rebuilder.Rebuild(tmpPath, fileName)
	if errors.Is(err, reconstruct.ErrUnsupportedType) {
		return &domain.InvalidRequestError{Field: "file_type", Reason: err.Error()}
	}
	if err != nil {
		return err
	}

	if _, err := r.quarantine.Quarantine(req.Context(), tmpPath, hash, fileName, "reconstruction source"); err != nil {
		return err
	}

	return writeJSON(w, http.StatusOK, map[string]string{
		"safe_file": safePath,
		"file_hash": hash,
	})
}

// POST /v1/analyses/hash initiates from a pre-computed descriptor.
func (r *Router) handleInitiateByHash(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		FileHash string            `json:"file_hash"`
		FileName string            `json:"file_name"`
		FileSize int64             `json:"file_size"`
		FileType string            `json:"file_type"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return &domain.InvalidRequestError{Field: "body", Reason: "invalid JSON"}
	}
	if err := middleware.ValidateHash(body.FileHash); err != nil {
		return &domain.InvalidRequestError{Field: "file_hash", Reason: err.Error()}
	}

	fd := domain.FileDescriptor{
		Hash: strings.ToLower(body.FileHash),
		Name: middleware.SanitizeString(body.FileName),
		Size: body.FileSize,
		Type: strings.ToLower(body.FileType),
	}
	res, err := r.svc.Initiate(req.Context(), fd, body.Metadata)
	if err != nil {
		return err
	}

	middleware.IncrementAnalyses()
	return writeJSON(w, http.StatusAccepted, res)
}

// GET /v1/analyses/{id}
func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	record, err := r.svc.Status(req.Context(), domain.AnalysisID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, record)
}

// GET /v1/analyses/latest?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	list, err := r.svc.Latest(req.Context(), middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/modules lists the registered modules.
func (r *Router) handleModules(w http.ResponseWriter, _ *http.Request) error {
	return writeJSON(w, http.StatusOK, map[string]any{"modules": r.svc.ModuleNames()})
}

// DELETE /v1/quarantine/{hash} securely destroys a quarantined original.
func (r *Router) handleSecureDelete(w http.ResponseWriter, req *http.Request) error {
	hash := chi.URLParam(req, "hash")
	if err := middleware.ValidateHash(hash); err != nil {
		return &domain.InvalidRequestError{Field: "hash", Reason: err.Error()}
	}
	if _, err := r.quarantine.Meta(hash); err != nil {
		return err
	}
	if err := r.quarantine.SecureDelete(hash); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "file securely deleted from quarantine",
	})
}

func declaredType(header *multipart.FileHeader, fileName string) string {
	if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
}

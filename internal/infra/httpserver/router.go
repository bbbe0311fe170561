package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appsessions "github.com/hirelens/interview-analyzer/internal/application/sessions"
	domai "github.com/hirelens/interview-analyzer/internal/domain/ai"
	"github.com/hirelens/interview-analyzer/internal/domain/files"
	"github.com/hirelens/interview-analyzer/internal/domain/session"
	"github.com/hirelens/interview-analyzer/internal/middleware"
)

// maxMultipartMemory bounds the in-memory part of multipart parsing; larger
// parts spill to temp files.
const maxMultipartMemory = 16 << 20

type Router struct {
	svc    *appsessions.Service
	logger *zap.Logger
}

func NewRouter(svc *appsessions.Service, checkers map[string]middleware.HealthChecker, logger *zap.Logger) http.Handler {
	r := &Router{svc: svc, logger: logger}
	mux := chi.NewRouter()

	mux.Get("/health", middleware.HealthHandler(checkers))
	mux.Get("/livez", middleware.LivenessHandler)

	mux.Route("/v1/sessions", func(rt chi.Router) {
		rt.Post("/", r.wrap(r.handleCreate))
		rt.Get("/{id}", r.wrap(r.handleGet))
		rt.Post("/{id}/stages/{stage}", r.wrap(r.handleRunStage))
		rt.Post("/{id}/stages/{stage}/retry", r.wrap(r.handleRetry))
		rt.Post("/{id}/stages/{stage}/fallback", r.wrap(r.handleForceFallback))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// errorResponse is the uniform failure body. The hints let a client offer
// "retry" and "use fallback" affordances without seeing provider error codes.
type errorResponse struct {
	Error          string   `json:"error"`
	CanRetry       bool     `json:"can_retry"`
	CanUseFallback bool     `json:"can_use_fallback"`
	Missing        []string `json:"missing,omitempty"`
}

func (rt *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}

		resp := errorResponse{Error: err.Error()}
		status := http.StatusInternalServerError

		var pre *session.PreconditionError
		switch {
		case errors.Is(err, session.ErrNotFound):
			status = http.StatusNotFound
		case errors.As(err, &pre):
			status = http.StatusConflict
			for _, k := range pre.Missing {
				resp.Missing = append(resp.Missing, string(k))
			}
		case errors.Is(err, appsessions.ErrInvalidInput):
			status = http.StatusBadRequest
		case errors.Is(err, files.ErrTooLarge), errors.Is(err, domai.ErrPayloadTooLarge):
			status = http.StatusRequestEntityTooLarge
		case errors.Is(err, domai.ErrInvalidRequest):
			status = http.StatusBadRequest
		case errors.Is(err, domai.ErrRateLimited):
			status = http.StatusTooManyRequests
			resp.CanRetry = true
		case errors.Is(err, domai.ErrOverloaded):
			status = http.StatusBadGateway
			resp.CanUseFallback = true
		case errors.Is(err, domai.ErrExhausted), errors.Is(err, domai.ErrMalformedResponse):
			status = http.StatusBadGateway
			resp.CanRetry = true
			resp.CanUseFallback = true
		}

		rt.logger.Warn("request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
		writeJSON(w, status, resp)
	}
}

// POST /v1/sessions
// Multipart form: media (file), cv (file), job_description (text).
func (rt *Router) handleCreate(w http.ResponseWriter, req *http.Request) error {
	if err := req.ParseMultipartForm(maxMultipartMemory); err != nil {
		return fmt.Errorf("parse multipart form: %w: %w", err, appsessions.ErrInvalidInput)
	}
	defer req.MultipartForm.RemoveAll()

	media, mediaHdr, err := req.FormFile("media")
	if err != nil {
		return fmt.Errorf("media file is required: %w", appsessions.ErrInvalidInput)
	}
	defer media.Close()

	cv, cvHdr, err := req.FormFile("cv")
	if err != nil {
		return fmt.Errorf("cv file is required: %w", appsessions.ErrInvalidInput)
	}
	defer cv.Close()

	if err := middleware.ValidateFilename(mediaHdr.Filename); err != nil {
		return fmt.Errorf("media: %w: %w", err, appsessions.ErrInvalidInput)
	}
	if err := middleware.ValidateFilename(cvHdr.Filename); err != nil {
		return fmt.Errorf("cv: %w: %w", err, appsessions.ErrInvalidInput)
	}
	jd := middleware.SanitizeString(req.FormValue("job_description"))
	if err := middleware.ValidateJobDescription(jd); err != nil {
		return fmt.Errorf("%w: %w", err, appsessions.ErrInvalidInput)
	}

	sess, err := rt.svc.Create(req.Context(), appsessions.CreateCommand{
		MediaFilename:  mediaHdr.Filename,
		Media:          media,
		CVFilename:     cvHdr.Filename,
		CV:             cv,
		JobDescription: jd,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, sess)
	return nil
}

// GET /v1/sessions/{id}
func (rt *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id, err := sessionID(req)
	if err != nil {
		return err
	}
	sess, err := rt.svc.Get(req.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, sess)
	return nil
}

// POST /v1/sessions/{id}/stages/{stage}
func (rt *Router) handleRunStage(w http.ResponseWriter, req *http.Request) error {
	id, stage, err := stageParams(req)
	if err != nil {
		return err
	}
	out, err := rt.svc.RunStage(req.Context(), id, stage)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

// POST /v1/sessions/{id}/stages/{stage}/retry
func (rt *Router) handleRetry(w http.ResponseWriter, req *http.Request) error {
	id, stage, err := stageParams(req)
	if err != nil {
		return err
	}
	out, err := rt.svc.RetryStage(req.Context(), id, stage)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

// POST /v1/sessions/{id}/stages/{stage}/fallback
func (rt *Router) handleForceFallback(w http.ResponseWriter, req *http.Request) error {
	id, stage, err := stageParams(req)
	if err != nil {
		return err
	}
	out, err := rt.svc.ForceFallback(req.Context(), id, stage)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func sessionID(req *http.Request) (string, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		return "", fmt.Errorf("%w: %w", err, appsessions.ErrInvalidInput)
	}
	return id, nil
}

func stageParams(req *http.Request) (string, session.Stage, error) {
	id, err := sessionID(req)
	if err != nil {
		return "", "", err
	}
	stage, ok := session.ParseStage(chi.URLParam(req, "stage"))
	if !ok {
		return "", "", fmt.Errorf("unknown stage %q: %w", chi.URLParam(req, "stage"), appsessions.ErrInvalidInput)
	}
	return id, stage, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"safeguardd/internal/assistant"
	"safeguardd/internal/infer"
	"safeguardd/internal/session"
	"safeguardd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Model() types.ModelResponse
	StartDownload() error
	DeleteModel() error
	Classify(text string) types.ClassifyResponse
	Generate(ctx context.Context, req types.GenerateRequest, w io.Writer, flush func()) error
	Status() types.StatusResponse
	Ready() bool
}

// NewMux builds the chi router for the daemon.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	// getModel godoc
	// @Summary  Model artifact and acquisition state
	// @Produce  json
	// @Success  200 {object} types.ModelResponse
	// @Router   /model [get]
	r.Get("/model", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Model()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	// startDownload godoc
	// @Summary  Start (or no-op resume) the model artifact download
	// @Produce  json
	// @Success  202 {object} types.ModelResponse
	// @Router   /model/download [post]
	r.Post("/model/download", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.StartDownload(); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(svc.Model())
	})

	// deleteModel godoc
	// @Summary  Delete the model artifact (cancels an in-flight download)
	// @Success  204
	// @Router   /model [delete]
	r.Delete("/model", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteModel(); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	// classify godoc
	// @Summary  Emergency keyword classification
	// @Accept   json
	// @Produce  json
	// @Param    request body types.ClassifyRequest true "text to classify"
	// @Success  200 {object} types.ClassifyResponse
	// @Failure  400 {object} types.ErrorResponse
	// @Router   /classify [post]
	r.Post("/classify", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.ClassifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			writeJSONError(w, http.StatusBadRequest, "text is required")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(svc.Classify(req.Text))
	})

	// generate godoc
	// @Summary  Run one compliance-checked generation, streamed as NDJSON
	// @Accept   json
	// @Produce  application/x-ndjson
	// @Param    request body types.GenerateRequest true "generation request"
	// @Success  200 {object} types.GenerateResult
	// @Failure  400 {object} types.ErrorResponse
	// @Failure  409 {object} types.ErrorResponse
	// @Failure  503 {object} types.ErrorResponse
	// @Router   /generate [post]
	r.Post("/generate", func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeJSONError(w, http.StatusBadRequest, "prompt is required")
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		var flush func()
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}
		start := time.Now()
		writer := io.Writer(w)
		lvl := requestLogLevel(r)
		if lvl >= LevelDebug {
			writer = io.MultiWriter(w, &loggingLineWriter{})
		}
		if lvl >= LevelInfo {
			logGenerate(r, "generate start", 0, 0, nil)
		}
		// Join server base context with request context so shutdown and
		// client disconnect both cancel the generation.
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if generateTimeout > 0 {
			var tcancel context.CancelFunc
			joinedCtx, tcancel = context.WithTimeout(joinedCtx, time.Duration(generateTimeout)*time.Second)
			defer tcancel()
		}
		if err := svc.Generate(joinedCtx, req, writer, flush); err != nil {
			// Client disconnect or shutdown: nothing left to write.
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := statusForError(err)
			if status == http.StatusConflict {
				IncrementBackpressure("session_active")
			}
			writeJSONError(w, status, err.Error())
			if lvl >= LevelInfo {
				logGenerate(r, "generate end", status, time.Since(start), err)
			}
			return
		}
		if lvl >= LevelInfo {
			logGenerate(r, "generate end", http.StatusOK, time.Since(start), nil)
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	// status godoc
	// @Summary  Core status snapshot
	// @Produce  json
	// @Success  200 {object} types.StatusResponse
	// @Router   /status [get]
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// statusForError maps well-known core errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case assistant.IsInvalidInput(err):
		return http.StatusBadRequest
	case session.IsSessionActive(err):
		return http.StatusConflict
	case infer.IsNotLoaded(err) || infer.IsBackendUnavailable(err):
		return http.StatusServiceUnavailable
	case infer.IsTimeout(err):
		return http.StatusGatewayTimeout
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// logGenerate writes one structured (or stdlib) log line for the generate
// endpoint lifecycle.
func logGenerate(r *http.Request, msg string, status int, dur time.Duration, err error) {
	if zlog != nil {
		z := zlog.Info().Str("path", r.URL.Path)
		if status != 0 {
			z = z.Int("status", status)
		}
		if dur != 0 {
			z = z.Dur("dur", dur)
		}
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		if err != nil {
			z = z.Err(err)
		}
		z.Msg(msg)
		return
	}
	if err != nil {
		log.Printf("%s path=%s status=%d dur=%s err=%v", msg, r.URL.Path, status, dur, err)
		return
	}
	log.Printf("%s path=%s status=%d dur=%s", msg, r.URL.Path, status, dur)
}

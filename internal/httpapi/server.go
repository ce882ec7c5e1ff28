package httpapi

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"runnerd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() ([]types.Model, error)
	Load(ctx context.Context, req types.LoadRequest) (types.LoadResponse, error)
	Loaded(ctx context.Context) (bool, error)
	// Generate streams NDJSON lines to w. Errors returned before anything
	// was written are reported with an HTTP status instead.
	Generate(ctx context.Context, req types.GenerateRequest, w io.Writer, flush func()) error
	Status() types.StatusResponse
	Ready() bool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewMux builds the HTTP router.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(inflightMiddleware)
		r.Get("/models", handleModels(svc))
		r.Post("/load", handleLoad(svc))
		r.Get("/loaded", handleLoaded(svc))
		r.Post("/generate", handleGenerate(svc))
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) { writeJSON(w, svc.Status()) })
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
		_, _ = w.Write([]byte("no model loaded"))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)
	return r
}

// handleModels godoc
// @Summary      List models
// @Description  Lists packaged models discovered in the models directory.
// @Tags         models
// @Produce      json
// @Success      200  {object}  types.ModelsResponse
// @Failure      500  {object}  types.ErrorResponse
// @Router       /models [get]
func handleModels(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models, err := svc.ListModels()
		if err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, types.ModelsResponse{Models: models})
	}
}

// handleLoad godoc
// @Summary      Load a model
// @Description  Loads weights and tokenizer into the engine, either by registry id or by explicit paths.
// @Tags         models
// @Accept       json
// @Produce      json
// @Param        body  body      types.LoadRequest  true  "Model to load"
// @Success      200   {object}  types.LoadResponse
// @Failure      400   {object}  types.ErrorResponse
// @Failure      404   {object}  types.ErrorResponse
// @Failure      502   {object}  types.ErrorResponse
// @Failure      503   {object}  types.ErrorResponse
// @Router       /load [post]
func handleLoad(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.LoadRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		start := time.Now()
		resp, err := svc.Load(r.Context(), req)
		if err != nil {
			status := statusFor(err)
			if requestLogLevel(r) >= LevelError {
				reqLog(r).Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("load failed")
			}
			writeJSONError(w, status, err.Error())
			return
		}
		if requestLogLevel(r) >= LevelInfo {
			reqLog(r).Str("handle", resp.Handle).Dur("dur", time.Since(start)).Msg("model loaded")
		}
		writeJSON(w, resp)
	}
}

// handleLoaded godoc
// @Summary      Check whether a model is loaded
// @Description  Queries the engine live; a fresh server reports false.
// @Tags         models
// @Produce      json
// @Success      200  {object}  types.LoadedResponse
// @Failure      502  {object}  types.ErrorResponse
// @Router       /loaded [get]
func handleLoaded(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, err := svc.Loaded(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, types.LoadedResponse{Loaded: ok})
	}
}

// handleGenerate godoc
// @Summary      Generate text
// @Description  Streams NDJSON: one {"token"} line per token, then {"done":true,...} or {"error":...}.
// @Tags         generate
// @Accept       json
// @Produce      application/x-ndjson
// @Param        body  body      types.GenerateRequest  true  "Prompt and options"
// @Success      200   {object}  types.TokenLine
// @Failure      400   {object}  types.ErrorResponse
// @Failure      409   {object}  types.ErrorResponse
// @Failure      429   {object}  types.ErrorResponse
// @Failure      502   {object}  types.ErrorResponse
// @Router       /generate [post]
func handleGenerate(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.GenerateRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		var flush func()
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}
		sw := &startedWriter{w: w}
		writer := io.Writer(sw)
		lvl := requestLogLevel(r)
		if lvl >= LevelDebug {
			writer = io.MultiWriter(sw, &loggingLineWriter{rid: middleware.GetReqID(r.Context())})
		}
		start := time.Now()
		if lvl >= LevelInfo {
			reqLog(r).Int("prompt_len", len(req.Prompt)).Msg("generate start")
		}
		// Shutdown cancels the wait too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		err := svc.Generate(ctx, req, writer, flush)
		switch {
		case err == nil:
			if lvl >= LevelInfo {
				reqLog(r).Int("status", http.StatusOK).Dur("dur", time.Since(start)).Msg("generate end")
			}
		case sw.started:
			// The failure was already streamed as an error line.
			if lvl >= LevelError {
				reqLog(r).Int("status", http.StatusOK).Dur("dur", time.Since(start)).Err(err).Msg("generate failed mid-stream")
			}
		case r.Context().Err() != nil:
			return
		default:
			status := statusFor(err)
			if status == http.StatusTooManyRequests {
				IncrementBackpressure("concurrent_generation")
			}
			if lvl >= LevelError {
				reqLog(r).Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("generate rejected")
			}
			writeJSONError(w, status, err.Error())
		}
	}
}

// decodeJSON enforces the content type and body limit, decodes into v and
// validates it. It writes the error response and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	return "invalid field " + fe.Field() + ": " + fe.Tag()
}

// startedWriter records whether any bytes reached the client. Once they
// have, the status line is committed.
type startedWriter struct {
	w       io.Writer
	started bool
}

func (s *startedWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		if rw, ok := s.w.(http.ResponseWriter); ok && !s.started {
			rw.Header().Set("Content-Type", "application/x-ndjson")
		}
		s.started = true
	}
	return s.w.Write(p)
}

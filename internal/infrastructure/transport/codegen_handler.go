package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"codegen/app/usecase"
	"codegen/internal/domain/entity"
	"codegen/internal/infrastructure/highlight"
	"codegen/internal/infrastructure/metrics"
)

const (
	maxBodyBytes = 64 << 10
	maxWSMessage = 16 << 10
)

type CodegenHandler struct {
	codeService usecase.CodeGenerationUseCase
	highlighter *highlight.Highlighter

	// configErr is shown on every page while the generator is unusable.
	configErr error
	logger    zerolog.Logger
	upgrader  websocket.Upgrader
}

func NewCodegenHandler(
	codeService usecase.CodeGenerationUseCase,
	highlighter *highlight.Highlighter,
	configErr error,
	logger zerolog.Logger,
) *CodegenHandler {
	if highlighter == nil {
		highlighter = highlight.New(highlight.DefaultStyle)
	}
	return &CodegenHandler{
		codeService: codeService,
		highlighter: highlighter,
		configErr:   configErr,
		logger:      logger.With().Str("component", "transport").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// withMetrics labels requests by route template so ids do not blow up cardinality.
func (h *CodegenHandler) withMetrics(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rw, r)

		metrics.ObserveHTTPRequest(r.Method, path, rw.status, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *CodegenHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.withMetrics(h.handleIndex)).Methods(http.MethodGet)
	r.HandleFunc("/", h.withMetrics(h.handleSubmit)).Methods(http.MethodPost)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/generate", h.withMetrics(h.handleGenerate)).Methods(http.MethodPost)
	api.HandleFunc("/generations", h.withMetrics(h.handleListGenerations)).Methods(http.MethodGet)
	api.HandleFunc("/generations/{id}", h.withMetrics(h.handleGetGeneration)).Methods(http.MethodGet)
	api.HandleFunc("/generations/{id}", h.withMetrics(h.handleDeleteGeneration)).Methods(http.MethodDelete)
	api.HandleFunc("/health", h.withMetrics(h.handleHealth)).Methods(http.MethodGet)
	// The upgrade needs the raw ResponseWriter, so no status recorder here.
	api.HandleFunc("/ws", h.handleWS).Methods(http.MethodGet)

	// Prometheus
	r.Handle("/metrics", promhttp.Handler())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// statusForError maps a generation failure onto an HTTP status.
func statusForError(err error) int {
	switch entity.KindOf(err) {
	case entity.ErrKindValidation:
		return http.StatusBadRequest
	case entity.ErrKindConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

type generateReq struct {
	Description string `json:"description"`
}

type generateResp struct {
	ID         string                  `json:"id"`
	Status     entity.GenerationStatus `json:"status"`
	Model      string                  `json:"model"`
	Code       string                  `json:"code,omitempty"`
	HTML       string                  `json:"html,omitempty"`
	Error      string                  `json:"error,omitempty"`
	Kind       entity.ErrorKind        `json:"kind,omitempty"`
	DurationMS int64                   `json:"duration_ms"`
}

func (h *CodegenHandler) response(gen *entity.Generation, withHTML bool) generateResp {
	resp := generateResp{
		ID:         gen.ID,
		Status:     gen.Status,
		Model:      gen.Model,
		Error:      gen.Error,
		Kind:       gen.ErrorKind,
		DurationMS: gen.Duration.Milliseconds(),
	}
	if gen.Status == entity.GenerationSucceeded {
		resp.Code = gen.Code
		if withHTML {
			resp.HTML = string(h.highlightCode(gen.Code))
		}
	}
	return resp
}

// POST /api/v1/generate
func (h *CodegenHandler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad request body: %w", err))
		return
	}

	gen, err := h.codeService.Generate(r.Context(), req.Description)
	if err != nil {
		writeJSON(w, statusForError(err), h.response(gen, false))
		return
	}
	writeJSON(w, http.StatusOK, h.response(gen, r.URL.Query().Get("html") != "false"))
}

// GET /api/v1/generations
func (h *CodegenHandler) handleListGenerations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	gens, err := h.codeService.ListGenerations(r.Context(), limit)
	if err != nil {
		h.writeHistoryError(w, err)
		return
	}
	if gens == nil {
		gens = []*entity.Generation{}
	}
	writeJSON(w, http.StatusOK, gens)
}

// GET /api/v1/generations/{id}
func (h *CodegenHandler) handleGetGeneration(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	gen, err := h.codeService.GetGeneration(r.Context(), id)
	if err != nil {
		h.writeHistoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gen)
}

// DELETE /api/v1/generations/{id}
func (h *CodegenHandler) handleDeleteGeneration(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.codeService.DeleteGeneration(r.Context(), id); err != nil {
		h.writeHistoryError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *CodegenHandler) writeHistoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, usecase.ErrHistoryDisabled), errors.Is(err, usecase.ErrGenerationNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		h.logger.Error().Err(err).Msg("history request failed")
		writeError(w, http.StatusInternalServerError, errors.New("history store unavailable"))
	}
}

// GET /api/v1/health
func (h *CodegenHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"ok":         true,
		"ts":         time.Now().UTC(),
		"configured": h.configErr == nil,
	}
	writeJSON(w, http.StatusOK, status)
}

// GET /api/v1/ws
//
// Each text frame is a {"description": ...} request answered by one
// generateResp frame. Requests on a connection are handled in order.
func (h *CodegenHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.IncError("transport", "ws_upgrade")
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	metrics.IncWSConnections()
	defer metrics.DecWSConnections()

	conn.SetReadLimit(maxWSMessage)
	ctx := r.Context()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		var req generateReq
		if err := json.Unmarshal(msg, &req); err != nil {
			if werr := conn.WriteJSON(map[string]string{"error": "bad request body"}); werr != nil {
				return
			}
			continue
		}

		gen, _ := h.codeService.Generate(ctx, req.Description)
		if err := conn.WriteJSON(h.response(gen, true)); err != nil {
			metrics.IncError("transport", "ws_write")
			h.logger.Warn().Err(err).Msg("websocket write failed")
			return
		}
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mdxengine/internal/apperr"
	"github.com/starford/mdxengine/internal/models"
	"github.com/starford/mdxengine/internal/registry"
	"github.com/starford/mdxengine/internal/render"
	"github.com/starford/mdxengine/internal/sandbox"
	"github.com/starford/mdxengine/internal/serializer"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 64 << 20

// Renderer is the engine surface the API needs.
type Renderer interface {
	Render(ctx context.Context, req *models.Request) (*models.BatchResult, error)
	Components() []registry.Definition
	Stats() sandbox.Stats
}

// Handler holds API route handlers.
type Handler struct {
	engine  Renderer
	maxBody int64
}

// NewHandler creates a new Handler.
func NewHandler(engine Renderer) *Handler {
	return &Handler{engine: engine, maxBody: DefaultMaxBodyBytes}
}

// batchStatus maps a batch result to an HTTP status: 200 when nothing
// failed, 422 when everything failed, 207 otherwise.
func batchStatus(res *models.BatchResult) int {
	switch {
	case res.Failed == 0:
		return http.StatusOK
	case res.Succeeded == 0:
		return http.StatusUnprocessableEntity
	}
	return http.StatusMultiStatus
}

// Render handles POST /api/render and POST /api/render/{output}.
//
//	@Summary		Render a batch of MDX documents
//	@Tags			render
//	@Accept			json
//	@Produce		json
//	@Param			output	path		string			false	"Output format override"	Enums(html, javascript, schema, json)
//	@Param			body	body		RenderRequest	true	"Batch request"
//	@Success		200		{object}	RenderResponse
//	@Success		207		{object}	RenderResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	RenderResponse
//	@Security		BearerAuth
//	@Router			/render [post]
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	var req models.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, apperr.ErrInvalidRequest) {
			writeJSON(w, http.StatusBadRequest, errorBody(apperr.Detail(err)))
		} else {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		}
		return
	}

	if output := chi.URLParam(r, "output"); output != "" {
		if _, err := serializer.ParseFormat(output); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		req.Settings.Output = output
	}

	res, err := h.engine.Render(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrInvalidRequest):
			writeJSON(w, http.StatusBadRequest, errorBody(apperr.Detail(err)))
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			writeJSON(w, http.StatusServiceUnavailable, errorBody("request cancelled"))
		default:
			slog.Error("render failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, batchStatus(res), res)
}

// Components handles GET /api/components.
//
//	@Summary		List built-in components
//	@Tags			components
//	@Produce		json
//	@Success		200	{object}	ComponentListResponse
//	@Security		BearerAuth
//	@Router			/components [get]
func (h *Handler) Components(w http.ResponseWriter, _ *http.Request) {
	defs := h.engine.Components()
	items := make([]ComponentInfo, 0, len(defs))
	for _, d := range defs {
		items = append(items, ComponentInfo{Name: d.Name, Docs: d.Docs, Args: d.Args})
	}
	writeJSON(w, http.StatusOK, ComponentListResponse{Components: items})
}

// Inspect handles POST /api/inspect.
//
//	@Summary		List the components and directives a document uses
//	@Tags			render
//	@Accept			json
//	@Produce		json
//	@Param			body	body		InspectRequest	true	"Document to inspect"
//	@Success		200		{object}	InspectResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/inspect [post]
func (h *Handler) Inspect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	var req InspectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Engine == "" {
		req.Engine = models.EngineBase
	}
	if req.Engine != models.EngineBase && req.Engine != models.EngineCustom {
		writeJSON(w, http.StatusBadRequest, errorBody("unknown engine"))
		return
	}

	reg := registry.New(registry.Mode(req.Engine), req.Components, nil)
	ins, err := render.Inspect(req.Document, req.Text, req.Directives, reg)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(apperr.Detail(err)))
		return
	}
	writeJSON(w, http.StatusOK, ins)
}

// Ready handles GET /health/ready and reports pool occupancy.
//
//	@Summary		Readiness probe
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	ReadyResponse
//	@Failure		503	{object}	ReadyResponse
//	@Router			/health/ready [get]
func (h *Handler) Ready(w http.ResponseWriter, _ *http.Request) {
	stats := h.engine.Stats()
	if stats.Closed {
		writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "closed", Pool: stats})
		return
	}
	writeJSON(w, http.StatusOK, ReadyResponse{Status: "ok", Pool: stats})
}

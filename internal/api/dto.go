package api

import (
	"github.com/starford/mdxengine/internal/models"
	"github.com/starford/mdxengine/internal/render"
	"github.com/starford/mdxengine/internal/sandbox"
)

// RenderRequest is the batch request body (aliased from the domain layer).
type RenderRequest = models.Request

// RenderResponse is the batch result (aliased from the domain layer).
type RenderResponse = models.BatchResult

// InspectResponse is the component and directive summary of one document.
type InspectResponse = render.Inspection

// ComponentInfo describes one built-in component.
type ComponentInfo struct {
	Name string `json:"name" example:"Badge" validate:"required"`
	Docs string `json:"docs,omitempty" example:"Inline label."`
	Args any    `json:"args,omitempty"`
}

// ComponentListResponse wraps the built-in component listing.
type ComponentListResponse struct {
	Components []ComponentInfo `json:"components" validate:"required"`
}

// InspectRequest is the request body for inspecting a document.
type InspectRequest struct {
	Document   string   `json:"document" example:"intro.mdx"`
	Text       string   `json:"text" example:"<Badge>new</Badge>" validate:"required"`
	Directives []string `json:"directives,omitempty" example:"data-,on:"`
	Engine     string   `json:"engine,omitempty" example:"base"`
	Components []string `json:"components,omitempty"`
}

// ReadyResponse is returned by the readiness probe.
type ReadyResponse struct {
	Status string        `json:"status" example:"ok" validate:"required"`
	Pool   sandbox.Stats `json:"pool"`
}

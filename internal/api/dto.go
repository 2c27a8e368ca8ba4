package api

import (
	"github.com/starford/scimark/internal/models"
	"github.com/starford/scimark/internal/service"
)

// BuildStatus is the last build (aliased from the service layer).
type BuildStatus = service.Status

// Snippet is a rendered fragment (aliased from the service layer).
type Snippet = service.Snippet

// RenderRequest is the request body for rendering a single fragment.
type RenderRequest struct {
	Kind string  `json:"kind" example:"equation" validate:"required"`
	Body string  `json:"body" example:"e^{i\\pi}+1=0" validate:"required"`
	Zoom float64 `json:"zoom,omitempty" example:"1.6"`
}

// FragmentListResponse wraps paginated fragment listings.
type FragmentListResponse struct {
	Fragments []models.Fragment `json:"fragments" validate:"required"`
	Total     int               `json:"total" example:"42" validate:"required"`
}

// ReferenceListResponse wraps label listings.
type ReferenceListResponse struct {
	References []models.Label `json:"references" validate:"required"`
}

// UploadResponse is returned after a block source upload.
type UploadResponse struct {
	Filename string `json:"filename" example:"setup.tex" validate:"required"`
	Size     int64  `json:"size" example:"1234" validate:"required"`
	Header   string `json:"header" example:"$$latex,setup,Title$$" validate:"required"`
}

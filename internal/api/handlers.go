package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/scimark/internal/service"
)

// Handler holds API route handlers.
type Handler struct {
	svc *service.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Status handles GET /api/status.
//
//	@Summary		Status of the last build
//	@Tags			build
//	@Produce		json
//	@Success		200	{object}	BuildStatus
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Last())
}

// Build handles POST /api/build.
//
//	@Summary		Rebuild the book
//	@Tags			build
//	@Produce		json
//	@Success		200	{object}	BuildStatus
//	@Failure		422	{object}	BuildStatus
//	@Security		BearerAuth
//	@Router			/build [post]
func (h *Handler) Build(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Build(r.Context())
	if err != nil {
		status := statusFor(st.Code)
		if status == http.StatusInternalServerError {
			writeError(w, "build", err)
			return
		}
		writeJSON(w, status, st)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ListFragments handles GET /api/fragments.
//
//	@Summary		List cached fragments
//	@Tags			fragments
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			kind	query		string	false	"Filter by kind"	Enums(equation, latex, gnuplot, gnuplotonly)
//	@Success		200		{object}	FragmentListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/fragments [get]
func (h *Handler) ListFragments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.Fragments(r.Context(), limit, offset, q.Get("kind"))
	if err != nil {
		writeError(w, "list fragments", err)
		return
	}
	writeJSON(w, http.StatusOK, FragmentListResponse{Fragments: items, Total: total})
}

// ListReferences handles GET /api/references.
//
//	@Summary		List or search labels
//	@Tags			references
//	@Produce		json
//	@Param			ns		query		string	false	"Namespace"	Enums(fig, equ, bib)
//	@Param			q		query		string	false	"Search query"
//	@Param			limit	query		int		false	"Max search results"
//	@Success		200		{object}	ReferenceListResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/references [get]
func (h *Handler) ListReferences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if query := q.Get("q"); query != "" {
		limit, _ := strconv.Atoi(q.Get("limit"))
		labels, err := h.svc.SearchLabels(r.Context(), query, limit)
		if err != nil {
			writeError(w, "search references", err)
			return
		}
		writeJSON(w, http.StatusOK, ReferenceListResponse{References: labels})
		return
	}

	labels, err := h.svc.References(r.Context(), q.Get("ns"))
	if err != nil {
		writeError(w, "list references", err)
		return
	}
	writeJSON(w, http.StatusOK, ReferenceListResponse{References: labels})
}

// GetReference handles GET /api/references/{ns}/{label}.
//
//	@Summary		Resolve one label
//	@Tags			references
//	@Produce		json
//	@Param			ns		path		string	true	"Namespace"
//	@Param			label	path		string	true	"Label"
//	@Success		200		{object}	models.Label
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/references/{ns}/{label} [get]
func (h *Handler) GetReference(w http.ResponseWriter, r *http.Request) {
	label, err := h.svc.Resolve(r.Context(), chi.URLParam(r, "ns"), chi.URLParam(r, "label"))
	if err != nil {
		writeError(w, "resolve reference", err)
		return
	}
	writeJSON(w, http.StatusOK, label)
}

// Render handles POST /api/render.
//
//	@Summary		Render a single fragment
//	@Tags			fragments
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RenderRequest	true	"Fragment to render"
//	@Success		200		{object}	Snippet
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/render [post]
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Kind == "" || req.Body == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("kind and body are required"))
		return
	}
	sn, err := h.svc.RenderSnippet(r.Context(), req.Kind, req.Body, req.Zoom)
	if err != nil {
		writeError(w, "render", err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

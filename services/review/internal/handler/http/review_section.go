package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/rakeshshah18/philanzel-sub001/pkg/errors"
	"github.com/rakeshshah18/philanzel-sub001/pkg/httputil"
	"github.com/rakeshshah18/philanzel-sub001/pkg/pagination"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/domain"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/service"
)

// ReviewSectionHandler handles HTTP requests for review section endpoints.
type ReviewSectionHandler struct {
	service *service.ReviewSectionService
	logger  *slog.Logger
}

// NewReviewSectionHandler creates a new review section HTTP handler.
func NewReviewSectionHandler(svc *service.ReviewSectionService, logger *slog.Logger) *ReviewSectionHandler {
	return &ReviewSectionHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// VisibilityRequest is the JSON request body for showing or hiding a review.
type VisibilityRequest struct {
	Visible *bool `json:"visible" validate:"required"`
}

// --- Public handlers ---

// ListActiveSections handles GET /api/v1/review-sections
func (h *ReviewSectionHandler) ListActiveSections(w http.ResponseWriter, r *http.Request) {
	sections, err := h.service.GetActiveSections(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	views := make([]*domain.ReviewSection, 0, len(sections))
	for i := range sections {
		views = append(views, sections[i].PublicView())
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: views})
}

// ListVisibleReviews handles GET /api/v1/review-sections/{id}/reviews
func (h *ReviewSectionHandler) ListVisibleReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := sectionID(w, r)
	if !ok {
		return
	}

	reviews, err := h.service.GetVisibleReviews(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: reviews})
}

// --- Admin handlers ---

// ListSections handles GET /api/v1/admin/review-sections
func (h *ReviewSectionHandler) ListSections(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	filter := service.ListSectionsFilter{Page: params.Page, PerPage: params.PerPage}
	if v := r.URL.Query().Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, r, apperrors.InvalidInput("active must be true or false"))
			return
		}
		filter.ActiveOnly = active
	}

	sections, total, err := h.service.ListSections(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(sections, total, params))
}

// CreateSection handles POST /api/v1/admin/review-sections
func (h *ReviewSectionHandler) CreateSection(w http.ResponseWriter, r *http.Request) {
	var input domain.CreateSectionInput
	if err := httputil.DecodeJSON(w, r, &input); err != nil {
		h.writeError(w, r, err)
		return
	}

	section, err := h.service.CreateSection(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeSection(w, http.StatusCreated, section)
}

// GetSection handles GET /api/v1/admin/review-sections/{id}
func (h *ReviewSectionHandler) GetSection(w http.ResponseWriter, r *http.Request) {
	id, ok := sectionID(w, r)
	if !ok {
		return
	}

	section, err := h.service.GetSection(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeSection(w, http.StatusOK, section)
}

// UpdateSectionMeta handles PATCH /api/v1/admin/review-sections/{id}
func (h *ReviewSectionHandler) UpdateSectionMeta(w http.ResponseWriter, r *http.Request) {
	id, opts, ok := h.writeTarget(w, r)
	if !ok {
		return
	}

	var input domain.UpdateSectionMetaInput
	if err := httputil.DecodeJSON(w, r, &input); err != nil {
		h.writeError(w, r, err)
		return
	}

	section, err := h.service.UpdateSectionMeta(r.Context(), id, input, opts...)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeSection(w, http.StatusOK, section)
}

// ReplaceReviews handles PUT /api/v1/admin/review-sections/{id}/reviews
func (h *ReviewSectionHandler) ReplaceReviews(w http.ResponseWriter, r *http.Request) {
	id, opts, ok := h.writeTarget(w, r)
	if !ok {
		return
	}

	var inputs []domain.ReviewInput
	if err := httputil.DecodeJSON(w, r, &inputs); err != nil {
		h.writeError(w, r, err)
		return
	}

	section, err := h.service.ReplaceReviews(r.Context(), id, inputs, opts...)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeSection(w, http.StatusOK, section)
}

// AddReview handles POST /api/v1/admin/review-sections/{id}/reviews
func (h *ReviewSectionHandler) AddReview(w http.ResponseWriter, r *http.Request) {
	id, opts, ok := h.writeTarget(w, r)
	if !ok {
		return
	}

	var input domain.ReviewInput
	if err := httputil.DecodeJSON(w, r, &input); err != nil {
		h.writeError(w, r, err)
		return
	}

	section, err := h.service.AddReview(r.Context(), id, input, opts...)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeSection(w, http.StatusCreated, section)
}

// UpdateReview handles PATCH /api/v1/admin/review-sections/{id}/reviews/{ref}
func (h *ReviewSectionHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	id, opts, ok := h.writeTarget(w, r)
	if !ok {
		return
	}
	ref, err := domain.ParseReviewRef(chi.URLParam(r, "ref"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var patch domain.ReviewPatch
	if err := httputil.DecodeJSON(w, r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}

	section, err := h.service.UpdateReview(r.Context(), id, ref, patch, opts...)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeSection(w, http.StatusOK, section)
}

// DeleteReview handles DELETE /api/v1/admin/review-sections/{id}/reviews/{ref}
func (h *ReviewSectionHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	id, opts, ok := h.writeTarget(w, r)
	if !ok {
		return
	}
	ref, err := domain.ParseReviewRef(chi.URLParam(r, "ref"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	section, err := h.service.DeleteReview(r.Context(), id, ref, opts...)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeSection(w, http.StatusOK, section)
}

// SetReviewVisibility handles PUT /api/v1/admin/review-sections/{id}/reviews/{ref}/visibility
func (h *ReviewSectionHandler) SetReviewVisibility(w http.ResponseWriter, r *http.Request) {
	id, opts, ok := h.writeTarget(w, r)
	if !ok {
		return
	}
	ref, err := domain.ParseReviewRef(chi.URLParam(r, "ref"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req VisibilityRequest
	if err := httputil.DecodeAndValidate(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	section, err := h.service.SetReviewVisibility(r.Context(), id, ref, *req.Visible, opts...)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeSection(w, http.StatusOK, section)
}

// Recalculate handles POST /api/v1/admin/review-sections/recalculate
func (h *ReviewSectionHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.RecalculateAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: summary})
}

// --- Helpers ---

func sectionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return "", false
	}
	return id.String(), true
}

// writeTarget resolves the section id and an optional If-Match version.
func (h *ReviewSectionHandler) writeTarget(w http.ResponseWriter, r *http.Request) (string, []service.WriteOption, bool) {
	id, ok := sectionID(w, r)
	if !ok {
		return "", nil, false
	}

	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return id, nil, true
	}
	version, err := parseETag(raw)
	if err != nil {
		h.writeError(w, r, apperrors.InvalidInput("If-Match must carry a section version"))
		return "", nil, false
	}
	return id, []service.WriteOption{service.IfVersion(version)}, true
}

func etag(version int64) string {
	return `"` + strconv.FormatInt(version, 10) + `"`
}

// parseETag accepts "3", W/"3" and a bare 3.
func parseETag(v string) (int64, error) {
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, `"`)
	return strconv.ParseInt(v, 10, 64)
}

func writeSection(w http.ResponseWriter, status int, section *domain.ReviewSection) {
	w.Header().Set("ETag", etag(section.Version))
	httputil.WriteJSON(w, status, httputil.Response{Data: section})
}

func (h *ReviewSectionHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, r, err, h.logger)
}

package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakeshshah18/philanzel-sub001/pkg/health"
	pkgkafka "github.com/rakeshshah18/philanzel-sub001/pkg/kafka"
	"github.com/rakeshshah18/philanzel-sub001/pkg/middleware"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/domain"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/event"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/repository/memory"
	"github.com/rakeshshah18/philanzel-sub001/services/review/internal/service"
)

// --- Test Helpers ---

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return newTestRouterWith(t, RouterConfig{})
}

func newTestRouterWith(t *testing.T, cfg RouterConfig) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	producer := event.NewProducer(pkgkafka.NopPublisher{}, logger)
	svc := service.NewReviewSectionService(memory.NewReviewSectionRepository(), producer, logger)
	cfg.ServiceName = "review-service"
	cfg.CORSAllowedOrigins = []string{"http://localhost:5173"}
	return NewRouter(svc, health.NewHandler(), logger, cfg)
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func admin(extra ...string) map[string]string {
	h := map[string]string{
		middleware.UserIDHeader:   "admin-1",
		middleware.UserRoleHeader: "admin",
	}
	for i := 0; i+1 < len(extra); i += 2 {
		h[extra[i]] = extra[i+1]
	}
	return h
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	return env
}

var sectionBody = map[string]any{
	"heading":           "What our clients say",
	"description":       "Reviews collected from Google",
	"writeReviewButton": map[string]any{"url": "https://g.page/r/philanzel/review"},
	"displayOrder":      1,
}

func reviewBody(rating int) map[string]any {
	return map[string]any{
		"userName":           "Asha Mehta",
		"reviewProviderLogo": "/logos/google.png",
		"rating":             rating,
		"reviewText":         "Clear and patient financial advice.",
	}
}

func createSection(t *testing.T, h http.Handler) domain.ReviewSection {
	t.Helper()
	rec := doRequest(t, h, http.MethodPost, "/api/v1/admin/review-sections", sectionBody, admin())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.ReviewSection](t, rec)
}

// --- Tests ---

func TestAdminRoutes_RequireIdentity(t *testing.T) {
	h := newTestRouter(t)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/admin/review-sections", sectionBody, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/api/v1/admin/review-sections", sectionBody, map[string]string{
		middleware.UserIDHeader:   "user-1",
		middleware.UserRoleHeader: "customer",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateSection_IgnoresDerivedFields(t *testing.T) {
	h := newTestRouter(t)
	body := map[string]any{}
	for k, v := range sectionBody {
		body[k] = v
	}
	body["averageRating"] = 4.9
	body["totalReviewCount"] = 120

	rec := doRequest(t, h, http.MethodPost, "/api/v1/admin/review-sections", body, admin())

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, `"1"`, rec.Header().Get("ETag"))
	got := decode[domain.ReviewSection](t, rec)
	assert.Zero(t, got.AverageRating)
	assert.Zero(t, got.TotalReviewCount)
	assert.Equal(t, domain.ProviderGoogle, got.ReviewProvider)
	assert.Equal(t, domain.DefaultWriteReviewText, got.WriteReviewButton.Text)
}

func TestCreateSection_ValidationError(t *testing.T) {
	h := newTestRouter(t)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/admin/review-sections", map[string]any{"heading": "x"}, admin())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "description")
}

func TestCreateSection_UnsupportedMediaType(t *testing.T) {
	h := newTestRouter(t)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/admin/review-sections", sectionBody,
		admin("Content-Type", "text/plain"))

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestAddReview_UpdatesAggregate(t *testing.T) {
	h := newTestRouter(t)
	section := createSection(t, h)
	path := "/api/v1/admin/review-sections/" + section.ID + "/reviews"

	rec := doRequest(t, h, http.MethodPost, path, reviewBody(5), admin())
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doRequest(t, h, http.MethodPost, path, reviewBody(4), admin())
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, `"3"`, rec.Header().Get("ETag"))
	got := decode[domain.ReviewSection](t, rec)
	assert.Equal(t, 4.5, got.AverageRating)
	assert.Equal(t, 2, got.TotalReviewCount)
}

func TestAddReview_InvalidRating(t *testing.T) {
	h := newTestRouter(t)
	section := createSection(t, h)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/admin/review-sections/"+section.ID+"/reviews", reviewBody(0), admin())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeError(t, rec)
	assert.Contains(t, env.Error.Fields, "rating")
}

func TestIfMatch_StaleVersionConflicts(t *testing.T) {
	h := newTestRouter(t)
	section := createSection(t, h)
	path := "/api/v1/admin/review-sections/" + section.ID + "/reviews"
	rec := doRequest(t, h, http.MethodPost, path, reviewBody(5), admin())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, h, http.MethodDelete, path+"/0", nil, admin("If-Match", `"1"`))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, h, http.MethodDelete, path+"/0", nil, admin("If-Match", `W/"2"`))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[domain.ReviewSection](t, rec)
	assert.Empty(t, got.Reviews)
	assert.Zero(t, got.TotalReviewCount)
}

func TestIfMatch_Malformed(t *testing.T) {
	h := newTestRouter(t)
	section := createSection(t, h)

	rec := doRequest(t, h, http.MethodPatch, "/api/v1/admin/review-sections/"+section.ID,
		map[string]any{"heading": "New"}, admin("If-Match", "abc"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReviewRef_NegativeIndex(t *testing.T) {
	h := newTestRouter(t)
	section := createSection(t, h)

	rec := doRequest(t, h, http.MethodDelete, "/api/v1/admin/review-sections/"+section.ID+"/reviews/-1", nil, admin())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetReviewVisibility(t *testing.T) {
	h := newTestRouter(t)
	section := createSection(t, h)
	path := "/api/v1/admin/review-sections/" + section.ID + "/reviews"
	for _, r := range []int{5, 4, 3} {
		rec := doRequest(t, h, http.MethodPost, path, reviewBody(r), admin())
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doRequest(t, h, http.MethodPut, path+"/2/visibility", map[string]any{}, admin())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Equal(t, "is required", env.Error.Fields["visible"])

	rec = doRequest(t, h, http.MethodPut, path+"/2/visibility", map[string]any{"visible": false}, admin())
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[domain.ReviewSection](t, rec)
	assert.Equal(t, 4.5, got.AverageRating)
	assert.Equal(t, 2, got.TotalReviewCount)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/review-sections/"+section.ID+"/reviews", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	visible := decode[[]domain.Review](t, rec)
	require.Len(t, visible, 2)
	assert.Equal(t, 5, visible[0].Rating)
	assert.Equal(t, 4, visible[1].Rating)
}

func TestUpdateReview_ByID(t *testing.T) {
	h := newTestRouter(t)
	section := createSection(t, h)
	path := "/api/v1/admin/review-sections/" + section.ID + "/reviews"
	rec := doRequest(t, h, http.MethodPost, path, reviewBody(2), admin())
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[domain.ReviewSection](t, rec).Reviews[0].ID

	rec = doRequest(t, h, http.MethodPatch, path+"/"+id, map[string]any{"rating": 4}, admin())

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[domain.ReviewSection](t, rec)
	assert.Equal(t, 4.0, got.AverageRating)
	assert.Equal(t, id, got.Reviews[0].ID)
}

func TestReplaceReviews(t *testing.T) {
	h := newTestRouter(t)
	section := createSection(t, h)

	rec := doRequest(t, h, http.MethodPut, "/api/v1/admin/review-sections/"+section.ID+"/reviews",
		[]any{reviewBody(5), reviewBody(2)}, admin())

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[domain.ReviewSection](t, rec)
	assert.Len(t, got.Reviews, 2)
	assert.Equal(t, 3.5, got.AverageRating)
}

func TestPublicList_ActiveSectionsWithVisibleReviews(t *testing.T) {
	h := newTestRouter(t)
	shown := createSection(t, h)
	hidden := createSection(t, h)

	rec := doRequest(t, h, http.MethodPatch, "/api/v1/admin/review-sections/"+hidden.ID,
		map[string]any{"isActive": false}, admin())
	require.Equal(t, http.StatusOK, rec.Code)

	body := reviewBody(3)
	body["isVisible"] = false
	rec = doRequest(t, h, http.MethodPost, "/api/v1/admin/review-sections/"+shown.ID+"/reviews", body, admin())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/review-sections", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	got := decode[[]domain.ReviewSection](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, shown.ID, got[0].ID)
	assert.Empty(t, got[0].Reviews)
	assert.Zero(t, got[0].TotalReviewCount)
}

func TestGetSection_NotFoundAndBadID(t *testing.T) {
	h := newTestRouter(t)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/admin/review-sections/not-a-uuid", nil, admin())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/admin/review-sections/6f1f7f3e-0000-4000-8000-000000000000", nil, admin())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSections_Paginated(t *testing.T) {
	h := newTestRouter(t)
	for range 3 {
		createSection(t, h)
	}

	rec := doRequest(t, h, http.MethodGet, "/api/v1/admin/review-sections?page=2&per_page=2", nil, admin())

	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Data       []domain.ReviewSection `json:"data"`
		TotalCount int                    `json:"total_count"`
		Page       int                    `json:"page"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Data, 1)
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, 2, page.Page)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/admin/review-sections?active=maybe", nil, admin())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecalculate(t *testing.T) {
	h := newTestRouter(t)
	createSection(t, h)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/admin/review-sections/recalculate", nil, admin())

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[domain.RecalculateSummary](t, rec)
	assert.Equal(t, domain.RecalculateSummary{Scanned: 1, Unchanged: 1}, got)
}

func TestRecalculate_RateLimited(t *testing.T) {
	h := newTestRouterWith(t, RouterConfig{RecalculatePerMinute: 1})

	rec := doRequest(t, h, http.MethodPost, "/api/v1/admin/review-sections/recalculate", nil, admin())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/api/v1/admin/review-sections/recalculate", nil, admin())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestParseETag(t *testing.T) {
	for in, want := range map[string]int64{`"7"`: 7, `W/"7"`: 7, "7": 7} {
		got, err := parseETag(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseETag(`"v7"`)
	assert.Error(t, err)
}

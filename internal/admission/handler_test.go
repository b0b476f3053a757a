package admission

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T, f *fixture) *chi.Mux {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(discardLogger(), f.service).MountRoutes(r)
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateRequiresIdempotencyKey(t *testing.T) {
	f := newFixture(t, 10)
	router := newTestRouter(t, f)

	body, err := json.Marshal(CreateAdmissionRequest{
		ChildID:      f.child.ID,
		DepartmentID: f.dept.ID,
		StartDate:    f.now.AddDate(0, 1, 0),
		RateCategory: "FULL_TIME",
		Actor:        "caseworker-1",
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/admissions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Idempotency-Key")
}

func TestHandlerCreateAndGet(t *testing.T) {
	f := newFixture(t, 10)
	router := newTestRouter(t, f)

	rec := postJSON(t, router, "/admissions", CreateAdmissionRequest{
		ChildID:      f.child.ID,
		DepartmentID: f.dept.ID,
		StartDate:    f.now.AddDate(0, 1, 0),
		RateCategory: "FULL_TIME",
		Queue:        true,
		Actor:        "caseworker-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created Admission
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, StatusQueued, created.Status)

	req := httptest.NewRequest(http.MethodGet, "/admissions/"+created.ID.String(), nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, req)
	assert.Equal(t, http.StatusOK, getRec.Code)
}

func TestHandlerCreateValidation(t *testing.T) {
	f := newFixture(t, 10)
	router := newTestRouter(t, f)

	// Missing the required actor.
	rec := postJSON(t, router, "/admissions", map[string]any{
		"child_id":      f.child.ID,
		"department_id": f.dept.ID,
		"start_date":    f.now,
		"rate_category": "FULL_TIME",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerTransitionConflict(t *testing.T) {
	f := newFixture(t, 10)
	router := newTestRouter(t, f)
	a := f.create(t, false)

	rec := postJSON(t, router, fmt.Sprintf("/admissions/%s/transition", a.ID), TransitionRequest{
		Target: StatusActive,
		Actor:  "caseworker-1",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	var problem struct {
		Title  string `json:"title"`
		Status int    `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "Invalid State Transition", problem.Title)
	assert.Equal(t, http.StatusConflict, problem.Status)
}

func TestHandlerTransitionNotFound(t *testing.T) {
	f := newFixture(t, 10)
	router := newTestRouter(t, f)

	rec := postJSON(t, router, "/admissions/6f1a0a10-0000-4000-8000-0000000000aa/transition", TransitionRequest{
		Target: StatusActive,
		Actor:  "caseworker-1",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerListFilters(t *testing.T) {
	f := newFixture(t, 10)
	router := newTestRouter(t, f)
	f.create(t, true)
	f.create(t, false)

	req := httptest.NewRequest(http.MethodGet, "/admissions?status=QUEUED", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Admissions, 1)

	req = httptest.NewRequest(http.MethodGet, "/admissions?status=BOGUS", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

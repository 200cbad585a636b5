package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carryo/job-intake/internal/adapter/api"
	"github.com/carryo/job-intake/internal/core/domain"
)

type testAPI struct {
	router  *chi.Mux
	gateway *mockGateway
	repo    *mockSessionRepo
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gw := &mockGateway{}
	repo := newMockSessionRepo()
	svc := newTestServiceWithRepo(gw, repo)
	t.Cleanup(svc.Close)

	h := NewHTTPHandler(svc)
	h.now = func() time.Time { return testNow }

	r := chi.NewRouter()
	r.Get("/health", h.HealthCheck)
	r.Route("/api", func(r chi.Router) {
		r.Use(NewAuthenticator(testSecret).Middleware)
		h.RegisterRoutes(r)
	})
	return &testAPI{router: r, gateway: gw, repo: repo}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) SessionView {
	t.Helper()
	var v SessionView
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode view: %v: %s", err, w.Body.String())
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, w.Code, w.Body.String())
	}
}

func strPtr(s string) *string { return &s }

func (a *testAPI) startSession(t *testing.T, token string) string {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/sessions", token, nil)
	expectStatus(t, w, http.StatusCreated)
	return decodeView(t, w).ID
}

// walk fills every step of a recycle job and leaves the session on item_details.
func (a *testAPI) walk(t *testing.T, token, id string) {
	t.Helper()
	base := "/api/sessions/" + id
	pickupAt := testNow.Add(24 * time.Hour)
	steps := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPatch, base, DraftPatch{JobType: strPtr("recycle"), Title: strPtr("Old fridge")}},
		{http.MethodPost, base + "/next", nil},
		{http.MethodPatch, base, DraftPatch{
			PickupLocation: &domain.Location{Address: "12 Rustaveli Ave", Lat: 41.69, Lng: 44.8},
			PickupContact:  &domain.Contact{Name: "Nino", Phone: "+995 555 123 456"},
		}},
		{http.MethodPost, base + "/next", nil},
		{http.MethodPut, base + "/recycling-center", selectCenterRequest{ID: "rc-gldani"}},
		{http.MethodPost, base + "/next", nil},
		{http.MethodPatch, base, DraftPatch{
			ItemDescription: strPtr("Broken two-door fridge"),
			CustomerPrice:   strPtr("100"),
			ScheduledPickup: &pickupAt,
		}},
	}
	for _, s := range steps {
		w := a.do(t, s.method, s.path, token, s.body)
		expectStatus(t, w, http.StatusOK)
	}
}

func TestHTTP_RequiresAuthentication(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/api/sessions", "", nil)
	expectStatus(t, w, http.StatusUnauthorized)

	w = a.do(t, http.MethodPost, "/api/sessions", "not-a-jwt", nil)
	expectStatus(t, w, http.StatusUnauthorized)

	w = a.do(t, http.MethodGet, "/health", "", nil)
	expectStatus(t, w, http.StatusOK)
}

func TestHTTP_FullRecycleFlow(t *testing.T) {
	a := newTestAPI(t)
	token := signToken(t, "cust-1")
	id := a.startSession(t, token)
	a.walk(t, token, id)

	w := a.do(t, http.MethodGet, "/api/sessions/"+id, token, nil)
	expectStatus(t, w, http.StatusOK)
	view := decodeView(t, w)
	if view.Step != "item_details" || view.DisplayStep != 4 || view.TotalSteps != 4 {
		t.Errorf("unexpected position %s %d/%d", view.Step, view.DisplayStep, view.TotalSteps)
	}
	if view.Pricing == nil || view.Pricing.PlatformFee != "0.00" || view.Pricing.DriverPayout != "100.00" {
		t.Errorf("unexpected cash pricing %+v", view.Pricing)
	}
	if view.Validation == nil || !view.Validation.Valid {
		t.Errorf("expected valid item step, got %+v", view.Validation)
	}

	w = a.do(t, http.MethodPost, "/api/sessions/"+id+"/submit", token, nil)
	expectStatus(t, w, http.StatusCreated)
	view = decodeView(t, w)
	if view.State != domain.StateSubmitted || view.Job == nil || view.Job.ID != "job-7" {
		t.Errorf("unexpected submitted view %+v", view)
	}
	if view.Draft != nil {
		t.Error("expected draft discarded")
	}

	w = a.do(t, http.MethodPatch, "/api/sessions/"+id, token, DraftPatch{Title: strPtr("again")})
	expectStatus(t, w, http.StatusGone)
}

func TestHTTP_NextReportsFieldErrors(t *testing.T) {
	a := newTestAPI(t)
	token := signToken(t, "cust-1")
	id := a.startSession(t, token)

	a.do(t, http.MethodPatch, "/api/sessions/"+id, token, DraftPatch{JobType: strPtr("move"), Title: strPtr("ab")})
	w := a.do(t, http.MethodPost, "/api/sessions/"+id+"/next", token, nil)
	expectStatus(t, w, http.StatusUnprocessableEntity)

	var resp errorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Validation == nil || resp.Validation.Errors[domain.FieldTitle] == "" {
		t.Errorf("expected title error, got %+v", resp.Validation)
	}
	if resp.Session == nil || resp.Session.Step != "job_details" {
		t.Errorf("expected session still on job_details, got %+v", resp.Session)
	}
}

func TestHTTP_SessionsAreScopedToCustomer(t *testing.T) {
	a := newTestAPI(t)
	id := a.startSession(t, signToken(t, "cust-1"))

	w := a.do(t, http.MethodGet, "/api/sessions/"+id, signToken(t, "cust-2"), nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestHTTP_BadRequests(t *testing.T) {
	a := newTestAPI(t)
	token := signToken(t, "cust-1")
	id := a.startSession(t, token)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown job type", http.MethodPatch, "/api/sessions/" + id, DraftPatch{JobType: strPtr("courier")}, http.StatusBadRequest},
		{"bad price", http.MethodPatch, "/api/sessions/" + id, DraftPatch{CustomerPrice: strPtr("ten")}, http.StatusBadRequest},
		{"unknown centre", http.MethodPut, "/api/sessions/" + id + "/recycling-center", selectCenterRequest{ID: "nope"}, http.StatusBadRequest},
		{"unconfirmed cancel", http.MethodPost, "/api/sessions/" + id + "/cancel", cancelRequest{}, http.StatusBadRequest},
		{"back from first step", http.MethodPost, "/api/sessions/" + id + "/back", nil, http.StatusConflict},
		{"submit from first step", http.MethodPost, "/api/sessions/" + id + "/submit", nil, http.StatusConflict},
		{"missing address", http.MethodGet, "/api/geocode", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(t, tt.method, tt.path, token, tt.body)
			expectStatus(t, w, tt.status)
		})
	}
}

func TestHTTP_ModerationRejectionKeepsDraft(t *testing.T) {
	a := newTestAPI(t)
	a.gateway.err = &api.Error{Status: http.StatusUnprocessableEntity, Message: "Content rejected", Reasons: []string{"Prohibited item"}}
	token := signToken(t, "cust-1")
	id := a.startSession(t, token)
	a.walk(t, token, id)

	w := a.do(t, http.MethodPost, "/api/sessions/"+id+"/submit", token, nil)
	expectStatus(t, w, http.StatusUnprocessableEntity)

	var resp errorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error != "Content rejected" || len(resp.Reasons) != 1 || resp.Reasons[0] != "Prohibited item" {
		t.Errorf("unexpected error body %+v", resp)
	}
	if resp.Session == nil || resp.Session.Draft == nil || resp.Session.LastFailure == nil {
		t.Errorf("expected draft and last failure kept, got %+v", resp.Session)
	}
}

func TestHTTP_CancelDiscardsSession(t *testing.T) {
	a := newTestAPI(t)
	token := signToken(t, "cust-1")
	id := a.startSession(t, token)

	w := a.do(t, http.MethodPost, "/api/sessions/"+id+"/cancel", token, cancelRequest{Confirmed: true})
	expectStatus(t, w, http.StatusOK)
	if v := decodeView(t, w); v.State != domain.StateCancelled || v.Draft != nil {
		t.Errorf("unexpected cancelled view %+v", v)
	}

	w = a.do(t, http.MethodGet, "/api/sessions/"+id, token, nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestHTTP_SessionBusyIsConflict(t *testing.T) {
	a := newTestAPI(t)
	token := signToken(t, "cust-1")
	id := a.startSession(t, token)

	lockToken, ok, _ := a.repo.AcquireSessionLock(context.Background(), id, time.Minute)
	if !ok {
		t.Fatal("expected lock")
	}
	defer a.repo.ReleaseSessionLock(context.Background(), id, lockToken)

	w := a.do(t, http.MethodPost, "/api/sessions/"+id+"/cancel", token, cancelRequest{Confirmed: true})
	expectStatus(t, w, http.StatusConflict)
}

func TestHTTP_UploadPhoto(t *testing.T) {
	a := newTestAPI(t)
	token := signToken(t, "cust-1")
	id := a.startSession(t, token)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("photo", "sofa.jpg")
	part.Write([]byte("jpeg-bytes"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/photos", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	expectStatus(t, w, http.StatusOK)
	view := decodeView(t, w)
	photos := view.Draft.PickupPhotos
	if len(photos) != 1 || !strings.HasPrefix(photos[0].URL, "https://cdn.example/cust-1/"+id+"/") || !strings.HasSuffix(photos[0].URL, ".jpg") {
		t.Errorf("unexpected photos %+v", photos)
	}
}

func TestHTTP_RecyclingCentersAndReverseGeocode(t *testing.T) {
	a := newTestAPI(t)
	token := signToken(t, "cust-1")

	w := a.do(t, http.MethodGet, "/api/recycling-centers", token, nil)
	expectStatus(t, w, http.StatusOK)
	var centers []domain.RecyclingCenter
	json.Unmarshal(w.Body.Bytes(), &centers)
	if len(centers) != 1 || centers[0].ID != "rc-gldani" {
		t.Errorf("unexpected centres %+v", centers)
	}

	// no geocoder configured: the coordinates become the address
	w = a.do(t, http.MethodGet, "/api/geocode/reverse?lat=41.7&lng=44.8", token, nil)
	expectStatus(t, w, http.StatusOK)
	var loc domain.Location
	json.Unmarshal(w.Body.Bytes(), &loc)
	if loc.Address != "41.700000, 44.800000" {
		t.Errorf("unexpected address %q", loc.Address)
	}
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hostelcare/internal/access"
	"hostelcare/internal/inflight"
	"hostelcare/internal/janitor"
	"hostelcare/internal/models"
	"hostelcare/internal/photos"
	"hostelcare/internal/session"
	"hostelcare/internal/store"
	"hostelcare/internal/workflow"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type fakeStore struct {
	createFn  func(ctx context.Context, input store.CreateRequestInput, event store.EventInput) (models.MaintenanceRequest, error)
	getFn     func(ctx context.Context, id string) (models.MaintenanceRequest, bool, error)
	updateFn  func(ctx context.Context, id string, patch store.RequestPatch, event store.EventInput) (models.MaintenanceRequest, error)
	listFn    func(ctx context.Context, filter store.RequestFilter) ([]models.MaintenanceRequest, error)
	eventsFn  func(ctx context.Context, id string) ([]store.RequestEvent, error)
	adminFn   func(ctx context.Context, email string) (models.Admin, bool, error)
	flagsFn   func(ctx context.Context, hostels []string) (map[string]bool, error)
	hostelsFn func(ctx context.Context, female bool) ([]string, error)
}

func (f fakeStore) CreateRequest(ctx context.Context, input store.CreateRequestInput, event store.EventInput) (models.MaintenanceRequest, error) {
	if f.createFn == nil {
		return models.MaintenanceRequest{}, nil
	}
	return f.createFn(ctx, input, event)
}

func (f fakeStore) GetRequest(ctx context.Context, id string) (models.MaintenanceRequest, bool, error) {
	if f.getFn == nil {
		return models.MaintenanceRequest{}, false, nil
	}
	return f.getFn(ctx, id)
}

func (f fakeStore) UpdateRequest(ctx context.Context, id string, patch store.RequestPatch, event store.EventInput) (models.MaintenanceRequest, error) {
	if f.updateFn == nil {
		return models.MaintenanceRequest{}, nil
	}
	return f.updateFn(ctx, id, patch, event)
}

func (f fakeStore) ListRequests(ctx context.Context, filter store.RequestFilter) ([]models.MaintenanceRequest, error) {
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(ctx, filter)
}

func (f fakeStore) ListRequestEvents(ctx context.Context, id string) ([]store.RequestEvent, error) {
	if f.eventsFn == nil {
		return nil, nil
	}
	return f.eventsFn(ctx, id)
}

func (f fakeStore) LookupAdmin(ctx context.Context, email string) (models.Admin, bool, error) {
	if f.adminFn == nil {
		return models.Admin{}, false, nil
	}
	return f.adminFn(ctx, email)
}

func (f fakeStore) HostelFemaleFlag(ctx context.Context, hostel string) (bool, bool, error) {
	flags, err := f.HostelFemaleFlags(ctx, []string{hostel})
	if err != nil {
		return false, false, err
	}
	female, ok := flags[hostel]
	return female, ok, nil
}

func (f fakeStore) HostelFemaleFlags(ctx context.Context, hostels []string) (map[string]bool, error) {
	if f.flagsFn == nil {
		return map[string]bool{}, nil
	}
	return f.flagsFn(ctx, hostels)
}

func (f fakeStore) ListHostels(ctx context.Context, female bool) ([]string, error) {
	if f.hostelsFn == nil {
		return nil, nil
	}
	return f.hostelsFn(ctx, female)
}

// memoryStore wires fakeStore to a map of requests with the admin and hostel
// layout used by every test below.
func memoryStore(requests ...models.MaintenanceRequest) (fakeStore, map[string]models.MaintenanceRequest) {
	rows := map[string]models.MaintenanceRequest{}
	for _, request := range requests {
		rows[request.ID] = request
	}
	fs := fakeStore{
		getFn: func(ctx context.Context, id string) (models.MaintenanceRequest, bool, error) {
			request, ok := rows[id]
			return request, ok, nil
		},
		updateFn: func(ctx context.Context, id string, patch store.RequestPatch, event store.EventInput) (models.MaintenanceRequest, error) {
			request := rows[id]
			if patch.Status != nil {
				request.Status = *patch.Status
			}
			if patch.Progress != nil {
				request.Progress = *patch.Progress
			}
			if patch.RequesterConfirmed != nil {
				request.RequesterConfirmed = *patch.RequesterConfirmed
			}
			if patch.WorkerConfirmed != nil {
				request.WorkerConfirmed = *patch.WorkerConfirmed
			}
			if patch.IsDeleted != nil {
				request.IsDeleted = *patch.IsDeleted
			}
			if patch.HasImage != nil {
				request.HasImage = *patch.HasImage
			}
			if patch.ImageURL != nil {
				request.ImageURL = patch.ImageURL
			}
			rows[id] = request
			return request, nil
		},
		listFn: func(ctx context.Context, filter store.RequestFilter) ([]models.MaintenanceRequest, error) {
			out := []models.MaintenanceRequest{}
			for _, request := range rows {
				if filter.Email != "" && !strings.EqualFold(filter.Email, request.Email) {
					continue
				}
				out = append(out, request)
			}
			return out, nil
		},
		adminFn: func(ctx context.Context, email string) (models.Admin, bool, error) {
			if email == "warden@hostel.edu" {
				return models.Admin{ID: "a-1", EmailID: email, HostelName: "Meera Bhavan", FemaleHostel: true}, true, nil
			}
			return models.Admin{}, false, nil
		},
		flagsFn: func(ctx context.Context, hostels []string) (map[string]bool, error) {
			known := map[string]bool{"Meera Bhavan": true, "Ganga Bhavan": false}
			out := map[string]bool{}
			for _, hostel := range hostels {
				if female, ok := known[hostel]; ok {
					out[hostel] = female
				}
			}
			return out, nil
		},
	}
	return fs, rows
}

type fakePhotos struct{}

func (fakePhotos) Upload(ctx context.Context, data []byte, ownerID string) (string, error) {
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		return "", photos.ErrNotImage
	}
	return "https://storage.example.com/" + ownerID + ".jpg", nil
}

func (fakePhotos) Delete(ctx context.Context, url string) (bool, error) {
	return true, nil
}

type busyGuard struct{}

func (busyGuard) Acquire(ctx context.Context, key string) (func(), error) {
	return nil, inflight.ErrBusy
}

func newTestServer(fs fakeStore, guard inflight.Guard) http.Handler {
	service := workflow.New(workflow.Deps{
		Requests: fs,
		Admins:   fs,
		Sessions: session.ContextProvider{},
		Access:   access.NewPartitioner(fs, access.NewNormalizer(access.DefaultAliases())),
		Photos:   fakePhotos{},
		Guard:    guard,
	})
	handler := NewHandler(service, janitor.New(fs, fakePhotos{}, nil), nil, Options{StatusPageURL: "https://hostel.example.com/status"})
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 1000, IPBurst: 1000, UserPerMinute: 1000, UserBurst: 1000})
	return AuthMiddleware(AuthConfig{Secret: testSecret, AllowedDomain: "hostel.edu"}, limiter.UserMiddleware(handler.Routes()))
}

func signToken(t *testing.T, sub, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) responseError {
	t.Helper()
	var payload errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return payload.Error
}

func meeraRequest() models.MaintenanceRequest {
	return models.MaintenanceRequest{
		ID:       "101",
		UserID:   "u-1",
		Email:    "student@hostel.edu",
		Building: "Meera Bhavan",
		Category: models.CategoryElectricity,
		Priority: models.PriorityLow,
		Status:   models.StatusPending,
		Problem:  "Fan not working",
	}
}

func TestHealthIsPublic(t *testing.T) {
	fs, _ := memoryStore()
	rec := doRequest(t, newTestServer(fs, nil), http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	fs, _ := memoryStore()
	server := newTestServer(fs, nil)

	if rec := doRequest(t, server, http.MethodGet, "/api/me", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if rec := doRequest(t, server, http.MethodGet, "/api/me", "not-a-token", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	outsider := signToken(t, "u-9", "someone@gmail.com")
	rec := doRequest(t, server, http.MethodGet, "/api/me", outsider, nil)
	if rec.Code != http.StatusForbidden || decodeError(t, rec).Code != "email_domain_not_allowed" {
		t.Fatalf("expected domain rejection, got %d", rec.Code)
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u-1", "email": "student@hostel.edu", "exp": time.Now().Add(-time.Minute).Unix()})
	signed, _ := expired.SignedString([]byte(testSecret))
	if rec := doRequest(t, server, http.MethodGet, "/api/me", signed, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected expired token to be rejected, got %d", rec.Code)
	}

	rec = doRequest(t, server, http.MethodGet, "/api/me", signToken(t, "a-1", "warden@hostel.edu"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var identity workflow.Identity
	if err := json.NewDecoder(rec.Body).Decode(&identity); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !identity.IsAdmin || identity.Admin == nil || identity.Admin.HostelName != "Meera Bhavan" {
		t.Fatalf("unexpected identity %+v", identity)
	}
}

func TestConfirmationFlowOverHTTP(t *testing.T) {
	fs, rows := memoryStore(meeraRequest())
	server := newTestServer(fs, nil)
	admin := signToken(t, "a-1", "warden@hostel.edu")
	student := signToken(t, "u-1", "student@hostel.edu")

	rec := doRequest(t, server, http.MethodPost, "/api/requests/101/actions/confirm-worker", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rows["101"].Status != models.StatusPending {
		t.Fatalf("expected still pending after one confirmation")
	}

	rec = doRequest(t, server, http.MethodPost, "/api/requests/101/actions/confirm-worker", student, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}

	rec = doRequest(t, server, http.MethodPost, "/api/requests/101/actions/confirm-requester", student, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var request models.MaintenanceRequest
	if err := json.NewDecoder(rec.Body).Decode(&request); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if request.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", request.Status)
	}
}

func TestReopenNeedsConfirmation(t *testing.T) {
	completed := meeraRequest()
	completed.Status = models.StatusCompleted
	fs, rows := memoryStore(completed)
	server := newTestServer(fs, nil)
	student := signToken(t, "u-1", "student@hostel.edu")

	rec := doRequest(t, server, http.MethodPost, "/api/requests/101/actions/reopen", student, nil)
	if rec.Code != http.StatusPreconditionRequired || decodeError(t, rec).Code != "confirmation_required" {
		t.Fatalf("expected status 428, got %d", rec.Code)
	}
	rec = doRequest(t, server, http.MethodPost, "/api/requests/101/actions/reopen", student, []byte(`{"confirm":true}`))
	if rec.Code != http.StatusOK || rows["101"].Status != models.StatusPending {
		t.Fatalf("expected reopen, got %d %s", rec.Code, rows["101"].Status)
	}
	rec = doRequest(t, server, http.MethodPost, "/api/requests/101/actions/reopen", student, []byte(`{"confirm":true,"extra":1}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown fields to be rejected, got %d", rec.Code)
	}
}

func TestActionsValidateInput(t *testing.T) {
	fs, _ := memoryStore(meeraRequest())
	server := newTestServer(fs, nil)
	admin := signToken(t, "a-1", "warden@hostel.edu")

	rec := doRequest(t, server, http.MethodPost, "/api/requests/101/actions/progress", admin, []byte(`{"progress":150}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if fields := decodeError(t, rec).Fields; fields["progress"] == "" {
		t.Fatalf("expected progress field error, got %v", fields)
	}
	rec = doRequest(t, server, http.MethodPost, "/api/requests/101/actions/progress", admin, []byte(`{}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	rec = doRequest(t, server, http.MethodPost, "/api/requests/101/actions/teleport", admin, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
	rec = doRequest(t, server, http.MethodPost, "/api/requests/101/actions/mark-pending", admin, nil)
	if rec.Code != http.StatusConflict || decodeError(t, rec).Code != "invalid_state" {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
	rec = doRequest(t, server, http.MethodGet, "/api/requests/404", admin, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestMutationInFlight(t *testing.T) {
	fs, _ := memoryStore(meeraRequest())
	server := newTestServer(fs, busyGuard{})
	rec := doRequest(t, server, http.MethodPost, "/api/requests/101/actions/confirm-requester", signToken(t, "u-1", "student@hostel.edu"), nil)
	if rec.Code != http.StatusConflict || decodeError(t, rec).Code != "mutation_in_flight" {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
}

func TestCreateRequest(t *testing.T) {
	fs, _ := memoryStore()
	var created store.CreateRequestInput
	fs.createFn = func(ctx context.Context, input store.CreateRequestInput, event store.EventInput) (models.MaintenanceRequest, error) {
		created = input
		return models.MaintenanceRequest{ID: "7", Email: input.Email, Building: input.Building, Status: models.StatusPending}, nil
	}
	server := newTestServer(fs, nil)
	student := signToken(t, "u-1", "student@hostel.edu")

	body := []byte(`{"name":"Asha","student_id":"S1","building":"ganga","room_no":"12","category":"carpentry","problem":"Door jammed","terms_accepted":true}`)
	rec := doRequest(t, server, http.MethodPost, "/api/requests", student, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if created.Building != "Ganga Bhavan" || created.UserID != "u-1" || created.Email != "student@hostel.edu" {
		t.Fatalf("unexpected input %+v", created)
	}

	rec = doRequest(t, server, http.MethodPost, "/api/requests", student, []byte(`{"name":"Asha"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if fields := decodeError(t, rec).Fields; fields["terms_accepted"] == "" || fields["building"] == "" {
		t.Fatalf("expected field errors, got %v", fields)
	}
}

func TestAdminListAndReports(t *testing.T) {
	male := meeraRequest()
	male.ID = "102"
	male.Building = "Ganga Bhavan"
	fs, _ := memoryStore(meeraRequest(), male)
	server := newTestServer(fs, nil)
	admin := signToken(t, "a-1", "warden@hostel.edu")

	rec := doRequest(t, server, http.MethodGet, "/api/admin/requests?view=active&sort=newest", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var page struct {
		Items []models.MaintenanceRequest `json:"items"`
		Total int                         `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 1 || page.Items[0].ID != "101" {
		t.Fatalf("expected only the female hostel request, got %+v", page)
	}

	rec = doRequest(t, server, http.MethodGet, "/api/admin/reports/requests.csv", admin, nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("unexpected csv response %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "MR-101") || strings.Contains(rec.Body.String(), "MR-102") {
		t.Fatalf("unexpected csv body %s", rec.Body.String())
	}

	rec = doRequest(t, server, http.MethodGet, "/api/admin/reports/requests.pdf", admin, nil)
	if rec.Code != http.StatusOK || !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("unexpected pdf response %d", rec.Code)
	}

	student := signToken(t, "u-1", "student@hostel.edu")
	if rec := doRequest(t, server, http.MethodGet, "/api/admin/requests", student, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
	if rec := doRequest(t, server, http.MethodPost, "/api/admin/photos/cleanup", student, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
	if rec := doRequest(t, server, http.MethodPost, "/api/admin/photos/cleanup", admin, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestPrintSheet(t *testing.T) {
	fs, _ := memoryStore(meeraRequest())
	server := newTestServer(fs, nil)
	rec := doRequest(t, server, http.MethodGet, "/api/requests/101/print.pdf", signToken(t, "u-1", "student@hostel.edu"), nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("unexpected response %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "MR-101.pdf") {
		t.Fatalf("unexpected disposition %s", rec.Header().Get("Content-Disposition"))
	}
}

func TestPhotoUpload(t *testing.T) {
	fs, rows := memoryStore(meeraRequest())
	server := newTestServer(fs, nil)
	student := signToken(t, "u-1", "student@hostel.edu")

	upload := func(content []byte) *httptest.ResponseRecorder {
		var body bytes.Buffer
		form := multipart.NewWriter(&body)
		part, err := form.CreateFormFile("photo", "fan.png")
		if err != nil {
			t.Fatalf("form: %v", err)
		}
		_, _ = part.Write(content)
		_ = form.Close()
		req := httptest.NewRequest(http.MethodPost, "/api/requests/101/photo", &body)
		req.Header.Set("Content-Type", form.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+student)
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		return rec
	}

	if rec := upload([]byte("plain text")); rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != "invalid_photo" {
		t.Fatalf("expected invalid photo, got %d", rec.Code)
	}
	rec := upload([]byte("\x89PNG\r\n\x1a\nrest"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !rows["101"].HasImage || rows["101"].ImageURL == nil {
		t.Fatalf("expected photo stored, got %+v", rows["101"])
	}
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{store.ErrUnauthenticated, http.StatusUnauthorized, "unauthorized"},
		{store.ErrAccessDenied, http.StatusForbidden, "access_denied"},
		{store.ErrRequestNotFound, http.StatusNotFound, "request_not_found"},
		{store.ErrInvalidState, http.StatusConflict, "invalid_state"},
		{store.ErrRequestDeleted, http.StatusConflict, "request_deleted"},
		{inflight.ErrBusy, http.StatusConflict, "mutation_in_flight"},
		{workflow.ErrConfirmationRequired, http.StatusPreconditionRequired, "confirmation_required"},
		{photos.ErrTooLarge, http.StatusRequestEntityTooLarge, "photo_too_large"},
		{&workflow.ValidationError{Fields: map[string]string{"x": "bad"}}, http.StatusBadRequest, "invalid_request"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, code, _ := mapError(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("%v: expected %d %s, got %d %s", tc.err, tc.status, tc.code, status, code)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 1, IPBurst: 1, UserPerMinute: 1, UserBurst: 1})
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	ipLimited := limiter.Middleware(ok)
	first := httptest.NewRecorder()
	ipLimited.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	second := httptest.NewRecorder()
	ipLimited.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 200 then 429, got %d %d", first.Code, second.Code)
	}

	userLimited := limiter.UserMiddleware(ok)
	ctx := session.WithUser(context.Background(), session.User{ID: "u-1", Email: "a@hostel.edu"})
	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		rec := httptest.NewRecorder()
		userLimited.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil).WithContext(ctx))
		if rec.Code != want {
			t.Fatalf("call %d: expected %d, got %d", i, want, rec.Code)
		}
	}
}

func TestRateLimiterClientAddress(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	spoofed := func(forwarded string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		r.RemoteAddr = "10.0.0.5:4711"
		r.Header.Set("X-Forwarded-For", forwarded)
		return r
	}

	direct := NewRateLimiter(RateLimitConfig{IPPerMinute: 1, IPBurst: 1}).Middleware(ok)
	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		rec := httptest.NewRecorder()
		direct.ServeHTTP(rec, spoofed(fmt.Sprintf("198.51.100.%d", i)))
		if rec.Code != want {
			t.Fatalf("untrusted call %d: expected %d, got %d", i, want, rec.Code)
		}
	}

	proxied := NewRateLimiter(RateLimitConfig{IPPerMinute: 1, IPBurst: 1, TrustProxy: true}).Middleware(ok)
	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		rec := httptest.NewRecorder()
		proxied.ServeHTTP(rec, spoofed(fmt.Sprintf("198.51.100.%d, 203.0.113.9", i)))
		if rec.Code != want {
			t.Fatalf("trusted call %d: expected %d, got %d", i, want, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	proxied.ServeHTTP(rec, spoofed("198.51.100.1, 203.0.113.10"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected a different proxy hop to get its own bucket, got %d", rec.Code)
	}
}

func TestTokenLimiterEvictsIdleBuckets(t *testing.T) {
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	limiter := newTokenLimiter(60, 5)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 50; i++ {
		limiter.allow(fmt.Sprintf("10.0.0.%d", i))
	}
	if got := limiter.size(); got != 50 {
		t.Fatalf("expected 50 buckets, got %d", got)
	}

	now = now.Add(2 * time.Minute)
	if !limiter.allow("10.0.1.1") {
		t.Fatalf("expected new key to be allowed")
	}
	if got := limiter.size(); got != 1 {
		t.Fatalf("expected idle buckets evicted, got %d", got)
	}

	for i := 0; i < 5; i++ {
		limiter.allow("10.0.1.1")
	}
	if limiter.allow("10.0.1.1") {
		t.Fatalf("expected drained bucket to stay limited")
	}
}

func TestLoggingMiddlewareSetsRequestID(t *testing.T) {
	handler := LoggingMiddleware(zap.NewNop(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestIDFromRequest(r) == "" {
			t.Fatalf("expected request id on inbound request")
		}
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusTeapot || rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Header().Get("X-Request-ID"))
	}
}

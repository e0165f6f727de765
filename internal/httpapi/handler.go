package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hostelcare/internal/inflight"
	"hostelcare/internal/janitor"
	"hostelcare/internal/listview"
	"hostelcare/internal/photos"
	"hostelcare/internal/report"
	"hostelcare/internal/store"
	"hostelcare/internal/workflow"

	"go.uber.org/zap"
)

type Handler struct {
	service *workflow.Service
	janitor *janitor.Janitor
	log     *zap.Logger
	opts    Options
	now     func() time.Time
}

type Options struct {
	StatusPageURL  string
	MaxUploadBytes int64
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type progressRequest struct {
	Progress *int `json:"progress"`
}

type priorityRequest struct {
	Priority string `json:"priority"`
}

type reopenRequest struct {
	Confirm bool `json:"confirm"`
}

type restoreRequest struct {
	ResetStatus bool `json:"reset_status"`
}

type assignRequest struct {
	Staff string `json:"staff"`
}

func NewHandler(service *workflow.Service, cleaner *janitor.Janitor, log *zap.Logger, options Options) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if options.MaxUploadBytes <= 0 {
		options.MaxUploadBytes = photos.DefaultMaxBytes + 512*1024
	}
	return &Handler{
		service: service,
		janitor: cleaner,
		log:     log,
		opts:    options,
		now:     time.Now,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/api/me", h.handleMe)
	mux.HandleFunc("/api/requests", h.handleRequests)
	mux.HandleFunc("/api/requests/", h.handleRequestActions)
	mux.HandleFunc("/api/admin/requests", h.handleAdminRequests)
	mux.HandleFunc("/api/admin/access", h.handleAdminAccess)
	mux.HandleFunc("/api/admin/reports/requests.pdf", h.handleReportPDF)
	mux.HandleFunc("/api/admin/reports/requests.csv", h.handleReportCSV)
	mux.HandleFunc("/api/admin/photos/cleanup", h.handlePhotoCleanup)
	mux.HandleFunc("/api/admin/photos/stats", h.handlePhotoStats)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	identity, err := h.service.Identity(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

func (h *Handler) handleRequests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		page, err := h.service.ListMine(r.Context(), parseQuery(r))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	case http.MethodPost:
		var req workflow.CreateInput
		if !decodeRequest(w, r, &req, false) {
			return
		}
		request, err := h.service.Create(r.Context(), req)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, request)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleRequestActions(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/requests/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	id := strings.TrimSpace(parts[0])
	if id == "" {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "not found")
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		request, err := h.service.Get(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, request)
	case len(parts) == 2 && parts[1] == "events":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		events, err := h.service.Events(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	case len(parts) == 2 && parts[1] == "print.pdf":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handlePrint(w, r, id)
	case len(parts) == 2 && parts[1] == "photo":
		h.handlePhoto(w, r, id)
	case len(parts) == 3 && parts[1] == "actions":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleAction(w, r, id, parts[2])
	default:
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "not found")
	}
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request, id, action string) {
	ctx := r.Context()
	var (
		result any
		err    error
	)
	switch action {
	case "confirm-requester":
		result, err = h.service.ConfirmRequester(ctx, id)
	case "confirm-worker":
		result, err = h.service.ConfirmWorker(ctx, id)
	case "progress":
		var req progressRequest
		if !decodeRequest(w, r, &req, false) {
			return
		}
		if req.Progress == nil {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "progress is required")
			return
		}
		result, err = h.service.SetProgress(ctx, id, *req.Progress)
	case "priority":
		var req priorityRequest
		if !decodeRequest(w, r, &req, false) {
			return
		}
		result, err = h.service.SetPriority(ctx, id, req.Priority)
	case "start":
		result, err = h.service.Transition(ctx, id, store.ActionStart)
	case "complete":
		result, err = h.service.Transition(ctx, id, store.ActionComplete)
	case "mark-pending":
		result, err = h.service.Transition(ctx, id, store.ActionMarkPending)
	case "reopen":
		var req reopenRequest
		if !decodeRequest(w, r, &req, true) {
			return
		}
		result, err = h.service.Reopen(ctx, id, req.Confirm)
	case "delete":
		result, err = h.service.SoftDelete(ctx, id)
	case "restore":
		var req restoreRequest
		if !decodeRequest(w, r, &req, true) {
			return
		}
		result, err = h.service.Restore(ctx, id, req.ResetStatus)
	case "assign":
		var req assignRequest
		if !decodeRequest(w, r, &req, false) {
			return
		}
		result, err = h.service.AssignStaff(ctx, id, req.Staff)
	default:
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "unknown_action", "unknown action")
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handlePhoto(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
		if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
				h.fail(w, r, photos.ErrTooLarge)
				return
			}
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "multipart form with a photo field is required")
			return
		}
		file, _, err := r.FormFile("photo")
		if err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "photo is required")
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "photo could not be read")
			return
		}
		request, err := h.service.AttachPhoto(r.Context(), id, data)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, request)
	case http.MethodDelete:
		request, err := h.service.RemovePhoto(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, request)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handlePrint(w http.ResponseWriter, r *http.Request, id string) {
	request, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := report.RequestSheetPDF(request, h.statusLink(request.ID), h.now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeFile(w, "application/pdf", request.DisplayID()+".pdf", out)
}

func (h *Handler) statusLink(id string) string {
	if h.opts.StatusPageURL == "" {
		return ""
	}
	link, err := url.Parse(h.opts.StatusPageURL)
	if err != nil {
		return ""
	}
	query := link.Query()
	query.Set("id", id)
	link.RawQuery = query.Encode()
	return link.String()
}

func (h *Handler) handleAdminRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	page, err := h.service.ListForAdmin(r.Context(), parseQuery(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleAdminAccess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	summary, err := h.service.AccessSummary(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleReportPDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requests, err := h.service.FilteredForAdmin(r.Context(), parseQuery(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	now := h.now()
	out, err := report.RequestsPDF(requests, r.URL.Query().Get("title"), now)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeFile(w, "application/pdf", report.Filename(now), out)
}

func (h *Handler) handleReportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requests, err := h.service.FilteredForAdmin(r.Context(), parseQuery(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	name := strings.TrimSuffix(report.Filename(h.now()), ".pdf") + ".csv"
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	if err := report.RequestsCSV(w, requests); err != nil {
		h.log.Error("csv export failed", zap.Error(err))
	}
}

func (h *Handler) handlePhotoCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	identity, err := h.service.RequireAdmin(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.janitor.CleanupCompleted(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info("photo cleanup triggered",
		zap.String("admin", identity.User.Email),
		zap.Int("deleted", result.DeletedCount),
		zap.Int("errors", len(result.Errors)))
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		janitor.Result
	}{Success: result.Success(), Result: result})
}

func (h *Handler) handlePhotoStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, err := h.service.RequireAdmin(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	stats, err := h.janitor.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func parseQuery(r *http.Request) listview.Query {
	values := r.URL.Query()
	tab := values.Get("tab")
	if tab == "" {
		tab = values.Get("view")
	}
	return listview.Query{
		Tab:      strings.TrimSpace(tab),
		Search:   values.Get("search"),
		Status:   strings.TrimSpace(values.Get("status")),
		Building: strings.TrimSpace(values.Get("building")),
		Category: strings.TrimSpace(values.Get("category")),
		Priority: strings.TrimSpace(values.Get("priority")),
		Sort:     strings.TrimSpace(values.Get("sort")),
		Page:     readIntParam(values.Get("page")),
		PageSize: readIntParam(values.Get("page_size")),
	}
}

func readIntParam(raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return value
}

// decodeRequest reads a JSON body into target. When optional is set an empty
// body leaves target at its zero value.
func decodeRequest(w http.ResponseWriter, r *http.Request, target any, optional bool) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFromRequest(r)),
			zap.Error(err))
	}
	response := errorResponse{
		RequestID: requestIDFromRequest(r),
		Error:     responseError{Code: code, Message: msg},
	}
	var verr *workflow.ValidationError
	if errors.As(err, &verr) {
		response.Error.Fields = verr.Fields
	}
	writeJSON(w, status, response)
}

func mapError(err error) (int, string, string) {
	var verr *workflow.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "invalid_request", "request validation failed"
	case errors.Is(err, store.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized", "sign in required"
	case errors.Is(err, store.ErrAccessDenied):
		return http.StatusForbidden, "access_denied", "access denied"
	case errors.Is(err, store.ErrRequestNotFound):
		return http.StatusNotFound, "request_not_found", "request not found"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "request state does not allow this action"
	case errors.Is(err, store.ErrRequestDeleted):
		return http.StatusConflict, "request_deleted", "request is deleted"
	case errors.Is(err, inflight.ErrBusy):
		return http.StatusConflict, "mutation_in_flight", "another update to this request is in progress"
	case errors.Is(err, workflow.ErrConfirmationRequired):
		return http.StatusPreconditionRequired, "confirmation_required", "repeat the request with confirm set to true"
	case errors.Is(err, photos.ErrNotImage):
		return http.StatusBadRequest, "invalid_photo", "photo must be an image"
	case errors.Is(err, photos.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "photo_too_large", "photo is too large"
	case errors.Is(err, photos.ErrNotConfigured):
		return http.StatusServiceUnavailable, "photo_storage_unavailable", "photo storage is not configured"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeFile(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

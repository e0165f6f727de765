package photos

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorded struct {
	method      string
	path        string
	auth        string
	contentType string
	body        []byte
}

func newStorageServer(t *testing.T, status int, body string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	calls := []recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, recorded{
			method:      r.Method,
			path:        r.URL.EscapedPath(),
			auth:        r.Header.Get("Authorization"),
			contentType: r.Header.Get("Content-Type"),
			body:        payload,
		})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestUploadResizesAndReturnsPublicURL(t *testing.T) {
	srv, calls := newStorageServer(t, http.StatusOK, `{"Key":"ok"}`)
	client := NewClient(Config{BaseURL: srv.URL + "/", ServiceKey: "service-key", MaxDimension: 400}, nil)
	client.now = func() time.Time { return time.UnixMilli(1700000000000) }

	url, err := client.Upload(context.Background(), pngBytes(t, 1200, 300), "req-1")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	want := srv.URL + "/storage/v1/object/public/maintenance-images/maintenance-photos/req-1-1700000000000.jpg"
	if url != want {
		t.Fatalf("unexpected url %s", url)
	}
	if len(*calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(*calls))
	}
	call := (*calls)[0]
	if call.method != http.MethodPut || call.path != "/storage/v1/object/maintenance-images/maintenance-photos/req-1-1700000000000.jpg" {
		t.Fatalf("unexpected request %s %s", call.method, call.path)
	}
	if call.auth != "Bearer service-key" || call.contentType != "image/jpeg" {
		t.Fatalf("unexpected headers auth=%q type=%q", call.auth, call.contentType)
	}
	img, err := jpeg.Decode(bytes.NewReader(call.body))
	if err != nil {
		t.Fatalf("uploaded body is not jpeg: %v", err)
	}
	if img.Bounds().Dx() != 400 || img.Bounds().Dy() != 100 {
		t.Fatalf("unexpected size %v", img.Bounds())
	}
}

func TestUploadRejectsInvalidFiles(t *testing.T) {
	srv, calls := newStorageServer(t, http.StatusOK, "")
	client := NewClient(Config{BaseURL: srv.URL, ServiceKey: "k", MaxBytes: 1024}, nil)

	if _, err := client.Upload(context.Background(), []byte("plain text, not a picture"), "r"); !errors.Is(err, ErrNotImage) {
		t.Fatalf("expected not image, got %v", err)
	}
	if _, err := client.Upload(context.Background(), make([]byte, 2048), "r"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected too large, got %v", err)
	}
	if len(*calls) != 0 {
		t.Fatalf("expected no storage calls, got %d", len(*calls))
	}

	unconfigured := NewClient(Config{}, nil)
	if _, err := unconfigured.Upload(context.Background(), pngBytes(t, 2, 2), "r"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
}

func TestUploadSurfacesStorageErrors(t *testing.T) {
	srv, _ := newStorageServer(t, http.StatusForbidden, `{"error":"denied"}`)
	client := NewClient(Config{BaseURL: srv.URL, ServiceKey: "k"}, nil)
	_, err := client.Upload(context.Background(), pngBytes(t, 4, 4), "r")
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	srv, calls := newStorageServer(t, http.StatusOK, "")
	client := NewClient(Config{BaseURL: srv.URL, ServiceKey: "k"}, nil)

	ok, err := client.Delete(context.Background(), srv.URL+"/storage/v1/object/public/maintenance-images/maintenance-photos/r-1.jpg")
	if err != nil || !ok {
		t.Fatalf("expected delete, got %v %v", ok, err)
	}
	call := (*calls)[0]
	if call.method != http.MethodDelete || call.path != "/storage/v1/object/maintenance-images/maintenance-photos/r-1.jpg" {
		t.Fatalf("unexpected request %s %s", call.method, call.path)
	}

	ok, err = client.Delete(context.Background(), "https://elsewhere.example.com/other/file.jpg")
	if err != nil || ok {
		t.Fatalf("expected foreign url to be ignored, got %v %v", ok, err)
	}
	if len(*calls) != 1 {
		t.Fatalf("expected no call for foreign url")
	}
}

func TestDeleteMissingObjectIsNotAnError(t *testing.T) {
	for _, tc := range []struct {
		status int
		body   string
	}{
		{http.StatusNotFound, ""},
		{http.StatusBadRequest, `{"statusCode":"404","error":"not_found","message":"Object not found"}`},
	} {
		srv, _ := newStorageServer(t, tc.status, tc.body)
		client := NewClient(Config{BaseURL: srv.URL, ServiceKey: "k"}, nil)
		ok, err := client.Delete(context.Background(), client.PublicURL("maintenance-photos/gone.jpg"))
		if err != nil || !ok {
			t.Fatalf("status %d: expected idempotent delete, got %v %v", tc.status, ok, err)
		}
	}

	srv, _ := newStorageServer(t, http.StatusInternalServerError, "boom")
	client := NewClient(Config{BaseURL: srv.URL, ServiceKey: "k"}, nil)
	if ok, err := client.Delete(context.Background(), client.PublicURL("maintenance-photos/x.jpg")); ok || err == nil {
		t.Fatalf("expected failure, got %v %v", ok, err)
	}
}

func TestObjectPath(t *testing.T) {
	client := NewClient(Config{BaseURL: "https://proj.supabase.co", ServiceKey: "k"}, nil)
	path, ok := client.ObjectPath(client.PublicURL("maintenance-photos/a b.jpg"))
	if !ok || path != "maintenance-photos/a b.jpg" {
		t.Fatalf("unexpected path %q %v", path, ok)
	}
	if _, ok := client.ObjectPath("::not a url"); ok {
		t.Fatalf("expected malformed url to be rejected")
	}
	if _, ok := client.ObjectPath("https://proj.supabase.co/storage/v1/object/public/maintenance-images/"); ok {
		t.Fatalf("expected empty object path to be rejected")
	}
}

// Package photos stores request photos in a Supabase storage bucket.
package photos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

const (
	DefaultBucket       = "maintenance-images"
	DefaultFolder       = "maintenance-photos"
	DefaultMaxBytes     = 5 << 20
	DefaultMaxDimension = 1600
	jpegQuality         = 82
)

var (
	ErrNotImage      = errors.New("file is not an image")
	ErrTooLarge      = errors.New("image exceeds size limit")
	ErrNotConfigured = errors.New("photo storage not configured")
)

type Config struct {
	BaseURL      string
	ServiceKey   string
	Bucket       string
	Folder       string
	MaxBytes     int64
	MaxDimension int
	HTTPClient   *http.Client
}

type Client struct {
	baseURL      string
	serviceKey   string
	bucket       string
	folder       string
	maxBytes     int64
	maxDimension int
	http         *http.Client
	log          *zap.Logger
	now          func() time.Time
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	if cfg.Folder == "" {
		cfg.Folder = DefaultFolder
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = DefaultMaxDimension
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		serviceKey:   cfg.ServiceKey,
		bucket:       cfg.Bucket,
		folder:       strings.Trim(cfg.Folder, "/"),
		maxBytes:     cfg.MaxBytes,
		maxDimension: cfg.MaxDimension,
		http:         cfg.HTTPClient,
		log:          log,
		now:          time.Now,
	}
}

// Upload validates and downsizes the image, stores it under the owner's
// prefix and returns its public URL.
func (c *Client) Upload(ctx context.Context, data []byte, ownerID string) (string, error) {
	if c.baseURL == "" || c.serviceKey == "" {
		return "", ErrNotConfigured
	}
	if int64(len(data)) > c.maxBytes {
		return "", ErrTooLarge
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrNotImage
	}

	body, contentType, ext := c.prepare(data, contentType)
	objectPath := fmt.Sprintf("%s/%s-%d.%s", c.folder, ownerID, c.now().UnixMilli(), ext)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.objectURL(objectPath), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "3600")
	req.Header.Set("x-upsert", "false")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload photo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("upload photo: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return c.PublicURL(objectPath), nil
}

// Delete removes the object behind a public URL. A missing object counts as
// deleted. A URL outside the bucket returns false without error.
func (c *Client) Delete(ctx context.Context, publicURL string) (bool, error) {
	objectPath, ok := c.ObjectPath(publicURL)
	if !ok {
		return false, nil
	}
	if c.baseURL == "" || c.serviceKey == "" {
		return false, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.objectURL(objectPath), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("delete photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		return true, nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusNotFound || isNotFoundBody(msg) {
		c.log.Debug("photo already gone", zap.String("path", objectPath))
		return true, nil
	}
	return false, fmt.Errorf("delete photo: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}

func (c *Client) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, c.bucket, escapePath(objectPath))
}

// ObjectPath extracts the in-bucket path from a public URL.
func (c *Client) ObjectPath(publicURL string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(publicURL))
	if err != nil || parsed.Path == "" {
		return "", false
	}
	marker := "/" + c.bucket + "/"
	_, rest, found := strings.Cut(parsed.Path, marker)
	if !found || strings.Trim(rest, "/") == "" {
		return "", false
	}
	return strings.Trim(rest, "/"), true
}

func (c *Client) objectURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, escapePath(objectPath))
}

// prepare shrinks decodable images to the configured bounding box and
// re-encodes them as JPEG. Formats the decoder does not know are stored as
// received.
func (c *Client) prepare(data []byte, contentType string) ([]byte, string, string) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		c.log.Debug("photo not decodable, storing original", zap.String("content_type", contentType), zap.Error(err))
		return data, contentType, extension(contentType)
	}
	bounds := img.Bounds()
	if bounds.Dx() > c.maxDimension || bounds.Dy() > c.maxDimension {
		img = imaging.Fit(img, c.maxDimension, c.maxDimension, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		c.log.Warn("photo re-encode failed, storing original", zap.Error(err))
		return data, contentType, extension(contentType)
	}
	return buf.Bytes(), "image/jpeg", "jpg"
}

func extension(contentType string) string {
	switch contentType {
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	case "image/bmp":
		return "bmp"
	default:
		return "jpg"
	}
}

func escapePath(objectPath string) string {
	parts := strings.Split(objectPath, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func isNotFoundBody(body []byte) bool {
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "not_found") || strings.Contains(lower, "not found")
}

// Package api is the HTTP client for the Briefly backend.
//
// Every reply is JSON with a boolean success field; the remaining fields are
// loosely typed (numbers sometimes arrive as strings), so replies are read
// with gjson instead of fixed structs.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"briefly/internal/conversation"
	"briefly/internal/logging"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
)

const (
	// SummaryQuery is the query value used to poll for a block summary.
	SummaryQuery = "obtener resumen"

	defaultTimeout       = 60 * time.Second
	defaultUploadTimeout = 5 * time.Minute
	defaultSessionTTL    = 30 * time.Second
	maxErrorBody         = 4 << 10
)

// Client talks to one Briefly backend. It is safe for concurrent use.
type Client struct {
	base          *url.URL
	http          *http.Client
	timeout       time.Duration
	uploadTimeout time.Duration

	sessions *cache.Cache
	group    singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout sets the per-request timeout for non-upload calls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUploadTimeout sets the timeout for PDF uploads.
func WithUploadTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.uploadTimeout = d
		}
	}
}

// WithSessionCacheTTL sets how long session info replies are reused.
// Zero disables caching.
func WithSessionCacheTTL(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			c.sessions = nil
			return
		}
		c.sessions = cache.New(d, 2*d)
	}
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q: missing host", baseURL)
	}

	c := &Client{
		base:          u,
		http:          &http.Client{},
		timeout:       defaultTimeout,
		uploadTimeout: defaultUploadTimeout,
		sessions:      cache.New(defaultSessionTTL, 2*defaultSessionTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string { return c.base.String() }

// IsLocal reports whether the backend runs on this machine.
func (c *Client) IsLocal() bool {
	host := c.base.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.base.String() + "/" + strings.Join(escaped, "/")
}

// do sends req and returns the parsed JSON body. Non-2xx replies and
// success:false bodies become typed errors.
func (c *Client) do(req *http.Request, op string, requireSuccess bool) (gjson.Result, error) {
	log := logging.Get(logging.CategoryAPI)
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("%s [%s] transport error: %v", op, reqID, err)
		return gjson.Result{}, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: read body: %w", op, err)
	}
	log.Debug("%s [%s] status=%d bytes=%d in %v", op, reqID, resp.StatusCode, len(body), time.Since(start))

	if !gjson.ValidBytes(body) {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return gjson.Result{}, &StatusError{Op: op, Status: resp.StatusCode, Body: truncate(body)}
		}
		return gjson.Result{}, fmt.Errorf("%s: invalid JSON reply", op)
	}

	doc := gjson.ParseBytes(body)
	ok := doc.Get("success").Bool()
	if (requireSuccess && !ok) || resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := doc.Get("message").String()
		if msg == "" {
			msg = doc.Get("error").String()
		}
		log.Warn("%s [%s] backend failure (status %d): %s", op, reqID, resp.StatusCode, msg)
		return doc, &BackendError{Op: op, Status: resp.StatusCode, Message: msg}
	}
	return doc, nil
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}

func (c *Client) postForm(ctx context.Context, op string, timeout time.Duration, build func(*multipart.Writer) error) (*QueryResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := build(mw); err != nil {
		return nil, fmt.Errorf("%s: build form: %w", op, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%s: build form: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("api", "query"), &buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	doc, err := c.do(req, op, true)
	if err != nil {
		return nil, err
	}
	return decodeQuery(doc), nil
}

// Upload sends a PDF as the multipart field "files".
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (*QueryResponse, error) {
	resp, err := c.postForm(ctx, "upload", c.uploadTimeout, func(mw *multipart.Writer) error {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			return err
		}
		_, err = io.Copy(part, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	logging.Session("uploaded %s -> session %s (%d pages, %d blocks)", name, resp.SessionID, resp.TotalPages, resp.TotalBlocks)
	return resp, nil
}

// UploadFile is Upload for a file on disk.
func (c *Client) UploadFile(ctx context.Context, path string) (*QueryResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	defer f.Close()
	return c.Upload(ctx, filepath.Base(path), f)
}

// Query sends a text query. sessionID may be empty before any upload.
func (c *Client) Query(ctx context.Context, query, sessionID string) (*QueryResponse, error) {
	return c.postForm(ctx, "query", c.timeout, func(mw *multipart.Writer) error {
		if err := mw.WriteField("query", query); err != nil {
			return err
		}
		if sessionID != "" {
			return mw.WriteField("sessionId", sessionID)
		}
		return nil
	})
}

// PollSummary asks for the current block summary of a session.
func (c *Client) PollSummary(ctx context.Context, sessionID string) (*QueryResponse, error) {
	return c.Query(ctx, SummaryQuery, sessionID)
}

// SessionInfo fetches the session's document details. Concurrent calls for
// the same id share one request and replies are cached briefly.
func (c *Client) SessionInfo(ctx context.Context, id string) (*SessionInfo, error) {
	if c.sessions != nil {
		if v, ok := c.sessions.Get(id); ok {
			return v.(*SessionInfo), nil
		}
	}

	v, err, _ := c.group.Do(id, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("api", "sessions", id), nil)
		if err != nil {
			return nil, fmt.Errorf("session info: %w", err)
		}
		doc, err := c.do(req, "session info", true)
		if err != nil {
			return nil, err
		}
		info := decodeSessionInfo(id, doc)
		if c.sessions != nil {
			c.sessions.SetDefault(id, info)
		}
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SessionInfo), nil
}

// ForgetSession drops any cached info for id.
func (c *Client) ForgetSession(id string) {
	if c.sessions != nil {
		c.sessions.Delete(id)
	}
}

// DeleteSession removes a session on the backend and returns its message.
func (c *Client) DeleteSession(ctx context.Context, id string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint("api", "sessions", id), nil)
	if err != nil {
		return "", fmt.Errorf("delete session: %w", err)
	}
	c.ForgetSession(id)
	doc, err := c.do(req, "delete session", true)
	if err != nil {
		return "", err
	}
	return doc.Get("message").String(), nil
}

// Health checks that the backend is up.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("api", "health"), nil)
	if err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	doc, err := c.do(req, "health", false)
	if err != nil {
		return nil, err
	}
	return &Health{
		Status:    doc.Get("status").String(),
		Timestamp: doc.Get("timestamp").String(),
	}, nil
}

type downloadRequest struct {
	SessionID    string               `json:"sessionId,omitempty"`
	Conversation []conversation.Entry `json:"conversation"`
}

// PrepareDownload asks the backend to render the conversation to a file
// and returns the server-side file name.
func (c *Client) PrepareDownload(ctx context.Context, sessionID string, entries []conversation.Entry) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(downloadRequest{SessionID: sessionID, Conversation: entries})
	if err != nil {
		return "", fmt.Errorf("prepare download: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("api", "download-conversation"), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("prepare download: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	doc, err := c.do(req, "prepare download", true)
	if err != nil {
		return "", err
	}
	name := doc.Get("filename").String()
	if name == "" {
		return "", &BackendError{Op: "prepare download", Status: http.StatusOK, Message: "missing filename"}
	}
	return name, nil
}

// Download streams a generated file into w.
func (c *Client) Download(ctx context.Context, filename string, w io.Writer) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("api", "download", filename), nil)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if gjson.ValidBytes(body) {
			doc := gjson.ParseBytes(body)
			return 0, &BackendError{Op: "download", Status: resp.StatusCode, Message: doc.Get("message").String()}
		}
		return 0, &StatusError{Op: "download", Status: resp.StatusCode, Body: string(body)}
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download: %w", err)
	}
	logging.Get(logging.CategoryAPI).Debug("downloaded %s (%d bytes)", filename, n)
	return n, nil
}

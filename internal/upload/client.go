// Package upload submits discharge notes to the server over a one-shot
// HTTP request, independent of the persistent chat connection.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/inercia/carechat/internal/config"
	"github.com/inercia/carechat/internal/logging"
)

// DefaultAcknowledgement is reported when the server accepts the document
// without a message of its own.
const DefaultAcknowledgement = "Discharge note uploaded successfully."

// FailureNotice is the user-facing text for a failed upload.
const FailureNotice = "Failed to upload file."

var (
	// ErrNoDocument is returned when no document was given.
	ErrNoDocument = errors.New("no document selected")

	// ErrEmptyDocument is returned for a zero-length document.
	ErrEmptyDocument = errors.New("document is empty")
)

// Kind distinguishes upload failures.
type Kind int

const (
	// KindNetwork means the request never got a response.
	KindNetwork Kind = iota
	// KindRejected means the server answered with a non-2xx status, or the
	// document was refused before sending.
	KindRejected
)

// String returns the kind name.
func (k Kind) String() string {
	if k == KindRejected {
		return "rejected"
	}
	return "network"
}

// UploadError reports a failed upload.
type UploadError struct {
	Kind   Kind
	Status int
	Detail string
	Err    error
}

func (e *UploadError) Error() string {
	switch {
	case e.Kind == KindRejected && e.Status != 0:
		return fmt.Sprintf("upload rejected: status %d: %s", e.Status, e.Detail)
	case e.Kind == KindRejected:
		return "upload rejected: " + e.Detail
	default:
		return fmt.Sprintf("upload failed: %v", e.Err)
	}
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Document is a file to upload.
type Document struct {
	Name string
	Data []byte
}

// ReadDocument loads a document from disk.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Document{Name: filepath.Base(path), Data: data}, nil
}

// Acknowledgement is the server's human-readable confirmation.
type Acknowledgement struct {
	Message string
}

// Client provides the upload endpoint.
// It is safe for concurrent use.
type Client struct {
	url           string
	identityParam string
	maxBytes      int64
	httpClient    *http.Client
	logger        *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout. A client installed with
// WithHTTPClient is copied first, never modified.
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		if d > 0 {
			hc := *client.httpClient
			hc.Timeout = d
			client.httpClient = &hc
		}
	}
}

// WithMaxBytes limits the document size. Zero means no limit.
func WithMaxBytes(n int64) Option {
	return func(client *Client) {
		client.maxBytes = n
	}
}

// WithIdentityParam sets the form and query parameter carrying the identity.
// Default is "user_id".
func WithIdentityParam(name string) Option {
	return func(client *Client) {
		if name != "" {
			client.identityParam = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(client *Client) {
		if l != nil {
			client.logger = l
		}
	}
}

// New creates an upload client for the absolute endpoint URL.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		url:           endpoint,
		identityParam: "user_id",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logging.Upload(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromConfig creates a client for the configured upload endpoint. opts are
// applied after the configuration.
func FromConfig(cfg *config.Config, opts ...Option) *Client {
	base := []Option{
		WithTimeout(cfg.Upload.Timeout),
		WithMaxBytes(cfg.Upload.MaxBytes),
		WithIdentityParam(cfg.Server.IdentityParam),
	}
	return New(cfg.UploadURL(), append(base, opts...)...)
}

// URL returns the endpoint URL.
func (c *Client) URL() string {
	return c.url
}

// uploadResponse is the server's JSON reply.
type uploadResponse struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// Upload sends doc for identity. It never retries.
func (c *Client) Upload(ctx context.Context, identity string, doc *Document) (Acknowledgement, error) {
	if doc == nil {
		return Acknowledgement{}, ErrNoDocument
	}
	if len(doc.Data) == 0 {
		return Acknowledgement{}, ErrEmptyDocument
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return Acknowledgement{}, errors.New("identity must not be empty")
	}
	if c.maxBytes > 0 && int64(len(doc.Data)) > c.maxBytes {
		return Acknowledgement{}, &UploadError{
			Kind:   KindRejected,
			Detail: fmt.Sprintf("document is %d bytes, limit is %d", len(doc.Data), c.maxBytes),
		}
	}

	body, contentType, err := c.encode(identity, doc)
	if err != nil {
		return Acknowledgement{}, fmt.Errorf("upload: encode: %w", err)
	}

	target, err := c.targetURL(identity)
	if err != nil {
		return Acknowledgement{}, fmt.Errorf("upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return Acknowledgement{}, fmt.Errorf("upload: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("uploading document", "name", doc.Name, "bytes", len(doc.Data))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("upload failed", "error", err)
		return Acknowledgement{}, &UploadError{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Acknowledgement{}, &UploadError{Kind: KindNetwork, Err: fmt.Errorf("read response: %w", err)}
	}

	var parsed uploadResponse
	jsonErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := strings.TrimSpace(string(respBody))
		if jsonErr == nil {
			if parsed.Detail != "" {
				detail = parsed.Detail
			} else if parsed.Message != "" {
				detail = parsed.Message
			}
		}
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		c.logger.Warn("upload rejected", "status", resp.StatusCode, "detail", detail)
		return Acknowledgement{}, &UploadError{Kind: KindRejected, Status: resp.StatusCode, Detail: detail}
	}

	ack := Acknowledgement{Message: DefaultAcknowledgement}
	if jsonErr == nil && strings.TrimSpace(parsed.Message) != "" {
		ack.Message = parsed.Message
	}
	c.logger.Info("document uploaded", "name", doc.Name)
	return ack, nil
}

func (c *Client) encode(identity string, doc *Document) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField(c.identityParam, identity); err != nil {
		return nil, "", err
	}
	name := doc.Name
	if name == "" {
		name = "note.txt"
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(doc.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *Client) targetURL(identity string) (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", c.url, err)
	}
	q := u.Query()
	q.Set(c.identityParam, identity)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/digital-inventory/internal/core/domain"
)

const defaultTimeout = 15 * time.Second

// Client talks to the inventory HTTP API. It satisfies port.InventoryAPI.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	logger     *zap.Logger
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.HTTPClient.Timeout = d
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a Client from a server URL (e.g. http://localhost:8080) and bearer token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/") + "/api",
		Token:      token,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response is the server's { success, data, error } envelope.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

// APIError is returned when the server answers with a non-2xx status.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) doJSON(req *http.Request, out interface{}) error {
	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	c.logger.Debug("api call",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return &APIError{Status: resp.StatusCode, Message: errResp.Error}
		}
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.doJSON(req, out)
}

func (c *Client) ListGroups(ctx context.Context) ([]domain.InventoryGroup, error) {
	var resp Response[[]domain.InventoryGroup]
	if err := c.sendJSON(ctx, http.MethodGet, "/inventory", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) CreateGroup(ctx context.Context, payload domain.GroupPayload) (*domain.InventoryGroup, error) {
	var resp Response[domain.InventoryGroup]
	if err := c.sendJSON(ctx, http.MethodPost, "/inventory", payload, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (c *Client) UpdateGroup(ctx context.Context, id string, payload domain.GroupPayload) (*domain.InventoryGroup, error) {
	var resp Response[domain.InventoryGroup]
	if err := c.sendJSON(ctx, http.MethodPut, "/inventory/"+url.PathEscape(id), payload, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (c *Client) DeleteGroup(ctx context.Context, id string) error {
	return c.sendJSON(ctx, http.MethodDelete, "/inventory/"+url.PathEscape(id), nil, nil)
}

func (c *Client) LinkProduct(ctx context.Context, groupID, productID string) error {
	return c.sendJSON(ctx, http.MethodPost, "/inventory/link",
		domain.LinkRequest{GroupID: groupID, ProductID: productID}, nil)
}

func (c *Client) UnlinkProduct(ctx context.Context, groupID string) error {
	return c.sendJSON(ctx, http.MethodPost, "/inventory/unlink",
		domain.UnlinkRequest{GroupID: groupID}, nil)
}

func (c *Client) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var resp Response[domain.Product]
	if err := c.sendJSON(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var resp Response[[]domain.Product]
	if err := c.sendJSON(ctx, http.MethodGet, "/products", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// UploadResult is the data of a successful upload.
type UploadResult struct {
	URL string `json:"url"`
}

// UploadImage sends a local image as multipart field "file" and returns its public URL.
func (c *Client) UploadImage(ctx context.Context, filePath, contentType string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		defer pw.Close()
		defer writer.Close()

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filepath.Base(filePath)))
		h.Set("Content-Type", contentType)
		part, err := writer.CreatePart(h)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/uploads", pr)
	if err != nil {
		pr.Close()
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var resp Response[UploadResult]
	if err := c.doJSON(req, &resp); err != nil {
		return "", err
	}
	return resp.Data.URL, nil
}

// Health checks GET /health, which lives outside /api.
func (c *Client) Health(ctx context.Context) error {
	base := strings.TrimSuffix(c.BaseURL, "/api")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, nil)
}

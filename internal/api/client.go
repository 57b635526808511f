package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/mod/semver"

	"github.com/ordo-todo/ordo-core/internal/record"
)

// Error is a non-2xx response from the remote API.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, body)
}

// Client talks to the remote Ordo API. The bearer token is settable at any
// time; requests without a token are the caller's responsibility to skip.
type Client struct {
	baseURL    string
	minVersion string
	httpClient *http.Client
	logger     *log.Logger

	mu    sync.RWMutex
	token string
}

// NewClient builds a client for the given base URL (including any version
// prefix, e.g. https://api.example.com/v1). minVersion, when non-empty, is
// the lowest acceptable server version for Health checks.
func NewClient(baseURL, minVersion string, timeout time.Duration, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		minVersion: minVersion,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// SetToken replaces the bearer token used on subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// HasToken reports whether a bearer token is set.
func (c *Client) HasToken() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s %s: %w", method, path, err)
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

// serverStamp extracts the updatedAt acknowledgement from a create/update
// response body. Falls back to now when the server omits it.
func (c *Client) serverStamp(body []byte) int64 {
	var resp struct {
		UpdatedAt string `json:"updatedAt"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.UpdatedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, resp.UpdatedAt); err == nil {
			return t.UnixMilli()
		}
	}
	c.logger.Printf("Response missing usable updatedAt, stamping with local time")
	return record.NowMillis()
}

// Create POSTs a local-format record to its collection endpoint. Returns
// the server's updatedAt acknowledgement as epoch millis.
func (c *Client) Create(ctx context.Context, et record.EntityType, local json.RawMessage) (int64, error) {
	collection, err := et.Collection()
	if err != nil {
		return 0, err
	}
	wire, err := ToWire(et, local)
	if err != nil {
		return 0, err
	}
	body, err := c.do(ctx, http.MethodPost, "/"+collection, wire)
	if err != nil {
		return 0, err
	}
	return c.serverStamp(body), nil
}

// Update PATCHes a local-format record. Returns the server's updatedAt
// acknowledgement as epoch millis.
func (c *Client) Update(ctx context.Context, et record.EntityType, id string, local json.RawMessage) (int64, error) {
	collection, err := et.Collection()
	if err != nil {
		return 0, err
	}
	wire, err := ToWire(et, local)
	if err != nil {
		return 0, err
	}
	body, err := c.do(ctx, http.MethodPatch, "/"+collection+"/"+url.PathEscape(id), wire)
	if err != nil {
		return 0, err
	}
	return c.serverStamp(body), nil
}

// Delete removes a record remotely. A 404 counts as success: the record is
// already gone.
func (c *Client) Delete(ctx context.Context, et record.EntityType, id string) error {
	collection, err := et.Collection()
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodDelete, "/"+collection+"/"+url.PathEscape(id), nil)
	if apiErr, ok := err.(*Error); ok && apiErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// Pull fetches records of one entity type changed since the given epoch
// millis (0 fetches everything) and returns them translated to the local
// format.
func (c *Client) Pull(ctx context.Context, et record.EntityType, sinceMillis int64) ([]json.RawMessage, error) {
	collection, err := et.Collection()
	if err != nil {
		return nil, err
	}
	path := "/" + collection
	if sinceMillis > 0 {
		since := time.UnixMilli(sinceMillis).UTC().Format(time.RFC3339Nano)
		path += "?updatedSince=" + url.QueryEscape(since)
	}

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var wireRecords []json.RawMessage
	if err := json.Unmarshal(body, &wireRecords); err != nil {
		return nil, fmt.Errorf("failed to decode %s collection response: %w", collection, err)
	}

	locals := make([]json.RawMessage, 0, len(wireRecords))
	for _, wire := range wireRecords {
		local, err := FromWire(et, wire)
		if err != nil {
			return nil, err
		}
		locals = append(locals, local)
	}
	return locals, nil
}

// Health checks server reachability and, when a minimum version is
// configured, rejects servers older than it.
func (c *Client) Health(ctx context.Context) error {
	body, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	if c.minVersion == "" {
		return nil
	}

	var health struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(body, &health); err != nil || health.Version == "" {
		c.logger.Printf("Health response missing version, skipping version gate")
		return nil
	}

	got := "v" + strings.TrimPrefix(health.Version, "v")
	want := "v" + strings.TrimPrefix(c.minVersion, "v")
	if !semver.IsValid(got) {
		c.logger.Printf("Server reported unparseable version %q, skipping version gate", health.Version)
		return nil
	}
	if semver.Compare(got, want) < 0 {
		return fmt.Errorf("server version %s is older than required %s", health.Version, c.minVersion)
	}
	return nil
}

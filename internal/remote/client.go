package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chapter-quiz-service/internal/domain"
)

// Client talks to a remote progress store over its HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// StatusError is a non-2xx answer from the remote store.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote store: %d %s", e.Status, e.Message)
}

func (c *Client) Progress(ctx context.Context, identity string) (domain.RemoteRecord, error) {
	var rec domain.RemoteRecord
	err := c.do(ctx, http.MethodGet, "/api/progress?identity="+url.QueryEscape(identity), nil, &rec)
	if rec.Chapters == nil {
		rec.Chapters = map[int]domain.RemoteAttempt{}
	}
	return rec, err
}

func (c *Client) SubmitAttempt(ctx context.Context, sub domain.AttemptSubmission) error {
	return c.do(ctx, http.MethodPost, "/api/attempts", sub, nil)
}

func (c *Client) BulkSync(ctx context.Context, req domain.SyncRequest) (domain.SyncReport, error) {
	var report domain.SyncReport
	err := c.do(ctx, http.MethodPost, "/api/sync", req, &report)
	return report, err
}

func (c *Client) Merge(ctx context.Context, req domain.MergeRequest) (domain.RemoteRecord, error) {
	var rec domain.RemoteRecord
	err := c.do(ctx, http.MethodPost, "/api/merge", req, &rec)
	return rec, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
		return &StatusError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

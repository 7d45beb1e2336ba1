package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the courier HTTP API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// Part mirrors the S3 wire naming used by the server.
type Part struct {
	PartNumber int    `json:"PartNumber"`
	ETag       string `json:"ETag"`
}

type uploadPlan struct {
	UploadID string   `json:"uploadId"`
	Key      string   `json:"key"`
	PartURLs []string `json:"partUrls"`
	PartSize int64    `json:"partSize"`
}

// FileRef is the stored-object reference passed to transfer creation.
type FileRef struct {
	StorageKey  string `json:"storage_key"`
	Name        string `json:"name"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type"`
}

type transferCreated struct {
	ID       string `json:"id"`
	Slug     string `json:"slug"`
	ShareURL string `json:"share_url"`
}

type apiError struct {
	Error string `json:"error"`
}

func (c *Client) createUpload(ctx context.Context, f LocalFile) (*uploadPlan, error) {
	var plan uploadPlan
	err := c.postJSON(ctx, "/api/upload/create", map[string]any{
		"fileName":    f.Name,
		"fileSize":    f.Size,
		"contentType": f.ContentType,
	}, &plan)
	if err != nil {
		return nil, err
	}
	if plan.UploadID == "" || len(plan.PartURLs) == 0 {
		return nil, fmt.Errorf("server returned an incomplete upload plan for %s", f.Name)
	}
	return &plan, nil
}

func (c *Client) completeUpload(ctx context.Context, key, uploadID string, parts []Part) error {
	return c.postJSON(ctx, "/api/upload/complete", map[string]any{
		"uploadId": uploadID,
		"key":      key,
		"parts":    parts,
	}, nil)
}

func (c *Client) abortUpload(ctx context.Context, key, uploadID string) error {
	return c.postJSON(ctx, "/api/upload/abort", map[string]any{
		"uploadId": uploadID,
		"key":      key,
	}, nil)
}

func (c *Client) createTransfer(ctx context.Context, files []FileRef, expiresAt *time.Time, password string) (*transferCreated, error) {
	body := map[string]any{"files": files}
	if expiresAt != nil {
		body["expiresAt"] = expiresAt
	}
	if password != "" {
		body["password"] = password
	}

	var created transferCreated
	if err := c.postJSON(ctx, "/api/transfers/create", body, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr apiError
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", path, apiErr.Error)
		}
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

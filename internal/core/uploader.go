package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// SendOptions control how the transfer is created after upload.
type SendOptions struct {
	ExpiresAt *time.Time
	Password  string
}

// SendResult is returned after a successful transfer.
type SendResult struct {
	TransferID string
	Slug       string
	ShareURL   string
}

// Uploader pushes local files to object storage part by part and then
// creates the transfer that references them.
type Uploader struct {
	client *Client
	out    io.Writer
}

func NewUploader(client *Client, out io.Writer) *Uploader {
	if out == nil {
		out = io.Discard
	}
	return &Uploader{client: client, out: out}
}

// Send uploads every file and creates a transfer for them. A failed part
// upload aborts the multipart session before returning.
func (u *Uploader) Send(ctx context.Context, files []LocalFile, opts SendOptions) (*SendResult, error) {
	refs := make([]FileRef, 0, len(files))

	for _, f := range files {
		ref, err := u.uploadOne(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", f.Name, err)
		}
		refs = append(refs, *ref)
	}

	created, err := u.client.createTransfer(ctx, refs, opts.ExpiresAt, opts.Password)
	if err != nil {
		return nil, err
	}

	return &SendResult{
		TransferID: created.ID,
		Slug:       created.Slug,
		ShareURL:   created.ShareURL,
	}, nil
}

func (u *Uploader) uploadOne(ctx context.Context, f LocalFile) (*FileRef, error) {
	plan, err := u.client.createUpload(ctx, f)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	parts := make([]Part, 0, len(plan.PartURLs))
	buf := make([]byte, plan.PartSize)

	for i, partURL := range plan.PartURLs {
		n, err := io.ReadFull(file, buf)
		if err != nil && err != io.ErrUnexpectedEOF {
			u.client.abortUpload(ctx, plan.Key, plan.UploadID)
			return nil, fmt.Errorf("read part %d: %w", i+1, err)
		}

		etag, err := u.putPart(ctx, partURL, buf[:n])
		if err != nil {
			u.client.abortUpload(ctx, plan.Key, plan.UploadID)
			return nil, fmt.Errorf("put part %d: %w", i+1, err)
		}

		parts = append(parts, Part{PartNumber: i + 1, ETag: etag})
		fmt.Fprintf(u.out, "  %s: part %d/%d\n", f.Name, i+1, len(plan.PartURLs))
	}

	if err := u.client.completeUpload(ctx, plan.Key, plan.UploadID, parts); err != nil {
		u.client.abortUpload(ctx, plan.Key, plan.UploadID)
		return nil, err
	}

	return &FileRef{
		StorageKey:  plan.Key,
		Name:        f.Name,
		SizeBytes:   f.Size,
		ContentType: f.ContentType,
	}, nil
}

func (u *Uploader) putPart(ctx context.Context, partURL string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, partURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.ContentLength = int64(len(data))

	resp, err := u.client.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	etag := strings.Trim(resp.Header.Get("ETag"), `"`)
	if etag == "" {
		return "", fmt.Errorf("storage returned no ETag")
	}
	return etag, nil
}

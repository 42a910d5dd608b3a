// Package audio fetches voice attachments and transcodes them into the
// fixed PCM format the recognition service expects.
package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// DownloadError indicates the attachment bytes could not be retrieved.
type DownloadError struct {
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("audio: download failed: %v", e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Download streams the file at url into dst. The destination is removed
// again on any failure so a half-written file never survives.
func Download(ctx context.Context, client *http.Client, url, dst string) error {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &DownloadError{Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return &DownloadError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DownloadError{Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return &DownloadError{Err: err}
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dst)
		return &DownloadError{Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return &DownloadError{Err: err}
	}
	return nil
}

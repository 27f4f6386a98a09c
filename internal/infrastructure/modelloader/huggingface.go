package modelloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"

	"github.com/spf13/afero"
)

const hfBaseURL = "https://huggingface.co"

// HTTPRegistry is the production Registry: HTTPS read-only access to the
// HuggingFace Hub's file-listing and download endpoints (spec §6).
type HTTPRegistry struct {
	client  *http.Client
	fs      afero.Fs
	baseURL string
}

// NewHTTPRegistry builds a registry client against the public Hub. baseURL
// is overridable for tests.
func NewHTTPRegistry(client *http.Client, fs afero.Fs, baseURL string) *HTTPRegistry {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = hfBaseURL
	}
	return &HTTPRegistry{client: client, fs: fs, baseURL: baseURL}
}

type hfFileEntry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// ListFiles lists a repo's files via the Hub's tree API.
func (r *HTTPRegistry) ListFiles(ctx context.Context, repo string) ([]RemoteFile, error) {
	endpoint := fmt.Sprintf("%s/api/models/%s/tree/main", r.baseURL, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, classifyNetworkError(err)
	}
	defer resp.Body.Close()
	if err := classifyHTTPStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var entries []hfFileEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, err
	}
	files := make([]RemoteFile, 0, len(entries))
	for _, e := range entries {
		if e.Type == "directory" {
			continue
		}
		files = append(files, RemoteFile{Name: e.Path, Size: e.Size})
	}
	return files, nil
}

// Download fetches one file from the repo to destPath.
func (r *HTTPRegistry) Download(ctx context.Context, repo, filename, destPath string) error {
	endpoint := fmt.Sprintf("%s/%s/resolve/main/%s", r.baseURL, repo, filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return classifyNetworkError(err)
	}
	defer resp.Body.Close()
	if err := classifyHTTPStatus(resp.StatusCode); err != nil {
		return err
	}

	out, err := r.fs.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, resp.Body)
	return err
}

// retriableError wraps an error with whether it is safe to retry, per spec
// §4.B's classification (429/5xx and network/timeout errors are retriable;
// 401/403/404 and unknown-host are not).
type retriableError struct {
	err       error
	retriable bool
}

func (e *retriableError) Error() string { return e.err.Error() }
func (e *retriableError) Unwrap() error { return e.err }

func classifyHTTPStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return &retriableError{err: fmt.Errorf("huggingface registry returned status %d", status), retriable: true}
	case status == 401 || status == 403 || status == 404:
		return &retriableError{err: fmt.Errorf("huggingface registry returned status %d", status), retriable: false}
	default:
		return &retriableError{err: fmt.Errorf("huggingface registry returned status %d", status), retriable: false}
	}
}

func classifyNetworkError(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &retriableError{err: err, retriable: false}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &retriableError{err: err, retriable: true}
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return &retriableError{err: err, retriable: true}
	}
	// Generic connection errors (refused, reset) are retriable.
	return &retriableError{err: err, retriable: true}
}

func isRetriable(err error) bool {
	var re *retriableError
	if errors.As(err, &re) {
		return re.retriable
	}
	return false
}

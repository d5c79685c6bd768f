package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/brettbedarf/memfs"
	"github.com/brettbedarf/memfs/internal/util"
)

type HTTPMethod = string

const (
	HTTPMethodGet  HTTPMethod = "GET"
	HTTPMethodHead HTTPMethod = "HEAD"
	HTTPMethodPost HTTPMethod = "POST"
)

var ErrInvalidURL = errors.New("invalid source url")

// HTTPSource contains http-specific source request fields
type HTTPSource struct {
	URL     string            `json:"url"`
	Method  *HTTPMethod       `json:"method,omitempty"` // Default is GET
	Headers map[string]string `json:"headers,omitempty"`
}

// HTTPClient is the subset of *http.Client the adapters use
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPProvider builds [HTTPAdapter]s sharing one client
type HTTPProvider struct {
	client HTTPClient
}

// NewHTTPProvider returns a provider using client, or http.DefaultClient if
// client is nil
func NewHTTPProvider(client HTTPClient) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{client: client}
}

func RegisterHTTP(r *Registry) {
	r.Register(HTTPAdapterType, NewHTTPProvider(nil))
}

func (p *HTTPProvider) NewAdapter(config []byte) (memfs.FileAdapter, error) {
	var src HTTPSource
	if err := json.Unmarshal(config, &src); err != nil {
		return nil, err
	}
	u, err := validateURL(src.URL)
	if err != nil {
		return nil, err
	}
	src.URL = u
	return &HTTPAdapter{client: p.client, config: &src}, nil
}

// validateURL accepts absolute http(s) URLs without credentials
func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	case u.Host == "":
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	case u.User != nil:
		return "", fmt.Errorf("%w: user info is not allowed", ErrInvalidURL)
	}
	return u.String(), nil
}

// HTTPAdapter implements [memfs.FileAdapter] for HTTP sources
type HTTPAdapter struct {
	client HTTPClient
	config *HTTPSource
}

func (h *HTTPAdapter) newRequest(ctx context.Context, method HTTPMethod) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, h.config.URL, nil)
	if err != nil {
		return nil, err
	}

	// Add custom headers
	for k, v := range h.config.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// Read issues a ranged request. Servers ignoring the Range header are
// handled by skipping to offset in the full body.
func (h *HTTPAdapter) Read(ctx context.Context, offset int64, size int64, buf []byte) (int, error) {
	logger := util.GetLogger("HTTPAdapter.Read")

	size = min(size, int64(len(buf)))
	if size <= 0 {
		return 0, nil
	}
	req, err := h.newRequest(ctx, h.getMethod())
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+size-1))

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		logger.Debug().Str("url", h.config.URL).Msg("Server ignored range request, skipping to offset")
		if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
			if errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			return 0, err
		}
	case http.StatusRequestedRangeNotSatisfiable:
		return 0, io.EOF
	default:
		return 0, fmt.Errorf("GET %s: unexpected status %s", h.config.URL, resp.Status)
	}

	n, err := io.ReadFull(resp.Body, buf[:size])
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

// GetMeta issues a HEAD request for size, modification time and ETag
func (h *HTTPAdapter) GetMeta(ctx context.Context) (*memfs.FileMetadata, error) {
	req, err := h.newRequest(ctx, HTTPMethodHead)
	if err != nil {
		return nil, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HEAD %s: unexpected status %s", h.config.URL, resp.Status)
	}

	meta := &memfs.FileMetadata{
		Version: resp.Header.Get("ETag"),
	}
	if resp.ContentLength > 0 {
		meta.Size = uint64(resp.ContentLength)
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			meta.LastModified = &t
		}
	}
	return meta, nil
}

func (h *HTTPAdapter) getMethod() HTTPMethod {
	if h.config.Method != nil {
		return *h.config.Method
	}
	return HTTPMethodGet
}

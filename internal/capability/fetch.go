// Package capability implements the external collaborators the rules engine
// calls through: content-type classification, process execution, desktop
// notifications and HTTP fetches.
package capability

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

// DefaultUserAgent is sent with every request unless configured otherwise.
// Some hosts answer HEAD requests from unknown agents with 403.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

// HTTPFetcher issues GET and HEAD requests with a fixed User-Agent.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher returns a fetcher using client, or a client with a 30s
// header timeout when client is nil.
func NewHTTPFetcher(client *http.Client, userAgent string) *HTTPFetcher {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPFetcher{client: client, userAgent: userAgent}
}

// Get returns the body of url. Non-2xx responses are errors.
func (f *HTTPFetcher) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := f.do(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Head returns the media type of url from its Content-Type header, without
// parameters.
func (f *HTTPFetcher) Head(ctx context.Context, url string) (string, error) {
	resp, err := f.do(ctx, http.MethodHead, url)
	if err != nil {
		return "", err
	}
	resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		return "", fmt.Errorf("HEAD %s: no Content-Type header", url)
	}
	return MediaType(contentType), nil
}

func (f *HTTPFetcher) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: %s", method, url, resp.Status)
	}
	return resp, nil
}

// MediaType strips parameters from a Content-Type value:
// "text/html; charset=utf-8" becomes "text/html".
func MediaType(contentType string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType
	}
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}

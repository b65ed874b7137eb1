package platform

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rflorenc/avi-test-automation/internal/config"
	"github.com/rflorenc/avi-test-automation/internal/models"
)

// ErrPagination is returned when a collection's next link leaves the
// controller or revisits a page.
var ErrPagination = errors.New("invalid pagination link")

// RequestError is returned for any response outside the 2xx range.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, truncate(e.Body, 200))
}

// Client is the authenticated JSON client used by workflows.
type Client struct {
	baseURL    string
	headers    http.Header
	httpClient *http.Client
	log        zerolog.Logger
}

// NewHTTPClient builds the transport shared by Client and Authenticator from
// the API settings.
func NewHTTPClient(api config.APIConfig) (*http.Client, error) {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if api.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	} else if api.CACert != "" {
		pem, err := os.ReadFile(api.CACert)
		if err != nil {
			return nil, fmt.Errorf("reading CA bundle: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", api.CACert)
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: caCertPool}
	}
	return &http.Client{Transport: transport, Timeout: api.Timeout}, nil
}

// NewClient creates a Client that sends headers (typically the bearer
// authorization header) on every request.
func NewClient(api config.APIConfig, headers http.Header, logger zerolog.Logger) (*Client, error) {
	httpClient, err := NewHTTPClient(api)
	if err != nil {
		return nil, err
	}
	return newClient(api.BaseURL, headers, httpClient, logger), nil
}

func newClient(baseURL string, headers http.Header, httpClient *http.Client, logger zerolog.Logger) *Client {
	h := make(http.Header)
	for k, v := range headers {
		h[k] = append([]string(nil), v...)
	}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		headers:    h,
		httpClient: httpClient,
		log:        logger.With().Str("component", "client").Logger(),
	}
}

// Get performs a GET request and returns the decoded response.
func (c *Client) Get(path string) (models.Resource, error) {
	return c.do(http.MethodGet, path, nil)
}

// Post performs a POST request with an optional JSON body.
func (c *Client) Post(path string, payload interface{}) (models.Resource, error) {
	return c.do(http.MethodPost, path, payload)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(path string, payload interface{}) (models.Resource, error) {
	return c.do(http.MethodPut, path, payload)
}

// List fetches all pages of a collection endpoint, returning all results.
// Next links must stay on the base URL's scheme and host, and no page is
// fetched twice.
func (c *Client) List(path string) ([]models.Resource, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	var all []models.Resource
	seen := make(map[string]bool)
	current := path

	for current != "" {
		pageURL := c.endpointURL(current)
		if seen[pageURL] {
			return nil, fmt.Errorf("GET %s: %w: page already fetched", path, ErrPagination)
		}
		seen[pageURL] = true

		body, err := c.send(http.MethodGet, current, nil)
		if err != nil {
			return nil, err
		}

		var page models.Collection
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
		all = append(all, page.Results...)

		current = ""
		if page.Next != nil && *page.Next != "" {
			current, err = resolveNext(base, pageURL, *page.Next)
			if err != nil {
				return nil, fmt.Errorf("GET %s: %w", path, err)
			}
		}
	}
	return all, nil
}

// resolveNext resolves a next link against the page it came from and
// rejects links pointing away from the controller.
func resolveNext(base *url.URL, pageURL, next string) (string, error) {
	page, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPagination, err)
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrPagination, next, err)
	}
	u := page.ResolveReference(ref)
	if u.Scheme != base.Scheme || !strings.EqualFold(u.Host, base.Host) {
		return "", fmt.Errorf("%w: %q is not on %s://%s", ErrPagination, next, base.Scheme, base.Host)
	}
	return u.String(), nil
}

func (c *Client) do(method, path string, payload interface{}) (models.Resource, error) {
	body, err := c.send(method, path, payload)
	if err != nil {
		return nil, err
	}
	res := models.Resource{}
	if len(bytes.TrimSpace(body)) == 0 {
		return res, nil
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return res, nil
}

// send issues the request and returns the raw body of a 2xx response. path
// may be relative to the base URL or an absolute URL (pagination links).
func (c *Client) send(method, path string, payload interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.endpointURL(path), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func (c *Client) endpointURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + path
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

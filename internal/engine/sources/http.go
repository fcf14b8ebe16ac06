package sources

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/archconv/archconv/internal/engine"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/samber/lo"
)

const DefaultHTTPTimeout = 5 * time.Minute

var defaultHeaders = map[string]string{
	"User-Agent": "archconv",
	"Accept":     "*/*",
}

type HTTPConfig struct {
	Headers  map[string]string
	Auth     *BasicAuthConfig
	Timeout  time.Duration
	Insecure bool
}

type BasicAuthConfig struct {
	Username string
	Password string
	Encoded  string
}

// HTTPSource downloads an archive over http(s) into the spool directory.
type HTTPSource struct {
	url        *url.URL
	httpClient *http.Client
	headers    map[string]string
	spool      engine.SpoolConfig
}

type HTTPOption func(*HTTPSource)

func WithHTTPClient(httpClient *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		s.httpClient = httpClient
	}
}

func NewHTTPSource(rawURL string, cfg HTTPConfig, spool engine.SpoolConfig, opts ...HTTPOption) (*HTTPSource, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url '%s': %w", rawURL, err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("url must use http or https scheme, got: %s", parsedURL.Scheme)
	}

	headers := lo.Assign(defaultHeaders, cfg.Headers)
	if cfg.Auth != nil {
		if cfg.Auth.Encoded != "" {
			headers["Authorization"] = "Basic " + cfg.Auth.Encoded
		} else {
			headers["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.Auth.Username+":"+cfg.Auth.Password))
		}
	}

	source := &HTTPSource{
		url:     parsedURL,
		headers: headers,
		spool:   spool,
	}

	for _, opt := range opts {
		opt(source)
	}

	if source.httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultHTTPTimeout
		}

		transport := cleanhttp.DefaultPooledTransport()
		if cfg.Insecure {
			if transport.TLSClientConfig == nil {
				transport.TLSClientConfig = &tls.Config{}
			}

			transport.TLSClientConfig.InsecureSkipVerify = true
		}

		source.httpClient = &http.Client{
			Transport: transport,
			Timeout:   timeout,
		}
	}

	return source, nil
}

func (s *HTTPSource) Name() string {
	return s.url.Redacted()
}

func (s *HTTPSource) Kind() string {
	return s.url.Scheme
}

func (s *HTTPSource) Open(ctx context.Context) (engine.Handle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return spoolFrom(s.spool, resp.Body, s.Name())
}

package client

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adobe/aio-tvm/internal/api/middleware"
)

// Client talks to a TVM server.
type Client struct {
	server     *url.URL
	httpClient *http.Client
	authToken  string
}

type Option func(*Client)

// WithAuthToken sets the admin session token sent as a Bearer token.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = token
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New returns a client for the server at the given base URL.
func New(server string, opts ...Option) (*Client, error) {
	if server == "" {
		return nil, fmt.Errorf("server address is required")
	}
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("parsing server address: %w", err)
	}

	c := &Client{
		server:     u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type urlBuilder struct {
	u     url.URL
	query url.Values
}

func (c *Client) url() *urlBuilder {
	return &urlBuilder{u: *c.server, query: url.Values{}}
}

func (b *urlBuilder) setPath(path string) *urlBuilder {
	b.u.Path = strings.TrimSuffix(b.u.Path, "/") + path
	return b
}

func (b *urlBuilder) addQueryParam(key string, value any) *urlBuilder {
	b.query.Add(key, fmt.Sprint(value))
	return b
}

func (b *urlBuilder) build() string {
	u := b.u
	u.RawQuery = b.query.Encode()
	return u.String()
}

func correlationFromResponse(resp *http.Response) string {
	return resp.Header.Get(middleware.CorrelationIDHeader)
}

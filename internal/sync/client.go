package sync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tl-its-umich-edu/placement-exams/internal/config"
	"github.com/tl-its-umich-edu/placement-exams/internal/logger"
	pkgerrors "github.com/tl-its-umich-edu/placement-exams/pkg/errors"

	"github.com/rs/zerolog"
)

// Request addresses one API Directory resource. Params become the query
// string; Body is sent as-is.
type Request struct {
	Path    string
	Scope   string
	Method  string
	Params  url.Values
	Body    []byte
	Headers map[string]string
}

// Response is returned for every completed HTTP exchange, whatever its status.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        string
}

type Caller interface {
	Call(ctx context.Context, req Request) (*Response, error)
}

type TokenProvider interface {
	GetToken(ctx context.Context, scope string) (string, error)
}

type Client struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
	tokens     TokenProvider
	log        zerolog.Logger
}

func NewClient(cfg *config.Config) (*Client, error) {
	api := cfg.ExternalAPI.APIDirectory
	if api.BaseURL == "" || api.TokenURL == "" || api.ClientID == "" || api.ClientSecret == "" {
		return nil, pkgerrors.ErrMissingCredentials
	}

	return NewClientWithTokens(api, NewAuthManager(api)), nil
}

func NewClientWithTokens(api config.APIDirectoryConfig, tokens TokenProvider) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(api.BaseURL, "/"),
		clientID: api.ClientID,
		httpClient: &http.Client{
			Timeout: api.Timeout,
		},
		tokens: tokens,
		log:    logger.Get(),
	}
}

func (c *Client) Call(ctx context.Context, req Request) (*Response, error) {
	token, err := c.tokens.GetToken(ctx, req.Scope)
	if err != nil {
		return nil, err
	}

	fullURL := c.baseURL + "/" + strings.TrimPrefix(req.Path, "/")
	if len(req.Params) > 0 {
		fullURL += "?" + req.Params.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("X-IBM-Client-Id", c.clientID)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	c.log.Debug().Str("method", req.Method).Str("url", fullURL).Msg("Calling API Directory")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, pkgerrors.NewRetryableError(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.NewRetryableError(err, "failed to read response body")
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		URL:        resp.Request.URL.String(),
	}, nil
}

// NextPageParams returns the query parameters of the rel="next" Link header
// entry, or nil on the last page.
func NextPageParams(resp *Response) (url.Values, error) {
	if resp == nil {
		return nil, nil
	}
	for _, header := range resp.Header.Values("Link") {
		for _, link := range strings.Split(header, ",") {
			target, rel, ok := parseLink(link)
			if !ok || rel != "next" {
				continue
			}
			u, err := url.Parse(target)
			if err != nil {
				return nil, fmt.Errorf("invalid next link %q: %w", target, err)
			}
			return u.Query(), nil
		}
	}
	return nil, nil
}

func parseLink(link string) (string, string, bool) {
	parts := strings.Split(link, ";")
	target := strings.TrimSpace(parts[0])
	if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
		return "", "", false
	}
	target = target[1 : len(target)-1]

	for _, param := range parts[1:] {
		key, value, found := strings.Cut(strings.TrimSpace(param), "=")
		if found && strings.EqualFold(key, "rel") {
			return target, strings.Trim(value, `"`), true
		}
	}
	return "", "", false
}

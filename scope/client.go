package scope

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/caffeineduck/fnhost/hostfunc"
)

// Client is the API client handed to handlers. It only talks to the API
// host and authenticates with the account credentials.
type Client struct {
	accountSID string
	baseURL    string
	http       *hostfunc.HTTP
}

// ClientRequest is one API call. URI is either absolute or relative to the
// API base URL. Data is sent as the query string for GET and DELETE and as a
// form body otherwise.
type ClientRequest struct {
	Method  string            `json:"method"`
	URI     string            `json:"uri"`
	Data    map[string]any    `json:"data,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// NewClient returns a client for baseURL. Credentials are not validated here.
func NewClient(accountSID, authToken, baseURL string) *Client {
	host := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return &Client{
		accountSID: accountSID,
		baseURL:    strings.TrimRight(baseURL, "/"),
		http: hostfunc.NewHTTP(hostfunc.HTTPConfig{
			AllowedHosts: []string{host},
			Username:     accountSID,
			Password:     authToken,
		}),
	}
}

// AccountSID returns the account the client acts for.
func (c *Client) AccountSID() string {
	return c.accountSID
}

// Request performs an API call.
func (c *Client) Request(ctx context.Context, req ClientRequest) (*hostfunc.HTTPResponse, error) {
	target := req.URI
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(target, "/")
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	httpReq := hostfunc.HTTPRequest{Method: method, URL: target, Headers: req.Headers}
	if len(req.Data) > 0 {
		form := make(map[string]string, len(req.Data))
		for k, v := range req.Data {
			form[k] = fmt.Sprint(v)
		}
		if method == http.MethodGet || method == http.MethodDelete {
			u, err := url.Parse(target)
			if err != nil {
				return nil, fmt.Errorf("invalid uri %q: %w", req.URI, err)
			}
			q := u.Query()
			for k, v := range form {
				q.Set(k, v)
			}
			u.RawQuery = q.Encode()
			httpReq.URL = u.String()
		} else {
			httpReq.Form = form
		}
	}

	resp, err := c.http.Do(ctx, httpReq)
	if err != nil {
		return nil, fmt.Errorf("api request %s %s: %w", method, req.URI, err)
	}
	return resp, nil
}

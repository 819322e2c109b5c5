// SPDX-FileCopyrightText: Copyright 2026 iHildy
// SPDX-License-Identifier: Apache-2.0

package heb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// defaultBaseURL is the vendor API origin requests are made against.
const defaultBaseURL = "https://www.heb.com"

// defaultClientTimeout bounds vendor API calls when the caller supplies no
// custom HTTP client.
const defaultClientTimeout = 30 * time.Second

// Client is the vendor API client facade. It owns a Session and attaches its
// credential material (cookies or bearer token) to every outbound request.
// Domain methods (products, carts, orders) live with the consumers of this
// package; the facade only handles construction and authentication.
type Client struct {
	session    *Session
	httpClient *http.Client
	baseURL    string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBaseURL overrides the vendor API origin.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// NewClient builds a vendor API client around the given session.
func NewClient(session *Session, opts ...ClientOption) (*Client, error) {
	if session == nil {
		return nil, errors.New("session is required")
	}

	c := &Client{
		session:    session,
		httpClient: &http.Client{Timeout: defaultClientTimeout},
		baseURL:    defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Session returns the session backing this client.
func (c *Client) Session() *Session {
	return c.session
}

// AuthMode returns the session's authentication mode.
func (c *Client) AuthMode() AuthMode {
	return c.session.AuthMode
}

// NewRequest builds a vendor API request with the session's credential
// material attached. path must start with "/".
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	c.authenticate(req)
	return req, nil
}

// Do executes a request built with NewRequest.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

func (c *Client) authenticate(req *http.Request) {
	switch c.session.AuthMode {
	case AuthModeBearer:
		if c.session.Tokens != nil {
			req.Header.Set("Authorization", "Bearer "+c.session.Tokens.AccessToken)
		}
		// Bearer sessions may still carry anti-bot cookies.
		if len(c.session.Cookies) > 0 {
			req.Header.Set("Cookie", c.session.Cookies.Header())
		}
	case AuthModeCookie:
		req.Header.Set("Cookie", c.session.Cookies.Header())
	}
}

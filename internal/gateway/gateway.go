// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package gateway is the thin network boundary against the remote document
// store. Documents travel in a {"data": ...} envelope addressed by
// /api/tenant-data/{scope}/{key}; two aggregate endpoints bundle related
// documents to cut first-paint round trips.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cardinalhq/tenantsync/internal/scope"
)

// AuthTokenProvider supplies the bearer token attached to every request.
// Session handling itself is a collaborator's concern.
type AuthTokenProvider interface {
	AuthToken(ctx context.Context) (string, error)
}

// StaticToken is an AuthTokenProvider for a fixed token. The empty string
// sends no auth header at all.
type StaticToken string

func (s StaticToken) AuthToken(context.Context) (string, error) { return string(s), nil }

// BootstrapPayload is the first-paint bundle.
type BootstrapPayload struct {
	Products      json.RawMessage `json:"products"`
	ThemeConfig   json.RawMessage `json:"theme_config"`
	WebsiteConfig json.RawMessage `json:"website_config"`
}

// SecondaryPayload is the deferred bundle loaded after first paint.
type SecondaryPayload struct {
	Orders          json.RawMessage `json:"orders"`
	Logo            json.RawMessage `json:"logo"`
	DeliveryConfig  json.RawMessage `json:"delivery_config"`
	ChatMessages    json.RawMessage `json:"chat_messages"`
	LandingPages    json.RawMessage `json:"landing_pages"`
	Categories      json.RawMessage `json:"categories"`
	Subcategories   json.RawMessage `json:"subcategories"`
	ChildCategories json.RawMessage `json:"child_categories"`
	Brands          json.RawMessage `json:"brands"`
	Tags            json.RawMessage `json:"tags"`
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAuth sets the token provider.
func WithAuth(p AuthTokenProvider) Option {
	return func(c *Client) { c.auth = p }
}

// Client talks to the tenant-data endpoints. Timeouts are the transport's
// concern; the default client carries a generous overall deadline.
type Client struct {
	baseURL string
	http    *http.Client
	auth    AuthTokenProvider
}

// New builds a Client for baseURL (scheme and host, no trailing slash
// required).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		auth:    StaticToken(""),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) documentURL(tenantID, key string) string {
	return fmt.Sprintf("%s/api/tenant-data/%s/%s",
		c.baseURL, url.PathEscape(scope.Normalize(tenantID)), url.PathEscape(key))
}

// FetchDocument retrieves one document. A stored null (or absent) document
// returns (nil, nil); only transport and non-2xx failures are errors.
func (c *Client) FetchDocument(ctx context.Context, tenantID, key string) (json.RawMessage, error) {
	var env envelope
	if err := c.getJSON(ctx, c.documentURL(tenantID, key), &env); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil, nil
	}
	return env.Data, nil
}

// PersistDocument stores one document.
func (c *Client) PersistDocument(ctx context.Context, tenantID, key string, data json.RawMessage) error {
	body, err := json.Marshal(envelope{Data: data})
	if err != nil {
		return fmt.Errorf("persist %s: encode: %w", key, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.documentURL(tenantID, key), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("persist %s: %s", key, remoteError(resp))
	}
	return nil
}

// FetchBootstrap retrieves the first-paint bundle in one round trip.
func (c *Client) FetchBootstrap(ctx context.Context, tenantID string) (*BootstrapPayload, error) {
	u := fmt.Sprintf("%s/api/tenant-data/%s/bootstrap", c.baseURL, url.PathEscape(scope.Normalize(tenantID)))
	var env struct {
		Data BootstrapPayload `json:"data"`
	}
	if err := c.getJSON(ctx, u, &env); err != nil {
		return nil, fmt.Errorf("fetch bootstrap: %w", err)
	}
	return &env.Data, nil
}

// FetchSecondary retrieves the deferred bundle in one round trip.
func (c *Client) FetchSecondary(ctx context.Context, tenantID string) (*SecondaryPayload, error) {
	u := fmt.Sprintf("%s/api/tenant-data/%s/secondary", c.baseURL, url.PathEscape(scope.Normalize(tenantID)))
	var env struct {
		Data SecondaryPayload `json:"data"`
	}
	if err := c.getJSON(ctx, u, &env); err != nil {
		return nil, fmt.Errorf("fetch secondary: %w", err)
	}
	return &env.Data, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return remoteError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	token, err := c.auth.AuthToken(ctx)
	if err != nil {
		return fmt.Errorf("auth token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// remoteError extracts the {"error": ...} message from a non-2xx response
// body, falling back to the HTTP status.
func remoteError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return fmt.Errorf("remote: %s", body.Error)
	}
	return fmt.Errorf("remote: %s", resp.Status)
}

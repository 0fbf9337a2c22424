// Package httpclient implements the remote gateways over the REST surface
// served by the remote server package.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"finsync/internal/core"
	"finsync/internal/middleware/trace"
	"finsync/internal/remote"
)

const maxErrorBody = 4 << 10

// Client is a thin JSON client for the remote service. It never retries.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

var (
	_ remote.TransactionTotals = (*Client)(nil)
	_ remote.ProfileGateway    = (*Client)(nil)
)

type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends token as a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a client for baseURL. Per-call deadlines come from the caller's
// context; the default transport timeout is only a backstop.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse remote base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote base url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	requestID := trace.GetRequestID(ctx)
	if requestID == "" {
		requestID = trace.NewRequestID()
	}
	req.Header.Set(trace.HeaderRequestID, requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		return remote.Transport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return remote.Transport(ctx.Err())
		}
		return fmt.Errorf("%w: decode %s %s: %v", remote.ErrServer, method, path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(raw))

	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &remote.StatusError{Code: resp.StatusCode, Body: msg}
}

func ownerQuery(ownerID int64) url.Values {
	return url.Values{"owner": []string{strconv.FormatInt(ownerID, 10)}}
}

func (c *Client) MonthlyTotals(ctx context.Context, ownerID int64) ([]core.PeriodTotal, error) {
	var out []core.PeriodTotal
	if err := c.do(ctx, http.MethodGet, "/transactions/totals/monthly", ownerQuery(ownerID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) YearlyTotals(ctx context.Context, ownerID int64) ([]core.PeriodTotal, error) {
	var out []core.PeriodTotal
	if err := c.do(ctx, http.MethodGet, "/transactions/totals/yearly", ownerQuery(ownerID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetProfile(ctx context.Context, userID int64) (core.Profile, error) {
	var p core.Profile
	err := c.do(ctx, http.MethodGet, "/users/"+strconv.FormatInt(userID, 10), nil, nil, &p)
	return p, err
}

func (c *Client) UpdateProfile(ctx context.Context, userID int64, profile core.Profile) (core.Profile, error) {
	var p core.Profile
	err := c.do(ctx, http.MethodPut, "/users/"+strconv.FormatInt(userID, 10), nil, profile, &p)
	return p, err
}

// Resource is one REST collection. It implements remote.Gateway.
type Resource[T core.Record[T]] struct {
	client *Client
	path   string
}

var _ remote.Gateway[core.Transaction] = (*Resource[core.Transaction])(nil)

// NewResource binds a collection path (see remote.Paths) to c.
func NewResource[T core.Record[T]](c *Client, path string) *Resource[T] {
	return &Resource[T]{client: c, path: path}
}

func (r *Resource[T]) item(id int64) string {
	return r.path + "/" + strconv.FormatInt(id, 10)
}

func (r *Resource[T]) ListByOwner(ctx context.Context, ownerID int64) ([]T, error) {
	var out []T
	if err := r.client.do(ctx, http.MethodGet, r.path, ownerQuery(ownerID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resource[T]) Get(ctx context.Context, id int64) (T, error) {
	var out T
	err := r.client.do(ctx, http.MethodGet, r.item(id), nil, nil, &out)
	return out, err
}

func (r *Resource[T]) Create(ctx context.Context, record T) (T, error) {
	var out T
	err := r.client.do(ctx, http.MethodPost, r.path, nil, record, &out)
	return out, err
}

func (r *Resource[T]) Update(ctx context.Context, id int64, record T) (T, error) {
	var out T
	err := r.client.do(ctx, http.MethodPut, r.item(id), nil, record, &out)
	return out, err
}

func (r *Resource[T]) Delete(ctx context.Context, id int64) error {
	return r.client.do(ctx, http.MethodDelete, r.item(id), nil, nil, nil)
}

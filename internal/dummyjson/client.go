// Package dummyjson implements the product resource and login against the
// dummyjson.com REST API.
package dummyjson

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/crm-dashboard/internal/domain/auth"
	"github.com/xenking/crm-dashboard/internal/domain/product"
)

// DefaultBaseURL is the public dummyjson endpoint.
const DefaultBaseURL = "https://dummyjson.com"

// maxBody caps how much of a response is read.
const maxBody = 4 << 20

// StatusError is returned for any non-2xx upstream response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream status %d", e.Code)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Message)
}

// Options configures a Client.
type Options struct {
	// Timeout bounds every request including reading the body.
	Timeout time.Duration
	// SessionMinutes is sent as expiresInMins on login. Zero leaves the
	// upstream default.
	SessionMinutes int

	Logger         *zap.Logger
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
	// Transport overrides the base round tripper, mostly for tests.
	Transport http.RoundTripper
}

// Client talks to the upstream API. It implements product.Repository and
// auth.Authenticator.
type Client struct {
	base           *url.URL
	http           *http.Client
	lg             *zap.Logger
	sessionMinutes int
}

var (
	_ product.Repository = (*Client)(nil)
	_ auth.Authenticator = (*Client)(nil)
)

// New creates a client for baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("base url %q must be absolute", baseURL)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	var otelOpts []otelhttp.Option
	if opts.MeterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(opts.MeterProvider))
	}
	if opts.TracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(opts.TracerProvider))
	}

	return &Client{
		base: u,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(base, otelOpts...),
		},
		lg:             opts.Logger,
		sessionMinutes: opts.SessionMinutes,
	}, nil
}

// ListProducts fetches one page of the product collection.
func (c *Client) ListProducts(ctx context.Context, page product.Page) (product.Collection, error) {
	page = page.Normalize()
	q := url.Values{}
	q.Set("limit", strconv.Itoa(page.Limit))
	q.Set("skip", strconv.Itoa(page.Skip))

	var col product.Collection
	if err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/products",
		query:  q,
		decode: col.Decode,
	}); err != nil {
		return product.Collection{}, errors.Wrap(err, "list products")
	}
	return col, nil
}

// GetProduct fetches a single product.
func (c *Client) GetProduct(ctx context.Context, id int64) (product.Product, error) {
	var p product.Product
	if err := c.do(ctx, request{
		method: http.MethodGet,
		path:   productPath(id),
		decode: p.Decode,
	}); err != nil {
		return product.Product{}, errors.Wrapf(notFound(err), "get product %d", id)
	}
	return p, nil
}

// CreateProduct posts a new product. The upstream simulates the write and
// echoes the product with an assigned id.
func (c *Client) CreateProduct(ctx context.Context, in product.Input) (product.Product, error) {
	var p product.Product
	if err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/products/add",
		encode: in.Encode,
		decode: p.Decode,
	}); err != nil {
		return product.Product{}, errors.Wrap(err, "create product")
	}
	return p, nil
}

// UpdateProduct sends only the fields set in patch.
func (c *Client) UpdateProduct(ctx context.Context, id int64, patch product.Patch) (product.Product, error) {
	var p product.Product
	if err := c.do(ctx, request{
		method: http.MethodPut,
		path:   productPath(id),
		encode: patch.Encode,
		decode: p.Decode,
	}); err != nil {
		return product.Product{}, errors.Wrapf(notFound(err), "update product %d", id)
	}
	return p, nil
}

// DeleteProduct deletes a product. A response without the isDeleted flag is
// treated as a failure.
func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	var deleted bool
	if err := c.do(ctx, request{
		method: http.MethodDelete,
		path:   productPath(id),
		decode: func(d *jx.Decoder) error {
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "isDeleted" {
					return d.Skip()
				}
				v, err := d.Bool()
				deleted = v
				return err
			})
		},
	}); err != nil {
		return errors.Wrapf(notFound(err), "delete product %d", id)
	}
	if !deleted {
		return errors.Errorf("delete product %d: not acknowledged", id)
	}
	return nil
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, creds auth.Credentials) (auth.Session, error) {
	var s auth.Session
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/login",
		encode: func(e *jx.Encoder) {
			e.ObjStart()
			e.FieldStart("username")
			e.Str(creds.Username)
			e.FieldStart("password")
			e.Str(creds.Password)
			if c.sessionMinutes > 0 {
				e.FieldStart("expiresInMins")
				e.Int(c.sessionMinutes)
			}
			e.ObjEnd()
		},
		decode: func(d *jx.Decoder) error { return decodeSession(d, &s) },
	})
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.Code == http.StatusBadRequest || se.Code == http.StatusUnauthorized) {
			return auth.Session{}, errors.Wrap(auth.ErrInvalidCredentials, se.Message)
		}
		return auth.Session{}, errors.Wrap(err, "login")
	}
	return s, nil
}

// Me resolves the user behind an access token.
func (c *Client) Me(ctx context.Context, token string) (auth.User, error) {
	var u auth.User
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/auth/me",
		token:  token,
		decode: func(d *jx.Decoder) error { return decodeUser(d, &u) },
	})
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden) {
			return auth.User{}, errors.Wrap(auth.ErrUnauthorized, "resolve token")
		}
		return auth.User{}, errors.Wrap(err, "resolve token")
	}
	return u, nil
}

// Ping checks that the upstream answers.
func (c *Client) Ping(ctx context.Context) error {
	return errors.Wrap(c.do(ctx, request{method: http.MethodGet, path: "/test"}), "ping upstream")
}

type request struct {
	method string
	path   string
	query  url.Values
	token  string
	encode func(e *jx.Encoder)
	decode func(d *jx.Decoder) error
}

func (c *Client) do(ctx context.Context, r request) error {
	u := *c.base
	u.Path += r.path
	if r.query != nil {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.encode != nil {
		var e jx.Encoder
		r.encode(&e)
		body = bytes.NewReader(e.Bytes())
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	c.lg.Debug("Upstream request",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Message: errorMessage(data)}
	}
	if r.decode == nil {
		return nil
	}
	if err := r.decode(jx.DecodeBytes(data)); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func productPath(id int64) string {
	return "/products/" + strconv.FormatInt(id, 10)
}

func notFound(err error) error {
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return errors.Wrap(product.ErrNotFound, se.Message)
	}
	return err
}

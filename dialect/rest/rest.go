// Package rest implements the transport for the transactional Cypher REST
// endpoint of a graph server.
//
//	POST   {base}/db/data/transaction          begin
//	POST   {tx}                                execute
//	POST   {tx}/commit                         commit
//	DELETE {tx}                                rollback
//	POST   {base}/db/data/transaction/commit   single-shot execute
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/syssam/ogm/dialect"
)

const (
	transactionPath = "db/data/transaction"
	commitSuffix    = "/commit"
)

// Driver is a dialect.Driver speaking the transactional REST protocol.
type Driver struct {
	base     string
	client   *http.Client
	username string
	password string
	logger   *slog.Logger
}

// Option configures the Driver.
type Option func(*Driver)

// WithHTTPClient sets the HTTP client. The default has a 30s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Driver) {
		d.client = c
	}
}

// WithBasicAuth authenticates every request.
func WithBasicAuth(username, password string) Option {
	return func(d *Driver) {
		d.username, d.password = username, password
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = l
	}
}

// Open returns a driver for the server at baseURL.
func Open(baseURL string, opts ...Option) (*Driver, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("dialect/rest: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("dialect/rest: unsupported url scheme %q", u.Scheme)
	}
	d := &Driver{
		base:   strings.TrimSuffix(u.String(), "/") + "/",
		client: &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dialect implements dialect.Driver.
func (*Driver) Dialect() string { return dialect.HTTP }

// Close releases idle connections.
func (d *Driver) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

// Begin implements dialect.Driver. Single-shot endpoints are not opened on
// the server.
func (d *Driver) Begin(ctx context.Context, opts dialect.TxOptions) (dialect.Endpoint, error) {
	if opts.AutoCommit {
		return dialect.Endpoint{URL: d.base + transactionPath + commitSuffix, AutoCommit: true}, nil
	}
	resp, location, err := d.post(ctx, d.base+transactionPath, nil)
	if err != nil {
		return dialect.Endpoint{}, err
	}
	if err := resp.err(); err != nil {
		return dialect.Endpoint{}, err
	}
	if location == "" {
		return dialect.Endpoint{}, errors.New("dialect/rest: begin: no transaction location in response")
	}
	d.logger.Debug("rest transaction opened", "endpoint", location)
	return dialect.Endpoint{URL: location}, nil
}

// Execute implements dialect.Driver. Statements depending on identities
// created earlier in the batch are sent in later requests. A single-shot
// batch that needs more than one request runs in its own transaction.
func (d *Driver) Execute(ctx context.Context, ep dialect.Endpoint, stmts []dialect.Statement) ([]dialect.Result, error) {
	segments := dialect.Segments(stmts)
	if ep.SingleShot() && len(segments) > 1 {
		return d.executeInTransaction(ctx, stmts)
	}
	results := make([]dialect.Result, 0, len(stmts))
	ids := make(map[dialect.Ref]int64)
	for _, seg := range segments {
		req, err := newRequest(seg, ids)
		if err != nil {
			return nil, err
		}
		resp, _, err := d.post(ctx, ep.URL, req)
		if err != nil {
			return nil, err
		}
		if err := resp.err(); err != nil {
			return nil, err
		}
		if len(resp.Results) != len(seg) {
			return nil, fmt.Errorf("dialect/rest: %d results for %d statements", len(resp.Results), len(seg))
		}
		for i, s := range seg {
			r := resp.Results[i].convert()
			if s.Returns != "" {
				ids[s.Returns] = r.ID
			}
			results = append(results, r)
		}
	}
	return results, nil
}

func (d *Driver) executeInTransaction(ctx context.Context, stmts []dialect.Statement) ([]dialect.Result, error) {
	ep, err := d.Begin(ctx, dialect.TxOptions{})
	if err != nil {
		return nil, err
	}
	res, err := d.Execute(ctx, ep, stmts)
	if err != nil {
		if rerr := d.Rollback(ctx, ep); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return nil, err
	}
	return res, d.Commit(ctx, ep)
}

// Commit implements dialect.Driver.
func (d *Driver) Commit(ctx context.Context, ep dialect.Endpoint) error {
	if ep.SingleShot() {
		return nil
	}
	resp, _, err := d.post(ctx, ep.URL+commitSuffix, &request{Statements: []statement{}})
	if err != nil {
		return err
	}
	return resp.err()
}

// Rollback implements dialect.Driver.
func (d *Driver) Rollback(ctx context.Context, ep dialect.Endpoint) error {
	if ep.SingleShot() {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, ep.URL, nil)
	if err != nil {
		return fmt.Errorf("dialect/rest: rollback: %w", err)
	}
	resp, _, err := d.do(req)
	if err != nil {
		return err
	}
	return resp.err()
}

func (d *Driver) post(ctx context.Context, target string, body *request) (*response, string, error) {
	if body == nil {
		body = &request{Statements: []statement{}}
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("dialect/rest: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(buf))
	if err != nil {
		return nil, "", fmt.Errorf("dialect/rest: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return d.do(req)
}

func (d *Driver) do(req *http.Request) (*response, string, error) {
	req.Header.Set("Accept", "application/json; charset=UTF-8")
	if d.username != "" {
		req.SetBasicAuth(d.username, d.password)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("dialect/rest: %s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("dialect/rest: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, "", &StatusError{Method: req.Method, URL: req.URL.String(), Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	out := &response{}
	if len(body) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(out); err != nil {
			return nil, "", fmt.Errorf("dialect/rest: decode response: %w", err)
		}
	}
	return out, resp.Header.Get("Location"), nil
}

// StatusError is returned for responses with an unexpected HTTP status.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dialect/rest: %s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// ServerError is an error reported in the body of a response.
type ServerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ServerError) Error() string {
	return fmt.Sprintf("dialect/rest: %s: %s", e.Code, e.Message)
}

var _ dialect.Driver = (*Driver)(nil)

// Package store is a thin client for the vector store's REST and GraphQL API
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nainya/memsetup/internal/logger"
	"github.com/nainya/memsetup/internal/metrics"
)

// Operation names used for metrics labels and span names
const (
	OpListSchema   = "list_schema"
	OpCreateSchema = "create_schema"
	OpCreateObject = "create_object"
	OpGetObject    = "get_object"
	OpPutObject    = "put_object"
	OpDeleteObject = "delete_object"
	OpGraphQL      = "graphql"
)

var (
	// ErrMissingID indicates a create response without an object id
	ErrMissingID = errors.New("store: response has no id")

	// ErrMalformedResponse indicates a response body that is not valid JSON
	ErrMalformedResponse = errors.New("store: malformed response")
)

// StatusError is returned for any non-2xx response
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("store: %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("store: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// GraphQLError carries the messages of a GraphQL "errors" array
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "store: graphql: " + strings.Join(e.Messages, "; ")
}

// Client talks to one store instance
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// Option configures a Client
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	timeout    time.Duration
	log        *logger.Logger
	metrics    *metrics.Metrics
}

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = hc }
}

// WithTimeout sets a per-request timeout; zero keeps the transport default
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithLogger sets the logger used for request logging
func WithLogger(l *logger.Logger) Option {
	return func(o *clientOptions) { o.log = l }
}

// WithMetrics records every round trip in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *clientOptions) { o.metrics = m }
}

// NewClient creates a client for baseURL, e.g. http://localhost:8181
func NewClient(baseURL string, opts ...Option) *Client {
	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Nop()
	}

	hc := &http.Client{}
	if o.httpClient != nil {
		copied := *o.httpClient
		hc = &copied
	}
	if o.timeout > 0 {
		hc.Timeout = o.timeout
	}
	hc.Transport = newInstrumentedTransport(hc.Transport, o.metrics, o.log)

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
		log:        o.log,
	}
}

// BaseURL returns the store root the client targets
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListClasses returns the class names present in the store schema
func (c *Client) ListClasses(ctx context.Context) ([]string, error) {
	body, _, err := c.do(ctx, OpListSchema, http.MethodGet, "/v1/schema", nil)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: schema listing", ErrMalformedResponse)
	}

	var classes []string
	for _, name := range gjson.GetBytes(body, "classes.#.class").Array() {
		classes = append(classes, name.String())
	}
	return classes, nil
}

// CreateSchema posts a raw class definition and returns the response status
func (c *Client) CreateSchema(ctx context.Context, definition []byte) (int, error) {
	_, status, err := c.do(ctx, OpCreateSchema, http.MethodPost, "/v1/schema", definition)
	return status, err
}

// CreateObject inserts one object and returns its server-assigned id
func (c *Client) CreateObject(ctx context.Context, class string, properties map[string]any) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"class":      class,
		"properties": properties,
	})
	if err != nil {
		return "", fmt.Errorf("encode object: %w", err)
	}

	body, _, err := c.do(ctx, OpCreateObject, http.MethodPost, "/v1/objects", payload)
	if err != nil {
		return "", err
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("%w: create object", ErrMalformedResponse)
	}
	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return "", ErrMissingID
	}
	return id, nil
}

// GetObject returns the full raw JSON of one object
func (c *Client) GetObject(ctx context.Context, id string) ([]byte, error) {
	body, _, err := c.do(ctx, OpGetObject, http.MethodGet, objectPath(id), nil)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: object %s", ErrMalformedResponse, id)
	}
	return body, nil
}

// ReplaceObject PUTs a full object; the store replaces every property
func (c *Client) ReplaceObject(ctx context.Context, id string, object []byte) error {
	_, _, err := c.do(ctx, OpPutObject, http.MethodPut, objectPath(id), object)
	return err
}

// DeleteObject removes one object by id
func (c *Client) DeleteObject(ctx context.Context, id string) error {
	_, _, err := c.do(ctx, OpDeleteObject, http.MethodDelete, objectPath(id), nil)
	return err
}

// GraphQL runs a query and returns the raw response. A non-empty "errors"
// array is reported as *GraphQLError.
func (c *Client) GraphQL(ctx context.Context, query string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("encode graphql query: %w", err)
	}

	body, _, err := c.do(ctx, OpGraphQL, http.MethodPost, "/v1/graphql", payload)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: graphql", ErrMalformedResponse)
	}
	if errs := gjson.GetBytes(body, "errors"); errs.IsArray() && len(errs.Array()) > 0 {
		gqlErr := &GraphQLError{}
		for _, e := range errs.Array() {
			gqlErr.Messages = append(gqlErr.Messages, e.Get("message").String())
		}
		return nil, gqlErr
	}
	return body, nil
}

// QueryIDs returns the ids of objects in collection matching where (nil for
// all objects), at most limit of them.
func (c *Client) QueryIDs(ctx context.Context, collection string, where *Where, limit int) ([]string, error) {
	body, err := c.GraphQL(ctx, BuildIDQuery(collection, where, limit))
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, id := range gjson.GetBytes(body, "data.Get."+collection+".#._additional.id").Array() {
		if s := id.String(); s != "" {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

func objectPath(id string) string {
	return "/v1/objects/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, op, method, path string, payload []byte) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(withOperation(ctx, op), method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("store: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("store: read %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(body)), 512),
		}
	}
	return body, resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

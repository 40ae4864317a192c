package hubspot

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

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the public HubSpot API host.
	DefaultBaseURL = "https://api.hubapi.com"

	// searchPageSize is the maximum page size the search endpoints accept.
	searchPageSize = 100

	limiterKey = "hubspot"
)

// Limiter gates outbound requests. Implemented by ratelimit.TokenBucket.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// Client is a minimal HubSpot CRM v3/v4 client covering what the
// aggregation engines need: search with cursor pagination, owners,
// pipelines, properties, associations, and batch reads.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    Limiter
	log        *zap.SugaredLogger
	maxRetries int
}

// Option customizes the client.
type Option func(*Client)

func WithBaseURL(u string) Option           { return func(c *Client) { c.baseURL = u } }
func WithHTTPClient(h *http.Client) Option  { return func(c *Client) { c.httpClient = h } }
func WithLimiter(l Limiter) Option          { return func(c *Client) { c.limiter = l } }
func WithLogger(l *zap.SugaredLogger) Option { return func(c *Client) { c.log = l } }
func WithMaxRetries(n int) Option           { return func(c *Client) { c.maxRetries = n } }

// NewClient builds a client with a bearer token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        zap.NewNop().Sugar(),
		maxRetries: 5,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// APIError is a non-2xx response from HubSpot.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hubspot: status %d: %s", e.StatusCode, e.Body)
}

// do performs one API call with rate limiting and retry on 429/5xx.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	var retryAfter time.Duration
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt-1)) * time.Second
			if retryAfter > 0 {
				wait = retryAfter
			}
			c.log.Warnw("retrying hubspot request", "path", path, "attempt", attempt, "wait", wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		retryAfter = 0
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, limiterKey); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("hubspot request: %w", err)
			continue
		}
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
			retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			continue
		}
		if resp.StatusCode >= 400 {
			return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	return lastErr
}

// Object is a generic CRM record.
type Object struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	CreatedAt  time.Time         `json:"createdAt"`
	Archived   bool              `json:"archived"`
}

// Prop returns a property value, empty when absent.
func (o Object) Prop(name string) string {
	return o.Properties[name]
}

// Filter is a single search condition.
type Filter struct {
	PropertyName string   `json:"propertyName"`
	Operator     string   `json:"operator"`
	Value        string   `json:"value,omitempty"`
	Values       []string `json:"values,omitempty"`
}

// FilterGroup ORs with other groups; filters inside a group AND together.
type FilterGroup struct {
	Filters []Filter `json:"filters"`
}

// SearchRequest is the body of a CRM search call.
type SearchRequest struct {
	FilterGroups []FilterGroup `json:"filterGroups,omitempty"`
	Properties   []string      `json:"properties,omitempty"`
	Limit        int           `json:"limit,omitempty"`
	After        string        `json:"after,omitempty"`
}

type paging struct {
	Next *struct {
		After string `json:"after"`
	} `json:"next"`
}

type searchResponse struct {
	Total   int      `json:"total"`
	Results []Object `json:"results"`
	Paging  *paging  `json:"paging"`
}

// SearchAll drains every page of a CRM search before returning. Engines
// aggregate over the full result set, so partial pages are never exposed.
func (c *Client) SearchAll(ctx context.Context, objectType string, req SearchRequest) ([]Object, error) {
	req.Limit = searchPageSize
	req.After = ""

	var all []Object
	for {
		var resp searchResponse
		if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/"+objectType+"/search", req, &resp); err != nil {
			return nil, fmt.Errorf("search %s: %w", objectType, err)
		}
		all = append(all, resp.Results...)
		if resp.Paging == nil || resp.Paging.Next == nil || resp.Paging.Next.After == "" {
			return all, nil
		}
		req.After = resp.Paging.Next.After
	}
}

// GetObject fetches one record with the requested properties.
func (c *Client) GetObject(ctx context.Context, objectType, id string, properties []string) (Object, error) {
	path := "/crm/v3/objects/" + objectType + "/" + id
	if len(properties) > 0 {
		q := url.Values{}
		for _, p := range properties {
			q.Add("properties", p)
		}
		path += "?" + q.Encode()
	}
	var obj Object
	if err := c.do(ctx, http.MethodGet, path, nil, &obj); err != nil {
		return Object{}, fmt.Errorf("get %s %s: %w", objectType, id, err)
	}
	return obj, nil
}

type batchReadRequest struct {
	Properties []string          `json:"properties,omitempty"`
	Inputs     []map[string]string `json:"inputs"`
}

// BatchRead fetches up to 100 records per call, chunking as needed.
func (c *Client) BatchRead(ctx context.Context, objectType string, ids, properties []string) ([]Object, error) {
	var all []Object
	for len(ids) > 0 {
		n := len(ids)
		if n > 100 {
			n = 100
		}
		chunk := ids[:n]
		ids = ids[n:]

		req := batchReadRequest{Properties: properties}
		for _, id := range chunk {
			req.Inputs = append(req.Inputs, map[string]string{"id": id})
		}
		var resp struct {
			Results []Object `json:"results"`
		}
		if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/"+objectType+"/batch/read", req, &resp); err != nil {
			return nil, fmt.Errorf("batch read %s: %w", objectType, err)
		}
		all = append(all, resp.Results...)
	}
	return all, nil
}

// AssociatedIDs lists the ids of records associated with one record.
func (c *Client) AssociatedIDs(ctx context.Context, fromType, fromID, toType string) ([]string, error) {
	path := fmt.Sprintf("/crm/v4/objects/%s/%s/associations/%s", fromType, fromID, toType)
	var resp struct {
		Results []struct {
			ToObjectID json.Number `json:"toObjectId"`
		} `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("associations %s/%s -> %s: %w", fromType, fromID, toType, err)
	}
	out := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, r.ToObjectID.String())
	}
	return out, nil
}

// Stage is one step of a deal pipeline.
type Stage struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	DisplayOrder int    `json:"displayOrder"`
}

// Pipeline is a deal pipeline with its stages.
type Pipeline struct {
	ID     string  `json:"id"`
	Label  string  `json:"label"`
	Stages []Stage `json:"stages"`
}

// DealPipelines lists every deal pipeline.
func (c *Client) DealPipelines(ctx context.Context) ([]Pipeline, error) {
	var resp struct {
		Results []Pipeline `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/crm/v3/pipelines/deals", nil, &resp); err != nil {
		return nil, fmt.Errorf("deal pipelines: %w", err)
	}
	return resp.Results, nil
}

// PropertyOption is one selectable value of an enumeration property.
type PropertyOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Property is a CRM property definition.
type Property struct {
	Name    string           `json:"name"`
	Label   string           `json:"label"`
	Type    string           `json:"type"`
	Options []PropertyOption `json:"options"`
}

// ListProperties returns every property definition for an object type.
func (c *Client) ListProperties(ctx context.Context, objectType string) ([]Property, error) {
	var resp struct {
		Results []Property `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/crm/v3/properties/"+objectType, nil, &resp); err != nil {
		return nil, fmt.Errorf("list %s properties: %w", objectType, err)
	}
	return resp.Results, nil
}

// parseRetryAfter reads a Retry-After header given in delay seconds.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// ParseEpochMillis converts a HubSpot millisecond-epoch string.
func ParseEpochMillis(v string) (time.Time, bool) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

// Package client provides an HTTP client for the ledger REST API.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/jizpi/arm-ledger/internal/feed"
	"github.com/jizpi/arm-ledger/internal/ledger"
	"github.com/jizpi/arm-ledger/internal/view"
	"github.com/jizpi/arm-ledger/internal/visit"
)

// Client is an HTTP client for the ledger API.
type Client struct {
	http   *resty.Client
	stream *resty.Client
}

// New creates a new API client.
func New(baseURL string) *Client {
	return &Client{
		http:   newResty(baseURL).SetTimeout(30 * time.Second),
		stream: newResty(baseURL),
	}
}

func newResty(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetError(&APIError{})
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int               `json:"-"`
	Message string            `json:"error"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "server error: " + http.StatusText(e.Status)
	}
	if len(e.Fields) == 0 {
		return msg
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return msg + " (" + strings.Join(parts, "; ") + ")"
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// ListOptions selects, orders and pages the visit list.
type ListOptions struct {
	Filter view.Filter
	Sort   string
	Dir    string
	Page   int
}

func (o ListOptions) params() map[string]string {
	p := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			p[k] = v
		}
	}
	set("q", o.Filter.Text)
	set("date", o.Filter.Date)
	set("resource", o.Filter.Resource)
	set("department", o.Filter.Department)
	set("sort", o.Sort)
	set("dir", o.Dir)
	if o.Page > 0 {
		p["page"] = strconv.Itoa(o.Page)
	}
	return p
}

// ListVisits returns one page of visits.
func (c *Client) ListVisits(opts ListOptions) (*view.Page, error) {
	var page view.Page
	if err := c.do(c.http.R().SetQueryParams(opts.params()).SetResult(&page), http.MethodGet, "/api/visits"); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreateVisit records a check-in.
func (c *Client) CreateVisit(req ledger.CreateRequest) (*visit.Record, error) {
	var rec visit.Record
	if err := c.do(c.http.R().SetBody(req).SetResult(&rec), http.MethodPost, "/api/visits"); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetVisit returns a single visit.
func (c *Client) GetVisit(id string) (*visit.Record, error) {
	var rec visit.Record
	if err := c.do(c.http.R().SetPathParam("id", id).SetResult(&rec), http.MethodGet, "/api/visits/{id}"); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateVisit applies a partial update.
func (c *Client) UpdateVisit(id string, req ledger.UpdateRequest) (*visit.Record, error) {
	var rec visit.Record
	if err := c.do(c.http.R().SetPathParam("id", id).SetBody(req).SetResult(&rec), http.MethodPatch, "/api/visits/{id}"); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteVisit removes a visit permanently.
func (c *Client) DeleteVisit(id string) error {
	return c.do(c.http.R().SetPathParam("id", id), http.MethodDelete, "/api/visits/{id}")
}

// TodayResponse is the response from GET /api/today.
type TodayResponse struct {
	Date         string `json:"date"`
	NextSequence int    `json:"next_sequence"`
}

// Today returns today's date and the ordinal the next check-in would get.
func (c *Client) Today() (*TodayResponse, error) {
	var resp TodayResponse
	if err := c.do(c.http.R().SetResult(&resp), http.MethodGet, "/api/today"); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats returns the latest snapshot statistics.
func (c *Client) Stats() (*feed.State, error) {
	var st feed.State
	if err := c.do(c.http.R().SetResult(&st), http.MethodGet, "/api/stats"); err != nil {
		return nil, err
	}
	return &st, nil
}

// Catalog returns the resource names offered at the desk.
func (c *Client) Catalog() ([]string, error) {
	var resp struct {
		Resources []string `json:"resources"`
	}
	if err := c.do(c.http.R().SetResult(&resp), http.MethodGet, "/api/catalog"); err != nil {
		return nil, err
	}
	return resp.Resources, nil
}

// Lookup returns one visitor's history by exact name.
func (c *Client) Lookup(firstName, lastName string) ([]visit.Record, error) {
	var resp struct {
		Records []visit.Record `json:"records"`
	}
	req := c.http.R().
		SetQueryParam("first_name", firstName).
		SetQueryParam("last_name", lastName).
		SetResult(&resp)
	if err := c.do(req, http.MethodGet, "/api/lookup"); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// Export downloads the filtered list as a workbook and returns its bytes
// and the file name the server suggested.
func (c *Client) Export(filter view.Filter) ([]byte, string, error) {
	opts := ListOptions{Filter: filter}
	req := c.http.R().SetQueryParams(opts.params()).SetHeader("Accept", "*/*")
	resp, err := req.Get("/api/export")
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return nil, "", toAPIError(resp)
	}

	name := "export.xlsx"
	if _, params, err := mime.ParseMediaType(resp.Header().Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return resp.Body(), name, nil
}

// Health reports whether the server is up and its database reachable.
func (c *Client) Health() error {
	return c.do(c.http.R(), http.MethodGet, "/health")
}

// Events follows the server's change stream and calls fn with each
// snapshot until ctx is cancelled, the stream ends or fn returns false.
func (c *Client) Events(ctx context.Context, fn func(*feed.State) bool) error {
	resp, err := c.stream.R().
		SetContext(ctx).
		SetHeader("Accept", "text/event-stream").
		SetDoNotParseResponse(true).
		Get("/api/events")
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("opening event stream: %w", err)
	}
	body := resp.RawBody()
	defer func() { _ = body.Close() }()

	if resp.StatusCode() >= 400 {
		return &APIError{Status: resp.StatusCode()}
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var event string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event == "stats" && data.Len() > 0 {
				var st feed.State
				if err := json.Unmarshal([]byte(data.String()), &st); err != nil {
					return fmt.Errorf("decoding event: %w", err)
				}
				if !fn(&st) {
					return nil
				}
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return nil
}

// do executes req and converts error responses.
func (c *Client) do(req *resty.Request, method, path string) error {
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return toAPIError(resp)
	}
	return nil
}

func toAPIError(resp *resty.Response) error {
	apiErr, ok := resp.Error().(*APIError)
	if !ok || apiErr == nil {
		apiErr = &APIError{}
		_ = json.Unmarshal(resp.Body(), apiErr)
	}
	apiErr.Status = resp.StatusCode()
	return apiErr
}

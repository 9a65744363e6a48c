package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwichpas/backend-project-admin-sub000/internal/observability"
	http_utils "github.com/jwichpas/backend-project-admin-sub000/pkg/httpUtils"
)

const defaultTimeout = 30 * time.Second

// Querier is the data access surface stores depend on. *Client implements it.
type Querier interface {
	RPC(ctx context.Context, fn string, params any, out any) error
	Select(ctx context.Context, table string, q Query, out any) error
	Insert(ctx context.Context, table string, row any, out any) error
	Update(ctx context.Context, table string, filters []Filter, patch any, out any) error
	Delete(ctx context.Context, table string, filters []Filter) error
}

// Config for a Client.
type Config struct {
	URL         string
	APIKey      string
	AccessToken string
	Timeout     time.Duration
}

// Client talks to a PostgREST style API under <URL>/rest/v1.
type Client struct {
	restURL string
	apiKey  string
	http    *http.Client
	logger  zerolog.Logger

	mu    sync.RWMutex
	token string
}

var _ Querier = (*Client)(nil)

func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("backend url is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		restURL: strings.TrimRight(cfg.URL, "/") + "/rest/v1",
		apiKey:  cfg.APIKey,
		token:   cfg.AccessToken,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With().Str("component", "backend").Logger(),
	}, nil
}

// SetAccessToken replaces the user token sent as bearer credentials.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) headers(representation bool) http.Header {
	h := http.Header{}
	if c.apiKey != "" {
		h.Set("apikey", c.apiKey)
	}
	c.mu.RLock()
	bearer := c.token
	c.mu.RUnlock()
	if bearer == "" {
		bearer = c.apiKey
	}
	if bearer != "" {
		h.Set("Authorization", "Bearer "+bearer)
	}
	if representation {
		h.Set("Prefer", "return=representation")
	}
	return h
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body any, representation bool, out any) error {
	start := time.Now()
	defer observability.ObserveBackend(op, start)

	data, err := http_utils.DoJSON(ctx, c.http, http_utils.Request{
		Method: method,
		URL:    endpoint,
		Header: c.headers(representation),
		Body:   body,
	})
	if err != nil {
		var se *http_utils.StatusError
		if errors.As(err, &se) {
			be := fromStatus(se)
			c.logger.Warn().
				Str("op", op).
				Int("status", be.Status).
				Str("code", be.Code).
				Msg(be.Message)
			return be
		}
		return err
	}

	if out == nil || isNull(data) {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func isNull(data []byte) bool {
	s := strings.TrimSpace(string(data))
	return s == "" || s == "null"
}

// RPC calls a stored function.
func (c *Client) RPC(ctx context.Context, fn string, params any, out any) error {
	if params == nil {
		params = struct{}{}
	}
	return c.do(ctx, "rpc:"+fn, http.MethodPost, c.restURL+"/rpc/"+url.PathEscape(fn), params, false, out)
}

func (c *Client) Select(ctx context.Context, table string, q Query, out any) error {
	return c.do(ctx, "select:"+table, http.MethodGet, c.tableURL(table, q.values()), nil, false, out)
}

// Insert adds row (or a slice of rows) and decodes the stored representation into out.
func (c *Client) Insert(ctx context.Context, table string, row any, out any) error {
	return c.do(ctx, "insert:"+table, http.MethodPost, c.tableURL(table, nil), row, true, out)
}

// Update patches every row matching filters. An empty filter list is
// rejected so a missing id never patches a whole table.
func (c *Client) Update(ctx context.Context, table string, filters []Filter, patch any, out any) error {
	if len(filters) == 0 {
		return errors.New("update requires at least one filter")
	}
	return c.do(ctx, "update:"+table, http.MethodPatch, c.tableURL(table, Query{Filters: filters}.values()), patch, true, out)
}

func (c *Client) Delete(ctx context.Context, table string, filters []Filter) error {
	if len(filters) == 0 {
		return errors.New("delete requires at least one filter")
	}
	return c.do(ctx, "delete:"+table, http.MethodDelete, c.tableURL(table, Query{Filters: filters}.values()), nil, false, nil)
}

func (c *Client) tableURL(table string, values url.Values) string {
	u := c.restURL + "/" + url.PathEscape(table)
	if len(values) > 0 {
		u += "?" + values.Encode()
	}
	return u
}

// Filter is one column condition, rendered as column=op.value.
type Filter struct {
	Column   string
	Operator string
	Value    string
}

func Eq(column string, value any) Filter {
	return Filter{Column: column, Operator: "eq", Value: fmt.Sprint(value)}
}

func Neq(column string, value any) Filter {
	return Filter{Column: column, Operator: "neq", Value: fmt.Sprint(value)}
}

func Gte(column string, value any) Filter {
	return Filter{Column: column, Operator: "gte", Value: fmt.Sprint(value)}
}

func Lte(column string, value any) Filter {
	return Filter{Column: column, Operator: "lte", Value: fmt.Sprint(value)}
}

// Query describes a select.
type Query struct {
	Columns string
	Filters []Filter
	Order   string
	Limit   int
}

func (q Query) values() url.Values {
	v := url.Values{}
	if q.Columns != "" {
		v.Set("select", q.Columns)
	}
	for _, f := range q.Filters {
		v.Add(f.Column, f.Operator+"."+f.Value)
	}
	if q.Order != "" {
		v.Set("order", q.Order)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

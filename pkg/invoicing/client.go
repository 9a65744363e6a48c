package invoicing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	http_utils "github.com/jwichpas/backend-project-admin-sub000/pkg/httpUtils"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/token"
)

const defaultTimeout = 30 * time.Second

var validate = validator.New(validator.WithRequiredStructEnabled())

type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// APIError is a non-2xx answer of the invoicing API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("invoicing api returned %d: %s", e.Status, e.Message)
}

// Client talks to the electronic invoicing API. Its bearer token is cached
// and refreshed by a token.Cache fed by the client's own login call.
type Client struct {
	cfg    Config
	http   *http.Client
	tokens *token.Cache
	logger zerolog.Logger
}

var _ token.Source = (*Client)(nil)

// NewClient creates the client. store persists the token between runs and
// may be nil.
func NewClient(cfg Config, store token.Store, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("invoicing base url and credentials are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("component", "invoicing").Logger(),
	}
	c.tokens = token.NewCache(c, store, logger)
	return c, nil
}

// FetchToken logs in with the configured credentials.
func (c *Client) FetchToken(ctx context.Context) (token.Response, error) {
	var resp token.Response
	err := c.call(ctx, http.MethodPost, "/auth/login", "", map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	}, &resp)
	return resp, err
}

// SendInvoice signs and submits inv. A rejected document is not an error:
// the verdict is in Result.Sunat.
func (c *Client) SendInvoice(ctx context.Context, inv Invoice) (Result, error) {
	if err := validate.Struct(inv); err != nil {
		return Result{}, fmt.Errorf("invalid invoice %s: %w", inv.DocumentID(), err)
	}

	bearer, err := c.tokens.Token(ctx)
	if err != nil {
		return Result{}, err
	}

	var res Result
	start := time.Now()
	err = c.call(ctx, http.MethodPost, "/invoices/send", bearer, inv, &res)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			c.tokens.Invalidate()
		}
		c.logger.Error().Err(err).Str("document", inv.DocumentID()).Msg("Invoice submission failed")
		return Result{}, err
	}

	c.logger.Info().
		Str("document", inv.DocumentID()).
		Bool("accepted", res.Accepted()).
		Str("sunat_code", res.Sunat.Code).
		Dur("elapsed", time.Since(start)).
		Msg("Invoice submitted")
	return res, nil
}

func (c *Client) call(ctx context.Context, method, path, bearer string, body, out any) error {
	header := http.Header{}
	if bearer != "" {
		header.Set("Authorization", "Bearer "+bearer)
	}
	data, err := http_utils.DoJSON(ctx, c.http, http_utils.Request{
		Method: method,
		URL:    c.cfg.BaseURL + path,
		Header: header,
		Body:   body,
	})
	if err != nil {
		var se *http_utils.StatusError
		if errors.As(err, &se) {
			return apiError(se)
		}
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func apiError(se *http_utils.StatusError) *APIError {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := strings.TrimSpace(string(se.Body))
	if json.Unmarshal(se.Body, &envelope) == nil {
		if envelope.Message != "" {
			msg = envelope.Message
		} else if envelope.Error != "" {
			msg = envelope.Error
		}
	}
	return &APIError{Status: se.StatusCode, Message: msg}
}

package erp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/lenscat/internal/source"
	"golang.org/x/time/rate"
)

// Constraint is one ERP query filter, sent as part of the constraints JSON array.
type Constraint struct {
	Key            string      `json:"key"`
	ConstraintType string      `json:"constraint_type"`
	Value          interface{} `json:"value"`
}

// Config holds configuration for the ERP client.
type Config struct {
	BaseURL      string
	APIToken     string
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RequestsPerS float64
	Burst        int

	// Product filters applied to every product page request.
	MinStock    int
	ActiveOnly  bool
	ProductType string
}

// Client implements source.CatalogSource against the ERP data API.
type Client struct {
	client      *resty.Client
	limiter     *rate.Limiter
	constraints []Constraint
	hasToken    bool
}

// erpResponse mirrors { "response": { "results": [...], "cursor": n, "remaining": n } }.
type erpResponse struct {
	Response struct {
		Results   []json.RawMessage `json:"results"`
		Cursor    int               `json:"cursor"`
		Remaining int               `json:"remaining"`
	} `json:"response"`
}

// NewClient creates a new ERP client.
// Parameters:
//   - cfg: ERP configuration including base URL, token, and limits.
//
// Returns:
//   - *Client: initialized ERP client.
func NewClient(cfg *Config) *Client {
	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/"))
	client.SetHeader("Accept", "application/json")
	// The cost field is only returned to authenticated callers.
	if cfg.APIToken != "" {
		client.SetAuthToken(cfg.APIToken)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	client.SetTimeout(timeout)

	client.SetRetryCount(cfg.RetryCount)
	if cfg.RetryWait > 0 {
		client.SetRetryWaitTime(cfg.RetryWait)
		client.SetRetryMaxWaitTime(cfg.RetryWait * 8)
	}
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return !errors.Is(err, context.Canceled)
		}
		return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
	})

	limit := rate.Inf
	if cfg.RequestsPerS > 0 {
		limit = rate.Limit(cfg.RequestsPerS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		client:      client,
		limiter:     rate.NewLimiter(limit, burst),
		constraints: productConstraints(cfg),
		hasToken:    cfg.APIToken != "",
	}
}

func productConstraints(cfg *Config) []Constraint {
	var cs []Constraint
	if cfg.MinStock > 0 {
		cs = append(cs, Constraint{Key: "stock", ConstraintType: "greater than", Value: cfg.MinStock - 1})
	}
	if cfg.ActiveOnly {
		cs = append(cs, Constraint{Key: "active", ConstraintType: "equals", Value: true})
	}
	if cfg.ProductType != "" {
		cs = append(cs, Constraint{Key: "product_type", ConstraintType: "equals", Value: cfg.ProductType})
	}
	return cs
}

// Name returns a human-readable name for this source.
func (c *Client) Name() string {
	return "erp"
}

// HasCostAccess reports whether requests carry the token that unlocks cost.
func (c *Client) HasCostAccess() bool {
	return c.hasToken
}

// Ping fetches a single brand to confirm the ERP answers.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//
// Returns:
//   - error: wraps source.ErrUnavailable when the ERP cannot be reached.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.FetchPage(ctx, source.EntityBrand, 0, 1); err != nil {
		return fmt.Errorf("%w: %v", source.ErrUnavailable, err)
	}
	return nil
}

// FetchPage fetches one page of entity from /obj/{entity}.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entity: ERP collection name.
//   - cursor: zero-based offset.
//   - limit: page size.
//
// Returns:
//   - *source.Page: raw records plus pagination state.
//   - error: non-nil on transport failure, non-2xx status, or a bad body.
func (c *Client) FetchPage(ctx context.Context, entity source.Entity, cursor, limit int) (*source.Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("cursor", strconv.Itoa(cursor)).
		SetQueryParam("limit", strconv.Itoa(limit))

	if entity == source.EntityProduct && len(c.constraints) > 0 {
		encoded, err := json.Marshal(c.constraints)
		if err != nil {
			return nil, fmt.Errorf("failed to encode constraints: %w", err)
		}
		req.SetQueryParam("constraints", string(encoded))
	}

	var body erpResponse
	httpResp, err := req.SetResult(&body).Get("/obj/" + string(entity))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrUnavailable, err)
	}
	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		msg := strings.TrimSpace(string(httpResp.Body()))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		if httpResp.StatusCode() >= 500 {
			return nil, fmt.Errorf("%w: HTTP %d: %s", source.ErrUnavailable, httpResp.StatusCode(), msg)
		}
		return nil, fmt.Errorf("ERP API error: HTTP %d: %s", httpResp.StatusCode(), msg)
	}

	return &source.Page{
		Results:   body.Response.Results,
		Cursor:    body.Response.Cursor,
		Remaining: body.Response.Remaining,
	}, nil
}

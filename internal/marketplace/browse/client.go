// Package browse is the primary listing source: the eBay Browse API item
// summary search, authorized with an application OAuth token.
package browse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tcg-pricing/internal/httpclient"
	"github.com/Checker-Finance/tcg-pricing/internal/marketplace"
	"github.com/Checker-Finance/tcg-pricing/pkg/model"
)

const (
	// Name is the provider label used in logs, metrics and rate keys.
	Name = "browse"

	searchPath    = "/buy/browse/v1/item_summary/search"
	maxQueryRunes = 100
	maxPageSize   = 200
)

// Config locates the Browse API and shapes its result set.
type Config struct {
	APIBaseURL    string
	MarketplaceID string
	Locale        string
	// Conditions restricts item condition (e.g. NEW, USED); empty means any.
	Conditions []string
}

// Client searches active fixed-price listings.
type Client struct {
	logger *zap.Logger
	exec   *httpclient.Executor
	tokens *TokenManager
	cfg    Config
}

var _ marketplace.Source = (*Client)(nil)

func NewClient(logger *zap.Logger, exec *httpclient.Executor, tokens *TokenManager, cfg Config) *Client {
	if cfg.MarketplaceID == "" {
		cfg.MarketplaceID = "EBAY_US"
	}
	if cfg.Locale == "" {
		cfg.Locale = "en-US"
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	return &Client{logger: logger, exec: exec, tokens: tokens, cfg: cfg}
}

func (c *Client) Name() string { return Name }

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type itemSummary struct {
	ItemID          string  `json:"itemId"`
	Title           string  `json:"title"`
	Price           *amount `json:"price"`
	ShippingOptions []struct {
		ShippingCost *amount `json:"shippingCost"`
	} `json:"shippingOptions"`
}

type searchResponse struct {
	Total         int           `json:"total"`
	Offset        int           `json:"offset"`
	Limit         int           `json:"limit"`
	ItemSummaries []itemSummary `json:"itemSummaries"`
}

// Search pages through results until a page is empty, the sample cap is
// reached, maxPages pages were read, or the reported total is exhausted.
func (c *Client) Search(ctx context.Context, query string, pageSize, maxPages int) ([]model.PriceObservation, error) {
	q := marketplace.Truncate(strings.TrimSpace(query), maxQueryRunes)
	pageSize = marketplace.ClampPageSize(pageSize, maxPageSize)

	var out []model.PriceObservation
	for page := 0; page < maxPages; page++ {
		offset := page * pageSize
		resp, err := c.page(ctx, q, pageSize, offset)
		if err != nil {
			return out, err
		}
		if len(resp.ItemSummaries) == 0 {
			break
		}
		for _, it := range resp.ItemSummaries {
			if obs, ok := c.observation(it); ok {
				out = append(out, obs)
			}
		}
		if len(out) >= marketplace.MaxSamples {
			out = out[:marketplace.MaxSamples]
			break
		}
		if resp.Total > 0 && offset+pageSize >= resp.Total {
			break
		}
	}

	c.logger.Debug("browse.search_done", zap.String("query", q), zap.Int("samples", len(out)))
	return out, nil
}

// page fetches one result page. A 401 means the cached token went stale;
// it is dropped and the page retried once with a fresh token.
func (c *Client) page(ctx context.Context, q string, limit, offset int) (*searchResponse, error) {
	resp, err := c.pageOnce(ctx, q, limit, offset)
	if err != nil && httpclient.IsStatus(err, http.StatusUnauthorized) {
		c.logger.Warn("browse.token_rejected", zap.String("query", q))
		c.tokens.Invalidate(ctx)
		resp, err = c.pageOnce(ctx, q, limit, offset)
	}
	return resp, err
}

func (c *Client) pageOnce(ctx context.Context, q string, limit, offset int) (*searchResponse, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("filter", c.filter())
	endpoint := c.cfg.APIBaseURL + searchPath + "?" + params.Encode()

	var resp searchResponse
	err = c.exec.DoJSON(ctx, httpclient.Call{
		Provider: Name,
		Query:    q,
		Build: func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set("X-EBAY-C-MARKETPLACE-ID", c.cfg.MarketplaceID)
			req.Header.Set("Accept-Language", c.cfg.Locale)
			req.Header.Set("Accept", "application/json")
			return req, nil
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) filter() string {
	f := "buyingOptions:{FIXED_PRICE},priceCurrency:" + model.CurrencyUSD
	if len(c.cfg.Conditions) > 0 {
		f += ",conditions:{" + strings.Join(c.cfg.Conditions, "|") + "}"
	}
	return f
}

func (c *Client) observation(it itemSummary) (model.PriceObservation, bool) {
	if it.Price == nil || (it.Price.Currency != "" && it.Price.Currency != model.CurrencyUSD) {
		return model.PriceObservation{}, false
	}
	price, err := decimal.NewFromString(it.Price.Value)
	if err != nil || price.IsNegative() {
		c.logger.Debug("browse.bad_price", zap.String("item_id", it.ItemID), zap.String("value", it.Price.Value))
		return model.PriceObservation{}, false
	}
	shipping := decimal.Zero
	if len(it.ShippingOptions) > 0 && it.ShippingOptions[0].ShippingCost != nil {
		if v, err := decimal.NewFromString(it.ShippingOptions[0].ShippingCost.Value); err == nil && !v.IsNegative() {
			shipping = v
		}
	}
	return model.PriceObservation{Price: price, Shipping: shipping}, true
}

// ErrNoCredentials is returned when the source is built without OAuth credentials.
var ErrNoCredentials = errors.New("browse: client id and secret are required")

// Validate reports a configuration problem before any request is made.
func (c *Client) Validate() error {
	if c.tokens == nil || !c.tokens.creds.Valid() {
		return ErrNoCredentials
	}
	if c.cfg.APIBaseURL == "" {
		return fmt.Errorf("browse: api base url is empty")
	}
	return nil
}

// Package finding is the secondary listing source: the eBay Finding API
// findItemsByKeywords call keyed by an application id.
package finding

import (
	"context"
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
	Name = "finding"

	servicePath       = "/services/search/FindingService/v1"
	operationName     = "findItemsByKeywords"
	serviceVersion    = "1.0.0"
	maxKeywordRunes   = 350
	maxEntriesPerPage = 100
)

// AckError is a well-formed response whose ack is not Success or Warning.
type AckError struct {
	Ack     string
	Message string
}

func (e *AckError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("finding ack %q", e.Ack)
	}
	return fmt.Sprintf("finding ack %q: %s", e.Ack, e.Message)
}

// Config locates the Finding API.
type Config struct {
	BaseURL  string
	AppID    string
	GlobalID string
}

// Client searches fixed-price listings through the Finding API.
type Client struct {
	logger *zap.Logger
	exec   *httpclient.Executor
	cfg    Config
}

var _ marketplace.Source = (*Client)(nil)

func NewClient(logger *zap.Logger, exec *httpclient.Executor, cfg Config) *Client {
	if cfg.GlobalID == "" {
		cfg.GlobalID = "EBAY-US"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{logger: logger, exec: exec, cfg: cfg}
}

func (c *Client) Name() string { return Name }

// Validate reports a configuration problem before any request is made.
func (c *Client) Validate() error {
	if c.cfg.AppID == "" {
		return fmt.Errorf("finding: app id is required")
	}
	if c.cfg.BaseURL == "" {
		return fmt.Errorf("finding: base url is empty")
	}
	return nil
}

// Search reads pages 1..min(maxPages, totalPages), stopping early on an
// empty page or when the sample cap is reached.
func (c *Client) Search(ctx context.Context, query string, pageSize, maxPages int) ([]model.PriceObservation, error) {
	kw := marketplace.Truncate(strings.TrimSpace(query), maxKeywordRunes)
	pageSize = marketplace.ClampPageSize(pageSize, maxEntriesPerPage)

	var out []model.PriceObservation
	for page := 1; page <= maxPages; page++ {
		root, err := c.page(ctx, kw, pageSize, page)
		if err != nil {
			return out, err
		}

		items := list(field(path(root, "searchResult"), "item"))
		if len(items) == 0 {
			break
		}
		for _, it := range items {
			if obs, ok := c.observation(it); ok {
				out = append(out, obs)
			}
		}
		if len(out) >= marketplace.MaxSamples {
			out = out[:marketplace.MaxSamples]
			break
		}
		if total, err := strconv.Atoi(text(path(root, "paginationOutput", "totalPages"))); err == nil && page >= total {
			break
		}
	}

	c.logger.Debug("finding.search_done", zap.String("query", kw), zap.Int("samples", len(out)))
	return out, nil
}

func (c *Client) page(ctx context.Context, kw string, pageSize, page int) (any, error) {
	params := url.Values{}
	params.Set("OPERATION-NAME", operationName)
	params.Set("SERVICE-VERSION", serviceVersion)
	params.Set("SECURITY-APPNAME", c.cfg.AppID)
	params.Set("GLOBAL-ID", c.cfg.GlobalID)
	params.Set("RESPONSE-DATA-FORMAT", "JSON")
	params.Set("REST-PAYLOAD", "")
	params.Set("keywords", kw)
	params.Set("paginationInput.entriesPerPage", strconv.Itoa(pageSize))
	params.Set("paginationInput.pageNumber", strconv.Itoa(page))
	params.Set("itemFilter(0).name", "ListingType")
	params.Set("itemFilter(0).value", "FixedPrice")
	params.Set("itemFilter(1).name", "Currency")
	params.Set("itemFilter(1).value", model.CurrencyUSD)
	endpoint := c.cfg.BaseURL + servicePath + "?" + params.Encode()

	var raw map[string]any
	err := c.exec.DoJSON(ctx, httpclient.Call{
		Provider: Name,
		Query:    kw,
		Build: func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "application/json")
			return req, nil
		},
	}, &raw)
	if err != nil {
		return nil, err
	}

	root := first(raw[operationName+"Response"])
	if root == nil {
		return nil, &AckError{Ack: "", Message: "missing " + operationName + "Response"}
	}
	switch ack := text(field(root, "ack")); ack {
	case "Success", "Warning":
		if ack == "Warning" {
			c.logger.Warn("finding.ack_warning",
				zap.String("query", kw),
				zap.String("message", text(path(root, "errorMessage", "error", "message"))))
		}
		return root, nil
	default:
		return nil, &AckError{Ack: ack, Message: text(path(root, "errorMessage", "error", "message"))}
	}
}

func (c *Client) observation(item any) (model.PriceObservation, bool) {
	current := path(item, "sellingStatus", "currentPrice")
	if cur := text(field(current, "@currencyId")); cur != "" && cur != model.CurrencyUSD {
		return model.PriceObservation{}, false
	}
	price, err := decimal.NewFromString(text(current))
	if err != nil || price.IsNegative() {
		return model.PriceObservation{}, false
	}

	shipping := decimal.Zero
	switch text(path(item, "shippingInfo", "shippingType")) {
	case "Free", "FreePickup":
	default:
		if v, err := decimal.NewFromString(text(path(item, "shippingInfo", "shippingServiceCost"))); err == nil && !v.IsNegative() {
			shipping = v
		}
	}
	return model.PriceObservation{Price: price, Shipping: shipping}, true
}

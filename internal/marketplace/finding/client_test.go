package finding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tcg-pricing/internal/httpclient"
	"github.com/Checker-Finance/tcg-pricing/pkg/model"
)

// --- Helpers ---

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	exec := httpclient.New(zap.NewNop(), nil, srv.Client(), httpclient.Policy{})
	return NewClient(zap.NewNop(), exec, Config{BaseURL: srv.URL, AppID: "app-123"})
}

func landed(obs []model.PriceObservation) []string {
	out := make([]string, len(obs))
	for i, o := range obs {
		out[i] = o.Landed().StringFixed(2)
	}
	return out
}

const arrayShaped = `{"findItemsByKeywordsResponse":[{"ack":["Success"],"searchResult":[{"@count":"2","item":[
 {"sellingStatus":[{"currentPrice":[{"@currencyId":"USD","__value__":"12.50"}]}],"shippingInfo":[{"shippingType":["Flat"],"shippingServiceCost":[{"@currencyId":"USD","__value__":"1.25"}]}]},
 {"sellingStatus":[{"currentPrice":[{"@currencyId":"USD","__value__":"8.00"}]}],"shippingInfo":[{"shippingType":["Free"],"shippingServiceCost":[{"@currencyId":"USD","__value__":"3.00"}]}]}
]}],"paginationOutput":[{"totalPages":["1"]}]}]}`

const scalarShaped = `{"findItemsByKeywordsResponse":{"ack":"Success","searchResult":{"item":[
 {"sellingStatus":{"currentPrice":{"@currencyId":"USD","__value__":"12.50"}},"shippingInfo":{"shippingType":"Flat","shippingServiceCost":"1.25"}},
 {"sellingStatus":{"currentPrice":"8.00"},"shippingInfo":{"shippingType":"Free","shippingServiceCost":{"__value__":"3.00"}}}
]},"paginationOutput":{"totalPages":1}}}`

// --- Unwrap Tests ---

func TestText_ValueShapesAgree(t *testing.T) {
	var a, b, c any
	require.NoError(t, json.Unmarshal([]byte(`[{"__value__":"12.50"}]`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"__value__":"12.50"}`), &b))
	require.NoError(t, json.Unmarshal([]byte(`"12.50"`), &c))

	assert.Equal(t, "12.50", text(a))
	assert.Equal(t, text(a), text(b))
	assert.Equal(t, text(b), text(c))
	assert.Equal(t, "", text(nil))
	assert.Equal(t, "", text([]any{}))
}

func TestList_WrapsLoneObject(t *testing.T) {
	assert.Len(t, list(map[string]any{"a": 1}), 1)
	assert.Len(t, list([]any{1, 2}), 2)
	assert.Nil(t, list(nil))
}

// --- Search Tests ---

func TestSearch_ArrayAndScalarShapesAgree(t *testing.T) {
	var results [][]string
	for _, body := range []string{arrayShaped, scalarShaped} {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(body))
		})
		obs, err := c.Search(context.Background(), `"Dark Magician" LOB-005 Yu-Gi-Oh`, 50, 2)
		require.NoError(t, err)
		results = append(results, landed(obs))
	}
	assert.Equal(t, []string{"13.75", "8.00"}, results[0])
	assert.Equal(t, results[0], results[1])
}

func TestSearch_RequestParameters(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = w.Write([]byte(`{"findItemsByKeywordsResponse":[{"ack":["Success"],"searchResult":[{"@count":"0"}]}]}`))
	})

	long := strings.Repeat("ü", 400)
	_, err := c.Search(context.Background(), long, 500, 1)
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, servicePath, got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "findItemsByKeywords", q.Get("OPERATION-NAME"))
	assert.Equal(t, "1.0.0", q.Get("SERVICE-VERSION"))
	assert.Equal(t, "app-123", q.Get("SECURITY-APPNAME"))
	assert.Equal(t, "JSON", q.Get("RESPONSE-DATA-FORMAT"))
	assert.Equal(t, "EBAY-US", q.Get("GLOBAL-ID"))
	assert.Equal(t, "100", q.Get("paginationInput.entriesPerPage"))
	assert.Equal(t, "1", q.Get("paginationInput.pageNumber"))
	assert.Equal(t, "FixedPrice", q.Get("itemFilter(0).value"))
	assert.Equal(t, 350, utf8.RuneCountInString(q.Get("keywords")))
}

func TestSearch_AckFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"findItemsByKeywordsResponse":[{"ack":["Failure"],
			"errorMessage":[{"error":[{"message":["Invalid Application ID"]}]}]}]}`))
	})

	_, err := c.Search(context.Background(), "Mew", 50, 1)
	var ack *AckError
	require.ErrorAs(t, err, &ack)
	assert.Equal(t, "Failure", ack.Ack)
	assert.Equal(t, "Invalid Application ID", ack.Message)
}

func TestSearch_WarningIsTrusted(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Replace(arrayShaped, `"Success"`, `"Warning"`, 1)))
	})
	obs, err := c.Search(context.Background(), "Mew", 50, 1)
	require.NoError(t, err)
	assert.Len(t, obs, 2)
}

func TestSearch_MissingEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	_, err := c.Search(context.Background(), "Mew", 50, 1)
	var ack *AckError
	require.ErrorAs(t, err, &ack)
}

func TestSearch_SkipsForeignCurrencyAndBadPrices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"findItemsByKeywordsResponse":[{"ack":["Success"],"searchResult":[{"item":[
			{"sellingStatus":[{"currentPrice":[{"@currencyId":"GBP","__value__":"5.00"}]}]},
			{"sellingStatus":[{"currentPrice":[{"@currencyId":"USD","__value__":"n/a"}]}]},
			{"sellingStatus":[{"currentPrice":[{"@currencyId":"USD","__value__":"4.00"}]}]}
		]}]}]}`))
	})
	obs, err := c.Search(context.Background(), "Mew", 50, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"4.00"}, landed(obs))
}

func TestSearch_PagesUpToMinOfMaxAndTotal(t *testing.T) {
	page := `{"findItemsByKeywordsResponse":[{"ack":["Success"],"searchResult":[{"item":[
		{"sellingStatus":[{"currentPrice":[{"__value__":"1.00"}]}]}]}],
		"paginationOutput":[{"totalPages":["%s"]}]}]}`

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(strings.Replace(page, "%s", "3", 1)))
	})
	obs, err := c.Search(context.Background(), "Mew", 10, 2)
	require.NoError(t, err)
	assert.Len(t, obs, 2)
	assert.Equal(t, int32(2), calls.Load())

	calls.Store(0)
	c = newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(strings.Replace(page, "%s", "1", 1)))
	})
	_, err = c.Search(context.Background(), "Mew", 10, 5)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearch_HTTPErrorPropagates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	_, err := c.Search(context.Background(), "Mew", 10, 1)
	assert.True(t, httpclient.IsStatus(err, http.StatusForbidden))
}

func TestValidate(t *testing.T) {
	c := NewClient(zap.NewNop(), nil, Config{BaseURL: "http://x"})
	assert.Error(t, c.Validate())
	c = NewClient(zap.NewNop(), nil, Config{BaseURL: "http://x", AppID: "a"})
	assert.NoError(t, c.Validate())
}

package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cryptostats/internal/market"

	"golang.org/x/time/rate"
)

const (
	apiKeyHeader  = "x-cg-demo-api-key"
	quoteCurrency = "usd"
)

type RESTClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewRESTClient creates a client whose requests are bounded by timeout.
// ratePerMinute <= 0 disables client-side rate limiting.
func NewRESTClient(baseURL, apiKey string, timeout time.Duration, ratePerMinute int) *RESTClient {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if ratePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(ratePerMinute)), ratePerMinute)
	}
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

// FetchSnapshot fetches the current USD price, market cap and 24h change of one coin.
// The returned snapshot has Asset set to coinID and no Timestamp. Every failure is a *market.FetchError.
func (c *RESTClient) FetchSnapshot(ctx context.Context, coinID string) (market.Snapshot, error) {
	if coinID == "" {
		return market.Snapshot{}, &market.FetchError{Err: errors.New("empty coin id")}
	}

	coin, err := c.GetCoin(ctx, coinID)
	if err != nil {
		return market.Snapshot{}, &market.FetchError{Asset: coinID, Err: err}
	}

	snap, err := coin.toSnapshot(coinID)
	if err != nil {
		return market.Snapshot{}, &market.FetchError{Asset: coinID, Err: err}
	}
	return snap, nil
}

// GetCoin calls GET /coins/{id} with market data only.
func (c *RESTClient) GetCoin(ctx context.Context, coinID string) (*CoinResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	query := url.Values{}
	query.Set("localization", "false")
	query.Set("tickers", "false")
	query.Set("market_data", "true")
	query.Set("community_data", "false")
	query.Set("developer_data", "false")
	query.Set("sparkline", "false")
	endpoint := fmt.Sprintf("%s/coins/%s?%s", c.baseURL, url.PathEscape(coinID), query.Encode())

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	// Execute the HTTP request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	// Check HTTP status code
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("coingecko error: status %d: %s", resp.StatusCode, errorMessage(body))
	}

	var coin CoinResponse
	if err := json.NewDecoder(resp.Body).Decode(&coin); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &coin, nil
}

func (r *CoinResponse) toSnapshot(coinID string) (market.Snapshot, error) {
	md := r.MarketData
	if md == nil {
		return market.Snapshot{}, errors.New("response has no market_data")
	}

	price := md.CurrentPrice[quoteCurrency]
	if price == nil {
		return market.Snapshot{}, errors.New("missing market_data.current_price.usd")
	}
	if *price <= 0 {
		return market.Snapshot{}, fmt.Errorf("invalid price %v", *price)
	}
	marketCap := md.MarketCap[quoteCurrency]
	if marketCap == nil {
		return market.Snapshot{}, errors.New("missing market_data.market_cap.usd")
	}
	if md.PriceChangePercentage24h == nil {
		return market.Snapshot{}, errors.New("missing market_data.price_change_percentage_24h")
	}

	return market.Snapshot{
		Asset:     coinID,
		Price:     *price,
		MarketCap: *marketCap,
		Change24h: *md.PriceChangePercentage24h,
	}, nil
}

func errorMessage(body []byte) string {
	var e ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Status.ErrorMessage != "" {
			return e.Status.ErrorMessage
		}
	}
	return strings.TrimSpace(string(body))
}

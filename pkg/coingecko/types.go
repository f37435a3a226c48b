package coingecko

// CoinResponse is the subset of GET /coins/{id} this client reads.
type CoinResponse struct {
	ID         string      `json:"id"`
	Symbol     string      `json:"symbol"`
	MarketData *MarketData `json:"market_data"`
}

// MarketData holds per-currency quotes. Values are pointers so that absent and null fields can be told apart from zero.
type MarketData struct {
	CurrentPrice             map[string]*float64 `json:"current_price"`
	MarketCap                map[string]*float64 `json:"market_cap"`
	PriceChangePercentage24h *float64            `json:"price_change_percentage_24h"`
}

// ErrorResponse is the body CoinGecko returns on most non-200 statuses.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

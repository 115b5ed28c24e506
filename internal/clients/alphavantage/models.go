package alphavantage

import "time"

// DailyPrice is one bar of TIME_SERIES_DAILY.
type DailyPrice struct {
	Date   time.Time `json:"date" msgpack:"date"`
	Open   float64   `json:"open" msgpack:"open"`
	High   float64   `json:"high" msgpack:"high"`
	Low    float64   `json:"low" msgpack:"low"`
	Close  float64   `json:"close" msgpack:"close"`
	Volume int64     `json:"volume" msgpack:"volume"`
}

// GlobalQuote is the latest quote for a symbol.
type GlobalQuote struct {
	Symbol           string    `json:"symbol"`
	Open             float64   `json:"open"`
	High             float64   `json:"high"`
	Low              float64   `json:"low"`
	Price            float64   `json:"price"`
	Volume           int64     `json:"volume"`
	LatestTradingDay time.Time `json:"latest_trading_day"`
	PreviousClose    float64   `json:"previous_close"`
	Change           float64   `json:"change"`
	ChangePercent    float64   `json:"change_percent"`
}

// CacheTTL configures in-memory cache lifetimes per data type.
type CacheTTL struct {
	PriceData time.Duration
	Quotes    time.Duration
}

// DefaultCacheTTL returns the default cache lifetimes.
func DefaultCacheTTL() CacheTTL {
	return CacheTTL{
		PriceData: 15 * time.Minute,
		Quotes:    time.Minute,
	}
}

// envelope holds the fields every response may carry in place of data.
type envelope struct {
	ErrorMessage *string `json:"Error Message"`
	Note         *string `json:"Note"`
	Information  *string `json:"Information"`
}

// dailyResponse is the TIME_SERIES_DAILY shape.
type dailyResponse struct {
	envelope
	TimeSeries map[string]dailyBar `json:"Time Series (Daily)"`
}

type dailyBar struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

// globalQuoteResponse is the GLOBAL_QUOTE shape.
type globalQuoteResponse struct {
	envelope
	Quote *struct {
		Symbol           string `json:"01. symbol"`
		Open             string `json:"02. open"`
		High             string `json:"03. high"`
		Low              string `json:"04. low"`
		Price            string `json:"05. price"`
		Volume           string `json:"06. volume"`
		LatestTradingDay string `json:"07. latest trading day"`
		PreviousClose    string `json:"08. previous close"`
		Change           string `json:"09. change"`
		ChangePercent    string `json:"10. change percent"`
	} `json:"Global Quote"`
}

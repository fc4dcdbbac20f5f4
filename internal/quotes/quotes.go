// Package quotes fetches market prices from the external quote feed. The
// feed is unreliable - rate-limited, sometimes stale - so consumers treat
// a failed quote as "skip this symbol this cycle", never as fatal.
package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"paper-ledger/internal/models"
)

// ErrUnavailable means the price feed failed or timed out for a symbol.
var ErrUnavailable = errors.New("quote unavailable")

// DefaultTimeout bounds one quote fetch.
const DefaultTimeout = 10 * time.Second

// Source returns the latest price for a symbol.
type Source interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

// HTTPSource fetches quotes from a JSON price API.
type HTTPSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPSource creates a Source against baseURL. The API key is optional.
func NewHTTPSource(baseURL, apiKey string) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
}

// GetQuote fetches one quote. All failure modes map to ErrUnavailable so
// callers can skip the symbol and retry next tick.
func (s *HTTPSource) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	u := fmt.Sprintf("%s/v1/quote/%s", s.baseURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w: %v", symbol, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote %s: status %d: %w", symbol, resp.StatusCode, ErrUnavailable)
	}

	var body struct {
		Symbol    string    `json:"symbol"`
		Price     string    `json:"price"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("quote %s: decode: %w", symbol, ErrUnavailable)
	}

	price, err := decimal.NewFromString(body.Price)
	if err != nil || !price.IsPositive() {
		return nil, fmt.Errorf("quote %s: bad price %q: %w", symbol, body.Price, ErrUnavailable)
	}

	ts := body.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &models.Quote{Symbol: symbol, Price: price, Timestamp: ts}, nil
}

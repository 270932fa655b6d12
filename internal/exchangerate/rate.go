// Package exchangerate keeps the process-wide native asset exchange rate and
// formats fiat amounts.
package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/shopspring/decimal"
)

// Source is a read-only view of the cached exchange rate.
type Source interface {
	// Rate returns fiat units per one native coin; ok is false until a rate is known.
	Rate() (rate decimal.Decimal, ok bool)
	Currency() string
}

// Cache holds the last known rate. The zero value is not usable, use NewCache.
type Cache struct {
	httpClient *http.Client
	endpoint   string
	base       string
	currency   string

	mu        sync.RWMutex
	rate      decimal.Decimal
	known     bool
	updatedAt time.Time
}

// NewCache creates a rate cache for base (e.g. "ETH") priced in currency (e.g. "USD").
// endpoint may be empty when rates are only ever pushed with Set.
func NewCache(endpoint, base, currency string) *Cache {
	return &Cache{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoint:   strings.TrimSpace(endpoint),
		base:       strings.ToUpper(strings.TrimSpace(base)),
		currency:   strings.ToUpper(strings.TrimSpace(currency)),
	}
}

func (c *Cache) Rate() (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rate, c.known
}

func (c *Cache) Currency() string { return c.currency }

// UpdatedAt reports when the rate was last set.
func (c *Cache) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// Set overrides the cached rate.
func (c *Cache) Set(rate decimal.Decimal) {
	c.mu.Lock()
	c.rate = rate
	c.known = true
	c.updatedAt = time.Now()
	c.mu.Unlock()
}

type ratesResponse struct {
	Data struct {
		Currency string            `json:"currency"`
		Rates    map[string]string `json:"rates"`
	} `json:"data"`
}

// Refresh fetches the current rate. On failure the previous rate is kept.
func (c *Cache) Refresh(ctx context.Context) error {
	if c.endpoint == "" {
		return fmt.Errorf("exchangerate: no endpoint configured")
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("exchangerate: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("currency", c.base)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("exchangerate: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("exchangerate: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("exchangerate: status %d: %s", resp.StatusCode, string(body))
	}

	var out ratesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("exchangerate: decode: %w", err)
	}

	raw, ok := out.Data.Rates[c.currency]
	if !ok {
		return fmt.Errorf("exchangerate: no %s rate for %s", c.currency, c.base)
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("exchangerate: parse rate %q: %w", raw, err)
	}

	c.Set(rate)
	return nil
}

// Run refreshes immediately and then every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	refresh := func() {
		if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
			log.Warn("exchange rate refresh failed", "base", c.base, "currency", c.currency, "error", err)
		}
	}

	refresh()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

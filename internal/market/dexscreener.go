// Package market fetches price and display metadata for the tracked asset
// from a DEX pair aggregator.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"solana-wallet-tracker/internal/domain"
)

// DefaultBaseURL is the public DexScreener API.
const DefaultBaseURL = "https://api.dexscreener.com"

// ErrNoPair is returned when the aggregator knows no trading pair for the asset.
var ErrNoPair = errors.New("no trading pair")

// Quote is the best trading pair for an asset, split into price and display metadata.
type Quote struct {
	Price    domain.AssetPrice
	Metadata domain.AssetMetadata
}

// Client queries DexScreener for the most liquid pair of a token.
type Client struct {
	baseURL    string
	chainID    string
	httpClient *http.Client
	retryDelay time.Duration
	maxRetries int
	nowFn      func() time.Time
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry sets retry count and initial delay for throttled requests.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryDelay = delay
	}
}

// WithClock overrides the time source used for FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.nowFn = now }
}

// NewClient creates an aggregator client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chainID:    "solana",
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retryDelay: 2 * time.Second,
		maxRetries: 2,
		nowFn:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type pairsResponse struct {
	Pairs []pair `json:"pairs"`
}

type pair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD    string `json:"priceUsd"`
	PriceChange struct {
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	MarketCap float64 `json:"marketCap"`
	FDV       float64 `json:"fdv"`
	Info      *struct {
		ImageURL string `json:"imageUrl"`
	} `json:"info"`
}

// BestPair returns the highest-liquidity pair where the asset is the base token.
func (c *Client) BestPair(ctx context.Context, assetID string) (*Quote, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, assetID)

	body, err := c.fetchWithRetry(ctx, url)
	if err != nil {
		return nil, err
	}

	var resp pairsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode pairs: %v", domain.ErrParseFailure, err)
	}

	best := pickBest(resp.Pairs, c.chainID, assetID)
	if best == nil {
		return nil, fmt.Errorf("%w for %s", ErrNoPair, assetID)
	}

	price, err := decimal.NewFromString(best.PriceUSD)
	if err != nil {
		return nil, fmt.Errorf("%w: price %q: %v", domain.ErrParseFailure, best.PriceUSD, err)
	}

	marketCap := best.MarketCap
	if marketCap == 0 {
		marketCap = best.FDV
	}

	q := &Quote{
		Price: domain.AssetPrice{
			AssetID:      assetID,
			PriceUSD:     price,
			Change24h:    decimal.NewFromFloat(best.PriceChange.H24),
			MarketCap:    decimal.NewFromFloat(marketCap),
			LiquidityUSD: decimal.NewFromFloat(best.Liquidity.USD),
			PairAddress:  best.PairAddress,
			DexID:        best.DexID,
			FetchedAt:    c.nowFn().UnixMilli(),
		},
		Metadata: domain.AssetMetadata{
			AssetID: assetID,
			Name:    best.BaseToken.Name,
			Symbol:  best.BaseToken.Symbol,
			Source:  domain.MetadataSourceAggregator,
		},
	}
	if best.Info != nil {
		q.Metadata.ImageURL = best.Info.ImageURL
	}
	return q, nil
}

// pickBest prefers pairs on chainID with assetID as base token, by liquidity.
func pickBest(pairs []pair, chainID, assetID string) *pair {
	var best *pair
	for i := range pairs {
		p := &pairs[i]
		if p.ChainID != chainID || p.BaseToken.Address != assetID || p.PriceUSD == "" {
			continue
		}
		if best == nil || p.Liquidity.USD > best.Liquidity.USD {
			best = p
		}
	}
	return best
}

func (c *Client) fetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := range c.maxRetries + 1 {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("%w: aggregator request: %v", domain.ErrRemoteUnavailable, err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("%w: read aggregator response: %v", domain.ErrRemoteUnavailable, err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("%w: aggregator (attempt %d/%d)", domain.ErrRateLimited, attempt+1, c.maxRetries+1)
			continue
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%w: aggregator HTTP %d", domain.ErrRemoteUnavailable, resp.StatusCode)
			continue
		default:
			return nil, fmt.Errorf("%w: aggregator HTTP %d: %s", domain.ErrRemoteUnavailable, resp.StatusCode, string(body))
		}
	}
	return nil, lastErr
}

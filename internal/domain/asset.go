package domain

import "github.com/shopspring/decimal"

// PriceHistoryCap bounds the cached price history.
const PriceHistoryCap = 100

// Metadata sources.
const (
	MetadataSourceAggregator = "aggregator"
	MetadataSourceOnChain    = "onchain"
)

// AssetMetadata describes the tracked mint.
type AssetMetadata struct {
	AssetID  string           `json:"assetId"`
	Name     string           `json:"name,omitempty"`
	Symbol   string           `json:"symbol,omitempty"`
	ImageURL string           `json:"imageUrl,omitempty"`
	Decimals int              `json:"decimals"`
	Supply   *decimal.Decimal `json:"supply,omitempty"`
	Source   string           `json:"source"`
}

// AssetMetadataEntry is a cached metadata record.
type AssetMetadataEntry struct {
	Metadata AssetMetadata `json:"metadata"`
	CachedAt int64         `json:"cachedAt"` // ms
}

// AssetPrice is a market quote from the best trading pair.
type AssetPrice struct {
	AssetID      string          `json:"assetId"`
	PriceUSD     decimal.Decimal `json:"priceUsd"`
	Change24h    decimal.Decimal `json:"change24h"` // percent
	MarketCap    decimal.Decimal `json:"marketCap"`
	LiquidityUSD decimal.Decimal `json:"liquidityUsd"`
	PairAddress  string          `json:"pairAddress,omitempty"`
	DexID        string          `json:"dexId,omitempty"`
	FetchedAt    int64           `json:"fetchedAt"` // ms
}

// PricePoint is one observed price.
type PricePoint struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"timestamp"` // ms
}

// AssetPriceEntry is a cached price record with bounded history.
type AssetPriceEntry struct {
	Price    AssetPrice   `json:"price"`
	History  []PricePoint `json:"history"`
	CachedAt int64        `json:"cachedAt"` // ms
}

// AssetInfo bundles metadata and price for presentation.
type AssetInfo struct {
	Metadata *AssetMetadata `json:"metadata,omitempty"`
	Price    *AssetPrice    `json:"price,omitempty"`
}

package synccache

import (
	"context"

	"go.uber.org/zap"

	"solana-wallet-tracker/internal/domain"
)

// MetadataView is the cached metadata of one asset.
type MetadataView struct {
	Entry   *domain.AssetMetadataEntry
	IsStale bool
}

// PriceView is the cached price of one asset.
type PriceView struct {
	Entry   *domain.AssetPriceEntry
	IsStale bool
}

// Metadata returns the cached metadata of an asset.
func (c *Cache) Metadata(ctx context.Context, assetID string) (MetadataView, error) {
	var entry domain.AssetMetadataEntry
	found, err := c.load(ctx, assetID, domain.KindMetadata, &entry)
	if err != nil {
		return MetadataView{}, err
	}
	if !found {
		return MetadataView{IsStale: true}, nil
	}
	return MetadataView{Entry: &entry, IsStale: IsStale(entry.CachedAt, c.ttls.Metadata, c.now())}, nil
}

// MergeMetadata overwrites the cached metadata.
func (c *Cache) MergeMetadata(ctx context.Context, assetID string, md domain.AssetMetadata) (MetadataView, error) {
	unlock := c.lock(assetID)
	defer unlock()

	entry := domain.AssetMetadataEntry{Metadata: md, CachedAt: c.now().UnixMilli()}
	if err := c.commit(ctx, assetID, domain.KindMetadata, entry, true); err != nil {
		return MetadataView{}, err
	}
	return MetadataView{Entry: &entry}, nil
}

// Price returns the cached price of an asset.
func (c *Cache) Price(ctx context.Context, assetID string) (PriceView, error) {
	var entry domain.AssetPriceEntry
	found, err := c.load(ctx, assetID, domain.KindPrice, &entry)
	if err != nil {
		return PriceView{}, err
	}
	if !found {
		return PriceView{IsStale: true}, nil
	}
	return PriceView{Entry: &entry, IsStale: IsStale(entry.CachedAt, c.ttls.Price, c.now())}, nil
}

// MergePrice overwrites the quote and appends it to the bounded price history.
func (c *Cache) MergePrice(ctx context.Context, assetID string, p domain.AssetPrice) (PriceView, error) {
	unlock := c.lock(assetID)
	defer unlock()

	var entry domain.AssetPriceEntry
	if _, err := c.load(ctx, assetID, domain.KindPrice, &entry); err != nil {
		return PriceView{}, err
	}

	now := c.now().UnixMilli()
	at := p.FetchedAt
	if at == 0 {
		at = now
	}
	point := domain.PricePoint{Price: p.PriceUSD, Timestamp: at}
	entry.Price = p
	entry.History = appendCapped(entry.History, point, domain.PriceHistoryCap)
	entry.CachedAt = now

	if err := c.commit(ctx, assetID, domain.KindPrice, entry, true); err != nil {
		return PriceView{}, err
	}

	if c.history != nil {
		if err := c.history.AppendPrices(ctx, assetID, []domain.PricePoint{point}); err != nil {
			c.logger.Warn("append price history failed", zap.String("asset", assetID), zap.Error(err))
		}
	}
	return PriceView{Entry: &entry}, nil
}

// AssetInfo joins cached metadata and price.
func (c *Cache) AssetInfo(ctx context.Context, assetID string) (domain.AssetInfo, error) {
	var info domain.AssetInfo
	md, err := c.Metadata(ctx, assetID)
	if err != nil {
		return info, err
	}
	if md.Entry != nil {
		m := md.Entry.Metadata
		info.Metadata = &m
	}
	pr, err := c.Price(ctx, assetID)
	if err != nil {
		return info, err
	}
	if pr.Entry != nil {
		p := pr.Entry.Price
		info.Price = &p
	}
	return info, nil
}

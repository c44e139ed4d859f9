package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/market"
	"solana-wallet-tracker/internal/solana"
)

var errNoQuoteSource = errors.New("no market aggregator configured")

// FetchPrice returns the asset's quote from its most liquid trading pair.
func (g *Gateway) FetchPrice(ctx context.Context, assetID string) (domain.AssetPrice, error) {
	if err := solana.ValidateAddress(assetID); err != nil {
		return domain.AssetPrice{}, err
	}
	q, err := g.bestPair(ctx, assetID)
	if err != nil {
		return domain.AssetPrice{}, err
	}
	return q.Price, nil
}

func (g *Gateway) bestPair(ctx context.Context, assetID string) (*market.Quote, error) {
	if g.quotes == nil {
		return nil, errNoQuoteSource
	}
	return cached(ctx, g, "price", cacheKey("price", assetID, ""), g.ttls.Price, func(ctx context.Context) (*market.Quote, error) {
		return g.quotes.BestPair(ctx, assetID)
	})
}

// FetchMetadata returns display metadata of the asset. Name, symbol and image
// come from the aggregator; decimals and supply from the mint account. When
// the aggregator has no pair, name and symbol fall back to the on-chain
// Metaplex metadata account.
func (g *Gateway) FetchMetadata(ctx context.Context, assetID string) (domain.AssetMetadata, error) {
	if err := solana.ValidateAddress(assetID); err != nil {
		return domain.AssetMetadata{}, err
	}
	return cached(ctx, g, "metadata", cacheKey("metadata", assetID, ""), g.ttls.Metadata, func(ctx context.Context) (domain.AssetMetadata, error) {
		return g.fetchMetadata(ctx, assetID)
	})
}

func (g *Gateway) fetchMetadata(ctx context.Context, assetID string) (domain.AssetMetadata, error) {
	md := domain.AssetMetadata{AssetID: assetID}

	q, qerr := g.bestPair(ctx, assetID)
	if qerr == nil {
		md = q.Metadata
		md.AssetID = assetID
		md.Source = domain.MetadataSourceAggregator
	} else if !errors.Is(qerr, market.ErrNoPair) && !errors.Is(qerr, errNoQuoteSource) {
		g.warnRemote("aggregator metadata failed", qerr, zap.String("asset", assetID))
	}

	mint, merr := g.fetchMint(ctx, assetID)
	if merr != nil {
		if qerr != nil {
			return domain.AssetMetadata{}, fmt.Errorf("metadata of %s: %w", assetID, errors.Join(qerr, merr))
		}
		g.warnRemote("mint account failed", merr, zap.String("asset", assetID))
	} else {
		md.Decimals = mint.Decimals
		supply := decimal.NewFromBigInt(new(big.Int).SetUint64(mint.Supply), -int32(mint.Decimals))
		md.Supply = &supply
	}

	if md.Name == "" && md.Symbol == "" {
		if onchain, err := g.fetchOnChainMetadata(ctx, assetID); err == nil {
			md.Name = onchain.Name
			md.Symbol = onchain.Symbol
			md.Source = domain.MetadataSourceOnChain
		} else {
			g.logger.Debug("no on-chain metadata", zap.String("asset", assetID), zap.Error(err))
		}
	}
	if md.Source == "" {
		md.Source = domain.MetadataSourceOnChain
	}
	return md, nil
}

func (g *Gateway) fetchMint(ctx context.Context, assetID string) (*solana.MintInfo, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	acc, err := g.rpc.GetAccountInfo(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("mint account: %w", err)
	}
	if acc == nil {
		return nil, fmt.Errorf("%w: mint account %s not found", domain.ErrInvalidAddress, assetID)
	}
	mint, err := solana.ParseMint(acc.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParseFailure, err)
	}
	return mint, nil
}

func (g *Gateway) fetchOnChainMetadata(ctx context.Context, assetID string) (*solana.TokenMetadata, error) {
	pda, err := solana.MetadataPDA(assetID)
	if err != nil {
		return nil, err
	}
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	acc, err := g.rpc.GetAccountInfo(ctx, pda)
	if err != nil {
		return nil, fmt.Errorf("metadata account: %w", err)
	}
	if acc == nil {
		return nil, fmt.Errorf("metadata account %s not found", pda)
	}
	return solana.ParseMetaplexMetadata(acc.Data)
}

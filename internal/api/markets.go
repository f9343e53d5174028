package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/rickgao/storefront/internal/model"
)

// GetMarket fetches a market with its newest products, capped at the page size.
func (c *Client) GetMarket(ctx context.Context, id string) (model.Market, error) {
	var resp struct {
		GetMarket *APIMarket `json:"getMarket"`
	}
	vars := map[string]any{"id": id, "limit": c.pageSize}
	if err := c.graphql(ctx, "getMarket", getMarketQuery, vars, &resp); err != nil {
		return model.Market{}, fmt.Errorf("get market %s: %w", id, err)
	}
	if resp.GetMarket == nil {
		return model.Market{}, fmt.Errorf("get market %s: %w", id, ErrNotFound)
	}
	return resp.GetMarket.ToModel(), nil
}

// NewSearchFilter matches term against name, owner or any tag.
func NewSearchFilter(term string) SearchFilter {
	return SearchFilter{
		Or: []map[string]MatchCondition{
			{"name": {Match: term}},
			{"owner": {Match: term}},
			{"tags": {Match: term}},
		},
	}
}

// SearchMarkets returns markets matching term, newest first.
func (c *Client) SearchMarkets(ctx context.Context, term string) ([]model.Market, error) {
	var resp struct {
		SearchMarkets *MarketConnection `json:"searchMarkets"`
	}
	vars := map[string]any{
		"filter": NewSearchFilter(term),
		"sort":   SearchSort{Field: "createdAt", Direction: "desc"},
		"limit":  c.pageSize,
	}
	if err := c.graphql(ctx, "searchMarkets", searchMarketsQuery, vars, &resp); err != nil {
		return nil, fmt.Errorf("search markets %q: %w", term, err)
	}
	if resp.SearchMarkets == nil {
		return nil, nil
	}

	markets := make([]model.Market, 0, len(resp.SearchMarkets.Items))
	for i := range resp.SearchMarkets.Items {
		markets = append(markets, resp.SearchMarkets.Items[i].ToModel())
	}
	return markets, nil
}

// CreateMarket creates a market owned by input.Owner.
func (c *Client) CreateMarket(ctx context.Context, input CreateMarketInput) (model.Market, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return model.Market{}, fmt.Errorf("create market: name is required: %w", ErrInvalidInput)
	}

	var resp struct {
		CreateMarket *APIMarket `json:"createMarket"`
	}
	if err := c.graphql(ctx, "createMarket", createMarketMutation, map[string]any{"input": input}, &resp); err != nil {
		return model.Market{}, fmt.Errorf("create market: %w", err)
	}
	if resp.CreateMarket == nil {
		return model.Market{}, fmt.Errorf("create market: empty response")
	}
	return resp.CreateMarket.ToModel(), nil
}

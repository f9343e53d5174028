package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rickgao/storefront/internal/model"
)

// CreateProduct records a product referencing an already uploaded asset.
func (c *Client) CreateProduct(ctx context.Context, input CreateProductInput) (model.Product, error) {
	if input.ProductMarketID == "" {
		return model.Product{}, fmt.Errorf("create product: market id is required: %w", ErrInvalidInput)
	}
	if input.File.Key == "" {
		return model.Product{}, fmt.Errorf("create product: file key is required: %w", ErrInvalidInput)
	}

	var resp struct {
		CreateProduct *APIProduct `json:"createProduct"`
	}
	if err := c.graphql(ctx, "createProduct", createProductMutation, map[string]any{"input": input}, &resp); err != nil {
		return model.Product{}, fmt.Errorf("create product: %w", err)
	}
	if resp.CreateProduct == nil {
		return model.Product{}, fmt.Errorf("create product: empty response")
	}

	p := resp.CreateProduct.ToModel()
	if p.MarketID == "" {
		p.MarketID = input.ProductMarketID
	}
	return p, nil
}

// DecodeSubscriptionProduct extracts the product under field from a
// subscription data payload such as {"onCreateProduct": {...}}.
func DecodeSubscriptionProduct(data json.RawMessage, field string) (model.Product, error) {
	var payload map[string]*APIProduct
	if err := json.Unmarshal(data, &payload); err != nil {
		return model.Product{}, fmt.Errorf("decode %s: %w", field, err)
	}
	p, ok := payload[field]
	if !ok || p == nil {
		return model.Product{}, fmt.Errorf("decode %s: field missing", field)
	}
	if p.ID == "" {
		return model.Product{}, fmt.Errorf("decode %s: product without id", field)
	}
	return p.ToModel(), nil
}

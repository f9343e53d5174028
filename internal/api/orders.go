package api

import (
	"context"
	"fmt"

	"github.com/rickgao/storefront/internal/model"
)

// CreateOrder persists an order for buyerID. shipping is nil for emailed goods.
func (c *Client) CreateOrder(ctx context.Context, buyerID, productID string, shipping *model.ShippingAddress) (model.Order, error) {
	input := CreateOrderInput{
		OrderUserID:     buyerID,
		OrderProductID:  productID,
		ShippingAddress: shippingAddressInput(shipping),
	}

	var resp struct {
		CreateOrder *APIOrder `json:"createOrder"`
	}
	if err := c.graphql(ctx, "createOrder", createOrderMutation, map[string]any{"input": input}, &resp); err != nil {
		return model.Order{}, fmt.Errorf("create order: %w", err)
	}
	if resp.CreateOrder == nil {
		return model.Order{}, fmt.Errorf("create order: empty response")
	}

	order := resp.CreateOrder.ToModel()
	if order.BuyerID == "" {
		order.BuyerID = buyerID
	}
	return order, nil
}

package api

import (
	"context"
	"fmt"

	"github.com/rickgao/storefront/internal/model"
)

// GetUser fetches a registered user. Returns ErrNotFound if the user was
// never registered.
func (c *Client) GetUser(ctx context.Context, id string) (model.User, error) {
	u, err := c.getUser(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	return u.ToModel(), nil
}

// ListOrders returns a user's orders, newest first, capped at the page size.
func (c *Client) ListOrders(ctx context.Context, buyerID string) ([]model.Order, error) {
	u, err := c.getUser(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if u.Orders == nil {
		return nil, nil
	}

	orders := make([]model.Order, 0, len(u.Orders.Items))
	for i := range u.Orders.Items {
		o := u.Orders.Items[i].ToModel()
		if o.BuyerID == "" {
			o.BuyerID = buyerID
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (c *Client) getUser(ctx context.Context, id string) (*APIUser, error) {
	var resp struct {
		GetUser *APIUser `json:"getUser"`
	}
	vars := map[string]any{"id": id, "limit": c.pageSize}
	if err := c.graphql(ctx, "getUser", getUserQuery, vars, &resp); err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	if resp.GetUser == nil {
		return nil, fmt.Errorf("get user %s: %w", id, ErrNotFound)
	}
	return resp.GetUser, nil
}

// RegisterUser creates the backend user record for a signed-in identity.
func (c *Client) RegisterUser(ctx context.Context, input RegisterUserInput) (model.User, error) {
	if input.ID == "" {
		return model.User{}, fmt.Errorf("register user: id is required: %w", ErrInvalidInput)
	}
	input.Registered = true

	var resp struct {
		RegisterUser *APIUser `json:"registerUser"`
	}
	if err := c.graphql(ctx, "registerUser", registerUserMutation, map[string]any{"input": input}, &resp); err != nil {
		return model.User{}, fmt.Errorf("register user %s: %w", input.ID, err)
	}
	if resp.RegisterUser == nil {
		return model.User{}, fmt.Errorf("register user %s: empty response", input.ID)
	}
	return resp.RegisterUser.ToModel(), nil
}

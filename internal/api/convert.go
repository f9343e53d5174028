package api

import (
	"time"

	"github.com/rickgao/storefront/internal/model"
)

// ParseTimestamp parses an ISO 8601 timestamp.
// Returns the zero time for empty or invalid input.
func ParseTimestamp(iso string) time.Time {
	if iso == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		// Try without timezone
		t, err = time.Parse("2006-01-02T15:04:05", iso)
		if err != nil {
			return time.Time{}
		}
	}

	return t.UTC()
}

// ToModel converts an APIMarket to a model.Market.
func (m *APIMarket) ToModel() model.Market {
	market := model.Market{
		ID:        m.ID,
		Name:      m.Name,
		Owner:     m.Owner,
		Tags:      append([]string(nil), m.Tags...),
		CreatedAt: ParseTimestamp(m.CreatedAt),
	}
	if m.Products != nil {
		market.Products = make([]model.Product, 0, len(m.Products.Items))
		for i := range m.Products.Items {
			p := m.Products.Items[i].ToModel()
			if p.MarketID == "" {
				p.MarketID = m.ID
			}
			market.Products = append(market.Products, p)
		}
	}
	return market
}

// ToModel converts an APIProduct to a model.Product.
func (p *APIProduct) ToModel() model.Product {
	product := model.Product{
		ID:          p.ID,
		Description: p.Description,
		Price:       p.Price,
		Shipped:     p.Shipped,
		Owner:       p.Owner,
		CreatedAt:   ParseTimestamp(p.CreatedAt),
	}
	if p.Market != nil {
		product.MarketID = p.Market.ID
	}
	if p.File != nil {
		product.File = model.FileRef{Key: p.File.Key, Bucket: p.File.Bucket, Region: p.File.Region}
	}
	return product
}

// ToModel converts an APIOrder to a model.Order.
func (o *APIOrder) ToModel() model.Order {
	order := model.Order{
		ID:        o.ID,
		CreatedAt: ParseTimestamp(o.CreatedAt),
	}
	if o.User != nil {
		order.BuyerID = o.User.ID
	}
	if o.Product != nil {
		order.Product = o.Product.ToModel()
	}
	if o.ShippingAddress != nil {
		order.ShippingAddress = &model.ShippingAddress{
			City:    o.ShippingAddress.City,
			Country: o.ShippingAddress.Country,
			Line1:   o.ShippingAddress.AddressLine1,
			Line2:   o.ShippingAddress.AddressLine2,
			State:   o.ShippingAddress.AddressState,
			Zip:     o.ShippingAddress.AddressZip,
		}
	}
	return order
}

// ToModel converts an APIUser to a model.User.
func (u *APIUser) ToModel() model.User {
	return model.User{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Registered: u.Registered,
	}
}

// ShippingAddress extracts the address collected with the payment source.
// It is never nil; the fields are empty when the charge carried no source.
func (r *ChargeResult) ShippingAddress() *model.ShippingAddress {
	src := r.Charge.Source
	if src == nil {
		return &model.ShippingAddress{}
	}
	return &model.ShippingAddress{
		City:    src.AddressCity,
		Country: src.AddressCountry,
		Line1:   src.AddressLine1,
		Line2:   src.AddressLine2,
		State:   src.AddressState,
		Zip:     src.AddressZip,
	}
}

// shippingAddressInput converts a model address to the mutation shape.
func shippingAddressInput(a *model.ShippingAddress) *APIShippingAddress {
	if a == nil {
		return nil
	}
	return &APIShippingAddress{
		City:         a.City,
		Country:      a.Country,
		AddressLine1: a.Line1,
		AddressLine2: a.Line2,
		AddressState: a.State,
		AddressZip:   a.Zip,
	}
}

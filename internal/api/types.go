package api

// APIMarket represents a market from the GraphQL API.
type APIMarket struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Tags      []string           `json:"tags"`
	Owner     string             `json:"owner"`
	CreatedAt string             `json:"createdAt"`
	Products  *ProductConnection `json:"products,omitempty"`
}

// ProductConnection is a page of products nested under a market.
type ProductConnection struct {
	Items     []APIProduct `json:"items"`
	NextToken *string      `json:"nextToken"`
}

// MarketConnection is a page of search results.
type MarketConnection struct {
	Items     []APIMarket `json:"items"`
	NextToken *string     `json:"nextToken"`
}

// APIProduct represents a product from the GraphQL API.
type APIProduct struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Price       int64     `json:"price"` // Cents
	Shipped     bool      `json:"shipped"`
	Owner       string    `json:"owner"`
	CreatedAt   string    `json:"createdAt"`
	File        *S3Object `json:"file,omitempty"`
	Market      *IDRef    `json:"market,omitempty"`
}

// S3Object is a stored asset reference.
type S3Object struct {
	Key    string `json:"key"`
	Bucket string `json:"bucket"`
	Region string `json:"region"`
}

// IDRef is a nested object selected only by id.
type IDRef struct {
	ID string `json:"id"`
}

// APIOrder represents an order from the GraphQL API.
type APIOrder struct {
	ID              string              `json:"id"`
	CreatedAt       string              `json:"createdAt"`
	User            *IDRef              `json:"user,omitempty"`
	Product         *APIProduct         `json:"product,omitempty"`
	ShippingAddress *APIShippingAddress `json:"shippingAddress,omitempty"`
}

// OrderConnection is a page of orders nested under a user.
type OrderConnection struct {
	Items     []APIOrder `json:"items"`
	NextToken *string    `json:"nextToken"`
}

// APIShippingAddress uses the payment source's field names.
type APIShippingAddress struct {
	City         string `json:"city"`
	Country      string `json:"country"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2"`
	AddressState string `json:"address_state"`
	AddressZip   string `json:"address_zip"`
}

// APIUser represents a registered user record.
type APIUser struct {
	ID         string           `json:"id"`
	Username   string           `json:"username"`
	Email      string           `json:"email"`
	Registered bool             `json:"registered"`
	Orders     *OrderConnection `json:"orders,omitempty"`
}

// CreateMarketInput is the createMarket mutation input.
type CreateMarketInput struct {
	Name  string   `json:"name"`
	Owner string   `json:"owner"`
	Tags  []string `json:"tags,omitempty"`
}

// CreateProductInput is the createProduct mutation input.
type CreateProductInput struct {
	Description     string   `json:"description"`
	Price           int64    `json:"price"`
	Shipped         bool     `json:"shipped"`
	ProductMarketID string   `json:"productMarketId"`
	File            S3Object `json:"file"`
}

// CreateOrderInput is the createOrder mutation input.
type CreateOrderInput struct {
	OrderUserID     string              `json:"orderUserId"`
	OrderProductID  string              `json:"orderProductId"`
	ShippingAddress *APIShippingAddress `json:"shippingAddress"`
}

// RegisterUserInput is the registerUser mutation input.
type RegisterUserInput struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Registered bool   `json:"registered"`
}

// SearchFilter matches term against name, owner or any tag.
type SearchFilter struct {
	Or []map[string]MatchCondition `json:"or"`
}

// MatchCondition is a full-text match on one field.
type MatchCondition struct {
	Match string `json:"match"`
}

// SearchSort orders search results.
type SearchSort struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// ChargeRequest is the body of POST /charge.
type ChargeRequest struct {
	Token   string        `json:"token"`
	Shipped bool          `json:"shipped"`
	Charge  ChargeDetails `json:"charge"`
	Email   ChargeEmail   `json:"email"`
}

// ChargeDetails describes the amount to collect.
type ChargeDetails struct {
	Currency    string `json:"currency"`
	Amount      int64  `json:"amount"` // Cents
	Description string `json:"description"`
}

// ChargeEmail names who gets notified about the purchase.
type ChargeEmail struct {
	CustomerEmail string `json:"customerEmail"`
	OwnerEmail    string `json:"ownerEmail"`
}

// ChargeResult is the response of POST /charge.
type ChargeResult struct {
	Charge  ChargeOutcome `json:"charge"`
	Message string        `json:"message"`
}

// ChargeOutcome is the processor's view of the charge.
type ChargeOutcome struct {
	ID     string        `json:"id,omitempty"`
	Status string        `json:"status"`
	Source *ChargeSource `json:"source,omitempty"`
}

// ChargeSource is the payment source, including the address collected by
// the payment widget for shipped goods.
type ChargeSource struct {
	AddressCity    string `json:"address_city"`
	AddressCountry string `json:"address_country"`
	AddressLine1   string `json:"address_line1"`
	AddressLine2   string `json:"address_line2"`
	AddressState   string `json:"address_state"`
	AddressZip     string `json:"address_zip"`
}

package model

import (
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Catalog Types
// -----------------------------------------------------------------------------

// Market is a named, owned collection of product listings.
type Market struct {
	ID        string    // Primary key
	Name      string    // Display name
	Owner     string    // Username of the market owner
	Tags      []string  // Descriptive tags (set semantics)
	CreatedAt time.Time // Creation time
	Products  []Product // Newest first
}

// HasTag reports whether the market carries tag.
func (m Market) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Product is a single sellable listing.
type Product struct {
	ID          string    // Primary key
	MarketID    string    // Owning market (empty if the backend omitted it)
	Description string    // Display description
	Price       int64     // Minor currency units
	Shipped     bool      // true = physical good, false = emailed
	Owner       string    // Username of the seller
	File        FileRef   // Image asset
	CreatedAt   time.Time // Creation time
}

// FileRef locates an object in the object store.
type FileRef struct {
	Key    string
	Bucket string
	Region string
}

// IsZero reports whether the reference is unset.
func (f FileRef) IsZero() bool {
	return f.Key == "" && f.Bucket == "" && f.Region == ""
}

// -----------------------------------------------------------------------------
// Order Types
// -----------------------------------------------------------------------------

// Order is a completed purchase. Orders are created only after a successful
// charge and never change afterwards.
type Order struct {
	ID              string
	BuyerID         string
	Product         Product
	ShippingAddress *ShippingAddress // nil for emailed products
	CreatedAt       time.Time
}

// ShippingAddress is where a shipped product goes.
type ShippingAddress struct {
	City    string
	Country string
	Line1   string
	Line2   string
	State   string
	Zip     string
}

// -----------------------------------------------------------------------------
// Identity Types
// -----------------------------------------------------------------------------

// Well-known identity attribute names.
const (
	AttrSubject       = "sub"
	AttrEmail         = "email"
	AttrEmailVerified = "email_verified"
	AttrPhoneNumber   = "phone_number"
)

// Identity is the signed-in user as seen by the storefront.
type Identity struct {
	Username   string            // Login name, used as the owner reference
	Session    string            // Opaque session handle (ID token)
	Attributes map[string]string // Profile attributes from the identity provider
}

// Subject returns the stable subject id.
func (i Identity) Subject() string {
	return i.Attributes[AttrSubject]
}

// Email returns the email attribute.
func (i Identity) Email() string {
	return i.Attributes[AttrEmail]
}

// EmailVerified reports whether the email attribute has been verified.
func (i Identity) EmailVerified() bool {
	return strings.EqualFold(i.Attributes[AttrEmailVerified], "true")
}

// Owns reports whether the identity is the owner named by owner.
func (i Identity) Owns(owner string) bool {
	return i.Username != "" && i.Username == owner
}

// User is the backend's record of a registered user.
type User struct {
	ID         string
	Username   string
	Email      string
	Registered bool
}

package profile

import "github.com/rickgao/storefront/internal/model"

// Row is one line of the profile summary table.
type Row struct {
	Name  string
	Value string
	Tag   string // "Verified" / "Verify Email" on the email row
}

// Summary builds the profile summary rows for ident.
func Summary(ident model.Identity) []Row {
	email := Row{Name: "Email", Value: ident.Email(), Tag: "Verify Email"}
	if ident.EmailVerified() {
		email.Tag = "Verified"
	}
	return []Row{
		{Name: "Your Id", Value: ident.Subject()},
		{Name: "Username", Value: ident.Username},
		email,
		{Name: "Phone Number", Value: ident.Attributes[model.AttrPhoneNumber]},
		{Name: "Delete Profile", Value: "Sorry to see you go"},
	}
}

// OrderLine is an order formatted for display.
type OrderLine struct {
	OrderID     string
	Description string
	Price       string // dollars
	Shipped     bool
	Address     string
	Date        string
}

// FormatOrder renders o for the order history.
func FormatOrder(o model.Order) OrderLine {
	line := OrderLine{
		OrderID:     o.ID,
		Description: o.Product.Description,
		Price:       "$" + model.CentsToDollars(o.Product.Price),
		Shipped:     o.ShippingAddress != nil,
	}
	if !o.CreatedAt.IsZero() {
		line.Date = o.CreatedAt.Format("Jan 2, 2006")
	}
	if a := o.ShippingAddress; a != nil {
		line.Address = a.Line1
		if a.Line2 != "" {
			line.Address += ", " + a.Line2
		}
		line.Address += ", " + a.City + ", " + a.State + " " + a.Zip + ", " + a.Country
	}
	return line
}

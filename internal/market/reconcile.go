package market

import "github.com/rickgao/storefront/internal/model"

// Kind is the feed an event arrived on.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Outcome describes what an event did to the product list.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeReplaced Outcome = "replaced"
	OutcomeRemoved  Outcome = "removed"
	OutcomeNoop     Outcome = "noop"
	OutcomeIgnored  Outcome = "ignored" // product belongs to another market
)

// Apply dispatches p to the rule for kind.
func Apply(products []model.Product, kind Kind, p model.Product) ([]model.Product, Outcome) {
	switch kind {
	case KindCreate:
		return ApplyCreate(products, p)
	case KindUpdate:
		return ApplyUpdate(products, p)
	case KindDelete:
		return ApplyDelete(products, p.ID)
	default:
		return products, OutcomeNoop
	}
}

// ApplyCreate removes any entry with p's id and prepends p.
func ApplyCreate(products []model.Product, p model.Product) ([]model.Product, Outcome) {
	rest, removed := without(products, p.ID)
	out := make([]model.Product, 0, len(rest)+1)
	out = append(out, p)
	out = append(out, rest...)
	if removed {
		return out, OutcomeReplaced
	}
	return out, OutcomeInserted
}

// ApplyUpdate replaces the entry with p's id in place. An unknown id is
// treated as a create, which covers updates that overtake their create.
func ApplyUpdate(products []model.Product, p model.Product) ([]model.Product, Outcome) {
	i := indexOf(products, p.ID)
	if i < 0 {
		return ApplyCreate(products, p)
	}
	out := make([]model.Product, len(products))
	copy(out, products)
	out[i] = p
	return out, OutcomeReplaced
}

// ApplyDelete removes the entry with id, if any.
func ApplyDelete(products []model.Product, id string) ([]model.Product, Outcome) {
	out, removed := without(products, id)
	if !removed {
		return products, OutcomeNoop
	}
	return out, OutcomeRemoved
}

func indexOf(products []model.Product, id string) int {
	for i := range products {
		if products[i].ID == id {
			return i
		}
	}
	return -1
}

// without returns products minus every entry with id. The input is not
// modified.
func without(products []model.Product, id string) ([]model.Product, bool) {
	if indexOf(products, id) < 0 {
		return products, false
	}
	out := make([]model.Product, 0, len(products))
	for _, p := range products {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out, true
}

package market

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/storefront/internal/model"
)

func prod(id, desc string) model.Product {
	return model.Product{ID: id, Description: desc}
}

func ids(products []model.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}

func TestApplyCreate(t *testing.T) {
	list := []model.Product{prod("b", ""), prod("a", "")}

	got, outcome := ApplyCreate(list, prod("c", ""))
	assert.Equal(t, []string{"c", "b", "a"}, ids(got))
	assert.Equal(t, OutcomeInserted, outcome)
	assert.Equal(t, []string{"b", "a"}, ids(list), "input must not be modified")
}

func TestApplyCreateDuplicate(t *testing.T) {
	list := []model.Product{prod("b", "old"), prod("a", "")}

	got, outcome := ApplyCreate(list, prod("a", "new"))
	assert.Equal(t, []string{"a", "b"}, ids(got))
	assert.Equal(t, "new", got[0].Description)
	assert.Equal(t, OutcomeReplaced, outcome)

	again, _ := ApplyCreate(got, prod("a", "new"))
	assert.Equal(t, got, again, "duplicate create must equal a single create")
}

func TestApplyUpdate(t *testing.T) {
	list := []model.Product{prod("c", ""), prod("b", "old"), prod("a", "")}

	got, outcome := ApplyUpdate(list, prod("b", "new"))
	assert.Equal(t, []string{"c", "b", "a"}, ids(got))
	assert.Equal(t, "new", got[1].Description)
	assert.Equal(t, OutcomeReplaced, outcome)
	assert.Equal(t, "old", list[1].Description)
}

func TestApplyUpdateUnknownIsCreate(t *testing.T) {
	list := []model.Product{prod("a", "")}

	updated, outcome := ApplyUpdate(list, prod("x", "v"))
	created, _ := ApplyCreate(list, prod("x", "v"))
	assert.Equal(t, created, updated)
	assert.Equal(t, OutcomeInserted, outcome)
}

func TestApplyDelete(t *testing.T) {
	list := []model.Product{prod("b", ""), prod("a", "")}

	got, outcome := ApplyDelete(list, "b")
	assert.Equal(t, []string{"a"}, ids(got))
	assert.Equal(t, OutcomeRemoved, outcome)

	got, outcome = ApplyDelete(got, "b")
	assert.Equal(t, []string{"a"}, ids(got))
	assert.Equal(t, OutcomeNoop, outcome)
}

func TestApplyUnknownKind(t *testing.T) {
	list := []model.Product{prod("a", "")}
	got, outcome := Apply(list, Kind("rename"), prod("a", "x"))
	assert.Equal(t, list, got)
	assert.Equal(t, OutcomeNoop, outcome)
}

type event struct {
	kind Kind
	p    model.Product
}

// TestReconcileProperties replays random event sequences in random orders
// and checks the list never holds a duplicate id and holds exactly the ids
// that were created or updated and never deleted.
func TestReconcileProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		var events []event
		live := make(map[string]bool)
		for i := 0; i < 12; i++ {
			id := fmt.Sprintf("p%d", i)
			events = append(events, event{KindCreate, prod(id, "v1")})
			switch rng.Intn(4) {
			case 0:
				events = append(events, event{KindUpdate, prod(id, "v2")})
				live[id] = true
			case 1:
				events = append(events, event{KindDelete, prod(id, "")})
			case 2:
				// duplicate delivery
				events = append(events, event{KindCreate, prod(id, "v1")})
				live[id] = true
			default:
				live[id] = true
			}
		}

		// Shuffle but keep each delete after everything else for its id, so
		// "not deleted" is well defined regardless of order.
		rng.Shuffle(len(events), func(i, j int) { events[i], events[j] = events[j], events[i] })
		var ordered, deletes []event
		for _, ev := range events {
			if ev.kind == KindDelete {
				deletes = append(deletes, ev)
			} else {
				ordered = append(ordered, ev)
			}
		}
		ordered = append(ordered, deletes...)

		var list []model.Product
		for _, ev := range ordered {
			list, _ = Apply(list, ev.kind, ev.p)

			seen := make(map[string]bool)
			for _, p := range list {
				require.False(t, seen[p.ID], "round %d: duplicate id %s", round, p.ID)
				seen[p.ID] = true
			}
		}

		got := make(map[string]bool)
		for _, p := range list {
			got[p.ID] = true
		}
		assert.Equal(t, live, got, "round %d", round)
	}
}

func TestReconcileReplayIsIdempotent(t *testing.T) {
	seq := []event{
		{KindCreate, prod("a", "1")},
		{KindCreate, prod("b", "1")},
		{KindUpdate, prod("a", "2")},
		{KindDelete, prod("b", "")},
		{KindUpdate, prod("c", "1")},
	}

	var once []model.Product
	for _, ev := range seq {
		once, _ = Apply(once, ev.kind, ev.p)
	}

	twice := once
	for _, ev := range seq {
		twice, _ = Apply(twice, ev.kind, ev.p)
	}

	assert.ElementsMatch(t, ids(once), ids(twice))
	assert.Equal(t, []string{"c", "a"}, ids(once))
}

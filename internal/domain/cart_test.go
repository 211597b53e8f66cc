package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func cartFromLines(quantities []int, cents []int64) *Cart {
	cart := &Cart{ID: uuid.New()}
	for i, q := range quantities {
		price := decimal.New(cents[i%len(cents)], -2)
		productID := uuid.New()
		cart.Items = append(cart.Items, CartItem{
			ID:        uuid.New(),
			CartID:    cart.ID,
			ProductID: productID,
			Product:   Product{ID: productID, Name: "p", Price: price, Stock: q},
			Quantity:  q,
		})
	}
	return cart
}

// Property: item count and total are sums over the current lines
func TestProperty_CartTotalsAreSumsOverLines(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("ItemCount and Total equal the line sums", prop.ForAll(
		func(quantities []int, cents []int64) bool {
			if len(cents) == 0 {
				cents = []int64{100}
			}
			cart := cartFromLines(quantities, cents)

			wantCount := 0
			wantTotal := decimal.Zero
			for _, item := range cart.Items {
				wantCount += item.Quantity
				wantTotal = wantTotal.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
			}

			return cart.ItemCount() == wantCount && cart.Total().Equal(wantTotal)
		},
		gen.SliceOf(gen.IntRange(1, 50)),
		gen.SliceOf(gen.Int64Range(1, 100000)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Property: cart pricing follows the live product price
func TestProperty_CartTotalFollowsLivePrice(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("changing the product price changes the cart total", prop.ForAll(
		func(quantity int, before, after int64) bool {
			cart := cartFromLines([]int{quantity}, []int64{before})
			cart.Items[0].Product.Price = decimal.New(after, -2)

			want := decimal.New(after, -2).Mul(decimal.NewFromInt(int64(quantity)))
			return cart.Total().Equal(want)
		},
		gen.IntRange(1, 20),
		gen.Int64Range(1, 100000),
		gen.Int64Range(1, 100000),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestCartLookups(t *testing.T) {
	cart := cartFromLines([]int{2, 3}, []int64{1000})

	line, ok := cart.Line(cart.Items[1].ProductID)
	assert.True(t, ok)
	assert.Equal(t, 3, line.Quantity)

	item, ok := cart.Item(cart.Items[0].ID)
	assert.True(t, ok)
	assert.Equal(t, 2, item.Quantity)

	_, ok = cart.Item(uuid.New())
	assert.False(t, ok)

	assert.False(t, cart.IsEmpty())
	assert.True(t, (&Cart{}).IsEmpty())
	assert.True(t, (&Cart{}).Total().IsZero())
}

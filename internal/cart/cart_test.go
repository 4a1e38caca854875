package cart

import (
	"strconv"
	"testing"

	"storefront/internal/model"
	"storefront/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func TestEffectivePrice(t *testing.T) {
	tests := []struct {
		name     string
		price    int64
		discount *int64
		want     int64
	}{
		{"no discount", 1999, nil, 1999},
		{"valid discount", 1999, ptr(1500), 1500},
		{"zero discount", 1999, ptr(0), 1999},
		{"negative discount", 1999, ptr(-5), 1999},
		{"discount equals price", 1999, ptr(1999), 1999},
		{"discount above price", 1999, ptr(2500), 1999},
		{"one cent discount", 1999, ptr(1), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := model.Product{PriceCents: tt.price, DiscountCents: tt.discount}
			assert.Equal(t, tt.want, EffectivePrice(p))
		})
	}
}

func TestEffectivePriceLaw(t *testing.T) {
	for price := int64(0); price < 40; price++ {
		for d := int64(-3); d < 45; d++ {
			p := model.Product{PriceCents: price, DiscountCents: ptr(d)}
			got := EffectivePrice(p)
			if d > 0 && d < price {
				require.Equal(t, d, got, "price=%d discount=%d", price, d)
			} else {
				require.Equal(t, price, got, "price=%d discount=%d", price, d)
			}
		}
	}
}

func TestParseAndFormatCents(t *testing.T) {
	assert.Equal(t, int64(1999), ParseCents("19.99"))
	assert.Equal(t, int64(2000), ParseCents("19.995"))
	assert.Equal(t, int64(500), ParseCents(" 5 "))
	assert.Equal(t, int64(0), ParseCents("abc"))
	assert.Equal(t, int64(0), ParseCents(""))
	assert.Nil(t, ParseOptionalCents(""))
	assert.Equal(t, int64(1250), *ParseOptionalCents("12.5"))

	assert.Equal(t, "MAD 19.99", FormatCents(1999))
	assert.Equal(t, "MAD 0.05", FormatCents(5))
	assert.Equal(t, "MAD 1200.00", FormatCents(120000))
}

func TestCartMutations(t *testing.T) {
	var c Cart
	c.Add("3", 2)
	c.Add("1", 0)
	c.Add("3", 1)
	assert.Equal(t, []Entry{{"3", 3}, {"1", 1}}, c.Entries)
	assert.Equal(t, 4, c.Count())

	c.Remove("3")
	c.Remove("missing")
	assert.Equal(t, []Entry{{"1", 1}}, c.Entries)

	c.Replace([]Entry{{"5", 2}, {"6", 0}, {"7", -1}})
	assert.Equal(t, []Entry{{"5", 2}}, c.Entries)
}

func TestBuildItems(t *testing.T) {
	db := testutil.OpenDB(t)
	lamp := testutil.Product(t, db, "Lamp", 1999, 5)
	chair := testutil.Product(t, db, "Chair", 5000, 5)
	require.NoError(t, db.Model(&chair).Update("discount_cents", 4500).Error)

	c := Cart{Entries: []Entry{
		{strconv.FormatInt(chair.ID, 10), 2},
		{"9999", 4},
		{"not-a-number", 1},
		{strconv.FormatInt(lamp.ID, 10), 0},
	}}
	items, total, err := BuildItems(db, c)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, chair.ID, items[0].ProductID)
	assert.Equal(t, int64(4500), items[0].UnitCents)
	assert.Equal(t, int64(5000), items[0].OrigPriceCents)
	assert.Equal(t, 2, items[0].Quantity)

	assert.Equal(t, lamp.ID, items[1].ProductID)
	assert.Equal(t, 1, items[1].Quantity, "quantity floors at 1")
	assert.Equal(t, []string{"uploads/Lamp.jpg"}, items[1].Images)

	var sum int64
	for _, it := range items {
		assert.Equal(t, it.UnitCents*int64(it.Quantity), it.LineTotal)
		sum += it.LineTotal
	}
	assert.Equal(t, sum, total)
	assert.Equal(t, int64(4500*2+1999), total)
}

func TestBuildItemsEmpty(t *testing.T) {
	db := testutil.OpenDB(t)
	items, total, err := BuildItems(db, Cart{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, total)
}

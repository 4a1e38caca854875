package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderStatus(t *testing.T) {
	for _, st := range OrderStatuses {
		got, err := ParseOrderStatus(string(st))
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}
	for _, bad := range []string{"", "New", "lost", " shipped"} {
		_, err := ParseOrderStatus(bad)
		assert.Error(t, err, bad)
	}
}

func TestDecodeLineItems(t *testing.T) {
	items, err := DecodeLineItems(0, "")
	require.NoError(t, err)
	assert.Equal(t, []LineItem{}, items)

	items, err = DecodeLineItems(0, `null`)
	require.NoError(t, err)
	assert.Equal(t, []LineItem{}, items)

	legacy := `[{"id":3,"title":"Lamp","price_cents":1999,"quantity":2,"line_total":3998,"images":[]}]`
	items, err = DecodeLineItems(0, legacy)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(3), items[0].ProductID)
	assert.Equal(t, int64(3998), items[0].LineTotal)
	assert.Nil(t, items[0].DiscountCents)

	_, err = DecodeLineItems(2, legacy)
	assert.Error(t, err)
	_, err = DecodeLineItems(1, "{broken")
	assert.Error(t, err)
}

func TestEncodeLineItems(t *testing.T) {
	raw, version, err := EncodeLineItems(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)
	assert.Equal(t, LineItemsVersion, version)

	o := Order{ItemsJSON: raw, ItemsVersion: version}
	items, err := o.LineItems()
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, "", o.Code())
}

func TestTimestampScan(t *testing.T) {
	var ts Timestamp
	require.NoError(t, ts.Scan("2026-02-01T09:30:15.123456"))
	assert.Equal(t, "2026-02-01 09:30:15", ts.String())

	require.NoError(t, ts.Scan([]byte("2026-02-01 10:00:00")))
	assert.Equal(t, 10, ts.Hour())

	require.NoError(t, ts.Scan(nil))
	assert.True(t, ts.IsZero())
	v, err := ts.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	assert.Error(t, ts.Scan("yesterday"))
	assert.Error(t, ts.Scan(42))
}

func TestTimestampJSON(t *testing.T) {
	ts := NewTimestamp(time.Date(2026, 2, 1, 9, 30, 15, 999, time.FixedZone("X", 3600)))
	b, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2026-02-01 08:30:15"`, string(b))

	var back Timestamp
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, ts.Equal(back.Time))
}

func TestProductFirstImage(t *testing.T) {
	assert.Equal(t, "", Product{}.FirstImage())
	assert.Equal(t, "a.jpg", Product{Images: []string{"a.jpg", "b.jpg"}}.FirstImage())
}

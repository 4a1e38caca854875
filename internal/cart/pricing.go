package cart

import (
	"strings"

	"storefront/internal/model"

	"github.com/shopspring/decimal"
)

// Currency 展示用币种前缀。
const Currency = "MAD"

var hundred = decimal.NewFromInt(100)

// EffectivePrice 实际成交单价：折扣价满足 0 < discount < price 时取折扣价，否则取原价。
func EffectivePrice(p model.Product) int64 {
	if p.DiscountCents != nil {
		d := *p.DiscountCents
		if d > 0 && d < p.PriceCents {
			return d
		}
	}
	return p.PriceCents
}

// ParseCents 把 "19.99" 这类表单金额转成分，四舍五入；非法输入返回 0。
func ParseCents(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.Mul(hundred).Round(0).IntPart()
}

// ParseOptionalCents 空串返回 nil，用于可选折扣价。
func ParseOptionalCents(s string) *int64 {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	c := ParseCents(s)
	return &c
}

// FormatCents 1999 -> "MAD 19.99"。
func FormatCents(cents int64) string {
	return Currency + " " + decimal.New(cents, -2).StringFixed(2)
}

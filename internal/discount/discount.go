// Package discount рассчитывает размер скидки по купону.
package discount

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront-promotions/internal/model"
	"github.com/mmeshcher/storefront-promotions/internal/money"
)

var hundred = decimal.NewFromInt(100)

// Compute возвращает скидку по купону для суммы корзины cartTotal.
// Процентная скидка ограничивается MaxDiscount, любая скидка ограничивается суммой корзины.
// Результат округляется до сотых один раз, в самом конце.
func Compute(c model.Coupon, cartTotal decimal.Decimal) decimal.Decimal {
	if cartTotal.IsNegative() {
		cartTotal = decimal.Zero
	}

	value := decimal.NewFromFloat(c.DiscountValue)

	var amount decimal.Decimal
	switch c.DiscountType {
	case model.DiscountTypePercentage:
		amount = cartTotal.Mul(value).Div(hundred)
		if c.MaxDiscount != nil {
			amount = decimal.Min(amount, decimal.NewFromFloat(*c.MaxDiscount))
		}
	case model.DiscountTypeFixed:
		amount = value
	default:
		return decimal.Zero
	}

	amount = decimal.Min(amount, cartTotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	return amount.Round(money.Scale)
}

// Package money содержит преобразования денежных величин.
// В хранилище суммы лежат в сотых долях (копейках), в API передаются дробными числами.
package money

import (
	"math"

	"github.com/shopspring/decimal"
)

// Scale задаёт количество знаков после запятой для денежных сумм.
const Scale = 2

// MaxAmount ограничивает любую денежную величину, принимаемую сервисом.
// Сотые доли такой суммы с запасом помещаются в int64.
const MaxAmount = 1e12

var (
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

// ValidAmount сообщает, лежит ли v в диапазоне [0, MaxAmount].
func ValidAmount(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= MaxAmount
}

// FromFloat переводит значение из API в decimal с округлением до сотых.
func FromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(Scale)
}

// Round округляет значение до сотых так же, как оно будет сохранено.
func Round(v float64) float64 {
	return Float(FromFloat(v))
}

// ToCents переводит значение в целое число сотых долей, округляя половину вверх.
// Значения вне диапазона int64 приводятся к его границе.
func ToCents(v float64) int64 {
	d := decimal.NewFromFloat(v).Shift(Scale).Round(0)
	switch {
	case d.GreaterThan(maxCents):
		return math.MaxInt64
	case d.LessThan(minCents):
		return math.MinInt64
	}
	return d.IntPart()
}

// FromCents переводит целое число сотых долей в значение для API.
func FromCents(c int64) float64 {
	return decimal.New(c, -Scale).InexactFloat64()
}

// Float возвращает значение decimal для API.
func Float(d decimal.Decimal) float64 {
	return d.Round(Scale).InexactFloat64()
}

// Package wheel реализует взвешенный розыгрыш секторов колеса скидок.
// Все функции пакета чистые: они не выполняют ввода-вывода и не блокируются.
package wheel

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/mmeshcher/storefront-promotions/internal/model"
)

// ProbabilityTolerance задаёт допустимое отклонение суммы вероятностей активных секторов от единицы.
const ProbabilityTolerance = 1e-4

var (
	// ErrInvalidProbabilitySum возвращается, если сумма вероятностей активных секторов не равна единице.
	ErrInvalidProbabilitySum = errors.New("active segment probabilities must sum to 1")
	// ErrInvalidSegment возвращается для сектора с некорректными полями.
	ErrInvalidSegment = errors.New("invalid segment")
	// ErrNoEligibleSegments возвращается, если после фильтрации не осталось секторов.
	ErrNoEligibleSegments = errors.New("no eligible segments")
	// ErrNoValidProbabilities возвращается, если суммарная вероятность отобранных секторов равна нулю.
	ErrNoValidProbabilities = errors.New("no valid probabilities")
)

// Source выдаёт равномерно распределённые числа из [0, 1).
type Source interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 {
	return rand.Float64()
}

// DefaultSource использует глобальный генератор math/rand/v2.
var DefaultSource Source = globalSource{}

// Filter отбирает активные секторы, подходящие под категорию.
// Пустая категория запроса отключает фильтр по категории.
func Filter(segments []model.Segment, category string) []model.Segment {
	category = strings.TrimSpace(category)

	res := make([]model.Segment, 0, len(segments))
	for _, s := range segments {
		if !s.Active {
			continue
		}
		if category != "" && s.Category != "" && s.Category != category {
			continue
		}
		res = append(res, s)
	}
	return res
}

// TotalProbability возвращает сумму вероятностей секторов.
func TotalProbability(segments []model.Segment) float64 {
	var total float64
	for _, s := range segments {
		total += s.Probability
	}
	return total
}

// Pick выбирает сектор для значения r из [0, TotalProbability(segments)).
// Возвращается первый сектор, для которого r <= накопленной вероятности.
// Если из-за погрешности накопления ни один сектор не подошёл, возвращается
// последний сектор с ненулевой вероятностью.
func Pick(segments []model.Segment, r float64) (model.Segment, error) {
	if len(segments) == 0 {
		return model.Segment{}, ErrNoEligibleSegments
	}

	last := -1
	var cumulative float64
	for i, s := range segments {
		if s.Probability <= 0 {
			continue
		}
		last = i
		cumulative += s.Probability
		if r <= cumulative {
			return s, nil
		}
	}

	if last < 0 {
		return model.Segment{}, ErrNoValidProbabilities
	}
	return segments[last], nil
}

// Draw разыгрывает один сектор из уже отфильтрованного набора.
// Вероятности неявно нормируются: r берётся из [0, сумма), а не из [0, 1).
func Draw(segments []model.Segment, src Source) (model.Segment, error) {
	if len(segments) == 0 {
		return model.Segment{}, ErrNoEligibleSegments
	}

	total := TotalProbability(segments)
	if total <= 0 || math.IsNaN(total) {
		return model.Segment{}, ErrNoValidProbabilities
	}

	if src == nil {
		src = DefaultSource
	}

	return Pick(segments, src.Float64()*total)
}

// ValidateSegments проверяет набор секторов перед сохранением.
func ValidateSegments(segments []model.Segment) error {
	if len(segments) == 0 {
		return fmt.Errorf("%w: at least one segment is required", ErrInvalidSegment)
	}

	var activeTotal float64
	for i, s := range segments {
		if strings.TrimSpace(s.Label) == "" {
			return fmt.Errorf("%w: segment %d has empty label", ErrInvalidSegment, i)
		}
		if strings.TrimSpace(s.CouponCode) == "" {
			return fmt.Errorf("%w: segment %q has empty coupon code", ErrInvalidSegment, s.Label)
		}
		if s.Color != "" && !isHexColor(s.Color) {
			return fmt.Errorf("%w: segment %q color %q is not #RRGGBB", ErrInvalidSegment, s.Label, s.Color)
		}
		if math.IsNaN(s.Probability) || s.Probability < 0 || s.Probability > 1 {
			return fmt.Errorf("%w: segment %q probability %v is outside [0, 1]", ErrInvalidSegment, s.Label, s.Probability)
		}
		if s.Active {
			activeTotal += s.Probability
		}
	}

	if math.Abs(activeTotal-1) > ProbabilityTolerance {
		return fmt.Errorf("%w: got %.4f", ErrInvalidProbabilitySum, activeTotal)
	}

	return nil
}

func isHexColor(c string) bool {
	if len(c) != 7 || c[0] != '#' {
		return false
	}
	for i := 1; i < len(c); i++ {
		switch ch := c[i]; {
		case ch >= '0' && ch <= '9', ch >= 'a' && ch <= 'f', ch >= 'A' && ch <= 'F':
		default:
			return false
		}
	}
	return true
}

// DefaultSegments возвращает набор секторов, которым засевается колесо при первом обращении.
func DefaultSegments() []model.Segment {
	return []model.Segment{
		{Label: "5% OFF", Reward: "5% off your order", CouponCode: "SPIN5", Probability: 0.25, Color: "#FF6B6B", Active: true},
		{Label: "10% OFF", Reward: "10% off your order", CouponCode: "SPIN10", Probability: 0.20, Color: "#4ECDC4", Active: true},
		{Label: "15% OFF", Reward: "15% off your order", CouponCode: "SPIN15", Probability: 0.10, Color: "#45B7D1", Active: true},
		{Label: "FREE SHIPPING", Reward: "Free shipping", CouponCode: "FREESHIP", Probability: 0.15, Color: "#96CEB4", Active: true},
		{Label: "50 OFF", Reward: "50 off orders over 500", CouponCode: "FLAT50", Probability: 0.10, Color: "#FFEAA7", Active: true},
		{Label: "TRY AGAIN", Reward: "Better luck next time", CouponCode: "TRYAGAIN", Probability: 0.20, Color: "#DDA0DD", Active: true},
	}
}

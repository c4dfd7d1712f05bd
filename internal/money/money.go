// Package money содержит типы значений для денежных сумм и баллов лояльности.
//
// Все суммы хранятся в целых центах и никогда не представляются числом с
// плавающей точкой внутри системы. Преобразование в десятичную валюту
// выполняется только на границе JSON.
package money

import (
	"errors"
	"fmt"
	"math"
)

// Money — денежная сумма в центах.
type Money int64

// Points — количество баллов лояльности.
type Points int64

// BasisPoints — процент в сотых долях (1% = 100 б.п.). Используется для
// хранения процента начисления баллов без плавающей точки.
type BasisPoints int64

// MaxBasisPoints соответствует 100%.
const MaxBasisPoints BasisPoints = 10000

// ErrNegativeAmount возвращается при попытке создать отрицательную сумму.
var ErrNegativeAmount = errors.New("amount must not be negative")

// ErrInvalidPercentage возвращается, если процент вне диапазона [0, 100].
var ErrInvalidPercentage = errors.New("percentage must be in range [0, 100]")

// FromDecimal преобразует десятичную сумму в центы с округлением до цента.
func FromDecimal(v float64) (Money, error) {
	if v < 0 {
		return 0, fmt.Errorf("%w: %v", ErrNegativeAmount, v)
	}
	return Money(math.Round(v * 100)), nil
}

// Decimal возвращает сумму в десятичной валюте для отдачи клиенту.
func (m Money) Decimal() float64 {
	return float64(m) / 100
}

// Cents возвращает сумму в центах.
func (m Money) Cents() int64 {
	return int64(m)
}

// Sub вычитает сумму и возвращает ошибку, если результат отрицательный.
func (m Money) Sub(v Money) (Money, error) {
	if v > m {
		return 0, fmt.Errorf("%w: %d - %d", ErrNegativeAmount, m, v)
	}
	return m - v, nil
}

// PercentToBasisPoints преобразует десятичный процент в базисные пункты.
func PercentToBasisPoints(percent float64) (BasisPoints, error) {
	if percent < 0 || percent > 100 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPercentage, percent)
	}
	return BasisPoints(math.Round(percent * 100)), nil
}

// Percent возвращает значение в десятичных процентах.
func (bp BasisPoints) Percent() float64 {
	return float64(bp) / 100
}

// Valid сообщает, лежит ли процент в допустимом диапазоне [0, 100].
func (bp BasisPoints) Valid() bool {
	return bp >= 0 && bp <= MaxBasisPoints
}

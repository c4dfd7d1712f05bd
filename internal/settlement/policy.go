package settlement

import "github.com/mmeshcher/beststore-system/internal/money"

// ComputePointsEarned вычисляет баллы за покупку: процент от цены товара,
// округлённый вниз до целого балла и ограниченный потолком товара.
// Корректность процента и потолка проверяется при сохранении товара,
// здесь она не перепроверяется.
func ComputePointsEarned(price money.Money, percentage money.BasisPoints, maxPoints money.Points) money.Points {
	// Цена хранится в центах, процент — в базисных пунктах:
	// делитель 100 переводит центы в валюту, 10000 — б.п. в долю.
	raw := price.Cents() * int64(percentage) / (100 * int64(money.MaxBasisPoints))
	earned := money.Points(raw)
	if earned > maxPoints {
		return maxPoints
	}
	return earned
}

// Package validation содержит функции валидации входных данных.
package validation

import (
	"time"
	"unicode"
)

// IsValidCardNumber проверяет номер карты пополнения по алгоритму Луна.
func IsValidCardNumber(number string) bool {
	if len(number) != 16 {
		return false
	}

	sum := 0
	double := false

	for i := len(number) - 1; i >= 0; i-- {
		ch := rune(number[i])
		if !unicode.IsDigit(ch) {
			return false
		}
		digit := int(ch - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return sum%10 == 0
}

// IsValidCVV проверяет код безопасности карты.
func IsValidCVV(cvv string) bool {
	if len(cvv) != 3 {
		return false
	}
	for _, ch := range cvv {
		if !unicode.IsDigit(ch) {
			return false
		}
	}
	return true
}

// IsValidExpiry проверяет срок действия карты в формате MM/YY и что карта не истекла.
func IsValidExpiry(expiry string, now time.Time) bool {
	t, err := time.Parse("01/06", expiry)
	if err != nil {
		return false
	}
	// Карта действительна до конца месяца, указанного на ней.
	endOfMonth := t.AddDate(0, 1, 0)
	return now.Before(endOfMonth)
}

// IsValidPassword проверяет минимальные требования к паролю.
func IsValidPassword(password string) bool {
	return len(password) >= 8 && len(password) <= 100
}

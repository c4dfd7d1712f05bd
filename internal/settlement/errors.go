package settlement

import "errors"

// ErrUserNotFound возвращается, если пользователь не найден.
var (
	ErrUserNotFound = errors.New("user not found")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductUnavailable возвращается, если товар снят с продажи или остаток исчерпан.
	ErrProductUnavailable = errors.New("product is not available or out of stock")
	// ErrInsufficientFunds возвращается при нехватке средств на кошельке.
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	// ErrConcurrentModification возвращается, когда конкурирующие изменения
	// кошелька или остатка не позволили провести заказ за отведённое число попыток.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrTimeout возвращается, если попытка проведения не уложилась в таймаут.
	ErrTimeout = errors.New("settlement timed out")
	// ErrVersionConflict сообщает о несовпадении версии строки при условном
	// обновлении. Внутреннее условие повтора, наружу не отдаётся.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicateOrderNumber сообщает о коллизии номера заказа. Внутреннее
	// условие повтора с новым номером.
	ErrDuplicateOrderNumber = errors.New("duplicate order number")
	// ErrDuplicateIdempotencyKey сообщает, что заказ с этим ключом
	// идемпотентности уже проведён параллельным запросом.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	// ErrInvalidAmount возвращается при попытке пополнения на неположительную сумму.
	ErrInvalidAmount = errors.New("amount must be positive")
)

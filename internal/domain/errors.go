package domain

import (
	"errors"
	"fmt"
)

// Виды ошибок движка. Конкретная причина заворачивается рядом: fmt.Errorf("%w: %w", kind, cause)
var (
	ErrValidation  = errors.New("ошибка валидации")
	ErrSubmission  = errors.New("транзакция отклонена")
	ErrRead        = errors.New("не удалось прочитать состояние игры")
	ErrConsistency = errors.New("состояние расходится с контрактом")
)

var (
	ErrWalletNotConnected  = errors.New("кошелек не подключен")
	ErrInvalidAmount       = errors.New("неверная сумма ставки")
	ErrInsufficientBalance = errors.New("недостаточно средств")
	ErrInvalidMineCount    = errors.New("количество мин должно быть от 1 до 24")
	ErrGameNotActive       = errors.New("игра не активна")
	ErrGameAlreadyActive   = errors.New("игра уже идет")
	ErrTileRevealed        = errors.New("ячейка уже открыта")
	ErrTilePending         = errors.New("ячейка уже открывается")
	ErrInvalidTile         = errors.New("неверная позиция ячейки")
	ErrCashOutPending      = errors.New("вывод уже отправлен")
	ErrNotBound            = errors.New("кошелек не привязан")
)

// Validation заворачивает причину в ErrValidation
func Validation(cause error) error {
	return fmt.Errorf("%w: %w", ErrValidation, cause)
}

// Submission заворачивает ошибку отправки транзакции
func Submission(cause error) error {
	return fmt.Errorf("%w: %w", ErrSubmission, cause)
}

// Read заворачивает ошибку чтения
func Read(cause error) error {
	return fmt.Errorf("%w: %w", ErrRead, cause)
}

// Consistency заворачивает расхождение с контрактом
func Consistency(cause error) error {
	return fmt.Errorf("%w: %w", ErrConsistency, cause)
}

// KindOf вид ошибки для ответа клиенту
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConsistency):
		return "consistency"
	case errors.Is(err, ErrSubmission):
		return "submission"
	case errors.Is(err, ErrRead):
		return "read"
	}
	return "internal"
}

package domain

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	MinMines = 1
	MaxMines = 24
)

var amountPattern = regexp.MustCompile(`^\d*\.?\d*$`)

// Заявка на ставку, проверяется до отправки и используется один раз
type BetRequest struct {
	Amount    string `json:"amount"`
	MineCount int    `json:"mine_count"`
}

// ParsedAmount сумма как decimal, без проверок баланса
func (r BetRequest) ParsedAmount() (decimal.Decimal, error) {
	raw := strings.TrimSpace(r.Amount)
	if raw == "" || raw == "." || !amountPattern.MatchString(raw) {
		return decimal.Zero, Validation(ErrInvalidAmount)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, Validation(ErrInvalidAmount)
	}
	return amount, nil
}

// Validate проверки формы ставки: кошелек, сумма > 0, сумма <= баланс, мины 1..24
func (r BetRequest) Validate(w Wallet) (decimal.Decimal, error) {
	if !w.IsConnected {
		return decimal.Zero, Validation(ErrWalletNotConnected)
	}

	amount, err := r.ParsedAmount()
	if err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, Validation(ErrInvalidAmount)
	}
	if amount.GreaterThan(w.Balance) {
		return decimal.Zero, Validation(ErrInsufficientBalance)
	}
	if r.MineCount < MinMines || r.MineCount > MaxMines {
		return decimal.Zero, Validation(ErrInvalidMineCount)
	}

	return amount, nil
}

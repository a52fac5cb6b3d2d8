package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ifeelsam/core-bet/internal/domain"
	"github.com/shopspring/decimal"
)

// StatusReader чтение getGameStatus
type StatusReader interface {
	ReadGameStatus(ctx context.Context, player common.Address) (*domain.GameStatus, error)
}

// Transactor отправка транзакций контракта. Возвращает после принятия сетью
type Transactor interface {
	SubmitBet(ctx context.Context, amount decimal.Decimal, mineCount int) (domain.TxResult, error)
	SubmitReveal(ctx context.Context, tile int) (domain.TxResult, error)
	SubmitCashOut(ctx context.Context) (domain.TxResult, error)
}

// WalletProvider подключенный кошелек
type WalletProvider interface {
	GetWallet(ctx context.Context) (domain.Wallet, error)
}

// StatusCache общий кэш снапшотов между процессами (redis)
type StatusCache interface {
	Get(ctx context.Context, address common.Address) (domain.SyncSnapshot, bool, error)
	Set(ctx context.Context, address common.Address, snap domain.SyncSnapshot) error
	Delete(ctx context.Context, address common.Address) error
}

// ActivityGate поллер спрашивает у машины состояний, идет ли раунд
type ActivityGate interface {
	IsActive() bool
}

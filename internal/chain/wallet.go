package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ifeelsam/core-bet/internal/domain"
	"github.com/ifeelsam/core-bet/internal/logger"
	"github.com/shopspring/decimal"
)

// Wallet подписывает и отправляет транзакции в контракт Mines
type Wallet struct {
	client  *Client
	address common.Address
	auth    *bind.TransactOpts
	timeout time.Duration
	mu      sync.Mutex // одна отправка за раз, чтобы nonce не пересекались
}

// NewWallet создает кошелек из hex приватного ключа
func NewWallet(client *Client, hexKey string) (*Wallet, error) {
	key, err := ParsePrivateKey(hexKey)
	if err != nil {
		return nil, err
	}

	auth, err := bind.NewKeyedTransactorWithChainID(key, client.ChainID())
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	return &Wallet{
		client:  client,
		address: addressOf(key),
		auth:    auth,
		timeout: ReceiptTimeout,
	}, nil
}

func addressOf(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// Address адрес кошелька
func (w *Wallet) Address() common.Address {
	return w.address
}

// GetWallet текущий баланс и сеть
func (w *Wallet) GetWallet(ctx context.Context) (domain.Wallet, error) {
	balance, err := w.client.Balance(ctx, w.address)
	if err != nil {
		return domain.Wallet{}, err
	}
	return domain.Wallet{
		Address:     w.address,
		Balance:     balance,
		IsConnected: true,
		ChainID:     w.client.ChainID().Int64(),
	}, nil
}

// SubmitBet placeBet(mineCount) со ставкой в value
func (w *Wallet) SubmitBet(ctx context.Context, amount decimal.Decimal, mineCount int) (domain.TxResult, error) {
	return w.send(ctx, domain.TxBet, ToWei(amount), methodPlaceBet, uint8(mineCount))
}

// SubmitReveal revealTile(index)
func (w *Wallet) SubmitReveal(ctx context.Context, tile int) (domain.TxResult, error) {
	return w.send(ctx, domain.TxReveal, nil, methodRevealTile, uint8(tile))
}

// SubmitCashOut cashOut()
func (w *Wallet) SubmitCashOut(ctx context.Context) (domain.TxResult, error) {
	return w.send(ctx, domain.TxCashOut, nil, methodCashOut)
}

// send отправляет транзакцию и ждет квитанцию
func (w *Wallet) send(ctx context.Context, kind domain.TxKind, value *big.Int, method string, args ...interface{}) (domain.TxResult, error) {
	log := logger.Component("chain")

	w.mu.Lock()
	opts := *w.auth
	opts.Context = ctx
	opts.Value = value
	tx, err := w.client.contract.Transact(&opts, method, args...)
	w.mu.Unlock()
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("failed to send %s: %w", method, err)
	}

	res := domain.TxResult{
		Hash:        tx.Hash().Hex(),
		Kind:        kind,
		SubmittedAt: time.Now(),
	}
	log.Info("chain: транзакция отправлена", "method", method, "hash", res.Hash)

	if _, err := w.client.WaitForTransaction(ctx, tx.Hash(), w.timeout); err != nil {
		log.Warn("chain: транзакция не подтверждена", "method", method, "hash", res.Hash, "error", err)
		return res, err
	}

	log.Info("chain: транзакция подтверждена", "method", method, "hash", res.Hash)
	return res, nil
}

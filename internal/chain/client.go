package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ifeelsam/core-bet/internal/domain"
	"github.com/ifeelsam/core-bet/internal/logger"
	"github.com/shopspring/decimal"
)

var (
	ErrTxReverted = errors.New("транзакция отменена контрактом")
	ErrTxTimeout  = errors.New("транзакция не найдена в течение таймаута")
)

// Client читает контракт Mines через JSON-RPC
type Client struct {
	rpc      *ethclient.Client
	abi      abi.ABI
	contract *bind.BoundContract
	address  common.Address
	chainID  *big.Int
}

// Dial подключается к RPC и проверяет, что сеть та, что ожидается
func Dial(ctx context.Context, rpcURL string, contract common.Address, expectedChainID int64) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}

	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	if err := VerifyChainID(expectedChainID, chainID.Int64()); err != nil {
		rpc.Close()
		return nil, err
	}

	parsed, err := ParseMinesABI()
	if err != nil {
		rpc.Close()
		return nil, err
	}

	logger.Info("chain: подключен rpc", "url", rpcURL, "chain_id", chainID, "contract", contract.Hex())

	return &Client{
		rpc:      rpc,
		abi:      parsed,
		contract: bind.NewBoundContract(contract, parsed, rpc, rpc, rpc),
		address:  contract,
		chainID:  chainID,
	}, nil
}

func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *Client) ContractAddress() common.Address {
	return c.address
}

// ReadGameStatus getGameStatus(player) на последнем блоке
func (c *Client) ReadGameStatus(ctx context.Context, player common.Address) (*domain.GameStatus, error) {
	input, err := c.abi.Pack(methodGetGameStatus, player)
	if err != nil {
		return nil, fmt.Errorf("failed to pack call: %w", err)
	}

	data, err := c.rpc.CallContract(ctx, ethereum.CallMsg{From: player, To: &c.address, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("getGameStatus: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("getGameStatus: пустой ответ, контракт не развернут по адресу %s", c.address.Hex())
	}

	return decodeGameStatus(c.abi, data)
}

// Balance баланс адреса в tCORE2
func (c *Client) Balance(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	wei, err := c.rpc.BalanceAt(ctx, addr, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return FromWei(wei), nil
}

// WaitForTransaction ожидает квитанцию. Откат транзакции возвращается как ErrTxReverted
func (c *Client) WaitForTransaction(ctx context.Context, hash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		receipt, err := c.rpc.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: %s", ErrTxReverted, hash.Hex())
			}
			return receipt, nil
		case ctx.Err() != nil:
			return nil, waitError(ctx, hash)
		case !errors.Is(err, ethereum.NotFound):
			return nil, fmt.Errorf("failed to get receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, waitError(ctx, hash)
		case <-time.After(ReceiptPollInterval):
		}
	}
}

func waitError(ctx context.Context, hash common.Hash) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTxTimeout, hash.Hex())
	}
	return ctx.Err()
}

func (c *Client) Close() {
	c.rpc.Close()
}

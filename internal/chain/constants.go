package chain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ifeelsam/core-bet/internal/domain"
	"github.com/shopspring/decimal"
)

// сети Core DAO
const (
	ChainIDCoreTestnet2 = 1114
	ChainIDCoreTestnet  = 1115

	RPCCoreTestnet2 = "https://rpc.test2.btcs.network"
	RPCCoreTestnet  = "https://rpc.test.btcs.network"

	ExplorerCoreTestnet2 = "https://scan.test2.btcs.network"
	ExplorerCoreTestnet  = "https://scan.test.btcs.network"

	NativeSymbol = "tCORE2"
)

const (
	// интервал опроса квитанции транзакции
	ReceiptPollInterval = 2 * time.Second

	// сколько ждать квитанцию по умолчанию
	ReceiptTimeout = 60 * time.Second
)

var weiPerUnit = decimal.New(1, domain.NativeDecimals)

// ToWei переводит tCORE2 в wei, дробная часть меньше wei отбрасывается
func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Mul(weiPerUnit).BigInt()
}

// FromWei переводит wei в tCORE2
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -domain.NativeDecimals)
}

// ExplorerTxURL ссылка на транзакцию в обозревателе
func ExplorerTxURL(chainID int64, hash string) string {
	base := ExplorerCoreTestnet2
	if chainID == ChainIDCoreTestnet {
		base = ExplorerCoreTestnet
	}
	return fmt.Sprintf("%s/tx/%s", base, hash)
}

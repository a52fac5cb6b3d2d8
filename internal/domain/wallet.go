package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// NativeDecimals tCORE2, как и ETH, делится на 10^18 wei
const NativeDecimals = 18

// Подключенный EVM кошелек, ядро его только читает
type Wallet struct {
	Address     common.Address  `json:"address"`
	Balance     decimal.Decimal `json:"balance"`
	IsConnected bool            `json:"is_connected"`
	ChainID     int64           `json:"chain_id"`
}

// ShortAddress формат для шапки: 0x123...abc
func (w Wallet) ShortAddress() string {
	if !w.IsConnected {
		return ""
	}
	return ShortenAddress(w.Address.Hex())
}

// ShortenAddress первые 5 и последние 3 символа
func ShortenAddress(addr string) string {
	if len(addr) <= 8 {
		return addr
	}
	return addr[:5] + "..." + addr[len(addr)-3:]
}

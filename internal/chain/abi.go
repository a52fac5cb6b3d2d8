package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ifeelsam/core-bet/internal/domain"
)

const (
	methodPlaceBet      = "placeBet"
	methodRevealTile    = "revealTile"
	methodCashOut       = "cashOut"
	methodGetGameStatus = "getGameStatus"
)

// MinesABI интерфейс контракта Mines, только то, что вызывает клиент
const MinesABI = `[
  {"type":"function","name":"placeBet","stateMutability":"payable",
   "inputs":[{"name":"mineCount","type":"uint8"}],"outputs":[]},
  {"type":"function","name":"revealTile","stateMutability":"nonpayable",
   "inputs":[{"name":"index","type":"uint8"}],"outputs":[]},
  {"type":"function","name":"cashOut","stateMutability":"nonpayable",
   "inputs":[],"outputs":[]},
  {"type":"function","name":"getGameStatus","stateMutability":"view",
   "inputs":[{"name":"player","type":"address"}],
   "outputs":[
     {"name":"betAmount","type":"uint256"},
     {"name":"mineCount","type":"uint8"},
     {"name":"seed","type":"bytes32"},
     {"name":"revealedCount","type":"uint8"},
     {"name":"revealed","type":"tuple[25]","components":[
       {"name":"actualValue","type":"bool"},
       {"name":"isRevealed","type":"bool"}
     ]},
     {"name":"active","type":"bool"},
     {"name":"cashedOut","type":"bool"}
   ]}
]`

// ParseMinesABI разбирает MinesABI
func ParseMinesABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(MinesABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse mines abi: %w", err)
	}
	return parsed, nil
}

type rawTile struct {
	ActualValue bool
	IsRevealed  bool
}

// gameStatusOutput раскладка выхода getGameStatus, поля по именам из ABI
type gameStatusOutput struct {
	BetAmount     *big.Int
	MineCount     uint8
	Seed          [32]byte
	RevealedCount uint8
	Revealed      [domain.BoardSize]rawTile
	Active        bool
	CashedOut     bool
}

func (o gameStatusOutput) toDomain() *domain.GameStatus {
	st := &domain.GameStatus{
		BetAmount:     o.BetAmount,
		MineCount:     o.MineCount,
		Seed:          common.Hash(o.Seed),
		RevealedCount: o.RevealedCount,
		Active:        o.Active,
		CashedOut:     o.CashedOut,
	}
	if st.BetAmount == nil {
		st.BetAmount = new(big.Int)
	}
	for i, t := range o.Revealed {
		st.Revealed[i] = domain.TileStatus{ActualValue: t.ActualValue, IsRevealed: t.IsRevealed}
	}
	return st
}

// decodeGameStatus разбирает сырой ответ eth_call
func decodeGameStatus(parsed abi.ABI, data []byte) (*domain.GameStatus, error) {
	var out gameStatusOutput
	if err := parsed.UnpackIntoInterface(&out, methodGetGameStatus, data); err != nil {
		return nil, fmt.Errorf("failed to decode game status: %w", err)
	}
	return out.toDomain(), nil
}

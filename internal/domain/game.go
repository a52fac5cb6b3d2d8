package domain

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const BoardSize = 25

// MineState состояние ячейки: неизвестно пока не открыта
type MineState uint8

const (
	MineUnknown MineState = iota
	MineSafe
	MineHit
)

// MarshalJSON отдает null / false / true
func (m MineState) MarshalJSON() ([]byte, error) {
	switch m {
	case MineSafe:
		return []byte("false"), nil
	case MineHit:
		return []byte("true"), nil
	default:
		return []byte("null"), nil
	}
}

func (m *MineState) UnmarshalJSON(data []byte) error {
	var v *bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch {
	case v == nil:
		*m = MineUnknown
	case *v:
		*m = MineHit
	default:
		*m = MineSafe
	}
	return nil
}

type Tile struct {
	Index    int       `json:"index"`
	Revealed bool      `json:"revealed"`
	Mine     MineState `json:"is_mine"`
}

// Подтвержденная контрактом сессия. Одна на адрес кошелька
type GameSession struct {
	SessionID     string          `json:"session_id"`
	BetAmount     decimal.Decimal `json:"bet_amount"`
	MineCount     int             `json:"mine_count"`
	Tiles         [BoardSize]Tile `json:"tiles"`
	RevealedCount int             `json:"revealed_count"`
	Active        bool            `json:"active"`
	CashedOut     bool            `json:"cashed_out"`
	Multiplier    float64         `json:"multiplier"`
}

// Equal структурное сравнение двух снимков сессии
func (s *GameSession) Equal(o *GameSession) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.SessionID == o.SessionID &&
		s.BetAmount.Equal(o.BetAmount) &&
		s.MineCount == o.MineCount &&
		s.Tiles == o.Tiles &&
		s.RevealedCount == o.RevealedCount &&
		s.Active == o.Active &&
		s.CashedOut == o.CashedOut &&
		s.Multiplier == o.Multiplier
}

// Busted среди открытых ячеек есть мина
func (s *GameSession) Busted() bool {
	if s == nil {
		return false
	}
	for _, t := range s.Tiles {
		if t.Revealed && t.Mine == MineHit {
			return true
		}
	}
	return false
}

// SafeRevealed число открытых безопасных ячеек
func (s *GameSession) SafeRevealed() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, t := range s.Tiles {
		if t.Revealed && t.Mine == MineSafe {
			n++
		}
	}
	return n
}

// TileStatus одна ячейка из ответа getGameStatus
type TileStatus struct {
	ActualValue bool // true = мина
	IsRevealed  bool
}

// Сырой ответ контракта getGameStatus(address)
type GameStatus struct {
	BetAmount     *big.Int
	MineCount     uint8
	Seed          common.Hash
	RevealedCount uint8
	Revealed      [BoardSize]TileStatus
	Active        bool
	CashedOut     bool
}

// Empty у адреса еще не было ни одной игры
func (g *GameStatus) Empty() bool {
	return g == nil ||
		(!g.Active && g.Seed == (common.Hash{}) && (g.BetAmount == nil || g.BetAmount.Sign() == 0))
}

// Phase фаза жизненного цикла раунда
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseActive   Phase = "active"
	PhaseResolved Phase = "resolved"
)

// Outcome итог завершенного раунда
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeCashedOut Outcome = "cashed_out"
	OutcomeBusted    Outcome = "busted"
)

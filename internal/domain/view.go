package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TileView ячейка как ее видит UI: подтвержденное значение поверх оптимистичного
type TileView struct {
	Index    int       `json:"index"`
	Revealed bool      `json:"revealed"`
	Mine     MineState `json:"is_mine"`
	Pending  bool      `json:"pending"`
}

// GameView все, что нужно UI для отрисовки поля и кнопок
type GameView struct {
	Phase           Phase               `json:"phase"`
	Outcome         Outcome             `json:"outcome,omitempty"`
	SessionID       string              `json:"session_id,omitempty"`
	BetAmount       decimal.Decimal     `json:"bet_amount"`
	MineCount       int                 `json:"mine_count"`
	Tiles           [BoardSize]TileView `json:"tiles"`
	RevealedCount   int                 `json:"revealed_count"`
	Multiplier      float64             `json:"multiplier"`
	NextMultiplier  float64             `json:"next_multiplier"`
	PotentialReturn decimal.Decimal     `json:"potential_return"`
	Resolving       bool                `json:"resolving"`
	Loading         bool                `json:"loading"`
	Source          SnapshotSource      `json:"source,omitempty"`
	FetchedAt       time.Time           `json:"fetched_at"`
	CanReveal       bool                `json:"can_reveal"`
	CanCashOut      bool                `json:"can_cash_out"`
	CanBet          bool                `json:"can_bet"`
}

package game

import (
	"github.com/ifeelsam/core-bet/internal/domain"
	"github.com/shopspring/decimal"
)

// SessionFromStatus переводит ответ getGameStatus в сессию.
// nil если у адреса еще не было игр.
func SessionFromStatus(st *domain.GameStatus, odds Odds) *domain.GameSession {
	if st.Empty() {
		return nil
	}

	s := &domain.GameSession{
		SessionID:     st.Seed.Hex(),
		BetAmount:     decimal.Zero,
		MineCount:     int(st.MineCount),
		RevealedCount: int(st.RevealedCount),
		Active:        st.Active,
		CashedOut:     st.CashedOut,
	}
	if st.BetAmount != nil {
		s.BetAmount = decimal.NewFromBigInt(st.BetAmount, -domain.NativeDecimals)
	}

	for i, rt := range st.Revealed {
		t := domain.Tile{Index: i}
		if rt.IsRevealed {
			t.Revealed = true
			t.Mine = domain.MineSafe
			if rt.ActualValue {
				t.Mine = domain.MineHit
			}
		}
		s.Tiles[i] = t
	}

	s.Multiplier = odds.Multiplier(s.MineCount, s.SafeRevealed())
	if s.Busted() {
		s.Multiplier = 0
	}
	return s
}

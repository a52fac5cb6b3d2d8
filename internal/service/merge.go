package service

import (
	"github.com/ifeelsam/core-bet/internal/domain"
	"github.com/ifeelsam/core-bet/internal/game"
	"github.com/shopspring/decimal"
)

// MergeTiles накладывает оптимистичный патч на подтвержденную сессию.
// Открытая в снапшоте ячейка всегда берется из снапшота и снимает запись патча.
// Неподтвержденные ячейки показываются открытыми с неизвестным значением.
// Неактивная или отсутствующая сессия снимает все записи.
// Возвращает сетку и оставшийся патч.
func MergeTiles(session *domain.GameSession, patch domain.OptimisticPatch) ([domain.BoardSize]domain.TileView, domain.OptimisticPatch) {
	var tiles [domain.BoardSize]domain.TileView
	for i := range tiles {
		tiles[i].Index = i
	}

	if session == nil {
		return tiles, nil
	}

	for i, t := range session.Tiles {
		tiles[i].Revealed = t.Revealed
		tiles[i].Mine = t.Mine
	}

	if !session.Active {
		return tiles, nil
	}

	remaining := make(domain.OptimisticPatch, 0, len(patch))
	for _, e := range patch {
		switch e.Kind {
		case domain.PatchReveal:
			if e.Tile < 0 || e.Tile >= domain.BoardSize || session.Tiles[e.Tile].Revealed {
				continue
			}
			tiles[e.Tile].Revealed = true
			tiles[e.Tile].Mine = domain.MineUnknown
			tiles[e.Tile].Pending = true
		}
		remaining = append(remaining, e)
	}
	return tiles, remaining
}

// viewInput все, из чего собирается GameView
type viewInput struct {
	snap    domain.SyncSnapshot
	hasSnap bool
	phase   domain.Phase
	outcome domain.Outcome
	hidden  string // сессия, закрытая новой ставкой
	patch   domain.OptimisticPatch
	loading bool
	odds    game.Odds
}

// buildView собирает представление для UI. Флаги кнопок берутся только из фазы
func buildView(in viewInput) domain.GameView {
	v := domain.GameView{
		Phase:           in.phase,
		Outcome:         in.outcome,
		Loading:         in.loading,
		Resolving:       in.patch.HasCashOut(),
		BetAmount:       decimal.Zero,
		PotentialReturn: decimal.Zero,
		CanReveal:       in.phase == domain.PhaseActive,
		CanCashOut:      in.phase == domain.PhaseActive && !in.patch.HasCashOut(),
		CanBet:          in.phase != domain.PhaseActive,
	}
	if in.hasSnap {
		v.Source = in.snap.Source
		v.FetchedAt = in.snap.FetchedAt
	}

	session := in.snap.Data
	if !in.hasSnap || in.phase == domain.PhaseIdle || (session != nil && session.SessionID == in.hidden) {
		session = nil
	}

	v.Tiles, _ = MergeTiles(session, in.patch)
	if session == nil {
		return v
	}

	safe := session.SafeRevealed()
	v.SessionID = session.SessionID
	v.BetAmount = session.BetAmount
	v.MineCount = session.MineCount
	v.RevealedCount = session.RevealedCount
	v.Multiplier = session.Multiplier
	if session.Active {
		v.NextMultiplier = in.odds.NextMultiplier(session.MineCount, safe)
		v.PotentialReturn = in.odds.PotentialReturn(session.BetAmount, session.MineCount, safe)
	} else if session.CashedOut {
		v.PotentialReturn = in.odds.PotentialReturn(session.BetAmount, session.MineCount, safe)
	}
	return v
}

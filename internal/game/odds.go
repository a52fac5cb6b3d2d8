package game

import (
	"math"
	"math/big"
	"strconv"

	"github.com/ifeelsam/core-bet/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	DefaultTotalTiles = domain.BoardSize
	DefaultHouseEdge  = 0.99

	// линейная оценка для формы ставки, до первого хода
	displayStep = 0.03
)

// Odds параметры расчета выплат, должны совпадать с контрактом
type Odds struct {
	TotalTiles int
	HouseEdge  float64
}

func DefaultOdds() Odds {
	return Odds{TotalTiles: DefaultTotalTiles, HouseEdge: DefaultHouseEdge}
}

// NewOdds поле 5x5 с заданным house edge
func NewOdds(houseEdge float64) Odds {
	return Odds{TotalTiles: DefaultTotalTiles, HouseEdge: houseEdge}
}

// ComputeMultiplier множитель выплаты после safeRevealed безопасных открытий.
// Произведение (total-i)/(safe-i) по каждому открытию, умноженное на house edge.
// Считается в рациональных числах, округление только при переводе в float64.
func ComputeMultiplier(mineCount, safeRevealed, totalTiles int, houseEdge float64) float64 {
	if mineCount == 0 {
		return 1
	}
	if mineCount < 0 || mineCount >= totalTiles {
		return 0
	}
	f, _ := multiplierRat(mineCount, safeRevealed, totalTiles, houseEdge).Float64()
	return f
}

// EstimateDisplayMultiplier грубая оценка 1 + 0.03*(mines-1) для формы ставки.
// Не используется для расчета выплат.
func EstimateDisplayMultiplier(mineCount int) float64 {
	if mineCount <= 1 {
		return 1
	}
	return 1 + displayStep*float64(mineCount-1)
}

// ValidateMineCount отсекает количество мин, которое контракт не примет
func ValidateMineCount(mineCount, totalTiles int) error {
	if mineCount < domain.MinMines || mineCount > domain.MaxMines || mineCount >= totalTiles {
		return domain.Validation(domain.ErrInvalidMineCount)
	}
	return nil
}

func (o Odds) Multiplier(mineCount, safeRevealed int) float64 {
	return ComputeMultiplier(mineCount, safeRevealed, o.TotalTiles, o.HouseEdge)
}

// NextMultiplier множитель, если следующая ячейка окажется безопасной
func (o Odds) NextMultiplier(mineCount, safeRevealed int) float64 {
	safe := o.TotalTiles - mineCount
	if safeRevealed >= safe {
		return o.Multiplier(mineCount, safe)
	}
	return o.Multiplier(mineCount, safeRevealed+1)
}

// Table множители для 1..safe открытий
func (o Odds) Table(mineCount int) []float64 {
	safe := o.TotalTiles - mineCount
	if mineCount <= 0 || safe <= 0 {
		return nil
	}
	table := make([]float64, safe)
	for reveals := 1; reveals <= safe; reveals++ {
		table[reveals-1] = o.Multiplier(mineCount, reveals)
	}
	return table
}

// PotentialReturn ставка * множитель, с точностью до wei (как платит контракт)
func (o Odds) PotentialReturn(bet decimal.Decimal, mineCount, safeRevealed int) decimal.Decimal {
	betWei := bet.Shift(domain.NativeDecimals).BigInt()
	return decimal.NewFromBigInt(o.PayoutWei(betWei, mineCount, safeRevealed), -domain.NativeDecimals)
}

// PayoutWei выплата в wei, целочисленное деление с отбрасыванием остатка
func (o Odds) PayoutWei(betWei *big.Int, mineCount, safeRevealed int) *big.Int {
	if betWei == nil {
		return new(big.Int)
	}
	if mineCount == 0 {
		return new(big.Int).Set(betWei)
	}
	if mineCount < 0 || mineCount >= o.TotalTiles {
		return new(big.Int)
	}
	r := multiplierRat(mineCount, safeRevealed, o.TotalTiles, o.HouseEdge)
	out := new(big.Int).Mul(betWei, r.Num())
	return out.Quo(out, r.Denom())
}

// DisplayMultiplier округление вниз до сотых, как показывает UI
func DisplayMultiplier(m float64) float64 {
	return math.Floor(m*100+1e-9) / 100
}

// MultiplierTable таблица множителей с параметрами по умолчанию
func MultiplierTable(minesCount int) []float64 {
	return DefaultOdds().Table(minesCount)
}

func multiplierRat(mineCount, safeRevealed, totalTiles int, houseEdge float64) *big.Rat {
	safe := totalTiles - mineCount
	if safeRevealed < 0 {
		safeRevealed = 0
	}
	if safeRevealed > safe {
		safeRevealed = safe
	}

	num := big.NewInt(1)
	den := big.NewInt(1)
	for i := 0; i < safeRevealed; i++ {
		num.Mul(num, big.NewInt(int64(totalTiles-i)))
		den.Mul(den, big.NewInt(int64(safe-i)))
	}

	r := new(big.Rat).SetFrac(num, den)
	return r.Mul(r, edgeRat(houseEdge))
}

// edgeRat 0.99 -> 99/100 ровно, без двоичного хвоста float64
func edgeRat(houseEdge float64) *big.Rat {
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(houseEdge, 'f', -1, 64))
	if !ok {
		return new(big.Rat).SetFloat64(houseEdge)
	}
	return r
}

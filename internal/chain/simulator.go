package chain

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/ifeelsam/core-bet/internal/domain"
	"github.com/ifeelsam/core-bet/internal/game"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

// LayoutFunc расставляет мины для новой игры
type LayoutFunc func(seed common.Hash, mineCount int) []int

// Simulator контракт Mines в памяти процесса: кошелек, запись и чтение.
// Записи становятся видны чтению через confirmDelay, как после подтверждения блока.
type Simulator struct {
	mu           sync.Mutex
	clock        clockwork.Clock
	odds         game.Odds
	chainID      int64
	player       common.Address
	balance      *big.Int
	serverSeed   []byte
	nonce        uint64
	confirmDelay time.Duration
	layout       LayoutFunc

	current  domain.GameStatus
	mines    [domain.BoardSize]bool
	versions []simVersion

	readErr  error
	failNext map[domain.TxKind]error
	reads    int
	txCount  uint64
	submits  map[domain.TxKind]int
}

type simVersion struct {
	visibleAt time.Time
	status    domain.GameStatus
}

type SimOption func(*Simulator)

func WithClock(c clockwork.Clock) SimOption {
	return func(s *Simulator) { s.clock = c }
}

func WithBalance(amount decimal.Decimal) SimOption {
	return func(s *Simulator) { s.balance = ToWei(amount) }
}

func WithConfirmDelay(d time.Duration) SimOption {
	return func(s *Simulator) { s.confirmDelay = d }
}

func WithLayout(f LayoutFunc) SimOption {
	return func(s *Simulator) { s.layout = f }
}

func WithOdds(o game.Odds) SimOption {
	return func(s *Simulator) { s.odds = o }
}

func WithPlayer(addr common.Address) SimOption {
	return func(s *Simulator) { s.player = addr }
}

// NewSimulator кошелек с балансом 100 tCORE2, подтверждение мгновенное
func NewSimulator(opts ...SimOption) *Simulator {
	seed := uuid.New()
	s := &Simulator{
		clock:      clockwork.NewRealClock(),
		odds:       game.DefaultOdds(),
		chainID:    ChainIDCoreTestnet2,
		player:     common.BytesToAddress(crypto.Keccak256(seed[:])[12:]),
		balance:    ToWei(decimal.NewFromInt(100)),
		serverSeed: seed[:],
		failNext:   make(map[domain.TxKind]error),
		submits:    make(map[domain.TxKind]int),
	}
	s.current.BetAmount = new(big.Int)
	for _, opt := range opts {
		opt(s)
	}
	if s.layout == nil {
		s.layout = s.hmacLayout
	}
	return s
}

// Address адрес игрока симулятора
func (s *Simulator) Address() common.Address {
	return s.player
}

// SetReadError все следующие чтения вернут err (nil снимает)
func (s *Simulator) SetReadError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// FailNext следующая транзакция kind будет отклонена с err
func (s *Simulator) FailNext(kind domain.TxKind, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[kind] = err
}

// Reads сколько раз читали статус
func (s *Simulator) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Submits сколько транзакций kind принято
func (s *Simulator) Submits(kind domain.TxKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submits[kind]
}

// MinePositions позиции мин текущей игры
func (s *Simulator) MinePositions() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for i, m := range s.mines {
		if m {
			out = append(out, i)
		}
	}
	return out
}

func (s *Simulator) GetWallet(ctx context.Context) (domain.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return domain.Wallet{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Wallet{
		Address:     s.player,
		Balance:     FromWei(s.balance),
		IsConnected: true,
		ChainID:     s.chainID,
	}, nil
}

// ReadGameStatus последняя подтвержденная версия статуса
func (s *Simulator) ReadGameStatus(ctx context.Context, player common.Address) (*domain.GameStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads++
	if s.readErr != nil {
		return nil, s.readErr
	}
	if player != s.player {
		return &domain.GameStatus{BetAmount: new(big.Int)}, nil
	}

	now := s.clock.Now()
	out := domain.GameStatus{BetAmount: new(big.Int)}
	last := -1
	for i, v := range s.versions {
		if v.visibleAt.After(now) {
			break
		}
		out = v.status
		last = i
	}
	if last > 0 {
		s.versions = s.versions[last:]
	}
	out.BetAmount = new(big.Int).Set(out.BetAmount)
	return &out, nil
}

func (s *Simulator) SubmitBet(ctx context.Context, amount decimal.Decimal, mineCount int) (domain.TxResult, error) {
	return s.submit(ctx, domain.TxBet, func() error {
		wei := ToWei(amount)
		switch {
		case s.current.Active:
			return errors.New("game already active")
		case mineCount < domain.MinMines || mineCount > domain.MaxMines:
			return errors.New("invalid mine count")
		case wei.Sign() <= 0:
			return errors.New("bet must be positive")
		case wei.Cmp(s.balance) > 0:
			return errors.New("insufficient funds")
		}

		s.balance.Sub(s.balance, wei)
		s.nonce++
		seed := s.nextSeed()

		s.current = domain.GameStatus{
			BetAmount: wei,
			MineCount: uint8(mineCount),
			Seed:      seed,
			Active:    true,
		}
		s.mines = [domain.BoardSize]bool{}
		for _, pos := range s.layout(seed, mineCount) {
			s.mines[pos] = true
		}
		return nil
	})
}

func (s *Simulator) SubmitReveal(ctx context.Context, tile int) (domain.TxResult, error) {
	return s.submit(ctx, domain.TxReveal, func() error {
		switch {
		case !s.current.Active:
			return errors.New("no active game")
		case tile < 0 || tile >= domain.BoardSize:
			return errors.New("invalid tile")
		case s.current.Revealed[tile].IsRevealed:
			return errors.New("tile already revealed")
		}

		s.current.Revealed[tile] = domain.TileStatus{ActualValue: s.mines[tile], IsRevealed: true}
		s.current.RevealedCount++

		if s.mines[tile] {
			s.current.Active = false
			return nil
		}
		if int(s.current.RevealedCount) == domain.BoardSize-int(s.current.MineCount) {
			s.settle()
		}
		return nil
	})
}

func (s *Simulator) SubmitCashOut(ctx context.Context) (domain.TxResult, error) {
	return s.submit(ctx, domain.TxCashOut, func() error {
		if !s.current.Active {
			return errors.New("no active game")
		}
		s.settle()
		return nil
	})
}

// settle выплата по формуле контракта
func (s *Simulator) settle() {
	safe := 0
	for _, t := range s.current.Revealed {
		if t.IsRevealed && !t.ActualValue {
			safe++
		}
	}
	payout := s.odds.PayoutWei(s.current.BetAmount, int(s.current.MineCount), safe)
	s.balance.Add(s.balance, payout)
	s.current.Active = false
	s.current.CashedOut = true
}

func (s *Simulator) submit(ctx context.Context, kind domain.TxKind, apply func() error) (domain.TxResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.TxResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.failNext[kind]; ok {
		delete(s.failNext, kind)
		return domain.TxResult{}, err
	}
	if err := apply(); err != nil {
		return domain.TxResult{}, fmt.Errorf("%w: %v", ErrTxReverted, err)
	}

	s.submits[kind]++
	s.txCount++
	now := s.clock.Now()
	snapshot := s.current
	snapshot.BetAmount = new(big.Int).Set(s.current.BetAmount)
	s.versions = append(s.versions, simVersion{visibleAt: now.Add(s.confirmDelay), status: snapshot})

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], s.txCount)
	hash := crypto.Keccak256Hash(s.serverSeed, []byte(kind), buf[:])

	return domain.TxResult{Hash: hash.Hex(), Kind: kind, SubmittedAt: now}, nil
}

func (s *Simulator) nextSeed() common.Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], s.nonce)
	return crypto.Keccak256Hash(s.serverSeed, s.player.Bytes(), buf[:])
}

// hmacLayout позиции мин из HMAC-SHA256(serverSeed, seed), коллизии сдвигаются вперед
func (s *Simulator) hmacLayout(seed common.Hash, mineCount int) []int {
	var used [domain.BoardSize]bool
	positions := make([]int, 0, mineCount)

	var digest []byte
	for round := 0; len(positions) < mineCount; round++ {
		if round%sha256.Size == 0 {
			h := hmac.New(sha256.New, s.serverSeed)
			fmt.Fprintf(h, "mines:%s:%d", seed.Hex(), round/sha256.Size)
			digest = h.Sum(nil)
		}
		pos := int(digest[round%sha256.Size]) % domain.BoardSize
		for used[pos] {
			pos = (pos + 1) % domain.BoardSize
		}
		used[pos] = true
		positions = append(positions, pos)
	}
	return positions
}

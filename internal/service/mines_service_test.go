package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ifeelsam/core-bet/internal/chain"
	"github.com/ifeelsam/core-bet/internal/domain"
	"github.com/ifeelsam/core-bet/internal/game"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

// мины всегда в первых ячейках
func firstTilesLayout(seed common.Hash, mineCount int) []int {
	out := make([]int, mineCount)
	for i := range out {
		out[i] = i
	}
	return out
}

type testEnv struct {
	svc   *MinesService
	sim   *chain.Simulator
	clock *clockwork.FakeClock
	ctx   context.Context
}

func newTestEnv(t *testing.T, tx Transactor) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClock()
	sim := chain.NewSimulator(chain.WithClock(clock), chain.WithLayout(firstTilesLayout))
	if tx == nil {
		tx = sim
	}

	opts := DefaultOptions()
	opts.Clock = clock
	opts.Sync.MinLoading = 0
	svc := NewMinesService(sim, tx, sim, NewAuditService(clock), opts)
	t.Cleanup(svc.Close)

	env := &testEnv{svc: svc, sim: sim, clock: clock, ctx: context.Background()}
	if _, err := svc.Bind(env.ctx); err != nil {
		t.Fatalf("bind: %v", err)
	}
	return env
}

// startRound ставка и подтверждение раунда
func (e *testEnv) startRound(t *testing.T, amount string, mines int) {
	t.Helper()
	if _, err := e.svc.HandleBet(e.ctx, domain.BetRequest{Amount: amount, MineCount: mines}); err != nil {
		t.Fatalf("bet: %v", err)
	}
	if _, err := e.svc.Refresh(e.ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !e.svc.IsActive() {
		t.Fatal("раунд должен быть активен")
	}
}

func (e *testEnv) view(t *testing.T) domain.GameView {
	t.Helper()
	v, err := e.svc.View()
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	return v
}

func hasNotice(notices []domain.Notice, action string) bool {
	for _, n := range notices {
		if n.Action == action {
			return true
		}
	}
	return false
}

// lostTx принимает открытия, но до контракта они не доходят
type lostTx struct {
	*chain.Simulator
}

func (l lostTx) SubmitReveal(ctx context.Context, tile int) (domain.TxResult, error) {
	return domain.TxResult{Hash: "0xlost", Kind: domain.TxReveal}, nil
}

func TestBindStartsIdle(t *testing.T) {
	env := newTestEnv(t, nil)
	v := env.view(t)
	if v.Phase != domain.PhaseIdle || !v.CanBet || v.CanReveal || v.CanCashOut {
		t.Errorf("view = %+v", v)
	}
	if env.svc.Polling() {
		t.Error("без раунда опроса нет")
	}
}

func TestRevealWhileIdleMakesNoRemoteCall(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.svc.HandleTileClick(env.ctx, 3)
	if !errors.Is(err, domain.ErrValidation) || !errors.Is(err, domain.ErrGameNotActive) {
		t.Fatalf("err = %v, want validation/game not active", err)
	}
	if env.sim.Submits(domain.TxReveal) != 0 {
		t.Error("транзакция не должна отправляться")
	}
	if _, err := env.svc.HandleCashOut(env.ctx); !errors.Is(err, domain.ErrGameNotActive) {
		t.Errorf("cashout err = %v", err)
	}
}

func TestBetValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	cases := []struct {
		name string
		req  domain.BetRequest
		want error
	}{
		{"not a number", domain.BetRequest{Amount: "abc", MineCount: 3}, domain.ErrInvalidAmount},
		{"zero", domain.BetRequest{Amount: "0", MineCount: 3}, domain.ErrInvalidAmount},
		{"over balance", domain.BetRequest{Amount: "1000", MineCount: 3}, domain.ErrInsufficientBalance},
		{"no mines", domain.BetRequest{Amount: "1", MineCount: 0}, domain.ErrInvalidMineCount},
		{"too many mines", domain.BetRequest{Amount: "1", MineCount: 25}, domain.ErrInvalidMineCount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.HandleBet(env.ctx, tc.req)
			if !errors.Is(err, domain.ErrValidation) || !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if env.sim.Submits(domain.TxBet) != 0 {
		t.Error("неверные ставки не отправляются")
	}
}

func TestFullRoundWithCashOut(t *testing.T) {
	env := newTestEnv(t, nil)

	q, err := env.svc.Quote("2", 5, 0)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Estimate < 1.1199 || q.Estimate > 1.1201 {
		t.Errorf("estimate = %v, want 1.12", q.Estimate)
	}

	if _, err := env.svc.HandleBet(env.ctx, domain.BetRequest{Amount: "2", MineCount: 5}); err != nil {
		t.Fatalf("bet: %v", err)
	}

	// подтверждение приходит через settle delay
	env.clock.Advance(2 * time.Second)
	waitFor(t, env.svc.IsActive, "раунд активен")
	waitFor(t, env.svc.Polling, "опрос запущен")

	for _, tile := range []int{10, 11, 12} {
		if _, err := env.svc.HandleTileClick(env.ctx, tile); err != nil {
			t.Fatalf("reveal %d: %v", tile, err)
		}
		pending := env.view(t).Tiles[tile]
		if !pending.Revealed || !pending.Pending || pending.Mine != domain.MineUnknown {
			t.Errorf("до подтверждения tile %d = %+v", tile, pending)
		}

		v, err := env.svc.Refresh(env.ctx)
		if err != nil {
			t.Fatalf("refresh: %v", err)
		}
		got := v.Tiles[tile]
		if !got.Revealed || got.Pending || got.Mine != domain.MineSafe {
			t.Errorf("после подтверждения tile %d = %+v", tile, got)
		}
	}

	v := env.view(t)
	want := game.ComputeMultiplier(5, 3, 25, 0.99)
	if v.Multiplier != want {
		t.Errorf("multiplier = %v, want %v", v.Multiplier, want)
	}
	if v.RevealedCount != 3 {
		t.Errorf("revealed = %d", v.RevealedCount)
	}

	if _, err := env.svc.HandleCashOut(env.ctx); err != nil {
		t.Fatalf("cashout: %v", err)
	}
	if v := env.view(t); !v.Resolving || v.CanCashOut {
		t.Errorf("до подтверждения вывода: resolving=%v can_cash_out=%v", v.Resolving, v.CanCashOut)
	}
	if _, err := env.svc.HandleCashOut(env.ctx); !errors.Is(err, domain.ErrCashOutPending) {
		t.Errorf("повторный вывод: err = %v", err)
	}

	v, err = env.svc.Refresh(env.ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if v.Phase != domain.PhaseResolved || v.Outcome != domain.OutcomeCashedOut || v.Resolving {
		t.Errorf("после вывода: phase=%s outcome=%s resolving=%v", v.Phase, v.Outcome, v.Resolving)
	}

	w, _ := env.svc.Wallet(env.ctx)
	payout := game.DefaultOdds().PotentialReturn(decimal.NewFromInt(2), 5, 3)
	if !w.Balance.Equal(decimal.NewFromInt(98).Add(payout)) {
		t.Errorf("balance = %s, want 98 + %s", w.Balance, payout)
	}
	if !hasNotice(env.svc.Notices(0), domain.NoticeActionCashedOut) {
		t.Error("нет уведомления о выводе")
	}
}

func TestRevealRollbackOnSubmissionFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.startRound(t, "1", 3)

	var views atomic.Int32
	unsub := env.svc.Subscribe(func(domain.GameView) { views.Add(1) })
	defer unsub()

	env.sim.FailNext(domain.TxReveal, errors.New("user rejected"))
	_, err := env.svc.HandleTileClick(env.ctx, 7)
	if !errors.Is(err, domain.ErrSubmission) {
		t.Fatalf("err = %v, want ErrSubmission", err)
	}

	tile := env.view(t).Tiles[7]
	if tile.Revealed || tile.Pending {
		t.Errorf("после отката tile = %+v", tile)
	}
	if views.Load() < 2 {
		t.Errorf("ожидали публикацию применения и отката, got %d", views.Load())
	}
	if !hasNotice(env.svc.Notices(0), domain.NoticeActionTxFailed) {
		t.Error("нет уведомления об ошибке транзакции")
	}

	// после отката ячейку можно открыть снова
	if _, err := env.svc.HandleTileClick(env.ctx, 7); err != nil {
		t.Errorf("повторное открытие: %v", err)
	}
}

func TestBustBlocksFurtherActions(t *testing.T) {
	env := newTestEnv(t, nil)
	env.startRound(t, "1", 3)

	if _, err := env.svc.HandleTileClick(env.ctx, 0); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	v, err := env.svc.Refresh(env.ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if v.Phase != domain.PhaseResolved || v.Outcome != domain.OutcomeBusted {
		t.Fatalf("phase=%s outcome=%s, want resolved/busted", v.Phase, v.Outcome)
	}
	if v.Multiplier != 0 || v.CanReveal || v.CanCashOut || !v.CanBet {
		t.Errorf("view после мины = %+v", v)
	}
	if v.Tiles[0].Mine != domain.MineHit {
		t.Error("мина должна быть показана")
	}

	if _, err := env.svc.HandleTileClick(env.ctx, 5); !errors.Is(err, domain.ErrGameNotActive) {
		t.Errorf("reveal после мины: err = %v", err)
	}
	if _, err := env.svc.HandleCashOut(env.ctx); !errors.Is(err, domain.ErrGameNotActive) {
		t.Errorf("cashout после мины: err = %v", err)
	}
	if env.sim.Submits(domain.TxReveal) != 1 || env.sim.Submits(domain.TxCashOut) != 0 {
		t.Error("после мины транзакции не отправляются")
	}
}

func TestRevealAlreadyRevealedTile(t *testing.T) {
	env := newTestEnv(t, nil)
	env.startRound(t, "1", 3)

	env.svc.HandleTileClick(env.ctx, 9)
	env.svc.Refresh(env.ctx)

	if _, err := env.svc.HandleTileClick(env.ctx, 9); !errors.Is(err, domain.ErrTileRevealed) {
		t.Errorf("err = %v, want ErrTileRevealed", err)
	}
	if _, err := env.svc.HandleTileClick(env.ctx, 25); !errors.Is(err, domain.ErrInvalidTile) {
		t.Errorf("err = %v, want ErrInvalidTile", err)
	}
}

func TestBetWhileRemoteActiveIsConsistencyError(t *testing.T) {
	env := newTestEnv(t, nil)

	if _, err := env.svc.HandleBet(env.ctx, domain.BetRequest{Amount: "1", MineCount: 3}); err != nil {
		t.Fatalf("bet: %v", err)
	}
	// локально раунд еще не подтвержден, контракт уже знает о нем
	if env.svc.IsActive() {
		t.Fatal("до чтения машина не должна быть активна")
	}

	_, err := env.svc.HandleBet(env.ctx, domain.BetRequest{Amount: "1", MineCount: 3})
	if !errors.Is(err, domain.ErrConsistency) || !errors.Is(err, domain.ErrGameAlreadyActive) {
		t.Fatalf("err = %v, want consistency/already active", err)
	}
	if !env.svc.IsActive() {
		t.Error("после сверки машина должна стать активной")
	}
	if env.sim.Submits(domain.TxBet) != 1 {
		t.Errorf("bets = %d, want 1", env.sim.Submits(domain.TxBet))
	}
	if !hasNotice(env.svc.Notices(0), domain.NoticeActionAlreadyActive) {
		t.Error("нет уведомления о расхождении")
	}
	// переход прошел через обычную обработку снапшота
	if !env.svc.Polling() {
		t.Error("активный раунд должен опрашиваться")
	}
	if !hasNotice(env.svc.Notices(0), domain.NoticeActionRoundStart) {
		t.Error("нет уведомления о начале раунда")
	}
}

func TestNewBetHidesResolvedRound(t *testing.T) {
	env := newTestEnv(t, nil)
	env.startRound(t, "1", 3)
	env.svc.HandleTileClick(env.ctx, 0)
	env.svc.Refresh(env.ctx)

	if _, err := env.svc.HandleBet(env.ctx, domain.BetRequest{Amount: "1", MineCount: 2}); err != nil {
		t.Fatalf("bet: %v", err)
	}
	v, err := env.svc.Refresh(env.ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if v.Phase != domain.PhaseActive || v.MineCount != 2 || v.RevealedCount != 0 {
		t.Errorf("новый раунд: phase=%s mines=%d revealed=%d", v.Phase, v.MineCount, v.RevealedCount)
	}
	if v.Tiles[0].Revealed {
		t.Error("поле прошлого раунда не должно быть видно")
	}
}

func TestSettleGivesUpOnLostTransaction(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sim := chain.NewSimulator(chain.WithClock(clock), chain.WithLayout(firstTilesLayout))
	opts := DefaultOptions()
	opts.Clock = clock
	opts.Sync.MinLoading = 0
	svc := NewMinesService(sim, lostTx{sim}, sim, NewAuditService(clock), opts)
	defer svc.Close()
	ctx := context.Background()

	if _, err := svc.Bind(ctx); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if _, err := svc.HandleBet(ctx, domain.BetRequest{Amount: "1", MineCount: 3}); err != nil {
		t.Fatalf("bet: %v", err)
	}
	svc.Refresh(ctx)

	if _, err := svc.HandleTileClick(ctx, 10); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if _, err := svc.HandleTileClick(ctx, 10); !errors.Is(err, domain.ErrTilePending) {
		t.Errorf("повторный клик: err = %v, want ErrTilePending", err)
	}

	waitFor(t, func() bool {
		clock.Advance(time.Second)
		v, _ := svc.View()
		return !v.Tiles[10].Pending
	}, "отказ от неподтвержденного открытия")

	v, _ := svc.View()
	if v.Tiles[10].Revealed {
		t.Error("после отказа показывается состояние контракта")
	}
	if !hasNotice(svc.Notices(0), domain.NoticeActionSettleGiveUp) {
		t.Error("нет уведомления об отказе")
	}
}

func TestPollingStopsAfterResolution(t *testing.T) {
	env := newTestEnv(t, nil)
	env.startRound(t, "1", 3)
	if !env.svc.Polling() {
		t.Fatal("опрос должен идти во время раунда")
	}

	env.svc.HandleCashOut(env.ctx)
	env.svc.Refresh(env.ctx)

	waitFor(t, func() bool {
		env.clock.Advance(time.Second)
		return !env.svc.Polling()
	}, "остановка опроса")

	// отложенные сверки успевают отработать
	for i := 0; i < 20; i++ {
		env.clock.Advance(time.Second)
	}
	time.Sleep(30 * time.Millisecond)
	reads := env.sim.Reads()
	env.clock.Advance(time.Minute)
	time.Sleep(30 * time.Millisecond)
	if env.sim.Reads() != reads {
		t.Errorf("после завершения раунда контракт читается: %d -> %d", reads, env.sim.Reads())
	}
}

func TestUnbindReleasesBinding(t *testing.T) {
	env := newTestEnv(t, nil)
	env.startRound(t, "1", 3)

	env.svc.Unbind()
	if env.svc.Polling() || env.svc.IsActive() {
		t.Error("после отвязки ничего не работает")
	}
	if _, err := env.svc.View(); !errors.Is(err, domain.ErrNotBound) {
		t.Errorf("err = %v, want ErrNotBound", err)
	}
	if _, err := env.svc.HandleTileClick(env.ctx, 1); !errors.Is(err, domain.ErrNotBound) {
		t.Errorf("err = %v, want ErrNotBound", err)
	}
}

func TestSummary(t *testing.T) {
	env := newTestEnv(t, nil)
	sum, err := env.svc.Summary(env.ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !sum.Wallet.IsConnected || !sum.Wallet.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("wallet = %+v", sum.Wallet)
	}
	if sum.View.Phase != domain.PhaseIdle {
		t.Errorf("phase = %s", sum.View.Phase)
	}
}

func TestQuoteAndInfo(t *testing.T) {
	env := newTestEnv(t, nil)

	q, err := env.svc.Quote("1", 3, 0)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Multiplier != 0.99 || !q.PotentialReturn.Equal(decimal.RequireFromString("0.99")) {
		t.Errorf("quote = %+v", q)
	}
	if _, err := env.svc.Quote("1", 3, 23); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("слишком много открытий: err = %v", err)
	}
	if _, err := env.svc.Quote("x", 3, 0); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("err = %v", err)
	}

	info := env.svc.Info()
	if info.BoardSize != 25 || info.MinMines != 1 || info.MaxMines != 24 {
		t.Errorf("info = %+v", info)
	}
	if len(info.Tables[24]) != 1 || len(info.Tables[1]) != 24 {
		t.Errorf("tables: %d %d", len(info.Tables[24]), len(info.Tables[1]))
	}
}

func TestConfirmedRevealStaysConfirmed(t *testing.T) {
	env := newTestEnv(t, nil)
	env.startRound(t, "1", 3)

	var (
		mu    sync.Mutex
		views []domain.GameView
	)
	unsub := env.svc.Subscribe(func(v domain.GameView) {
		mu.Lock()
		views = append(views, v)
		mu.Unlock()
	})
	defer unsub()

	if _, err := env.svc.HandleTileClick(env.ctx, 10); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	env.svc.Refresh(env.ctx)
	if _, err := env.svc.HandleTileClick(env.ctx, 11); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	env.svc.Refresh(env.ctx)
	env.svc.Refresh(env.ctx)

	mu.Lock()
	defer mu.Unlock()

	confirmed := -1
	sawPending := false
	for i, v := range views {
		tile := v.Tiles[10]
		if tile.Pending {
			sawPending = true
		}
		if tile.Revealed && !tile.Pending && tile.Mine == domain.MineSafe {
			confirmed = i
			break
		}
	}
	if !sawPending || confirmed < 0 {
		t.Fatalf("ожидали pending, затем подтверждение: pending=%v confirmed=%d", sawPending, confirmed)
	}
	for i, v := range views[confirmed:] {
		tile := v.Tiles[10]
		if !tile.Revealed || tile.Pending || tile.Mine != domain.MineSafe {
			t.Errorf("представление %d после подтверждения: tile = %+v", confirmed+i, tile)
		}
	}
}

func TestLateSnapshotDoesNotReviveResolvedRound(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sim := chain.NewSimulator(chain.WithClock(clock))
	reader := &stubReader{status: activeStatus(3)}
	opts := DefaultOptions()
	opts.Clock = clock
	opts.Sync.MinLoading = 0
	svc := NewMinesService(reader, sim, sim, NewAuditService(clock), opts)
	defer svc.Close()
	ctx := context.Background()

	if _, err := svc.Bind(ctx); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if !svc.IsActive() {
		t.Fatal("раунд должен быть активен")
	}
	b, err := svc.bound()
	if err != nil {
		t.Fatal(err)
	}
	first, _ := b.sync.Snapshot()

	busted := activeStatus(3, 7)
	busted.Revealed[2] = domain.TileStatus{ActualValue: true, IsRevealed: true}
	busted.RevealedCount++
	busted.Active = false
	reader.set(busted, nil)
	if v, err := svc.Refresh(ctx); err != nil || v.Outcome != domain.OutcomeBusted {
		t.Fatalf("refresh: %+v %v", v, err)
	}

	// уведомление о первом чтении (ячейка 7 еще не мина) доходит последним
	late := domain.SyncSnapshot{
		Data:      game.SessionFromStatus(activeStatus(3, 7), opts.Odds),
		FetchedAt: first.FetchedAt,
		Source:    domain.SourceRemote,
		Seq:       first.Seq,
	}
	svc.onSnapshot(b, late)

	// тот же номер чтения, что у последнего снапшота: отсекает машина
	cur, _ := b.sync.Snapshot()
	late.Seq = cur.Seq
	svc.onSnapshot(b, late)

	// следующее чтение не меняет данных и никого не уведомляет
	svc.Refresh(ctx)

	v, _ := svc.View()
	if v.Phase != domain.PhaseResolved || v.Outcome != domain.OutcomeBusted || v.CanReveal {
		t.Fatalf("phase=%s outcome=%s canReveal=%v, ожидали resolved/busted", v.Phase, v.Outcome, v.CanReveal)
	}
	if _, err := svc.HandleTileClick(ctx, 12); !errors.Is(err, domain.ErrGameNotActive) {
		t.Errorf("ход в закрытом раунде: err = %v", err)
	}
	waitFor(t, func() bool {
		clock.Advance(time.Second)
		return !svc.Polling()
	}, "остановка опроса")
}

func TestBetDropsSharedCacheEntry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sim := chain.NewSimulator(chain.WithClock(clock), chain.WithLayout(firstTilesLayout))
	opts := DefaultOptions()
	opts.Clock = clock
	opts.Sync.MinLoading = 0
	svc := NewMinesService(sim, sim, sim, NewAuditService(clock), opts)
	defer svc.Close()
	cache := newMemCache()
	svc.SetCache(cache)
	ctx := context.Background()

	if _, err := svc.Bind(ctx); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if !cache.has(sim.Address()) {
		t.Fatal("после чтения снапшот должен быть в кэше")
	}

	if _, err := svc.HandleBet(ctx, domain.BetRequest{Amount: "1", MineCount: 3}); err != nil {
		t.Fatalf("bet: %v", err)
	}
	if cache.has(sim.Address()) {
		t.Error("снапшот до ставки остался в общем кэше")
	}
}

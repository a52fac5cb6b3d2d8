package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ifeelsam/core-bet/internal/domain"
	"github.com/ifeelsam/core-bet/internal/game"
	"github.com/ifeelsam/core-bet/internal/logger"
	"github.com/jonboulle/clockwork"
)

var (
	errStateUnavailable = errors.New("состояние контракта недоступно")
	errBetInFlight      = errors.New("ставка уже отправляется")
)

// settleJob ожидаемый эффект отправленной транзакции
type settleJob struct {
	kind      domain.TxKind
	tile      int
	sessionID string // для ставки: сессия до ставки
}

// Reconciler применяет действия игрока оптимистично и сверяет их с контрактом.
// Патч живет только до подтверждения: подтвержденные данные всегда важнее.
type Reconciler struct {
	sync    *Synchronizer
	machine *game.Machine
	tx      Transactor
	wallets WalletProvider
	audit   *AuditService
	odds    game.Odds
	clock   clockwork.Clock
	log     *slog.Logger

	settleDelay time.Duration
	retries     int

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	patch    domain.OptimisticPatch
	betting  bool
	timers   map[int]clockwork.Timer
	nextID   int
	onChange []func()
	closed   bool
}

func NewReconciler(s *Synchronizer, m *game.Machine, tx Transactor, wallets WalletProvider, audit *AuditService, odds game.Odds, clock clockwork.Clock, settleDelay time.Duration, retries int) *Reconciler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if retries < 0 {
		retries = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		sync:        s,
		machine:     m,
		tx:          tx,
		wallets:     wallets,
		audit:       audit,
		odds:        odds,
		clock:       clock,
		log:         logger.Component("reconciler"),
		settleDelay: settleDelay,
		retries:     retries,
		ctx:         ctx,
		cancel:      cancel,
		timers:      make(map[int]clockwork.Timer),
	}
}

// OnChange вызывается после изменения патча
func (r *Reconciler) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, fn)
}

// Patch копия текущего патча
func (r *Reconciler) Patch() domain.OptimisticPatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append(domain.OptimisticPatch(nil), r.patch...)
}

// Reveal открывает ячейку: сразу в UI, затем транзакцией
func (r *Reconciler) Reveal(ctx context.Context, tile int) (domain.TxResult, error) {
	if tile < 0 || tile >= domain.BoardSize {
		return domain.TxResult{}, domain.Validation(domain.ErrInvalidTile)
	}
	if !r.machine.CanReveal() {
		return domain.TxResult{}, domain.Validation(domain.ErrGameNotActive)
	}

	snap, ok := r.sync.Snapshot()
	if ok && snap.Data != nil && snap.Data.Tiles[tile].Revealed {
		return domain.TxResult{}, domain.Validation(domain.ErrTileRevealed)
	}

	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return domain.TxResult{}, domain.Validation(domain.ErrNotBound)
	case r.patch.Has(tile):
		r.mu.Unlock()
		return domain.TxResult{}, domain.Validation(domain.ErrTilePending)
	case r.patch.HasCashOut():
		r.mu.Unlock()
		return domain.TxResult{}, domain.Validation(domain.ErrCashOutPending)
	}
	r.patch = append(r.patch, domain.PatchEntry{Kind: domain.PatchReveal, Tile: tile, AppliedAt: r.clock.Now()})
	subs := r.changeSubsLocked()
	r.mu.Unlock()
	fire(subs)

	sessionID := r.machine.SessionID()
	res, err := r.tx.SubmitReveal(ctx, tile)
	if err != nil {
		r.rollback(ctx, domain.TxReveal, tile, err)
		return domain.TxResult{}, domain.Submission(err)
	}
	txSubmissions.WithLabelValues(string(domain.TxReveal), "ok").Inc()
	r.log.Info("reconciler: ячейка отправлена", "tile", tile, "tx", res.Hash)

	r.scheduleSettle(settleJob{kind: domain.TxReveal, tile: tile, sessionID: sessionID}, 0)
	return res, nil
}

// CashOut забирает выигрыш. До подтверждения раунд показывается как завершающийся
func (r *Reconciler) CashOut(ctx context.Context) (domain.TxResult, error) {
	if !r.machine.CanCashOut() {
		return domain.TxResult{}, domain.Validation(domain.ErrGameNotActive)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return domain.TxResult{}, domain.Validation(domain.ErrNotBound)
	}
	if r.patch.HasCashOut() {
		r.mu.Unlock()
		return domain.TxResult{}, domain.Validation(domain.ErrCashOutPending)
	}
	r.patch = append(r.patch, domain.PatchEntry{Kind: domain.PatchCashOut, Tile: -1, AppliedAt: r.clock.Now()})
	subs := r.changeSubsLocked()
	r.mu.Unlock()
	fire(subs)

	sessionID := r.machine.SessionID()
	res, err := r.tx.SubmitCashOut(ctx)
	if err != nil {
		r.rollback(ctx, domain.TxCashOut, -1, err)
		return domain.TxResult{}, domain.Submission(err)
	}
	txSubmissions.WithLabelValues(string(domain.TxCashOut), "ok").Inc()
	r.log.Info("reconciler: вывод отправлен", "tx", res.Hash)

	r.scheduleSettle(settleJob{kind: domain.TxCashOut, tile: -1, sessionID: sessionID}, 0)
	return res, nil
}

// PlaceBet проверяет ставку, сверяется с контрактом и отправляет транзакцию.
// Новый раунд начинается локально только после успешной отправки.
func (r *Reconciler) PlaceBet(ctx context.Context, req domain.BetRequest) (domain.TxResult, error) {
	w, err := r.wallets.GetWallet(ctx)
	if err != nil {
		return domain.TxResult{}, domain.Read(err)
	}
	amount, err := req.Validate(w)
	if err != nil {
		return domain.TxResult{}, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return domain.TxResult{}, domain.Validation(domain.ErrNotBound)
	}
	if r.betting {
		r.mu.Unlock()
		return domain.TxResult{}, domain.Validation(errBetInFlight)
	}
	r.betting = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.betting = false
		r.mu.Unlock()
	}()

	snap, err := r.sync.Fetch(ctx, true)
	if err != nil {
		return domain.TxResult{}, err
	}
	if snap.Source == domain.SourceStaleError {
		return domain.TxResult{}, domain.Read(errStateUnavailable)
	}
	// машину двигает уведомление синхронизатора об этом же чтении
	if s := snap.Data; s != nil && s.Active && !s.Busted() {
		r.audit.LogConsistency(ctx, domain.NoticeActionAlreadyActive,
			"на контракте уже идет раунд, ставка не отправлена",
			map[string]interface{}{"session_id": s.SessionID})
		return domain.TxResult{}, domain.Consistency(domain.ErrGameAlreadyActive)
	}
	prevSession := ""
	if snap.Data != nil {
		prevSession = snap.Data.SessionID
	}

	res, err := r.tx.SubmitBet(ctx, amount, req.MineCount)
	if err != nil {
		txSubmissions.WithLabelValues(string(domain.TxBet), "error").Inc()
		r.audit.LogTxFailure(ctx, domain.TxBet, err)
		return domain.TxResult{}, domain.Submission(err)
	}
	txSubmissions.WithLabelValues(string(domain.TxBet), "ok").Inc()
	r.sync.Invalidate(ctx)

	// если снапшот уже увидел новый раунд, машина активна и сбрасывать нечего
	if _, err := r.machine.BeginRound(); err != nil && !errors.Is(err, domain.ErrGameAlreadyActive) {
		r.log.Warn("reconciler: не удалось начать раунд", "error", err)
	}

	r.mu.Lock()
	r.patch = nil
	subs := r.changeSubsLocked()
	r.mu.Unlock()
	fire(subs)

	r.audit.Log(ctx, domain.NoticeLevelInfo, domain.NoticeCategoryGame, domain.NoticeActionBetPlaced,
		"ставка отправлена",
		map[string]interface{}{
			"amount":     amount.String(),
			"mine_count": req.MineCount,
			"tx":         res.Hash,
			"estimate":   game.EstimateDisplayMultiplier(req.MineCount),
		})

	r.scheduleSettle(settleJob{kind: domain.TxBet, tile: -1, sessionID: prevSession}, 0)
	return res, nil
}

// Reconcile снимает записи патча, которые подтвердил или опроверг снапшот
func (r *Reconciler) Reconcile(snap domain.SyncSnapshot) {
	r.mu.Lock()
	if len(r.patch) == 0 {
		r.mu.Unlock()
		return
	}
	_, remaining := MergeTiles(snap.Data, r.patch)
	if len(remaining) == len(r.patch) {
		r.mu.Unlock()
		return
	}
	r.patch = remaining
	subs := r.changeSubsLocked()
	r.mu.Unlock()
	fire(subs)
}

// View собирает представление из снапшота, машины и патча
func (r *Reconciler) View() domain.GameView {
	snap, ok := r.sync.Snapshot()
	r.mu.Lock()
	patch := append(domain.OptimisticPatch(nil), r.patch...)
	r.mu.Unlock()

	return buildView(viewInput{
		snap:    snap,
		hasSnap: ok,
		phase:   r.machine.Phase(),
		outcome: r.machine.Outcome(),
		hidden:  r.machine.Acknowledged(),
		patch:   patch,
		loading: r.sync.Loading(),
		odds:    r.odds,
	})
}

// Close снимает таймеры сверки
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
	r.patch = nil
	r.onChange = nil
	r.mu.Unlock()

	r.cancel()
}

func (r *Reconciler) rollback(ctx context.Context, kind domain.TxKind, tile int, cause error) {
	r.mu.Lock()
	if kind == domain.TxCashOut {
		r.patch = r.patch.WithoutCashOut()
	} else {
		r.patch = r.patch.Without(tile)
	}
	subs := r.changeSubsLocked()
	r.mu.Unlock()
	fire(subs)

	txSubmissions.WithLabelValues(string(kind), "error").Inc()
	optimisticRollbacks.WithLabelValues(string(kind)).Inc()
	r.log.Warn("reconciler: транзакция не прошла, изменение отменено", "kind", kind, "tile", tile, "error", cause)
	r.audit.LogTxFailure(ctx, kind, cause)
}

// scheduleSettle перечитывает контракт через settleDelay<<attempt
func (r *Reconciler) scheduleSettle(job settleJob, attempt int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	id := r.nextID
	r.nextID++
	r.timers[id] = r.clock.AfterFunc(r.settleDelay<<attempt, func() {
		r.settle(id, job, attempt)
	})
}

func (r *Reconciler) settle(id int, job settleJob, attempt int) {
	r.mu.Lock()
	delete(r.timers, id)
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return
	}

	snap, err := r.sync.Fetch(r.ctx, true)
	if err == nil && snap.Source != domain.SourceStaleError && settled(job, snap) {
		return
	}

	if attempt < r.retries {
		r.log.Debug("reconciler: эффект транзакции еще не виден", "kind", job.kind, "attempt", attempt+1)
		r.scheduleSettle(job, attempt+1)
		return
	}
	r.giveUp(job)
}

// settled виден ли эффект транзакции в снапшоте
func settled(job settleJob, snap domain.SyncSnapshot) bool {
	s := snap.Data
	switch job.kind {
	case domain.TxBet:
		return s != nil && s.SessionID != job.sessionID
	case domain.TxReveal:
		return s == nil || !s.Active || s.SessionID != job.sessionID || s.Tiles[job.tile].Revealed
	case domain.TxCashOut:
		return s == nil || !s.Active || s.SessionID != job.sessionID
	}
	return true
}

func (r *Reconciler) giveUp(job settleJob) {
	r.mu.Lock()
	switch job.kind {
	case domain.TxReveal:
		r.patch = r.patch.Without(job.tile)
	case domain.TxCashOut:
		r.patch = r.patch.WithoutCashOut()
	}
	subs := r.changeSubsLocked()
	r.mu.Unlock()
	fire(subs)

	settleGiveUps.WithLabelValues(string(job.kind)).Inc()
	r.log.Warn("reconciler: подтверждение не получено", "kind", job.kind, "tile", job.tile)
	r.audit.LogConsistency(r.ctx, domain.NoticeActionSettleGiveUp,
		"контракт не подтвердил действие, показано состояние контракта",
		map[string]interface{}{"kind": string(job.kind), "tile": job.tile})
}

func (r *Reconciler) changeSubsLocked() []func() {
	if len(r.onChange) == 0 {
		return nil
	}
	return append([]func(){}, r.onChange...)
}

func fire(subs []func()) {
	for _, fn := range subs {
		fn()
	}
}

package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ifeelsam/core-bet/internal/domain"
	"github.com/ifeelsam/core-bet/internal/game"
	"github.com/ifeelsam/core-bet/internal/logger"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Options параметры движка
type Options struct {
	Odds          game.Odds
	Sync          SyncConfig
	PollInterval  time.Duration
	SettleDelay   time.Duration
	SettleRetries int
	Clock         clockwork.Clock
}

func DefaultOptions() Options {
	return Options{
		Odds:          game.DefaultOdds(),
		Sync:          DefaultSyncConfig(),
		PollInterval:  5 * time.Second,
		SettleDelay:   2 * time.Second,
		SettleRetries: 3,
	}
}

// Quote расчет выплаты для формы ставки
type Quote struct {
	Amount          decimal.Decimal `json:"amount"`
	MineCount       int             `json:"mine_count"`
	Revealed        int             `json:"revealed"`
	Estimate        float64         `json:"estimate"`
	Multiplier      float64         `json:"multiplier"`
	NextMultiplier  float64         `json:"next_multiplier"`
	PotentialReturn decimal.Decimal `json:"potential_return"`
}

// Info параметры игры
type Info struct {
	BoardSize int               `json:"board_size"`
	MinMines  int               `json:"min_mines"`
	MaxMines  int               `json:"max_mines"`
	HouseEdge float64           `json:"house_edge"`
	Tables    map[int][]float64 `json:"tables"`
}

// Summary кошелек и состояние раунда одним запросом
type Summary struct {
	Wallet domain.Wallet   `json:"wallet"`
	View   domain.GameView `json:"state"`
}

// binding все, что живет пока кошелек привязан
type binding struct {
	address common.Address
	sync    *Synchronizer
	machine *game.Machine
	rec     *Reconciler
	poller  *Poller

	// снапшоты обрабатываются по одному и только в порядке чтений
	observeMu sync.Mutex
	lastSeq   uint64
}

func (b *binding) close() {
	b.poller.Stop()
	b.rec.Close()
	b.sync.Close()
	b.machine.Reset()
}

// MinesService движок игры для одного кошелька: синхронизация, оптимистичные действия, раунд
type MinesService struct {
	reader  StatusReader
	tx      Transactor
	wallets WalletProvider
	audit   *AuditService
	opts    Options
	log     *slog.Logger

	mu      sync.RWMutex
	cache   StatusCache
	b       *binding
	subs    map[int]func(domain.GameView)
	nextSub int
}

// создает новый сервис
func NewMinesService(reader StatusReader, tx Transactor, wallets WalletProvider, audit *AuditService, opts Options) *MinesService {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Odds.TotalTiles == 0 {
		opts.Odds = game.DefaultOdds()
	}
	if audit == nil {
		audit = NewAuditService(opts.Clock)
	}
	return &MinesService{
		reader:  reader,
		tx:      tx,
		wallets: wallets,
		audit:   audit,
		opts:    opts,
		log:     logger.Component("mines"),
		subs:    make(map[int]func(domain.GameView)),
	}
}

// SetCache общий кэш для следующих привязок
func (s *MinesService) SetCache(c StatusCache) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = c
}

// Bind привязывает подключенный кошелек и читает его состояние.
// Прошлая привязка закрывается.
func (s *MinesService) Bind(ctx context.Context) (domain.GameView, error) {
	w, err := s.wallets.GetWallet(ctx)
	if err != nil {
		return domain.GameView{}, domain.Read(err)
	}
	if !w.IsConnected {
		return domain.GameView{}, domain.Validation(domain.ErrWalletNotConnected)
	}

	clock := s.opts.Clock
	machine := game.NewMachine()
	syncr := NewSynchronizer(w.Address, s.reader, s.opts.Odds, clock, s.opts.Sync)
	b := &binding{
		address: w.Address,
		sync:    syncr,
		machine: machine,
		rec:     NewReconciler(syncr, machine, s.tx, s.wallets, s.audit, s.opts.Odds, clock, s.opts.SettleDelay, s.opts.SettleRetries),
		poller:  NewPoller(syncr, machine, clock, s.opts.PollInterval),
	}

	s.mu.Lock()
	prev := s.b
	s.b = b
	if s.cache != nil {
		syncr.SetCache(s.cache)
	}
	s.mu.Unlock()
	if prev != nil {
		prev.close()
	}

	syncr.OnSnapshot(func(snap domain.SyncSnapshot) { s.onSnapshot(b, snap) })
	syncr.OnLoading(func(bool) { s.publish(b) })
	b.rec.OnChange(func() { s.publish(b) })

	s.log.Info("mines: кошелек привязан", "address", w.ShortAddress(), "chain_id", w.ChainID)

	if _, err := syncr.Fetch(ctx, true); err != nil {
		s.audit.Log(ctx, domain.NoticeLevelWarn, domain.NoticeCategorySync, domain.NoticeActionReadFailed,
			"не удалось прочитать состояние игры", map[string]interface{}{"error": err.Error()})
		return b.rec.View(), err
	}
	return b.rec.View(), nil
}

// Unbind отвязывает кошелек: опрос, таймеры и чтения останавливаются
func (s *MinesService) Unbind() {
	s.mu.Lock()
	b := s.b
	s.b = nil
	s.mu.Unlock()

	if b != nil {
		b.close()
		s.log.Info("mines: кошелек отвязан", "address", b.address.Hex())
	}
}

func (s *MinesService) Close() {
	s.Unbind()
}

// View текущее представление без обращения к сети
func (s *MinesService) View() (domain.GameView, error) {
	b, err := s.bound()
	if err != nil {
		return domain.GameView{}, err
	}
	return b.rec.View(), nil
}

// HandleTileClick открывает ячейку
func (s *MinesService) HandleTileClick(ctx context.Context, tile int) (domain.TxResult, error) {
	b, err := s.bound()
	if err != nil {
		return domain.TxResult{}, err
	}
	return b.rec.Reveal(ctx, tile)
}

// HandleBet новая ставка
func (s *MinesService) HandleBet(ctx context.Context, req domain.BetRequest) (domain.TxResult, error) {
	b, err := s.bound()
	if err != nil {
		return domain.TxResult{}, err
	}
	return b.rec.PlaceBet(ctx, req)
}

func (s *MinesService) HandleCashOut(ctx context.Context) (domain.TxResult, error) {
	b, err := s.bound()
	if err != nil {
		return domain.TxResult{}, err
	}
	return b.rec.CashOut(ctx)
}

// Refresh принудительное чтение контракта
func (s *MinesService) Refresh(ctx context.Context) (domain.GameView, error) {
	b, err := s.bound()
	if err != nil {
		return domain.GameView{}, err
	}
	if _, err := b.sync.Fetch(ctx, true); err != nil {
		return domain.GameView{}, err
	}
	return b.rec.View(), nil
}

// IsActive идет ли раунд у привязанного кошелька
func (s *MinesService) IsActive() bool {
	b, err := s.bound()
	if err != nil {
		return false
	}
	return b.machine.IsActive()
}

// Polling работает ли фоновый опрос
func (s *MinesService) Polling() bool {
	b, err := s.bound()
	if err != nil {
		return false
	}
	return b.poller.Running()
}

func (s *MinesService) Wallet(ctx context.Context) (domain.Wallet, error) {
	w, err := s.wallets.GetWallet(ctx)
	if err != nil {
		return domain.Wallet{}, domain.Read(err)
	}
	return w, nil
}

// Summary читает кошелек и состояние параллельно
func (s *MinesService) Summary(ctx context.Context) (Summary, error) {
	b, err := s.bound()
	if err != nil {
		return Summary{}, err
	}

	var out Summary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w, err := s.Wallet(gctx)
		out.Wallet = w
		return err
	})
	g.Go(func() error {
		_, err := b.sync.Fetch(gctx, false)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	out.View = b.rec.View()
	return out, nil
}

// Subscribe подписка на изменения представления
func (s *MinesService) Subscribe(fn func(domain.GameView)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Notices последние уведомления
func (s *MinesService) Notices(limit int) []domain.Notice {
	return s.audit.Recent(limit)
}

// SubscribeNotices подписка на новые уведомления
func (s *MinesService) SubscribeNotices(fn func(domain.Notice)) (unsubscribe func()) {
	return s.audit.Subscribe(fn)
}

// Quote множители и выплата для суммы, числа мин и открытых ячеек
func (s *MinesService) Quote(amount string, mineCount, revealed int) (Quote, error) {
	a, err := domain.BetRequest{Amount: amount}.ParsedAmount()
	if err != nil {
		return Quote{}, err
	}
	if err := game.ValidateMineCount(mineCount, s.opts.Odds.TotalTiles); err != nil {
		return Quote{}, err
	}
	if revealed < 0 || revealed > s.opts.Odds.TotalTiles-mineCount {
		return Quote{}, domain.Validation(domain.ErrInvalidTile)
	}

	return Quote{
		Amount:          a,
		MineCount:       mineCount,
		Revealed:        revealed,
		Estimate:        game.EstimateDisplayMultiplier(mineCount),
		Multiplier:      s.opts.Odds.Multiplier(mineCount, revealed),
		NextMultiplier:  s.opts.Odds.NextMultiplier(mineCount, revealed),
		PotentialReturn: s.opts.Odds.PotentialReturn(a, mineCount, revealed),
	}, nil
}

// Info параметры поля и таблицы множителей
func (s *MinesService) Info() Info {
	tables := make(map[int][]float64, domain.MaxMines)
	for m := domain.MinMines; m <= domain.MaxMines; m++ {
		tables[m] = s.opts.Odds.Table(m)
	}
	return Info{
		BoardSize: s.opts.Odds.TotalTiles,
		MinMines:  domain.MinMines,
		MaxMines:  domain.MaxMines,
		HouseEdge: s.opts.Odds.HouseEdge,
		Tables:    tables,
	}
}

func (s *MinesService) bound() (*binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.b == nil {
		return nil, domain.Validation(domain.ErrNotBound)
	}
	return s.b, nil
}

// onSnapshot подтвержденные данные двигают машину, затем чистят патч.
// Уведомление о более старом чтении, пришедшее после нового, отбрасывается.
func (s *MinesService) onSnapshot(b *binding, snap domain.SyncSnapshot) {
	s.mu.RLock()
	current := s.b == b
	s.mu.RUnlock()
	if !current {
		return
	}

	b.observeMu.Lock()
	if last := b.lastSeq; snap.Seq < last {
		b.observeMu.Unlock()
		syncDiscarded.Inc()
		s.log.Debug("mines: устаревший снапшот пропущен", "seq", snap.Seq, "last", last)
		return
	}
	b.lastSeq = snap.Seq
	if tr, ok := b.machine.Observe(snap.Data); ok {
		s.onTransition(b, tr, snap.Data)
	}
	b.rec.Reconcile(snap)
	b.observeMu.Unlock()

	s.publish(b)
}

func (s *MinesService) onTransition(b *binding, tr game.Transition, session *domain.GameSession) {
	sessionTransitions.WithLabelValues(string(tr.From), string(tr.To), string(tr.Outcome)).Inc()
	if tr.From == tr.To && tr.To == domain.PhaseActive {
		return
	}
	s.log.Info("mines: переход раунда", "from", tr.From, "to", tr.To, "outcome", tr.Outcome, "session", tr.SessionID)

	ctx := context.Background()
	switch tr.To {
	case domain.PhaseActive:
		b.poller.Start()
		s.audit.Log(ctx, domain.NoticeLevelInfo, domain.NoticeCategoryGame, domain.NoticeActionRoundStart,
			"раунд начался", map[string]interface{}{"session_id": tr.SessionID, "mine_count": session.MineCount})
	case domain.PhaseResolved:
		if tr.From != domain.PhaseActive {
			return
		}
		if tr.Outcome == domain.OutcomeBusted {
			s.audit.Log(ctx, domain.NoticeLevelInfo, domain.NoticeCategoryGame, domain.NoticeActionBusted,
				"мина, ставка проиграна", map[string]interface{}{"session_id": tr.SessionID})
			return
		}
		payout := s.opts.Odds.PotentialReturn(session.BetAmount, session.MineCount, session.SafeRevealed())
		s.audit.Log(ctx, domain.NoticeLevelInfo, domain.NoticeCategoryGame, domain.NoticeActionCashedOut,
			"выигрыш выведен", map[string]interface{}{"session_id": tr.SessionID, "payout": payout.String()})
	case domain.PhaseIdle:
		if tr.From == domain.PhaseActive {
			s.audit.LogConsistency(ctx, domain.NoticeActionCorrected,
				"контракт не знает об активной игре, раунд сброшен", nil)
		}
	}
}

// publish рассылает представление, если привязка еще текущая
func (s *MinesService) publish(b *binding) {
	s.mu.RLock()
	if s.b != b || len(s.subs) == 0 {
		s.mu.RUnlock()
		return
	}
	subs := make([]func(domain.GameView), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	view := b.rec.View()
	for _, fn := range subs {
		fn(view)
	}
}

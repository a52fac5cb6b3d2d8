package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ifeelsam/core-bet/internal/domain"
	"github.com/ifeelsam/core-bet/internal/game"
	"github.com/ifeelsam/core-bet/internal/logger"
	"github.com/jonboulle/clockwork"
)

var errSyncClosed = errors.New("синхронизатор остановлен")

// SyncConfig окна кэша, debounce и сглаживания загрузки
type SyncConfig struct {
	CacheDuration  time.Duration
	DebounceWindow time.Duration
	MinLoading     time.Duration
	RemoteTimeout  time.Duration
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		CacheDuration:  3 * time.Second,
		DebounceWindow: 300 * time.Millisecond,
		MinLoading:     500 * time.Millisecond,
		RemoteTimeout:  15 * time.Second,
	}
}

// Synchronizer единственный владелец снапшота для одного адреса.
// Создается при привязке кошелька и закрывается при отвязке.
type Synchronizer struct {
	address common.Address
	reader  StatusReader
	cache   StatusCache
	odds    game.Odds
	clock   clockwork.Clock
	cfg     SyncConfig
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	snap          *domain.SyncSnapshot
	seq           uint64 // номер последнего начатого чтения
	appliedSeq    uint64 // номер чтения, чей результат сейчас в снапшоте
	forceInFlight int

	debounceTimer   clockwork.Timer
	debouncePending bool
	debounceForce   bool

	inflight     int
	loading      bool
	loadingSince time.Time
	loadingTimer clockwork.Timer

	onSnapshot []func(domain.SyncSnapshot)
	onLoading  []func(bool)
	closed     bool
}

func NewSynchronizer(address common.Address, reader StatusReader, odds game.Odds, clock clockwork.Clock, cfg SyncConfig) *Synchronizer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Synchronizer{
		address: address,
		reader:  reader,
		odds:    odds,
		clock:   clock,
		cfg:     cfg,
		log:     logger.Component("sync").With("address", address.Hex()),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetCache второй уровень кэша. nil выключает
func (s *Synchronizer) SetCache(c StatusCache) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = c
}

// OnSnapshot вызывается после каждого изменения снапшота, вне блокировок
func (s *Synchronizer) OnSnapshot(fn func(domain.SyncSnapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSnapshot = append(s.onSnapshot, fn)
}

// OnLoading вызывается при смене флага загрузки
func (s *Synchronizer) OnLoading(fn func(bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLoading = append(s.onLoading, fn)
}

// Snapshot текущий снапшот без обращения к сети
func (s *Synchronizer) Snapshot() (domain.SyncSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return domain.SyncSnapshot{}, false
	}
	return *s.snap, true
}

// Loading идет ли чтение (с учетом минимального времени показа)
func (s *Synchronizer) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Fetch отдает снапшот. Без force свежий кэш возвращается без чтения контракта,
// force читает контракт всегда.
func (s *Synchronizer) Fetch(ctx context.Context, force bool) (domain.SyncSnapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.SyncSnapshot{}, domain.Read(errSyncClosed)
	}

	if !force && s.freshLocked() {
		out := *s.snap
		out.Source = domain.SourceCache
		s.mu.Unlock()
		syncFetches.WithLabelValues(string(domain.SourceCache)).Inc()
		return out, nil
	}

	s.seq++
	seq := s.seq
	cache := s.cache
	if force {
		s.forceInFlight++
	}
	s.mu.Unlock()

	if !force && cache != nil {
		if out, ok := s.fromSharedCache(ctx, cache, seq); ok {
			return out, nil
		}
	}

	s.beginLoading()
	status, err := s.read(ctx)
	s.endLoading()

	s.mu.Lock()
	if force {
		s.forceInFlight--
	}

	if seq < s.appliedSeq {
		out := *s.snap
		s.mu.Unlock()
		syncDiscarded.Inc()
		s.log.Debug("sync: ответ устарел, отброшен", "seq", seq, "applied", s.appliedSeq)
		return out, nil
	}

	if err != nil {
		syncReadErrors.Inc()
		if s.snap == nil {
			s.mu.Unlock()
			s.log.Warn("sync: чтение не удалось, снапшота нет", "error", err)
			return domain.SyncSnapshot{}, domain.Read(err)
		}
		prev := s.snap.Source
		s.snap = &domain.SyncSnapshot{Data: s.snap.Data, FetchedAt: s.snap.FetchedAt, Source: domain.SourceStaleError, Seq: s.snap.Seq}
		out := *s.snap
		subs := s.subscribersLocked(prev != domain.SourceStaleError)
		s.mu.Unlock()

		s.log.Warn("sync: чтение не удалось, отдаем прошлый снапшот", "error", err, "age", out.Age(s.clock.Now()))
		syncFetches.WithLabelValues(string(domain.SourceStaleError)).Inc()
		notify(subs, out)
		return out, nil
	}

	out, subs := s.applyLocked(seq, game.SessionFromStatus(status, s.odds), s.clock.Now(), domain.SourceRemote)
	s.mu.Unlock()

	syncFetches.WithLabelValues(string(domain.SourceRemote)).Inc()
	if cache != nil {
		if err := cache.Set(ctx, s.address, out); err != nil {
			s.log.Warn("sync: не удалось записать снапшот в кэш", "error", err)
		}
	}
	notify(subs, out)
	return out, nil
}

// FetchDebounced для фонового опроса: не больше одного чтения за окно debounce.
// Пользовательские действия зовут Fetch(ctx, true) напрямую.
func (s *Synchronizer) FetchDebounced(force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.debounceForce = s.debounceForce || force
	if s.debouncePending {
		return
	}
	s.debouncePending = true
	s.debounceTimer = s.clock.AfterFunc(s.cfg.DebounceWindow, s.flushDebounced)
}

func (s *Synchronizer) flushDebounced() {
	s.mu.Lock()
	s.debouncePending = false
	s.debounceTimer = nil
	force := s.debounceForce
	s.debounceForce = false
	skip := s.closed || (!force && s.forceInFlight > 0)
	s.mu.Unlock()

	if skip {
		s.log.Debug("sync: отложенное чтение пропущено")
		return
	}
	if _, err := s.Fetch(s.ctx, force); err != nil && !errors.Is(err, errSyncClosed) {
		s.log.Debug("sync: отложенное чтение не удалось", "error", err)
	}
}

// Invalidate убирает запись адреса из общего кэша: после ставки она устарела
// и для других процессов тоже
func (s *Synchronizer) Invalidate(ctx context.Context) {
	s.mu.Lock()
	cache := s.cache
	s.mu.Unlock()
	if cache == nil {
		return
	}
	if err := cache.Delete(ctx, s.address); err != nil {
		s.log.Warn("sync: не удалось удалить снапшот из кэша", "error", err)
	}
}

// Close снимает таймеры и прерывает чтения
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
	if s.loadingTimer != nil {
		s.loadingTimer.Stop()
		s.loadingTimer = nil
	}
	s.onSnapshot = nil
	s.onLoading = nil
	s.mu.Unlock()

	s.cancel()
}

func (s *Synchronizer) read(ctx context.Context) (*domain.GameStatus, error) {
	var cancel context.CancelFunc
	if s.cfg.RemoteTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	start := time.Now()
	status, err := s.reader.ReadGameStatus(ctx, s.address)
	syncReadDuration.Observe(time.Since(start).Seconds())
	return status, err
}

func (s *Synchronizer) fromSharedCache(ctx context.Context, cache StatusCache, seq uint64) (domain.SyncSnapshot, bool) {
	cached, ok, err := cache.Get(ctx, s.address)
	if err != nil {
		s.log.Warn("sync: кэш недоступен", "error", err)
		return domain.SyncSnapshot{}, false
	}
	if !ok || cached.Age(s.clock.Now()) >= s.cfg.CacheDuration {
		return domain.SyncSnapshot{}, false
	}

	s.mu.Lock()
	if s.closed || seq < s.appliedSeq || (s.snap != nil && cached.FetchedAt.Before(s.snap.FetchedAt)) {
		s.mu.Unlock()
		return domain.SyncSnapshot{}, false
	}
	out, subs := s.applyLocked(seq, cached.Data, cached.FetchedAt, domain.SourceCache)
	s.mu.Unlock()

	syncFetches.WithLabelValues(string(domain.SourceCache)).Inc()
	notify(subs, out)
	return out, true
}

// applyLocked кладет новые данные. Если они равны старым, указатель на сессию не меняется
func (s *Synchronizer) applyLocked(seq uint64, data *domain.GameSession, at time.Time, source domain.SnapshotSource) (domain.SyncSnapshot, []func(domain.SyncSnapshot)) {
	s.appliedSeq = seq

	changed := s.snap == nil || !s.snap.Data.Equal(data)
	recovered := s.snap != nil && s.snap.Source == domain.SourceStaleError
	if !changed {
		data = s.snap.Data
	}
	s.snap = &domain.SyncSnapshot{Data: data, FetchedAt: at, Source: source, Seq: seq}

	if changed {
		s.log.Debug("sync: снапшот обновлен", "source", source)
	}
	return *s.snap, s.subscribersLocked(changed || recovered)
}

func (s *Synchronizer) freshLocked() bool {
	if s.snap == nil || s.snap.Source == domain.SourceStaleError {
		return false
	}
	return s.clock.Since(s.snap.FetchedAt) < s.cfg.CacheDuration
}

func (s *Synchronizer) subscribersLocked(changed bool) []func(domain.SyncSnapshot) {
	if !changed || len(s.onSnapshot) == 0 {
		return nil
	}
	return append([]func(domain.SyncSnapshot){}, s.onSnapshot...)
}

func notify(subs []func(domain.SyncSnapshot), snap domain.SyncSnapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}

// beginLoading включает флаг загрузки на первом параллельном чтении
func (s *Synchronizer) beginLoading() {
	s.mu.Lock()
	s.inflight++
	if s.loadingTimer != nil {
		s.loadingTimer.Stop()
		s.loadingTimer = nil
	}
	flipped := !s.loading
	if flipped {
		s.loading = true
		s.loadingSince = s.clock.Now()
	}
	subs := s.loadingSubsLocked(flipped)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(true)
	}
}

// endLoading выключает флаг не раньше, чем через MinLoading после включения
func (s *Synchronizer) endLoading() {
	s.mu.Lock()
	s.inflight--
	if s.inflight > 0 || s.closed {
		s.mu.Unlock()
		return
	}

	remaining := s.cfg.MinLoading - s.clock.Since(s.loadingSince)
	if remaining > 0 {
		s.loadingTimer = s.clock.AfterFunc(remaining, s.finishLoading)
		s.mu.Unlock()
		return
	}
	s.loading = false
	subs := s.loadingSubsLocked(true)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(false)
	}
}

func (s *Synchronizer) finishLoading() {
	s.mu.Lock()
	if s.inflight > 0 || !s.loading || s.closed {
		s.mu.Unlock()
		return
	}
	s.loading = false
	s.loadingTimer = nil
	subs := s.loadingSubsLocked(true)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(false)
	}
}

func (s *Synchronizer) loadingSubsLocked(flipped bool) []func(bool) {
	if !flipped || len(s.onLoading) == 0 {
		return nil
	}
	return append([]func(bool){}, s.onLoading...)
}

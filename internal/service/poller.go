package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ifeelsam/core-bet/internal/logger"
	"github.com/jonboulle/clockwork"
)

// debouncedFetcher то, что поллер дергает на каждом тике
type debouncedFetcher interface {
	FetchDebounced(force bool)
}

// Poller фоновый опрос контракта, пока раунд активен.
// Условие читается у машины состояний на каждом тике.
type Poller struct {
	fetcher  debouncedFetcher
	gate     ActivityGate
	clock    clockwork.Clock
	interval time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// создает новый поллер
func NewPoller(fetcher debouncedFetcher, gate ActivityGate, clock clockwork.Clock, interval time.Duration) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{
		fetcher:  fetcher,
		gate:     gate,
		clock:    clock,
		interval: interval,
		log:      logger.Component("poller"),
	}
}

// Start запускает опрос в фоне. false если уже запущен или раунд не активен
func (p *Poller) Start() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running || !p.gate.IsActive() {
		return false
	}

	p.running = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})

	// тикер создается до возврата, чтобы первый тик не потерялся
	ticker := p.clock.NewTicker(p.interval)
	go p.loop(ticker, p.stop, p.done)

	p.log.Info("poller: запуск опроса", "interval", p.interval)
	return true
}

// Stop останавливает опрос и ждет выхода из цикла
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stop, done := p.stop, p.done
	close(stop)
	p.mu.Unlock()

	<-done
}

// Running идет ли опрос
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) loop(ticker clockwork.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if !p.gate.IsActive() {
				p.mu.Lock()
				if p.stop == stop {
					p.running = false
				}
				p.mu.Unlock()
				p.log.Info("poller: раунд завершен, опрос остановлен")
				return
			}
			p.fetcher.FetchDebounced(false)
		case <-stop:
			p.log.Info("poller: остановка опроса")
			return
		}
	}
}

package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ifeelsam/core-bet/internal/domain"
	"github.com/ifeelsam/core-bet/internal/logger"
)

// Engine то, что нужно хабу от игрового движка
type Engine interface {
	View() (domain.GameView, error)
	HandleTileClick(ctx context.Context, tile int) (domain.TxResult, error)
	HandleCashOut(ctx context.Context) (domain.TxResult, error)
	HandleBet(ctx context.Context, req domain.BetRequest) (domain.TxResult, error)
	Subscribe(fn func(domain.GameView)) (unsubscribe func())
	SubscribeNotices(fn func(domain.Notice)) (unsubscribe func())
}

// Message сообщение сервера
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

const (
	TypeState  = "state"
	TypeNotice = "notice"
	TypeTx     = "tx"
	TypeError  = "error"
	TypeReady  = "ready"
)

// Hub рассылает представление и уведомления всем подключенным клиентам
type Hub struct {
	engine Engine
	log    *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}

	unsub []func()
	stop  chan struct{}
}

func NewHub(engine Engine) *Hub {
	return &Hub{
		engine:  engine,
		log:     logger.Component("ws"),
		clients: make(map[*Client]struct{}),
		stop:    make(chan struct{}),
	}
}

// Start подписывает хаб на движок и запускает очистку зависших клиентов
func (h *Hub) Start() {
	h.unsub = append(h.unsub,
		h.engine.Subscribe(func(v domain.GameView) { h.Broadcast(Message{Type: TypeState, Payload: v}) }),
		h.engine.SubscribeNotices(func(n domain.Notice) { h.Broadcast(Message{Type: TypeNotice, Payload: n}) }),
	)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.cleanupStale()
			case <-h.stop:
				return
			}
		}
	}()
}

// Stop отписывается от движка и закрывает все соединения
func (h *Hub) Stop() {
	for _, fn := range h.unsub {
		fn()
	}
	h.unsub = nil
	close(h.stop)

	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("ws: клиент подключен", "clients", n)
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		c.close()
		h.log.Info("ws: клиент отключен", "clients", n)
	}
}

// Clients число подключенных клиентов
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast не блокируется: клиенту с заполненной очередью сообщение не достанется
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("ws: не удалось сериализовать сообщение", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.trySend(data) {
			h.log.Warn("ws: очередь клиента заполнена, сообщение пропущено", "type", msg.Type)
		}
	}
}

// cleanupStale отключает клиентов, чья очередь так и не разгрузилась
func (h *Hub) cleanupStale() {
	h.mu.RLock()
	var stale []*Client
	for c := range h.clients {
		if c.backlogged() {
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.log.Warn("ws: отключаем зависшего клиента")
		h.Unregister(c)
	}
}

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ifeelsam/core-bet/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second

	sendBuffer = 64
	// за столько действий клиент может ждать транзакцию
	actionTimeout = 90 * time.Second
)

var errUnknownIntent = errors.New("неизвестный тип сообщения")

// Intent сообщение клиента
type Intent struct {
	Type      string `json:"type"`
	Tile      *int   `json:"tile,omitempty"`
	Amount    string `json:"amount,omitempty"`
	MineCount int    `json:"mine_count,omitempty"`
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Run регистрирует клиента, отдает текущее состояние и читает сообщения до разрыва
func (c *Client) Run() {
	go c.writePump()

	c.hub.Register(c)
	c.reply(Message{Type: TypeReady})
	if v, err := c.hub.engine.View(); err == nil {
		c.reply(Message{Type: TypeState, Payload: v})
	} else {
		c.replyError(err)
	}

	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		close(c.done)
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("ws: ошибка чтения", "error", err)
			}
			return
		}

		var in Intent
		if err := json.Unmarshal(msg, &in); err != nil {
			c.replyError(domain.Validation(err))
			continue
		}
		// действия ждут подтверждения транзакции, чтение не блокируем
		go c.handle(in)
	}
}

func (c *Client) handle(in Intent) {
	ctx, cancel := context.WithTimeout(c.ctx, actionTimeout)
	defer cancel()

	var (
		res domain.TxResult
		err error
	)
	engine := c.hub.engine
	switch in.Type {
	case "reveal":
		if in.Tile == nil {
			err = domain.Validation(domain.ErrInvalidTile)
			break
		}
		res, err = engine.HandleTileClick(ctx, *in.Tile)
	case "cashout":
		res, err = engine.HandleCashOut(ctx)
	case "bet":
		res, err = engine.HandleBet(ctx, domain.BetRequest{Amount: in.Amount, MineCount: in.MineCount})
	default:
		err = domain.Validation(errUnknownIntent)
	}

	if err != nil {
		c.replyError(err)
		return
	}
	c.reply(Message{Type: TypeTx, Payload: res})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.log.Debug("ws: ошибка записи", "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *Client) replyError(err error) {
	c.reply(Message{Type: TypeError, Error: err.Error(), Kind: domain.KindOf(err)})
}

func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// backlogged очередь заполнена целиком
func (c *Client) backlogged() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && len(c.send) == cap(c.send)
}

// close закрывает очередь, writePump отправит close frame
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	close(c.send)
}

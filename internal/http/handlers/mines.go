package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ifeelsam/core-bet/internal/domain"
	"github.com/ifeelsam/core-bet/internal/service"
)

// MinesEngine игровой движок, который обслуживают хендлеры
type MinesEngine interface {
	View() (domain.GameView, error)
	Refresh(ctx context.Context) (domain.GameView, error)
	HandleTileClick(ctx context.Context, tile int) (domain.TxResult, error)
	HandleCashOut(ctx context.Context) (domain.TxResult, error)
	HandleBet(ctx context.Context, req domain.BetRequest) (domain.TxResult, error)
	Wallet(ctx context.Context) (domain.Wallet, error)
	Summary(ctx context.Context) (service.Summary, error)
	Quote(amount string, mineCount, revealed int) (service.Quote, error)
	Info() service.Info
	Notices(limit int) []domain.Notice
}

// ChainInfo параметры сети для UI
type ChainInfo struct {
	ChainID     int64  `json:"chain_id"`
	Contract    string `json:"contract"`
	ExplorerURL string `json:"explorer_url"`
	Symbol      string `json:"symbol"`
	Simulated   bool   `json:"simulated"`
}

type Handler struct {
	Engine  MinesEngine
	Chain   ChainInfo
	Version string
}

func New(engine MinesEngine, chain ChainInfo, version string) *Handler {
	return &Handler{Engine: engine, Chain: chain, Version: version}
}

// RevealRequest запрос на открытие ячейки
type RevealRequest struct {
	Tile *int `json:"tile" binding:"required,min=0,max=24"`
}

// statusFor HTTP-код по виду ошибки
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConsistency):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSubmission):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrRead):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error(), "kind": domain.KindOf(err)})
}

// State текущее представление раунда
func (h *Handler) State(c *gin.Context) {
	v, err := h.Engine.View()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Refresh принудительно перечитывает контракт
func (h *Handler) Refresh(c *gin.Context) {
	v, err := h.Engine.Refresh(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Bet новая ставка
func (h *Handler) Bet(c *gin.Context) {
	var req domain.BetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error(), "kind": "validation"})
		return
	}

	res, err := h.Engine.HandleBet(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	h.txResponse(c, res)
}

// Reveal открывает ячейку
func (h *Handler) Reveal(c *gin.Context) {
	var req RevealRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Tile == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrInvalidTile.Error(), "kind": "validation"})
		return
	}

	res, err := h.Engine.HandleTileClick(c.Request.Context(), *req.Tile)
	if err != nil {
		fail(c, err)
		return
	}
	h.txResponse(c, res)
}

func (h *Handler) CashOut(c *gin.Context) {
	res, err := h.Engine.HandleCashOut(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	h.txResponse(c, res)
}

// txResponse транзакция вместе с текущим (оптимистичным) представлением
func (h *Handler) txResponse(c *gin.Context, res domain.TxResult) {
	resp := gin.H{"tx": res, "explorer": h.explorerLink(res.Hash)}
	if v, err := h.Engine.View(); err == nil {
		resp["state"] = v
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) explorerLink(hash string) string {
	if h.Chain.Simulated || h.Chain.ExplorerURL == "" {
		return ""
	}
	return h.Chain.ExplorerURL + "/tx/" + hash
}

// Info параметры игры, сети и таблицы множителей
func (h *Handler) Info(c *gin.Context) {
	info := h.Engine.Info()
	c.JSON(http.StatusOK, gin.H{
		"board_size":        info.BoardSize,
		"min_mines":         info.MinMines,
		"max_mines":         info.MaxMines,
		"house_edge":        info.HouseEdge,
		"multiplier_tables": info.Tables,
		"chain":             h.Chain,
		"version":           h.Version,
	})
}

// Quote расчет выплаты: ?amount=&mines=&revealed=
func (h *Handler) Quote(c *gin.Context) {
	mines, err := strconv.Atoi(c.Query("mines"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrInvalidMineCount.Error(), "kind": "validation"})
		return
	}
	revealed := 0
	if raw := c.Query("revealed"); raw != "" {
		if revealed, err = strconv.Atoi(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "revealed must be a number", "kind": "validation"})
			return
		}
	}
	amount := c.DefaultQuery("amount", "0")

	q, err := h.Engine.Quote(amount, mines, revealed)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// Wallet подключенный кошелек
func (h *Handler) Wallet(c *gin.Context) {
	w, err := h.Engine.Wallet(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address":       w.Address.Hex(),
		"short_address": w.ShortAddress(),
		"balance":       w.Balance,
		"is_connected":  w.IsConnected,
		"chain_id":      w.ChainID,
		"symbol":        h.Chain.Symbol,
	})
}

// Summary кошелек и раунд одним запросом
func (h *Handler) Summary(c *gin.Context) {
	s, err := h.Engine.Summary(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// Notices последние уведомления, ?limit=
func (h *Handler) Notices(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	c.JSON(http.StatusOK, gin.H{"notices": h.Engine.Notices(limit)})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": h.Version})
}

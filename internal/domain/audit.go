package domain

import "time"

// Notice сообщение для пользователя о том, что произошло с его раундом
type Notice struct {
	ID        string                 `json:"id"`
	Level     string                 `json:"level"`
	Category  string                 `json:"category"`
	Action    string                 `json:"action"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

const (
	NoticeLevelInfo  = "info"
	NoticeLevelWarn  = "warn"
	NoticeLevelError = "error"
)

// Категории уведомлений
const (
	NoticeCategoryGame        = "game"
	NoticeCategoryTx          = "tx"
	NoticeCategorySync        = "sync"
	NoticeCategoryConsistency = "consistency"
)

const (
	// Раунд
	NoticeActionBetPlaced  = "bet_placed"
	NoticeActionRoundStart = "round_start"
	NoticeActionBusted     = "busted"
	NoticeActionCashedOut  = "cashed_out"

	// Транзакции
	NoticeActionTxFailed   = "tx_failed"
	NoticeActionRolledBack = "rolled_back"

	// Синхронизация
	NoticeActionSettleGiveUp = "settle_give_up"
	NoticeActionReadFailed   = "read_failed"

	// Расхождения
	NoticeActionAlreadyActive = "already_active"
	NoticeActionCorrected     = "corrected"
)

package domain

import "time"

// SnapshotSource откуда пришел снапшот
type SnapshotSource string

const (
	SourceCache      SnapshotSource = "cache"
	SourceRemote     SnapshotSource = "remote"
	SourceStaleError SnapshotSource = "stale-error"
)

// SyncSnapshot текущее известное состояние. Data == nil значит сессии нет.
// Seq номер чтения, чьи данные лежат в снапшоте, растет монотонно
type SyncSnapshot struct {
	Data      *GameSession   `json:"data"`
	FetchedAt time.Time      `json:"fetched_at"`
	Source    SnapshotSource `json:"source"`
	Seq       uint64         `json:"-"`
}

// Age возраст снапшота относительно now
func (s SyncSnapshot) Age(now time.Time) time.Duration {
	if s.FetchedAt.IsZero() {
		return 0
	}
	return now.Sub(s.FetchedAt)
}

type PatchKind string

const (
	PatchReveal  PatchKind = "reveal"
	PatchCashOut PatchKind = "cashout"
)

// PatchEntry локальное действие, еще не подтвержденное контрактом
type PatchEntry struct {
	Kind      PatchKind `json:"kind"`
	Tile      int       `json:"tile"`
	AppliedAt time.Time `json:"applied_at"`
}

// OptimisticPatch упорядочен по времени применения
type OptimisticPatch []PatchEntry

// Has есть ли незавершенное открытие ячейки
func (p OptimisticPatch) Has(tile int) bool {
	for _, e := range p {
		if e.Kind == PatchReveal && e.Tile == tile {
			return true
		}
	}
	return false
}

// HasCashOut отправлен ли вывод
func (p OptimisticPatch) HasCashOut() bool {
	for _, e := range p {
		if e.Kind == PatchCashOut {
			return true
		}
	}
	return false
}

// Without копия без записи об открытии ячейки
func (p OptimisticPatch) Without(tile int) OptimisticPatch {
	out := make(OptimisticPatch, 0, len(p))
	for _, e := range p {
		if e.Kind == PatchReveal && e.Tile == tile {
			continue
		}
		out = append(out, e)
	}
	return out
}

// WithoutCashOut копия без записи о выводе
func (p OptimisticPatch) WithoutCashOut() OptimisticPatch {
	out := make(OptimisticPatch, 0, len(p))
	for _, e := range p {
		if e.Kind == PatchCashOut {
			continue
		}
		out = append(out, e)
	}
	return out
}

type TxKind string

const (
	TxBet     TxKind = "bet"
	TxReveal  TxKind = "reveal"
	TxCashOut TxKind = "cashout"
)

// TxResult принятая сетью транзакция
type TxResult struct {
	Hash        string    `json:"hash"`
	Kind        TxKind    `json:"kind"`
	SubmittedAt time.Time `json:"submitted_at"`
}

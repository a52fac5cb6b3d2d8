package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/ifeelsam/core-bet/internal/domain"
	"github.com/ifeelsam/core-bet/internal/logger"
	"github.com/jonboulle/clockwork"
)

const defaultNoticeCapacity = 100

// AuditService журнал уведомлений текущей сессии, хранится в памяти
type AuditService struct {
	mu       sync.RWMutex
	clock    clockwork.Clock
	capacity int
	notices  []domain.Notice
	subs     map[int]func(domain.Notice)
	nextSub  int
}

// создает новый журнал
func NewAuditService(clock clockwork.Clock) *AuditService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AuditService{
		clock:    clock,
		capacity: defaultNoticeCapacity,
		subs:     make(map[int]func(domain.Notice)),
	}
}

// Log добавляет уведомление и рассылает его подписчикам
func (s *AuditService) Log(ctx context.Context, level, category, action, message string, details map[string]interface{}) domain.Notice {
	n := domain.Notice{
		ID:        uuid.NewString(),
		Level:     level,
		Category:  category,
		Action:    action,
		Message:   message,
		Details:   details,
		CreatedAt: s.clock.Now(),
	}

	s.mu.Lock()
	s.notices = append(s.notices, n)
	if len(s.notices) > s.capacity {
		s.notices = s.notices[len(s.notices)-s.capacity:]
	}
	subs := make([]func(domain.Notice), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	logger.Get().InfoContext(ctx, "audit: "+message, "level", level, "category", category, "action", action)

	for _, fn := range subs {
		fn(n)
	}
	return n
}

// логирует ошибку транзакции
func (s *AuditService) LogTxFailure(ctx context.Context, kind domain.TxKind, err error) {
	s.Log(ctx, domain.NoticeLevelError, domain.NoticeCategoryTx, domain.NoticeActionTxFailed,
		"транзакция не прошла: "+err.Error(),
		map[string]interface{}{"kind": string(kind)})
}

// логирует расхождение, исправленное по данным контракта
func (s *AuditService) LogConsistency(ctx context.Context, action, message string, details map[string]interface{}) {
	s.Log(ctx, domain.NoticeLevelWarn, domain.NoticeCategoryConsistency, action, message, details)
}

// Recent последние limit уведомлений, новые в конце
func (s *AuditService) Recent(limit int) []domain.Notice {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.notices) {
		limit = len(s.notices)
	}
	out := make([]domain.Notice, limit)
	copy(out, s.notices[len(s.notices)-limit:])
	return out
}

// Subscribe подписка на новые уведомления
func (s *AuditService) Subscribe(fn func(domain.Notice)) (unsubscribe func()) {
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

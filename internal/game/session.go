package game

import (
	"sync"

	"github.com/ifeelsam/core-bet/internal/domain"
)

// Transition переход машины состояний после очередного снапшота
type Transition struct {
	From      domain.Phase   `json:"from"`
	To        domain.Phase   `json:"to"`
	Outcome   domain.Outcome `json:"outcome,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Revealed  int            `json:"revealed"`
}

// Machine жизненный цикл раунда: idle -> active -> resolved -> idle.
// Только подтвержденные контрактом снапшоты двигают машину вперед,
// назад в idle ее возвращает только новая ставка.
type Machine struct {
	mu           sync.RWMutex
	phase        domain.Phase
	outcome      domain.Outcome
	sessionID    string
	revealed     int
	acknowledged string // завершенная сессия, которую игрок уже закрыл новой ставкой
}

func NewMachine() *Machine {
	return &Machine{phase: domain.PhaseIdle}
}

// Observe применяет подтвержденный снапшот. ok == false если состояние не изменилось
func (m *Machine) Observe(s *domain.GameSession) (Transition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.phase

	if s == nil {
		if m.phase != domain.PhaseActive {
			return Transition{}, false
		}
		// контракт не знает об активной игре
		m.set(domain.PhaseIdle, domain.OutcomeNone, "", 0)
		return m.transition(from), true
	}

	// завершенный раунд не оживает: поздний снапшот той же сессии игнорируется
	if m.phase == domain.PhaseResolved && m.sessionID == s.SessionID {
		return Transition{}, false
	}
	if s.SessionID == m.acknowledged && m.phase == domain.PhaseIdle {
		return Transition{}, false
	}

	busted := s.Busted()

	if s.Active && !busted {
		if m.phase == domain.PhaseActive && m.sessionID == s.SessionID {
			if s.RevealedCount == m.revealed {
				return Transition{}, false
			}
			m.revealed = s.RevealedCount
		} else {
			m.set(domain.PhaseActive, domain.OutcomeNone, s.SessionID, s.RevealedCount)
		}
		return m.transition(from), true
	}

	var outcome domain.Outcome
	switch {
	case busted:
		outcome = domain.OutcomeBusted
	case s.CashedOut:
		outcome = domain.OutcomeCashedOut
	default:
		// закрыта без мины и без вывода: такой сессии у контракта быть не должно
		if m.phase != domain.PhaseActive {
			return Transition{}, false
		}
		m.set(domain.PhaseIdle, domain.OutcomeNone, "", 0)
		return m.transition(from), true
	}
	m.set(domain.PhaseResolved, outcome, s.SessionID, s.RevealedCount)
	return m.transition(from), true
}

// BeginRound локальный сброс перед новой ставкой: resolved -> idle
func (m *Machine) BeginRound() (Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.phase
	switch m.phase {
	case domain.PhaseActive:
		return Transition{}, domain.Validation(domain.ErrGameAlreadyActive)
	case domain.PhaseResolved:
		m.acknowledged = m.sessionID
		m.set(domain.PhaseIdle, domain.OutcomeNone, "", 0)
	}
	return m.transition(from), nil
}

// Reset полный сброс при отвязке кошелька
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(domain.PhaseIdle, domain.OutcomeNone, "", 0)
	m.acknowledged = ""
}

func (m *Machine) Phase() domain.Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

func (m *Machine) Outcome() domain.Outcome {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.outcome
}

func (m *Machine) SessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID
}

// Acknowledged завершенная сессия, скрытая новой ставкой
func (m *Machine) Acknowledged() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.acknowledged
}

// IsActive по нему поллер решает, продолжать ли опрос
func (m *Machine) IsActive() bool {
	return m.Phase() == domain.PhaseActive
}

func (m *Machine) CanReveal() bool {
	return m.IsActive()
}

func (m *Machine) CanCashOut() bool {
	return m.IsActive()
}

func (m *Machine) CanBet() bool {
	return !m.IsActive()
}

func (m *Machine) set(phase domain.Phase, outcome domain.Outcome, sessionID string, revealed int) {
	m.phase = phase
	m.outcome = outcome
	m.sessionID = sessionID
	m.revealed = revealed
}

func (m *Machine) transition(from domain.Phase) Transition {
	return Transition{
		From:      from,
		To:        m.phase,
		Outcome:   m.outcome,
		SessionID: m.sessionID,
		Revealed:  m.revealed,
	}
}

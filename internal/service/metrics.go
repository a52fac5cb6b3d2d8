package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "corebet",
		Subsystem: "sync",
		Name:      "fetches_total",
		Help:      "Снапшоты, отданные синхронизатором, по источнику.",
	}, []string{"source"})

	syncReadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "corebet",
		Subsystem: "sync",
		Name:      "read_errors_total",
		Help:      "Ошибки чтения getGameStatus.",
	})

	syncDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "corebet",
		Subsystem: "sync",
		Name:      "stale_reads_discarded_total",
		Help:      "Ответы, пришедшие после более свежего чтения.",
	})

	syncReadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "corebet",
		Subsystem: "sync",
		Name:      "read_duration_seconds",
		Help:      "Длительность чтения состояния контракта.",
		Buckets:   prometheus.DefBuckets,
	})

	txSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "corebet",
		Subsystem: "tx",
		Name:      "submissions_total",
		Help:      "Отправленные транзакции по типу и результату.",
	}, []string{"kind", "result"})

	optimisticRollbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "corebet",
		Subsystem: "reconciler",
		Name:      "rollbacks_total",
		Help:      "Откаты оптимистичных изменений.",
	}, []string{"kind"})

	settleGiveUps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "corebet",
		Subsystem: "reconciler",
		Name:      "settle_give_ups_total",
		Help:      "Транзакции, подтверждение которых так и не увидели.",
	}, []string{"kind"})

	sessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "corebet",
		Subsystem: "session",
		Name:      "transitions_total",
		Help:      "Переходы машины состояний раунда.",
	}, []string{"from", "to", "outcome"})
)

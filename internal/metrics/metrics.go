// Package metrics holds the Prometheus instruments of the sync engine.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vdavid/threadsync/internal/models"
)

// Skip reasons reported by MessageSkipped.
const (
	SkipMissingMessageID = "missing_message_id"
	SkipParseError       = "parse_error"
	SkipDuplicate        = "duplicate"
)

// Metrics groups the counters and histograms exported by the engine.
type Metrics struct {
	SyncRuns                *prometheus.CounterVec
	SyncDuration            *prometheus.HistogramVec
	MessagesIngested        prometheus.Counter
	MessagesSkipped         *prometheus.CounterVec
	RepliesSent             *prometheus.CounterVec
	ConversationsCreated    prometheus.Counter
	ConversationsRecomputed prometheus.Counter
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SyncRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threadsync_sync_runs_total",
				Help: "Number of account sync calls by outcome",
			},
			[]string{"outcome"},
		),
		SyncDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "threadsync_sync_duration_seconds",
				Help:    "Duration of account sync calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		MessagesIngested: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "threadsync_messages_ingested_total",
				Help: "Number of new messages stored by sync",
			},
		),
		MessagesSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threadsync_messages_skipped_total",
				Help: "Number of fetched messages not stored, by reason",
			},
			[]string{"reason"},
		),
		RepliesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threadsync_replies_total",
				Help: "Number of reply attempts by result",
			},
			[]string{"result"},
		),
		ConversationsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "threadsync_conversations_created_total",
				Help: "Number of conversations created",
			},
		),
		ConversationsRecomputed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "threadsync_conversations_recomputed_total",
				Help: "Number of conversations rebuilt from their messages",
			},
		),
	}
}

// ObserveSync records one finished sync call.
func (m *Metrics) ObserveSync(result models.SyncResult, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := string(result.Outcome)
	m.SyncRuns.WithLabelValues(outcome).Inc()
	m.SyncDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	m.MessagesIngested.Add(float64(result.NewMessageCount))
}

// MessageSkipped records a fetched message that was not stored.
func (m *Metrics) MessageSkipped(reason string) {
	if m == nil {
		return
	}
	m.MessagesSkipped.WithLabelValues(reason).Inc()
}

// ReplySent records a reply attempt.
func (m *Metrics) ReplySent(success bool) {
	if m == nil {
		return
	}
	result := "failed"
	if success {
		result = "sent"
	}
	m.RepliesSent.WithLabelValues(result).Inc()
}

// ConversationCreated records a new conversation.
func (m *Metrics) ConversationCreated() {
	if m == nil {
		return
	}
	m.ConversationsCreated.Inc()
}

// ConversationRecomputed records a rebuild from scratch.
func (m *Metrics) ConversationRecomputed() {
	if m == nil {
		return
	}
	m.ConversationsRecomputed.Inc()
}

// Package metrics provides Prometheus metrics for agent-relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RelayTotal counts relayed user messages by outcome.
	RelayTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentrelay",
			Name:      "relay_total",
			Help:      "Total number of relayed user messages",
		},
		[]string{"outcome"},
	)

	// RelayDuration measures end-to-end relay duration per message.
	RelayDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "agentrelay",
			Name:      "relay_duration_seconds",
			Help:      "Duration of relaying one user message in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// TokenRefreshTotal counts credential refresh attempts by kind.
	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentrelay",
			Name:      "token_refresh_total",
			Help:      "Total number of credential refresh attempts",
		},
		[]string{"credential", "status"},
	)

	// DeliveryTotal counts outbound message deliveries to the platform.
	DeliveryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentrelay",
			Name:      "delivery_total",
			Help:      "Total number of outbound message deliveries",
		},
		[]string{"status"},
	)

	// WebhookSignatureTotal counts webhook signature verification results.
	WebhookSignatureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentrelay",
			Name:      "webhook_signature_total",
			Help:      "Total number of webhook signature verifications",
		},
		[]string{"result"},
	)

	// RedisConnectionStatus tracks cache store connection status.
	RedisConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentrelay",
			Name:      "redis_connection_status",
			Help:      "Redis connection status (1 = connected, 0 = disconnected)",
		},
	)
)

// Relay outcome labels.
const (
	OutcomeAgent    = "agent"
	OutcomeFallback = "fallback"
	OutcomeStatic   = "static"
)

// RecordRelay records one relayed message.
func RecordRelay(outcome string, duration float64) {
	RelayTotal.WithLabelValues(outcome).Inc()
	RelayDuration.Observe(duration)
}

// RecordTokenRefresh records one credential refresh attempt.
func RecordTokenRefresh(credential, status string) {
	TokenRefreshTotal.WithLabelValues(credential, status).Inc()
}

// RecordDelivery records one outbound delivery attempt.
func RecordDelivery(status string) {
	DeliveryTotal.WithLabelValues(status).Inc()
}

// RecordSignature records one webhook signature verification.
func RecordSignature(result string) {
	WebhookSignatureTotal.WithLabelValues(result).Inc()
}

// SetRedisConnected sets the store connection status to connected.
func SetRedisConnected() {
	RedisConnectionStatus.Set(1)
}

// SetRedisDisconnected sets the store connection status to disconnected.
func SetRedisDisconnected() {
	RedisConnectionStatus.Set(0)
}

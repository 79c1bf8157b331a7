// Package metrics provides Prometheus metrics for sessions, transfers and
// the bridge.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sftpdesk/sftpdesk/internal/apperr"
)

var (
	// Session metrics
	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sftpdesk_sessions_active",
			Help: "Number of registered SFTP sessions",
		},
	)

	connectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sftpdesk_connect_attempts_total",
			Help: "Connection attempts by purpose and outcome",
		},
		[]string{"purpose", "result"},
	)

	// Transfer metrics
	transfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sftpdesk_transfers_total",
			Help: "Finished transfers by direction and result",
		},
		[]string{"direction", "result"},
	)

	transferBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sftpdesk_transfer_bytes_total",
			Help: "Bytes moved by direction, including partial transfers",
		},
		[]string{"direction"},
	)

	transferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sftpdesk_transfer_duration_seconds",
			Help:    "Wall time of finished transfers",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"direction"},
	)

	transfersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sftpdesk_transfers_active",
			Help: "Transfers currently holding a worker slot",
		},
	)

	// Remote housekeeping operations (list, mkdir, delete)
	remoteOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sftpdesk_remote_operations_total",
			Help: "Remote housekeeping operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	// Bridge metrics
	bridgeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sftpdesk_bridge_requests_total",
			Help: "Bridge commands by command and result",
		},
		[]string{"command", "result"},
	)

	bridgeClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sftpdesk_bridge_clients",
			Help: "Connected bridge clients",
		},
	)

	eventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sftpdesk_events_dropped_total",
			Help: "Events dropped because a subscriber buffer was full",
		},
		[]string{"event"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// result maps an error to a low-cardinality label: "success" or its kind.
func result(err error) string {
	if err == nil {
		return "success"
	}
	return string(apperr.KindOf(err))
}

// SetSessionsActive sets the registered session count.
func SetSessionsActive(n int) {
	sessionsActive.Set(float64(n))
}

// RecordConnectAttempt records a test or connect attempt.
func RecordConnectAttempt(purpose string, err error) {
	connectAttemptsTotal.WithLabelValues(purpose, result(err)).Inc()
}

// RecordTransfer records a finished transfer.
func RecordTransfer(direction string, bytes int64, duration time.Duration, err error) {
	transfersTotal.WithLabelValues(direction, result(err)).Inc()
	transferBytesTotal.WithLabelValues(direction).Add(float64(bytes))
	transferDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

// TransferStarted and TransferFinished track worker slot usage.
func TransferStarted()  { transfersActive.Inc() }
func TransferFinished() { transfersActive.Dec() }

// RecordRemoteOp records a list/mkdir/delete call.
func RecordRemoteOp(operation string, err error) {
	remoteOpsTotal.WithLabelValues(operation, result(err)).Inc()
}

// RecordBridgeRequest records one handled bridge command.
func RecordBridgeRequest(command string, err error) {
	bridgeRequestsTotal.WithLabelValues(command, result(err)).Inc()
}

// SetBridgeClients sets the connected client count.
func SetBridgeClients(n int) {
	bridgeClients.Set(float64(n))
}

// RecordEventDropped counts an event lost to a full subscriber.
func RecordEventDropped(eventType string) {
	eventsDroppedTotal.WithLabelValues(eventType).Inc()
}

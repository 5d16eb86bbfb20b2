// Package metrics defines and registers the Prometheus collectors the
// proxy tracks across its upstream servers and downstream clients.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "radsecd"

// M holds every metric handle this package registers. The package's
// init registers them all once, before any caller can use them.
var M = struct {
	RequestsTotal       *prometheus.CounterVec
	RepliesTotal        *prometheus.CounterVec
	RetriesTotal        *prometheus.CounterVec
	DuplicatesTotal     *prometheus.CounterVec
	RejectsTotal        *prometheus.CounterVec
	DroppedRepliesTotal *prometheus.CounterVec
	StatusProbesTotal   *prometheus.CounterVec
	ReconnectsTotal     *prometheus.CounterVec

	ConnectionUp     *prometheus.GaugeVec
	LostStatSrv      *prometheus.GaugeVec
	RequestsInFlight *prometheus.GaugeVec
}{}

func init() {
	initMetrics()
}

// initMetrics builds every collector and registers it with the default
// Prometheus registry through promauto; a second call would register
// duplicate collectors and panic.
func initMetrics() {
	const sub = "proxy"

	M.RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: sub,
		Name:      "requests_total",
		Help:      "Access-Request and Accounting-Request packets accepted from downstream clients, by client and code.",
	}, []string{"client", "code"})

	M.RepliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: sub,
		Name:      "replies_total",
		Help:      "Reply packets forwarded to downstream clients, by upstream server and code.",
	}, []string{"server", "code"})

	M.RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: sub,
		Name:      "retries_total",
		Help:      "Retransmissions of an unanswered request to an upstream server.",
	}, []string{"server"})

	M.DuplicatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: sub,
		Name:      "duplicates_total",
		Help:      "Access-Requests dropped because a matching request was already in flight.",
	}, []string{"client"})

	M.RejectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: sub,
		Name:      "local_rejects_total",
		Help:      "Access-Rejects synthesized locally because a matched realm had no usable upstream server.",
	}, []string{"realm"})

	M.DroppedRepliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: sub,
		Name:      "dropped_replies_total",
		Help:      "Upstream replies dropped for failing validation (bad Response Authenticator, bad Message-Authenticator, stale or unknown request id).",
	}, []string{"server", "reason"})

	M.StatusProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: sub,
		Name:      "status_server_probes_total",
		Help:      "Status-Server probes synthesized by the writer for a server.",
	}, []string{"server"})

	M.ReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: sub,
		Name:      "tls_reconnects_total",
		Help:      "TLS (re)connection attempts to an upstream server, by outcome.",
	}, []string{"server", "outcome"})

	M.ConnectionUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: sub,
		Name:      "connection_up",
		Help:      "1 if a server's connection is currently usable (ConnectionOK), 0 otherwise.",
	}, []string{"server"})

	M.LostStatSrv = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: sub,
		Name:      "lost_status_server_probes",
		Help:      "Consecutive unanswered Status-Server probes for a server.",
	}, []string{"server"})

	M.RequestsInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: sub,
		Name:      "requests_in_flight",
		Help:      "Occupied slots in a server's fixed request table.",
	}, []string{"server"})
}

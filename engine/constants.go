// Package engine wires the packet codec, crypto helpers, peer table,
// realm router, reply queues and request tables into the running
// proxy: UDP listeners/senders, the TLS listener/acceptor, the
// per-upstream writer and reconnection state machine, and the
// ingress/egress handlers.
package engine

import "time"

// Protocol timing, retry, and certificate-chain constants.
const (
	RequestRetries     = 3
	RequestExpiry      = 20 * time.Second
	StatusServerPeriod = 25 * time.Second
	MaxCertDepth       = 5
)

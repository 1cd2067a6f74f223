// Package metrics exposes the chat gateway's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "community_chat"

var (
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections",
		Help:      "Live WebSocket connections on this process.",
	})

	Rooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rooms",
		Help:      "Communities with at least one joined connection on this process.",
	})

	InboundEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inbound_events_total",
		Help:      "Client events handled, by type and outcome.",
	}, []string{"type", "outcome"})

	Broadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcasts_total",
		Help:      "Events fanned out to rooms, by type.",
	}, []string{"type"})

	DroppedClients = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "slow_clients_dropped_total",
		Help:      "Connections dropped because their send buffer was full.",
	})

	PresenceSwept = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "presence_swept_total",
		Help:      "Stale presence rows removed by the sweeper.",
	})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "latest_cache_lookups_total",
		Help:      "Latest-messages cache lookups, by result.",
	}, []string{"result"})
)

// Outcome labels for InboundEvents.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Package metrics exposes the prometheus counters and gauges that
// supplement the room engine's op/broadcast/connection lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OpsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crdtcollab",
		Name:      "ops_ingested_total",
		Help:      "CRDT ops accepted by a room's tree, by op kind.",
	}, []string{"kind"})

	OpsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crdtcollab",
		Name:      "ops_dropped_total",
		Help:      "CRDT ops dropped during application, by error kind.",
	}, []string{"reason"})

	OpsBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crdtcollab",
		Name:      "ops_broadcast_total",
		Help:      "CRDT ops relayed to at least one other connection.",
	})

	EnvelopesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crdtcollab",
		Name:      "envelopes_dropped_total",
		Help:      "Inbound envelopes rejected, by error kind.",
	}, []string{"reason"})

	PeersDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crdtcollab",
		Name:      "peers_dropped_total",
		Help:      "Connections dropped due to transport back-pressure on broadcast.",
	})

	DurabilityFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crdtcollab",
		Name:      "durability_failures_total",
		Help:      "Durability hook calls that returned an error, by hook method.",
	}, []string{"method"})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "crdtcollab",
		Name:      "active_rooms",
		Help:      "Rooms currently held in the session registry.",
	})

	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "crdtcollab",
		Name:      "active_connections",
		Help:      "Connections currently attached across all rooms.",
	})
)

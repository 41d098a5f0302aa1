package room

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the Prometheus collectors of the room core
type Metrics struct {
	joins           prometheus.Counter
	leaves          *prometheus.CounterVec
	signalsRelayed  *prometheus.CounterVec
	signalsDropped  prometheus.Counter
	strokes         prometheus.Counter
	clears          prometheus.Counter
	persistFailures prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when it is not nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collab_room_joins_total",
			Help: "Total participants that joined a room.",
		}),
		leaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collab_room_leaves_total",
			Help: "Total participants that left a room, by cause.",
		}, []string{"reason"}),
		signalsRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collab_signals_relayed_total",
			Help: "Signaling messages delivered to their target, by type.",
		}, []string{"type"}),
		signalsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collab_signals_dropped_total",
			Help: "Signaling messages dropped because the target was not connected.",
		}),
		strokes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collab_whiteboard_strokes_total",
			Help: "Strokes broadcast to whiteboards.",
		}),
		clears: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collab_whiteboard_clears_total",
			Help: "Whiteboard clear operations.",
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collab_whiteboard_persist_failures_total",
			Help: "Stroke log writes that failed or were dropped.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.joins, m.leaves, m.signalsRelayed, m.signalsDropped,
			m.strokes, m.clears, m.persistFailures)
	}
	return m
}

// RegisterGauges exposes live room and participant counts from registry,
// plus the persistence backlog when depth is not nil.
func RegisterGauges(reg prometheus.Registerer, registry *Registry, depth func() int) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "collab_rooms",
			Help: "Current number of rooms with at least one participant.",
		}, func() float64 {
			rooms, _ := registry.Count()
			return float64(rooms)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "collab_participants",
			Help: "Current number of participants across all rooms.",
		}, func() float64 {
			_, participants := registry.Count()
			return float64(participants)
		}),
	)

	if depth != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "collab_persist_queue_depth",
			Help: "Stroke log jobs waiting for a persistence worker.",
		}, func() float64 {
			return float64(depth())
		}))
	}
}

package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vizor/fleethealth/server/internal/alerts"
	"github.com/vizor/fleethealth/server/internal/store"
	"github.com/vizor/fleethealth/server/internal/ws"
)

const namespace = "fleethealth_server"

// newRegistry returns the registry served on /metrics: Go runtime and
// process collectors plus gauges read from the live server state.
func newRegistry(st *store.Store, eng *alerts.Engine, hub *ws.Hub) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected WebSocket clients.",
		}, func() float64 { return float64(hub.Subscribers()) }),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerts_firing",
			Help:      "Currently firing alerts.",
		}, func() float64 { return float64(eng.Firing()) }),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_batches",
			Help:      "Batches in the loaded report set.",
		}, func() float64 {
			e, ok := st.Get()
			if !ok {
				return 0
			}
			return float64(len(e.Snapshot.Batches()))
		}),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_age_seconds",
			Help:      "Seconds since the report set was last loaded; -1 before the first load.",
		}, func() float64 {
			e, ok := st.Get()
			if !ok {
				return -1
			}
			return time.Since(e.LoadedAt).Seconds()
		}),
	)
	return reg
}

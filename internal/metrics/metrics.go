// SPDX-License-Identifier: MIT
//
// Package metrics exposes Prometheus instruments for the analysis pipeline
// and the plugin registry. Counter, gauge and histogram updates are atomic
// operations, so they are safe on the audio callback.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"vizpipe/internal/log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vizpipe"

var (
	// BlocksProcessed counts sample blocks seen by the pipeline.
	BlocksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocks_processed_total",
		Help:      "Sample blocks analyzed by the pipeline",
	})

	// InsufficientBlocks counts blocks shorter than the transform size.
	InsufficientBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocks_insufficient_total",
		Help:      "Blocks shorter than the transform size (empty spectrum)",
	})

	// BeatsDetected counts blocks flagged as beats.
	BeatsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "beats_detected_total",
		Help:      "Blocks flagged as beat onsets",
	})

	// TempoBPM is the current smoothed tempo estimate.
	TempoBPM = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tempo_bpm",
		Help:      "Smoothed tempo estimate in beats per minute",
	})

	// Dispatches counts frame deliveries by result: "delivered", "no_active",
	// or "parked" when the active plugin is being switched out.
	Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatches_total",
		Help:      "Frame dispatches to the active plugin by result",
	}, []string{"result"})

	// PluginPanics counts Render calls that panicked and were recovered.
	PluginPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "plugin_panics_total",
		Help:      "Recovered panics in plugin Render by plugin",
	}, []string{"plugin"})

	// PluginActive is 1 for the active plugin and 0 for the others.
	PluginActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "plugin_active",
		Help:      "1 if the plugin is the active visualization",
	}, []string{"plugin"})

	// Activations counts successful plugin activations.
	Activations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "plugin_activations_total",
		Help:      "Successful plugin activations",
	})

	// BlockDuration observes the time spent analyzing and dispatching one block.
	BlockDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "block_processing_seconds",
		Help:      "Time spent analyzing and dispatching one block",
		Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 12), // 50us .. ~100ms
	})
)

// Pre-resolved label children so the hot path does not hash label values.
var (
	DispatchDelivered = Dispatches.WithLabelValues("delivered")
	DispatchNoActive  = Dispatches.WithLabelValues("no_active")
	DispatchParked    = Dispatches.WithLabelValues("parked")
)

// Server serves /metrics over HTTP.
type Server struct {
	server *http.Server
}

// NewServer creates a metrics server listening on addr once Start is called.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves in a background goroutine.
func (s *Server) Start() {
	go func() {
		log.Infof("Metrics: Serving Prometheus metrics on %s/metrics", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics: Server error: %v", err)
		}
	}()
}

// Close shuts the server down, waiting up to five seconds for scrapes in flight.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

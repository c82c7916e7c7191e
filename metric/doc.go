// Package metric provides Prometheus-based metrics collection for rmw-zenoh
// internals: graph size, liveliness events, buffer pool utilization, and
// message queue drops.
//
// The package offers a centralized metrics registry managing both core
// platform metrics (Metrics type) and component-specific metrics registered
// through the MetricsRegistrar interface. Callers expose the underlying
// prometheus.Registry however they see fit, typically behind promhttp.Handler.
//
// # Architecture
//
// The package follows a two-layer design:
//
//  1. Core Metrics: rmw-zenoh level metrics automatically registered (Metrics type)
//  2. Component Registry: extensible registration for component-specific metrics (MetricsRegistrar interface)
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//
//	mux := http.NewServeMux()
//	mux.Handle("/metrics", promhttp.HandlerFor(registry.PrometheusRegistry(), promhttp.HandlerOpts{}))
//	go http.ListenAndServe(":9090", mux)
//
//	coreMetrics := registry.CoreMetrics()
//	coreMetrics.RecordGraphNodes(4)
//	coreMetrics.RecordQueueDropped("sub://robot/cmd_vel")
//
// # Core Metrics
//
// The package automatically registers core metrics tracking:
//
//   - Service and message activity: rmw_zenoh_service_status, rmw_zenoh_messages_received_total,
//     rmw_zenoh_messages_processed_total, rmw_zenoh_messages_published_total,
//     rmw_zenoh_processing_duration_seconds, rmw_zenoh_errors_total, rmw_zenoh_health_status
//   - Fabric connection: rmw_zenoh_nats_connected, rmw_zenoh_nats_rtt_milliseconds,
//     rmw_zenoh_nats_reconnects_total, rmw_zenoh_nats_circuit_breaker
//   - Graph size: rmw_zenoh_graph_nodes
//   - Events: rmw_zenoh_events_triggered_total (by kind)
//   - Message queue drops: rmw_zenoh_queue_dropped_total (by topic)
//   - Buffer pool utilization: rmw_zenoh_bufpool_outstanding_bytes
//
// # Service-Specific Metrics
//
// Components can register custom metrics through the registry:
//
//	requestCounter := prometheus.NewCounter(prometheus.CounterOpts{
//	    Name: "query_requests_total",
//	    Help: "Total number of distributed queries issued",
//	})
//	err := registry.RegisterCounter("client", "query_requests_total", requestCounter)
//
// # Vector Metrics with Labels
//
//	httpRequestsVec := prometheus.NewCounterVec(
//	    prometheus.CounterOpts{
//	        Name: "publish_total",
//	        Help: "Total publications by topic",
//	    },
//	    []string{"topic"},
//	)
//	err := registry.RegisterCounterVec("publisher", "publish_total", httpRequestsVec)
//	httpRequestsVec.WithLabelValues("robot/cmd_vel").Inc()
//
// # MetricsRegistrar Interface
//
// Components implement the MetricsRegistrar interface for dependency injection:
//
//	type Publisher struct {
//	    metrics metric.MetricsRegistrar
//	}
//
//	func NewPublisher(metrics metric.MetricsRegistrar) *Publisher {
//	    counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "messages_sent_total"})
//	    metrics.RegisterCounter("publisher", "messages_sent_total", counter)
//	    return &Publisher{metrics: metrics}
//	}
//
// This enables testing with mock registrars and provides loose coupling.
//
// # Thread Safety
//
// All registry operations are thread-safe:
//   - Registration methods use mutex protection
//   - Metric recording is lock-free (Prometheus guarantee)
//   - CoreMetrics() returns a thread-safe shared instance
//   - PrometheusRegistry() is safe for concurrent access
//
// # Error Handling
//
// Registration methods return errors for:
//
//   - Duplicate registration: attempting to register same metric name twice
//   - Prometheus conflicts: internal Prometheus registration failures
//
// A nil metric is not checked for by the registry before it is handed to Prometheus.
//
// # Architecture Integration
//
// The metric package integrates with:
//
//   - graph: node count (rmw_zenoh_graph_nodes), set by zctx as the liveliness watch runs
//   - bufpool: allocation and reuse counters
//   - msgqueue: a per-topic drop counter is registered (RecordQueueDropped); msgqueue does not update it
//   - health: health status can be mirrored as metrics
//
// Data flow:
//
//	Component → Core Metrics → Prometheus Registry → promhttp.Handler → Prometheus
//
// # Design Decisions
//
// Centralized Registry: chose a centralized registry over distributed
// collectors to keep a consistent metric namespace and avoid duplication.
//
// Core vs Component Metrics: separated rmw-zenoh level metrics (core) from
// component-specific metrics to distinguish graph/session health from
// per-entity behavior.
package metric

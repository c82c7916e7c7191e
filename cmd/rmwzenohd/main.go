// Package main runs a small demo daemon around the core: it opens a
// Context against a fabric router, declares one node carrying a
// loopback publisher/subscription pair, serves Prometheus metrics and
// a health endpoint, and logs every heartbeat it takes until a signal
// arrives.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codebot/rmw-zenoh/config"
	"github.com/codebot/rmw-zenoh/entity"
	"github.com/codebot/rmw-zenoh/events"
	"github.com/codebot/rmw-zenoh/graph"
	"github.com/codebot/rmw-zenoh/health"
	"github.com/codebot/rmw-zenoh/waitset"
	"github.com/codebot/rmw-zenoh/zctx"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "rmwzenohd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("rmwzenohd exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	fabricURL := flag.String("fabric-url", "", "fabric router URL (defaults to the built-in config default)")
	routerCheckAttempts := flag.Int("router-check-attempts", 0, "router-reachability poll attempts before giving up (0 disables)")
	metricsAddr := flag.String("metrics-addr", ":9400", "address to serve /metrics and /healthz on")
	logLevel := flag.String("log-level", "info", "debug|info|warn|error")
	logFormat := flag.String("log-format", "json", "json|text")
	flag.Parse()

	logger := setupLogger(*logLevel, *logFormat)
	slog.SetDefault(logger)
	logger.Info("starting rmwzenohd", "version", Version, "build_time", BuildTime)

	cfg := config.Default()
	if *fabricURL != "" {
		cfg.FabricURL = *fabricURL
	}
	if *routerCheckAttempts > 0 {
		cfg.RouterCheckAttempts = *routerCheckAttempts
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zc, err := zctx.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open context: %w", err)
	}
	defer zc.Shutdown(context.Background())

	monitor := health.NewMonitor()
	monitor.UpdateHealthy("fabric", "session open")

	srv := startHTTPServer(*metricsAddr, zc, monitor, logger)
	defer srv.Shutdown(context.Background())

	demoNode, err := zc.CreateNode(ctx, "demo", graph.NodeInfo{Namespace: "/", NodeName: "rmwzenohd_demo"})
	if err != nil {
		return fmt.Errorf("create demo node: %w", err)
	}
	defer demoNode.Shutdown(context.Background())

	topic := graph.TopicInfo{Name: "/rmwzenohd/heartbeat", TypeName: "std_msgs/String"}
	qos := graph.QoS{Reliability: graph.ReliabilityReliable, Depth: 8}

	pub, err := demoNode.CreatePublisher(ctx, "heartbeat_pub", "rmwzenohd.heartbeat", topic, qos, events.NewManager())
	if err != nil {
		return fmt.Errorf("create demo publisher: %w", err)
	}

	sub, err := demoNode.CreateSubscription(ctx, "heartbeat_sub", "rmwzenohd.heartbeat", topic, qos, events.NewManager())
	if err != nil {
		return fmt.Errorf("create demo subscription: %w", err)
	}

	go publishHeartbeats(ctx, pub, logger)

	monitor.UpdateHealthy("demo_node", "publisher and subscription declared")
	logger.Info("rmwzenohd ready", "metrics_addr", *metricsAddr)

	takeHeartbeats(ctx, sub, logger)

	logger.Info("rmwzenohd shutting down")
	return nil
}

func publishHeartbeats(ctx context.Context, pub *entity.Publisher, logger *slog.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			payload := []byte(now.UTC().Format(time.RFC3339))
			if err := pub.Publish(ctx, payload); err != nil {
				logger.Warn("heartbeat publish failed", "error", err)
			}
		}
	}
}

// takeHeartbeats blocks on the subscription's DataAvailable condition
// through a wait-set and logs every message it drains, until ctx is
// cancelled.
func takeHeartbeats(ctx context.Context, sub *entity.Subscription, logger *slog.Logger) {
	ready := sub.DataAvailable()
	for {
		if _, err := waitset.Wait(ctx, ready); err != nil {
			return
		}
		for {
			msg, ok := sub.Take()
			if !ok {
				break
			}
			logger.Info("heartbeat received", "payload", string(msg.Payload.Data()))
			msg.Payload.Release()
		}
	}
}

func startHTTPServer(addr string, zc *zctx.Context, monitor *health.Monitor, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(zc.Metrics.PrometheusRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		systemHealth := monitor.AggregateHealth("rmwzenohd")

		statusCode := http.StatusOK
		switch {
		case systemHealth.IsUnhealthy():
			statusCode = http.StatusServiceUnavailable
		case systemHealth.IsDegraded():
			statusCode = http.StatusOK
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(systemHealth)
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	return srv
}

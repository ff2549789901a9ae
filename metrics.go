package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ai_chatbot_stage_duration_seconds",
		Help:    "Duration of blocking pipeline stages",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"stage"})

	wakeDetections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_chatbot_wake_detections_total",
		Help: "Wake word detections by outcome",
	}, []string{"outcome"})

	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_chatbot_turns_total",
		Help: "Interaction turns by result",
	}, []string{"result"})

	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_chatbot_tool_calls_total",
		Help: "Tool invocations requested by the model",
	}, []string{"tool"})

	routerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_chatbot_router_requests_total",
		Help: "Control socket requests by command",
	}, []string{"command"})

	inferenceFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ai_chatbot_inference_fallbacks_total",
		Help: "Network inference failures served by the local model",
	})

	vadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ai_chatbot_vad_errors_total",
		Help: "Voice activity sub-frames the detector rejected",
	})

	currentState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ai_chatbot_state",
		Help: "Current interaction state as its numeric value",
	})
)

// serveMetrics 在 addr 上暴露 /metrics，addr 为空则不启动
func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
}

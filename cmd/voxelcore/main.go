package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xlab/closer"
	"go.uber.org/zap"

	"voxelcore/internal/chunk"
	"voxelcore/internal/config"
	"voxelcore/internal/logging"
	"voxelcore/internal/session"
	"voxelcore/internal/streaming"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (default $"+config.EnvPath+")")
	ticks := flag.Int("ticks", 600, "ticks to simulate, 0 runs until interrupted")
	rate := flag.Int("rate", 60, "ticks per second, 0 runs unpaced")
	speed := flag.Float64("speed", 6, "walking speed in blocks per second")
	models := flag.String("models", "", "directory of voxel models")
	spawn := flag.String("spawn", "", "model to place next to the start")
	minimap := flag.String("minimap", "", "write a top-down PNG of the loaded area")
	scale := flag.Int("minimap-scale", 4, "minimap pixels per block")
	flag.Parse()
	defer closer.Close()

	cfg, err := config.Load(*configPath)
	if err != nil {
		closer.Fatalln(err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		closer.Fatalln(err)
	}

	sess, err := session.New(*cfg, logger, session.Options{
		ModelRoot: *models,
		Hooks: streaming.Hooks{
			OnPlaceholder: func(c chunk.Coord, err error) {
				logger.Warn("chunk unavailable", zap.Stringer("chunk", c), zap.Error(err))
			},
			OnComplete: func(st streaming.Stats) {
				logger.Info("streaming step done",
					zap.Stringer("ref", st.Ref),
					zap.Int("attached", st.Attached),
					zap.Int("detached", st.Detached),
					zap.Int("retries", st.Retries),
					zap.Duration("elapsed", st.Elapsed))
			},
		},
	})
	if err != nil {
		logger.Error("session setup failed", zap.Error(err))
		logger.Sync()
		closer.Fatalln(err)
	}

	var srv *http.Server
	if cfg.Metrics.Listen != "" {
		srv = serveMetrics(cfg.Metrics.Listen, sess, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	closer.Bind(func() {
		cancel()
		<-done
		if srv != nil {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown failed", zap.Error(err))
			}
			stop()
		}
		if err := sess.Close(); err != nil {
			logger.Warn("session close failed", zap.Error(err))
		}
		logger.Sync()
	})

	loop := NewWalkLoop(sess, logger, WalkOptions{
		Ticks: *ticks,
		Rate:  *rate,
		Speed: float32(*speed),
		Spawn: *spawn,
	})
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("walk stopped", zap.Error(err))
	}

	if *minimap != "" {
		if err := WriteMinimap(*minimap, sess.Map, *scale); err != nil {
			logger.Error("minimap failed", zap.Error(err))
		} else {
			logger.Info("minimap written", zap.String("path", *minimap))
		}
	}
	close(done)
}

func serveMetrics(addr string, sess *session.Session, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(sess.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

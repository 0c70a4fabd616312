package usagemetrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vylinhq/vylin/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const pushInterval = 5 * time.Minute

var registerOnce sync.Once

var Module = fx.Module("usage.metrics",
	fx.Provide(func() *prometheus.Registry {
		return prometheus.NewRegistry()
	}),
	fx.Provide(NewPusher),
	fx.Invoke(register),
)

func register(lc fx.Lifecycle, cfg config.Config, registry *prometheus.Registry, pusher Pusher, log *zap.Logger) {
	if !cfg.Accounting.Enabled || pusher == nil {
		return
	}
	log = log.Named("usage.metrics")

	registerOnce.Do(func() {
		m := newMetrics(registry)
		setRecorder(&recorder{metrics: m})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					defer close(done)
					ticker := time.NewTicker(pushInterval)
					defer ticker.Stop()
					for {
						select {
						case <-ticker.C:
							updateSystemMetrics(m)
							if err := pusher.Push(ctx, registry); err != nil {
								log.Warn("accounting push failed", zap.Error(err))
							}
						case <-ctx.Done():
							return
						}
					}
				}()
				return nil
			},
			OnStop: func(stopCtx context.Context) error {
				cancel()
				select {
				case <-done:
				case <-stopCtx.Done():
				}
				// Final flush so short-lived processes still account.
				flushCtx, flushCancel := context.WithTimeout(context.Background(), defaultPushTimeout)
				defer flushCancel()
				if err := pusher.Push(flushCtx, registry); err != nil {
					log.Warn("final accounting push failed", zap.Error(err))
				}
				return nil
			},
		})
	})
}

func updateSystemMetrics(m *metrics) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	m.memoryUse.Set(float64(stats.Sys))
}

package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/SmartFleetOps/SmartFleetOps/internal/common/config"
	"github.com/SmartFleetOps/SmartFleetOps/internal/common/discovery"
	"github.com/SmartFleetOps/SmartFleetOps/internal/common/logger"
)

// Component 由 Run 托管生命周期的后台组件（调度器等）。
type Component interface {
	Start()
	Stop()
}

type RunOptions struct {
	ShutdownTimeout time.Duration
}

func defaultRunOptions() RunOptions {
	return RunOptions{ShutdownTimeout: 10 * time.Second}
}

// Run 统一的进程运行模板：
// - 启动 metrics / healthz HTTP 监听
// - 启动后台组件（调度器）
// - 注册到 Consul（HTTP check）
// - 等待 SIGINT / SIGTERM，优雅退出
func Run(cfg *config.Config, log logger.Logger, metricsSrv *http.Server, components []Component, opts ...func(*RunOptions)) error {
	if cfg == nil {
		return fmt.Errorf("cfg is nil")
	}
	if log == nil {
		return fmt.Errorf("log is nil")
	}

	o := defaultRunOptions()
	for _, apply := range opts {
		if apply != nil {
			apply(&o)
		}
	}

	// 初始化 Consul 客户端（失败不阻塞服务启动）
	consulClient, err := discovery.NewConsulClient(cfg.Consul.Host, cfg.Consul.Port)
	if err != nil {
		log.Warnf("failed to connect to Consul: %v", err)
		consulClient = nil
	}

	serveErr := make(chan error, 1)
	if metricsSrv != nil {
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serveErr <- err
				return
			}
			serveErr <- nil
		}()
	}

	for _, c := range components {
		c.Start()
	}

	// 注册到 Consul（成功才 defer 注销）
	if consulClient != nil {
		serviceID := fmt.Sprintf("%s-%s", cfg.Server.Name, uuid.New().String())
		registry := discovery.NewServiceRegistry(
			consulClient,
			serviceID,
			cfg.Server.Name,
			cfg.Server.Host,
			cfg.Server.MetricsPort,
			[]string{"fleet", "scheduler"},
		)
		if err := registry.Register(); err != nil {
			log.Warnf("failed to register service to Consul: %v", err)
		} else {
			log.Infof("Service registered to Consul: %s", serviceID)
			defer func() {
				if err := registry.Deregister(); err != nil {
					log.Warnf("failed to deregister service from Consul: %v", err)
				}
			}()
		}
	}

	log.Infof("%s started, metrics on %s:%d", cfg.Server.Name, cfg.Server.Host, cfg.Server.MetricsPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Infof("received signal %v, shutting down...", sig)
	case err := <-serveErr:
		if err != nil {
			for _, c := range components {
				c.Stop()
			}
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	}

	// 先停后台组件（调度器只会在两轮之间停下），再关 HTTP
	for _, c := range components {
		c.Stop()
	}

	if metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), o.ShutdownTimeout)
		defer cancel()
		if err := metricsSrv.Shutdown(ctx); err != nil {
			log.Warnf("metrics server shutdown: %v", err)
		}
	}

	log.Info("stopped gracefully")
	return nil
}

// WithShutdownTimeout 修改优雅退出等待时间。
func WithShutdownTimeout(d time.Duration) func(*RunOptions) {
	return func(o *RunOptions) {
		if d > 0 {
			o.ShutdownTimeout = d
		}
	}
}

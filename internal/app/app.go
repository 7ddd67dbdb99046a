package app

import (
	"context"
	"fmt"

	"censcope/internal/config"
	"censcope/internal/dispatch"
	"censcope/internal/logger"
	"censcope/internal/registry"
	apihttp "censcope/internal/transport/http/api"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置 → 初始化依赖 → 启动 HTTP 服务与进度消费。
type App struct {
	cfg      *config.Config
	server   *apihttp.Server
	registry *registry.Registry
	events   chan dispatch.Event
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动 HTTP 服务并消费调度进度事件，ctx 取消后优雅退出。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("batch http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		a.consumeEvents(ctx)
		return nil
	})

	return group.Wait()
}

// consumeEvents 把调度进度转成日志。编排层只发事件，不感知这里。
func (a *App) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-a.events:
			if evt.Kind != dispatch.EventTaskFinished {
				continue
			}
			logger.Infof("进度 %d/%d variant=%s prompt=%d target=%s status=%s attempts=%d",
				evt.Completed, evt.Total, evt.Task.Variant, evt.Task.Prompt.Index,
				evt.Task.Target.ID(), evt.Result.Status, evt.Result.Attempts)
		}
	}
}

package app

import (
	"context"
	"fmt"
	"time"

	"censcope/internal/article"
	"censcope/internal/batch"
	"censcope/internal/config"
	"censcope/internal/dispatch"
	"censcope/internal/logger"
	"censcope/internal/provider"
	"censcope/internal/registry"
	apihttp "censcope/internal/transport/http/api"
)

// AppBuilder 汇集装配步骤，保持 NewApp 入口纤细。
type AppBuilder struct {
	cfg *config.Config
}

func NewAppBuilder(cfg *config.Config) *AppBuilder {
	return &AppBuilder{cfg: cfg}
}

// Build 按依赖顺序装配：目录 → 连接池 → 执行器 → 调度器 → 批次 → HTTP。
func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	cfg := b.cfg
	reg, err := registry.NewRegistry(cfg.Targets.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("init target registry: %w", err)
	}
	reg.OnChange(func(cat registry.Catalog) {
		logger.Infof("目标目录热更新生效 version=%d providers=%d", cat.Version, len(cat.Providers))
	})

	httpc := provider.NewHTTPClient(
		time.Duration(cfg.Query.ConnectTimeoutSeconds)*time.Second,
		time.Duration(cfg.Query.ReadTimeoutSeconds)*time.Second,
	)
	exec := provider.NewExecutor(
		&provider.ChatClient{HTTP: httpc},
		provider.RetryPolicy{
			BaseDelay:  time.Duration(cfg.Query.BackoffBaseSeconds) * time.Second,
			MaxRetries: cfg.Query.MaxRetries,
		},
		provider.GenParams{
			Temperature: cfg.Query.Temperature,
			MaxTokens:   cfg.Query.MaxTokens,
		},
	)

	events := make(chan dispatch.Event, 128)
	sched := &dispatch.Scheduler{
		Exec:        exec,
		MaxWorkers:  cfg.Dispatch.MaxWorkers,
		PromptDelay: time.Duration(cfg.Dispatch.PromptDelaySeconds) * time.Second,
		Events:      events,
	}

	fetcher := article.NewFetcher(
		time.Duration(cfg.Article.FetchTimeoutSeconds)*time.Second,
		cfg.Article.UserAgent,
		cfg.Article.MaxChars,
	)
	runner := batch.NewRunner(fetcher, reg, sched, cfg.Report.SourceTag, cfg.Report.NoticeImagePath, cfg.Article.MaxChars)
	runner.OutputDir = cfg.Report.OutputDir

	server, err := apihttp.NewServer(apihttp.ServerConfig{Addr: cfg.App.HTTPAddr, Runner: runner})
	if err != nil {
		return nil, fmt.Errorf("init http server: %w", err)
	}

	return &App{cfg: cfg, server: server, registry: reg, events: events}, nil
}

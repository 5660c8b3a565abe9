package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phuslu/log"

	"ImpactRadar/pkg/analog"
	"ImpactRadar/pkg/api"
	"ImpactRadar/pkg/config"
	"ImpactRadar/pkg/database"
	"ImpactRadar/pkg/engine"
	"ImpactRadar/pkg/jobs"
	"ImpactRadar/pkg/logging"
	"ImpactRadar/pkg/messaging"
	"ImpactRadar/pkg/monitor"
	"ImpactRadar/pkg/portfolio"
)

func main() {
	// 加载配置
	cfg, err := config.LoadConfig(config.GetDefaultConfigPath())
	if err != nil {
		log.Fatal().Err(err).Msg("加载配置失败")
	}
	logging.Setup(cfg.Log.Level, cfg.App.Env)
	log.Info().Str("env", cfg.App.Env).Msg("启动API服务...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 连接数据库
	store, err := database.NewPostgres(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("连接数据库失败")
	}
	defer store.Close()

	// 创建监控系统
	mon := monitor.NewMonitor(func(component, status, message string) {
		log.Warn().Str("component", component).Str("status", status).Str("message", message).Msg("组件状态变化")
	})
	mon.RegisterComponent(monitor.ComponentDatabase)
	mon.RegisterComponent(monitor.ComponentAnalog)
	mon.RegisterComponent(monitor.ComponentJobs)
	mon.StartChecking(ctx, monitor.ComponentDatabase, 30*time.Second, store.Ping)

	pipeline := engine.NewPipeline(store, nil, cfg.Scoring)

	// 任务队列：local 模式在进程内执行全部任务
	var queue jobs.Queue
	switch cfg.Jobs.Transport {
	case "nats":
		natsClient, err := messaging.NewNATSClient(cfg.NATS.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("连接NATS失败")
		}
		defer natsClient.Close()
		mon.StartChecking(ctx, monitor.ComponentJobs, 30*time.Second, natsClient.Ping)
		queue = messaging.NewJobQueue(natsClient, cfg.App.Name+"-jobs", cfg.Jobs.MaxAttempts, cfg.Jobs.Backoff)
		pipeline.SetPublisher(messaging.NewAlertPublisher(natsClient))
	default:
		registry := jobs.NewRegistry()
		pipeline.RegisterHandlers(registry)
		local := jobs.NewLocalQueue(registry, cfg.Jobs.Workers, cfg.Jobs.MaxAttempts, cfg.Jobs.Backoff)
		local.Start(ctx)
		defer local.Stop()
		mon.UpdateStatus(monitor.ComponentJobs, monitor.StatusHealthy, "local")
		queue = local
	}
	pipeline.SetQueue(queue)

	analyzer := portfolio.NewAnalyzer(store, analog.New(store, cfg.Scoring), mon, cfg.Scoring)

	// 创建并启动服务器
	server := api.NewServer(cfg)
	server.SetupRoutes(api.NewHandlers(store, pipeline, analyzer, queue, mon))
	if err := server.Run(ctx); err != nil {
		log.Error().Err(err).Msg("API服务异常退出")
		os.Exit(1)
	}
	log.Info().Msg("API服务已关闭")
}

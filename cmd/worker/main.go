package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/phuslu/log"

	"ImpactRadar/pkg/config"
	"ImpactRadar/pkg/database"
	"ImpactRadar/pkg/engine"
	"ImpactRadar/pkg/jobs"
	"ImpactRadar/pkg/logging"
	"ImpactRadar/pkg/messaging"
	"ImpactRadar/pkg/scheduler"
)

func main() {
	// 加载配置
	cfg, err := config.LoadConfig(config.GetDefaultConfigPath())
	if err != nil {
		log.Fatal().Err(err).Msg("加载配置失败")
	}
	logging.Setup(cfg.Log.Level, cfg.App.Env)
	log.Info().Str("transport", cfg.Jobs.Transport).Msg("启动任务处理服务...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 连接数据库
	store, err := database.NewPostgres(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("连接数据库失败")
	}
	defer store.Close()

	pipeline := engine.NewPipeline(store, nil, cfg.Scoring)
	registry := jobs.NewRegistry()
	pipeline.RegisterHandlers(registry)

	var queue jobs.Queue
	switch cfg.Jobs.Transport {
	case "nats":
		// 连接NATS
		natsClient, err := messaging.NewNATSClient(cfg.NATS.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("连接NATS失败")
		}
		defer natsClient.Close()

		jobQueue := messaging.NewJobQueue(natsClient, cfg.App.Name+"-jobs", cfg.Jobs.MaxAttempts, cfg.Jobs.Backoff)
		if err := jobQueue.Consume(registry); err != nil {
			log.Fatal().Err(err).Msg("订阅任务失败")
		}
		defer jobQueue.Stop()
		pipeline.SetPublisher(messaging.NewAlertPublisher(natsClient))
		queue = jobQueue
	default:
		local := jobs.NewLocalQueue(registry, cfg.Jobs.Workers, cfg.Jobs.MaxAttempts, cfg.Jobs.Backoff)
		local.Start(ctx)
		defer local.Stop()
		queue = local
	}
	pipeline.SetQueue(queue)

	// 启动定时任务
	sched := scheduler.NewScheduler(cfg.Scheduler, store, queue, nil)
	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("启动调度器失败")
	}
	defer sched.Stop()

	log.Info().Strs("kinds", kindNames(registry.Kinds())).Msg("任务处理服务就绪")
	<-ctx.Done()
	log.Info().Msg("正在关闭任务处理服务...")
}

func kindNames(kinds []jobs.Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

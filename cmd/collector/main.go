package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/phuslu/log"

	"ImpactRadar/pkg/collector"
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
	log.Info().Msg("启动新闻采集服务...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 连接数据库
	store, err := database.NewPostgres(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("连接数据库失败")
	}
	defer store.Close()

	pipeline := engine.NewPipeline(store, nil, cfg.Scoring)
	switch cfg.Jobs.Transport {
	case "nats":
		natsClient, err := messaging.NewNATSClient(cfg.NATS.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("连接NATS失败")
		}
		defer natsClient.Close()
		pipeline.SetQueue(messaging.NewJobQueue(natsClient, cfg.App.Name+"-jobs", cfg.Jobs.MaxAttempts, cfg.Jobs.Backoff))
	default:
		registry := jobs.NewRegistry()
		pipeline.RegisterHandlers(registry)
		local := jobs.NewLocalQueue(registry, cfg.Jobs.Workers, cfg.Jobs.MaxAttempts, cfg.Jobs.Backoff)
		local.Start(ctx)
		defer local.Stop()
		pipeline.SetQueue(local)
	}

	// 定时拉取新闻接口
	var poll scheduler.PollFunc
	if cfg.Providers.Finnhub.APIKey != "" && len(cfg.Providers.Tickers) > 0 {
		poller := collector.NewPoller(collector.NewRegistry(collector.NewFinnhubProvider(cfg)), pipeline, cfg.Providers.Tickers)
		poll = func(ctx context.Context) { poller.Poll(ctx) }
	} else {
		log.Warn().Msg("未配置 Finnhub API key 或股票列表，跳过接口拉取")
	}
	sched := scheduler.NewScheduler(config.Scheduler{ProviderPoll: cfg.Scheduler.ProviderPoll}, store, nil, poll)
	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("启动调度器失败")
	}
	defer sched.Stop()

	// NATS Streaming 新闻频道
	stanSource, err := collector.NewStanSource(cfg.NATS.URL, cfg.NATS.ClusterID, cfg.NATS.ClientID+"-collector",
		cfg.NATS.NewsChannels, pipeline)
	if err != nil {
		log.Error().Err(err).Msg("NATS Streaming 不可用，跳过流式新闻")
	} else {
		if err := stanSource.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("订阅新闻频道失败")
		}
		defer stanSource.Stop()
	}

	// Kafka 新闻主题
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSource, err := collector.NewKafkaSource(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, pipeline)
		if err != nil {
			log.Fatal().Err(err).Msg("创建 Kafka 消费者失败")
		}
		defer kafkaSource.Close()
		go func() {
			if err := kafkaSource.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Kafka 消费中止")
				stop()
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("正在关闭新闻采集服务...")
}

// pkg/messaging/nats.go
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/phuslu/log"
)

const (
	JobsStream   = "JOBS_STREAM"
	AlertsStream = "ALERTS_STREAM"

	jobsSubjectPrefix   = "jobs."
	alertsSubjectPrefix = "alerts."
)

// NATSClient NATS JetStream客户端
type NATSClient struct {
	conn      *nats.Conn
	jetStream jetstream.JetStream
	natsURL   string
	ctx       context.Context
	cancel    context.CancelFunc
	consumers map[string]jetstream.ConsumeContext
	mu        sync.Mutex
	wg        sync.WaitGroup
}

// MessageHandler 消息处理函数，返回错误时决定是否重投
type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

// NewNATSClient 连接 NATS 并确保任务流与提醒流存在
func NewNATSClient(natsURL string) (*NATSClient, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("impact-radar"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS连接断开")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS重新连接成功")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("连接NATS失败: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("创建JetStream失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &NATSClient{
		conn:      nc,
		jetStream: js,
		natsURL:   natsURL,
		ctx:       ctx,
		cancel:    cancel,
		consumers: make(map[string]jetstream.ConsumeContext),
	}

	if err := client.setupStreams(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// streamConfigs 任务流为工作队列，消息确认后删除；提醒流按时间保留供投递端消费
func streamConfigs() []jetstream.StreamConfig {
	return []jetstream.StreamConfig{
		{
			Name:        JobsStream,
			Subjects:    []string{jobsSubjectPrefix + ">"},
			Description: "打分流水线任务",
			Retention:   jetstream.WorkQueuePolicy,
			MaxBytes:    256 * 1024 * 1024,
			MaxAge:      72 * time.Hour,
		},
		{
			Name:        AlertsStream,
			Subjects:    []string{alertsSubjectPrefix + "*"},
			Description: "用户提醒",
			Retention:   jetstream.LimitsPolicy,
			MaxMsgs:     50000,
			MaxBytes:    50 * 1024 * 1024,
			MaxAge:      7 * 24 * time.Hour,
		},
	}
}

func (c *NATSClient) setupStreams(ctx context.Context) error {
	for _, cfg := range streamConfigs() {
		if _, err := c.jetStream.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("创建/更新Stream %s 失败: %w", cfg.Name, err)
		}
		log.Info().Str("stream", cfg.Name).Msg("Stream 设置成功")
	}
	return nil
}

// Publish 发布消息到指定主题，非字节数据按 JSON 序列化
func (c *NATSClient) Publish(ctx context.Context, subject string, data any) error {
	var payload []byte
	switch v := data.(type) {
	case []byte:
		payload = v
	case string:
		payload = []byte(v)
	default:
		var err error
		if payload, err = json.Marshal(data); err != nil {
			return fmt.Errorf("序列化数据失败: %w", err)
		}
	}

	if _, err := c.jetStream.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("发布消息到 %s 失败: %w", subject, err)
	}
	log.Debug().Str("subject", subject).Int("bytes", len(payload)).Msg("发布消息")
	return nil
}

// Subscribe 以持久消费者订阅主题，多个进程共享同名消费者时分摊消息
func (c *NATSClient) Subscribe(stream, durable, filterSubject string, ackWait time.Duration, handler MessageHandler) error {
	consumer, err := c.jetStream.CreateOrUpdateConsumer(c.ctx, stream, jetstream.ConsumerConfig{
		Durable:       durable,
		Description:   fmt.Sprintf("%s 消费者", durable),
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		return fmt.Errorf("创建消费者 %s 失败: %w", durable, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		c.wg.Add(1)
		defer c.wg.Done()
		c.handle(durable, msg, handler)
	}, jetstream.PullMaxMessages(10))
	if err != nil {
		return fmt.Errorf("启动消费者 %s 失败: %w", durable, err)
	}

	c.mu.Lock()
	c.consumers[durable] = cc
	c.mu.Unlock()

	log.Info().Str("stream", stream).Str("consumer", durable).Str("subject", filterSubject).Msg("已订阅")
	return nil
}

func (c *NATSClient) handle(consumer string, msg jetstream.Msg, handler MessageHandler) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("consumer", consumer).Interface("panic", r).Msg("消息处理异常")
			_ = msg.Nak()
		}
	}()

	if err := handler(c.ctx, msg); err != nil {
		var d *disposition
		if errors.As(err, &d) {
			d.apply(msg)
			return
		}
		log.Error().Err(err).Str("consumer", consumer).Str("subject", msg.Subject()).Msg("处理消息失败")
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

// Unsubscribe 停止消费者
func (c *NATSClient) Unsubscribe(durable string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cc, ok := c.consumers[durable]; ok {
		cc.Stop()
		delete(c.consumers, durable)
	}
}

// Close 停止全部消费者并等待处理中的消息完成
func (c *NATSClient) Close() {
	c.mu.Lock()
	for name, cc := range c.consumers {
		cc.Stop()
		delete(c.consumers, name)
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	if c.conn != nil {
		c.conn.Close()
	}
	log.Info().Msg("NATS连接已关闭")
}

// IsConnected 检查连接状态
func (c *NATSClient) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Ping 用于健康检查
func (c *NATSClient) Ping(ctx context.Context) error {
	if !c.IsConnected() {
		return errors.New("NATS未连接")
	}
	if _, err := c.jetStream.AccountInfo(ctx); err != nil {
		return fmt.Errorf("查询JetStream账户失败: %w", err)
	}
	return nil
}

package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phuslu/log"
	"github.com/segmentio/kafka-go"

	"ImpactRadar/pkg/engine"
)

// messageReader kafka.Reader 中用到的部分
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource 从 Kafka topic 消费文章
type KafkaSource struct {
	reader   messageReader
	ingester Ingester
}

// NewKafkaSource 创建 Kafka 消费者
func NewKafkaSource(brokers []string, topic, groupID string, ingester Ingester) (*KafkaSource, error) {
	if len(brokers) == 0 {
		return nil, errors.New("未配置 Kafka broker")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	log.Info().Strs("brokers", brokers).Str("topic", topic).Str("group", groupID).Msg("Kafka 消费者已创建")
	return &KafkaSource{reader: reader, ingester: ingester}, nil
}

// Run 消费直到 ctx 取消。入库失败的消息不提交，重启后重新消费。
func (k *KafkaSource) Run(ctx context.Context) error {
	for {
		m, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("获取 Kafka 消息失败")
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		if err := k.process(ctx, m); err != nil {
			return err
		}
	}
}

func (k *KafkaSource) process(ctx context.Context, m kafka.Message) error {
	req, err := DecodeArticle(m.Value)
	if err != nil {
		log.Error().Err(err).Int64("offset", m.Offset).Msg("丢弃格式错误的消息")
		return k.commit(ctx, m)
	}
	if _, _, err := k.ingester.Ingest(ctx, req); err != nil {
		if errors.Is(err, engine.ErrInvalidArticle) {
			log.Warn().Err(err).Int64("offset", m.Offset).Msg("丢弃缺少必填字段的文章")
			return k.commit(ctx, m)
		}
		return fmt.Errorf("新闻入库失败 offset=%d: %w", m.Offset, err)
	}
	return k.commit(ctx, m)
}

func (k *KafkaSource) commit(ctx context.Context, m kafka.Message) error {
	if err := k.reader.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("提交 Kafka offset 失败: %w", err)
	}
	return nil
}

// Close 关闭 reader
func (k *KafkaSource) Close() error {
	return k.reader.Close()
}

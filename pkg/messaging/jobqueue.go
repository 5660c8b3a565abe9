package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/phuslu/log"

	"ImpactRadar/pkg/jobs"
)

// disposition 处理失败后对消息的处置
type disposition struct {
	err   error
	delay time.Duration
	term  bool
}

func (d *disposition) Error() string { return d.err.Error() }

func (d *disposition) Unwrap() error { return d.err }

func (d *disposition) apply(msg jetstream.Msg) {
	if d.term {
		_ = msg.Term()
		return
	}
	_ = msg.NakWithDelay(d.delay)
}

// Dispose 根据错误类型和投递次数决定重投还是放弃：
// 可重试错误按线性退避重投，达到上限或不可重试时终止。
func Dispose(err error, delivered, maxAttempts int, backoff time.Duration) error {
	if err == nil {
		return nil
	}
	if !jobs.IsRetryable(err) || delivered >= maxAttempts {
		return &disposition{err: err, term: true}
	}
	return &disposition{err: err, delay: time.Duration(delivered) * backoff}
}

// JobQueue 基于 JetStream 工作队列的任务队列，多个 worker 进程共享
type JobQueue struct {
	client      *NATSClient
	durable     string
	maxAttempts int
	backoff     time.Duration
	ackWait     time.Duration
}

// NewJobQueue 创建任务队列
func NewJobQueue(client *NATSClient, durable string, maxAttempts int, backoff time.Duration) *JobQueue {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &JobQueue{
		client:      client,
		durable:     durable,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		ackWait:     2 * time.Minute,
	}
}

// JobSubject 任务类型对应的主题
func JobSubject(kind jobs.Kind) string {
	return jobsSubjectPrefix + string(kind)
}

// Submit 发布任务
func (q *JobQueue) Submit(ctx context.Context, kind jobs.Kind, key string, payload any) (jobs.Handle, error) {
	job, err := jobs.NewJob(kind, key, payload)
	if err != nil {
		return jobs.Handle{}, err
	}
	if err := q.client.Publish(ctx, JobSubject(kind), job); err != nil {
		return jobs.Handle{}, fmt.Errorf("提交任务 %s 失败: %w", kind, err)
	}
	return job.Handle(), nil
}

// Consume 开始消费任务并分发到注册表，成功 Ack，失败按 Dispose 重投或终止
func (q *JobQueue) Consume(registry *jobs.Registry) error {
	return q.client.Subscribe(JobsStream, q.durable, jobsSubjectPrefix+">", q.ackWait,
		func(ctx context.Context, msg jetstream.Msg) error {
			var job jobs.Job
			if err := json.Unmarshal(msg.Data(), &job); err != nil {
				log.Error().Err(err).Str("subject", msg.Subject()).Msg("任务消息格式错误，丢弃")
				return &disposition{err: err, term: true}
			}

			delivered := 1
			if meta, err := msg.Metadata(); err == nil {
				delivered = int(meta.NumDelivered)
			}
			job.Attempt = delivered

			err := registry.Dispatch(ctx, job)
			if err != nil {
				log.Error().Err(err).Str("job_id", job.ID).Str("kind", string(job.Kind)).
					Str("key", job.Key).Int("attempt", delivered).Msg("任务失败")
			}
			return Dispose(err, delivered, q.maxAttempts, q.backoff)
		})
}

// Stop 停止消费
func (q *JobQueue) Stop() {
	q.client.Unsubscribe(q.durable)
}

package jobs

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/phuslu/log"
)

// ErrQueueClosed 队列已停止
var ErrQueueClosed = errors.New("任务队列已停止")

// LocalQueue 进程内任务队列。按 Key 分片到固定 worker，同一 Key 的任务串行执行；
// 可重试错误按线性退避在原 worker 内重试。
type LocalQueue struct {
	registry    *Registry
	shards      []chan Job
	maxAttempts int
	backoff     time.Duration

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool
}

// NewLocalQueue 创建本地队列
func NewLocalQueue(registry *Registry, workers, maxAttempts int, backoff time.Duration) *LocalQueue {
	if workers <= 0 {
		workers = 1
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	q := &LocalQueue{
		registry:    registry,
		shards:      make([]chan Job, workers),
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
	for i := range q.shards {
		q.shards[i] = make(chan Job, 64)
	}
	return q
}

// Start 启动 worker
func (q *LocalQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	ctx, q.cancel = context.WithCancel(ctx)

	log.Info().Int("workers", len(q.shards)).Int("max_attempts", q.maxAttempts).Msg("本地任务队列启动")
	for i, ch := range q.shards {
		q.wg.Add(1)
		go q.worker(ctx, i, ch)
	}
}

// Submit 提交任务
func (q *LocalQueue) Submit(ctx context.Context, kind Kind, key string, payload any) (Handle, error) {
	job, err := NewJob(kind, key, payload)
	if err != nil {
		return Handle{}, err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return Handle{}, ErrQueueClosed
	}
	select {
	case q.shards[q.shard(key)] <- job:
		return job.Handle(), nil
	case <-ctx.Done():
		return Handle{}, ctx.Err()
	}
}

// Stop 停止接收新任务，等待已提交的任务处理完毕
func (q *LocalQueue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for _, ch := range q.shards {
		close(ch)
	}
	started := q.started
	q.mu.Unlock()

	if started {
		q.wg.Wait()
		q.cancel()
	}
	log.Info().Msg("本地任务队列已停止")
}

func (q *LocalQueue) shard(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(q.shards)))
}

func (q *LocalQueue) worker(ctx context.Context, id int, jobs <-chan Job) {
	defer q.wg.Done()
	for job := range jobs {
		q.run(ctx, id, job)
	}
}

// run 执行任务，可重试错误在退避后重试
func (q *LocalQueue) run(ctx context.Context, worker int, job Job) {
	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		job.Attempt = attempt
		err := q.registry.Dispatch(ctx, job)
		if err == nil {
			return
		}

		logger := log.Error().Err(err).Int("worker", worker).Str("job_id", job.ID).
			Str("kind", string(job.Kind)).Str("key", job.Key).Int("attempt", attempt)
		if !IsRetryable(err) || attempt == q.maxAttempts {
			logger.Msg("任务失败")
			return
		}
		logger.Msg("任务失败，等待重试")

		select {
		case <-time.After(time.Duration(attempt) * q.backoff):
		case <-ctx.Done():
			return
		}
	}
}

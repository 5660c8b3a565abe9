// Package jobs 通用任务队列抽象：按类型提交，处理函数只依赖 ID，可重复执行。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind 任务类型
type Kind string

const (
	KindAnalyzeArticle   Kind = "analyze_article"
	KindArticleImpacts   Kind = "article_impacts"
	KindUserImpacts      Kind = "user_impacts"
	KindRecalculateAll   Kind = "recalculate_all"
	KindDailyDigest      Kind = "daily_digest"
	KindHighImpactAlerts Kind = "high_impact_alerts"
)

// Job 一次任务投递
type Job struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Key         string          `json:"key"` // 串行化键，通常是用户或文章 ID
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// Decode 解析任务负载
func (j Job) Decode(v any) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("任务 %s 缺少负载", j.ID)
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("解析任务 %s 负载失败: %w", j.ID, err)
	}
	return nil
}

// NewJob 构造一次新的任务投递
func NewJob(kind Kind, key string, payload any) (Job, error) {
	raw, err := Encode(payload)
	if err != nil {
		return Job{}, err
	}
	return Job{
		ID:          uuid.New().String(),
		Kind:        kind,
		Key:         key,
		Payload:     raw,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

// Handle 任务句柄
func (j Job) Handle() Handle {
	return Handle{ID: j.ID, Kind: j.Kind, Key: j.Key}
}

// Handle 提交后的任务句柄
type Handle struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Key  string `json:"key"`
}

// Handler 任务处理函数，必须幂等
type Handler func(ctx context.Context, job Job) error

// Queue 任务提交接口
type Queue interface {
	Submit(ctx context.Context, kind Kind, key string, payload any) (Handle, error)
}

// 负载类型
type (
	ArticlePayload struct {
		ArticleID string `json:"article_id"`
	}
	UserPayload struct {
		UserID string `json:"user_id"`
	}
	DigestPayload struct {
		UserID string    `json:"user_id"`
		Day    time.Time `json:"day"`
	}
)

// ErrUnknownKind 没有注册处理函数
var ErrUnknownKind = errors.New("未注册的任务类型")

// Registry 任务类型到处理函数的映射
type Registry struct {
	mu       sync.RWMutex
	handlers map[Kind]Handler
}

// NewRegistry 创建处理函数注册表
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Kind]Handler)}
}

// Register 注册处理函数，重复注册覆盖旧值
func (r *Registry) Register(kind Kind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Kinds 已注册的任务类型
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}

// Dispatch 调用任务对应的处理函数
func (r *Registry) Dispatch(ctx context.Context, job Job) error {
	r.mu.RLock()
	h, ok := r.handlers[job.Kind]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, job.Kind)
	}
	return h(ctx, job)
}

// RetryableError 标记可重试的失败（如存储访问失败）
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable 包装为可重试错误，nil 保持 nil
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	var r *RetryableError
	if errors.As(err, &r) {
		return err
	}
	return &RetryableError{Err: err}
}

// IsRetryable 是否可重试
func IsRetryable(err error) bool {
	var r *RetryableError
	return errors.As(err, &r)
}

// Encode 序列化负载
func Encode(payload any) (json.RawMessage, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化任务负载失败: %w", err)
	}
	return data, nil
}

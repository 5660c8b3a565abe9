package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/phuslu/log"
	"github.com/robfig/cron/v3"

	"ImpactRadar/pkg/config"
	"ImpactRadar/pkg/jobs"
)

// UserLister 列出需要调度的用户
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// PollFunc 一轮新闻拉取
type PollFunc func(ctx context.Context)

// Scheduler 任务调度器，只负责按时投递任务
type Scheduler struct {
	cron  *cron.Cron
	cfg   config.Scheduler
	users UserLister
	queue jobs.Queue
	poll  PollFunc
	ctx   context.Context
	now   func() time.Time
}

// NewScheduler 创建任务调度器。poll 为 nil 时不注册新闻拉取。
func NewScheduler(cfg config.Scheduler, users UserLister, queue jobs.Queue, poll PollFunc) *Scheduler {
	return &Scheduler{
		cron:  cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		cfg:   cfg,
		users: users,
		queue: queue,
		poll:  poll,
		ctx:   context.Background(),
		now:   time.Now,
	}
}

type entry struct {
	name string
	spec string
	fn   func()
}

// Start 注册定时任务并启动。未启用时只注册新闻拉取。
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	var entries []entry
	if s.cfg.Enabled {
		entries = append(entries,
			entry{"daily_digest", s.cfg.DailyDigest, func() { s.DailyDigest(s.ctx) }},
			entry{"high_impact_sweep", s.cfg.HighImpactSweep, func() { s.HighImpactSweep(s.ctx) }},
		)
	} else if s.cfg.DailyDigest != "" || s.cfg.HighImpactSweep != "" {
		log.Info().Msg("本副本未启用摘要与高影响扫描的定时投递")
	}
	if s.poll != nil {
		entries = append(entries, entry{"provider_poll", s.cfg.ProviderPoll, func() { s.poll(s.ctx) }})
	}

	for _, e := range entries {
		if e.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(e.spec, e.fn); err != nil {
			return fmt.Errorf("注册定时任务 %s 失败: %w", e.name, err)
		}
		log.Info().Str("task", e.name).Str("spec", e.spec).Msg("注册定时任务")
	}
	s.cron.Start()
	return nil
}

// Stop 停止调度器并等待运行中的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// DailyDigest 为每个用户投递当日摘要任务
func (s *Scheduler) DailyDigest(ctx context.Context) int {
	day := s.now().UTC()
	return s.fanOut(ctx, jobs.KindDailyDigest, func(userID string) any {
		return jobs.DigestPayload{UserID: userID, Day: day}
	})
}

// HighImpactSweep 为每个用户投递高影响提醒任务
func (s *Scheduler) HighImpactSweep(ctx context.Context) int {
	return s.fanOut(ctx, jobs.KindHighImpactAlerts, func(userID string) any {
		return jobs.UserPayload{UserID: userID}
	})
}

func (s *Scheduler) fanOut(ctx context.Context, kind jobs.Kind, payload func(userID string) any) int {
	userIDs, err := s.users.ListUserIDs(ctx)
	if err != nil {
		log.Error().Err(err).Str("kind", string(kind)).Msg("查询用户列表失败")
		return 0
	}
	var submitted int
	for _, id := range userIDs {
		if _, err := s.queue.Submit(ctx, kind, id, payload(id)); err != nil {
			log.Error().Err(err).Str("kind", string(kind)).Str("user_id", id).Msg("投递任务失败")
			continue
		}
		submitted++
	}
	log.Info().Str("kind", string(kind)).Int("users", len(userIDs)).Int("submitted", submitted).Msg("定时任务已投递")
	return submitted
}

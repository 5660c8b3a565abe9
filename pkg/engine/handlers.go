package engine

import (
	"context"
	"errors"
	"time"

	"github.com/phuslu/log"

	"ImpactRadar/pkg/database"
	"ImpactRadar/pkg/jobs"
	"ImpactRadar/pkg/model"
)

// AlertPublisher 提醒投递端
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert *model.Alert) error
}

// RegisterHandlers 注册流水线的全部任务处理函数
func (p *Pipeline) RegisterHandlers(r *jobs.Registry) {
	r.Register(jobs.KindAnalyzeArticle, func(ctx context.Context, job jobs.Job) error {
		var payload jobs.ArticlePayload
		if err := job.Decode(&payload); err != nil {
			return err
		}
		_, err := p.AnalyzeArticle(ctx, payload.ArticleID)
		return classify(err)
	})
	r.Register(jobs.KindArticleImpacts, func(ctx context.Context, job jobs.Job) error {
		var payload jobs.ArticlePayload
		if err := job.Decode(&payload); err != nil {
			return err
		}
		_, err := p.ComputeArticleImpacts(ctx, payload.ArticleID)
		return classify(err)
	})
	r.Register(jobs.KindUserImpacts, func(ctx context.Context, job jobs.Job) error {
		var payload jobs.UserPayload
		if err := job.Decode(&payload); err != nil {
			return err
		}
		_, err := p.RecomputeUserImpacts(ctx, payload.UserID)
		return classify(err)
	})
	r.Register(jobs.KindRecalculateAll, func(ctx context.Context, job jobs.Job) error {
		_, err := p.RecomputeAll(ctx)
		return classify(err)
	})
	r.Register(jobs.KindDailyDigest, func(ctx context.Context, job jobs.Job) error {
		var payload jobs.DigestPayload
		if err := job.Decode(&payload); err != nil {
			return err
		}
		_, err := p.DeliverDailyDigest(ctx, payload.UserID, payload.Day)
		return classify(err)
	})
	r.Register(jobs.KindHighImpactAlerts, func(ctx context.Context, job jobs.Job) error {
		var payload jobs.UserPayload
		if err := job.Decode(&payload); err != nil {
			return err
		}
		_, err := p.DeliverHighImpact(ctx, payload.UserID)
		return classify(err)
	})
}

// classify 记录缺失不再重试，其余失败（信号未就绪、存储异常）标记为可重试
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrNotFound):
		return err
	default:
		return jobs.Retryable(err)
	}
}

// DeliverHighImpact 生成并投递高影响提醒，没有新的高影响文章时返回 nil
func (p *Pipeline) DeliverHighImpact(ctx context.Context, userID string) (*model.Alert, error) {
	a, err := p.alerts.BuildHighImpactAlert(ctx, userID)
	if err != nil || a == nil {
		return nil, err
	}
	return a, p.deliver(ctx, a)
}

// DeliverDailyDigest 生成并投递指定日期的每日摘要
func (p *Pipeline) DeliverDailyDigest(ctx context.Context, userID string, day time.Time) (*model.Alert, error) {
	if day.IsZero() {
		day = p.now().UTC()
	}
	a, err := p.alerts.BuildDailyDigest(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	return a, p.deliver(ctx, a)
}

// deliver 先持久化为 pending，再交给投递端。投递失败只记录状态，不重试任务。
func (p *Pipeline) deliver(ctx context.Context, a *model.Alert) error {
	if err := p.store.CreateAlert(ctx, a); err != nil {
		return err
	}
	if p.publisher == nil {
		return nil
	}
	if err := p.publisher.PublishAlert(ctx, a); err != nil {
		log.Warn().Err(err).Str("alert_id", a.ID).Str("user_id", a.UserID).Msg("提醒投递失败")
		a.Status = model.AlertFailed
		a.LastError = err.Error()
		return p.store.MarkAlertFailed(ctx, a.ID, err.Error())
	}
	now := p.now().UTC()
	a.Status = model.AlertSent
	a.SentAt = &now
	return p.store.MarkAlertSent(ctx, a.ID)
}

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/phuslu/log"

	"ImpactRadar/pkg/consensus"
	"ImpactRadar/pkg/database"
	"ImpactRadar/pkg/jobs"
	"ImpactRadar/pkg/model"
)

// AnalysisResult 一次文章分析的结果
type AnalysisResult struct {
	Signal    model.Signal         `json:"signal"`
	Consensus *model.ConsensusData `json:"consensus,omitempty"`
	// Refreshed 因共识变化而重算置信度的同簇文章
	Refreshed []string `json:"refreshed,omitempty"`
}

// AnalyzeArticle 提取并保存文章的 Signal。文章属于事件簇时计算簇内共识，
// 加成变化的同簇 Signal 一并更新。保存完成后再投递影响分任务。
// 同簇的分析在进程内按簇加锁，跨进程由事务内的簇文章行锁串行。
func (p *Pipeline) AnalyzeArticle(ctx context.Context, articleID string) (*AnalysisResult, error) {
	article, err := p.store.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}

	sig := p.extractor.Extract(article)
	result := &AnalysisResult{}

	unlock := func() {}
	if article.ClusterID != nil {
		unlock = p.locks.Lock(clusterLockKey(*article.ClusterID))
	}
	var refreshed []model.Signal
	err = p.store.Transaction(ctx, func(tx *database.Store) error {
		refreshed = nil
		if article.ClusterID != nil {
			members, err := tx.LockClusterMembers(ctx, *article.ClusterID)
			if err != nil {
				return err
			}
			data, others, err := clusterConsensus(ctx, tx, p.consensus, p.cfg.Consensus.WindowHours, article, sig, members)
			if err != nil {
				return err
			}
			sig.ApplyBonus(data.Bonus)
			result.Consensus = &data
			for _, other := range others {
				if other.ConsensusBonus == data.Bonus {
					continue
				}
				other.ApplyBonus(data.Bonus)
				refreshed = append(refreshed, other)
			}
		}

		if err := tx.SaveSignal(ctx, &sig); err != nil {
			return err
		}
		for i := range refreshed {
			if err := tx.SaveSignal(ctx, &refreshed[i]); err != nil {
				return err
			}
		}
		return nil
	})
	unlock()
	if err != nil {
		return nil, fmt.Errorf("保存文章信号失败: %w", err)
	}

	result.Signal = sig
	for _, r := range refreshed {
		result.Refreshed = append(result.Refreshed, r.ArticleID)
	}

	log.Info().Str("article_id", article.ID).Int("sentiment", sig.Sentiment).Int("magnitude", sig.Magnitude).
		Float64("confidence", sig.Confidence).Int("refreshed", len(refreshed)).Msg("文章信号已保存")

	if p.queue == nil {
		return result, nil
	}
	for _, id := range append([]string{article.ID}, result.Refreshed...) {
		if _, err := p.queue.Submit(ctx, jobs.KindArticleImpacts, id, jobs.ArticlePayload{ArticleID: id}); err != nil {
			return result, fmt.Errorf("投递影响分任务失败: %w", err)
		}
	}
	return result, nil
}

func clusterLockKey(clusterID string) string {
	return "cluster:" + clusterID
}

// clusterConsensus 用簇内已分析文章加上当前文章计算共识，返回其他成员已保存的 Signal
func clusterConsensus(ctx context.Context, tx *database.Store, calc *consensus.Calculator, windowHours float64,
	article *model.Article, sig model.Signal, members []model.Article) (model.ConsensusData, []model.Signal, error) {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.ID != article.ID {
			ids = append(ids, m.ID)
		}
	}
	signals, err := tx.SignalsForArticles(ctx, ids)
	if err != nil {
		return model.ConsensusData{}, nil, err
	}

	input := []consensus.Member{{
		ArticleID:   article.ID,
		Publisher:   article.Publisher,
		PublishedAt: article.PublishedAt,
		Sentiment:   sig.Sentiment,
	}}
	var others []model.Signal
	for _, m := range members {
		s, ok := signals[m.ID]
		if !ok || m.ID == article.ID {
			continue
		}
		input = append(input, consensus.Member{
			ArticleID:   m.ID,
			Publisher:   m.Publisher,
			PublishedAt: m.PublishedAt,
			Sentiment:   s.Sentiment,
		})
		others = append(others, s)
	}

	data := calc.Compute(input, windowHours)
	data.ClusterID = *article.ClusterID
	return data, others, nil
}

// signalFor 读取文章的 Signal，不存在时返回 ErrSignalNotReady
func (p *Pipeline) signalFor(ctx context.Context, articleID string) (*model.Signal, error) {
	sig, err := p.store.GetSignal(ctx, articleID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("文章 %s: %w", articleID, ErrSignalNotReady)
	}
	return sig, err
}

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ImpactRadar/pkg/config"
	"ImpactRadar/pkg/database"
	"ImpactRadar/pkg/database/dbtest"
	"ImpactRadar/pkg/jobs"
	"ImpactRadar/pkg/model"
)

type recordingQueue struct {
	mu   sync.Mutex
	jobs []jobs.Handle
}

func (q *recordingQueue) Submit(_ context.Context, kind jobs.Kind, key string, _ any) (jobs.Handle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	h := jobs.Handle{ID: key, Kind: kind, Key: key}
	q.jobs = append(q.jobs, h)
	return h, nil
}

func (q *recordingQueue) kinds() []jobs.Kind {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []jobs.Kind
	for _, h := range q.jobs {
		out = append(out, h.Kind)
	}
	return out
}

type fakePublisher struct {
	err    error
	alerts []*model.Alert
}

func (f *fakePublisher) PublishAlert(_ context.Context, a *model.Alert) error {
	f.alerts = append(f.alerts, a)
	return f.err
}

func (q *recordingQueue) keys(kind jobs.Kind) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []string
	for _, h := range q.jobs {
		if h.Kind == kind {
			out = append(out, h.Key)
		}
	}
	return out
}

func newTestPipeline(t *testing.T) (*Pipeline, *database.Store) {
	t.Helper()
	store := dbtest.New(t)
	return NewPipeline(store, nil, config.DefaultScoring()), store
}

// seedPortfolio AAPL 占组合 20%，MSFT 占 80%
func seedPortfolio(t *testing.T, store *database.Store) (*model.User, *model.Holding) {
	t.Helper()
	ctx := context.Background()
	user := &model.User{Username: "bob", RiskProfile: model.RiskModerate}
	require.NoError(t, store.CreateUser(ctx, user))

	aapl := &model.Holding{UserID: user.ID, Ticker: "AAPL", Shares: decimal.NewFromInt(20)}
	msft := &model.Holding{UserID: user.ID, Ticker: "MSFT", Shares: decimal.NewFromInt(80)}
	require.NoError(t, store.CreateHolding(ctx, aapl))
	require.NoError(t, store.CreateHolding(ctx, msft))

	day := time.Now().UTC().AddDate(0, 0, -1)
	require.NoError(t, store.SaveQuotes(ctx, []model.Quote{
		{Symbol: "AAPL", TradeDate: day, Close: decimal.NewFromInt(10)},
		{Symbol: "MSFT", TradeDate: day, Close: decimal.NewFromInt(10)},
	}))
	return user, aapl
}

func acquisitionNews(url, publisher string, at time.Time) IngestRequest {
	return IngestRequest{
		Ticker:      "aapl",
		Headline:    "Apple to acquire chip startup, shares surge",
		SourceURL:   url,
		Publisher:   publisher,
		PublishedAt: at,
		SourceType:  model.SourceNews,
		SourceTier:  model.TierPremium,
	}
}

func TestIngestSkipsDuplicateURL(t *testing.T) {
	p, _ := newTestPipeline(t)
	queue := &recordingQueue{}
	p.SetQueue(queue)
	ctx := context.Background()

	req := acquisitionNews("https://news.example.com/a", "Reuters", time.Now().Add(-time.Hour))
	first, created, err := p.Ingest(ctx, req)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "AAPL", first.Ticker)
	assert.Equal(t, model.CategoryMergerAcquisition, first.Category)
	require.NotNil(t, first.ClusterID)

	second, created, err := p.Ingest(ctx, req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	assert.Equal(t, []jobs.Kind{jobs.KindAnalyzeArticle}, queue.kinds())
}

func TestIngestRequiresTickerAndURL(t *testing.T) {
	p, _ := newTestPipeline(t)
	_, _, err := p.Ingest(context.Background(), IngestRequest{Headline: "no url"})
	assert.ErrorIs(t, err, ErrInvalidArticle)
}

func TestIngestDefaults(t *testing.T) {
	now := time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)
	a := IngestRequest{Ticker: " tsla ", SourceURL: "u", RelatedTickers: []string{"tsla", "f", "F", ""}}.Article(now)
	assert.Equal(t, "TSLA", a.Ticker)
	assert.Equal(t, now, a.PublishedAt)
	assert.Equal(t, model.SourceNews, a.SourceType)
	assert.Equal(t, model.TierStandard, a.SourceTier)
	assert.Nil(t, a.ClusterID)
	assert.Equal(t, []string{"F"}, []string(a.RelatedTickers))
}

func TestImpactScoreEndToEnd(t *testing.T) {
	p, store := newTestPipeline(t)
	queue := &recordingQueue{}
	p.SetQueue(queue)
	ctx := context.Background()
	user, aapl := seedPortfolio(t, store)

	article, _, err := p.Ingest(ctx, acquisitionNews("https://news.example.com/e2e", "Reuters", time.Now().Add(-time.Hour)))
	require.NoError(t, err)

	result, err := p.AnalyzeArticle(ctx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Signal.Sentiment)
	assert.Equal(t, 3, result.Signal.Magnitude)
	assert.Equal(t, 0.9, result.Signal.Confidence)
	assert.Contains(t, queue.kinds(), jobs.KindArticleImpacts)

	stats, err := p.ComputeArticleImpacts(ctx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, ImpactStats{Users: 1, Written: 1}, stats)

	imp, err := store.GetImpact(ctx, user.ID, article.ID, aapl.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, imp.Exposure, 1e-9)
	assert.InDelta(t, 0.24, imp.AdjustedExposure, 1e-9)
	assert.Equal(t, 0.648, imp.ImpactScore)
	assert.Equal(t, "Apple to acquire chip startup, shares surge", imp.Headline)

	// 0.648 低于 0.7 的筛选阈值
	filtered, total, err := store.ListImpacts(ctx, database.ImpactFilter{UserID: user.ID, MinAbsScore: 0.7})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, filtered)

	all, total, err := store.ListImpacts(ctx, database.ImpactFilter{UserID: user.ID, MinAbsScore: 0.6})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, all, 1)

	// 重复计算不产生新行
	again, err := p.ComputeArticleImpacts(ctx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, ImpactStats{Users: 1, Skipped: 1}, again)
	_, total, err = store.ListImpacts(ctx, database.ImpactFilter{UserID: user.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestComputeArticleImpactsWithoutSignal(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()
	seedPortfolio(t, store)

	article, _, err := p.Ingest(ctx, acquisitionNews("https://news.example.com/early", "Reuters", time.Now()))
	require.NoError(t, err)

	_, err = p.ComputeArticleImpacts(ctx, article.ID)
	require.ErrorIs(t, err, ErrSignalNotReady)
	assert.True(t, jobs.IsRetryable(classify(err)))

	_, err = p.ComputeArticleImpacts(ctx, "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, database.ErrNotFound)
	assert.False(t, jobs.IsRetryable(classify(err)))
}

func TestClusterConsensusRefreshesMembers(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-3 * time.Hour)

	var ids []string
	var results []*AnalysisResult
	for i, publisher := range []string{"Reuters", "Bloomberg", "WSJ"} {
		req := acquisitionNews("https://news.example.com/c"+publisher, publisher, base.Add(time.Duration(i)*time.Hour))
		req.SourceTier = model.TierStandard
		a, _, err := p.Ingest(ctx, req)
		require.NoError(t, err)
		ids = append(ids, a.ID)

		res, err := p.AnalyzeArticle(ctx, a.ID)
		require.NoError(t, err)
		results = append(results, res)
	}

	first, err := store.GetArticle(ctx, ids[0])
	require.NoError(t, err)
	third, err := store.GetArticle(ctx, ids[2])
	require.NoError(t, err)
	assert.Equal(t, *first.ClusterID, *third.ClusterID)

	assert.Equal(t, 0.0, results[0].Signal.ConsensusBonus)
	assert.Equal(t, 0.10, results[1].Signal.ConsensusBonus)
	assert.Equal(t, []string{ids[0]}, results[1].Refreshed)
	assert.Equal(t, 0.15, results[2].Signal.ConsensusBonus)
	assert.Equal(t, 3, results[2].Consensus.Sources)
	assert.ElementsMatch(t, ids[:2], results[2].Refreshed)

	sig, err := store.GetSignal(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, 0.15, sig.ConsensusBonus)
	assert.InDelta(t, 0.85, sig.Confidence, 1e-9)
}

func TestClusterMembersAnalyzedConcurrently(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-3 * time.Hour)

	var ids []string
	for i, publisher := range []string{"Reuters", "Bloomberg", "WSJ"} {
		req := acquisitionNews("https://news.example.com/race-"+publisher, publisher, base.Add(time.Duration(i)*time.Minute))
		req.SourceTier = model.TierStandard
		a, _, err := p.Ingest(ctx, req)
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = p.AnalyzeArticle(ctx, id)
		}(i, id)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	// 无论执行顺序，最后完成的分析都能看到三个来源并回写其余成员
	for _, id := range ids {
		sig, err := store.GetSignal(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 0.15, sig.ConsensusBonus, id)
		assert.InDelta(t, 0.85, sig.Confidence, 1e-9)
	}
}

func TestIngestKeysAnalysisByCluster(t *testing.T) {
	p, _ := newTestPipeline(t)
	queue := &recordingQueue{}
	p.SetQueue(queue)
	ctx := context.Background()
	at := time.Now().UTC().Add(-time.Hour)

	a, _, err := p.Ingest(ctx, acquisitionNews("https://news.example.com/key-a", "Reuters", at))
	require.NoError(t, err)
	b, _, err := p.Ingest(ctx, acquisitionNews("https://news.example.com/key-b", "Bloomberg", at.Add(time.Minute)))
	require.NoError(t, err)
	require.NotNil(t, a.ClusterID)
	assert.Equal(t, *a.ClusterID, *b.ClusterID)

	assert.Equal(t, []string{*a.ClusterID, *a.ClusterID}, queue.keys(jobs.KindAnalyzeArticle))

	// 不归簇的文章以自身为键
	c, _, err := p.Ingest(ctx, IngestRequest{Ticker: "AAPL", SourceURL: "https://news.example.com/key-c"})
	require.NoError(t, err)
	assert.Nil(t, c.ClusterID)
	assert.Equal(t, c.ID, queue.keys(jobs.KindAnalyzeArticle)[2])
}

func TestReconcileClusterJoinsEarliestConcurrentCluster(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()
	at := time.Now().UTC().Add(-time.Hour)

	clusterA := "b0000000-0000-0000-0000-000000000000"
	clusterB := "a0000000-0000-0000-0000-000000000000"
	newArticle := func(url, clusterID string, created time.Time) *model.Article {
		id := clusterID
		a := &model.Article{
			Ticker: "AAPL", Headline: "Apple to acquire chip startup", SourceURL: url, Publisher: "Reuters",
			PublishedAt: at, Category: model.CategoryMergerAcquisition, ClusterID: &id, CreatedAt: created,
		}
		ok, err := store.CreateArticle(ctx, a)
		require.NoError(t, err)
		require.True(t, ok)
		return a
	}
	// 两篇文章各自在看不到对方时新开了簇
	first := newArticle("https://news.example.com/rc-1", clusterA, at)
	second := newArticle("https://news.example.com/rc-2", clusterB, at.Add(time.Second))

	require.NoError(t, p.reconcileCluster(ctx, second))
	require.NoError(t, p.reconcileCluster(ctx, first))

	for _, id := range []string{first.ID, second.ID} {
		a, err := store.GetArticle(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, clusterA, *a.ClusterID)
	}
	assert.Equal(t, clusterA, *second.ClusterID)
}

func TestRecomputeUserImpactsPicksUpNewHolding(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	user := &model.User{Username: "carol"}
	require.NoError(t, store.CreateUser(ctx, user))

	article, _, err := p.Ingest(ctx, acquisitionNews("https://news.example.com/late", "Reuters", time.Now().Add(-2*time.Hour)))
	require.NoError(t, err)
	_, err = p.AnalyzeArticle(ctx, article.ID)
	require.NoError(t, err)

	stats, err := p.RecomputeUserImpacts(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.Written)

	require.NoError(t, store.CreateHolding(ctx, &model.Holding{UserID: user.ID, Ticker: "AAPL", Shares: decimal.NewFromInt(5)}))
	stats, err = p.RecomputeUserImpacts(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Written)

	// 单一持仓占比 100%，集中度调整后 1 × 3 × 0.9 × 1.2
	impacts, _, err := store.ListImpacts(ctx, database.ImpactFilter{UserID: user.ID})
	require.NoError(t, err)
	require.Len(t, impacts, 1)
	assert.Equal(t, 3.24, impacts[0].ImpactScore)

	total, err := p.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, total.Written)
	assert.Equal(t, 1, total.Skipped)
}

func TestRecomputeUserImpactsUnknownUser(t *testing.T) {
	p, _ := newTestPipeline(t)
	_, err := p.RecomputeUserImpacts(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestDeliverHighImpactOnlyOncePerArticle(t *testing.T) {
	p, store := newTestPipeline(t)
	publisher := &fakePublisher{}
	p.SetPublisher(publisher)
	ctx := context.Background()

	user := &model.User{Username: "dave"}
	require.NoError(t, store.CreateUser(ctx, user))
	require.NoError(t, store.CreateHolding(ctx, &model.Holding{UserID: user.ID, Ticker: "AAPL", Shares: decimal.NewFromInt(1)}))

	article, _, err := p.Ingest(ctx, acquisitionNews("https://news.example.com/hi", "Reuters", time.Now().Add(-time.Hour)))
	require.NoError(t, err)
	_, err = p.AnalyzeArticle(ctx, article.ID)
	require.NoError(t, err)
	_, err = p.ComputeArticleImpacts(ctx, article.ID)
	require.NoError(t, err)

	a, err := p.DeliverHighImpact(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, model.AlertSent, a.Status)
	assert.Equal(t, model.SeverityCritical, a.Severity)
	assert.Equal(t, []string{article.ID}, []string(a.ArticleIDs))
	require.Len(t, publisher.alerts, 1)

	stored, err := store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertSent, stored.Status)

	again, err := p.DeliverHighImpact(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestDeliverDailyDigestRecordsPublishFailure(t *testing.T) {
	p, store := newTestPipeline(t)
	p.SetPublisher(&fakePublisher{err: errors.New("nats down")})
	ctx := context.Background()

	user := &model.User{Username: "erin"}
	require.NoError(t, store.CreateUser(ctx, user))

	a, err := p.DeliverDailyDigest(ctx, user.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.AlertFailed, a.Status)

	stored, err := store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertFailed, stored.Status)
	assert.Equal(t, "nats down", stored.LastError)
}

func TestHandlersRunThroughLocalQueue(t *testing.T) {
	p, store := newTestPipeline(t)
	registry := jobs.NewRegistry()
	p.RegisterHandlers(registry)
	queue := jobs.NewLocalQueue(registry, 2, 3, 10*time.Millisecond)
	p.SetQueue(queue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()

	user, aapl := seedPortfolio(t, store)
	article, created, err := p.Ingest(ctx, acquisitionNews("https://news.example.com/queued", "Reuters", time.Now().Add(-time.Hour)))
	require.NoError(t, err)
	require.True(t, created)

	require.Eventually(t, func() bool {
		_, err := store.GetImpact(ctx, user.ID, article.ID, aapl.ID)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	assert.ElementsMatch(t, []jobs.Kind{
		jobs.KindAnalyzeArticle, jobs.KindArticleImpacts, jobs.KindUserImpacts,
		jobs.KindRecalculateAll, jobs.KindDailyDigest, jobs.KindHighImpactAlerts,
	}, registry.Kinds())
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := newKeyedMutex()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		running int
		peak    int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("user-1")
			mu.Lock()
			running++
			peak = max(peak, running)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, peak)
	assert.Empty(t, k.locks)
}

package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ImpactRadar/pkg/config"
	"ImpactRadar/pkg/jobs"
)

type fakeUsers struct {
	ids []string
	err error
}

func (f fakeUsers) ListUserIDs(context.Context) ([]string, error) { return f.ids, f.err }

type fakeQueue struct {
	mu       sync.Mutex
	payloads []any
	kinds    []jobs.Kind
	failKey  string
}

func (q *fakeQueue) Submit(_ context.Context, kind jobs.Kind, key string, payload any) (jobs.Handle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if key == q.failKey {
		return jobs.Handle{}, errors.New("queue full")
	}
	q.kinds = append(q.kinds, kind)
	q.payloads = append(q.payloads, payload)
	return jobs.Handle{Kind: kind, Key: key}, nil
}

func TestDailyDigestSubmitsPerUser(t *testing.T) {
	queue := &fakeQueue{failKey: "u2"}
	s := NewScheduler(config.Scheduler{}, fakeUsers{ids: []string{"u1", "u2", "u3"}}, queue, nil)
	day := time.Date(2024, 5, 6, 18, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return day }

	assert.Equal(t, 2, s.DailyDigest(context.Background()))
	assert.Equal(t, []jobs.Kind{jobs.KindDailyDigest, jobs.KindDailyDigest}, queue.kinds)
	assert.Equal(t, jobs.DigestPayload{UserID: "u1", Day: day}, queue.payloads[0])
}

func TestHighImpactSweepUserListFailure(t *testing.T) {
	queue := &fakeQueue{}
	s := NewScheduler(config.Scheduler{}, fakeUsers{err: errors.New("db down")}, queue, nil)
	assert.Zero(t, s.HighImpactSweep(context.Background()))
	assert.Empty(t, queue.kinds)
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	s := NewScheduler(config.Scheduler{Enabled: true, DailyDigest: "not a cron"}, fakeUsers{}, &fakeQueue{}, nil)
	assert.Error(t, s.Start(context.Background()))
}

func TestStartSkipsFanOutWhenDisabled(t *testing.T) {
	cfg := config.Scheduler{DailyDigest: "not a cron", HighImpactSweep: "@every 10m", ProviderPoll: "@every 15m"}
	s := NewScheduler(cfg, fakeUsers{}, &fakeQueue{}, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.Empty(t, s.cron.Entries())

	cfg.Enabled = true
	cfg.DailyDigest = "0 0 18 * * 1-5"
	enabled := NewScheduler(cfg, fakeUsers{}, &fakeQueue{}, nil)
	require.NoError(t, enabled.Start(context.Background()))
	defer enabled.Stop()
	assert.Len(t, enabled.cron.Entries(), 2)
}

func TestStartRunsPoller(t *testing.T) {
	polled := make(chan struct{}, 1)
	s := NewScheduler(config.Scheduler{ProviderPoll: "* * * * * *"}, fakeUsers{}, &fakeQueue{}, func(context.Context) {
		select {
		case polled <- struct{}{}:
		default:
		}
	})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	select {
	case <-polled:
	case <-time.After(3 * time.Second):
		t.Fatal("新闻拉取未被调度")
	}
}

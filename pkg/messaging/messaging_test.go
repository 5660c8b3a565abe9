package messaging

import (
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ImpactRadar/pkg/jobs"
	"ImpactRadar/pkg/model"
)

func TestDispose(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		err       error
		delivered int
		wantNil   bool
		wantTerm  bool
		wantDelay time.Duration
	}{
		{name: "success", err: nil, delivered: 1, wantNil: true},
		{name: "permanent failure", err: boom, delivered: 1, wantTerm: true},
		{name: "retryable first attempt", err: jobs.Retryable(boom), delivered: 1, wantDelay: time.Second},
		{name: "retryable backs off", err: jobs.Retryable(boom), delivered: 2, wantDelay: 2 * time.Second},
		{name: "retryable exhausted", err: jobs.Retryable(boom), delivered: 3, wantTerm: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dispose(tt.err, tt.delivered, 3, time.Second)
			if tt.wantNil {
				assert.NoError(t, got)
				return
			}
			var d *disposition
			require.ErrorAs(t, got, &d)
			assert.ErrorIs(t, got, boom)
			assert.Equal(t, tt.wantTerm, d.term)
			assert.Equal(t, tt.wantDelay, d.delay)
		})
	}
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "jobs.article_impacts", JobSubject(jobs.KindArticleImpacts))
	assert.Equal(t, "alerts.high_impact", AlertSubject(model.AlertHighImpact))
}

func TestStreamConfigsCoverSubjects(t *testing.T) {
	cfgs := streamConfigs()
	require.Len(t, cfgs, 2)
	assert.Equal(t, JobsStream, cfgs[0].Name)
	assert.Equal(t, jetstream.WorkQueuePolicy, cfgs[0].Retention)
	assert.Equal(t, []string{"jobs.>"}, cfgs[0].Subjects)
	assert.Equal(t, []string{"alerts.*"}, cfgs[1].Subjects)
}

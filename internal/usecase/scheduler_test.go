package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrendPress/internal/domain"
)

type manualDriver struct {
	job     func(time.Time)
	stopped bool
}

func (m *manualDriver) Start(_ context.Context, job func(time.Time)) error {
	m.job = job
	return nil
}

func (m *manualDriver) Stop(context.Context) error {
	m.stopped = true
	return nil
}

func TestSchedulerRunsPipelineOnTrigger(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	driver := &manualDriver{}
	s := NewScheduler(driver, h.pipeline(fakeSource{topics: []domain.Topic{{Text: "AI Art"}}}), nil)

	require.NoError(t, s.Start(context.Background()))
	require.NotNil(t, driver.job)
	driver.job(h.now)

	assert.True(t, h.get(t, 1).Published())
	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, driver.stopped)
}

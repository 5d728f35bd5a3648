package evaluator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/paddledesk/internal/logging"
	"github.com/nhle/paddledesk/internal/model"
)

type countingChecker struct {
	mu    sync.Mutex
	sizes []int
}

func (c *countingChecker) Check(_ context.Context, bookings []model.Booking) Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sizes = append(c.sizes, len(bookings))
	return Report{}
}

func (c *countingChecker) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sizes)
}

func (c *countingChecker) Last() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sizes[len(c.sizes)-1]
}

func newTestRunner(enabled bool) (*Runner, *countingChecker, *clock.Mock) {
	mock := clock.NewMock()
	check := &countingChecker{}
	r := NewRunner("test", check, RunnerOptions{
		Config: model.EvaluatorConfig{Enabled: enabled, IntervalSec: 30, DebounceMs: 1000},
		Clock:  mock,
		Logger: logging.Discard(),
	})
	return r, check, mock
}

func TestRunnerImmediateAndPeriodic(t *testing.T) {
	r, check, mock := newTestRunner(true)
	r.Start(context.Background())
	defer r.Stop()

	assert.Equal(t, 1, check.Count(), "start runs a pass immediately")

	mock.Add(29 * time.Second)
	assert.Equal(t, 1, check.Count())

	mock.Add(time.Second)
	require.Eventually(t, func() bool { return check.Count() == 2 }, time.Second, 5*time.Millisecond)

	mock.Add(30 * time.Second)
	require.Eventually(t, func() bool { return check.Count() == 3 }, time.Second, 5*time.Millisecond)
}

func TestRunnerDebouncesSizeChanges(t *testing.T) {
	r, check, mock := newTestRunner(true)
	r.Start(context.Background())
	defer r.Stop()

	r.Update(make([]model.Booking, 1))
	mock.Add(500 * time.Millisecond)
	r.Update(make([]model.Booking, 2))
	mock.Add(500 * time.Millisecond)
	assert.Equal(t, 1, check.Count(), "second change pushes the check back")

	mock.Add(500 * time.Millisecond)
	require.Eventually(t, func() bool { return check.Count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, check.Last())

	// Same size: no extra pass.
	r.Update(make([]model.Booking, 2))
	mock.Add(2 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, check.Count())
}

func TestRunnerDisabled(t *testing.T) {
	r, check, mock := newTestRunner(false)
	r.Start(context.Background())
	defer r.Stop()

	mock.Add(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, check.Count())

	r.SetEnabled(true)
	r.CheckNow(context.Background())
	assert.Equal(t, 1, check.Count())
}

func TestRunnerStop(t *testing.T) {
	r, check, mock := newTestRunner(true)
	r.Start(context.Background())
	r.Stop()
	r.Stop()

	mock.Add(5 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, check.Count())
}

func TestRunnerReports(t *testing.T) {
	var got []Report
	r := NewRunner("alerts", &countingChecker{}, RunnerOptions{
		Config:   model.EvaluatorConfig{Enabled: true},
		Clock:    clock.NewMock(),
		Logger:   logging.Discard(),
		OnReport: func(rep Report) { got = append(got, rep) },
	})

	r.CheckNow(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, "alerts", got[0].Evaluator)
}

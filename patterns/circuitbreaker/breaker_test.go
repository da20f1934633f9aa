package circuitbreaker

import (
	"context"
	stdErrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocomposite/errors"
	"gocomposite/logging"
)

var errBoom = errors.NewUnexpected(500, "boom", nil)

func testConfig() Config {
	return Config{
		FailureThreshold:    3,
		OpenTimeout:         40 * time.Millisecond,
		HalfOpenMaxRequests: 1,
	}
}

func newTestBreaker() *Breaker {
	return New("product", testConfig(), logging.NewNoopLogger())
}

func fail(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		_, _ = Execute(b, func() (int, error) { return 0, errBoom })
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := newTestBreaker()

	fail(b, 2)
	assert.Equal(t, StateClosed, b.State())

	fail(b, 1)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_OpenRejectsWithoutCalling(t *testing.T) {
	b := newTestBreaker()
	fail(b, 3)

	var calls atomic.Int32
	_, err := Execute(b, func() (int, error) {
		calls.Add(1)
		return 1, nil
	})

	require.Error(t, err)
	assert.True(t, errors.IsCircuitOpen(err))
	assert.Zero(t, calls.Load())
}

func TestBreaker_HalfOpenSingleProbeThenClose(t *testing.T) {
	b := newTestBreaker()
	fail(b, 3)
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	var probeErr error
	go func() {
		defer wg.Done()
		_, probeErr = Execute(b, func() (string, error) {
			close(started)
			<-release
			return "ok", nil
		})
	}()
	<-started

	// 探测进行中，第二个请求被拒绝
	var extra atomic.Int32
	_, err := Execute(b, func() (string, error) {
		extra.Add(1)
		return "", nil
	})
	assert.True(t, errors.IsCircuitOpen(err))
	assert.Zero(t, extra.Load())

	close(release)
	wg.Wait()
	require.NoError(t, probeErr)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := newTestBreaker()
	fail(b, 3)
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	fail(b, 1)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_TerminalErrorsAreNotFailures(t *testing.T) {
	b := newTestBreaker()

	for i := 0; i < 10; i++ {
		_, err := Execute(b, func() (int, error) { return 0, errors.NewNotFound("no product") })
		assert.True(t, errors.IsNotFound(err))
		_, err = Execute(b, func() (int, error) { return 0, errors.NewInvalidInput("bad id") })
		assert.True(t, errors.IsInvalidInput(err))
	}
	_, _ = Execute(b, func() (int, error) { return 0, context.Canceled })

	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Counts().TotalFailures)
}

func TestBreaker_ReturnsValue(t *testing.T) {
	b := newTestBreaker()

	v, err := Execute(b, func() (string, error) { return "value", nil })

	require.NoError(t, err)
	assert.Equal(t, "value", v)
}

func TestBreaker_PassesThroughCallError(t *testing.T) {
	b := newTestBreaker()
	plain := stdErrors.New("plain")

	_, err := Execute(b, func() (int, error) { return 0, plain })

	assert.Same(t, plain, err)
}

func TestShouldTrip_FailureRate(t *testing.T) {
	cfg := Config{FailureRateThreshold: 50, MinimumRequests: 4}

	assert.False(t, shouldTrip(cfg, Counts{Requests: 3, TotalFailures: 3}))
	assert.True(t, shouldTrip(cfg, Counts{Requests: 4, TotalFailures: 2}))
	assert.False(t, shouldTrip(cfg, Counts{Requests: 4, TotalFailures: 1}))
}

func TestRegistry_OneBreakerPerName(t *testing.T) {
	r := NewRegistry(testConfig(), logging.NewNoopLogger())
	r.Configure("review", Config{FailureThreshold: 1, OpenTimeout: time.Minute})

	product := r.Get("product")
	assert.Same(t, product, r.Get("product"))

	review := r.Get("review")
	fail(review, 1)

	states := r.States()
	assert.Equal(t, StateClosed, states["product"])
	assert.Equal(t, StateOpen, states["review"])
}

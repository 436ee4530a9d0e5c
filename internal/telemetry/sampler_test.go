package telemetry

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// scriptedSource returns heights in order and then repeats the last one. Calls whose
// index is set in fail return errPoll.
type scriptedSource struct {
	mu      sync.Mutex
	heights []float64
	fail    map[int]bool
	calls   int
}

var errPoll = errors.New("poll failed")

func (s *scriptedSource) Height(context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.calls
	s.calls++

	if s.fail[i] {
		return 0, errPoll
	}
	if i >= len(s.heights) {
		return s.heights[len(s.heights)-1], nil
	}
	return s.heights[i], nil
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// slowSource answers after delay
type slowSource struct {
	delay time.Duration
	calls atomic.Int32
}

func (s *slowSource) Height(context.Context) (float64, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	return 1, nil
}

func (s *slowSource) Calls() int {
	return int(s.calls.Load())
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Condition not met within %s", timeout)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSampler_PublishesAltitude(t *testing.T) {
	src := &scriptedSource{heights: []float64{10, 20, 30}}
	state := NewState()
	s := NewSampler(src, state, WithPeriod(5*time.Millisecond))

	done, err := s.BeginSampling(context.Background())
	if err != nil {
		t.Fatalf("Failed to begin sampling: %v", err)
	}
	defer s.Stop()

	waitFor(t, time.Second, func() bool { return src.Calls() >= 3 })

	got := state.Get()
	if !got.Valid() || *got.Altitude != 30 {
		t.Errorf("Expected altitude 30, got %+v", got)
	}
	if !s.IsSampling() {
		t.Errorf("Expected sampler to be running")
	}

	s.Stop()
	<-done
	if s.IsSampling() {
		t.Errorf("Expected sampler to be stopped")
	}
}

func TestSampler_AlreadySampling(t *testing.T) {
	s := NewSampler(&scriptedSource{heights: []float64{1}}, NewState(), WithPeriod(5*time.Millisecond))

	if _, err := s.BeginSampling(context.Background()); err != nil {
		t.Fatalf("Failed to begin sampling: %v", err)
	}
	defer s.Stop()

	if _, err := s.BeginSampling(context.Background()); !errors.Is(err, ErrAlreadySampling) {
		t.Errorf("Expected ErrAlreadySampling, got %v", err)
	}
}

func TestSampler_RetainsLastGoodValueOnFailure(t *testing.T) {
	src := &scriptedSource{heights: []float64{50}, fail: map[int]bool{}}
	for i := 1; i < 1000; i++ {
		src.fail[i] = true
	}
	state := NewState()
	s := NewSampler(src, state, WithPeriod(2*time.Millisecond), WithFailuresThreshold(3))

	if _, err := s.BeginSampling(context.Background()); err != nil {
		t.Fatalf("Failed to begin sampling: %v", err)
	}

	waitFor(t, time.Second, func() bool { return state.ConsecutiveFailures() >= 3 })
	s.Stop()

	got := state.Get()
	if !got.Valid() || *got.Altitude != 50 {
		t.Errorf("Expected last good altitude 50, got %+v", got)
	}
	if got.ConsecutiveFailures < 3 {
		t.Errorf("Expected at least 3 consecutive failures, got %d", got.ConsecutiveFailures)
	}
}

func TestSampler_ConsecutiveFailuresSurface(t *testing.T) {
	src := &scriptedSource{heights: []float64{0}, fail: map[int]bool{}}
	for i := 0; i < 100; i++ {
		src.fail[i] = true
	}
	state := NewState()
	s := NewSampler(src, state, WithPeriod(time.Millisecond))

	if _, err := s.BeginSampling(context.Background()); err != nil {
		t.Fatalf("Failed to begin sampling: %v", err)
	}
	defer s.Stop()

	waitFor(t, time.Second, func() bool { return state.ConsecutiveFailures() >= 5 })

	if state.Get().Valid() {
		t.Errorf("Expected no valid sample when every poll fails")
	}
}

func TestSampler_StopsWithinOnePeriod(t *testing.T) {
	const period = 50 * time.Millisecond

	src := &scriptedSource{heights: []float64{1}}
	state := NewState()
	s := NewSampler(src, state, WithPeriod(period))

	done, err := s.BeginSampling(context.Background())
	if err != nil {
		t.Fatalf("Failed to begin sampling: %v", err)
	}

	waitFor(t, time.Second, func() bool { return src.Calls() >= 2 })

	state.SignalStop()
	stoppedAt := time.Now()
	callsAtStop := src.Calls()

	select {
	case <-done:
	case <-time.After(period):
		t.Fatalf("Sampler did not exit within one period")
	}
	if elapsed := time.Since(stoppedAt); elapsed > period {
		t.Errorf("Expected exit within %s, took %s", period, elapsed)
	}

	time.Sleep(3 * period)
	if calls := src.Calls(); calls > callsAtStop {
		t.Errorf("Expected no polls after stop, got %d more", calls-callsAtStop)
	}
}

func TestSampler_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSampler(&scriptedSource{heights: []float64{1}}, NewState(), WithPeriod(5*time.Millisecond))

	done, err := s.BeginSampling(ctx)
	if err != nil {
		t.Fatalf("Failed to begin sampling: %v", err)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Sampler did not exit on context cancellation")
	}
}

func TestSampler_NonFiniteAltitudeIsFailure(t *testing.T) {
	src := &scriptedSource{heights: []float64{42, math.NaN(), math.Inf(1), math.Inf(-1)}}
	state := NewState()
	s := NewSampler(src, state, WithPeriod(2*time.Millisecond))

	done, err := s.BeginSampling(context.Background())
	if err != nil {
		t.Fatalf("Failed to begin sampling: %v", err)
	}

	waitFor(t, time.Second, func() bool { return state.ConsecutiveFailures() >= 3 })
	state.SignalStop()
	<-done

	got := state.Get()
	if got.Altitude == nil || *got.Altitude != 42 {
		t.Fatalf("Expected last good altitude 42, got %v", got.Altitude)
	}
	if got.Fresh() {
		t.Errorf("Expected a sample retained through failures not to be fresh")
	}
}

func TestSampler_FixedPeriod(t *testing.T) {
	const period = 20 * time.Millisecond

	src := &slowSource{delay: 12 * time.Millisecond}
	s := NewSampler(src, NewState(), WithPeriod(period))

	done, err := s.BeginSampling(context.Background())
	if err != nil {
		t.Fatalf("Failed to begin sampling: %v", err)
	}
	time.Sleep(10*period + period/2)
	s.Stop()
	<-done

	// polls start on the period grid, the poll time does not add to the cadence
	if calls := src.Calls(); calls < 9 {
		t.Errorf("Expected at least 9 polls in 10.5 periods, got %d", calls)
	}
}

func TestAwaitFreshSample(t *testing.T) {
	state := NewState()
	state.Write(10)
	state.RecordFailure()

	if _, err := AwaitFreshSample(context.Background(), state, time.Millisecond, 20*time.Millisecond); !errors.Is(err, ErrNoSample) {
		t.Fatalf("Expected ErrNoSample for a stale sample, got %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		state.Write(12)
	}()

	got, err := AwaitFreshSample(context.Background(), state, time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("Failed to await sample: %v", err)
	}
	if *got.Altitude != 12 {
		t.Errorf("Expected altitude 12, got %.2f", *got.Altitude)
	}
}

func TestAwaitFirstSample(t *testing.T) {
	state := NewState()
	go func() {
		time.Sleep(10 * time.Millisecond)
		state.Write(77)
	}()

	got, err := AwaitFirstSample(context.Background(), state, time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("Failed to await sample: %v", err)
	}
	if *got.Altitude != 77 {
		t.Errorf("Expected altitude 77, got %.2f", *got.Altitude)
	}
}

func TestAwaitFirstSample_Timeout(t *testing.T) {
	_, err := AwaitFirstSample(context.Background(), NewState(), time.Millisecond, 20*time.Millisecond)
	if !errors.Is(err, ErrNoSample) {
		t.Errorf("Expected ErrNoSample, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded in chain, got %v", err)
	}
}

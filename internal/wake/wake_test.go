package wake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockLocker counts acquisitions and releases, and can be configured to
// fail acquisition.
type mockLocker struct {
	mu       sync.Mutex
	acquires int
	releases int
	failErr  error
}

type mockLock struct {
	locker *mockLocker
}

func (l *mockLock) Release() {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	l.locker.releases++
}

func (m *mockLocker) Acquire(ctx context.Context, tag string, timeout time.Duration) (Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	m.acquires++
	return &mockLock{locker: m}, nil
}

func (m *mockLocker) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquires, m.releases
}

func TestWithWakeLock_ReleasesOnSuccess(t *testing.T) {
	locker := &mockLocker{}

	err := WithWakeLock(context.Background(), locker, time.Second, func() error {
		return nil
	})
	if err != nil {
		t.Fatalf("WithWakeLock() error = %v", err)
	}

	acquires, releases := locker.counts()
	if acquires != 1 || releases != 1 {
		t.Errorf("expected 1 acquire / 1 release, got %d / %d", acquires, releases)
	}
}

func TestWithWakeLock_ReleasesWhenBodyFails(t *testing.T) {
	locker := &mockLocker{}
	bodyErr := errors.New("presentation failed")

	err := WithWakeLock(context.Background(), locker, time.Second, func() error {
		return bodyErr
	})
	if !errors.Is(err, bodyErr) {
		t.Errorf("expected body error to propagate, got %v", err)
	}

	acquires, releases := locker.counts()
	if acquires != releases {
		t.Errorf("release count %d != acquire count %d", releases, acquires)
	}
}

func TestWithWakeLock_ReleasesOnPanic(t *testing.T) {
	locker := &mockLocker{}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = WithWakeLock(context.Background(), locker, time.Second, func() error {
			panic("handler bug")
		})
	}()

	acquires, releases := locker.counts()
	if acquires != 1 || releases != 1 {
		t.Errorf("expected 1 acquire / 1 release after panic, got %d / %d", acquires, releases)
	}
}

func TestWithWakeLock_AcquisitionFailureStillRunsBody(t *testing.T) {
	locker := &mockLocker{failErr: errors.New("bridge unavailable")}

	ran := false
	err := WithWakeLock(context.Background(), locker, time.Second, func() error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithWakeLock() error = %v", err)
	}
	if !ran {
		t.Error("expected body to run despite acquisition failure")
	}

	_, releases := locker.counts()
	if releases != 0 {
		t.Errorf("expected no releases without an acquisition, got %d", releases)
	}
}

func TestWithWakeLock_IndependentLocksPerMessage(t *testing.T) {
	locker := &mockLocker{}

	// Two concurrent messages each acquire their own lock instance.
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_ = WithWakeLock(context.Background(), locker, time.Second, func() error {
				time.Sleep(10 * time.Millisecond)
				return nil
			})
		}()
	}
	close(start)
	wg.Wait()

	acquires, releases := locker.counts()
	if acquires != 2 || releases != 2 {
		t.Errorf("expected 2 acquires / 2 releases, got %d / %d", acquires, releases)
	}
}

func TestWithWakeLock_ZeroTimeoutUsesDefault(t *testing.T) {
	var gotTimeout time.Duration
	locker := lockerFunc(func(ctx context.Context, tag string, timeout time.Duration) (Lock, error) {
		gotTimeout = timeout
		return nopLock{}, nil
	})

	_ = WithWakeLock(context.Background(), locker, 0, func() error { return nil })

	if gotTimeout != DefaultTimeout {
		t.Errorf("expected default timeout %v, got %v", DefaultTimeout, gotTimeout)
	}
}

type lockerFunc func(ctx context.Context, tag string, timeout time.Duration) (Lock, error)

func (f lockerFunc) Acquire(ctx context.Context, tag string, timeout time.Duration) (Lock, error) {
	return f(ctx, tag, timeout)
}

type nopLock struct{}

func (nopLock) Release() {}

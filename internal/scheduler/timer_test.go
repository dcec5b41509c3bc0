package scheduler

import (
	"testing"
	"time"
)

func waitFired(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not fire in time")
	}
}

func TestScheduleAtFires(t *testing.T) {
	timer := NewJobTimer()
	defer timer.Stop()

	fired := make(chan struct{})
	timer.ScheduleAt("job1", time.Now().Add(10*time.Millisecond), func() {
		close(fired)
	})
	waitFired(t, fired)
}

func TestScheduleAtPastTimeFiresImmediately(t *testing.T) {
	timer := NewJobTimer()
	defer timer.Stop()

	fired := make(chan struct{})
	timer.ScheduleAt("job1", time.Now().Add(-time.Hour), func() {
		close(fired)
	})
	waitFired(t, fired)
}

func TestScheduleAtReplacesExistingKey(t *testing.T) {
	timer := NewJobTimer()
	defer timer.Stop()

	firstFired := make(chan struct{})
	secondFired := make(chan struct{})
	timer.ScheduleAt("job1", time.Now().Add(50*time.Millisecond), func() {
		close(firstFired)
	})
	timer.ScheduleAt("job1", time.Now().Add(10*time.Millisecond), func() {
		close(secondFired)
	})

	waitFired(t, secondFired)
	select {
	case <-firstFired:
		t.Fatal("replaced job should not fire")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCancelPreventsFiring(t *testing.T) {
	timer := NewJobTimer()
	defer timer.Stop()

	fired := make(chan struct{})
	timer.ScheduleAt("job1", time.Now().Add(50*time.Millisecond), func() {
		close(fired)
	})
	timer.Cancel("job1")

	select {
	case <-fired:
		t.Fatal("cancelled job should not fire")
	case <-time.After(200 * time.Millisecond):
	}
	if got := timer.Pending(); len(got) != 0 {
		t.Errorf("Pending() = %v, want empty", got)
	}
}

func TestCancelUnknownKeyIsNoOp(t *testing.T) {
	timer := NewJobTimer()
	defer timer.Stop()
	timer.Cancel("missing")
}

func TestStopCancelsAllJobs(t *testing.T) {
	timer := NewJobTimer()

	fired := make(chan struct{}, 2)
	for _, key := range []string{"a", "b"} {
		timer.ScheduleAt(key, time.Now().Add(50*time.Millisecond), func() {
			fired <- struct{}{}
		})
	}
	timer.Stop()

	select {
	case <-fired:
		t.Fatal("stopped job should not fire")
	case <-time.After(200 * time.Millisecond):
	}
	if got := timer.Pending(); len(got) != 0 {
		t.Errorf("Pending() = %v, want empty", got)
	}
}

func TestPendingReturnsSortedKeys(t *testing.T) {
	timer := NewJobTimer()
	defer timer.Stop()

	timer.ScheduleAt("post_2_0", time.Now().Add(time.Hour), func() {})
	timer.ScheduleAt("post_1_0", time.Now().Add(time.Hour), func() {})

	got := timer.Pending()
	if len(got) != 2 || got[0] != "post_1_0" || got[1] != "post_2_0" {
		t.Errorf("Pending() = %v, want [post_1_0 post_2_0]", got)
	}
}

func TestCallbackPanicIsRecovered(t *testing.T) {
	timer := NewJobTimer()
	defer timer.Stop()

	panicked := make(chan struct{})
	timer.ScheduleAt("bad", time.Now().Add(5*time.Millisecond), func() {
		close(panicked)
		panic("boom")
	})
	waitFired(t, panicked)

	// The timer must still accept and fire new jobs after the panic.
	fired := make(chan struct{})
	timer.ScheduleAt("good", time.Now().Add(5*time.Millisecond), func() {
		close(fired)
	})
	waitFired(t, fired)
}

func TestFiredJobRemovedFromPending(t *testing.T) {
	timer := NewJobTimer()
	defer timer.Stop()

	fired := make(chan struct{})
	timer.ScheduleAt("job1", time.Now().Add(5*time.Millisecond), func() {
		close(fired)
	})
	waitFired(t, fired)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(timer.Pending()) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("Pending() = %v, want empty after firing", timer.Pending())
}

package goroutine

import (
	"runtime"
	"testing"
	"time"
)

// AssertNoLeaks fails the test if, after it finishes, the goroutine count
// does not return to what it was when AssertNoLeaks was called. Call it
// first in tests that start stores or servers.
func AssertNoLeaks(t *testing.T) {
	t.Helper()
	snapshot := TakeSnapshot()
	t.Cleanup(func() {
		snapshot.AssertNoLeak(t, 5*time.Second)
	})
}

// Snapshot is a goroutine count taken at a point in time.
type Snapshot struct {
	Count int
	Time  time.Time
}

// TakeSnapshot captures the current goroutine count
func TakeSnapshot() Snapshot {
	return Snapshot{Count: runtime.NumGoroutine(), Time: time.Now()}
}

// AssertNoLeak waits up to timeout for the goroutine count to drop back to
// the snapshot, then fails the test with a full stack dump if it has not.
func (s Snapshot) AssertNoLeak(t *testing.T, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= s.Count {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}

	current := runtime.NumGoroutine()
	if current > s.Count {
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		t.Errorf("goroutine leak: snapshot had %d goroutines, now have %d (leaked %d) over %v",
			s.Count, current, current-s.Count, time.Since(s.Time))
		t.Logf("Active goroutines:\n%s", buf[:n])
	}
}

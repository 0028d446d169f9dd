package goroutine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecover_NoPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core).Sugar()

	func() {
		defer Recover("quiet-goroutine", logger)
	}()

	assert.Empty(t, logs.All())
}

func TestRecover_LogsPanicValues(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  interface{}
	}{
		{"string", "test panic message", "test panic message"},
		{"int", 42, int64(42)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.ErrorLevel)
			logger := zap.New(core).Sugar()

			func() {
				defer Recover("panicking-goroutine", logger)
				panic(tt.value)
			}()

			entries := logs.All()
			require.Len(t, entries, 1)
			assert.Equal(t, "Goroutine panic recovered", entries[0].Message)

			fields := entries[0].ContextMap()
			assert.Equal(t, "panicking-goroutine", fields["goroutine"])
			assert.Equal(t, tt.want, fields["panic"])
			stack, ok := fields["stack"].(string)
			require.True(t, ok)
			assert.Contains(t, stack, "goroutine")
		})
	}
}

func TestRecover_NestedPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core).Sugar()

	func() {
		defer Recover("outer-goroutine", logger)
		func() {
			panic("inner panic")
		}()
	}()

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "inner panic", entries[0].ContextMap()["panic"])
}

func TestRecover_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		defer Recover("no-logger", nil)
		panic("written to stderr")
	})
}

func TestGo_RecoversAndKeepsRunning(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core).Sugar()

	done := make(chan struct{})
	Go("worker", logger, func() {
		defer close(done)
		panic("worker failed")
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine did not run")
	}

	assert.Eventually(t, func() bool { return logs.Len() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "worker", logs.All()[0].ContextMap()["goroutine"])
}

func TestAssertNoLeaks_StoppedGoroutine(t *testing.T) {
	AssertNoLeaks(t)

	stop := make(chan struct{})
	Go("ticker", zaptest.NewLogger(t).Sugar(), func() {
		<-stop
	})
	close(stop)
}

func TestSnapshot_DetectsLeak(t *testing.T) {
	snapshot := TakeSnapshot()
	stop := make(chan struct{})
	defer close(stop)
	go func() { <-stop }()

	assert.Greater(t, TakeSnapshot().Count, snapshot.Count)
}

package glog

import (
	"errors"
	"testing"
	"time"

	"github.com/go-kit/log"
)

func newTestLogger(interval time.Duration) (*ErrorLogger, *[][]interface{}, *time.Time) {
	var lines [][]interface{}
	clock := time.Unix(0, 0)
	l := New(log.LoggerFunc(func(keyvals ...interface{}) error {
		lines = append(lines, keyvals)
		return nil
	}), interval)
	l.now = func() time.Time { return clock }
	return l, &lines, &clock
}

func TestErrorLoggerDeduplicates(t *testing.T) {
	l, lines, clock := newTestLogger(10 * time.Second)
	errA := errors.New("connection refused")
	errB := errors.New("timed out")

	tests := []struct {
		err     error
		advance time.Duration
		logged  bool
	}{
		{errA, 0, true},
		{errA, time.Second, false},
		{errB, 0, true},
		{errA, 5 * time.Second, false},
		// the repeat keeps the error tracked, so the interval restarts
		{errA, 9 * time.Second, false},
		{errA, 10 * time.Second, true},
		{nil, 0, false},
	}
	for i, test := range tests {
		*clock = clock.Add(test.advance)
		if got := l.Error(test.err); got != test.logged {
			t.Fatalf("%d: expected logged=%v for %v but got %v", i, test.logged, test.err, got)
		}
	}
	if len(*lines) != 3 {
		t.Fatalf("expected 3 log lines but got %d: %v", len(*lines), *lines)
	}
}

func TestErrorLoggerKeyvals(t *testing.T) {
	l, lines, _ := newTestLogger(time.Minute)
	l.Error(errors.New("boom"), "target", "10.0.0.1:502")

	got := (*lines)[0]
	expected := []interface{}{"err", "boom", "target", "10.0.0.1:502"}
	// level.Error prepends the level pair.
	if len(got) != len(expected)+2 {
		t.Fatalf("expected %d keyvals but got %v", len(expected)+2, got)
	}
	for i, kv := range expected {
		if got[i+2] != kv {
			t.Fatalf("expected %v at %d but got %v", kv, i+2, got[i+2])
		}
	}
}

func TestErrorLoggerReset(t *testing.T) {
	l, _, _ := newTestLogger(time.Minute)
	err := errors.New("boom")
	l.Error(err)
	if l.Error(err) {
		t.Fatal("expected the repeat to be dropped")
	}
	l.Reset()
	if !l.Error(err) {
		t.Fatal("expected the error to be logged after Reset")
	}
}

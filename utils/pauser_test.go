package utils

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.viam.com/test"

	"go.viam.com/vio/logging"
)

// waitResult advances the mock clock until Wait returns.
func waitResult(t *testing.T, mock *clock.Mock, done <-chan bool) bool {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		mock.Add(DefaultPollInterval)
		select {
		case v := <-done:
			return v
		case <-deadline:
			t.Fatal("Wait did not return")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestPauserContinueAndQuit(t *testing.T) {
	ctx := context.Background()
	r, w := io.Pipe()
	p := NewPauser(ctx, r, clock.NewMock(), logging.NewTestLogger(t))
	defer func() {
		test.That(t, p.Close(), test.ShouldBeNil)
	}()

	done := make(chan bool, 1)
	go func() { done <- p.Wait(ctx) }()
	_, err := w.Write([]byte("\n"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, <-done, test.ShouldBeTrue)
	test.That(t, p.Stopped(), test.ShouldBeFalse)

	go func() { done <- p.Wait(ctx) }()
	_, err = w.Write([]byte("q\n"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, <-done, test.ShouldBeFalse)
	test.That(t, p.Stopped(), test.ShouldBeTrue)

	// Once stopped, Wait returns right away.
	test.That(t, p.Wait(ctx), test.ShouldBeFalse)
}

func TestPauserCancel(t *testing.T) {
	r, _ := io.Pipe()
	mock := clock.NewMock()
	p := NewPauser(context.Background(), r, mock, logging.NewTestLogger(t))
	defer func() {
		test.That(t, p.Close(), test.ShouldBeNil)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() { done <- p.Wait(ctx) }()
	cancel()
	test.That(t, waitResult(t, mock, done), test.ShouldBeFalse)
	test.That(t, p.Stopped(), test.ShouldBeFalse)
}

func TestPauserEndOfInput(t *testing.T) {
	r, w := io.Pipe()
	mock := clock.NewMock()
	p := NewPauser(context.Background(), r, mock, logging.NewTestLogger(t))
	defer func() {
		test.That(t, p.Close(), test.ShouldBeNil)
	}()
	test.That(t, w.Close(), test.ShouldBeNil)

	for i := 0; i < 3; i++ {
		done := make(chan bool, 1)
		go func() { done <- p.Wait(context.Background()) }()
		test.That(t, waitResult(t, mock, done), test.ShouldBeTrue)
	}
}

func TestStoppableWorkers(t *testing.T) {
	var started, finished atomic.Int32
	worker := func(ctx context.Context) {
		started.Inc()
		<-ctx.Done()
		finished.Inc()
	}
	sw := NewStoppableWorkers(context.Background(), worker, worker)
	sw.AddWorkers(worker)
	sw.Stop()
	test.That(t, started.Load(), test.ShouldEqual, int32(3))
	test.That(t, finished.Load(), test.ShouldEqual, int32(3))
	test.That(t, sw.Context().Err(), test.ShouldNotBeNil)

	sw.AddWorkers(worker)
	sw.Stop()
	test.That(t, started.Load(), test.ShouldEqual, int32(3))

	parent, cancel := context.WithCancel(context.Background())
	sw = NewStoppableWorkers(parent, worker)
	cancel()
	sw.Stop()
	test.That(t, finished.Load(), test.ShouldEqual, int32(4))
}

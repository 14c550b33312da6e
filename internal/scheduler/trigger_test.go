package scheduler

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "eventbell/pkg/logx"
)

func TestNewRejectsBadSpec(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Spec: "61 * * * *"}, func(context.Context) {}, logx.Nop()); err == nil {
		t.Fatal("expected cron parse error")
	}
	if _, err := New(Config{Spec: "* * * * *"}, nil, logx.Nop()); err == nil {
		t.Fatal("expected error for nil run func")
	}
}

func TestJobSkipsWhileRunning(t *testing.T) {
	t.Parallel()
	var (
		runs    int32
		release = make(chan struct{})
		started = make(chan struct{}, 1)
	)
	tr, err := New(Config{Spec: "* * * * *"}, func(ctx context.Context) {
		atomic.AddInt32(&runs, 1)
		started <- struct{}{}
		<-release
	}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); tr.job.Run() }()
	<-started

	// overlapping tick is dropped without blocking
	done := make(chan struct{})
	go func() { tr.job.Run(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("overlapping tick blocked")
	}

	close(release)
	wg.Wait()
	if n := atomic.LoadInt32(&runs); n != 1 {
		t.Fatalf("runs = %d, want 1", n)
	}
}

func TestJobRecoversPanic(t *testing.T) {
	var buf bytes.Buffer
	tr, err := New(Config{Spec: "* * * * *"}, func(ctx context.Context) { panic("boom") }, logx.NewJSON(&buf, "debug"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr.job.Run()
	if !strings.Contains(buf.String(), "panic") {
		t.Fatalf("panic not logged: %s", buf.String())
	}
}

func TestRunTimeoutApplied(t *testing.T) {
	t.Parallel()
	got := make(chan bool, 1)
	tr, err := New(Config{Spec: "* * * * *", RunTimeout: time.Minute}, func(ctx context.Context) {
		_, ok := ctx.Deadline()
		got <- ok
	}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr.job.Run()
	if !<-got {
		t.Fatal("run context should carry a deadline")
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("JST", 9*3600)
	tr, err := New(Config{Spec: "* * * * *", Location: loc}, func(context.Context) {}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !tr.Next().IsZero() {
		t.Fatal("Next should be zero before Start")
	}
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	next := tr.Next()
	if next.IsZero() || next.Second() != 0 || next.Location() != loc {
		t.Fatalf("Next = %v", next)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	tr.Stop(ctx)
	if !tr.Next().IsZero() {
		t.Fatal("Next should be zero after Stop")
	}
}

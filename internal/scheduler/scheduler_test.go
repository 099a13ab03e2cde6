package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shiva/geomatch/config"
)

func TestTimeLocation_DefaultsToUTC(t *testing.T) {
	loc, err := timeLocation("")
	if err != nil {
		t.Fatalf("timeLocation(\"\") error: %v", err)
	}
	if loc != time.UTC {
		t.Errorf("timeLocation(\"\") = %v, want UTC", loc)
	}
}

func TestTimeLocation_NamedZone(t *testing.T) {
	loc, err := timeLocation("America/Chicago")
	if err != nil {
		t.Fatalf("timeLocation error: %v", err)
	}
	if loc.String() != "America/Chicago" {
		t.Errorf("timeLocation name = %q, want America/Chicago", loc.String())
	}
}

func TestTimeLocation_InvalidZone(t *testing.T) {
	if _, err := timeLocation("Not/AZone"); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}

func TestNew_DisabledReturnsNil(t *testing.T) {
	s, err := New(config.SchedulerConfig{Enabled: false}, nil, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if s != nil {
		t.Fatalf("New(disabled) = %v, want nil", s)
	}
	// nil-receiver guards must make these no-ops, not panics.
	s.Start()
	s.Stop()
}

func TestNew_InvalidCronSpec(t *testing.T) {
	_, err := New(config.SchedulerConfig{Enabled: true, CronLocal: "not-a-time"}, nil, nil)
	if err == nil {
		t.Fatal("expected error for invalid SCHEDULER_CRON_LOCAL")
	}
}

type fakeRunner struct {
	calls   int32
	block   chan struct{}
	failNow bool
}

func (f *fakeRunner) RunMatching(ctx context.Context, triggeredBy string) error {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		<-f.block
	}
	return nil
}

func TestRunOnce_SkipsWhileInFlight(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	s := &Scheduler{runner: runner, logger: zap.NewNop()}

	done := make(chan struct{})
	go func() {
		s.runOnce()
		close(done)
	}()

	// Give the first runOnce time to claim the in-flight guard.
	time.Sleep(20 * time.Millisecond)
	s.runOnce() // should skip immediately since runner is still blocked

	close(runner.block)
	<-done

	if got := atomic.LoadInt32(&runner.calls); got != 1 {
		t.Errorf("runner.calls = %d, want 1 (second runOnce should have been skipped)", got)
	}
}

func TestRunOnce_RunsAgainAfterPreviousFinishes(t *testing.T) {
	runner := &fakeRunner{}
	s := &Scheduler{runner: runner, logger: zap.NewNop()}

	s.runOnce()
	s.runOnce()

	if got := atomic.LoadInt32(&runner.calls); got != 2 {
		t.Errorf("runner.calls = %d, want 2", got)
	}
}

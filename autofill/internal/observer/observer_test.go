package observer

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sigSource is a controllable signature function plus change recorder.
type sigSource struct {
	mu      sync.Mutex
	sig     string
	changes []string
}

func (s *sigSource) signature(context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sig
}

func (s *sigSource) set(sig string) {
	s.mu.Lock()
	s.sig = sig
	s.mu.Unlock()
}

func (s *sigSource) onChange(sig string) {
	s.mu.Lock()
	s.changes = append(s.changes, sig)
	s.mu.Unlock()
}

func (s *sigSource) changed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.changes...)
}

func newTestObserver(t *testing.T, src *sigSource, window time.Duration) *Observer {
	t.Helper()
	o := New(Config{
		Window:    window,
		Signature: src.signature,
		OnChange:  src.onChange,
		Logger:    testLogger(),
	})
	return o
}

func TestObserver_BurstCoalescesToOneTrigger(t *testing.T) {
	src := &sigSource{sig: "changed"}
	o := newTestObserver(t, src, 20*time.Millisecond)
	o.SetBaseline("initial")
	o.Start(context.Background())
	defer o.Stop()

	for i := 0; i < 10; i++ {
		o.Notify()
		time.Sleep(2 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	if got := src.changed(); len(got) != 1 {
		t.Fatalf("OnChange calls: got %d, want 1 (burst must coalesce)", len(got))
	}
}

func TestObserver_UnchangedSignatureSkipsTrigger(t *testing.T) {
	src := &sigSource{sig: "same"}
	o := newTestObserver(t, src, 10*time.Millisecond)
	o.SetBaseline("same")
	o.Start(context.Background())
	defer o.Stop()

	o.Notify()
	time.Sleep(60 * time.Millisecond)

	if got := src.changed(); len(got) != 0 {
		t.Fatalf("OnChange calls: got %d, want 0 (signature unchanged)", len(got))
	}
}

func TestObserver_IdenticalConsecutiveBatchesTriggerOnce(t *testing.T) {
	src := &sigSource{sig: "v2"}
	o := newTestObserver(t, src, 10*time.Millisecond)
	o.SetBaseline("v1")
	o.Start(context.Background())
	defer o.Stop()

	// First batch: v1 -> v2, triggers.
	o.Notify()
	time.Sleep(60 * time.Millisecond)
	// Second batch produces the identical signature: no second trigger.
	o.Notify()
	time.Sleep(60 * time.Millisecond)

	if got := src.changed(); len(got) != 1 {
		t.Fatalf("OnChange calls: got %d, want 1 for identical signature", len(got))
	}
}

func TestObserver_SequentialChangesEachTrigger(t *testing.T) {
	src := &sigSource{sig: "v2"}
	o := newTestObserver(t, src, 10*time.Millisecond)
	o.SetBaseline("v1")
	o.Start(context.Background())
	defer o.Stop()

	o.Notify()
	time.Sleep(60 * time.Millisecond)
	src.set("v3")
	o.Notify()
	time.Sleep(60 * time.Millisecond)

	got := src.changed()
	if len(got) != 2 || got[0] != "v2" || got[1] != "v3" {
		t.Fatalf("OnChange calls: got %v, want [v2 v3]", got)
	}
}

func TestObserver_StopCancelsPendingTimer(t *testing.T) {
	src := &sigSource{sig: "changed"}
	o := newTestObserver(t, src, 30*time.Millisecond)
	o.SetBaseline("initial")
	o.Start(context.Background())

	o.Notify()
	o.Stop() // before the window expires

	time.Sleep(80 * time.Millisecond)
	if got := src.changed(); len(got) != 0 {
		t.Fatalf("OnChange after Stop: got %d calls, want 0", len(got))
	}
}

package detect

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/infilloai/infillo-sub001/autofill/internal/inference"
	"github.com/infilloai/infillo-sub001/autofill/suggest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// blockingService blocks each DetectForm call until released.
type blockingService struct {
	calls   atomic.Int32
	release chan struct{}
	resp    *inference.DetectResponse
	err     error
}

func newBlockingService(resp *inference.DetectResponse, err error) *blockingService {
	return &blockingService{release: make(chan struct{}), resp: resp, err: err}
}

func (s *blockingService) DetectForm(ctx context.Context, req inference.DetectRequest) (*inference.DetectResponse, error) {
	s.calls.Add(1)
	<-s.release
	return s.resp, s.err
}

func successResponse() *inference.DetectResponse {
	return &inference.DetectResponse{
		FormID: "form-1",
		Suggestions: map[string][]suggest.SuggestionEntry{
			"email": {{Value: "a@example.com"}},
		},
	}
}

func TestRequest_SingleFlightDropsOverlappingTriggers(t *testing.T) {
	svc := newBlockingService(successResponse(), nil)
	c := New(svc, WithLogger(testLogger()))

	if !c.Request(context.Background(), inference.DetectRequest{}) {
		t.Fatalf("first Request: dropped, want accepted")
	}
	// Wait until the goroutine has marked itself in flight and called the service.
	waitFor(t, func() bool { return svc.calls.Load() == 1 })

	// Two further structural mutations while the first is outstanding.
	if c.Request(context.Background(), inference.DetectRequest{}) {
		t.Errorf("second Request: accepted, want dropped")
	}
	if c.Request(context.Background(), inference.DetectRequest{}) {
		t.Errorf("third Request: accepted, want dropped")
	}
	if got := svc.calls.Load(); got != 1 {
		t.Errorf("service calls: got %d, want 1", got)
	}

	close(svc.release)
	res := <-c.Results()
	if res.Session.Status != suggest.StatusSuccess {
		t.Errorf("status: got %s, want success", res.Session.Status)
	}

	// Back to Idle: a new request is accepted again.
	if !c.Request(context.Background(), inference.DetectRequest{}) {
		t.Errorf("Request after completion: dropped, want accepted")
	}
	<-c.Results()
}

func TestRequest_EmptySuggestions(t *testing.T) {
	svc := newBlockingService(&inference.DetectResponse{FormID: "form-2"}, nil)
	close(svc.release)
	c := New(svc, WithLogger(testLogger()))

	c.Request(context.Background(), inference.DetectRequest{})
	res := <-c.Results()
	if res.Session.Status != suggest.StatusEmpty {
		t.Errorf("status: got %s, want empty", res.Session.Status)
	}
	if res.Err != nil {
		t.Errorf("err: got %v, want nil", res.Err)
	}
}

func TestRequest_ServiceFailure(t *testing.T) {
	svc := newBlockingService(nil, errors.New("service down"))
	close(svc.release)
	c := New(svc, WithLogger(testLogger()))

	c.Request(context.Background(), inference.DetectRequest{})
	res := <-c.Results()
	if res.Session.Status != suggest.StatusFailed {
		t.Errorf("status: got %s, want failed", res.Session.Status)
	}
	if res.Err == nil {
		t.Errorf("err: got nil, want service error")
	}
	if !c.Request(context.Background(), inference.DetectRequest{}) {
		t.Errorf("Request after failure: dropped, want accepted (engine retries on next change)")
	}
	<-c.Results()
}

func TestRequest_LateResultAfterCancelIsDiscarded(t *testing.T) {
	svc := newBlockingService(successResponse(), nil)
	c := New(svc, WithLogger(testLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	c.Request(ctx, inference.DetectRequest{})
	waitFor(t, func() bool { return svc.calls.Load() == 1 })

	cancel() // engine stopped
	close(svc.release)

	// The goroutine must return to Idle without anyone reading Results.
	waitFor(t, func() bool { return !c.InFlight() })

	select {
	case res := <-c.Results():
		// Delivery raced the cancel; either way the consumer is responsible
		// for the Active check, but after Idle nothing must be pending.
		_ = res
	case <-time.After(50 * time.Millisecond):
	}

	if !c.Request(context.Background(), inference.DetectRequest{}) {
		t.Errorf("Request after cancelled run: dropped, want accepted")
	}
}

func TestStoreAndReset(t *testing.T) {
	c := New(newBlockingService(nil, nil), WithLogger(testLogger()))
	sess := &suggest.DetectionSession{FormID: "form-1", Status: suggest.StatusSuccess}
	c.Store(sess)
	if got := c.Current(); got == nil || got.FormID != "form-1" {
		t.Fatalf("Current: got %+v, want stored session", got)
	}
	c.Reset()
	if c.Current() != nil {
		t.Errorf("Current after Reset: got non-nil, want nil")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

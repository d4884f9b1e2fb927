package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"quota-gateway/middleware/ratelimit/domain"
)

type fakeStore struct {
	count     int64
	ttl       time.Duration
	err       error
	available bool
	calls     int
}

func (s *fakeStore) Available() bool { return s.available }

func (s *fakeStore) Increment(_ context.Context, _ domain.Key, window time.Duration) (int64, time.Duration, error) {
	s.calls++
	if s.err != nil {
		return 0, 0, s.err
	}
	s.count++
	if s.ttl == 0 {
		return s.count, window, nil
	}
	return s.count, s.ttl, nil
}

func fixedNow(epochMs int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(epochMs).UTC() }
}

func TestService_Decide_BypassesWhenNoStore(t *testing.T) {
	svc := Service{}
	out, err := svc.Decide(context.Background(), "k", domain.Window{Total: 10, Duration: time.Hour}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Bypassed {
		t.Fatalf("expected bypass when no store configured")
	}
}

func TestService_Decide_BypassesWhenStoreDisconnected(t *testing.T) {
	store := &fakeStore{available: false}
	svc := Service{Store: store}

	out, err := svc.Decide(context.Background(), "k", domain.Window{Total: 10, Duration: time.Hour}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Bypassed {
		t.Fatalf("expected bypass when store reports disconnected")
	}
	if store.calls != 0 {
		t.Fatalf("expected no increment on disconnected store, got %d", store.calls)
	}
}

func TestService_Decide_BypassesOnUnavailableError(t *testing.T) {
	store := &fakeStore{available: true, err: domain.ErrStoreUnavailable}
	svc := Service{Store: store}

	out, err := svc.Decide(context.Background(), "k", domain.Window{Total: 10, Duration: time.Hour}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Bypassed {
		t.Fatalf("expected bypass on ErrStoreUnavailable")
	}
}

func TestService_Decide_ToleratedStoreErrorBypasses(t *testing.T) {
	store := &fakeStore{available: true, err: &domain.StoreError{Op: "increment", Key: "k", Err: errors.New("boom")}}
	svc := Service{Store: store}

	out, err := svc.Decide(context.Background(), "k", domain.Window{Total: 10, Duration: time.Hour}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Bypassed {
		t.Fatalf("expected bypass with tolerateErrors=true")
	}
}

func TestService_Decide_FatalStoreErrorPropagates(t *testing.T) {
	store := &fakeStore{available: true, err: &domain.StoreError{Op: "increment", Key: "k", Err: errors.New("boom")}}
	svc := Service{Store: store}

	_, err := svc.Decide(context.Background(), "k", domain.Window{Total: 10, Duration: time.Hour}, false)
	if err == nil {
		t.Fatalf("expected error to propagate with tolerateErrors=false")
	}
	if !domain.IsStoreError(err) {
		t.Fatalf("expected StoreError, got %v", err)
	}
}

func TestService_Evaluate_CountsDownRemainingThenDenies(t *testing.T) {
	store := &fakeStore{available: true}
	svc := Service{Store: store, Now: fixedNow(0)}
	win := domain.Window{Total: 3, Duration: time.Hour}

	for i := 0; i < 3; i++ {
		dec, err := svc.Evaluate(context.Background(), "k", win)
		if err != nil {
			t.Fatalf("unexpected error at request %d: %v", i+1, err)
		}
		if !dec.Allowed {
			t.Fatalf("expected request %d allowed", i+1)
		}
		if want := 3 - (i + 1); dec.Remaining != want {
			t.Fatalf("expected remaining=%d at request %d, got %d", want, i+1, dec.Remaining)
		}
		if dec.Limit != 3 {
			t.Fatalf("expected limit=3, got %d", dec.Limit)
		}
	}

	dec, err := svc.Evaluate(context.Background(), "k", win)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("expected 4th request denied")
	}
	if dec.Remaining != 0 {
		t.Fatalf("expected remaining=0 when denied, got %d", dec.Remaining)
	}
	if dec.RetryAfter <= 0 {
		t.Fatalf("expected positive RetryAfter, got %s", dec.RetryAfter)
	}
}

func TestService_Evaluate_ZeroTotalDeniesFirstRequest(t *testing.T) {
	store := &fakeStore{available: true}
	svc := Service{Store: store, Now: fixedNow(0)}

	dec, err := svc.Evaluate(context.Background(), "k", domain.Window{Total: 0, Duration: time.Hour})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("expected denial with total=0")
	}
	if dec.Remaining != 0 {
		t.Fatalf("expected remaining=0, got %d", dec.Remaining)
	}
}

func TestService_Evaluate_ResetIsAbsoluteCeilingSeconds(t *testing.T) {
	// agora = 100ms epoch, ttl = 3600000ms => reset em 3600100ms,
	// teto em segundos = 3601.
	store := &fakeStore{available: true}
	svc := Service{Store: store, Now: fixedNow(100)}

	dec, err := svc.Evaluate(context.Background(), "k", domain.Window{Total: 10, Duration: time.Hour})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.ResetAt != 3601 {
		t.Fatalf("expected ResetAt=3601, got %d", dec.ResetAt)
	}
}

func TestService_Evaluate_ExactSecondDoesNotRoundUp(t *testing.T) {
	store := &fakeStore{available: true}
	svc := Service{Store: store, Now: fixedNow(0)}

	dec, err := svc.Evaluate(context.Background(), "k", domain.Window{Total: 10, Duration: time.Hour})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.ResetAt != 3600 {
		t.Fatalf("expected ResetAt=3600, got %d", dec.ResetAt)
	}
}

package infra

import (
	"context"
	"testing"

	"quota-gateway/middleware/ratelimit/domain"
)

func TestMemoryStats_CountsOutcomesPerRoute(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))

	events := []domain.Event{
		{Key: "k1", Allowed: true, Method: "GET", Path: "/api"},
		{Key: "k1", Allowed: false, Method: "GET", Path: "/api"},
		{Key: "k2", Allowed: true, Bypassed: true, Method: "GET", Path: "/api"},
		{Key: "k1", Allowed: true, Method: "POST", Path: "/login"},
	}
	for _, ev := range events {
		if err := s.Record(context.Background(), ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	total := s.Total()
	if total.Allowed != 2 || total.Denied != 1 || total.Bypassed != 1 {
		t.Fatalf("unexpected totals: %+v", total)
	}

	api := s.ByRoute()["GET /api"]
	if api.Allowed != 1 || api.Denied != 1 || api.Bypassed != 1 {
		t.Fatalf("unexpected route counters: %+v", api)
	}

	k1 := s.ByKey()["k1"]
	if k1.Allowed != 2 || k1.Denied != 1 {
		t.Fatalf("unexpected key counters: %+v", k1)
	}
}

package dispatchlog

import (
	"context"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/ridemarket-backend/dispatch"
	"github.com/semanticallynull/ridemarket-backend/partnership"
)

func newTestRecorder(t *testing.T) *RedisRecorder {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping integration test")
	}
	client, err := NewClient(context.Background(), addr)
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewRedisRecorder(client)
}

func TestRedisRecorder_DispatchAndResolve(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	v1, v2 := uuid.New(), uuid.New()
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	o := dispatch.Offer{
		RequestID: "req_" + uuid.NewString(),
		BookingID: uuid.New(),
		CompanyID: uuid.New(),
		Targets:   partnership.NewSet(v1, v2),
		Status:    dispatch.OfferPending,
		CreatedAt: created,
	}
	t.Cleanup(func() {
		rec.redis.Del(context.Background(), requestKey(o.RequestID), requestKey(o.RequestID)+notifiedSuffix)
	})

	if err := rec.RecordDispatch(ctx, o); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	o.Status = dispatch.OfferResolved
	o.ResolvedBy = &v2
	o.ResolvedAt = created.Add(time.Minute)
	if err := rec.RecordResolution(ctx, o); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e, ok, err := rec.Lookup(ctx, o.RequestID)
	if err != nil || !ok {
		t.Fatalf("expected an entry, got %v, %v", ok, err)
	}
	if e.BookingID != o.BookingID.String() || e.ResolvedBy != v2.String() {
		t.Errorf("unexpected entry %+v", e)
	}
	if !e.DispatchedAt.Equal(created) || !e.ResolvedAt.Equal(o.ResolvedAt) {
		t.Errorf("unexpected timestamps %s, %s", e.DispatchedAt, e.ResolvedAt)
	}
	slices.Sort(e.Notified)
	want := []string{v1.String(), v2.String()}
	slices.Sort(want)
	if !slices.Equal(e.Notified, want) {
		t.Errorf("expected notified %v, got %v", want, e.Notified)
	}

	ttl, err := rec.redis.TTL(ctx, requestKey(o.RequestID)).Result()
	if err != nil || ttl <= 0 || ttl > keyTTL {
		t.Errorf("expected ledger key to expire within %s, got %s (%v)", keyTTL, ttl, err)
	}
}

func TestRedisRecorder_LateTarget(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	v1, late := uuid.New(), uuid.New()
	o := dispatch.Offer{
		RequestID: "req_" + uuid.NewString(),
		BookingID: uuid.New(),
		CompanyID: uuid.New(),
		Targets:   partnership.NewSet(v1),
		Status:    dispatch.OfferPending,
		CreatedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	t.Cleanup(func() {
		rec.redis.Del(context.Background(), requestKey(o.RequestID), requestKey(o.RequestID)+notifiedSuffix)
	})

	if err := rec.RecordDispatch(ctx, o); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rec.RecordTarget(ctx, o.RequestID, late); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e, ok, err := rec.Lookup(ctx, o.RequestID)
	if err != nil || !ok {
		t.Fatalf("expected an entry, got %v, %v", ok, err)
	}
	if !slices.Contains(e.Notified, late.String()) || len(e.Notified) != 2 {
		t.Errorf("expected the late vendor among the notified, got %v", e.Notified)
	}
	ttl, err := rec.redis.TTL(ctx, requestKey(o.RequestID)+notifiedSuffix).Result()
	if err != nil || ttl <= 0 || ttl > keyTTL {
		t.Errorf("expected the notified set to expire within %s, got %s (%v)", keyTTL, ttl, err)
	}
}

func TestRedisRecorder_LookupMissing(t *testing.T) {
	rec := newTestRecorder(t)

	_, ok, err := rec.Lookup(context.Background(), "req_missing_"+uuid.NewString())
	if err != nil || ok {
		t.Errorf("expected no entry, got %v, %v", ok, err)
	}
}

func TestRecordResolution_RequiresWinner(t *testing.T) {
	rec := NewRedisRecorder(nil)

	if err := rec.RecordResolution(context.Background(), dispatch.Offer{RequestID: "req_1"}); err == nil {
		t.Error("expected an error for an offer without a winner")
	}
}

func TestRequestKey(t *testing.T) {
	if got := requestKey("req_1"); got != "dispatch:req:req_1" {
		t.Errorf("unexpected key %q", got)
	}
}

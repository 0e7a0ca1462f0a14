package redisstore

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/ethpandaops/xatu-dashboard/internal/cache"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *Client, context.Context) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return mr, rc, ctx
}

func TestNew_EmptyAddr(t *testing.T) {
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty addr")
	}
}

func TestSetGetDel_RoundTrip(t *testing.T) {
	_, rc, ctx := newClient(t)

	want := cache.Entry{
		Payload:    []byte(`{"percentiles":{"p50":311}}`),
		ComputedAt: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	}
	if err := rc.Set(ctx, "v1:mainnet:block-arrival:-7d", want); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := rc.Get(ctx, "v1:mainnet:block-arrival:-7d")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(got.Payload) != string(want.Payload) {
		t.Fatalf("payload=%q want %q", got.Payload, want.Payload)
	}
	if !got.ComputedAt.Equal(want.ComputedAt) {
		t.Fatalf("computed_at=%v want %v", got.ComputedAt, want.ComputedAt)
	}

	if err := rc.Del(ctx, "v1:mainnet:block-arrival:-7d"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, ok, err := rc.Get(ctx, "v1:mainnet:block-arrival:-7d"); err != nil || ok {
		t.Fatalf("after Del: ok=%v err=%v", ok, err)
	}
}

func TestGet_MissingKeyIsNotAnError(t *testing.T) {
	_, rc, ctx := newClient(t)

	_, ok, err := rc.Get(ctx, "v1:mainnet:users:-31d")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected miss for absent key")
	}
}

func TestEntries_SurviveTimePassing(t *testing.T) {
	mr, rc, ctx := newClient(t)

	e := cache.Entry{Payload: []byte("x"), ComputedAt: time.Now().UTC()}
	if err := rc.Set(ctx, "v1:holesky:nodes:-90d", e); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// no Redis TTL is attached; even well past any refresh interval the
	// entry must still be readable so a failed recompute can serve stale
	mr.FastForward(240 * time.Hour)

	got, ok, err := rc.Get(ctx, "v1:holesky:nodes:-90d")
	if err != nil || !ok {
		t.Fatalf("Get after fast-forward: ok=%v err=%v", ok, err)
	}
	if string(got.Payload) != "x" {
		t.Fatalf("payload=%q want %q", got.Payload, "x")
	}
}

func TestGet_CorruptEnvelope(t *testing.T) {
	mr, rc, ctx := newClient(t)

	if err := mr.Set("v1:mainnet:users:-7d", "{not-json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := rc.Get(ctx, "v1:mainnet:users:-7d"); err == nil {
		t.Fatal("expected decode error for corrupt envelope")
	}
}

func TestDel_NoKeysIsNoOp(t *testing.T) {
	_, rc, ctx := newClient(t)
	if err := rc.Del(ctx); err != nil {
		t.Fatalf("Del with no keys: %v", err)
	}
}

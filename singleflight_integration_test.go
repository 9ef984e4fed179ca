package pokeclient

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

func TestMissJoinsBackgroundRevalidation(t *testing.T) {
	gate := make(chan struct{})
	server, calls := countingServer(t, func(n int32, _ http.ResponseWriter, _ *http.Request) bool {
		if n == 2 {
			<-gate
		}
		return true
	})
	clock := newFakeClock()
	client := newTestClient(server, WithClock(clock.Now))
	opts := []RequestOption{WithCacheTTL(cacheTTL), WithStaleTTL(staleTTL), WithSWR(true)}

	if _, err := client.Get(context.Background(), "/pokemon/1", opts...); err != nil {
		t.Fatalf("initial Get: %v", err)
	}
	clock.Advance(10 * time.Minute)
	if _, err := client.Get(context.Background(), "/pokemon/1", opts...); err != nil {
		t.Fatalf("stale Get: %v", err)
	}
	waitUntil(t, func() bool { return atomic.LoadInt32(calls) == 2 })

	// With the entry gone, a read has to wait on the network; it shares the
	// revalidation already in flight instead of starting another call.
	client.Invalidate("GET:/pokemon/1")
	done := make(chan counter, 1)
	go func() {
		v, err := GetJSON[counter](context.Background(), client, "/pokemon/1", opts...)
		if err != nil {
			t.Errorf("joined Get: %v", err)
		}
		done <- v
	}()
	time.Sleep(20 * time.Millisecond)
	close(gate)

	select {
	case v := <-done:
		if v.N != 2 {
			t.Errorf("joined Get returned %+v, want revalidated value", v)
		}
	case <-time.After(time.Second):
		t.Fatal("joined Get did not return")
	}
	if n := atomic.LoadInt32(calls); n != 2 {
		t.Errorf("network calls = %d, want 2", n)
	}
}

func TestRevalidationSkippedWhileFetchInFlight(t *testing.T) {
	gate := make(chan struct{})
	server, calls := countingServer(t, func(n int32, _ http.ResponseWriter, _ *http.Request) bool {
		if n == 2 {
			<-gate
		}
		return true
	})
	clock := newFakeClock()
	client := newTestClient(server, WithClock(clock.Now))
	swr := []RequestOption{WithCacheTTL(cacheTTL), WithStaleTTL(staleTTL), WithSWR(true)}

	if _, err := client.Get(context.Background(), "/pokemon/1", swr...); err != nil {
		t.Fatalf("initial Get: %v", err)
	}
	clock.Advance(10 * time.Minute)

	// A non-SWR read of the stale entry goes to the network and registers
	// the key; the SWR read that follows must not start a second call.
	blocking := make(chan error, 1)
	go func() {
		_, err := client.Get(context.Background(), "/pokemon/1", WithCacheTTL(cacheTTL), WithStaleTTL(staleTTL))
		blocking <- err
	}()
	waitUntil(t, func() bool { return client.inflight.InFlight("GET:/pokemon/1") })

	if _, err := client.Get(context.Background(), "/pokemon/1", swr...); err != nil {
		t.Fatalf("stale Get: %v", err)
	}
	close(gate)
	if err := <-blocking; err != nil {
		t.Fatalf("blocking Get: %v", err)
	}
	if n := atomic.LoadInt32(calls); n != 2 {
		t.Errorf("network calls = %d, want 2", n)
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

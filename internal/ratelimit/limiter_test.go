package ratelimit

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	logger, _ := test.NewNullLogger()
	return NewLimiter(client, logger), mr
}

func TestAllow_WithinAndOverLimit(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 3, Window: time.Minute}

	for i := 1; i <= 3; i++ {
		ok, err := l.Allow(ctx, "1.2.3.4", rule)
		if err != nil {
			t.Fatalf("Allow() #%d error: %v", i, err)
		}
		if !ok {
			t.Fatalf("Allow() #%d denied, expected allowed", i)
		}
	}

	ok, err := l.Allow(ctx, "1.2.3.4", rule)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if ok {
		t.Error("4th request allowed, expected denied")
	}

	if ttl := mr.TTL("rl:test:1.2.3.4"); ttl != time.Minute {
		t.Errorf("expected window ttl 1m, got %v", ttl)
	}

	// Other identifiers have their own window.
	if ok, _ := l.Allow(ctx, "5.6.7.8", rule); !ok {
		t.Error("other identifier denied, expected allowed")
	}
}

func TestAllow_WindowResets(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 1, Window: 10 * time.Second}

	l.Allow(ctx, "id", rule)
	if ok, _ := l.Allow(ctx, "id", rule); ok {
		t.Fatal("expected second request denied")
	}

	mr.FastForward(11 * time.Second)
	if ok, _ := l.Allow(ctx, "id", rule); !ok {
		t.Error("expected request allowed after window expiry")
	}
}

func TestAllow_DisabledRule(t *testing.T) {
	l, mr := newTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 0, Window: time.Minute}

	for i := 0; i < 5; i++ {
		if ok, _ := l.Allow(context.Background(), "id", rule); !ok {
			t.Fatal("disabled rule denied a request")
		}
	}
	if mr.Exists("rl:test:id") {
		t.Error("disabled rule should not touch redis")
	}
}

func TestAllow_FailsOpen(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()
	if err := l.client.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	mr.SetError("LOADING redis is loading")

	ok, err := l.Allow(ctx, "id", RuleSubmit)
	if err == nil {
		t.Error("expected error to be reported")
	}
	if !ok {
		t.Error("expected fail-open allow on redis error")
	}
}

func TestMiddleware(t *testing.T) {
	l, _ := newTestLimiter(t)
	rule := Rule{Key: "rl:mw:", Limit: 2, Window: 30 * time.Second}

	h := l.Middleware(rule)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/form", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)

		if rec.Code == http.StatusTooManyRequests && rec.Header().Get("Retry-After") != "30" {
			t.Errorf("expected Retry-After 30, got %q", rec.Header().Get("Retry-After"))
		}
	}

	want := []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d: got %d, want %d", i, codes[i], want[i])
		}
	}
}

// stalledRedis accepts connections and never answers.
func stalledRedis(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return ln.Addr().String()
}

func TestMiddleware_BoundsStalledRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:                  stalledRedis(t),
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		MaxRetries:            -1,
		ContextTimeoutEnabled: true,
	})
	t.Cleanup(func() { client.Close() })
	logger, _ := test.NewNullLogger()
	l := NewLimiter(client, logger).WithTimeout(50 * time.Millisecond)

	h := l.Middleware(Rule{Key: "rl:slow:", Limit: 1, Window: time.Minute})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/form", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()

	start := time.Now()
	h.ServeHTTP(rec, req)
	elapsed := time.Since(start)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected fail-open 204, got %d", rec.Code)
	}
	if elapsed > 2*time.Second {
		t.Errorf("check took %v, expected it bounded by the limiter timeout", elapsed)
	}
}

func TestWithTimeout_IgnoresNonPositive(t *testing.T) {
	l, _ := newTestLimiter(t)
	if l.WithTimeout(0).timeout != DefaultTimeout {
		t.Errorf("expected default timeout kept, got %v", l.timeout)
	}
	if l.WithTimeout(time.Second).timeout != time.Second {
		t.Errorf("expected 1s timeout, got %v", l.timeout)
	}
}

func TestClientAddr(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{remote: "10.0.0.1:5555", want: "10.0.0.1"},
		{remote: "[::1]:80", want: "::1"},
		{remote: "203.0.113.9", want: "203.0.113.9"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tt.remote
		if got := clientAddr(r); got != tt.want {
			t.Errorf("clientAddr(%q) = %q, want %q", tt.remote, got, tt.want)
		}
	}
}

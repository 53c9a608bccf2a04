package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func request(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/batches/x/progress", nil)
	req.RemoteAddr = remote
	return req
}

func TestRateLimitMiddleware_AllowsRequestUnderLimit(t *testing.T) {
	handler := NewRateLimiter(100, 200).Middleware()(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, request("10.0.0.1:5000"))

	if rr.Code != http.StatusOK {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestRateLimitMiddleware_RejectsRequestOverLimit(t *testing.T) {
	handler := NewRateLimiter(1, 1).Middleware()(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, request("10.0.0.1:5000"))
	if rr.Code != http.StatusOK {
		t.Fatalf("first request: got status %d, want %d", rr.Code, http.StatusOK)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, request("10.0.0.1:5001"))
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("second request: got status %d, want %d", rr.Code, http.StatusTooManyRequests)
	}
	if rr.Header().Get("Retry-After") != "1" {
		t.Errorf("expected Retry-After header, got %q", rr.Header().Get("Retry-After"))
	}
}

func TestRateLimitMiddleware_ClientsHaveSeparateBuckets(t *testing.T) {
	handler := NewRateLimiter(1, 1).Middleware()(okHandler())

	for _, remote := range []string{"10.0.0.1:5000", "10.0.0.2:5000", "10.0.0.3:5000"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, request(remote))
		if rr.Code != http.StatusOK {
			t.Errorf("%s: got status %d, want %d", remote, rr.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_ZeroRateIsUnlimited(t *testing.T) {
	handler := NewRateLimiter(0, 0).Middleware()(okHandler())

	for i := 0; i < 50; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, request("10.0.0.1:5000"))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: got status %d", i, rr.Code)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		fwd    string
		want   string
	}{
		{"remote addr", "192.168.1.7:43210", "", "192.168.1.7"},
		{"forwarded", "10.0.0.1:80", "203.0.113.9, 10.0.0.1", "203.0.113.9"},
		{"no port", "192.168.1.7", "", "192.168.1.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request(tt.remote)
			if tt.fwd != "" {
				req.Header.Set("X-Forwarded-For", tt.fwd)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiter_ExpiresIdleClients(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1, WithTTL(time.Minute))
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	rl.Allow("b")
	if rl.Size() != 2 {
		t.Fatalf("expected 2 tracked clients, got %d", rl.Size())
	}

	now = now.Add(2 * time.Minute)
	if !rl.Allow("c") {
		t.Error("expected fresh client to be allowed")
	}
	if rl.Size() != 1 {
		t.Errorf("expected idle clients to be dropped, got %d", rl.Size())
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(1000, 1000, WithKeyFunc(func(*http.Request) string { return "shared" }))
	handler := rl.Middleware()(okHandler())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handler.ServeHTTP(httptest.NewRecorder(), request("10.0.0.1:1"))
		}()
	}
	wg.Wait()

	if rl.Size() != 1 {
		t.Errorf("expected one bucket, got %d", rl.Size())
	}
}

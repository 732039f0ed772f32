package http

import (
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(perHour int) (*ClientLimiter, *time.Time) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewClientLimiter("test", perHour)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestNewClientLimiter_DisabledWhenZero(t *testing.T) {
	if l := NewClientLimiter("test", 0); l != nil {
		t.Errorf("NewClientLimiter(0) = %v, want nil", l)
	}
}

func TestClientLimiter_HourlyAllowance(t *testing.T) {
	l, now := newTestLimiter(50)
	for i := 0; i < 50; i++ {
		if ok, _ := l.Allow("a"); !ok {
			t.Fatalf("request %d denied within allowance", i+1)
		}
	}
	ok, retry := l.Allow("a")
	if ok {
		t.Fatal("51st request allowed")
	}
	// 50 per hour refills one token every 72s.
	if retry < 71*time.Second || retry > 73*time.Second {
		t.Errorf("retry after = %v, want about 72s", retry)
	}

	*now = now.Add(73 * time.Second)
	if ok, _ := l.Allow("a"); !ok {
		t.Error("request denied after one refill interval")
	}
	if ok, _ := l.Allow("a"); ok {
		t.Error("second request allowed with no tokens left")
	}
}

func TestClientLimiter_DeniedRequestsDoNotConsume(t *testing.T) {
	l, now := newTestLimiter(1)
	l.Allow("a")
	for i := 0; i < 5; i++ {
		l.Allow("a")
	}
	*now = now.Add(time.Hour)
	if ok, _ := l.Allow("a"); !ok {
		t.Error("request denied after a full refill; denials should not borrow future tokens")
	}
}

func TestClientLimiter_Sweep(t *testing.T) {
	l, now := newTestLimiter(10)
	l.Allow("idle")
	l.Allow("busy")
	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", l.Len())
	}

	if removed := l.Sweep(); removed != 0 {
		t.Errorf("Sweep() removed %d partially drained buckets", removed)
	}

	*now = now.Add(time.Hour)
	l.Allow("busy")
	if removed := l.Sweep(); removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	if got := ClientIP(req); got != "203.0.113.7" {
		t.Errorf("ClientIP = %q", got)
	}
	req.RemoteAddr = "[2001:db8::1]:443"
	if got := ClientIP(req); got != "2001:db8::1" {
		t.Errorf("ClientIP = %q", got)
	}
	req.RemoteAddr = "unix"
	if got := ClientIP(req); got != "unix" {
		t.Errorf("ClientIP = %q", got)
	}
}

package ratelimit

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Rejection reasons reported in Decision.Reason.
const (
	ReasonRateLimit = "rate_limit"
	ReasonThrottled = "throttled"
)

// Decision is the outcome of a per-identifier rate-limit check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string

	// Suspicious flags burst behavior (spam detection). It does not block
	// by itself; callers must treat it as an additional rejection signal.
	Suspicious bool
}

// Config bounds the per-identifier sliding window and spam detection.
type Config struct {
	Window               time.Duration
	MaxRequestsPerWindow int
	RequestDelay         time.Duration
	SpamThreshold        int
	SpamWindow           time.Duration
}

type window struct {
	requests      []time.Time
	lastRequestAt time.Time
}

// Limiter is a concurrency-safe per-identifier sliding-window throttle.
// State is transient; entries are garbage-collected once they age out.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewLimiter creates a limiter with the given window configuration.
func NewLimiter(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Check performs the atomic increment-and-check for one identifier. A
// request is recorded only when accepted.
func (l *Limiter) Check(identifier string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.windows[identifier]
	if w == nil {
		w = &window{}
		l.windows[identifier] = w
	}

	// Prune entries older than the window before checking.
	cutoff := now.Add(-l.cfg.Window)
	kept := w.requests[:0]
	for _, ts := range w.requests {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.requests = kept

	if len(w.requests) >= l.cfg.MaxRequestsPerWindow {
		oldest := w.requests[0]
		return Decision{
			Allowed:    false,
			RetryAfter: oldest.Add(l.cfg.Window).Sub(now),
			Reason:     ReasonRateLimit,
		}
	}

	if !w.lastRequestAt.IsZero() {
		elapsed := now.Sub(w.lastRequestAt)
		if elapsed < l.cfg.RequestDelay {
			return Decision{
				Allowed:    false,
				RetryAfter: l.cfg.RequestDelay - elapsed,
				Reason:     ReasonThrottled,
			}
		}
	}

	w.requests = append(w.requests, now)
	w.lastRequestAt = now

	return Decision{Allowed: true, Suspicious: l.isSuspicious(w, now)}
}

// isSuspicious reports whether the most recent spamThreshold accepted
// requests span less than the spam window. Caller holds l.mu.
func (l *Limiter) isSuspicious(w *window, now time.Time) bool {
	if l.cfg.SpamThreshold <= 0 || len(w.requests) < l.cfg.SpamThreshold {
		return false
	}
	recent := w.requests[len(w.requests)-l.cfg.SpamThreshold:]
	return now.Sub(recent[0]) < l.cfg.SpamWindow
}

// Sweep drops identifiers whose every request has aged out of the window.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.cfg.Window)
	for id, w := range l.windows {
		if len(w.requests) == 0 || !w.requests[len(w.requests)-1].After(cutoff) {
			delete(l.windows, id)
		}
	}
}

// ServiceQuota is a fixed-window budget for one external service.
type ServiceQuota struct {
	Budget int
	Window time.Duration
}

type serviceState struct {
	used        int
	windowStart time.Time
}

// ServiceLimiter tracks per-external-service call budgets, each with its own
// reset cadence. Distinct from per-identifier limiting.
type ServiceLimiter struct {
	mu     sync.Mutex
	quotas map[string]ServiceQuota
	state  map[string]*serviceState
	now    func() time.Time
}

// NewServiceLimiter creates a service limiter from the per-service budgets.
func NewServiceLimiter(quotas map[string]ServiceQuota) *ServiceLimiter {
	return &ServiceLimiter{
		quotas: quotas,
		state:  make(map[string]*serviceState),
		now:    time.Now,
	}
}

// CheckAPIQuota reports the remaining budget for a service, resetting the
// counter if its window has elapsed. Unknown services have no budget and are
// reported as unlimited (-1 remaining).
func (s *ServiceLimiter) CheckAPIQuota(service string) (remaining int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quota, known := s.quotas[service]
	if !known {
		return -1, true
	}

	st := s.state[service]
	now := s.now()
	if st == nil {
		st = &serviceState{windowStart: now}
		s.state[service] = st
	}
	if now.Sub(st.windowStart) >= quota.Window {
		st.used = 0
		st.windowStart = now
	}

	remaining = quota.Budget - st.used
	return remaining, remaining > 0
}

// IncrementAPIQuota records one successful downstream call. Call only after
// the downstream request succeeded.
func (s *ServiceLimiter) IncrementAPIQuota(service string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, known := s.quotas[service]; !known {
		return
	}
	st := s.state[service]
	if st == nil {
		st = &serviceState{windowStart: s.now()}
		s.state[service] = st
	}
	st.used++
}

const (
	backoffBase    = time.Second
	backoffCeiling = 30 * time.Second

	// MaxBackoffAttempts bounds upstream 429 retries.
	MaxBackoffAttempts = 3
)

// RetryDelay computes the wait after an upstream 429. The upstream's
// Retry-After hint (seconds) wins when present; otherwise exponential
// backoff capped at 30s. Returns false once attempts are exhausted.
func RetryDelay(attempt int, retryAfterHint string) (time.Duration, bool) {
	if attempt >= MaxBackoffAttempts {
		return 0, false
	}

	if retryAfterHint != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(retryAfterHint)); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second, true
		}
		logrus.Debugf("Unparseable Retry-After hint %q, falling back to exponential backoff", retryAfterHint)
	}

	delay := backoffBase << uint(attempt)
	if delay > backoffCeiling {
		delay = backoffCeiling
	}
	return delay, true
}

// ValidateOutboundURL rejects URLs that could reach internal infrastructure:
// non-HTTP(S) schemes, localhost, and private or link-local addresses.
func ValidateOutboundURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q not allowed", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL has no host")
	}

	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") || lower == "metadata.google.internal" {
		return fmt.Errorf("host %q not allowed", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("IP %q not allowed", host)
		}
	}

	return nil
}

package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sellsignal/outreach-bot/internal/models"
	"github.com/sirupsen/logrus"
)

// Sentinel errors surfaced to callers gating on quota.
var (
	ErrPaused   = errors.New("quota: service is paused for the current month")
	ErrExceeded = errors.New("quota: monthly limit exceeded")
)

// Warning thresholds as fractions of the monthly limit.
const (
	warnThreshold     = 0.8
	criticalThreshold = 0.9
)

// Ledger is the persistence contract for quota rows. GetQuota must return a
// zero-valued row for months not yet used.
type Ledger interface {
	GetQuota(ctx context.Context, platform, usageType, monthKey string) (models.QuotaRecord, error)
	SaveQuota(ctx context.Context, rec models.QuotaRecord) error
}

// Alerter receives threshold warnings and pause notifications.
type Alerter interface {
	SendAlert(alert *models.Alert) error
}

// Manager maintains the monthly usage ledger per (platform, usageType).
// Increment-and-check runs under a per-key lock so concurrent decisions
// never interleave a read with a stale write.
type Manager struct {
	ledger  Ledger
	alerter Alerter
	limits  map[string]int // "platform:usageType" -> monthly limit

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	now   func() time.Time
}

// NewManager creates a quota manager. limits maps "platform:usageType" keys
// to monthly budgets; pairs without a limit are unmetered.
func NewManager(ledger Ledger, alerter Alerter, limits map[string]int) *Manager {
	return &Manager{
		ledger:  ledger,
		alerter: alerter,
		limits:  limits,
		locks:   make(map[string]*sync.Mutex),
		now:     time.Now,
	}
}

// MonthKey formats the ledger month for a point in time.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func (m *Manager) keyLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock := m.locks[key]
	if lock == nil {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	return lock
}

// TrackUsage atomically increments the (platform, usageType) row for the
// current month and returns the new total. A paused row fails immediately
// without mutating state. Crossing 100% pauses the row exactly once per
// month; crossing 80% and 90% each emit a single warning.
//
// Ledger read failures are fail-open: the call is allowed (returning 0) and
// logged loudly. This is a deliberate availability choice, asymmetric with
// the fail-closed per-identifier limiter.
func (m *Manager) TrackUsage(ctx context.Context, platform, usageType string, n int) (int, error) {
	monthKey := MonthKey(m.now())
	key := platform + ":" + usageType

	lock := m.keyLock(key + ":" + monthKey)
	lock.Lock()
	defer lock.Unlock()

	rec, err := m.ledger.GetQuota(ctx, platform, usageType, monthKey)
	if err != nil {
		logrus.Errorf("QUOTA LEDGER READ FAILED for %s/%s, failing open: %v", platform, usageType, err)
		return 0, nil
	}

	if rec.IsPaused {
		return rec.UsageCount, ErrPaused
	}

	rec.UsageCount += n

	limit, metered := m.limits[key]
	if !metered || limit <= 0 {
		if err := m.ledger.SaveQuota(ctx, rec); err != nil {
			return rec.UsageCount, fmt.Errorf("saving quota row: %w", err)
		}
		return rec.UsageCount, nil
	}

	usagePercent := float64(rec.UsageCount) / float64(limit)

	if usagePercent >= 1.0 {
		rec.IsPaused = true
		if err := m.ledger.SaveQuota(ctx, rec); err != nil {
			return rec.UsageCount, fmt.Errorf("saving paused quota row: %w", err)
		}
		m.alert("quota_exceeded", fmt.Sprintf("%s %s usage hit %d/%d for %s; automation paused",
			platform, usageType, rec.UsageCount, limit, monthKey))
		return rec.UsageCount, ErrExceeded
	}

	if usagePercent >= criticalThreshold && rec.WarningsSent < 2 {
		rec.WarningsSent = 2
		m.alert("quota_warning", fmt.Sprintf("%s %s usage at %.0f%% of monthly limit (%d/%d)",
			platform, usageType, usagePercent*100, rec.UsageCount, limit))
	} else if usagePercent >= warnThreshold && rec.WarningsSent < 1 {
		rec.WarningsSent = 1
		m.alert("quota_warning", fmt.Sprintf("%s %s usage at %.0f%% of monthly limit (%d/%d)",
			platform, usageType, usagePercent*100, rec.UsageCount, limit))
	}

	if err := m.ledger.SaveQuota(ctx, rec); err != nil {
		return rec.UsageCount, fmt.Errorf("saving quota row: %w", err)
	}
	return rec.UsageCount, nil
}

// IsPaused reports whether the current month's row is paused. Read failures
// fail open (not paused) with a loud log.
func (m *Manager) IsPaused(ctx context.Context, platform, usageType string) bool {
	rec, err := m.ledger.GetQuota(ctx, platform, usageType, MonthKey(m.now()))
	if err != nil {
		logrus.Errorf("QUOTA LEDGER READ FAILED for %s/%s, treating as not paused: %v", platform, usageType, err)
		return false
	}
	return rec.IsPaused
}

// Usage returns the current month's usage count for a pair.
func (m *Manager) Usage(ctx context.Context, platform, usageType string) (int, error) {
	rec, err := m.ledger.GetQuota(ctx, platform, usageType, MonthKey(m.now()))
	if err != nil {
		return 0, err
	}
	return rec.UsageCount, nil
}

// ResetMonth seeds a zeroed, unpaused row for the new month. Rows for prior
// months are retained untouched. Lazy row creation makes this optional; the
// scheduler calls it at rollover so dashboards see the fresh row immediately.
func (m *Manager) ResetMonth(ctx context.Context, platform, usageType string) error {
	monthKey := MonthKey(m.now())

	lock := m.keyLock(platform + ":" + usageType + ":" + monthKey)
	lock.Lock()
	defer lock.Unlock()

	return m.ledger.SaveQuota(ctx, models.QuotaRecord{
		Platform:  platform,
		UsageType: usageType,
		MonthKey:  monthKey,
	})
}

func (m *Manager) alert(alertType, message string) {
	if m.alerter == nil {
		return
	}
	alert := &models.Alert{
		Type:      alertType,
		Title:     "Quota threshold",
		Message:   message,
		CreatedAt: m.now(),
	}
	if err := m.alerter.SendAlert(alert); err != nil {
		logrus.Errorf("Failed to send quota alert: %v", err)
	}
}

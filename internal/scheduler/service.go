package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sellsignal/outreach-bot/internal/config"
	"github.com/sellsignal/outreach-bot/internal/listening"
	"github.com/sellsignal/outreach-bot/internal/quota"
	"github.com/sellsignal/outreach-bot/internal/ratelimit"
	"github.com/sirupsen/logrus"
)

// Service schedules listening cycles and the periodic maintenance jobs
// (rate-limit sweep, monthly quota rollover).
type Service struct {
	config    *config.Config
	listening *listening.Service
	limiter   *ratelimit.Limiter
	quotas    *quota.Manager
	cron      *cron.Cron
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, listeningService *listening.Service, limiter *ratelimit.Limiter, quotas *quota.Manager) *Service {
	return &Service{
		config:    cfg,
		listening: listeningService,
		limiter:   limiter,
		quotas:    quotas,
		cron:      cron.New(cron.WithSeconds()),
	}
}

// Start begins the scheduled jobs.
func (s *Service) Start() error {
	var cycleExpression string

	switch s.config.ListenSchedule {
	case "hourly":
		cycleExpression = "0 0 * * * *"
	case "daily":
		// Run daily at 9 AM UTC
		cycleExpression = "0 0 9 * * *"
	default:
		cycleExpression = "0 0 * * * *"
	}

	_, err := s.cron.AddFunc(cycleExpression, func() {
		logrus.Info("Starting scheduled listening cycle")
		if err := s.listening.RunCycle(); err != nil {
			logrus.Errorf("Scheduled listening cycle failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	// Sweep aged-out rate-limit windows every 10 minutes.
	_, err = s.cron.AddFunc("0 */10 * * * *", func() {
		s.limiter.Sweep()
	})
	if err != nil {
		return err
	}

	// Seed zeroed quota rows shortly after month rollover so the fresh
	// month starts unpaused even before the first tracked call.
	_, err = s.cron.AddFunc("0 5 0 1 * *", func() {
		logrus.Info("Month rollover: seeding fresh quota rows")
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		for key := range s.config.QuotaLimits {
			platform, usageType, ok := splitQuotaKey(key)
			if !ok {
				continue
			}
			if err := s.quotas.ResetMonth(ctx, platform, usageType); err != nil {
				logrus.Errorf("Failed to reset quota for %s: %v", key, err)
			}
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with %s listening cadence", s.config.ListenSchedule)
	return nil
}

// Stop stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		logrus.Info("Scheduler stopped")
	}
}

func splitQuotaKey(key string) (platform, usageType string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}

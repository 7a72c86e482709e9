package listening

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sellsignal/outreach-bot/internal/analyzer"
	"github.com/sellsignal/outreach-bot/internal/archive"
	"github.com/sellsignal/outreach-bot/internal/automation"
	"github.com/sellsignal/outreach-bot/internal/config"
	"github.com/sellsignal/outreach-bot/internal/matching"
	"github.com/sellsignal/outreach-bot/internal/models"
	"github.com/sellsignal/outreach-bot/internal/notifications"
	"github.com/sellsignal/outreach-bot/internal/publish"
	"github.com/sellsignal/outreach-bot/internal/quota"
	"github.com/sellsignal/outreach-bot/internal/rules"
	"github.com/sellsignal/outreach-bot/internal/sources"
	"github.com/sellsignal/outreach-bot/internal/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const analysisConcurrency = 8

// Service runs listening cycles: fetch mentions from every connector,
// enrich, match products, evaluate rules, decide, and dispatch.
type Service struct {
	config        *config.Config
	repo          store.Repository
	sources       []sources.Source
	analyzer      *analyzer.Service
	products      *matching.Matcher
	ruleEngine    *rules.Engine
	controller    *automation.Controller
	publisher     publish.Publisher
	notifications notifications.NotificationInterface
	archiver      archive.Archiver
	quotas        *quota.Manager

	mu      sync.RWMutex
	metrics Metrics

	// inflight tracks delayed sends so Close can wait for them.
	inflight sync.WaitGroup
}

// Metrics holds per-cycle counters.
type Metrics struct {
	TotalMentions   int            `json:"total_mentions"`
	LastRun         time.Time      `json:"last_run"`
	LastRunDuration string         `json:"last_run_duration"`
	SourceMetrics   map[string]int `json:"source_metrics"`
	DecisionCounts  map[string]int `json:"decision_counts"`
	ErrorCount      int            `json:"error_count"`
}

// NewService wires the listening pipeline.
func NewService(
	cfg *config.Config,
	repo store.Repository,
	srcs []sources.Source,
	analyzerSvc *analyzer.Service,
	products *matching.Matcher,
	ruleEngine *rules.Engine,
	controller *automation.Controller,
	publisher publish.Publisher,
	notificationSvc notifications.NotificationInterface,
	archiver archive.Archiver,
	quotas *quota.Manager,
) *Service {
	return &Service{
		config:        cfg,
		repo:          repo,
		sources:       srcs,
		analyzer:      analyzerSvc,
		products:      products,
		ruleEngine:    ruleEngine,
		controller:    controller,
		publisher:     publisher,
		notifications: notificationSvc,
		archiver:      archiver,
		quotas:        quotas,
		metrics: Metrics{
			SourceMetrics:  make(map[string]int),
			DecisionCounts: make(map[string]int),
		},
	}
}

// RunCycle performs one full listening cycle.
func (s *Service) RunCycle() error {
	start := time.Now()
	logrus.Info("Starting listening cycle")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	window := 1 * time.Hour
	if s.config.ListenSchedule == "daily" {
		window = 24 * time.Hour
	}

	mentions, errorCount := s.fetchMentions(ctx, window)
	logrus.Infof("Collected %d mentions from %d sources", len(mentions), len(s.sources))

	mentions = dedupe(mentions)

	actions := s.process(ctx, mentions)

	if err := s.archiveCycle(mentions, actions); err != nil {
		logrus.Errorf("Failed to archive cycle snapshot: %v", err)
	}

	s.updateMetrics(mentions, actions, time.Since(start), errorCount)

	report := s.buildReport(mentions, actions)
	if err := s.notifications.SendReport(report); err != nil {
		logrus.Errorf("Failed to send cycle report: %v", err)
	}

	logrus.Infof("Listening cycle completed in %v (%d actions)", time.Since(start), len(actions))
	return nil
}

// fetchMentions fans out over every enabled connector concurrently.
func (s *Service) fetchMentions(ctx context.Context, window time.Duration) ([]models.Mention, int) {
	var mu sync.Mutex
	var all []models.Mention
	errorCount := 0

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range s.sources {
		src := src
		if !src.Enabled() {
			continue
		}
		g.Go(func() error {
			logrus.Infof("Fetching mentions from %s (window: %v)", src.Name(), window)
			mentions, err := src.Search(gctx, s.config.Keywords, sources.SearchOptions{Window: window})
			if err != nil {
				logrus.Errorf("Error fetching from %s: %v", src.Name(), err)
				mu.Lock()
				errorCount++
				mu.Unlock()
				return nil // one bad source must not cancel the others
			}

			if len(s.config.WatchAccounts) > 0 {
				watched, err := src.MonitorAccounts(gctx, s.config.WatchAccounts)
				if err != nil {
					logrus.Errorf("Error monitoring accounts on %s: %v", src.Name(), err)
				} else {
					mentions = append(mentions, watched...)
				}
			}

			logrus.Infof("Found %d mentions from %s", len(mentions), src.Name())
			mu.Lock()
			all = append(all, mentions...)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return all, errorCount
}

// process enriches mentions in parallel and runs the decision pipeline on each.
func (s *Service) process(ctx context.Context, mentions []models.Mention) []models.OutreachAction {
	var mu sync.Mutex
	var actions []models.OutreachAction

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(analysisConcurrency)

	for i := range mentions {
		mention := &mentions[i]
		g.Go(func() error {
			mentionActions := s.processMention(gctx, mention)
			if len(mentionActions) > 0 {
				mu.Lock()
				actions = append(actions, mentionActions...)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	return actions
}

// processMention runs enrich -> match -> rules -> decide for one mention.
func (s *Service) processMention(ctx context.Context, mention *models.Mention) []models.OutreachAction {
	enrichment, err := s.analyzer.Analyze(ctx, "", mention)
	if err != nil {
		logrus.Errorf("Analysis failed for mention %s: %v", mention.ID, err)
		return nil
	}

	candidates, err := s.products.Match(ctx, *mention, nil)
	if err != nil || len(candidates) == 0 {
		return nil
	}

	// Best-ranked candidate carries the outreach; the rest were recorded as
	// match results for reporting.
	candidate := candidates[0]

	satisfied := s.ruleEngine.Satisfied(ctx, *mention, candidate.Score)
	if len(satisfied) == 0 {
		return nil
	}

	var actions []models.OutreachAction
	for _, rule := range satisfied {
		action := s.controller.Decide(ctx, *mention, candidate, rule)

		if action.Decision == models.DecisionHold && enrichment.RequiresManualReview {
			action.Reason = action.Reason + "; flagged for manual review"
		}

		if action.Decision == models.DecisionSend {
			s.dispatch(action, candidate)
		}

		if err := s.repo.InsertAction(ctx, action); err != nil {
			logrus.Errorf("Failed to record action %s: %v", action.ID, err)
		}
		actions = append(actions, action)
	}

	return actions
}

// dispatch fires the accepted send after its randomized delay. An operator
// pause does not retract sends already accepted here.
func (s *Service) dispatch(action models.OutreachAction, candidate matching.Candidate) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		if action.Delay > 0 {
			time.Sleep(action.Delay)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		message := fmt.Sprintf("Thanks for the interest! %s might be a fit: %s",
			candidate.Product.Name, candidate.Product.ID)

		result, err := s.publisher.Post(ctx, action.Platform, action.MentionID, message)
		if err != nil || !result.Success {
			logrus.Errorf("Send failed for action %s: %v", action.ID, err)
			failed := action
			failed.ID = failed.ID + "-failed"
			failed.Decision = models.DecisionFailed
			failed.Reason = fmt.Sprintf("send failed: %v", err)
			if err := s.repo.InsertAction(ctx, failed); err != nil {
				logrus.Errorf("Failed to record failed action: %v", err)
			}
			return
		}

		if _, err := s.quotas.TrackUsage(ctx, action.Platform, automation.UsageTypePost, 1); err != nil {
			// The post already went out; the pause takes effect for
			// subsequent decisions.
			logrus.Warnf("Quota tracking after send on %s: %v", action.Platform, err)
		}

		logrus.Infof("Sent outreach %s on %s (external id %s)", action.ID, action.Platform, result.ExternalID)
	}()
}

func (s *Service) archiveCycle(mentions []models.Mention, actions []models.OutreachAction) error {
	if s.archiver == nil || len(mentions) == 0 {
		return nil
	}

	snapshot := struct {
		Mentions []models.Mention        `json:"mentions"`
		Actions  []models.OutreachAction `json:"actions"`
	}{mentions, actions}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal cycle snapshot: %w", err)
	}

	filename := fmt.Sprintf("cycles/cycle-%s.json", time.Now().UTC().Format("2006-01-02-15-04-05"))
	return s.archiver.Store(filename, data)
}

func (s *Service) buildReport(mentions []models.Mention, actions []models.OutreachAction) *models.Report {
	report := &models.Report{
		GeneratedAt:   time.Now(),
		Period:        s.config.ListenSchedule,
		TotalMentions: len(mentions),
		Mentions:      mentions,
		Actions:       actions,
		Summary:       make(map[string]interface{}),
	}

	decisions := make(map[string]int)
	platforms := make(map[string]int)
	for _, action := range actions {
		decisions[action.Decision]++
	}
	for _, mention := range mentions {
		platforms[mention.Platform]++
	}

	report.Summary["decisions"] = decisions
	report.Summary["platforms"] = platforms

	return report
}

func (s *Service) updateMetrics(mentions []models.Mention, actions []models.OutreachAction, duration time.Duration, errorCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.TotalMentions = len(mentions)
	s.metrics.LastRun = time.Now()
	s.metrics.LastRunDuration = duration.String()
	s.metrics.ErrorCount = errorCount

	s.metrics.SourceMetrics = make(map[string]int)
	s.metrics.DecisionCounts = make(map[string]int)
	for _, mention := range mentions {
		s.metrics.SourceMetrics[mention.Platform]++
	}
	for _, action := range actions {
		s.metrics.DecisionCounts[action.Decision]++
	}
}

// GetMetrics returns current metrics as JSON.
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}

// Close waits for in-flight delayed sends to finish.
func (s *Service) Close() {
	s.inflight.Wait()
}

func dedupe(mentions []models.Mention) []models.Mention {
	seen := make(map[string]bool, len(mentions))
	var unique []models.Mention
	for _, m := range mentions {
		if m.ID == "" || !seen[m.ID] {
			seen[m.ID] = true
			unique = append(unique, m)
		}
	}
	return unique
}

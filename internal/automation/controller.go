package automation

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/RussellLuo/slidingwindow"
	"github.com/google/uuid"
	"github.com/sellsignal/outreach-bot/internal/config"
	"github.com/sellsignal/outreach-bot/internal/matching"
	"github.com/sellsignal/outreach-bot/internal/models"
	"github.com/sellsignal/outreach-bot/internal/quota"
	"github.com/sellsignal/outreach-bot/internal/ratelimit"
	"github.com/sellsignal/outreach-bot/internal/rules"
	"github.com/sirupsen/logrus"
)

// UsageTypePost is the quota usage type for outbound posts.
const UsageTypePost = "post"

// Controller is the top-level automation state machine. It combines rule and
// product-match output with rate-limit and quota decisions, under the
// operator-configured mode, to emit send / hold / reject.
type Controller struct {
	limiter    *ratelimit.Limiter
	quotas     *quota.Manager
	ruleEngine *rules.Engine

	mu       sync.RWMutex
	settings config.AutomationSettings
	paused   bool

	globalDaily   *slidingwindow.Limiter
	platformDaily map[string]*slidingwindow.Limiter

	randInt func(n int) int
}

// NewController creates a controller with the given operator settings.
func NewController(settings config.AutomationSettings, limiter *ratelimit.Limiter, quotas *quota.Manager, ruleEngine *rules.Engine) *Controller {
	global, _ := slidingwindow.NewLimiter(24*time.Hour, int64(settings.MaxPostsPerDay), localWindow)
	return &Controller{
		limiter:       limiter,
		quotas:        quotas,
		ruleEngine:    ruleEngine,
		settings:      settings,
		globalDaily:   global,
		platformDaily: make(map[string]*slidingwindow.Limiter),
		randInt:       rand.Intn,
	}
}

func localWindow() (slidingwindow.Window, slidingwindow.StopFunc) {
	return slidingwindow.NewLocalWindow()
}

// SetMode switches the operator-visible automation mode.
func (c *Controller) SetMode(mode string) error {
	switch mode {
	case config.ModeManual, config.ModeSemiAuto, config.ModeFullAuto:
	default:
		return &UnknownModeError{Mode: mode}
	}

	c.mu.Lock()
	c.settings.Mode = mode
	c.mu.Unlock()
	logrus.Infof("Automation mode set to %s", mode)
	return nil
}

// Mode returns the operator-visible mode.
func (c *Controller) Mode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings.Mode
}

// Pause stops all automated sending. Takes effect for every subsequent
// decision; actions already accepted stay in flight.
func (c *Controller) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
	logrus.Info("Automation paused by operator")
}

// Resume re-enables automated sending.
func (c *Controller) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
	logrus.Info("Automation resumed by operator")
}

// Paused reports whether the operator has paused automation.
func (c *Controller) Paused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused
}

// UnknownModeError reports an unrecognized automation mode.
type UnknownModeError struct {
	Mode string
}

func (e *UnknownModeError) Error() string {
	return "automation: unknown mode " + e.Mode
}

// Decide evaluates one enriched mention + matched product + satisfied rule
// and emits the final outreach action.
func (c *Controller) Decide(ctx context.Context, mention models.Mention, candidate matching.Candidate, rule models.OutreachRule) models.OutreachAction {
	c.mu.RLock()
	settings := c.settings
	paused := c.paused
	c.mu.RUnlock()

	action := models.OutreachAction{
		ID:        uuid.NewString(),
		MentionID: mention.ID,
		ProductID: candidate.Product.ID,
		RuleID:    rule.ID,
		Platform:  mention.Platform,
		CreatedAt: time.Now().UTC(),
	}

	// Operator pause overrides everything: queue for approval, never send.
	if paused {
		action.Decision = models.DecisionHold
		action.Reason = "automation paused by operator"
		return action
	}

	leadScore := mention.LeadQualityScore

	switch settings.Mode {
	case config.ModeManual:
		action.Decision = models.DecisionHold
		action.Reason = "manual mode: queued for approval"
		return action

	case config.ModeSemiAuto:
		if leadScore < settings.AutoPostThreshold {
			if leadScore >= settings.WarmLeadFloor && settings.RequireApprovalWarmLeads {
				action.Decision = models.DecisionHold
				action.Reason = "warm lead: queued for approval"
				return action
			}
			action.Decision = models.DecisionReject
			action.Reason = "lead score below auto-post threshold"
			return action
		}

	case config.ModeFullAuto:
		// Warm-lead approval is not consulted in full-auto.
		if leadScore < settings.AutoPostThreshold {
			action.Decision = models.DecisionReject
			action.Reason = "lead score below auto-post threshold"
			return action
		}

	default:
		action.Decision = models.DecisionHold
		action.Reason = "unknown automation mode"
		return action
	}

	return c.gateSend(ctx, mention, rule, settings, action)
}

// gateSend runs the pre-send safety checks in order: platform enablement,
// daily volume counters, per-identifier rate limit, quota pause, rule rate
// limit, then attaches the randomized delay.
func (c *Controller) gateSend(ctx context.Context, mention models.Mention, rule models.OutreachRule, settings config.AutomationSettings, action models.OutreachAction) models.OutreachAction {
	if !settings.PlatformEnabled(mention.Platform) {
		action.Decision = models.DecisionReject
		action.Reason = "platform disabled"
		return action
	}

	// Daily volume counters, global then per-platform.
	if !c.globalDaily.Allow() {
		action.Decision = models.DecisionReject
		action.Reason = "daily post limit reached"
		return action
	}
	if !c.platformLimiter(mention.Platform, settings).Allow() {
		action.Decision = models.DecisionReject
		action.Reason = "platform daily post limit reached"
		return action
	}

	// Per-identifier sliding window for the target platform. Fail-closed.
	decision := c.limiter.Check("platform:" + mention.Platform)
	if !decision.Allowed {
		action.Decision = models.DecisionReject
		action.Reason = decision.Reason
		action.RetryAfter = decision.RetryAfter
		return action
	}
	if decision.Suspicious {
		action.Decision = models.DecisionReject
		action.Reason = "suspicious burst detected"
		return action
	}

	// Quota pause applies only to this platform; the operator-visible mode
	// is unchanged.
	if c.quotas.IsPaused(ctx, mention.Platform, UsageTypePost) {
		action.Decision = models.DecisionReject
		action.Reason = "platform quota exhausted"
		return action
	}

	if !c.ruleEngine.WithinRateLimit(ctx, rule) {
		action.Decision = models.DecisionReject
		action.Reason = "rule rate limit reached"
		return action
	}

	action.Decision = models.DecisionSend
	action.Reason = "qualified for automated outreach"
	action.Delay = c.randomDelay(settings)
	return action
}

func (c *Controller) platformLimiter(platform string, settings config.AutomationSettings) *slidingwindow.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim := c.platformDaily[platform]
	if lim == nil {
		lim, _ = slidingwindow.NewLimiter(24*time.Hour, int64(settings.MaxPostsPerPlatform), localWindow)
		c.platformDaily[platform] = lim
	}
	return lim
}

// randomDelay draws uniformly from [minDelay, maxDelay] minutes so sends do
// not fire with bot-like timing.
func (c *Controller) randomDelay(settings config.AutomationSettings) time.Duration {
	spread := settings.MaxDelayMinutes - settings.MinDelayMinutes
	minutes := settings.MinDelayMinutes
	if spread > 0 {
		minutes += c.randInt(spread + 1)
	}
	return time.Duration(minutes) * time.Minute
}

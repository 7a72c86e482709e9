package rules

import (
	"context"
	"time"

	"github.com/sellsignal/outreach-bot/internal/models"
	"github.com/sellsignal/outreach-bot/internal/store"
	"github.com/sirupsen/logrus"
)

// Engine evaluates outreach-rule trigger conditions against enriched
// mentions. Conditions are AND-combined; unset fields are vacuously true.
type Engine struct {
	repo store.Repository
}

// NewEngine creates a rule engine backed by the given repository.
func NewEngine(repo store.Repository) *Engine {
	return &Engine{repo: repo}
}

// Satisfies reports whether a mention (with its product match score as the
// relevance score) meets every populated condition of the rule.
func Satisfies(rule models.OutreachRule, mention models.Mention, relevanceScore int) bool {
	t := rule.Triggers

	if t.MinOpportunityScore > 0 && mention.OpportunityScore < t.MinOpportunityScore {
		return false
	}
	if t.MinRelevanceScore > 0 && relevanceScore < t.MinRelevanceScore {
		return false
	}
	if len(t.Sentiment) > 0 && !contains(t.Sentiment, mention.Sentiment) {
		return false
	}
	if len(t.Intent) > 0 && !contains(t.Intent, mention.Intent) {
		return false
	}
	if t.MinFollowerCount > 0 && mention.FollowerCount < t.MinFollowerCount {
		return false
	}
	if len(t.Platforms) > 0 && !contains(t.Platforms, mention.Platform) {
		return false
	}

	return true
}

// Satisfied returns every active rule the mention satisfies. Each satisfied
// rule independently attempts an outreach action under its own rate limit.
// Repository errors degrade to "no rules matched" rather than propagating.
func (e *Engine) Satisfied(ctx context.Context, mention models.Mention, relevanceScore int) []models.OutreachRule {
	active, err := e.repo.ListActiveRules(ctx)
	if err != nil {
		logrus.Errorf("Listing rules failed, treating as no match: %v", err)
		return nil
	}

	var satisfied []models.OutreachRule
	for _, rule := range active {
		if Satisfies(rule, mention, relevanceScore) {
			satisfied = append(satisfied, rule)
		}
	}
	return satisfied
}

// WithinRateLimit checks the rule's own hourly and daily send budgets
// against recorded actions. A zero budget is unlimited. Count failures are
// fail-closed: this limit guards against runaway sending.
func (e *Engine) WithinRateLimit(ctx context.Context, rule models.OutreachRule) bool {
	now := time.Now().UTC()

	if rule.RateLimit.MaxPerHour > 0 {
		sent, err := e.repo.CountRuleActionsSince(ctx, rule.ID, models.DecisionSend, now.Add(-time.Hour))
		if err != nil {
			logrus.Errorf("Counting hourly sends for rule %s failed, denying: %v", rule.ID, err)
			return false
		}
		if sent >= rule.RateLimit.MaxPerHour {
			return false
		}
	}

	if rule.RateLimit.MaxPerDay > 0 {
		sent, err := e.repo.CountRuleActionsSince(ctx, rule.ID, models.DecisionSend, now.Add(-24*time.Hour))
		if err != nil {
			logrus.Errorf("Counting daily sends for rule %s failed, denying: %v", rule.ID, err)
			return false
		}
		if sent >= rule.RateLimit.MaxPerDay {
			return false
		}
	}

	return true
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sellsignal/outreach-bot/internal/models"
	"github.com/sellsignal/outreach-bot/internal/store"
)

type mockRepo struct {
	store.Repository
	mock.Mock
}

func (m *mockRepo) ListActiveRules(ctx context.Context) ([]models.OutreachRule, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.OutreachRule), args.Error(1)
}

func (m *mockRepo) CountRuleActionsSince(ctx context.Context, ruleID, decision string, since time.Time) (int, error) {
	args := m.Called(ctx, ruleID, decision, since)
	return args.Int(0), args.Error(1)
}

func enrichedMention() models.Mention {
	return models.Mention{
		ID:               "m-1",
		Platform:         "twitter",
		FollowerCount:    2500,
		Sentiment:        models.SentimentPositive,
		Intent:           models.IntentPurchase,
		OpportunityScore: 72,
	}
}

func TestSatisfies(t *testing.T) {
	tests := []struct {
		name     string
		triggers models.RuleTriggers
		mention  models.Mention
		score    int
		expected bool
	}{
		{
			name:     "empty rule is vacuously true",
			triggers: models.RuleTriggers{},
			mention:  enrichedMention(),
			score:    0,
			expected: true,
		},
		{
			name: "all conditions met",
			triggers: models.RuleTriggers{
				MinOpportunityScore: 70,
				MinRelevanceScore:   60,
				Sentiment:           []string{models.SentimentPositive, models.SentimentNeutral},
				Intent:              []string{models.IntentPurchase},
				MinFollowerCount:    1000,
				Platforms:           []string{"twitter", "reddit"},
			},
			mention:  enrichedMention(),
			score:    65,
			expected: true,
		},
		{
			name:     "opportunity below minimum",
			triggers: models.RuleTriggers{MinOpportunityScore: 80},
			mention:  enrichedMention(),
			expected: false,
		},
		{
			name:     "relevance below minimum",
			triggers: models.RuleTriggers{MinRelevanceScore: 60},
			mention:  enrichedMention(),
			score:    59,
			expected: false,
		},
		{
			name:     "sentiment not in allow list",
			triggers: models.RuleTriggers{Sentiment: []string{models.SentimentNeutral}},
			mention:  enrichedMention(),
			expected: false,
		},
		{
			name:     "intent not in allow list",
			triggers: models.RuleTriggers{Intent: []string{models.IntentRequestInfo}},
			mention:  enrichedMention(),
			expected: false,
		},
		{
			name:     "follower count below minimum",
			triggers: models.RuleTriggers{MinFollowerCount: 5000},
			mention:  enrichedMention(),
			expected: false,
		},
		{
			name:     "platform not targeted",
			triggers: models.RuleTriggers{Platforms: []string{"reddit"}},
			mention:  enrichedMention(),
			expected: false,
		},
		{
			name: "one failing condition vetoes the rest",
			triggers: models.RuleTriggers{
				MinOpportunityScore: 10,
				Sentiment:           []string{models.SentimentPositive},
				Platforms:           []string{"reddit"},
			},
			mention:  enrichedMention(),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := models.OutreachRule{Triggers: tt.triggers}
			assert.Equal(t, tt.expected, Satisfies(rule, tt.mention, tt.score))
		})
	}
}

func TestSatisfied_ReturnsEveryMatchingRule(t *testing.T) {
	repo := &mockRepo{}
	repo.On("ListActiveRules", mock.Anything).Return([]models.OutreachRule{
		{ID: "r-any", Triggers: models.RuleTriggers{}},
		{ID: "r-twitter", Triggers: models.RuleTriggers{Platforms: []string{"twitter"}}},
		{ID: "r-reddit", Triggers: models.RuleTriggers{Platforms: []string{"reddit"}}},
	}, nil)

	e := NewEngine(repo)
	satisfied := e.Satisfied(context.Background(), enrichedMention(), 50)

	require.Len(t, satisfied, 2)
	assert.Equal(t, "r-any", satisfied[0].ID)
	assert.Equal(t, "r-twitter", satisfied[1].ID)
}

func TestSatisfied_StoreErrorDegradesToNoMatch(t *testing.T) {
	repo := &mockRepo{}
	repo.On("ListActiveRules", mock.Anything).Return([]models.OutreachRule(nil), errors.New("db locked"))

	e := NewEngine(repo)
	assert.Empty(t, e.Satisfied(context.Background(), enrichedMention(), 50))
}

func TestWithinRateLimit(t *testing.T) {
	rule := models.OutreachRule{
		ID:        "r-1",
		RateLimit: models.RuleRateLimit{MaxPerHour: 2, MaxPerDay: 5},
	}

	t.Run("under both budgets", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("CountRuleActionsSince", mock.Anything, "r-1", models.DecisionSend, mock.Anything).Return(1, nil)
		assert.True(t, NewEngine(repo).WithinRateLimit(context.Background(), rule))
	})

	t.Run("hourly budget exhausted", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("CountRuleActionsSince", mock.Anything, "r-1", models.DecisionSend, mock.Anything).Return(2, nil)
		assert.False(t, NewEngine(repo).WithinRateLimit(context.Background(), rule))
	})

	t.Run("count failure denies", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("CountRuleActionsSince", mock.Anything, "r-1", models.DecisionSend, mock.Anything).
			Return(0, errors.New("db locked"))
		assert.False(t, NewEngine(repo).WithinRateLimit(context.Background(), rule))
	})

	t.Run("zero budgets are unlimited", func(t *testing.T) {
		repo := &mockRepo{}
		unlimited := models.OutreachRule{ID: "r-2"}
		assert.True(t, NewEngine(repo).WithinRateLimit(context.Background(), unlimited))
		repo.AssertNotCalled(t, "CountRuleActionsSince", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

package matching

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

func (m *mockRepo) ListActiveProducts(ctx context.Context) ([]models.Product, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *mockRepo) CountActionsSince(ctx context.Context, productID, decision string, since time.Time) (int, error) {
	args := m.Called(ctx, productID, decision, since)
	return args.Int(0), args.Error(1)
}

func (m *mockRepo) InsertMatchResult(ctx context.Context, mr models.MatchResult) error {
	args := m.Called(ctx, mr)
	return args.Error(0)
}

func fitnessProduct() models.Product {
	return models.Product{
		ID:                  "prod-1",
		Name:                "Resistance Band Set",
		MatchingKeywords:    []string{"workout", "home gym", "resistance"},
		ExcludeKeywords:     []string{"free", "giveaway"},
		TargetSentiment:     []string{models.SentimentPositive},
		TargetIntent:        []string{models.IntentPurchase},
		MinOpportunityScore: 40,
		Active:              true,
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name          string
		mention       models.Mention
		product       models.Product
		expectedScore int
		expectedKws   []string
		qualified     bool
	}{
		{
			name: "two keywords positive sentiment purchase intent",
			mention: models.Mention{
				Content:          "Looking for a home gym workout setup, budget is flexible",
				Sentiment:        models.SentimentPositive,
				Intent:           models.IntentPurchase,
				OpportunityScore: 65,
			},
			product: fitnessProduct(),
			// keywords 20 + sentiment 20 + intent 20 + (65-40)/5 = 65
			expectedScore: 65,
			expectedKws:   []string{"workout", "home gym"},
			qualified:     true,
		},
		{
			name: "exclude keyword disqualifies regardless of score",
			mention: models.Mention{
				Content:          "Any free workout home gym resistance recommendations?",
				Sentiment:        models.SentimentPositive,
				Intent:           models.IntentPurchase,
				OpportunityScore: 90,
			},
			product:       fitnessProduct(),
			expectedScore: 0,
			qualified:     false,
		},
		{
			name: "below opportunity floor disqualifies",
			mention: models.Mention{
				Content:          "workout home gym resistance",
				Sentiment:        models.SentimentPositive,
				Intent:           models.IntentPurchase,
				OpportunityScore: 39,
			},
			product:       fitnessProduct(),
			expectedScore: 0,
			qualified:     false,
		},
		{
			name: "keyword points capped at forty",
			mention: models.Mention{
				Content:          "alpha beta gamma delta epsilon",
				OpportunityScore: 0,
			},
			product: models.Product{
				MatchingKeywords: []string{"alpha", "beta", "gamma", "delta", "epsilon"},
			},
			// 5 keywords would be 50, capped at 40.
			expectedScore: 40,
			expectedKws:   []string{"alpha", "beta", "gamma", "delta", "epsilon"},
			qualified:     true,
		},
		{
			name: "sentiment mismatch penalized",
			mention: models.Mention{
				Content:          "workout home gym resistance bands",
				Sentiment:        models.SentimentNegative,
				Intent:           models.IntentGeneral,
				OpportunityScore: 40,
			},
			product: fitnessProduct(),
			// keywords 30 - sentiment 10 + 0 intent + 0 opportunity = 20
			expectedScore: 20,
			expectedKws:   []string{"workout", "home gym", "resistance"},
			qualified:     false,
		},
		{
			name: "no keyword match never qualifies",
			mention: models.Mention{
				Content:          "great weather today",
				Sentiment:        models.SentimentPositive,
				Intent:           models.IntentPurchase,
				OpportunityScore: 100,
			},
			product:       fitnessProduct(),
			expectedScore: 52, // sentiment 20 + intent 20 + opportunity (100-40)/5
			qualified:     false,
		},
		{
			name: "opportunity bonus capped at twenty",
			mention: models.Mention{
				Content:          "workout",
				OpportunityScore: 100,
			},
			product: models.Product{
				MatchingKeywords:    []string{"workout"},
				MinOpportunityScore: 0,
			},
			// keyword 10 + min(100/5, 20) = 30
			expectedScore: 30,
			expectedKws:   []string{"workout"},
			qualified:     true,
		},
		{
			name: "keywords match against title too",
			mention: models.Mention{
				Title:            "Best home gym equipment?",
				Content:          "any suggestions welcome",
				OpportunityScore: 100,
			},
			product: models.Product{
				MatchingKeywords: []string{"home gym"},
			},
			expectedScore: 30,
			expectedKws:   []string{"home gym"},
			qualified:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, matched, qualified := Score(tt.mention, tt.product)
			assert.Equal(t, tt.expectedScore, score)
			assert.Equal(t, tt.expectedKws, matched)
			assert.Equal(t, tt.qualified, qualified)
		})
	}
}

func TestMatch_RanksByPriorityThenScore(t *testing.T) {
	repo := &mockRepo{}
	repo.On("ListActiveProducts", mock.Anything).Return([]models.Product{
		{ID: "low-priority-high-score", MatchingKeywords: []string{"workout", "gym", "fitness", "bands"}},
		{ID: "high-priority", MatchingKeywords: []string{"workout"}},
		{ID: "low-priority-low-score", MatchingKeywords: []string{"workout", "gym", "fitness"}},
	}, nil)
	repo.On("InsertMatchResult", mock.Anything, mock.Anything).Return(nil)

	m := NewMatcher(repo)
	mention := models.Mention{
		ID:               "m-1",
		Content:          "workout gym fitness bands",
		OpportunityScore: 100,
	}

	candidates, err := m.Match(context.Background(), mention, map[string]int{"high-priority": 5})
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	assert.Equal(t, "high-priority", candidates[0].Product.ID)
	assert.Equal(t, 5, candidates[0].Priority)
	assert.Equal(t, "low-priority-high-score", candidates[1].Product.ID)
	assert.Equal(t, "low-priority-low-score", candidates[2].Product.ID)
}

func TestMatch_SkipsProductsAtDailyOfferLimit(t *testing.T) {
	repo := &mockRepo{}
	repo.On("ListActiveProducts", mock.Anything).Return([]models.Product{
		{ID: "capped", MatchingKeywords: []string{"workout"}, MaxOffersPerDay: 3},
		{ID: "open", MatchingKeywords: []string{"workout"}, MaxOffersPerDay: 3},
	}, nil)
	repo.On("CountActionsSince", mock.Anything, "capped", models.DecisionSend, mock.Anything).Return(3, nil)
	repo.On("CountActionsSince", mock.Anything, "open", models.DecisionSend, mock.Anything).Return(1, nil)
	repo.On("InsertMatchResult", mock.Anything, mock.Anything).Return(nil)

	m := NewMatcher(repo)
	candidates, err := m.Match(context.Background(), models.Mention{ID: "m-1", Content: "workout", OpportunityScore: 100}, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "open", candidates[0].Product.ID)
}

func TestMatch_StoreOutageDegradesToNoMatch(t *testing.T) {
	repo := &mockRepo{}
	repo.On("ListActiveProducts", mock.Anything).Return([]models.Product(nil), errors.New("db locked"))

	m := NewMatcher(repo)
	candidates, err := m.Match(context.Background(), models.Mention{ID: "m-1", Content: "workout"}, nil)
	assert.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestMatch_MatchResultInsertFailureDoesNotDropCandidate(t *testing.T) {
	repo := &mockRepo{}
	repo.On("ListActiveProducts", mock.Anything).Return([]models.Product{
		{ID: "prod-1", MatchingKeywords: []string{"workout"}},
	}, nil)
	repo.On("InsertMatchResult", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	m := NewMatcher(repo)
	candidates, err := m.Match(context.Background(), models.Mention{ID: "m-1", Content: "workout", OpportunityScore: 100}, nil)
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}

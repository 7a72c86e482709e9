package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sellsignal/outreach-bot/internal/models"
	"github.com/sellsignal/outreach-bot/internal/store"
	"github.com/sellsignal/outreach-bot/internal/triggers"
)

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) Analyze(ctx context.Context, text, hint string) (AnalysisResult, error) {
	args := m.Called(ctx, text, hint)
	return args.Get(0).(AnalysisResult), args.Error(1)
}

type mockRepo struct {
	store.Repository
	mock.Mock
}

func (m *mockRepo) ListActiveTriggerWords(ctx context.Context, ownerID string) ([]models.TriggerWord, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).([]models.TriggerWord), args.Error(1)
}

func purchaseTriggers() []models.TriggerWord {
	return []models.TriggerWord{
		{ID: "t1", Phrase: "how much", TriggerType: triggers.TypePurchaseIntent, MatchType: models.MatchContains, ConfidenceBoost: 30},
		{ID: "t2", Phrase: "yes please", TriggerType: triggers.TypeConfirmation, MatchType: models.MatchContains, ConfidenceBoost: 25},
	}
}

func positiveAnalysis() AnalysisResult {
	return AnalysisResult{
		Sentiment:          models.SentimentPositive,
		SentimentScore:     0.7,
		OpportunityScore:   60,
		Intent:             models.IntentPurchase,
		BuyerInterestLevel: models.InterestHigh,
	}
}

func newTestService(oracle Oracle, words []models.TriggerWord) *Service {
	repo := &mockRepo{}
	repo.On("ListActiveTriggerWords", mock.Anything, mock.Anything).Return(words, nil)
	return NewService(oracle, triggers.NewMatcher(repo))
}

func TestAnalyze_BoostAppliedAndCapped(t *testing.T) {
	oracle := &mockOracle{}
	oracle.On("Analyze", mock.Anything, mock.Anything, mock.Anything).Return(positiveAnalysis(), nil)
	svc := newTestService(oracle, purchaseTriggers())

	mention := models.Mention{ID: "m-1", Platform: "twitter", Content: "Yes please! How much does it cost?"}
	enrichment, err := svc.Analyze(context.Background(), "", &mention)
	require.NoError(t, err)

	// Oracle 60 + triggers (30+25=55, capped 50) = 110, capped at 100.
	assert.Equal(t, 50, enrichment.Triggers.TotalBoost)
	assert.Equal(t, 100, enrichment.BoostedScore)
	assert.True(t, enrichment.IsPositiveResponse)
	assert.True(t, enrichment.ShouldSendProduct)
	assert.False(t, enrichment.RequiresManualReview)

	// Mention is enriched in place.
	assert.Equal(t, models.SentimentPositive, mention.Sentiment)
	assert.Equal(t, models.IntentPurchase, mention.Intent)
	assert.Equal(t, 100, mention.OpportunityScore)
	assert.Equal(t, 100, mention.LeadQualityScore)
}

func TestAnalyze_OracleFailureForcesManualReview(t *testing.T) {
	oracle := &mockOracle{}
	oracle.On("Analyze", mock.Anything, mock.Anything, mock.Anything).
		Return(AnalysisResult{}, errors.New("oracle timeout"))
	svc := newTestService(oracle, nil)

	mention := models.Mention{ID: "m-1", Content: "interesting post"}
	enrichment, err := svc.Analyze(context.Background(), "", &mention)
	require.NoError(t, err, "oracle faults must not fail the pipeline")

	assert.True(t, enrichment.Analysis.Defaulted)
	assert.True(t, enrichment.RequiresManualReview)
	assert.Equal(t, models.SentimentNeutral, mention.Sentiment)
	assert.Equal(t, 30, mention.LeadQualityScore)
	assert.False(t, enrichment.ShouldSendProduct)
}

func TestAnalyze_MixedSentimentWithoutTriggersNeedsReview(t *testing.T) {
	analysis := positiveAnalysis()
	analysis.Sentiment = models.SentimentMixed
	analysis.BuyerInterestLevel = models.InterestMedium

	oracle := &mockOracle{}
	oracle.On("Analyze", mock.Anything, mock.Anything, mock.Anything).Return(analysis, nil)
	svc := newTestService(oracle, nil)

	mention := models.Mention{ID: "m-1", Content: "good product but shipping was awful"}
	enrichment, err := svc.Analyze(context.Background(), "", &mention)
	require.NoError(t, err)
	assert.True(t, enrichment.RequiresManualReview)
}

func TestAnalyze_MixedSentimentWithTriggersSkipsReview(t *testing.T) {
	analysis := positiveAnalysis()
	analysis.Sentiment = models.SentimentMixed

	oracle := &mockOracle{}
	oracle.On("Analyze", mock.Anything, mock.Anything, mock.Anything).Return(analysis, nil)
	svc := newTestService(oracle, purchaseTriggers())

	mention := models.Mention{ID: "m-1", Content: "shipping was slow but yes please, how much?"}
	enrichment, err := svc.Analyze(context.Background(), "", &mention)
	require.NoError(t, err)
	assert.False(t, enrichment.RequiresManualReview)
}

func TestAnalyze_RepeatedContentHitsOracleOnce(t *testing.T) {
	oracle := &mockOracle{}
	oracle.On("Analyze", mock.Anything, mock.Anything, mock.Anything).Return(positiveAnalysis(), nil)
	svc := newTestService(oracle, nil)
	ctx := context.Background()

	m1 := models.Mention{ID: "m-1", Content: "same retweeted text"}
	m2 := models.Mention{ID: "m-2", Content: "same retweeted text"}

	_, err := svc.Analyze(ctx, "", &m1)
	require.NoError(t, err)
	_, err = svc.Analyze(ctx, "", &m2)
	require.NoError(t, err)

	oracle.AssertNumberOfCalls(t, "Analyze", 1)
}

func TestAnalyze_FailedOracleResultNotCached(t *testing.T) {
	oracle := &mockOracle{}
	oracle.On("Analyze", mock.Anything, mock.Anything, mock.Anything).
		Return(AnalysisResult{}, errors.New("oracle down")).Once()
	oracle.On("Analyze", mock.Anything, mock.Anything, mock.Anything).Return(positiveAnalysis(), nil)
	svc := newTestService(oracle, nil)
	ctx := context.Background()

	m1 := models.Mention{ID: "m-1", Content: "flaky text"}
	enrichment, err := svc.Analyze(ctx, "", &m1)
	require.NoError(t, err)
	assert.True(t, enrichment.Analysis.Defaulted)

	// The failure was not cached; a retry reaches the oracle again.
	m2 := models.Mention{ID: "m-2", Content: "flaky text"}
	enrichment, err = svc.Analyze(ctx, "", &m2)
	require.NoError(t, err)
	assert.False(t, enrichment.Analysis.Defaulted)
	oracle.AssertNumberOfCalls(t, "Analyze", 2)
}

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected AnalysisResult
		wantErr  bool
	}{
		{
			name: "well-formed response",
			raw:  `{"sentiment":"positive","sentiment_score":0.8,"opportunity_score":75,"intent":"purchase_intent","buyer_interest_level":"high"}`,
			expected: AnalysisResult{
				Sentiment:          "positive",
				SentimentScore:     0.8,
				OpportunityScore:   75,
				Intent:             "purchase_intent",
				BuyerInterestLevel: "high",
			},
		},
		{
			name: "out-of-range scores clamped",
			raw:  `{"sentiment":"negative","sentiment_score":-3.5,"opportunity_score":250}`,
			expected: AnalysisResult{
				Sentiment:        "negative",
				SentimentScore:   -1,
				OpportunityScore: 100,
			},
		},
		{
			name:     "unknown sentiment normalized to neutral",
			raw:      `{"sentiment":"ecstatic","opportunity_score":40}`,
			expected: AnalysisResult{Sentiment: "neutral", OpportunityScore: 40},
		},
		{
			name:     "missing sentiment defaults to neutral",
			raw:      `{"opportunity_score":10}`,
			expected: AnalysisResult{Sentiment: "neutral", OpportunityScore: 10},
		},
		{
			name:    "malformed JSON errors",
			raw:     `{"sentiment":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseAnalysis([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

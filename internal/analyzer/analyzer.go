package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sellsignal/outreach-bot/internal/models"
	"github.com/sellsignal/outreach-bot/internal/triggers"
	"github.com/sirupsen/logrus"
)

const (
	oracleCacheSize = 4096
	oracleCacheTTL  = 30 * time.Minute
)

// Enrichment is the analyzer's combined output for one mention: the oracle
// result, trigger detection, and the derived decision signals.
type Enrichment struct {
	Analysis AnalysisResult
	Triggers triggers.DetectResult

	// BoostedScore is the oracle opportunity score plus trigger boost,
	// capped at 100.
	BoostedScore int

	IsPositiveResponse   bool
	ShouldSendProduct    bool
	RequiresManualReview bool
}

// Service merges oracle analysis with trigger detection into one enriched,
// bounded score. Oracle faults never propagate as pipeline failures.
type Service struct {
	oracle  Oracle
	matcher *triggers.Matcher
	cache   *lru.LRU[string, AnalysisResult]
}

// NewService creates a mention analyzer. Oracle results are cached by
// content hash so repeated text (retweets, crossposts) is analyzed once.
func NewService(oracle Oracle, matcher *triggers.Matcher) *Service {
	return &Service{
		oracle:  oracle,
		matcher: matcher,
		cache:   lru.NewLRU[string, AnalysisResult](oracleCacheSize, nil, oracleCacheTTL),
	}
}

// Analyze enriches a mention in place and returns the combined result.
// Score fields on the mention are write-once per analysis pass.
func (s *Service) Analyze(ctx context.Context, ownerID string, mention *models.Mention) (Enrichment, error) {
	trig, err := s.matcher.Detect(ctx, ownerID, mention.Content)
	if err != nil {
		// Trigger detection failing means the trigger store is unreachable;
		// proceed with an empty result rather than dropping the mention.
		logrus.Errorf("Trigger detection failed for mention %s: %v", mention.ID, err)
		trig = triggers.DetectResult{}
	}

	analysis := s.analyzeText(ctx, mention.Content, mention.Platform)

	boosted := analysis.OpportunityScore + trig.TotalBoost
	if boosted > 100 {
		boosted = 100
	}

	enrichment := Enrichment{
		Analysis:     analysis,
		Triggers:     trig,
		BoostedScore: boosted,
		IsPositiveResponse: trig.HasPositiveTriggers ||
			analysis.Sentiment == models.SentimentPositive ||
			analysis.BuyerInterestLevel == models.InterestHigh,
		ShouldSendProduct: trig.IsPurchaseIntent || trig.IsRequestInfo ||
			analysis.BuyerInterestLevel == models.InterestHigh,
		RequiresManualReview: (analysis.Sentiment == models.SentimentMixed && !trig.HasPositiveTriggers) ||
			analysis.Defaulted,
	}

	mention.Sentiment = analysis.Sentiment
	mention.SentimentScore = analysis.SentimentScore
	mention.OpportunityScore = boosted
	mention.Intent = analysis.Intent
	mention.LeadQualityScore = boosted

	return enrichment, nil
}

// analyzeText calls the oracle through the content-hash cache, substituting
// safe defaults on any failure.
func (s *Service) analyzeText(ctx context.Context, text, hint string) AnalysisResult {
	key := contentKey(text)
	if cached, ok := s.cache.Get(key); ok {
		return cached
	}

	analysis, err := s.oracle.Analyze(ctx, text, hint)
	if err != nil {
		logrus.Warnf("Oracle analysis failed, applying safe defaults: %v", err)
		return DefaultAnalysis()
	}

	s.cache.Add(key, analysis)
	return analysis
}

func contentKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

package matching

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sellsignal/outreach-bot/internal/models"
	"github.com/sellsignal/outreach-bot/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	keywordPoints    = 10
	keywordCap       = 40
	sentimentBonus   = 20
	sentimentPenalty = 10
	intentBonus      = 20
	opportunityCap   = 20

	// qualifyFloor is the minimum clamped score for a product to qualify.
	qualifyFloor = 30
)

// Candidate is one qualifying product with its computed match score.
type Candidate struct {
	Product         models.Product
	Score           int
	MatchedKeywords []string
	Priority        int // campaign-assigned, default 1
}

// Matcher scores enriched mentions against active seller products.
type Matcher struct {
	repo store.Repository
}

// NewMatcher creates a product matcher backed by the given repository.
func NewMatcher(repo store.Repository) *Matcher {
	return &Matcher{repo: repo}
}

// Score computes the bounded match score of a product against an enriched
// mention. The second return is the matched keywords; the third reports
// whether the product qualifies (at least one keyword, score >= 30, no
// exclude hit, opportunity floor met).
func Score(mention models.Mention, product models.Product) (int, []string, bool) {
	content := strings.ToLower(mention.Title + " " + mention.Content)

	// Exclude keywords disqualify outright.
	for _, kw := range product.ExcludeKeywords {
		if kw != "" && strings.Contains(content, strings.ToLower(kw)) {
			return 0, nil, false
		}
	}

	// Hard opportunity floor, independent of the other terms.
	if mention.OpportunityScore < product.MinOpportunityScore {
		return 0, nil, false
	}

	var matched []string
	keywordScore := 0
	for _, kw := range product.MatchingKeywords {
		if kw != "" && strings.Contains(content, strings.ToLower(kw)) {
			matched = append(matched, kw)
			keywordScore += keywordPoints
		}
	}
	if keywordScore > keywordCap {
		keywordScore = keywordCap
	}

	score := keywordScore

	if len(product.TargetSentiment) > 0 {
		if containsString(product.TargetSentiment, mention.Sentiment) {
			score += sentimentBonus
		} else {
			score -= sentimentPenalty
		}
	}

	if containsString(product.TargetIntent, mention.Intent) {
		score += intentBonus
	}

	opportunityBonus := (mention.OpportunityScore - product.MinOpportunityScore) / 5
	if opportunityBonus > opportunityCap {
		opportunityBonus = opportunityCap
	}
	score += opportunityBonus

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	qualified := len(matched) > 0 && score >= qualifyFloor
	return score, matched, qualified
}

// Match scores the mention against every active product, filters out products
// that already hit their daily offer limit, records each qualifying pairing
// (idempotently), and returns candidates ranked by priority then score.
func (m *Matcher) Match(ctx context.Context, mention models.Mention, priorities map[string]int) ([]Candidate, error) {
	products, err := m.repo.ListActiveProducts(ctx)
	if err != nil {
		// A store outage degrades to "no match found" rather than failing
		// the pipeline.
		logrus.Errorf("Listing products failed, treating as no match: %v", err)
		return nil, nil
	}

	dayStart := time.Now().UTC().Truncate(24 * time.Hour)

	var candidates []Candidate
	for _, product := range products {
		score, matched, qualified := Score(mention, product)
		if !qualified {
			continue
		}

		// Daily offer limit is enforced before ranking is finalized.
		if product.MaxOffersPerDay > 0 {
			sent, err := m.repo.CountActionsSince(ctx, product.ID, models.DecisionSend, dayStart)
			if err != nil {
				logrus.Errorf("Counting offers for product %s failed, skipping: %v", product.ID, err)
				continue
			}
			if sent >= product.MaxOffersPerDay {
				logrus.Debugf("Product %s at daily offer limit (%d), skipping", product.ID, product.MaxOffersPerDay)
				continue
			}
		}

		if err := m.repo.InsertMatchResult(ctx, models.MatchResult{
			ID:              uuid.NewString(),
			ProductID:       product.ID,
			MentionID:       mention.ID,
			MatchScore:      score,
			MatchedKeywords: matched,
			CreatedAt:       time.Now().UTC(),
		}); err != nil {
			logrus.Errorf("Recording match result for product %s failed: %v", product.ID, err)
		}

		priority := 1
		if p, ok := priorities[product.ID]; ok {
			priority = p
		}

		candidates = append(candidates, Candidate{
			Product:         product,
			Score:           score,
			MatchedKeywords: matched,
			Priority:        priority,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].Score > candidates[j].Score
	})

	return candidates, nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

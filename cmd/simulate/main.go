// Command simulate runs a single mention through the full decision pipeline
// against an in-memory store, without touching any external API. Useful for
// tuning trigger words, product keywords, and automation thresholds before
// deploying a config change.
//
// Usage:
//
//	simulate -text "Yes please! How much does it cost?" -platform twitter -mode semi-auto
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/sellsignal/outreach-bot/internal/analyzer"
	"github.com/sellsignal/outreach-bot/internal/automation"
	"github.com/sellsignal/outreach-bot/internal/config"
	"github.com/sellsignal/outreach-bot/internal/matching"
	"github.com/sellsignal/outreach-bot/internal/models"
	"github.com/sellsignal/outreach-bot/internal/quota"
	"github.com/sellsignal/outreach-bot/internal/ratelimit"
	"github.com/sellsignal/outreach-bot/internal/rules"
	"github.com/sellsignal/outreach-bot/internal/store"
	"github.com/sellsignal/outreach-bot/internal/triggers"
)

func main() {
	text := flag.String("text", "", "mention text to analyze (required)")
	platform := flag.String("platform", "twitter", "source platform")
	mode := flag.String("mode", config.ModeSemiAuto, "automation mode: manual, semi-auto, full-auto")
	followers := flag.Int("followers", 500, "author follower count")
	threshold := flag.Int("threshold", 80, "auto-post threshold")
	flag.Parse()

	if *text == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := store.Open(":memory:")
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer repo.Close()

	if err := seed(ctx, repo); err != nil {
		log.Fatalf("seed fixtures: %v", err)
	}

	settings := config.AutomationSettings{
		Mode:                *mode,
		MaxPostsPerDay:      50,
		MaxPostsPerPlatform: 20,
		MinDelayMinutes:     5,
		MaxDelayMinutes:     30,
		AutoPostThreshold:   *threshold,
		WarmLeadFloor:       60,
		EnabledPlatforms:    map[string]bool{*platform: true},
	}
	if err := settings.Validate(); err != nil {
		log.Fatalf("invalid settings: %v", err)
	}

	trigMatcher := triggers.NewMatcher(repo)
	analysis := analyzer.NewService(heuristicOracle{}, trigMatcher)
	productMatcher := matching.NewMatcher(repo)
	ruleEngine := rules.NewEngine(repo)
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		Window:               time.Minute,
		MaxRequestsPerWindow: 10,
		RequestDelay:         time.Second,
		SpamThreshold:        8,
		SpamWindow:           10 * time.Second,
	})
	quotas := quota.NewManager(repo, discardAlerter{}, map[string]int{*platform + ":post": 500})
	controller := automation.NewController(settings, limiter, quotas, ruleEngine)

	mention := models.Mention{
		ID:            "sim-1",
		Platform:      *platform,
		Content:       *text,
		AuthorHandle:  "simulated_user",
		URL:           "https://example.com/sim-1",
		FollowerCount: *followers,
		CreatedAt:     time.Now(),
	}

	enrichment, err := analysis.Analyze(ctx, "", &mention)
	if err != nil {
		log.Fatalf("analyze: %v", err)
	}
	dump("analysis", enrichment)

	candidates, err := productMatcher.Match(ctx, mention, nil)
	if err != nil {
		log.Fatalf("match: %v", err)
	}
	dump("candidates", candidates)
	if len(candidates) == 0 {
		fmt.Println("no qualifying product; pipeline stops here")
		return
	}

	matched := ruleEngine.Satisfied(ctx, mention, candidates[0].Score)
	dump("rules", matched)
	if len(matched) == 0 {
		fmt.Println("no rule satisfied; pipeline stops here")
		return
	}

	action := controller.Decide(ctx, mention, candidates[0], matched[0])
	dump("decision", action)
}

// seed installs the default trigger words plus one permissive product and
// rule so any reasonably positive text survives the pipeline.
func seed(ctx context.Context, repo store.Repository) error {
	words := []models.TriggerWord{
		{ID: "t1", Phrase: "yes please", TriggerType: triggers.TypeConfirmation, MatchType: models.MatchContains, ConfidenceBoost: 25, Active: true},
		{ID: "t2", Phrase: "how much", TriggerType: triggers.TypePurchaseIntent, MatchType: models.MatchContains, ConfidenceBoost: 30, Active: true},
		{ID: "t3", Phrase: "where can i buy", TriggerType: triggers.TypePurchaseIntent, MatchType: models.MatchContains, ConfidenceBoost: 30, Active: true},
		{ID: "t4", Phrase: "tell me more", TriggerType: triggers.TypeRequestInfo, MatchType: models.MatchContains, ConfidenceBoost: 20, Active: true},
	}
	for _, w := range words {
		if err := repo.InsertTriggerWord(ctx, w); err != nil {
			return err
		}
	}
	if err := repo.UpsertProduct(ctx, models.Product{
		ID:                  "p1",
		Name:                "Demo Product",
		MatchingKeywords:    []string{"cost", "buy", "price", "recommend"},
		MinOpportunityScore: 20,
		MaxOffersPerDay:     100,
		Active:              true,
	}); err != nil {
		return err
	}
	return repo.UpsertRule(ctx, models.OutreachRule{
		ID:   "r1",
		Name: "simulate-default",
		Triggers: models.RuleTriggers{
			MinRelevanceScore: 30,
		},
		RateLimit: models.RuleRateLimit{MaxPerHour: 100, MaxPerDay: 100},
		Channels:  []string{"reply"},
		Active:    true,
	})
}

// heuristicOracle is a deterministic stand-in for the hosted analysis
// service. It scores on a few surface signals, which is plenty for tuning
// runs where only relative movement matters.
type heuristicOracle struct{}

func (heuristicOracle) Analyze(ctx context.Context, text, hint string) (analyzer.AnalysisResult, error) {
	lower := strings.ToLower(text)
	res := analyzer.AnalysisResult{
		Sentiment:          models.SentimentNeutral,
		SentimentScore:     0,
		OpportunityScore:   40,
		Intent:             models.IntentGeneral,
		BuyerInterestLevel: models.InterestLow,
		Reasoning:          "heuristic simulation",
	}
	for _, positive := range []string{"thanks", "love", "great", "yes", "please", "awesome"} {
		if strings.Contains(lower, positive) {
			res.Sentiment = models.SentimentPositive
			res.SentimentScore = 0.6
			res.OpportunityScore += 15
			break
		}
	}
	for _, negative := range []string{"hate", "terrible", "refund", "scam"} {
		if strings.Contains(lower, negative) {
			res.Sentiment = models.SentimentNegative
			res.SentimentScore = -0.6
			res.OpportunityScore -= 20
			break
		}
	}
	if strings.Contains(lower, "buy") || strings.Contains(lower, "cost") || strings.Contains(lower, "price") {
		res.Intent = models.IntentPurchase
		res.BuyerInterestLevel = models.InterestHigh
		res.OpportunityScore += 20
	} else if strings.Contains(lower, "?") {
		res.Intent = models.IntentQuestion
	}
	if res.OpportunityScore > 100 {
		res.OpportunityScore = 100
	}
	if res.OpportunityScore < 0 {
		res.OpportunityScore = 0
	}
	return res, nil
}

type discardAlerter struct{}

func (discardAlerter) SendAlert(alert *models.Alert) error { return nil }

func dump(label string, v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("marshal %s: %v", label, err)
	}
	fmt.Printf("== %s ==\n%s\n", label, b)
}

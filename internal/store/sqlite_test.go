package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellsignal/outreach-bot/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_OnDiskCreatesDataDir(t *testing.T) {
	dir := t.TempDir() + "/nested/data"
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	// Reopening applies no migration twice and keeps the data.
	require.NoError(t, s.InsertTriggerWord(context.Background(), models.TriggerWord{
		ID: "t-1", Phrase: "yes please", MatchType: models.MatchContains, Active: true,
	}))
	require.NoError(t, s.Close())

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	words, err := s2.ListActiveTriggerWords(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, words, 1)
}

func TestTriggerWords_OwnerScoping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertTriggerWord(ctx, models.TriggerWord{ID: "sys", Phrase: "how much", MatchType: models.MatchContains, Active: true}))
	require.NoError(t, s.InsertTriggerWord(ctx, models.TriggerWord{ID: "own", Phrase: "ship it", OwnerID: "owner-1", MatchType: models.MatchContains, Active: true}))
	require.NoError(t, s.InsertTriggerWord(ctx, models.TriggerWord{ID: "other", Phrase: "secret", OwnerID: "owner-2", MatchType: models.MatchContains, Active: true}))
	require.NoError(t, s.InsertTriggerWord(ctx, models.TriggerWord{ID: "off", Phrase: "dormant", MatchType: models.MatchContains, Active: false}))

	words, err := s.ListActiveTriggerWords(ctx, "owner-1")
	require.NoError(t, err)

	ids := make([]string, 0, len(words))
	for _, w := range words {
		ids = append(ids, w.ID)
	}
	assert.ElementsMatch(t, []string{"sys", "own"}, ids)
}

func TestProducts_RoundTripAndUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := models.Product{
		ID:                  "p-1",
		Name:                "Resistance Band Set",
		MatchingKeywords:    []string{"workout", "home gym"},
		ExcludeKeywords:     []string{"free"},
		TargetSentiment:     []string{models.SentimentPositive},
		TargetIntent:        []string{models.IntentPurchase},
		MinOpportunityScore: 40,
		MaxOffersPerDay:     10,
		Active:              true,
	}
	require.NoError(t, s.UpsertProduct(ctx, p))

	products, err := s.ListActiveProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, p, products[0])

	// Upsert replaces in place.
	p.Name = "Resistance Band Set v2"
	p.MaxOffersPerDay = 5
	require.NoError(t, s.UpsertProduct(ctx, p))

	products, err = s.ListActiveProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Resistance Band Set v2", products[0].Name)
	assert.Equal(t, 5, products[0].MaxOffersPerDay)

	// Deactivating hides it from the active listing.
	p.Active = false
	require.NoError(t, s.UpsertProduct(ctx, p))
	products, err = s.ListActiveProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestRules_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := models.OutreachRule{
		ID:   "r-1",
		Name: "hot leads",
		Triggers: models.RuleTriggers{
			MinOpportunityScore: 70,
			Sentiment:           []string{models.SentimentPositive},
			Platforms:           []string{"twitter"},
		},
		RateLimit: models.RuleRateLimit{MaxPerHour: 3, MaxPerDay: 10},
		Channels:  []string{"reply", "dm"},
		Active:    true,
	}
	require.NoError(t, s.UpsertRule(ctx, r))

	rules, err := s.ListActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, r, rules[0])
}

func TestInsertMatchResult_IdempotentPerPair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mr := models.MatchResult{
		ID:              "first",
		ProductID:       "p-1",
		MentionID:       "m-1",
		MatchScore:      65,
		MatchedKeywords: []string{"workout"},
		CreatedAt:       time.Now(),
	}
	require.NoError(t, s.InsertMatchResult(ctx, mr))

	// Replaying the same pair with a different row ID is silently ignored.
	mr.ID = "second"
	mr.MatchScore = 99
	require.NoError(t, s.InsertMatchResult(ctx, mr))

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM match_results WHERE product_id = 'p-1' AND mention_id = 'm-1'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	var score int
	err = s.db.QueryRow("SELECT match_score FROM match_results WHERE product_id = 'p-1' AND mention_id = 'm-1'").Scan(&score)
	require.NoError(t, err)
	assert.Equal(t, 65, score, "original row wins on replay")

	// A different mention for the same product is a new row.
	mr.MentionID = "m-2"
	require.NoError(t, s.InsertMatchResult(ctx, mr))
	err = s.db.QueryRow("SELECT COUNT(*) FROM match_results").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestActionCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	insert := func(id, productID, ruleID, platform, decision string, age time.Duration) {
		require.NoError(t, s.InsertAction(ctx, models.OutreachAction{
			ID:        id,
			MentionID: "m-" + id,
			ProductID: productID,
			RuleID:    ruleID,
			Platform:  platform,
			Decision:  decision,
			CreatedAt: now.Add(-age),
		}))
	}

	insert("a1", "p-1", "r-1", "twitter", models.DecisionSend, 10*time.Minute)
	insert("a2", "p-1", "r-1", "twitter", models.DecisionSend, 2*time.Hour)
	insert("a3", "p-1", "r-2", "reddit", models.DecisionSend, 10*time.Minute)
	insert("a4", "p-2", "r-1", "twitter", models.DecisionHold, 10*time.Minute)

	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	count, err := s.CountActionsSince(ctx, "p-1", models.DecisionSend, hourAgo)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = s.CountActionsSince(ctx, "p-1", models.DecisionSend, dayAgo)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = s.CountRuleActionsSince(ctx, "r-1", models.DecisionSend, hourAgo)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = s.CountAllActionsSince(ctx, models.DecisionSend, dayAgo)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = s.CountPlatformActionsSince(ctx, "twitter", models.DecisionSend, dayAgo)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = s.CountAllActionsSince(ctx, models.DecisionHold, dayAgo)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestQuota_ZeroRowThenRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.GetQuota(ctx, "twitter", "post", "2026-08")
	require.NoError(t, err)
	assert.Equal(t, models.QuotaRecord{Platform: "twitter", UsageType: "post", MonthKey: "2026-08"}, rec)

	rec.UsageCount = 42
	rec.WarningsSent = 1
	require.NoError(t, s.SaveQuota(ctx, rec))

	got, err := s.GetQuota(ctx, "twitter", "post", "2026-08")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	// Overwrite via upsert, e.g. pausing the row.
	rec.IsPaused = true
	require.NoError(t, s.SaveQuota(ctx, rec))
	got, err = s.GetQuota(ctx, "twitter", "post", "2026-08")
	require.NoError(t, err)
	assert.True(t, got.IsPaused)

	// Months are independent rows.
	sept, err := s.GetQuota(ctx, "twitter", "post", "2026-09")
	require.NoError(t, err)
	assert.Zero(t, sept.UsageCount)
	assert.False(t, sept.IsPaused)
}

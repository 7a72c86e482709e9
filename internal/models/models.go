package models

import "time"

// Sentiment labels assigned by analysis.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
	SentimentMixed    = "mixed"
)

// Intent labels assigned by analysis.
const (
	IntentPurchase    = "purchase_intent"
	IntentRequestInfo = "request_info"
	IntentComplaint   = "complaint"
	IntentQuestion    = "question"
	IntentGeneral     = "general"
)

// Buyer interest levels reported by the AI oracle.
const (
	InterestHigh   = "high"
	InterestMedium = "medium"
	InterestLow    = "low"
)

// Engagement holds per-post interaction counts.
type Engagement struct {
	Likes    int `json:"likes"`
	Comments int `json:"comments"`
	Shares   int `json:"shares"`
}

// Mention represents a single social-media post or comment matched by a
// listening campaign. Analysis fields are written once by the analyzer and
// read-only afterwards.
type Mention struct {
	ID            string     `json:"id"`
	Platform      string     `json:"platform"` // "twitter", "reddit", etc.
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	AuthorHandle  string     `json:"author_handle"`
	URL           string     `json:"url"`
	FollowerCount int        `json:"follower_count"`
	Engagement    Engagement `json:"engagement"`
	CreatedAt     time.Time  `json:"created_at"`

	// Analysis-derived fields, populated by the analyzer.
	Sentiment        string  `json:"sentiment"`
	SentimentScore   float64 `json:"sentiment_score"`   // [-1, 1]
	OpportunityScore int     `json:"opportunity_score"` // [0, 100]
	Intent           string  `json:"intent"`
	LeadQualityScore int     `json:"lead_quality_score"` // [0, 100]
}

// TriggerWord is a configured phrase whose presence in mention text signals
// buyer interest.
type TriggerWord struct {
	ID              string `json:"id"`
	Phrase          string `json:"phrase"`
	TriggerType     string `json:"trigger_type"` // "purchase_intent", "request_info", "confirmation", ...
	MatchType       string `json:"match_type"`   // "exact", "contains", "regex", "fuzzy"
	CaseSensitive   bool   `json:"case_sensitive"`
	ConfidenceBoost int    `json:"confidence_boost"`
	OwnerID         string `json:"owner_id"` // empty for system defaults
	Active          bool   `json:"active"`
}

// Trigger match types.
const (
	MatchExact    = "exact"
	MatchContains = "contains"
	MatchRegex    = "regex"
	MatchFuzzy    = "fuzzy"
)

// Product is a seller offering scored against enriched mentions.
type Product struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	MatchingKeywords    []string `json:"matching_keywords"`
	ExcludeKeywords     []string `json:"exclude_keywords"`
	TargetSentiment     []string `json:"target_sentiment"`
	TargetIntent        []string `json:"target_intent"`
	MinOpportunityScore int      `json:"min_opportunity_score"`
	MaxOffersPerDay     int      `json:"max_offers_per_day"`
	Active              bool     `json:"active"`
}

// RuleTriggers are the AND-combined conditions of an outreach rule. Zero
// values mean "not populated" and are vacuously true.
type RuleTriggers struct {
	MinOpportunityScore int      `json:"min_opportunity_score"`
	MinRelevanceScore   int      `json:"min_relevance_score"`
	Sentiment           []string `json:"sentiment"`
	Intent              []string `json:"intent"`
	MinFollowerCount    int      `json:"min_follower_count"`
	Platforms           []string `json:"platforms"`
}

// RuleRateLimit bounds how often a single rule may fire.
type RuleRateLimit struct {
	MaxPerHour int `json:"max_per_hour"`
	MaxPerDay  int `json:"max_per_day"`
}

// OutreachRule decides whether a mention is eligible for automated outreach.
type OutreachRule struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Triggers  RuleTriggers  `json:"triggers"`
	RateLimit RuleRateLimit `json:"rate_limit"`
	Channels  []string      `json:"channels"`
	Active    bool          `json:"active"`
}

// MatchResult records one scored (product, mention) pairing. Recording is
// idempotent: a duplicate insert for the same pair is a no-op.
type MatchResult struct {
	ID              string    `json:"id"`
	ProductID       string    `json:"product_id"`
	MentionID       string    `json:"mention_id"`
	MatchScore      int       `json:"match_score"` // [0, 100]
	MatchedKeywords []string  `json:"matched_keywords"`
	CreatedAt       time.Time `json:"created_at"`
}

// QuotaRecord is one monthly usage ledger row per (platform, usageType).
type QuotaRecord struct {
	Platform     string `json:"platform"`
	UsageType    string `json:"usage_type"`
	MonthKey     string `json:"month_key"` // "2026-08"
	UsageCount   int    `json:"usage_count"`
	IsPaused     bool   `json:"is_paused"`
	WarningsSent int    `json:"warnings_sent"`
}

// Outreach decisions emitted by the automation controller.
const (
	DecisionSend   = "send"
	DecisionHold   = "hold"
	DecisionReject = "reject"

	// DecisionFailed marks a send whose delivery failed; it is retried only
	// by the next listening cycle, never in a tight loop.
	DecisionFailed = "failed"
)

// OutreachAction is the final decision for one (mention, product, rule)
// evaluation.
type OutreachAction struct {
	ID         string        `json:"id"`
	MentionID  string        `json:"mention_id"`
	ProductID  string        `json:"product_id"`
	RuleID     string        `json:"rule_id"`
	Platform   string        `json:"platform"`
	Decision   string        `json:"decision"`
	Reason     string        `json:"reason"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Delay      time.Duration `json:"delay,omitempty"` // randomized pre-send delay
	CreatedAt  time.Time     `json:"created_at"`
}

// Report summarizes one listening cycle.
type Report struct {
	GeneratedAt   time.Time              `json:"generated_at"`
	Period        string                 `json:"period"`
	TotalMentions int                    `json:"total_mentions"`
	Mentions      []Mention              `json:"mentions"`
	Actions       []OutreachAction       `json:"actions"`
	Summary       map[string]interface{} `json:"summary"`
}

// Alert is an out-of-band operator notification (quota warnings, paused
// services, hold-queue digests).
type Alert struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // "quota_warning", "quota_exceeded", "info"
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Mention   *Mention  `json:"mention,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

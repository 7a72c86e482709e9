package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// AnalysisResult is the typed output of the AI oracle. The oracle may return
// loosely structured JSON; Parse normalizes it and never panics or errors
// past this boundary.
type AnalysisResult struct {
	Sentiment          string  `json:"sentiment"`
	SentimentScore     float64 `json:"sentiment_score"`
	OpportunityScore   int     `json:"opportunity_score"`
	Intent             string  `json:"intent"`
	BuyerInterestLevel string  `json:"buyer_interest_level"`
	Reasoning          string  `json:"reasoning"`

	// Defaulted is true when the oracle failed and safe defaults were
	// substituted. Callers must force manual review in that case.
	Defaulted bool `json:"-"`
}

// Oracle analyzes mention text. Implementations must honor the context
// deadline and may fail; callers substitute defaults on failure.
type Oracle interface {
	Analyze(ctx context.Context, text, hint string) (AnalysisResult, error)
}

// HTTPOracle calls a hosted analysis endpoint.
type HTTPOracle struct {
	client *resty.Client
	url    string
}

var _ Oracle = (*HTTPOracle)(nil)

// NewHTTPOracle creates an oracle client with a bounded per-call timeout.
func NewHTTPOracle(url, apiKey string, timeout time.Duration) *HTTPOracle {
	client := resty.New().SetTimeout(timeout)
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &HTTPOracle{client: client, url: url}
}

type oracleRequest struct {
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
}

// Analyze posts the text for analysis and parses the typed result.
func (o *HTTPOracle) Analyze(ctx context.Context, text, hint string) (AnalysisResult, error) {
	resp, err := o.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(oracleRequest{Text: text, Context: hint}).
		Post(o.url)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("oracle request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return AnalysisResult{}, fmt.Errorf("oracle returned status %d", resp.StatusCode())
	}

	return ParseAnalysis(resp.Body())
}

// ParseAnalysis decodes raw oracle output into a validated AnalysisResult.
// Out-of-range scores are clamped rather than rejected.
func ParseAnalysis(raw []byte) (AnalysisResult, error) {
	var result AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return AnalysisResult{}, fmt.Errorf("unmarshaling oracle response: %w", err)
	}

	if result.OpportunityScore < 0 {
		result.OpportunityScore = 0
	}
	if result.OpportunityScore > 100 {
		result.OpportunityScore = 100
	}
	if result.SentimentScore < -1 {
		result.SentimentScore = -1
	}
	if result.SentimentScore > 1 {
		result.SentimentScore = 1
	}

	switch result.Sentiment {
	case "positive", "negative", "neutral", "mixed":
	case "":
		result.Sentiment = "neutral"
	default:
		logrus.Warnf("Oracle returned unknown sentiment %q, treating as neutral", result.Sentiment)
		result.Sentiment = "neutral"
	}

	return result, nil
}

// DefaultAnalysis returns the safe fallback used when the oracle fails or
// times out.
func DefaultAnalysis() AnalysisResult {
	return AnalysisResult{
		Sentiment:          "neutral",
		SentimentScore:     0,
		OpportunityScore:   30,
		Intent:             "general",
		BuyerInterestLevel: "low",
		Reasoning:          "analysis unavailable, defaults applied",
		Defaulted:          true,
	}
}

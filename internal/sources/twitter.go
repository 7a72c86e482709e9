package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sellsignal/outreach-bot/internal/models"
	"github.com/sirupsen/logrus"
)

// TwitterSource searches recent tweets via the v2 API.
type TwitterSource struct {
	bearerToken string
	client      *resty.Client
}

var _ Source = (*TwitterSource)(nil)

type twitterSearchResponse struct {
	Data     []twitterTweet `json:"data"`
	Includes struct {
		Users []twitterUser `json:"users"`
	} `json:"includes"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

type twitterUser struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	PublicMetrics struct {
		FollowersCount int `json:"followers_count"`
	} `json:"public_metrics"`
}

type twitterTweet struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	AuthorID      string `json:"author_id"`
	CreatedAt     string `json:"created_at"`
	PublicMetrics struct {
		RetweetCount int `json:"retweet_count"`
		LikeCount    int `json:"like_count"`
		ReplyCount   int `json:"reply_count"`
	} `json:"public_metrics"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

// NewTwitterSource creates a Twitter connector.
func NewTwitterSource(bearerToken string) *TwitterSource {
	return &TwitterSource{
		bearerToken: bearerToken,
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "OutreachBot/1.0"),
	}
}

func (t *TwitterSource) Name() string {
	return "twitter"
}

func (t *TwitterSource) Enabled() bool {
	return t.bearerToken != ""
}

// Search fetches recent tweets matching each keyword, deduplicated across
// keywords. Per-keyword failures are logged and skipped so one bad query
// does not lose the rest.
func (t *TwitterSource) Search(ctx context.Context, keywords []string, opts SearchOptions) ([]models.Mention, error) {
	if !t.Enabled() {
		logrus.Debug("Twitter source disabled - missing bearer token")
		return nil, nil
	}

	var all []models.Mention
	for i, keyword := range keywords {
		// Space out keyword searches to stay under the search endpoint's
		// request budget.
		if i > 0 {
			select {
			case <-ctx.Done():
				return all, ctx.Err()
			case <-time.After(3 * time.Second):
			}
		}

		mentions, err := t.searchKeyword(ctx, keyword, opts)
		if err != nil {
			logrus.Errorf("Failed to search Twitter for keyword '%s': %v", keyword, err)
			continue
		}
		all = append(all, mentions...)
	}

	return deduplicateMentions(all), nil
}

// MonitorAccounts fetches recent tweets from the given account IDs.
func (t *TwitterSource) MonitorAccounts(ctx context.Context, accountIDs []string) ([]models.Mention, error) {
	if !t.Enabled() {
		return nil, nil
	}

	var all []models.Mention
	for _, accountID := range accountIDs {
		query := fmt.Sprintf("from:%s", accountID)
		mentions, err := t.search(ctx, query, SearchOptions{Window: 24 * time.Hour})
		if err != nil {
			logrus.Errorf("Failed to monitor Twitter account %s: %v", accountID, err)
			continue
		}
		all = append(all, mentions...)
	}
	return deduplicateMentions(all), nil
}

func (t *TwitterSource) searchKeyword(ctx context.Context, keyword string, opts SearchOptions) ([]models.Mention, error) {
	return t.search(ctx, fmt.Sprintf("%q -is:retweet", keyword), opts)
}

func (t *TwitterSource) search(ctx context.Context, query string, opts SearchOptions) ([]models.Mention, error) {
	window := opts.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	startTime := time.Now().Add(-window).Format(time.RFC3339)
	searchURL := fmt.Sprintf(
		"https://api.twitter.com/2/tweets/search/recent?query=%s&start_time=%s&max_results=%d&tweet.fields=created_at,author_id,public_metrics,referenced_tweets&expansions=author_id&user.fields=username,public_metrics",
		url.QueryEscape(query), startTime, limit)

	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+t.bearerToken).
		Get(searchURL)
	if err != nil {
		return nil, err
	}

	// Fail fast on 429 so the other connectors in the cycle still complete.
	if resp.StatusCode() == 429 {
		logrus.Warnf("Twitter API rate limit hit for query %q - skipping", query)
		return nil, nil
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("twitter API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var searchResp twitterSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse Twitter response: %w", err)
	}

	users := make(map[string]twitterUser, len(searchResp.Includes.Users))
	for _, u := range searchResp.Includes.Users {
		users[u.ID] = u
	}

	var mentions []models.Mention
	for _, tweet := range searchResp.Data {
		if isRetweet(tweet) {
			continue
		}

		createdAt, err := time.Parse(time.RFC3339, tweet.CreatedAt)
		if err != nil {
			logrus.Errorf("Failed to parse Twitter timestamp: %v", err)
			continue
		}

		author := users[tweet.AuthorID]
		handle := author.Username
		if handle == "" {
			handle = tweet.AuthorID
		}

		mentions = append(mentions, models.Mention{
			ID:            fmt.Sprintf("twitter_%s", tweet.ID),
			Platform:      "twitter",
			Content:       tweet.Text,
			AuthorHandle:  handle,
			URL:           fmt.Sprintf("https://twitter.com/i/status/%s", tweet.ID),
			FollowerCount: author.PublicMetrics.FollowersCount,
			Engagement: models.Engagement{
				Likes:    tweet.PublicMetrics.LikeCount,
				Comments: tweet.PublicMetrics.ReplyCount,
				Shares:   tweet.PublicMetrics.RetweetCount,
			},
			CreatedAt: createdAt,
		})
	}

	return mentions, nil
}

func isRetweet(tweet twitterTweet) bool {
	for _, ref := range tweet.ReferencedTweets {
		if ref.Type == "retweeted" {
			return true
		}
	}
	return false
}

func deduplicateMentions(mentions []models.Mention) []models.Mention {
	seen := make(map[string]bool)
	var unique []models.Mention
	for _, mention := range mentions {
		if !seen[mention.ID] {
			seen[mention.ID] = true
			unique = append(unique, mention)
		}
	}
	return unique
}

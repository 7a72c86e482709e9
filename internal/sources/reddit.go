package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sellsignal/outreach-bot/internal/models"
	"github.com/sirupsen/logrus"
)

// RedditSource searches Reddit via the OAuth API using client credentials.
type RedditSource struct {
	clientID     string
	clientSecret string
	client       *resty.Client
	accessToken  string
}

var _ Source = (*RedditSource)(nil)

type redditAuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type redditSearchResponse struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Created     float64 `json:"created_utc"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
}

// NewRedditSource creates a Reddit connector.
func NewRedditSource(clientID, clientSecret string) *RedditSource {
	return &RedditSource{
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       resty.New().SetTimeout(30 * time.Second),
	}
}

func (r *RedditSource) Name() string {
	return "reddit"
}

func (r *RedditSource) Enabled() bool {
	return r.clientID != "" && r.clientSecret != ""
}

// Search runs a site-wide search per keyword, filtered to the window.
func (r *RedditSource) Search(ctx context.Context, keywords []string, opts SearchOptions) ([]models.Mention, error) {
	if !r.Enabled() {
		logrus.Debug("Reddit source disabled - missing credentials")
		return nil, nil
	}

	if err := r.authenticate(ctx); err != nil {
		return nil, fmt.Errorf("reddit authentication failed: %w", err)
	}

	var all []models.Mention
	for _, keyword := range keywords {
		mentions, err := r.searchKeyword(ctx, keyword, opts)
		if err != nil {
			logrus.Errorf("Failed to search Reddit for keyword '%s': %v", keyword, err)
			continue
		}
		all = append(all, mentions...)
	}

	return deduplicateMentions(all), nil
}

// MonitorAccounts fetches recent submissions by the given usernames.
func (r *RedditSource) MonitorAccounts(ctx context.Context, accountIDs []string) ([]models.Mention, error) {
	if !r.Enabled() {
		return nil, nil
	}

	if err := r.authenticate(ctx); err != nil {
		return nil, fmt.Errorf("reddit authentication failed: %w", err)
	}

	var all []models.Mention
	for _, account := range accountIDs {
		listURL := fmt.Sprintf("https://oauth.reddit.com/user/%s/submitted.json?sort=new&limit=25", url.PathEscape(account))
		mentions, err := r.fetch(ctx, listURL, "", 24*time.Hour)
		if err != nil {
			logrus.Errorf("Failed to monitor Reddit account %s: %v", account, err)
			continue
		}
		all = append(all, mentions...)
	}
	return deduplicateMentions(all), nil
}

func (r *RedditSource) authenticate(ctx context.Context) error {
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", "OutreachBot/1.0").
		SetBasicAuth(r.clientID, r.clientSecret).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
		}).
		Post("https://www.reddit.com/api/v1/access_token")
	if err != nil {
		return err
	}

	var authResp redditAuthResponse
	if err := json.Unmarshal(resp.Body(), &authResp); err != nil {
		return err
	}

	r.accessToken = authResp.AccessToken
	return nil
}

func (r *RedditSource) searchKeyword(ctx context.Context, keyword string, opts SearchOptions) ([]models.Mention, error) {
	window := opts.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	searchURL := fmt.Sprintf("https://oauth.reddit.com/search.json?q=%s&sort=new&limit=%d",
		url.QueryEscape(keyword), limit)
	return r.fetch(ctx, searchURL, keyword, window)
}

func (r *RedditSource) fetch(ctx context.Context, fetchURL, keyword string, window time.Duration) ([]models.Mention, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+r.accessToken).
		SetHeader("User-Agent", "OutreachBot/1.0").
		Get(fetchURL)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("reddit API returned status %d", resp.StatusCode())
	}

	var searchResp redditSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, err
	}

	var mentions []models.Mention
	cutoff := time.Now().Add(-window)

	for _, child := range searchResp.Data.Children {
		post := child.Data
		createdAt := time.Unix(int64(post.Created), 0)
		if createdAt.Before(cutoff) {
			continue
		}

		// Reddit search matches loosely; require the keyword in the text.
		if keyword != "" {
			content := strings.ToLower(post.Title + " " + post.Selftext)
			if !strings.Contains(content, strings.ToLower(keyword)) {
				continue
			}
		}

		mentions = append(mentions, models.Mention{
			ID:           fmt.Sprintf("reddit_%s", post.ID),
			Platform:     "reddit",
			Title:        post.Title,
			Content:      post.Selftext,
			AuthorHandle: post.Author,
			URL:          fmt.Sprintf("https://reddit.com%s", post.Permalink),
			Engagement: models.Engagement{
				Likes:    post.Score,
				Comments: post.NumComments,
			},
			CreatedAt: createdAt,
		})
	}

	return mentions, nil
}

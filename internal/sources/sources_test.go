package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sellsignal/outreach-bot/internal/models"
)

func TestTwitterSource_Name(t *testing.T) {
	source := NewTwitterSource("bearer")
	assert.Equal(t, "twitter", source.Name())
}

func TestTwitterSource_Enabled(t *testing.T) {
	assert.True(t, NewTwitterSource("bearer").Enabled())
	assert.False(t, NewTwitterSource("").Enabled())
}

func TestRedditSource_Name(t *testing.T) {
	source := NewRedditSource("client_id", "client_secret")
	assert.Equal(t, "reddit", source.Name())
}

func TestRedditSource_Enabled(t *testing.T) {
	tests := []struct {
		name         string
		clientID     string
		clientSecret string
		expected     bool
	}{
		{
			name:         "Both credentials provided",
			clientID:     "client_id",
			clientSecret: "client_secret",
			expected:     true,
		},
		{
			name:         "Missing client ID",
			clientID:     "",
			clientSecret: "client_secret",
			expected:     false,
		},
		{
			name:         "Missing client secret",
			clientID:     "client_id",
			clientSecret: "",
			expected:     false,
		},
		{
			name:         "Both missing",
			clientID:     "",
			clientSecret: "",
			expected:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := NewRedditSource(tt.clientID, tt.clientSecret)
			assert.Equal(t, tt.expected, source.Enabled())
		})
	}
}

func TestIsRetweet(t *testing.T) {
	var rt twitterTweet
	rt.ReferencedTweets = append(rt.ReferencedTweets, struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}{Type: "retweeted", ID: "123"})
	assert.True(t, isRetweet(rt))

	var quote twitterTweet
	quote.ReferencedTweets = append(quote.ReferencedTweets, struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}{Type: "quoted", ID: "456"})
	assert.False(t, isRetweet(quote))

	assert.False(t, isRetweet(twitterTweet{Text: "original post"}))
}

func TestDeduplicateMentions(t *testing.T) {
	mentions := []models.Mention{
		{ID: "twitter-1"},
		{ID: "twitter-2"},
		{ID: "twitter-1"},
	}
	unique := deduplicateMentions(mentions)
	assert.Len(t, unique, 2)
	assert.Equal(t, "twitter-1", unique[0].ID)
	assert.Equal(t, "twitter-2", unique[1].ID)
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Automation modes.
const (
	ModeManual   = "manual"
	ModeSemiAuto = "semi-auto"
	ModeFullAuto = "full-auto"
)

// AutomationSettings is the operator-facing automation configuration. It is
// validated at load time; unknown modes or inverted bounds are rejected
// rather than trusted.
type AutomationSettings struct {
	Mode                     string          `json:"mode"`
	MaxPostsPerDay           int             `json:"max_posts_per_day"`
	MaxPostsPerPlatform      int             `json:"max_posts_per_platform"`
	MinDelayMinutes          int             `json:"min_delay_minutes"`
	MaxDelayMinutes          int             `json:"max_delay_minutes"`
	AutoPostThreshold        int             `json:"auto_post_threshold"` // [0, 100]
	WarmLeadFloor            int             `json:"warm_lead_floor"`     // lower bound of the "warm" band
	EnabledPlatforms         map[string]bool `json:"enabled_platforms"`
	RequireApprovalWarmLeads bool            `json:"require_approval_warm_leads"`
	PauseIfLowEngagement     bool            `json:"pause_if_low_engagement"`
}

// Validate checks enumerated fields and numeric bounds.
func (a *AutomationSettings) Validate() error {
	switch a.Mode {
	case ModeManual, ModeSemiAuto, ModeFullAuto:
	default:
		return fmt.Errorf("AUTOMATION_MODE must be one of 'manual', 'semi-auto', 'full-auto', got %q", a.Mode)
	}
	if a.AutoPostThreshold < 0 || a.AutoPostThreshold > 100 {
		return fmt.Errorf("AUTO_POST_THRESHOLD must be in [0,100], got %d", a.AutoPostThreshold)
	}
	if a.MinDelayMinutes < 0 || a.MaxDelayMinutes < a.MinDelayMinutes {
		return fmt.Errorf("delay bounds invalid: min=%d max=%d", a.MinDelayMinutes, a.MaxDelayMinutes)
	}
	if a.MaxPostsPerDay < 0 || a.MaxPostsPerPlatform < 0 {
		return fmt.Errorf("volume limits must be non-negative")
	}
	if a.WarmLeadFloor < 0 || a.WarmLeadFloor > a.AutoPostThreshold {
		return fmt.Errorf("WARM_LEAD_FLOOR must be in [0, auto_post_threshold], got %d", a.WarmLeadFloor)
	}
	return nil
}

// PlatformEnabled reports whether outreach is enabled for a platform.
// Platforms absent from the map are disabled.
func (a *AutomationSettings) PlatformEnabled(platform string) bool {
	return a.EnabledPlatforms[platform]
}

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Listening configuration
	ListenSchedule string // cron cadence label: "hourly" or "daily"
	Keywords       []string
	WatchAccounts  []string

	// Automation configuration
	Automation AutomationSettings

	// AI oracle configuration
	OracleURL       string
	OracleAPIKey    string
	OracleTimeoutMS int

	// Storage / archive configuration
	DataDir          string
	StorageAccount   string
	StorageContainer string

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	// Platform credentials
	RedditClientID     string
	RedditClientSecret string
	TwitterBearerToken string

	// Rate limiting configuration
	RateWindowMS         int
	MaxRequestsPerWindow int
	RequestDelayMS       int
	SpamThreshold        int
	SpamWindowMS         int

	// Monthly quota limits per (platform, usage type), e.g. "twitter:post=500"
	QuotaLimits map[string]int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Debug:          getBoolEnv("DEBUG", false),
		ListenSchedule: getEnv("LISTEN_SCHEDULE", "hourly"),
		Keywords:       getSliceEnv("KEYWORDS", nil),
		WatchAccounts:  getSliceEnv("WATCH_ACCOUNTS", nil),

		Automation: AutomationSettings{
			Mode:                     getEnv("AUTOMATION_MODE", ModeManual),
			MaxPostsPerDay:           getIntEnv("MAX_POSTS_PER_DAY", 15),
			MaxPostsPerPlatform:      getIntEnv("MAX_POSTS_PER_PLATFORM", 5),
			MinDelayMinutes:          getIntEnv("MIN_DELAY_MINUTES", 2),
			MaxDelayMinutes:          getIntEnv("MAX_DELAY_MINUTES", 15),
			AutoPostThreshold:        getIntEnv("AUTO_POST_THRESHOLD", 80),
			WarmLeadFloor:            getIntEnv("WARM_LEAD_FLOOR", 50),
			EnabledPlatforms:         getPlatformMapEnv("ENABLED_PLATFORMS", map[string]bool{"twitter": true, "reddit": true}),
			RequireApprovalWarmLeads: getBoolEnv("REQUIRE_APPROVAL_WARM_LEADS", true),
			PauseIfLowEngagement:     getBoolEnv("PAUSE_IF_LOW_ENGAGEMENT", false),
		},

		OracleURL:       getEnv("ORACLE_URL", ""),
		OracleAPIKey:    getEnv("ORACLE_API_KEY", ""),
		OracleTimeoutMS: getIntEnv("ORACLE_TIMEOUT_MS", 10000),

		DataDir:          getEnv("DATA_DIR", "./data"),
		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "mentions"),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),

		RedditClientID:     getEnv("REDDIT_CLIENT_ID", ""),
		RedditClientSecret: getEnv("REDDIT_CLIENT_SECRET", ""),
		TwitterBearerToken: getEnv("TWITTER_BEARER_TOKEN", ""),

		RateWindowMS:         getIntEnv("RATE_WINDOW_MS", 60000),
		MaxRequestsPerWindow: getIntEnv("MAX_REQUESTS_PER_WINDOW", 30),
		RequestDelayMS:       getIntEnv("REQUEST_DELAY_MS", 1000),
		SpamThreshold:        getIntEnv("SPAM_THRESHOLD", 10),
		SpamWindowMS:         getIntEnv("SPAM_WINDOW_MS", 5000),

		QuotaLimits: getQuotaMapEnv("QUOTA_LIMITS", map[string]int{
			"twitter:post": 500,
			"reddit:post":  300,
		}),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ListenSchedule != "hourly" && c.ListenSchedule != "daily" {
		return fmt.Errorf("LISTEN_SCHEDULE must be 'hourly' or 'daily'")
	}

	if err := c.Automation.Validate(); err != nil {
		return err
	}

	if c.MaxRequestsPerWindow <= 0 || c.RateWindowMS <= 0 {
		return fmt.Errorf("rate window configuration must be positive")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// getPlatformMapEnv parses "twitter=true,reddit=false" style values.
func getPlatformMapEnv(key string, defaultValue map[string]bool) map[string]bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	out := make(map[string]bool)
	for _, pair := range strings.Split(value, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if enabled, err := strconv.ParseBool(strings.TrimSpace(parts[1])); err == nil {
			out[strings.TrimSpace(parts[0])] = enabled
		}
	}
	return out
}

// getQuotaMapEnv parses "twitter:post=500,reddit:post=300" style values.
func getQuotaMapEnv(key string, defaultValue map[string]int) map[string]int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	out := make(map[string]int)
	for _, pair := range strings.Split(value, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if limit, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
			out[strings.TrimSpace(parts[0])] = limit
		}
	}
	return out
}

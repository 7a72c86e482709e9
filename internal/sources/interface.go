package sources

import (
	"context"
	"time"

	"github.com/sellsignal/outreach-bot/internal/models"
)

// SearchOptions bounds a keyword search.
type SearchOptions struct {
	// Window limits results to mentions created within this duration.
	Window time.Duration
	// Limit caps the number of mentions returned; 0 means source default.
	Limit int
}

// Source is the per-platform mention connector. Only the returned Mention
// shape is part of the contract; wire-level details stay inside each
// implementation.
type Source interface {
	Name() string
	Search(ctx context.Context, keywords []string, opts SearchOptions) ([]models.Mention, error)
	MonitorAccounts(ctx context.Context, accountIDs []string) ([]models.Mention, error)
	Enabled() bool
}

package store

import (
	"context"
	"time"

	"github.com/sellsignal/outreach-bot/internal/models"
)

// Repository is the persistence contract for campaign configuration and
// decision history. Implementations must be safe for concurrent use.
type Repository interface {
	// Trigger words. ListActiveTriggerWords returns system defaults (empty
	// owner) plus entries owned by ownerID.
	ListActiveTriggerWords(ctx context.Context, ownerID string) ([]models.TriggerWord, error)
	InsertTriggerWord(ctx context.Context, tw models.TriggerWord) error

	// Products and rules.
	ListActiveProducts(ctx context.Context) ([]models.Product, error)
	UpsertProduct(ctx context.Context, p models.Product) error
	ListActiveRules(ctx context.Context) ([]models.OutreachRule, error)
	UpsertRule(ctx context.Context, r models.OutreachRule) error

	// Match results. Insert is idempotent per (product, mention) pair.
	InsertMatchResult(ctx context.Context, mr models.MatchResult) error

	// Outreach action history.
	InsertAction(ctx context.Context, a models.OutreachAction) error
	CountActionsSince(ctx context.Context, productID, decision string, since time.Time) (int, error)
	CountRuleActionsSince(ctx context.Context, ruleID, decision string, since time.Time) (int, error)
	CountAllActionsSince(ctx context.Context, decision string, since time.Time) (int, error)
	CountPlatformActionsSince(ctx context.Context, platform, decision string, since time.Time) (int, error)

	// Quota ledger. GetQuota returns a zero-valued row when none exists yet.
	GetQuota(ctx context.Context, platform, usageType, monthKey string) (models.QuotaRecord, error)
	SaveQuota(ctx context.Context, rec models.QuotaRecord) error

	Close() error
}

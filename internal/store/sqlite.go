package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sellsignal/outreach-bot/internal/models"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Repository on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Repository = (*SQLiteStore)(nil)

// Open opens (or creates) the database in dataDir and applies pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*SQLiteStore, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "outreach.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection avoids "database is locked" under concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(name string) (int, error) {
	base := strings.TrimSuffix(name, ".sql")
	idx := strings.Index(base, "_")
	if idx > 0 {
		base = base[:idx]
	}
	version, err := strconv.Atoi(base)
	if err != nil {
		return 0, fmt.Errorf("migration filename %q has no numeric prefix", name)
	}
	return version, nil
}

// ListActiveTriggerWords returns active system defaults plus entries owned
// by ownerID.
func (s *SQLiteStore) ListActiveTriggerWords(ctx context.Context, ownerID string) ([]models.TriggerWord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, phrase, trigger_type, match_type, case_sensitive, confidence_boost, owner_id, active
		FROM trigger_words
		WHERE active = 1 AND (owner_id = '' OR owner_id = ?)`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing trigger words: %w", err)
	}
	defer rows.Close()

	var out []models.TriggerWord
	for rows.Next() {
		var tw models.TriggerWord
		if err := rows.Scan(&tw.ID, &tw.Phrase, &tw.TriggerType, &tw.MatchType,
			&tw.CaseSensitive, &tw.ConfidenceBoost, &tw.OwnerID, &tw.Active); err != nil {
			return nil, fmt.Errorf("scanning trigger word: %w", err)
		}
		out = append(out, tw)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertTriggerWord(ctx context.Context, tw models.TriggerWord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trigger_words (id, phrase, trigger_type, match_type, case_sensitive, confidence_boost, owner_id, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tw.ID, tw.Phrase, tw.TriggerType, tw.MatchType, tw.CaseSensitive, tw.ConfidenceBoost, tw.OwnerID, tw.Active)
	if err != nil {
		return fmt.Errorf("inserting trigger word: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListActiveProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, matching_keywords, exclude_keywords, target_sentiment, target_intent,
		       min_opportunity_score, max_offers_per_day, active
		FROM products WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()

	var out []models.Product
	for rows.Next() {
		var p models.Product
		var matching, exclude, sentiment, intent string
		if err := rows.Scan(&p.ID, &p.Name, &matching, &exclude, &sentiment, &intent,
			&p.MinOpportunityScore, &p.MaxOffersPerDay, &p.Active); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		if err := decodeStringList(matching, &p.MatchingKeywords); err != nil {
			return nil, fmt.Errorf("decoding product %s: %w", p.ID, err)
		}
		if err := decodeStringList(exclude, &p.ExcludeKeywords); err != nil {
			return nil, fmt.Errorf("decoding product %s: %w", p.ID, err)
		}
		if err := decodeStringList(sentiment, &p.TargetSentiment); err != nil {
			return nil, fmt.Errorf("decoding product %s: %w", p.ID, err)
		}
		if err := decodeStringList(intent, &p.TargetIntent); err != nil {
			return nil, fmt.Errorf("decoding product %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertProduct(ctx context.Context, p models.Product) error {
	matching, _ := json.Marshal(p.MatchingKeywords)
	exclude, _ := json.Marshal(p.ExcludeKeywords)
	sentiment, _ := json.Marshal(p.TargetSentiment)
	intent, _ := json.Marshal(p.TargetIntent)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, matching_keywords, exclude_keywords, target_sentiment, target_intent,
		                      min_opportunity_score, max_offers_per_day, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			matching_keywords = excluded.matching_keywords,
			exclude_keywords = excluded.exclude_keywords,
			target_sentiment = excluded.target_sentiment,
			target_intent = excluded.target_intent,
			min_opportunity_score = excluded.min_opportunity_score,
			max_offers_per_day = excluded.max_offers_per_day,
			active = excluded.active`,
		p.ID, p.Name, string(matching), string(exclude), string(sentiment), string(intent),
		p.MinOpportunityScore, p.MaxOffersPerDay, p.Active)
	if err != nil {
		return fmt.Errorf("upserting product: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListActiveRules(ctx context.Context) ([]models.OutreachRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, triggers, max_per_hour, max_per_day, channels, active
		FROM outreach_rules WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	defer rows.Close()

	var out []models.OutreachRule
	for rows.Next() {
		var r models.OutreachRule
		var triggers, channels string
		if err := rows.Scan(&r.ID, &r.Name, &triggers, &r.RateLimit.MaxPerHour,
			&r.RateLimit.MaxPerDay, &channels, &r.Active); err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		if err := json.Unmarshal([]byte(triggers), &r.Triggers); err != nil {
			return nil, fmt.Errorf("decoding rule triggers %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(channels), &r.Channels); err != nil {
			return nil, fmt.Errorf("decoding rule channels %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertRule(ctx context.Context, r models.OutreachRule) error {
	triggers, _ := json.Marshal(r.Triggers)
	channels, _ := json.Marshal(r.Channels)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outreach_rules (id, name, triggers, max_per_hour, max_per_day, channels, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			triggers = excluded.triggers,
			max_per_hour = excluded.max_per_hour,
			max_per_day = excluded.max_per_day,
			channels = excluded.channels,
			active = excluded.active`,
		r.ID, r.Name, string(triggers), r.RateLimit.MaxPerHour, r.RateLimit.MaxPerDay, string(channels), r.Active)
	if err != nil {
		return fmt.Errorf("upserting rule: %w", err)
	}
	return nil
}

// InsertMatchResult records the pairing once; replays of the same
// (product, mention) pair are ignored.
func (s *SQLiteStore) InsertMatchResult(ctx context.Context, mr models.MatchResult) error {
	keywords, _ := json.Marshal(mr.MatchedKeywords)
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO match_results (id, product_id, mention_id, match_score, matched_keywords, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		mr.ID, mr.ProductID, mr.MentionID, mr.MatchScore, string(keywords), mr.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting match result: %w", err)
	}
	return nil
}

func (s *SQLiteStore) InsertAction(ctx context.Context, a models.OutreachAction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outreach_actions (id, mention_id, product_id, rule_id, platform, decision, reason, retry_after_ms, delay_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.MentionID, a.ProductID, a.RuleID, a.Platform, a.Decision, a.Reason,
		a.RetryAfter.Milliseconds(), a.Delay.Milliseconds(), a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting action: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CountActionsSince(ctx context.Context, productID, decision string, since time.Time) (int, error) {
	return s.countActions(ctx,
		"SELECT COUNT(*) FROM outreach_actions WHERE product_id = ? AND decision = ? AND created_at >= ?",
		productID, decision, since.UTC())
}

func (s *SQLiteStore) CountRuleActionsSince(ctx context.Context, ruleID, decision string, since time.Time) (int, error) {
	return s.countActions(ctx,
		"SELECT COUNT(*) FROM outreach_actions WHERE rule_id = ? AND decision = ? AND created_at >= ?",
		ruleID, decision, since.UTC())
}

func (s *SQLiteStore) CountAllActionsSince(ctx context.Context, decision string, since time.Time) (int, error) {
	return s.countActions(ctx,
		"SELECT COUNT(*) FROM outreach_actions WHERE decision = ? AND created_at >= ?",
		decision, since.UTC())
}

func (s *SQLiteStore) CountPlatformActionsSince(ctx context.Context, platform, decision string, since time.Time) (int, error) {
	return s.countActions(ctx,
		"SELECT COUNT(*) FROM outreach_actions WHERE platform = ? AND decision = ? AND created_at >= ?",
		platform, decision, since.UTC())
}

func (s *SQLiteStore) countActions(ctx context.Context, query string, args ...interface{}) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting actions: %w", err)
	}
	return count, nil
}

// GetQuota returns the ledger row, or a zero-valued row when the month has
// not been used yet.
func (s *SQLiteStore) GetQuota(ctx context.Context, platform, usageType, monthKey string) (models.QuotaRecord, error) {
	rec := models.QuotaRecord{Platform: platform, UsageType: usageType, MonthKey: monthKey}
	err := s.db.QueryRowContext(ctx, `
		SELECT usage_count, is_paused, warnings_sent
		FROM quota_records WHERE platform = ? AND usage_type = ? AND month_key = ?`,
		platform, usageType, monthKey).Scan(&rec.UsageCount, &rec.IsPaused, &rec.WarningsSent)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, nil
	}
	if err != nil {
		return rec, fmt.Errorf("reading quota row: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) SaveQuota(ctx context.Context, rec models.QuotaRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quota_records (platform, usage_type, month_key, usage_count, is_paused, warnings_sent)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(platform, usage_type, month_key) DO UPDATE SET
			usage_count = excluded.usage_count,
			is_paused = excluded.is_paused,
			warnings_sent = excluded.warnings_sent`,
		rec.Platform, rec.UsageType, rec.MonthKey, rec.UsageCount, rec.IsPaused, rec.WarningsSent)
	if err != nil {
		return fmt.Errorf("saving quota row: %w", err)
	}
	return nil
}

func decodeStringList(raw string, target *[]string) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), target)
}

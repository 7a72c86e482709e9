package triggers

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sellsignal/outreach-bot/internal/models"
	"github.com/sellsignal/outreach-bot/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	cacheTTL = 5 * time.Minute

	// maxTotalBoost caps the summed confidence boost of all matched triggers.
	maxTotalBoost = 50

	// fuzzyDistance is the maximum Levenshtein edit distance for fuzzy matches.
	fuzzyDistance = 2
)

// Trigger word types carrying intent signal.
const (
	TypePurchaseIntent = "purchase_intent"
	TypeRequestInfo    = "request_info"
	TypeConfirmation   = "confirmation"
)

// DetectResult is the outcome of matching text against the active trigger set.
type DetectResult struct {
	HasPositiveTriggers bool
	Detected            []models.TriggerWord
	TotalBoost          int
	Types               []string
	IsPurchaseIntent    bool
	IsRequestInfo       bool
	IsConfirmation      bool
}

// Matcher matches mention text against configured trigger words. The active
// trigger list is cached with a TTL and must be invalidated explicitly when
// triggers change.
type Matcher struct {
	repo store.Repository

	mu     sync.Mutex
	cached map[string]cachedTriggers // keyed by owner
}

type cachedTriggers struct {
	data      []models.TriggerWord
	fetchedAt time.Time
}

// NewMatcher creates a trigger matcher backed by the given repository.
func NewMatcher(repo store.Repository) *Matcher {
	return &Matcher{
		repo:   repo,
		cached: make(map[string]cachedTriggers),
	}
}

// Invalidate drops the cached trigger list for an owner. Called after a new
// trigger word is added so the next Detect sees it.
func (m *Matcher) Invalidate(ownerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cached, ownerID)
}

// AddTrigger inserts a trigger word and invalidates the owner's cache.
func (m *Matcher) AddTrigger(ctx context.Context, tw models.TriggerWord) error {
	if err := m.repo.InsertTriggerWord(ctx, tw); err != nil {
		return err
	}
	m.Invalidate(tw.OwnerID)
	return nil
}

func (m *Matcher) activeTriggers(ctx context.Context, ownerID string) ([]models.TriggerWord, error) {
	m.mu.Lock()
	entry, ok := m.cached[ownerID]
	m.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < cacheTTL {
		return entry.data, nil
	}

	data, err := m.repo.ListActiveTriggerWords(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cached[ownerID] = cachedTriggers{data: data, fetchedAt: time.Now()}
	m.mu.Unlock()
	return data, nil
}

// Detect matches text against all active triggers for the owner. Duplicate
// triggers matching the same phrase each count toward the boost. Empty or
// whitespace-only text short-circuits to an empty result.
func (m *Matcher) Detect(ctx context.Context, ownerID, text string) (DetectResult, error) {
	var result DetectResult
	if strings.TrimSpace(text) == "" {
		return result, nil
	}

	triggerWords, err := m.activeTriggers(ctx, ownerID)
	if err != nil {
		return result, err
	}

	seenTypes := make(map[string]bool)
	for _, tw := range triggerWords {
		if !Matches(text, tw) {
			continue
		}
		result.Detected = append(result.Detected, tw)
		result.TotalBoost += tw.ConfidenceBoost
		if !seenTypes[tw.TriggerType] {
			seenTypes[tw.TriggerType] = true
			result.Types = append(result.Types, tw.TriggerType)
		}
		switch tw.TriggerType {
		case TypePurchaseIntent:
			result.IsPurchaseIntent = true
		case TypeRequestInfo:
			result.IsRequestInfo = true
		case TypeConfirmation:
			result.IsConfirmation = true
		}
	}

	if result.TotalBoost > maxTotalBoost {
		result.TotalBoost = maxTotalBoost
	}
	result.HasPositiveTriggers = len(result.Detected) > 0

	return result, nil
}

// Matches reports whether text matches a single trigger word according to
// its match type. An invalid regex pattern is logged and treated as a
// non-match; the trigger is not disabled.
func Matches(text string, tw models.TriggerWord) bool {
	subject := text
	phrase := tw.Phrase
	if !tw.CaseSensitive {
		subject = strings.ToLower(subject)
		phrase = strings.ToLower(phrase)
	}

	switch tw.MatchType {
	case models.MatchExact:
		return subject == phrase
	case models.MatchContains:
		return strings.Contains(subject, phrase)
	case models.MatchRegex:
		re, err := regexp.Compile(tw.Phrase)
		if err != nil {
			logrus.Warnf("Skipping trigger %q: invalid regex: %v", tw.Phrase, err)
			return false
		}
		return re.MatchString(text)
	case models.MatchFuzzy:
		for _, token := range strings.Fields(subject) {
			if levenshtein(token, phrase) <= fuzzyDistance {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// levenshtein computes edit distance with the classic two-row DP.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sellsignal/outreach-bot/internal/ratelimit"
	"github.com/sirupsen/logrus"
)

// Result reports the outcome of one outbound post.
type Result struct {
	Success    bool   `json:"success"`
	ExternalID string `json:"external_id"`
}

// Publisher is the only side-effecting boundary that contacts a social
// platform.
type Publisher interface {
	Post(ctx context.Context, platform, target, message string) (Result, error)
}

// HTTPPublisher posts through per-platform webhook endpoints. Outbound URLs
// are validated against the SSRF guard at construction and again per call.
type HTTPPublisher struct {
	client    *resty.Client
	endpoints map[string]string // platform -> endpoint URL
	services  *ratelimit.ServiceLimiter
	validate  func(string) error
}

var _ Publisher = (*HTTPPublisher)(nil)

// NewHTTPPublisher creates a publisher for the given platform endpoints.
// Endpoints failing URL validation are dropped with a warning.
func NewHTTPPublisher(endpoints map[string]string, services *ratelimit.ServiceLimiter) *HTTPPublisher {
	valid := make(map[string]string, len(endpoints))
	for platform, endpoint := range endpoints {
		if err := ratelimit.ValidateOutboundURL(endpoint); err != nil {
			logrus.Warnf("Dropping endpoint for %s: %v", platform, err)
			continue
		}
		valid[platform] = endpoint
	}
	return &HTTPPublisher{
		client:    resty.New().SetTimeout(30 * time.Second),
		endpoints: valid,
		services:  services,
		validate:  ratelimit.ValidateOutboundURL,
	}
}

type postRequest struct {
	Target  string `json:"target"`
	Message string `json:"message"`
}

// Post delivers one message. Upstream 429s are retried with the advertised
// hint or exponential backoff, at most three attempts; the service quota is
// incremented only after a successful call.
func (p *HTTPPublisher) Post(ctx context.Context, platform, target, message string) (Result, error) {
	endpoint, ok := p.endpoints[platform]
	if !ok {
		return Result{}, fmt.Errorf("no publish endpoint configured for platform %q", platform)
	}

	if err := p.validate(endpoint); err != nil {
		return Result{}, fmt.Errorf("refusing unsafe endpoint: %w", err)
	}

	if remaining, ok := p.services.CheckAPIQuota(platform); !ok {
		return Result{}, fmt.Errorf("service quota exhausted for %q (remaining %d)", platform, remaining)
	}

	var lastStatus int
	for attempt := 0; ; attempt++ {
		resp, err := p.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(postRequest{Target: target, Message: message}).
			Post(endpoint)
		if err != nil {
			return Result{}, fmt.Errorf("posting to %s: %w", platform, err)
		}

		lastStatus = resp.StatusCode()
		if lastStatus == http.StatusTooManyRequests {
			delay, retry := ratelimit.RetryDelay(attempt, resp.Header().Get("Retry-After"))
			if !retry {
				return Result{}, fmt.Errorf("posting to %s: rate limited upstream after %d attempts", platform, attempt+1)
			}
			logrus.Warnf("Upstream 429 from %s, backing off %v (attempt %d)", platform, delay, attempt+1)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return Result{}, ctx.Err()
			}
		}

		if lastStatus < 200 || lastStatus >= 300 {
			return Result{}, fmt.Errorf("posting to %s: status %d", platform, lastStatus)
		}

		var result Result
		if err := json.Unmarshal(resp.Body(), &result); err != nil {
			// Some platforms return an empty body on success.
			result = Result{Success: true}
		}
		result.Success = true

		p.services.IncrementAPIQuota(platform)
		return result, nil
	}
}

package moderation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hubwatch/reputeer/internal/scoring"
	"go.uber.org/zap"
)

var ErrDispatchRejected = errors.New("moderation collaborator rejected directive")

// WebhookDispatcher delivers suspend directives to the external moderation
// collaborator over HTTP. Delivery is best-effort; the enforcer owns the
// retry policy.
type WebhookDispatcher struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookDispatcher creates a dispatcher posting to the given URL.
func NewWebhookDispatcher(url string, logger *zap.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.Named("moderation_webhook"),
	}
}

// Dispatch posts one directive as JSON. Any non-2xx response is an error
// so the enforcer can retry.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, directive *scoring.Directive) error {
	body, err := sonic.Marshal(directive)
	if err != nil {
		return fmt.Errorf("failed to encode directive: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build directive request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver directive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: status %d", ErrDispatchRejected, resp.StatusCode)
	}

	return nil
}

// LogDispatcher records directives without delivering them. Used when no
// collaborator endpoint is configured, so enforcement decisions still
// leave a trace.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a log-only dispatcher.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.Named("moderation_log")}
}

// Dispatch logs the directive and reports success.
func (d *LogDispatcher) Dispatch(_ context.Context, directive *scoring.Directive) error {
	d.logger.Warn("No dispatch URL configured, directive logged only",
		zap.Uint64("communityID", directive.CommunityID),
		zap.Uint64("userID", directive.UserID),
		zap.Int("newScore", directive.NewScore),
		zap.Int("threshold", directive.Threshold))

	return nil
}

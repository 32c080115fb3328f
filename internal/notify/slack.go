// Package notify tells staff about attendance writes the backend never accepted.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/slack-go/slack"

	"edulink/internal/storage"
)

// Slack posts to an incoming webhook.
type Slack struct {
	webhookURL string
	http       *http.Client
}

func NewSlack(webhookURL string, client *http.Client) *Slack {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Slack{webhookURL: webhookURL, http: client}
}

// NotifySyncFailed reports an entry that exhausted its retries.
func (s *Slack) NotifySyncFailed(ctx context.Context, e storage.OutboxEntry, cause string) error {
	msg := failureMessage(e, cause)
	if err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.http, msg); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	slog.InfoContext(ctx, "Sync failure reported to Slack", "outbox_id", e.ID)
	return nil
}

func failureMessage(e storage.OutboxEntry, cause string) *slack.WebhookMessage {
	summary := fmt.Sprintf("출결 동기화 실패: %s 학생 %s (%s)", e.Entry.Date.String(), e.Entry.StudentID, e.Entry.Status)
	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, "*반*\n"+e.Entry.ClassID, false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*시도*\n%d", e.Retries+1), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*outbox*\n#%d v%d", e.ID, e.Version), false, false),
	}
	return &slack.WebhookMessage{
		Text: summary,
		Blocks: &slack.Blocks{BlockSet: []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, ":warning: "+summary, false, false), fields, nil),
			slack.NewContextBlock("", slack.NewTextBlockObject(slack.PlainTextType, cause, false, false)),
		}},
	}
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aliuyar1234/govern/internal/jobs"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	EventVoteClosed        = "vote.closed"
	EventResolutionDecided = "resolution.decided"
	EventOrgActivated      = "org.activated"
	EventOrgDeclined       = "org.declined"
	EventMeetingCompleted  = "meeting.completed"
)

// Message is one outbound governance notification.
type Message struct {
	Event   string         `json:"event"`
	OrgID   uuid.UUID      `json:"org_id"`
	Subject string         `json:"subject"`
	Text    string         `json:"text"`
	Link    string         `json:"link,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
	SentAt  time.Time      `json:"sent_at"`
}

// Client posts notifications to a webhook.
type Client struct {
	httpClient *http.Client
	webhookURL string
}

// NewClient creates a new webhook client with the specified timeout
func NewClient(webhookURL string, timeoutMS int) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutMS) * time.Millisecond,
		},
		webhookURL: webhookURL,
	}
}

// Post delivers msg. Non-2xx responses are errors so the job runner can retry.
func (c *Client) Post(ctx context.Context, msg Message) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}

	log.Debug().
		Str("event", msg.Event).
		Str("org_id", msg.OrgID.String()).
		Msg("Notification delivered")
	return nil
}

// Notifier dispatches messages as detached jobs. A Notifier without a client
// drops messages silently (notifications disabled).
type Notifier struct {
	client *Client
	runner *jobs.Runner
}

func NewNotifier(client *Client, runner *jobs.Runner) *Notifier {
	return &Notifier{client: client, runner: runner}
}

// Send never blocks the caller and never returns an error.
func (n *Notifier) Send(msg Message) {
	if n == nil || n.client == nil {
		return
	}
	n.runner.Submit("notify."+msg.Event, func(ctx context.Context) error {
		return n.client.Post(ctx, msg)
	})
}

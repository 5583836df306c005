package enforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/groupmeg/groupmod/automod/ledger"
)

// Interface for a type that can handle sending notifications about applied moderation actions
type Notifier interface {
	SendAction(ctx context.Context, act *ledger.ModerationAction) error
}

type SlackNotifier struct {
	SlackWebhookURL string
	Client          *http.Client
}

var _ Notifier = (*SlackNotifier)(nil)

type SlackWebhookBody struct {
	Text string `json:"text"`
}

func (n *SlackNotifier) SendAction(ctx context.Context, act *ledger.ModerationAction) error {
	return n.sendSlackMsg(ctx, slackBody(act))
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

func slackBody(act *ledger.ModerationAction) string {
	msg := fmt.Sprintf("⚠️ Moderation Action: %s ⚠️\n", act.Kind)
	msg += fmt.Sprintf("group `%s` / user `%s` / by `%s`\n", act.GroupID, act.UserID, act.IssuedBy)
	if act.DurationSeconds > 0 {
		msg += fmt.Sprintf("Duration: %ds\n", act.DurationSeconds)
	}
	if act.Reason != "" {
		msg += fmt.Sprintf("Reason: %s\n", act.Reason)
	}
	return msg
}

package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/slack-go/slack"
)

// Webhook POSTs the event as JSON.
type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(url string, client *http.Client) *Webhook {
	if client == nil {
		client = http.DefaultClient
	}
	return &Webhook{url: url, client: client}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) NotifySuccess(ctx context.Context, e Event) error { return w.send(ctx, e) }
func (w *Webhook) NotifyFailure(ctx context.Context, e Event) error { return w.send(ctx, e) }

func (w *Webhook) send(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Slack posts to an incoming webhook.
type Slack struct {
	url string
}

func NewSlack(webhookURL string) *Slack { return &Slack{url: webhookURL} }

func (s *Slack) Name() string { return "slack" }

func (s *Slack) NotifySuccess(ctx context.Context, e Event) error { return s.send(ctx, e) }
func (s *Slack) NotifyFailure(ctx context.Context, e Event) error { return s.send(ctx, e) }

func (s *Slack) send(ctx context.Context, e Event) error {
	header := slack.NewTextBlockObject("mrkdwn", "*"+title(e)+"*", false, false)
	blocks := []slack.Block{slack.NewSectionBlock(header, nil, nil)}
	if text := body(e); text != "" {
		blocks = append(blocks, slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", truncate(text, 2900), false, false), nil, nil))
	}
	msg := &slack.WebhookMessage{
		Text:   title(e),
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
	return slack.PostWebhookContext(ctx, s.url, msg)
}

// Discord executes a channel webhook given as "id/token".
type Discord struct {
	id, token string
	session   *discordgo.Session
}

func NewDiscord(webhook string) (*Discord, error) {
	id, token, ok := strings.Cut(strings.Trim(webhook, "/"), "/")
	if !ok || id == "" || token == "" {
		return nil, fmt.Errorf("discord webhook must be \"id/token\"")
	}
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &Discord{id: id, token: token, session: session}, nil
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) NotifySuccess(ctx context.Context, e Event) error { return d.send(ctx, e, 0x2ecc71) }
func (d *Discord) NotifyFailure(ctx context.Context, e Event) error { return d.send(ctx, e, 0xe74c3c) }

func (d *Discord) send(ctx context.Context, e Event, color int) error {
	embed := &discordgo.MessageEmbed{
		Title:       title(e),
		Description: truncate(body(e), 4000),
		Color:       color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Task", Value: e.TaskID, Inline: true},
			{Name: "Status", Value: string(e.Status), Inline: true},
		},
	}
	_, err := d.session.WebhookExecute(d.id, d.token, false, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
	}, discordgo.WithContext(ctx))
	return err
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}

package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/forest-guardian/copernicus-stats/internal/properties"
)

const (
	colorRed   = 16711680
	colorGreen = 65280
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// Discord posts run outcomes to webhooks. An empty URL disables that kind of message.
type Discord struct {
	SuccessURL string
	ErrorURL   string
	HTTPClient *http.Client
}

// NewDiscord reads the webhook URLs from the environment.
func NewDiscord() *Discord {
	return &Discord{
		SuccessURL: properties.DiscordSuccessNotificationUrl(),
		ErrorURL:   properties.DiscordErrorNotificationUrl(),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *Discord) Success(ctx context.Context, message string) error {
	if d == nil {
		return nil
	}
	return d.send(ctx, d.SuccessURL, DiscordEmbed{
		Title:       "✅ Run finished",
		Description: message,
		Color:       colorGreen,
	})
}

func (d *Discord) Error(ctx context.Context, message string) error {
	if d == nil {
		return nil
	}
	return d.send(ctx, d.ErrorURL, DiscordEmbed{
		Title:       "🚨 Run failed",
		Description: fmt.Sprintf("An error occurred: %s", message),
		Color:       colorRed,
	})
}

func (d *Discord) send(ctx context.Context, url string, embed DiscordEmbed) error {
	if url == "" {
		return nil
	}
	payload, err := json.Marshal(DiscordMessage{Embeds: []DiscordEmbed{embed}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := d.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode)
	}
	return nil
}

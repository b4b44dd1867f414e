package notify

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// webhookSession abstracts the discordgo.Session method we use.
type webhookSession interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord executes a channel webhook.
type Discord struct {
	sess    webhookSession
	id      string
	token   string
	backoff time.Duration
}

// NewDiscord returns a Discord sink for the webhook id and token.
func NewDiscord(id, token string) (*Discord, error) {
	if id == "" || token == "" {
		return nil, fmt.Errorf("discord: webhook id and token are required")
	}
	sess, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("discord: session: %w", err)
	}
	return &Discord{sess: sess, id: id, token: token, backoff: 2 * time.Second}, nil
}

// Name implements Sink.
func (d *Discord) Name() string { return "discord" }

// Send implements Sink.
func (d *Discord) Send(ctx context.Context, msg Message) error {
	params := &discordgo.WebhookParams{
		Content: msg.Title,
		Embeds:  []*discordgo.MessageEmbed{messageToEmbed(msg)},
	}
	for attempt := 0; ; attempt++ {
		_, err := d.sess.WebhookExecute(d.id, d.token, false, params, discordgo.WithContext(ctx))
		if err == nil {
			return nil
		}
		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != http.StatusTooManyRequests || attempt == maxRetries {
			return err
		}
		wait := time.Duration(math.Pow(2, float64(attempt))) * d.backoff
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// messageToEmbed converts a Message to a Discord Embed.
func messageToEmbed(msg Message) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Body,
		Color:       parseHexColor(msg.Color),
	}
	for _, f := range msg.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Short,
		})
	}
	return embed
}

// parseHexColor converts a hex color string (e.g. "#36a64f") to an int.
func parseHexColor(hex string) int {
	v, err := strconv.ParseInt(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}

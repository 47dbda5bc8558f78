package events

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// discordSender is the part of *discordgo.Session the notifier needs.
type discordSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts Harmony alerts to a Discord channel. Other events
// are ignored.
type DiscordNotifier struct {
	sender    discordSender
	channelID string
	log       zerolog.Logger
}

// NewDiscordNotifier creates a bot session for REST calls. No gateway
// connection is opened.
func NewDiscordNotifier(botToken, channelID string, log zerolog.Logger) (*DiscordNotifier, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return newDiscordNotifier(session, channelID, log), nil
}

func newDiscordNotifier(sender discordSender, channelID string, log zerolog.Logger) *DiscordNotifier {
	return &DiscordNotifier{sender: sender, channelID: channelID, log: log}
}

// FormatAlert renders a Harmony alert for chat.
func FormatAlert(a *HarmonyAlert) string {
	return fmt.Sprintf("💛 Modo Harmonia\n%s\n_%s · %s · R$ %s_", a.Message, a.SpenderName, a.Category, a.Amount.StringFixed(2))
}

// Publish implements Publisher.
func (n *DiscordNotifier) Publish(ctx context.Context, e Event) error {
	if e.Type != TypeHarmonyAlert || e.HarmonyAlert == nil {
		return nil
	}

	if _, err := n.sender.ChannelMessageSend(n.channelID, FormatAlert(e.HarmonyAlert), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send discord alert: %w", err)
	}

	n.log.Info().Str("channel_id", n.channelID).Str("event_id", e.ID).Msg("Sent Harmony alert to Discord")
	return nil
}

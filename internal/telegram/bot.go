package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/commands"
	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/watchlist"
)

const welcomeMessage = "Welcome to the Crypto Price Movement Monitor\\!\n\n" +
	"Available commands:\n" +
	"/add \\<coin\\_id\\> \\- Add a coin to monitor\n" +
	"/remove \\<coin\\_id\\> \\- Remove a coin from monitoring\n" +
	"/list \\- List all monitored coins\n" +
	"/rules \\- Show current notification thresholds"

// NewBot creates new telegram bot
func NewBot(c BotConfig, store *watchlist.Store, info commands.AssetInfoSource) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(c.Token)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}

	bot.Debug = c.Debug

	return &Bot{
		Bot:    bot,
		Config: c,
		store:  store,
		info:   info,
	}, nil
}

// GetUpdatesChannel gets new updates
func (b *Bot) GetUpdatesChannel() (tgbotapi.UpdatesChannel, error) {
	updatesConfig := tgbotapi.NewUpdate(0)
	if b.Config.UpdatesTimeout > 0 {
		updatesConfig.Timeout = b.Config.UpdatesTimeout
	}
	return b.Bot.GetUpdatesChan(updatesConfig), nil
}

// SendMessage sends a telegram message
func (b *Bot) SendMessage(m Message) error {
	msg := tgbotapi.NewMessage(m.ChatID, m.Text)
	msg.ReplyToMessageID = m.MessageID
	msg.DisableWebPagePreview = true
	msg.ParseMode = "MarkdownV2"
	_, err := b.Bot.Send(msg)
	return errors.Wrapf(err, "could not send message: %v", m)
}

// Send delivers an alert notification to the configured alert chat. It
// satisfies the monitor's Notifier contract.
func (b *Bot) Send(text string) error {
	return b.SendMessage(Message{ChatID: b.Config.AlertChatID, Text: text})
}

// HandleUpdate processes Telegram updates
func (b *Bot) HandleUpdate(u tgbotapi.Update) string {
	text := welcomeMessage
	log.Debugf("received command: %s", u.Message.Command())

	var err error = nil

	switch u.Message.Command() {
	case "start":
		text = welcomeMessage
	case "add":
		if text, err = commands.CommandAdd(b.store, b.info, u.Message.CommandArguments()); err != nil {
			text = "Failed to add coin\\. Please try again later\\."
			log.Error(err)
		}
	case "remove":
		if text, err = commands.CommandRemove(b.store, u.Message.CommandArguments()); err != nil {
			text = "Failed to remove coin\\. Please try again later\\."
			log.Error(err)
		}
	case "list":
		if text, err = commands.CommandList(b.store); err != nil {
			text = "Failed to list coins\\. Please try again later\\."
			log.Error(err)
		}
	case "rules":
		text = commands.CommandRules()
	}

	return text
}

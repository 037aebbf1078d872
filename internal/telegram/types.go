package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/commands"
	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/watchlist"
)

// BotConfig configuration of the bot
type BotConfig struct {
	Token string
	// AlertChatID is the chat that receives price movement notifications.
	AlertChatID    int64
	Debug          bool
	UpdatesTimeout int
}

// Bot telegram interaction client
type Bot struct {
	Bot    *tgbotapi.BotAPI
	Config BotConfig

	store *watchlist.Store
	info  commands.AssetInfoSource
}

// Message a telegram message struct
type Message struct {
	ChatID    int64
	MessageID int
	Text      string
}

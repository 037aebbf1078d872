// Package commands implements the chat command surface. Each command is a
// thin translation between user input and the watchlist store; threshold
// decisions never happen here.
package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/threshold"
	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/types"
	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/watchlist"
	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/lib/helpers"
)

// AssetInfoSource resolves a coin ID to its name and symbol.
type AssetInfoSource interface {
	Info(id int64) (*types.Asset, error)
}

func parseID(argument string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(argument), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid coin id %q", argument)
	}
	return id, nil
}

// CommandAdd resolves the coin and inserts it into the watchlist with null
// baselines. Adding an already-watched coin is reported as success.
func CommandAdd(store *watchlist.Store, info AssetInfoSource, argument string) (string, error) {
	log.Debugf("processing command /add with argument: %s", argument)

	id, err := parseID(argument)
	if err != nil {
		return "Please provide a valid coin ID: /add <coin\\_id>", nil
	}

	asset, err := info.Info(id)
	if err != nil {
		log.Error(errors.Wrap(err, "command /add"))
		return "Failed to add coin\\. Please check the coin ID\\.", nil
	}

	added, err := store.Add(*asset)
	if err != nil {
		return "", errors.Wrap(err, "command /add")
	}
	if !added {
		return fmt.Sprintf("%s \\(%s\\) is already in the watchlist",
			helpers.EscapeMarkdownV2(asset.Name), helpers.EscapeMarkdownV2(asset.Symbol)), nil
	}
	return fmt.Sprintf("Added %s \\(%s\\) to watchlist",
		helpers.EscapeMarkdownV2(asset.Name), helpers.EscapeMarkdownV2(asset.Symbol)), nil
}

// CommandRemove deletes a coin from the watchlist.
func CommandRemove(store *watchlist.Store, argument string) (string, error) {
	log.Debugf("processing command /remove with argument: %s", argument)

	id, err := parseID(argument)
	if err != nil {
		return "Please provide a valid coin ID: /remove <coin\\_id>", nil
	}

	removed, err := store.Remove(id)
	if err != nil {
		return "", errors.Wrap(err, "command /remove")
	}
	if !removed {
		return "Failed to remove coin\\. Please check the coin ID\\.", nil
	}
	return "Coin removed from watchlist", nil
}

// CommandList renders the watched coins.
func CommandList(store *watchlist.Store) (string, error) {
	assets, err := store.List()
	if err != nil {
		return "", errors.Wrap(err, "command /list")
	}
	if len(assets) == 0 {
		return "No coins in watchlist", nil
	}

	var b strings.Builder
	b.WriteString("*Monitored coins:*\n")
	for _, asset := range assets {
		b.WriteString(fmt.Sprintf("%s \\(%s\\) \\- ID: %d\n",
			helpers.EscapeMarkdownV2(asset.Name), helpers.EscapeMarkdownV2(asset.Symbol), asset.ID))
	}
	return b.String(), nil
}

// CommandRules renders both threshold tables and the absolute rule.
func CommandRules() string {
	var b strings.Builder
	b.WriteString("📊 *Current Notification Rules* 📊\n\n")

	b.WriteString("*Short\\-term Thresholds:*\n")
	for _, rule := range threshold.ShortTermRules {
		b.WriteString(fmt.Sprintf("▫️ %s%% change within %s\n",
			helpers.EscapeMarkdownV2(strconv.FormatFloat(rule.Percent, 'f', -1, 64)),
			helpers.EscapeMarkdownV2(helpers.FormatWindow(rule.Window))))
	}

	b.WriteString("\n*Long\\-term Thresholds:*\n")
	for _, rule := range threshold.LongTermRules {
		if rule.Window == 0 {
			b.WriteString(fmt.Sprintf("▫️ %s%% change \\(all\\-time\\)\n",
				helpers.EscapeMarkdownV2(strconv.FormatFloat(rule.Percent, 'f', -1, 64))))
			continue
		}
		b.WriteString(fmt.Sprintf("▫️ %s%% change within %s\n",
			helpers.EscapeMarkdownV2(strconv.FormatFloat(rule.Percent, 'f', -1, 64)),
			helpers.EscapeMarkdownV2(helpers.FormatWindow(rule.Window))))
	}

	b.WriteString(fmt.Sprintf(
		"\nAdditionally, any price change of %s%% or more triggers a notification, unless a short\\-term rule was already triggered\\.",
		helpers.EscapeMarkdownV2(strconv.FormatFloat(threshold.AbsolutePercent, 'f', -1, 64))))

	return b.String()
}

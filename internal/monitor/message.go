package monitor

import (
	"fmt"

	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/internal/types"
	"github.com/SoSilent6/Programmable-Telegram-Price-Notifications/lib/helpers"
)

// RenderAlert formats an alert for delivery. Short- and long-term alerts
// carry the elapsed time since the baseline; absolute alerts do not.
func RenderAlert(alert types.Alert) string {
	direction := "up"
	if alert.ChangePercent < 0 {
		direction = "down"
	}
	change := helpers.EscapeMarkdownV2(fmt.Sprintf("%.2f", abs(alert.ChangePercent)))
	header := fmt.Sprintf("*%s \\(%s\\)*",
		helpers.EscapeMarkdownV2(alert.Name), helpers.EscapeMarkdownV2(alert.Symbol))

	if alert.Kind == types.AlertAbsolute {
		return fmt.Sprintf("%s %s by %s%%\nCurrent price: $%s",
			header, direction, change, helpers.FormatPriceUS(alert.Price, true))
	}
	return fmt.Sprintf("%s %s by %s%% in %s\nCurrent price: $%s",
		header, direction, change,
		helpers.EscapeMarkdownV2(helpers.FormatElapsed(alert.Elapsed)),
		helpers.FormatPriceUS(alert.Price, true))
}

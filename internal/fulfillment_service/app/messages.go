package app

import "fmt"

// Buyer-facing chat texts.

func nicknamePrompt(quantity int) string {
	return fmt.Sprintf("Thank you for your purchase!\nPlease send your Telegram username (for example: @username) to receive %d ⭐.", quantity)
}

func nicknameNotFound(text string) string {
	return fmt.Sprintf("❌ Username %q was not found. Please send a valid Telegram username (for example: @username).", text)
}

func confirmationPrompt(text string) string {
	return fmt.Sprintf("You entered: %q. If this is your Telegram username, reply \"+\", otherwise send another one.", text)
}

func sendingProgress(quantity int, username string) string {
	return fmt.Sprintf("🚀 Sending %d ⭐ to @%s...", quantity, username)
}

func deliverySucceeded(quantity int, username string) string {
	return fmt.Sprintf("✅ Successfully sent %d ⭐ to @%s!", quantity, username)
}

const (
	refundInProgressSuffix = "\n🔁 Trying to issue a refund..."
	refundDisabledSuffix   = "\n⚠️ Automatic refunds are disabled. Please contact an administrator for a refund."
	refundSucceeded        = "✅ Funds have been returned."
	refundFailed           = "❌ Refund failed. Please contact an administrator."
)

package notify

import (
	"fmt"
	"time"

	"tribute-gateway/app/models"
	"tribute-gateway/internal/pkg/sanitize"
)

const dateLayout = "2006-01-02"

// friendPlaceholder is the inviter fallback when neither a sanitized first
// name nor a username survives.
const friendPlaceholder = "a friend"

// PaymentNotice is the composition input for post-payment messages. Exactly
// one of the three templates applies: traffic purchase, purchase with referral
// bonus, plain purchase.
type PaymentNotice struct {
	User            *models.User
	Inviter         *models.User
	SaleMode        string
	Months          int
	TrafficGB       int
	Amount          float64
	Currency        string
	EndDate         time.Time
	FinalEndDate    time.Time
	BonusDays       int
	SubscriptionURL string
}

// Traffic reports whether the purchase was denominated in traffic volume.
func (n PaymentNotice) Traffic() bool {
	return n.SaleMode == "traffic"
}

// effectiveEndDate is the date shown to the user: the referral bonus overrides
// the activation end date when applied.
func (n PaymentNotice) effectiveEndDate() time.Time {
	if n.BonusDays > 0 && !n.FinalEndDate.IsZero() {
		return n.FinalEndDate
	}
	return n.EndDate
}

// InviterDisplayName resolves the inviter attribution through the
// sanitization/fallback chain: sanitized first name, else formatted username,
// else a generic placeholder. Raw user-supplied text never reaches a message.
func (n PaymentNotice) InviterDisplayName() string {
	if n.Inviter != nil {
		if name := sanitize.DisplayName(n.Inviter.FirstName); name != "" {
			return name
		}
		if username := sanitize.UsernameForDisplay(n.Inviter.Username, false); username != "" {
			return username
		}
	}
	return friendPlaceholder
}

// ComposePaymentMessage builds the user-facing confirmation text.
func ComposePaymentMessage(n PaymentNotice) string {
	configLink := n.SubscriptionURL
	if configLink == "" {
		configLink = "your config link will be available shortly"
	}

	if n.Traffic() {
		text := fmt.Sprintf("✅ Payment received!\n\n%d GB of traffic added to your subscription.", n.TrafficGB)
		if end := n.effectiveEndDate(); !end.IsZero() {
			text += fmt.Sprintf("\nActive until: %s", end.Format(dateLayout))
		}
		return text + fmt.Sprintf("\n\n🔗 %s", configLink)
	}

	if n.BonusDays > 0 {
		return fmt.Sprintf(
			"✅ Payment received!\n\nSubscription extended by %d month(s) until %s.\n🎁 +%d bonus day(s) from %s — active until %s.\n\n🔗 %s",
			n.Months,
			n.EndDate.Format(dateLayout),
			n.BonusDays,
			n.InviterDisplayName(),
			n.effectiveEndDate().Format(dateLayout),
			configLink,
		)
	}

	return fmt.Sprintf(
		"✅ Payment received!\n\nSubscription extended by %d month(s).\nActive until: %s\n\n🔗 %s",
		n.Months,
		n.EndDate.Format(dateLayout),
		configLink,
	)
}

// ComposeAdminSummary builds the admin-facing payment summary.
func ComposeAdminSummary(n PaymentNotice) string {
	who := fmt.Sprintf("user %d", n.User.TelegramID)
	if username := sanitize.UsernameForDisplay(n.User.Username, true); username != "" {
		who += " (" + username + ")"
	}

	what := fmt.Sprintf("%d month(s)", n.Months)
	if n.Traffic() {
		what = fmt.Sprintf("%d GB", n.TrafficGB)
	}

	return fmt.Sprintf(
		"💰 Tribute payment received\n%s\n%.2f %s for %s",
		who, n.Amount, n.Currency, what,
	)
}

// ComposeNotConnectedReminder builds the post-activation nudge for users who
// have not connected a device yet.
func ComposeNotConnectedReminder(connectURL string) string {
	text := "👋 Your subscription is active, but no device is connected yet.\nConnect now to start using it."
	if connectURL != "" {
		text += fmt.Sprintf("\n\n🔗 %s", connectURL)
	}
	return text
}

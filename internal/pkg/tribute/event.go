package tribute

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidJSON is the terminal decode failure for a webhook body.
var ErrInvalidJSON = errors.New("invalid webhook JSON")

// EventKind is the closed set of webhook event types the gateway understands.
// Anything else maps to EventUnknown and is acknowledged without side effects
// so unknown event types never block the webhook channel.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventDigitalProduct
	EventDigitalProductRefund
	EventSubscriptionNew
	EventSubscriptionRenewed
	EventSubscriptionCancelled
)

func (k EventKind) String() string {
	switch k {
	case EventDigitalProduct:
		return "digital_product"
	case EventDigitalProductRefund:
		return "digital_product_refund"
	case EventSubscriptionNew:
		return "subscription_new"
	case EventSubscriptionRenewed:
		return "subscription_renewed"
	case EventSubscriptionCancelled:
		return "subscription_cancelled"
	default:
		return "unknown"
	}
}

// IsPurchase reports whether the event carries a payable purchase.
func (k EventKind) IsPurchase() bool {
	switch k {
	case EventDigitalProduct, EventSubscriptionNew, EventSubscriptionRenewed:
		return true
	default:
		return false
	}
}

// FlexInt64 decodes JSON numbers that some provider payload variants deliver
// as quoted strings.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("not an integer value: %q", s)
	}
	*f = FlexInt64(n)
	return nil
}

// EventPayload is the union of payload fields across the known event shapes.
// One-time product purchases fill product_id/amount; subscription events add
// subscription_id, period and period_id.
type EventPayload struct {
	TelegramUserID FlexInt64 `json:"telegram_user_id"`
	ProductID      FlexInt64 `json:"product_id"`
	Amount         FlexInt64 `json:"amount"`
	Currency       string    `json:"currency"`
	UserID         FlexInt64 `json:"user_id"`
	SubscriptionID FlexInt64 `json:"subscription_id"`
	Period         string    `json:"period"`
	PeriodID       FlexInt64 `json:"period_id"`
}

// WebhookEvent is the decoded webhook envelope. It lives only for the duration
// of a single request.
type WebhookEvent struct {
	Name      string       `json:"name"`
	CreatedAt string       `json:"created_at"`
	SentAt    string       `json:"sent_at"`
	Payload   EventPayload `json:"payload"`
}

// Kind maps the string event tag onto the closed event enumeration. Both
// camelCase and snake_case variants are accepted.
func (e *WebhookEvent) Kind() EventKind {
	return KindForName(e.Name)
}

func KindForName(name string) EventKind {
	switch name {
	case "new_digital_product", "newDigitalProduct":
		return EventDigitalProduct
	case "digitalProductRefund", "digital_product_refund":
		return EventDigitalProductRefund
	case "newSubscription", "new_subscription":
		return EventSubscriptionNew
	case "renewedSubscription", "renewed_subscription":
		return EventSubscriptionRenewed
	case "cancelledSubscription", "cancelled_subscription":
		return EventSubscriptionCancelled
	default:
		return EventUnknown
	}
}

// ParseWebhookEvent decodes a raw webhook body. A body that does not decode is
// a terminal condition; nothing downstream runs.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return &ev, nil
}

// DeriveProviderPaymentID builds the deterministic deduplication key for a
// purchase event from stable payload fields. Redelivery of the identical
// webhook body yields the identical key.
func DeriveProviderPaymentID(ev *WebhookEvent) string {
	p := ev.Payload
	switch ev.Kind() {
	case EventSubscriptionNew, EventSubscriptionRenewed:
		ref := ev.CreatedAt
		if p.PeriodID != 0 {
			ref = strconv.FormatInt(int64(p.PeriodID), 10)
		}
		return fmt.Sprintf("tribute:sub:%d:%d:%s", p.SubscriptionID, p.UserID, ref)
	default:
		return fmt.Sprintf("tribute:product:%d:%d:%s", p.ProductID, p.UserID, ev.CreatedAt)
	}
}

package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"tribute-gateway/internal/pkg/tribute"
)

// WebhookController terminates the Tribute webhook: signature check, payload
// decode, then hand-off to the tribute service. The raw body is copied before
// anything else touches it because signature verification must run over the
// exact bytes the provider signed.
type WebhookController struct {
	cfg *tribute.Config
	svc *tribute.Service
}

func NewWebhookController(cfg *tribute.Config, svc *tribute.Service) *WebhookController {
	return &WebhookController{cfg: cfg, svc: svc}
}

func (wc *WebhookController) HandleTributeWebhook(c *fiber.Ctx) error {
	if !wc.cfg.Enabled {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "tribute_disabled"})
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get(tribute.SignatureHeader)

	if wc.cfg.APIKey == "" {
		log.Warn("tribute webhook: TRIBUTE_API_KEY not set, accepting unverified request")
	} else if !tribute.VerifyWebhookSignature(rawBody, signature, wc.cfg.APIKey) {
		log.Warnf("tribute webhook: invalid signature from %s", c.IP())
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "invalid_signature"})
	}

	ev, err := tribute.ParseWebhookEvent(rawBody)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_json"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	outcome, err := wc.svc.HandleEvent(ctx, ev)
	if err != nil {
		var verr *tribute.ValidationError
		if errors.As(err, &verr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": verr.Reason})
		}
		log.Errorf("tribute webhook: processing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}

	switch outcome.Code {
	case tribute.OutcomeDuplicate:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	case tribute.OutcomeIgnored:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	case tribute.OutcomeActivationFailed:
		// Payment is recorded; activation is resolved manually. Answer 200 so
		// the provider does not redeliver a payment we already hold.
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "activated": false})
	default:
		return c.Status(fiber.StatusOK).SendString("OK")
	}
}
